// Package abi models the native side of the boundary: C-style objects whose
// first word points at a call table of uniform slots. Managed code never
// touches these layouts directly; it goes through the comabi package, which
// generates forwarders against the slot convention defined here.
package abi

import (
	"unsafe"

	"github.com/osmiumlabs/comabi/types"
)

// Slot is a single call-table entry. Arguments and results travel in the
// call frame; the returned status is the native failure convention. A slot
// must never panic across the table.
type Slot func(this *Object, call *Call) types.Status

// VTable is a call table: the interface identifier it implements plus the
// slots in ABI order. The first NumBaseSlots entries are the base contract,
// followed by the interface's declared methods in declaration order. This
// ordering is the single most important cross-boundary invariant; both sides
// assume it.
type VTable struct {
	ID    types.InterfaceID
	Slots []Slot
}

// Object is the header every native object starts with: a single pointer to
// its call table. Concrete objects embed it as their first field and recover
// themselves from the header pointer inside their slots.
type Object struct {
	VTable *VTable
}

// Base contract slot indices. Fixed by the ABI; never reordered.
const (
	SlotQueryInterface = 0
	SlotAddRef         = 1
	SlotRelease        = 2

	// NumBaseSlots is the number of reserved slots preceding declared methods.
	NumBaseSlots = 3
)

// QueryInterface asks obj for the given interface identifier through slot 0.
// On StatusOK the returned object carries one reference count unit owned by
// the caller. An unsupported identifier yields StatusNoInterface and a nil
// object; that status is the capability-probing signal and is never produced
// for any other reason. The detail string consumes any failure detail the
// callee attached to the frame.
func QueryInterface(obj *Object, id types.InterfaceID) (*Object, types.Status, string) {
	call := Call{
		Args: []Word{{P: unsafe.Pointer(&id)}},
		Rets: make([]Word, 1),
	}
	status := obj.VTable.Slots[SlotQueryInterface](obj, &call)
	if !status.Ok() {
		return nil, status, call.TakeError()
	}
	return (*Object)(call.Rets[0].P), status, ""
}

// AddRef takes one reference count unit on obj and returns the new count.
// The count is observational only; callers must not base control decisions
// on it.
func AddRef(obj *Object) uint32 {
	call := Call{Rets: make([]Word, 1)}
	obj.VTable.Slots[SlotAddRef](obj, &call)
	return uint32(call.Rets[0].U)
}

// Release gives up one reference count unit on obj and returns the new
// count. A count reaching zero destroys the underlying object; the pointer
// must not be used afterwards.
func Release(obj *Object) uint32 {
	call := Call{Rets: make([]Word, 1)}
	obj.VTable.Slots[SlotRelease](obj, &call)
	return uint32(call.Rets[0].U)
}
