package comabi

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/osmiumlabs/comabi/abi"
	"github.com/osmiumlabs/comabi/types"
)

// Stub factory ("CCW" side): exports a managed object as a native call
// table. The thunk table is generated once per interface type and shared;
// each exported object only allocates a small record carrying the header,
// its own reference count and the rooting reference to the managed object.

// export is the native-visible record of one exported managed object. The
// header must stay the first field: slots recover the record by casting the
// header pointer back, the same first-member trick C call tables use.
type export struct {
	hdr  abi.Object
	refs atomic.Int32
	desc *interfaceDesc
	recv reflect.Value // pointer to the managed interface struct
	key  uint64
}

// exportTable roots every live export so the managed object stays reachable
// at least as long as some native caller holds a reference. Entries are
// removed when the export's count reaches zero.
var (
	exportTable    sync.Map // uint64 -> *export
	exportSeq      atomic.Uint64
	exportsCreated atomic.Uint64
	exportsLive    atomic.Int64
)

// ExportStats returns the number of stubs created since process start and
// the number currently rooted. The round-trip tests pin the created counter
// to prove short-circuiting builds no new stubs.
func ExportStats() (created uint64, live int64) {
	return exportsCreated.Load(), exportsLive.Load()
}

func exportOf(this *abi.Object) *export {
	return (*export)(unsafe.Pointer(this))
}

// ccwForValue turns a non-nil pointer to a managed interface struct into a
// native call-table pointer carrying one reference count unit for the
// caller.
//
// If the value is itself a proxy wrapping a native object of this exact
// interface, the original pointer is retained and returned and no stub is
// built. This round-trip short circuit is what keeps repeated crossings
// from growing proxy/stub chains without bound.
func ccwForValue(v reflect.Value) (*abi.Object, error) {
	desc, err := descriptorFor(v.Type().Elem())
	if err != nil {
		return nil, err
	}

	if h := handleOf(v); h != nil && h.IsProxy() {
		if h.closed() {
			return nil, &types.ProtocolViolationError{Msg: "export of a released proxy"}
		}
		if h.ptr.VTable.ID.Equal(desc.id) {
			abi.AddRef(h.ptr)
			return h.ptr, nil
		}
	}

	e := &export{
		desc: desc,
		recv: v,
		key:  exportSeq.Add(1),
	}
	e.hdr.VTable = desc.vtable
	e.refs.Store(1)
	exportTable.Store(e.key, e)
	exportsCreated.Add(1)
	exportsLive.Add(1)
	return &e.hdr, nil
}

// buildStubVTable generates the shared call table for one interface type:
// the three base slots followed by one thunk per declared method.
func buildStubVTable(desc *interfaceDesc) *abi.VTable {
	slots := make([]abi.Slot, abi.NumBaseSlots, abi.NumBaseSlots+len(desc.methods))
	slots[abi.SlotQueryInterface] = stubQueryInterface
	slots[abi.SlotAddRef] = stubAddRef
	slots[abi.SlotRelease] = stubRelease
	for _, m := range desc.methods {
		slots = append(slots, makeStubThunk(desc, m))
	}
	return &abi.VTable{ID: desc.id, Slots: slots}
}

func stubQueryInterface(this *abi.Object, call *abi.Call) types.Status {
	e := exportOf(this)
	requested := *(*types.InterfaceID)(call.Args[0].P)
	if requested.Equal(e.desc.id) || requested.Equal(types.IDUnknown) {
		e.refs.Add(1)
		call.Rets[0].P = unsafe.Pointer(this)
		return types.StatusOK
	}
	call.SetError(requested.String())
	return types.StatusNoInterface
}

func stubAddRef(this *abi.Object, call *abi.Call) types.Status {
	e := exportOf(this)
	call.Rets[0].U = uint64(e.refs.Add(1))
	return types.StatusOK
}

func stubRelease(this *abi.Object, call *abi.Call) types.Status {
	e := exportOf(this)
	n := e.refs.Add(-1)
	if n < 0 {
		types.ReportViolation("stub released more often than retained",
			zap.String("interface", e.desc.id.String()))
		e.refs.Store(0)
		call.Rets[0].U = 0
		return types.StatusOK
	}
	if n == 0 {
		// Unroot: the managed object may be collected once nothing else
		// references it.
		exportTable.Delete(e.key)
		exportsLive.Add(-1)
	}
	call.Rets[0].U = uint64(n)
	return types.StatusOK
}

// makeStubThunk generates the slot for one method: recover the export,
// unmarshal arguments, call the managed func field, marshal results back,
// translate the managed error convention into a status. Panics in the
// managed callee are recovered; nothing unwinds across the call table.
func makeStubThunk(desc *interfaceDesc, m *methodDesc) abi.Slot {
	return func(this *abi.Object, call *abi.Call) (status types.Status) {
		finish := startCallSpan("stub", desc.id, m.name)
		var callErr error
		defer func() {
			if rec := recover(); rec != nil {
				types.Logger().Error("panic in exported method",
					zap.String("interface", desc.id.String()),
					zap.String("method", m.name),
					zap.Any("panic", rec))
				call.SetError(fmt.Sprint(rec))
				status = types.StatusPanic
				callErr = &types.CalleeError{Status: status}
			}
			finish(callErr)
		}()

		e := exportOf(this)
		args := make([]reflect.Value, len(m.params))
		for i, p := range m.params {
			v, err := p.toManaged(call.Args[i], false)
			if err != nil {
				call.SetError(err.Error())
				callErr = err
				return types.StatusMarshal
			}
			args[i] = v
		}

		fn := e.recv.Elem().Field(m.field)
		if fn.IsNil() {
			call.SetError("method " + m.name + " is not bound")
			callErr = &types.CalleeError{Status: types.StatusFail}
			return types.StatusFail
		}

		outs := fn.Call(args)
		if m.hasError {
			if errv := outs[len(outs)-1]; !errv.IsNil() {
				err := errv.Interface().(error)
				st, detail := types.StatusFromError(err)
				call.SetError(detail)
				callErr = err
				return st
			}
		}

		for i, r := range m.results {
			if err := r.toNative(outs[i], &call.Rets[i]); err != nil {
				// Give back what was already marshalled; results must not
				// leak on a failed call.
				for j := 0; j < i; j++ {
					m.results[j].freeNative(&call.Rets[j])
					call.Rets[j] = abi.Word{}
				}
				call.SetError(err.Error())
				callErr = err
				return types.StatusMarshal
			}
		}
		return types.StatusOK
	}
}
