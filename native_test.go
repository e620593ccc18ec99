package comabi_test

import (
	"sync"
	"sync/atomic"
	"unsafe"

	comabi "github.com/osmiumlabs/comabi"
	"github.com/osmiumlabs/comabi/abi"
	"github.com/osmiumlabs/comabi/types"
)

// Test interface declarations. Field order is the call-table layout; the
// hand-written native vtables below must list their method slots in the same
// order.

type Greeter struct {
	comabi.Handle
	SetName func(name string) error
	Greet   func(prefix string) (string, error)
	Count   func() (uint32, error)
}

type Widget struct {
	comabi.Handle
	Resize func(w, h uint32) error
	Area   func() (uint64, error)
}

type Container struct {
	comabi.Handle
	SetItem func(item *Greeter) error
	Item    func() (*Greeter, error)
}

var (
	greeterID   = types.ForceNewID("35edff15-0b38-47d8-9b7c-e00fa2acdf9d")
	widgetID    = types.ForceNewID("7d3bfa26-6a9e-4dc1-b0f8-57b1a9f2d70e")
	containerID = types.ForceNewID("c2d7a7e4-09ce-45f5-9f6e-df1be8c3e00b")
)

func init() {
	comabi.RegisterInterface[Greeter](greeterID)
	comabi.RegisterInterface[Widget](widgetID)
	comabi.RegisterInterface[Container](containerID)
}

// nativeGreeter stands in for a foreign-runtime object implementing Greeter:
// header first, refcount and state behind it. Destruction is observable
// through the alive flag and negative counts through sawNegative, which the
// stress test checks.
type nativeGreeter struct {
	hdr         abi.Object
	refs        atomic.Int32
	sawNegative atomic.Bool
	alive       *atomic.Bool
	greeted     atomic.Uint32

	mu   sync.Mutex
	name string
}

func greeterOf(this *abi.Object) *nativeGreeter {
	return (*nativeGreeter)(unsafe.Pointer(this))
}

var nativeGreeterVTable = &abi.VTable{
	ID: greeterID,
	Slots: []abi.Slot{
		// QueryInterface
		func(this *abi.Object, call *abi.Call) types.Status {
			requested := *(*types.InterfaceID)(call.Args[0].P)
			if requested.Equal(greeterID) || requested.Equal(types.IDUnknown) {
				greeterOf(this).refs.Add(1)
				call.Rets[0].P = unsafe.Pointer(this)
				return types.StatusOK
			}
			return types.StatusNoInterface
		},
		// AddRef
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64(greeterOf(this).refs.Add(1))
			return types.StatusOK
		},
		// Release
		func(this *abi.Object, call *abi.Call) types.Status {
			g := greeterOf(this)
			n := g.refs.Add(-1)
			if n < 0 {
				g.sawNegative.Store(true)
			}
			if n == 0 && g.alive != nil {
				g.alive.Store(false)
			}
			call.Rets[0].U = uint64(n)
			return types.StatusOK
		},
		// SetName
		func(this *abi.Object, call *abi.Call) types.Status {
			g := greeterOf(this)
			g.mu.Lock()
			g.name = (*abi.StrBuf)(call.Args[0].P).String()
			g.mu.Unlock()
			return types.StatusOK
		},
		// Greet
		func(this *abi.Object, call *abi.Call) types.Status {
			g := greeterOf(this)
			g.mu.Lock()
			greeting := (*abi.StrBuf)(call.Args[0].P).String() + g.name
			g.mu.Unlock()
			g.greeted.Add(1)
			call.Rets[0].P = unsafe.Pointer(abi.AllocString(greeting))
			return types.StatusOK
		},
		// Count
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64(greeterOf(this).greeted.Load())
			return types.StatusOK
		},
	},
}

// newNativeGreeter returns a fresh native greeter holding one reference for
// the caller. The alive flag flips to false when the count reaches zero.
func newNativeGreeter(alive *atomic.Bool) (*abi.Object, *nativeGreeter) {
	g := &nativeGreeter{alive: alive}
	g.hdr.VTable = nativeGreeterVTable
	g.refs.Store(1)
	if alive != nil {
		alive.Store(true)
	}
	return &g.hdr, g
}

// brokenObject answers every queryInterface with a generic failure. Used to
// verify that QueryInterfaceOrNil absorbs only NoInterface and lets other
// native failures propagate.
type brokenObject struct {
	hdr  abi.Object
	refs atomic.Int32
}

var brokenVTable = &abi.VTable{
	ID: greeterID,
	Slots: []abi.Slot{
		func(this *abi.Object, call *abi.Call) types.Status {
			call.SetError("query facility is down")
			return types.StatusFail
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64((*brokenObject)(unsafe.Pointer(this)).refs.Add(1))
			return types.StatusOK
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64((*brokenObject)(unsafe.Pointer(this)).refs.Add(-1))
			return types.StatusOK
		},
	},
}

func newBrokenObject() *abi.Object {
	b := &brokenObject{}
	b.hdr.VTable = brokenVTable
	b.refs.Store(1)
	return &b.hdr
}

// nativeDual implements Greeter and Widget on one object through two call
// tables. Slots on the second header recover the object by subtracting the
// header's offset, the same parent-resolution trick a C object with several
// vtables uses.
type nativeDual struct {
	hdrG abi.Object
	hdrW abi.Object
	refs atomic.Int32

	mu   sync.Mutex
	name string
	w, h uint32
}

func dualFromG(this *abi.Object) *nativeDual {
	return (*nativeDual)(unsafe.Pointer(this))
}

func dualFromW(this *abi.Object) *nativeDual {
	return (*nativeDual)(unsafe.Pointer(uintptr(unsafe.Pointer(this)) - unsafe.Offsetof(nativeDual{}.hdrW)))
}

func dualQueryInterface(d *nativeDual, call *abi.Call) types.Status {
	requested := *(*types.InterfaceID)(call.Args[0].P)
	switch {
	case requested.Equal(greeterID), requested.Equal(types.IDUnknown):
		d.refs.Add(1)
		call.Rets[0].P = unsafe.Pointer(&d.hdrG)
		return types.StatusOK
	case requested.Equal(widgetID):
		d.refs.Add(1)
		call.Rets[0].P = unsafe.Pointer(&d.hdrW)
		return types.StatusOK
	default:
		return types.StatusNoInterface
	}
}

var dualGreeterVTable = &abi.VTable{
	ID: greeterID,
	Slots: []abi.Slot{
		func(this *abi.Object, call *abi.Call) types.Status {
			return dualQueryInterface(dualFromG(this), call)
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64(dualFromG(this).refs.Add(1))
			return types.StatusOK
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64(dualFromG(this).refs.Add(-1))
			return types.StatusOK
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			d := dualFromG(this)
			d.mu.Lock()
			d.name = (*abi.StrBuf)(call.Args[0].P).String()
			d.mu.Unlock()
			return types.StatusOK
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			d := dualFromG(this)
			d.mu.Lock()
			greeting := (*abi.StrBuf)(call.Args[0].P).String() + d.name
			d.mu.Unlock()
			call.Rets[0].P = unsafe.Pointer(abi.AllocString(greeting))
			return types.StatusOK
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = 0
			return types.StatusOK
		},
	},
}

var dualWidgetVTable = &abi.VTable{
	ID: widgetID,
	Slots: []abi.Slot{
		func(this *abi.Object, call *abi.Call) types.Status {
			return dualQueryInterface(dualFromW(this), call)
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64(dualFromW(this).refs.Add(1))
			return types.StatusOK
		},
		func(this *abi.Object, call *abi.Call) types.Status {
			call.Rets[0].U = uint64(dualFromW(this).refs.Add(-1))
			return types.StatusOK
		},
		// Resize
		func(this *abi.Object, call *abi.Call) types.Status {
			d := dualFromW(this)
			d.mu.Lock()
			d.w, d.h = uint32(call.Args[0].U), uint32(call.Args[1].U)
			d.mu.Unlock()
			return types.StatusOK
		},
		// Area
		func(this *abi.Object, call *abi.Call) types.Status {
			d := dualFromW(this)
			d.mu.Lock()
			call.Rets[0].U = uint64(d.w) * uint64(d.h)
			d.mu.Unlock()
			return types.StatusOK
		},
	},
}

// newNativeDual returns the greeter-facing header holding one reference.
func newNativeDual() (*abi.Object, *nativeDual) {
	d := &nativeDual{}
	d.hdrG.VTable = dualGreeterVTable
	d.hdrW.VTable = dualWidgetVTable
	d.refs.Store(1)
	return &d.hdrG, d
}

// newManagedGreeter builds an in-process Greeter implementation with a zero
// handle, the shape the stub factory exports.
func newManagedGreeter() (*Greeter, *atomic.Uint32) {
	var greeted atomic.Uint32
	var mu sync.Mutex
	var name string

	g := &Greeter{}
	g.SetName = func(n string) error {
		mu.Lock()
		defer mu.Unlock()
		name = n
		return nil
	}
	g.Greet = func(prefix string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		greeted.Add(1)
		return prefix + name, nil
	}
	g.Count = func() (uint32, error) {
		return greeted.Load(), nil
	}
	return g, &greeted
}

// newManagedContainer builds a Container owning its item: a stored proxy is
// closed when replaced, which makes native-side destruction deterministic in
// the lifetime tests.
func newManagedContainer() *Container {
	var mu sync.Mutex
	var item *Greeter

	c := &Container{}
	c.SetItem = func(g *Greeter) error {
		mu.Lock()
		defer mu.Unlock()
		if item != nil {
			_ = item.Close()
		}
		item = g
		return nil
	}
	c.Item = func() (*Greeter, error) {
		mu.Lock()
		defer mu.Unlock()
		return item, nil
	}
	return c
}
