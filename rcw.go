package comabi

import (
	"reflect"
	"runtime"

	"github.com/osmiumlabs/comabi/abi"
	"github.com/osmiumlabs/comabi/types"
)

// Proxy factory ("RCW" side): wraps a native call-table pointer in a managed
// value of the declared interface struct, with one generated forwarder per
// method. The expensive part (marshaller resolution, slot layout) lives in
// the cached descriptor; constructing a proxy instance only allocates the
// wrapper struct and its per-instance closures.

// rcwForPointer builds a proxy for ptr. When alreadyRetained is false the
// proxy takes its own reference count unit; either way it owns exactly one
// and gives it back on Close or finalization.
func rcwForPointer(desc *interfaceDesc, ptr *abi.Object, alreadyRetained bool) (reflect.Value, error) {
	if ptr == nil {
		return reflect.Zero(reflect.PointerTo(desc.typ)), nil
	}
	if !alreadyRetained {
		abi.AddRef(ptr)
	}

	pv := reflect.New(desc.typ)
	h := pv.Elem().Field(0).Addr().Interface().(*Handle)
	h.ptr = ptr
	for _, m := range desc.methods {
		m := m
		pv.Elem().Field(m.field).Set(reflect.MakeFunc(m.ftype, func(args []reflect.Value) []reflect.Value {
			return m.forward(desc, h, args)
		}))
	}

	// The finalizer backstops callers that forget Close. Close is idempotent,
	// so the disposal/finalization race still releases exactly once.
	runtime.SetFinalizer(pv.Interface(), func(proxy any) {
		_ = handleOf(reflect.ValueOf(proxy)).Close()
	})
	return pv, nil
}

// forward is the per-call body every generated proxy method runs: marshal
// arguments, invoke the slot at the method's fixed call-table offset, free
// call temporaries, unmarshal results, rehydrate failures into the managed
// error convention.
func (m *methodDesc) forward(desc *interfaceDesc, h *Handle, args []reflect.Value) []reflect.Value {
	finish := startCallSpan("proxy", desc.id, m.name)

	if h.closed() {
		err := &types.ProtocolViolationError{Msg: "call through a released proxy: " + m.name}
		finish(err)
		return m.failure(err)
	}

	call := abi.Call{
		Args: make([]abi.Word, len(m.params)),
		Rets: make([]abi.Word, len(m.results)),
	}

	var err error
	marshalled := 0
	for i, p := range m.params {
		if err = p.toNative(args[i], &call.Args[i]); err != nil {
			break
		}
		marshalled++
	}

	if err == nil {
		status := h.ptr.VTable.Slots[m.slot](h.ptr, &call)
		if !status.Ok() {
			err = types.ErrorFromStatus(status, call.TakeError())
		}
	}

	// Call temporaries are freed regardless of the outcome; the balance
	// invariant holds under failure too.
	for i := 0; i < marshalled; i++ {
		m.params[i].freeNative(&call.Args[i])
	}
	if err != nil {
		finish(err)
		return m.failure(err)
	}

	outs := make([]reflect.Value, 0, len(m.results)+1)
	for i, r := range m.results {
		v, merr := r.toManaged(call.Rets[i], true)
		if merr != nil {
			// Consume the remaining transferred results so nothing leaks.
			for j := i + 1; j < len(m.results); j++ {
				m.results[j].toManaged(call.Rets[j], true) //nolint:errcheck
			}
			finish(merr)
			return m.failure(merr)
		}
		outs = append(outs, v)
	}
	if m.hasError {
		outs = append(outs, reflect.Zero(errorType))
	}
	finish(nil)
	return outs
}

// failure produces the result list for a failed call: zero values plus the
// error. Methods declared without a trailing error have nowhere to surface a
// boundary failure, so one panics; declaring such methods is a choice to
// treat any failure as fatal.
func (m *methodDesc) failure(err error) []reflect.Value {
	if !m.hasError {
		panic(err)
	}
	outs := make([]reflect.Value, 0, len(m.results)+1)
	for i := range m.results {
		outs = append(outs, reflect.Zero(m.ftype.Out(i)))
	}
	ev := reflect.New(errorType).Elem()
	ev.Set(reflect.ValueOf(err))
	outs = append(outs, ev)
	return outs
}
