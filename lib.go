package comabi

import (
	"errors"
	"reflect"

	"github.com/osmiumlabs/comabi/abi"
	"github.com/osmiumlabs/comabi/types"
)

// Boundary router: the four entry points every collaborator crosses the
// boundary through. On each crossing the router decides between building a
// proxy, building a stub, or passing the original pointer straight through
// on a round trip.

// RCWForPointer wraps a native call-table pointer in a managed proxy of
// interface type T. A nil pointer yields a nil proxy. When alreadyRetained
// is true the caller's reference count unit transfers to the proxy;
// otherwise the proxy takes its own.
//
// The per-type forwarding code is generated on first use and cached for the
// process; subsequent calls only allocate the wrapper.
func RCWForPointer[T any](ptr *abi.Object, alreadyRetained bool) (*T, error) {
	if ptr == nil {
		return nil, nil
	}
	desc, err := descriptorFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		if alreadyRetained {
			// The handed-over unit must not leak on a failed wrap.
			abi.Release(ptr)
		}
		return nil, err
	}
	pv, err := rcwForPointer(desc, ptr, alreadyRetained)
	if err != nil {
		return nil, err
	}
	return pv.Interface().(*T), nil
}

// CCWForObject exports a managed object implementing interface type T as a
// native call-table pointer carrying one reference count unit for the
// caller. A nil object yields a nil pointer. If obj is itself a proxy
// wrapping a native object of this exact interface, the original native
// pointer is retained and returned and no stub is built.
func CCWForObject[T any](obj *T) (*abi.Object, error) {
	if obj == nil {
		return nil, nil
	}
	return ccwForValue(reflect.ValueOf(obj))
}

// QueryInterface asks obj for interface type T. An object that already
// satisfies T in-process is returned directly with no boundary crossing;
// otherwise a native queryInterface call is issued through the object's
// handle and the result wrapped as a proxy. An unsupported interface fails
// with *types.NoInterfaceError, distinguishable from every other failure.
func QueryInterface[T any](obj any) (*T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	desc, err := descriptorFor(t)
	if err != nil {
		return nil, err
	}
	finish := startCallSpan("query", desc.id, t.Name())

	if typed, ok := obj.(*T); ok && typed != nil {
		finish(nil)
		return typed, nil
	}
	if obj == nil {
		err := &types.NoInterfaceError{Requested: desc.id}
		finish(err)
		return nil, err
	}

	h := handleOf(reflect.ValueOf(obj))
	if h == nil || !h.IsProxy() || h.closed() {
		// A managed object that does not satisfy T and has no native
		// identity cannot support the interface.
		err := &types.NoInterfaceError{Requested: desc.id}
		finish(err)
		return nil, err
	}

	out, status, detail := abi.QueryInterface(h.ptr, desc.id)
	if !status.Ok() {
		var err error
		if status == types.StatusNoInterface {
			err = &types.NoInterfaceError{Requested: desc.id}
		} else {
			err = types.ErrorFromStatus(status, detail)
		}
		finish(err)
		return nil, err
	}

	pv, err := rcwForPointer(desc, out, true)
	if err != nil {
		finish(err)
		return nil, err
	}
	finish(nil)
	return pv.Interface().(*T), nil
}

// QueryInterfaceOrNil is QueryInterface with probing semantics: an
// unsupported interface yields (nil, nil) instead of an error. Every other
// failure propagates unchanged; only the NoInterface condition is absorbed.
func QueryInterfaceOrNil[T any](obj any) (*T, error) {
	result, err := QueryInterface[T](obj)
	if err != nil {
		var noIface *types.NoInterfaceError
		if errors.As(err, &noIface) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}
