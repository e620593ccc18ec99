package comabi

import (
	"reflect"
	"sync/atomic"

	"github.com/osmiumlabs/comabi/abi"
	"github.com/osmiumlabs/comabi/types"
)

// Handle is the managed owner of exactly one reference count unit on a
// native object. Every declared interface struct embeds it as its first
// field: proxies carry a live handle, managed implementations leave it zero.
//
// The invariant is strict one-for-one balance: one retain at construction
// (unless the caller already performed it), one release on Close or
// finalization, never more, even when Close races the finalizer.
type Handle struct {
	ptr      *abi.Object
	released atomic.Bool
}

// IsProxy reports whether the handle wraps a native object, i.e. whether the
// surrounding struct is a proxy rather than a managed implementation.
func (h *Handle) IsProxy() bool {
	return h.ptr != nil
}

// NativePointer exposes the wrapped call-table pointer. The handle keeps its
// reference; callers wanting to hold the pointer must retain it themselves.
func (h *Handle) NativePointer() *abi.Object {
	return h.ptr
}

// Retain takes an additional reference count unit on the native object and
// returns the new count. The count is observational only.
func (h *Handle) Retain() uint32 {
	if h.ptr == nil || h.released.Load() {
		types.ReportViolation("retain on a zero or released handle")
		return 0
	}
	return abi.AddRef(h.ptr)
}

// ReleaseOne gives back one reference count unit previously taken with
// Retain. It does not affect the unit owned by the handle itself.
func (h *Handle) ReleaseOne() uint32 {
	if h.ptr == nil || h.released.Load() {
		types.ReportViolation("release on a zero or released handle")
		return 0
	}
	return abi.Release(h.ptr)
}

// Close gives up the handle's own reference count unit. Idempotent: the
// release happens exactly once no matter how often Close is called or
// whether it races the proxy finalizer. Closing a zero handle is a no-op.
func (h *Handle) Close() error {
	if h.ptr == nil {
		return nil
	}
	if h.released.Swap(true) {
		return nil
	}
	abi.Release(h.ptr)
	return nil
}

// closed reports whether the handle's reference has already been given up.
func (h *Handle) closed() bool {
	return h.ptr != nil && h.released.Load()
}

var handleType = reflect.TypeOf(Handle{})

// handleOf recovers the embedded Handle of a declared interface struct, or
// nil if v is not a pointer to such a struct.
func handleOf(v reflect.Value) *Handle {
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil
	}
	elem := v.Elem()
	if elem.Kind() != reflect.Struct || elem.NumField() == 0 {
		return nil
	}
	field := elem.Field(0)
	if field.Type() != handleType {
		return nil
	}
	return field.Addr().Interface().(*Handle)
}
