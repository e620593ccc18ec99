package comabi

import (
	"fmt"
	"math"
	"reflect"
	"unsafe"

	"github.com/osmiumlabs/comabi/abi"
)

// marshaler is the per-type strategy for moving one value across the
// boundary. Chosen once at descriptor build time and immutable afterwards.
//
// Ownership convention for pointer-carrying words:
//   - arguments: the caller allocates (toNative), the callee borrows
//     (toManaged with transfer=false), the caller frees after the call
//     (freeNative);
//   - results: the callee allocates (toNative) and ownership transfers to
//     the caller, which consumes it (toManaged with transfer=true).
//
// For interface-typed values "allocate" and "free" mean taking and giving
// back a reference count unit; transfer decides whether the conversion
// consumes the incoming unit or takes its own.
type marshaler interface {
	toNative(v reflect.Value, w *abi.Word) error
	freeNative(w *abi.Word)
	toManaged(w abi.Word, transfer bool) (reflect.Value, error)
}

// marshalerFor picks the strategy for one parameter or result type.
func marshalerFor(t reflect.Type) (marshaler, error) {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return &wordMarshaler{typ: t}, nil
	case reflect.String:
		return &stringMarshaler{typ: t}, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return &bytesMarshaler{typ: t}, nil
		}
	case reflect.Pointer:
		if _, ok := interfaceIDs.Load(t.Elem()); ok {
			return &ifaceMarshaler{ptrType: t}, nil
		}
		return nil, fmt.Errorf("pointer type %s does not point at a registered interface struct", t)
	}
	return nil, fmt.Errorf("type %s cannot cross the boundary", t)
}

// wordMarshaler moves primitive numerics and bools by value identity in the
// integer half of a word. No allocation, no cleanup.
type wordMarshaler struct {
	typ reflect.Type
}

func (m *wordMarshaler) toNative(v reflect.Value, w *abi.Word) error {
	switch m.typ.Kind() {
	case reflect.Bool:
		if v.Bool() {
			w.U = 1
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.U = uint64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		w.U = v.Uint()
	case reflect.Float32:
		w.U = uint64(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		w.U = math.Float64bits(v.Float())
	}
	return nil
}

func (m *wordMarshaler) freeNative(*abi.Word) {}

func (m *wordMarshaler) toManaged(w abi.Word, _ bool) (reflect.Value, error) {
	out := reflect.New(m.typ).Elem()
	switch m.typ.Kind() {
	case reflect.Bool:
		out.SetBool(w.U != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out.SetInt(int64(w.U))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out.SetUint(w.U)
	case reflect.Float32:
		out.SetFloat(float64(math.Float32frombits(uint32(w.U))))
	case reflect.Float64:
		out.SetFloat(math.Float64frombits(w.U))
	}
	return out, nil
}

// stringMarshaler moves strings through owned, length-prefixed buffers. The
// boundary never assumes a terminated or garbage-collected string format;
// the buffer's length is authoritative and its destructor explicit.
type stringMarshaler struct {
	typ reflect.Type
}

func (m *stringMarshaler) toNative(v reflect.Value, w *abi.Word) error {
	w.P = unsafe.Pointer(abi.AllocString(v.String()))
	return nil
}

func (m *stringMarshaler) freeNative(w *abi.Word) {
	if w.P != nil {
		(*abi.StrBuf)(w.P).Free()
	}
}

func (m *stringMarshaler) toManaged(w abi.Word, transfer bool) (reflect.Value, error) {
	buf := (*abi.StrBuf)(w.P)
	var s string
	if transfer {
		s = string(abi.CopyAndFree(buf))
	} else {
		s = buf.String()
	}
	return reflect.ValueOf(s).Convert(m.typ), nil
}

// bytesMarshaler moves byte slices the same way strings travel, preserving
// the nil/empty distinction through the buffer's none value.
type bytesMarshaler struct {
	typ reflect.Type
}

func (m *bytesMarshaler) toNative(v reflect.Value, w *abi.Word) error {
	w.P = unsafe.Pointer(abi.AllocStrBuf(v.Bytes()))
	return nil
}

func (m *bytesMarshaler) freeNative(w *abi.Word) {
	if w.P != nil {
		(*abi.StrBuf)(w.P).Free()
	}
}

func (m *bytesMarshaler) toManaged(w abi.Word, transfer bool) (reflect.Value, error) {
	buf := (*abi.StrBuf)(w.P)
	var b []byte
	if transfer {
		b = abi.CopyAndFree(buf)
	} else if buf != nil {
		// An empty borrowed buffer must stay distinguishable from none, so
		// the copy is allocated even at length zero.
		b = make([]byte, buf.Len())
		copy(b, buf.Bytes())
	}
	return reflect.ValueOf(&b).Elem().Convert(m.typ), nil
}

// ifaceMarshaler moves interface-typed values by recursing through the
// boundary router: outbound values become call-table pointers (reusing the
// original pointer on round trips), inbound pointers become proxies.
type ifaceMarshaler struct {
	ptrType reflect.Type // *T where T is a registered interface struct
}

func (m *ifaceMarshaler) toNative(v reflect.Value, w *abi.Word) error {
	if v.IsNil() {
		return nil
	}
	obj, err := ccwForValue(v)
	if err != nil {
		return err
	}
	w.P = unsafe.Pointer(obj)
	return nil
}

func (m *ifaceMarshaler) freeNative(w *abi.Word) {
	if w.P != nil {
		abi.Release((*abi.Object)(w.P))
	}
}

func (m *ifaceMarshaler) toManaged(w abi.Word, transfer bool) (reflect.Value, error) {
	if w.P == nil {
		return reflect.Zero(m.ptrType), nil
	}
	desc, err := descriptorFor(m.ptrType.Elem())
	if err != nil {
		return reflect.Value{}, err
	}
	return rcwForPointer(desc, (*abi.Object)(w.P), transfer)
}
