package comabi

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/osmiumlabs/comabi/abi"
	"github.com/osmiumlabs/comabi/types"
)

// Interface shapes are declared as struct types: an embedded Handle first,
// then one exported func-typed field per method, in declaration order. Field
// order is the call-table layout after the three base slots, so reordering
// fields is an ABI break.

// interfaceIDs maps a declared interface struct type to its identifier.
// Filled by RegisterInterface, usually from init functions.
var interfaceIDs sync.Map // reflect.Type -> types.InterfaceID

// descriptors is the process-wide metadata and forwarding-code cache, keyed
// by interface struct type. Entries are built lazily on first use and live
// for the process.
var descriptors sync.Map // reflect.Type -> *descriptorEntry

type descriptorEntry struct {
	once sync.Once
	desc *interfaceDesc
	err  error
}

// interfaceDesc is the reflected shape of one interface type: identifier,
// methods in ABI order with their marshallers, and the stub call table
// shared by every export of this type.
type interfaceDesc struct {
	typ     reflect.Type
	id      types.InterfaceID
	methods []*methodDesc
	vtable  *abi.VTable
}

type methodDesc struct {
	name     string
	slot     int
	field    int
	ftype    reflect.Type
	params   []marshaler
	results  []marshaler
	hasError bool
}

// RegisterInterface records the identifier for a declared interface struct
// type. Must be called before the type first crosses the boundary; init
// functions next to the type declaration are the natural place. Registering
// the same type twice with a different identifier panics, since that is a
// programming error no caller can recover from.
func RegisterInterface[T any](id types.InterfaceID) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if prev, loaded := interfaceIDs.LoadOrStore(t, id); loaded {
		if !prev.(types.InterfaceID).Equal(id) {
			panic(fmt.Sprintf("interface type %s registered twice with different IDs (%s and %s)",
				t, prev.(types.InterfaceID), id))
		}
	}
}

// InterfaceIDOf returns the registered identifier for the interface type T.
func InterfaceIDOf[T any]() (types.InterfaceID, bool) {
	id, ok := interfaceIDs.Load(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return types.InterfaceID{}, false
	}
	return id.(types.InterfaceID), true
}

// descriptorFor returns the descriptor for an interface struct type,
// building it on first use. Concurrent first callers serialize on a per-type
// once, so exactly one descriptor is ever published per type. A failed build
// is cached for its type (construction is deterministic) and never affects
// other types.
func descriptorFor(t reflect.Type) (*interfaceDesc, error) {
	entry, _ := descriptors.LoadOrStore(t, &descriptorEntry{})
	e := entry.(*descriptorEntry)
	e.once.Do(func() {
		e.desc, e.err = buildDescriptor(t)
	})
	return e.desc, e.err
}

func buildDescriptor(t reflect.Type) (*interfaceDesc, error) {
	if t.Kind() != reflect.Struct {
		return nil, &types.ConstructionError{Type: t.String(), Msg: "interface shape must be a struct type"}
	}
	rawID, ok := interfaceIDs.Load(t)
	if !ok {
		return nil, &types.ConstructionError{Type: t.String(), Msg: "type is not registered; call RegisterInterface first"}
	}
	if t.NumField() == 0 || !t.Field(0).Anonymous || t.Field(0).Type != handleType {
		return nil, &types.ConstructionError{Type: t.String(), Msg: "first field must be an embedded comabi.Handle"}
	}

	desc := &interfaceDesc{
		typ: t,
		id:  rawID.(types.InterfaceID),
	}
	for i := 1; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			return nil, &types.ConstructionError{Type: t.String(),
				Msg: fmt.Sprintf("method field %s must be exported", field.Name)}
		}
		ft := field.Type
		if ft.Kind() != reflect.Func || ft.IsVariadic() {
			return nil, &types.ConstructionError{Type: t.String(),
				Msg: fmt.Sprintf("method field %s must be a non-variadic func", field.Name)}
		}
		m := &methodDesc{
			name:  field.Name,
			slot:  abi.NumBaseSlots + len(desc.methods),
			field: i,
			ftype: ft,
		}
		for p := 0; p < ft.NumIn(); p++ {
			mr, err := marshalerFor(ft.In(p))
			if err != nil {
				return nil, &types.ConstructionError{Type: t.String(),
					Msg: fmt.Sprintf("method %s parameter %d: %s", field.Name, p, err)}
			}
			m.params = append(m.params, mr)
		}
		numOut := ft.NumOut()
		if numOut > 0 && ft.Out(numOut-1) == errorType {
			m.hasError = true
			numOut--
		}
		for r := 0; r < numOut; r++ {
			if ft.Out(r) == errorType {
				return nil, &types.ConstructionError{Type: t.String(),
					Msg: fmt.Sprintf("method %s: error is only allowed as the last result", field.Name)}
			}
			mr, err := marshalerFor(ft.Out(r))
			if err != nil {
				return nil, &types.ConstructionError{Type: t.String(),
					Msg: fmt.Sprintf("method %s result %d: %s", field.Name, r, err)}
			}
			m.results = append(m.results, mr)
		}
		desc.methods = append(desc.methods, m)
	}

	desc.vtable = buildStubVTable(desc)
	return desc, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
