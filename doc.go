// Package comabi is an interface-based ABI bridge between managed Go code
// and native call-table code. Both sides expose objects purely through
// interfaces: polymorphic call tables named by a 128-bit identifier, each
// inheriting the base contract of reference counting and dynamic interface
// discovery.
//
// An interface shape is declared once as a struct type (an embedded Handle
// followed by func-typed method fields) and registered with its identifier:
//
//	type Greeter struct {
//		comabi.Handle
//		SetName func(name string) error
//		Name    func() (string, error)
//	}
//
//	func init() {
//		comabi.RegisterInterface[Greeter](types.ForceNewID("..."))
//	}
//
// The package reflects the shape once on first use, generates forwarding
// code for it, and caches both for the process. Crossings then go through
// the four router entry points: RCWForPointer, CCWForObject, QueryInterface
// and QueryInterfaceOrNil.
package comabi
