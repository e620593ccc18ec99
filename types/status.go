package types

// Status is the result code every call-table slot returns across the
// boundary. It is the native side's failure convention; the managed side's
// convention is the error taxonomy in errors.go. The two are translated into
// each other at every crossing without losing the distinguishing code.
type Status int32

const (
	// StatusOK signals a successful call. Result words are valid.
	StatusOK Status = 0
	// StatusNoInterface signals that a requested interface identifier is not
	// supported. Callers rely on probing for exactly this code, so it must
	// never be collapsed into StatusFail.
	StatusNoInterface Status = 1
	// StatusMarshal signals that a value could not be converted at the
	// boundary (e.g. a malformed string buffer).
	StatusMarshal Status = 2
	// StatusInvalidArgument signals a null or otherwise unusable argument.
	StatusInvalidArgument Status = 3
	// StatusPanic signals that the managed callee panicked inside a stub
	// thunk. The panic never unwinds across the call table.
	StatusPanic Status = 4
	// StatusConstruction signals that interface metadata or forwarding code
	// could not be built for the requested type.
	StatusConstruction Status = 5
	// StatusFail is the generic failure code for errors that carry no
	// dedicated status.
	StatusFail Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoInterface:
		return "no interface"
	case StatusMarshal:
		return "marshal failure"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusPanic:
		return "panic in callee"
	case StatusConstruction:
		return "construction failure"
	case StatusFail:
		return "failure"
	default:
		return "unknown status"
	}
}

// Ok reports whether the status signals success.
func (s Status) Ok() bool {
	return s == StatusOK
}
