package types

import (
	"errors"
	"fmt"
)

// NoInterfaceError is returned when an object does not support a requested
// interface identifier. It is the only condition every layer must propagate
// distinguishably: QueryInterfaceOrNil catches exactly this and nothing else,
// because callers use it for capability probing rather than error reporting.
type NoInterfaceError struct {
	Requested InterfaceID
}

var _ error = (*NoInterfaceError)(nil)

func (e *NoInterfaceError) Error() string {
	return fmt.Sprintf("interface %s is not supported by this object", e.Requested)
}

// MarshalError is returned when a value could not be converted between its
// managed and native representations. Surfaced to the caller, never retried.
type MarshalError struct {
	Msg string
}

var _ error = (*MarshalError)(nil)

func (e *MarshalError) Error() string {
	return "marshal failure: " + e.Msg
}

// ConstructionError is returned when interface metadata or forwarding code
// could not be built for a type. It is fatal to that interface type's
// usability but must not poison the cache for other types.
type ConstructionError struct {
	Type string
	Msg  string
}

var _ error = (*ConstructionError)(nil)

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("cannot build interface metadata for %s: %s", e.Type, e.Msg)
}

// ProtocolViolationError reports a broken reference-counting or call
// protocol: a count driven negative, a release without a matching retain, a
// call through an already released proxy. Treated as a programming error:
// panics when Config.Debug is set, is logged and defused otherwise.
type ProtocolViolationError struct {
	Msg string
}

var _ error = (*ProtocolViolationError)(nil)

func (e *ProtocolViolationError) Error() string {
	return "protocol violation: " + e.Msg
}

// CalleeError carries a failure that crossed the boundary without a
// dedicated type: the remote status plus whatever detail text the callee
// attached to the call frame.
type CalleeError struct {
	Status Status
	Detail string
}

var _ error = (*CalleeError)(nil)

func (e *CalleeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call failed: %s", e.Status)
	}
	return fmt.Sprintf("call failed: %s: %s", e.Status, e.Detail)
}

// StatusFromError translates a managed error into the native failure
// convention: a status code plus detail text for the call frame. The mapping
// keeps NoInterface lossless in both directions.
func StatusFromError(err error) (Status, string) {
	if err == nil {
		return StatusOK, ""
	}
	var noIface *NoInterfaceError
	if errors.As(err, &noIface) {
		return StatusNoInterface, noIface.Requested.String()
	}
	var marshal *MarshalError
	if errors.As(err, &marshal) {
		return StatusMarshal, marshal.Msg
	}
	var construction *ConstructionError
	if errors.As(err, &construction) {
		return StatusConstruction, construction.Error()
	}
	var violation *ProtocolViolationError
	if errors.As(err, &violation) {
		return StatusFail, violation.Error()
	}
	var callee *CalleeError
	if errors.As(err, &callee) {
		return callee.Status, callee.Detail
	}
	return StatusFail, err.Error()
}

// ErrorFromStatus rehydrates a non-OK status received from the native side
// into the managed error taxonomy. Returns nil for StatusOK.
func ErrorFromStatus(s Status, detail string) error {
	switch s {
	case StatusOK:
		return nil
	case StatusNoInterface:
		var requested InterfaceID
		if parsed, err := parseIDDetail(detail); err == nil {
			requested = parsed
		}
		return &NoInterfaceError{Requested: requested}
	case StatusMarshal:
		return &MarshalError{Msg: detail}
	case StatusConstruction:
		return &ConstructionError{Msg: detail}
	default:
		return &CalleeError{Status: s, Detail: detail}
	}
}

func parseIDDetail(detail string) (InterfaceID, error) {
	if detail == "" {
		return InterfaceID{}, errors.New("empty detail")
	}
	var id InterfaceID
	if err := id.UnmarshalJSON([]byte(`"` + detail + `"`)); err != nil {
		return InterfaceID{}, err
	}
	return id, nil
}
