package types

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// InterfaceIDLen is the length of an interface identifier in bytes.
const InterfaceIDLen = 16

// InterfaceID is the 128-bit identifier naming an interface's ABI shape and
// version. Two interfaces carrying the same identifier are assumed to be
// ABI-compatible; this layer trusts that assumption and never verifies it.
type InterfaceID [InterfaceIDLen]byte

// IDUnknown identifies the base contract (queryInterface/retain/release)
// every interface inherits. Every object answers a query for it with itself.
var IDUnknown = ForceNewID("00000000-0000-0000-c000-000000000046")

func (id InterfaceID) String() string {
	return uuid.UUID(id).String()
}

// Bytes returns the identifier as a byte slice.
func (id InterfaceID) Bytes() []byte {
	return id[:]
}

// Equal reports whether two identifiers name the same interface shape.
func (id InterfaceID) Equal(other InterfaceID) bool {
	return bytes.Equal(id[:], other[:])
}

// MarshalJSON implements the json.Marshaler interface for InterfaceID.
// It converts the identifier to its canonical RFC 4122 string form.
func (id InterfaceID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for InterfaceID.
// It parses a canonical RFC 4122 string into an identifier.
func (id *InterfaceID) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	copy(id[:], parsed[:])
	return nil
}

// NewID creates an InterfaceID from a byte slice.
// Returns an error if the slice length is not InterfaceIDLen.
func NewID(b []byte) (InterfaceID, error) {
	if len(b) != InterfaceIDLen {
		return InterfaceID{}, errors.New("got wrong number of bytes for interface ID")
	}
	var id InterfaceID
	copy(id[:], b)
	return id, nil
}

// ForceNewID creates an InterfaceID from its canonical string form.
// It panics in case the input is invalid. Meant for package-level interface
// declarations where the identifier is a compile-time constant.
func ForceNewID(input string) InterfaceID {
	parsed, err := uuid.Parse(input)
	if err != nil {
		panic("could not parse interface ID: " + err.Error())
	}
	return InterfaceID(parsed)
}
