package abi

import "unsafe"

// Word is one ABI-level value: either an integer payload (numerics, bools,
// counts) or a pointer payload (owned buffers, interface pointers). The
// marshaller for a parameter decides which half the value rides in; the
// other half stays zero.
type Word struct {
	U uint64
	P unsafe.Pointer
}

// Call is the frame a single slot invocation operates on: one word per
// declared in-parameter and one word per declared result. The callee fills
// Rets only on StatusOK. Ownership of pointer-carrying words follows the
// marshalling convention: argument temporaries belong to the caller and are
// freed by it after the call; result payloads transfer to the caller.
type Call struct {
	Args []Word
	Rets []Word

	// Err carries optional failure detail written by the callee alongside a
	// non-OK status. The side that reads it frees it.
	Err *StrBuf
}

// SetError attaches failure detail text to the frame. Any previous detail
// buffer is replaced and freed.
func (c *Call) SetError(detail string) {
	if c.Err != nil {
		c.Err.Free()
	}
	c.Err = AllocString(detail)
}

// TakeError consumes and returns the failure detail, or "" if none was set.
func (c *Call) TakeError() string {
	if c.Err == nil {
		return ""
	}
	detail := string(CopyAndFree(c.Err))
	c.Err = nil
	return detail
}
