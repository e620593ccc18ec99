package abi

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/osmiumlabs/comabi/types"
)

// StrBuf is the owned, length-prefixed buffer string-like values cross the
// boundary in. The length is authoritative: embedded zero bytes are legal
// and no terminator is ever consulted. The header carries an explicit
// destructor so the allocating side's deallocator always runs, which is what
// keeps the two runtimes from freeing each other's memory.
type StrBuf struct {
	destroy func(*StrBuf)
	length  int
	data    []byte

	freed atomic.Bool
}

// Allocation counters for leak diagnostics and balance tests.
var (
	totalBufsCreated atomic.Uint64
	totalBufsFreed   atomic.Uint64
)

// AllocStrBuf allocates a buffer initialized with a copy of data. A nil
// slice maps to a nil buffer (the ABI's "none" value); an empty slice maps
// to a valid zero-length buffer. The two are distinguishable on the far
// side, matching the nil/empty distinction of Go byte slices.
func AllocStrBuf(data []byte) *StrBuf {
	if data == nil {
		return nil
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	totalBufsCreated.Add(1)
	return &StrBuf{
		destroy: destroyStrBuf,
		length:  len(owned),
		data:    owned,
	}
}

// AllocString allocates a buffer holding a copy of s.
func AllocString(s string) *StrBuf {
	totalBufsCreated.Add(1)
	return &StrBuf{
		destroy: destroyStrBuf,
		length:  len(s),
		data:    []byte(s),
	}
}

func destroyStrBuf(b *StrBuf) {
	b.data = nil
	totalBufsFreed.Add(1)
}

// Len returns the buffer's length in bytes, independent of any terminator.
func (b *StrBuf) Len() int {
	if b == nil {
		return 0
	}
	return b.length
}

// Bytes returns the buffer contents. The slice is only valid until Free;
// callers that keep the data must copy it (or use CopyAndFree).
func (b *StrBuf) Bytes() []byte {
	if b == nil {
		return nil
	}
	if b.freed.Load() {
		types.ReportViolation("read of freed string buffer")
		return nil
	}
	return b.data
}

// String returns a copy of the buffer contents as a string.
func (b *StrBuf) String() string {
	return string(b.Bytes())
}

// Free runs the buffer's destructor. Exactly one free per allocation; a
// second free is a protocol violation and is ignored defensively outside
// debug builds.
func (b *StrBuf) Free() {
	if b == nil {
		return
	}
	if b.freed.Swap(true) {
		types.ReportViolation("double free of string buffer", zap.Int("len", b.length))
		return
	}
	b.destroy(b)
}

// CopyAndFree consumes the buffer: it copies the contents out, frees the
// buffer and returns the copy. Returns nil if and only if b is nil.
func CopyAndFree(b *StrBuf) []byte {
	if b == nil {
		return nil
	}
	if b.freed.Load() {
		types.ReportViolation("consume of freed string buffer")
		return nil
	}
	out := make([]byte, b.length)
	copy(out, b.data)
	b.Free()
	return out
}

// AllocStats returns the number of buffers allocated and freed since process
// start. A steady-state difference is the number of live buffers; tests use
// the delta to prove retain/release style balance for call temporaries.
func AllocStats() (created, freed uint64) {
	return totalBufsCreated.Load(), totalBufsFreed.Load()
}
