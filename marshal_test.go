package comabi

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmiumlabs/comabi/abi"
)

func roundTripWord(t *testing.T, value any) any {
	t.Helper()
	m, err := marshalerFor(reflect.TypeOf(value))
	require.NoError(t, err)

	var w abi.Word
	require.NoError(t, m.toNative(reflect.ValueOf(value), &w))
	out, err := m.toManaged(w, true)
	require.NoError(t, err)
	m.freeNative(&w)
	return out.Interface()
}

func TestWordMarshalerRoundTrip(t *testing.T) {
	assert.Equal(t, int32(-17), roundTripWord(t, int32(-17)))
	assert.Equal(t, int64(-1), roundTripWord(t, int64(-1)))
	assert.Equal(t, uint8(255), roundTripWord(t, uint8(255)))
	assert.Equal(t, uint64(1<<63), roundTripWord(t, uint64(1<<63)))
	assert.Equal(t, true, roundTripWord(t, true))
	assert.Equal(t, false, roundTripWord(t, false))
	assert.Equal(t, float32(3.5), roundTripWord(t, float32(3.5)))
	assert.Equal(t, 2.25, roundTripWord(t, 2.25))
}

func TestStringMarshalerRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"hoge",
		"embedded\x00zero\x00bytes",
		"multi-byte éあ\U0001F600 runes",
	}
	for _, s := range inputs {
		m, err := marshalerFor(reflect.TypeOf(s))
		require.NoError(t, err)

		var w abi.Word
		require.NoError(t, m.toNative(reflect.ValueOf(s), &w))

		// The native-side length accessor reports byte length, independent
		// of terminators or code-point boundaries.
		buf := (*abi.StrBuf)(w.P)
		assert.Equal(t, len(s), buf.Len())

		out, err := m.toManaged(w, false)
		require.NoError(t, err)
		assert.Equal(t, s, out.Interface())

		m.freeNative(&w)
	}
}

func TestBytesMarshalerNilEmptyDistinction(t *testing.T) {
	m, err := marshalerFor(reflect.TypeOf([]byte(nil)))
	require.NoError(t, err)

	var w abi.Word
	require.NoError(t, m.toNative(reflect.ValueOf([]byte(nil)), &w))
	assert.Nil(t, w.P)
	out, err := m.toManaged(w, true)
	require.NoError(t, err)
	assert.Nil(t, out.Interface())

	w = abi.Word{}
	require.NoError(t, m.toNative(reflect.ValueOf([]byte{}), &w))
	require.NotNil(t, w.P)
	out, err = m.toManaged(w, true)
	require.NoError(t, err)
	require.NotNil(t, out.Interface())
	assert.Empty(t, out.Interface())

	// The distinction must hold on the borrowing side too.
	w = abi.Word{}
	require.NoError(t, m.toNative(reflect.ValueOf([]byte{}), &w))
	out, err = m.toManaged(w, false)
	require.NoError(t, err)
	require.NotNil(t, out.Interface())
	assert.Empty(t, out.Interface())
	m.freeNative(&w)
}

func TestBytesMarshalerBorrowCopies(t *testing.T) {
	m, err := marshalerFor(reflect.TypeOf([]byte(nil)))
	require.NoError(t, err)

	var w abi.Word
	require.NoError(t, m.toNative(reflect.ValueOf([]byte{1, 2, 3}), &w))
	out, err := m.toManaged(w, false)
	require.NoError(t, err)

	// A borrowing conversion must survive the caller freeing its temporary.
	m.freeNative(&w)
	assert.Equal(t, []byte{1, 2, 3}, out.Interface())
}

func TestMarshalerForRejectsUnsupportedTypes(t *testing.T) {
	_, err := marshalerFor(reflect.TypeOf(make(chan int)))
	assert.Error(t, err)
	_, err = marshalerFor(reflect.TypeOf(map[string]int{}))
	assert.Error(t, err)
	_, err = marshalerFor(reflect.TypeOf(struct{}{}))
	assert.Error(t, err)
	_, err = marshalerFor(reflect.TypeOf(&struct{}{}))
	assert.Error(t, err)
	_, err = marshalerFor(reflect.TypeOf([]int{}))
	assert.Error(t, err)
}

func TestInterfaceMarshalerNil(t *testing.T) {
	m, err := marshalerFor(reflect.TypeOf((*metaIface)(nil)))
	require.NoError(t, err)

	var w abi.Word
	require.NoError(t, m.toNative(reflect.ValueOf((*metaIface)(nil)), &w))
	assert.Nil(t, w.P)

	out, err := m.toManaged(w, true)
	require.NoError(t, err)
	assert.True(t, out.IsNil())
}
