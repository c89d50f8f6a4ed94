package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiError(t *testing.T) {
	m := &MultiError{}
	assert.NoError(t, m.ErrorOrNil())

	m.Append(nil)
	assert.NoError(t, m.ErrorOrNil())

	m.Append(io.EOF)
	assert.Same(t, io.EOF, m.ErrorOrNil())

	m.Append(io.ErrUnexpectedEOF)
	err := m.ErrorOrNil()
	require.Error(t, err)
	assert.Equal(t, "2 errors: EOF; unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRecover(t *testing.T) {
	err := Recover(func() error { panic("boom") })
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "boom", panicErr.Value)
	assert.Contains(t, panicErr.StackTrace, "TestRecover")

	assert.NoError(t, Recover(func() error { return nil }))
	assert.Same(t, io.EOF, Recover(func() error { return io.EOF }))
}

func TestTransient(t *testing.T) {
	transient := NewTransientError("TUI shutdown", errors.New("timed out"))
	assert.Equal(t, "TUI shutdown: timed out", transient.Error())
	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(io.EOF))
	assert.False(t, IsTransient(nil))

	m := &MultiError{}
	m.Append(transient)
	m.Append(NewTransientError("journal", io.EOF))
	assert.True(t, IsTransient(m))

	m.Append(io.EOF)
	assert.False(t, IsTransient(m))
}
