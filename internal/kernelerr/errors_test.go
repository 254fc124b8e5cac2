package kernelerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCodeNotInstance(t *testing.T) {
	err := NewForTask("send", 7, CodeMailboxFull, "mailbox full")
	assert.True(t, Is(err, CodeMailboxFull))
	assert.False(t, Is(err, CodeUnknownDestination))
	assert.True(t, errors.Is(err, ErrMailboxFull))
}

func TestWrapPreservesInnerError(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap("allocate", CodeExhausted, inner)
	require.ErrorIs(t, wrapped, inner)
	assert.Equal(t, inner, errors.Unwrap(wrapped))
}

func TestErrnoMapsEveryCodeToANegativeValue(t *testing.T) {
	cases := []struct {
		code Code
		want int64
	}{
		{CodeInvalidLength, -1},
		{CodeUnknownDestination, -2},
		{CodeMailboxFull, -3},
		{CodeNoCurrentTask, -4},
		{CodeNoSlot, -5},
		{CodeExhausted, -6},
		{CodeUnmapped, -7},
	}
	for _, c := range cases {
		err := New("op", c.code, "msg")
		assert.Equal(t, c.want, Errno(err))
	}
}

func TestErrnoOnUnrecognizedErrorIsMinusOne(t *testing.T) {
	assert.Equal(t, int64(-1), Errno(errors.New("not a kernel error")))
}

func TestErrorStringIncludesPIDWhenPresent(t *testing.T) {
	err := NewForTask("recv", 3, CodeNoCurrentTask, "no current task")
	assert.Contains(t, err.Error(), "pid=3")

	errNoPID := New("recv", CodeNoCurrentTask, "no current task")
	assert.NotContains(t, errNoPID.Error(), "pid=")
}
