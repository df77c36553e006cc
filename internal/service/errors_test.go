package service

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpError_IsAndAs(t *testing.T) {
	err := Wrap(OpStart, "nginx", ErrConfigWriteFailed, fs.ErrPermission)

	assert.ErrorIs(t, err, ErrConfigWriteFailed)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.NotErrorIs(t, err, ErrNotInstalled)

	var oe *OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, OpStart, oe.Op)
	assert.Equal(t, "nginx", oe.ID)
	assert.Equal(t, "start nginx: config write failed: permission denied", err.Error())
}

func TestOpError_NoCause(t *testing.T) {
	err := Wrap(OpGet, "", ErrNotFound, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "get: not found", err.Error())
}

func TestWithOp_FillsMissingOp(t *testing.T) {
	bare := Wrap("", "", ErrLockPoisoned, nil)
	assert.Equal(t, "service registry lock poisoned", bare.Error())

	err := WithOp(bare, OpStart, "nginx")
	assert.Equal(t, "start nginx: service registry lock poisoned", err.Error())
	assert.ErrorIs(t, err, ErrLockPoisoned)

	done := Wrap(OpStop, "mariadb", ErrNotFound, nil)
	assert.Same(t, done, WithOp(done, OpStart, "nginx"), "an existing op is kept")

	plain := errors.New("plain")
	assert.Same(t, plain, WithOp(plain, OpStart, "nginx"))
	assert.NoError(t, WithOp(nil, OpStart, "nginx"))
}

func TestInfoClone_DoesNotShareFields(t *testing.T) {
	in := New("mariadb", "MariaDB", IntPtr(3306))
	in.PID = IntPtr(42)
	in.Version = StringPtr("11.4.2")

	out := in.Clone()
	*out.PID = 7
	*out.Port = 1
	*out.Version = "x"

	assert.Equal(t, 42, *in.PID)
	assert.Equal(t, 3306, *in.Port)
	assert.Equal(t, "11.4.2", *in.Version)
	assert.Equal(t, StatusStopped, in.Status)
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "a", *StringPtr("a"))
}
