package pidfile

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestStore_RoundTripWhileAliveThenExited(t *testing.T) {
	requireUnix(t)
	// #nosec G204
	cmd := exec.Command("/bin/sh", "-c", "sleep 5")
	require.NoError(t, cmd.Start())

	path := filepath.Join(t.TempDir(), "data", "svc.pid")
	s := Store{}
	s.Write(path, cmd.Process.Pid)

	alive, pid := s.ReadAndValidate(path)
	assert.True(t, alive)
	assert.Equal(t, cmd.Process.Pid, pid)

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	alive, pid = s.ReadAndValidate(path)
	assert.False(t, alive)
	assert.Zero(t, pid)
}

func TestStore_ReadAndValidate_MissingOrGarbage(t *testing.T) {
	dir := t.TempDir()
	s := Store{}

	alive, pid := s.ReadAndValidate(filepath.Join(dir, "missing.pid"))
	assert.False(t, alive)
	assert.Zero(t, pid)

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("abc"), 0o600))
	alive, pid = s.ReadAndValidate(bad)
	assert.False(t, alive)
	assert.Zero(t, pid)

	zero := filepath.Join(dir, "zero.pid")
	require.NoError(t, os.WriteFile(zero, []byte("0\n"), 0o600))
	_, err := Read(zero)
	assert.Error(t, err)
}

func TestWriteFile_ContentIsDecimalOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pid")
	require.NoError(t, WriteFile(path, 4242))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4242", string(b))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pid")
	require.NoError(t, WriteFile(path, 1))
	s := Store{}
	s.Remove(path)
	s.Remove(path)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStore_WriteFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	// parent is a regular file, so MkdirAll fails; Write must not panic.
	Store{}.Write(filepath.Join(blocker, "svc.pid"), 10)
}

func TestWriteFile_ReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.pid")
	require.NoError(t, WriteFile(path, 100))
	require.NoError(t, WriteFile(path, 200))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 200, pid)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "svc.pid", entries[0].Name())
}
