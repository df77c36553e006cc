package logs

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/lokcaldev/internal/service"
)

func newFiles(t *testing.T) Files {
	t.Helper()
	return Files{Dir: filepath.Join(t.TempDir(), "logs")}
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestValidatePath(t *testing.T) {
	f := newFiles(t)
	write(t, filepath.Join(f.Dir, "nginx-error.log"), "x\n")
	root, err := canonical(f.Dir)
	require.NoError(t, err)

	got, err := f.ValidatePath(filepath.Join(f.Dir, "nginx-error.log"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "nginx-error.log"), got)

	got, err = f.ValidatePath("mariadb.log")
	require.NoError(t, err, "relative names resolve inside the dir, existing or not")
	assert.Equal(t, filepath.Join(root, "mariadb.log"), got)

	outside := filepath.Join(filepath.Dir(f.Dir), "secret.log")
	write(t, outside, "nope")
	for _, p := range []string{"", outside, "../secret.log", f.Dir, filepath.Join(f.Dir, ".."), "/etc/passwd"} {
		_, err := f.ValidatePath(p)
		assert.ErrorIs(t, err, service.ErrInvalidArgument, p)
	}

	if runtime.GOOS != "windows" {
		link := filepath.Join(f.Dir, "escape.log")
		require.NoError(t, os.Symlink(outside, link))
		_, err := f.ValidatePath(link)
		assert.ErrorIs(t, err, service.ErrInvalidArgument, "symlink out of the dir")
	}
}

func TestListSortedLogsOnly(t *testing.T) {
	f := newFiles(t)
	write(t, filepath.Join(f.Dir, "php-fpm-8.3.log"), "abc")
	write(t, filepath.Join(f.Dir, "mariadb.log"), "a")
	write(t, filepath.Join(f.Dir, "notes.txt"), "skip")
	require.NoError(t, os.MkdirAll(filepath.Join(f.Dir, "dir.log"), 0o750))

	files, err := f.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "mariadb.log", files[0].Name)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, "php-fpm-8.3.log", files[1].Name)
	assert.Equal(t, int64(3), files[1].Size)
}

func TestListEmptyDir(t *testing.T) {
	files, err := newFiles(t).List()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotNil(t, files)
}

func TestReadLastLines(t *testing.T) {
	f := newFiles(t)
	var b strings.Builder
	for i := 1; i <= 700; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	write(t, filepath.Join(f.Dir, "big.log"), b.String())

	lines, err := f.Read("big.log", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 698", "line 699", "line 700"}, lines)

	lines, err = f.Read("big.log", 0)
	require.NoError(t, err)
	require.Len(t, lines, DefaultReadLines)
	assert.Equal(t, "line 201", lines[0])

	lines, err = f.Read("big.log", 10_000)
	require.NoError(t, err)
	assert.Len(t, lines, 700)

	_, err = f.Read("missing.log", 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestReadHugeLineCount(t *testing.T) {
	f := newFiles(t)
	path := filepath.Join(f.Dir, "a.log")
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	write(t, path, b.String())

	var got []string
	require.NotPanics(t, func() {
		var err error
		got, err = f.Read(path, math.MaxInt)
		require.NoError(t, err)
	})
	require.Len(t, got, 2000)
	assert.Equal(t, "line 0", got[0])
	assert.Equal(t, "line 1999", got[1999])
}

func TestClear(t *testing.T) {
	f := newFiles(t)
	path := filepath.Join(f.Dir, "nginx-access.log")
	write(t, path, "a\nb\n")

	require.NoError(t, f.Clear(path))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())

	assert.ErrorIs(t, f.Clear("../x.log"), service.ErrInvalidArgument)
}
