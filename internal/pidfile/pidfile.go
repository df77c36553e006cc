// Package pidfile persists the OS pid of a started service so liveness can be
// re-established after the supervisor itself restarts.
package pidfile

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/renameio/v2/maybe"

	"github.com/loykin/lokcaldev/internal/detector"
)

const fileMode = 0o644

// Store reads and writes PID files. The zero value logs to slog.Default.
type Store struct {
	Log *slog.Logger
}

func (s Store) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// Write records pid at path. Failures are logged and not returned: a missing
// PID file only degrades liveness detection after a supervisor restart.
func (s Store) Write(path string, pid int) {
	if path == "" || pid <= 0 {
		return
	}
	if err := WriteFile(path, pid); err != nil {
		s.logger().Warn("pid file write failed", "path", path, "pid", pid, "error", err)
	}
}

// ReadAndValidate parses path and probes the pid. A missing or unparsable
// file, or a dead process, yields (false, 0).
func (s Store) ReadAndValidate(path string) (bool, int) {
	pid, alive, err := detector.PIDFileDetector{PIDFile: path}.Lookup()
	if err != nil {
		s.logger().Debug("pid file unreadable", "path", path, "error", err)
		return false, 0
	}
	if !alive {
		return false, 0
	}
	return true, pid
}

// Remove deletes path, ignoring a missing file.
func (s Store) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger().Warn("pid file remove failed", "path", path, "error", err)
	}
}

// WriteFile atomically writes the decimal pid to path, creating parent dirs.
func WriteFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return maybe.WriteFile(path, []byte(strconv.Itoa(pid)), fileMode)
}

// Read parses the first line of path as a pid.
func Read(path string) (int, error) {
	return detector.ReadPIDFile(path)
}
