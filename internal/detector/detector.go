// Package detector answers whether an OS process id still refers to a live
// process. It never surfaces errors: any failure to query the OS reads as
// "not alive".
package detector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StartedAt returns the start time of pid, or the zero time when unknown.
func StartedAt(pid int) time.Time {
	sec := procStartUnix(pid)
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// Detector is a liveness strategy for one service. Implementations must be
// safe for concurrent use.
type Detector interface {
	Alive() (bool, error)
	Describe() string
}

// PIDFileDetector reads the pid recorded in a PID file and probes it.
type PIDFileDetector struct {
	PIDFile string
}

// Lookup returns the recorded pid and whether it is alive. A missing file is
// (0, false, nil); the pid is returned even when the process is gone.
func (d PIDFileDetector) Lookup() (int, bool, error) {
	pid, err := ReadPIDFile(d.PIDFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("invalid pid in %s: %w", d.PIDFile, err)
	}
	return pid, PIDAlive(pid), nil
}

func (d PIDFileDetector) Alive() (bool, error) {
	_, alive, err := d.Lookup()
	return alive, err
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }

// ReadPIDFile parses the first line of path as a positive pid.
func ReadPIDFile(path string) (int, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}
	line, _, _ := strings.Cut(string(b), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, err
	}
	if pid <= 0 {
		return 0, strconv.ErrRange
	}
	return pid, nil
}

// PIDDetector probes a known pid.
type PIDDetector struct{ PID int }

func (d PIDDetector) Alive() (bool, error) { return PIDAlive(d.PID), nil }

func (d PIDDetector) Describe() string { return "pid:" + strconv.Itoa(d.PID) }
