//go:build !windows

package detector

import (
	"errors"
	"syscall"
)

// PIDAlive reports whether a process with the given pid exists.
// EPERM means the process exists but belongs to another user (for example a
// web server master started as root), so it counts as alive.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
