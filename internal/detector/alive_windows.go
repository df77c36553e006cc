//go:build windows

package detector

import gopsproc "github.com/shirou/gopsutil/v4/process"

// PIDAlive reports whether a process with the given pid is present in the
// system process list.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return ok
}
