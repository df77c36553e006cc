//go:build windows

package driver

import (
	"errors"
	"os"
	"os/exec"
)

func configureSysProcAttr(*exec.Cmd) {}

// terminate has no graceful variant on Windows; the process is killed.
func terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func killGroup(pid int, cmd *exec.Cmd) error {
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		return nil
	}
	return terminate(pid)
}
