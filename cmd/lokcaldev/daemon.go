package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"github.com/loykin/lokcaldev/internal/pidfile"
)

// daemonArgs drops the flags that only the launching parent understands.
func daemonArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		if arg == "--daemonize" || arg == "-d" {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// daemonize re-executes serve in the background, detached from the
// terminal, and exits the parent. The child writes the pid file itself.
func daemonize(pidFile, logFile string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	// #nosec G204
	cmd := exec.Command(executable, daemonArgs(os.Args[1:])...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec G304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}
	if pidFile == "" {
		fmt.Printf("Daemon started with PID %d\n", cmd.Process.Pid)
	} else {
		fmt.Printf("Daemon started with PID %d (pid file %s)\n", cmd.Process.Pid, pidFile)
	}
	_ = cmd.Process.Release()
	os.Exit(0)
	return nil
}

func writePidFile(path string, pid int) error { return pidfile.WriteFile(path, pid) }

func removePidFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
