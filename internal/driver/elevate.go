package driver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Elevator runs a command with administrator privileges.
type Elevator interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ElevatorFunc adapts a function to Elevator.
type ElevatorFunc func(ctx context.Context, name string, args ...string) error

func (f ElevatorFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}

// OSAScript elevates through the macOS administrator prompt.
type OSAScript struct{}

func (OSAScript) Run(ctx context.Context, name string, args ...string) error {
	line := shellQuote(name)
	for _, a := range args {
		line += " " + shellQuote(a)
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(line)
	script := fmt.Sprintf("do shell script \"%s\" with administrator privileges", escaped)
	// #nosec G204
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	cmd.Dir = os.TempDir()
	return runCaptured(cmd)
}

// Pkexec elevates through polkit.
type Pkexec struct{}

func (Pkexec) Run(ctx context.Context, name string, args ...string) error {
	// #nosec G204
	cmd := exec.CommandContext(ctx, "pkexec", append([]string{name}, args...)...)
	return runCaptured(cmd)
}

// DefaultElevator picks the helper for the running OS, nil when none exists.
func DefaultElevator() Elevator {
	switch runtime.GOOS {
	case "darwin":
		return OSAScript{}
	case "linux":
		return Pkexec{}
	default:
		return nil
	}
}

func runCaptured(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
