package driver

import (
	"io"
	"os/exec"
	"sync"
)

// Child is an OS process started by this supervisor run. A reaper goroutine
// waits on it, so an exited child never lingers as a zombie that would still
// answer the signal-0 probe.
type Child struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	mu  sync.Mutex
	err error
}

// spawn starts cmd in its own process group with stdout/stderr sent to out.
func spawn(cmd *exec.Cmd, out io.WriteCloser) (*Child, error) {
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = out
	}
	configureSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		if out != nil {
			_ = out.Close()
		}
		return nil, err
	}
	c := &Child{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if out != nil {
			_ = out.Close()
		}
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	}()
	return c, nil
}

func (c *Child) PID() int { return c.pid }

// Done is closed once the process has exited and been reaped.
func (c *Child) Done() <-chan struct{} { return c.done }

// Exited reports whether the process has been reaped.
func (c *Child) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the exit error once Done is closed.
func (c *Child) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Kill force-terminates the child and its process group.
func (c *Child) Kill() error {
	if c.Exited() {
		return nil
	}
	return killGroup(c.pid, c.cmd)
}

// Wait blocks until the child has been reaped.
func (c *Child) Wait() error {
	<-c.done
	return c.Err()
}
