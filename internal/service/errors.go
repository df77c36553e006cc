package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInstalled means the service binary is absent, so the operation is impossible.
	ErrNotInstalled = errors.New("service not installed")
	// ErrNotFound is returned for unknown service ids and missing resources.
	ErrNotFound = errors.New("not found")
	// ErrProcessSpawnFailed wraps OS-level failures to start a process.
	ErrProcessSpawnFailed = errors.New("process spawn failed")
	// ErrProcessSignalFailed wraps failures to deliver a signal.
	ErrProcessSignalFailed = errors.New("process signal failed")
	// ErrConfigWriteFailed wraps I/O failures while writing runtime configuration.
	ErrConfigWriteFailed = errors.New("config write failed")
	// ErrPrivilegeElevationFailed means the elevation prompt was cancelled or failed.
	ErrPrivilegeElevationFailed = errors.New("privilege elevation failed")
	// ErrConfigInvalid means a service rejected its own configuration.
	ErrConfigInvalid = errors.New("config invalid")
	// ErrInvalidArgument marks caller input that cannot be acted on.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrLockPoisoned means a registry critical section panicked earlier.
	ErrLockPoisoned = errors.New("service registry lock poisoned")
)

// Op names the operation that failed.
type Op string

const (
	OpStart      Op = "start"
	OpStop       Op = "stop"
	OpRestart    Op = "restart"
	OpReload     Op = "reload"
	OpInitialize Op = "initialize"
	OpConfig     Op = "config"
	OpGet        Op = "get"
	OpTail       Op = "tail"
)

// OpError records the operation and service id that failed.
// Kind is one of the sentinel errors above and Err is the underlying cause.
type OpError struct {
	Op   Op
	ID   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	switch {
	case e.Op == "" && e.ID == "":
		return msg
	case e.Op == "":
		return fmt.Sprintf("%s: %s", e.ID, msg)
	case e.ID == "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.ID, msg)
}

// Unwrap exposes both the sentinel kind and the cause to errors.Is / errors.As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds an OpError whose cause is formatted from format and args.
func Errorf(op Op, id string, kind error, format string, args ...any) error {
	return &OpError{Op: op, ID: id, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap builds an OpError around err. A nil err yields a bare kind error.
func Wrap(op Op, id string, kind error, err error) error {
	return &OpError{Op: op, ID: id, Kind: kind, Err: err}
}

// WithOp fills in op and, if missing, id on an OpError raised below the
// operation layer. Any other error is returned unchanged.
func WithOp(err error, op Op, id string) error {
	oe, ok := err.(*OpError)
	if !ok || oe.Op != "" {
		return err
	}
	cp := *oe
	cp.Op = op
	if cp.ID == "" {
		cp.ID = id
	}
	return &cp
}

// KindOf returns the sentinel kind carried by err, or nil when err is not an
// OpError.
func KindOf(err error) error {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return nil
}
