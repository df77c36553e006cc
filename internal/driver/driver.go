// Package driver knows how to query, start and stop each kind of supervised
// service. Drivers never touch the shared registry: Start hands the spawned
// child and its pid back to the caller.
package driver

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/lokcaldev/internal/config"
	"github.com/loykin/lokcaldev/internal/detector"
	"github.com/loykin/lokcaldev/internal/env"
	"github.com/loykin/lokcaldev/internal/logger"
	"github.com/loykin/lokcaldev/internal/pidfile"
	"github.com/loykin/lokcaldev/internal/service"
)

// Kind enumerates the closed set of service variants.
type Kind int

const (
	KindNginx Kind = iota
	KindMariaDB
	KindPHPFPM
	KindPhpMyAdmin
)

func (k Kind) String() string {
	switch k {
	case KindNginx:
		return "nginx"
	case KindMariaDB:
		return "mariadb"
	case KindPHPFPM:
		return "php-fpm"
	case KindPhpMyAdmin:
		return "phpmyadmin"
	default:
		return "unknown"
	}
}

// Driver is implemented by every service variant.
type Driver interface {
	ID() string
	Name() string
	Kind() Kind
	// Port is the default port shown for the service, nil when it has none.
	Port() *int
	// RequiresElevation reports whether start/stop go through the OS
	// privilege-elevation helper.
	RequiresElevation() bool
	// Info observes the service from disk and the OS. It never fails; an
	// unreadable state reads as stopped.
	Info(ctx context.Context) service.Info
	// Start spawns the service, or returns the pid of an already running
	// instance. child is nil when supervision is indirect.
	Start(ctx context.Context) (child *Child, pid int, err error)
	// Stop is idempotent: a missing PID file is not an error.
	Stop(ctx context.Context) error
}

// Options carries what every driver needs.
type Options struct {
	Config   *config.Config
	PIDs     pidfile.Store
	Log      *slog.Logger
	Env      *env.Env
	Output   logger.Config // rotation for captured stdout/stderr of children
	Elevator Elevator
}

func (o Options) paths() config.Paths { return o.Config.Paths() }

func (o Options) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

func (o Options) environ() []string {
	if o.Env == nil {
		return os.Environ()
	}
	return o.Env.Merge()
}

// waitDelay sleeps for d unless ctx is cancelled first.
func waitDelay(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// stopByPIDFile sends a graceful termination signal to the pid recorded at
// path and removes the file. A missing file means nothing to stop.
func stopByPIDFile(o Options, id, path string) error {
	pid, err := pidfile.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		o.logger().Warn("discarding unreadable pid file", "id", id, "path", path, "error", err)
		o.PIDs.Remove(path)
		return nil
	}
	if err := terminate(pid); err != nil {
		return service.Wrap(service.OpStop, id, service.ErrProcessSignalFailed, err)
	}
	o.PIDs.Remove(path)
	o.logger().Info("stopped service", "id", id, "pid", pid)
	return nil
}

func observed(d Driver, installed, initialized bool, version string, alive bool, pid int) service.Info {
	info := service.New(d.ID(), d.Name(), d.Port())
	info.Installed = installed
	info.Initialized = initialized
	info.Version = service.StringPtr(version)
	if alive && pid > 0 {
		info.Status = service.StatusRunning
		info.PID = service.IntPtr(pid)
		if t := detector.StartedAt(pid); !t.IsZero() {
			info.StartedAt = &t
		}
	}
	return info
}
