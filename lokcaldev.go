// Package lokcaldev supervises a local PHP development stack: Nginx,
// MariaDB, one PHP-FPM pool per PHP version, and phpMyAdmin.
package lokcaldev

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/lokcaldev/internal/auth"
	"github.com/loykin/lokcaldev/internal/config"
	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/env"
	"github.com/loykin/lokcaldev/internal/history"
	"github.com/loykin/lokcaldev/internal/history/factory"
	"github.com/loykin/lokcaldev/internal/logger"
	"github.com/loykin/lokcaldev/internal/logs"
	"github.com/loykin/lokcaldev/internal/manager"
	"github.com/loykin/lokcaldev/internal/metrics"
	"github.com/loykin/lokcaldev/internal/pidfile"
	iapi "github.com/loykin/lokcaldev/internal/server"
	"github.com/loykin/lokcaldev/internal/service"
	"github.com/loykin/lokcaldev/internal/site"
)

// Re-export core types for external consumers.

type Config = config.Config

type Info = service.Info

type Status = service.Status

type LogFile = logs.File

type LogLine = logs.LogLine

type PHPVersionInfo = driver.PHPVersionInfo

type HistoryEvent = history.Event

// Token is a bearer token issued by POST /auth/login.
type Token = auth.Token

type LoginRequest = auth.LoginRequest

type Usage = metrics.Usage

type Server = iapi.Server

type Site = site.Site

// SiteLister supplies the sites whose PHP versions must be running.
type SiteLister = site.Lister

// Elevator runs a command with administrator privileges.
type Elevator = driver.Elevator

const (
	StatusRunning  = service.StatusRunning
	StatusStopped  = service.StatusStopped
	StatusError    = service.StatusError
	StatusStarting = service.StatusStarting
	StatusStopping = service.StatusStopping
)

var (
	ErrNotInstalled             = service.ErrNotInstalled
	ErrNotFound                 = service.ErrNotFound
	ErrProcessSpawnFailed       = service.ErrProcessSpawnFailed
	ErrProcessSignalFailed      = service.ErrProcessSignalFailed
	ErrConfigWriteFailed        = service.ErrConfigWriteFailed
	ErrPrivilegeElevationFailed = service.ErrPrivilegeElevationFailed
	ErrConfigInvalid            = service.ErrConfigInvalid
	ErrInvalidArgument          = service.ErrInvalidArgument
	ErrLockPoisoned             = service.ErrLockPoisoned
)

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func DefaultConfig() *Config { return config.Default() }

// HashPassword returns the bcrypt hash for [server.auth] password_hash.
func HashPassword(password string) (string, error) { return auth.HashPassword(password) }

// Options tunes New. Every field is optional.
type Options struct {
	Log *slog.Logger
	// Registerer receives the supervisor metrics; nil skips registration.
	Registerer prometheus.Registerer
	// Elevator overrides the platform privilege-elevation helper.
	Elevator Elevator
	// Sites overrides the site registry under <data_dir>/sites.
	Sites SiteLister
}

// Manager is a thin facade over internal/manager.Manager.
type Manager struct {
	inner *manager.Manager
	cfg   *Config
}

// New prepares the data directory and wires drivers, history sinks and
// metrics for cfg. No service is started.
func New(cfg *Config, opts Options) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	paths := cfg.Paths()
	for _, d := range paths.Dirs() {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	global, err := cfg.GlobalEnv()
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	hist, err := newHistory(cfg, log)
	if err != nil {
		return nil, err
	}
	if opts.Registerer != nil {
		if err := metrics.Register(opts.Registerer); err != nil {
			_ = hist.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	elevator := opts.Elevator
	if elevator == nil {
		elevator = driver.DefaultElevator()
	}
	cat := driver.NewCatalog(driver.Options{
		Config:   cfg,
		PIDs:     pidfile.Store{Log: log},
		Log:      log,
		Env:      env.New(global),
		Output:   outputConfig(cfg),
		Elevator: elevator,
	})
	sites := opts.Sites
	if sites == nil {
		sites = site.NewRegistry(paths.Sites, log)
	}
	inner := manager.New(manager.Options{
		Config:  cfg,
		Catalog: cat,
		Sites:   sites,
		History: hist,
		Log:     log,
	})
	return &Manager{inner: inner, cfg: cfg}, nil
}

// newHistory opens the default SQLite history plus every configured sink.
func newHistory(cfg *Config, log *slog.Logger) (*history.Recorder, error) {
	if !cfg.History.Enabled {
		return history.NewRecorder(log), nil
	}
	dsns := append([]string{cfg.Paths().HistoryDB()}, cfg.History.Sinks...)
	sinks := make([]history.Sink, 0, len(dsns))
	for _, dsn := range dsns {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			_ = history.NewRecorder(log, sinks...).Close()
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, s)
	}
	return history.NewRecorder(log, sinks...), nil
}

func outputConfig(cfg *Config) logger.Config {
	return logger.Config{
		Dir:        cfg.Paths().Logs,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}

func (m *Manager) Config() *Config { return m.cfg }

func (m *Manager) Start(ctx context.Context, id string) error   { return m.inner.Start(ctx, id) }
func (m *Manager) Stop(ctx context.Context, id string) error    { return m.inner.Stop(ctx, id) }
func (m *Manager) Restart(ctx context.Context, id string) error { return m.inner.Restart(ctx, id) }
func (m *Manager) Get(id string) (Info, error)                  { return m.inner.Get(id) }
func (m *Manager) ListAll(ctx context.Context) ([]Info, error)  { return m.inner.ListAll(ctx) }
func (m *Manager) Usage(id string) (Usage, error)               { return m.inner.Usage(id) }
func (m *Manager) AutoStart(ctx context.Context)                { m.inner.AutoStart(ctx) }
func (m *Manager) Shutdown(ctx context.Context) error           { return m.inner.Shutdown(ctx) }

func (m *Manager) ReloadNginx(ctx context.Context) error { return m.inner.ReloadNginx(ctx) }
func (m *Manager) TestNginxConfig(ctx context.Context) (string, error) {
	return m.inner.TestNginxConfig(ctx)
}
func (m *Manager) InitializeDatabase(ctx context.Context) error {
	return m.inner.InitializeDatabase(ctx)
}
func (m *Manager) PHPVersions() []PHPVersionInfo { return m.inner.PHPVersions() }

func (m *Manager) History(ctx context.Context, id string, limit int) ([]HistoryEvent, error) {
	return m.inner.History(ctx, id, limit)
}

// PruneHistory drops events older than [history] retention right away.
func (m *Manager) PruneHistory(ctx context.Context) (int64, error) {
	return m.inner.PruneHistory(ctx)
}

// Log file facade

func (m *Manager) LogFiles() ([]LogFile, error) { return m.inner.LogFiles().List() }
func (m *Manager) ReadLog(file string, n int) ([]string, error) {
	return m.inner.LogFiles().Read(file, n)
}
func (m *Manager) ClearLog(file string) error { return m.inner.LogFiles().Clear(file) }

// StartTail follows file and returns the session id. Lines are delivered to
// Subscribe receivers.
func (m *Manager) StartTail(file string) (string, error) {
	s, err := m.inner.StartTail(file)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

func (m *Manager) StopTail() { m.inner.StopTail() }

// Subscribe receives tailed lines until cancel is called.
func (m *Manager) Subscribe(buf int) (<-chan LogLine, func()) {
	_, ch, cancel := m.inner.Hub().Subscribe(buf)
	return ch, cancel
}

// NewHTTPServer starts the API on addr using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager, log *slog.Logger) (*Server, error) {
	return iapi.NewServer(addr, basePath, m.inner, log)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// NewMetricsServer serves /metrics for g on addr.
func NewMetricsServer(addr string, g prometheus.Gatherer, log *slog.Logger) (*Server, error) {
	return iapi.NewMetricsServer(addr, g, log)
}
