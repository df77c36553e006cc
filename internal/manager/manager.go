// Package manager supervises the local web stack: it serializes lifecycle
// operations per service, reconciles recorded state with the OS and owns the
// children started in this run.
package manager

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/loykin/lokcaldev/internal/config"
	"github.com/loykin/lokcaldev/internal/cron"
	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/history"
	"github.com/loykin/lokcaldev/internal/logs"
	"github.com/loykin/lokcaldev/internal/metrics"
	"github.com/loykin/lokcaldev/internal/service"
	"github.com/loykin/lokcaldev/internal/site"
)

// Options wires a Manager. Config and Catalog are required.
type Options struct {
	Config   *config.Config
	Catalog  *driver.Catalog
	Sites    site.Lister
	History  *history.Recorder
	Sampler  *metrics.Sampler
	Hub      *logs.Hub
	Registry *Registry
	Log      *slog.Logger
}

// Manager starts, stops and reconciles services.
type Manager struct {
	cfg      *config.Config
	cat      *driver.Catalog
	hist     *history.Recorder
	sampler  *metrics.Sampler
	hub      *logs.Hub
	files    logs.Files
	reg      *Registry
	resolver *Resolver
	sched    *cron.Scheduler
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	hmu      sync.Mutex
	handlers map[string]*handler
	closed   bool

	shutdownOnce sync.Once
}

func New(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	hub := opts.Hub
	if hub == nil {
		hub = logs.NewHub()
	}
	sampler := opts.Sampler
	if sampler == nil {
		sampler = metrics.NewSampler()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      opts.Config,
		cat:      opts.Catalog,
		hist:     opts.History,
		sampler:  sampler,
		hub:      hub,
		files:    logs.Files{Dir: opts.Config.Paths().Logs},
		reg:      reg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[string]*handler),
	}
	m.resolver = &Resolver{Sites: opts.Sites, Catalog: opts.Catalog, Start: m.Start, Log: log}
	for _, d := range opts.Catalog.Defaults() {
		_ = reg.Ensure(service.New(d.ID(), d.Name(), d.Port()))
	}
	m.scheduleMaintenance()
	return m
}

func (m *Manager) Config() *config.Config   { return m.cfg }
func (m *Manager) Catalog() *driver.Catalog { return m.cat }
func (m *Manager) Hub() *logs.Hub           { return m.hub }
func (m *Manager) LogFiles() logs.Files     { return m.files }

// handlerFor returns the actor for id, starting it on first use.
func (m *Manager) handlerFor(d driver.Driver) (*handler, error) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	if m.closed {
		return nil, ErrShutdown
	}
	h := m.handlers[d.ID()]
	if h == nil {
		h = newHandler(d.ID(), func(ctx context.Context, t CtrlType) error {
			return m.dispatch(ctx, d, t)
		})
		m.handlers[d.ID()] = h
		go h.run(m.ctx)
	}
	return h, nil
}

func (m *Manager) send(ctx context.Context, id string, t CtrlType) error {
	d, err := m.cat.Lookup(id)
	if err != nil {
		return err
	}
	h, err := m.handlerFor(d)
	if err != nil {
		return err
	}
	return h.send(ctx, t)
}

// Start starts id through its actor. Unknown ids fail before any OS work.
func (m *Manager) Start(ctx context.Context, id string) error { return m.send(ctx, id, CtrlStart) }

// Stop stops id through its actor. Stopping a stopped service is not an error.
func (m *Manager) Stop(ctx context.Context, id string) error { return m.send(ctx, id, CtrlStop) }

// Restart is stop followed by start on the same actor; it is not atomic.
func (m *Manager) Restart(ctx context.Context, id string) error {
	return m.send(ctx, id, CtrlRestart)
}

// Get returns the last reconciled entry for id without probing the OS.
func (m *Manager) Get(id string) (service.Info, error) {
	info, ok, err := m.reg.Get(id)
	if err != nil {
		return service.Info{}, service.WithOp(err, service.OpGet, id)
	}
	if !ok {
		return service.Info{}, service.Errorf(service.OpGet, id, service.ErrNotFound, "unknown service %q", id)
	}
	return info, nil
}

// ListAll probes every registered service, writes the observations back and
// returns them sorted by name. Drivers run outside the registry lock.
func (m *Manager) ListAll(ctx context.Context) ([]service.Info, error) {
	ids, err := m.reg.IDs()
	if err != nil {
		return nil, service.WithOp(err, service.OpGet, "")
	}
	for _, id := range ids {
		d, err := m.cat.Lookup(id)
		if err != nil {
			continue
		}
		obs := d.Info(ctx)
		var prev service.Status
		if _, err := m.reg.Update(id, func(i *service.Info) {
			prev = i.Status
			i.Status = obs.Status
			i.Version = obs.Version
			i.PID = obs.PID
			i.Installed = obs.Installed
			i.Initialized = obs.Initialized
			i.StartedAt = obs.StartedAt
		}); err != nil {
			return nil, err
		}
		metrics.RecordStateTransition(id, prev, obs.Status)
		metrics.SetState(id, obs.Status)
		if obs.PID != nil {
			m.sampler.Sample(id, *obs.PID)
		} else {
			m.sampler.Forget(id)
		}
	}

	out, err := m.reg.Snapshot()
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Usage samples CPU and memory of a running service.
func (m *Manager) Usage(id string) (metrics.Usage, error) {
	info, err := m.Get(id)
	if err != nil {
		return metrics.Usage{}, err
	}
	if info.PID == nil {
		return metrics.Usage{}, nil
	}
	u, _ := m.sampler.Sample(id, *info.PID)
	return u, nil
}

// History returns recent lifecycle events, newest first.
func (m *Manager) History(ctx context.Context, id string, limit int) ([]history.Event, error) {
	return m.hist.Recent(ctx, id, limit)
}

// AutoStart starts the configured services when auto_start_services is set.
// Failures are logged and skipped.
func (m *Manager) AutoStart(ctx context.Context) {
	if !m.cfg.AutoStartServices {
		return
	}
	for _, id := range m.cfg.AutoStartList {
		if err := m.Start(ctx, id); err != nil {
			m.log.Warn("auto-start failed", "id", id, "error", err)
			continue
		}
		m.log.Info("auto-started service", "id", id)
	}
}
