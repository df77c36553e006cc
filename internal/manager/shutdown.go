package manager

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/service"
)

// Shutdown stops every service this supervisor knows about and releases the
// tail session and history sinks. It runs once; later calls return nil.
// Individual stop failures are logged and do not abort the sequence.
func (m *Manager) Shutdown(ctx context.Context) error {
	var out error
	m.shutdownOnce.Do(func() { out = m.shutdown(ctx) })
	return out
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.log.Info("shutting down services")

	m.hmu.Lock()
	m.closed = true
	handlers := make([]*handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.hmu.Unlock()
	// Let in-flight operations finish before tearing processes down.
	for _, h := range handlers {
		if err := h.send(ctx, CtrlShutdown); err != nil && !errors.Is(err, ErrShutdown) {
			m.log.Warn("actor did not acknowledge shutdown", "id", h.id, "error", err)
		}
	}
	m.cancel()

	children, err := m.reg.DrainChildren()
	if err != nil {
		m.log.Error("registry unavailable during shutdown", "error", err)
	}
	for id, c := range children {
		if err := c.Kill(); err != nil {
			m.log.Warn("kill failed", "id", id, "pid", c.PID(), "error", err)
		}
		select {
		case <-c.Done():
		case <-time.After(stopWaitTimeout):
			m.log.Warn("child not reaped", "id", id, "pid", c.PID())
		}
	}

	for _, d := range m.shutdownDrivers() {
		if err := d.Stop(ctx); err != nil {
			m.log.Warn("stop during shutdown failed", "id", d.ID(), "error", err)
		}
	}
	if ids, err := m.reg.IDs(); err == nil {
		for _, id := range ids {
			_, _ = m.transition(id, service.StatusStopped, func(i *service.Info) {
				i.PID = nil
				i.StartedAt = nil
			})
		}
	}

	m.StopTail()
	if m.sched != nil {
		if err := m.sched.Stop(ctx); err != nil {
			m.log.Warn("maintenance tasks still running", "error", err)
		}
	}
	return m.hist.Close()
}

// shutdownDrivers lists nginx, mariadb and every PHP-FPM pool, including
// versions only seen in the registry.
func (m *Manager) shutdownDrivers() []driver.Driver {
	out := []driver.Driver{m.cat.Nginx(), m.cat.MariaDB()}
	seen := make(map[string]bool)
	for _, f := range m.cat.PHPFPMs() {
		seen[f.ID()] = true
		out = append(out, f)
	}
	ids, _ := m.reg.IDs()
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if d, err := m.cat.Lookup(id); err == nil && d.Kind() == driver.KindPHPFPM {
			seen[id] = true
			out = append(out, d)
		}
	}
	return out
}
