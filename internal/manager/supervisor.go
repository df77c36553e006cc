package manager

import (
	"context"

	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/history"
	"github.com/loykin/lokcaldev/internal/metrics"
	"github.com/loykin/lokcaldev/internal/service"
)

// watch observes an owned child until it exits. An exit nobody asked for
// (the handle is still registered) marks the service stopped and is counted
// as a failure. Processes are not restarted automatically.
func (m *Manager) watch(id, name string, c *driver.Child) {
	go func() {
		<-c.Done()
		removed, err := m.reg.RemoveChildIf(id, c)
		if err != nil || !removed {
			return
		}
		exitErr := c.Err()
		m.log.Warn("service exited unexpectedly", "id", id, "pid", c.PID(), "error", exitErr)
		_, _ = m.transition(id, service.StatusStopped, func(i *service.Info) {
			if i.PID != nil && *i.PID == c.PID() {
				i.PID = nil
				i.StartedAt = nil
			}
		})
		m.sampler.Forget(id)
		metrics.IncFailure(id, "exit")
		rec := history.Record{ServiceID: id, Name: name, PID: c.PID(), Status: string(service.StatusStopped)}
		if exitErr != nil {
			rec.Error = exitErr.Error()
		}
		m.hist.Record(context.Background(), history.EventFailure, rec)
	}()
}
