package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/lokcaldev/internal/detector"
	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/history"
	"github.com/loykin/lokcaldev/internal/metrics"
	"github.com/loykin/lokcaldev/internal/service"
)

// stopWaitTimeout bounds how long stop waits for a signalled process to exit
// before it is killed.
var stopWaitTimeout = 5 * time.Second

// dispatch runs on the actor goroutine of d.
func (m *Manager) dispatch(ctx context.Context, d driver.Driver, t CtrlType) error {
	switch t {
	case CtrlStart:
		return service.WithOp(m.doStart(ctx, d), service.OpStart, d.ID())
	case CtrlStop:
		return service.WithOp(m.doStop(ctx, d), service.OpStop, d.ID())
	case CtrlRestart:
		return service.WithOp(m.doRestart(ctx, d), service.OpRestart, d.ID())
	default:
		return fmt.Errorf("unsupported control message %s", t)
	}
}

func (m *Manager) transition(id string, to service.Status, fn func(*service.Info)) (service.Info, error) {
	var prev service.Status
	var cur service.Info
	if _, err := m.reg.Update(id, func(i *service.Info) {
		prev = i.Status
		i.Status = to
		if fn != nil {
			fn(i)
		}
		cur = i.Clone()
	}); err != nil {
		return service.Info{}, err
	}
	metrics.RecordStateTransition(id, prev, to)
	metrics.SetState(id, to)
	return cur, nil
}

func (m *Manager) doStart(ctx context.Context, d driver.Driver) error {
	id := d.ID()
	begin := time.Now()
	if err := m.reg.Ensure(service.New(id, d.Name(), d.Port())); err != nil {
		return err
	}
	if d.Kind() == driver.KindNginx {
		m.resolver.Resolve(ctx)
	}
	if _, err := m.transition(id, service.StatusStarting, nil); err != nil {
		return err
	}

	child, pid, err := d.Start(ctx)
	if err != nil {
		_, _ = m.transition(id, service.StatusStopped, nil)
		metrics.IncFailure(id, string(service.OpStart))
		m.hist.Record(ctx, history.EventFailure, history.Record{
			ServiceID: id, Name: d.Name(), Status: string(service.StatusStopped), Error: err.Error(),
		})
		m.log.Error("start failed", "id", id, "error", err)
		return err
	}

	if child != nil {
		if prev, err := m.reg.SetChild(id, child); err != nil {
			return err
		} else if prev != nil && prev != child {
			m.log.Warn("replacing stale child handle", "id", id, "pid", prev.PID())
		}
		m.watch(id, d.Name(), child)
	}
	now := time.Now()
	info, err := m.transition(id, service.StatusRunning, func(i *service.Info) {
		i.Installed = true
		i.StartedAt = &now
		if pid > 0 {
			i.PID = service.IntPtr(pid)
		}
	})
	if err != nil {
		return err
	}
	metrics.IncStart(id)
	metrics.ObserveDuration(id, string(service.OpStart), time.Since(begin).Seconds())
	m.hist.Record(ctx, history.EventStart, recordOf(info))
	m.log.Info("service started", "id", id, "pid", pid)
	return nil
}

func (m *Manager) doStop(ctx context.Context, d driver.Driver) error {
	id := d.ID()
	if d.Kind() == driver.KindPhpMyAdmin {
		return m.observe(ctx, d)
	}
	begin := time.Now()
	var prev service.Info
	ok, err := m.reg.Update(id, func(i *service.Info) { prev = i.Clone() })
	if err != nil {
		return err
	}
	if ok {
		if _, err := m.transition(id, service.StatusStopping, nil); err != nil {
			return err
		}
	}
	child, err := m.reg.TakeChild(id)
	if err != nil {
		return err
	}

	if err := d.Stop(ctx); err != nil {
		if ok {
			_, _ = m.transition(id, prev.Status, nil)
		}
		if child != nil {
			_, _ = m.reg.SetChild(id, child)
		}
		metrics.IncFailure(id, string(service.OpStop))
		m.hist.Record(ctx, history.EventFailure, history.Record{
			ServiceID: id, Name: d.Name(), Status: string(prev.Status), Error: err.Error(),
		})
		m.log.Error("stop failed", "id", id, "error", err)
		return err
	}

	var det detector.Detector
	if child == nil && prev.PID != nil {
		det = detector.PIDDetector{PID: *prev.PID}
	}
	m.awaitExit(id, child, det)
	if !ok {
		return nil
	}
	info, err := m.transition(id, service.StatusStopped, func(i *service.Info) {
		i.PID = nil
		i.StartedAt = nil
	})
	if err != nil {
		return err
	}
	m.sampler.Forget(id)
	metrics.IncStop(id)
	metrics.ObserveDuration(id, string(service.OpStop), time.Since(begin).Seconds())
	rec := recordOf(info)
	if prev.PID != nil {
		rec.PID = *prev.PID
	}
	m.hist.Record(ctx, history.EventStop, rec)
	m.log.Info("service stopped", "id", id)
	return nil
}

// observe stores what the driver reports for a service that has no process
// to stop.
func (m *Manager) observe(ctx context.Context, d driver.Driver) error {
	info := d.Info(ctx)
	if err := m.reg.Ensure(info); err != nil {
		return err
	}
	_, err := m.reg.Update(d.ID(), func(i *service.Info) { *i = info.Clone() })
	return err
}

// awaitExit waits for the stopped process to go away. An owned child is
// reaped and killed after stopWaitTimeout; otherwise det is polled until it
// reports the process gone or the timeout passes.
func (m *Manager) awaitExit(id string, child *driver.Child, det detector.Detector) {
	timer := time.NewTimer(stopWaitTimeout)
	defer timer.Stop()
	if child != nil {
		select {
		case <-child.Done():
		case <-timer.C:
			m.log.Warn("service did not exit in time, killing", "id", id, "pid", child.PID())
			_ = child.Kill()
			<-child.Done()
		}
		return
	}
	if det == nil {
		return
	}
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if alive, _ := det.Alive(); !alive {
			return
		}
		select {
		case <-tick.C:
		case <-timer.C:
			m.log.Warn("service still alive after stop", "id", id, "detector", det.Describe())
			return
		}
	}
}

// doRestart stops then starts. A failed start leaves the service stopped.
func (m *Manager) doRestart(ctx context.Context, d driver.Driver) error {
	if err := m.doStop(ctx, d); err != nil {
		return err
	}
	if err := m.doStart(ctx, d); err != nil {
		if kind := service.KindOf(err); kind != nil {
			return service.Wrap(service.OpRestart, d.ID(), kind, err)
		}
		return err
	}
	metrics.IncRestart(d.ID())
	if info, ok, _ := m.reg.Get(d.ID()); ok {
		m.hist.Record(ctx, history.EventRestart, recordOf(info))
	}
	return nil
}

func recordOf(info service.Info) history.Record {
	rec := history.Record{ServiceID: info.ID, Name: info.Name, Status: string(info.Status)}
	if info.PID != nil {
		rec.PID = *info.PID
	}
	if info.Version != nil {
		rec.Version = *info.Version
	}
	return rec
}
