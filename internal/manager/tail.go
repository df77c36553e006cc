package manager

import "github.com/loykin/lokcaldev/internal/logs"

// StartTail follows path and publishes new lines to the hub. At most one
// session exists: the previous one is stopped and drained before the new
// one starts, so lines never interleave.
func (m *Manager) StartTail(path string) (*logs.Session, error) {
	canon, err := m.files.ValidatePath(path)
	if err != nil {
		return nil, err
	}
	s := logs.NewSession(canon, m.cfg.Tail.PollInterval, m.hub.Publish, m.log)
	prev, err := m.reg.SwapTail(s)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		prev.Stop()
		_ = prev.Wait()
	}
	s.Start()
	m.log.Info("tailing log file", "path", canon, "session", s.ID)
	return s, nil
}

// StopTail ends the current session, if any.
func (m *Manager) StopTail() {
	prev, err := m.reg.SwapTail(nil)
	if err != nil || prev == nil {
		return
	}
	prev.Stop()
	_ = prev.Wait()
}
