package manager

import (
	"context"
	"time"

	"github.com/loykin/lokcaldev/internal/cron"
)

const taskHistoryPrune = "history-prune"

// scheduleMaintenance starts the periodic tasks the configuration asks for.
func (m *Manager) scheduleMaintenance() {
	if m.cfg.History.Retention <= 0 || !m.hist.Enabled() {
		return
	}
	s := cron.NewScheduler(m.log)
	err := s.Add(cron.Task{
		Name:     taskHistoryPrune,
		Schedule: m.cfg.History.PruneSchedule,
		Run: func(ctx context.Context) error {
			_, err := m.PruneHistory(ctx)
			return err
		},
	})
	if err != nil {
		m.log.Warn("history pruning disabled", "error", err)
		return
	}
	s.Start()
	m.sched = s
	m.log.Info("history pruning scheduled", "schedule", m.cfg.History.PruneSchedule,
		"retention", m.cfg.History.Retention, "next", s.Next(taskHistoryPrune))
}

// PruneHistory drops events older than history.retention. Without a
// retention it keeps everything.
func (m *Manager) PruneHistory(ctx context.Context) (int64, error) {
	if m.cfg.History.Retention <= 0 {
		return 0, nil
	}
	before := time.Now().Add(-m.cfg.History.Retention)
	n, err := m.hist.Prune(ctx, before)
	if n > 0 {
		m.log.Info("history pruned", "removed", n, "before", before.UTC())
	}
	return n, err
}
