// Package cron runs the supervisor's periodic maintenance tasks.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as "@daily" or "@every 1h".
var Parser = rcron.NewParser(rcron.SecondOptional | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)

// Task is one named periodic function.
type Task struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Validate checks the task can be scheduled.
func (t Task) Validate() error {
	if t.Name == "" {
		return errors.New("task requires a name")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s has no function", t.Name)
	}
	if _, err := Parser.Parse(t.Schedule); err != nil {
		return fmt.Errorf("task %s: invalid schedule %q: %w", t.Name, t.Schedule, err)
	}
	return nil
}

// Scheduler runs tasks on their schedules. A tick is skipped while the
// previous run of the same task is still in progress.
type Scheduler struct {
	c      *rcron.Cron
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]rcron.EntryID
	started bool
}

func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c: rcron.New(
			rcron.WithParser(Parser),
			rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)),
		),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]rcron.EntryID),
	}
}

// Add registers t. Names must be unique within a scheduler.
func (s *Scheduler) Add(t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[t.Name]; dup {
		return fmt.Errorf("task %s already scheduled", t.Name)
	}
	id, err := s.c.AddFunc(t.Schedule, func() { s.run(t) })
	if err != nil {
		return fmt.Errorf("task %s: %w", t.Name, err)
	}
	s.entries[t.Name] = id
	s.log.Debug("task scheduled", "task", t.Name, "schedule", t.Schedule)
	return nil
}

func (s *Scheduler) run(t Task) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := t.Run(s.ctx); err != nil {
		s.log.Warn("scheduled task failed", "task", t.Name, "error", err)
		return
	}
	s.log.Debug("scheduled task done", "task", t.Name, "took", time.Since(start))
}

// Next returns the next activation of the named task, or zero when unknown
// or the scheduler is not running.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.c.Entry(id).Next
}

// Len reports the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.c.Start()
}

// Stop cancels running tasks and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
