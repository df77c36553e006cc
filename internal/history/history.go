// Package history exports service lifecycle events to analytics sinks.
package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
	EventFailure EventType = "failure"
)

// Record is the service state captured with an event.
type Record struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	PID       int    `json:"pid"`
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Querier is implemented by sinks that can read events back.
type Querier interface {
	Recent(ctx context.Context, serviceID string, limit int) ([]Event, error)
}

// Pruner is implemented by sinks that can drop old events.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Recorder fans events out to every configured sink. Delivery is best
// effort: a failing sink is logged and never blocks the lifecycle operation.
type Recorder struct {
	sinks []Sink
	log   *slog.Logger
}

func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sinks: append([]Sink(nil), sinks...), log: log}
}

// Enabled reports whether any sink is attached.
func (r *Recorder) Enabled() bool { return r != nil && len(r.sinks) > 0 }

func (r *Recorder) Record(ctx context.Context, typ EventType, rec Record) {
	if !r.Enabled() {
		return
	}
	e := Event{Type: typ, OccurredAt: time.Now().UTC(), Record: rec}
	for _, s := range r.sinks {
		if err := s.Send(ctx, e); err != nil {
			r.log.Warn("history sink send failed", "type", typ, "service", rec.ServiceID, "error", err)
		}
	}
}

// Recent queries the first sink able to answer.
func (r *Recorder) Recent(ctx context.Context, serviceID string, limit int) ([]Event, error) {
	if r != nil {
		for _, s := range r.sinks {
			if q, ok := s.(Querier); ok {
				return q.Recent(ctx, serviceID, limit)
			}
		}
	}
	return nil, ErrNoQuerier
}

// Prune deletes events older than before from every sink that supports it
// and returns the total number removed.
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	if r == nil {
		return 0, nil
	}
	var (
		total int64
		errs  []error
	)
	for _, s := range r.sinks {
		p, ok := s.(Pruner)
		if !ok {
			continue
		}
		n, err := p.Prune(ctx, before)
		total += n
		errs = append(errs, err)
	}
	return total, errors.Join(errs...)
}

// ErrNoQuerier means no configured sink supports reading history back.
var ErrNoQuerier = errors.New("no queryable history sink configured")

// Close closes every sink that holds resources.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
