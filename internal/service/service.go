// Package service holds the types shared by drivers, the manager and the
// presentation layer: the per-service status snapshot and the error taxonomy.
package service

import "time"

// Status is the lifecycle state of a supervised service.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
	StatusStarting Status = "starting"
	StatusStopping Status = "stopping"
)

func (s Status) String() string { return string(s) }

// Info is the last known state of one service.
type Info struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Port        *int       `json:"port"`
	Version     *string    `json:"version"`
	PID         *int       `json:"pid"`
	Installed   bool       `json:"installed"`
	Initialized bool       `json:"initialized"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
}

// New returns the default entry for a known service: stopped, not installed.
func New(id, name string, port *int) Info {
	return Info{ID: id, Name: name, Status: StatusStopped, Port: port}
}

// Clone returns a deep copy so callers never share pointer fields with the registry.
func (i Info) Clone() Info {
	out := i
	if i.Port != nil {
		out.Port = IntPtr(*i.Port)
	}
	if i.Version != nil {
		v := *i.Version
		out.Version = &v
	}
	if i.PID != nil {
		out.PID = IntPtr(*i.PID)
	}
	if i.StartedAt != nil {
		t := *i.StartedAt
		out.StartedAt = &t
	}
	return out
}

// Running reports whether the entry is in the running state with a known pid.
func (i Info) Running() bool { return i.Status == StatusRunning && i.PID != nil }

func IntPtr(v int) *int { return &v }

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
