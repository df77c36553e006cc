// Package sqlsink holds the SQL shared by the database/sql history sinks.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/lokcaldev/internal/history"
)

const Table = "service_history"

// Dialect differs between drivers only in placeholders and column types.
type Dialect struct {
	Timestamp   string
	Placeholder func(n int) string
}

var (
	SQLite   = Dialect{Timestamp: "TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP)", Placeholder: func(int) string { return "?" }}
	Postgres = Dialect{Timestamp: "TIMESTAMPTZ NOT NULL DEFAULT NOW()", Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
)

// Sink writes events to a database/sql handle.
type Sink struct {
	DB      *sql.DB
	Dialect Dialect
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	// Audit table without a primary key.
	stmt := `CREATE TABLE IF NOT EXISTS ` + Table + `(
		timestamp ` + s.Dialect.Timestamp + `,
		type TEXT NOT NULL,
		service_id TEXT NOT NULL,
		name TEXT NOT NULL,
		pid INTEGER NOT NULL,
		status TEXT NOT NULL,
		version TEXT,
		error TEXT
	);`
	_, err := s.DB.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = s.Dialect.Placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO `+Table+`(timestamp, type, service_id, name, pid, status, version, error)
		VALUES(`+s.placeholders(8)+`);`,
		e.OccurredAt.UTC(), string(e.Type), rec.ServiceID, rec.Name, rec.PID, rec.Status,
		nullString(rec.Version), nullString(rec.Error))
	return err
}

// Recent returns the newest events first. An empty serviceID matches all.
func (s *Sink) Recent(ctx context.Context, serviceID string, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT timestamp, type, service_id, name, pid, status, version, error FROM ` + Table
	args := []any{}
	if serviceID != "" {
		q += ` WHERE service_id = ` + s.Dialect.Placeholder(1)
		args = append(args, serviceID)
	}
	q += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT %d`, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var (
			e        history.Event
			typ      string
			ts       time.Time
			ver, msg sql.NullString
		)
		if err := rows.Scan(&ts, &typ, &e.Record.ServiceID, &e.Record.Name, &e.Record.PID, &e.Record.Status, &ver, &msg); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.OccurredAt = ts.UTC()
		e.Record.Version = ver.String
		e.Record.Error = msg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes events recorded before the given time.
func (s *Sink) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM `+Table+` WHERE timestamp < `+s.Dialect.Placeholder(1), before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Sink) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
