package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/lokcaldev/internal/history"
)

func TestSQLiteSinkRoundTrip(t *testing.T) {
	sink, err := New("sqlite://" + filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	ctx := context.Background()

	rec := history.NewRecorder(nil, sink)
	rec.Record(ctx, history.EventStart, history.Record{ServiceID: "nginx", Name: "Nginx", PID: 42, Status: "running", Version: "1.27.0"})
	rec.Record(ctx, history.EventFailure, history.Record{ServiceID: "mariadb", Name: "MariaDB", Status: "stopped", Error: "spawn failed"})
	rec.Record(ctx, history.EventStop, history.Record{ServiceID: "nginx", Name: "Nginx", PID: 42, Status: "stopped"})

	all, err := rec.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	nginx, err := sink.Recent(ctx, "nginx", 10)
	require.NoError(t, err)
	require.Len(t, nginx, 2)
	assert.Equal(t, history.EventStop, nginx[0].Type, "newest first")
	assert.Equal(t, "1.27.0", nginx[1].Record.Version)

	failed, err := sink.Recent(ctx, "mariadb", 1)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "spawn failed", failed[0].Record.Error)
	assert.Equal(t, 0, failed[0].Record.PID)
}

func TestSQLiteSinkPrune(t *testing.T) {
	sink, err := New("sqlite://" + filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: now.Add(-72 * time.Hour),
		Record: history.Record{ServiceID: "nginx", Name: "Nginx", Status: "running"}}))
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStop, OccurredAt: now,
		Record: history.Record{ServiceID: "nginx", Name: "Nginx", Status: "stopped"}}))

	n, err := history.NewRecorder(nil, sink).Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := sink.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, history.EventStop, left[0].Type)
}

func TestSQLiteSinkEmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
