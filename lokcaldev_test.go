package lokcaldev

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/driver/drivertest"
)

func newManager(t *testing.T, history bool) (*Manager, *prometheus.Registry) {
	t.Helper()
	drivertest.RequireUnix(t)
	cfg := drivertest.Config(t)
	cfg.History.Enabled = history
	reg := prometheus.NewRegistry()
	m, err := New(cfg, Options{Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, reg
}

func TestFacadeLifecycleWithHistory(t *testing.T) {
	m, _ := newManager(t, true)
	drivertest.InstallPHP(t, m.Config().Paths(), "8.3")
	ctx := context.Background()
	id := driver.PHPFPMID("8.3")

	require.NoError(t, m.Start(ctx, id))
	info, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	require.NoError(t, m.Stop(ctx, id))

	events, err := m.History(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	types := []string{string(events[0].Type), string(events[1].Type)}
	assert.ElementsMatch(t, []string{"start", "stop"}, types)
	assert.FileExists(t, m.Config().Paths().HistoryDB())
}

func TestFacadeHistoryDisabled(t *testing.T) {
	m, _ := newManager(t, false)
	_, err := m.History(context.Background(), "", 10)
	assert.Error(t, err)
}

func TestFacadeUnknownService(t *testing.T) {
	m, _ := newManager(t, false)
	assert.ErrorIs(t, m.Start(context.Background(), "apache"), ErrNotFound)
	_, err := m.Get("apache")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFacadeRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.NginxPort = 0
	_, err := New(cfg, Options{})
	assert.Error(t, err)
}

func TestFacadeTailAndLogs(t *testing.T) {
	m, _ := newManager(t, false)
	path := filepath.Join(m.Config().Paths().Logs, "php-fpm-8.3.log")
	require.NoError(t, os.WriteFile(path, []byte("NOTICE: ready\n"), 0o644))

	files, err := m.LogFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)

	lines, cancel := m.Subscribe(8)
	defer cancel()
	sid, err := m.StartTail("php-fpm-8.3.log")
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	select {
	case l := <-lines:
		assert.Equal(t, "NOTICE: ready", l.Line)
	case <-time.After(3 * time.Second):
		t.Fatal("no tailed line")
	}
	m.StopTail()

	require.NoError(t, m.ClearLog("php-fpm-8.3.log"))
	got, err := m.ReadLog("php-fpm-8.3.log", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFacadeServers(t *testing.T) {
	m, reg := newManager(t, false)
	ctx := context.Background()

	api, err := NewHTTPServer("127.0.0.1:0", "/api", m, nil)
	require.NoError(t, err)
	defer func() { _ = api.Shutdown(ctx) }()
	resp, err := http.Get("http://" + api.Addr() + "/api/services")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ms, err := NewMetricsServer("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	defer func() { _ = ms.Shutdown(ctx) }()
	resp, err = http.Get("http://" + ms.Addr() + "/metrics")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFacadeServerWithAuth(t *testing.T) {
	drivertest.RequireUnix(t)
	cfg := drivertest.Config(t)
	hash, err := HashPassword("letmein")
	require.NoError(t, err)
	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.PasswordHash = hash
	cfg.Server.Auth.JWTSecret = "0123456789abcdef"
	m, err := New(cfg, Options{})
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	api, err := NewHTTPServer("127.0.0.1:0", "/api", m, nil)
	require.NoError(t, err)
	defer func() { _ = api.Shutdown(ctx) }()

	resp, err := http.Get("http://" + api.Addr() + "/api/services")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, "http://"+api.Addr()+"/api/services", nil)
	require.NoError(t, err)
	req.SetBasicAuth("", "letmein")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFacadePruneHistory(t *testing.T) {
	m, _ := newManager(t, true)
	n, err := m.PruneHistory(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "no retention configured")
}
