package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/lokcaldev/internal/config"
	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/driver/drivertest"
	"github.com/loykin/lokcaldev/internal/logger"
	"github.com/loykin/lokcaldev/internal/logs"
	mng "github.com/loykin/lokcaldev/internal/manager"
	"github.com/loykin/lokcaldev/internal/service"
)

func setupRouter(t *testing.T, base string) (http.Handler, *mng.Manager, config.Paths) {
	t.Helper()
	drivertest.RequireUnix(t)
	gin.SetMode(gin.TestMode)
	cfg := drivertest.Config(t)
	cat := driver.NewCatalog(driver.Options{Config: cfg, Output: logger.Config{Dir: cfg.Paths().Logs}})
	mgr := mng.New(mng.Options{Config: cfg, Catalog: cat})
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return NewRouter(mgr, base, nil).Handler(), mgr, cfg.Paths()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListServices(t *testing.T) {
	h, _, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/services")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 3)
	for _, s := range list {
		assert.Equal(t, "stopped", s["status"])
		assert.Contains(t, s, "pid")
		assert.Contains(t, s, "installed")
	}
}

func TestServiceLifecycleOverHTTP(t *testing.T) {
	h, _, p := setupRouter(t, "")
	drivertest.InstallPHP(t, p, "8.3")

	rec := doReq(t, h, http.MethodPost, "/services/php-fpm-8.3/start")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[service.Info](t, rec)
	assert.Equal(t, service.StatusRunning, info.Status)
	require.NotNil(t, info.PID)

	rec = doReq(t, h, http.MethodGet, "/services/php-fpm-8.3")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doReq(t, h, http.MethodGet, "/services/php-fpm-8.3/usage")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doReq(t, h, http.MethodPost, "/services/php-fpm-8.3/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	info = decode[service.Info](t, rec)
	assert.Equal(t, service.StatusStopped, info.Status)
	assert.Nil(t, info.PID)
}

func TestErrorMapping(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	cases := []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/services/apache", http.StatusNotFound},
		{http.MethodPost, "/services/apache/start", http.StatusNotFound},
		{http.MethodPost, "/services/nginx/start", http.StatusConflict},
		{http.MethodPost, "/services/bad%20id/start", http.StatusBadRequest},
		{http.MethodPost, "/nginx/reload", http.StatusConflict},
		{http.MethodGet, "/logs/read", http.StatusBadRequest},
		{http.MethodGet, "/logs/read?file=missing.log", http.StatusNotFound},
		{http.MethodGet, "/logs/read?file=../config/settings.toml", http.StatusBadRequest},
		{http.MethodGet, "/logs/read?file=a.log&lines=-1", http.StatusBadRequest},
		{http.MethodPost, "/logs/tail?file=/etc/passwd", http.StatusBadRequest},
		{http.MethodGet, "/history", http.StatusNotImplemented},
	}
	for _, tc := range cases {
		rec := doReq(t, h, tc.method, tc.path)
		assert.Equal(t, tc.code, rec.Code, "%s %s: %s", tc.method, tc.path, rec.Body.String())
		assert.NotEmpty(t, decode[errorResp](t, rec).Error, tc.path)
	}
}

func TestLogEndpoints(t *testing.T) {
	h, _, p := setupRouter(t, "")
	path := filepath.Join(p.Logs, "nginx-error.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0o644))

	rec := doReq(t, h, http.MethodGet, "/logs")
	require.Equal(t, http.StatusOK, rec.Code)
	files := decode[[]logs.File](t, rec)
	require.Len(t, files, 1)
	assert.Equal(t, "nginx-error.log", files[0].Name)

	rec = doReq(t, h, http.MethodGet, "/logs/read?file=nginx-error.log&lines=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b", "c"}, decode[readResp](t, rec).Lines)

	rec = doReq(t, h, http.MethodPost, "/logs/clear?file=nginx-error.log")
	require.Equal(t, http.StatusOK, rec.Code)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPHPVersionsAndNginxTest(t *testing.T) {
	h, _, p := setupRouter(t, "")
	drivertest.InstallPHP(t, p, "8.2")
	drivertest.InstallNginx(t, p)

	rec := doReq(t, h, http.MethodGet, "/php/versions")
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode[[]driver.PHPVersionInfo](t, rec)
	require.Len(t, versions, len(config.DefaultPHPVersions))

	rec = doReq(t, h, http.MethodPost, "/nginx/test")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decode[outputResp](t, rec).Output, "successful")
}

func TestLogStreamWebsocket(t *testing.T) {
	h, mgr, p := setupRouter(t, "/api")
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/logs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return mgr.Hub().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	path := filepath.Join(p.Logs, "mariadb.log")
	require.NoError(t, os.WriteFile(path, []byte("ready for connections\n"), 0o644))
	rec := doReq(t, h, http.MethodPost, "/api/logs/tail?file=mariadb.log")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[tailResp](t, rec).Session)

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var line logs.LogLine
	require.NoError(t, conn.ReadJSON(&line))
	assert.Equal(t, "ready for connections", line.Line)

	rec = doReq(t, h, http.MethodDelete, "/api/logs/tail")
	require.Equal(t, http.StatusOK, rec.Code)
}
