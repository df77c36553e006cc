package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/lokcaldev"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

// fakeDaemon answers the subset of the API the commands use.
func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	services := []lokcaldev.Info{
		{ID: "mariadb", Name: "MariaDB", Status: lokcaldev.StatusStopped, Port: intPtr(3306), Installed: true},
		{ID: "nginx", Name: "Nginx", Status: lokcaldev.StatusRunning, Port: intPtr(80), PID: intPtr(1234), Version: strPtr("1.27.0"), Installed: true},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /services", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(services)
	})
	mux.HandleFunc("GET /services/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, s := range services {
			if s.ID == r.PathValue("id") {
				_ = json.NewEncoder(w).Encode(s)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"get: not found"}`))
	})
	mux.HandleFunc("POST /services/{id}/{op}", func(w http.ResponseWriter, r *http.Request) {
		s := lokcaldev.Info{ID: r.PathValue("id"), Name: r.PathValue("id"), Status: lokcaldev.StatusRunning, PID: intPtr(99)}
		if r.PathValue("op") == "stop" {
			s.Status, s.PID = lokcaldev.StatusStopped, nil
		}
		_ = json.NewEncoder(w).Encode(s)
	})
	mux.HandleFunc("GET /php/versions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"version":"8.2","installed":true,"running":false,"port":9082},{"version":"8.3","installed":true,"running":true,"port":9083,"pid":77}]`))
	})
	mux.HandleFunc("POST /nginx/test", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"output":"syntax is ok"}`))
	})
	mux.HandleFunc("POST /mariadb/initialize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"initialize mariadb: service not installed"}`))
	})
	mux.HandleFunc("GET /logs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"nginx-error.log","size":12}]`))
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"type":"stop","occurred_at":"2026-01-02T03:04:05Z","record":{"service_id":"nginx","pid":1234,"status":"stopped"}}]`))
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req lokcaldev.LoginRequest
		if json.NewDecoder(r.Body).Decode(&req) != nil || req.Password != "letmein" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"type":"Bearer","value":"tok-123","expires_at":"2026-01-02T03:04:05Z"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	return runCLIWithInput(t, srv, "", args...)
}

func runCLIWithInput(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRoot(strings.NewReader(stdin), &out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--api-url", srv.URL, "--api-timeout", "2s"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestStatusTable(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "status")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "mariadb")
	assert.Contains(t, lines[2], "1234")
	assert.Contains(t, lines[2], "1.27.0")
}

func TestStatusJSON(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "--json", "status", "nginx")
	require.NoError(t, err)
	var got []lokcaldev.Info
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "nginx", got[0].ID)
	assert.Equal(t, lokcaldev.StatusRunning, got[0].Status)
}

func TestStatusUnknownService(t *testing.T) {
	_, err := runCLI(t, fakeDaemon(t), "status", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLifecycleCommands(t *testing.T) {
	srv := fakeDaemon(t)
	out, err := runCLI(t, srv, "start", "php-fpm-8.3")
	require.NoError(t, err)
	assert.Contains(t, out, "php-fpm-8.3")
	assert.Contains(t, out, "running")

	out, err = runCLI(t, srv, "stop", "php-fpm-8.3")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")

	_, err = runCLI(t, srv, "restart")
	assert.Error(t, err, "restart requires an id")
}

func TestMiscCommands(t *testing.T) {
	srv := fakeDaemon(t)

	out, err := runCLI(t, srv, "php", "versions")
	require.NoError(t, err)
	assert.Contains(t, out, "8.3")
	assert.Contains(t, out, "77")

	out, err = runCLI(t, srv, "nginx", "test")
	require.NoError(t, err)
	assert.Contains(t, out, "syntax is ok")

	_, err = runCLI(t, srv, "mariadb", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")

	out, err = runCLI(t, srv, "logs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "nginx-error.log")

	out, err = runCLI(t, srv, "history", "nginx", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "stop")
	assert.Contains(t, out, "1234")
}

func TestDaemonNotReachable(t *testing.T) {
	c := &command{out: &bytes.Buffer{}, flags: &GlobalFlags{APIUrl: "http://127.0.0.1:1", APITimeout: 100 * time.Millisecond}}
	err := c.Status("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lokcaldev serve")
}

func TestAuthHash(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "auth", "hash", "--password", "letmein")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "$2"), hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("letmein")))

	_, err = runCLI(t, fakeDaemon(t), "auth", "hash")
	assert.ErrorContains(t, err, "password required")
}

func TestAuthLoginFromStdin(t *testing.T) {
	srv := fakeDaemon(t)
	out, err := runCLIWithInput(t, srv, "letmein\n", "auth", "login")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", strings.TrimSpace(out))

	_, err = runCLIWithInput(t, srv, "wrong\n", "auth", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTokenIsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	_, err := runCLI(t, srv, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication required")

	_, err = runCLI(t, srv, "--token", "tok-123", "status")
	require.NoError(t, err)

	t.Setenv("LOKCALDEV_TOKEN", "tok-123")
	_, err = runCLI(t, srv, "status")
	require.NoError(t, err)
}
