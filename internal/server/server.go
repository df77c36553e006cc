package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/lokcaldev/internal/auth"
	mng "github.com/loykin/lokcaldev/internal/manager"
	"github.com/loykin/lokcaldev/internal/metrics"
)

// Server is a running HTTP listener.
type Server struct {
	http *http.Server
	ln   net.Listener
	log  *slog.Logger
	done chan error
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown drains in-flight requests until ctx ends, then closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if serveErr := <-s.done; serveErr != nil && err == nil {
		err = serveErr
	}
	return err
}

func newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Lifecycle calls wait on process start; the stream endpoint sets
		// its own per-frame deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

func serve(addr string, h http.Handler, log *slog.Logger, name string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{http: newHTTPServer(h), ln: ln, log: log, done: make(chan error, 1)}
	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else if err != nil {
			log.Error("http server stopped", "server", name, "error", err)
		}
		s.done <- err
	}()
	log.Info("http server listening", "server", name, "addr", ln.Addr().String())
	return s, nil
}

// NewServer starts the API on addr.
func NewServer(addr, basePath string, mgr *mng.Manager, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	a, err := auth.New(mgr.Config().Server.Auth)
	if err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	return serve(addr, NewRouter(mgr, basePath, log).WithAuth(a).Handler(), log, "api")
}

// NewMetricsServer serves /metrics for g on its own listener.
func NewMetricsServer(addr string, g prometheus.Gatherer, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(g))
	return serve(addr, mux, log, "metrics")
}
