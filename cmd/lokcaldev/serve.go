package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/loykin/lokcaldev"
	"github.com/loykin/lokcaldev/internal/logger"
)

const shutdownTimeout = 30 * time.Second

// daemon is everything serve owns, closed in reverse order.
type daemon struct {
	mgr     *lokcaldev.Manager
	api     *lokcaldev.Server
	metrics *lokcaldev.Server
	log     *slog.Logger
	logs    io.Closer
}

func startDaemon(cfg *lokcaldev.Config, f ServeFlags) (*daemon, error) {
	lc := logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Color:      cfg.Log.Color,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	if f.LogFile != "" {
		lc.File = f.LogFile
	}
	log, logCloser := logger.New(lc)
	slog.SetDefault(log)
	d := &daemon{log: log, logs: logCloser}

	var reg *prometheus.Registry
	opts := lokcaldev.Options{Log: log}
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts.Registerer = reg
	}
	mgr, err := lokcaldev.New(cfg, opts)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	d.mgr = mgr

	if d.api, err = lokcaldev.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, mgr, log); err != nil {
		d.close(context.Background())
		return nil, fmt.Errorf("api listen %s: %w", cfg.Server.Listen, err)
	}
	if reg != nil {
		if d.metrics, err = lokcaldev.NewMetricsServer(cfg.Metrics.Listen, reg, log); err != nil {
			d.close(context.Background())
			return nil, fmt.Errorf("metrics listen %s: %w", cfg.Metrics.Listen, err)
		}
	}
	if !f.NoAuto {
		go mgr.AutoStart(context.Background())
	}
	log.Info("lokcaldev daemon ready", "data_dir", cfg.DataDir, "api", cfg.Server.Listen)
	return d, nil
}

// close stops the listeners first so no new operation arrives, then every
// service.
func (d *daemon) close(ctx context.Context) {
	var errs []error
	if d.api != nil {
		errs = append(errs, d.api.Shutdown(ctx))
	}
	if d.metrics != nil {
		errs = append(errs, d.metrics.Shutdown(ctx))
	}
	if d.mgr != nil {
		errs = append(errs, d.mgr.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		d.log.Warn("shutdown finished with errors", "error", err)
	} else {
		d.log.Info("shutdown complete")
	}
	_ = d.logs.Close()
}

func runServe(g *GlobalFlags, f ServeFlags) error {
	cfg, err := lokcaldev.LoadConfig(g.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Daemonize {
		return daemonize(f.PidFile, f.LogFile)
	}
	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}

	d, err := startDaemon(cfg, f)
	if err != nil {
		return err
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	s := <-sig
	d.log.Info("signal received, shutting down", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.close(ctx)
	return nil
}
