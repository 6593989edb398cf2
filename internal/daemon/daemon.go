// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package daemon assembles and runs antkeeperd: one HTTP server exposing
// the webhook and chat-event boundaries over a shared workflow App and a
// bounded dispatch pool.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/antkeeper/internal/config"
	"github.com/tombee/antkeeper/internal/daemon/api"
	"github.com/tombee/antkeeper/internal/daemon/coalescer"
	"github.com/tombee/antkeeper/internal/daemon/dispatch"
	"github.com/tombee/antkeeper/internal/daemon/metrics"
	"github.com/tombee/antkeeper/internal/handlers"
	internallog "github.com/tombee/antkeeper/internal/log"
	"github.com/tombee/antkeeper/pkg/workflow"
)

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the main antkeeperd daemon.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	app       *workflow.App
	pool      *dispatch.Pool
	coalescer *coalescer.Coalescer

	server   *http.Server
	ln       net.Listener
	draining atomic.Bool

	mu      sync.Mutex
	started bool
}

// New creates a daemon instance. The workflow App is populated with the
// built-in handlers; the dispatch pool and event coalescer are created but
// idle until Start.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logCfg := internallog.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = internallog.Format(cfg.Log.Format)
	base := internallog.New(logCfg)
	logger := internallog.WithComponent(base, "daemon")

	app := workflow.New(workflow.Options{
		LogDir:      cfg.Runs.LogDir,
		StateDir:    cfg.Runs.StateDir,
		WorktreeDir: cfg.Runs.WorktreeDir,
	})
	handlers.Register(app, cfg)

	pool := dispatch.NewPool(cfg.Server.MaxConcurrentRuns,
		internallog.WithComponent(base, "dispatch"))

	co := coalescer.New(coalescer.Config{
		App:    app,
		Pool:   pool,
		Logger: internallog.WithComponent(base, "coalescer"),
	})

	return &Daemon{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		app:       app,
		pool:      pool,
		coalescer: co,
	}, nil
}

// IsDraining reports whether shutdown has begun. The webhook boundary
// rejects new dispatches while draining.
func (d *Daemon) IsDraining() bool {
	return d.draining.Load()
}

// Start starts the daemon and blocks until the context is cancelled or the
// server fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	router := api.NewRouter(api.RouterConfig{
		Version:   d.opts.Version,
		Commit:    d.opts.Commit,
		BuildDate: d.opts.BuildDate,
	})

	webhookHandler := api.NewWebhookHandler(d.app, d.pool, d,
		internallog.WithComponent(d.logger, "webhook"))
	webhookHandler.RegisterRoutes(router.Mux())

	eventsHandler := api.NewEventsHandler(d.coalescer,
		internallog.WithComponent(d.logger, "slack-events"))
	eventsHandler.RegisterRoutes(router.Mux())

	// Wire up the health endpoint's counters and the metrics endpoint.
	router.SetPendingProvider(d.coalescer)
	router.SetInFlightProvider(d.pool)
	router.SetMetricsHandler(metrics.Handler())

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", d.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Server.Listen, err)
	}

	d.mu.Lock()
	d.ln = ln
	d.server = server
	d.mu.Unlock()

	d.logger.Info("antkeeperd starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()),
		slog.Int("max_concurrent_runs", d.cfg.Server.MaxConcurrentRuns))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the listener address once Start has bound it. Useful when
// the configured listen address uses port 0.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Shutdown gracefully shuts down the daemon: stop accepting dispatches,
// cancel pending chat debounces, and wait out in-flight runs up to the
// configured shutdown timeout.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.draining.Store(true)
	d.logger.Info("graceful shutdown initiated",
		slog.Int("in_flight_runs", d.pool.InFlight()),
		slog.Int("pending_messages", d.coalescer.Pending()))

	// Stop accepting new connections (disable keep-alive)
	if d.server != nil {
		d.server.SetKeepAlivesEnabled(false)
	}

	// Cancel pending debounce timers. Their mentions were acknowledged but
	// will not dispatch; senders can re-mention after restart.
	d.coalescer.Stop()

	drainCtx, drainCancel := context.WithTimeout(ctx, d.cfg.Server.ShutdownTimeout)
	defer drainCancel()

	if err := d.pool.Drain(drainCtx); err != nil {
		d.logger.Warn("drain timeout exceeded",
			slog.Int("remaining_runs", d.pool.InFlight()),
			slog.Duration("shutdown_timeout", d.cfg.Server.ShutdownTimeout))
	} else {
		d.logger.Info("all runs completed during drain")
	}

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("HTTP server shutdown error",
				internallog.Error(err))
		}
	}

	d.started = false
	d.logger.Info("daemon stopped")
	return nil
}
