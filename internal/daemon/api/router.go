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

// Package api provides the HTTP API for the daemon: the webhook trigger,
// the chat event endpoint, and the health, version, and metrics surfaces.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/antkeeper/internal/daemon/httputil"
	"github.com/tombee/antkeeper/internal/log"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// PendingProvider reports chat messages waiting out their debounce window.
type PendingProvider interface {
	Pending() int
}

// InFlightProvider reports workflow runs currently executing.
type InFlightProvider interface {
	InFlight() int
}

// MetricsHandler serves the Prometheus metrics endpoint.
type MetricsHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Router wraps an http.ServeMux with request logging and the daemon's
// status endpoints.
type Router struct {
	mux              *http.ServeMux
	config           RouterConfig
	pendingProvider  PendingProvider
	inFlightProvider InFlightProvider
	logger           *slog.Logger
}

// NewRouter creates a new HTTP router with the status endpoints registered.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		logger: log.New(log.FromEnv()),
	}

	r.mux.HandleFunc("GET /healthz", r.handleHealth)
	r.mux.HandleFunc("GET /version", r.handleVersion)

	// Root endpoint for basic connectivity check
	r.mux.HandleFunc("GET /", r.handleRoot)

	return r
}

// SetPendingProvider sets the source of the health endpoint's pending count.
func (r *Router) SetPendingProvider(provider PendingProvider) {
	r.pendingProvider = provider
}

// SetInFlightProvider sets the source of the health endpoint's in-flight count.
func (r *Router) SetInFlightProvider(provider InFlightProvider) {
	r.inFlightProvider = provider
}

// SetMetricsHandler sets the Prometheus metrics handler.
func (r *Router) SetMetricsHandler(handler MetricsHandler) {
	if handler != nil {
		r.mux.HandleFunc("GET /metrics", handler.ServeHTTP)
	}
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	defer func() {
		r.logger.Info("request completed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}()

	r.mux.ServeHTTP(w, req)
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "antkeeperd",
		"version": r.config.Version,
	})
}

// handleHealth handles GET /healthz.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	health := map[string]any{
		"status": "ok",
	}
	if r.pendingProvider != nil {
		health["pending_messages"] = r.pendingProvider.Pending()
	}
	if r.inFlightProvider != nil {
		health["in_flight_runs"] = r.inFlightProvider.InFlight()
	}
	httputil.WriteJSON(w, http.StatusOK, health)
}

// handleVersion handles GET /version.
func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version":    r.config.Version,
		"commit":     r.config.Commit,
		"build_date": r.config.BuildDate,
	})
}
