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

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/tombee/antkeeper/internal/daemon/dispatch"
	"github.com/tombee/antkeeper/internal/daemon/httputil"
	"github.com/tombee/antkeeper/pkg/workflow"
)

const maxRequestBodySize = 1 * 1024 * 1024 // 1MB

// DrainProvider reports whether the daemon is refusing new work ahead of
// shutdown.
type DrainProvider interface {
	IsDraining() bool
}

// WebhookRequest is the POST /webhook body.
type WebhookRequest struct {
	WorkflowName string         `json:"workflow_name"`
	InitialState map[string]any `json:"initial_state"`
}

// WebhookHandler handles POST /webhook: it validates the workflow name
// synchronously, starts the run in the background, and replies with the run
// id before the handler completes.
type WebhookHandler struct {
	app    *workflow.App
	pool   *dispatch.Pool
	drain  DrainProvider
	logger *slog.Logger
}

// NewWebhookHandler creates a webhook handler. drain may be nil when the
// caller has no shutdown coordination.
func NewWebhookHandler(app *workflow.App, pool *dispatch.Pool, drain DrainProvider, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{app: app, pool: pool, drain: drain, logger: logger}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", h.handleWebhook)
}

func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.drain != nil && h.drain.IsDraining() {
		w.Header().Set("Retry-After", "10")
		httputil.WriteDetail(w, http.StatusServiceUnavailable, "daemon is shutting down gracefully")
		return
	}

	if r.ContentLength > maxRequestBodySize {
		httputil.WriteDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		httputil.WriteDetail(w, http.StatusUnprocessableEntity, "failed to read request body")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if req.WorkflowName == "" {
		httputil.WriteDetail(w, http.StatusUnprocessableEntity, "workflow_name is required")
		return
	}

	// Validate before creating the Runner so an unknown workflow leaves no
	// run artifacts behind.
	if _, err := h.app.Resolve(req.WorkflowName); err != nil {
		httputil.WriteDetail(w, http.StatusNotFound, "Unknown workflow: "+req.WorkflowName)
		return
	}

	channel := workflow.NewWebhookChannel(req.WorkflowName, workflow.State(req.InitialState))
	runner, err := workflow.NewRunner(h.app, channel)
	if err != nil {
		h.logger.Error("failed to create runner", "workflow", req.WorkflowName, "error", err)
		httputil.WriteDetail(w, http.StatusInternalServerError, "failed to start workflow run")
		return
	}

	h.logger.Info("webhook dispatched workflow",
		"run_id", runner.ID(),
		"workflow", req.WorkflowName)
	h.pool.Go(runner)

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"run_id": runner.ID()})
}
