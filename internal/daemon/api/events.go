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
	"strings"

	"github.com/tombee/antkeeper/internal/daemon/coalescer"
	"github.com/tombee/antkeeper/internal/daemon/httputil"
	"github.com/tombee/antkeeper/internal/slack"
)

// EventsHandler handles POST /slack_event: the URL verification handshake,
// the ambient credential check, and delivery into the coalescer.
type EventsHandler struct {
	coalescer *coalescer.Coalescer
	logger    *slog.Logger
}

// NewEventsHandler creates a chat events handler.
func NewEventsHandler(co *coalescer.Coalescer, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{coalescer: co, logger: logger}
}

// RegisterRoutes registers the chat event endpoint.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /slack_event", h.handleEvent)
}

func (h *EventsHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		httputil.WriteDetail(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var envelope slack.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		httputil.WriteDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The subscription handshake answers before any credential check so a
	// half-configured deployment can still complete Slack's verification.
	if envelope.Type == "url_verification" {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"challenge": envelope.Challenge})
		return
	}

	// Credentials are read per event, not cached at startup.
	env, missing := coalescer.EnvFromOS()
	if len(missing) > 0 {
		httputil.WriteDetail(w, http.StatusUnprocessableEntity,
			"Missing required environment variables: "+strings.Join(missing, ", "))
		return
	}

	if envelope.Event == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	outcome := h.coalescer.Process(r.Context(), env, envelope.Event)
	h.logger.Debug("chat event processed",
		"outcome", string(outcome),
		"channel", envelope.Event.Channel,
		"ts", envelope.Event.TS)

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
