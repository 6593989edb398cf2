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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/tombee/antkeeper/internal/daemon/coalescer"
	"github.com/tombee/antkeeper/internal/daemon/dispatch"
	"github.com/tombee/antkeeper/internal/slack"
	"github.com/tombee/antkeeper/pkg/workflow"
)

type eventsFixture struct {
	co  *coalescer.Coalescer
	mux *http.ServeMux
}

func newEventsFixture(t *testing.T) *eventsFixture {
	t.Helper()
	dir := t.TempDir()
	app := workflow.New(workflow.Options{
		LogDir:      filepath.Join(dir, "logs"),
		StateDir:    filepath.Join(dir, "state"),
		WorktreeDir: filepath.Join(dir, "worktrees"),
	})
	app.MustRegister("greet", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		return state, nil
	})

	// Outbound chat calls land on a stub that always succeeds.
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(chat.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	co := coalescer.New(coalescer.Config{
		App:    app,
		Pool:   dispatch.NewPool(2, logger),
		Logger: logger,
		NewClient: func(token string) (*slack.Client, error) {
			return slack.NewClient(token, slack.Options{BaseURL: chat.URL, HTTPClient: chat.Client()})
		},
	})
	t.Cleanup(co.Stop)

	mux := http.NewServeMux()
	NewEventsHandler(co, logger).RegisterRoutes(mux)
	return &eventsFixture{co: co, mux: mux}
}

func (f *eventsFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/slack_event", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func setChatEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "xoxb-test")
	t.Setenv("BOT_USER_ID", "U0BOT")
	t.Setenv("COOLDOWN_SECONDS", "300")
}

func TestURLVerification(t *testing.T) {
	// Verification must answer even with no credentials configured.
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("BOT_USER_ID", "")

	f := newEventsFixture(t)
	w := f.post(t, `{"type":"url_verification","challenge":"abc123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["challenge"] != "abc123" {
		t.Errorf("challenge = %q, want %q", resp["challenge"], "abc123")
	}
}

func TestMissingEnvironment(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		botUserID  string
		wantDetail string
	}{
		{
			name:       "both missing",
			wantDetail: "Missing required environment variables: BOT_TOKEN, BOT_USER_ID",
		},
		{
			name:       "bot user id missing",
			token:      "xoxb-test",
			wantDetail: "Missing required environment variables: BOT_USER_ID",
		},
		{
			name:       "token missing",
			botUserID:  "U0BOT",
			wantDetail: "Missing required environment variables: BOT_TOKEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BOT_TOKEN", tt.token)
			t.Setenv("BOT_USER_ID", tt.botUserID)

			f := newEventsFixture(t)
			w := f.post(t, `{"type":"event_callback","event":{"type":"app_mention","channel":"C1","ts":"1.0","text":"<@U0BOT> greet"}}`)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("Status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
			}

			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp["detail"] != tt.wantDetail {
				t.Errorf("detail = %q, want %q", resp["detail"], tt.wantDetail)
			}
		})
	}
}

func TestEventAccepted(t *testing.T) {
	setChatEnv(t)
	f := newEventsFixture(t)

	w := f.post(t, `{"type":"event_callback","event":{"type":"app_mention","channel":"C1","ts":"100.1","user":"U42","text":"<@U0BOT> greet hi"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !resp["ok"] {
		t.Errorf("ok = %v, want true", resp["ok"])
	}
	if got := f.co.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}
}

func TestMissingEventField(t *testing.T) {
	setChatEnv(t)
	f := newEventsFixture(t)

	w := f.post(t, `{"type":"event_callback"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !resp["ok"] {
		t.Errorf("ok = %v, want true", resp["ok"])
	}
	if got := f.co.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestEventInvalidJSON(t *testing.T) {
	setChatEnv(t)
	f := newEventsFixture(t)

	w := f.post(t, `{nope`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
