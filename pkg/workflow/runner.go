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

package workflow

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/antkeeper/internal/log"
	"github.com/tombee/antkeeper/pkg/errors"
)

// Runner owns the context of a single workflow run: its eight-hex-digit id,
// its per-run log file and state snapshot path, and the channel it reports
// through. Each event or invocation gets a fresh Runner; instances are not
// reused across runs.
type Runner struct {
	id       string
	app      *App
	channel  Channel
	logger   *slog.Logger
	logPath  string
	logFile  *os.File
	statPath string

	closeOnce sync.Once
	closeErr  error
}

// NewRunner creates the run context for one workflow execution. It derives
// the run id and the shared file stem, creates the log and state directories
// as needed, and opens the per-run log file. The state snapshot path is
// recorded but not created until Run. The caller should defer Close.
func NewRunner(app *App, channel Channel) (*Runner, error) {
	id := newRunID()
	stem := fmt.Sprintf("%s-%s", time.Now().Format("20060102150405"), id)

	if err := os.MkdirAll(app.LogDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := os.MkdirAll(app.StateDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	logPath := filepath.Join(app.LogDir(), stem+".log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log file: %w", err)
	}

	r := &Runner{
		id:       id,
		app:      app,
		channel:  channel,
		logger:   log.NewRunLogger(f, id),
		logPath:  logPath,
		logFile:  f,
		statPath: filepath.Join(app.StateDir(), stem+".json"),
	}

	r.logger.Info(fmt.Sprintf("Runner initialized: run_id=%s, workflow=%s", id, channel.WorkflowName()))
	r.logger.Debug(fmt.Sprintf("Log file: %s", logPath))
	r.logger.Debug(fmt.Sprintf("Channel kind: %s", channel.Kind()))
	return r, nil
}

// newRunID returns eight lowercase hex digits from a fresh UUID.
func newRunID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:4])
}

// ID returns the run id.
func (r *Runner) ID() string { return r.id }

// App returns the registry this run resolves workflows against.
func (r *Runner) App() *App { return r.app }

// WorkflowName returns the name of the workflow this run executes.
func (r *Runner) WorkflowName() string { return r.channel.WorkflowName() }

// Channel returns the channel that triggered this run.
func (r *Runner) Channel() Channel { return r.channel }

// Logger returns the per-run logger backed by the run's log file.
func (r *Runner) Logger() *slog.Logger { return r.logger }

// LogPath returns the path of the per-run log file.
func (r *Runner) LogPath() string { return r.logPath }

// StatePath returns the path of the per-run state snapshot.
func (r *Runner) StatePath() string { return r.statPath }

// Run executes the workflow named by the channel. It assembles the initial
// state from the channel with the reserved run_id and workflow_name keys set
// on top, snapshots it, resolves and invokes the handler, snapshots the
// returned state, and returns it.
//
// An unknown workflow name yields a *errors.WorkflowError. Handler errors
// are logged and returned as-is; the boundary that started the run decides
// how to render them. Snapshot failures (a value in the state that cannot be
// serialized) propagate as ordinary errors.
func (r *Runner) Run(ctx context.Context) (State, error) {
	name := r.channel.WorkflowName()

	state := r.channel.InitialState().Clone()
	state[RunIDKey] = r.id
	state[WorkflowNameKey] = name
	if err := r.snapshot(state); err != nil {
		return nil, err
	}

	r.logger.Info(fmt.Sprintf("Workflow started: %s", name))
	r.logger.Debug(fmt.Sprintf("Initial state: %v", state))

	handler, err := r.app.Resolve(name)
	if err != nil {
		werr := &errors.WorkflowError{
			Message: fmt.Sprintf("Unknown workflow: %s", name),
			Cause:   err,
		}
		r.logger.Error(fmt.Sprintf("Workflow failed: %s - %s", name, werr.Message))
		return nil, werr
	}

	state, err = handler(ctx, r, state)
	if err != nil {
		r.logger.Error(fmt.Sprintf("Workflow failed: %s - %s", name, err))
		return nil, err
	}

	if err := r.snapshot(state); err != nil {
		return nil, err
	}
	r.logger.Info(fmt.Sprintf("Workflow completed: %s", name))
	r.logger.Debug(fmt.Sprintf("Final state: %v", state))
	return state, nil
}

// snapshot writes state to the run's snapshot path atomically.
func (r *Runner) snapshot(state State) error {
	return writeSnapshot(r.statPath, state)
}

// ReportProgress logs a progress message and forwards it to the channel.
// Handlers call this to surface intermediate results to the triggering
// boundary.
func (r *Runner) ReportProgress(message string) {
	r.logger.Info(fmt.Sprintf("Progress: %s", message))
	r.channel.ReportProgress(r.id, message)
}

// ReportError logs a non-fatal error message and forwards it to the
// channel. The run keeps going.
func (r *Runner) ReportError(message string) {
	r.logger.Error(fmt.Sprintf("Error reported: %s", message))
	r.channel.ReportError(r.id, message)
}

// Fail records a fatal error and returns a *WorkflowError for the handler
// to return, ending the run:
//
//	if res.Output == "" {
//	    return nil, r.Fail("agent produced no output")
//	}
func (r *Runner) Fail(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	r.logger.Error(fmt.Sprintf("Workflow fatal error: %s", msg))
	return &errors.WorkflowError{Message: msg}
}

// Close releases the run's log file. Safe to call more than once.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		if r.logFile != nil {
			r.closeErr = r.logFile.Close()
		}
	})
	return r.closeErr
}
