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

// Package dispatch executes workflow Runners on a bounded background pool.
//
// The pool enforces the boundary failure policy: workflow-failed errors are
// swallowed after logging (the per-run log and the channel already carry
// them), and any other fault writes a single line to the error stream
// without crashing the daemon.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/antkeeper/internal/daemon/metrics"
	internallog "github.com/tombee/antkeeper/internal/log"
	"github.com/tombee/antkeeper/pkg/errors"
	"github.com/tombee/antkeeper/pkg/workflow"
)

// Pool runs Runners in the background with bounded concurrency.
type Pool struct {
	sem      chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Int64
	logger   *slog.Logger
	errOut   io.Writer
}

// NewPool creates a pool executing at most maxConcurrent runs at once.
// Further dispatches queue until a slot frees.
func NewPool(maxConcurrent int, logger *slog.Logger) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
		errOut: os.Stderr,
	}
}

// SetErrorOutput redirects the unexpected-fault stream. Used by tests.
func (p *Pool) SetErrorOutput(w io.Writer) {
	p.errOut = w
}

// Go schedules the runner for background execution and returns immediately.
func (p *Pool) Go(r *workflow.Runner) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		p.execute(r)
	}()
}

// InFlight returns the number of runs currently executing, excluding any
// queued behind a full pool.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Drain blocks until all in-flight and queued runs finish, or the context
// expires.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) execute(r *workflow.Runner) {
	defer r.Close()

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	kind := string(r.Channel().Kind())
	workflowName := r.WorkflowName()
	logger := internallog.WithRunContext(p.logger, r.ID(), workflowName)

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()
	metrics.RecordRunStarted(kind, workflowName)

	start := time.Now()
	defer func() {
		metrics.ObserveRunDuration(kind, time.Since(start).Seconds())
	}()

	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordRunFailed(kind, workflowName, "panic")
			fmt.Fprintf(p.errOut, "Unexpected error in workflow: %v\n", rec)
			logger.Error("workflow run panicked", "panic", rec)
		}
	}()

	_, err := r.Run(context.Background())
	switch {
	case err == nil:
		metrics.RecordRunCompleted(kind, workflowName)
	case errors.IsWorkflowFailed(err):
		metrics.RecordRunFailed(kind, workflowName, "workflow_failed")
		// Expected failure. A thread-reply channel surfaces it to the
		// user; other boundaries already logged it in the per-run log.
		if r.Channel().Kind() == workflow.KindThreadReply {
			r.Channel().ReportError(r.ID(), err.Error())
		}
		logger.Info("workflow run failed", "error", err)
	default:
		metrics.RecordRunFailed(kind, workflowName, "unexpected")
		fmt.Fprintf(p.errOut, "Unexpected error in workflow: %v\n", err)
		logger.Error("unexpected workflow fault", "error", err)
	}
}
