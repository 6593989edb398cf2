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

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tombee/antkeeper/pkg/workflow"
)

func newTestApp(t *testing.T) *workflow.App {
	t.Helper()
	dir := t.TempDir()
	return workflow.New(workflow.Options{
		LogDir:      filepath.Join(dir, "logs"),
		StateDir:    filepath.Join(dir, "state"),
		WorktreeDir: filepath.Join(dir, "worktrees"),
	})
}

func newWebhookRunner(t *testing.T, app *workflow.App, name string) *workflow.Runner {
	t.Helper()
	r, err := workflow.NewRunner(app, workflow.NewWebhookChannel(name, workflow.State{}))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return r
}

func drain(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
}

func TestPoolRunsWorkflow(t *testing.T) {
	app := newTestApp(t)
	var ran atomic.Int32
	app.MustRegister("echo", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		ran.Add(1)
		return state, nil
	})

	pool := NewPool(2, nil)
	pool.SetErrorOutput(&bytes.Buffer{})
	pool.Go(newWebhookRunner(t, app, "echo"))
	drain(t, pool)

	if ran.Load() != 1 {
		t.Errorf("expected handler to run once, ran %d times", ran.Load())
	}
}

func TestPoolSwallowsWorkflowFailed(t *testing.T) {
	app := newTestApp(t)
	app.MustRegister("explode", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		return nil, r.Fail("expected failure")
	})

	var errOut bytes.Buffer
	pool := NewPool(2, nil)
	pool.SetErrorOutput(&errOut)
	pool.Go(newWebhookRunner(t, app, "explode"))
	drain(t, pool)

	// Workflow-failed is expected; nothing reaches the error stream.
	if errOut.Len() != 0 {
		t.Errorf("expected empty error stream, got %q", errOut.String())
	}
}

func TestPoolSwallowsUnknownWorkflow(t *testing.T) {
	app := newTestApp(t)

	var errOut bytes.Buffer
	pool := NewPool(2, nil)
	pool.SetErrorOutput(&errOut)
	pool.Go(newWebhookRunner(t, app, "missing"))
	drain(t, pool)

	if errOut.Len() != 0 {
		t.Errorf("expected empty error stream for unknown workflow, got %q", errOut.String())
	}
}

func TestPoolWritesUnexpectedFault(t *testing.T) {
	app := newTestApp(t)
	app.MustRegister("buggy", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		return nil, fmt.Errorf("kaboom")
	})

	var errOut bytes.Buffer
	pool := NewPool(2, nil)
	pool.SetErrorOutput(&errOut)
	pool.Go(newWebhookRunner(t, app, "buggy"))
	drain(t, pool)

	if got := errOut.String(); got != "Unexpected error in workflow: kaboom\n" {
		t.Errorf("expected single fault line, got %q", got)
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	app := newTestApp(t)
	app.MustRegister("panics", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		panic("boom")
	})
	var ran atomic.Int32
	app.MustRegister("fine", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		ran.Add(1)
		return state, nil
	})

	var errOut bytes.Buffer
	pool := NewPool(1, nil)
	pool.SetErrorOutput(&errOut)
	pool.Go(newWebhookRunner(t, app, "panics"))
	drain(t, pool)

	if !strings.Contains(errOut.String(), "Unexpected error in workflow: boom") {
		t.Errorf("expected panic to surface on error stream, got %q", errOut.String())
	}

	// The pool survives the panic and keeps dispatching.
	pool.Go(newWebhookRunner(t, app, "fine"))
	drain(t, pool)
	if ran.Load() != 1 {
		t.Error("expected pool to keep working after a panic")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	app := newTestApp(t)

	var active, peak atomic.Int32
	app.MustRegister("slow", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		active.Add(-1)
		return state, nil
	})

	pool := NewPool(2, nil)
	pool.SetErrorOutput(&bytes.Buffer{})
	for i := 0; i < 6; i++ {
		pool.Go(newWebhookRunner(t, app, "slow"))
	}
	drain(t, pool)

	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent runs, saw %d", peak.Load())
	}
}

// recordingChannel is a thread-reply channel capturing error reports.
type recordingChannel struct {
	mu     sync.Mutex
	name   string
	errors []string
}

func (c *recordingChannel) Kind() workflow.Kind          { return workflow.KindThreadReply }
func (c *recordingChannel) WorkflowName() string         { return c.name }
func (c *recordingChannel) InitialState() workflow.State { return workflow.State{} }
func (c *recordingChannel) ReportProgress(runID, message string) {}

func (c *recordingChannel) ReportError(runID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, message)
}

func (c *recordingChannel) reported() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}

func TestPoolReportsFailureOnThreadReply(t *testing.T) {
	app := newTestApp(t)
	app.MustRegister("explode", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		return nil, r.Fail("bad input")
	})

	ch := &recordingChannel{name: "explode"}
	r, err := workflow.NewRunner(app, ch)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	var errOut bytes.Buffer
	pool := NewPool(1, nil)
	pool.SetErrorOutput(&errOut)
	pool.Go(r)
	drain(t, pool)

	got := ch.reported()
	if len(got) != 1 || got[0] != "bad input" {
		t.Errorf("expected failure reported to thread channel, got %v", got)
	}
	if errOut.Len() != 0 {
		t.Errorf("expected empty error stream, got %q", errOut.String())
	}
}

func TestPoolDrainTimesOut(t *testing.T) {
	app := newTestApp(t)
	release := make(chan struct{})
	app.MustRegister("stuck", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		<-release
		return state, nil
	})

	pool := NewPool(1, nil)
	pool.SetErrorOutput(&bytes.Buffer{})
	pool.Go(newWebhookRunner(t, app, "stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.Drain(ctx); err == nil {
		t.Error("expected drain to time out while a run is stuck")
	}

	close(release)
	drain(t, pool)
}
