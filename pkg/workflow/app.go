// Package workflow is the antkeeper execution engine. It binds named handler
// functions to an I/O boundary (a Channel), drives them under a uniquely
// identified execution context (a Runner), and durably records state
// snapshots between steps.
//
// Typical usage:
//
//	app := workflow.New(workflow.Options{})
//	app.MustRegister("greet", func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
//		r.ReportProgress("Saying hello")
//		return state.With("greeting", "hello"), nil
//	})
//
//	channel := workflow.NewLineChannel("greet", workflow.State{"prompt": "hi"})
//	runner, err := workflow.NewRunner(app, channel)
//	if err != nil {
//		return err
//	}
//	defer runner.Close()
//	final, err := runner.Run(ctx)
package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/tombee/antkeeper/pkg/errors"
)

// Handler is a registered workflow function. It receives the Runner for
// reporting and logging, and the current State; it returns the next State.
// A handler signals an expected, unrecoverable failure by returning the
// error from Runner.Fail. Any other non-nil error is treated as a bug by
// the boundary that started the run.
type Handler func(ctx context.Context, r *Runner, state State) (State, error)

// Options configures the directories an App uses for per-run artifacts.
// Zero values fall back to relative defaults.
type Options struct {
	// LogDir receives one append-only log file per run. Default "logs".
	LogDir string
	// StateDir receives one JSON state snapshot per run. Default "state".
	StateDir string
	// WorktreeDir is where isolated git worktrees are created for handlers
	// that want them. Default "worktrees".
	WorktreeDir string
}

// App is the process-scoped handler registry. It maps workflow names to
// handler functions and carries the directory configuration shared by every
// Runner built from it. A single App is typically shared by all boundaries
// (CLI, webhook, chat) in a process.
type App struct {
	logDir      string
	stateDir    string
	worktreeDir string

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an App with the given directory options.
func New(opts Options) *App {
	if opts.LogDir == "" {
		opts.LogDir = "logs"
	}
	if opts.StateDir == "" {
		opts.StateDir = "state"
	}
	if opts.WorktreeDir == "" {
		opts.WorktreeDir = "worktrees"
	}
	return &App{
		logDir:      opts.LogDir,
		stateDir:    opts.StateDir,
		worktreeDir: opts.WorktreeDir,
		handlers:    make(map[string]Handler),
	}
}

// Register inserts a handler under name. Registering a name twice is a
// conflict and returns a ValidationError; the original handler is kept.
func (a *App) Register(name string, h Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.handlers[name]; exists {
		return &errors.ValidationError{Field: name, Message: "handler already registered"}
	}
	a.handlers[name] = h
	return nil
}

// MustRegister is Register for wiring at startup; it panics on conflict.
func (a *App) MustRegister(name string, h Handler) {
	if err := a.Register(name, h); err != nil {
		panic(err)
	}
}

// Resolve returns the handler registered under name, or a NotFoundError.
func (a *App) Resolve(name string) (Handler, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.handlers[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: name}
	}
	return h, nil
}

// Names returns the registered workflow names in sorted order.
func (a *App) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.handlers))
	for name := range a.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogDir returns the directory for per-run log files.
func (a *App) LogDir() string { return a.logDir }

// StateDir returns the directory for per-run state snapshots.
func (a *App) StateDir() string { return a.stateDir }

// WorktreeDir returns the directory for isolated git worktrees.
func (a *App) WorktreeDir() string { return a.worktreeDir }
