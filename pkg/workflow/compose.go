package workflow

import (
	"context"
	"fmt"
)

// Step pairs a handler with the name it is logged under when run as part of
// a composition.
type Step struct {
	Name    string
	Handler Handler
}

// Steps resolves names against the app's registry and returns them as an
// ordered step list for RunWorkflow.
func Steps(app *App, names ...string) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		h, err := app.Resolve(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Name: name, Handler: h})
	}
	return steps, nil
}

// RunWorkflow applies steps to state left to right, snapshotting the state
// after each step. If a step fails the fold stops and the error is returned;
// the last written snapshot remains on disk as the recoverable artifact.
//
// Composition is plain function application: a handler built on RunWorkflow
// is registered like any other handler, and steps may themselves be
// registered workflows.
func RunWorkflow(ctx context.Context, r *Runner, state State, steps []Step) (State, error) {
	for _, step := range steps {
		r.logger.Info(fmt.Sprintf("Executing step: %s", step.Name))
		next, err := step.Handler(ctx, r, state)
		if err != nil {
			return nil, err
		}
		state = next
		if err := r.snapshot(state); err != nil {
			return nil, err
		}
		r.logger.Debug(fmt.Sprintf("Step completed: %s, state keys: %v", step.Name, state.Keys()))
	}
	return state, nil
}
