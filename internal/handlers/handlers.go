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

// Package handlers provides the built-in workflows registered by both the
// CLI and the daemon: small demonstration handlers plus the code-task
// composition that drives an agent inside an isolated git worktree.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/tombee/antkeeper/internal/config"
	"github.com/tombee/antkeeper/internal/worktree"
	"github.com/tombee/antkeeper/pkg/agent"
	"github.com/tombee/antkeeper/pkg/workflow"
)

// resultInstructions is appended to code-task prompts so the extract step
// has a JSON object to find in the agent output.
const resultInstructions = "\n\nWhen you are done, print a JSON object " +
	`summarizing the work, e.g. {"summary": "...", "files_changed": ["..."]}.`

// Register installs the built-in workflows on app.
func Register(app *workflow.App, cfg *config.Config) {
	app.MustRegister("echo", echo)
	app.MustRegister("greet", greet)
	app.MustRegister("fail", simulateFailure)
	app.MustRegister("prepare-worktree", prepareWorktree(cfg))
	app.MustRegister("run-agent", runAgent(cfg))
	app.MustRegister("extract-result", extractResult)
	app.MustRegister("code-task", codeTask)
}

// echo returns the state unchanged. Useful for exercising a boundary end to
// end: the run id, log file, and snapshot are the observable output.
func echo(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
	r.ReportProgress("Echoing state")
	return state, nil
}

// greet adds a greeting built from the prompt.
func greet(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
	r.ReportProgress("Saying hello")
	greeting := "Hello!"
	if name := strings.TrimSpace(stringValue(state, "prompt")); name != "" {
		greeting = fmt.Sprintf("Hello, %s!", name)
	}
	return state.With("greeting", greeting), nil
}

// simulateFailure always fails. Useful for exercising each boundary's
// failure policy.
func simulateFailure(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
	r.ReportError("simulating a failure")
	return nil, r.Fail("Workflow failed")
}

// prepareWorktree creates an isolated git worktree on a fresh branch named
// after the run and records its path in the state. The worktree is left in
// place when the run finishes; the produced changes are the deliverable.
func prepareWorktree(cfg *config.Config) workflow.Handler {
	return func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		mgr := worktree.NewManager(cfg.Runs.RepoDir, r.App().WorktreeDir(), r.Logger())
		name := "run-" + r.ID()

		r.ReportProgress("Preparing worktree " + name)
		path, err := mgr.Add(ctx, name, "antkeeper/"+name)
		if err != nil {
			return nil, r.Fail("failed to create worktree: %v", err)
		}
		return state.With("worktree", path), nil
	}
}

// runAgent prompts the agent inside the run's worktree (or the repository
// root when no worktree step ran) and records the raw output.
func runAgent(cfg *config.Config) workflow.Handler {
	return func(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
		prompt := strings.TrimSpace(stringValue(state, "prompt"))
		if prompt == "" {
			return nil, r.Fail("code-task requires a prompt")
		}

		model := cfg.Agent.Model
		if m := stringValue(state, "model"); m != "" {
			model = m
		}

		a := agent.New(agent.Options{
			Model:   model,
			Dir:     stringValue(state, "worktree"),
			Timeout: cfg.Agent.Timeout,
			Logger:  r.Logger(),
		})

		r.ReportProgress("Prompting agent")
		out, err := a.Prompt(ctx, prompt+resultInstructions)
		if err != nil {
			return nil, r.Fail("agent failed: %v", err)
		}
		return state.With("agent_output", out), nil
	}
}

// extractResult parses the JSON object out of the agent output.
func extractResult(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
	result, err := agent.ExtractJSON(stringValue(state, "agent_output"))
	if err != nil {
		return nil, r.Fail("agent returned no parsable result: %v", err)
	}
	r.ReportProgress("Extracted agent result")
	return state.With("result", result), nil
}

// codeTask composes the worktree, agent, and extract steps with a snapshot
// after each, so a failed run keeps the last completed step's state.
func codeTask(ctx context.Context, r *workflow.Runner, state workflow.State) (workflow.State, error) {
	steps, err := workflow.Steps(r.App(), "prepare-worktree", "run-agent", "extract-result")
	if err != nil {
		return nil, err
	}
	return workflow.RunWorkflow(ctx, r, state, steps)
}

func stringValue(state workflow.State, key string) string {
	s, _ := state[key].(string)
	return s
}
