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

// Package agent wraps the Claude Code CLI so workflow handlers can delegate
// prompts to an installed claude binary without managing subprocesses
// themselves.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tombee/antkeeper/pkg/errors"
)

// ExecError reports a claude invocation that started but exited non-zero.
type ExecError struct {
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return fmt.Sprintf("claude exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Options configures an Agent.
type Options struct {
	// Model is passed to the CLI via --model. Empty uses the CLI's default.
	Model string

	// Dir is the working directory for the subprocess. Handlers running
	// inside an isolated worktree point this at it; empty inherits the
	// process working directory.
	Dir string

	// Timeout bounds a single prompt. Zero relies on the caller's context.
	Timeout time.Duration

	// Logger receives prompt and response activity. Handlers typically pass
	// their Runner's logger so agent activity lands in the per-run log.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Agent executes prompts by shelling out to the Claude Code CLI.
type Agent struct {
	command string // CLI command in use ("claude" or "claude-code")
	path    string // full path to the CLI binary
	model   string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Agent. The claude binary is located lazily on first use.
func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		model:   opts.Model,
		dir:     opts.Dir,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Detect checks whether the Claude Code CLI is available in the system PATH.
func (a *Agent) Detect() (bool, error) {
	for _, cmd := range []string{"claude", "claude-code"} {
		if path, err := exec.LookPath(cmd); err == nil {
			a.command = cmd
			a.path = path
			return true, nil
		}
	}
	return false, nil
}

// Prompt runs `claude -p <prompt>` and returns its stdout. A configured
// model is passed via --model. A non-zero exit yields an *ExecError carrying
// the exit code and stderr; hitting the configured timeout yields a
// *errors.TimeoutError.
func (a *Agent) Prompt(ctx context.Context, prompt string) (string, error) {
	if a.command == "" {
		if found, err := a.Detect(); !found || err != nil {
			a.logger.Error("claude binary not found")
			return "", fmt.Errorf("claude binary not found")
		}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var args []string
	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	args = append(args, "-p", prompt)

	a.logger.Info(fmt.Sprintf("LLM prompt submitted (length=%d chars)", len(prompt)))
	a.logger.Debug(fmt.Sprintf("LLM prompt content: %s", prompt))

	cmd := exec.CommandContext(ctx, a.command, args...)
	cmd.Dir = a.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		terr := &errors.TimeoutError{Operation: "claude prompt", Duration: a.timeout, Cause: ctx.Err()}
		a.logger.Error(terr.Error())
		return "", terr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr := &ExecError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
			a.logger.Error(execErr.Error())
			return "", execErr
		}
		return "", fmt.Errorf("run claude CLI: %w", err)
	}

	a.logger.Info(fmt.Sprintf("LLM response received (length=%d chars)", stdout.Len()))
	a.logger.Debug(fmt.Sprintf("LLM response content: %s", stdout.String()))
	return stdout.String(), nil
}
