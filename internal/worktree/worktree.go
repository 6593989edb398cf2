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

// Package worktree creates and removes git worktrees for isolated workflow
// execution. Worktree paths are handed to callers as values and the process
// working directory is never changed, so parallel handlers stay sound.
package worktree

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Error reports a failed git worktree operation.
type Error struct {
	Op     string // git worktree subcommand, "add" or "remove"
	Path   string
	Stderr string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("git worktree %s failed for %s: %s", e.Op, e.Path, e.Stderr)
}

// Manager wraps git worktree subprocess calls for a single repository.
type Manager struct {
	repoDir string
	baseDir string
	logger  *slog.Logger
}

// NewManager creates a Manager that runs git inside repoDir and places
// worktrees under baseDir. An empty repoDir uses the process working
// directory. A nil logger falls back to slog.Default(); handlers usually
// pass their Runner's logger so worktree activity lands in the per-run log.
func NewManager(repoDir, baseDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repoDir: repoDir,
		baseDir: baseDir,
		logger:  logger,
	}
}

// Path returns the absolute path a worktree of the given name occupies.
func (m *Manager) Path(name string) string {
	path := filepath.Join(m.baseDir, name)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// Exists reports whether the worktree directory is present on disk.
func (m *Manager) Exists(name string) bool {
	info, err := os.Stat(m.Path(name))
	return err == nil && info.IsDir()
}

// Add creates a worktree via `git worktree add` and returns its absolute
// path. A non-empty branch creates a new branch for the worktree; otherwise
// git derives one from the worktree name at the current HEAD.
func (m *Manager) Add(ctx context.Context, name, branch string) (string, error) {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create worktree base directory: %w", err)
	}
	path := m.Path(name)

	args := []string{"worktree", "add"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, path)

	if err := m.git(ctx, "add", path, args); err != nil {
		return "", err
	}
	m.logger.Info(fmt.Sprintf("Worktree created: %s", path))
	return path, nil
}

// Remove deletes the worktree via `git worktree remove`.
func (m *Manager) Remove(ctx context.Context, name string) error {
	path := m.Path(name)
	if err := m.git(ctx, "remove", path, []string{"worktree", "remove", path}); err != nil {
		return err
	}
	m.logger.Info(fmt.Sprintf("Worktree removed: %s", path))
	return nil
}

// Using creates a worktree, invokes fn with its absolute path, and removes
// the worktree when fn returns. If fn fails its error wins and a removal
// failure is only logged; if fn succeeds a removal failure is returned.
func (m *Manager) Using(ctx context.Context, name, branch string, fn func(dir string) error) error {
	path, err := m.Add(ctx, name, branch)
	if err != nil {
		return err
	}

	fnErr := fn(path)
	if rmErr := m.Remove(ctx, name); rmErr != nil {
		if fnErr != nil {
			m.logger.Warn(fmt.Sprintf("Worktree cleanup failed: %s", rmErr))
			return fnErr
		}
		return rmErr
	}
	return fnErr
}

// git runs a git invocation in the repository directory, converting a
// non-zero exit into an *Error carrying stderr.
func (m *Manager) git(ctx context.Context, op, path string, args []string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return &Error{Op: op, Path: path, Stderr: msg}
		}
		return fmt.Errorf("run git: %w", err)
	}
	return nil
}
