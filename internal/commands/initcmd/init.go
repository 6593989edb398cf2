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

// Package initcmd implements the init command: scaffold a commented starter
// antkeeper.yaml so a new project starts from documented defaults.
package initcmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/antkeeper/internal/commands/shared"
)

// configTemplate is the scaffolded antkeeper.yaml. Every value shown is the
// default, so the file loads to the same configuration as no file at all.
const configTemplate = `# Antkeeper configuration. Every value shown is the default; delete anything
# you do not need to change. Environment variables (ANTKEEPER_LISTEN,
# LOG_LEVEL, ...) override file settings.

server:
  # Address the daemon binds.
  listen: 127.0.0.1:8000
  # Workflow dispatches executing at once; further dispatches queue.
  max_concurrent_runs: 4
  # How long graceful shutdown waits for in-flight runs.
  shutdown_timeout: 10s

log:
  # Daemon process logging. Per-run log files are separate and always written.
  level: info   # debug, info, warn, error
  format: text  # text, json

runs:
  # One append-only log file per run.
  log_dir: logs
  # One JSON state snapshot per run.
  state_dir: state
  # Isolated git worktrees for agent steps.
  worktree_dir: worktrees
  # Repository the worktrees are created from.
  repo_dir: .

# agent:
#   # Model passed to the coding agent CLI; empty uses the CLI default.
#   model: sonnet
#   # Bound on a single agent prompt. Zero means no limit.
#   timeout: 10m
`

// NewCommand creates the init command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter antkeeper.yaml",
		Long: `Write a commented starter antkeeper.yaml into a directory (default: the
current directory).

The file documents every setting with its default value. If it already
exists, init asks before overwriting; when stdin is not a terminal it
refuses instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd.OutOrStdout(), dir)
		},
	}

	return cmd
}

func runInit(out io.Writer, dir string) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}

	target := filepath.Join(dir, shared.DefaultConfigFile)
	if _, err := os.Stat(target); err == nil {
		overwrite, err := confirmOverwrite(target)
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("Kept existing %s.", target)))
			return nil
		}
	}

	if err := os.WriteFile(target, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", shared.DefaultConfigFile, err)
	}

	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Created %s in %s", shared.DefaultConfigFile, dir)))
	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.Bold.Render("Run your first workflow:"))
	fmt.Fprintln(out, "  antkeeper run greet")
	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.Bold.Render("Start the daemon:"))
	fmt.Fprintln(out, "  antkeeperd -config "+shared.DefaultConfigFile)
	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.Bold.Render("Environment variables read by the daemon:"))
	fmt.Fprintln(out, "  BOT_TOKEN         "+shared.Muted.Render("Chat bot OAuth token (enables the chat channel)"))
	fmt.Fprintln(out, "  BOT_USER_ID       "+shared.Muted.Render("The bot's own user id (self-mention filter)"))
	fmt.Fprintln(out, "  COOLDOWN_SECONDS  "+shared.Muted.Render("Mention debounce window in seconds (default: 30)"))
	return nil
}

// confirmOverwrite asks before clobbering an existing config. Without a
// terminal on stdin there is nobody to ask, so the answer is no.
func confirmOverwrite(target string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("%s already exists", target)
	}

	var overwrite bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Overwrite %s?", shared.DefaultConfigFile)).
				Description(target + " already exists.").
				Affirmative("Yes, overwrite").
				Negative("No, keep it").
				Value(&overwrite),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return overwrite, nil
}
