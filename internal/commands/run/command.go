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

package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/antkeeper/internal/commands/completion"
	"github.com/tombee/antkeeper/internal/commands/shared"
	"github.com/tombee/antkeeper/internal/handlers"
	"github.com/tombee/antkeeper/pkg/workflow"
)

// options collects everything execute needs, resolved from flags and args.
type options struct {
	workflow     string
	promptFiles  []string
	stateEntries []string
	model        string
	logDir       string
	stateDir     string
	worktreeDir  string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		stateEntries []string
		model        string
		logDir       string
		stateDir     string
		worktreeDir  string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow> [prompt-file...]",
		Short: "Run a workflow and print its final state",
		Long: `Run executes a registered workflow through the line-oriented boundary.

The prompt is assembled from the positional files, concatenated in the
order given; with no files, stdin is read when it is not a terminal.
Progress reports stream to stdout as the handler executes, and the final
state is printed as JSON when the run completes.

Examples:
  antkeeper run greet                          # no prompt
  echo "Dot" | antkeeper run greet             # prompt from stdin
  antkeeper run code-task task.md context.md   # prompt from files
  antkeeper run echo --initial-state branch=main --initial-state dry=yes`,
		Args: cobra.MinimumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return completion.CompleteWorkflowNames(cmd, args, toComplete)
			}
			// Later arguments are prompt files.
			return nil, cobra.ShellCompDirectiveDefault
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), options{
				workflow:     args[0],
				promptFiles:  args[1:],
				stateEntries: stateEntries,
				model:        model,
				logDir:       logDir,
				stateDir:     stateDir,
				worktreeDir:  worktreeDir,
				stdin:        cmd.InOrStdin(),
				stdout:       cmd.OutOrStdout(),
				stderr:       cmd.ErrOrStderr(),
			})
		},
	}

	cmd.Flags().StringArrayVar(&stateEntries, "initial-state", nil, "Initial state entry as key=value (repeatable)")
	cmd.Flags().StringVar(&model, "model", "", "Model recorded in initial state for agent steps")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Per-run log directory (overrides config)")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "State snapshot directory (overrides config)")
	cmd.Flags().StringVar(&worktreeDir, "worktree-dir", "", "Git worktree directory (overrides config)")

	return cmd
}

func execute(ctx context.Context, opts options) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	if opts.logDir != "" {
		cfg.Runs.LogDir = opts.logDir
	}
	if opts.stateDir != "" {
		cfg.Runs.StateDir = opts.stateDir
	}
	if opts.worktreeDir != "" {
		cfg.Runs.WorktreeDir = opts.worktreeDir
	}

	initial, err := parseStateEntries(opts.stateEntries)
	if err != nil {
		return err
	}

	// Prompt sources override an --initial-state prompt entry.
	prompt, havePrompt, err := readPrompt(opts.promptFiles, opts.stdin)
	if err != nil {
		return shared.NewInputError("reading prompt", err)
	}
	if havePrompt {
		initial["prompt"] = prompt
	}
	if opts.model != "" {
		initial["model"] = opts.model
	}

	app := workflow.New(workflow.Options{
		LogDir:      cfg.Runs.LogDir,
		StateDir:    cfg.Runs.StateDir,
		WorktreeDir: cfg.Runs.WorktreeDir,
	})
	handlers.Register(app, cfg)

	channel := workflow.NewLineChannel(opts.workflow, initial)
	if shared.GetQuiet() {
		channel.SetWriters(io.Discard, opts.stderr)
	} else {
		channel.SetWriters(opts.stdout, opts.stderr)
	}

	runner, err := workflow.NewRunner(app, channel)
	if err != nil {
		return err
	}
	defer runner.Close()

	final, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if shared.GetVerbose() {
		fmt.Fprintf(opts.stderr, "run %s: log %s, state %s\n",
			runner.ID(), runner.LogPath(), runner.StatePath())
	}

	out, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(opts.stdout, string(out))
	return nil
}

// parseStateEntries turns repeated key=value flags into string state entries.
func parseStateEntries(entries []string) (workflow.State, error) {
	state := workflow.State{}
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, shared.NewInputError(
				fmt.Sprintf("invalid --initial-state value (expected key=val): %s", entry), nil)
		}
		state[key] = value
	}
	return state, nil
}

// readPrompt assembles the prompt from the positional files, or from stdin
// when no files are given and stdin is not an interactive terminal. The
// second return value reports whether any prompt source was present.
func readPrompt(files []string, stdin io.Reader) (string, bool, error) {
	if len(files) > 0 {
		var sb strings.Builder
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", false, err
			}
			sb.Write(data)
		}
		return sb.String(), true, nil
	}

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", false, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
