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

package completion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/antkeeper/internal/commands/shared"
	"github.com/tombee/antkeeper/internal/config"
	"github.com/tombee/antkeeper/internal/handlers"
	"github.com/tombee/antkeeper/pkg/workflow"
)

// CompleteWorkflowNames provides dynamic completion for registered workflow
// names, for 'antkeeper run <TAB>'.
func CompleteWorkflowNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		cfg, err := shared.LoadConfig()
		if err != nil {
			cfg = config.Default()
		}

		app := workflow.New(workflow.Options{
			LogDir:      cfg.Runs.LogDir,
			StateDir:    cfg.Runs.StateDir,
			WorktreeDir: cfg.Runs.WorktreeDir,
		})
		handlers.Register(app, cfg)

		return app.Names(), cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteRunIDs provides dynamic completion for recorded run ids, for
// 'antkeeper runs show <TAB>' and 'antkeeper logs <TAB>'. Run ids are read
// from the snapshot stems in the state directory, newest first, with the
// workflow name as the description.
func CompleteRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		stateDir := ""
		if f := cmd.Flags().Lookup("state-dir"); f != nil {
			stateDir = f.Value.String()
		}
		if stateDir == "" {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			stateDir = cfg.Runs.StateDir
		}

		entries, err := os.ReadDir(stateDir)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		stems := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
				continue
			}
			stems = append(stems, strings.TrimSuffix(name, ".json"))
		}
		// Stems start with the run timestamp, so reverse order is newest first.
		sort.Sort(sort.Reverse(sort.StringSlice(stems)))

		completions := make([]string, 0, len(stems))
		for _, stem := range stems {
			_, id, ok := strings.Cut(stem, "-")
			if !ok {
				continue
			}
			if name := snapshotWorkflowName(filepath.Join(stateDir, stem+".json")); name != "" {
				completions = append(completions, id+"\t"+name)
			} else {
				completions = append(completions, id)
			}
		}

		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

// snapshotWorkflowName pulls workflow_name out of a snapshot, or "" if the
// file cannot be read.
func snapshotWorkflowName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return ""
	}
	name, _ := state[workflow.WorkflowNameKey].(string)
	return name
}

// SafeCompletionWrapper wraps completion functions with panic recovery.
// A completion that panics must degrade to no suggestions, never break the
// user's shell.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	// Set defaults for panic recovery
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			// Panic recovery - return empty completion (already set above)
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	// Execute the completion function
	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}
