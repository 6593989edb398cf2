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

package runs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tombee/antkeeper/internal/commands/shared"
	"github.com/tombee/antkeeper/pkg/workflow"
)

// runInfo is one row of the list output, parsed from a snapshot file name
// and the snapshot's workflow_name key.
type runInfo struct {
	Stem     string
	ID       string
	Workflow string
	Started  time.Time
}

func newListCommand() *cobra.Command {
	var (
		globPattern string
		stateDir    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Long: `List recorded runs, newest first.

The optional --glob pattern matches against the snapshot stem (the file name
without the .json extension, e.g. 20260815181109-a1b2c3d4) and supports the
usual glob syntax plus {a,b} alternates:

  antkeeper runs list --glob '20260815*'
  antkeeper runs list --glob '*-{a1b2c3d4,ffee0011}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.OutOrStdout(), globPattern, stateDir)
		},
	}

	cmd.Flags().StringVar(&globPattern, "glob", "", "Only list runs whose snapshot stem matches this pattern")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory to read state snapshots from (default from config)")

	return cmd
}

func runList(out io.Writer, globPattern, stateDir string) error {
	if stateDir == "" {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return err
		}
		stateDir = cfg.Runs.StateDir
	}

	if globPattern != "" && !doublestar.ValidatePattern(globPattern) {
		return shared.NewInputError(fmt.Sprintf("invalid --glob pattern: %s", globPattern), nil)
	}

	infos, err := collectRuns(stateDir, globPattern)
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		if globPattern != "" {
			fmt.Fprintf(out, "No runs match %q.\n", globPattern)
		} else {
			fmt.Fprintln(out, "No recorded runs.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'antkeeper run <workflow>' to record one.")
		}
		return nil
	}

	// Table output
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tWORKFLOW\tSTARTED\tAGE")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			info.ID, info.Workflow, info.Started.Format(time.DateTime), formatAge(time.Since(info.Started)))
	}
	return w.Flush()
}

// collectRuns scans stateDir for snapshot files, keeps the stems that match
// pattern (all of them when pattern is empty), and returns them newest
// first. A missing state directory means no runs were recorded yet.
func collectRuns(stateDir, pattern string) ([]runInfo, error) {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var infos []runInfo
	for _, entry := range entries {
		name := entry.Name()
		// Hidden entries include in-progress snapshot temp files.
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")

		ts, id, ok := strings.Cut(stem, "-")
		if !ok {
			continue
		}
		started, err := time.ParseInLocation("20060102150405", ts, time.Local)
		if err != nil {
			continue
		}

		if pattern != "" {
			matched, err := doublestar.Match(pattern, stem)
			if err != nil || !matched {
				continue
			}
		}

		infos = append(infos, runInfo{
			Stem:     stem,
			ID:       id,
			Workflow: readWorkflowName(filepath.Join(stateDir, name)),
			Started:  started,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Stem > infos[j].Stem
	})
	return infos, nil
}

// readWorkflowName pulls workflow_name out of a snapshot. Unreadable or
// malformed snapshots render as "-" rather than failing the whole listing.
func readWorkflowName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "-"
	}
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return "-"
	}
	if name, ok := state[workflow.WorkflowNameKey].(string); ok && name != "" {
		return name
	}
	return "-"
}

// formatAge renders a duration in the coarsest sensible unit: 42s, 12m,
// 5h, 3d.
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
