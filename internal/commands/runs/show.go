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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/antkeeper/internal/commands/completion"
	"github.com/tombee/antkeeper/internal/commands/shared"
	"github.com/tombee/antkeeper/internal/jq"
	"github.com/tombee/antkeeper/pkg/errors"
)

func newShowCommand() *cobra.Command {
	var (
		query    string
		stateDir string
	)

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the state snapshot of one run",
		Long: `Print the state snapshot of one run as indented JSON.

The run is located by its 8-character run id (as printed by 'runs list' and
by every progress line). A full snapshot stem also works. With --query the
snapshot is filtered through a jq expression first:

  antkeeper runs show a1b2c3d4
  antkeeper runs show a1b2c3d4 --query '.result.summary'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cmd.OutOrStdout(), args[0], query, stateDir)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "jq expression to filter the snapshot through")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory to read state snapshots from (default from config)")

	return cmd
}

func runShow(ctx context.Context, out io.Writer, id, query, stateDir string) error {
	if stateDir == "" {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return err
		}
		stateDir = cfg.Runs.StateDir
	}

	path, err := findSnapshot(stateDir, id)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var state any
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", filepath.Base(path), err)
	}

	result, err := jq.Query(ctx, query, state)
	if err != nil {
		return shared.NewInputError(fmt.Sprintf("query %q", query), err)
	}

	rendered, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("render result: %w", err)
	}
	fmt.Fprintln(out, string(rendered))
	return nil
}

// findSnapshot locates the snapshot file for a run id. A bare id matches
// any {timestamp}-{id}.json; a full stem matches its own file. Should the
// same id ever appear twice, the newest snapshot wins.
func findSnapshot(stateDir, id string) (string, error) {
	direct := filepath.Join(stateDir, id+".json")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	matches, err := filepath.Glob(filepath.Join(stateDir, "*-"+id+".json"))
	if err != nil {
		return "", fmt.Errorf("scan state directory: %w", err)
	}
	if len(matches) == 0 {
		return "", &errors.NotFoundError{Resource: "run", ID: id}
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
