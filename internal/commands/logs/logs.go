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

// Package logs implements the logs command: print or follow the append-only
// log file a run writes under the log directory.
package logs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tombee/antkeeper/internal/commands/completion"
	"github.com/tombee/antkeeper/internal/commands/shared"
	"github.com/tombee/antkeeper/pkg/errors"
)

// NewCommand creates the logs command
func NewCommand() *cobra.Command {
	var (
		follow bool
		logDir string
	)

	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print the log of one run",
		Long: `Print the log of one run.

The run is located by its 8-character run id (as printed by 'runs list' and
by every progress line). A full log file stem also works. With --follow the
command keeps the log open and streams lines as the run appends them, until
interrupted:

  antkeeper logs a1b2c3d4
  antkeeper logs a1b2c3d4 --follow`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd.Context(), cmd.OutOrStdout(), args[0], logDir, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new lines as the run appends them")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Directory to read run logs from (default from config)")

	return cmd
}

func runLogs(ctx context.Context, out io.Writer, id, logDir string, follow bool) error {
	if logDir == "" {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return err
		}
		logDir = cfg.Runs.LogDir
	}

	path, err := findLogFile(logDir, id)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	if !follow {
		if _, err := io.Copy(out, f); err != nil {
			return fmt.Errorf("read run log: %w", err)
		}
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before the initial read so a write landing in between still
	// produces an event; the carried file offset means nothing prints twice.
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch run log: %w", err)
	}

	if _, err := io.Copy(out, f); err != nil {
		return fmt.Errorf("read run log: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				if _, err := io.Copy(out, f); err != nil {
					return fmt.Errorf("read run log: %w", err)
				}
			}
			// The log is gone; there is nothing left to follow.
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch run log: %w", err)
		}
	}
}

// findLogFile locates the log file for a run id. A bare id matches any
// {timestamp}-{id}.log; a full stem matches its own file. Should the same
// id ever appear twice, the newest log wins.
func findLogFile(logDir, id string) (string, error) {
	direct := filepath.Join(logDir, id+".log")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	matches, err := filepath.Glob(filepath.Join(logDir, "*-"+id+".log"))
	if err != nil {
		return "", fmt.Errorf("scan log directory: %w", err)
	}
	if len(matches) == 0 {
		return "", &errors.NotFoundError{Resource: "run log", ID: id}
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
