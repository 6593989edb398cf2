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

// Package runs implements the runs command group for inspecting recorded
// workflow runs. Every run leaves one state snapshot named
// {timestamp}-{run-id}.json in the state directory; list and show read
// those snapshots back.
package runs

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the runs command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded workflow runs",
		Long: `Inspect the state snapshots recorded by past workflow runs.

Each run writes a snapshot of its final state (or its initial state, if the
run failed before completing) to the state directory. Use 'runs list' to see
what is recorded and 'runs show' to print one snapshot.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())

	return cmd
}
