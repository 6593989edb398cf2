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

package handlers

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tombee/antkeeper/internal/config"
	"github.com/tombee/antkeeper/pkg/errors"
	"github.com/tombee/antkeeper/pkg/workflow"
)

func newTestApp(t *testing.T) (*workflow.App, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Runs.LogDir = filepath.Join(dir, "logs")
	cfg.Runs.StateDir = filepath.Join(dir, "state")
	cfg.Runs.WorktreeDir = filepath.Join(dir, "worktrees")

	app := workflow.New(workflow.Options{
		LogDir:      cfg.Runs.LogDir,
		StateDir:    cfg.Runs.StateDir,
		WorktreeDir: cfg.Runs.WorktreeDir,
	})
	Register(app, cfg)
	return app, cfg
}

// run executes a registered workflow through a full Runner, capturing the
// channel's progress and error output.
func run(t *testing.T, app *workflow.App, name string, initial workflow.State) (workflow.State, error, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	channel := workflow.NewLineChannel(name, initial)
	channel.SetWriters(&out, &errOut)

	runner, err := workflow.NewRunner(app, channel)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	defer runner.Close()

	state, err := runner.Run(context.Background())
	return state, err, out.String(), errOut.String()
}

// initRepo creates a git repository with a single commit. Tests needing it
// are skipped when git is not installed.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	git := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, stderr.String())
		}
	}
	git("init", "-q")
	git("config", "user.email", "test@example.com")
	git("config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	git("add", ".")
	git("commit", "-q", "-m", "initial commit")
	return dir
}

// stubAgent puts a fake claude binary on PATH that prints the given stdout.
func stubAgent(t *testing.T, stdout string) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "\nEOF\n"
	if err := os.WriteFile(filepath.Join(dir, "claude"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRegisterNames(t *testing.T) {
	app, _ := newTestApp(t)
	want := []string{"code-task", "echo", "extract-result", "fail", "greet", "prepare-worktree", "run-agent"}
	if got := app.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestEchoKeepsState(t *testing.T) {
	app, _ := newTestApp(t)

	state, err, out, _ := run(t, app, "echo", workflow.State{"prompt": "hi", "n": 3})
	if err != nil {
		t.Fatalf("echo failed: %v", err)
	}
	if state["prompt"] != "hi" {
		t.Errorf("prompt = %v, want hi", state["prompt"])
	}
	if !strings.Contains(out, "Echoing state") {
		t.Errorf("progress output = %q, want echo notice", out)
	}
}

func TestGreet(t *testing.T) {
	app, _ := newTestApp(t)

	state, err, _, _ := run(t, app, "greet", workflow.State{"prompt": "world"})
	if err != nil {
		t.Fatalf("greet failed: %v", err)
	}
	if state["greeting"] != "Hello, world!" {
		t.Errorf("greeting = %v, want %q", state["greeting"], "Hello, world!")
	}
}

func TestGreetWithoutPrompt(t *testing.T) {
	app, _ := newTestApp(t)

	state, err, _, _ := run(t, app, "greet", workflow.State{})
	if err != nil {
		t.Fatalf("greet failed: %v", err)
	}
	if state["greeting"] != "Hello!" {
		t.Errorf("greeting = %v, want %q", state["greeting"], "Hello!")
	}
}

func TestFailIsWorkflowFailed(t *testing.T) {
	app, _ := newTestApp(t)

	_, err, _, errOut := run(t, app, "fail", workflow.State{})
	if !errors.IsWorkflowFailed(err) {
		t.Fatalf("err = %v, want workflow-failed", err)
	}
	if err.Error() != "Workflow failed" {
		t.Errorf("message = %q, want %q", err.Error(), "Workflow failed")
	}
	if !strings.Contains(errOut, "simulating a failure") {
		t.Errorf("error output = %q, want simulated failure notice", errOut)
	}
}

func TestExtractResult(t *testing.T) {
	app, _ := newTestApp(t)

	state, err, _, _ := run(t, app, "extract-result", workflow.State{
		"agent_output": "Some prose.\n```json\n{\"summary\": \"done\"}\n```\n",
	})
	if err != nil {
		t.Fatalf("extract-result failed: %v", err)
	}
	result, ok := state["result"].(map[string]any)
	if !ok || result["summary"] != "done" {
		t.Errorf("result = %v, want summary done", state["result"])
	}
}

func TestExtractResultWithoutJSON(t *testing.T) {
	app, _ := newTestApp(t)

	_, err, _, _ := run(t, app, "extract-result", workflow.State{"agent_output": "no json here"})
	if !errors.IsWorkflowFailed(err) {
		t.Fatalf("err = %v, want workflow-failed", err)
	}
}

func TestRunAgentRequiresPrompt(t *testing.T) {
	app, _ := newTestApp(t)

	_, err, _, _ := run(t, app, "run-agent", workflow.State{})
	if !errors.IsWorkflowFailed(err) {
		t.Fatalf("err = %v, want workflow-failed", err)
	}
	if !strings.Contains(err.Error(), "requires a prompt") {
		t.Errorf("message = %q, want prompt requirement", err.Error())
	}
}

func TestPrepareWorktree(t *testing.T) {
	app, cfg := newTestApp(t)
	cfg.Runs.RepoDir = initRepo(t)

	state, err, _, _ := run(t, app, "prepare-worktree", workflow.State{})
	if err != nil {
		t.Fatalf("prepare-worktree failed: %v", err)
	}
	path, _ := state["worktree"].(string)
	if path == "" {
		t.Fatal("worktree path missing from state")
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Errorf("worktree %s not created: %v", path, err)
	}
}

func TestCodeTaskEndToEnd(t *testing.T) {
	app, cfg := newTestApp(t)
	cfg.Runs.RepoDir = initRepo(t)
	stubAgent(t, `All done. {"summary": "added greeting", "files_changed": ["main.go"]}`)

	state, err, out, _ := run(t, app, "code-task", workflow.State{"prompt": "add a greeting"})
	if err != nil {
		t.Fatalf("code-task failed: %v", err)
	}

	result, ok := state["result"].(map[string]any)
	if !ok || result["summary"] != "added greeting" {
		t.Errorf("result = %v, want extracted summary", state["result"])
	}
	if state["worktree"] == "" {
		t.Error("worktree path missing from final state")
	}
	for _, notice := range []string{"Preparing worktree", "Prompting agent", "Extracted agent result"} {
		if !strings.Contains(out, notice) {
			t.Errorf("progress output missing %q; got %q", notice, out)
		}
	}
}
