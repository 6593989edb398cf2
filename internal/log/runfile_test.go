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

package log

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
)

var runLineRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} \[(DEBUG|INFO|WARNING|ERROR)\] antkeeper\.run\.[0-9a-f]{8} - .+$`)

func TestRunLogger_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(&buf, "ab12cd34")

	logger.Info("Workflow started: echo")

	line := strings.TrimSuffix(buf.String(), "\n")
	if !runLineRe.MatchString(line) {
		t.Errorf("line does not match per-run format: %q", line)
	}
	if !strings.HasSuffix(line, "antkeeper.run.ab12cd34 - Workflow started: echo") {
		t.Errorf("unexpected line tail: %q", line)
	}
}

func TestRunLogger_LevelNames(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "[DEBUG]"},
		{slog.LevelInfo, "[INFO]"},
		{slog.LevelWarn, "[WARNING]"},
		{slog.LevelError, "[ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewRunLogger(&buf, "ab12cd34")
			logger.Log(t.Context(), tt.level, "msg")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %s in %q", tt.want, buf.String())
			}
		})
	}
}

func TestRunLogger_DebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(&buf, "ab12cd34")

	logger.Debug("Initial state: map[]")

	if !strings.Contains(buf.String(), "[DEBUG]") {
		t.Error("per-run logger must record DEBUG lines")
	}
}

func TestRunFileHandler_Attrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(&buf, "ab12cd34")

	logger.With("step", "fetch").Info("Progress: running", slog.Int("attempt", 2))

	line := buf.String()
	if !strings.Contains(line, "step=fetch") {
		t.Errorf("expected bound attr in line: %q", line)
	}
	if !strings.Contains(line, "attempt=2") {
		t.Errorf("expected record attr in line: %q", line)
	}
}

func TestRunFileHandler_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(&buf, "ab12cd34")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Progress: concurrent write")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !runLineRe.MatchString(line) {
			t.Errorf("malformed line under concurrency: %q", line)
		}
	}
}
