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
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// RunLoggerPrefix is the logger-name prefix for per-run log sinks.
// A run with id ab12cd34 logs under the name "antkeeper.run.ab12cd34".
const RunLoggerPrefix = "antkeeper.run."

// RunFileHandler is a slog.Handler that writes per-run log lines in the form
//
//	YYYY-MM-DD HH:MM:SS,mmm [LEVEL] antkeeper.run.<id> - <message>
//
// One handler is attached per run and writes only to that run's log file.
// It never forwards records to the process logger.
type RunFileHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	name    string
	level   slog.Leveler
	preAttr string
	group   string
}

// NewRunFileHandler creates a handler writing formatted lines for the named
// logger to w. Records below level are dropped.
func NewRunFileHandler(w io.Writer, name string, level slog.Leveler) *RunFileHandler {
	return &RunFileHandler{
		mu:    &sync.Mutex{},
		w:     w,
		name:  name,
		level: level,
	}
}

// NewRunLogger returns a logger named antkeeper.run.<runID> that writes every
// record at DEBUG and above to w in the per-run line format.
func NewRunLogger(w io.Writer, runID string) *slog.Logger {
	return slog.New(NewRunFileHandler(w, RunLoggerPrefix+runID, slog.LevelDebug))
}

// Enabled implements slog.Handler.
func (h *RunFileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler. All clones of a handler share one mutex so
// concurrent records interleave at line granularity.
func (h *RunFileHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, ",%03d", r.Time.Nanosecond()/1_000_000)
	sb.WriteString(" [")
	sb.WriteString(levelName(r.Level))
	sb.WriteString("] ")
	sb.WriteString(h.name)
	sb.WriteString(" - ")
	sb.WriteString(r.Message)
	sb.WriteString(h.preAttr)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&sb, h.group, a)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *RunFileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var sb strings.Builder
	for _, a := range attrs {
		appendAttr(&sb, h.group, a)
	}
	clone := *h
	clone.preAttr = h.preAttr + sb.String()
	return &clone
}

// WithGroup implements slog.Handler.
func (h *RunFileHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.group + name + "."
	return &clone
}

func appendAttr(sb *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(sb, " %s%s=%v", group, a.Key, a.Value.Resolve())
}

// levelName renders slog levels with the per-run file spelling. WARN becomes
// WARNING so lines stay greppable alongside historical run logs.
func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}
