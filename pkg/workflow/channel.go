package workflow

import (
	"fmt"
	"io"
	"os"
)

// Kind tags the I/O boundary a Channel speaks for.
type Kind string

const (
	// KindLineCLI is the command-line boundary: progress on stdout, errors
	// on stderr.
	KindLineCLI Kind = "line-cli"
	// KindWebhook is the HTTP trigger boundary: progress and errors land on
	// the server's output streams.
	KindWebhook Kind = "webhook"
	// KindThreadReply is the chat boundary: progress and errors are posted
	// back into the originating thread.
	KindThreadReply Kind = "thread-reply"
)

// Channel is the polymorphic I/O boundary of a run. It names the workflow,
// carries the initial state, and receives progress and error reports keyed
// by run id. Report methods must never fail the run: boundary I/O faults are
// the channel's own problem to log and swallow.
type Channel interface {
	Kind() Kind
	WorkflowName() string
	InitialState() State
	ReportProgress(runID, message string)
	ReportError(runID, message string)
}

// LineChannel reports progress and errors as prefixed lines on a pair of
// writers. It backs both the line-cli and webhook boundaries, which differ
// only in their kind tag: for webhook runs the lines land in the server's
// output streams instead of a user's terminal.
type LineChannel struct {
	kind     Kind
	workflow string
	initial  State
	out      io.Writer
	errOut   io.Writer
}

// NewLineChannel returns a line-cli channel writing progress to stdout and
// errors to stderr.
func NewLineChannel(workflow string, initial State) *LineChannel {
	return &LineChannel{
		kind:     KindLineCLI,
		workflow: workflow,
		initial:  initial,
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
}

// NewWebhookChannel returns a webhook channel. Output formatting is shared
// with the line-cli boundary.
func NewWebhookChannel(workflow string, initial State) *LineChannel {
	ch := NewLineChannel(workflow, initial)
	ch.kind = KindWebhook
	return ch
}

// SetWriters redirects progress and error output. Tests use this to capture
// boundary output.
func (c *LineChannel) SetWriters(out, errOut io.Writer) {
	c.out = out
	c.errOut = errOut
}

// Kind implements Channel.
func (c *LineChannel) Kind() Kind { return c.kind }

// WorkflowName implements Channel.
func (c *LineChannel) WorkflowName() string { return c.workflow }

// InitialState implements Channel.
func (c *LineChannel) InitialState() State { return c.initial }

// ReportProgress writes "[<workflow>, <run_id>] <message>" to the progress
// writer.
func (c *LineChannel) ReportProgress(runID, message string) {
	fmt.Fprintf(c.out, "[%s, %s] %s\n", c.workflow, runID, message)
}

// ReportError writes the same line shape to the error writer.
func (c *LineChannel) ReportError(runID, message string) {
	fmt.Fprintf(c.errOut, "[%s, %s] %s\n", c.workflow, runID, message)
}
