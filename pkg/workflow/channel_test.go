package workflow

import (
	"bytes"
	"testing"
)

func TestLineChannelKinds(t *testing.T) {
	cli := NewLineChannel("echo", State{"prompt": "hi"})
	if cli.Kind() != KindLineCLI {
		t.Errorf("Kind() = %q, want %q", cli.Kind(), KindLineCLI)
	}
	if cli.WorkflowName() != "echo" {
		t.Errorf("WorkflowName() = %q, want %q", cli.WorkflowName(), "echo")
	}
	if cli.InitialState()["prompt"] != "hi" {
		t.Errorf("InitialState() = %v, want prompt=hi", cli.InitialState())
	}

	hook := NewWebhookChannel("echo", nil)
	if hook.Kind() != KindWebhook {
		t.Errorf("Kind() = %q, want %q", hook.Kind(), KindWebhook)
	}
}

func TestLineChannelReportFormat(t *testing.T) {
	var out, errOut bytes.Buffer
	ch := NewLineChannel("greet", nil)
	ch.SetWriters(&out, &errOut)

	ch.ReportProgress("abcd1234", "halfway there")
	ch.ReportError("abcd1234", "something broke")

	if got, want := out.String(), "[greet, abcd1234] halfway there\n"; got != want {
		t.Errorf("progress output = %q, want %q", got, want)
	}
	if got, want := errOut.String(), "[greet, abcd1234] something broke\n"; got != want {
		t.Errorf("error output = %q, want %q", got, want)
	}
}
