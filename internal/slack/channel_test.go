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

package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/antkeeper/pkg/workflow"
)

func TestThreadChannelReportProgress(t *testing.T) {
	f := newFakeSlack(t)
	client := newTestClient(t, f)

	ch := NewThreadChannel(client, "deploy", workflow.State{}, "C42", "111.222", nil)
	ch.ReportProgress("abcd1234", "halfway there")

	calls := f.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/chat.postMessage", calls[0].path)
	assert.Equal(t, "C42", calls[0].body["channel"])
	assert.Equal(t, "111.222", calls[0].body["thread_ts"])
	assert.Equal(t, "[deploy, abcd1234] halfway there", calls[0].body["text"])
}

func TestThreadChannelReportError(t *testing.T) {
	f := newFakeSlack(t)
	client := newTestClient(t, f)

	ch := NewThreadChannel(client, "deploy", workflow.State{}, "C42", "111.222", nil)
	ch.ReportError("abcd1234", "boom")

	calls := f.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "[deploy, abcd1234] [ERROR] boom", calls[0].body["text"])
}

func TestThreadChannelSwallowsPostFailure(t *testing.T) {
	f := newFakeSlack(t)
	f.respond("/chat.postMessage", `{"ok":false,"error":"channel_not_found"}`)
	client := newTestClient(t, f)

	ch := NewThreadChannel(client, "deploy", workflow.State{}, "C42", "111.222", nil)

	// Reporting must never panic or fail the run, whatever Slack says.
	ch.ReportProgress("abcd1234", "still here")
	ch.ReportError("abcd1234", "also here")
}

func TestThreadChannelAccessors(t *testing.T) {
	f := newFakeSlack(t)
	client := newTestClient(t, f)

	initial := workflow.State{"prompt": "greet world", "slack_user": "U777"}
	ch := NewThreadChannel(client, "greet", initial, "C42", "111.222", nil)

	assert.Equal(t, workflow.KindThreadReply, ch.Kind())
	assert.Equal(t, "greet", ch.WorkflowName())
	assert.Equal(t, initial, ch.InitialState())

	// The channel holds its own copy of the initial state.
	initial["prompt"] = "mutated"
	assert.Equal(t, "greet world", ch.InitialState()["prompt"])
}
