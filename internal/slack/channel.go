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
	"context"
	"fmt"
	"log/slog"

	"github.com/tombee/antkeeper/pkg/workflow"
)

// ThreadChannel reports workflow progress into the Slack thread that
// triggered the run. The credential, channel, and thread are captured at
// construction and never re-read, so a token rotated mid-run does not
// change where an in-flight run reports.
type ThreadChannel struct {
	client   *Client
	workflow string
	initial  workflow.State
	channel  string
	threadTS string
	logger   *slog.Logger
}

// NewThreadChannel creates a channel bound to a Slack thread.
func NewThreadChannel(client *Client, workflowName string, initial workflow.State, channel, threadTS string, logger *slog.Logger) *ThreadChannel {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("thread channel initialized", "channel", channel, "thread_ts", threadTS)
	return &ThreadChannel{
		client:   client,
		workflow: workflowName,
		initial:  initial.Clone(),
		channel:  channel,
		threadTS: threadTS,
		logger:   logger,
	}
}

// Kind identifies this channel as thread-reply.
func (c *ThreadChannel) Kind() workflow.Kind {
	return workflow.KindThreadReply
}

// WorkflowName returns the workflow this channel dispatches.
func (c *ThreadChannel) WorkflowName() string {
	return c.workflow
}

// InitialState returns the caller-supplied portion of the initial state.
func (c *ThreadChannel) InitialState() workflow.State {
	return c.initial
}

// ReportProgress posts a progress message to the thread. Post failures
// are logged and swallowed; reporting must never fail a run.
func (c *ThreadChannel) ReportProgress(runID, message string) {
	c.post(fmt.Sprintf("[%s, %s] %s", c.workflow, runID, message))
}

// ReportError posts an error message to the thread.
func (c *ThreadChannel) ReportError(runID, message string) {
	c.post(fmt.Sprintf("[%s, %s] [ERROR] %s", c.workflow, runID, message))
}

func (c *ThreadChannel) post(text string) {
	if err := c.client.PostMessage(context.Background(), c.channel, c.threadTS, text); err != nil {
		c.logger.Error("failed to post to thread", "channel", c.channel, "thread_ts", c.threadTS, "error", err)
	}
}
