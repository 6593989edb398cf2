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

// Package coalescer turns a bursty stream of chat events into one workflow
// dispatch per logical request.
//
// A logical request is the burst of {initial bot mention, edits to that
// mention, follow-up replies in its thread} that ends with a quiet window of
// the configured cooldown. Each accepted mention becomes a pending message
// keyed by (channel, ts); edits and replies fold into it and push the
// cooldown timer back; a delete cancels it; timer expiry dispatches the
// accumulated message as a workflow run on the background pool.
//
// Dispatch is at-most-once per key: the pending entry is popped under the
// lock before any slow work starts, and a stale timer that lost a
// cancel/expiry race exits when it finds its entry gone or re-armed.
package coalescer

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tombee/antkeeper/internal/daemon/dispatch"
	"github.com/tombee/antkeeper/internal/daemon/metrics"
	internallog "github.com/tombee/antkeeper/internal/log"
	"github.com/tombee/antkeeper/internal/slack"
	"github.com/tombee/antkeeper/pkg/workflow"
)

// DefaultCooldown is the quiet window required before a pending message
// dispatches, when COOLDOWN_SECONDS is unset.
const DefaultCooldown = 30 * time.Second

// Env is the ambient chat-boundary configuration. It is read fresh for
// every inbound event rather than cached at startup, so rotated credentials
// take effect immediately; the values captured at event time ride into that
// event's timer and outbound calls.
type Env struct {
	// Token authenticates outbound chat API calls. Environment: BOT_TOKEN.
	Token string

	// BotUserID is the user id embedded in mention syntax, e.g. <@U0001>.
	// Environment: BOT_USER_ID.
	BotUserID string

	// Cooldown is the debounce window. Environment: COOLDOWN_SECONDS.
	Cooldown time.Duration
}

// EnvFromOS reads Env from the process environment. missing lists the
// required variable names that are unset or empty; the boundary turns a
// non-empty list into a 422 before any event reaches the coalescer.
// An unparsable COOLDOWN_SECONDS falls back to DefaultCooldown.
func EnvFromOS() (env Env, missing []string) {
	env.Token = os.Getenv("BOT_TOKEN")
	env.BotUserID = os.Getenv("BOT_USER_ID")
	if env.Token == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if env.BotUserID == "" {
		missing = append(missing, "BOT_USER_ID")
	}

	env.Cooldown = DefaultCooldown
	if raw := os.Getenv("COOLDOWN_SECONDS"); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs >= 0 {
			env.Cooldown = time.Duration(secs * float64(time.Second))
		}
	}
	return env, missing
}

// Outcome names the routing clause that handled an event. Used for metrics
// and assertions; the HTTP response is {"ok": true} regardless.
type Outcome string

const (
	OutcomeBotFiltered      Outcome = "bot_filtered"
	OutcomeThreadReply      Outcome = "thread_reply"
	OutcomeOrphanReply      Outcome = "orphan_reply"
	OutcomeEdit             Outcome = "edit"
	OutcomeOrphanEdit       Outcome = "orphan_edit"
	OutcomeDelete           Outcome = "delete"
	OutcomeMention          Outcome = "mention"
	OutcomeDuplicateMention Outcome = "duplicate_mention"
	OutcomeIgnored          Outcome = "ignored"
)

// Key identifies a pending message: the conversation and the immutable
// timestamp of the first message that mentioned the bot.
type Key struct {
	Channel string
	TS      string
}

// entry is one pending message accumulating inside its debounce window.
type entry struct {
	workflowName string
	user         string
	text         string
	files        []slack.File

	// timer is the live cooldown timer. gen increments every time the
	// timer is re-armed; a firing timer whose captured gen no longer
	// matches lost a race with an edit or reply and must not dispatch.
	timer *time.Timer
	gen   uint64
}

// Config configures a Coalescer.
type Config struct {
	// App resolves workflow names at dispatch time.
	App *workflow.App

	// Pool executes dispatched runs in the background.
	Pool *dispatch.Pool

	// Logger receives coalescer lifecycle output. Defaults to slog.Default().
	Logger *slog.Logger

	// NewClient builds the outbound chat client for a token. Defaults to
	// slack.NewClient; tests point it at a fake server.
	NewClient func(token string) (*slack.Client, error)
}

// Coalescer maintains the pending-message map and its debounce timers.
// All map and timer mutation happens under one mutex; outbound chat calls
// and workflow execution never hold it.
type Coalescer struct {
	app       *workflow.App
	pool      *dispatch.Pool
	logger    *slog.Logger
	newClient func(token string) (*slack.Client, error)

	mu      sync.Mutex
	pending map[Key]*entry
	stopped bool

	// Chat clients are reused while the token is stable so outbound
	// pacing state survives across events.
	lastToken  string
	lastClient *slack.Client
}

// New creates a Coalescer.
func New(cfg Config) *Coalescer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newClient := cfg.NewClient
	if newClient == nil {
		newClient = func(token string) (*slack.Client, error) {
			return slack.NewClient(token, slack.Options{Logger: logger})
		}
	}
	return &Coalescer{
		app:       cfg.App,
		pool:      cfg.Pool,
		logger:    logger,
		newClient: newClient,
		pending:   make(map[Key]*entry),
	}
}

// Process routes one delivered chat event. Routing order is fixed: bot
// self-filter, thread reply, edit, delete, new mention, fallthrough; the
// first matching clause wins. Thread-reply detection runs before mention
// detection so a reply to a pending mention is never mistaken for a new one.
//
// ctx bounds the immediate outbound calls (reactions); timer-driven calls
// run on their own context since they outlive the request.
func (c *Coalescer) Process(ctx context.Context, env Env, ev *slack.Event) Outcome {
	outcome := c.route(ctx, env, ev)
	metrics.RecordChatEvent(string(outcome))
	return outcome
}

func (c *Coalescer) route(ctx context.Context, env Env, ev *slack.Event) Outcome {
	if ev.FromBot() {
		return OutcomeBotFiltered
	}

	if ev.IsThreadReply() {
		return c.handleThreadReply(ctx, env, ev)
	}

	switch ev.Subtype {
	case "message_changed":
		return c.handleEdit(env, ev)
	case "message_deleted":
		return c.handleDelete(ev)
	}

	if (ev.Type == "app_mention" || ev.Type == "message") &&
		(ev.Subtype == "" || ev.Subtype == "file_share") &&
		slack.IsBotMention(ev.Text, env.BotUserID) {
		return c.handleMention(ctx, env, ev)
	}

	return OutcomeIgnored
}

// handleThreadReply folds a reply into the pending message rooted at its
// thread_ts: append the reply text on a new line, accumulate its files, and
// push the cooldown back. Replies to threads with no pending entry are
// dropped silently.
func (c *Coalescer) handleThreadReply(ctx context.Context, env Env, ev *slack.Event) Outcome {
	key := Key{Channel: ev.Channel, TS: ev.ThreadTS}

	c.mu.Lock()
	e, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return OutcomeOrphanReply
	}
	e.timer.Stop()
	e.text += "\n" + ev.Text
	e.files = append(e.files, ev.Files...)
	c.arm(key, e, env)
	c.mu.Unlock()

	c.react(ctx, env, ev.Channel, ev.TS)
	return OutcomeThreadReply
}

// handleEdit replaces the pending text with the mention-stripped edit and
// pushes the cooldown back. Accumulated replies are intentionally lost: the
// edited mention is the request's new text of record.
func (c *Coalescer) handleEdit(env Env, ev *slack.Event) Outcome {
	if ev.Message == nil {
		return OutcomeOrphanEdit
	}
	key := Key{Channel: ev.Channel, TS: ev.Message.TS}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[key]
	if !ok {
		return OutcomeOrphanEdit
	}
	e.timer.Stop()
	e.text = slack.StripMention(ev.Message.Text)
	c.arm(key, e, env)
	return OutcomeEdit
}

// handleDelete cancels the pending message for the deleted mention.
func (c *Coalescer) handleDelete(ev *slack.Event) Outcome {
	key := Key{Channel: ev.Channel, TS: ev.DeletedTS}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[key]
	if !ok {
		return OutcomeDelete
	}
	e.timer.Stop()
	delete(c.pending, key)
	metrics.SetPendingMessages(len(c.pending))
	return OutcomeDelete
}

// handleMention opens a new pending message for a bot mention. The first
// whitespace-delimited token after the mention names the workflow; the rest
// rides along as prompt text. A key already pending means Slack re-delivered
// the event and the duplicate is skipped.
func (c *Coalescer) handleMention(ctx context.Context, env Env, ev *slack.Event) Outcome {
	clean := slack.StripMention(ev.Text)
	workflowName := ""
	if parts := strings.Fields(clean); len(parts) > 0 {
		workflowName = parts[0]
	}

	key := Key{Channel: ev.Channel, TS: ev.TS}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return OutcomeIgnored
	}
	if _, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return OutcomeDuplicateMention
	}
	e := &entry{
		workflowName: workflowName,
		user:         ev.User,
		text:         clean,
		files:        append([]slack.File(nil), ev.Files...),
	}
	c.pending[key] = e
	c.arm(key, e, env)
	metrics.SetPendingMessages(len(c.pending))
	c.mu.Unlock()

	c.react(ctx, env, ev.Channel, ev.TS)
	return OutcomeMention
}

// arm starts (or restarts) the entry's cooldown timer. Callers hold c.mu.
// The generation captured by the closure is how a stale timer recognizes
// itself: fire dispatches only while the entry still exists and its gen
// matches.
func (c *Coalescer) arm(key Key, e *entry, env Env) {
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(env.Cooldown, func() {
		c.fire(key, gen, env)
	})
}

// fire runs at cooldown expiry. It pops the pending entry atomically, then
// does the slow work outside the lock: announce, resolve, and hand the run
// to the pool. A missing or re-armed entry means this timer was cancelled
// and it exits without dispatching.
func (c *Coalescer) fire(key Key, gen uint64, env Env) {
	c.mu.Lock()
	e, ok := c.pending[key]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	metrics.SetPendingMessages(len(c.pending))
	c.mu.Unlock()

	ctx := context.Background()
	client, err := c.client(env.Token)
	if err != nil {
		c.logger.Error("chat client unavailable, dropping dispatch",
			"channel", key.Channel, "ts", key.TS, "error", err)
		return
	}

	c.post(ctx, client, key, "Processing your request...")

	if _, err := c.app.Resolve(e.workflowName); err != nil {
		c.post(ctx, client, key, "Unknown workflow: "+e.workflowName)
		metrics.RecordChatEvent("unknown_workflow")
		c.logger.Info("mention named an unknown workflow",
			"workflow", e.workflowName, "channel", key.Channel)
		return
	}

	initial := workflow.State{"prompt": e.text, "slack_user": e.user}
	if len(e.files) > 0 {
		initial["files"] = e.files
	}

	channel := slack.NewThreadChannel(client, e.workflowName, initial, key.Channel, key.TS, c.logger)
	runner, err := workflow.NewRunner(c.app, channel)
	if err != nil {
		c.logger.Error("failed to create runner for chat dispatch",
			"workflow", e.workflowName, "channel", key.Channel, "error", err)
		return
	}

	c.logger.Info("dispatching coalesced message",
		"run_id", runner.ID(),
		"workflow", e.workflowName,
		"channel", key.Channel,
		"ts", key.TS)
	metrics.RecordChatEvent("dispatched")
	c.pool.Go(runner)
}

// Pending returns the number of messages waiting out their cooldown.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stop cancels all pending timers and drops their messages. Once stopped,
// new mentions are ignored. In-flight dispatches already handed to the pool
// are unaffected; the daemon drains those separately.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for key, e := range c.pending {
		e.timer.Stop()
		delete(c.pending, key)
	}
	metrics.SetPendingMessages(0)
}

// react adds a thumbs-up to the message that was folded into a pending
// request. Reaction failures are logged and swallowed; acknowledgement is
// cosmetic and must never disturb coalescer state.
func (c *Coalescer) react(ctx context.Context, env Env, channel, timestamp string) {
	client, err := c.client(env.Token)
	if err != nil {
		c.logger.Error("chat client unavailable for reaction", "error", err)
		return
	}
	if err := client.AddReaction(ctx, channel, timestamp, "thumbsup"); err != nil {
		c.logger.Error("failed to add reaction",
			"channel", channel, "timestamp", timestamp, "error", err)
	}
}

// post sends a thread reply under the pending message's root. Failures are
// logged and swallowed.
func (c *Coalescer) post(ctx context.Context, client *slack.Client, key Key, text string) {
	if err := client.PostMessage(ctx, key.Channel, key.TS, text); err != nil {
		c.logger.Error("failed to post thread message",
			"channel", key.Channel, "thread_ts", key.TS, "error", err)
	}
}

// client returns a chat client for the token, reusing the previous one
// while the token is stable.
func (c *Coalescer) client(token string) (*slack.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastClient != nil && c.lastToken == token {
		return c.lastClient, nil
	}
	client, err := c.newClient(token)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("chat client created", "token", internallog.SanitizeToken(token))
	c.lastToken = token
	c.lastClient = client
	return client, nil
}
