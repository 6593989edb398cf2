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
	"regexp"
	"strings"
)

// Envelope is the outer Slack Events API payload.
type Envelope struct {
	// Type is "url_verification" for the subscription handshake or
	// "event_callback" for delivered events.
	Type string `json:"type"`

	// Challenge is set on url_verification requests and must be echoed
	// back verbatim.
	Challenge string `json:"challenge,omitempty"`

	// Event is the delivered event for event_callback envelopes.
	Event *Event `json:"event,omitempty"`
}

// Event is one delivered Slack event. Only the fields antkeeper routes on
// are decoded.
type Event struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// TS is the message timestamp, Slack's stable message identifier.
	TS string `json:"ts,omitempty"`

	// ThreadTS is the parent timestamp when this message is a thread reply.
	ThreadTS string `json:"thread_ts,omitempty"`

	// DeletedTS identifies the removed message on message_deleted events.
	DeletedTS string `json:"deleted_ts,omitempty"`

	Channel string `json:"channel,omitempty"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`

	// BotID is set when the message was authored by a bot, including this
	// one. Used to break mention loops.
	BotID string `json:"bot_id,omitempty"`

	Files []File `json:"files,omitempty"`

	// Message carries the edited message on message_changed events.
	Message *EditedMessage `json:"message,omitempty"`
}

// EditedMessage is the nested message object of a message_changed event.
type EditedMessage struct {
	TS   string `json:"ts"`
	Text string `json:"text,omitempty"`
}

// File is a message attachment. Files accumulate onto the pending message
// and ride into the workflow's initial state.
type File struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Mimetype   string `json:"mimetype,omitempty"`
	URLPrivate string `json:"url_private,omitempty"`
}

// FromBot reports whether the event was authored by a bot.
func (e *Event) FromBot() bool {
	return e.BotID != ""
}

// IsThreadReply reports whether the event is a reply inside an existing
// thread, as opposed to a thread root.
func (e *Event) IsThreadReply() bool {
	return e.ThreadTS != "" && e.TS != e.ThreadTS
}

var mentionPrefix = regexp.MustCompile(`^\s*<@U[A-Z0-9]+>\s*`)

// StripMention removes a leading bot mention and surrounding whitespace.
func StripMention(text string) string {
	return mentionPrefix.ReplaceAllString(text, "")
}

// IsBotMention reports whether text mentions the given bot user.
func IsBotMention(text, botUserID string) bool {
	return strings.Contains(text, "<@"+botUserID+">")
}
