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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMention(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "leading mention", text: "<@U123ABC> deploy now", want: "deploy now"},
		{name: "surrounding whitespace", text: "  <@U123ABC>   hi", want: "hi"},
		{name: "mention only", text: "<@U123ABC>", want: ""},
		{name: "no mention", text: "just text", want: "just text"},
		{name: "mid-text mention untouched", text: "ping <@U123ABC> later", want: "ping <@U123ABC> later"},
		{name: "empty", text: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMention(tt.text))
		})
	}
}

func TestIsBotMention(t *testing.T) {
	assert.True(t, IsBotMention("<@U99BOT> hello", "U99BOT"))
	assert.True(t, IsBotMention("hey <@U99BOT>, run this", "U99BOT"))
	assert.False(t, IsBotMention("hello world", "U99BOT"))
	assert.False(t, IsBotMention("<@U11OTHER> hello", "U99BOT"))
}

func TestEnvelopeDecodeAppMention(t *testing.T) {
	payload := `{
		"type": "event_callback",
		"event": {
			"type": "app_mention",
			"user": "U777",
			"text": "<@U99BOT> greet world",
			"ts": "1700000000.000100",
			"channel": "C42",
			"files": [{"id": "F1", "name": "notes.txt", "url_private": "https://files.example/notes"}]
		}
	}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(payload), &env))

	assert.Equal(t, "event_callback", env.Type)
	require.NotNil(t, env.Event)
	assert.Equal(t, "app_mention", env.Event.Type)
	assert.Equal(t, "U777", env.Event.User)
	assert.Equal(t, "C42", env.Event.Channel)
	assert.Equal(t, "1700000000.000100", env.Event.TS)
	require.Len(t, env.Event.Files, 1)
	assert.Equal(t, "notes.txt", env.Event.Files[0].Name)
}

func TestEnvelopeDecodeMessageChanged(t *testing.T) {
	payload := `{
		"type": "event_callback",
		"event": {
			"type": "message",
			"subtype": "message_changed",
			"channel": "C42",
			"ts": "1700000001.000000",
			"message": {"ts": "1700000000.000100", "text": "<@U99BOT> greet mars"}
		}
	}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(payload), &env))

	require.NotNil(t, env.Event)
	assert.Equal(t, "message_changed", env.Event.Subtype)
	require.NotNil(t, env.Event.Message)
	assert.Equal(t, "1700000000.000100", env.Event.Message.TS)
	assert.Equal(t, "<@U99BOT> greet mars", env.Event.Message.Text)
}

func TestEnvelopeDecodeVerification(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"url_verification","challenge":"abc123"}`), &env))

	assert.Equal(t, "url_verification", env.Type)
	assert.Equal(t, "abc123", env.Challenge)
	assert.Nil(t, env.Event)
}

func TestEventIsThreadReply(t *testing.T) {
	reply := Event{TS: "2.0", ThreadTS: "1.0"}
	assert.True(t, reply.IsThreadReply())

	root := Event{TS: "1.0", ThreadTS: "1.0"}
	assert.False(t, root.IsThreadReply())

	plain := Event{TS: "1.0"}
	assert.False(t, plain.IsThreadReply())
}

func TestEventFromBot(t *testing.T) {
	assert.True(t, (&Event{BotID: "B123"}).FromBot())
	assert.False(t, (&Event{User: "U123"}).FromBot())
}
