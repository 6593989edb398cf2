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

// Package slack implements the Slack side of antkeeper: a minimal Web API
// client, Events API payload types, and the thread-reply channel that
// reports workflow progress back to the originating thread.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tombee/antkeeper/pkg/httpclient"
)

// DefaultBaseURL is the Slack Web API endpoint prefix.
const DefaultBaseURL = "https://slack.com/api"

// APIError represents an error response from the Slack Web API, where the
// HTTP exchange succeeded but the API reported ok=false.
type APIError struct {
	// Method is the API method that failed (e.g. "chat.postMessage").
	Method string
	// Reason is Slack's error code (e.g. "channel_not_found").
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Reason)
}

// Options configures a Client.
type Options struct {
	// BaseURL overrides the Slack API endpoint. Used by tests.
	BaseURL string

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client

	// Logger receives client debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a minimal Slack Web API client covering the two methods
// antkeeper uses: chat.postMessage and reactions.add.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Slack Web API client authenticating with the given
// bot token.
func NewClient(token string, opts Options) (*Client, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Slack's chat.postMessage tier allows roughly one message per
		// second per channel; pace writes and replay them on 429s.
		cfg := httpclient.DefaultConfig()
		cfg.RetryPosts = true
		cfg.RequestsPerSecond = 1
		cfg.Burst = 3

		client, err := httpclient.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
		httpClient = client
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// PostMessage posts text to a channel. A non-empty threadTS posts into
// that thread instead of the channel top level.
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string) error {
	payload := map[string]string{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	return c.call(ctx, "chat.postMessage", payload)
}

// AddReaction adds an emoji reaction to the message identified by
// timestamp. Reacting twice with the same emoji is not an error.
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, name string) error {
	err := c.call(ctx, "reactions.add", map[string]string{
		"channel":   channel,
		"timestamp": timestamp,
		"name":      name,
	})

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Reason == "already_reacted" {
		c.logger.Debug("reaction already present", "channel", channel, "timestamp", timestamp)
		return nil
	}
	return err
}

// call POSTs a JSON payload to the named API method and decodes Slack's
// ok/error envelope.
func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack %s returned status %d", method, resp.StatusCode)
	}

	var apiResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return &APIError{Method: method, Reason: apiResp.Error}
	}

	c.logger.Debug("slack api call succeeded", "method", method)
	return nil
}
