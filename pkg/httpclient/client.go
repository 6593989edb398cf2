// Package httpclient provides the HTTP client factory antkeeper uses to
// talk to chat APIs.
//
// The client factory composes transport layers to provide:
//   - Automatic retries with exponential backoff, honoring Retry-After
//   - Client-side rate limiting
//   - User-Agent header injection and request logging
//   - TLS 1.2+ with secure defaults
//   - Connection pooling
//
// Example usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.RequestsPerSecond = 1
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := client.Post(url, "application/json", body)
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// New creates a new HTTP client with the given configuration.
//
// Layering, innermost first: TLS transport with connection pooling, then
// User-Agent injection and request logging, then rate limiting, then
// retries. Retries sit outermost so each attempt passes back through the
// rate limiter.
//
// Returns an error if the configuration is invalid.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var transport http.RoundTripper = newHeaderTransport(baseTransport, cfg.UserAgent)

	if cfg.RequestsPerSecond > 0 {
		transport = newRateLimitTransport(transport, cfg.RequestsPerSecond, cfg.Burst)
	}

	if cfg.RetryAttempts > 0 {
		transport = newRetryTransport(transport, cfg)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}
