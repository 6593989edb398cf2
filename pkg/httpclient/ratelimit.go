package httpclient

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitTransport wraps an http.RoundTripper to cap the outbound
// request rate. Chat APIs enforce per-method rate limits server-side, so
// requests are paced locally before they leave the process.
type rateLimitTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// newRateLimitTransport creates a new rate limiting transport that wraps
// the base transport.
func newRateLimitTransport(base http.RoundTripper, rps float64, burst int) *rateLimitTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &rateLimitTransport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// RoundTrip implements http.RoundTripper. It blocks until the limiter
// grants a slot or the request context is cancelled.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
