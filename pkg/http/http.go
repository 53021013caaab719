package http

import (
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// RLHTTPClient is a rate limited HTTP client.
type RLHTTPClient struct {
	Client      *http.Client
	Ratelimiter *rate.Limiter
}

// Do sends an HTTP request.
func (c *RLHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.Ratelimiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}

// NewClient returns a rate limited http client.
func NewClient(rl *rate.Limiter) *RLHTTPClient {
	return &RLHTTPClient{
		Client:      http.DefaultClient,
		Ratelimiter: rl,
	}
}

// NewRetryingClient returns a rate limited client that additionally retries
// transient failures (5xx, connection resets) with backoff. Retries happen
// below the rate limiter, so a retried request still counts against the
// limit.
func NewRetryingClient(rl *rate.Limiter) *RLHTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil

	return &RLHTTPClient{
		Client:      rc.StandardClient(),
		Ratelimiter: rl,
	}
}
