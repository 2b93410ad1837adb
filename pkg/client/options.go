package client

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. to add TLS
// settings. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds a single attempt. Uploads run matching and rendering
// server side, so the default is generous.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetries sets how often a network error or 5xx answer is retried and
// the backoff bounds. A negative n and non-positive waits keep the current
// values. maxWait is raised to minWait when smaller.
func WithRetries(n int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
		if minWait > 0 {
			c.retryWaitMin = minWait
		}
		if maxWait > 0 {
			c.retryWaitMax = maxWait
		}
		if c.retryWaitMax < c.retryWaitMin {
			c.retryWaitMax = c.retryWaitMin
		}
	}
}

// WithoutRetries sends every request once.
func WithoutRetries() Option {
	return WithRetries(0, 0, 0)
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}
