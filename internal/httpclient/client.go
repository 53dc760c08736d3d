// Package httpclient wraps net/http with the retry/backoff policy
// every upstream LLM call in this system uses: a bounded exponential
// schedule, Retry-After-aware handling of 429 responses, and a hard
// stop on non-retryable client errors.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// defaultRetryAfter is used for a 429 response when neither the
// Retry-After header nor the response body names a wait.
const defaultRetryAfter = 60 * time.Second

// MaxAttempts bounds how many times Do will try one logical request,
// including the first attempt.
const MaxAttempts = 5

// RetryableError wraps a response that was retried the maximum number
// of times without success.
type RetryableError struct {
	StatusCode int
	Body       string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("httpclient: exhausted retries, last status %d: %s", e.StatusCode, e.Body)
}

// NonRetryableError wraps a response this client will never retry
// (authentication failures and other 4xx other than 429).
type NonRetryableError struct {
	StatusCode int
	Body       string
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("httpclient: non-retryable status %d: %s", e.StatusCode, e.Body)
}

// Client issues HTTP requests with retry/backoff applied uniformly.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

// New creates a Client. If inner is nil, http.DefaultClient is used.
func New(inner *http.Client, log zerolog.Logger) *Client {
	if inner == nil {
		inner = http.DefaultClient
	}
	return &Client{http: inner, log: log.With().Str("component", "httpclient").Logger()}
}

// newBackoff builds the 1s/2s/4s/8s/16s schedule: an exponential
// backoff with no randomization jitter, capped so the Nth attempt
// never waits longer than 16s, and no overall elapsed-time limit since
// MaxAttempts already bounds the retry count.
func newBackoff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     1 * time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         16 * time.Second,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Do sends req, retrying on 429 and 5xx responses (and on transport
// errors) up to MaxAttempts times total. A 429 response's Retry-After
// header, when present, overrides the computed backoff interval for
// that attempt. 401 and other non-429 4xx responses are never
// retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	bo := newBackoff()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == MaxAttempts {
				return nil, fmt.Errorf("httpclient: request failed after %d attempts: %w", attempt, err)
			}
			c.sleep(req.Context(), bo.NextBackOff())
			continue
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		bodyText := string(body)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt == MaxAttempts {
				return nil, &RetryableError{StatusCode: resp.StatusCode, Body: bodyText}
			}

			var wait time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				// A rate limit's own retry-after takes precedence over the
				// fixed schedule; fall back to a 60s default when the
				// server omits it rather than hammering it on our schedule.
				wait = retryAfter(resp.Header.Get("Retry-After"))
				if wait == 0 {
					wait = retryAfterFromBody(bodyText)
				}
				if wait == 0 {
					wait = defaultRetryAfter
				}
			} else {
				wait = bo.NextBackOff()
			}

			c.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Dur("wait", wait).Msg("retrying request")
			c.sleep(req.Context(), wait)
			continue
		}

		return nil, &NonRetryableError{StatusCode: resp.StatusCode, Body: bodyText}
	}

	return nil, fmt.Errorf("httpclient: unreachable")
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// retryAfter parses a Retry-After header value given in seconds,
// returning 0 if absent or malformed (the HTTP-date form is not
// produced by this system's upstream and is not parsed).
func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryAfterBodyPattern matches a "retry after Ns" / "retry in Ns"
// style clause some providers embed in a 429 error body instead of (or
// in addition to) the Retry-After header.
var retryAfterBodyPattern = regexp.MustCompile(`(?i)retry[ -](?:after|in)\s*:?\s*(\d+)\s*s`)

// retryAfterFromBody extracts a retry delay in seconds from an error
// message body, returning 0 if none is found.
func retryAfterFromBody(body string) time.Duration {
	m := retryAfterBodyPattern.FindStringSubmatch(body)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
