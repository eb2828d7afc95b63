package rpc

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// JSON-RPC error codes a node answers with when it wants the caller to back
// off rather than give up.
const (
	codeRateLimited = 429
	codeNodeBehind  = -32005
)

// maxRetryAfter bounds the wait a server can ask for, whatever MaxDelay is.
const maxRetryAfter = time.Minute

// Failure describes one failed attempt. Exactly one of Transport, Code and
// Status decides whether it is retried: a transport error always is, a
// JSON-RPC error object is judged by its code, and anything else by its HTTP
// status.
type Failure struct {
	Transport bool
	// Code is the JSON-RPC error code, zero when the body had none.
	Code int
	// Status is the HTTP status of the response.
	Status int
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

// RetryConfig is the retry policy of the ledger and relay clients.
type RetryConfig struct {
	// MaxRetries bounds the attempts after the first.
	MaxRetries int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier grows the backoff per attempt.
	Multiplier float64
	// Jitter spreads each backoff by up to this fraction either way.
	Jitter float64
	// RetryableStatus reports whether an HTTP status is transient.
	RetryableStatus func(status int) bool
	// RetryableCode reports whether a JSON-RPC error code means the node is
	// throttling or lagging.
	RetryableCode func(code int) bool
}

// DefaultRetryConfig returns the default policy: three retries starting at
// half a second, on transient HTTP statuses and on the throttling codes.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
		RetryableStatus: TransientStatus,
		RetryableCode:   Throttled,
	}
}

// TransientStatus reports whether an HTTP status is worth another attempt.
func TransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Throttled reports whether a JSON-RPC error code asks the caller to slow
// down: a rate limit or a node that is behind the cluster.
func Throttled(code int) bool {
	return code == codeRateLimited || code == codeNodeBehind
}

// Retryable reports whether the attempt-th failure (zero based) is retried.
func (r *RetryConfig) Retryable(attempt int, f Failure) bool {
	if attempt >= r.MaxRetries {
		return false
	}
	switch {
	case f.Transport:
		return true
	case f.Code != 0:
		return r.RetryableCode != nil && r.RetryableCode(f.Code)
	default:
		return r.RetryableStatus != nil && r.RetryableStatus(f.Status)
	}
}

// Backoff returns the wait before retrying after the attempt-th failure. A
// server hint longer than the computed backoff wins, up to a minute.
func (r *RetryConfig) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := float64(r.BaseDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}
	if r.Jitter > 0 {
		spread := delay * r.Jitter
		delay = delay - spread + rand.Float64()*2*spread
	}

	wait := time.Duration(delay)
	if hint := min(retryAfter, maxRetryAfter); hint > wait {
		return hint
	}
	return wait
}

// Wait sleeps for Backoff(attempt, f.RetryAfter) or until ctx ends.
func (r *RetryConfig) Wait(ctx context.Context, attempt int, f Failure) error {
	timer := time.NewTimer(r.Backoff(attempt, f.RetryAfter))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter reads a Retry-After header value, either delay seconds or
// an HTTP date. Malformed and past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return min(time.Duration(min(secs, 1<<20))*time.Second, maxRetryAfter)
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return min(d, maxRetryAfter)
	}
	return 0
}
