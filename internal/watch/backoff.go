package watch

import (
	"math/rand"
	"time"
)

// Default schedule.
const (
	DefaultInitialInterval   = 2 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 1.5
	DefaultJitterFactor      = 0.3
)

// Config is a polling schedule. Zero fields select the defaults.
type Config struct {
	// InitialInterval is the wait after a poll that saw a change.
	InitialInterval time.Duration

	// MaxBackoff caps the wait.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after each poll with no change.
	BackoffMultiplier float64

	// JitterFactor is the largest random addition, as a fraction of the wait.
	// A negative value disables jitter.
	JitterFactor float64
}

func (c Config) withDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialInterval {
		c.MaxBackoff = c.InitialInterval
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.JitterFactor == 0 {
		c.JitterFactor = DefaultJitterFactor
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	return c
}

// Backoff tracks the current interval of one schedule. It is not safe for
// concurrent use.
type Backoff struct {
	cfg     Config
	current time.Duration
}

// NewBackoff returns a Backoff starting at the initial interval.
func NewBackoff(cfg Config) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, current: cfg.InitialInterval}
}

// Interval returns the current interval without jitter.
func (b *Backoff) Interval() time.Duration {
	return b.current
}

// Observe records the outcome of a poll.
func (b *Backoff) Observe(changed bool) {
	if changed {
		b.current = b.cfg.InitialInterval
		return
	}
	next := time.Duration(float64(b.current) * b.cfg.BackoffMultiplier)
	if next > b.cfg.MaxBackoff {
		next = b.cfg.MaxBackoff
	}
	b.current = next
}

// Reset returns to the initial interval.
func (b *Backoff) Reset() {
	b.current = b.cfg.InitialInterval
}

// Wait returns the current interval plus jitter.
func (b *Backoff) Wait() time.Duration {
	jitter := time.Duration(rand.Float64() * b.cfg.JitterFactor * float64(b.current))
	return b.current + jitter
}
