package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stealthpool/client-go/internal/logging"
)

// PollFunc checks for new state and reports whether anything changed. An
// error counts as no change.
type PollFunc func(ctx context.Context) (changed bool, err error)

// ErrAlreadyStarted is returned by Start on a running Poller.
var ErrAlreadyStarted = errors.New("watch: poller already started")

// Poller calls a PollFunc on an adaptive schedule in its own goroutine.
type Poller struct {
	fn      PollFunc
	backoff *Backoff
	logger  *slog.Logger
	onError func(error)

	trigger chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logging.Sanitize(l)
	}
}

// WithErrorHandler registers a callback for errors returned by the PollFunc.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Poller) {
		p.onError = fn
	}
}

// New returns a stopped Poller.
func New(cfg Config, fn PollFunc, opts ...Option) *Poller {
	p := &Poller{
		fn:      fn,
		backoff: NewBackoff(cfg),
		logger:  logging.Discard(),
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start polls immediately and then on the schedule until ctx is done or Stop
// is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	return nil
}

// Stop ends polling and waits for an in-flight poll to return. It is safe to
// call more than once and before Start.
func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.started = false
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Running reports whether the poller has been started and not stopped.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Trigger requests a poll now and resets the backoff. Triggers that arrive
// while one is pending are merged.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-p.trigger:
			p.backoff.Reset()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		changed, err := p.fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Debug("poll failed", "error", err)
			if p.onError != nil {
				p.onError(err)
			}
		}
		p.backoff.Observe(changed && err == nil)
		timer.Reset(p.backoff.Wait())
	}
}

// CheckFunc reports whether a wait is over.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Until calls check on the schedule until it reports done or ctx ends. Check
// errors are retried; the last one is joined to the context error if the wait
// never completes.
func Until(ctx context.Context, cfg Config, check CheckFunc) error {
	b := NewBackoff(cfg)
	var lastErr error
	for {
		done, err := check(ctx)
		if err == nil && done {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		b.Observe(false)

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return errors.Join(ctx.Err(), lastErr)
			}
			return ctx.Err()
		case <-time.After(b.Wait()):
		}
	}
}
