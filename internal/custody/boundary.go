package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/crypto"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/metrics"
)

// DefaultTimeout bounds every request. Post-quantum key generation is the
// slowest operation behind the boundary.
const DefaultTimeout = 30 * time.Second

// Boundary is the caller-side handle of the custody goroutine.
type Boundary struct {
	inbox   chan request
	outbox  chan response
	crashed chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	pending map[uint64]chan response
	nextID  atomic.Uint64

	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	derive    func(seed []byte) (*crypto.HybridKeyPair, error)
	closeOnce sync.Once
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Boundary) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Boundary) {
		b.logger = logging.Sanitize(l)
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Boundary) {
		b.metrics = m
	}
}

// New starts a custody goroutine and its response router.
func New(opts ...Option) *Boundary {
	b := &Boundary{
		inbox:   make(chan request),
		outbox:  make(chan response),
		crashed: make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(map[uint64]chan response),
		timeout: DefaultTimeout,
		logger:  logging.Discard(),
		derive:  crypto.DeriveKeyPair,
	}
	for _, opt := range opts {
		opt(b)
	}

	w := &worker{derive: b.derive}
	go b.run(w)
	go b.route()
	return b
}

// run is the custody goroutine.
func (b *Boundary) run(w *worker) {
	defer func() {
		if r := recover(); r != nil {
			w.wipe()
			b.logger.Error("key custody context crashed", "panic", fmt.Sprint(r))
			b.metrics.CustodyCrashed()
			close(b.crashed)
		}
	}()

	for {
		select {
		case req := <-b.inbox:
			resp := w.handle(req)
			select {
			case b.outbox <- resp:
			case <-b.done:
				w.wipe()
				return
			}
		case <-b.done:
			w.wipe()
			return
		}
	}
}

// route delivers responses to the callers waiting on their ids.
func (b *Boundary) route() {
	for {
		select {
		case resp := <-b.outbox:
			b.mu.Lock()
			ch, ok := b.pending[resp.id]
			delete(b.pending, resp.id)
			b.mu.Unlock()
			if ok {
				ch <- resp
			} else {
				// the caller gave up; drop any secret it would have received
				for _, m := range resp.matches {
					crypto.Wipe(m.SharedSecret)
				}
			}
		case <-b.crashed:
			b.rejectAll(apierrors.ErrCustodyCrashed)
			return
		case <-b.done:
			b.rejectAll(apierrors.ErrCustodyClosed)
			return
		}
	}
}

func (b *Boundary) rejectAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.pending {
		ch <- response{id: id, err: err}
	}
	clear(b.pending)
}

func (b *Boundary) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Boundary) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// stateErr reports why no new request can be accepted, or nil.
func (b *Boundary) stateErr() error {
	select {
	case <-b.crashed:
		return apierrors.ErrCustodyCrashed
	default:
	}
	select {
	case <-b.done:
		return apierrors.ErrCustodyClosed
	default:
	}
	return nil
}

func (b *Boundary) call(ctx context.Context, req request) (resp response, err error) {
	defer func() {
		b.metrics.ObserveCustody(req.kind.String(), err)
	}()

	if err := b.stateErr(); err != nil {
		crypto.Wipe(req.seed)
		return response{}, err
	}

	req.id = b.nextID.Add(1)
	ch := make(chan response, 1)
	b.mu.Lock()
	b.pending[req.id] = ch
	b.mu.Unlock()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	// until the worker accepts the request, the seed is still ours to wipe
	select {
	case b.inbox <- req:
	case resp := <-ch:
		crypto.Wipe(req.seed)
		return resp, resp.err
	case <-b.crashed:
		b.forget(req.id)
		crypto.Wipe(req.seed)
		return response{}, apierrors.ErrCustodyCrashed
	case <-b.done:
		b.forget(req.id)
		crypto.Wipe(req.seed)
		return response{}, apierrors.ErrCustodyClosed
	case <-timer.C:
		b.forget(req.id)
		crypto.Wipe(req.seed)
		return response{}, apierrors.ErrCustodyTimeout
	case <-ctx.Done():
		b.forget(req.id)
		crypto.Wipe(req.seed)
		return response{}, ctx.Err()
	}

	select {
	case resp := <-ch:
		return resp, resp.err
	case <-timer.C:
		b.forget(req.id)
		return response{}, apierrors.ErrCustodyTimeout
	case <-ctx.Done():
		b.forget(req.id)
		return response{}, ctx.Err()
	}
}

// Init derives the identity from seed inside the custody goroutine and returns
// its public keys. The caller's seed buffer is wiped before Init returns, on
// every path. Re-initializing wipes the previous keys first.
func (b *Boundary) Init(ctx context.Context, seed []byte) (*PublicKeys, error) {
	return b.init(ctx, seed, false)
}

// InitOnce is Init that fails with apierrors.ErrAlreadyInitialized instead of
// replacing loaded keys.
func (b *Boundary) InitOnce(ctx context.Context, seed []byte) (*PublicKeys, error) {
	return b.init(ctx, seed, true)
}

func (b *Boundary) init(ctx context.Context, seed []byte, exclusive bool) (*PublicKeys, error) {
	own := append([]byte(nil), seed...)
	crypto.Wipe(seed)

	resp, err := b.call(ctx, request{kind: kindInit, seed: own, exclusive: exclusive})
	if err != nil {
		return nil, err
	}
	b.logger.Info("key custody initialized")
	return resp.keys, nil
}

// CheckEscrows returns the candidates owned by the loaded identity, each with
// its shared secret.
func (b *Boundary) CheckEscrows(ctx context.Context, batch []Candidate) ([]Match, error) {
	resp, err := b.call(ctx, request{kind: kindCheckEscrows, batch: batch})
	if err != nil {
		return nil, err
	}
	return resp.matches, nil
}

// Wipe erases all key material. Init is required again afterwards.
func (b *Boundary) Wipe(ctx context.Context) error {
	_, err := b.call(ctx, request{kind: kindWipe})
	if err == nil {
		b.logger.Info("key custody wiped")
	}
	return err
}

// IsReady reports whether keys are loaded. Any failure to reach the custody
// goroutine reports false.
func (b *Boundary) IsReady(ctx context.Context) bool {
	resp, err := b.call(ctx, request{kind: kindIsReady})
	return err == nil && resp.ready
}

// Crashed reports whether the custody goroutine has died.
func (b *Boundary) Crashed() bool {
	select {
	case <-b.crashed:
		return true
	default:
		return false
	}
}

// Close wipes the keys and stops both goroutines. Pending requests fail with
// apierrors.ErrCustodyClosed.
func (b *Boundary) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	return nil
}
