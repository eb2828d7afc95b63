package stealthpool

import (
	"context"
	"errors"
	"sync"

	"github.com/stealthpool/client-go/internal/watch"
)

// Subscription represents an active subscription that can be unsubscribed.
type Subscription interface {
	// Unsubscribe stops the subscription and releases resources.
	Unsubscribe()
}

// EscrowCallback is called when an owned escrow is discovered or changes
// state. The escrow is the callback's own copy; it should Wipe it when done.
type EscrowCallback func(e *Escrow)

// EscrowMonitor scans for owned escrows in the background with an adaptive
// interval: it polls faster while new escrows keep appearing and backs off
// while nothing changes.
//
// Callbacks run on the monitor's goroutine, one at a time. Unsubscribe must
// not be called from inside a callback.
type EscrowMonitor struct {
	client *Client
	cache  *ScanCache
	subs   *subscriptionManager
	poller *watch.Poller

	mu      sync.Mutex
	seen    map[Address]DepositState
	onError func(error)
	started bool
}

// internalSubscription implements the Subscription interface.
type internalSubscription struct {
	cancel func()
}

func (s *internalSubscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

// MonitorEscrows returns a monitor for escrows owned by the unlocked
// identity. Polling starts with the first OnEscrow.
func (c *Client) MonitorEscrows() (*EscrowMonitor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	m := &EscrowMonitor{
		client: c,
		cache:  NewScanCache(),
		subs:   newSubscriptionManager(),
		seen:   make(map[Address]DepositState),
	}
	m.poller = watch.New(c.polling, m.poll,
		watch.WithLogger(c.logger),
		watch.WithErrorHandler(m.handleError),
	)
	c.monitors = append(c.monitors, m)
	return m, nil
}

// OnEscrow registers a callback for escrows discovered by any later scan.
// Returns a Subscription that can be used to unsubscribe this specific
// callback.
func (m *EscrowMonitor) OnEscrow(callback EscrowCallback) Subscription {
	unsub := m.subs.subscribe(callback)
	m.startMonitoring()
	return &internalSubscription{cancel: unsub}
}

// OnError registers a callback for scan failures. Failed scans are retried on
// the normal schedule.
func (m *EscrowMonitor) OnError(callback func(error)) {
	m.mu.Lock()
	m.onError = callback
	m.mu.Unlock()
}

// Refresh requests a scan now.
func (m *EscrowMonitor) Refresh() {
	m.poller.Trigger()
}

// Unsubscribe stops monitoring and releases all resources.
func (m *EscrowMonitor) Unsubscribe() {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()

	_ = m.poller.Stop()
	m.subs.clear()
}

// startMonitoring begins polling if not already started.
func (m *EscrowMonitor) startMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	if err := m.poller.Start(context.Background()); err != nil && !errors.Is(err, watch.ErrAlreadyStarted) {
		m.started = false //coverage:ignore
	}
}

func (m *EscrowMonitor) handleError(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// poll runs one scan and emits escrows that are new or changed state.
func (m *EscrowMonitor) poll(ctx context.Context) (bool, error) {
	res, err := m.client.Scan(ctx, m.cache, 0)
	if err != nil {
		return false, err
	}
	defer res.Wipe()

	var fresh []*Escrow
	m.mu.Lock()
	for _, e := range res.Escrows {
		if prev, ok := m.seen[e.StealthPubkey]; ok && prev == e.State {
			continue
		}
		m.seen[e.StealthPubkey] = e.State
		fresh = append(fresh, e)
	}
	m.mu.Unlock()

	for _, e := range fresh {
		m.subs.notify(e)
	}
	return len(fresh) > 0, nil
}

// WaitForEscrow scans until an owned escrow matching the options appears and
// returns it. The caller must Wipe the returned escrow.
func (c *Client) WaitForEscrow(ctx context.Context, opts ...WaitOption) (*Escrow, error) {
	if _, err := c.MetaAddress(); err != nil {
		return nil, err
	}

	cfg := &waitConfig{
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	cache := NewScanCache()
	var found *Escrow
	err := watch.Until(ctx, c.polling, func(ctx context.Context) (bool, error) {
		res, err := c.Scan(ctx, cache, 0)
		if err != nil {
			return false, err
		}
		defer res.Wipe()
		for _, e := range res.Escrows {
			if cfg.Matches(e) {
				found = e.clone()
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
