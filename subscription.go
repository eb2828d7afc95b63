package stealthpool

import (
	"sync"
	"sync/atomic"
)

// subscription represents an active escrow subscription.
type subscription struct {
	id       uint64
	callback EscrowCallback
	active   atomic.Bool
}

// subscriptionManager handles escrow subscriptions with safe lifecycle
// management. It ensures callbacks are never invoked after unsubscription
// completes.
type subscriptionManager struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID atomic.Uint64
}

// newSubscriptionManager creates a new subscription manager.
func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		subs: make(map[uint64]*subscription),
	}
}

// subscribe registers a callback and returns the function that removes it.
func (m *subscriptionManager) subscribe(callback EscrowCallback) func() {
	sub := &subscription{
		id:       m.nextID.Add(1),
		callback: callback,
	}
	sub.active.Store(true)

	m.mu.Lock()
	m.subs[sub.id] = sub
	m.mu.Unlock()

	return func() {
		m.unsubscribe(sub.id)
	}
}

// unsubscribe removes a subscription. Safe to call multiple times.
func (m *subscriptionManager) unsubscribe(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[id]; ok {
		sub.active.Store(false) // Mark inactive before removing
		delete(m.subs, id)
	}
}

// notify calls every registered callback with its own copy of e, so each
// callback may wipe its shared secret independently. Callbacks run after the
// read lock is released.
func (m *subscriptionManager) notify(e *Escrow) {
	m.mu.RLock()
	if len(m.subs) == 0 {
		m.mu.RUnlock()
		return
	}

	// Copy subscriptions to avoid holding lock during callbacks
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.callback(e.clone())
		}
	}
}

// clear removes all subscriptions.
func (m *subscriptionManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		sub.active.Store(false)
	}
	m.subs = make(map[uint64]*subscription)
}
