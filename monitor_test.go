package stealthpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stealthpool/client-go/internal/ledgertest"
)

func receiveEscrow(t *testing.T, ch <-chan *Escrow) *Escrow {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for escrow")
		return nil
	}
}

func TestEscrowMonitor_EmitsNewAndChangedEscrows(t *testing.T) {
	l := ledgertest.New()
	alice, _ := newTestClient(t, l, "alice")
	bob, _ := newTestClient(t, l, "bob")
	meta := unlockedMeta(t, bob)
	ctx := context.Background()

	mon, err := bob.MonitorEscrows()
	if err != nil {
		t.Fatalf("MonitorEscrows() error = %v", err)
	}
	defer mon.Unsubscribe()

	ch := make(chan *Escrow, 10)
	mon.OnEscrow(func(e *Escrow) { ch <- e })

	receipt, err := alice.Send(ctx, SendParams{To: meta, Amount: 4000})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	first := receiveEscrow(t, ch)
	if first.SequenceID != receipt.SequenceID || first.State != StateCompleted {
		t.Errorf("first event = seq %d state %v, want seq %d state %v", first.SequenceID, first.State, receipt.SequenceID, StateCompleted)
	}
	first.Wipe()

	if _, err := l.CrankAll(); err != nil {
		t.Fatal(err)
	}
	mon.Refresh()

	second := receiveEscrow(t, ch)
	if second.StealthPubkey != receipt.StealthPubkey || second.State != StateOutputFunded {
		t.Errorf("second event state = %v, want %v", second.State, StateOutputFunded)
	}
	second.Wipe()

	select {
	case e := <-ch:
		t.Errorf("unexpected event for an unchanged escrow: state %v", e.State)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEscrowMonitor_CallbacksGetOwnCopies(t *testing.T) {
	l := ledgertest.New()
	alice, _ := newTestClient(t, l, "alice")
	bob, _ := newTestClient(t, l, "bob")
	meta := unlockedMeta(t, bob)

	mon, err := bob.MonitorEscrows()
	if err != nil {
		t.Fatalf("MonitorEscrows() error = %v", err)
	}
	defer mon.Unsubscribe()

	ch1 := make(chan *Escrow, 4)
	ch2 := make(chan *Escrow, 4)
	mon.OnEscrow(func(e *Escrow) {
		e.Wipe()
		ch1 <- e
	})
	mon.OnEscrow(func(e *Escrow) { ch2 <- e })

	if _, err := alice.Send(context.Background(), SendParams{To: meta, Amount: 1000}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	receiveEscrow(t, ch1)
	e := receiveEscrow(t, ch2)
	if len(e.SharedSecret) == 0 {
		t.Error("wiping one callback's escrow wiped another's")
	}
	e.Wipe()
}

func TestEscrowMonitor_SubscriptionUnsubscribe(t *testing.T) {
	l := ledgertest.New()
	alice, _ := newTestClient(t, l, "alice")
	bob, _ := newTestClient(t, l, "bob")
	meta := unlockedMeta(t, bob)
	ctx := context.Background()

	mon, err := bob.MonitorEscrows()
	if err != nil {
		t.Fatalf("MonitorEscrows() error = %v", err)
	}
	defer mon.Unsubscribe()

	var dropped atomic.Int32
	sub := mon.OnEscrow(func(e *Escrow) { dropped.Add(1) })
	sub.Unsubscribe()

	ch := make(chan *Escrow, 4)
	mon.OnEscrow(func(e *Escrow) { ch <- e })

	if _, err := alice.Send(ctx, SendParams{To: meta, Amount: 1000}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	receiveEscrow(t, ch).Wipe()

	if n := dropped.Load(); n != 0 {
		t.Errorf("unsubscribed callback called %d times", n)
	}
}

func TestEscrowMonitor_OnError(t *testing.T) {
	l := ledgertest.New()
	bob, _ := newTestClient(t, l, "bob")

	mon, err := bob.MonitorEscrows()
	if err != nil {
		t.Fatalf("MonitorEscrows() error = %v", err)
	}
	defer mon.Unsubscribe()

	errs := make(chan error, 4)
	mon.OnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	mon.OnEscrow(func(e *Escrow) {})

	select {
	case err := <-errs:
		if !errors.Is(err, ErrNotInitialized) {
			t.Errorf("error = %v, want ErrNotInitialized", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scan error")
	}
}

func TestEscrowMonitor_StoppedByClose(t *testing.T) {
	l := ledgertest.New()
	bob, _ := newTestClient(t, l, "bob")
	unlockedMeta(t, bob)

	mon, err := bob.MonitorEscrows()
	if err != nil {
		t.Fatalf("MonitorEscrows() error = %v", err)
	}
	mon.OnEscrow(func(e *Escrow) {})
	if !mon.poller.Running() {
		t.Fatal("monitor did not start polling")
	}

	if err := bob.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if mon.poller.Running() {
		t.Error("monitor still polling after Close")
	}
}

func TestWaitForEscrow(t *testing.T) {
	l := ledgertest.New()
	alice, _ := newTestClient(t, l, "alice")
	bob, _ := newTestClient(t, l, "bob")
	meta := unlockedMeta(t, bob)
	ctx := context.Background()

	for _, amount := range []uint64{1000, 5 * ledgertest.LamportsPerSOL} {
		if _, err := alice.Send(ctx, SendParams{To: meta, Amount: amount}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	e, err := bob.WaitForEscrow(ctx, WithMinAmount(ledgertest.LamportsPerSOL), WithWaitTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("WaitForEscrow() error = %v", err)
	}
	defer e.Wipe()
	if e.Amount != 5*ledgertest.LamportsPerSOL {
		t.Errorf("Amount = %d, want %d", e.Amount, 5*ledgertest.LamportsPerSOL)
	}
}

func TestWaitForEscrow_ArrivesLater(t *testing.T) {
	l := ledgertest.New()
	alice, _ := newTestClient(t, l, "alice")
	bob, _ := newTestClient(t, l, "bob")
	meta := unlockedMeta(t, bob)

	go func() {
		time.Sleep(30 * time.Millisecond)
		alice.Send(context.Background(), SendParams{To: meta, Amount: 7000})
	}()

	e, err := bob.WaitForEscrow(context.Background(), WithPredicate(func(e *Escrow) bool {
		return e.Amount == 7000
	}), WithWaitTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("WaitForEscrow() error = %v", err)
	}
	e.Wipe()
}

func TestWaitForEscrow_Timeout(t *testing.T) {
	l := ledgertest.New()
	bob, _ := newTestClient(t, l, "bob")
	unlockedMeta(t, bob)

	_, err := bob.WaitForEscrow(context.Background(), WithWaitTimeout(50*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForEscrow() error = %v, want context.DeadlineExceeded", err)
	}
}
