package stealthpool

import (
	"context"
	"errors"
	"fmt"

	"github.com/stealthpool/client-go/internal/crypto"
	"github.com/stealthpool/client-go/internal/lifecycle"
	"github.com/stealthpool/client-go/internal/relay"
	"github.com/stealthpool/client-go/internal/scanner"
	"github.com/stealthpool/client-go/internal/watch"
)

// ScanCache remembers deposits already fetched and the highest sequence id
// below which nothing is left to fetch. The caller owns it and passes it to
// every scan; concurrent scans sharing one cache are serialized.
type ScanCache = scanner.Cache

// NewScanCache returns an empty cache. The first scan with it lists every
// deposit at once.
func NewScanCache() *ScanCache {
	return scanner.NewCache()
}

// OutputEscrowView is an output escrow and the domain it was read from.
type OutputEscrowView = lifecycle.OutputEscrowView

// Escrow is a payment owned by the unlocked identity.
type Escrow struct {
	SequenceID    uint64
	StealthPubkey Address
	Amount        uint64
	// SharedSecret proves ownership when claiming. Call Wipe once done.
	SharedSecret []byte
	// Destination is the withdrawal address the sender sealed for the
	// recipient, nil if it did not open.
	Destination *Address
	// Output is nil until the automation agent has created the escrow.
	Output *OutputEscrowView
	State  DepositState
	// Legacy marks a payment from an Ed25519-only sender.
	Legacy bool
}

func escrowFromMatch(m *scanner.Match) *Escrow {
	return &Escrow{
		SequenceID:    m.SequenceID,
		StealthPubkey: Address(m.StealthPubkey),
		Amount:        m.Amount,
		SharedSecret:  m.SharedSecret,
		Destination:   m.Destination,
		Output:        m.Escrow,
		State:         m.State,
		Legacy:        m.Legacy,
	}
}

// clone copies e with its own shared secret buffer.
func (e *Escrow) clone() *Escrow {
	out := *e
	out.SharedSecret = append([]byte(nil), e.SharedSecret...)
	if e.Destination != nil {
		d := *e.Destination
		out.Destination = &d
	}
	return &out
}

// Claimable reports whether the escrow is funded and not yet claimed.
func (e *Escrow) Claimable() bool {
	return e.State == StateOutputFunded
}

// Wipe erases the shared secret.
func (e *Escrow) Wipe() {
	crypto.Wipe(e.SharedSecret)
	e.SharedSecret = nil
}

// ScanResult is the outcome of one scan.
type ScanResult struct {
	Escrows []*Escrow
	// UpTo is the pool cursor the scan ran against.
	UpTo uint64
	// Full is set when deposits were listed at once instead of fetched one
	// by one.
	Full bool
	// Pending counts deposits the sender has not completed yet, so they may
	// still be abandoned. Failed counts the ones that could not be read. A
	// later scan picks both up again.
	Pending int
	Failed  int
}

// Wipe erases every escrow's shared secret.
func (r *ScanResult) Wipe() {
	for _, e := range r.Escrows {
		e.Wipe()
	}
}

// Scan finds the escrows owned by the unlocked identity among deposits up to
// upTo, or up to the current pool cursor when upTo is zero. Deposits already
// in cache are not fetched again.
func (c *Client) Scan(ctx context.Context, cache *ScanCache, upTo uint64) (*ScanResult, error) {
	if _, err := c.MetaAddress(); err != nil {
		return nil, err
	}
	res, err := c.scanner.Scan(ctx, cache, upTo)
	if err != nil {
		return nil, err
	}
	out := &ScanResult{
		Escrows: make([]*Escrow, 0, len(res.Matches)),
		UpTo:    res.UpTo,
		Full:    res.Full,
		Pending: res.Pending,
		Failed:  res.Failed,
	}
	for _, m := range res.Matches {
		out.Escrows = append(out.Escrows, escrowFromMatch(m))
	}
	return out, nil
}

// GetOutputEscrow reads the escrow for stealthPubkey from the rollup, or from
// the base ledger once it has been committed back.
func (c *Client) GetOutputEscrow(ctx context.Context, stealthPubkey Address) (*OutputEscrowView, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.receiver.OutputEscrow(ctx, stealthPubkey)
}

// ClaimResult reports the outcome of a claim.
type ClaimResult = lifecycle.ClaimResult

// resolveDestination picks the explicit destination, falling back to the one
// sealed in the deposit.
func resolveDestination(e *Escrow, destination Address) (Address, error) {
	if !destination.IsZero() {
		return destination, nil
	}
	if e.Destination != nil && !e.Destination.IsZero() {
		return *e.Destination, nil
	}
	return Address{}, ErrNoDestination
}

// Claim proves ownership of e to the rollup and binds it to destination. A
// zero destination selects the one sealed in the deposit. Claiming an escrow
// already claimed for the same destination succeeds without submitting.
func (c *Client) Claim(ctx context.Context, e *Escrow, destination Address) (*ClaimResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	dest, err := resolveDestination(e, destination)
	if err != nil {
		return nil, err
	}
	return c.receiver.ClaimEscrow(ctx, e.StealthPubkey, e.SharedSecret, dest)
}

// WithdrawResult reports a withdrawal.
type WithdrawResult struct {
	Signature string
	// Optimistic is set when confirmation was assumed after the polling
	// budget ran out.
	Optimistic bool
	// Relayed is set when the relay paid the fee.
	Relayed bool
}

// Withdraw releases a claimed escrow to destination on the base ledger. With
// a relay configured the relay submits and pays for it; otherwise the wallet
// does.
func (c *Client) Withdraw(ctx context.Context, stealthPubkey, destination Address) (*WithdrawResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if c.relay == nil {
		res, err := c.receiver.Withdraw(ctx, stealthPubkey, destination)
		if err != nil {
			return nil, err
		}
		return &WithdrawResult{Signature: res.Signature, Optimistic: res.Optimistic}, nil
	}

	if _, err := c.receiver.CheckWithdrawable(ctx, stealthPubkey, destination); err != nil {
		return nil, err
	}
	resp, err := c.relay.Withdraw(ctx, relay.WithdrawRequest{StealthPubkey: stealthPubkey, Destination: destination})
	if err != nil {
		return nil, err
	}
	out := &WithdrawResult{Signature: resp.Signature, Relayed: true}
	if resp.Confirmed {
		return out, nil
	}
	res, err := c.poller.Wait(ctx, c.base, resp.Signature)
	if err != nil {
		return nil, err
	}
	out.Optimistic = res.Optimistic
	return out, nil
}

// ClaimAndWithdraw claims e and, once the claim is visible on the base
// ledger, withdraws it to destination. A zero destination selects the one
// sealed in the deposit. The wait for the rollup to commit the claim is
// bounded by ctx.
func (c *Client) ClaimAndWithdraw(ctx context.Context, e *Escrow, destination Address) (*WithdrawResult, error) {
	dest, err := resolveDestination(e, destination)
	if err != nil {
		return nil, err
	}
	if _, err := c.Claim(ctx, e, dest); err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}

	var terminal error
	err = watch.Until(ctx, c.polling, func(ctx context.Context) (bool, error) {
		_, err := c.receiver.CheckWithdrawable(ctx, e.StealthPubkey, dest)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrAlreadyWithdrawn), errors.Is(err, ErrUnauthorized):
			terminal = err
			return true, nil
		}
		// not committed back yet
		return false, err
	})
	if err != nil {
		return nil, fmt.Errorf("wait for claim on base ledger: %w", err)
	}
	if terminal != nil {
		return nil, terminal
	}

	res, err := c.Withdraw(ctx, e.StealthPubkey, dest)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	return res, nil
}
