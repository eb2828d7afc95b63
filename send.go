package stealthpool

import (
	"context"
	"fmt"

	"github.com/stealthpool/client-go/internal/confirm"
	"github.com/stealthpool/client-go/internal/crypto"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/lifecycle"
)

// Confirmation describes one confirmed (or optimistically assumed)
// transaction.
type Confirmation = confirm.Result

// SendParams describes one private payment.
type SendParams struct {
	// To is the recipient's meta-address.
	To *MetaAddress
	// Amount in lamports.
	Amount uint64
	// Destination is the address the recipient withdraws to, sealed so only
	// the recipient can read it. Defaults to the recipient's spend key.
	Destination Address
	// SequenceFloor skips sequence ids up to and including it. Zero starts
	// from the pool cursor.
	SequenceFloor uint64
}

// DepositReceipt reports how far a payment got.
type DepositReceipt struct {
	SequenceID    uint64
	Deposit       Address
	StealthPubkey Address
	Amount        uint64
	State         DepositState
	// Optimistic is set when any step was assumed landed after its
	// confirmation budget ran out. Check DepositStatus before relying on it.
	Optimistic bool
	Signatures []string
}

// Send pays p.Amount to the stealth identity behind p.To.
//
// The deposit is created, its ciphertext uploaded and the deposit completed,
// each step confirmed before the next. On failure after creation the returned
// receipt is non-nil and holds the last state reached; a deposit that never
// completed can be recovered with AbandonDeposit.
func (c *Client) Send(ctx context.Context, p SendParams) (*DepositReceipt, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if err := p.To.Validate(); err != nil {
		return nil, err
	}

	enc, err := crypto.Encapsulate(&p.To.KEM)
	if err != nil {
		return nil, &CryptoError{Op: "encapsulate", Err: err}
	}
	defer crypto.Wipe(enc.SharedSecret)

	dest := p.Destination
	if dest.IsZero() {
		if dest, err = ledger.AddressFromBytes(p.To.SpendPubkey); err != nil {
			return nil, err
		}
	}
	sealed, err := crypto.EncryptDestination(dest[:], enc.SharedSecret)
	if err != nil {
		return nil, &CryptoError{Op: "encrypt destination", Err: err}
	}

	params := &lifecycle.DepositParams{
		Amount:        p.Amount,
		StealthPubkey: crypto.DeriveStealthPubkey(enc.SharedSecret),
		ViewTag:       crypto.DeriveViewTag(enc.SharedSecret),
		Ciphertext:    enc.Ciphertext,
	}
	copy(params.EphemeralPubkey[:], enc.EphemeralPubkey())
	copy(params.EncryptedDestination[:], sealed)

	r, err := c.sender.Deposit(ctx, params, p.SequenceFloor)
	if r == nil {
		return nil, err
	}
	receipt := &DepositReceipt{
		SequenceID:    r.SequenceID,
		Deposit:       r.Deposit,
		StealthPubkey: Address(params.StealthPubkey),
		Amount:        p.Amount,
		State:         r.State,
		Optimistic:    r.Optimistic,
		Signatures:    r.Signatures,
	}
	return receipt, err
}

// NextSequenceID returns the first free deposit id above both the pool
// cursor and floor.
func (c *Client) NextSequenceID(ctx context.Context, floor uint64) (uint64, error) {
	if err := c.checkClosed(); err != nil {
		return 0, err
	}
	return c.sender.NextSequenceID(ctx, floor)
}

// DepositStatus is the observed lifecycle position of one deposit.
type DepositStatus = lifecycle.DepositStatus

// DepositStatus reads a deposit and the escrows derived from it and reports
// its lifecycle state.
func (c *Client) DepositStatus(ctx context.Context, sequenceID uint64) (*DepositStatus, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.sender.Status(ctx, sequenceID)
}

// AbandonDeposit closes a deposit that never completed and returns its rent
// to the sender. Completed deposits fail with ErrDepositCompleted.
func (c *Client) AbandonDeposit(ctx context.Context, sequenceID uint64) (*Confirmation, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.sender.AbandonDeposit(ctx, sequenceID)
}
