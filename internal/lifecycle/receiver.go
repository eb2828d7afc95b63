package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/confirm"
	"github.com/stealthpool/client-go/internal/crypto"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/program"
)

// Receiver runs the recipient's side: claim on the rollup, withdraw on the
// base ledger.
type Receiver struct {
	program      *program.Program
	base         ledger.Client
	rollup       ledger.Client
	signer       ledger.Signer
	rollupSubmit *Submitter
	baseSubmit   *Submitter
	logger       *slog.Logger

	withdrawals keyedMutex
}

// NewReceiver returns a Receiver for cfg.
func NewReceiver(cfg Config) (*Receiver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Receiver{
		program:      cfg.Program,
		base:         cfg.Base,
		rollup:       cfg.Rollup,
		signer:       cfg.Signer,
		rollupSubmit: cfg.submitter(cfg.Rollup),
		baseSubmit:   cfg.submitter(cfg.Base),
		logger:       logging.Sanitize(cfg.Logger),
	}, nil
}

// OutputEscrow reads the escrow for stealthPubkey, from the rollup first and
// the base ledger second.
func (r *Receiver) OutputEscrow(ctx context.Context, stealthPubkey [32]byte) (*OutputEscrowView, error) {
	return ReadOutputEscrow(ctx, r.program, stealthPubkey,
		ledger.Source{Domain: ledger.DomainRollup, Client: r.rollup},
		ledger.Source{Domain: ledger.DomainBase, Client: r.base})
}

// ClaimResult reports the outcome of a claim.
type ClaimResult struct {
	*confirm.Result
	// AlreadyClaimed is set when the escrow was verified for the same
	// destination before this call; nothing was submitted.
	AlreadyClaimed bool
}

// ClaimEscrow asks the TEE to verify ownership of the escrow at
// stealthPubkey and bind it to destination. The shared secret is checked
// locally first so a wrong secret never reaches the ledger, and an escrow
// that does not yet hold its amount is refused with ErrNotFunded.
func (r *Receiver) ClaimEscrow(ctx context.Context, stealthPubkey [32]byte, sharedSecret []byte, destination ledger.Address) (*ClaimResult, error) {
	if len(sharedSecret) != crypto.SharedSecretSize {
		return nil, &apierrors.CryptoError{Op: "claim escrow", Err: crypto.ErrInvalidSharedSecret}
	}
	if !crypto.IsOwner(sharedSecret, stealthPubkey[:]) {
		return nil, apierrors.ErrOwnershipMismatch
	}

	view, err := r.OutputEscrow(ctx, stealthPubkey)
	if err != nil {
		return nil, fmt.Errorf("claim escrow: %w", err)
	}
	if view.Escrow.IsVerified {
		if view.Escrow.VerifiedDestination != destination {
			return nil, fmt.Errorf("%w: escrow already verified for another destination", apierrors.ErrUnauthorized)
		}
		return &ClaimResult{AlreadyClaimed: true}, nil
	}
	if view.Domain != ledger.DomainRollup {
		return nil, fmt.Errorf("claim escrow: %w: escrow is not delegated to the rollup", apierrors.ErrAccountNotFound)
	}
	if !view.Funded() {
		return nil, fmt.Errorf("claim escrow: %w: holds %d of %d lamports", apierrors.ErrNotFunded, view.Lamports, view.Escrow.Amount)
	}

	args := program.ClaimEscrowArgs{Destination: destination}
	copy(args.SharedSecret[:], sharedSecret)
	defer crypto.Wipe(args.SharedSecret[:])

	ix, err := r.program.ClaimEscrow(r.signer.PublicKey(), stealthPubkey, args)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(ix.Data)

	res, err := r.rollupSubmit.Submit(ctx, "claim_escrow", ix)
	if err != nil {
		return nil, err
	}
	r.logger.Info("escrow claimed", "stealth_pubkey", ledger.Address(stealthPubkey).String(), "destination", destination.String(), "optimistic", res.Optimistic)
	return &ClaimResult{Result: res}, nil
}

// CheckWithdrawable reads the escrow on the base ledger and verifies that a
// withdrawal to destination can succeed.
func (r *Receiver) CheckWithdrawable(ctx context.Context, stealthPubkey [32]byte, destination ledger.Address) (*OutputEscrowView, error) {
	view, err := ReadOutputEscrow(ctx, r.program, stealthPubkey, ledger.Source{Domain: ledger.DomainBase, Client: r.base})
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	esc := view.Escrow
	switch {
	case esc.IsWithdrawn:
		return nil, apierrors.ErrAlreadyWithdrawn
	case !esc.IsVerified:
		return nil, apierrors.ErrNotVerified
	case esc.VerifiedDestination != destination:
		return nil, fmt.Errorf("%w: destination does not match the verified one", apierrors.ErrUnauthorized)
	}
	return view, nil
}

// Withdraw releases a verified escrow to destination, paying the fee from the
// signer. Withdrawals of one escrow are serialized within this process; the
// program's withdrawn flag guards against every other payer.
func (r *Receiver) Withdraw(ctx context.Context, stealthPubkey [32]byte, destination ledger.Address) (*confirm.Result, error) {
	unlock := r.withdrawals.lock(stealthPubkey)
	defer unlock()

	view, err := r.CheckWithdrawable(ctx, stealthPubkey, destination)
	if err != nil {
		return nil, err
	}
	ix, err := r.program.Withdraw(r.signer.PublicKey(), stealthPubkey, destination)
	if err != nil {
		return nil, err
	}
	res, err := r.baseSubmit.Submit(ctx, "withdraw", ix)
	if err != nil {
		return nil, err
	}
	r.logger.Info("escrow withdrawn", "destination", destination.String(), "amount", view.Escrow.Amount, "optimistic", res.Optimistic)
	return res, nil
}

// keyedMutex serializes work per 32-byte key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[[32]byte]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key [32]byte) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[[32]byte]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
