package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/program"
)

// OutputEscrowView is an output escrow together with where it was read.
type OutputEscrowView struct {
	Address ledger.Address
	Domain  ledger.Domain
	Escrow  *program.OutputEscrow
	// Lamports is the account balance, the escrowed amount plus rent until
	// withdrawal.
	Lamports uint64
}

// Funded reports whether the escrow holds its full amount.
func (v *OutputEscrowView) Funded() bool {
	return v.Escrow.Amount > 0 && v.Lamports >= v.Escrow.Amount
}

// State maps the escrow flags to the lifecycle position they imply.
func (v *OutputEscrowView) State() State {
	switch {
	case v.Escrow.IsWithdrawn:
		return StateWithdrawn
	case v.Escrow.IsVerified:
		return StateClaimed
	case v.Funded():
		return StateOutputFunded
	default:
		return StateOutputPrepared
	}
}

// ReadOutputEscrow reads the escrow for stealthPubkey from the first source
// that has it.
func ReadOutputEscrow(ctx context.Context, prog *program.Program, stealthPubkey [32]byte, sources ...ledger.Source) (*OutputEscrowView, error) {
	addr, err := prog.OutputEscrowAddress(stealthPubkey)
	if err != nil {
		return nil, err
	}
	acc, domain, err := ledger.FetchFirst(ctx, addr, sources...)
	if err != nil {
		return nil, err
	}
	esc, err := program.DecodeOutputEscrow(acc.Data)
	if err != nil {
		return nil, err
	}
	return &OutputEscrowView{Address: addr, Domain: domain, Escrow: esc, Lamports: acc.Lamports}, nil
}

// DepositStatus is the observed lifecycle position of one deposit.
type DepositStatus struct {
	SequenceID uint64
	State      State
	// Domain is where the record was read; the rollup once delegated.
	Domain ledger.Domain
	Record *program.DepositRecord
	Input  *program.InputEscrow
	Output *OutputEscrowView
}

// Status reads the record, its input escrow and, once the automation agent
// has run, its output escrow, and derives the lifecycle state. An abandoned
// or never-created id fails with apierrors.ErrAccountNotFound.
func (s *Sender) Status(ctx context.Context, id uint64) (*DepositStatus, error) {
	depositAddr, err := s.program.DepositAddress(id)
	if err != nil {
		return nil, err
	}
	inputAddr, err := s.program.InputEscrowAddress(id)
	if err != nil {
		return nil, err
	}
	sources := []ledger.Source{{Domain: ledger.DomainRollup, Client: s.rollup}, {Domain: ledger.DomainBase, Client: s.base}}

	acc, domain, err := ledger.FetchFirst(ctx, depositAddr, sources...)
	if err != nil {
		return nil, fmt.Errorf("deposit %d: %w", id, err)
	}
	rec, err := program.DecodeDepositRecord(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("deposit %d: %w", id, err)
	}
	st := &DepositStatus{SequenceID: id, Domain: domain, Record: rec, State: StateCreated}
	if rec.Uploaded {
		st.State = StateCiphertextUploaded
	}

	inAcc, _, err := ledger.FetchFirst(ctx, inputAddr, sources...)
	switch {
	case errors.Is(err, apierrors.ErrAccountNotFound):
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("input escrow %d: %w", id, err)
	}
	if st.Input, err = program.DecodeInputEscrow(inAcc.Data); err != nil {
		return nil, fmt.Errorf("input escrow %d: %w", id, err)
	}
	st.State = StateCompleted
	if !rec.Executed && !st.Input.Pooled {
		return st, nil
	}
	st.State = StatePooledInput

	out, err := ReadOutputEscrow(ctx, s.program, rec.StealthPubkey, sources...)
	switch {
	case errors.Is(err, apierrors.ErrAccountNotFound):
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("output escrow for deposit %d: %w", id, err)
	}
	st.Output = out
	st.State = out.State()
	return st, nil
}
