package ledger

import (
	"context"
	"fmt"
)

// Domain identifies one of the two settlement layers.
type Domain int

const (
	// DomainBase is the durable base ledger.
	DomainBase Domain = iota
	// DomainRollup is the delegated TEE rollup.
	DomainRollup
)

func (d Domain) String() string {
	switch d {
	case DomainBase:
		return "base"
	case DomainRollup:
		return "rollup"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// Commitment is the confirmation level requested from a node.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Account is the state of one ledger account.
type Account struct {
	Owner      Address
	Lamports   uint64
	Data       []byte
	Executable bool
}

// KeyedAccount pairs an account with its address.
type KeyedAccount struct {
	Pubkey  Address
	Account Account
}

// Filter narrows a program-accounts query. A zero DataSize and nil Memcmp match
// everything.
type Filter struct {
	DataSize uint64
	Memcmp   *MemcmpFilter
}

// MemcmpFilter matches accounts whose data contains Bytes at Offset.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// DataSizeFilter returns a filter matching accounts of exactly n bytes.
func DataSizeFilter(n uint64) Filter {
	return Filter{DataSize: n}
}

// MemcmpAt returns a filter matching b at offset.
func MemcmpAt(offset uint64, b []byte) Filter {
	return Filter{Memcmp: &MemcmpFilter{Offset: offset, Bytes: b}}
}

// Blockhash is a recent blockhash with its expiry height.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus reports the processing state of a submitted transaction.
// Err is non-nil when the transaction landed but failed.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus Commitment
	Err                error
}

// Confirmed reports whether the status has reached at least confirmed.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}

// Client is the node surface used by the lifecycle and the scanner.
//
// GetAccountInfo returns apierrors.ErrAccountNotFound for a missing account.
// GetSignatureStatuses returns one entry per signature, nil for unknown ones.
type Client interface {
	GetAccountInfo(ctx context.Context, address Address) (*Account, error)
	GetProgramAccounts(ctx context.Context, program Address, filters ...Filter) ([]KeyedAccount, error)
	GetLatestBlockhash(ctx context.Context) (Blockhash, error)
	SendTransaction(ctx context.Context, signed []byte) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}
