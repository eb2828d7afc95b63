package stealthpool

import (
	"errors"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/crypto"
	"github.com/stealthpool/client-go/internal/relay"
)

// Sentinel errors for errors.Is() checks. They are shared with the internal
// packages, so a check works no matter which layer produced the error.
var (
	// ErrMissingSigner is returned when New is called without a wallet.
	ErrMissingSigner = errors.New("signer is required")

	// ErrMissingEndpoint is returned when no base or rollup ledger is configured.
	ErrMissingEndpoint = errors.New("base and rollup endpoints are required")

	// ErrMissingProgram is returned when no program id is configured.
	ErrMissingProgram = errors.New("program id is required")

	// ErrInvalidMetaAddress is returned when a meta-address does not parse or
	// its KEM key is not bound to its spend key.
	ErrInvalidMetaAddress = errors.New("invalid meta-address")

	// ErrNoDestination is returned when a claim has no destination and none
	// could be decrypted from the deposit.
	ErrNoDestination = errors.New("no withdrawal destination")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = apierrors.ErrClientClosed

	ErrNotInitialized     = apierrors.ErrNotInitialized
	ErrAlreadyInitialized = apierrors.ErrAlreadyInitialized
	ErrCustodyCrashed     = apierrors.ErrCustodyCrashed
	ErrCustodyTimeout     = apierrors.ErrCustodyTimeout
	ErrCustodyClosed      = apierrors.ErrCustodyClosed

	ErrSequenceConflict     = apierrors.ErrSequenceConflict
	ErrNotVerified          = apierrors.ErrNotVerified
	ErrAlreadyWithdrawn     = apierrors.ErrAlreadyWithdrawn
	ErrNotFunded            = apierrors.ErrNotFunded
	ErrOwnershipMismatch    = apierrors.ErrOwnershipMismatch
	ErrSubmissionTimeout    = apierrors.ErrSubmissionTimeout
	ErrLedgerRejected       = apierrors.ErrLedgerRejected
	ErrBlockhashExpired     = apierrors.ErrBlockhashExpired
	ErrAccountNotFound      = apierrors.ErrAccountNotFound
	ErrDepositCompleted     = apierrors.ErrDepositCompleted
	ErrCiphertextIncomplete = apierrors.ErrCiphertextIncomplete
	ErrInvalidChunk         = apierrors.ErrInvalidChunk
	ErrUnauthorized         = apierrors.ErrUnauthorized
	ErrInvalidAmount        = apierrors.ErrInvalidAmount
	ErrInvalidTransition    = apierrors.ErrInvalidTransition
	ErrRateLimited          = apierrors.ErrRateLimited

	// Cryptographic input errors. They are fatal for the given input.
	ErrInvalidCiphertext    = crypto.ErrInvalidCiphertext
	ErrInvalidPublicKeySize = crypto.ErrInvalidPublicKeySize
	ErrInvalidSharedSecret  = crypto.ErrInvalidSharedSecret
	ErrAuthenticationFailed = crypto.ErrAuthenticationFailed
)

// StealthPoolError is implemented by all typed errors of the SDK.
type StealthPoolError = apierrors.StealthPoolError

// Typed errors. Use errors.As to inspect them.
type (
	// LedgerRejectedError is a decoded on-chain rejection.
	LedgerRejectedError = apierrors.LedgerRejectedError

	// SubmissionTimeoutError means a transaction was sent but not seen
	// confirmed. It may still land; re-check state before retrying.
	SubmissionTimeoutError = apierrors.SubmissionTimeoutError

	// RPCError is a JSON-RPC error object from a ledger node.
	RPCError = apierrors.RPCError

	// NetworkError is a transport failure.
	NetworkError = apierrors.NetworkError

	// HTTPError is a non-2xx response from a ledger node.
	HTTPError = apierrors.HTTPError

	// CryptoError wraps a cryptographic failure with its operation.
	CryptoError = apierrors.CryptoError

	// RelayError is a refusal from the withdrawal relay.
	RelayError = relay.Error
)

// IsProcessing reports whether err means the outcome is not yet known: the
// transaction was broadcast but its confirmation was not observed. Show the
// user "processing", not "failed".
func IsProcessing(err error) bool {
	return errors.Is(err, ErrSubmissionTimeout)
}

// IsRetryable reports whether repeating the failed operation may succeed
// without changing its input.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrBlockhashExpired),
		errors.Is(err, ErrSequenceConflict),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrNotFunded),
		errors.Is(err, ErrCustodyTimeout):
		return true
	case errors.Is(err, ErrNotVerified),
		errors.Is(err, ErrAlreadyWithdrawn),
		errors.Is(err, ErrOwnershipMismatch):
		return false
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
