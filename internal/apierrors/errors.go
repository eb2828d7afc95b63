// Package apierrors provides the shared error taxonomy for the stealth pool client.
//
// Every layer (crypto, custody, rpc, lifecycle, scanner) reports failures with the
// sentinels and typed errors defined here so that callers can classify any error
// with errors.Is / errors.As regardless of where it originated.
package apierrors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrNotInitialized is returned when a custody operation runs before Init.
	ErrNotInitialized = errors.New("key custody not initialized")

	// ErrAlreadyInitialized is returned by an exclusive Init when keys are already loaded.
	ErrAlreadyInitialized = errors.New("key custody already initialized")

	// ErrCustodyCrashed is returned for every request that was in flight (or is
	// issued later) after the isolated custody context died.
	ErrCustodyCrashed = errors.New("key custody context crashed")

	// ErrCustodyTimeout is returned when the custody context does not answer in time.
	ErrCustodyTimeout = errors.New("key custody request timed out")

	// ErrCustodyClosed is returned after the custody boundary has been shut down.
	ErrCustodyClosed = errors.New("key custody closed")

	// ErrSequenceConflict is returned when the deposit sequence id is already taken.
	// The caller should look again for the next free id.
	ErrSequenceConflict = errors.New("deposit sequence id already in use")

	// ErrNotVerified is returned when withdrawing from an escrow that was never claimed.
	ErrNotVerified = errors.New("escrow not verified")

	// ErrAlreadyWithdrawn is returned when the escrow has already paid out.
	ErrAlreadyWithdrawn = errors.New("escrow already withdrawn")

	// ErrNotFunded is returned when claiming an escrow that does not yet hold
	// its amount.
	ErrNotFunded = errors.New("escrow not funded")

	// ErrOwnershipMismatch is returned when a shared secret does not derive the
	// escrow's stealth public key.
	ErrOwnershipMismatch = errors.New("stealth ownership mismatch")

	// ErrSubmissionTimeout is matched by *SubmissionTimeoutError.
	ErrSubmissionTimeout = errors.New("submission confirmation timed out")

	// ErrLedgerRejected is matched by every *LedgerRejectedError.
	ErrLedgerRejected = errors.New("transaction rejected by ledger")

	// ErrBlockhashExpired is returned when the transaction's blockhash is no longer valid.
	ErrBlockhashExpired = errors.New("blockhash expired")

	// ErrAccountNotFound is returned when a required account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDepositCompleted is returned when mutating a deposit that was already completed.
	ErrDepositCompleted = errors.New("deposit already completed")

	// ErrCiphertextIncomplete is returned when completing a deposit whose
	// ciphertext upload has not finished.
	ErrCiphertextIncomplete = errors.New("deposit ciphertext incomplete")

	// ErrInvalidChunk is returned for an out-of-range ciphertext chunk.
	ErrInvalidChunk = errors.New("invalid ciphertext chunk")

	// ErrUnauthorized is returned when the signer may not perform the instruction.
	ErrUnauthorized = errors.New("unauthorized signer")

	// ErrInvalidAmount is returned for zero or overflowing amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTransition is returned when a lifecycle step is attempted from a
	// state that does not allow it.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrRateLimited is returned when the RPC endpoint throttles the client.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")
)

// Program error codes reported as Custom instruction errors.
const (
	CodeInvalidChunk         uint32 = 6000
	CodeDepositCompleted     uint32 = 6001
	CodeStealthMismatch      uint32 = 6002
	CodeNotVerified          uint32 = 6003
	CodeAlreadyWithdrawn     uint32 = 6004
	CodeUnauthorized         uint32 = 6005
	CodeInvalidAmount        uint32 = 6006
	CodeCiphertextIncomplete uint32 = 6007
)

var codeSentinels = map[uint32]error{
	CodeInvalidChunk:         ErrInvalidChunk,
	CodeDepositCompleted:     ErrDepositCompleted,
	CodeStealthMismatch:      ErrOwnershipMismatch,
	CodeNotVerified:          ErrNotVerified,
	CodeAlreadyWithdrawn:     ErrAlreadyWithdrawn,
	CodeUnauthorized:         ErrUnauthorized,
	CodeInvalidAmount:        ErrInvalidAmount,
	CodeCiphertextIncomplete: ErrCiphertextIncomplete,
}

// StealthPoolError is implemented by all typed errors of this module.
type StealthPoolError interface {
	error
	StealthPoolError() // marker method
}

// LedgerRejectedError is a decoded on-chain rejection. It is a hard failure for
// the attempt; only a stale blockhash makes resubmission worthwhile.
type LedgerRejectedError struct {
	Signature        string
	InstructionIndex int
	// Code is the custom program error code, nil if the failure was not a
	// custom program error.
	Code   *uint32
	Reason string
	Logs   []string
}

func (e *LedgerRejectedError) Error() string {
	var b strings.Builder
	b.WriteString("ledger rejected transaction")
	if e.Signature != "" {
		fmt.Fprintf(&b, " %s", e.Signature)
	}
	if e.Code != nil {
		fmt.Fprintf(&b, ": instruction %d custom error %d", e.InstructionIndex, *e.Code)
	} else if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// StealthPoolError implements the StealthPoolError interface.
func (e *LedgerRejectedError) StealthPoolError() {}

// Retryable reports whether resubmitting with a fresh blockhash may succeed.
func (e *LedgerRejectedError) Retryable() bool {
	return e.blockhashExpired()
}

func (e *LedgerRejectedError) blockhashExpired() bool {
	return strings.Contains(e.Reason, "BlockhashNotFound") ||
		strings.Contains(strings.ToLower(e.Reason), "blockhash not found")
}

func (e *LedgerRejectedError) accountInUse() bool {
	if e.Code != nil && *e.Code == 0 {
		for _, l := range e.Logs {
			if strings.Contains(l, "already in use") {
				return true
			}
		}
	}
	return strings.Contains(e.Reason, "AccountAlreadyInUse") || strings.Contains(e.Reason, "already in use")
}

// Is implements errors.Is for sentinel error matching.
func (e *LedgerRejectedError) Is(target error) bool {
	if target == ErrLedgerRejected {
		return true
	}
	if e.Code != nil {
		if s, ok := codeSentinels[*e.Code]; ok && s == target {
			return true
		}
	}
	switch target {
	case ErrSequenceConflict:
		return e.accountInUse()
	case ErrBlockhashExpired:
		return e.blockhashExpired()
	}
	return false
}

// CustomCode returns a pointer to code, for building LedgerRejectedError values.
func CustomCode(code uint32) *uint32 {
	return &code
}

// SubmissionTimeoutError reports that a submitted transaction was not observed
// as confirmed within the polling budget. The transaction may still land:
// re-check on-chain state before retrying.
type SubmissionTimeoutError struct {
	Signature string
	Attempts  int
	Elapsed   time.Duration
}

func (e *SubmissionTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %d attempts (%v)", e.Signature, e.Attempts, e.Elapsed)
}

// StealthPoolError implements the StealthPoolError interface.
func (e *SubmissionTimeoutError) StealthPoolError() {}

// Is implements errors.Is for sentinel error matching.
func (e *SubmissionTimeoutError) Is(target error) bool {
	return target == ErrSubmissionTimeout
}

// RPCError is a JSON-RPC error object returned by a ledger endpoint.
type RPCError struct {
	Code    int
	Message string
	Data    []byte
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StealthPoolError implements the StealthPoolError interface.
func (e *RPCError) StealthPoolError() {}

// Is implements errors.Is for sentinel error matching.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Code == 429
	case ErrBlockhashExpired:
		return strings.Contains(strings.ToLower(e.Message), "blockhash not found")
	}
	return false
}

// NetworkError represents a transport-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StealthPoolError implements the StealthPoolError interface.
func (e *NetworkError) StealthPoolError() {}

// HTTPError represents a non-2xx HTTP response from a ledger or relay endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP error %d", e.StatusCode)
}

// StealthPoolError implements the StealthPoolError interface.
func (e *HTTPError) StealthPoolError() {}

// Is implements errors.Is for sentinel error matching.
func (e *HTTPError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == 429
}

// CryptoError wraps a cryptographic failure with the operation that produced it.
// Crypto errors are always fatal for the given input.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CryptoError) Unwrap() error {
	return e.Err
}

// StealthPoolError implements the StealthPoolError interface.
func (e *CryptoError) StealthPoolError() {}
