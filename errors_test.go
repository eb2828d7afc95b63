package stealthpool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/crypto"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrMissingSigner", ErrMissingSigner},
		{"ErrMissingEndpoint", ErrMissingEndpoint},
		{"ErrMissingProgram", ErrMissingProgram},
		{"ErrInvalidMetaAddress", ErrInvalidMetaAddress},
		{"ErrNoDestination", ErrNoDestination},
		{"ErrClientClosed", ErrClientClosed},
		{"ErrNotInitialized", ErrNotInitialized},
		{"ErrAlreadyInitialized", ErrAlreadyInitialized},
		{"ErrCustodyCrashed", ErrCustodyCrashed},
		{"ErrCustodyTimeout", ErrCustodyTimeout},
		{"ErrSequenceConflict", ErrSequenceConflict},
		{"ErrNotVerified", ErrNotVerified},
		{"ErrAlreadyWithdrawn", ErrAlreadyWithdrawn},
		{"ErrNotFunded", ErrNotFunded},
		{"ErrOwnershipMismatch", ErrOwnershipMismatch},
		{"ErrSubmissionTimeout", ErrSubmissionTimeout},
		{"ErrLedgerRejected", ErrLedgerRejected},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrInvalidCiphertext", ErrInvalidCiphertext},
		{"ErrAuthenticationFailed", ErrAuthenticationFailed},
	}

	for _, s := range sentinels {
		t.Run(s.name, func(t *testing.T) {
			if s.err == nil {
				t.Fatal("sentinel error is nil")
			}
			if s.err.Error() == "" {
				t.Error("sentinel error has empty message")
			}
		})
	}
}

func TestSentinels_SharedWithInternalPackages(t *testing.T) {
	if !errors.Is(fmt.Errorf("wrapped: %w", apierrors.ErrNotVerified), ErrNotVerified) {
		t.Error("internal ErrNotVerified does not match the root sentinel")
	}
	if !errors.Is(&apierrors.CryptoError{Op: "decapsulate", Err: crypto.ErrInvalidCiphertext}, ErrInvalidCiphertext) {
		t.Error("CryptoError does not unwrap to ErrInvalidCiphertext")
	}
}

func TestLedgerRejectedError_ProgramCodes(t *testing.T) {
	tests := []struct {
		code uint32
		want error
	}{
		{6000, ErrInvalidChunk},
		{6001, ErrDepositCompleted},
		{6002, ErrOwnershipMismatch},
		{6003, ErrNotVerified},
		{6004, ErrAlreadyWithdrawn},
		{6005, ErrUnauthorized},
		{6006, ErrInvalidAmount},
		{6007, ErrCiphertextIncomplete},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := error(&LedgerRejectedError{Code: apierrors.CustomCode(tt.code)})
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(code %d, %v) = false", tt.code, tt.want)
			}
			if !errors.Is(err, ErrLedgerRejected) {
				t.Error("program rejection does not match ErrLedgerRejected")
			}
			var sp StealthPoolError
			if !errors.As(err, &sp) {
				t.Error("LedgerRejectedError does not implement StealthPoolError")
			}
		})
	}
}

func TestIsProcessing(t *testing.T) {
	if !IsProcessing(fmt.Errorf("complete: %w", &SubmissionTimeoutError{Signature: "sig", Attempts: 30})) {
		t.Error("IsProcessing(timeout) = false")
	}
	if IsProcessing(&LedgerRejectedError{Reason: "InstructionError"}) {
		t.Error("IsProcessing(rejection) = true")
	}
	if IsProcessing(nil) {
		t.Error("IsProcessing(nil) = true")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"blockhash expired", &LedgerRejectedError{Reason: "BlockhashNotFound"}, true},
		{"sequence conflict", fmt.Errorf("create: %w", ErrSequenceConflict), true},
		{"rate limited", &HTTPError{StatusCode: 429}, true},
		{"custody timeout", ErrCustodyTimeout, true},
		{"escrow not funded yet", fmt.Errorf("claim escrow: %w", ErrNotFunded), true},
		{"network", &NetworkError{Err: errors.New("connection refused"), URL: "http://node", Attempt: 4}, true},
		{"not verified", &LedgerRejectedError{Code: apierrors.CustomCode(6003)}, false},
		{"already withdrawn", ErrAlreadyWithdrawn, false},
		{"ownership", ErrOwnershipMismatch, false},
		{"crypto", &CryptoError{Op: "decapsulate", Err: ErrInvalidCiphertext}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRelayError_Is(t *testing.T) {
	err := error(&RelayError{StatusCode: 409, Code: "already_withdrawn", Message: "escrow already withdrawn"})
	if !errors.Is(err, ErrAlreadyWithdrawn) {
		t.Error("relay already_withdrawn does not match ErrAlreadyWithdrawn")
	}
}
