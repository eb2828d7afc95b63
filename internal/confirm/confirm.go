// Package confirm polls signature statuses until a submitted transaction is
// confirmed, rejected, or the attempt budget runs out.
//
// Running out of attempts is ambiguous: the transaction may still land. What
// happens then is a named [TimeoutPolicy] chosen by the caller. A decoded
// on-chain rejection is always returned as an error, whatever the policy.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/logging"
)

// TimeoutPolicy decides the outcome of a poll that exhausts its attempts.
type TimeoutPolicy int

const (
	// OptimisticOnTimeout reports success with Result.Optimistic set. The
	// caller should re-read on-chain state before building on it.
	OptimisticOnTimeout TimeoutPolicy = iota
	// StrictOnTimeout returns *apierrors.SubmissionTimeoutError.
	StrictOnTimeout
)

func (p TimeoutPolicy) String() string {
	switch p {
	case OptimisticOnTimeout:
		return "optimistic"
	case StrictOnTimeout:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseTimeoutPolicy parses "optimistic" or "strict".
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optimistic":
		return OptimisticOnTimeout, nil
	case "strict":
		return StrictOnTimeout, nil
	}
	return 0, fmt.Errorf("unknown timeout policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p TimeoutPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TimeoutPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeoutPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Default polling budget.
const (
	DefaultMaxAttempts  = 30
	DefaultFastAttempts = 10
	DefaultFastInterval = 500 * time.Millisecond
	DefaultSlowInterval = 2 * time.Second
)

// StatusFetcher is the part of ledger.Client the poller needs.
type StatusFetcher interface {
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*ledger.SignatureStatus, error)
}

// Poller waits for confirmations with a two-tier interval: FastInterval for
// the first FastAttempts polls, SlowInterval afterwards.
type Poller struct {
	MaxAttempts  int
	FastAttempts int
	FastInterval time.Duration
	SlowInterval time.Duration
	Policy       TimeoutPolicy
	Logger       *slog.Logger
}

// NewPoller returns a Poller with the default budget and policy.
func NewPoller(policy TimeoutPolicy) *Poller {
	return &Poller{
		MaxAttempts:  DefaultMaxAttempts,
		FastAttempts: DefaultFastAttempts,
		FastInterval: DefaultFastInterval,
		SlowInterval: DefaultSlowInterval,
		Policy:       policy,
		Logger:       logging.Discard(),
	}
}

// Result describes a finished wait.
type Result struct {
	Signature string
	Attempts  int
	// Optimistic is set when the budget ran out under OptimisticOnTimeout.
	Optimistic bool
	Status     *ledger.SignatureStatus
}

func (p *Poller) interval(attempt int) time.Duration {
	if attempt < p.FastAttempts {
		return p.FastInterval
	}
	return p.SlowInterval
}

// Wait polls the status of signature. Lookup errors count as "not yet seen";
// a landed transaction carrying an error is returned as that error.
// Cancelling ctx abandons the wait, not the transaction.
func (p *Poller) Wait(ctx context.Context, source StatusFetcher, signature string) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	maxAttempts := max(p.MaxAttempts, 1)
	start := time.Now()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		statuses, err := source.GetSignatureStatuses(ctx, signature)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("signature status lookup failed", "tx", signature, "attempt", attempt+1, "error", err)
		case len(statuses) > 0 && statuses[0] != nil:
			st := statuses[0]
			if st.Err != nil {
				return nil, st.Err
			}
			if st.Confirmed() {
				return &Result{Signature: signature, Attempts: attempt + 1, Status: st}, nil
			}
		}

		if attempt == maxAttempts-1 {
			break
		}
		timer := time.NewTimer(p.interval(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	elapsed := time.Since(start)
	if p.Policy == StrictOnTimeout {
		return nil, &apierrors.SubmissionTimeoutError{Signature: signature, Attempts: maxAttempts, Elapsed: elapsed}
	}
	logger.Warn("confirmation timed out, assuming landed", "tx", signature, "attempts", maxAttempts, "elapsed", elapsed)
	return &Result{Signature: signature, Attempts: maxAttempts, Optimistic: true}, nil
}
