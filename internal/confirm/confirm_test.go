package confirm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
)

// scriptedSource returns the scripted statuses in order, repeating the last one.
type scriptedSource struct {
	mu     sync.Mutex
	script []*ledger.SignatureStatus
	errs   []error
	calls  int
}

func (s *scriptedSource) GetSignatureStatuses(ctx context.Context, sigs ...string) ([]*ledger.SignatureStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.script) == 0 {
		return []*ledger.SignatureStatus{nil}, nil
	}
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return []*ledger.SignatureStatus{s.script[i]}, nil
}

func fastPoller(policy TimeoutPolicy, attempts int) *Poller {
	p := NewPoller(policy)
	p.MaxAttempts = attempts
	p.FastAttempts = 2
	p.FastInterval = time.Millisecond
	p.SlowInterval = 2 * time.Millisecond
	return p
}

func TestPoller_ConfirmsAfterPending(t *testing.T) {
	src := &scriptedSource{script: []*ledger.SignatureStatus{
		nil,
		{ConfirmationStatus: ledger.CommitmentProcessed},
		{ConfirmationStatus: ledger.CommitmentConfirmed, Slot: 9},
	}}

	res, err := fastPoller(StrictOnTimeout, 10).Wait(context.Background(), src, "sig")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.Optimistic || res.Attempts != 3 || res.Status.Slot != 9 {
		t.Errorf("result = %+v", res)
	}
}

func TestPoller_RejectionIsHardFailure(t *testing.T) {
	rej := &apierrors.LedgerRejectedError{Code: apierrors.CustomCode(apierrors.CodeAlreadyWithdrawn)}
	src := &scriptedSource{script: []*ledger.SignatureStatus{{ConfirmationStatus: ledger.CommitmentConfirmed, Err: rej}}}

	for _, policy := range []TimeoutPolicy{OptimisticOnTimeout, StrictOnTimeout} {
		_, err := fastPoller(policy, 5).Wait(context.Background(), src, "sig")
		if !errors.Is(err, apierrors.ErrAlreadyWithdrawn) {
			t.Errorf("%s: error = %v, want ErrAlreadyWithdrawn", policy, err)
		}
	}
}

func TestPoller_TimeoutPolicies(t *testing.T) {
	tests := []struct {
		policy TimeoutPolicy
		strict bool
	}{
		{OptimisticOnTimeout, false},
		{StrictOnTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			src := &scriptedSource{}
			res, err := fastPoller(tt.policy, 4).Wait(context.Background(), src, "sig")
			if tt.strict {
				var timeout *apierrors.SubmissionTimeoutError
				if !errors.As(err, &timeout) || timeout.Attempts != 4 {
					t.Fatalf("error = %v, want SubmissionTimeoutError after 4 attempts", err)
				}
				if !errors.Is(err, apierrors.ErrSubmissionTimeout) {
					t.Error("error does not match ErrSubmissionTimeout")
				}
				return
			}
			if err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
			if !res.Optimistic {
				t.Error("Optimistic = false, want true")
			}
			if src.calls != 4 {
				t.Errorf("calls = %d, want 4", src.calls)
			}
		})
	}
}

func TestPoller_LookupErrorsAreTransient(t *testing.T) {
	src := &scriptedSource{
		errs:   []error{errors.New("node down"), errors.New("node down")},
		script: []*ledger.SignatureStatus{nil, nil, {ConfirmationStatus: ledger.CommitmentFinalized}},
	}
	res, err := fastPoller(StrictOnTimeout, 5).Wait(context.Background(), src, "sig")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
}

func TestPoller_ContextCancel(t *testing.T) {
	p := fastPoller(OptimisticOnTimeout, 1000)
	p.FastInterval = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx, &scriptedSource{}, "sig")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestPoller_Interval(t *testing.T) {
	p := NewPoller(OptimisticOnTimeout)
	if p.interval(0) != DefaultFastInterval || p.interval(DefaultFastAttempts-1) != DefaultFastInterval {
		t.Error("early attempts should use the fast interval")
	}
	if p.interval(DefaultFastAttempts) != DefaultSlowInterval {
		t.Error("later attempts should use the slow interval")
	}
}

func TestParseTimeoutPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeoutPolicy
		wantErr bool
	}{
		{"optimistic", OptimisticOnTimeout, false},
		{"", OptimisticOnTimeout, false},
		{" Strict ", StrictOnTimeout, false},
		{"yolo", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeoutPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTimeoutPolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
}
