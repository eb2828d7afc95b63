package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/confirm"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/metrics"
)

// DefaultBlockhashRetries is how many times a transaction rejected for an
// expired blockhash is rebuilt and re-signed.
const DefaultBlockhashRetries = 2

// Submitter signs, sends and confirms transactions on one domain.
type Submitter struct {
	Ledger           ledger.Client
	Signer           ledger.Signer
	Poller           *confirm.Poller
	BlockhashRetries int
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

func (s *Submitter) poller() *confirm.Poller {
	if s.Poller == nil {
		return confirm.NewPoller(confirm.OptimisticOnTimeout)
	}
	return s.Poller
}

func (s *Submitter) logger() *slog.Logger {
	return logging.Sanitize(s.Logger)
}

func (s *Submitter) build(bh ledger.Blockhash, ixs []ledger.Instruction) *ledger.Transaction {
	return &ledger.Transaction{
		FeePayer:        s.Signer.PublicKey(),
		RecentBlockhash: bh.Blockhash,
		Instructions:    ixs,
	}
}

// Submit sends one transaction and waits for its confirmation. Rejections for
// an expired blockhash are retried with a fresh one; any other rejection is
// returned as is.
func (s *Submitter) Submit(ctx context.Context, step string, ixs ...ledger.Instruction) (res *confirm.Result, err error) {
	defer func() {
		s.Metrics.ObserveStep(step, res != nil && res.Optimistic, err)
	}()

	for attempt := 0; ; attempt++ {
		bh, err := s.Ledger.GetLatestBlockhash(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: get blockhash: %w", step, err)
		}
		signed, err := s.Signer.SignTransaction(ctx, s.build(bh, ixs))
		if err != nil {
			return nil, fmt.Errorf("%s: sign: %w", step, err)
		}
		res, err := s.send(ctx, step, signed)
		if errors.Is(err, apierrors.ErrBlockhashExpired) && attempt < s.BlockhashRetries {
			s.logger().Debug("blockhash expired, rebuilding transaction", "step", step, "attempt", attempt+1)
			continue
		}
		return res, err
	}
}

func (s *Submitter) send(ctx context.Context, step string, signed *ledger.SignedTransaction) (*confirm.Result, error) {
	sig, err := s.Ledger.SendTransaction(ctx, signed.Wire)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	res, err := s.poller().Wait(ctx, s.Ledger, sig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if res.Optimistic {
		s.logger().Warn("step assumed landed", "step", step, "tx", sig)
	} else {
		s.logger().Info("step confirmed", "step", step, "tx", sig, "attempts", res.Attempts)
	}
	return res, nil
}

// SubmitAll signs one transaction per instruction group with a single wallet
// approval, then sends and confirms them concurrently. The groups must not
// depend on each other. A group whose blockhash expired is resubmitted alone.
func (s *Submitter) SubmitAll(ctx context.Context, step string, groups [][]ledger.Instruction, concurrency int) ([]*confirm.Result, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	bh, err := s.Ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: get blockhash: %w", step, err)
	}
	txs := make([]*ledger.Transaction, len(groups))
	for i, ixs := range groups {
		txs[i] = s.build(bh, ixs)
	}
	signed, err := s.Signer.SignAllTransactions(ctx, txs)
	if err != nil {
		return nil, fmt.Errorf("%s: sign: %w", step, err)
	}
	if len(signed) != len(txs) {
		return nil, fmt.Errorf("%s: signer returned %d of %d transactions", step, len(signed), len(txs))
	}

	results := make([]*confirm.Result, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i := range groups {
		g.Go(func() error {
			res, err := s.send(gctx, step, signed[i])
			if errors.Is(err, apierrors.ErrBlockhashExpired) {
				res, err = s.Submit(gctx, step, groups[i]...)
			} else {
				s.Metrics.ObserveStep(step, res != nil && res.Optimistic, err)
			}
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func anyOptimistic(results ...*confirm.Result) bool {
	for _, r := range results {
		if r != nil && r.Optimistic {
			return true
		}
	}
	return false
}

func signatures(results ...*confirm.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r.Signature)
		}
	}
	return out
}
