package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/crypto"
	"github.com/stealthpool/client-go/internal/custody"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/lifecycle"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/metrics"
	"github.com/stealthpool/client-go/internal/program"
)

// Scanner defaults.
const (
	DefaultConcurrency = 8
	DefaultBatchSize   = 64
)

// Custody checks candidates for ownership. *custody.Boundary implements it.
type Custody interface {
	CheckEscrows(ctx context.Context, batch []custody.Candidate) ([]custody.Match, error)
}

// Config wires a Scanner to its collaborators.
type Config struct {
	Program *program.Program
	Base    ledger.Client
	Rollup  ledger.Client
	Custody Custody

	// Concurrency bounds parallel account lookups.
	Concurrency int
	// BatchSize bounds the candidates sent to custody in one request.
	BatchSize int
	// Legacy also checks executed records that carry no ciphertext, using
	// the Ed25519-only view key path.
	Legacy bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Scanner finds owned escrows.
type Scanner struct {
	program     *program.Program
	sources     []ledger.Source
	custody     Custody
	concurrency int
	batchSize   int
	legacy      bool
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New returns a Scanner for cfg.
func New(cfg Config) (*Scanner, error) {
	if cfg.Program == nil {
		return nil, errors.New("scanner: program is required")
	}
	if cfg.Base == nil || cfg.Rollup == nil {
		return nil, errors.New("scanner: base and rollup clients are required")
	}
	if cfg.Custody == nil {
		return nil, errors.New("scanner: custody is required")
	}

	s := &Scanner{
		program: cfg.Program,
		sources: []ledger.Source{
			{Domain: ledger.DomainRollup, Client: cfg.Rollup},
			{Domain: ledger.DomainBase, Client: cfg.Base},
		},
		custody:     cfg.Custody,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		legacy:      cfg.Legacy,
		logger:      logging.Sanitize(cfg.Logger),
		metrics:     cfg.Metrics,
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	return s, nil
}

// Match is an owned deposit.
type Match struct {
	SequenceID    uint64
	StealthPubkey [program.StealthPubkeySize]byte
	Amount        uint64
	IsOurs        bool
	// SharedSecret builds the claim. Call Wipe once it is no longer needed.
	SharedSecret []byte
	// Destination is the decrypted settlement address, nil when the sealed
	// destination does not open under the shared secret.
	Destination *ledger.Address
	// Escrow is nil until the automation agent materializes it.
	Escrow *lifecycle.OutputEscrowView
	State  lifecycle.State
	Legacy bool
}

// Wipe erases the shared secret.
func (m *Match) Wipe() {
	crypto.Wipe(m.SharedSecret)
	m.SharedSecret = nil
}

// Result is the outcome of one scan.
type Result struct {
	Matches []*Match
	// UpTo is the pool cursor the scan ran against.
	UpTo uint64
	// Full is set when records were listed with a program-accounts query
	// instead of per-id lookups.
	Full bool

	Fetched    int
	Missing    int
	Pending    int
	Failed     int
	Candidates int
}

// Wipe erases every match's shared secret.
func (r *Result) Wipe() {
	for _, m := range r.Matches {
		m.Wipe()
	}
}

// PoolCursor returns the pool's last deposit id, rollup copy first.
func (s *Scanner) PoolCursor(ctx context.Context) (uint64, error) {
	addr, err := s.program.PoolAddress()
	if err != nil {
		return 0, err
	}
	acc, _, err := ledger.FetchFirst(ctx, addr, s.sources...)
	if err != nil {
		return 0, fmt.Errorf("failed to read pool: %w", err)
	}
	pool, err := program.DecodePool(acc.Data)
	if err != nil {
		return 0, err
	}
	return pool.LastDepositID, nil
}

// Scan brings cache up to upTo and returns every owned record in it. A zero
// upTo scans up to the current pool cursor.
//
// Only context cancellation, an unreadable pool cursor and custody failures
// fail a scan.
func (s *Scanner) Scan(ctx context.Context, cache *Cache, upTo uint64) (*Result, error) {
	if cache == nil {
		return nil, errors.New("scanner: cache is required")
	}
	start := time.Now()

	cache.scan.Lock()
	defer cache.scan.Unlock()

	if upTo == 0 {
		cursor, err := s.PoolCursor(ctx)
		if err != nil {
			return nil, err
		}
		upTo = cursor
	}

	res := &Result{UpTo: upTo}
	resolved := make(map[uint64]bool)

	if upTo > 0 && cache.empty() {
		res.Full = s.fullScan(ctx, cache, upTo, res, resolved)
	}
	if !res.Full {
		if err := s.fetchRange(ctx, cache, upTo, res, resolved); err != nil {
			return nil, err
		}
	}
	cache.advance(resolved, upTo)

	entries := cache.snapshot()
	if !s.legacy {
		entries = hybridOnly(entries)
	}
	res.Candidates = len(entries)

	matches, err := s.check(ctx, entries)
	if err != nil {
		return nil, err
	}
	res.Matches = matches[:0]
	for _, m := range matches {
		if !s.describe(ctx, cache, m) {
			m.Wipe()
			continue
		}
		res.Matches = append(res.Matches, m)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveScan(res.Candidates, len(res.Matches), elapsed)
	s.logger.Info("scan complete",
		"up_to", upTo,
		"last_scanned", cache.LastScannedID(),
		"full", res.Full,
		"fetched", res.Fetched,
		"pending", res.Pending,
		"failed", res.Failed,
		"candidates", res.Candidates,
		"matches", len(res.Matches),
		"elapsed", elapsed,
	)
	return res, nil
}

type outcome int

const (
	outcomeCached outcome = iota
	outcomeMissing
	outcomePending
	outcomeFailed
)

// classify decides what a scan does with one record read from domain. A
// record is only a candidate once it is delegated: the sender can still
// abandon one that sits on the base ledger unexecuted.
func (s *Scanner) classify(rec *program.DepositRecord, domain ledger.Domain) (*entry, outcome) {
	delegated := domain == ledger.DomainRollup || rec.Executed
	switch {
	case rec.Uploaded && delegated:
		return entryFromRecord(rec, false), outcomeCached
	case rec.Executed && !rec.HasCiphertext():
		if s.legacy {
			return entryFromRecord(rec, true), outcomeCached
		}
		// Never gains a ciphertext; nothing to check without the legacy path.
		return nil, outcomeMissing
	default:
		return nil, outcomePending
	}
}

// recordState is the lifecycle position a delegated record implies before
// its output escrow exists.
func recordState(executed bool) lifecycle.State {
	if executed {
		return lifecycle.StatePooledInput
	}
	return lifecycle.StateCompleted
}

func (res *Result) count(o outcome) {
	switch o {
	case outcomeCached:
		res.Fetched++
	case outcomeMissing:
		res.Missing++
	case outcomePending:
		res.Pending++
	case outcomeFailed:
		res.Failed++
	}
}

func record(cache *Cache, resolved map[uint64]bool, id uint64, e *entry, o outcome) {
	switch o {
	case outcomeCached:
		cache.put(e)
		resolved[id] = true
	case outcomeMissing:
		resolved[id] = true
	}
}

// fullScan lists every deposit record on both domains. It reports false when
// either listing fails, leaving the per-id path to do the work.
func (s *Scanner) fullScan(ctx context.Context, cache *Cache, upTo uint64, res *Result, resolved map[uint64]bool) bool {
	type listed struct {
		rec    *program.DepositRecord
		domain ledger.Domain
	}
	records := make(map[uint64]listed)
	for _, src := range s.sources {
		accounts, err := src.Client.GetProgramAccounts(ctx, s.program.ID,
			ledger.DataSizeFilter(program.DepositRecordSize),
			ledger.MemcmpAt(0, program.DepositRecordDiscriminator[:]),
		)
		if err != nil {
			s.logger.Debug("program accounts listing failed, scanning by id", "domain", src.Domain, "error", err)
			return false
		}
		for i := range accounts {
			rec, err := program.DecodeDepositRecord(accounts[i].Account.Data)
			if err != nil {
				continue
			}
			if _, seen := records[rec.SequenceID]; !seen {
				records[rec.SequenceID] = listed{rec: rec, domain: src.Domain}
			}
		}
	}

	for id := uint64(1); id <= upTo; id++ {
		l, ok := records[id]
		if !ok {
			res.count(outcomeMissing)
			resolved[id] = true
			continue
		}
		e, o := s.classify(l.rec, l.domain)
		res.count(o)
		record(cache, resolved, id, e, o)
	}
	return true
}

// fetchRange looks up every uncached id after the cache's last scanned id.
func (s *Scanner) fetchRange(ctx context.Context, cache *Cache, upTo uint64, res *Result, resolved map[uint64]bool) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for id := cache.LastScannedID() + 1; id <= upTo; id++ {
		if cache.has(id) {
			continue
		}
		g.Go(func() error {
			e, o := s.fetchRecord(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			res.count(o)
			record(cache, resolved, id, e, o)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (s *Scanner) fetchRecord(ctx context.Context, id uint64) (*entry, outcome) {
	addr, err := s.program.DepositAddress(id)
	if err != nil {
		return nil, outcomeFailed
	}
	acc, domain, err := ledger.FetchFirst(ctx, addr, s.sources...)
	if err != nil {
		if errors.Is(err, apierrors.ErrAccountNotFound) {
			return nil, outcomeMissing
		}
		s.logger.Debug("deposit lookup failed", "sequence_id", id, "error", err)
		return nil, outcomeFailed
	}
	rec, err := program.DecodeDepositRecord(acc.Data)
	if err != nil {
		s.logger.Debug("skipping undecodable deposit record", "sequence_id", id, "error", err)
		return nil, outcomeMissing
	}
	return s.classify(rec, domain)
}

func hybridOnly(entries []*entry) []*entry {
	out := entries[:0:0]
	for _, e := range entries {
		if !e.legacy {
			out = append(out, e)
		}
	}
	return out
}

// check sends entries to custody in batches and returns the owned ones.
func (s *Scanner) check(ctx context.Context, entries []*entry) ([]*Match, error) {
	var matches []*Match
	for lo := 0; lo < len(entries); lo += s.batchSize {
		batch := entries[lo:min(lo+s.batchSize, len(entries))]
		candidates := make([]custody.Candidate, len(batch))
		for i, e := range batch {
			candidates[i] = custody.Candidate{
				StealthPubkey:   e.stealthPubkey,
				Ciphertext:      e.ciphertext,
				ViewTag:         e.viewTag,
				CheckViewTag:    true,
				Legacy:          e.legacy,
				EphemeralPubkey: e.ephemeralPubkey,
			}
		}

		owned, err := s.custody.CheckEscrows(ctx, candidates)
		if err != nil {
			for _, m := range matches {
				m.Wipe()
			}
			return nil, fmt.Errorf("ownership check failed: %w", err)
		}
		for _, o := range owned {
			e := batch[o.Index]
			matches = append(matches, &Match{
				SequenceID:    e.sequenceID,
				StealthPubkey: e.stealthPubkey,
				Amount:        e.amount,
				IsOurs:        true,
				SharedSecret:  o.SharedSecret,
				Destination:   openDestination(e, o.SharedSecret),
				Legacy:        e.legacy,
				State:         recordState(e.executed),
			})
			s.logger.Debug("owned deposit found", "sequence_id", e.sequenceID, "stealth_pubkey", e.stealthPubkey[:])
		}
	}
	return matches, nil
}

func openDestination(e *entry, sharedSecret []byte) *ledger.Address {
	dest, err := crypto.DecryptDestination(e.encryptedDestination[:], sharedSecret)
	if err != nil {
		return nil
	}
	defer crypto.Wipe(dest)
	addr, err := ledger.AddressFromBytes(dest)
	if err != nil {
		return nil
	}
	return &addr
}

// describe rereads the record of an owned match and its output escrow. It
// reports false, and evicts the record from cache, when the record no longer
// exists. A failed reread keeps the cached view.
func (s *Scanner) describe(ctx context.Context, cache *Cache, m *Match) bool {
	addr, err := s.program.DepositAddress(m.SequenceID)
	if err != nil {
		return true
	}
	acc, _, err := ledger.FetchFirst(ctx, addr, s.sources...)
	switch {
	case errors.Is(err, apierrors.ErrAccountNotFound):
		s.logger.Debug("owned deposit disappeared", "sequence_id", m.SequenceID)
		cache.evict(m.SequenceID)
		return false
	case err != nil:
		s.logger.Debug("deposit reread failed", "sequence_id", m.SequenceID, "error", err)
	default:
		if rec, err := program.DecodeDepositRecord(acc.Data); err == nil {
			m.State = recordState(rec.Executed)
		}
	}

	view, err := lifecycle.ReadOutputEscrow(ctx, s.program, m.StealthPubkey, s.sources...)
	if err != nil {
		if !errors.Is(err, apierrors.ErrAccountNotFound) {
			s.logger.Debug("output escrow lookup failed", "sequence_id", m.SequenceID, "error", err)
		}
		return true
	}
	m.Escrow = view
	m.State = view.State()
	return true
}
