package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/confirm"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/metrics"
	"github.com/stealthpool/client-go/internal/program"
)

// Sender defaults.
const (
	DefaultCommitFrequencyMs  = 3000
	DefaultMaxSkip            = 64
	DefaultMaxConflictRetries = 5
	DefaultUploadConcurrency  = 2
)

// Config wires a Sender or a Receiver to its collaborators. Zero numeric
// fields select the defaults.
type Config struct {
	Program *program.Program
	Base    ledger.Client
	Rollup  ledger.Client
	Signer  ledger.Signer
	Poller  *confirm.Poller

	CommitFrequencyMs  uint32
	MaxSkip            int
	MaxConflictRetries int
	UploadConcurrency  int
	ChunkSize          int
	BlockhashRetries   int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c *Config) validate() error {
	if c.Program == nil {
		return errors.New("lifecycle: program is required")
	}
	if c.Base == nil || c.Rollup == nil {
		return errors.New("lifecycle: base and rollup clients are required")
	}
	if c.Signer == nil {
		return errors.New("lifecycle: signer is required")
	}
	return nil
}

func (c *Config) submitter(l ledger.Client) *Submitter {
	retries := c.BlockhashRetries
	if retries <= 0 {
		retries = DefaultBlockhashRetries
	}
	return &Submitter{
		Ledger:           l,
		Signer:           c.Signer,
		Poller:           c.Poller,
		BlockhashRetries: retries,
		Logger:           c.Logger,
		Metrics:          c.Metrics,
	}
}

// Sender runs the depositor's side of the lifecycle on the base ledger.
type Sender struct {
	program *program.Program
	base    ledger.Client
	rollup  ledger.Client
	signer  ledger.Signer
	submit  *Submitter
	logger  *slog.Logger

	commitFrequencyMs  uint32
	maxSkip            int
	maxConflictRetries int
	uploadConcurrency  int
	chunkSize          int
}

// NewSender returns a Sender for cfg.
func NewSender(cfg Config) (*Sender, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Sender{
		program:            cfg.Program,
		base:               cfg.Base,
		rollup:             cfg.Rollup,
		signer:             cfg.Signer,
		submit:             cfg.submitter(cfg.Base),
		logger:             logging.Sanitize(cfg.Logger),
		commitFrequencyMs:  cfg.CommitFrequencyMs,
		maxSkip:            cfg.MaxSkip,
		maxConflictRetries: cfg.MaxConflictRetries,
		uploadConcurrency:  cfg.UploadConcurrency,
		chunkSize:          cfg.ChunkSize,
	}
	if s.commitFrequencyMs == 0 {
		s.commitFrequencyMs = DefaultCommitFrequencyMs
	}
	if s.maxSkip <= 0 {
		s.maxSkip = DefaultMaxSkip
	}
	if s.maxConflictRetries <= 0 {
		s.maxConflictRetries = DefaultMaxConflictRetries
	}
	if s.uploadConcurrency <= 0 {
		s.uploadConcurrency = DefaultUploadConcurrency
	}
	if s.chunkSize <= 0 {
		s.chunkSize = program.ChunkSize
	}
	return s, nil
}

// DepositParams are the public values a sender commits to for one payment.
type DepositParams struct {
	Amount               uint64
	StealthPubkey        [program.StealthPubkeySize]byte
	EphemeralPubkey      [program.EphemeralPubkeySize]byte
	ViewTag              byte
	EncryptedDestination [program.EncryptedDestinationSize]byte
	Ciphertext           []byte
}

// Receipt tracks one deposit through the sender's steps.
type Receipt struct {
	SequenceID uint64
	Deposit    ledger.Address
	State      State
	// Optimistic is set when any step was assumed landed after its
	// confirmation budget ran out. Re-read the deposit status before relying
	// on it.
	Optimistic bool
	Signatures []string
}

func (r *Receipt) record(next State, results ...*confirm.Result) error {
	if err := transition(&r.State, next); err != nil {
		return err
	}
	r.Optimistic = r.Optimistic || anyOptimistic(results...)
	r.Signatures = append(r.Signatures, signatures(results...)...)
	return nil
}

// PoolCursor returns the pool's last deposit id and the domain it was read
// from. The rollup holds the authoritative copy; the base ledger is only
// consulted when the rollup read fails.
func (s *Sender) PoolCursor(ctx context.Context) (uint64, ledger.Domain, error) {
	addr, err := s.program.PoolAddress()
	if err != nil {
		return 0, 0, err
	}
	var errs []error
	for _, src := range []struct {
		domain ledger.Domain
		client ledger.Client
	}{{ledger.DomainRollup, s.rollup}, {ledger.DomainBase, s.base}} {
		acc, err := src.client.GetAccountInfo(ctx, addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.domain, err))
			continue
		}
		pool, err := program.DecodePool(acc.Data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.domain, err))
			continue
		}
		return pool.LastDepositID, src.domain, nil
	}
	return 0, 0, fmt.Errorf("read pool cursor: %w", errors.Join(errs...))
}

// NextSequenceID returns the first free sequence id above both the pool
// cursor and floor. floor is the caller's own high-water mark, zero if it
// has none; it lets a caller skip ids it has just seen taken.
func (s *Sender) NextSequenceID(ctx context.Context, floor uint64) (uint64, error) {
	cursor, domain, err := s.PoolCursor(ctx)
	if err != nil {
		return 0, err
	}
	next := max(cursor, floor) + 1
	for skipped := 0; skipped < s.maxSkip; skipped++ {
		taken, err := s.depositExists(ctx, next)
		if err != nil {
			return 0, err
		}
		if !taken {
			s.logger.Debug("next sequence id", "id", next, "cursor", cursor, "cursor_domain", domain, "skipped", skipped)
			return next, nil
		}
		next++
	}
	return 0, fmt.Errorf("%w: no free id within %d of %d", apierrors.ErrSequenceConflict, s.maxSkip, cursor+1)
}

func (s *Sender) depositExists(ctx context.Context, id uint64) (bool, error) {
	addr, err := s.program.DepositAddress(id)
	if err != nil {
		return false, err
	}
	_, err = s.base.GetAccountInfo(ctx, addr)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apierrors.ErrAccountNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check deposit %d: %w", id, err)
	}
}

// CreateDeposit allocates the DepositRecord at id. It fails with an error
// matching apierrors.ErrSequenceConflict if the id is taken.
func (s *Sender) CreateDeposit(ctx context.Context, id uint64, p *DepositParams) (*confirm.Result, error) {
	if p.Amount == 0 {
		return nil, apierrors.ErrInvalidAmount
	}
	ix, err := s.program.CreateDeposit(s.signer.PublicKey(), program.CreateDepositArgs{
		SequenceID:           id,
		Amount:               p.Amount,
		StealthPubkey:        p.StealthPubkey,
		EphemeralPubkey:      p.EphemeralPubkey,
		ViewTag:              p.ViewTag,
		EncryptedDestination: p.EncryptedDestination,
	})
	if err != nil {
		return nil, err
	}
	return s.submit.Submit(ctx, "create_deposit", ix)
}

// UploadCiphertext writes ciphertext into the record at id in chunks. The
// chunks touch disjoint offsets, so they are signed together and sent
// concurrently. Re-uploading is harmless.
func (s *Sender) UploadCiphertext(ctx context.Context, id uint64, ciphertext []byte) ([]*confirm.Result, error) {
	if len(ciphertext) != program.CiphertextSize {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, want %d", apierrors.ErrInvalidChunk, len(ciphertext), program.CiphertextSize)
	}
	chunks := program.ChunkCiphertext(ciphertext, s.chunkSize)
	groups := make([][]ledger.Instruction, len(chunks))
	for i, c := range chunks {
		ix, err := s.program.UploadCiphertextChunk(s.signer.PublicKey(), program.UploadChunkArgs{
			SequenceID: id,
			Offset:     c.Offset,
			Data:       c.Data,
		})
		if err != nil {
			return nil, err
		}
		groups[i] = []ledger.Instruction{ix}
	}
	return s.submit.SubmitAll(ctx, "upload_ciphertext_chunk", groups, s.uploadConcurrency)
}

// CompleteDeposit funds the InputEscrow and delegates the deposit to the
// rollup. It is the sender's last step.
func (s *Sender) CompleteDeposit(ctx context.Context, id uint64) (*confirm.Result, error) {
	ix, err := s.program.CompleteDeposit(s.signer.PublicKey(), program.CompleteDepositArgs{
		SequenceID:        id,
		CommitFrequencyMs: s.commitFrequencyMs,
	})
	if err != nil {
		return nil, err
	}
	return s.submit.Submit(ctx, "complete_deposit", ix)
}

// AbandonDeposit closes a record that has not been completed and refunds its
// rent to the sender. Completed deposits fail with apierrors.ErrDepositCompleted.
func (s *Sender) AbandonDeposit(ctx context.Context, id uint64) (*confirm.Result, error) {
	st, err := s.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if !st.State.Abandonable() {
		return nil, fmt.Errorf("%w: deposit %d is %s", apierrors.ErrDepositCompleted, id, st.State)
	}
	ix, err := s.program.AbandonDeposit(s.signer.PublicKey(), program.AbandonDepositArgs{SequenceID: id})
	if err != nil {
		return nil, err
	}
	res, err := s.submit.Submit(ctx, "abandon_deposit", ix)
	if err != nil {
		return nil, err
	}
	s.logger.Info("deposit abandoned", "id", id)
	return res, nil
}

// Deposit runs create, upload and complete in order, each step confirmed
// before the next. A taken id is retried with the next one, up to the
// configured number of times. On failure the returned receipt holds the last state reached, so the
// caller can decide between retrying and abandoning.
func (s *Sender) Deposit(ctx context.Context, p *DepositParams, floor uint64) (*Receipt, error) {
	if len(p.Ciphertext) != program.CiphertextSize {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, want %d", apierrors.ErrInvalidChunk, len(p.Ciphertext), program.CiphertextSize)
	}

	r := &Receipt{}
	for conflicts := 0; ; conflicts++ {
		id, err := s.NextSequenceID(ctx, floor)
		if err != nil {
			return nil, err
		}
		res, err := s.CreateDeposit(ctx, id, p)
		if errors.Is(err, apierrors.ErrSequenceConflict) && conflicts < s.maxConflictRetries {
			s.logger.Info("sequence id taken, trying the next", "id", id, "conflicts", conflicts+1)
			floor = id
			continue
		}
		if err != nil {
			return nil, err
		}
		r.SequenceID = id
		r.Deposit, _ = s.program.DepositAddress(id)
		if err := r.record(StateCreated, res); err != nil {
			return r, err
		}
		break
	}
	s.logger.Info("deposit created", "id", r.SequenceID, "amount", p.Amount)

	results, err := s.UploadCiphertext(ctx, r.SequenceID, p.Ciphertext)
	if err != nil {
		return r, err
	}
	if err := r.record(StateCiphertextUploaded, results...); err != nil {
		return r, err
	}

	res, err := s.CompleteDeposit(ctx, r.SequenceID)
	if err != nil {
		return r, err
	}
	if err := r.record(StateCompleted, res); err != nil {
		return r, err
	}
	s.logger.Info("deposit completed", "id", r.SequenceID, "optimistic", r.Optimistic)
	return r, nil
}
