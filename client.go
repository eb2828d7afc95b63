package stealthpool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/stealthpool/client-go/internal/confirm"
	"github.com/stealthpool/client-go/internal/custody"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/lifecycle"
	"github.com/stealthpool/client-go/internal/logging"
	"github.com/stealthpool/client-go/internal/metrics"
	"github.com/stealthpool/client-go/internal/program"
	"github.com/stealthpool/client-go/internal/relay"
	"github.com/stealthpool/client-go/internal/rpc"
	"github.com/stealthpool/client-go/internal/scanner"
	"github.com/stealthpool/client-go/internal/watch"
)

// Address is a 32-byte ledger address. Its text form is base58.
type Address = ledger.Address

// ParseAddress decodes a base58 ledger address.
func ParseAddress(s string) (Address, error) {
	return ledger.ParseAddress(s)
}

// Signer is the wallet. It pays fees, signs transactions, and signs the one
// message the stealth identity is derived from.
type Signer = ledger.Signer

// LedgerClient is the read/submit surface of one settlement domain.
type LedgerClient = ledger.Client

// Domain identifies a settlement domain.
type Domain = ledger.Domain

// Settlement domains.
const (
	DomainBase   = ledger.DomainBase
	DomainRollup = ledger.DomainRollup
)

// DepositState is a position in the deposit lifecycle.
type DepositState = lifecycle.State

// Lifecycle states.
const (
	StateCreated            = lifecycle.StateCreated
	StateCiphertextUploaded = lifecycle.StateCiphertextUploaded
	StateCompleted          = lifecycle.StateCompleted
	StatePooledInput        = lifecycle.StatePooledInput
	StateOutputPrepared     = lifecycle.StateOutputPrepared
	StateOutputFunded       = lifecycle.StateOutputFunded
	StateClaimed            = lifecycle.StateClaimed
	StateWithdrawn          = lifecycle.StateWithdrawn
	StateAbandoned          = lifecycle.StateAbandoned
)

// Client is the stealth pool client of one wallet. It sends private payments,
// scans for payments addressed to the wallet's stealth identity, and claims
// and withdraws them.
type Client struct {
	program  *program.Program
	base     ledger.Client
	rollup   ledger.Client
	signer   ledger.Signer
	sender   *lifecycle.Sender
	receiver *lifecycle.Receiver
	scanner  *scanner.Scanner
	relay    *relay.Client
	poller   *confirm.Poller
	polling  watch.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	custodyOpts []custody.Option

	// unlockMu serializes Unlock and Lock so the wallet is asked to sign at
	// most once.
	unlockMu sync.Mutex

	mu       sync.RWMutex
	boundary *custody.Boundary
	identity *MetaAddress
	monitors []*EscrowMonitor
	closed   bool
}

// buildLedgerClient returns the configured client for one domain, dialing
// endpoint when none was injected.
func buildLedgerClient(d ledger.Domain, injected ledger.Client, endpoint string, cfg *clientConfig, m *metrics.Metrics) (ledger.Client, error) {
	if injected != nil {
		return injected, nil
	}
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	opts := []rpc.Option{
		rpc.WithDomain(d),
		rpc.WithCommitment(cfg.commitment),
		rpc.WithLogger(cfg.logger),
		rpc.WithMetrics(m),
		rpc.WithRateLimit(cfg.rateLimit, cfg.rateBurst),
	}
	if cfg.httpClient != nil {
		opts = append(opts, rpc.WithHTTPClient(cfg.httpClient))
	} else if cfg.rpcTimeout > 0 {
		opts = append(opts, rpc.WithHTTPClient(&http.Client{Timeout: cfg.rpcTimeout}))
	}
	if cfg.retries > 0 {
		opts = append(opts, rpc.WithRetryConfig(retryConfig(cfg.retries)))
	}
	return rpc.New(endpoint, opts...)
}

func retryConfig(retries int) *rpc.RetryConfig {
	rc := rpc.DefaultRetryConfig()
	rc.MaxRetries = retries
	return rc
}

// buildRelayClient returns nil when no relay is configured.
func buildRelayClient(cfg *clientConfig) (*relay.Client, error) {
	if cfg.relayURL == "" {
		return nil, nil
	}
	opts := []relay.Option{
		relay.WithAPIKey(cfg.relayAPIKey),
		relay.WithLogger(cfg.logger),
	}
	if cfg.httpClient != nil {
		opts = append(opts, relay.WithHTTPClient(cfg.httpClient))
	}
	if cfg.retries > 0 {
		opts = append(opts, relay.WithRetryConfig(retryConfig(cfg.retries)))
	}
	return relay.New(cfg.relayURL, opts...)
}

// buildPoller creates the confirmation poller from the config.
func buildPoller(cfg *clientConfig) *confirm.Poller {
	p := confirm.NewPoller(cfg.timeoutPolicy)
	if cfg.confirmAttempts > 0 {
		p.MaxAttempts = cfg.confirmAttempts
	}
	if cfg.confirmFastAttempts > 0 {
		p.FastAttempts = cfg.confirmFastAttempts
	}
	if cfg.confirmFastInterval > 0 {
		p.FastInterval = cfg.confirmFastInterval
	}
	if cfg.confirmSlowInterval > 0 {
		p.SlowInterval = cfg.confirmSlowInterval
	}
	p.Logger = cfg.logger
	return p
}

// New creates a client for the wallet signer.
//
// The stealth identity stays locked until Unlock; sending does not need it,
// scanning and claiming do.
func New(signer Signer, opts ...Option) (*Client, error) {
	if signer == nil {
		return nil, ErrMissingSigner
	}

	cfg := &clientConfig{
		commitment:    CommitmentConfirmed,
		rpcTimeout:    defaultRPCTimeout,
		timeoutPolicy: PolicyOptimistic,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.programID.IsZero() {
		return nil, ErrMissingProgram
	}
	cfg.logger = logging.Sanitize(cfg.logger)
	m := metrics.New(cfg.registerer)

	base, err := buildLedgerClient(ledger.DomainBase, cfg.baseClient, cfg.baseRPC, cfg, m)
	if err != nil {
		return nil, fmt.Errorf("base ledger: %w", err)
	}
	rollup, err := buildLedgerClient(ledger.DomainRollup, cfg.rollupClient, cfg.rollupRPC, cfg, m)
	if err != nil {
		return nil, fmt.Errorf("rollup: %w", err)
	}
	relayClient, err := buildRelayClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	prog := program.New(cfg.programID, cfg.delegationProgram, cfg.serviceAuthority)
	poller := buildPoller(cfg)

	lcfg := lifecycle.Config{
		Program:           prog,
		Base:              base,
		Rollup:            rollup,
		Signer:            signer,
		Poller:            poller,
		CommitFrequencyMs: cfg.commitFrequencyMs,
		MaxSkip:           cfg.maxSkip,
		Logger:            cfg.logger,
		Metrics:           m,
	}
	sender, err := lifecycle.NewSender(lcfg)
	if err != nil {
		return nil, err //coverage:ignore
	}
	receiver, err := lifecycle.NewReceiver(lcfg)
	if err != nil {
		return nil, err //coverage:ignore
	}

	c := &Client{
		program:  prog,
		base:     base,
		rollup:   rollup,
		signer:   signer,
		sender:   sender,
		receiver: receiver,
		relay:    relayClient,
		poller:   poller,
		polling:  cfg.watchConfig(),
		logger:   cfg.logger,
		metrics:  m,
		custodyOpts: []custody.Option{
			custody.WithTimeout(cfg.custodyTimeout),
			custody.WithLogger(cfg.logger),
			custody.WithMetrics(m),
		},
	}
	c.boundary = custody.New(c.custodyOpts...)

	c.scanner, err = scanner.New(scanner.Config{
		Program:     prog,
		Base:        base,
		Rollup:      rollup,
		Custody:     custodyRef{c},
		Concurrency: cfg.scanConcurrency,
		Legacy:      cfg.legacyScan,
		Logger:      cfg.logger,
		Metrics:     m,
	})
	if err != nil {
		c.boundary.Close() //coverage:ignore
		return nil, err    //coverage:ignore
	}

	return c, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// liveBoundary returns the live custody boundary. A crashed boundary is replaced
// by a fresh, locked one; the identity must be unlocked again.
func (c *Client) liveBoundary() (*custody.Boundary, error) {
	c.mu.RLock()
	b, closed := c.boundary, c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClientClosed
	}
	if !b.Crashed() {
		return b, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.boundary == b {
		c.logger.Warn("key custody crashed; identity must be unlocked again")
		b.Close()
		c.boundary = custody.New(c.custodyOpts...)
		c.identity = nil
	}
	return c.boundary, nil
}

// custodyRef lets the scanner reach the current boundary across restarts.
type custodyRef struct {
	c *Client
}

func (r custodyRef) CheckEscrows(ctx context.Context, batch []custody.Candidate) ([]custody.Match, error) {
	b, err := r.c.liveBoundary()
	if err != nil {
		return nil, err
	}
	return b.CheckEscrows(ctx, batch)
}

// Wallet returns the signer's address.
func (c *Client) Wallet() Address {
	return c.signer.PublicKey()
}

// ProgramID returns the pool program the client talks to.
func (c *Client) ProgramID() Address {
	return c.program.ID
}

// PoolCursor returns the last sequence id the pool has handed out, read from
// the rollup when it answers and from the base ledger otherwise.
func (c *Client) PoolCursor(ctx context.Context) (uint64, error) {
	if err := c.checkClosed(); err != nil {
		return 0, err
	}
	cursor, _, err := c.sender.PoolCursor(ctx)
	return cursor, err
}

// Close stops every monitor, wipes the stealth identity and stops key
// custody. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	monitors := c.monitors
	c.monitors = nil
	b := c.boundary
	c.identity = nil
	c.mu.Unlock()

	for _, m := range monitors {
		m.Unsubscribe()
	}
	return b.Close()
}
