package stealthpool

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stealthpool/client-go/internal/confirm"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/watch"
)

// TimeoutPolicy decides what a confirmation wait that runs out of attempts
// reports.
type TimeoutPolicy = confirm.TimeoutPolicy

const (
	// PolicyOptimistic treats an exhausted confirmation wait as success and
	// flags the result as optimistic. This is the default.
	PolicyOptimistic = confirm.OptimisticOnTimeout
	// PolicyStrict fails an exhausted confirmation wait with
	// *SubmissionTimeoutError.
	PolicyStrict = confirm.StrictOnTimeout
)

// Commitment levels for ledger reads.
const (
	CommitmentProcessed = ledger.CommitmentProcessed
	CommitmentConfirmed = ledger.CommitmentConfirmed
	CommitmentFinalized = ledger.CommitmentFinalized
)

const (
	defaultRPCTimeout  = 30 * time.Second
	defaultWaitTimeout = 5 * time.Minute
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseRPC      string
	rollupRPC    string
	baseClient   ledger.Client
	rollupClient ledger.Client

	programID         ledger.Address
	delegationProgram ledger.Address
	serviceAuthority  ledger.Address

	httpClient *http.Client
	rpcTimeout time.Duration
	retries    int
	rateLimit  float64
	rateBurst  int
	commitment ledger.Commitment

	commitFrequencyMs uint32
	maxSkip           int

	confirmAttempts     int
	confirmFastAttempts int
	confirmFastInterval time.Duration
	confirmSlowInterval time.Duration
	timeoutPolicy       TimeoutPolicy

	custodyTimeout time.Duration

	scanConcurrency int
	legacyScan      bool

	relayURL    string
	relayAPIKey string

	// Polling configuration
	pollingInitialInterval   time.Duration
	pollingMaxBackoff        time.Duration
	pollingBackoffMultiplier float64
	pollingJitterFactor      float64

	logger     *slog.Logger
	registerer prometheus.Registerer
}

func (c *clientConfig) watchConfig() watch.Config {
	return watch.Config{
		InitialInterval:   c.pollingInitialInterval,
		MaxBackoff:        c.pollingMaxBackoff,
		BackoffMultiplier: c.pollingBackoffMultiplier,
		JitterFactor:      c.pollingJitterFactor,
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithBaseRPC sets the JSON-RPC URL of the base ledger.
func WithBaseRPC(url string) Option {
	return func(c *clientConfig) {
		c.baseRPC = url
	}
}

// WithRollupRPC sets the JSON-RPC URL of the TEE rollup.
func WithRollupRPC(url string) Option {
	return func(c *clientConfig) {
		c.rollupRPC = url
	}
}

// WithBaseClient uses a ready-made ledger client for the base ledger instead
// of dialing WithBaseRPC.
func WithBaseClient(l ledger.Client) Option {
	return func(c *clientConfig) {
		c.baseClient = l
	}
}

// WithRollupClient uses a ready-made ledger client for the rollup instead of
// dialing WithRollupRPC.
func WithRollupClient(l ledger.Client) Option {
	return func(c *clientConfig) {
		c.rollupClient = l
	}
}

// WithProgram sets the deployed pool program, the delegation program it
// hands accounts to, and the service authority that receives withdrawal fees.
func WithProgram(id, delegation, serviceAuthority Address) Option {
	return func(c *clientConfig) {
		c.programID = id
		c.delegationProgram = delegation
		c.serviceAuthority = serviceAuthority
	}
}

// WithHTTPClient sets a custom HTTP client for RPC and relay calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout of RPC calls.
// Default: 30 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.rpcTimeout = timeout
	}
}

// WithRetries sets the number of retries for RPC and relay calls.
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithRateLimit caps RPC requests per second on each domain.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		c.rateLimit = rps
		c.rateBurst = burst
	}
}

// WithCommitment sets the commitment level of ledger reads.
// Default: confirmed
func WithCommitment(level ledger.Commitment) Option {
	return func(c *clientConfig) {
		c.commitment = level
	}
}

// WithCommitFrequency sets how often, in milliseconds, the rollup commits a
// delegated deposit back to the base ledger.
// Default: 3000
func WithCommitFrequency(ms uint32) Option {
	return func(c *clientConfig) {
		c.commitFrequencyMs = ms
	}
}

// WithMaxSkip bounds how many taken sequence ids are skipped when looking
// for the next free one.
// Default: 64
func WithMaxSkip(n int) Option {
	return func(c *clientConfig) {
		c.maxSkip = n
	}
}

// WithConfirmation sets the confirmation polling budget: maxAttempts polls in
// total, the first fastAttempts of them fastInterval apart and the rest
// slowInterval apart.
// Default: 30 attempts, 10 fast at 500ms, then 2s
func WithConfirmation(maxAttempts, fastAttempts int, fastInterval, slowInterval time.Duration) Option {
	return func(c *clientConfig) {
		c.confirmAttempts = maxAttempts
		c.confirmFastAttempts = fastAttempts
		c.confirmFastInterval = fastInterval
		c.confirmSlowInterval = slowInterval
	}
}

// WithTimeoutPolicy sets what an exhausted confirmation wait reports.
// Default: PolicyOptimistic
func WithTimeoutPolicy(policy TimeoutPolicy) Option {
	return func(c *clientConfig) {
		c.timeoutPolicy = policy
	}
}

// WithCustodyTimeout bounds every call into key custody.
// Default: 30 seconds
func WithCustodyTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.custodyTimeout = timeout
	}
}

// WithScanConcurrency bounds parallel account lookups during a scan.
// Default: 8
func WithScanConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.scanConcurrency = n
	}
}

// WithLegacyScan also checks deposits made by Ed25519-only senders, which
// carry no post-quantum ciphertext.
func WithLegacyScan(enabled bool) Option {
	return func(c *clientConfig) {
		c.legacyScan = enabled
	}
}

// WithRelay routes withdrawals through a fee-sponsoring relay so the
// recipient's wallet never pays for them.
func WithRelay(url, apiKey string) Option {
	return func(c *clientConfig) {
		c.relayURL = url
		c.relayAPIKey = apiKey
	}
}

// WithPollingInitialInterval sets the initial polling interval of monitors
// and waits. It is used again after every poll that finds something new.
// Default: 2 seconds
func WithPollingInitialInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		c.pollingInitialInterval = interval
	}
}

// WithPollingMaxBackoff sets the maximum polling interval.
// Default: 30 seconds
func WithPollingMaxBackoff(maxBackoff time.Duration) Option {
	return func(c *clientConfig) {
		c.pollingMaxBackoff = maxBackoff
	}
}

// WithPollingBackoffMultiplier sets the factor the polling interval grows by
// after each poll that finds nothing new.
// Default: 1.5
func WithPollingBackoffMultiplier(multiplier float64) Option {
	return func(c *clientConfig) {
		c.pollingBackoffMultiplier = multiplier
	}
}

// WithPollingJitterFactor sets the random jitter added to polling intervals,
// as a fraction of the interval. A negative factor disables jitter.
// Default: 0.3 (30%)
func WithPollingJitterFactor(factor float64) Option {
	return func(c *clientConfig) {
		c.pollingJitterFactor = factor
	}
}

// WithLogger sets the logger. Secrets are redacted and linkable identifiers
// fingerprinted before records reach its handler.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = reg
	}
}

// waitConfig holds configuration for waiting on escrows.
type waitConfig struct {
	minAmount uint64
	predicate func(*Escrow) bool
	timeout   time.Duration
}

// WaitOption configures WaitForEscrow.
type WaitOption func(*waitConfig)

// WithMinAmount only accepts escrows of at least amount lamports.
func WithMinAmount(amount uint64) WaitOption {
	return func(c *waitConfig) {
		c.minAmount = amount
	}
}

// WithPredicate filters escrows by a custom predicate.
func WithPredicate(fn func(*Escrow) bool) WaitOption {
	return func(c *waitConfig) {
		c.predicate = fn
	}
}

// WithWaitTimeout sets the timeout for waiting.
// Default: 5 minutes
func WithWaitTimeout(timeout time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = timeout
	}
}

// Matches checks if an escrow matches the wait criteria.
func (w *waitConfig) Matches(e *Escrow) bool {
	if e.Amount < w.minAmount {
		return false
	}
	if w.predicate != nil && !w.predicate(e) {
		return false
	}
	return true
}
