package stealthpool

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stealthpool/client-go/internal/ledgertest"
	"github.com/stealthpool/client-go/internal/watch"
)

func TestDefaultConstants(t *testing.T) {
	if defaultRPCTimeout != 30*time.Second {
		t.Errorf("defaultRPCTimeout = %v, want 30s", defaultRPCTimeout)
	}
	if defaultWaitTimeout != 5*time.Minute {
		t.Errorf("defaultWaitTimeout = %v, want 5m", defaultWaitTimeout)
	}
	if PolicyOptimistic.String() != "optimistic" || PolicyStrict.String() != "strict" {
		t.Errorf("policies = %s/%s, want optimistic/strict", PolicyOptimistic, PolicyStrict)
	}
}

func TestWithEndpoints(t *testing.T) {
	cfg := &clientConfig{}
	WithBaseRPC("https://base.example")(cfg)
	WithRollupRPC("https://rollup.example")(cfg)
	if cfg.baseRPC != "https://base.example" {
		t.Errorf("baseRPC = %s, want https://base.example", cfg.baseRPC)
	}
	if cfg.rollupRPC != "https://rollup.example" {
		t.Errorf("rollupRPC = %s, want https://rollup.example", cfg.rollupRPC)
	}
}

func TestWithLedgerClients(t *testing.T) {
	l := ledgertest.New()
	cfg := &clientConfig{}
	WithBaseClient(l.Base())(cfg)
	WithRollupClient(l.Rollup())(cfg)
	if cfg.baseClient != l.Base() || cfg.rollupClient != l.Rollup() {
		t.Error("ledger clients were not set")
	}
}

func TestWithProgram(t *testing.T) {
	id := ledgertest.AddressFor("program")
	delegation := ledgertest.AddressFor("delegation")
	authority := ledgertest.AddressFor("authority")

	cfg := &clientConfig{}
	WithProgram(id, delegation, authority)(cfg)
	if cfg.programID != id || cfg.delegationProgram != delegation || cfg.serviceAuthority != authority {
		t.Error("program addresses were not set")
	}
}

func TestWithHTTPClient(t *testing.T) {
	cfg := &clientConfig{}
	customClient := &http.Client{Timeout: 99 * time.Second}
	WithHTTPClient(customClient)(cfg)
	if cfg.httpClient != customClient {
		t.Error("httpClient was not set")
	}
}

func TestWithTransportSettings(t *testing.T) {
	cfg := &clientConfig{}
	WithTimeout(10 * time.Second)(cfg)
	WithRetries(5)(cfg)
	WithRateLimit(20, 4)(cfg)
	WithCommitment(CommitmentFinalized)(cfg)

	if cfg.rpcTimeout != 10*time.Second {
		t.Errorf("rpcTimeout = %v, want 10s", cfg.rpcTimeout)
	}
	if cfg.retries != 5 {
		t.Errorf("retries = %d, want 5", cfg.retries)
	}
	if cfg.rateLimit != 20 || cfg.rateBurst != 4 {
		t.Errorf("rate limit = %v/%d, want 20/4", cfg.rateLimit, cfg.rateBurst)
	}
	if cfg.commitment != CommitmentFinalized {
		t.Errorf("commitment = %s, want finalized", cfg.commitment)
	}
}

func TestWithLifecycleSettings(t *testing.T) {
	cfg := &clientConfig{}
	WithCommitFrequency(1500)(cfg)
	WithMaxSkip(8)(cfg)
	WithConfirmation(12, 4, 100*time.Millisecond, time.Second)(cfg)
	WithTimeoutPolicy(PolicyStrict)(cfg)
	WithCustodyTimeout(5 * time.Second)(cfg)

	if cfg.commitFrequencyMs != 1500 {
		t.Errorf("commitFrequencyMs = %d, want 1500", cfg.commitFrequencyMs)
	}
	if cfg.maxSkip != 8 {
		t.Errorf("maxSkip = %d, want 8", cfg.maxSkip)
	}
	if cfg.confirmAttempts != 12 || cfg.confirmFastAttempts != 4 {
		t.Errorf("attempts = %d/%d, want 12/4", cfg.confirmAttempts, cfg.confirmFastAttempts)
	}
	if cfg.confirmFastInterval != 100*time.Millisecond || cfg.confirmSlowInterval != time.Second {
		t.Errorf("intervals = %v/%v, want 100ms/1s", cfg.confirmFastInterval, cfg.confirmSlowInterval)
	}
	if cfg.timeoutPolicy != PolicyStrict {
		t.Errorf("timeoutPolicy = %s, want strict", cfg.timeoutPolicy)
	}
	if cfg.custodyTimeout != 5*time.Second {
		t.Errorf("custodyTimeout = %v, want 5s", cfg.custodyTimeout)
	}
}

func TestBuildPoller(t *testing.T) {
	p := buildPoller(&clientConfig{timeoutPolicy: PolicyStrict})
	if p.MaxAttempts != 30 || p.FastAttempts != 10 {
		t.Errorf("default budget = %d/%d, want 30/10", p.MaxAttempts, p.FastAttempts)
	}
	if p.Policy != PolicyStrict {
		t.Errorf("Policy = %s, want strict", p.Policy)
	}

	p = buildPoller(&clientConfig{confirmAttempts: 3, confirmFastInterval: time.Millisecond})
	if p.MaxAttempts != 3 || p.FastInterval != time.Millisecond || p.SlowInterval != 2*time.Second {
		t.Errorf("budget = %d %v %v, want 3 1ms 2s", p.MaxAttempts, p.FastInterval, p.SlowInterval)
	}
}

func TestWithScanSettings(t *testing.T) {
	cfg := &clientConfig{}
	WithScanConcurrency(16)(cfg)
	WithLegacyScan(true)(cfg)
	WithRelay("https://relay.example", "key")(cfg)

	if cfg.scanConcurrency != 16 {
		t.Errorf("scanConcurrency = %d, want 16", cfg.scanConcurrency)
	}
	if !cfg.legacyScan {
		t.Error("legacyScan = false, want true")
	}
	if cfg.relayURL != "https://relay.example" || cfg.relayAPIKey != "key" {
		t.Errorf("relay = %s %s", cfg.relayURL, cfg.relayAPIKey)
	}
}

func TestWithPollingOptions(t *testing.T) {
	cfg := &clientConfig{}
	WithPollingInitialInterval(time.Second)(cfg)
	WithPollingMaxBackoff(10 * time.Second)(cfg)
	WithPollingBackoffMultiplier(2)(cfg)
	WithPollingJitterFactor(-1)(cfg)

	want := watch.Config{
		InitialInterval:   time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      -1,
	}
	if got := cfg.watchConfig(); got != want {
		t.Errorf("watchConfig() = %+v, want %+v", got, want)
	}
}

func TestWithLoggerAndMetrics(t *testing.T) {
	cfg := &clientConfig{}
	l := slog.Default()
	reg := prometheus.NewRegistry()
	WithLogger(l)(cfg)
	WithMetrics(reg)(cfg)
	if cfg.logger != l {
		t.Error("logger was not set")
	}
	if cfg.registerer != reg {
		t.Error("registerer was not set")
	}
}

func TestWaitOptions(t *testing.T) {
	cfg := &waitConfig{}
	WithMinAmount(100)(cfg)
	WithWaitTimeout(time.Minute)(cfg)
	WithPredicate(func(e *Escrow) bool { return !e.Legacy })(cfg)

	if cfg.timeout != time.Minute {
		t.Errorf("timeout = %v, want 1m", cfg.timeout)
	}

	tests := []struct {
		name   string
		escrow *Escrow
		want   bool
	}{
		{"matches", &Escrow{Amount: 100}, true},
		{"too small", &Escrow{Amount: 99}, false},
		{"rejected by predicate", &Escrow{Amount: 500, Legacy: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Matches(tt.escrow); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
