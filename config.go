package stealthpool

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stealthpool/client-go/internal/confirm"
	"github.com/stealthpool/client-go/internal/ledger"
)

// Environment variables that override file values.
const (
	EnvBaseRPC           = "STEALTHPOOL_RPC_URL"
	EnvRollupRPC         = "STEALTHPOOL_ROLLUP_RPC_URL"
	EnvProgramID         = "STEALTHPOOL_PROGRAM_ID"
	EnvDelegationProgram = "STEALTHPOOL_DELEGATION_PROGRAM_ID"
	EnvServiceAuthority  = "STEALTHPOOL_SERVICE_AUTHORITY"
	EnvTimeoutPolicy     = "STEALTHPOOL_TIMEOUT_POLICY"
	EnvLegacyScan        = "STEALTHPOOL_LEGACY_SCAN"
	EnvRelayURL          = "STEALTHPOOL_RELAY_URL"
	EnvRelayAPIKey       = "STEALTHPOOL_RELAY_API_KEY"
)

// Config is the file form of the client settings.
type Config struct {
	BaseRPC           string `yaml:"baseRpc"`
	RollupRPC         string `yaml:"rollupRpc"`
	ProgramID         string `yaml:"programId"`
	DelegationProgram string `yaml:"delegationProgram"`
	ServiceAuthority  string `yaml:"serviceAuthority"`

	Commitment        string        `yaml:"commitment"`
	CommitFrequencyMs uint32        `yaml:"commitFrequencyMs"`
	RPCTimeout        time.Duration `yaml:"rpcTimeout"`
	RPCRetries        int           `yaml:"rpcRetries"`
	RPCRateLimit      float64       `yaml:"rpcRateLimit"`
	RPCBurst          int           `yaml:"rpcBurst"`

	Confirmation ConfirmationConfig `yaml:"confirmation"`

	CustodyTimeout time.Duration `yaml:"custodyTimeout"`

	Scan ScanConfig `yaml:"scan"`

	Relay RelayConfig `yaml:"relay"`
}

// ConfirmationConfig is the confirmation polling budget.
type ConfirmationConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	FastAttempts int           `yaml:"fastAttempts"`
	FastInterval time.Duration `yaml:"fastInterval"`
	SlowInterval time.Duration `yaml:"slowInterval"`
	Policy       string        `yaml:"policy"`
}

// ScanConfig tunes scanning.
type ScanConfig struct {
	Concurrency int  `yaml:"concurrency"`
	Legacy      bool `yaml:"legacy"`
}

// RelayConfig points at a withdrawal relay.
type RelayConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

// LoadConfig reads a YAML config file and applies environment overrides. An
// empty path reads the environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces config values with the STEALTHPOOL_* variables
// that are set.
func ApplyEnvOverrides(cfg *Config) error {
	for env, dst := range map[string]*string{
		EnvBaseRPC:           &cfg.BaseRPC,
		EnvRollupRPC:         &cfg.RollupRPC,
		EnvProgramID:         &cfg.ProgramID,
		EnvDelegationProgram: &cfg.DelegationProgram,
		EnvServiceAuthority:  &cfg.ServiceAuthority,
		EnvTimeoutPolicy:     &cfg.Confirmation.Policy,
		EnvRelayURL:          &cfg.Relay.URL,
		EnvRelayAPIKey:       &cfg.Relay.APIKey,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}

	raw := strings.TrimSpace(os.Getenv(EnvLegacyScan))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvLegacyScan, err)
	}
	cfg.Scan.Legacy = v
	return nil
}

// parseOptionalAddress parses s, returning the zero address for "".
func parseOptionalAddress(name, s string) (Address, error) {
	if s == "" {
		return Address{}, nil
	}
	a, err := ledger.ParseAddress(s)
	if err != nil {
		return Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

// Options converts the config to client options. Zero values are left out so
// the client defaults apply.
func (c *Config) Options() ([]Option, error) {
	programID, err := parseOptionalAddress("programId", c.ProgramID)
	if err != nil {
		return nil, err
	}
	delegation, err := parseOptionalAddress("delegationProgram", c.DelegationProgram)
	if err != nil {
		return nil, err
	}
	authority, err := parseOptionalAddress("serviceAuthority", c.ServiceAuthority)
	if err != nil {
		return nil, err
	}
	policy, err := confirm.ParseTimeoutPolicy(c.Confirmation.Policy)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithProgram(programID, delegation, authority),
		WithTimeoutPolicy(policy),
		WithLegacyScan(c.Scan.Legacy),
	}
	if c.BaseRPC != "" {
		opts = append(opts, WithBaseRPC(c.BaseRPC))
	}
	if c.RollupRPC != "" {
		opts = append(opts, WithRollupRPC(c.RollupRPC))
	}
	switch ledger.Commitment(c.Commitment) {
	case "":
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		opts = append(opts, WithCommitment(ledger.Commitment(c.Commitment)))
	default:
		return nil, fmt.Errorf("unknown commitment %q", c.Commitment)
	}
	if c.CommitFrequencyMs > 0 {
		opts = append(opts, WithCommitFrequency(c.CommitFrequencyMs))
	}
	if c.RPCTimeout > 0 {
		opts = append(opts, WithTimeout(c.RPCTimeout))
	}
	if c.RPCRetries > 0 {
		opts = append(opts, WithRetries(c.RPCRetries))
	}
	if c.RPCRateLimit > 0 {
		opts = append(opts, WithRateLimit(c.RPCRateLimit, c.RPCBurst))
	}
	if cc := c.Confirmation; cc.MaxAttempts > 0 || cc.FastAttempts > 0 || cc.FastInterval > 0 || cc.SlowInterval > 0 {
		opts = append(opts, WithConfirmation(cc.MaxAttempts, cc.FastAttempts, cc.FastInterval, cc.SlowInterval))
	}
	if c.CustodyTimeout > 0 {
		opts = append(opts, WithCustodyTimeout(c.CustodyTimeout))
	}
	if c.Scan.Concurrency > 0 {
		opts = append(opts, WithScanConcurrency(c.Scan.Concurrency))
	}
	if c.Relay.URL != "" {
		opts = append(opts, WithRelay(c.Relay.URL, c.Relay.APIKey))
	}
	return opts, nil
}
