package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stealthpool "github.com/stealthpool/client-go"
	"github.com/stealthpool/client-go/internal/ledgertest"
	"github.com/stealthpool/client-go/internal/program"
)

// writeKeypair writes a keypair file derived from name and returns its path.
func writeKeypair(t *testing.T, name string) (string, ed25519.PrivateKey) {
	t.Helper()
	seed := sha256.Sum256([]byte(name))
	key := ed25519.NewKeyFromSeed(seed[:])
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, _ := json.Marshal(ints)
	path := filepath.Join(t.TempDir(), name+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path, key
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Stdin != os.Stdin {
		t.Error("DefaultConfig().Stdin should be os.Stdin")
	}
	if cfg.Stdout != os.Stdout {
		t.Error("DefaultConfig().Stdout should be os.Stdout")
	}
	if cfg.Stderr != os.Stderr {
		t.Error("DefaultConfig().Stderr should be os.Stderr")
	}
}

func TestLoadKeypair(t *testing.T) {
	path, key := writeKeypair(t, "operator")

	signer, err := loadKeypair(path)
	if err != nil {
		t.Fatalf("loadKeypair() error = %v", err)
	}
	pub := signer.PublicKey()
	if !bytes.Equal(pub[:], key.Public().(ed25519.PublicKey)) {
		t.Error("PublicKey() does not match the file")
	}

	sig, err := signer.SignMessage(context.Background(), []byte(stealthpool.KeyDerivationMessage))
	if err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	if !ed25519.Verify(key.Public().(ed25519.PublicKey), []byte(stealthpool.KeyDerivationMessage), sig) {
		t.Error("SignMessage() signature does not verify")
	}

	if _, err := signer.SignTransaction(context.Background(), nil); !errors.Is(err, errReadOnly) {
		t.Errorf("SignTransaction() error = %v, want errReadOnly", err)
	}
	if _, err := signer.SignAllTransactions(context.Background(), nil); !errors.Is(err, errReadOnly) {
		t.Errorf("SignAllTransactions() error = %v, want errReadOnly", err)
	}
}

func TestLoadKeypair_Invalid(t *testing.T) {
	_, key := writeKeypair(t, "operator")
	other := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{9}, 32))
	mismatched := append(append([]byte(nil), key.Seed()...), other.Public().(ed25519.PublicKey)...)

	ints := func(b []byte) string {
		parts := make([]string, len(b))
		for i, v := range b {
			parts[i] = fmt.Sprint(v)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"not json", "secret", "parse keypair"},
		{"short", "[1,2,3]", "3 bytes"},
		{"out of range", "[256]", "out of range"},
		{"mismatched public key", ints(mismatched), "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "key.json")
			os.WriteFile(path, []byte(tt.content), 0o600)

			_, err := loadKeypair(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("loadKeypair() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}

	if _, err := loadKeypair(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("loadKeypair(missing) error = %v, want os.ErrNotExist", err)
	}
}

type mockClient struct {
	unlockFn          func(ctx context.Context) (*stealthpool.MetaAddress, error)
	scanFn            func(ctx context.Context, cache *stealthpool.ScanCache, upTo uint64) (*stealthpool.ScanResult, error)
	getOutputEscrowFn func(ctx context.Context, stealth stealthpool.Address) (*stealthpool.OutputEscrowView, error)
	depositStatusFn   func(ctx context.Context, id uint64) (*stealthpool.DepositStatus, error)
	nextSequenceIDFn  func(ctx context.Context, floor uint64) (uint64, error)
	poolCursorFn      func(ctx context.Context) (uint64, error)
	closed            bool
}

func (m *mockClient) Unlock(ctx context.Context) (*stealthpool.MetaAddress, error) {
	if m.unlockFn != nil {
		return m.unlockFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockClient) Scan(ctx context.Context, cache *stealthpool.ScanCache, upTo uint64) (*stealthpool.ScanResult, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, cache, upTo)
	}
	return nil, errors.New("not implemented")
}

func (m *mockClient) GetOutputEscrow(ctx context.Context, stealth stealthpool.Address) (*stealthpool.OutputEscrowView, error) {
	if m.getOutputEscrowFn != nil {
		return m.getOutputEscrowFn(ctx, stealth)
	}
	return nil, errors.New("not implemented")
}

func (m *mockClient) DepositStatus(ctx context.Context, id uint64) (*stealthpool.DepositStatus, error) {
	if m.depositStatusFn != nil {
		return m.depositStatusFn(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockClient) NextSequenceID(ctx context.Context, floor uint64) (uint64, error) {
	if m.nextSequenceIDFn != nil {
		return m.nextSequenceIDFn(ctx, floor)
	}
	return 0, errors.New("not implemented")
}

func (m *mockClient) PoolCursor(ctx context.Context) (uint64, error) {
	if m.poolCursorFn != nil {
		return m.poolCursorFn(ctx)
	}
	return 0, errors.New("not implemented")
}

func (m *mockClient) Wallet() stealthpool.Address {
	return ledgertest.AddressFor("mock wallet")
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

// useClient makes run build mock for the rest of the test.
func useClient(t *testing.T, mock *mockClient) {
	t.Helper()
	prev := newClient
	newClient = func(stealthpool.Signer, ...stealthpool.Option) (stealthClient, error) {
		return mock, nil
	}
	t.Cleanup(func() { newClient = prev })
}

// isolateEnv clears the client's environment variables for the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		stealthpool.EnvBaseRPC, stealthpool.EnvRollupRPC, stealthpool.EnvProgramID,
		stealthpool.EnvDelegationProgram, stealthpool.EnvServiceAuthority,
		stealthpool.EnvTimeoutPolicy, stealthpool.EnvLegacyScan,
		stealthpool.EnvRelayURL, stealthpool.EnvRelayAPIKey, EnvKeypair,
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestRun_MissingCommand(t *testing.T) {
	var stderr bytes.Buffer
	err := run([]string{"stealthctl"}, &Config{Stdout: &bytes.Buffer{}, Stderr: &stderr})
	if err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Errorf("run() error = %v, want missing command", err)
	}
	if !strings.Contains(stderr.String(), "usage: stealthctl") {
		t.Error("usage not printed")
	}
}

func TestRun_MissingKeypair(t *testing.T) {
	isolateEnv(t)
	useClient(t, &mockClient{})

	err := run([]string{"stealthctl", "-env", os.DevNull, "cursor"}, &Config{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), EnvKeypair) {
		t.Errorf("run() error = %v, want keypair error", err)
	}
}

func TestRun_MissingEnvFile(t *testing.T) {
	isolateEnv(t)
	err := run([]string{"stealthctl", "-env", filepath.Join(t.TempDir(), "missing.env"), "cursor"}, &Config{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "load env") {
		t.Errorf("run() error = %v, want load env error", err)
	}
}

func TestRun_Dispatch(t *testing.T) {
	isolateEnv(t)
	path, _ := writeKeypair(t, "operator")
	mock := &mockClient{
		poolCursorFn:     func(ctx context.Context) (uint64, error) { return 42, nil },
		nextSequenceIDFn: func(ctx context.Context, floor uint64) (uint64, error) { return floor + 1, nil },
	}
	useClient(t, mock)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"cursor", []string{"cursor"}, `"poolCursor": 42`, ""},
		{"next-id", []string{"next-id", "9"}, `"nextSequenceId": 10`, ""},
		{"next-id bad floor", []string{"next-id", "x"}, "", "parse floor"},
		{"scan bad bound", []string{"scan", "-1"}, "", "parse up-to"},
		{"inspect no args", []string{"inspect"}, "", "usage: stealthctl inspect"},
		{"status no args", []string{"status"}, "", "usage: stealthctl status"},
		{"status bad id", []string{"status", "one"}, "", "parse sequence id"},
		{"unknown", []string{"frobnicate"}, "", "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			args := append([]string{"stealthctl", "-keypair", path}, tt.args...)
			err := run(args, &Config{Stdout: &stdout, Stderr: &bytes.Buffer{}})

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("run() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if !strings.Contains(stdout.String(), tt.want) {
				t.Errorf("output = %s, want it to contain %s", stdout.String(), tt.want)
			}
		})
	}
	if !mock.closed {
		t.Error("client not closed")
	}
}

func TestRunCommands_Errors(t *testing.T) {
	fail := errors.New("rpc down")
	mock := &mockClient{
		unlockFn:          func(context.Context) (*stealthpool.MetaAddress, error) { return nil, fail },
		getOutputEscrowFn: func(context.Context, stealthpool.Address) (*stealthpool.OutputEscrowView, error) { return nil, fail },
		depositStatusFn:   func(context.Context, uint64) (*stealthpool.DepositStatus, error) { return nil, fail },
		nextSequenceIDFn:  func(context.Context, uint64) (uint64, error) { return 0, fail },
		poolCursorFn:      func(context.Context) (uint64, error) { return 0, fail },
	}
	cfg := &Config{Stdout: &bytes.Buffer{}}
	ctx := context.Background()
	stealth := ledgertest.AddressFor("stealth").String()

	tests := []struct {
		name  string
		run   func() error
		want  string
		wraps bool
	}{
		{"meta", func() error { return runMeta(ctx, mock, cfg) }, "unlock", true},
		{"scan", func() error { return runScan(ctx, mock, cfg, 0) }, "unlock", true},
		{"inspect", func() error { return runInspect(ctx, mock, cfg, stealth) }, "get output escrow", true},
		{"inspect bad key", func() error { return runInspect(ctx, mock, cfg, "not-base58!") }, "parse stealth pubkey", false},
		{"status", func() error { return runStatus(ctx, mock, cfg, 1) }, "deposit status", true},
		{"next-id", func() error { return runNextID(ctx, mock, cfg, 0) }, "next sequence id", true},
		{"cursor", func() error { return runCursor(ctx, mock, cfg) }, "pool cursor", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
			if tt.wraps && !errors.Is(err, fail) {
				t.Errorf("error = %v, want it to wrap %v", err, fail)
			}
		})
	}
}

func TestRunInspect_Output(t *testing.T) {
	dest := ledgertest.AddressFor("dest")
	mock := &mockClient{
		getOutputEscrowFn: func(ctx context.Context, stealth stealthpool.Address) (*stealthpool.OutputEscrowView, error) {
			return &stealthpool.OutputEscrowView{
				Address:  ledgertest.AddressFor("escrow"),
				Domain:   stealthpool.DomainBase,
				Lamports: 5000,
				Escrow: &program.OutputEscrow{
					StealthPubkey:       stealth,
					Amount:              4000,
					IsVerified:          true,
					VerifiedDestination: dest,
				},
			}, nil
		},
	}

	var stdout bytes.Buffer
	if err := runInspect(context.Background(), mock, &Config{Stdout: &stdout}, ledgertest.AddressFor("stealth").String()); err != nil {
		t.Fatalf("runInspect() error = %v", err)
	}

	var out OutputEscrowOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if out.State != "claimed" || out.Domain != "base" {
		t.Errorf("state %q on %q, want claimed on base", out.State, out.Domain)
	}
	if out.VerifiedDestination != dest.String() {
		t.Errorf("VerifiedDestination = %q, want %q", out.VerifiedDestination, dest)
	}
}

// TestRun_AgainstLedger drives the binary against JSON-RPC servers backed by
// the in-memory ledger, configured through a dotenv file.
func TestRun_AgainstLedger(t *testing.T) {
	isolateEnv(t)
	l := ledgertest.New()
	baseSrv := ledgertest.NewServer(l.Base())
	defer baseSrv.Close()
	rollupSrv := ledgertest.NewServer(l.Rollup())
	defer rollupSrv.Close()

	envFile := filepath.Join(t.TempDir(), "test.env")
	env := strings.Join([]string{
		stealthpool.EnvBaseRPC + "=" + baseSrv.URL,
		stealthpool.EnvRollupRPC + "=" + rollupSrv.URL,
		stealthpool.EnvProgramID + "=" + l.Program.ID.String(),
		stealthpool.EnvDelegationProgram + "=" + l.Program.DelegationProgram.String(),
		stealthpool.EnvServiceAuthority + "=" + l.Program.ServiceAuthority.String(),
	}, "\n")
	if err := os.WriteFile(envFile, []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	keypair, _ := writeKeypair(t, "recipient")

	invoke := func(args ...string) []byte {
		t.Helper()
		var stdout, stderr bytes.Buffer
		full := append([]string{"stealthctl", "-env", envFile, "-keypair", keypair, "-timeout", "10s"}, args...)
		if err := run(full, &Config{Stdout: &stdout, Stderr: &stderr}); err != nil {
			t.Fatalf("run(%v) error = %v\n%s", args, err, stderr.String())
		}
		return stdout.Bytes()
	}

	var meta MetaOutput
	if err := json.Unmarshal(invoke("meta"), &meta); err != nil {
		t.Fatalf("failed to parse meta output: %v", err)
	}
	to, err := stealthpool.ParseMetaAddress(meta.MetaAddress)
	if err != nil {
		t.Fatalf("ParseMetaAddress() error = %v", err)
	}

	sender := ledgertest.NewWallet("sender")
	l.Airdrop(sender.PublicKey(), 10*ledgertest.LamportsPerSOL)
	client, err := stealthpool.New(sender,
		stealthpool.WithBaseClient(l.Base()),
		stealthpool.WithRollupClient(l.Rollup()),
		stealthpool.WithProgram(l.Program.ID, l.Program.DelegationProgram, l.Program.ServiceAuthority),
		stealthpool.WithConfirmation(3, 1, time.Millisecond, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()
	receipt, err := client.Send(context.Background(), stealthpool.SendParams{To: to, Amount: 12345})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var scan ScanOutput
	if err := json.Unmarshal(invoke("scan"), &scan); err != nil {
		t.Fatalf("failed to parse scan output: %v", err)
	}
	if len(scan.Escrows) != 1 || scan.Escrows[0].Amount != 12345 {
		t.Fatalf("scan escrows = %+v, want one of 12345", scan.Escrows)
	}
	if scan.Escrows[0].StealthPubkey != receipt.StealthPubkey.String() {
		t.Error("scanned stealth pubkey differs from the receipt")
	}
	if scan.Escrows[0].Destination != meta.SpendPubkey {
		t.Errorf("destination = %q, want the spend key %q", scan.Escrows[0].Destination, meta.SpendPubkey)
	}

	var status StatusOutput
	if err := json.Unmarshal(invoke("status", "1"), &status); err != nil {
		t.Fatalf("failed to parse status output: %v", err)
	}
	if status.State != "completed" || status.Amount != 12345 {
		t.Errorf("status = %+v, want a completed deposit of 12345", status)
	}

	if out := string(invoke("next-id")); !strings.Contains(out, `"nextSequenceId": 2`) {
		t.Errorf("next-id output = %s", out)
	}
	if out := string(invoke("cursor")); !strings.Contains(out, `"poolCursor": 1`) {
		t.Errorf("cursor output = %s", out)
	}
}
