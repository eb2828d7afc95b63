//go:build integration

package integration

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	stealthpool "github.com/stealthpool/client-go"
	"github.com/stealthpool/client-go/internal/ledger"
)

var cfg *stealthpool.Config

func TestMain(m *testing.M) {
	// Load .env file if it exists (won't error if missing)
	if err := godotenv.Load("../.env"); err != nil {
		os.Stderr.WriteString("Note: .env file not found at project root\n")
	}

	if os.Getenv(stealthpool.EnvBaseRPC) == "" {
		os.Stderr.WriteString("Skipping integration tests: " + stealthpool.EnvBaseRPC + " not set\n")
		os.Exit(0)
	}
	if os.Getenv(stealthpool.EnvRollupRPC) == "" {
		os.Stderr.WriteString("Skipping integration tests: " + stealthpool.EnvRollupRPC + " not set\n")
		os.Exit(0)
	}
	if os.Getenv(stealthpool.EnvProgramID) == "" {
		os.Stderr.WriteString("Skipping integration tests: " + stealthpool.EnvProgramID + " not set\n")
		os.Exit(0)
	}

	var err error
	cfg, err = stealthpool.LoadConfig(os.Getenv("STEALTHPOOL_CONFIG"))
	if err != nil {
		os.Stderr.WriteString("Invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	os.Stderr.WriteString("Running integration tests...\n")
	os.Stderr.WriteString("RPC URL: " + cfg.BaseRPC + "\n")

	os.Exit(m.Run())
}

// messageSigner holds a throwaway key. The tests only read the ledger, so it
// never signs transactions.
type messageSigner struct {
	key ed25519.PrivateKey
}

func newMessageSigner(t *testing.T) *messageSigner {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return &messageSigner{key: key}
}

func (s *messageSigner) PublicKey() ledger.Address {
	var a ledger.Address
	copy(a[:], s.key.Public().(ed25519.PublicKey))
	return a
}

func (s *messageSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return ed25519.Sign(s.key, message), nil
}

func (s *messageSigner) SignTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.SignedTransaction, error) {
	return nil, errors.New("integration signer does not sign transactions")
}

func (s *messageSigner) SignAllTransactions(ctx context.Context, txs []*ledger.Transaction) ([]*ledger.SignedTransaction, error) {
	return nil, errors.New("integration signer does not sign transactions")
}

func newClient(t *testing.T) *stealthpool.Client {
	t.Helper()

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	opts = append(opts, stealthpool.WithTimeout(30*time.Second))

	client, err := stealthpool.New(newMessageSigner(t), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func TestIntegration_PoolCursorAndNextID(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	cursor, err := client.PoolCursor(ctx)
	if err != nil {
		t.Fatalf("PoolCursor() error = %v", err)
	}
	t.Logf("Pool cursor: %d", cursor)

	next, err := client.NextSequenceID(ctx, 0)
	if err != nil {
		t.Fatalf("NextSequenceID() error = %v", err)
	}
	if next <= cursor {
		t.Errorf("NextSequenceID() = %d, want above the cursor %d", next, cursor)
	}
}

func TestIntegration_UnlockAndScan(t *testing.T) {
	client := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	meta, err := client.Unlock(ctx)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	t.Logf("Meta-address: %s", meta.String())

	if _, err := stealthpool.ParseMetaAddress(meta.String()); err != nil {
		t.Errorf("ParseMetaAddress() error = %v", err)
	}

	res, err := client.Scan(ctx, stealthpool.NewScanCache(), 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	defer res.Wipe()

	// a fresh identity owns nothing
	if len(res.Escrows) != 0 {
		t.Errorf("Scan() found %d escrows for a fresh identity", len(res.Escrows))
	}
	t.Logf("Scanned up to %d (full=%v, pending=%d, failed=%d)", res.UpTo, res.Full, res.Pending, res.Failed)
}

func TestIntegration_MissingEscrow(t *testing.T) {
	client := newClient(t)

	var stealth stealthpool.Address
	if _, err := rand.Read(stealth[:]); err != nil {
		t.Fatal(err)
	}
	_, err := client.GetOutputEscrow(context.Background(), stealth)
	if !errors.Is(err, stealthpool.ErrAccountNotFound) {
		t.Errorf("GetOutputEscrow() error = %v, want ErrAccountNotFound", err)
	}
}
