// Command stealthctl is a read-only operator tool for a stealth pool. It
// derives the wallet's meta-address, scans for owned escrows and inspects
// deposits and escrows. It never submits transactions.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	stealthpool "github.com/stealthpool/client-go"
	"github.com/stealthpool/client-go/internal/ledger"
)

// EnvKeypair names the wallet keypair file when -keypair is not given.
const EnvKeypair = "STEALTHCTL_KEYPAIR"

const usage = `usage: stealthctl [flags] <command> [args]

commands:
  meta                 derive and print the wallet's meta-address
  scan [up-to]         list escrows owned by the wallet
  inspect <stealth>    print the output escrow of a stealth public key
  status <sequence>    print the lifecycle state of a deposit
  next-id [floor]      print the next free deposit sequence id
  cursor               print the pool cursor`

// Config holds the I/O streams of a run.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultConfig returns a Config bound to the process streams.
func DefaultConfig() *Config {
	return &Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// stealthClient is the part of the client the commands use.
type stealthClient interface {
	Unlock(ctx context.Context) (*stealthpool.MetaAddress, error)
	Scan(ctx context.Context, cache *stealthpool.ScanCache, upTo uint64) (*stealthpool.ScanResult, error)
	GetOutputEscrow(ctx context.Context, stealthPubkey stealthpool.Address) (*stealthpool.OutputEscrowView, error)
	DepositStatus(ctx context.Context, sequenceID uint64) (*stealthpool.DepositStatus, error)
	NextSequenceID(ctx context.Context, floor uint64) (uint64, error)
	PoolCursor(ctx context.Context) (uint64, error)
	Wallet() stealthpool.Address
	Close() error
}

// newClient builds the client; tests replace it.
var newClient = func(signer stealthpool.Signer, opts ...stealthpool.Option) (stealthClient, error) {
	return stealthpool.New(signer, opts...)
}

var errReadOnly = errors.New("stealthctl is read-only and does not sign transactions")

// keypairSigner signs the key derivation message with a keypair file. It
// refuses to sign transactions.
type keypairSigner struct {
	key ed25519.PrivateKey
}

func (s *keypairSigner) PublicKey() ledger.Address {
	var a ledger.Address
	copy(a[:], s.key.Public().(ed25519.PublicKey))
	return a
}

func (s *keypairSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return ed25519.Sign(s.key, message), nil
}

func (s *keypairSigner) SignTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.SignedTransaction, error) {
	return nil, errReadOnly
}

func (s *keypairSigner) SignAllTransactions(ctx context.Context, txs []*ledger.Transaction) ([]*ledger.SignedTransaction, error) {
	return nil, errReadOnly
}

// loadKeypair reads a keypair file: a JSON array of the 64 bytes of an
// Ed25519 private key.
func loadKeypair(path string) (*keypairSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair: %w", err)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair: byte value %d out of range", v)
		}
		raw = append(raw, byte(v))
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("parse keypair: %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
		return nil, errors.New("parse keypair: public key does not match the secret")
	}
	return &keypairSigner{key: key}, nil
}

// loadEnv loads path into the environment. A missing default file is not an
// error.
func loadEnv(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func run(args []string, cfg *Config) error {
	fset := flag.NewFlagSet("stealthctl", flag.ContinueOnError)
	fset.SetOutput(cfg.Stderr)
	fset.Usage = func() {
		fmt.Fprintln(cfg.Stderr, usage)
		fmt.Fprintln(cfg.Stderr, "\nflags:")
		fset.PrintDefaults()
	}
	configPath := fset.String("config", "", "YAML config `file` (default: environment only)")
	envPath := fset.String("env", ".env", "dotenv `file` loaded before the config")
	keypairPath := fset.String("keypair", "", "wallet keypair `file` (default: $"+EnvKeypair+")")
	timeout := fset.Duration("timeout", 60*time.Second, "overall deadline")
	verbose := fset.Bool("v", false, "log to stderr")

	if len(args) > 0 {
		args = args[1:]
	}
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() < 1 {
		fset.Usage()
		return errors.New("missing command")
	}

	envSet := false
	fset.Visit(func(f *flag.Flag) {
		if f.Name == "env" {
			envSet = true
		}
	})
	if err := loadEnv(*envPath, envSet); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	fileCfg, err := stealthpool.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	opts, err := fileCfg.Options()
	if err != nil {
		return err
	}
	if *verbose {
		opts = append(opts, stealthpool.WithLogger(slog.New(slog.NewTextHandler(cfg.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	if *keypairPath == "" {
		*keypairPath = os.Getenv(EnvKeypair)
	}
	if *keypairPath == "" {
		return fmt.Errorf("a keypair is required: pass -keypair or set %s", EnvKeypair)
	}
	signer, err := loadKeypair(*keypairPath)
	if err != nil {
		return err
	}

	client, err := newClient(signer, opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmdArgs := fset.Args()[1:]
	switch cmd := fset.Arg(0); cmd {
	case "meta":
		return runMeta(ctx, client, cfg)
	case "scan":
		upTo, err := optionalUint(cmdArgs, "up-to")
		if err != nil {
			return err
		}
		return runScan(ctx, client, cfg, upTo)
	case "inspect":
		if len(cmdArgs) < 1 {
			return errors.New("usage: stealthctl inspect <stealth-pubkey>")
		}
		return runInspect(ctx, client, cfg, cmdArgs[0])
	case "status":
		if len(cmdArgs) < 1 {
			return errors.New("usage: stealthctl status <sequence-id>")
		}
		id, err := strconv.ParseUint(cmdArgs[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parse sequence id: %w", err)
		}
		return runStatus(ctx, client, cfg, id)
	case "next-id":
		floor, err := optionalUint(cmdArgs, "floor")
		if err != nil {
			return err
		}
		return runNextID(ctx, client, cfg, floor)
	case "cursor":
		return runCursor(ctx, client, cfg)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func optionalUint(args []string, name string) (uint64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// MetaOutput is the output of the meta command.
type MetaOutput struct {
	MetaAddress string `json:"metaAddress"`
	Wallet      string `json:"wallet"`
	SpendPubkey string `json:"spendPubkey"`
}

func runMeta(ctx context.Context, client stealthClient, cfg *Config) error {
	meta, err := client.Unlock(ctx)
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	spend, err := ledger.AddressFromBytes(meta.SpendPubkey)
	if err != nil {
		return err
	}
	return writeJSON(cfg.Stdout, MetaOutput{
		MetaAddress: meta.String(),
		Wallet:      client.Wallet().String(),
		SpendPubkey: spend.String(),
	})
}

// EscrowOutput describes one owned escrow.
type EscrowOutput struct {
	SequenceID    uint64 `json:"sequenceId"`
	StealthPubkey string `json:"stealthPubkey"`
	Amount        uint64 `json:"amount"`
	State         string `json:"state"`
	Destination   string `json:"destination,omitempty"`
	Domain        string `json:"domain,omitempty"`
	Legacy        bool   `json:"legacy,omitempty"`
}

// ScanOutput is the output of the scan command.
type ScanOutput struct {
	UpTo    uint64         `json:"upTo"`
	Full    bool           `json:"full"`
	Pending int            `json:"pending"`
	Failed  int            `json:"failed"`
	Escrows []EscrowOutput `json:"escrows"`
}

func runScan(ctx context.Context, client stealthClient, cfg *Config, upTo uint64) error {
	if _, err := client.Unlock(ctx); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	res, err := client.Scan(ctx, stealthpool.NewScanCache(), upTo)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	defer res.Wipe()

	out := ScanOutput{
		UpTo:    res.UpTo,
		Full:    res.Full,
		Pending: res.Pending,
		Failed:  res.Failed,
		Escrows: make([]EscrowOutput, 0, len(res.Escrows)),
	}
	for _, e := range res.Escrows {
		eo := EscrowOutput{
			SequenceID:    e.SequenceID,
			StealthPubkey: e.StealthPubkey.String(),
			Amount:        e.Amount,
			State:         e.State.String(),
			Legacy:        e.Legacy,
		}
		if e.Destination != nil {
			eo.Destination = e.Destination.String()
		}
		if e.Output != nil {
			eo.Domain = e.Output.Domain.String()
		}
		out.Escrows = append(out.Escrows, eo)
	}
	return writeJSON(cfg.Stdout, out)
}

// OutputEscrowOutput is the output of the inspect command.
type OutputEscrowOutput struct {
	Address             string `json:"address"`
	Domain              string `json:"domain"`
	State               string `json:"state"`
	Amount              uint64 `json:"amount"`
	Lamports            uint64 `json:"lamports"`
	Verified            bool   `json:"verified"`
	VerifiedDestination string `json:"verifiedDestination,omitempty"`
	Withdrawn           bool   `json:"withdrawn"`
}

func runInspect(ctx context.Context, client stealthClient, cfg *Config, stealth string) error {
	addr, err := stealthpool.ParseAddress(stealth)
	if err != nil {
		return fmt.Errorf("parse stealth pubkey: %w", err)
	}
	view, err := client.GetOutputEscrow(ctx, addr)
	if err != nil {
		return fmt.Errorf("get output escrow: %w", err)
	}
	out := OutputEscrowOutput{
		Address:   view.Address.String(),
		Domain:    view.Domain.String(),
		State:     view.State().String(),
		Amount:    view.Escrow.Amount,
		Lamports:  view.Lamports,
		Verified:  view.Escrow.IsVerified,
		Withdrawn: view.Escrow.IsWithdrawn,
	}
	if view.Escrow.IsVerified {
		out.VerifiedDestination = view.Escrow.VerifiedDestination.String()
	}
	return writeJSON(cfg.Stdout, out)
}

// StatusOutput is the output of the status command.
type StatusOutput struct {
	SequenceID    uint64 `json:"sequenceId"`
	State         string `json:"state"`
	Domain        string `json:"domain"`
	Depositor     string `json:"depositor"`
	StealthPubkey string `json:"stealthPubkey"`
	Uploaded      bool   `json:"uploaded"`
	Executed      bool   `json:"executed"`
	Amount        uint64 `json:"amount"`
	Pooled        bool   `json:"pooled"`
}

func runStatus(ctx context.Context, client stealthClient, cfg *Config, id uint64) error {
	st, err := client.DepositStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("deposit status: %w", err)
	}
	out := StatusOutput{
		SequenceID:    st.SequenceID,
		State:         st.State.String(),
		Domain:        st.Domain.String(),
		Depositor:     st.Record.Depositor.String(),
		StealthPubkey: stealthpool.Address(st.Record.StealthPubkey).String(),
		Uploaded:      st.Record.Uploaded,
		Executed:      st.Record.Executed,
		Amount:        st.Record.Amount,
	}
	if st.Input != nil {
		out.Pooled = st.Input.Pooled
	}
	return writeJSON(cfg.Stdout, out)
}

func runNextID(ctx context.Context, client stealthClient, cfg *Config, floor uint64) error {
	id, err := client.NextSequenceID(ctx, floor)
	if err != nil {
		return fmt.Errorf("next sequence id: %w", err)
	}
	return writeJSON(cfg.Stdout, map[string]uint64{"nextSequenceId": id})
}

func runCursor(ctx context.Context, client stealthClient, cfg *Config) error {
	cursor, err := client.PoolCursor(ctx)
	if err != nil {
		return fmt.Errorf("pool cursor: %w", err)
	}
	return writeJSON(cfg.Stdout, map[string]uint64{"poolCursor": cursor})
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
