package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/stealthpool/client-go/internal/ledger"
)

// envelope is the wire form of a signed transaction in this package.
type envelope struct {
	Transaction json.RawMessage `json:"transaction"`
	Signer      ledger.Address  `json:"signer"`
	Signature   string          `json:"signature"`
}

// Wallet is a deterministic ledger.Signer.
type Wallet struct {
	key ed25519.PrivateKey

	mu           sync.Mutex
	messageSigns int
	txSigns      int
	failNext     error
}

// NewWallet returns a wallet whose key is derived from name.
func NewWallet(name string) *Wallet {
	seed := sha256.Sum256([]byte("ledgertest wallet " + name))
	return &Wallet{key: ed25519.NewKeyFromSeed(seed[:])}
}

// PublicKey returns the wallet address.
func (w *Wallet) PublicKey() ledger.Address {
	var a ledger.Address
	copy(a[:], w.key.Public().(ed25519.PublicKey))
	return a
}

// SignMessage signs message with the wallet key.
func (w *Wallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.takeFailure(); err != nil {
		return nil, err
	}
	w.messageSigns++
	return ed25519.Sign(w.key, message), nil
}

// SignTransaction signs tx. The wallet must be the fee payer.
func (w *Wallet) SignTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.SignedTransaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.takeFailure(); err != nil {
		return nil, err
	}
	return w.sign(tx)
}

// SignAllTransactions signs every transaction in one approval.
func (w *Wallet) SignAllTransactions(ctx context.Context, txs []*ledger.Transaction) ([]*ledger.SignedTransaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]*ledger.SignedTransaction, len(txs))
	for i, tx := range txs {
		signed, err := w.sign(tx)
		if err != nil {
			return nil, err
		}
		out[i] = signed
	}
	return out, nil
}

func (w *Wallet) sign(tx *ledger.Transaction) (*ledger.SignedTransaction, error) {
	if tx.FeePayer != w.PublicKey() {
		return nil, fmt.Errorf("fee payer %s is not this wallet", tx.FeePayer)
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	sig := base58.Encode(ed25519.Sign(w.key, raw))
	wire, err := json.Marshal(envelope{Transaction: raw, Signer: w.PublicKey(), Signature: sig})
	if err != nil {
		return nil, err
	}
	w.txSigns++
	return &ledger.SignedTransaction{Signature: sig, Wire: wire}, nil
}

func (w *Wallet) takeFailure() error {
	err := w.failNext
	w.failNext = nil
	return err
}

// FailNext makes the next signing request fail with err, as if the user
// rejected the prompt.
func (w *Wallet) FailNext(err error) {
	w.mu.Lock()
	w.failNext = err
	w.mu.Unlock()
}

// MessageSigns returns how many messages the wallet has signed.
func (w *Wallet) MessageSigns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.messageSigns
}

// TransactionSigns returns how many transactions the wallet has signed.
func (w *Wallet) TransactionSigns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.txSigns
}

var errBadEnvelope = errors.New("ledgertest: malformed transaction")

// openEnvelope verifies a wire transaction and returns it with its signature.
func openEnvelope(wire []byte) (*ledger.Transaction, *envelope, error) {
	var env envelope
	if err := json.Unmarshal(wire, &env); err != nil {
		return nil, nil, errBadEnvelope
	}
	sig, err := base58.Decode(env.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, nil, errBadEnvelope
	}
	if !ed25519.Verify(ed25519.PublicKey(env.Signer[:]), env.Transaction, sig) {
		return nil, nil, errBadEnvelope
	}
	var tx ledger.Transaction
	if err := json.Unmarshal(env.Transaction, &tx); err != nil {
		return nil, nil, errBadEnvelope
	}
	return &tx, &env, nil
}
