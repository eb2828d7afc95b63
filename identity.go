package stealthpool

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/stealthpool/client-go/internal/crypto"
)

// KeyDerivationMessage is the message the wallet signs once per session. The
// signature seeds every key of the stealth identity, so the message must never
// change.
const KeyDerivationMessage = "stealthpool: unlock stealth identity v1"

const (
	metaAddressPrefix  = "sp1"
	metaAddressVersion = byte(1)
	metaAddressSize    = 1 + ed25519.PublicKeySize*2 + crypto.X25519KeySize + crypto.MLKEMPublicKeySize
)

// KEMPublicKey is the hybrid ML-KEM-768 + X25519 public key.
type KEMPublicKey = crypto.KEMPublicKey

// MetaAddress is the public half of a stealth identity. Senders pay to it;
// nothing on the ledger ever links a payment back to it.
type MetaAddress struct {
	SpendPubkey ed25519.PublicKey
	ViewPubkey  ed25519.PublicKey
	KEM         KEMPublicKey
}

// Validate checks key sizes and that the KEM's X25519 key is the Montgomery
// form of the spend key.
func (m *MetaAddress) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrInvalidMetaAddress)
	}
	if len(m.SpendPubkey) != ed25519.PublicKeySize || len(m.ViewPubkey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: %w", ErrInvalidMetaAddress, ErrInvalidPublicKeySize)
	}
	if err := m.KEM.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetaAddress, err)
	}
	if !m.KEM.IsBoundToSpendKey(m.SpendPubkey) {
		return fmt.Errorf("%w: KEM key is not bound to the spend key", ErrInvalidMetaAddress)
	}
	return nil
}

// Equal reports whether both meta-addresses hold the same keys.
func (m *MetaAddress) Equal(other *MetaAddress) bool {
	if m == nil || other == nil {
		return m == other
	}
	return bytes.Equal(m.SpendPubkey, other.SpendPubkey) &&
		bytes.Equal(m.ViewPubkey, other.ViewPubkey) &&
		m.KEM.X25519 == other.KEM.X25519 &&
		bytes.Equal(m.KEM.MLKEM, other.KEM.MLKEM)
}

// String returns "sp1" followed by the base58 encoding of
// version || spend || view || x25519 || ml-kem.
func (m *MetaAddress) String() string {
	buf := make([]byte, 0, metaAddressSize)
	buf = append(buf, metaAddressVersion)
	buf = append(buf, m.SpendPubkey...)
	buf = append(buf, m.ViewPubkey...)
	buf = append(buf, m.KEM.X25519[:]...)
	buf = append(buf, m.KEM.MLKEM...)
	return metaAddressPrefix + base58.Encode(buf)
}

// ParseMetaAddress decodes and validates a meta-address.
func ParseMetaAddress(s string) (*MetaAddress, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), metaAddressPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidMetaAddress, metaAddressPrefix)
	}
	raw, err := base58.Decode(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetaAddress, err)
	}
	if len(raw) != metaAddressSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidMetaAddress, len(raw), metaAddressSize)
	}
	if raw[0] != metaAddressVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidMetaAddress, raw[0])
	}

	off := 1
	next := func(n int) []byte {
		b := bytes.Clone(raw[off : off+n])
		off += n
		return b
	}
	m := &MetaAddress{
		SpendPubkey: next(ed25519.PublicKeySize),
		ViewPubkey:  next(ed25519.PublicKeySize),
	}
	copy(m.KEM.X25519[:], next(crypto.X25519KeySize))
	m.KEM.MLKEM = next(crypto.MLKEMPublicKeySize)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m *MetaAddress) MarshalText() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MetaAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseMetaAddress(string(text))
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

func (m *MetaAddress) clone() *MetaAddress {
	return &MetaAddress{
		SpendPubkey: bytes.Clone(m.SpendPubkey),
		ViewPubkey:  bytes.Clone(m.ViewPubkey),
		KEM: KEMPublicKey{
			MLKEM:  bytes.Clone(m.KEM.MLKEM),
			X25519: m.KEM.X25519,
		},
	}
}

// Unlock derives the stealth identity from a wallet signature over
// KeyDerivationMessage and loads it into key custody. The wallet is only
// asked to sign when custody holds no keys; later calls return the loaded
// identity.
func (c *Client) Unlock(ctx context.Context) (*MetaAddress, error) {
	c.unlockMu.Lock()
	defer c.unlockMu.Unlock()

	b, err := c.liveBoundary()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	loaded := c.identity
	c.mu.RUnlock()
	if loaded != nil && b.IsReady(ctx) {
		return loaded.clone(), nil
	}

	sig, err := c.signer.SignMessage(ctx, []byte(KeyDerivationMessage))
	if err != nil {
		return nil, fmt.Errorf("sign key derivation message: %w", err)
	}
	keys, err := b.Init(ctx, sig)
	if err != nil {
		return nil, err
	}

	meta := &MetaAddress{SpendPubkey: keys.SpendPubkey, ViewPubkey: keys.ViewPubkey, KEM: keys.KEM}
	if err := meta.Validate(); err != nil {
		_ = b.Wipe(ctx)
		return nil, &CryptoError{Op: "unlock", Err: err}
	}

	c.mu.Lock()
	if c.boundary == b {
		c.identity = meta
	}
	c.mu.Unlock()

	c.logger.Info("stealth identity unlocked")
	return meta.clone(), nil
}

// IsUnlocked reports whether key custody holds the stealth identity.
func (c *Client) IsUnlocked(ctx context.Context) bool {
	b, err := c.liveBoundary()
	if err != nil {
		return false
	}
	c.mu.RLock()
	loaded := c.identity != nil
	c.mu.RUnlock()
	return loaded && b.IsReady(ctx)
}

// MetaAddress returns the unlocked identity's meta-address.
func (c *Client) MetaAddress() (*MetaAddress, error) {
	if _, err := c.liveBoundary(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil, ErrNotInitialized
	}
	return c.identity.clone(), nil
}

// Lock wipes the stealth identity from key custody. Unlock asks the wallet to
// sign again. Locking a locked client is a no-op.
func (c *Client) Lock(ctx context.Context) error {
	c.unlockMu.Lock()
	defer c.unlockMu.Unlock()

	b, err := c.liveBoundary()
	if err != nil {
		return err
	}
	if err := b.Wipe(ctx); err != nil && !errors.Is(err, ErrNotInitialized) {
		return err
	}
	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()
	c.logger.Info("stealth identity locked")
	return nil
}
