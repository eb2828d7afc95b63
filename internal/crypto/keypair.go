package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"filippo.io/edwards25519"
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"golang.org/x/crypto/curve25519"
)

// randReader is the random source used for encapsulation and wiping.
// It can be overridden for testing.
var randReader io.Reader = rand.Reader

// kemScheme is the post-quantum half of the hybrid KEM.
var kemScheme kem.Scheme = mlkem768.Scheme()

// KEMPublicKey is the public half of the hybrid KEM keypair.
type KEMPublicKey struct {
	// MLKEM is the raw ML-KEM-768 public key (1184 bytes).
	MLKEM []byte
	// X25519 is the Montgomery form of the spend public key.
	X25519 [X25519KeySize]byte
}

// KEMSecretKey is the secret half of the hybrid KEM keypair.
type KEMSecretKey struct {
	// MLKEM is the raw ML-KEM-768 secret key (2400 bytes).
	MLKEM []byte
	// X25519 is the clamped Ed25519 spend scalar.
	X25519 [X25519KeySize]byte
}

// KEMKeyPair is the hybrid ML-KEM-768 + X25519 keypair.
type KEMKeyPair struct {
	Public KEMPublicKey
	Secret KEMSecretKey
}

// HybridKeyPair holds every key of a stealth identity. All four private
// components are derived from one signing seed.
type HybridKeyPair struct {
	Spend ed25519.PrivateKey
	View  ed25519.PrivateKey
	KEM   KEMKeyPair
}

// SpendPublic returns the Ed25519 spend public key.
func (k *HybridKeyPair) SpendPublic() ed25519.PublicKey {
	return k.Spend.Public().(ed25519.PublicKey)
}

// ViewPublic returns the Ed25519 view public key.
func (k *HybridKeyPair) ViewPublic() ed25519.PublicKey {
	return k.View.Public().(ed25519.PublicKey)
}

// Wipe erases every secret component in place.
func (k *HybridKeyPair) Wipe() {
	if k == nil {
		return
	}
	Wipe(k.Spend)
	Wipe(k.View)
	Wipe(k.KEM.Secret.MLKEM)
	Wipe(k.KEM.Secret.X25519[:])
}

// Validate checks that the ML-KEM key has the right size and parses. It says
// nothing about the X25519 half; use IsBoundToSpendKey for that.
func (p *KEMPublicKey) Validate() error {
	if p == nil || len(p.MLKEM) != MLKEMPublicKeySize {
		return ErrInvalidPublicKeySize
	}
	if _, err := kemScheme.UnmarshalBinaryPublicKey(p.MLKEM); err != nil {
		return ErrInvalidPublicKeySize
	}
	return nil
}

// DeriveKeyPair deterministically derives the full hybrid identity from a
// signing seed (typically a wallet signature over a fixed message).
//
// The spend and view keys come from two domain-separated SHA-256 derivations.
// The X25519 secret is the Ed25519 spend scalar under curve25519 clamping, and
// the ML-KEM-768 key is generated from an HKDF expansion of the seed.
func DeriveKeyPair(seed []byte) (*HybridKeyPair, error) {
	if len(seed) < MinSeedSize {
		return nil, ErrInvalidSeed
	}

	spendSeed := labelledHash(spendKeyLabel, seed)
	viewSeed := labelledHash(viewKeyLabel, seed)
	defer Wipe(spendSeed)
	defer Wipe(viewSeed)

	kp := &HybridKeyPair{
		Spend: ed25519.NewKeyFromSeed(spendSeed),
		View:  ed25519.NewKeyFromSeed(viewSeed),
	}

	scalar := ed25519Scalar(spendSeed)
	defer Wipe(scalar)
	copy(kp.KEM.Secret.X25519[:], scalar)

	xpub, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.KEM.Public.X25519[:], xpub)

	kemSeed, err := DeriveKey(seed, nil, []byte(mlkemKeygenLabel), MLKEMSeedSize)
	if err != nil {
		return nil, err
	}
	defer Wipe(kemSeed)

	pk, sk := kemScheme.DeriveKeyPair(kemSeed)
	// MarshalBinary never fails for keys produced by DeriveKeyPair
	kp.KEM.Public.MLKEM, _ = pk.MarshalBinary()
	kp.KEM.Secret.MLKEM, _ = sk.MarshalBinary()

	return kp, nil
}

// MontgomeryFromEd25519 converts an Ed25519 public key to its X25519 form.
func MontgomeryFromEd25519(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKeySize
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, ErrInvalidPublicKeySize
	}
	return p.BytesMontgomery(), nil
}

// IsBoundToSpendKey reports whether the KEM X25519 key is the Montgomery form
// of spendPub.
func (p *KEMPublicKey) IsBoundToSpendKey(spendPub ed25519.PublicKey) bool {
	mont, err := MontgomeryFromEd25519(spendPub)
	if err != nil {
		return false
	}
	return bytes.Equal(mont, p.X25519[:])
}

// labelledHash returns SHA-256(label || data).
func labelledHash(label string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(label))
	h.Write(data)
	return h.Sum(nil)
}

// ed25519Scalar returns the clamped private scalar Ed25519 derives from seed.
func ed25519Scalar(seed []byte) []byte {
	digest := sha512.Sum512(seed)
	defer Wipe(digest[:])
	s := make([]byte, 32)
	copy(s, digest[:32])
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
	return s
}
