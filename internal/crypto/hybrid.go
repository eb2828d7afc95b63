package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"golang.org/x/crypto/curve25519"
)

// EncapsulationResult is produced once per payment by the sender.
type EncapsulationResult struct {
	// Ciphertext is the 1088-byte ML-KEM ciphertext followed by the 32-byte
	// ephemeral X25519 public key. It is public.
	Ciphertext []byte
	// SharedSecret is known only to sender and recipient.
	SharedSecret []byte
}

// EphemeralPubkey returns the ephemeral X25519 public key embedded in the ciphertext.
func (r *EncapsulationResult) EphemeralPubkey() []byte {
	return EphemeralFromCiphertext(r.Ciphertext)
}

// EphemeralFromCiphertext returns the trailing ephemeral X25519 public key, or
// nil if the ciphertext has the wrong size.
func EphemeralFromCiphertext(ct []byte) []byte {
	if len(ct) != HybridCiphertextSize {
		return nil
	}
	out := make([]byte, X25519KeySize)
	copy(out, ct[MLKEMCiphertextSize:])
	return out
}

// Encapsulate runs ML-KEM-768 encapsulation and an ephemeral X25519 exchange
// against the recipient's public key and combines both secrets.
func Encapsulate(recipient *KEMPublicKey) (*EncapsulationResult, error) {
	if err := recipient.Validate(); err != nil {
		return nil, err
	}
	pk, err := kemScheme.UnmarshalBinaryPublicKey(recipient.MLKEM)
	if err != nil {
		return nil, ErrInvalidPublicKeySize
	}

	encSeed := make([]byte, MLKEMEncapsulationSeedSize)
	if _, err := io.ReadFull(randReader, encSeed); err != nil {
		return nil, fmt.Errorf("read encapsulation seed: %w", err)
	}
	defer Wipe(encSeed)

	kemCt, kemSS, err := kemScheme.EncapsulateDeterministically(pk, encSeed)
	if err != nil {
		return nil, fmt.Errorf("ml-kem encapsulate: %w", err)
	}
	defer Wipe(kemSS)

	eph := make([]byte, X25519KeySize)
	if _, err := io.ReadFull(randReader, eph); err != nil {
		return nil, fmt.Errorf("read ephemeral key: %w", err)
	}
	defer Wipe(eph)

	ephPub, err := curve25519.X25519(eph, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	dh, err := curve25519.X25519(eph, recipient.X25519[:])
	if err != nil {
		return nil, ErrLowOrderPoint
	}
	defer Wipe(dh)

	ct := make([]byte, 0, HybridCiphertextSize)
	ct = append(ct, kemCt...)
	ct = append(ct, ephPub...)

	return &EncapsulationResult{
		Ciphertext:   ct,
		SharedSecret: combine(kemSS, dh, ephPub, recipient.X25519[:]),
	}, nil
}

// Decapsulate recovers the shared secret from a hybrid ciphertext. It fails only
// when the ciphertext or key has the wrong size; a ciphertext addressed to
// another recipient, or carrying a low-order ephemeral key, yields an
// unrelated secret that fails the downstream ownership check.
func Decapsulate(secret *KEMSecretKey, ciphertext []byte) ([]byte, error) {
	d, err := NewDecapsulator(secret)
	if err != nil {
		return nil, err
	}
	defer d.Wipe()
	return d.Decapsulate(ciphertext)
}

// Decapsulator holds an unpacked secret key for repeated decapsulation while
// scanning many candidate ciphertexts.
type Decapsulator struct {
	sk        kem.PrivateKey
	x25519    []byte
	x25519Pub []byte
}

// NewDecapsulator unpacks the secret key once.
func NewDecapsulator(secret *KEMSecretKey) (*Decapsulator, error) {
	if secret == nil || len(secret.MLKEM) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}
	sk, err := kemScheme.UnmarshalBinaryPrivateKey(secret.MLKEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKeySize, err)
	}
	x := make([]byte, X25519KeySize)
	copy(x, secret.X25519[:])
	pub, err := curve25519.X25519(x, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return &Decapsulator{sk: sk, x25519: x, x25519Pub: pub}, nil
}

// Decapsulate recovers the combined shared secret for ciphertext.
func (d *Decapsulator) Decapsulate(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != HybridCiphertextSize {
		return nil, ErrInvalidCiphertext
	}
	kemSS, err := kemScheme.Decapsulate(d.sk, ciphertext[:MLKEMCiphertextSize])
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	defer Wipe(kemSS)

	ephPub := ciphertext[MLKEMCiphertextSize:]
	dh, err := curve25519.X25519(d.x25519, ephPub)
	if err != nil {
		// Low-order ephemeral key. The DH share is all zero and the result
		// fails the ownership check like any foreign ciphertext.
		dh = make([]byte, X25519KeySize)
	}
	defer Wipe(dh)

	return combine(kemSS, dh, ephPub, d.x25519Pub), nil
}

// Wipe erases the X25519 secret held by the decapsulator. The unpacked ML-KEM
// key is dropped for the garbage collector; circl exposes no in-place erase.
func (d *Decapsulator) Wipe() {
	if d == nil {
		return
	}
	Wipe(d.x25519)
	d.sk = nil
}

// combine computes SHA-256(label || kemSS || dhSS || ephemeralPub || recipientPub).
func combine(kemSS, dhSS, ephemeralPub, recipientPub []byte) []byte {
	h := sha256.New()
	h.Write([]byte(HybridCombinerLabel))
	h.Write(kemSS)
	h.Write(dhSS)
	h.Write(ephemeralPub)
	h.Write(recipientPub)
	return h.Sum(nil)
}
