package crypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// DeriveStealthPubkey returns SHA-256(sharedSecret || "stealth-derive").
// The on-ledger verifier recomputes exactly this value.
func DeriveStealthPubkey(sharedSecret []byte) [StealthPubkeySize]byte {
	h := sha256.New()
	h.Write(sharedSecret)
	h.Write([]byte(StealthDeriveTag))
	var out [StealthPubkeySize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveViewTag returns the first byte of the shared secret. It rejects about
// 255/256 of foreign payments before the stealth hash is computed.
func DeriveViewTag(sharedSecret []byte) byte {
	if len(sharedSecret) == 0 {
		return 0
	}
	return sharedSecret[0]
}

// IsOwner reports in constant time whether sharedSecret derives stealthPubkey.
func IsOwner(sharedSecret, stealthPubkey []byte) bool {
	if len(stealthPubkey) != StealthPubkeySize {
		return false
	}
	derived := DeriveStealthPubkey(sharedSecret)
	return subtle.ConstantTimeCompare(derived[:], stealthPubkey) == 1
}

// EncryptDestination seals the recipient's 32-byte settlement address under a
// key and nonce derived from the shared secret. The result is 48 bytes and is
// reproducible by anyone holding the shared secret.
func EncryptDestination(destination, sharedSecret []byte) ([]byte, error) {
	if len(destination) != DestinationSize {
		return nil, ErrInvalidDestination
	}
	aead, nonce, err := destinationAEAD(sharedSecret)
	if err != nil {
		return nil, err
	}
	defer Wipe(nonce)
	return aead.Seal(nil, nonce, destination, nil), nil
}

// DecryptDestination opens a sealed destination. It fails with
// ErrAuthenticationFailed on tampering or a wrong shared secret.
func DecryptDestination(sealed, sharedSecret []byte) ([]byte, error) {
	if len(sealed) != EncryptedDestinationSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrAuthenticationFailed, len(sealed), EncryptedDestinationSize)
	}
	aead, nonce, err := destinationAEAD(sharedSecret)
	if err != nil {
		return nil, err
	}
	defer Wipe(nonce)
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// destinationAEAD expands the shared secret into a ChaCha20-Poly1305 key and nonce.
func destinationAEAD(sharedSecret []byte) (cipher.AEAD, []byte, error) {
	if len(sharedSecret) != SharedSecretSize {
		return nil, nil, ErrInvalidSharedSecret
	}
	material, err := DeriveKey(sharedSecret, nil, []byte(destinationKDFInfo), AEADKeySize+AEADNonceSize)
	if err != nil {
		return nil, nil, err
	}
	defer Wipe(material[:AEADKeySize])

	aead, err := chacha20poly1305.New(material[:AEADKeySize])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, AEADNonceSize)
	copy(nonce, material[AEADKeySize:])
	return aead, nonce, nil
}
