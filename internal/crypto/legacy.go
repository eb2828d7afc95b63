package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
)

// LegacySharedSecret computes the Ed25519-only shared secret used by deposits
// that carry no KEM ciphertext: SHA-256 applied three times to the X25519
// exchange between the view secret and the sender's ephemeral key.
func LegacySharedSecret(viewSecret, ephemeralPub []byte) ([]byte, error) {
	if len(ephemeralPub) != X25519KeySize {
		return nil, ErrInvalidPublicKeySize
	}
	dh, err := curve25519.X25519(viewSecret, ephemeralPub)
	if err != nil {
		return nil, ErrLowOrderPoint
	}
	defer Wipe(dh)
	return tripleHash(dh), nil
}

// LegacyEncapsulate is the sender side of LegacySharedSecret. It returns the
// ephemeral public key and the shared secret.
func LegacyEncapsulate(viewPubX25519 []byte) (ephemeralPub, sharedSecret []byte, err error) {
	eph := make([]byte, X25519KeySize)
	if _, err := io.ReadFull(randReader, eph); err != nil {
		return nil, nil, err
	}
	defer Wipe(eph)
	ephemeralPub, err = curve25519.X25519(eph, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	dh, err := curve25519.X25519(eph, viewPubX25519)
	if err != nil {
		return nil, nil, ErrLowOrderPoint
	}
	defer Wipe(dh)
	return ephemeralPub, tripleHash(dh), nil
}

// ViewX25519Secret returns the clamped X25519 scalar of an Ed25519 view key.
func ViewX25519Secret(k *HybridKeyPair) []byte {
	return ed25519Scalar(k.View.Seed())
}

func tripleHash(b []byte) []byte {
	h1 := sha256.Sum256(b)
	h2 := sha256.Sum256(h1[:])
	h3 := sha256.Sum256(h2[:])
	return h3[:]
}
