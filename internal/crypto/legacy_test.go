package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/curve25519"
)

func TestTripleHash_KnownVector(t *testing.T) {
	got := tripleHash(bytes.Repeat([]byte{0x07}, 32))
	want := "8a46682d6aecabd069e033b16d580857dc503f6b7148a7b67b9c32d357b75ac0"
	if hex.EncodeToString(got) != want {
		t.Errorf("tripleHash() = %x, want %s", got, want)
	}
}

func TestLegacy_RoundTrip(t *testing.T) {
	kp, _ := DeriveKeyPair(testSeed(12))
	viewSecret := ViewX25519Secret(kp)
	viewPub, err := curve25519.X25519(viewSecret, curve25519.Basepoint)
	if err != nil {
		t.Fatalf("X25519() error = %v", err)
	}

	eph, senderSS, err := LegacyEncapsulate(viewPub)
	if err != nil {
		t.Fatalf("LegacyEncapsulate() error = %v", err)
	}
	recvSS, err := LegacySharedSecret(viewSecret, eph)
	if err != nil {
		t.Fatalf("LegacySharedSecret() error = %v", err)
	}
	if !bytes.Equal(senderSS, recvSS) {
		t.Error("legacy shared secrets differ")
	}
}

func TestLegacySharedSecret_Invalid(t *testing.T) {
	kp, _ := DeriveKeyPair(testSeed(13))
	if _, err := LegacySharedSecret(ViewX25519Secret(kp), make([]byte, 31)); err == nil {
		t.Error("expected error for short ephemeral key")
	}
	if _, err := LegacySharedSecret(ViewX25519Secret(kp), make([]byte, 32)); err == nil {
		t.Error("expected error for low order ephemeral key")
	}
}

func TestWipe(t *testing.T) {
	b := bytes.Repeat([]byte{0xff}, 64)
	Wipe(b)
	if !IsZero(b) {
		t.Errorf("Wipe() left %x", b)
	}
	Wipe(nil)

	if IsZero([]byte{0, 0, 1}) {
		t.Error("IsZero() = true for non-zero input")
	}
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey([]byte("secret"), nil, []byte("info"), 44)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(a) != 44 {
		t.Errorf("len = %d, want 44", len(a))
	}
	b, _ := DeriveKey([]byte("secret"), nil, []byte("other"), 44)
	if bytes.Equal(a, b) {
		t.Error("different info produced the same key")
	}
}
