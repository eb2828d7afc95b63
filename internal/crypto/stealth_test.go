package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func sequentialSecret() []byte {
	ss := make([]byte, SharedSecretSize)
	for i := range ss {
		ss[i] = byte(i)
	}
	return ss
}

func TestDeriveStealthPubkey_KnownVector(t *testing.T) {
	got := DeriveStealthPubkey(sequentialSecret())
	want := "ca23f7dcc18e4a10d93684b7e3209716c24317d42e3c624f41f8428e394e074f"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("DeriveStealthPubkey() = %x, want %s", got, want)
	}
}

func TestDeriveViewTag(t *testing.T) {
	ss := sequentialSecret()
	ss[0] = 0xab
	if got := DeriveViewTag(ss); got != 0xab {
		t.Errorf("DeriveViewTag() = %#x, want 0xab", got)
	}
	if got := DeriveViewTag(nil); got != 0 {
		t.Errorf("DeriveViewTag(nil) = %#x, want 0", got)
	}
}

func TestIsOwner(t *testing.T) {
	ss := sequentialSecret()
	stealth := DeriveStealthPubkey(ss)

	if !IsOwner(ss, stealth[:]) {
		t.Error("IsOwner() = false for the deriving secret")
	}

	other := sequentialSecret()
	other[31] ^= 1
	if IsOwner(other, stealth[:]) {
		t.Error("IsOwner() = true for a different secret")
	}
	if IsOwner(ss, stealth[:31]) {
		t.Error("IsOwner() = true for a truncated stealth key")
	}
}

func TestDestination_RoundTrip(t *testing.T) {
	kp, _ := DeriveKeyPair(testSeed(1))
	res, err := Encapsulate(&kp.KEM.Public)
	if err != nil {
		t.Fatalf("Encapsulate() error = %v", err)
	}

	dest := bytes.Repeat([]byte{0x5a}, DestinationSize)
	sealed, err := EncryptDestination(dest, res.SharedSecret)
	if err != nil {
		t.Fatalf("EncryptDestination() error = %v", err)
	}
	if len(sealed) != EncryptedDestinationSize {
		t.Fatalf("sealed size = %d, want %d", len(sealed), EncryptedDestinationSize)
	}

	ss, err := Decapsulate(&kp.KEM.Secret, res.Ciphertext)
	if err != nil {
		t.Fatalf("Decapsulate() error = %v", err)
	}
	got, err := DecryptDestination(sealed, ss)
	if err != nil {
		t.Fatalf("DecryptDestination() error = %v", err)
	}
	if !bytes.Equal(got, dest) {
		t.Errorf("DecryptDestination() = %x, want %x", got, dest)
	}
}

func TestEncryptDestination_Deterministic(t *testing.T) {
	ss := sequentialSecret()
	dest := bytes.Repeat([]byte{1}, DestinationSize)

	a, _ := EncryptDestination(dest, ss)
	b, _ := EncryptDestination(dest, ss)
	if !bytes.Equal(a, b) {
		t.Error("sealing the same destination twice differs")
	}
}

func TestDecryptDestination_Failures(t *testing.T) {
	ss := sequentialSecret()
	dest := bytes.Repeat([]byte{7}, DestinationSize)
	sealed, err := EncryptDestination(dest, ss)
	if err != nil {
		t.Fatalf("EncryptDestination() error = %v", err)
	}

	wrong := sequentialSecret()
	wrong[5] ^= 0xff

	tampered := append([]byte(nil), sealed...)
	tampered[3] ^= 0x01

	tamperedTag := append([]byte(nil), sealed...)
	tamperedTag[len(tamperedTag)-1] ^= 0x80

	tests := []struct {
		name   string
		sealed []byte
		secret []byte
	}{
		{"wrong secret", sealed, wrong},
		{"tampered body", tampered, ss},
		{"tampered tag", tamperedTag, ss},
		{"truncated", sealed[:EncryptedDestinationSize-1], ss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptDestination(tt.sealed, tt.secret)
			if !errors.Is(err, ErrAuthenticationFailed) {
				t.Errorf("DecryptDestination() error = %v, want ErrAuthenticationFailed", err)
			}
		})
	}
}

func TestEncryptDestination_InvalidInputs(t *testing.T) {
	if _, err := EncryptDestination(make([]byte, 31), sequentialSecret()); !errors.Is(err, ErrInvalidDestination) {
		t.Errorf("short destination error = %v, want ErrInvalidDestination", err)
	}
	if _, err := EncryptDestination(make([]byte, 32), make([]byte, 16)); !errors.Is(err, ErrInvalidSharedSecret) {
		t.Errorf("short secret error = %v, want ErrInvalidSharedSecret", err)
	}
}
