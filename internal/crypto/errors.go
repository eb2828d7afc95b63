package crypto

import "errors"

var (
	// ErrInvalidCiphertext is returned when a hybrid ciphertext has the wrong size.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrInvalidPublicKeySize is returned when a public key size is invalid.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")

	// ErrInvalidSecretKeySize is returned when a secret key size is invalid.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInvalidSeed is returned when the signing seed is too short.
	ErrInvalidSeed = errors.New("invalid key derivation seed")

	// ErrInvalidSharedSecret is returned when a shared secret is not 32 bytes.
	ErrInvalidSharedSecret = errors.New("invalid shared secret size")

	// ErrInvalidDestination is returned when a destination is not 32 bytes.
	ErrInvalidDestination = errors.New("invalid destination size")

	// ErrAuthenticationFailed is returned when a sealed destination fails
	// authentication (tampered data or wrong shared secret).
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrLowOrderPoint is returned when an X25519 exchange yields the all-zero output.
	ErrLowOrderPoint = errors.New("x25519 low order point")
)
