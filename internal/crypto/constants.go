package crypto

const (
	// HybridCombinerLabel prefixes the hybrid KEM combiner input.
	HybridCombinerLabel = "stealthpool:hybrid-kem:v1"

	// StealthDeriveTag is appended to the shared secret when deriving a stealth pubkey.
	StealthDeriveTag = "stealth-derive"

	// Domain separation labels for key derivation from the signing seed.
	spendKeyLabel      = "stealthpool:spend:v1"
	viewKeyLabel       = "stealthpool:view:v1"
	mlkemKeygenLabel   = "stealthpool:mlkem768:keygen:v1"
	destinationKDFInfo = "stealthpool:destination:v1"

	// MLKEMPublicKeySize is the size of an ML-KEM-768 public key in bytes.
	MLKEMPublicKeySize = 1184
	// MLKEMSecretKeySize is the size of an ML-KEM-768 secret key in bytes.
	MLKEMSecretKeySize = 2400
	// MLKEMCiphertextSize is the size of an ML-KEM-768 ciphertext in bytes.
	MLKEMCiphertextSize = 1088
	// MLKEMSeedSize is the size of the ML-KEM-768 key generation seed.
	MLKEMSeedSize = 64
	// MLKEMEncapsulationSeedSize is the randomness consumed by one encapsulation.
	MLKEMEncapsulationSeedSize = 32

	// X25519KeySize is the size of X25519 public and secret keys.
	X25519KeySize = 32

	// HybridCiphertextSize is ML-KEM ciphertext || ephemeral X25519 public key.
	HybridCiphertextSize = MLKEMCiphertextSize + X25519KeySize

	// SharedSecretSize is the size of the combined shared secret.
	SharedSecretSize = 32

	// StealthPubkeySize is the size of a derived stealth public key.
	StealthPubkeySize = 32

	// DestinationSize is the size of a plaintext destination address.
	DestinationSize = 32
	// AEADKeySize is the ChaCha20-Poly1305 key size.
	AEADKeySize = 32
	// AEADNonceSize is the ChaCha20-Poly1305 nonce size.
	AEADNonceSize = 12
	// AEADTagSize is the Poly1305 tag size.
	AEADTagSize = 16
	// EncryptedDestinationSize is the sealed destination size.
	EncryptedDestinationSize = DestinationSize + AEADTagSize

	// MinSeedSize is the shortest signing seed accepted by DeriveKeyPair.
	MinSeedSize = 32
)
