// Package crypto provides the cryptographic primitives of the stealth pool protocol.
// It implements a hybrid post-quantum key encapsulation mechanism, stealth address
// derivation and authenticated encryption of the recipient's destination address.
//
// # Algorithm Suite
//
//   - ML-KEM-768 (NIST FIPS 203): post-quantum half of the hybrid KEM.
//
//   - X25519 (RFC 7748): classical half of the hybrid KEM. The recipient's X25519
//     secret is the clamped Ed25519 spend scalar, which binds the post-quantum
//     identity to the classical spending identity.
//
//   - SHA-256 combiner: the two shared secrets are combined as
//     SHA-256(label || ss_kem || ss_dh || ephemeral_pk || recipient_pk).
//
//   - SHA-256 stealth derivation: stealth_pk = SHA-256(shared_secret || "stealth-derive").
//
//   - ChaCha20-Poly1305 with HKDF-SHA-256 derived key and nonce: seals the 32-byte
//     destination into 48 bytes. The nonce is derived from the shared secret so the
//     verifier can reproduce the encryption without nonce transport.
//
// # Wire Formats
//
// A hybrid ciphertext is 1120 bytes: the 1088-byte ML-KEM-768 ciphertext followed
// by the sender's 32-byte ephemeral X25519 public key. Both sides must produce the
// combiner input bit-for-bit identically; any deviation silently breaks ownership
// detection for every payment.
//
// # Key Management
//
// [DeriveKeyPair] derives every key from one signing seed, so nothing secret ever
// needs to be persisted. Secret halves must stay inside the key custody boundary;
// use [Wipe] to erase buffers once they are no longer needed.
package crypto
