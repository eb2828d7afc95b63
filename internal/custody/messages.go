package custody

import (
	"crypto/ed25519"

	"github.com/stealthpool/client-go/internal/crypto"
)

// PublicKeys are the public components of the custody identity.
type PublicKeys struct {
	SpendPubkey ed25519.PublicKey
	ViewPubkey  ed25519.PublicKey
	KEM         crypto.KEMPublicKey
}

// Candidate is one escrow the caller wants checked for ownership.
type Candidate struct {
	StealthPubkey [32]byte
	// Ciphertext is the hybrid KEM ciphertext. Leave it empty and set Legacy
	// for records created by Ed25519-only senders.
	Ciphertext []byte
	// ViewTag, when CheckViewTag is set, rejects candidates before the
	// stealth hash is computed.
	ViewTag      byte
	CheckViewTag bool
	// Legacy selects the view-key Diffie-Hellman path using EphemeralPubkey.
	Legacy          bool
	EphemeralPubkey [32]byte
}

// Match is an owned candidate. The caller must wipe SharedSecret after
// building its claim.
type Match struct {
	Index        int
	SharedSecret []byte
}

type requestKind int

const (
	kindInit requestKind = iota
	kindCheckEscrows
	kindWipe
	kindIsReady
)

func (k requestKind) String() string {
	switch k {
	case kindInit:
		return "init"
	case kindCheckEscrows:
		return "check_escrows"
	case kindWipe:
		return "wipe"
	case kindIsReady:
		return "is_ready"
	default:
		return "unknown"
	}
}

// request is the only value that crosses into the custody goroutine.
type request struct {
	id        uint64
	kind      requestKind
	seed      []byte
	exclusive bool
	batch     []Candidate
}

// response is the only value that crosses out of it.
type response struct {
	id      uint64
	keys    *PublicKeys
	matches []Match
	ready   bool
	err     error
}
