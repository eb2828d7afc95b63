package program

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/stealthpool/client-go/internal/ledger"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// Seed prefixes of the stealth pool program.
const (
	SeedPool         = "pool"
	SeedDeposit      = "deposit"
	SeedInputEscrow  = "input_escrow"
	SeedOutputEscrow = "output_escrow"
)

// CreateProgramAddress hashes seeds with the program id. It fails with
// ErrOnCurve when the result is a valid ed25519 point, since such an address
// could have a private key.
func CreateProgramAddress(seeds [][]byte, programID ledger.Address) (ledger.Address, error) {
	if len(seeds) > maxSeeds {
		return ledger.Address{}, fmt.Errorf("%w: %d seeds", ErrInvalidSeeds, len(seeds))
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return ledger.Address{}, fmt.Errorf("%w: seed of %d bytes", ErrInvalidSeeds, len(s))
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr ledger.Address
	copy(addr[:], h.Sum(nil))
	if isOnCurve(addr[:]) {
		return ledger.Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bump seeds from 255 downward and returns the
// first off-curve address.
func FindProgramAddress(seeds [][]byte, programID ledger.Address) (ledger.Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if err != ErrOnCurve {
			return ledger.Address{}, 0, err
		}
	}
	return ledger.Address{}, 0, ErrNoViableBump
}

func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func sequenceSeed(id uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, id)
}

// PoolAddress returns the pool PDA.
func (p *Program) PoolAddress() (ledger.Address, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(SeedPool)}, p.ID)
	return addr, err
}

// DepositAddress returns the DepositRecord PDA for a sequence id.
func (p *Program) DepositAddress(sequenceID uint64) (ledger.Address, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(SeedDeposit), sequenceSeed(sequenceID)}, p.ID)
	return addr, err
}

// InputEscrowAddress returns the InputEscrow PDA for a sequence id.
func (p *Program) InputEscrowAddress(sequenceID uint64) (ledger.Address, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(SeedInputEscrow), sequenceSeed(sequenceID)}, p.ID)
	return addr, err
}

// OutputEscrowAddress returns the OutputEscrow PDA for a stealth public key.
// Nothing about the sender enters the derivation.
func (p *Program) OutputEscrowAddress(stealthPubkey [32]byte) (ledger.Address, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(SeedOutputEscrow), stealthPubkey[:]}, p.ID)
	return addr, err
}
