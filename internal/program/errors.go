package program

import "errors"

var (
	// ErrInvalidAccountData is returned when account data has the wrong size.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrDiscriminatorMismatch is returned when account data belongs to another account type.
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")

	// ErrInvalidSeeds is returned when PDA seeds exceed the ledger's limits.
	ErrInvalidSeeds = errors.New("invalid program address seeds")

	// ErrOnCurve is returned when a candidate program address lies on the ed25519 curve.
	ErrOnCurve = errors.New("program address is on curve")

	// ErrNoViableBump is returned when no bump seed yields an off-curve address.
	ErrNoViableBump = errors.New("no viable bump seed")

	// ErrUnknownInstruction is returned when instruction data carries an unknown discriminator.
	ErrUnknownInstruction = errors.New("unknown instruction")

	// ErrInvalidInstructionData is returned when instruction data is truncated.
	ErrInvalidInstructionData = errors.New("invalid instruction data")
)
