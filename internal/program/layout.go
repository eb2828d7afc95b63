package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/stealthpool/client-go/internal/ledger"
)

// Sizes of the fixed-width fields shared with the crypto layer.
const (
	DiscriminatorSize        = 8
	StealthPubkeySize        = 32
	EphemeralPubkeySize      = 32
	EncryptedDestinationSize = 48
	CiphertextSize           = 1120
)

// Account sizes, discriminator included.
const (
	DepositRecordSize = 1293
	InputEscrowSize   = 26
	OutputEscrowSize  = 83
	PoolSize          = 57
)

// DepositRecord field offsets.
const (
	DepositSequenceIDOffset  = 8
	DepositDepositorOffset   = 16
	DepositAmountOffset      = 48
	DepositStealthOffset     = 56
	DepositEphemeralOffset   = 88
	DepositViewTagOffset     = 120
	DepositDestinationOffset = 121
	DepositCiphertextOffset  = 169
	DepositUploadedOffset    = 1289
	DepositExecutedOffset    = 1290
	DepositClaimedOffset     = 1291
	DepositBumpOffset        = 1292
	OutputStealthOffset      = 8
	OutputAmountOffset       = 40
	OutputDestinationOffset  = 48
	OutputVerifiedOffset     = 80
	OutputWithdrawnOffset    = 81
	OutputBumpOffset         = 82
	InputSequenceIDOffset    = 8
	InputAmountOffset        = 16
	InputPooledOffset        = 24
	InputBumpOffset          = 25
	PoolAuthorityOffset      = 8
	PoolLastDepositIDOffset  = 40
	PoolTotalDepositsOffset  = 48
	PoolBumpOffset           = 56
)

// Discriminator is the 8-byte type tag leading every account and instruction.
type Discriminator [DiscriminatorSize]byte

// AccountDiscriminator returns SHA-256("account:<name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	return hashDiscriminator("account:" + name)
}

// InstructionDiscriminator returns SHA-256("global:<name>")[:8].
func InstructionDiscriminator(name string) Discriminator {
	return hashDiscriminator("global:" + name)
}

func hashDiscriminator(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	DepositRecordDiscriminator = AccountDiscriminator("DepositRecord")
	InputEscrowDiscriminator   = AccountDiscriminator("InputEscrow")
	OutputEscrowDiscriminator  = AccountDiscriminator("OutputEscrow")
	PoolDiscriminator          = AccountDiscriminator("Pool")
)

func checkAccount(data []byte, size int, disc Discriminator, name string) error {
	if len(data) != size {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrInvalidAccountData, name, len(data), size)
	}
	if !bytes.Equal(data[:DiscriminatorSize], disc[:]) {
		return fmt.Errorf("%w: not a %s", ErrDiscriminatorMismatch, name)
	}
	return nil
}

func flag(b byte) bool { return b != 0 }

func flagByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// DepositRecord is the per-payment account keyed by sequence id.
type DepositRecord struct {
	SequenceID           uint64
	Depositor            ledger.Address
	Amount               uint64
	StealthPubkey        [StealthPubkeySize]byte
	EphemeralPubkey      [EphemeralPubkeySize]byte
	ViewTag              byte
	EncryptedDestination [EncryptedDestinationSize]byte
	Ciphertext           [CiphertextSize]byte
	Uploaded             bool
	Executed             bool
	Claimed              bool
	Bump                 uint8
}

// DecodeDepositRecord parses a DepositRecord account.
func DecodeDepositRecord(data []byte) (*DepositRecord, error) {
	if err := checkAccount(data, DepositRecordSize, DepositRecordDiscriminator, "DepositRecord"); err != nil {
		return nil, err
	}
	r := &DepositRecord{
		SequenceID: binary.LittleEndian.Uint64(data[DepositSequenceIDOffset:]),
		Amount:     binary.LittleEndian.Uint64(data[DepositAmountOffset:]),
		ViewTag:    data[DepositViewTagOffset],
		Uploaded:   flag(data[DepositUploadedOffset]),
		Executed:   flag(data[DepositExecutedOffset]),
		Claimed:    flag(data[DepositClaimedOffset]),
		Bump:       data[DepositBumpOffset],
	}
	copy(r.Depositor[:], data[DepositDepositorOffset:DepositAmountOffset])
	copy(r.StealthPubkey[:], data[DepositStealthOffset:DepositEphemeralOffset])
	copy(r.EphemeralPubkey[:], data[DepositEphemeralOffset:DepositViewTagOffset])
	copy(r.EncryptedDestination[:], data[DepositDestinationOffset:DepositCiphertextOffset])
	copy(r.Ciphertext[:], data[DepositCiphertextOffset:DepositUploadedOffset])
	return r, nil
}

// Encode serializes the record in its on-ledger layout.
func (r *DepositRecord) Encode() []byte {
	data := make([]byte, DepositRecordSize)
	copy(data, DepositRecordDiscriminator[:])
	binary.LittleEndian.PutUint64(data[DepositSequenceIDOffset:], r.SequenceID)
	copy(data[DepositDepositorOffset:], r.Depositor[:])
	binary.LittleEndian.PutUint64(data[DepositAmountOffset:], r.Amount)
	copy(data[DepositStealthOffset:], r.StealthPubkey[:])
	copy(data[DepositEphemeralOffset:], r.EphemeralPubkey[:])
	data[DepositViewTagOffset] = r.ViewTag
	copy(data[DepositDestinationOffset:], r.EncryptedDestination[:])
	copy(data[DepositCiphertextOffset:], r.Ciphertext[:])
	data[DepositUploadedOffset] = flagByte(r.Uploaded)
	data[DepositExecutedOffset] = flagByte(r.Executed)
	data[DepositClaimedOffset] = flagByte(r.Claimed)
	data[DepositBumpOffset] = r.Bump
	return data
}

// HasCiphertext reports whether any ciphertext byte has been written.
func (r *DepositRecord) HasCiphertext() bool {
	for _, b := range r.Ciphertext {
		if b != 0 {
			return true
		}
	}
	return false
}

// InputEscrow holds a sender's funds until the automation agent pools them.
type InputEscrow struct {
	SequenceID uint64
	Amount     uint64
	Pooled     bool
	Bump       uint8
}

// DecodeInputEscrow parses an InputEscrow account.
func DecodeInputEscrow(data []byte) (*InputEscrow, error) {
	if err := checkAccount(data, InputEscrowSize, InputEscrowDiscriminator, "InputEscrow"); err != nil {
		return nil, err
	}
	return &InputEscrow{
		SequenceID: binary.LittleEndian.Uint64(data[InputSequenceIDOffset:]),
		Amount:     binary.LittleEndian.Uint64(data[InputAmountOffset:]),
		Pooled:     flag(data[InputPooledOffset]),
		Bump:       data[InputBumpOffset],
	}, nil
}

// Encode serializes the escrow in its on-ledger layout.
func (e *InputEscrow) Encode() []byte {
	data := make([]byte, InputEscrowSize)
	copy(data, InputEscrowDiscriminator[:])
	binary.LittleEndian.PutUint64(data[InputSequenceIDOffset:], e.SequenceID)
	binary.LittleEndian.PutUint64(data[InputAmountOffset:], e.Amount)
	data[InputPooledOffset] = flagByte(e.Pooled)
	data[InputBumpOffset] = e.Bump
	return data
}

// OutputEscrow holds the payout for one stealth public key. IsVerified and
// IsWithdrawn only ever move from false to true.
type OutputEscrow struct {
	StealthPubkey       [StealthPubkeySize]byte
	Amount              uint64
	VerifiedDestination ledger.Address
	IsVerified          bool
	IsWithdrawn         bool
	Bump                uint8
}

// DecodeOutputEscrow parses an OutputEscrow account.
func DecodeOutputEscrow(data []byte) (*OutputEscrow, error) {
	if err := checkAccount(data, OutputEscrowSize, OutputEscrowDiscriminator, "OutputEscrow"); err != nil {
		return nil, err
	}
	e := &OutputEscrow{
		Amount:      binary.LittleEndian.Uint64(data[OutputAmountOffset:]),
		IsVerified:  flag(data[OutputVerifiedOffset]),
		IsWithdrawn: flag(data[OutputWithdrawnOffset]),
		Bump:        data[OutputBumpOffset],
	}
	copy(e.StealthPubkey[:], data[OutputStealthOffset:OutputAmountOffset])
	copy(e.VerifiedDestination[:], data[OutputDestinationOffset:OutputVerifiedOffset])
	return e, nil
}

// Encode serializes the escrow in its on-ledger layout.
func (e *OutputEscrow) Encode() []byte {
	data := make([]byte, OutputEscrowSize)
	copy(data, OutputEscrowDiscriminator[:])
	copy(data[OutputStealthOffset:], e.StealthPubkey[:])
	binary.LittleEndian.PutUint64(data[OutputAmountOffset:], e.Amount)
	copy(data[OutputDestinationOffset:], e.VerifiedDestination[:])
	data[OutputVerifiedOffset] = flagByte(e.IsVerified)
	data[OutputWithdrawnOffset] = flagByte(e.IsWithdrawn)
	data[OutputBumpOffset] = e.Bump
	return data
}

// Pool is the shared pool account holding the deposit cursor.
type Pool struct {
	Authority     ledger.Address
	LastDepositID uint64
	TotalDeposits uint64
	Bump          uint8
}

// DecodePool parses the Pool account.
func DecodePool(data []byte) (*Pool, error) {
	if err := checkAccount(data, PoolSize, PoolDiscriminator, "Pool"); err != nil {
		return nil, err
	}
	p := &Pool{
		LastDepositID: binary.LittleEndian.Uint64(data[PoolLastDepositIDOffset:]),
		TotalDeposits: binary.LittleEndian.Uint64(data[PoolTotalDepositsOffset:]),
		Bump:          data[PoolBumpOffset],
	}
	copy(p.Authority[:], data[PoolAuthorityOffset:PoolLastDepositIDOffset])
	return p, nil
}

// Encode serializes the pool in its on-ledger layout.
func (p *Pool) Encode() []byte {
	data := make([]byte, PoolSize)
	copy(data, PoolDiscriminator[:])
	copy(data[PoolAuthorityOffset:], p.Authority[:])
	binary.LittleEndian.PutUint64(data[PoolLastDepositIDOffset:], p.LastDepositID)
	binary.LittleEndian.PutUint64(data[PoolTotalDepositsOffset:], p.TotalDeposits)
	data[PoolBumpOffset] = p.Bump
	return data
}
