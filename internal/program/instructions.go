package program

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/stealthpool/client-go/internal/ledger"
)

var (
	CreateDepositDiscriminator         = InstructionDiscriminator("create_deposit")
	UploadCiphertextChunkDiscriminator = InstructionDiscriminator("upload_ciphertext_chunk")
	CompleteDepositDiscriminator       = InstructionDiscriminator("complete_deposit")
	ClaimEscrowDiscriminator           = InstructionDiscriminator("claim_escrow")
	WithdrawDiscriminator              = InstructionDiscriminator("withdraw")
	AbandonDepositDiscriminator        = InstructionDiscriminator("abandon_deposit")
)

// CreateDepositArgs allocates a DepositRecord at SequenceID.
type CreateDepositArgs struct {
	SequenceID           uint64
	Amount               uint64
	StealthPubkey        [StealthPubkeySize]byte
	EphemeralPubkey      [EphemeralPubkeySize]byte
	ViewTag              byte
	EncryptedDestination [EncryptedDestinationSize]byte
}

// UploadChunkArgs writes Data into the record's ciphertext at Offset.
type UploadChunkArgs struct {
	SequenceID uint64
	Offset     uint16
	Data       []byte
}

// CompleteDepositArgs funds the InputEscrow and delegates both accounts.
type CompleteDepositArgs struct {
	SequenceID uint64
	// CommitFrequencyMs is how often the rollup commits delegated state back
	// to the base ledger.
	CommitFrequencyMs uint32
}

// ClaimEscrowArgs asks the TEE to verify ownership of an output escrow.
type ClaimEscrowArgs struct {
	SharedSecret [32]byte
	Destination  ledger.Address
}

// WithdrawArgs releases a verified output escrow. It carries no data.
type WithdrawArgs struct{}

// AbandonDepositArgs closes an undelegated deposit and refunds the sender.
type AbandonDepositArgs struct {
	SequenceID uint64
}

func (a *CreateDepositArgs) encode() []byte {
	buf := append([]byte(nil), CreateDepositDiscriminator[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, a.SequenceID)
	buf = binary.LittleEndian.AppendUint64(buf, a.Amount)
	buf = append(buf, a.StealthPubkey[:]...)
	buf = append(buf, a.EphemeralPubkey[:]...)
	buf = append(buf, a.ViewTag)
	return append(buf, a.EncryptedDestination[:]...)
}

func (a *UploadChunkArgs) encode() []byte {
	buf := append([]byte(nil), UploadCiphertextChunkDiscriminator[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, a.SequenceID)
	buf = binary.LittleEndian.AppendUint16(buf, a.Offset)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Data)))
	return append(buf, a.Data...)
}

func (a *CompleteDepositArgs) encode() []byte {
	buf := append([]byte(nil), CompleteDepositDiscriminator[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, a.SequenceID)
	return binary.LittleEndian.AppendUint32(buf, a.CommitFrequencyMs)
}

func (a *ClaimEscrowArgs) encode() []byte {
	buf := append([]byte(nil), ClaimEscrowDiscriminator[:]...)
	buf = append(buf, a.SharedSecret[:]...)
	return append(buf, a.Destination[:]...)
}

func (a *AbandonDepositArgs) encode() []byte {
	buf := append([]byte(nil), AbandonDepositDiscriminator[:]...)
	return binary.LittleEndian.AppendUint64(buf, a.SequenceID)
}

// CreateDeposit builds the create_deposit instruction.
func (p *Program) CreateDeposit(depositor ledger.Address, args CreateDepositArgs) (ledger.Instruction, error) {
	pool, err := p.PoolAddress()
	if err != nil {
		return ledger.Instruction{}, err
	}
	deposit, err := p.DepositAddress(args.SequenceID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: p.ID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(pool),
			ledger.Writable(deposit),
			ledger.SignerMeta(depositor),
			ledger.Readonly(ledger.SystemProgram),
		},
		Data: args.encode(),
	}, nil
}

// UploadCiphertextChunk builds one upload_ciphertext_chunk instruction.
func (p *Program) UploadCiphertextChunk(depositor ledger.Address, args UploadChunkArgs) (ledger.Instruction, error) {
	deposit, err := p.DepositAddress(args.SequenceID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: p.ID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(deposit),
			ledger.SignerMeta(depositor),
		},
		Data: args.encode(),
	}, nil
}

// CompleteDeposit builds the complete_deposit instruction, which moves the
// amount into the InputEscrow and delegates the record and the escrow.
func (p *Program) CompleteDeposit(depositor ledger.Address, args CompleteDepositArgs) (ledger.Instruction, error) {
	pool, err := p.PoolAddress()
	if err != nil {
		return ledger.Instruction{}, err
	}
	deposit, err := p.DepositAddress(args.SequenceID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	input, err := p.InputEscrowAddress(args.SequenceID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: p.ID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(deposit),
			ledger.Writable(input),
			ledger.Writable(pool),
			ledger.SignerMeta(depositor),
			ledger.Readonly(p.DelegationProgram),
			ledger.Readonly(ledger.SystemProgram),
		},
		Data: args.encode(),
	}, nil
}

// AbandonDeposit builds the abandon_deposit instruction.
func (p *Program) AbandonDeposit(depositor ledger.Address, args AbandonDepositArgs) (ledger.Instruction, error) {
	deposit, err := p.DepositAddress(args.SequenceID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	input, err := p.InputEscrowAddress(args.SequenceID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: p.ID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(deposit),
			ledger.Writable(input),
			ledger.SignerMeta(depositor),
		},
		Data: args.encode(),
	}, nil
}

// ClaimEscrow builds the claim_escrow instruction submitted to the rollup.
func (p *Program) ClaimEscrow(claimer ledger.Address, stealthPubkey [32]byte, args ClaimEscrowArgs) (ledger.Instruction, error) {
	output, err := p.OutputEscrowAddress(stealthPubkey)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: p.ID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(output),
			ledger.SignerMeta(claimer),
		},
		Data: args.encode(),
	}, nil
}

// Withdraw builds the withdraw instruction. The escrow's rent goes to the
// service authority.
func (p *Program) Withdraw(payer ledger.Address, stealthPubkey [32]byte, destination ledger.Address) (ledger.Instruction, error) {
	output, err := p.OutputEscrowAddress(stealthPubkey)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: p.ID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(output),
			ledger.Writable(destination),
			ledger.Writable(p.ServiceAuthority),
			ledger.SignerMeta(payer),
		},
		Data: append([]byte(nil), WithdrawDiscriminator[:]...),
	}, nil
}

// DecodeInstruction parses instruction data into one of the *Args types.
func DecodeInstruction(data []byte) (any, error) {
	if len(data) < DiscriminatorSize {
		return nil, ErrInvalidInstructionData
	}
	var disc Discriminator
	copy(disc[:], data)
	body := data[DiscriminatorSize:]

	switch disc {
	case CreateDepositDiscriminator:
		if len(body) != 8+8+StealthPubkeySize+EphemeralPubkeySize+1+EncryptedDestinationSize {
			return nil, fmt.Errorf("%w: create_deposit", ErrInvalidInstructionData)
		}
		a := &CreateDepositArgs{
			SequenceID: binary.LittleEndian.Uint64(body[0:]),
			Amount:     binary.LittleEndian.Uint64(body[8:]),
		}
		off := 16
		off += copy(a.StealthPubkey[:], body[off:])
		off += copy(a.EphemeralPubkey[:], body[off:])
		a.ViewTag = body[off]
		copy(a.EncryptedDestination[:], body[off+1:])
		return a, nil

	case UploadCiphertextChunkDiscriminator:
		if len(body) < 14 {
			return nil, fmt.Errorf("%w: upload_ciphertext_chunk", ErrInvalidInstructionData)
		}
		n := binary.LittleEndian.Uint32(body[10:])
		if uint32(len(body)-14) != n {
			return nil, fmt.Errorf("%w: chunk length %d", ErrInvalidInstructionData, n)
		}
		return &UploadChunkArgs{
			SequenceID: binary.LittleEndian.Uint64(body[0:]),
			Offset:     binary.LittleEndian.Uint16(body[8:]),
			Data:       bytes.Clone(body[14:]),
		}, nil

	case CompleteDepositDiscriminator:
		if len(body) != 12 {
			return nil, fmt.Errorf("%w: complete_deposit", ErrInvalidInstructionData)
		}
		return &CompleteDepositArgs{
			SequenceID:        binary.LittleEndian.Uint64(body[0:]),
			CommitFrequencyMs: binary.LittleEndian.Uint32(body[8:]),
		}, nil

	case ClaimEscrowDiscriminator:
		if len(body) != 64 {
			return nil, fmt.Errorf("%w: claim_escrow", ErrInvalidInstructionData)
		}
		a := &ClaimEscrowArgs{}
		copy(a.SharedSecret[:], body[:32])
		copy(a.Destination[:], body[32:])
		return a, nil

	case WithdrawDiscriminator:
		return &WithdrawArgs{}, nil

	case AbandonDepositDiscriminator:
		if len(body) != 8 {
			return nil, fmt.Errorf("%w: abandon_deposit", ErrInvalidInstructionData)
		}
		return &AbandonDepositArgs{SequenceID: binary.LittleEndian.Uint64(body)}, nil
	}
	return nil, fmt.Errorf("%w: %x", ErrUnknownInstruction, disc[:])
}
