package ledger

import "context"

// AccountMeta describes one account referenced by an instruction.
type AccountMeta struct {
	Pubkey     Address
	IsSigner   bool
	IsWritable bool
}

// Writable returns a writable, non-signer account reference.
func Writable(a Address) AccountMeta {
	return AccountMeta{Pubkey: a, IsWritable: true}
}

// Readonly returns a read-only, non-signer account reference.
func Readonly(a Address) AccountMeta {
	return AccountMeta{Pubkey: a}
}

// SignerMeta returns a writable signer account reference.
func SignerMeta(a Address) AccountMeta {
	return AccountMeta{Pubkey: a, IsSigner: true, IsWritable: true}
}

// Instruction is one program invocation.
type Instruction struct {
	ProgramID Address
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is an unsigned, wire-neutral transaction. Encoding it for the
// network is the signer's job.
type Transaction struct {
	FeePayer        Address
	RecentBlockhash string
	Instructions    []Instruction
}

// SignedTransaction is a transaction ready for submission.
type SignedTransaction struct {
	// Signature is the fee payer's signature in the node's text encoding; it
	// identifies the transaction for status queries.
	Signature string
	// Wire is the encoded transaction passed to Client.SendTransaction.
	Wire []byte
}

// Signer is the wallet collaborator. It is the only holder of the fee payer's
// private key and the only source of the custody derivation seed.
type Signer interface {
	PublicKey() Address
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SignTransaction(ctx context.Context, tx *Transaction) (*SignedTransaction, error)
	SignAllTransactions(ctx context.Context, txs []*Transaction) ([]*SignedTransaction, error)
}
