package ledgertest

import (
	"fmt"

	"github.com/stealthpool/client-go/internal/crypto"
	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/program"
)

// Anchor framework error codes the fake reports.
const (
	codeAccountInUse          uint32 = 0
	codeInsufficientFunds     uint32 = 1
	codeConstraintSeeds       uint32 = 2006
	codeConstraintAddress     uint32 = 2012
	codeAccountNotInitialized uint32 = 3012

	codeInvalidChunk         uint32 = 6000
	codeDepositCompleted     uint32 = 6001
	codeStealthMismatch      uint32 = 6002
	codeNotVerified          uint32 = 6003
	codeAlreadyWithdrawn     uint32 = 6004
	codeUnauthorized         uint32 = 6005
	codeInvalidAmount        uint32 = 6006
	codeCiphertextIncomplete uint32 = 6007
)

// execution applies one transaction to a staged view of a node. Nothing is
// visible until commit.
type execution struct {
	n      *Node
	prog   *program.Program
	tx     *ledger.Transaction
	signer ledger.Address

	staged   map[ledger.Address]*ledger.Account
	coverage map[uint64][]bool
	delegate []ledger.Address
	after    []func()
}

func newExecution(n *Node, tx *ledger.Transaction, signer ledger.Address) *execution {
	return &execution{
		n:        n,
		prog:     n.owner.Program,
		tx:       tx,
		signer:   signer,
		staged:   make(map[ledger.Address]*ledger.Account),
		coverage: make(map[uint64][]bool),
	}
}

func (e *execution) get(addr ledger.Address) (*ledger.Account, bool) {
	if acc, ok := e.staged[addr]; ok {
		return acc, acc != nil
	}
	acc, ok := e.n.accounts[addr]
	if !ok {
		return nil, false
	}
	c := cloneAccount(acc)
	e.staged[addr] = &c
	return &c, true
}

func (e *execution) put(addr ledger.Address, acc *ledger.Account) {
	e.staged[addr] = acc
}

func (e *execution) del(addr ledger.Address) {
	e.staged[addr] = nil
}

func (e *execution) chunkCoverage(seq uint64) []bool {
	if c, ok := e.coverage[seq]; ok {
		return c
	}
	c := make([]bool, program.CiphertextSize)
	copy(c, e.n.coverage[seq])
	e.coverage[seq] = c
	return c
}

func (e *execution) commit() {
	for addr, acc := range e.staged {
		if acc == nil {
			delete(e.n.accounts, addr)
			continue
		}
		e.n.accounts[addr] = *acc
	}
	for seq, c := range e.coverage {
		if c == nil {
			delete(e.n.coverage, seq)
			continue
		}
		e.n.coverage[seq] = c
	}

	rollup := e.n.owner.rollup
	for _, addr := range e.delegate {
		e.n.delegated[addr] = true
		snapshot := cloneAccount(e.n.accounts[addr])
		e.after = append(e.after, func() { rollup.Put(addr, snapshot) })
	}
}

func (e *execution) run() *failure {
	for i, ix := range e.tx.Instructions {
		if ix.ProgramID != e.prog.ID {
			return instructionFailure(i, "UnsupportedProgramId")
		}
		args, err := program.DecodeInstruction(ix.Data)
		if err != nil {
			return customFailure(i, 101, "AnchorError: InstructionFallbackNotFound", err.Error())
		}

		var f *failure
		switch a := args.(type) {
		case *program.CreateDepositArgs:
			f = e.createDeposit(i, ix, a)
		case *program.UploadChunkArgs:
			f = e.uploadChunk(i, ix, a)
		case *program.CompleteDepositArgs:
			f = e.completeDeposit(i, ix, a)
		case *program.AbandonDepositArgs:
			f = e.abandonDeposit(i, ix, a)
		case *program.ClaimEscrowArgs:
			f = e.claimEscrow(i, ix, a)
		case *program.WithdrawArgs:
			f = e.withdraw(i, ix)
		}
		if f != nil {
			return f
		}
	}
	return nil
}

func (e *execution) requireAccounts(i int, ix ledger.Instruction, n int) *failure {
	if len(ix.Accounts) < n {
		return instructionFailure(i, "NotEnoughAccountKeys")
	}
	return nil
}

func (e *execution) requireSigner(i int, meta ledger.AccountMeta) *failure {
	if !meta.IsSigner || meta.Pubkey != e.signer {
		return instructionFailure(i, "MissingRequiredSignature")
	}
	return nil
}

func (e *execution) requireAddress(i int, name string, got, want ledger.Address) *failure {
	if got != want {
		return customFailure(i, codeConstraintSeeds, fmt.Sprintf("AnchorError caused by account: %s. Error Code: ConstraintSeeds.", name))
	}
	return nil
}

func (e *execution) requireDomain(i int, d ledger.Domain) *failure {
	if e.n.domain != d {
		return instructionFailure(i, "InvalidAccountOwner", fmt.Sprintf("instruction must run on the %s", d))
	}
	return nil
}

func (e *execution) debit(i int, addr ledger.Address, lamports uint64) *failure {
	acc, ok := e.get(addr)
	if !ok || acc.Lamports < lamports {
		var have uint64
		if ok {
			have = acc.Lamports
		}
		return customFailure(i, codeInsufficientFunds, fmt.Sprintf("Transfer: insufficient lamports %d, need %d", have, lamports))
	}
	acc.Lamports -= lamports
	return nil
}

func (e *execution) credit(addr ledger.Address, lamports uint64) {
	acc, ok := e.get(addr)
	if !ok {
		acc = &ledger.Account{Owner: ledger.SystemProgram}
		e.put(addr, acc)
	}
	acc.Lamports += lamports
}

func (e *execution) loadDeposit(i int, addr ledger.Address) (*ledger.Account, *program.DepositRecord, *failure) {
	acc, ok := e.get(addr)
	if !ok {
		return nil, nil, customFailure(i, codeAccountNotInitialized, "AnchorError caused by account: deposit. Error Code: AccountNotInitialized.")
	}
	rec, err := program.DecodeDepositRecord(acc.Data)
	if err != nil {
		return nil, nil, instructionFailure(i, "InvalidAccountData")
	}
	return acc, rec, nil
}

func (e *execution) createDeposit(i int, ix ledger.Instruction, a *program.CreateDepositArgs) *failure {
	if f := e.requireDomain(i, ledger.DomainBase); f != nil {
		return f
	}
	if f := e.requireAccounts(i, ix, 3); f != nil {
		return f
	}
	poolAddr, _ := e.prog.PoolAddress()
	depositAddr, bump, _ := program.FindProgramAddress([][]byte{[]byte(program.SeedDeposit), sequenceSeed(a.SequenceID)}, e.prog.ID)
	if f := e.requireAddress(i, "pool", ix.Accounts[0].Pubkey, poolAddr); f != nil {
		return f
	}
	if f := e.requireAddress(i, "deposit", ix.Accounts[1].Pubkey, depositAddr); f != nil {
		return f
	}
	if f := e.requireSigner(i, ix.Accounts[2]); f != nil {
		return f
	}
	if a.Amount == 0 {
		return customFailure(i, codeInvalidAmount, "Error Code: InvalidAmount.")
	}
	if _, exists := e.get(depositAddr); exists {
		return customFailure(i, codeAccountInUse,
			fmt.Sprintf("Allocate: account Address { address: %s, base: None } already in use", depositAddr))
	}

	rent := RentExempt(program.DepositRecordSize)
	if f := e.debit(i, e.signer, rent); f != nil {
		return f
	}
	rec := &program.DepositRecord{
		SequenceID:           a.SequenceID,
		Depositor:            e.signer,
		Amount:               a.Amount,
		StealthPubkey:        a.StealthPubkey,
		EphemeralPubkey:      a.EphemeralPubkey,
		ViewTag:              a.ViewTag,
		EncryptedDestination: a.EncryptedDestination,
		Bump:                 bump,
	}
	e.put(depositAddr, &ledger.Account{Owner: e.prog.ID, Lamports: rent, Data: rec.Encode()})
	e.coverage[a.SequenceID] = make([]bool, program.CiphertextSize)

	poolAcc, ok := e.get(poolAddr)
	if !ok {
		return customFailure(i, codeAccountNotInitialized, "AnchorError caused by account: pool. Error Code: AccountNotInitialized.")
	}
	pool, err := program.DecodePool(poolAcc.Data)
	if err != nil {
		return instructionFailure(i, "InvalidAccountData")
	}
	pool.LastDepositID = max(pool.LastDepositID, a.SequenceID)
	pool.TotalDeposits++
	poolAcc.Data = pool.Encode()

	rollup, prog, seq := e.n.owner.rollup, e.prog, a.SequenceID
	e.after = append(e.after, func() { rollup.setPoolCursor(prog, seq, true) })
	return nil
}

func (e *execution) uploadChunk(i int, ix ledger.Instruction, a *program.UploadChunkArgs) *failure {
	if f := e.requireDomain(i, ledger.DomainBase); f != nil {
		return f
	}
	if f := e.requireAccounts(i, ix, 2); f != nil {
		return f
	}
	depositAddr, _ := e.prog.DepositAddress(a.SequenceID)
	if f := e.requireAddress(i, "deposit", ix.Accounts[0].Pubkey, depositAddr); f != nil {
		return f
	}
	if f := e.requireSigner(i, ix.Accounts[1]); f != nil {
		return f
	}
	acc, rec, f := e.loadDeposit(i, depositAddr)
	if f != nil {
		return f
	}
	if rec.Depositor != e.signer {
		return customFailure(i, codeUnauthorized, "Error Code: Unauthorized.")
	}
	if e.n.delegated[depositAddr] {
		return customFailure(i, codeDepositCompleted, "Error Code: DepositCompleted.")
	}
	if err := program.ApplyChunk(rec.Ciphertext[:], a.Offset, a.Data); err != nil {
		return customFailure(i, codeInvalidChunk, "Error Code: InvalidChunk.")
	}

	cov := e.chunkCoverage(a.SequenceID)
	for j := range a.Data {
		cov[int(a.Offset)+j] = true
	}
	complete := true
	for _, c := range cov {
		complete = complete && c
	}
	rec.Uploaded = complete
	acc.Data = rec.Encode()
	return nil
}

func (e *execution) completeDeposit(i int, ix ledger.Instruction, a *program.CompleteDepositArgs) *failure {
	if f := e.requireDomain(i, ledger.DomainBase); f != nil {
		return f
	}
	if f := e.requireAccounts(i, ix, 5); f != nil {
		return f
	}
	depositAddr, _ := e.prog.DepositAddress(a.SequenceID)
	inputAddr, bump, _ := program.FindProgramAddress([][]byte{[]byte(program.SeedInputEscrow), sequenceSeed(a.SequenceID)}, e.prog.ID)
	poolAddr, _ := e.prog.PoolAddress()
	if f := e.requireAddress(i, "deposit", ix.Accounts[0].Pubkey, depositAddr); f != nil {
		return f
	}
	if f := e.requireAddress(i, "input_escrow", ix.Accounts[1].Pubkey, inputAddr); f != nil {
		return f
	}
	if f := e.requireAddress(i, "pool", ix.Accounts[2].Pubkey, poolAddr); f != nil {
		return f
	}
	if f := e.requireSigner(i, ix.Accounts[3]); f != nil {
		return f
	}
	if ix.Accounts[4].Pubkey != e.prog.DelegationProgram {
		return instructionFailure(i, "IncorrectProgramId")
	}

	_, rec, f := e.loadDeposit(i, depositAddr)
	if f != nil {
		return f
	}
	if rec.Depositor != e.signer {
		return customFailure(i, codeUnauthorized, "Error Code: Unauthorized.")
	}
	if e.n.delegated[depositAddr] {
		return customFailure(i, codeDepositCompleted, "Error Code: DepositCompleted.")
	}
	if !rec.Uploaded {
		return customFailure(i, codeCiphertextIncomplete, "Error Code: CiphertextIncomplete.")
	}

	rent := RentExempt(program.InputEscrowSize)
	if f := e.debit(i, e.signer, rec.Amount+rent); f != nil {
		return f
	}
	input := &program.InputEscrow{SequenceID: a.SequenceID, Amount: rec.Amount, Bump: bump}
	e.put(inputAddr, &ledger.Account{Owner: e.prog.ID, Lamports: rec.Amount + rent, Data: input.Encode()})
	e.delegate = append(e.delegate, depositAddr, inputAddr)
	return nil
}

func (e *execution) abandonDeposit(i int, ix ledger.Instruction, a *program.AbandonDepositArgs) *failure {
	if f := e.requireDomain(i, ledger.DomainBase); f != nil {
		return f
	}
	if f := e.requireAccounts(i, ix, 3); f != nil {
		return f
	}
	depositAddr, _ := e.prog.DepositAddress(a.SequenceID)
	if f := e.requireAddress(i, "deposit", ix.Accounts[0].Pubkey, depositAddr); f != nil {
		return f
	}
	if f := e.requireSigner(i, ix.Accounts[2]); f != nil {
		return f
	}
	acc, rec, f := e.loadDeposit(i, depositAddr)
	if f != nil {
		return f
	}
	if rec.Depositor != e.signer {
		return customFailure(i, codeUnauthorized, "Error Code: Unauthorized.")
	}
	if e.n.delegated[depositAddr] {
		return customFailure(i, codeDepositCompleted, "Error Code: DepositCompleted.")
	}
	e.credit(e.signer, acc.Lamports)
	e.del(depositAddr)
	e.coverage[a.SequenceID] = nil
	return nil
}

func (e *execution) claimEscrow(i int, ix ledger.Instruction, a *program.ClaimEscrowArgs) *failure {
	if f := e.requireDomain(i, ledger.DomainRollup); f != nil {
		return f
	}
	if f := e.requireAccounts(i, ix, 2); f != nil {
		return f
	}
	if f := e.requireSigner(i, ix.Accounts[1]); f != nil {
		return f
	}
	outAddr := ix.Accounts[0].Pubkey
	acc, ok := e.get(outAddr)
	if !ok {
		return customFailure(i, codeAccountNotInitialized, "AnchorError caused by account: output_escrow. Error Code: AccountNotInitialized.")
	}
	esc, err := program.DecodeOutputEscrow(acc.Data)
	if err != nil {
		return instructionFailure(i, "InvalidAccountData")
	}
	want, _ := e.prog.OutputEscrowAddress(esc.StealthPubkey)
	if f := e.requireAddress(i, "output_escrow", outAddr, want); f != nil {
		return f
	}

	derived := crypto.DeriveStealthPubkey(a.SharedSecret[:])
	if derived != esc.StealthPubkey {
		return customFailure(i, codeStealthMismatch, "Error Code: StealthMismatch.")
	}
	if esc.IsVerified && esc.VerifiedDestination != a.Destination {
		return customFailure(i, codeUnauthorized, "Error Code: Unauthorized.")
	}
	esc.IsVerified = true
	esc.VerifiedDestination = a.Destination
	acc.Data = esc.Encode()

	// the verified escrow is committed and undelegated to the base ledger,
	// where withdrawal runs
	rollup, base := e.n, e.n.owner.base
	e.after = append(e.after, func() {
		snapshot, ok := rollup.Account(outAddr)
		if !ok {
			return
		}
		base.Put(outAddr, snapshot)
		rollup.Delete(outAddr)
	})
	return nil
}

func (e *execution) withdraw(i int, ix ledger.Instruction) *failure {
	if f := e.requireDomain(i, ledger.DomainBase); f != nil {
		return f
	}
	if f := e.requireAccounts(i, ix, 4); f != nil {
		return f
	}
	if f := e.requireSigner(i, ix.Accounts[3]); f != nil {
		return f
	}
	if ix.Accounts[2].Pubkey != e.prog.ServiceAuthority {
		return customFailure(i, codeConstraintAddress, "AnchorError caused by account: service_authority. Error Code: ConstraintAddress.")
	}
	outAddr, destination := ix.Accounts[0].Pubkey, ix.Accounts[1].Pubkey
	acc, ok := e.get(outAddr)
	if !ok {
		return customFailure(i, codeAccountNotInitialized, "AnchorError caused by account: output_escrow. Error Code: AccountNotInitialized.")
	}
	esc, err := program.DecodeOutputEscrow(acc.Data)
	if err != nil {
		return instructionFailure(i, "InvalidAccountData")
	}
	if !esc.IsVerified {
		return customFailure(i, codeNotVerified, "Error Code: NotVerified.")
	}
	if esc.IsWithdrawn {
		return customFailure(i, codeAlreadyWithdrawn, "Error Code: AlreadyWithdrawn.")
	}
	if destination != esc.VerifiedDestination {
		return customFailure(i, codeUnauthorized, "Error Code: Unauthorized.")
	}

	if acc.Lamports < esc.Amount {
		return customFailure(i, codeInsufficientFunds, fmt.Sprintf("Transfer: insufficient lamports %d, need %d", acc.Lamports, esc.Amount))
	}

	esc.IsWithdrawn = true
	acc.Data = esc.Encode()
	rent := acc.Lamports - esc.Amount
	acc.Lamports = 0
	e.credit(destination, esc.Amount)
	e.credit(e.prog.ServiceAuthority, rent)
	return nil
}
