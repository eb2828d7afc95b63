package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/stealthpool/client-go/internal/ledger"
	"github.com/stealthpool/client-go/internal/program"
)

// LamportsPerSOL is the number of lamports in one native unit.
const LamportsPerSOL = 1_000_000_000

// RentExempt returns the rent-exempt minimum of an account of size bytes.
func RentExempt(size int) uint64 {
	return uint64(128+size) * 3480 * 2
}

// AddressFor returns a stable address for a test name.
func AddressFor(name string) ledger.Address {
	return ledger.Address(sha256.Sum256([]byte("ledgertest address " + name)))
}

// Ledger is a stealth pool deployment on a base ledger and a rollup.
type Ledger struct {
	Program *program.Program

	base   *Node
	rollup *Node
}

// New returns a deployment with an empty pool on both domains.
func New() *Ledger {
	l := &Ledger{
		Program: program.New(
			AddressFor("stealth-pool-program"),
			AddressFor("delegation-program"),
			AddressFor("service-authority"),
		),
	}
	l.base = newNode(ledger.DomainBase, l)
	l.rollup = newNode(ledger.DomainRollup, l)

	poolAddr, bump, err := program.FindProgramAddress([][]byte{[]byte(program.SeedPool)}, l.Program.ID)
	if err != nil {
		panic(err)
	}
	pool := &program.Pool{Authority: l.Program.ServiceAuthority, Bump: bump}
	acc := ledger.Account{Owner: l.Program.ID, Lamports: RentExempt(program.PoolSize), Data: pool.Encode()}
	l.base.Put(poolAddr, acc)
	l.rollup.Put(poolAddr, acc)
	return l
}

// Base returns the base ledger node.
func (l *Ledger) Base() *Node { return l.base }

// Rollup returns the rollup node.
func (l *Ledger) Rollup() *Node { return l.rollup }

// Node returns the node serving d.
func (l *Ledger) Node(d ledger.Domain) *Node {
	if d == ledger.DomainRollup {
		return l.rollup
	}
	return l.base
}

// Airdrop credits lamports to addr on the base ledger.
func (l *Ledger) Airdrop(addr ledger.Address, lamports uint64) {
	n := l.base
	n.mu.Lock()
	defer n.mu.Unlock()
	acc := n.accounts[addr]
	acc.Lamports += lamports
	n.accounts[addr] = acc
}

// SetPoolCursor overwrites the pool's last deposit id on domain d.
func (l *Ledger) SetPoolCursor(d ledger.Domain, lastDepositID uint64) {
	l.Node(d).setPoolCursor(l.Program, lastDepositID, false)
}

// setPoolCursor stores id as the pool's cursor. With onlyForward set, a
// lower id leaves the cursor unchanged.
func (n *Node) setPoolCursor(prog *program.Program, id uint64, onlyForward bool) {
	addr, err := prog.PoolAddress()
	if err != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, ok := n.accounts[addr]
	if !ok {
		return
	}
	pool, err := program.DecodePool(acc.Data)
	if err != nil {
		return
	}
	if onlyForward && id <= pool.LastDepositID {
		return
	}
	pool.LastDepositID = id
	acc.Data = pool.Encode()
	n.accounts[addr] = acc
}

// Deposit returns the record for sequenceID as stored on domain d.
func (l *Ledger) Deposit(d ledger.Domain, sequenceID uint64) (*program.DepositRecord, error) {
	addr, err := l.Program.DepositAddress(sequenceID)
	if err != nil {
		return nil, err
	}
	acc, ok := l.Node(d).Account(addr)
	if !ok {
		return nil, fmt.Errorf("deposit %d not found on %s", sequenceID, d)
	}
	return program.DecodeDepositRecord(acc.Data)
}

// OutputEscrow returns the escrow for stealthPubkey as stored on domain d.
func (l *Ledger) OutputEscrow(d ledger.Domain, stealthPubkey [32]byte) (*program.OutputEscrow, error) {
	addr, err := l.Program.OutputEscrowAddress(stealthPubkey)
	if err != nil {
		return nil, err
	}
	acc, ok := l.Node(d).Account(addr)
	if !ok {
		return nil, fmt.Errorf("output escrow not found on %s", d)
	}
	return program.DecodeOutputEscrow(acc.Data)
}

// PutDeposit writes a deposit record directly to domain d, bypassing the
// program. The record's PDA is derived from its sequence id.
func (l *Ledger) PutDeposit(d ledger.Domain, rec *program.DepositRecord) ledger.Address {
	addr, err := l.Program.DepositAddress(rec.SequenceID)
	if err != nil {
		panic(err)
	}
	l.Node(d).Put(addr, ledger.Account{
		Owner:    l.Program.ID,
		Lamports: RentExempt(program.DepositRecordSize),
		Data:     rec.Encode(),
	})
	return addr
}

// PutOutputEscrow writes an output escrow directly to domain d.
func (l *Ledger) PutOutputEscrow(d ledger.Domain, esc *program.OutputEscrow) ledger.Address {
	addr, err := l.Program.OutputEscrowAddress(esc.StealthPubkey)
	if err != nil {
		panic(err)
	}
	l.Node(d).Put(addr, ledger.Account{
		Owner:    l.Program.ID,
		Lamports: esc.Amount + RentExempt(program.OutputEscrowSize),
		Data:     esc.Encode(),
	})
	return addr
}

// Crank performs the automation agent's steps for one delegated deposit on
// the rollup: the input escrow is pooled, the record is marked executed, and
// the output escrow for its stealth public key is created.
func (l *Ledger) Crank(sequenceID uint64) (ledger.Address, error) {
	prog := l.Program
	depositAddr, err := prog.DepositAddress(sequenceID)
	if err != nil {
		return ledger.Address{}, err
	}
	inputAddr, err := prog.InputEscrowAddress(sequenceID)
	if err != nil {
		return ledger.Address{}, err
	}

	n := l.rollup
	n.mu.Lock()
	defer n.mu.Unlock()

	depAcc, ok := n.accounts[depositAddr]
	if !ok {
		return ledger.Address{}, fmt.Errorf("deposit %d is not delegated", sequenceID)
	}
	rec, err := program.DecodeDepositRecord(depAcc.Data)
	if err != nil {
		return ledger.Address{}, err
	}
	if rec.Executed {
		return ledger.Address{}, fmt.Errorf("deposit %d already executed", sequenceID)
	}
	inAcc, ok := n.accounts[inputAddr]
	if !ok {
		return ledger.Address{}, fmt.Errorf("input escrow %d is not delegated", sequenceID)
	}
	input, err := program.DecodeInputEscrow(inAcc.Data)
	if err != nil {
		return ledger.Address{}, err
	}

	outAddr, bump, err := program.FindProgramAddress([][]byte{[]byte(program.SeedOutputEscrow), rec.StealthPubkey[:]}, prog.ID)
	if err != nil {
		return ledger.Address{}, err
	}
	if _, exists := n.accounts[outAddr]; exists {
		return ledger.Address{}, fmt.Errorf("output escrow for deposit %d already exists", sequenceID)
	}

	input.Pooled = true
	inAcc.Data = input.Encode()
	inAcc.Lamports -= input.Amount
	n.accounts[inputAddr] = inAcc

	rec.Executed = true
	depAcc.Data = rec.Encode()
	n.accounts[depositAddr] = depAcc

	out := &program.OutputEscrow{StealthPubkey: rec.StealthPubkey, Amount: input.Amount, Bump: bump}
	n.accounts[outAddr] = ledger.Account{
		Owner:    prog.ID,
		Lamports: out.Amount + RentExempt(program.OutputEscrowSize),
		Data:     out.Encode(),
	}
	return outAddr, nil
}

// CrankAll cranks every delegated deposit that has not been executed, in
// sequence order, and returns the sequence ids it processed.
func (l *Ledger) CrankAll() ([]uint64, error) {
	accounts, err := l.rollup.GetProgramAccounts(context.Background(), l.Program.ID, ledger.DataSizeFilter(program.DepositRecordSize))
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, ka := range accounts {
		rec, err := program.DecodeDepositRecord(ka.Account.Data)
		if err != nil || rec.Executed {
			continue
		}
		ids = append(ids, rec.SequenceID)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, err := l.Crank(id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func sequenceSeed(id uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, id)
}
