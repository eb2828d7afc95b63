package ledgertest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
)

// blockhashLifetime is how many blocks a blockhash stays valid.
const blockhashLifetime = 150

// Node is one settlement domain of a Ledger. It implements ledger.Client.
type Node struct {
	domain ledger.Domain
	owner  *Ledger

	mu          sync.Mutex
	accounts    map[ledger.Address]ledger.Account
	coverage    map[uint64][]bool
	delegated   map[ledger.Address]bool
	blockhashes map[string]bool
	height      uint64
	statuses    map[string]*txStatus
	calls       map[string]int

	sendErrs      []error
	readErr       error
	accountErrs   map[ledger.Address]error
	confirmAfter  int
	neverConfirm  bool
	skipPreflight bool
}

type txStatus struct {
	slot  uint64
	polls int
	fail  *failure
}

// statusView is a status as reported at one poll.
type statusView struct {
	slot       uint64
	commitment ledger.Commitment
	fail       *failure
}

func newNode(domain ledger.Domain, owner *Ledger) *Node {
	return &Node{
		domain:      domain,
		owner:       owner,
		accounts:    make(map[ledger.Address]ledger.Account),
		coverage:    make(map[uint64][]bool),
		delegated:   make(map[ledger.Address]bool),
		blockhashes: make(map[string]bool),
		statuses:    make(map[string]*txStatus),
		calls:       make(map[string]int),
		accountErrs: make(map[ledger.Address]error),
	}
}

// Domain returns the settlement domain the node serves.
func (n *Node) Domain() ledger.Domain {
	return n.domain
}

func cloneAccount(a ledger.Account) ledger.Account {
	a.Data = bytes.Clone(a.Data)
	return a
}

// GetAccountInfo implements ledger.Client.
func (n *Node) GetAccountInfo(ctx context.Context, address ledger.Address) (*ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["getAccountInfo"]++

	if n.readErr != nil {
		return nil, n.readErr
	}
	if err := n.accountErrs[address]; err != nil {
		return nil, err
	}
	acc, ok := n.accounts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apierrors.ErrAccountNotFound, address)
	}
	c := cloneAccount(acc)
	return &c, nil
}

// GetProgramAccounts implements ledger.Client. Results are ordered by address.
func (n *Node) GetProgramAccounts(ctx context.Context, programID ledger.Address, filters ...ledger.Filter) ([]ledger.KeyedAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["getProgramAccounts"]++

	if n.readErr != nil {
		return nil, n.readErr
	}
	var out []ledger.KeyedAccount
	for addr, acc := range n.accounts {
		if acc.Owner != programID || !matches(acc.Data, filters) {
			continue
		}
		out = append(out, ledger.KeyedAccount{Pubkey: addr, Account: cloneAccount(acc)})
	}
	slices.SortFunc(out, func(a, b ledger.KeyedAccount) int {
		return bytes.Compare(a.Pubkey[:], b.Pubkey[:])
	})
	return out, nil
}

func matches(data []byte, filters []ledger.Filter) bool {
	for _, f := range filters {
		if f.DataSize > 0 && uint64(len(data)) != f.DataSize {
			return false
		}
		if m := f.Memcmp; m != nil {
			end := m.Offset + uint64(len(m.Bytes))
			if end > uint64(len(data)) || !bytes.Equal(data[m.Offset:end], m.Bytes) {
				return false
			}
		}
	}
	return true
}

// GetLatestBlockhash implements ledger.Client. Every call advances the chain
// by one block and issues a fresh blockhash.
func (n *Node) GetLatestBlockhash(ctx context.Context) (ledger.Blockhash, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Blockhash{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["getLatestBlockhash"]++

	n.height++
	sum := sha256.Sum256([]byte(n.domain.String() + " block " + strconv.FormatUint(n.height, 10)))
	hash := base58.Encode(sum[:])
	n.blockhashes[hash] = true
	return ledger.Blockhash{Blockhash: hash, LastValidBlockHeight: n.height + blockhashLifetime}, nil
}

// SendTransaction implements ledger.Client. Program failures are returned as
// *apierrors.LedgerRejectedError, as a node's preflight check would, unless
// SetSkipPreflight is on, in which case the transaction lands with an error.
func (n *Node) SendTransaction(ctx context.Context, signed []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sig, fail, err := n.send(signed)
	if err != nil {
		return "", err
	}
	if fail != nil {
		return "", fail.ledgerError(sig)
	}
	return sig, nil
}

// send executes a wire transaction. A non-nil failure means the preflight
// check rejected it.
func (n *Node) send(wire []byte) (string, *failure, error) {
	n.mu.Lock()
	n.calls["sendTransaction"]++

	if len(n.sendErrs) > 0 {
		err := n.sendErrs[0]
		n.sendErrs = n.sendErrs[1:]
		n.mu.Unlock()
		return "", nil, err
	}

	tx, env, err := openEnvelope(wire)
	if err != nil {
		n.mu.Unlock()
		return "", nil, &apierrors.RPCError{Code: -32602, Message: err.Error()}
	}
	if !n.blockhashes[tx.RecentBlockhash] {
		n.mu.Unlock()
		return env.Signature, txFailure("BlockhashNotFound"), nil
	}
	if _, seen := n.statuses[env.Signature]; seen {
		n.mu.Unlock()
		return env.Signature, txFailure("AlreadyProcessed"), nil
	}
	if tx.FeePayer != env.Signer {
		n.mu.Unlock()
		return env.Signature, txFailure("SignatureFailure"), nil
	}

	ex := newExecution(n, tx, env.Signer)
	fail := ex.run()
	if fail != nil {
		if !n.skipPreflight {
			n.mu.Unlock()
			return env.Signature, fail, nil
		}
		n.statuses[env.Signature] = &txStatus{slot: n.height, fail: fail}
		n.mu.Unlock()
		return env.Signature, nil, nil
	}

	ex.commit()
	n.statuses[env.Signature] = &txStatus{slot: n.height}
	after := ex.after
	n.mu.Unlock()

	for _, f := range after {
		f()
	}
	return env.Signature, nil, nil
}

// GetSignatureStatuses implements ledger.Client.
func (n *Node) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*ledger.SignatureStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	views := n.poll(signatures)
	out := make([]*ledger.SignatureStatus, len(views))
	for i, v := range views {
		if v == nil {
			continue
		}
		st := &ledger.SignatureStatus{Slot: v.slot, ConfirmationStatus: v.commitment}
		if v.fail != nil {
			st.Err = v.fail.ledgerError(signatures[i])
		}
		out[i] = st
	}
	return out, nil
}

func (n *Node) poll(signatures []string) []*statusView {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["getSignatureStatuses"]++

	out := make([]*statusView, len(signatures))
	for i, sig := range signatures {
		st, ok := n.statuses[sig]
		if !ok {
			continue
		}
		st.polls++
		v := &statusView{slot: st.slot, commitment: ledger.CommitmentProcessed, fail: st.fail}
		if !n.neverConfirm && st.polls > n.confirmAfter {
			v.commitment = ledger.CommitmentConfirmed
		}
		out[i] = v
	}
	return out
}

// Account returns a copy of the account at addr.
func (n *Node) Account(addr ledger.Address) (ledger.Account, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, ok := n.accounts[addr]
	return cloneAccount(acc), ok
}

// Balance returns the lamports held at addr.
func (n *Node) Balance(addr ledger.Address) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.accounts[addr].Lamports
}

// Put stores an account, replacing any existing one.
func (n *Node) Put(addr ledger.Address, acc ledger.Account) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts[addr] = cloneAccount(acc)
}

// Delete removes the account at addr.
func (n *Node) Delete(addr ledger.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.accounts, addr)
}

// Calls returns how many times method was invoked, by JSON-RPC method name.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// FailNextSend queues errors returned by the next SendTransaction calls.
func (n *Node) FailNextSend(errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErrs = append(n.sendErrs, errs...)
}

// SetReadError makes every account read fail with err. Pass nil to restore.
func (n *Node) SetReadError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readErr = err
}

// SetAccountError makes reads of addr fail with err. Pass nil to restore.
func (n *Node) SetAccountError(addr ledger.Address, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.accountErrs, addr)
		return
	}
	n.accountErrs[addr] = err
}

// SetConfirmAfter makes a transaction report "processed" for the first polls
// status lookups before it reports "confirmed".
func (n *Node) SetConfirmAfter(polls int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmAfter = polls
}

// SetNeverConfirm keeps every transaction at "processed".
func (n *Node) SetNeverConfirm(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.neverConfirm = on
}

// SetSkipPreflight lets failing transactions land with an error instead of
// being rejected at submission.
func (n *Node) SetSkipPreflight(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.skipPreflight = on
}

// ExpireBlockhashes invalidates every blockhash issued so far.
func (n *Node) ExpireBlockhashes() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.blockhashes)
}

var _ ledger.Client = (*Node)(nil)
