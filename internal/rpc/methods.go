package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
)

type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type accountJSON struct {
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
}

func (a *accountJSON) toAccount() (*ledger.Account, error) {
	owner, err := ledger.ParseAddress(a.Owner)
	if err != nil {
		return nil, fmt.Errorf("account owner: %w", err)
	}
	if len(a.Data) != 2 || a.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account data encoding %v", a.Data)
	}
	data, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("account data: %w", err)
	}
	return &ledger.Account{
		Owner:      owner,
		Lamports:   a.Lamports,
		Data:       data,
		Executable: a.Executable,
	}, nil
}

// GetAccountInfo fetches one account. A missing account yields
// apierrors.ErrAccountNotFound.
func (c *Client) GetAccountInfo(ctx context.Context, address ledger.Address) (*ledger.Account, error) {
	var out contextValue[*accountJSON]
	params := []any{address.String(), map[string]any{
		"encoding":   "base64",
		"commitment": c.commitment,
	}}
	if err := c.call(ctx, "getAccountInfo", params, &out); err != nil {
		return nil, err
	}
	if out.Value == nil {
		return nil, fmt.Errorf("%w: %s", apierrors.ErrAccountNotFound, address)
	}
	return out.Value.toAccount()
}

type keyedAccountJSON struct {
	Pubkey  string      `json:"pubkey"`
	Account accountJSON `json:"account"`
}

func filterParams(filters []ledger.Filter) []map[string]any {
	out := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		if f.DataSize > 0 {
			out = append(out, map[string]any{"dataSize": f.DataSize})
		}
		if f.Memcmp != nil {
			out = append(out, map[string]any{"memcmp": map[string]any{
				"offset": f.Memcmp.Offset,
				"bytes":  base58.Encode(f.Memcmp.Bytes),
			}})
		}
	}
	return out
}

// GetProgramAccounts lists accounts owned by program that match every filter.
func (c *Client) GetProgramAccounts(ctx context.Context, program ledger.Address, filters ...ledger.Filter) ([]ledger.KeyedAccount, error) {
	cfg := map[string]any{
		"encoding":   "base64",
		"commitment": c.commitment,
	}
	if fp := filterParams(filters); len(fp) > 0 {
		cfg["filters"] = fp
	}

	var raw []keyedAccountJSON
	if err := c.call(ctx, "getProgramAccounts", []any{program.String(), cfg}, &raw); err != nil {
		return nil, err
	}

	accounts := make([]ledger.KeyedAccount, 0, len(raw))
	for i := range raw {
		pubkey, err := ledger.ParseAddress(raw[i].Pubkey)
		if err != nil {
			return nil, err
		}
		acc, err := raw[i].Account.toAccount()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, ledger.KeyedAccount{Pubkey: pubkey, Account: *acc})
	}
	return accounts, nil
}

// GetLatestBlockhash fetches a recent blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context) (ledger.Blockhash, error) {
	var out contextValue[struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}]
	if err := c.call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": c.commitment}}, &out); err != nil {
		return ledger.Blockhash{}, err
	}
	return ledger.Blockhash{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SendTransaction broadcasts a signed transaction and returns its signature.
// Preflight rejections come back as *apierrors.LedgerRejectedError.
func (c *Client) SendTransaction(ctx context.Context, signed []byte) (string, error) {
	var sig string
	params := []any{base64.StdEncoding.EncodeToString(signed), map[string]any{
		"encoding":            "base64",
		"preflightCommitment": c.commitment,
	}}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

type signatureStatusJSON struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// GetSignatureStatuses returns one status per signature, nil for signatures
// the node has not seen.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*ledger.SignatureStatus, error) {
	var out contextValue[[]*signatureStatusJSON]
	params := []any{signatures, map[string]any{"searchTransactionHistory": false}}
	if err := c.call(ctx, "getSignatureStatuses", params, &out); err != nil {
		return nil, err
	}

	statuses := make([]*ledger.SignatureStatus, len(signatures))
	for i, s := range out.Value {
		if i >= len(statuses) || s == nil {
			continue
		}
		st := &ledger.SignatureStatus{
			Slot:               s.Slot,
			Confirmations:      s.Confirmations,
			ConfirmationStatus: ledger.Commitment(s.ConfirmationStatus),
		}
		if rej := ParseTransactionError(s.Err, nil); rej != nil {
			rej.Signature = signatures[i]
			st.Err = rej
		}
		statuses[i] = st
	}
	return statuses, nil
}
