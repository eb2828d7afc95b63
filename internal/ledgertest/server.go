package ledgertest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/mr-tron/base58"

	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/ledger"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type contextSlot struct {
	Slot uint64 `json:"slot"`
}

type withContext struct {
	Context contextSlot `json:"context"`
	Value   any         `json:"value"`
}

type accountJSON struct {
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

func toAccountJSON(a *ledger.Account) *accountJSON {
	return &accountJSON{
		Data:       []string{base64.StdEncoding.EncodeToString(a.Data), "base64"},
		Executable: a.Executable,
		Lamports:   a.Lamports,
		Owner:      a.Owner.String(),
	}
}

// NewServer serves n over JSON-RPC. The caller must Close the server.
func NewServer(n *Node) *httptest.Server {
	return httptest.NewServer(Handler(n))
}

// Handler returns the JSON-RPC handler for n.
func Handler(n *Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, rpcResponse{Error: &rpcError{Code: -32700, Message: "parse error"}})
			return
		}

		result, rerr := dispatch(r.Context(), n, &req)
		var httpErr *apierrors.HTTPError
		if errors.As(rerr, &httpErr) {
			http.Error(w, httpErr.Message, httpErr.StatusCode)
			return
		}
		resp := rpcResponse{ID: req.ID}
		if rerr != nil {
			resp.Error = toRPCError(rerr)
		} else {
			resp.Result = result
		}
		writeResponse(w, resp)
	})
}

func writeResponse(w http.ResponseWriter, resp rpcResponse) {
	resp.JSONRPC = "2.0"
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// simulationError is returned by dispatch for preflight rejections.
type simulationError struct {
	fail *failure
}

func (e *simulationError) Error() string { return "Transaction simulation failed" }

func toRPCError(err error) *rpcError {
	var sim *simulationError
	if errors.As(err, &sim) {
		return &rpcError{
			Code:    -32002,
			Message: "Transaction simulation failed: " + sim.fail.ledgerError("").Reason,
			Data: map[string]any{
				"err":  sim.fail.errJSON(),
				"logs": sim.fail.logs,
			},
		}
	}
	var rpcErr *apierrors.RPCError
	if errors.As(err, &rpcErr) {
		return &rpcError{Code: rpcErr.Code, Message: rpcErr.Message}
	}
	return &rpcError{Code: -32603, Message: err.Error()}
}

func param[T any](req *rpcRequest, i int) (T, error) {
	var v T
	if i >= len(req.Params) {
		return v, &apierrors.RPCError{Code: -32602, Message: "missing parameter"}
	}
	if err := json.Unmarshal(req.Params[i], &v); err != nil {
		return v, &apierrors.RPCError{Code: -32602, Message: "invalid parameter: " + err.Error()}
	}
	return v, nil
}

func dispatch(ctx context.Context, n *Node, req *rpcRequest) (any, error) {
	switch req.Method {
	case "getAccountInfo":
		s, err := param[string](req, 0)
		if err != nil {
			return nil, err
		}
		addr, err := ledger.ParseAddress(s)
		if err != nil {
			return nil, &apierrors.RPCError{Code: -32602, Message: err.Error()}
		}
		acc, err := n.GetAccountInfo(ctx, addr)
		if errors.Is(err, apierrors.ErrAccountNotFound) {
			return withContext{Context: contextSlot{n.slot()}, Value: nil}, nil
		}
		if err != nil {
			return nil, err
		}
		return withContext{Context: contextSlot{n.slot()}, Value: toAccountJSON(acc)}, nil

	case "getProgramAccounts":
		s, err := param[string](req, 0)
		if err != nil {
			return nil, err
		}
		programID, err := ledger.ParseAddress(s)
		if err != nil {
			return nil, &apierrors.RPCError{Code: -32602, Message: err.Error()}
		}
		var cfg struct {
			Filters []struct {
				DataSize uint64 `json:"dataSize"`
				Memcmp   *struct {
					Offset uint64 `json:"offset"`
					Bytes  string `json:"bytes"`
				} `json:"memcmp"`
			} `json:"filters"`
		}
		if len(req.Params) > 1 {
			if err := json.Unmarshal(req.Params[1], &cfg); err != nil {
				return nil, &apierrors.RPCError{Code: -32602, Message: err.Error()}
			}
		}
		filters := make([]ledger.Filter, 0, len(cfg.Filters))
		for _, f := range cfg.Filters {
			lf := ledger.Filter{DataSize: f.DataSize}
			if f.Memcmp != nil {
				b, err := base58.Decode(f.Memcmp.Bytes)
				if err != nil {
					return nil, &apierrors.RPCError{Code: -32602, Message: "invalid memcmp bytes"}
				}
				lf.Memcmp = &ledger.MemcmpFilter{Offset: f.Memcmp.Offset, Bytes: b}
			}
			filters = append(filters, lf)
		}
		accounts, err := n.GetProgramAccounts(ctx, programID, filters...)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(accounts))
		for i := range accounts {
			out[i] = map[string]any{
				"pubkey":  accounts[i].Pubkey.String(),
				"account": toAccountJSON(&accounts[i].Account),
			}
		}
		return out, nil

	case "getLatestBlockhash":
		bh, err := n.GetLatestBlockhash(ctx)
		if err != nil {
			return nil, err
		}
		return withContext{Context: contextSlot{n.slot()}, Value: map[string]any{
			"blockhash":            bh.Blockhash,
			"lastValidBlockHeight": bh.LastValidBlockHeight,
		}}, nil

	case "sendTransaction":
		s, err := param[string](req, 0)
		if err != nil {
			return nil, err
		}
		wire, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, &apierrors.RPCError{Code: -32602, Message: "invalid base64 transaction"}
		}
		sig, fail, err := n.send(wire)
		if err != nil {
			return nil, err
		}
		if fail != nil {
			return nil, &simulationError{fail: fail}
		}
		return sig, nil

	case "getSignatureStatuses":
		sigs, err := param[[]string](req, 0)
		if err != nil {
			return nil, err
		}
		views := n.poll(sigs)
		out := make([]any, len(views))
		for i, v := range views {
			if v == nil {
				continue
			}
			var errJSON json.RawMessage
			if v.fail != nil {
				errJSON = v.fail.errJSON()
			}
			out[i] = map[string]any{
				"slot":               v.slot,
				"confirmations":      nil,
				"err":                errJSON,
				"confirmationStatus": string(v.commitment),
			}
		}
		return withContext{Context: contextSlot{n.slot()}, Value: out}, nil
	}
	return nil, &apierrors.RPCError{Code: -32601, Message: "Method not found"}
}

func (n *Node) slot() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}
