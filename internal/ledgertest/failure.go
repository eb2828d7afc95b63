package ledgertest

import (
	"encoding/json"
	"fmt"

	"github.com/stealthpool/client-go/internal/apierrors"
)

// failure is a rejected transaction in node terms. index is -1 for
// transaction-level errors.
type failure struct {
	index  int
	code   *uint32
	reason string
	logs   []string
}

func txFailure(reason string, logs ...string) *failure {
	return &failure{index: -1, reason: reason, logs: logs}
}

func instructionFailure(index int, reason string, logs ...string) *failure {
	return &failure{index: index, reason: reason, logs: logs}
}

func customFailure(index int, code uint32, logs ...string) *failure {
	return &failure{index: index, code: apierrors.CustomCode(code), logs: logs}
}

func (f *failure) ledgerError(signature string) *apierrors.LedgerRejectedError {
	rej := &apierrors.LedgerRejectedError{
		Signature: signature,
		Code:      f.code,
		Reason:    f.reason,
		Logs:      f.logs,
	}
	if f.index >= 0 {
		rej.InstructionIndex = f.index
	}
	if f.code != nil {
		rej.Reason = fmt.Sprintf("custom program error: %#x", *f.code)
	}
	return rej
}

// errJSON renders the failure the way a node reports it in a status or a
// simulation result.
func (f *failure) errJSON() json.RawMessage {
	var v any
	switch {
	case f.index < 0:
		v = f.reason
	case f.code != nil:
		v = map[string]any{"InstructionError": []any{f.index, map[string]uint32{"Custom": *f.code}}}
	default:
		v = map[string]any{"InstructionError": []any{f.index, f.reason}}
	}
	b, _ := json.Marshal(v)
	return b
}
