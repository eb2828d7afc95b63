package rpc

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stealthpool/client-go/internal/apierrors"
)

// ParseTransactionError decodes the "err" member of a signature status or a
// simulation result. It returns nil for a null or empty value.
//
// The member is either a bare string ("BlockhashNotFound"), an object keyed by
// the error name, or an InstructionError pair whose detail may carry a custom
// program code:
//
//	{"InstructionError":[1,{"Custom":6004}]}
func ParseTransactionError(raw json.RawMessage, logs []string) *apierrors.LedgerRejectedError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	rej := &apierrors.LedgerRejectedError{Logs: logs}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		rej.Reason = name
		return rej
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		rej.Reason = string(raw)
		return rej
	}

	if ie, ok := obj["InstructionError"]; ok {
		var parts []json.RawMessage
		if err := json.Unmarshal(ie, &parts); err != nil || len(parts) != 2 {
			rej.Reason = "InstructionError"
			return rej
		}
		_ = json.Unmarshal(parts[0], &rej.InstructionIndex)

		var detail string
		if err := json.Unmarshal(parts[1], &detail); err == nil {
			rej.Reason = detail
			return rej
		}
		var custom struct {
			Custom *uint32 `json:"Custom"`
		}
		if err := json.Unmarshal(parts[1], &custom); err == nil && custom.Custom != nil {
			rej.Code = custom.Custom
			rej.Reason = fmt.Sprintf("custom program error: %#x", *custom.Custom)
			return rej
		}
		rej.Reason = string(parts[1])
		return rej
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		rej.Reason = keys[0]
	}
	return rej
}
