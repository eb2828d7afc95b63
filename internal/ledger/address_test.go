package ledger

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"system program", "11111111111111111111111111111111", false},
		{"token program", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", false},
		{"empty", "", true},
		{"invalid alphabet", "0OIl", true},
		{"too short", "3yZe7d", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAddress(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("ParseAddress(%q) error = %v, want ErrInvalidAddress", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) error = %v", tt.input, err)
			}
			if a.String() != tt.input {
				t.Errorf("String() = %q, want %q", a.String(), tt.input)
			}
		})
	}
}

func TestSystemProgramIsZero(t *testing.T) {
	if !SystemProgram.IsZero() {
		t.Error("SystemProgram should be the zero address")
	}
	if SystemProgram.String() != "11111111111111111111111111111111" {
		t.Errorf("SystemProgram = %s", SystemProgram)
	}
}

func TestAddress_TextRoundTrip(t *testing.T) {
	var a Address
	for i := range a {
		a[i] = byte(i * 7)
	}

	data, err := json.Marshal(map[string]Address{"a": a})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out map[string]Address
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out["a"] != a {
		t.Errorf("round trip = %s, want %s", out["a"], a)
	}
}

func TestSignatureStatus_Confirmed(t *testing.T) {
	tests := []struct {
		status *SignatureStatus
		want   bool
	}{
		{nil, false},
		{&SignatureStatus{ConfirmationStatus: CommitmentProcessed}, false},
		{&SignatureStatus{ConfirmationStatus: CommitmentConfirmed}, true},
		{&SignatureStatus{ConfirmationStatus: CommitmentFinalized}, true},
	}
	for _, tt := range tests {
		if got := tt.status.Confirmed(); got != tt.want {
			t.Errorf("Confirmed(%+v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
