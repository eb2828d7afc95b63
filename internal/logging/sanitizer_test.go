package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	return payload
}

func TestSanitizingHandler_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("claim",
		"shared_secret", "deadbeef",
		"seed", "cafe",
		"wallet_signature", "sig",
		"sequence_id", 7,
	)

	payload := decode(t, &buf)
	for _, key := range []string{"shared_secret", "seed", "wallet_signature"} {
		if got := payload[key]; got != redactedValue {
			t.Errorf("%s = %v, want %s", key, got, redactedValue)
		}
	}
	if got := payload["sequence_id"]; got != float64(7) {
		t.Errorf("sequence_id = %v, want 7", got)
	}
}

func TestSanitizingHandler_FingerprintsLinkableIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("withdraw", "destination", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")

	payload := decode(t, &buf)
	if _, ok := payload["destination"]; ok {
		t.Fatal("destination should not be present")
	}
	got, _ := payload["destination_fp"].(string)
	if !strings.HasPrefix(got, "fp_") {
		t.Errorf("destination_fp = %q", got)
	}
	if got != Fingerprint("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin") {
		t.Error("fingerprint is not stable within the process")
	}
}

func TestSanitizingHandler_WithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))).
		With("private_key", "x").
		WithGroup("escrow_info")
	logger.Info("scan", slog.Group("inner", "shared", "y", "amount", 5))

	payload := decode(t, &buf)
	if payload["private_key"] != redactedValue {
		t.Errorf("private_key = %v", payload["private_key"])
	}
	group, _ := payload["escrow_info"].(map[string]any)
	inner, _ := group["inner"].(map[string]any)
	if inner["shared"] != redactedValue {
		t.Errorf("nested shared = %v", inner["shared"])
	}
	if inner["amount"] != float64(5) {
		t.Errorf("nested amount = %v", inner["amount"])
	}
}

func TestWrapHandler_Idempotent(t *testing.T) {
	h := WrapHandler(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	if WrapHandler(h) != h {
		t.Error("wrapping twice should return the same handler")
	}
	if WrapHandler(nil) != nil {
		t.Error("WrapHandler(nil) should be nil")
	}
}

func TestSanitize_Nil(t *testing.T) {
	if Sanitize(nil) == nil {
		t.Fatal("Sanitize(nil) returned nil")
	}
	Sanitize(nil).Info("dropped", "seed", "x")
}
