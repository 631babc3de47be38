package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestMaskFieldRedactsUnlistedKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	token := "Bearer super-secret-token"
	logger.Warn("rejecting request",
		MaskField("authorization", token),
		slog.String("reason", "unit test"))

	if IsAllowlisted("authorization") {
		t.Fatalf("authorization must not be allowlisted: %v", RedactionAllowlist())
	}
	if bytes.Contains(buf.Bytes(), []byte(token)) {
		t.Fatalf("log output leaked the token: %s", buf.Bytes())
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log payload: %v", err)
	}
	if entry["authorization"] != RedactedValue {
		t.Fatalf("authorization = %v, want %q", entry["authorization"], RedactedValue)
	}
}

func TestMaskFieldPassesAllowlistedKeys(t *testing.T) {
	attr := MaskField("module", "settlement")
	if attr.Value.String() != "settlement" {
		t.Fatalf("module value = %q, want it unmasked", attr.Value.String())
	}
	if MaskValue("") != "" {
		t.Fatalf("empty values must stay empty")
	}
	if MaskValue("vlt1...") != RedactedValue {
		t.Fatalf("non-empty values must mask")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
