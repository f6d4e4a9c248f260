package logging

import (
	"log/slog"
	"testing"
)

func TestMaskFieldHidesSensitiveValues(t *testing.T) {
	attr := MaskField("token", "super-secret")
	if got := attr.Value.String(); got != Redacted {
		t.Fatalf("token value = %q, want %q", got, Redacted)
	}

	attr = MaskField("method", "accrual_claim")
	if got := attr.Value.String(); got != "accrual_claim" {
		t.Fatalf("plain key masked: %q", got)
	}

	attr = MaskField("code", "")
	if got := attr.Value.String(); got != "" {
		t.Fatalf("empty value rewritten: %q", got)
	}
}

func TestPlainKeyNormalizesLookups(t *testing.T) {
	if !PlainKey(" Method ") {
		t.Fatal("key lookup should trim and fold case")
	}
	if PlainKey("referralCode") {
		t.Fatal("referralCode must not be exempt from masking")
	}
}

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for value, want := range cases {
		t.Setenv("VEST_LOG_LEVEL", value)
		if got := levelFromEnv(); got != want {
			t.Fatalf("level for %q = %v, want %v", value, got, want)
		}
	}
}
