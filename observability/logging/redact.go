package logging

import (
	"log/slog"
	"strings"
)

// Redacted is the placeholder emitted in place of sensitive log values.
const Redacted = "[REDACTED]"

// Keys that may appear in log lines verbatim. Everything else passed through
// MaskField is masked; bearer tokens and referral codes never reach the logs.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"method":    {},
	"addr":      {},
	"day":       {},
	"stream":    {},
}

// PlainKey reports whether key may be logged without masking.
func PlainKey(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField builds a slog.Attr whose value is masked unless the key is
// explicitly safe. Empty values pass through so absent fields stay readable.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || PlainKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}
