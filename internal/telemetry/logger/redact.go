package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Encoded key material carries one of these prefixes in configuration.
var sensitiveValuePrefixes = []string{
	"hex:",
	"base64:",
}

// Attribute names that always hold secrets.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"master_key",
	"credential",
}

const redactedValue = "***REDACTED***"

// maxLoggedBytes is the largest []byte value logged verbatim.
const maxLoggedBytes = 64

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s == "" {
			return a
		}
		for _, prefix := range sensitiveValuePrefixes {
			if strings.HasPrefix(s, prefix) {
				return slog.String(a.Key, prefix+"***")
			}
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindAny:
		if b, ok := a.Value.Any().([]byte); ok {
			if IsSensitiveKey(a.Key) {
				return slog.String(a.Key, redactedValue)
			}
			if len(b) > maxLoggedBytes {
				return slog.String(a.Key, fmt.Sprintf("<%d bytes>", len(b)))
			}
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// IsSensitiveKey reports whether an attribute name suggests a secret.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

// RedactString masks encoded key material; other strings pass through.
func RedactString(value string) string {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return prefix + "***"
		}
	}
	return value
}
