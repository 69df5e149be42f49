package logger

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want any
	}{
		{"hex key material", slog.String("value", "hex:00112233445566778899"), "hex:***"},
		{"base64 key material", slog.String("cfg", "base64:c2VjcmV0"), "base64:***"},
		{"passphrase", slog.String("passphrase", "correct horse"), redactedValue},
		{"master key bytes", slog.Any("master_key", []byte("0123456789abcdef")), redactedValue},
		{"large bytes", slog.Any("thumbnail", bytes.Repeat([]byte{1}, 200)), "<200 bytes>"},
		{"plain", slog.String("slot", "slot-1"), "slot-1"},
		{"empty secret", slog.String("secret", ""), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBuffered(t, Config{Level: "info", Format: "json"})
			l.Info("x", tt.attr)
			if got := decode(t, buf)[tt.attr.Key]; got != tt.want {
				t.Errorf("%s = %v, want %v", tt.attr.Key, got, tt.want)
			}
		})
	}
}

func TestRedact_Group(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: "info", Format: "json"})
	l.Info("x", slog.Group("encryption", slog.String("passphrase", "hunter2"), slog.String("cipher", "aes-gcm")))
	group, ok := decode(t, buf)["encryption"].(map[string]any)
	if !ok {
		t.Fatal("missing encryption group")
	}
	if group["passphrase"] != redactedValue || group["cipher"] != "aes-gcm" {
		t.Errorf("group = %v", group)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"passphrase":   true,
		"MASTER_KEY":   true,
		"db_password":  true,
		"slot":         false,
		"payload_hash": false,
	} {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestRedactString(t *testing.T) {
	if got := RedactString("hex:abcdef"); got != "hex:***" {
		t.Errorf("RedactString(hex) = %q", got)
	}
	if got := RedactString("slot-1"); got != "slot-1" {
		t.Errorf("RedactString(plain) = %q", got)
	}
}
