package config

import (
	"strings"

	"github.com/yndnr/slotkeep-go/internal/telemetry/logger"
)

// Sanitize returns a copy of the config with key material masked.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Slots.MasterKey = maskSecret(cfg.Slots.MasterKey)
	sanitized.Slots.Passphrase = maskSecret(cfg.Slots.Passphrase)
	return &sanitized
}

// maskSecret keeps an encoding prefix and hides the value.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if r := logger.RedactString(s); r != s {
		return r
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
