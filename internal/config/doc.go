// Package config defines the slotkeep configuration structure.
//
//   - spec.go: Config and its sections
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of key material for logging and display
//   - build.go: turning sections into transports, slot managers and
//     service options
//
// Configuration is loaded through internal/infra/confloader from a YAML
// file, SLOTKEEP_* environment variables and flags.
package config
