// Package command defines the slotkeep-cli commands with urfave/cli/v2.
//
//   - root.go: application, global flags, configuration and slot store setup
//   - slot.go: slot list/show/verify/delete/copy/dump/compact
//   - config.go: configuration show/validate/default
//   - version.go: build information
//
// Commands open the slot store described by the configuration directly;
// they do not need a running host.
package command
