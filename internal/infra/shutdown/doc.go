// Package shutdown runs named hooks when the process is asked to stop,
// either by SIGINT/SIGTERM or programmatically with Trigger.
//
// The slot engine registers its save-on-exit hook here so the final save
// commits before the process exits.
package shutdown
