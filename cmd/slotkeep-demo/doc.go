// slotkeep-demo is a headless host that drives the save engine the way a
// game would: a fixed-rate frame loop drains the world-thread queue, a
// small village simulation mutates objects, a cave level streams in and
// out, and autosave, quick saves and the exit save run in the
// background.
//
// Usage:
//
//	slotkeep-demo --config slotkeep.yaml --frames 600
package main
