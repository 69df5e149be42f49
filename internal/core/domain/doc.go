// Package domain defines the core domain models for slotkeep.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Identity: stable key matching a saved record to a live object
//   - ObjectRecord: one serialized object instance (identity, type, spawn parameters, fields)
//   - SlotMetadata: cheap-to-list information about a saved slot
//   - LevelFilter / ClassFilter: selection of what a save or load touches
//   - Report: per-operation outcome with per-object errors
//   - Errors: the error taxonomy shared by every component
package domain
