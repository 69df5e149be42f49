// Package orchestrator runs slot operations off the world thread.
//
// At most one operation per slot is in flight at a time: Submit rejects a
// second task for the same slot with ErrBusy until the first reaches a
// terminal state. Tasks run on a fixed worker pool. Steps that touch the
// live world are marshalled back to the host through a Dispatcher, which
// the host drains between frames.
//
// A task is cancellable until it calls Exec.Commit. After that point a
// Cancel is refused and only recorded as too late.
//
// Handle states:
//
//	Idle ──▶ Running ──▶ Completed
//	  │         ├──────▶ Failed
//	  └─────────┴──────▶ Cancelled
package orchestrator
