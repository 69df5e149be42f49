package domain

import (
	"errors"
	"fmt"
	"time"
)

// OpKind identifies the kind of slot operation.
type OpKind string

const (
	OpSave   OpKind = "save"
	OpLoad   OpKind = "load"
	OpDelete OpKind = "delete"
)

// Outcome summarizes a finished operation for the user.
type Outcome int

const (
	// OutcomeSucceeded means every selected object was processed.
	OutcomeSucceeded Outcome = iota
	// OutcomeSucceededWithSkips means the operation committed but some
	// objects or levels were skipped.
	OutcomeSucceededWithSkips
	// OutcomeFailed means a fatal error aborted the operation.
	OutcomeFailed
	// OutcomeCancelled means the operation was cancelled before commit.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSucceededWithSkips:
		return "succeeded_with_skips"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ObjectError records a single object's encode, decode or apply failure.
type ObjectError struct {
	ID     Identity
	TypeID string
	Err    error
}

func (e ObjectError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.ID, e.TypeID, e.Err)
}

// LevelError records a level section that could not be processed at all.
type LevelError struct {
	Level string
	Err   error
}

// Report is the result payload of a save, load or delete operation.
type Report struct {
	Kind   OpKind
	SlotID string

	Started  time.Time
	Finished time.Time

	// Levels lists the levels written (save) or restored (load).
	Levels []string
	// PendingLevels lists snapshot levels that were not loaded in the
	// world at restore time and are waiting to stream in.
	PendingLevels []string

	Saved      int // records written, tombstones included
	Tombstones int // destroyed markers written
	Matched    int // records matched to an existing live object
	Spawned    int // records materialized by spawning
	Destroyed  int // live objects destroyed by tombstones or replace mode
	Applied    int // objects whose field state was applied

	UnknownTypes     int
	UnknownFields    int
	SchemaMismatches int

	BytesWritten int64

	Objects     []ObjectError
	LevelErrors []LevelError

	// Err is the terminal error, if the operation did not commit.
	Err error

	// CancelTooLate is set when cancellation was requested after the
	// commit step had started.
	CancelTooLate bool
}

// NewReport starts a report for the given operation.
func NewReport(kind OpKind, slotID string) *Report {
	return &Report{Kind: kind, SlotID: slotID, Started: time.Now()}
}

// AddObjectError records a per-object failure wrapped as ErrObjectOp.
func (r *Report) AddObjectError(id Identity, typeID string, err error) {
	if !errors.Is(err, ErrObjectOp) {
		err = ErrObjectOp.WithDetails(id.String()).WithCause(err)
	}
	r.Objects = append(r.Objects, ObjectError{ID: id, TypeID: typeID, Err: err})
}

// AddLevelError records a level-wide failure.
func (r *Report) AddLevelError(level string, err error) {
	r.LevelErrors = append(r.LevelErrors, LevelError{Level: level, Err: err})
}

// Skipped returns the number of skipped objects and levels.
func (r *Report) Skipped() int {
	return len(r.Objects) + len(r.LevelErrors)
}

// Fail records a terminal error and finishes the report.
func (r *Report) Fail(err error) *Report {
	r.Err = err
	r.Finish()
	return r
}

// Finish stamps the finish time.
func (r *Report) Finish() {
	if r.Finished.IsZero() {
		r.Finished = time.Now()
	}
}

// Duration returns the wall time between start and finish.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return time.Since(r.Started)
	}
	return r.Finished.Sub(r.Started)
}

// Outcome classifies the report. A partial success is never reported as
// a full success.
func (r *Report) Outcome() Outcome {
	switch {
	case r.Err != nil && errors.Is(r.Err, ErrCancelled):
		return OutcomeCancelled
	case r.Err != nil:
		return OutcomeFailed
	case r.Skipped() > 0:
		return OutcomeSucceededWithSkips
	default:
		return OutcomeSucceeded
	}
}

// Summary returns a one-line human readable description.
func (r *Report) Summary() string {
	switch r.Outcome() {
	case OutcomeSucceeded:
		return fmt.Sprintf("%s %s: succeeded", r.Kind, r.SlotID)
	case OutcomeSucceededWithSkips:
		return fmt.Sprintf("%s %s: succeeded with %d skipped", r.Kind, r.SlotID, r.Skipped())
	case OutcomeCancelled:
		return fmt.Sprintf("%s %s: cancelled", r.Kind, r.SlotID)
	default:
		return fmt.Sprintf("%s %s: failed: %v", r.Kind, r.SlotID, r.Err)
	}
}
