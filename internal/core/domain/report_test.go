package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestReport_Outcome(t *testing.T) {
	ok := NewReport(OpSave, "slot-1")
	ok.Finish()
	if ok.Outcome() != OutcomeSucceeded {
		t.Fatalf("Outcome = %v, want succeeded", ok.Outcome())
	}

	skipped := NewReport(OpLoad, "slot-1")
	skipped.AddObjectError(NewIdentity("L", "A"), "Door", errors.New("boom"))
	if skipped.Outcome() != OutcomeSucceededWithSkips {
		t.Fatalf("Outcome = %v, want succeeded_with_skips", skipped.Outcome())
	}
	if !errors.Is(skipped.Objects[0].Err, ErrObjectOp) {
		t.Fatal("object errors should be wrapped as ErrObjectOp")
	}
	if !strings.Contains(skipped.Summary(), "1 skipped") {
		t.Fatalf("Summary = %q", skipped.Summary())
	}

	failed := NewReport(OpSave, "slot-1").Fail(ErrIO.WithCause(errors.New("disk")))
	if failed.Outcome() != OutcomeFailed {
		t.Fatalf("Outcome = %v, want failed", failed.Outcome())
	}

	cancelled := NewReport(OpSave, "slot-1").Fail(ErrCancelled)
	if cancelled.Outcome() != OutcomeCancelled {
		t.Fatalf("Outcome = %v, want cancelled", cancelled.Outcome())
	}
}
