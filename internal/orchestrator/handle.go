package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
)

// State is the lifecycle state of a submitted task.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Handle tracks one submitted task.
type Handle struct {
	id   uint64
	slot string
	kind domain.OpKind
	task Task

	state atomic.Int32
	ctx   context.Context
	stop  context.CancelFunc
	done  chan struct{}

	// mu orders Commit against Cancel.
	mu         sync.Mutex
	committed  bool
	cancelled  bool
	cancelLate bool
	report     *domain.Report
	err        error
	callback   func(*Handle)
	callbackOn Dispatcher
}

// ID returns the handle's process-unique id.
func (h *Handle) ID() uint64 { return h.id }

// Slot returns the slot the task operates on.
func (h *Handle) Slot() string { return h.slot }

// Kind returns the operation kind.
func (h *Handle) Kind() domain.OpKind { return h.kind }

// State returns the current state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed when the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the report and terminal error. It is only meaningful
// after Done is closed.
func (h *Handle) Result() (*domain.Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.report, h.err
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*domain.Report, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Committed reports whether the task passed its commit point.
func (h *Handle) Committed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.committed
}

// requestCancel marks the handle cancelled unless it already committed.
func (h *Handle) requestCancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.State().Terminal() {
		return false
	}
	if h.committed {
		h.cancelLate = true
		return false
	}
	h.cancelled = true
	h.stop()
	return true
}

func (h *Handle) commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return domain.ErrCancelled.WithDetails("cancelled before commit")
	}
	h.committed = true
	return nil
}

func (h *Handle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}
