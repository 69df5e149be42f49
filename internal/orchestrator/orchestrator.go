package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/pkg/cmap"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("orchestrator: closed")

// Task is one slot operation.
type Task struct {
	Slot string
	Kind domain.OpKind

	// Run does the work on a worker goroutine. It returns the
	// operation report; a non-nil error is the terminal failure.
	Run func(ctx context.Context, ex *Exec) (*domain.Report, error)
}

// Config configures the worker pool.
type Config struct {
	// Workers is the number of concurrent tasks. Default: 2
	Workers int
	// QueueSize bounds tasks waiting for a worker. Default: 16
	QueueSize int
}

// SubmitOption customizes one submission.
type SubmitOption func(*Handle)

// WithCallback runs fn on d once the task reaches a terminal state.
func WithCallback(d Dispatcher, fn func(*Handle)) SubmitOption {
	return func(h *Handle) {
		h.callback = fn
		h.callbackOn = d
	}
}

// Orchestrator schedules tasks with per-slot mutual exclusion.
type Orchestrator struct {
	cfg    Config
	world  Dispatcher
	logger *slog.Logger

	queue    chan *Handle
	inflight *cmap.Map[string, *Handle]
	nextID   atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts the worker pool. world receives steps that must run on the
// world thread. A nil logger uses slog.Default().
func New(world Dispatcher, cfg Config, logger *slog.Logger) *Orchestrator {
	if world == nil {
		world = Immediate{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	o := &Orchestrator{
		cfg:      cfg,
		world:    world,
		logger:   logger,
		queue:    make(chan *Handle, cfg.QueueSize),
		inflight: cmap.New[string, *Handle](),
	}
	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// World returns the world-thread dispatcher.
func (o *Orchestrator) World() Dispatcher { return o.world }

// Submit schedules task. It fails with domain.ErrBusy when the slot
// already has a task that is queued or running, and with
// domain.ErrInternal when the queue is full.
func (o *Orchestrator) Submit(task Task, opts ...SubmitOption) (*Handle, error) {
	if task.Run == nil {
		return nil, fmt.Errorf("orchestrator: task has no Run function")
	}

	ctx, stop := context.WithCancel(context.Background())
	h := &Handle{
		id:   o.nextID.Add(1),
		slot: task.Slot,
		kind: task.Kind,
		task: task,
		ctx:  ctx,
		stop: stop,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		stop()
		return nil, ErrClosed
	}
	if !o.inflight.SetIfAbsent(task.Slot, h) {
		stop()
		return nil, domain.ErrBusy.WithDetailsf("slot %q has an operation in flight", task.Slot)
	}

	select {
	case o.queue <- h:
	default:
		o.release(h)
		stop()
		return nil, domain.ErrInternal.WithDetails("task queue is full")
	}

	o.logger.Debug("task submitted", "slot", task.Slot, "kind", task.Kind, "handle", h.id)
	return h, nil
}

// Cancel requests cancellation. It returns false when the task already
// committed or finished; a refused cancel of a committed task is recorded
// in its report.
func (o *Orchestrator) Cancel(h *Handle) bool {
	if h == nil {
		return false
	}
	ok := h.requestCancel()
	o.logger.Debug("task cancel requested", "slot", h.slot, "handle", h.id, "accepted", ok)
	return ok
}

// InFlight returns the handle currently holding slot, if any.
func (o *Orchestrator) InFlight(slot string) (*Handle, bool) {
	return o.inflight.Get(slot)
}

// Active returns the number of queued or running tasks.
func (o *Orchestrator) Active() int {
	return o.inflight.Count()
}

// Close stops accepting tasks and waits for queued and running ones to
// finish. When ctx ends first, every uncommitted task is cancelled.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	// Tasks that have not committed yet are abandoned; committed ones
	// still run to completion on their workers.
	for slot, h := range o.inflight.All() {
		if h.Committed() {
			continue
		}
		if h.requestCancel() {
			o.logger.Warn("task cancelled by close", "slot", slot, "handle", h.id)
		}
	}
	return fmt.Errorf("orchestrator: close: %w", ctx.Err())
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for h := range o.queue {
		o.run(h)
	}
}

func (o *Orchestrator) run(h *Handle) {
	if h.isCancelled() {
		o.finish(h, StateCancelled, nil, domain.ErrCancelled.WithDetails("cancelled before start"))
		return
	}
	h.state.Store(int32(StateRunning))
	start := time.Now()

	report, err := o.invoke(h)

	state := StateCompleted
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCancelled):
		state = StateCancelled
	case errors.Is(err, context.Canceled) && h.isCancelled() && !h.Committed():
		state = StateCancelled
		err = domain.ErrCancelled.WithCause(err)
	default:
		state = StateFailed
	}
	o.logger.Debug("task finished",
		"slot", h.slot,
		"kind", h.kind,
		"state", state.String(),
		"elapsed", time.Since(start))
	o.finish(h, state, report, err)
}

func (o *Orchestrator) invoke(h *Handle) (report *domain.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("task panicked", "slot", h.slot, "panic", r, "stack", string(debug.Stack()))
			err = domain.ErrInternal.WithDetailsf("task panicked: %v", r)
		}
	}()
	return h.task.Run(h.ctx, &Exec{h: h, world: o.world})
}

// finish releases the slot before publishing the terminal state, so a
// caller woken by Done can resubmit immediately.
func (o *Orchestrator) finish(h *Handle, state State, report *domain.Report, err error) {
	o.release(h)

	h.mu.Lock()
	if report == nil {
		report = domain.NewReport(h.kind, h.slot)
	}
	if err != nil && report.Err == nil {
		report.Err = err
	}
	report.CancelTooLate = report.CancelTooLate || h.cancelLate
	if report.Finished.IsZero() {
		report.Finish()
	}
	h.report = report
	h.err = err
	h.state.Store(int32(state))
	cb, cbOn := h.callback, h.callbackOn
	h.mu.Unlock()

	h.stop()
	close(h.done)

	if cb != nil {
		if cbOn == nil {
			cbOn = o.world
		}
		cbOn.Post(func() { cb(h) })
	}
}

func (o *Orchestrator) release(h *Handle) {
	o.inflight.DeleteIf(h.slot, func(cur *Handle) bool { return cur == h })
}

// Exec is a running task's view of its handle.
type Exec struct {
	h     *Handle
	world Dispatcher
}

// Handle returns the task's handle.
func (e *Exec) Handle() *Handle { return e.h }

// Cancelled reports whether cancellation was accepted.
func (e *Exec) Cancelled() bool { return e.h.isCancelled() }

// Commit marks the commit point. It fails with domain.ErrCancelled when
// cancellation was accepted first; afterwards Cancel is refused.
func (e *Exec) Commit() error { return e.h.commit() }

// OnWorld runs fn on the world thread and waits for it. Before the
// commit point a cancelled task gets domain.ErrCancelled instead of
// running fn.
func (e *Exec) OnWorld(ctx context.Context, fn func() error) error {
	if !e.h.Committed() && e.h.isCancelled() {
		return domain.ErrCancelled.WithDetails("cancelled before world step")
	}
	result := make(chan error, 1)
	e.world.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- domain.ErrInternal.WithDetailsf("world step panicked: %v", r)
			}
		}()
		result <- fn()
	})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
