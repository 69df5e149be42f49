package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/registry"
	"github.com/yndnr/slotkeep-go/internal/core/world"
	"github.com/yndnr/slotkeep-go/internal/infra/shutdown"
	"github.com/yndnr/slotkeep-go/internal/orchestrator"
	"github.com/yndnr/slotkeep-go/internal/storage/slot"
	"github.com/yndnr/slotkeep-go/internal/storage/snapshot"
	"github.com/yndnr/slotkeep-go/internal/telemetry/metric"
)

// Listener observes slot operations. Every method is called on the world
// thread.
type Listener interface {
	SaveBegan(slotID string)
	SaveFinished(report *domain.Report)
	LoadBegan(slotID string)
	LoadFinished(report *domain.Report)
}

// AutosaveOptions configures periodic saving.
type AutosaveOptions struct {
	Enabled bool
	// Slot receives autosaves. Default: "autosave"
	Slot string
	// Interval between periodic autosaves. Zero disables the ticker
	// while leaving RequestAutosave usable.
	Interval time.Duration
	// MinGap is the shortest time between two autosaves; requests
	// inside it are coalesced. Default: 10s
	MinGap time.Duration
}

// Options configures a Manager.
type Options struct {
	// Registry is sealed by NewManager. Nil uses registry.Default().
	Registry *registry.Registry

	// World is the host's world view. Required.
	World world.View
	// Dispatcher runs world-thread steps. Nil runs them inline.
	Dispatcher orchestrator.Dispatcher
	// Slots stores slot buffers. Required.
	Slots *slot.Manager

	Orchestrator orchestrator.Config

	Classes       domain.ClassFilter
	MaxBufferSize int
	SchemaVersion uint32
	AppVersion    string

	Mode                  Mode
	ResolveLiveReferences bool

	Autosave AutosaveOptions
	// SaveOnExit names the slot written by the shutdown hook. Empty
	// disables the hook.
	SaveOnExit string
	// AutoLoad loads the most recent slot in Start.
	AutoLoad bool

	Metrics *metric.Registry
	Logger  *slog.Logger
}

// Manager is the operation API the host's gameplay and UI code call.
type Manager struct {
	opts     Options
	view     world.View
	orch     *orchestrator.Orchestrator
	slots    *slot.Manager
	writer   *Writer
	recon    *Reconciler
	metrics  *metric.Registry
	logger   *slog.Logger
	autosave *rate.Limiter

	listenersMu sync.RWMutex
	listeners   []Listener

	// retained and pending are keyed by level.
	streamMu sync.Mutex
	retained map[string]snapshot.Section
	pending  map[string]*pendingLevel

	totalPlayed atomic.Int64
	slotPlayed  atomic.Int64
}

type pendingLevel struct {
	plan  *Plan
	level *LevelPlan
}

// NewManager seals the registry and starts the worker pool.
func NewManager(opts Options) (*Manager, error) {
	if opts.World == nil {
		return nil, fmt.Errorf("service: world view is required")
	}
	if opts.Slots == nil {
		return nil, fmt.Errorf("service: slot manager is required")
	}
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = orchestrator.Immediate{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Autosave.Slot == "" {
		opts.Autosave.Slot = "autosave"
	}
	if opts.Autosave.MinGap <= 0 {
		opts.Autosave.MinGap = 10 * time.Second
	}
	if err := slot.ValidateID(opts.Autosave.Slot); err != nil {
		return nil, err
	}
	opts.Registry.Seal()

	m := &Manager{
		opts:    opts,
		view:    opts.World,
		slots:   opts.Slots,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		writer: NewWriter(WriterOptions{
			Registry:      opts.Registry,
			Classes:       opts.Classes,
			MaxBufferSize: opts.MaxBufferSize,
			SchemaVersion: opts.SchemaVersion,
			Logger:        opts.Logger,
		}),
		recon: NewReconciler(ReconcilerOptions{
			Registry:              opts.Registry,
			Mode:                  opts.Mode,
			ResolveLiveReferences: opts.ResolveLiveReferences,
			Classes:               opts.Classes,
			Logger:                opts.Logger,
		}),
		autosave: rate.NewLimiter(rate.Every(opts.Autosave.MinGap), 1),
		retained: make(map[string]snapshot.Section),
		pending:  make(map[string]*pendingLevel),
	}
	m.orch = orchestrator.New(opts.Dispatcher, opts.Orchestrator, opts.Logger)
	if opts.Metrics != nil {
		if err := opts.Metrics.Registerer().Register(metric.NewCollector(m.Stats)); err != nil {
			m.logger.Warn("engine collector not registered", "error", err)
		}
	}
	return m, nil
}

// AddListener registers l for every later operation.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) notify(fn func(Listener)) {
	m.listenersMu.RLock()
	ls := append([]Listener(nil), m.listeners...)
	m.listenersMu.RUnlock()
	for _, l := range ls {
		fn(l)
	}
}

// Stats reports engine gauges.
func (m *Manager) Stats() metric.Stats {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	return metric.Stats{
		ActiveTasks:    m.orch.Active(),
		PendingLevels:  len(m.pending),
		RetainedLevels: len(m.retained),
	}
}

// ============================================================================
// Save
// ============================================================================

// SaveOption customizes one save.
type SaveOption func(*saveRequest)

type saveRequest struct {
	name      string
	subname   string
	mapName   string
	thumbnail []byte
	done      func(*orchestrator.Handle)
}

// WithName sets the slot's display name.
func WithName(name string) SaveOption {
	return func(r *saveRequest) { r.name = name }
}

// WithSubname sets the slot's secondary label.
func WithSubname(subname string) SaveOption {
	return func(r *saveRequest) { r.subname = subname }
}

// WithMap records the root level open at save time.
func WithMap(level string) SaveOption {
	return func(r *saveRequest) { r.mapName = level }
}

// WithThumbnail stores an encoded preview image in the metadata.
func WithThumbnail(img []byte) SaveOption {
	return func(r *saveRequest) { r.thumbnail = img }
}

// OnSaveDone runs fn on the world thread after the save finishes.
func OnSaveDone(fn func(*orchestrator.Handle)) SaveOption {
	return func(r *saveRequest) { r.done = fn }
}

// RequestSave starts saving the levels accepted by filter into slotID.
// It fails immediately with domain.ErrBusy when the slot has an operation
// in flight.
func (m *Manager) RequestSave(slotID string, filter domain.LevelFilter, opts ...SaveOption) (*orchestrator.Handle, error) {
	if err := slot.ValidateID(slotID); err != nil {
		return nil, err
	}
	req := &saveRequest{}
	for _, opt := range opts {
		opt(req)
	}

	h, err := m.orch.Submit(orchestrator.Task{
		Slot: slotID,
		Kind: domain.OpSave,
		Run: func(ctx context.Context, ex *orchestrator.Exec) (*domain.Report, error) {
			return m.runSave(ctx, ex, slotID, filter, req)
		},
	}, orchestrator.WithCallback(m.opts.Dispatcher, func(h *orchestrator.Handle) {
		m.finished(h, req.done)
	}))
	if err != nil {
		m.rejected(domain.OpSave, slotID, err)
		return nil, err
	}
	m.opts.Dispatcher.Post(func() {
		m.notify(func(l Listener) { l.SaveBegan(slotID) })
	})
	return h, nil
}

func (m *Manager) runSave(ctx context.Context, ex *orchestrator.Exec, slotID string, filter domain.LevelFilter, req *saveRequest) (*domain.Report, error) {
	report := domain.NewReport(domain.OpSave, slotID)

	var capture *Capture
	err := ex.OnWorld(ctx, func() error {
		var err error
		capture, err = m.writer.Capture(ctx, m.view, filter, report)
		if err != nil {
			return err
		}
		m.streamMu.Lock()
		for level, s := range m.retained {
			if filter.Includes(level) {
				capture.AddSection(s)
			}
		}
		m.streamMu.Unlock()
		return nil
	})
	if err != nil {
		return report, err
	}

	meta := domain.SlotMetadata{
		SlotID:      slotID,
		Name:        req.name,
		Subname:     req.subname,
		Map:         req.mapName,
		Thumbnail:   req.thumbnail,
		SavedAt:     time.Now().UTC(),
		TotalPlayed: time.Duration(m.totalPlayed.Load()),
		SlotPlayed:  time.Duration(m.slotPlayed.Load()),
		AppVersion:  m.opts.AppVersion,
	}
	if meta.Name == "" {
		meta.Name = slotID
	}
	payload, err := capture.Encode(meta)
	if err != nil {
		return report, err
	}
	meta.Levels = capture.Levels()
	meta.ObjectCount = capture.Records()
	meta.FormatVersion = snapshot.FormatVersion
	meta.SchemaVersion = m.opts.SchemaVersion

	if err := ex.Commit(); err != nil {
		return report, err
	}
	if _, err := m.slots.Save(ctx, meta, payload); err != nil {
		return report, err
	}
	report.Levels = meta.Levels
	report.BytesWritten = int64(len(payload))
	return report, nil
}

// ============================================================================
// Load
// ============================================================================

// LoadOption customizes one load.
type LoadOption func(*loadRequest)

type loadRequest struct {
	done func(*orchestrator.Handle)
}

// OnLoadDone runs fn on the world thread after the load finishes.
func OnLoadDone(fn func(*orchestrator.Handle)) LoadOption {
	return func(r *loadRequest) { r.done = fn }
}

// RequestLoad starts restoring slotID into the world. Levels of the slot
// that are not loaded are kept and applied by OnLevelLoaded.
func (m *Manager) RequestLoad(slotID string, filter domain.LevelFilter, opts ...LoadOption) (*orchestrator.Handle, error) {
	if err := slot.ValidateID(slotID); err != nil {
		return nil, err
	}
	req := &loadRequest{}
	for _, opt := range opts {
		opt(req)
	}

	h, err := m.orch.Submit(orchestrator.Task{
		Slot: slotID,
		Kind: domain.OpLoad,
		Run: func(ctx context.Context, ex *orchestrator.Exec) (*domain.Report, error) {
			return m.runLoad(ctx, ex, slotID, filter)
		},
	}, orchestrator.WithCallback(m.opts.Dispatcher, func(h *orchestrator.Handle) {
		m.finished(h, req.done)
	}))
	if err != nil {
		m.rejected(domain.OpLoad, slotID, err)
		return nil, err
	}
	m.opts.Dispatcher.Post(func() {
		m.notify(func(l Listener) { l.LoadBegan(slotID) })
	})
	return h, nil
}

func (m *Manager) runLoad(ctx context.Context, ex *orchestrator.Exec, slotID string, filter domain.LevelFilter) (*domain.Report, error) {
	report := domain.NewReport(domain.OpLoad, slotID)

	data, err := m.slots.Load(ctx, slotID)
	if err != nil {
		return report, err
	}
	plan, err := m.recon.Prepare(ctx, data, filter, report)
	if err != nil {
		return report, err
	}

	if err := ex.Commit(); err != nil {
		return report, err
	}
	err = ex.OnWorld(ctx, func() error {
		plan.Reconcile(m.view)

		m.streamMu.Lock()
		m.retained = make(map[string]snapshot.Section)
		m.pending = make(map[string]*pendingLevel)
		for _, lp := range plan.Pending() {
			m.pending[lp.Level] = &pendingLevel{plan: plan, level: lp}
		}
		m.streamMu.Unlock()
		return nil
	})
	if err != nil {
		return report, err
	}

	meta := plan.Header().Metadata
	m.totalPlayed.Store(int64(meta.TotalPlayed))
	m.slotPlayed.Store(0)
	return report, nil
}

// finished runs on the world thread once a save or load is terminal.
func (m *Manager) finished(h *orchestrator.Handle, done func(*orchestrator.Handle)) {
	report, _ := h.Result()
	m.metrics.ObserveReport(report)

	attrs := []any{
		"slot", h.Slot(),
		"kind", h.Kind(),
		"outcome", report.Outcome().String(),
		"elapsed", report.Duration(),
		"object_errors", len(report.Objects),
	}
	switch report.Outcome() {
	case domain.OutcomeFailed:
		m.logger.Error("slot operation failed", append(attrs, "error", report.Err)...)
	case domain.OutcomeSucceededWithSkips:
		m.logger.Warn("slot operation skipped objects", attrs...)
	default:
		m.logger.Info("slot operation finished", attrs...)
	}
	if report.CancelTooLate {
		m.logger.Info("cancel arrived after commit", "slot", h.Slot(), "kind", h.Kind())
	}

	switch h.Kind() {
	case domain.OpSave:
		m.notify(func(l Listener) { l.SaveFinished(report) })
	case domain.OpLoad:
		m.notify(func(l Listener) { l.LoadFinished(report) })
	}
	if done != nil {
		done(h)
	}
}

func (m *Manager) rejected(kind domain.OpKind, slotID string, err error) {
	if errors.Is(err, domain.ErrBusy) {
		m.metrics.ObserveBusy(kind)
		m.logger.Debug("slot busy", "slot", slotID, "kind", kind)
		return
	}
	m.logger.Warn("request rejected", "slot", slotID, "kind", kind, "error", err)
}

// ============================================================================
// Cancel, list, delete
// ============================================================================

// Cancel requests cancellation of h. It returns false once h reached its
// commit step or finished.
func (m *Manager) Cancel(h *orchestrator.Handle) bool {
	return m.orch.Cancel(h)
}

// ListSlots returns slot metadata, most recent first. Slots whose
// metadata is unreadable are listed with Err set.
func (m *Manager) ListSlots(ctx context.Context) ([]slot.Entry, error) {
	return m.slots.List(ctx)
}

// DeleteSlot removes slotID. It is serialized with saves and loads of the
// same slot and fails with domain.ErrBusy while one is in flight.
func (m *Manager) DeleteSlot(ctx context.Context, slotID string) error {
	if err := slot.ValidateID(slotID); err != nil {
		return err
	}
	h, err := m.orch.Submit(orchestrator.Task{
		Slot: slotID,
		Kind: domain.OpDelete,
		Run: func(ctx context.Context, ex *orchestrator.Exec) (*domain.Report, error) {
			report := domain.NewReport(domain.OpDelete, slotID)
			if err := ex.Commit(); err != nil {
				return report, err
			}
			return report, m.slots.Delete(ctx, slotID)
		},
	})
	if err != nil {
		m.rejected(domain.OpDelete, slotID, err)
		return err
	}
	report, err := h.Wait(ctx)
	if report == nil {
		return err
	}
	m.metrics.ObserveReport(report)
	if report.Err == nil {
		m.logger.Info("slot deleted", "slot", slotID)
	}
	return report.Err
}

// ============================================================================
// Autosave, exit save, startup
// ============================================================================

// RequestAutosave saves into the autosave slot unless another autosave
// ran within MinGap or the slot is busy. It returns nil when skipped.
func (m *Manager) RequestAutosave() *orchestrator.Handle {
	if !m.autosave.Allow() {
		m.logger.Debug("autosave coalesced", "slot", m.opts.Autosave.Slot)
		return nil
	}
	h, err := m.RequestSave(m.opts.Autosave.Slot, domain.AllLevels(), WithName("Autosave"))
	if err != nil {
		m.logger.Info("autosave skipped", "slot", m.opts.Autosave.Slot, "error", err)
		return nil
	}
	return h
}

// RunAutosave requests an autosave every Interval until ctx ends.
func (m *Manager) RunAutosave(ctx context.Context) error {
	if !m.opts.Autosave.Enabled || m.opts.Autosave.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(m.opts.Autosave.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.RequestAutosave()
		}
	}
}

// RegisterShutdown adds the save-on-exit hook and the worker pool drain
// to h. The host must keep draining its dispatcher until h is done.
func (m *Manager) RegisterShutdown(h *shutdown.Handler) {
	h.OnShutdown("slot engine", m.Close)
	if m.opts.SaveOnExit == "" {
		return
	}
	h.OnShutdown("save on exit", func(ctx context.Context) error {
		handle, err := m.RequestSave(m.opts.SaveOnExit, domain.AllLevels(), WithName("Exit save"))
		if err != nil {
			return err
		}
		report, err := handle.Wait(ctx)
		if report == nil {
			return err
		}
		return report.Err
	})
}

// Start loads the most recent slot when AutoLoad is set. It returns nil
// when there is nothing to load.
func (m *Manager) Start(ctx context.Context) (*orchestrator.Handle, error) {
	if !m.opts.AutoLoad {
		return nil, nil
	}
	entries, err := m.slots.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Err != nil {
			continue
		}
		m.logger.Info("auto-loading most recent slot", "slot", e.Meta.SlotID, "saved_at", e.Meta.SavedAt)
		return m.RequestLoad(e.Meta.SlotID, domain.AllLevels())
	}
	return nil, nil
}

// AddPlayedTime advances the play-time counters stored with every save.
func (m *Manager) AddPlayedTime(d time.Duration) {
	m.totalPlayed.Add(int64(d))
	m.slotPlayed.Add(int64(d))
}

// PlayedTime returns the total and per-slot play time.
func (m *Manager) PlayedTime() (total, slotPlayed time.Duration) {
	return time.Duration(m.totalPlayed.Load()), time.Duration(m.slotPlayed.Load())
}

// ============================================================================
// Level streaming
// ============================================================================

// OnLevelUnloading captures level before the host unloads it, so the
// next save still contains it. Call on the world thread.
func (m *Manager) OnLevelUnloading(level string) error {
	report := domain.NewReport(domain.OpSave, "")
	c, err := m.writer.Capture(context.Background(), m.view, domain.OnlyLevels(level), report)
	if err != nil {
		return err
	}
	s, ok := c.Section(level)
	if !ok {
		return nil
	}
	m.streamMu.Lock()
	m.retained[level] = s
	delete(m.pending, level)
	m.streamMu.Unlock()
	m.logger.Debug("level retained", "level", level, "records", len(s.Records), "object_errors", len(report.Objects))
	return nil
}

// OnLevelLoaded restores level from its retained capture, or from the
// last load when the level was not loaded at that time. It returns nil
// when there is nothing to restore. Call on the world thread.
func (m *Manager) OnLevelLoaded(level string) *domain.Report {
	m.streamMu.Lock()
	s, hasRetained := m.retained[level]
	p, hasPending := m.pending[level]
	delete(m.retained, level)
	delete(m.pending, level)
	m.streamMu.Unlock()

	var plan *Plan
	report := domain.NewReport(domain.OpLoad, "")
	switch {
	case hasRetained:
		plan = m.recon.PrepareSections([]snapshot.Section{s}, report)
		plan.liveRefs = true
	case hasPending:
		plan = p.plan.Only(p.level, report)
	default:
		return nil
	}
	plan.Reconcile(m.view)
	report.Finish()
	m.logger.Debug("level restored",
		"level", level,
		"spawned", report.Spawned,
		"matched", report.Matched,
		"object_errors", len(report.Objects))
	return report
}

// Close stops accepting operations and waits for in-flight ones.
func (m *Manager) Close(ctx context.Context) error {
	return m.orch.Close(ctx)
}
