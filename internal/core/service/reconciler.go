package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yndnr/slotkeep-go/internal/core/codec"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/registry"
	"github.com/yndnr/slotkeep-go/internal/core/world"
	"github.com/yndnr/slotkeep-go/internal/storage/snapshot"
)

// Mode selects how a load treats live objects the snapshot does not mention.
type Mode int

const (
	// ModeOverlay leaves unmatched live objects untouched.
	ModeOverlay Mode = iota
	// ModeReplace destroys unmatched live objects of saveable types in
	// every restored level.
	ModeReplace
)

func (m Mode) String() string {
	switch m {
	case ModeOverlay:
		return "overlay"
	case ModeReplace:
		return "replace"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "overlay" or "replace". Empty means overlay.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "overlay":
		return ModeOverlay, nil
	case "replace":
		return ModeReplace, nil
	default:
		return ModeOverlay, fmt.Errorf("service: unknown reconcile mode %q", s)
	}
}

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	// Registry resolves type descriptors. Nil uses registry.Default().
	Registry *registry.Registry

	Mode Mode

	// ResolveLiveReferences makes references to identities missing from
	// the snapshot fall back to the live world instead of resolving to nil.
	ResolveLiveReferences bool

	// Classes filters restored types. Types flagged AlwaysSave bypass it.
	Classes domain.ClassFilter

	Logger *slog.Logger
}

// Reconciler turns slot buffers into plans and applies them to a world.
type Reconciler struct {
	reg    *registry.Registry
	opts   ReconcilerOptions
	logger *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts ReconcilerOptions) *Reconciler {
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{reg: reg, opts: opts, logger: logger}
}

type decodedField struct {
	fd *registry.FieldDescriptor
	v  any
}

type planObject struct {
	rec    domain.ObjectRecord
	desc   *registry.Descriptor
	fields []decodedField

	live world.Object
}

// LevelPlan is the decoded content of one level section.
type LevelPlan struct {
	Level   string
	objects []*planObject

	// mentioned holds every record identity of the section, including
	// records dropped while decoding.
	mentioned map[domain.Identity]bool
}

// Len returns the number of decoded records.
func (lp *LevelPlan) Len() int { return len(lp.objects) }

// Plan is a decoded snapshot ready to be applied to a world. Materialize
// and Apply must run on the world thread, in that order.
type Plan struct {
	r        *Reconciler
	header   snapshot.Header
	levels   []*LevelPlan
	report   *domain.Report
	liveRefs bool

	restored []*LevelPlan
	pending  []*LevelPlan
	arena    map[domain.Identity]world.Object
}

// Prepare decodes data against the registry. A corrupt header or index
// is fatal; a corrupt level section becomes a level error in report.
// Prepare does not touch the world and may run on a worker.
func (r *Reconciler) Prepare(ctx context.Context, data []byte, filter domain.LevelFilter, report *domain.Report) (*Plan, error) {
	buf, err := snapshot.Open(data)
	if err != nil {
		return nil, err
	}
	p := r.newPlan(buf.Header(), report)
	for _, level := range buf.Levels() {
		if !filter.Includes(level) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("service: prepare: %w", err)
		}
		records, err := buf.Section(level)
		if err != nil {
			r.logger.Warn("level section unreadable", "level", level, "error", err)
			report.AddLevelError(level, err)
			continue
		}
		p.levels = append(p.levels, r.prepareLevel(level, records, report))
	}
	return p, nil
}

// PrepareSections builds a plan from in-memory sections, such as the
// capture of a level taken when it streamed out.
func (r *Reconciler) PrepareSections(sections []snapshot.Section, report *domain.Report) *Plan {
	p := r.newPlan(snapshot.Header{FormatVersion: snapshot.FormatVersion}, report)
	for _, s := range sections {
		p.levels = append(p.levels, r.prepareLevel(s.Level, s.Records, report))
	}
	sort.Slice(p.levels, func(i, j int) bool { return p.levels[i].Level < p.levels[j].Level })
	return p
}

func (r *Reconciler) newPlan(h snapshot.Header, report *domain.Report) *Plan {
	return &Plan{
		r:        r,
		header:   h,
		report:   report,
		liveRefs: r.opts.ResolveLiveReferences,
		arena:    make(map[domain.Identity]world.Object),
	}
}

func (r *Reconciler) prepareLevel(level string, records []domain.ObjectRecord, report *domain.Report) *LevelPlan {
	lp := &LevelPlan{Level: level, mentioned: make(map[domain.Identity]bool, len(records))}
	for i := range records {
		lp.mentioned[records[i].ID] = true
		if obj, ok := r.prepareRecord(&records[i], report); ok {
			lp.objects = append(lp.objects, obj)
		}
	}
	return lp
}

func (r *Reconciler) prepareRecord(rec *domain.ObjectRecord, report *domain.Report) (*planObject, bool) {
	desc, err := r.reg.Resolve(rec.TypeID)
	if err != nil {
		report.UnknownTypes++
		r.logger.Debug("skipping record of unknown type", "object", rec.ID.String(), "type", rec.TypeID)
		return nil, false
	}
	if !r.restores(desc) {
		return nil, false
	}
	obj := &planObject{rec: *rec, desc: desc}
	obj.rec.Fields = nil
	if rec.Destroyed {
		return obj, true
	}

	seen := make(map[uint16]bool, len(rec.Fields))
	for _, fe := range rec.Fields {
		fd, ok := desc.FieldByTag(fe.Tag)
		if !ok {
			report.UnknownFields++
			r.logger.Debug("skipping unknown field", "object", rec.ID.String(), "type", rec.TypeID, "tag", fe.Tag)
			continue
		}
		seen[fe.Tag] = true
		v, err := codec.DecodeField(fd, fe.Data)
		if errors.Is(err, domain.ErrSchemaMismatch) {
			report.SchemaMismatches++
			r.logger.Debug("skipping mismatched field", "object", rec.ID.String(), "field", fd.Name, "error", err)
			continue
		}
		if err != nil {
			report.AddObjectError(rec.ID, rec.TypeID, fmt.Errorf("decode %s: %w", fd.Name, err))
			return nil, false
		}
		obj.fields = append(obj.fields, decodedField{fd: fd, v: v})
	}
	for _, fd := range desc.OrderedFields() {
		if !seen[fd.Tag] {
			obj.fields = append(obj.fields, decodedField{fd: fd, v: codec.DefaultValue(fd)})
		}
	}
	sort.SliceStable(obj.fields, func(i, j int) bool { return obj.fields[i].fd.Tag < obj.fields[j].fd.Tag })
	return obj, true
}

// restores reports whether records of desc take part in a load.
func (r *Reconciler) restores(desc *registry.Descriptor) bool {
	if desc.Flags.Has(registry.FlagAlwaysSave) {
		return true
	}
	return !desc.Flags.Has(registry.FlagTransient) && r.opts.Classes.IsAllowed(desc.TypeID)
}

// Header returns the slot buffer header. Plans built from sections carry
// only the format version.
func (p *Plan) Header() snapshot.Header { return p.header }

// Levels returns the planned levels in order.
func (p *Plan) Levels() []string {
	out := make([]string, len(p.levels))
	for i, lp := range p.levels {
		out[i] = lp.Level
	}
	return out
}

// Pending returns the levels Materialize found not loaded. The manager
// keeps them until the level streams in.
func (p *Plan) Pending() []*LevelPlan { return p.pending }

// Only returns a plan restricted to lp. References outside the level
// resolve against the live world.
func (p *Plan) Only(lp *LevelPlan, report *domain.Report) *Plan {
	out := p.r.newPlan(p.header, report)
	out.levels = []*LevelPlan{lp}
	out.liveRefs = true
	return out
}

// Materialize is the first pass: it matches, spawns or destroys every
// planned object so that all identities exist before state is applied.
func (p *Plan) Materialize(view world.View) {
	loaded := make(map[string]bool)
	for _, l := range view.Levels() {
		loaded[l] = true
	}

	for _, lp := range p.levels {
		if !loaded[lp.Level] {
			p.pending = append(p.pending, lp)
			p.report.PendingLevels = append(p.report.PendingLevels, lp.Level)
			continue
		}
		p.restored = append(p.restored, lp)
		p.report.Levels = append(p.report.Levels, lp.Level)

		for _, obj := range lp.objects {
			p.materialize(view, obj)
		}
		if p.r.opts.Mode == ModeReplace {
			p.replaceUnmatched(view, lp)
		}
	}
}

func (p *Plan) materialize(view world.View, obj *planObject) {
	id, typeID := obj.rec.ID, obj.rec.TypeID
	live, found := view.Find(id)

	if obj.rec.Destroyed {
		if !found {
			return
		}
		if err := view.Destroy(id); err != nil {
			p.report.AddObjectError(id, typeID, fmt.Errorf("destroy: %w", err))
			return
		}
		p.report.Destroyed++
		return
	}

	if found {
		if live.TypeID() != typeID {
			p.report.AddObjectError(id, typeID, fmt.Errorf("live object has type %q", live.TypeID()))
			return
		}
		p.report.Matched++
	} else {
		var err error
		live, err = view.Spawn(id, typeID, obj.rec.Spawn)
		if err != nil {
			p.report.AddObjectError(id, typeID, fmt.Errorf("spawn: %w", err))
			return
		}
		p.report.Spawned++
	}
	obj.live = live
	p.arena[id] = live
}

// replaceUnmatched destroys live objects of lp's level that the snapshot
// does not mention, limited to types this reconciler restores.
func (p *Plan) replaceUnmatched(view world.View, lp *LevelPlan) {
	var doomed []world.Object
	for _, live := range view.Objects(lp.Level) {
		if lp.mentioned[live.Identity()] {
			continue
		}
		desc, err := p.r.reg.Resolve(live.TypeID())
		if err != nil || !p.r.restores(desc) || !desc.Saves(live) {
			continue
		}
		doomed = append(doomed, live)
	}
	for _, live := range doomed {
		if err := view.Destroy(live.Identity()); err != nil {
			p.report.AddObjectError(live.Identity(), live.TypeID(), fmt.Errorf("destroy unmatched: %w", err))
			continue
		}
		p.report.Destroyed++
	}
}

// Apply is the second pass: it places every materialized object and sets
// its decoded fields, resolving references through the identities
// materialized in the first pass.
func (p *Plan) Apply(view world.View) {
	for _, lp := range p.restored {
		for _, obj := range lp.objects {
			if obj.live == nil {
				continue
			}
			if p.apply(view, obj) {
				p.report.Applied++
			}
		}
	}
}

func (p *Plan) apply(view world.View, obj *planObject) bool {
	id, typeID := obj.rec.ID, obj.rec.TypeID

	var owner world.Object
	if o := obj.rec.Spawn.Owner; !o.IsZero() {
		owner = p.lookup(view, o, true)
	}
	ok := true
	if err := obj.live.ApplyPlacement(obj.rec.Spawn, owner); err != nil {
		p.report.AddObjectError(id, typeID, fmt.Errorf("placement: %w", err))
		ok = false
	}
	for _, f := range obj.fields {
		if err := obj.live.Set(f.fd, p.resolve(view, f.v)); err != nil {
			p.report.AddObjectError(id, typeID, fmt.Errorf("set %s: %w", f.fd.Name, err))
			ok = false
		}
	}
	return ok
}

// Reconcile runs both passes.
func (p *Plan) Reconcile(view world.View) {
	p.Materialize(view)
	p.Apply(view)
}

func (p *Plan) lookup(view world.View, id domain.Identity, live bool) world.Object {
	if obj, ok := p.arena[id]; ok {
		return obj
	}
	if live {
		if obj, ok := view.Find(id); ok {
			return obj
		}
	}
	return nil
}

// resolve replaces reference placeholders inside v with live objects.
func (p *Plan) resolve(view world.View, v any) any {
	switch t := v.(type) {
	case codec.Ref:
		if obj := p.lookup(view, t.ID, p.liveRefs); obj != nil {
			return obj
		}
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = p.resolve(view, e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = p.resolve(view, e)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, e := range t {
			out[k] = p.resolve(view, e)
		}
		return out
	default:
		return v
	}
}
