package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yndnr/slotkeep-go/internal/core/codec"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/registry"
	"github.com/yndnr/slotkeep-go/internal/core/world"
	"github.com/yndnr/slotkeep-go/internal/storage/snapshot"
)

// cancelCheckEvery bounds how many objects are captured between context
// checks.
const cancelCheckEvery = 256

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Registry resolves type descriptors. Nil uses registry.Default().
	Registry *registry.Registry

	// Classes filters saved types. Types flagged AlwaysSave bypass it.
	Classes domain.ClassFilter

	// MaxBufferSize bounds the encoded slot buffer. Zero is unlimited.
	MaxBufferSize int

	// SchemaVersion is the application schema version written to the header.
	SchemaVersion uint32

	Logger *slog.Logger
}

// Writer captures live world state into slot buffers.
type Writer struct {
	reg    *registry.Registry
	opts   WriterOptions
	logger *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(opts WriterOptions) *Writer {
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{reg: reg, opts: opts, logger: logger}
}

// Capture is the encoded state of the selected levels at one instant.
// It holds no live objects and may be handed to a worker.
type Capture struct {
	sections      []snapshot.Section
	schemaVersion uint32
	maxSize       int
}

// Capture walks the loaded levels accepted by filter and encodes every
// saveable object. It must run on the world thread. Per-object failures
// are recorded in report; cancellation of ctx aborts the walk.
func (w *Writer) Capture(ctx context.Context, view world.View, filter domain.LevelFilter, report *domain.Report) (*Capture, error) {
	levels := append([]string(nil), view.Levels()...)
	sort.Strings(levels)

	c := &Capture{schemaVersion: w.opts.SchemaVersion, maxSize: w.opts.MaxBufferSize}
	visited := 0
	for _, level := range levels {
		if !filter.Includes(level) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("service: capture: %w", err)
		}

		var records []domain.ObjectRecord
		live := make(map[domain.Identity]bool)
		for _, obj := range view.Objects(level) {
			live[obj.Identity()] = true
			visited++
			if visited%cancelCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("service: capture: %w", err)
				}
			}
			if rec, ok := w.captureObject(obj, report); ok {
				records = append(records, rec)
			}
		}
		for _, ts := range view.Destroyed(level) {
			// A load may have brought a destroyed object back.
			if live[ts.ID] || !w.savesType(ts.TypeID) {
				continue
			}
			records = append(records, domain.ObjectRecord{ID: ts.ID, TypeID: ts.TypeID, Destroyed: true})
			report.Tombstones++
		}

		sort.SliceStable(records, func(i, j int) bool {
			return records[i].ID.Compare(records[j].ID) < 0
		})
		report.Saved += len(records)
		c.sections = append(c.sections, snapshot.Section{Level: level, Records: records})
	}

	w.logger.Debug("world captured",
		"levels", len(c.sections),
		"records", report.Saved,
		"tombstones", report.Tombstones,
		"object_errors", len(report.Objects))
	return c, nil
}

// captureObject builds one object's record. It returns false when the
// object is filtered out or failed.
func (w *Writer) captureObject(obj world.Object, report *domain.Report) (domain.ObjectRecord, bool) {
	id, typeID := obj.Identity(), obj.TypeID()
	if err := id.Validate(); err != nil {
		report.AddObjectError(id, typeID, err)
		return domain.ObjectRecord{}, false
	}
	desc, err := w.reg.Resolve(typeID)
	if err != nil {
		report.UnknownTypes++
		w.logger.Debug("skipping object of unregistered type", "object", id.String(), "type", typeID)
		return domain.ObjectRecord{}, false
	}
	if !desc.Flags.Has(registry.FlagAlwaysSave) && !w.opts.Classes.IsAllowed(typeID) {
		return domain.ObjectRecord{}, false
	}
	if !desc.Saves(obj) {
		return domain.ObjectRecord{}, false
	}

	rec := domain.ObjectRecord{
		ID:     id,
		TypeID: typeID,
		Spawn:  obj.SpawnParams(),
	}
	skipDefaults := desc.Flags.Has(registry.FlagSkipDefaults)
	for _, fd := range desc.OrderedFields() {
		v, err := obj.Get(fd)
		if err != nil {
			report.AddObjectError(id, typeID, fmt.Errorf("get %s: %w", fd.Name, err))
			return domain.ObjectRecord{}, false
		}
		if skipDefaults && codec.Equal(fd, v, codec.DefaultValue(fd)) {
			continue
		}
		data, err := codec.EncodeField(fd, v)
		if err != nil {
			report.AddObjectError(id, typeID, fmt.Errorf("encode %s: %w", fd.Name, err))
			return domain.ObjectRecord{}, false
		}
		rec.Fields = append(rec.Fields, domain.FieldEntry{Tag: fd.Tag, Data: data})
	}
	return rec, true
}

// savesType reports whether tombstones of typeID belong in a save.
func (w *Writer) savesType(typeID string) bool {
	desc, err := w.reg.Resolve(typeID)
	if err != nil {
		return false
	}
	if desc.Flags.Has(registry.FlagAlwaysSave) {
		return true
	}
	return !desc.Flags.Has(registry.FlagTransient) && w.opts.Classes.IsAllowed(typeID)
}

// Levels returns the captured levels in order.
func (c *Capture) Levels() []string {
	out := make([]string, len(c.sections))
	for i, s := range c.sections {
		out[i] = s.Level
	}
	return out
}

// HasLevel reports whether level was captured.
func (c *Capture) HasLevel(level string) bool {
	for _, s := range c.sections {
		if s.Level == level {
			return true
		}
	}
	return false
}

// Section returns the captured records of level.
func (c *Capture) Section(level string) (snapshot.Section, bool) {
	for _, s := range c.sections {
		if s.Level == level {
			return s, true
		}
	}
	return snapshot.Section{}, false
}

// AddSection merges a section captured earlier, e.g. from a level that
// has since streamed out. It is ignored when the level is already present.
func (c *Capture) AddSection(s snapshot.Section) bool {
	if c.HasLevel(s.Level) {
		return false
	}
	c.sections = append(c.sections, s)
	sort.SliceStable(c.sections, func(i, j int) bool { return c.sections[i].Level < c.sections[j].Level })
	return true
}

// Records returns the number of captured records.
func (c *Capture) Records() int {
	n := 0
	for _, s := range c.sections {
		n += len(s.Records)
	}
	return n
}

// Encode produces the slot buffer. Levels and ObjectCount of meta are
// filled from the capture. Safe to call off the world thread.
func (c *Capture) Encode(meta domain.SlotMetadata) ([]byte, error) {
	meta.Levels = c.Levels()
	meta.ObjectCount = c.Records()
	return snapshot.NewEncoder(c.maxSize).Encode(c.schemaVersion, meta, c.sections)
}

// Write captures and encodes in one call. It must run on the world thread.
func (w *Writer) Write(ctx context.Context, view world.View, filter domain.LevelFilter, meta domain.SlotMetadata) ([]byte, *domain.Report, error) {
	report := domain.NewReport(domain.OpSave, meta.SlotID)
	c, err := w.Capture(ctx, view, filter, report)
	if err != nil {
		return nil, report.Fail(err), err
	}
	data, err := c.Encode(meta)
	if err != nil {
		return nil, report.Fail(err), err
	}
	report.Levels = c.Levels()
	report.BytesWritten = int64(len(data))
	report.Finish()
	return data, report, nil
}
