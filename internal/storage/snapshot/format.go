package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/yndnr/slotkeep-go/internal/core/codec"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
)

// FormatVersion is the slot buffer layout version written by Encode.
const FormatVersion uint32 = 1

const (
	flagDestroyed uint8 = 1 << 0

	// headerFixedSize covers format version, schema version and the
	// metadata length.
	headerFixedSize = 12
)

// Header is the decoded slot buffer header.
type Header struct {
	FormatVersion uint32
	SchemaVersion uint32
	Metadata      domain.SlotMetadata
}

// Section is one level's records.
type Section struct {
	Level   string
	Records []domain.ObjectRecord
}

// Encoder builds a slot buffer. The zero value is not usable; call
// NewEncoder.
type Encoder struct {
	// MaxSize bounds the encoded size. Zero means unlimited.
	MaxSize int
}

// NewEncoder returns an encoder with the given size limit.
func NewEncoder(maxSize int) *Encoder {
	return &Encoder{MaxSize: maxSize}
}

// Encode serializes header metadata and sections. Sections are written
// in level order so equal input yields identical bytes.
func (e *Encoder) Encode(schemaVersion uint32, meta domain.SlotMetadata, sections []Section) ([]byte, error) {
	sorted := append([]Section(nil), sections...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Level == sorted[i-1].Level {
			return nil, fmt.Errorf("snapshot: duplicate level section %q", sorted[i].Level)
		}
	}

	meta.FormatVersion = FormatVersion
	meta.SchemaVersion = schemaVersion
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal metadata: %w", err)
	}

	w := codec.NewWriter(4096)
	w.PutU32(FormatVersion)
	w.PutU32(schemaVersion)
	w.PutBytes(metaJSON)

	w.PutU32(uint32(len(sorted)))
	offsets := make([]int, len(sorted))
	for i, s := range sorted {
		w.PutShortString(s.Level)
		offsets[i] = w.Reserve32()
		w.Reserve32()
	}

	for i, s := range sorted {
		start := w.Len()
		w.PutU32(uint32(len(s.Records)))
		for j := range s.Records {
			if err := putRecord(w, &s.Records[j]); err != nil {
				return nil, err
			}
			if err := e.checkSize(w.Len()); err != nil {
				return nil, err
			}
		}
		w.Patch32(offsets[i], uint32(start))
		w.Patch32(offsets[i]+4, uint32(w.Len()-start))
	}
	if err := e.checkSize(w.Len()); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (e *Encoder) checkSize(n int) error {
	if e.MaxSize > 0 && n > e.MaxSize {
		return domain.ErrBufferOverflow.WithDetailsf("%d bytes exceeds limit of %d", n, e.MaxSize)
	}
	return nil
}

func putRecord(w *codec.Writer, rec *domain.ObjectRecord) error {
	if err := rec.ID.Validate(); err != nil {
		return fmt.Errorf("snapshot: record: %w", err)
	}
	codec.PutIdentity(w, rec.ID)
	w.PutShortString(rec.TypeID)

	var flags uint8
	if rec.Destroyed {
		flags |= flagDestroyed
	}
	w.PutU8(flags)

	lenOff := w.Reserve32()
	start := w.Len()
	if !rec.Destroyed {
		putSpawn(w, &rec.Spawn)
	}
	w.Patch32(lenOff, uint32(w.Len()-start))

	if rec.Destroyed {
		w.PutU16(0)
		return nil
	}
	if len(rec.Fields) > 0xFFFF {
		return fmt.Errorf("snapshot: %s has %d fields", rec.ID, len(rec.Fields))
	}
	w.PutU16(uint16(len(rec.Fields)))
	for _, f := range rec.Fields {
		w.PutU16(f.Tag)
		w.PutBytes(f.Data)
	}
	return nil
}

// putSpawn writes the spawn-parameter blob:
//
//	[Class:2+n][Location:3*8][Rotation:4*8][Scale:3*8][HasOwner:1][Owner?][Hidden:1]
func putSpawn(w *codec.Writer, p *domain.SpawnParams) {
	w.PutShortString(p.Class)
	t := p.Transform
	for _, f := range [...]float64{
		t.Location.X, t.Location.Y, t.Location.Z,
		t.Rotation.X, t.Rotation.Y, t.Rotation.Z, t.Rotation.W,
		t.Scale.X, t.Scale.Y, t.Scale.Z,
	} {
		w.PutF64(f)
	}
	if p.Owner.IsZero() {
		w.PutU8(0)
	} else {
		w.PutU8(1)
		codec.PutIdentity(w, p.Owner)
	}
	w.PutBool(p.Hidden)
}

func readSpawn(blob []byte) (domain.SpawnParams, error) {
	var p domain.SpawnParams
	r := codec.NewReader(blob)
	var err error
	if p.Class, err = r.ShortString(); err != nil {
		return p, err
	}
	var v [10]float64
	for i := range v {
		if v[i], err = r.F64(); err != nil {
			return p, err
		}
	}
	p.Transform = domain.Transform{
		Location: domain.Vector{X: v[0], Y: v[1], Z: v[2]},
		Rotation: domain.Quat{X: v[3], Y: v[4], Z: v[5], W: v[6]},
		Scale:    domain.Vector{X: v[7], Y: v[8], Z: v[9]},
	}
	hasOwner, err := r.Bool()
	if err != nil {
		return p, err
	}
	if hasOwner {
		if p.Owner, err = codec.ReadIdentity(r); err != nil {
			return p, err
		}
	}
	if p.Hidden, err = r.Bool(); err != nil {
		return p, err
	}
	// Newer writers may append spawn attributes; ignore the rest.
	return p, nil
}
