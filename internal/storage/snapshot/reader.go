package snapshot

import (
	"encoding/json"
	"sort"

	"github.com/yndnr/slotkeep-go/internal/core/codec"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
)

// IndexEntry locates one level section.
type IndexEntry struct {
	Level  string
	Offset uint32
	Length uint32
}

// Buffer is an opened slot buffer. Sections are decoded on demand.
type Buffer struct {
	data   []byte
	header Header
	index  []IndexEntry
}

// Open parses and validates the header and level index. Any problem
// there is ErrCorruptFormat; level sections are not inspected.
func Open(data []byte) (*Buffer, error) {
	r := codec.NewReader(data)
	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	// Each index entry needs at least a 2-byte level length and two offsets.
	if uint64(count)*10 > uint64(r.Remaining()) {
		return nil, domain.ErrCorruptFormat.WithDetailsf("implausible level count %d", count)
	}
	index := make([]IndexEntry, 0, count)
	seen := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		level, err := r.ShortString()
		if err != nil {
			return nil, err
		}
		off, err := r.U32()
		if err != nil {
			return nil, err
		}
		n, err := r.U32()
		if err != nil {
			return nil, err
		}
		if uint64(off)+uint64(n) > uint64(len(data)) {
			return nil, domain.ErrCorruptFormat.WithDetailsf("level %q section [%d,+%d) out of bounds", level, off, n)
		}
		if _, dup := seen[level]; dup {
			return nil, domain.ErrCorruptFormat.WithDetailsf("duplicate level %q in index", level)
		}
		seen[level] = struct{}{}
		index = append(index, IndexEntry{Level: level, Offset: off, Length: n})
	}

	return &Buffer{data: data, header: hdr, index: index}, nil
}

// ReadHeader decodes only the header, for tools that list slots.
func ReadHeader(data []byte) (Header, error) {
	return readHeader(codec.NewReader(data))
}

func readHeader(r *codec.Reader) (Header, error) {
	var hdr Header
	var err error
	if hdr.FormatVersion, err = r.U32(); err != nil {
		return hdr, err
	}
	if hdr.FormatVersion == 0 || hdr.FormatVersion > FormatVersion {
		return hdr, domain.ErrCorruptFormat.WithDetailsf("unsupported format version %d", hdr.FormatVersion)
	}
	if hdr.SchemaVersion, err = r.U32(); err != nil {
		return hdr, err
	}
	metaJSON, err := r.Bytes()
	if err != nil {
		return hdr, err
	}
	if err := json.Unmarshal(metaJSON, &hdr.Metadata); err != nil {
		return hdr, domain.ErrCorruptFormat.WithCause(err)
	}
	return hdr, nil
}

// Header returns the decoded header.
func (b *Buffer) Header() Header { return b.header }

// Index returns the level index in stored order.
func (b *Buffer) Index() []IndexEntry {
	return append([]IndexEntry(nil), b.index...)
}

// Levels returns the stored level identifiers, sorted.
func (b *Buffer) Levels() []string {
	out := make([]string, 0, len(b.index))
	for _, e := range b.index {
		out = append(out, e.Level)
	}
	sort.Strings(out)
	return out
}

// HasLevel reports whether the buffer has a section for level.
func (b *Buffer) HasLevel(level string) bool {
	_, ok := b.entry(level)
	return ok
}

func (b *Buffer) entry(level string) (IndexEntry, bool) {
	for _, e := range b.index {
		if e.Level == level {
			return e, true
		}
	}
	return IndexEntry{}, false
}

// Size returns the buffer length in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Section decodes one level's records. Field payloads are returned
// undecoded; resolving them needs the type registry.
func (b *Buffer) Section(level string) ([]domain.ObjectRecord, error) {
	e, ok := b.entry(level)
	if !ok {
		return nil, nil
	}
	r := codec.NewReader(b.data[e.Offset : e.Offset+e.Length])
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	// Smallest record: two empty short strings, empty type id, flags,
	// spawn length and field count.
	if uint64(count)*13 > uint64(r.Remaining()) {
		return nil, domain.ErrCorruptFormat.WithDetailsf("level %q: implausible record count %d", level, count)
	}
	records := make([]domain.ObjectRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		rec, err := readRecord(r)
		if err != nil {
			return nil, err
		}
		if rec.ID.Level != level {
			return nil, domain.ErrCorruptFormat.WithDetailsf("record %s stored in level %q", rec.ID, level)
		}
		records = append(records, rec)
	}
	if r.Remaining() != 0 {
		return nil, domain.ErrCorruptFormat.WithDetailsf("level %q: %d trailing bytes", level, r.Remaining())
	}
	return records, nil
}

func readRecord(r *codec.Reader) (domain.ObjectRecord, error) {
	var rec domain.ObjectRecord
	var err error
	if rec.ID, err = codec.ReadIdentity(r); err != nil {
		return rec, err
	}
	if rec.TypeID, err = r.ShortString(); err != nil {
		return rec, err
	}
	flags, err := r.U8()
	if err != nil {
		return rec, err
	}
	rec.Destroyed = flags&flagDestroyed != 0

	spawnLen, err := r.U32()
	if err != nil {
		return rec, err
	}
	blob, err := r.Raw(int(spawnLen))
	if err != nil {
		return rec, err
	}
	if !rec.Destroyed {
		if rec.Spawn, err = readSpawn(blob); err != nil {
			return rec, err
		}
	}

	n, err := r.U16()
	if err != nil {
		return rec, err
	}
	if int(n)*6 > r.Remaining() {
		return rec, domain.ErrCorruptFormat.WithDetailsf("%s: implausible field count %d", rec.ID, n)
	}
	if n > 0 {
		rec.Fields = make([]domain.FieldEntry, 0, n)
	}
	for i := uint16(0); i < n; i++ {
		tag, err := r.U16()
		if err != nil {
			return rec, err
		}
		data, err := r.Bytes()
		if err != nil {
			return rec, err
		}
		rec.Fields = append(rec.Fields, domain.FieldEntry{Tag: tag, Data: data})
	}
	return rec, nil
}
