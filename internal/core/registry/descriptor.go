package registry

import (
	"fmt"
	"sort"
)

// Flags tune how the writer treats every instance of a type.
type Flags uint32

const (
	// FlagAlwaysSave saves instances even when a class filter or the
	// type's ShouldSave predicate would exclude them.
	FlagAlwaysSave Flags = 1 << iota
	// FlagSkipDefaults omits fields whose value equals the field default.
	FlagSkipDefaults
	// FlagTransient excludes every instance from saves.
	FlagTransient
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// FieldDescriptor describes one serializable field.
//
// Tag is the stable wire identifier. A tag must never be reused for a
// different kind across versions; retire it instead (Descriptor.Retired).
type FieldDescriptor struct {
	Name string
	Tag  uint16
	Kind FieldKind

	// Elem is the element descriptor of a sequence, or the value
	// descriptor of a mapping. Its Tag is ignored.
	Elem *FieldDescriptor
	// Key is the key descriptor of a mapping. Only scalar kinds.
	Key *FieldDescriptor
	// Struct describes the nested fields of a struct kind.
	Struct *StructDescriptor

	// Default is the value a freshly spawned instance holds. It backs
	// skip-defaults saving and is applied for fields missing on load.
	// Nil means the zero value of the kind.
	Default any

	// EnumValues names the valid ordinals of an enum kind. Empty means
	// any ordinal is accepted.
	EnumValues []string
}

// StructDescriptor describes the fields of a nested structure. Nested
// fields follow the same tag rules as top-level fields.
type StructDescriptor struct {
	Name   string
	Fields []FieldDescriptor

	byTag map[uint16]*FieldDescriptor
}

// FieldByTag returns the nested field with the given tag.
func (s *StructDescriptor) FieldByTag(tag uint16) (*FieldDescriptor, bool) {
	if s.byTag == nil {
		for i := range s.Fields {
			if s.Fields[i].Tag == tag {
				return &s.Fields[i], true
			}
		}
		return nil, false
	}
	fd, ok := s.byTag[tag]
	return fd, ok
}

// Descriptor is the immutable, per-type serialization descriptor.
type Descriptor struct {
	// TypeID is stable across versions and written with every record.
	TypeID string

	// Fields in declaration order. Encoding order follows tag order.
	Fields []FieldDescriptor

	Flags Flags

	// Retired lists tags that older versions used and must never be
	// assigned again.
	Retired []uint16

	// ShouldSave lets a type veto saving a particular live instance (the
	// host object is passed as-is). Nil saves every instance.
	ShouldSave func(obj any) bool

	byTag   map[uint16]*FieldDescriptor
	ordered []*FieldDescriptor
}

// FieldByTag returns the field with the given tag.
func (d *Descriptor) FieldByTag(tag uint16) (*FieldDescriptor, bool) {
	fd, ok := d.byTag[tag]
	return fd, ok
}

// FieldByName returns the field with the given name.
func (d *Descriptor) FieldByName(name string) (*FieldDescriptor, bool) {
	for _, fd := range d.ordered {
		if fd.Name == name {
			return fd, true
		}
	}
	return nil, false
}

// OrderedFields returns the fields sorted by tag. The slice is shared and
// must not be modified.
func (d *Descriptor) OrderedFields() []*FieldDescriptor {
	return d.ordered
}

// Saves reports whether the writer should save obj, ignoring class filters.
func (d *Descriptor) Saves(obj any) bool {
	if d.Flags.Has(FlagAlwaysSave) {
		return true
	}
	if d.Flags.Has(FlagTransient) {
		return false
	}
	if d.ShouldSave != nil {
		return d.ShouldSave(obj)
	}
	return true
}

// prepare validates d and builds its lookup tables.
func (d *Descriptor) prepare() error {
	if d.TypeID == "" {
		return fmt.Errorf("registry: type id is required")
	}
	retired := make(map[uint16]struct{}, len(d.Retired))
	for _, t := range d.Retired {
		retired[t] = struct{}{}
	}

	d.byTag = make(map[uint16]*FieldDescriptor, len(d.Fields))
	d.ordered = make([]*FieldDescriptor, 0, len(d.Fields))
	for i := range d.Fields {
		fd := &d.Fields[i]
		if _, ok := retired[fd.Tag]; ok {
			return fmt.Errorf("registry: %s.%s uses retired tag %d", d.TypeID, fd.Name, fd.Tag)
		}
		if _, dup := d.byTag[fd.Tag]; dup {
			return fmt.Errorf("registry: %s has duplicate tag %d", d.TypeID, fd.Tag)
		}
		if err := validateField(fd, true); err != nil {
			return fmt.Errorf("registry: %s.%s: %w", d.TypeID, fd.Name, err)
		}
		d.byTag[fd.Tag] = fd
		d.ordered = append(d.ordered, fd)
	}
	sort.Slice(d.ordered, func(i, j int) bool { return d.ordered[i].Tag < d.ordered[j].Tag })
	return nil
}

func validateField(fd *FieldDescriptor, tagged bool) error {
	if tagged && fd.Tag == 0 {
		return fmt.Errorf("tag 0 is reserved")
	}
	if !fd.Kind.Valid() {
		return fmt.Errorf("invalid kind %s", fd.Kind)
	}
	switch fd.Kind {
	case KindSequence:
		if fd.Elem == nil {
			return fmt.Errorf("sequence requires Elem")
		}
		return validateField(fd.Elem, false)
	case KindMapping:
		if fd.Key == nil || fd.Elem == nil {
			return fmt.Errorf("mapping requires Key and Elem")
		}
		if !fd.Key.Kind.IsScalar() {
			return fmt.Errorf("mapping key kind %s is not scalar", fd.Key.Kind)
		}
		if err := validateField(fd.Key, false); err != nil {
			return err
		}
		return validateField(fd.Elem, false)
	case KindStruct:
		if fd.Struct == nil {
			return fmt.Errorf("struct requires Struct descriptor")
		}
		return fd.Struct.prepare()
	}
	return nil
}

func (s *StructDescriptor) prepare() error {
	s.byTag = make(map[uint16]*FieldDescriptor, len(s.Fields))
	for i := range s.Fields {
		fd := &s.Fields[i]
		if _, dup := s.byTag[fd.Tag]; dup {
			return fmt.Errorf("struct %s has duplicate tag %d", s.Name, fd.Tag)
		}
		if err := validateField(fd, true); err != nil {
			return fmt.Errorf("struct %s.%s: %w", s.Name, fd.Name, err)
		}
		s.byTag[fd.Tag] = fd
	}
	return nil
}

// sameShape reports whether two descriptors would encode identically.
// Used to make re-registration idempotent.
func sameShape(a, b *Descriptor) bool {
	if a.TypeID != b.TypeID || a.Flags != b.Flags || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if !sameField(&a.Fields[i], &b.Fields[i]) {
			return false
		}
	}
	return true
}

func sameField(a, b *FieldDescriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || a.Tag != b.Tag || a.Kind != b.Kind {
		return false
	}
	if !sameField(a.Elem, b.Elem) || !sameField(a.Key, b.Key) {
		return false
	}
	if (a.Struct == nil) != (b.Struct == nil) {
		return false
	}
	if a.Struct != nil {
		if len(a.Struct.Fields) != len(b.Struct.Fields) {
			return false
		}
		for i := range a.Struct.Fields {
			if !sameField(&a.Struct.Fields[i], &b.Struct.Fields[i]) {
				return false
			}
		}
	}
	return true
}
