package registry

import (
	"errors"
	"testing"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
)

func doorDescriptor() Descriptor {
	return Descriptor{
		TypeID: "Door",
		Flags:  FlagSkipDefaults,
		Fields: []FieldDescriptor{
			{Name: "isOpen", Tag: 1, Kind: KindBool, Default: false},
			{Name: "lockCode", Tag: 2, Kind: KindString},
		},
	}
}

func TestRegister_Resolve(t *testing.T) {
	r := New()
	d, err := r.Register(doorDescriptor())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Resolve("Door")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != d {
		t.Fatal("Resolve should return the registered descriptor")
	}
	if fd, ok := got.FieldByTag(1); !ok || fd.Name != "isOpen" {
		t.Fatalf("FieldByTag(1) = %+v, %v", fd, ok)
	}
	if fd, ok := got.FieldByName("lockCode"); !ok || fd.Tag != 2 {
		t.Fatalf("FieldByName(lockCode) = %+v, %v", fd, ok)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	r := New()
	first, err := r.Register(doorDescriptor())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := r.Register(doorDescriptor())
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if first != second {
		t.Fatal("identical re-registration should return the first descriptor")
	}

	conflicting := doorDescriptor()
	conflicting.Fields[0].Kind = KindInt32
	if _, err := r.Register(conflicting); err == nil {
		t.Fatal("expected error for conflicting registration")
	}
}

func TestResolve_UnknownType(t *testing.T) {
	r := New()
	_, err := r.Resolve("Removed")
	if !errors.Is(err, domain.ErrUnknownType) {
		t.Fatalf("Resolve error = %v, want ErrUnknownType", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
	}{
		{"empty type id", Descriptor{}},
		{"zero tag", Descriptor{TypeID: "A", Fields: []FieldDescriptor{{Name: "x", Tag: 0, Kind: KindBool}}}},
		{"duplicate tag", Descriptor{TypeID: "A", Fields: []FieldDescriptor{
			{Name: "x", Tag: 1, Kind: KindBool},
			{Name: "y", Tag: 1, Kind: KindInt32},
		}}},
		{"retired tag", Descriptor{TypeID: "A", Retired: []uint16{3}, Fields: []FieldDescriptor{
			{Name: "x", Tag: 3, Kind: KindBool},
		}}},
		{"invalid kind", Descriptor{TypeID: "A", Fields: []FieldDescriptor{{Name: "x", Tag: 1}}}},
		{"sequence without elem", Descriptor{TypeID: "A", Fields: []FieldDescriptor{{Name: "x", Tag: 1, Kind: KindSequence}}}},
		{"mapping with struct key", Descriptor{TypeID: "A", Fields: []FieldDescriptor{{
			Name: "x", Tag: 1, Kind: KindMapping,
			Key:  &FieldDescriptor{Kind: KindStruct, Struct: &StructDescriptor{}},
			Elem: &FieldDescriptor{Kind: KindInt32},
		}}}},
		{"struct without descriptor", Descriptor{TypeID: "A", Fields: []FieldDescriptor{{Name: "x", Tag: 1, Kind: KindStruct}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New().Register(tt.desc); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSeal(t *testing.T) {
	r := New()
	r.MustRegister(doorDescriptor())
	r.Seal()

	if !r.Sealed() {
		t.Fatal("Sealed() = false after Seal")
	}
	if _, err := r.Register(Descriptor{TypeID: "Chest"}); !errors.Is(err, ErrSealed) {
		t.Fatalf("Register after Seal error = %v, want ErrSealed", err)
	}
	if _, err := r.Resolve("Door"); err != nil {
		t.Fatalf("Resolve after Seal: %v", err)
	}
}

func TestOrderedFields(t *testing.T) {
	r := New()
	d := r.MustRegister(Descriptor{TypeID: "Chest", Fields: []FieldDescriptor{
		{Name: "c", Tag: 9, Kind: KindInt32},
		{Name: "a", Tag: 2, Kind: KindInt32},
		{Name: "b", Tag: 5, Kind: KindInt32},
	}})

	var tags []uint16
	for _, fd := range d.OrderedFields() {
		tags = append(tags, fd.Tag)
	}
	if len(tags) != 3 || tags[0] != 2 || tags[1] != 5 || tags[2] != 9 {
		t.Fatalf("OrderedFields tags = %v, want [2 5 9]", tags)
	}
}

func TestDescriptor_Saves(t *testing.T) {
	transient := Descriptor{TypeID: "Fx", Flags: FlagTransient}
	if transient.Saves(nil) {
		t.Fatal("transient type should not save")
	}

	vetoed := Descriptor{TypeID: "Pickup", ShouldSave: func(obj any) bool { return obj != "consumed" }}
	if vetoed.Saves("consumed") || !vetoed.Saves("fresh") {
		t.Fatal("ShouldSave predicate not honored")
	}

	always := Descriptor{TypeID: "Player", Flags: FlagAlwaysSave | FlagTransient}
	if !always.Saves(nil) {
		t.Fatal("FlagAlwaysSave should win")
	}
}
