package domain

import (
	"strings"
	"testing"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		in      string
		want    Identity
		wantErr bool
	}{
		{"Level1.Door_3", Identity{Level: "Level1", Name: "Door_3"}, false},
		{"Level1.Door_3.Hinge", Identity{Level: "Level1", Name: "Door_3.Hinge"}, false},
		{"Level1", Identity{}, true},
		{".Door", Identity{}, true},
		{"Level1.", Identity{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIdentity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseIdentity(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.in {
				t.Fatalf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestNewRuntimeIdentity(t *testing.T) {
	a := NewRuntimeIdentity("Level1")
	b := NewRuntimeIdentity("Level1")

	if a == b {
		t.Fatal("runtime identities must be unique")
	}
	if !a.Spawned() {
		t.Fatal("runtime identity should report Spawned()")
	}
	if !strings.HasPrefix(a.Name, RuntimePrefix) || len(a.Name) != len(RuntimePrefix)+26 {
		t.Fatalf("unexpected runtime name %q", a.Name)
	}
	if a.Name != strings.ToLower(a.Name) {
		t.Fatalf("runtime name should be lowercase: %q", a.Name)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNewRuntimeIdentity_Increasing(t *testing.T) {
	prev := NewRuntimeIdentity("Level1")
	for i := 0; i < 1000; i++ {
		next := NewRuntimeIdentity("Level1")
		if next.Name <= prev.Name {
			t.Fatalf("identity %d: %q does not sort after %q", i, next.Name, prev.Name)
		}
		prev = next
	}
}

func TestIdentity_Validate(t *testing.T) {
	if err := (Identity{Level: "L", Name: "N"}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := (Identity{Level: "L.x", Name: "N"}).Validate(); err == nil {
		t.Fatal("expected error for dotted level")
	}
	if err := (Identity{Name: "N"}).Validate(); err == nil {
		t.Fatal("expected error for missing level")
	}
}

func TestIdentity_Compare(t *testing.T) {
	a := NewIdentity("A", "z")
	b := NewIdentity("B", "a")
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Fatal("Compare should order by level first")
	}
}
