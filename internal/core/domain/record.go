package domain

// Vector is a 3-component vector in world units.
type Vector struct {
	X, Y, Z float64
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the rotation that leaves orientation unchanged.
var IdentityQuat = Quat{W: 1}

// Transform places an object in its level.
type Transform struct {
	Location Vector
	Rotation Quat
	Scale    Vector
}

// IdentityTransform is the origin with no rotation and unit scale.
var IdentityTransform = Transform{
	Rotation: IdentityQuat,
	Scale:    Vector{X: 1, Y: 1, Z: 1},
}

// SpawnParams carries what the reconciler needs to recreate an object that
// is absent from the live world, and to move or reattach one that exists.
type SpawnParams struct {
	// Class is the host-side class used to spawn the object. Often equal
	// to the record's type identifier.
	Class string

	Transform Transform

	// Owner is the identity of the owning object (zero when unowned).
	// Components are owned by their actor.
	Owner Identity

	// Hidden mirrors the host's hidden-in-game flag.
	Hidden bool
}

// FieldEntry is one encoded field inside a record. Data starts with the
// field's kind byte followed by its codec encoding.
type FieldEntry struct {
	Tag  uint16
	Data []byte
}

// ObjectRecord is one serialized object instance. It only exists inside a
// slot buffer or an in-memory snapshot and is re-derived on every save.
type ObjectRecord struct {
	ID     Identity
	TypeID string

	// Destroyed marks a tombstone: the object existed at level load and
	// was destroyed before the save. Tombstones carry no fields.
	Destroyed bool

	Spawn  SpawnParams
	Fields []FieldEntry
}

// Field returns the entry for tag, if present.
func (r *ObjectRecord) Field(tag uint16) (FieldEntry, bool) {
	for _, f := range r.Fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return FieldEntry{}, false
}
