// Package world defines the capability interfaces the persistence core
// needs from a host simulation, plus an in-memory implementation.
//
// Every method of View and Object must be called on the host's world
// thread. The core never retains an Object across frames.
package world

import (
	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/registry"
)

// Object is one live, serializable object.
type Object interface {
	Identity() domain.Identity
	TypeID() string

	// Get returns the live value of a field in codec form.
	Get(fd *registry.FieldDescriptor) (any, error)
	// Set assigns a decoded value. Object references arrive as Object
	// (or nil) once resolved.
	Set(fd *registry.FieldDescriptor, v any) error

	// SpawnParams describes how to recreate the object elsewhere.
	SpawnParams() domain.SpawnParams
	// ApplyPlacement moves and reattaches an existing object. owner is
	// nil when the object has no owner or the owner is not present.
	ApplyPlacement(p domain.SpawnParams, owner Object) error
}

// Tombstone names a placed object destroyed since its level loaded.
type Tombstone struct {
	ID     domain.Identity
	TypeID string
}

// View is the host's world as seen by the persistence core.
type View interface {
	// Levels returns the currently loaded levels.
	Levels() []string
	// Objects enumerates a level's objects in a stable order.
	Objects(level string) []Object
	// Destroyed returns tombstones for a level in a stable order.
	Destroyed(level string) []Tombstone

	Find(id domain.Identity) (Object, bool)
	Spawn(id domain.Identity, typeID string, p domain.SpawnParams) (Object, error)
	Destroy(id domain.Identity) error
}
