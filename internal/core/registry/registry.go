// Package registry maps stable type identifiers to immutable
// serialization descriptors.
//
// Registration happens once at startup, before any save or load runs.
// Sealing the registry freezes it; from then on Resolve is a lock-free
// read of an immutable map, so writers and readers share descriptors
// without synchronization.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
)

// ErrSealed is returned by Register once the registry has been sealed.
var ErrSealed = errors.New("registry: sealed")

// Registry holds descriptors keyed by type identifier.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]*Descriptor
	sealed atomic.Bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register validates d and stores it. Registering a descriptor with the
// same shape as an existing one returns the existing descriptor; a
// conflicting shape for the same type id is an error.
func (r *Registry) Register(d Descriptor) (*Descriptor, error) {
	if r.sealed.Load() {
		return nil, ErrSealed
	}
	desc := d
	desc.Fields = append([]FieldDescriptor(nil), d.Fields...)
	if err := desc.prepare(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return nil, ErrSealed
	}
	if existing, ok := r.types[desc.TypeID]; ok {
		if sameShape(existing, &desc) {
			return existing, nil
		}
		return nil, fmt.Errorf("registry: conflicting registration for type %q", desc.TypeID)
	}
	r.types[desc.TypeID] = &desc
	return &desc, nil
}

// MustRegister is Register that panics on error. Intended for package
// init blocks of host code.
func (r *Registry) MustRegister(d Descriptor) *Descriptor {
	desc, err := r.Register(d)
	if err != nil {
		panic(err)
	}
	return desc
}

// Seal freezes the registry. Idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Sealed reports whether the registry is frozen.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Resolve returns the descriptor for typeID. Unknown identifiers (for
// example types removed since a save was made) yield a domain
// ErrUnknownType so callers can skip the object instead of failing.
func (r *Registry) Resolve(typeID string) (*Descriptor, error) {
	var (
		d  *Descriptor
		ok bool
	)
	if r.sealed.Load() {
		d, ok = r.types[typeID]
	} else {
		r.mu.RLock()
		d, ok = r.types[typeID]
		r.mu.RUnlock()
	}
	if !ok {
		return nil, domain.ErrUnknownType.WithDetails(typeID)
	}
	return d, nil
}

// TypeIDs returns every registered type id, sorted.
func (r *Registry) TypeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
