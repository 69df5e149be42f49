package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yndnr/slotkeep-go/internal/core/codec"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/registry"
)

// Errors returned by MemWorld.
var (
	ErrLevelNotLoaded = errors.New("world: level not loaded")
	ErrExists         = errors.New("world: object already exists")
	ErrNotFound       = errors.New("world: object not found")
)

// MemWorld is a map-backed View used by tests, tools and the demo host.
// Objects keep insertion order within a level.
type MemWorld struct {
	mu        sync.Mutex
	levels    map[string]*memLevel
	objects   map[domain.Identity]*MemObject
	onSpawned func(*MemObject)
}

type memLevel struct {
	order     []domain.Identity
	destroyed []Tombstone
}

// NewMemWorld returns a world with the given levels loaded.
func NewMemWorld(levels ...string) *MemWorld {
	w := &MemWorld{
		levels:  make(map[string]*memLevel),
		objects: make(map[domain.Identity]*MemObject),
	}
	for _, l := range levels {
		w.levels[l] = &memLevel{}
	}
	return w
}

// OnSpawned installs a hook run for every object created by Spawn, the
// way a host would run construction logic.
func (w *MemWorld) OnSpawned(fn func(*MemObject)) {
	w.mu.Lock()
	w.onSpawned = fn
	w.mu.Unlock()
}

// LoadLevel marks a level as loaded. Loading an already loaded level is
// a no-op.
func (w *MemWorld) LoadLevel(level string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.levels[level]; !ok {
		w.levels[level] = &memLevel{}
	}
}

// UnloadLevel drops a level with all of its objects and tombstones.
func (w *MemWorld) UnloadLevel(level string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	lv, ok := w.levels[level]
	if !ok {
		return
	}
	for _, id := range lv.order {
		delete(w.objects, id)
	}
	delete(w.levels, level)
}

// Place adds an object that exists at level load (placed in the editor,
// in host terms). Destroying it later leaves a tombstone.
func (w *MemWorld) Place(id domain.Identity, typeID string, p domain.SpawnParams) (*MemObject, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.add(id, typeID, p)
}

// MustPlace is like Place but panics on error.
func (w *MemWorld) MustPlace(id domain.Identity, typeID string, p domain.SpawnParams) *MemObject {
	o, err := w.Place(id, typeID, p)
	if err != nil {
		panic(err)
	}
	return o
}

func (w *MemWorld) add(id domain.Identity, typeID string, p domain.SpawnParams) (*MemObject, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	lv, ok := w.levels[id.Level]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLevelNotLoaded, id.Level)
	}
	if _, exists := w.objects[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	if p.Class == "" {
		p.Class = typeID
	}
	o := &MemObject{
		world:  w,
		id:     id,
		typeID: typeID,
		params: p,
		fields: make(map[string]any),
	}
	w.objects[id] = o
	lv.order = append(lv.order, id)
	for i, ts := range lv.destroyed {
		if ts.ID == id {
			lv.destroyed = append(lv.destroyed[:i], lv.destroyed[i+1:]...)
			break
		}
	}
	return o, nil
}

// Levels implements View.
func (w *MemWorld) Levels() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.levels))
	for l := range w.levels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Objects implements View.
func (w *MemWorld) Objects(level string) []Object {
	w.mu.Lock()
	defer w.mu.Unlock()
	lv, ok := w.levels[level]
	if !ok {
		return nil
	}
	out := make([]Object, 0, len(lv.order))
	for _, id := range lv.order {
		out = append(out, w.objects[id])
	}
	return out
}

// Destroyed implements View.
func (w *MemWorld) Destroyed(level string) []Tombstone {
	w.mu.Lock()
	defer w.mu.Unlock()
	lv, ok := w.levels[level]
	if !ok {
		return nil
	}
	return append([]Tombstone(nil), lv.destroyed...)
}

// Find implements View.
func (w *MemWorld) Find(id domain.Identity) (Object, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.objects[id]
	if !ok {
		return nil, false
	}
	return o, true
}

// Get returns the concrete object for id.
func (w *MemWorld) Get(id domain.Identity) (*MemObject, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.objects[id]
	return o, ok
}

// Spawn implements View.
func (w *MemWorld) Spawn(id domain.Identity, typeID string, p domain.SpawnParams) (Object, error) {
	w.mu.Lock()
	o, err := w.add(id, typeID, p)
	hook := w.onSpawned
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	o.spawned = true
	if hook != nil {
		hook(o)
	}
	return o, nil
}

// Destroy implements View. Destroying an object with a placed identity
// records a tombstone, even when a load respawned it; runtime identities
// simply vanish. Adding the identity again clears its tombstone.
func (w *MemWorld) Destroy(id domain.Identity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(w.objects, id)
	lv := w.levels[id.Level]
	for i, oid := range lv.order {
		if oid == id {
			lv.order = append(lv.order[:i], lv.order[i+1:]...)
			break
		}
	}
	if !id.Spawned() {
		lv.destroyed = append(lv.destroyed, Tombstone{ID: id, TypeID: o.typeID})
	}
	return nil
}

// Len returns the number of live objects.
func (w *MemWorld) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.objects)
}

// MemObject is the Object implementation of MemWorld. Field values are
// kept by field name in codec form.
type MemObject struct {
	world   *MemWorld
	id      domain.Identity
	typeID  string
	params  domain.SpawnParams
	spawned bool

	mu     sync.Mutex
	fields map[string]any
}

func (o *MemObject) Identity() domain.Identity { return o.id }

func (o *MemObject) TypeID() string { return o.typeID }

// Get implements Object. Unset fields read as their default.
func (o *MemObject) Get(fd *registry.FieldDescriptor) (any, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v, ok := o.fields[fd.Name]; ok {
		return v, nil
	}
	return codec.DefaultValue(fd), nil
}

// Set implements Object.
func (o *MemObject) Set(fd *registry.FieldDescriptor, v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[fd.Name] = v
	return nil
}

// SetValue assigns a field by name, for host-side gameplay code.
func (o *MemObject) SetValue(name string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[name] = v
}

// Value returns a field by name.
func (o *MemObject) Value(name string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.fields[name]
	return v, ok
}

// SpawnParams implements Object.
func (o *MemObject) SpawnParams() domain.SpawnParams {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.params
}

// ApplyPlacement implements Object.
func (o *MemObject) ApplyPlacement(p domain.SpawnParams, owner Object) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.params.Transform = p.Transform
	o.params.Hidden = p.Hidden
	if owner != nil {
		o.params.Owner = owner.Identity()
	} else {
		o.params.Owner = domain.Identity{}
	}
	return nil
}

// Spawned reports whether the object was created by Spawn.
func (o *MemObject) Spawned() bool { return o.spawned }
