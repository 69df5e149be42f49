package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RuntimePrefix marks names generated for objects spawned at runtime.
const RuntimePrefix = "rt_"

// Identity is the stable key used to match a serialized record to a live
// object across a save/load cycle.
//
// Level is the owning level identifier and never contains a '.'. Name is
// either the deterministic placed-object name assigned by the level, or a
// generated runtime name (RuntimePrefix + lowercase ULID) for objects that
// did not exist at level-load time. Component names may contain dots
// ("Door_3.Hinge").
type Identity struct {
	Level string `json:"level"`
	Name  string `json:"name"`
}

// NewIdentity returns the identity of a placed object.
func NewIdentity(level, name string) Identity {
	return Identity{Level: level, Name: name}
}

// Runtime names share one monotonic source so that names generated in the
// same millisecond still increase.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRuntimeIdentity generates a unique identity for an object spawned at
// runtime in the given level.
//
// Format: rt_{ulid_lowercase}, 29 characters. ULIDs sort by creation time,
// which keeps per-level enumeration order stable across saves.
func NewRuntimeIdentity(level string) Identity {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return Identity{Level: level, Name: RuntimePrefix + strings.ToLower(id.String())}
}

// ParseIdentity parses the "Level.Name" form produced by String.
func ParseIdentity(s string) (Identity, error) {
	i := strings.IndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return Identity{}, fmt.Errorf("domain: malformed identity %q", s)
	}
	return Identity{Level: s[:i], Name: s[i+1:]}, nil
}

// String returns "Level.Name".
func (id Identity) String() string {
	if id.IsZero() {
		return "<none>"
	}
	return id.Level + "." + id.Name
}

// IsZero reports whether the identity refers to no object.
func (id Identity) IsZero() bool {
	return id.Level == "" && id.Name == ""
}

// Spawned reports whether the identity was generated for a runtime-spawned object.
func (id Identity) Spawned() bool {
	return strings.HasPrefix(id.Name, RuntimePrefix)
}

// Validate checks that the identity can be written to a slot.
func (id Identity) Validate() error {
	if id.Level == "" || id.Name == "" {
		return fmt.Errorf("domain: identity requires level and name, got %q", id.String())
	}
	if strings.IndexByte(id.Level, '.') >= 0 {
		return fmt.Errorf("domain: level %q must not contain '.'", id.Level)
	}
	return nil
}

// Compare orders identities by level, then name.
func (id Identity) Compare(other Identity) int {
	if c := strings.Compare(id.Level, other.Level); c != 0 {
		return c
	}
	return strings.Compare(id.Name, other.Name)
}
