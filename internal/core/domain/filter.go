package domain

import (
	"slices"
	"strings"
)

// LevelFilter selects which levels a save or load touches. The zero value
// selects every level.
type LevelFilter struct {
	Levels []string
}

// AllLevels returns a filter that matches every level.
func AllLevels() LevelFilter {
	return LevelFilter{}
}

// OnlyLevels returns a filter matching exactly the given levels.
func OnlyLevels(levels ...string) LevelFilter {
	return LevelFilter{Levels: levels}
}

// Includes reports whether level passes the filter.
func (f LevelFilter) Includes(level string) bool {
	if len(f.Levels) == 0 {
		return true
	}
	return slices.Contains(f.Levels, level)
}

// IsAll reports whether the filter matches every level.
func (f LevelFilter) IsAll() bool {
	return len(f.Levels) == 0
}

// ClassFilter selects object types by type identifier.
//
// Patterns are exact type identifiers or prefixes ending in '*'
// ("Enemy*" matches "EnemyGrunt" and "EnemyBoss"). An empty Allowed list
// allows every type. Ignored always wins over Allowed.
type ClassFilter struct {
	Allowed []string `koanf:"allowed" json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Ignored []string `koanf:"ignored" json:"ignored,omitempty" yaml:"ignored,omitempty"`
}

// IsAllowed reports whether objects of typeID pass the filter.
func (f ClassFilter) IsAllowed(typeID string) bool {
	for _, p := range f.Ignored {
		if matchPattern(p, typeID) {
			return false
		}
	}
	if len(f.Allowed) == 0 {
		return true
	}
	for _, p := range f.Allowed {
		if matchPattern(p, typeID) {
			return true
		}
	}
	return false
}

// Merge combines two filters. Entries of other take priority: a type
// allowed by other is removed from this filter's ignore list and vice versa.
func (f ClassFilter) Merge(other ClassFilter) ClassFilter {
	out := ClassFilter{}
	for _, p := range f.Allowed {
		if !slices.Contains(other.Ignored, p) {
			out.Allowed = append(out.Allowed, p)
		}
	}
	for _, p := range f.Ignored {
		if !slices.Contains(other.Allowed, p) {
			out.Ignored = append(out.Ignored, p)
		}
	}
	for _, p := range other.Allowed {
		if !slices.Contains(out.Allowed, p) {
			out.Allowed = append(out.Allowed, p)
		}
	}
	for _, p := range other.Ignored {
		if !slices.Contains(out.Ignored, p) {
			out.Ignored = append(out.Ignored, p)
		}
	}
	return out
}

func matchPattern(pattern, typeID string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(typeID, prefix)
	}
	return pattern == typeID
}
