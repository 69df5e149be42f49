// Package cmap provides a sharded concurrent map used to reserve keys.
//
// Conditional operations run under the owning shard's lock, so they are
// atomic with respect to other operations on the same key:
//
//	m := cmap.New[string, *Handle]()
//	if !m.SetIfAbsent(slotID, h) {
//		// already in flight
//	}
//	m.DeleteIf(slotID, func(cur *Handle) bool { return cur == h })
package cmap
