// Package transport provides the byte-stream backends slots are stored on.
//
// A Transport stores named blobs. Writes are whole-object; Rename
// atomically replaces the destination, which is what the slot manager's
// temp-then-rename commit relies on.
package transport

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrNotFound = errors.New("transport: not found")
	ErrClosed   = errors.New("transport: closed")
)

// Transport is a flat namespace of named blobs.
type Transport interface {
	// ReadAt reads up to n bytes of name starting at off. Reading past
	// the end returns the available bytes.
	ReadAt(ctx context.Context, name string, off int64, n int) ([]byte, error)

	// ReadAll returns the whole blob.
	ReadAll(ctx context.Context, name string) ([]byte, error)

	// Write stores data under name durably, replacing any previous blob.
	Write(ctx context.Context, name string, data []byte) error

	// Rename atomically moves from to to, replacing to.
	Rename(ctx context.Context, from, to string) error

	// Remove deletes name. Removing a missing blob is not an error.
	Remove(ctx context.Context, name string) error

	Exists(ctx context.Context, name string) (bool, error)

	// List returns the sorted names ending in suffix.
	List(ctx context.Context, suffix string) ([]string, error)

	Close() error
}

func clip(data []byte, off int64, n int) []byte {
	if off < 0 || off >= int64(len(data)) || n <= 0 {
		return []byte{}
	}
	end := off + int64(n)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return append([]byte(nil), data[off:end]...)
}
