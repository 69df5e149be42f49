package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory keeps blobs in a map. Used by tests, tools and the demo host.
type Memory struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// NewMemory returns an empty in-memory transport.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (t *Memory) get(name string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}
	data, ok := t.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, nil
}

// ReadAt implements Transport.
func (t *Memory) ReadAt(ctx context.Context, name string, off int64, n int) ([]byte, error) {
	data, err := t.get(name)
	if err != nil {
		return nil, err
	}
	return clip(data, off, n), nil
}

// ReadAll implements Transport.
func (t *Memory) ReadAll(ctx context.Context, name string) ([]byte, error) {
	data, err := t.get(name)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// Write implements Transport.
func (t *Memory) Write(ctx context.Context, name string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.blobs[name] = append([]byte(nil), data...)
	return nil
}

// Rename implements Transport.
func (t *Memory) Rename(ctx context.Context, from, to string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	data, ok := t.blobs[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	t.blobs[to] = data
	delete(t.blobs, from)
	return nil
}

// Remove implements Transport.
func (t *Memory) Remove(ctx context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	delete(t.blobs, name)
	return nil
}

// Exists implements Transport.
func (t *Memory) Exists(ctx context.Context, name string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return false, ErrClosed
	}
	_, ok := t.blobs[name]
	return ok, nil
}

// List implements Transport.
func (t *Memory) List(ctx context.Context, suffix string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}
	var names []string
	for name := range t.blobs {
		if strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Transport.
func (t *Memory) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
