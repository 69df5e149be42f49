package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS stores blobs as files in one directory.
type FS struct {
	dir string
}

// NewFS creates dir if needed and returns a transport rooted at it.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, fmt.Errorf("transport: dir is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("transport: create dir: %w", err)
	}
	return &FS{dir: dir}, nil
}

// Dir returns the root directory.
func (t *FS) Dir() string { return t.dir }

func (t *FS) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("transport: invalid name %q", name)
	}
	return filepath.Join(t.dir, name), nil
}

// ReadAt implements Transport.
func (t *FS) ReadAt(ctx context.Context, name string, off int64, n int) ([]byte, error) {
	p, err := t.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, mapErr(err)
	}
	defer f.Close()

	if n <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("transport: read %s: %w", name, err)
	}
	return buf[:read], nil
}

// ReadAll implements Transport.
func (t *FS) ReadAll(ctx context.Context, name string) ([]byte, error) {
	p, err := t.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

// Write implements Transport. The file is synced before returning.
func (t *FS) Write(ctx context.Context, name string, data []byte) error {
	p, err := t.path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("transport: create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("transport: write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("transport: sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("transport: close %s: %w", name, err)
	}
	return nil
}

// Rename implements Transport. The directory is synced so the rename
// survives a crash.
func (t *FS) Rename(ctx context.Context, from, to string) error {
	src, err := t.path(from)
	if err != nil {
		return err
	}
	dst, err := t.path(to)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return mapErr(err)
	}
	return t.syncDir()
}

func (t *FS) syncDir() error {
	d, err := os.Open(t.dir)
	if err != nil {
		return fmt.Errorf("transport: open dir: %w", err)
	}
	defer d.Close()
	// Some platforms cannot fsync a directory; the rename itself has
	// already happened.
	_ = d.Sync()
	return nil
}

// Remove implements Transport.
func (t *FS) Remove(ctx context.Context, name string) error {
	p, err := t.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: remove %s: %w", name, err)
	}
	return nil
}

// Exists implements Transport.
func (t *FS) Exists(ctx context.Context, name string) (bool, error) {
	p, err := t.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("transport: stat %s: %w", name, err)
}

// List implements Transport.
func (t *FS) List(ctx context.Context, suffix string) ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("transport: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Transport.
func (t *FS) Close() error { return nil }

func mapErr(err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("transport: %w", err)
}
