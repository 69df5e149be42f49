package slot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
	"github.com/yndnr/slotkeep-go/pkg/crypto/adaptive"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, tr transport.Transport, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(tr, cfg, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func meta(id string, at time.Time) domain.SlotMetadata {
	return domain.SlotMetadata{SlotID: id, Name: "test", SavedAt: at}
}

func TestManager_SaveLoad(t *testing.T) {
	payload := bytes.Repeat([]byte("level-section "), 200)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"plain", Config{}},
		{"compressed", Config{Compress: true}},
		{"encrypted", Config{MasterKey: testKey}},
		{"compressed and encrypted", Config{Compress: true, MasterKey: testKey, Cipher: "chacha20-poly1305"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tr := transport.NewMemory()
			m := newTestManager(t, tr, tt.cfg)

			saved, err := m.Save(ctx, meta("slot-1", time.Now()), payload)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if saved.PayloadSize != int64(len(payload)) || saved.PayloadHash != Fingerprint(payload) {
				t.Fatalf("saved metadata = %+v", saved)
			}
			if saved.Compressed != tt.cfg.Compress || saved.Encrypted != (tt.cfg.MasterKey != nil) {
				t.Fatalf("flags in metadata = %v/%v", saved.Compressed, saved.Encrypted)
			}

			got, err := m.Load(ctx, "slot-1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatal("loaded payload differs")
			}

			if _, err := m.Verify(ctx, "slot-1"); err != nil {
				t.Fatalf("Verify: %v", err)
			}
			compressed, encrypted, err := m.Flags(ctx, "slot-1")
			if err != nil || compressed != tt.cfg.Compress || encrypted != (tt.cfg.MasterKey != nil) {
				t.Fatalf("Flags = %v, %v, %v", compressed, encrypted, err)
			}

			names, _ := tr.List(ctx, tempExt)
			if len(names) != 0 {
				t.Fatalf("temporaries left behind: %v", names)
			}
		})
	}
}

func TestManager_InvalidID(t *testing.T) {
	m := newTestManager(t, transport.NewMemory(), Config{})
	for _, id := range []string{"", "../etc", "a b", strings.Repeat("x", 65)} {
		if _, err := m.Save(context.Background(), meta(id, time.Now()), nil); !errors.Is(err, domain.ErrInvalidSlotID) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidSlotID", id, err)
		}
	}
	if err := ValidateID(Numbered(12)); err != nil {
		t.Fatalf("Numbered id rejected: %v", err)
	}
}

func TestManager_LoadMissing(t *testing.T) {
	m := newTestManager(t, transport.NewMemory(), Config{})
	if _, err := m.Load(context.Background(), "nope"); !errors.Is(err, domain.ErrSlotNotFound) {
		t.Fatalf("Load error = %v, want ErrSlotNotFound", err)
	}
	if err := m.Delete(context.Background(), "nope"); !errors.Is(err, domain.ErrSlotNotFound) {
		t.Fatalf("Delete error = %v, want ErrSlotNotFound", err)
	}
}

func TestManager_CorruptEnvelope(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemory()
	m := newTestManager(t, tr, Config{})
	if _, err := m.Save(ctx, meta("slot-1", time.Now()), []byte("payload")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	env, _ := tr.ReadAll(ctx, "slot-1.sav")
	env[10] ^= 0xFF
	tr.Write(ctx, "slot-1.sav", env)

	if _, err := m.Load(ctx, "slot-1"); !errors.Is(err, domain.ErrCorruptFormat) {
		t.Fatalf("Load error = %v, want ErrCorruptFormat", err)
	}
}

func TestManager_WrongKey(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemory()
	m := newTestManager(t, tr, Config{MasterKey: testKey})
	if _, err := m.Save(ctx, meta("slot-1", time.Now()), []byte("secret")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	other := newTestManager(t, tr, Config{MasterKey: bytes.Repeat([]byte{7}, 32)})
	if _, err := other.Load(ctx, "slot-1"); !errors.Is(err, domain.ErrCorruptFormat) {
		t.Fatalf("Load with wrong key error = %v, want ErrCorruptFormat", err)
	}
	noKey := newTestManager(t, tr, Config{})
	if _, err := noKey.Load(ctx, "slot-1"); !errors.Is(err, domain.ErrCorruptFormat) {
		t.Fatalf("Load without key error = %v, want ErrCorruptFormat", err)
	}

	// A payload copied to another slot id must not decrypt.
	env, _ := tr.ReadAll(ctx, "slot-1.sav")
	tr.Write(ctx, "slot-2.sav", env)
	if _, err := m.Load(ctx, "slot-2"); !errors.Is(err, domain.ErrCorruptFormat) {
		t.Fatalf("Load of moved payload error = %v, want ErrCorruptFormat", err)
	}
}

func TestManager_CipherPortable(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemory()
	aes := newTestManager(t, tr, Config{MasterKey: testKey, Cipher: adaptive.CipherAESGCM, Compress: true})
	if _, err := aes.Save(ctx, meta("slot-1", time.Now()), []byte("portable state")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	chacha := newTestManager(t, tr, Config{MasterKey: testKey, Cipher: adaptive.CipherChaCha20, Compress: true})
	got, err := chacha.Load(ctx, "slot-1")
	if err != nil {
		t.Fatalf("Load with another cipher: %v", err)
	}
	if string(got) != "portable state" {
		t.Fatalf("Load = %q", got)
	}
}

// faultyTransport fails the nth write, after storing a prefix of it.
type faultyTransport struct {
	*transport.Memory
	failWrite  int
	failRename int
	writes     int
	renames    int
}

var errInjected = errors.New("injected I/O failure")

func (f *faultyTransport) Write(ctx context.Context, name string, data []byte) error {
	f.writes++
	if f.writes == f.failWrite {
		f.Memory.Write(ctx, name, data[:len(data)/2])
		return errInjected
	}
	return f.Memory.Write(ctx, name, data)
}

func (f *faultyTransport) Rename(ctx context.Context, from, to string) error {
	f.renames++
	if f.renames == f.failRename {
		return errInjected
	}
	return f.Memory.Rename(ctx, from, to)
}

func TestManager_AtomicSave(t *testing.T) {
	tests := []struct {
		name       string
		failWrite  int
		failRename int
	}{
		{"payload temp write", 1, 0},
		{"metadata temp write", 2, 0},
		{"metadata rename", 0, 1},
		{"payload rename", 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := transport.NewMemory()
			good := newTestManager(t, mem, Config{Compress: true})
			if _, err := good.Save(ctx, meta("slot-1", time.Now()), []byte("committed state")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			beforePayload, _ := mem.ReadAll(ctx, "slot-1.sav")
			beforeMeta, _ := mem.ReadAll(ctx, "slot-1.meta")

			faulty := &faultyTransport{Memory: mem, failWrite: tt.failWrite, failRename: tt.failRename}
			m := newTestManager(t, faulty, Config{Compress: true})
			_, err := m.Save(ctx, meta("slot-1", time.Now()), []byte("new state that must not appear"))
			if !errors.Is(err, domain.ErrIO) {
				t.Fatalf("Save error = %v, want ErrIO", err)
			}

			afterPayload, _ := mem.ReadAll(ctx, "slot-1.sav")
			afterMeta, _ := mem.ReadAll(ctx, "slot-1.meta")
			if !bytes.Equal(beforePayload, afterPayload) || !bytes.Equal(beforeMeta, afterMeta) {
				t.Fatal("committed slot changed after failed save")
			}
			got, err := good.Load(ctx, "slot-1")
			if err != nil || string(got) != "committed state" {
				t.Fatalf("Load after failed save = %q, %v", got, err)
			}
			if _, err := good.Verify(ctx, "slot-1"); err != nil {
				t.Fatalf("Verify after failed save: %v", err)
			}
			if tmps, _ := mem.List(ctx, tempExt); len(tmps) != 0 {
				t.Fatalf("temporaries left behind: %v", tmps)
			}
		})
	}
}

func TestManager_FailedFirstSaveLeavesNoSlot(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory()
	m := newTestManager(t, &faultyTransport{Memory: mem, failRename: 2}, Config{})

	if _, err := m.Save(ctx, meta("slot-1", time.Now()), []byte("state")); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("Save error = %v, want ErrIO", err)
	}
	names, _ := mem.List(ctx, "")
	if len(names) != 0 {
		t.Fatalf("store after failed first save = %v, want empty", names)
	}
	entries, err := m.List(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("List = %+v, %v; want no slots", entries, err)
	}
}

func TestManager_MaxSlots(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, transport.NewMemory(), Config{MaxSlots: 2})
	for _, id := range []string{"a", "b"} {
		if _, err := m.Save(ctx, meta(id, time.Now()), []byte(id)); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	if _, err := m.Save(ctx, meta("c", time.Now()), []byte("c")); !errors.Is(err, domain.ErrSlotLimit) {
		t.Fatalf("third slot error = %v, want ErrSlotLimit", err)
	}
	if _, err := m.Save(ctx, meta("a", time.Now()), []byte("again")); err != nil {
		t.Fatalf("overwriting existing slot should not hit the limit: %v", err)
	}
	if err := m.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Save(ctx, meta("c", time.Now()), []byte("c")); err != nil {
		t.Fatalf("Save after delete: %v", err)
	}
}

func TestManager_List(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemory()
	m := newTestManager(t, tr, Config{})
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m.Save(ctx, meta("old", base), []byte("1"))
	m.Save(ctx, meta("new", base.Add(time.Hour)), []byte("2"))
	m.Save(ctx, meta("broken", base.Add(2*time.Hour)), []byte("3"))
	tr.Write(ctx, "broken.meta", []byte("{not json"))

	entries, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].Meta.SlotID != "new" || entries[1].Meta.SlotID != "old" {
		t.Fatalf("order = %s, %s; want new, old", entries[0].Meta.SlotID, entries[1].Meta.SlotID)
	}
	if entries[2].Meta.SlotID != "broken" || !errors.Is(entries[2].Err, domain.ErrCorruptFormat) {
		t.Fatalf("broken entry = %+v", entries[2])
	}
}

func TestManager_VerifyDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemory()
	m := newTestManager(t, tr, Config{})
	m.Save(ctx, meta("slot-1", time.Now()), []byte("one"))

	// Payload from a later save without the matching metadata.
	other := newTestManager(t, transport.NewMemory(), Config{})
	other.Save(ctx, meta("slot-1", time.Now()), []byte("two"))
	env, _ := other.tr.ReadAll(ctx, "slot-1.sav")
	tr.Write(ctx, "slot-1.sav", env)

	if _, err := m.Verify(ctx, "slot-1"); !errors.Is(err, domain.ErrCorruptFormat) {
		t.Fatalf("Verify error = %v, want ErrCorruptFormat", err)
	}
}
