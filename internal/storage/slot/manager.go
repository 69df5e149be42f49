package slot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
	"github.com/yndnr/slotkeep-go/pkg/crypto/adaptive"
)

// Config configures the slot manager.
type Config struct {
	// MaxSlots limits the number of distinct slots. Zero is unlimited.
	MaxSlots int

	// Compress enables zstd compression of payloads.
	Compress bool

	// MaxPayloadSize bounds decompressed payloads. Zero is unlimited.
	MaxPayloadSize int64

	// MasterKey enables encryption. Each slot uses a key derived from it.
	MasterKey []byte

	// Cipher selects the AEAD. Empty picks one from the platform.
	Cipher adaptive.CipherType
}

// Entry is one row of List. Err is set when the slot's metadata could not
// be read; Meta then only carries the slot id.
type Entry struct {
	Meta domain.SlotMetadata
	Err  error
}

// Manager names, stores and commits slots on a transport.
type Manager struct {
	tr     transport.Transport
	cfg    Config
	sealer *sealer
	logger *slog.Logger
}

// NewManager returns a manager over tr. A nil logger uses slog.Default().
func NewManager(tr transport.Transport, cfg Config, logger *slog.Logger) (*Manager, error) {
	if tr == nil {
		return nil, fmt.Errorf("slot: transport is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSlots < 0 {
		return nil, fmt.Errorf("slot: max slots must not be negative")
	}
	if len(cfg.MasterKey) > 0 && len(cfg.MasterKey) < adaptive.MinKeyLength {
		return nil, adaptive.ErrKeyTooShort
	}
	s, err := newSealer(cfg.Compress, cfg.MaxPayloadSize, cfg.MasterKey, cfg.Cipher)
	if err != nil {
		return nil, err
	}
	return &Manager{tr: tr, cfg: cfg, sealer: s, logger: logger}, nil
}

// Close releases codec resources. The transport is owned by the caller.
func (m *Manager) Close() error {
	m.sealer.close()
	return nil
}

// Fingerprint returns the murmur3 fingerprint stored in metadata.
func Fingerprint(payload []byte) string {
	h1, h2 := murmur3.Sum128(payload)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Save atomically replaces slot meta.SlotID with payload. The returned
// metadata has the payload fields filled in.
func (m *Manager) Save(ctx context.Context, meta domain.SlotMetadata, payload []byte) (*domain.SlotMetadata, error) {
	id := meta.SlotID
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := m.checkLimit(ctx, id); err != nil {
		return nil, err
	}

	env, err := m.sealer.seal(id, payload)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	meta.PayloadSize = int64(len(payload))
	meta.PayloadHash = Fingerprint(payload)
	meta.Compressed = m.cfg.Compress
	meta.Encrypted = m.sealer.encrypted()
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}

	payloadTmp := payloadName(id) + tempExt
	metaTmp := metaName(id) + tempExt
	cleanup := func() {
		_ = m.tr.Remove(context.Background(), payloadTmp)
		_ = m.tr.Remove(context.Background(), metaTmp)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prevMeta, err := m.tr.ReadAll(ctx, metaName(id))
	hadMeta := err == nil
	if err != nil && !errors.Is(err, transport.ErrNotFound) {
		return nil, domain.ErrIO.WithDetails("read metadata").WithCause(err)
	}
	if err := m.tr.Write(ctx, payloadTmp, env); err != nil {
		cleanup()
		return nil, domain.ErrIO.WithDetails("write payload").WithCause(err)
	}
	if err := m.tr.Write(ctx, metaTmp, metaJSON); err != nil {
		cleanup()
		return nil, domain.ErrIO.WithDetails("write metadata").WithCause(err)
	}
	// Metadata commits first; a failed payload commit puts the previous
	// metadata back so the pair never describes different payloads.
	if err := m.tr.Rename(ctx, metaTmp, metaName(id)); err != nil {
		cleanup()
		return nil, domain.ErrIO.WithDetails("commit metadata").WithCause(err)
	}
	if err := m.tr.Rename(ctx, payloadTmp, payloadName(id)); err != nil {
		cleanup()
		if rerr := m.restoreMeta(id, prevMeta, hadMeta); rerr != nil {
			m.logger.Error("slot metadata not restored", "slot", id, "error", rerr)
		}
		return nil, domain.ErrIO.WithDetails("commit payload").WithCause(err)
	}

	m.logger.Info("slot saved",
		"slot", id,
		"payload_bytes", len(payload),
		"stored_bytes", len(env),
		"compressed", meta.Compressed,
		"encrypted", meta.Encrypted)
	return &meta, nil
}

// restoreMeta reinstates prev as the metadata of id, or removes the
// metadata when the slot had none.
func (m *Manager) restoreMeta(id string, prev []byte, existed bool) error {
	ctx := context.Background()
	if !existed {
		return m.tr.Remove(ctx, metaName(id))
	}
	tmp := metaName(id) + tempExt
	if err := m.tr.Write(ctx, tmp, prev); err != nil {
		_ = m.tr.Remove(ctx, tmp)
		return err
	}
	return m.tr.Rename(ctx, tmp, metaName(id))
}

func (m *Manager) checkLimit(ctx context.Context, id string) error {
	if m.cfg.MaxSlots == 0 {
		return nil
	}
	exists, err := m.tr.Exists(ctx, payloadName(id))
	if err != nil {
		return domain.ErrIO.WithCause(err)
	}
	if exists {
		return nil
	}
	ids, err := m.ids(ctx)
	if err != nil {
		return err
	}
	if len(ids) >= m.cfg.MaxSlots {
		return domain.ErrSlotLimit.WithDetailsf("%d of %d slots in use", len(ids), m.cfg.MaxSlots)
	}
	return nil
}

// Load returns the slot buffer stored in slot id.
func (m *Manager) Load(ctx context.Context, id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	env, err := m.tr.ReadAll(ctx, payloadName(id))
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return nil, domain.ErrSlotNotFound.WithDetails(id)
		}
		return nil, domain.ErrIO.WithCause(err)
	}
	payload, err := m.sealer.open(id, env)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Metadata reads the metadata sidecar of slot id.
func (m *Manager) Metadata(ctx context.Context, id string) (*domain.SlotMetadata, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := m.tr.ReadAll(ctx, metaName(id))
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return nil, domain.ErrSlotNotFound.WithDetails(id)
		}
		return nil, domain.ErrIO.WithCause(err)
	}
	var meta domain.SlotMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, domain.ErrCorruptFormat.WithDetails("metadata").WithCause(err)
	}
	if meta.SlotID != id {
		return nil, domain.ErrCorruptFormat.WithDetailsf("metadata names slot %q", meta.SlotID)
	}
	return &meta, nil
}

// Exists reports whether slot id has a committed payload.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	ok, err := m.tr.Exists(ctx, payloadName(id))
	if err != nil {
		return false, domain.ErrIO.WithCause(err)
	}
	return ok, nil
}

func (m *Manager) ids(ctx context.Context) ([]string, error) {
	names, err := m.tr.List(ctx, payloadExt)
	if err != nil {
		return nil, domain.ErrIO.WithCause(err)
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		id := strings.TrimSuffix(n, payloadExt)
		if ValidateID(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// List returns every committed slot, most recently saved first. Slots
// with unreadable metadata are listed last with Err set.
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	ids, err := m.ids(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		meta, err := m.Metadata(ctx, id)
		if err != nil {
			entries = append(entries, Entry{Meta: domain.SlotMetadata{SlotID: id}, Err: err})
			continue
		}
		entries = append(entries, Entry{Meta: *meta})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if !a.Meta.SavedAt.Equal(b.Meta.SavedAt) {
			return a.Meta.SavedAt.After(b.Meta.SavedAt)
		}
		return a.Meta.SlotID < b.Meta.SlotID
	})
	return entries, nil
}

// Delete removes slot id. Deleting a missing slot is ErrSlotNotFound.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ok, err := m.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSlotNotFound.WithDetails(id)
	}
	// Metadata first: a slot without a payload never shows in List.
	if err := m.tr.Remove(ctx, metaName(id)); err != nil {
		return domain.ErrIO.WithCause(err)
	}
	if err := m.tr.Remove(ctx, payloadName(id)); err != nil {
		return domain.ErrIO.WithCause(err)
	}
	m.logger.Info("slot deleted", "slot", id)
	return nil
}

// Verify checks the envelope checksum, decrypts and decompresses the
// payload, and compares its fingerprint with the metadata.
func (m *Manager) Verify(ctx context.Context, id string) (*domain.SlotMetadata, error) {
	payload, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, err := m.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta.PayloadSize != int64(len(payload)) {
		return meta, domain.ErrCorruptFormat.WithDetailsf("payload is %d bytes, metadata says %d", len(payload), meta.PayloadSize)
	}
	if meta.PayloadHash != "" && meta.PayloadHash != Fingerprint(payload) {
		return meta, domain.ErrCorruptFormat.WithDetails("payload fingerprint does not match metadata")
	}
	return meta, nil
}

// Flags reads only the envelope flag byte of slot id.
func (m *Manager) Flags(ctx context.Context, id string) (compressed, encrypted bool, err error) {
	if err := ValidateID(id); err != nil {
		return false, false, err
	}
	head, err := m.tr.ReadAt(ctx, payloadName(id), 0, len(magicBytes)+1)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return false, false, domain.ErrSlotNotFound.WithDetails(id)
		}
		return false, false, domain.ErrIO.WithCause(err)
	}
	if len(head) != len(magicBytes)+1 || string(head[:len(magicBytes)]) != string(magicBytes) {
		return false, false, domain.ErrCorruptFormat.WithDetails("invalid magic bytes")
	}
	f := head[len(magicBytes)]
	return f&flagCompressed != 0, f&flagEncrypted != 0, nil
}
