package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yndnr/slotkeep-go/internal/core/service"
	"github.com/yndnr/slotkeep-go/internal/infra/confloader"
	"github.com/yndnr/slotkeep-go/internal/orchestrator"
	"github.com/yndnr/slotkeep-go/internal/storage/slot"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
	"github.com/yndnr/slotkeep-go/pkg/crypto/adaptive"
)

// Load reads the configuration file at path (optional when empty or
// missing), SLOTKEEP_* environment variables and overrides on top of
// Default(), then verifies the result.
func Load(path string, overrides map[string]any) (*Config, *confloader.Loader, error) {
	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithOptionalConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

// Key returns the slot master key, or nil when encryption is off.
func (s SlotsSection) Key() ([]byte, error) {
	if s.Passphrase != "" {
		key, err := adaptive.DeriveKeyFromPassphrase([]byte(s.Passphrase), []byte(s.Salt))
		if err != nil {
			return nil, fmt.Errorf("slots.passphrase: %w", err)
		}
		return key, nil
	}
	return s.masterKey()
}

func (s SlotsSection) masterKey() ([]byte, error) {
	if s.MasterKey == "" {
		return nil, nil
	}
	var (
		key []byte
		err error
	)
	switch {
	case strings.HasPrefix(s.MasterKey, "hex:"):
		key, err = hex.DecodeString(strings.TrimPrefix(s.MasterKey, "hex:"))
	case strings.HasPrefix(s.MasterKey, "base64:"):
		key, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(s.MasterKey, "base64:"))
	default:
		return nil, fmt.Errorf("slots.master_key must start with hex: or base64:")
	}
	if err != nil {
		return nil, fmt.Errorf("slots.master_key: %w", err)
	}
	if len(key) < adaptive.MinKeyLength {
		return nil, fmt.Errorf("slots.master_key: %w", adaptive.ErrKeyTooShort)
	}
	return key, nil
}

// SlotConfig builds the slot manager configuration.
func (s SlotsSection) SlotConfig() (slot.Config, error) {
	key, err := s.Key()
	if err != nil {
		return slot.Config{}, err
	}
	cipher, err := adaptive.ParseCipherType(s.Cipher)
	if err != nil {
		return slot.Config{}, err
	}
	return slot.Config{
		MaxSlots:       s.MaxSlots,
		Compress:       s.Compress,
		MaxPayloadSize: s.MaxPayloadSize,
		MasterKey:      key,
		Cipher:         cipher,
	}, nil
}

// OpenTransport opens the configured storage backend. The caller owns the
// returned transport and must Close it.
func (s StorageSection) OpenTransport(logger *slog.Logger) (transport.Transport, error) {
	switch s.Backend {
	case "fs", "":
		fs, err := transport.NewFS(s.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "badger":
		bc := s.Badger
		bc.Dir = s.Dir
		db, err := transport.NewBadger(bc, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		return transport.NewMemory(), nil
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", s.Backend)
	}
}

// OpenSlots opens the transport and a slot manager over it.
func (c *Config) OpenSlots(logger *slog.Logger) (*slot.Manager, transport.Transport, error) {
	tr, err := c.Storage.OpenTransport(logger)
	if err != nil {
		return nil, nil, err
	}
	sc, err := c.Slots.SlotConfig()
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	slots, err := slot.NewManager(tr, sc, logger)
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	return slots, tr, nil
}

// ManagerOptions fills the engine, autosave and lifecycle parts of
// service.Options. The caller supplies the world, dispatcher, slots and
// registry.
func (c *Config) ManagerOptions(base service.Options) (service.Options, error) {
	mode, err := service.ParseMode(c.Engine.Mode)
	if err != nil {
		return base, err
	}
	base.Orchestrator = orchestrator.Config{
		Workers:   c.Engine.Workers,
		QueueSize: c.Engine.QueueSize,
	}
	base.Classes = c.Engine.Classes
	base.MaxBufferSize = c.Engine.MaxBufferSize
	base.SchemaVersion = c.Engine.SchemaVersion
	base.Mode = mode
	base.ResolveLiveReferences = c.Engine.ResolveLiveReferences
	base.Autosave = service.AutosaveOptions{
		Enabled:  c.Autosave.Enabled,
		Slot:     c.Autosave.Slot,
		Interval: c.Autosave.Interval,
		MinGap:   c.Autosave.MinGap,
	}
	base.SaveOnExit = c.Lifecycle.SaveOnExit
	base.AutoLoad = c.Lifecycle.AutoLoad
	return base, nil
}
