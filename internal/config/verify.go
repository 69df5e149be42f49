package config

import (
	"errors"
	"fmt"

	"github.com/yndnr/slotkeep-go/internal/core/service"
	"github.com/yndnr/slotkeep-go/internal/storage/slot"
	"github.com/yndnr/slotkeep-go/internal/telemetry/logger"
	"github.com/yndnr/slotkeep-go/pkg/crypto/adaptive"
)

// Verify validates the configuration. It does not touch the filesystem.
func Verify(cfg *Config) error {
	return errors.Join(
		verifyStorage(&cfg.Storage),
		verifySlots(&cfg.Slots),
		verifyEngine(&cfg.Engine),
		verifyAutosave(&cfg.Autosave),
		verifyLifecycle(&cfg.Lifecycle),
		verifyLog(&cfg.Log),
	)
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "fs", "badger":
		if cfg.Dir == "" {
			return fmt.Errorf("storage.dir is required for the %s backend", cfg.Backend)
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend %q is not one of fs, badger, memory", cfg.Backend)
	}
	if cfg.Badger.GCThreshold < 0 || cfg.Badger.GCThreshold > 1 {
		return errors.New("storage.badger.gc_threshold must be within 0..1")
	}
	return nil
}

func verifySlots(cfg *SlotsSection) error {
	if cfg.MaxSlots < 0 {
		return errors.New("slots.max_slots must not be negative")
	}
	if cfg.MaxPayloadSize < 0 {
		return errors.New("slots.max_payload_size must not be negative")
	}
	if _, err := adaptive.ParseCipherType(cfg.Cipher); err != nil {
		return fmt.Errorf("slots.cipher: %w", err)
	}
	if cfg.MasterKey != "" && cfg.Passphrase != "" {
		return errors.New("slots.master_key and slots.passphrase are mutually exclusive")
	}
	if cfg.Passphrase != "" {
		if len(cfg.Passphrase) < adaptive.MinPassphraseLength {
			return fmt.Errorf("slots.passphrase: %w", adaptive.ErrPassphraseTooWeak)
		}
		if cfg.Salt == "" {
			return fmt.Errorf("slots.salt: %w", adaptive.ErrSaltRequired)
		}
		return nil
	}
	_, err := cfg.masterKey()
	return err
}

func verifyEngine(cfg *EngineSection) error {
	if cfg.Workers < 1 {
		return errors.New("engine.workers must be at least 1")
	}
	if cfg.QueueSize < 0 {
		return errors.New("engine.queue_size must not be negative")
	}
	if cfg.MaxBufferSize < 0 {
		return errors.New("engine.max_buffer_size must not be negative")
	}
	if _, err := service.ParseMode(cfg.Mode); err != nil {
		return fmt.Errorf("engine.mode: %w", err)
	}
	return nil
}

func verifyAutosave(cfg *AutosaveSection) error {
	if !cfg.Enabled {
		return nil
	}
	if err := slot.ValidateID(cfg.Slot); err != nil {
		return fmt.Errorf("autosave.slot: %w", err)
	}
	if cfg.Interval <= 0 {
		return errors.New("autosave.interval must be positive")
	}
	if cfg.MinGap < 0 {
		return errors.New("autosave.min_gap must not be negative")
	}
	return nil
}

func verifyLifecycle(cfg *LifecycleSection) error {
	if cfg.SaveOnExit != "" {
		if err := slot.ValidateID(cfg.SaveOnExit); err != nil {
			return fmt.Errorf("lifecycle.save_on_exit: %w", err)
		}
	}
	if cfg.ShutdownTimeout < 0 {
		return errors.New("lifecycle.shutdown_timeout must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "", "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
}
