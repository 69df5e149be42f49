package config

import (
	"time"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
)

// Config is the root configuration of a slotkeep host.
type Config struct {
	Storage   StorageSection   `koanf:"storage" json:"storage" yaml:"storage"`
	Slots     SlotsSection     `koanf:"slots" json:"slots" yaml:"slots"`
	Engine    EngineSection    `koanf:"engine" json:"engine" yaml:"engine"`
	Autosave  AutosaveSection  `koanf:"autosave" json:"autosave" yaml:"autosave"`
	Lifecycle LifecycleSection `koanf:"lifecycle" json:"lifecycle" yaml:"lifecycle"`
	Metrics   MetricsSection   `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Log       LogSection       `koanf:"log" json:"log" yaml:"log"`
}

// StorageSection selects where slot bytes live.
type StorageSection struct {
	// Backend is fs, badger or memory.
	Backend string `koanf:"backend" json:"backend" yaml:"backend"`

	// Dir is the save directory for fs and the database directory for
	// badger.
	Dir string `koanf:"dir" json:"dir" yaml:"dir"`

	// Badger tunes the badger backend. Its Dir is taken from Dir above.
	Badger transport.BadgerConfig `koanf:"badger" json:"badger" yaml:"badger"`
}

// SlotsSection configures slot envelopes.
type SlotsSection struct {
	MaxSlots       int   `koanf:"max_slots" json:"max_slots" yaml:"max_slots"`
	Compress       bool  `koanf:"compress" json:"compress" yaml:"compress"`
	MaxPayloadSize int64 `koanf:"max_payload_size" json:"max_payload_size" yaml:"max_payload_size"`

	// Cipher is auto, aes-gcm or chacha20-poly1305.
	Cipher string `koanf:"cipher" json:"cipher,omitempty" yaml:"cipher,omitempty"`

	// MasterKey enables encryption. Accepts "hex:..." or "base64:...".
	MasterKey string `koanf:"master_key" json:"master_key,omitempty" yaml:"master_key,omitempty"`

	// Passphrase derives the master key with argon2id when MasterKey is
	// empty. Salt is required with it.
	Passphrase string `koanf:"passphrase" json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
	Salt       string `koanf:"salt" json:"salt,omitempty" yaml:"salt,omitempty"`
}

// EngineSection configures the writer, reconciler and orchestrator.
type EngineSection struct {
	Workers   int `koanf:"workers" json:"workers" yaml:"workers"`
	QueueSize int `koanf:"queue_size" json:"queue_size" yaml:"queue_size"`

	// MaxBufferSize bounds an encoded slot. Zero is unlimited.
	MaxBufferSize int `koanf:"max_buffer_size" json:"max_buffer_size" yaml:"max_buffer_size"`

	SchemaVersion uint32 `koanf:"schema_version" json:"schema_version" yaml:"schema_version"`

	// Mode is overlay or replace.
	Mode string `koanf:"mode" json:"mode" yaml:"mode"`

	ResolveLiveReferences bool `koanf:"resolve_live_references" json:"resolve_live_references" yaml:"resolve_live_references"`

	Classes domain.ClassFilter `koanf:"classes" json:"classes" yaml:"classes"`
}

// AutosaveSection configures periodic saves.
type AutosaveSection struct {
	Enabled  bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Slot     string        `koanf:"slot" json:"slot" yaml:"slot"`
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval"`
	MinGap   time.Duration `koanf:"min_gap" json:"min_gap" yaml:"min_gap"`
}

// LifecycleSection configures start and exit behavior.
type LifecycleSection struct {
	// AutoLoad loads the most recent slot on start.
	AutoLoad bool `koanf:"autoload" json:"autoload" yaml:"autoload"`

	// SaveOnExit names the slot written on shutdown. Empty disables it.
	SaveOnExit string `koanf:"save_on_exit" json:"save_on_exit,omitempty" yaml:"save_on_exit,omitempty"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsSection configures the Prometheus endpoint of host processes.
type MetricsSection struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LogSection configures logging.
type LogSection struct {
	Level     string `koanf:"level" json:"level" yaml:"level"`
	Format    string `koanf:"format" json:"format" yaml:"format"`
	AddSource bool   `koanf:"add_source" json:"add_source" yaml:"add_source"`
}
