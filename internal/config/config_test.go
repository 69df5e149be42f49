package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/slotkeep-go/internal/core/service"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
	"github.com/yndnr/slotkeep-go/pkg/crypto/adaptive"
)

const testKey = "hex:000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Backend != DefaultBackend || cfg.Storage.Dir != DefaultDir {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Engine.Workers != DefaultWorkers || cfg.Engine.Mode != DefaultMode {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Autosave.Enabled {
		t.Error("autosave should be disabled by default")
	}
	if cfg.Autosave.Slot != DefaultAutosaveSlot {
		t.Errorf("Autosave.Slot = %q", cfg.Autosave.Slot)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) = %v", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"fs without dir", func(c *Config) { c.Storage.Dir = "" }, "storage.dir"},
		{"memory without dir", func(c *Config) { c.Storage.Backend = "memory"; c.Storage.Dir = "" }, ""},
		{"negative max slots", func(c *Config) { c.Slots.MaxSlots = -1 }, "slots.max_slots"},
		{"unknown cipher", func(c *Config) { c.Slots.Cipher = "rot13" }, "slots.cipher"},
		{"raw master key", func(c *Config) { c.Slots.MasterKey = "plaintext" }, "slots.master_key"},
		{"short master key", func(c *Config) { c.Slots.MasterKey = "hex:0011" }, "slots.master_key"},
		{"valid master key", func(c *Config) { c.Slots.MasterKey = testKey }, ""},
		{"key and passphrase", func(c *Config) { c.Slots.MasterKey = testKey; c.Slots.Passphrase = "long enough" }, "mutually exclusive"},
		{"passphrase without salt", func(c *Config) { c.Slots.Passphrase = "long enough" }, "slots.salt"},
		{"weak passphrase", func(c *Config) { c.Slots.Passphrase = "short"; c.Slots.Salt = "s" }, "slots.passphrase"},
		{"zero workers", func(c *Config) { c.Engine.Workers = 0 }, "engine.workers"},
		{"unknown mode", func(c *Config) { c.Engine.Mode = "merge" }, "engine.mode"},
		{"autosave bad slot", func(c *Config) { c.Autosave.Enabled = true; c.Autosave.Slot = "../x" }, "autosave.slot"},
		{"autosave no interval", func(c *Config) { c.Autosave.Enabled = true; c.Autosave.Interval = 0 }, "autosave.interval"},
		{"save on exit bad slot", func(c *Config) { c.Lifecycle.SaveOnExit = "a b" }, "lifecycle.save_on_exit"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Verify() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Verify() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Slots.MasterKey = testKey
	cfg.Slots.Passphrase = "correct horse battery"

	sanitized := Sanitize(cfg)
	if cfg.Slots.MasterKey != testKey {
		t.Error("original config should not be modified")
	}
	if sanitized.Slots.MasterKey != "hex:***" {
		t.Errorf("MasterKey = %q, want hex:***", sanitized.Slots.MasterKey)
	}
	if got := sanitized.Slots.Passphrase; got == cfg.Slots.Passphrase || len(got) != len(cfg.Slots.Passphrase) {
		t.Errorf("Passphrase = %q", got)
	}
	if Sanitize(Default()).Slots.MasterKey != "" {
		t.Error("empty key should stay empty")
	}
}

func TestSlotsSection_Key(t *testing.T) {
	s := SlotsSection{MasterKey: "base64:AAECAwQFBgcICQoLDA0ODw=="}
	key, err := s.Key()
	if err != nil || len(key) != 16 || key[15] != 15 {
		t.Fatalf("Key() = %v, %v", key, err)
	}

	p := SlotsSection{Passphrase: "correct horse", Salt: "slotkeep"}
	k1, err := p.Key()
	if err != nil {
		t.Fatalf("Key() passphrase: %v", err)
	}
	k2, _ := p.Key()
	if len(k1) != 32 || string(k1) != string(k2) {
		t.Error("passphrase derivation should be deterministic")
	}

	if key, err := (SlotsSection{}).Key(); key != nil || err != nil {
		t.Errorf("no key configured = %v, %v", key, err)
	}
}

func TestSlotConfig(t *testing.T) {
	sc, err := SlotsSection{MaxSlots: 3, Compress: true, MasterKey: testKey, Cipher: "chacha20-poly1305"}.SlotConfig()
	if err != nil {
		t.Fatalf("SlotConfig() = %v", err)
	}
	if sc.MaxSlots != 3 || !sc.Compress || len(sc.MasterKey) != 32 || sc.Cipher != adaptive.CipherChaCha20 {
		t.Errorf("SlotConfig() = %+v", sc)
	}
}

func TestOpenTransport(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		check   func(transport.Transport) bool
	}{
		{"fs", func(tr transport.Transport) bool { _, ok := tr.(*transport.FS); return ok }},
		{"badger", func(tr transport.Transport) bool { _, ok := tr.(*transport.Badger); return ok }},
		{"memory", func(tr transport.Transport) bool { _, ok := tr.(*transport.Memory); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s := Default().Storage
			s.Backend = tt.backend
			s.Dir = filepath.Join(dir, tt.backend)
			tr, err := s.OpenTransport(nil)
			if err != nil {
				t.Fatalf("OpenTransport() = %v", err)
			}
			defer tr.Close()
			if !tt.check(tr) {
				t.Errorf("OpenTransport() returned %T", tr)
			}
		})
	}
	if _, err := (StorageSection{Backend: "tape"}).OpenTransport(nil); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestManagerOptions(t *testing.T) {
	cfg := Default()
	cfg.Engine.Mode = "replace"
	cfg.Engine.Workers = 3
	cfg.Autosave.Enabled = true
	cfg.Lifecycle.SaveOnExit = "exit"

	opts, err := cfg.ManagerOptions(service.Options{AppVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("ManagerOptions() = %v", err)
	}
	if opts.Mode != service.ModeReplace || opts.Orchestrator.Workers != 3 {
		t.Errorf("opts = %+v", opts)
	}
	if !opts.Autosave.Enabled || opts.Autosave.MinGap != DefaultAutosaveMinGap {
		t.Errorf("autosave = %+v", opts.Autosave)
	}
	if opts.SaveOnExit != "exit" || opts.AppVersion != "1.2.3" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotkeep.yaml")
	content := `
storage:
  backend: memory
engine:
  mode: replace
  classes:
    ignored: ["Particle*"]
autosave:
  enabled: true
  interval: 90s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SLOTKEEP_LOG_LEVEL", "debug")

	cfg, loader, err := Load(path, map[string]any{"engine.workers": 5})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Storage.Backend != "memory" || cfg.Engine.Mode != "replace" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Autosave.Interval != 90*time.Second || cfg.Autosave.Slot != DefaultAutosaveSlot {
		t.Errorf("autosave = %+v", cfg.Autosave)
	}
	if len(cfg.Engine.Classes.Ignored) != 1 || cfg.Engine.Classes.IsAllowed("ParticleSpark") {
		t.Errorf("classes = %+v", cfg.Engine.Classes)
	}
	if cfg.Log.Level != "debug" || cfg.Engine.Workers != 5 {
		t.Errorf("env/override not applied: log=%q workers=%d", cfg.Log.Level, cfg.Engine.Workers)
	}
	if loader.FilePath() != path {
		t.Errorf("FilePath() = %q", loader.FilePath())
	}

	if _, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err != nil {
		t.Errorf("missing file should fall back to defaults: %v", err)
	}
	if _, _, err := Load(path, map[string]any{"engine.mode": "merge"}); err == nil {
		t.Error("invalid override should fail verification")
	}
}
