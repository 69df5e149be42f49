package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Storage struct {
		Backend string `koanf:"backend"`
		Dir     string `koanf:"dir"`
		Badger  struct {
			SyncWrites bool `koanf:"sync_writes"`
		} `koanf:"badger"`
	} `koanf:"storage"`
	Engine struct {
		Workers       int `koanf:"workers"`
		MaxBufferSize int `koanf:"max_buffer_size"`
	} `koanf:"engine"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slotkeep.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/etc/slotkeep.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want TEST_", l.envPrefix)
	}
	if l.FilePath() != "/etc/slotkeep.yaml" {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
	if NewLoader().envPrefix != DefaultEnvPrefix {
		t.Error("default prefix not applied")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: badger
  dir: /var/lib/slotkeep
engine:
  workers: 4
`)
	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := l.GetString("storage.backend"); got != "badger" {
		t.Errorf("storage.backend = %q, want badger", got)
	}
	if got := l.GetInt("engine.workers"); got != 4 {
		t.Errorf("engine.workers = %d, want 4", got)
	}
	if err := l.LoadFile("/nonexistent/slotkeep.yaml"); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"SLOTKEEP_LOG_LEVEL", "log.level"},
		{"SLOTKEEP_ENGINE_MAX_BUFFER_SIZE", "engine.max_buffer_size"},
		{"SLOTKEEP_STORAGE_BADGER__SYNC_WRITES", "storage.badger.sync_writes"},
		{"SLOTKEEP_AUTOLOAD", "autoload"},
	}
	for _, tt := range tests {
		if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("SLOTKEEP_ENGINE_MAX_BUFFER_SIZE", "4096")
	t.Setenv("MYAPP_STORAGE_DIR", "/tmp/saves")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := l.GetInt("engine.max_buffer_size"); got != 4096 {
		t.Errorf("engine.max_buffer_size = %d, want 4096", got)
	}

	custom := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := custom.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := custom.GetString("storage.dir"); got != "/tmp/saves" {
		t.Errorf("storage.dir = %q, want /tmp/saves", got)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: fs
  dir: from-file
engine:
  workers: 2
`)
	t.Setenv("SLOTKEEP_STORAGE_DIR", "from-env")
	t.Setenv("SLOTKEEP_STORAGE_BADGER__SYNC_WRITES", "true")

	l := NewLoader(
		WithConfigFile(path),
		WithDefaults(map[string]any{"engine.workers": 1, "engine.max_buffer_size": 1024}),
		WithOverrides(map[string]any{"engine.workers": 8}),
	)
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Dir != "from-env" {
		t.Errorf("Dir = %q, env should override file", cfg.Storage.Dir)
	}
	if cfg.Storage.Backend != "fs" {
		t.Errorf("Backend = %q, want fs", cfg.Storage.Backend)
	}
	if !cfg.Storage.Badger.SyncWrites {
		t.Error("nested env key not applied")
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("Workers = %d, overrides should win", cfg.Engine.Workers)
	}
	if cfg.Engine.MaxBufferSize != 1024 {
		t.Errorf("MaxBufferSize = %d, default not applied", cfg.Engine.MaxBufferSize)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_Load_KeepsUnsetFields(t *testing.T) {
	path := writeConfig(t, "engine:\n  workers: 3\n")
	cfg := testConfig{}
	cfg.Storage.Backend = "memory"

	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != "memory" || cfg.Engine.Workers != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoader_Load_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	var cfg testConfig
	if err := NewLoader(WithConfigFile(missing)).Load(&cfg); err == nil {
		t.Error("required config file should fail when missing")
	}
	if err := NewLoader(WithOptionalConfigFile(missing)).Load(&cfg); err != nil {
		t.Errorf("optional config file: %v", err)
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, "engine:\n  workers: 2\n")
	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("storage:\n  backend: badger\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var next testConfig
	if err := l.Reload(&next); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if next.Engine.Workers != 0 || next.Storage.Backend != "badger" {
		t.Errorf("Reload kept stale values: %+v", next)
	}
}

func TestLoader_AllKeys(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"autosave.slot": "auto", "autoload": true}); err != nil {
		t.Fatal(err)
	}
	if !l.GetBool("autoload") {
		t.Error("autoload should be true")
	}
	if len(l.All()) != 2 || len(l.Keys()) != 2 {
		t.Errorf("All() = %v", l.All())
	}
	if l.Get("autosave.slot") != "auto" {
		t.Errorf("Get(autosave.slot) = %v", l.Get("autosave.slot"))
	}
}
