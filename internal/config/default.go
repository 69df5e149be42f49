package config

import (
	"time"

	"github.com/yndnr/slotkeep-go/internal/storage/transport"
)

// Default configuration values.
const (
	DefaultBackend = "fs"
	DefaultDir     = "./saves"

	DefaultWorkers   = 2
	DefaultQueueSize = 16
	DefaultMode      = "overlay"

	DefaultAutosaveSlot     = "autosave"
	DefaultAutosaveInterval = 5 * time.Minute
	DefaultAutosaveMinGap   = 10 * time.Second

	DefaultShutdownTimeout = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			Backend: DefaultBackend,
			Dir:     DefaultDir,
			Badger:  transport.DefaultBadgerConfig(""),
		},
		Slots: SlotsSection{
			Compress: true,
		},
		Engine: EngineSection{
			Workers:   DefaultWorkers,
			QueueSize: DefaultQueueSize,
			Mode:      DefaultMode,
		},
		Autosave: AutosaveSection{
			Slot:     DefaultAutosaveSlot,
			Interval: DefaultAutosaveInterval,
			MinGap:   DefaultAutosaveMinGap,
		},
		Lifecycle: LifecycleSection{
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
