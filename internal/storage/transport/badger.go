package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// keyPrefix namespaces slot blobs so the database can be shared.
const keyPrefix = "slot/"

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// Dir is the database directory. Empty with InMemory set runs
	// without disk.
	Dir string `koanf:"dir" json:"dir" yaml:"dir"`

	InMemory bool `koanf:"in_memory" json:"in_memory" yaml:"in_memory"`

	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration `koanf:"gc_interval" json:"gc_interval" yaml:"gc_interval"`

	// GCThreshold is the value log discard ratio (0.0-1.0).
	// Default: 0.5
	GCThreshold float64 `koanf:"gc_threshold" json:"gc_threshold" yaml:"gc_threshold"`

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64 `koanf:"cache_size" json:"cache_size" yaml:"cache_size"`

	// SyncWrites fsyncs every commit.
	// Default: true
	SyncWrites bool `koanf:"sync_writes" json:"sync_writes" yaml:"sync_writes"`
}

// DefaultBadgerConfig returns defaults for dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   16 << 20,
		SyncWrites:  true,
	}
}

// Badger stores blobs in an embedded Badger database. Rename is a
// single transaction, so it is atomic even across crashes.
type Badger struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	lastGCTime atomic.Int64
	gcRuns     atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsGCRuns       prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
	closed atomic.Bool
}

// NewBadger opens the database and starts the value log GC loop.
func NewBadger(cfg BadgerConfig, logger *slog.Logger) (*Badger, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("transport: badger dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultBadgerConfig(cfg.Dir)
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = def.GCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = def.GCThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.BlockCacheSize = cfg.CacheSize
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("transport: open badger: %w", err)
	}

	t := &Badger{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go t.gcLoop()

	logger.Info("badger transport opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)
	return t, nil
}

func blobKey(name string) []byte { return []byte(keyPrefix + name) }

func (t *Badger) get(name string) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: badger get %s: %w", name, err)
	}
	return value, nil
}

// ReadAt implements Transport.
func (t *Badger) ReadAt(ctx context.Context, name string, off int64, n int) ([]byte, error) {
	data, err := t.get(name)
	if err != nil {
		return nil, err
	}
	return clip(data, off, n), nil
}

// ReadAll implements Transport.
func (t *Badger) ReadAll(ctx context.Context, name string) ([]byte, error) {
	return t.get(name)
}

// Write implements Transport.
func (t *Badger) Write(ctx context.Context, name string, data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobKey(name), append([]byte(nil), data...))
	})
	if err != nil {
		return fmt.Errorf("transport: badger write %s: %w", name, err)
	}
	return nil
}

// Rename implements Transport.
func (t *Badger) Rename(ctx context.Context, from, to string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	err := t.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(from))
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Set(blobKey(to), value); err != nil {
			return err
		}
		return txn.Delete(blobKey(from))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if err != nil {
		return fmt.Errorf("transport: badger rename %s: %w", from, err)
	}
	return nil
}

// Remove implements Transport.
func (t *Badger) Remove(ctx context.Context, name string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(blobKey(name))
	})
}

// Exists implements Transport.
func (t *Badger) Exists(ctx context.Context, name string) (bool, error) {
	_, err := t.get(name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List implements Transport.
func (t *Badger) List(ctx context.Context, suffix string) ([]string, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	var names []string
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := strings.TrimPrefix(string(it.Item().Key()), keyPrefix)
			if strings.HasSuffix(name, suffix) {
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transport: badger list: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// GC runs value log GC until Badger reports nothing left to rewrite.
// Returns the number of rewrite rounds.
func (t *Badger) GC(ctx context.Context) (int, error) {
	start := time.Now()
	rounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}
		err := t.db.RunValueLogGC(t.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				break
			}
			return rounds, fmt.Errorf("transport: badger gc: %w", err)
		}
		rounds++
	}

	t.lastGCTime.Store(time.Now().UnixMilli())
	t.gcRuns.Add(uint64(rounds))
	if t.metricsGCRuns != nil {
		t.metricsGCRuns.Add(float64(rounds))
	}
	t.logger.Debug("badger gc completed", "rounds", rounds, "elapsed", time.Since(start))
	return rounds, nil
}

// Sizes returns the LSM and value log sizes in bytes.
func (t *Badger) Sizes() (lsm, vlog int64) {
	return t.db.Size()
}

// Close stops the GC loop and closes the database.
func (t *Badger) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stopCh)
	<-t.doneCh
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("transport: close badger: %w", err)
	}
	t.logger.Info("badger transport closed")
	return nil
}

// RegisterMetrics registers storage gauges with reg and keeps them
// updated until Close.
func (t *Badger) RegisterMetrics(reg prometheus.Registerer) *Badger {
	t.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "slotkeep",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	t.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "slotkeep",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	t.metricsGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "slotkeep",
		Subsystem: "badger",
		Name:      "gc_rounds_total",
		Help:      "Value log GC rewrite rounds",
	})
	reg.MustRegister(t.metricsLSMSize, t.metricsValueLogSize, t.metricsGCRuns)
	t.updateSizeMetrics()
	return t
}

func (t *Badger) updateSizeMetrics() {
	if t.metricsLSMSize == nil {
		return
	}
	lsm, vlog := t.db.Size()
	t.metricsLSMSize.Set(float64(lsm))
	t.metricsValueLogSize.Set(float64(vlog))
}

func (t *Badger) gcLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := t.GC(ctx); err != nil {
				t.logger.Error("auto gc failed", "error", err)
			}
			cancel()
			t.updateSizeMetrics()
		case <-t.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
