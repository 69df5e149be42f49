package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotkeep-go/internal/config"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/service"
	"github.com/yndnr/slotkeep-go/internal/infra/buildinfo"
	"github.com/yndnr/slotkeep-go/internal/infra/confloader"
	"github.com/yndnr/slotkeep-go/internal/infra/shutdown"
	"github.com/yndnr/slotkeep-go/internal/orchestrator"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
	"github.com/yndnr/slotkeep-go/internal/telemetry/logger"
	"github.com/yndnr/slotkeep-go/internal/telemetry/metric"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "slotkeep-demo",
		Usage:   "Run a headless world with autosave, streaming and exit save",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration file (YAML)", EnvVars: []string{"SLOTKEEP_CONFIG"}},
			&cli.IntFlag{Name: "frames", Usage: "stop after this many frames; 0 runs until interrupted"},
			&cli.IntFlag{Name: "fps", Value: 30, Usage: "frame rate"},
			&cli.IntFlag{Name: "stream-every", Value: 90, Usage: "frames between cave level streaming"},
			&cli.IntFlag{Name: "quicksave-every", Value: 150, Usage: "frames between quick saves; 0 disables"},
		},
		Action: run,
	}
}

type runOptions struct {
	frames         int
	fps            int
	streamEvery    int
	quicksaveEvery int
}

func run(c *cli.Context) error {
	path := c.String("config")
	cfg, loader, err := config.Load(path, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.Setup(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting slotkeep-demo",
		"version", buildinfo.AppVersion(),
		"config", path,
		"backend", cfg.Storage.Backend)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	if path != "" {
		watcher, err := watchConfig(path, loader, log)
		if err != nil {
			log.Warn("configuration watcher disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	metrics := metric.Global()
	slots, tr, err := cfg.OpenSlots(log)
	if err != nil {
		return err
	}
	defer tr.Close()
	defer slots.Close()
	if db, ok := tr.(*transport.Badger); ok {
		db.RegisterMetrics(metrics.Registerer())
	}

	reg := demoRegistry()
	world := newVillage()
	queue := orchestrator.NewFrameQueue()
	opts, err := cfg.ManagerOptions(service.Options{
		Registry:   reg,
		World:      world,
		Dispatcher: queue,
		Slots:      slots,
		AppVersion: buildinfo.AppVersion(),
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	mgr, err := service.NewManager(opts)
	if err != nil {
		return err
	}
	mgr.AddListener(&logListener{log: log})

	sh := shutdown.NewHandler(cfg.Lifecycle.ShutdownTimeout, log)
	mgr.RegisterShutdown(sh)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint failed", "error", err)
			}
		}()
		sh.OnShutdown("metrics endpoint", srv.Shutdown)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	if _, err := mgr.Start(ctx); err != nil {
		log.Warn("auto-load failed", "error", err)
	}
	go mgr.RunAutosave(ctx)

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- sh.Wait(ctx) }()

	loop(world, mgr, queue, sh, runOptions{
		frames:         c.Int("frames"),
		fps:            c.Int("fps"),
		streamEvery:    c.Int("stream-every"),
		quicksaveEvery: c.Int("quicksave-every"),
	}, log)

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("slotkeep-demo stopped")
	return nil
}

// loop is the world thread. It keeps draining the queue until every
// shutdown hook has run, since the exit save needs world-thread steps.
func loop(w *village, mgr *service.Manager, q *orchestrator.FrameQueue, sh *shutdown.Handler, opts runOptions, log *slog.Logger) {
	if opts.fps <= 0 {
		opts.fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(opts.fps))
	defer ticker.Stop()

	frame := 0
	last := time.Now()
	for {
		select {
		case <-sh.Done():
			q.Drain()
			return
		case now := <-ticker.C:
			q.Drain()
			mgr.AddPlayedTime(now.Sub(last))
			last = now
			frame++
			if opts.frames > 0 && frame > opts.frames {
				continue
			}

			w.tick(frame)
			if opts.streamEvery > 0 && frame%opts.streamEvery == 0 {
				if err := w.toggleCave(mgr); err != nil {
					log.Error("cave streaming failed", "error", err)
				}
			}
			if opts.quicksaveEvery > 0 && frame%opts.quicksaveEvery == 0 {
				_, err := mgr.RequestSave("quicksave", domain.AllLevels(),
					service.WithName("Quick save"),
					service.WithSubname(fmt.Sprintf("frame %d", frame)),
					service.WithMap(villageLevel))
				if err != nil {
					log.Info("quick save skipped", "error", err)
				}
			}
			if opts.frames > 0 && frame == opts.frames {
				log.Info("frame budget reached", "frames", frame)
				sh.Trigger()
			}
		}
	}
}

func watchConfig(path string, loader *confloader.Loader, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}
	watcher.OnChange(func(string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Warn("configuration reload failed", "error", err)
			return
		}
		if err := config.Verify(next); err != nil {
			log.Warn("reloaded configuration is invalid", "error", err)
			return
		}
		if err := logger.SetLevel(next.Log.Level); err != nil {
			log.Warn("log level not applied", "error", err)
			return
		}
		log.Info("configuration reloaded", "log_level", logger.GetLevel())
	})
	watcher.StartAsync()
	return watcher, nil
}

// logListener reports operations the way a game would drive its UI.
type logListener struct {
	log *slog.Logger
}

func (l *logListener) SaveBegan(slotID string) {
	l.log.Info("saving", "slot", slotID)
}

func (l *logListener) SaveFinished(r *domain.Report) {
	l.log.Info("save finished", "slot", r.SlotID, "outcome", r.Outcome().String(), "records", r.Saved, "bytes", r.BytesWritten)
}

func (l *logListener) LoadBegan(slotID string) {
	l.log.Info("loading", "slot", slotID)
}

func (l *logListener) LoadFinished(r *domain.Report) {
	l.log.Info("load finished", "slot", r.SlotID, "outcome", r.Outcome().String(), "spawned", r.Spawned, "matched", r.Matched)
}
