package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotkeep-go/internal/cli/output"
	"github.com/yndnr/slotkeep-go/internal/config"
	"github.com/yndnr/slotkeep-go/internal/infra/buildinfo"
	"github.com/yndnr/slotkeep-go/internal/storage/slot"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
	"github.com/yndnr/slotkeep-go/internal/telemetry/logger"
)

const envKey = "slotkeep.env"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "slotkeep-cli",
		Usage:   "Inspect and maintain slotkeep save slots",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SlotCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "configuration file (YAML)",
			EnvVars: []string{"SLOTKEEP_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "storage backend: fs, badger, memory",
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "save directory or database directory",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show more columns",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "log debug messages to stderr",
		},
	}
}

// env is the per-invocation state shared by commands.
type env struct {
	cfg    *config.Config
	path   string
	format output.Format
	wide   bool
	logger *slog.Logger
	slots  *slot.Manager
	tr     transport.Transport
	stdout io.Writer
	stderr io.Writer
}

func setup(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	overrides := map[string]any{}
	if c.IsSet("backend") {
		overrides["storage.backend"] = c.String("backend")
	}
	if c.IsSet("dir") {
		overrides["storage.dir"] = c.String("dir")
	}
	if c.Bool("verbose") {
		overrides["log.level"] = "debug"
	} else {
		overrides["log.level"] = "warn"
	}
	overrides["log.format"] = "text"

	cfg, _, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	stderr := c.App.ErrWriter
	if stderr == nil {
		stderr = os.Stderr
	}
	stdout := c.App.Writer
	if stdout == nil {
		stdout = os.Stdout
	}
	l, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	c.Context = logger.WithLogger(c.Context, l)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[envKey] = &env{
		cfg:    cfg,
		path:   c.String("config"),
		format: format,
		wide:   c.Bool("wide"),
		logger: l,
		stdout: stdout,
		stderr: stderr,
	}
	return nil
}

func teardown(c *cli.Context) error {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		return nil
	}
	return e.close()
}

func getEnv(c *cli.Context) *env {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		panic("command: setup did not run")
	}
	return e
}

// openSlots opens the configured slot store once per invocation.
func (e *env) openSlots() (*slot.Manager, error) {
	if e.slots != nil {
		return e.slots, nil
	}
	slots, tr, err := e.cfg.OpenSlots(e.logger)
	if err != nil {
		return nil, fmt.Errorf("open slot store: %w", err)
	}
	e.slots, e.tr = slots, tr
	return slots, nil
}

func (e *env) close() error {
	if e.slots == nil {
		return nil
	}
	e.slots.Close()
	err := e.tr.Close()
	e.slots, e.tr = nil, nil
	return err
}

// print renders data in the selected format.
func (e *env) print(data any) error {
	return output.NewFormatter(e.format, e.wide).Format(e.stdout, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
