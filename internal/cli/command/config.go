package command

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotkeep-go/internal/cli/output"
	"github.com/yndnr/slotkeep-go/internal/config"
	"github.com/yndnr/slotkeep-go/pkg/crypto/adaptive"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"cfg"},
		Usage:   "Configuration inspection",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reveal", Usage: "do not mask key material"},
				},
				Action: configShow,
			},
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "[FILE]",
				Action:    configValidate,
			},
			{
				Name:   "default",
				Usage:  "Print the default configuration",
				Action: configDefault,
			},
			{
				Name:  "genkey",
				Usage: "Generate a random value for slots.master_key",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "base64", Usage: "encode as base64 instead of hex"},
				},
				Action: configGenKey,
			},
		},
	}
}

// printConfig renders a configuration. Tables do not suit nested
// sections, so table output becomes YAML.
func printConfig(e *env, cfg *config.Config) error {
	format := e.format
	if format == output.FormatTable {
		format = output.FormatYAML
	}
	return output.NewFormatter(format, false).Format(e.stdout, cfg)
}

func configShow(c *cli.Context) error {
	e := getEnv(c)
	cfg := e.cfg
	if !c.Bool("reveal") {
		cfg = config.Sanitize(cfg)
	}
	return printConfig(e, cfg)
}

func configValidate(c *cli.Context) error {
	e := getEnv(c)
	path := e.path
	if c.NArg() > 0 {
		path = c.Args().First()
	}
	if path == "" {
		return cli.Exit("config validate: FILE or --config is required", 2)
	}
	if _, err := os.Stat(path); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if _, _, err := config.Load(path, nil); err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", path, err), 1)
	}
	fmt.Fprintf(e.stdout, "%s: ok\n", path)
	return nil
}

func configDefault(c *cli.Context) error {
	return printConfig(getEnv(c), config.Default())
}

func configGenKey(c *cli.Context) error {
	key, err := adaptive.GenerateKey(adaptive.KeySize)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer adaptive.ZeroKey(key)
	out := "hex:" + hex.EncodeToString(key)
	if c.Bool("base64") {
		out = "base64:" + base64.StdEncoding.EncodeToString(key)
	}
	fmt.Fprintln(getEnv(c).stdout, out)
	return nil
}
