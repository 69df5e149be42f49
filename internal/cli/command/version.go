package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotkeep-go/internal/cli/output"
	"github.com/yndnr/slotkeep-go/internal/infra/buildinfo"
)

type versionInfo struct {
	buildinfo.Info `yaml:",inline"`
}

func (v versionInfo) Table(bool) *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("version", v.Version)
	t.AddRow("commit", v.Commit)
	t.AddRow("built", v.BuildTime)
	t.AddRow("go", v.GoVersion)
	return t
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			return getEnv(c).print(versionInfo{buildinfo.Get()})
		},
	}
}
