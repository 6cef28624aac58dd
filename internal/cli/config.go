package cli

import (
	"context"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v3"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func cmdConfig(cfgPath *string, stdout io.Writer) *cli.Command {
	var input string

	return &cli.Command{
		Name:  "config",
		Usage: "validate the config and print the effective values",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "local CSV/XLSX/XLS file, overrides source in the config",
				Sources:     cli.EnvVars("PHENOWATCH_INPUT"),
				Destination: &input,
			},
		},
		Action: func(_ context.Context, _ *cli.Command) error {
			cfg, err := loadConfig(*cfgPath, input)
			if err != nil {
				return err
			}
			dumper.Fdump(stdout, cfg)
			return nil
		},
	}
}
