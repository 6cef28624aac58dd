// Package cli implements the phenowatch command line.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/phenowatch/phenowatch/internal/logging"
)

// Version is overridden at link time.
var Version = "dev"

// Run runs the CLI with os.Stdout as the output stream.
func Run(ctx context.Context, args []string) error {
	if err := newApp(os.Stdout, os.Stderr).Run(ctx, args); err != nil {
		return goerr.Wrap(err, "phenowatch failed")
	}
	return nil
}

func newApp(stdout, logOut io.Writer) *cli.Command {
	var (
		logLevel  string
		logFormat string
		cfgPath   string
	)

	return &cli.Command{
		Name:    "phenowatch",
		Usage:   "Weekly S. aureus phenotype outlier alerts",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to the YAML config file",
				Sources:     cli.EnvVars("PHENOWATCH_CONFIG"),
				Destination: &cfgPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Category:    "Logging",
				Value:       "info",
				Sources:     cli.EnvVars("PHENOWATCH_LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (console, json, auto)",
				Category:    "Logging",
				Value:       "auto",
				Sources:     cli.EnvVars("PHENOWATCH_LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return ctx, err
			}
			format, err := logging.ParseFormat(logFormat)
			if err != nil {
				return ctx, err
			}
			logger := logging.New(level, logOut, format)
			slog.SetDefault(logger)
			return ctxlog.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			cmdServe(&cfgPath),
			cmdReport(&cfgPath, stdout),
			cmdConfig(&cfgPath, stdout),
		},
	}
}
