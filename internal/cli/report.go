package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/phenowatch/phenowatch/internal/pipeline"
	"github.com/phenowatch/phenowatch/internal/render"
)

func cmdReport(cfgPath *string, stdout io.Writer) *cli.Command {
	var (
		input  string
		format string
		output string
		raw    bool
	)

	return &cli.Command{
		Name:  "report",
		Usage: "evaluate the table once and write the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "local CSV/XLSX/XLS file, overrides source in the config",
				Sources:     cli.EnvVars("PHENOWATCH_INPUT"),
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "text, json, png, svg or xlsx (default: from --output extension, else text)",
				Destination: &format,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output file; - or empty writes to stdout",
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "include the full derived table in text output",
				Destination: &raw,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := loadConfig(*cfgPath, input)
			if err != nil {
				return err
			}
			rd, err := renderer(format, output, raw)
			if err != nil {
				return err
			}
			comp, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			ctxlog.From(ctx).Debug("rendering report",
				"source", comp.source.Describe(), "content_type", rd.ContentType(), "output", output)

			if output == "" || output == "-" {
				return comp.pipeline.RenderTo(ctx, stdout, rd)
			}
			return writeFile(ctx, output, comp.pipeline, rd)
		},
	}
}

// renderer picks the output format from the flag, then from the output file
// extension.
func renderer(format, output string, raw bool) (pipeline.Renderer, error) {
	if format == "" && output != "" && output != "-" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
		if format == "txt" {
			format = "text"
		}
	}
	switch strings.ToLower(format) {
	case "", "text":
		return render.Text{Raw: raw}, nil
	case "json":
		return render.JSON{Indent: true}, nil
	case "png":
		return render.NewPNG(), nil
	case "svg":
		return render.NewSVG(), nil
	case "xlsx":
		return render.XLSX{}, nil
	default:
		return nil, goerr.New("unknown report format", goerr.V("format", format))
	}
}

// writeFile renders into a temporary file next to path and renames it, so a
// failed run never leaves a truncated report behind.
func writeFile(ctx context.Context, path string, p *pipeline.Pipeline, rd pipeline.Renderer) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return goerr.Wrap(err, "create output file", goerr.V("path", path))
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := p.RenderTo(ctx, tmp, rd); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "close output file", goerr.V("path", path))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return goerr.Wrap(err, "rename output file", goerr.V("path", path))
	}
	return nil
}
