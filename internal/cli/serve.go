package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/ctxlog"
	"github.com/urfave/cli/v3"

	"github.com/phenowatch/phenowatch/internal/alerts"
	"github.com/phenowatch/phenowatch/internal/config"
	"github.com/phenowatch/phenowatch/internal/loader"
	"github.com/phenowatch/phenowatch/internal/server"
)

func cmdServe(cfgPath *string) *cli.Command {
	var (
		input string
		addr  string
		uiDir string
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "run the dashboard server and alert notifier",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "local CSV/XLSX/XLS file, overrides source in the config",
				Sources:     cli.EnvVars("PHENOWATCH_INPUT"),
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "HTTP listen address, overrides server.http_addr",
				Sources:     cli.EnvVars("PHENOWATCH_ADDR"),
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "ui-dir",
				Usage:       "serve a pre-built static UI from this directory",
				Destination: &uiDir,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := loadConfig(*cfgPath, input)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.HTTPAddr = addr
			}
			if uiDir != "" {
				cfg.Server.UIDir = uiDir
			}
			return serve(ctx, *cfgPath, cfg)
		},
	}
}

func serve(ctx context.Context, cfgPath string, cfg *config.Config) error {
	logger := ctxlog.From(ctx)
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comp, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	history, err := openLedger(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Warn("close notification history", "err", err)
		}
	}()

	notifier := alerts.New(cfg.Alerts, history)
	digest, err := buildDigest(cfg.Alerts, comp.pipeline.Run, notifier)
	if err != nil {
		return err
	}

	var watchPath string
	if fs, ok := comp.source.(*loader.FileSource); ok {
		watchPath = fs.Path()
	}

	logger.Info("phenowatch starting",
		"source", comp.source.Describe(),
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"webhooks", len(cfg.Alerts.Webhooks),
		"digest", cfg.Alerts.DigestSchedule,
		"history", cfg.History.Backend,
	)

	if cfgPath != "" {
		// Reloads are logged; changing the running source needs a restart.
		go func() {
			if err := config.Watch(ctx, cfgPath, func(updated *config.Config) {
				logger.Info("config file changed",
					"source", updated.Source.Describe(),
					"restart_required", updated.Source.Describe() != cfg.Source.Describe())
			}); err != nil {
				logger.Error("config watcher stopped", "err", err)
			}
		}()
	}

	srv := server.New(cfg.Server, server.Options{
		Pipeline:        comp.pipeline,
		Cache:           comp.cache,
		Alerts:          notifier,
		Digest:          digest,
		RefreshInterval: cfg.Source.RefreshInterval,
		WatchPath:       watchPath,
	})
	return srv.Run(ctx)
}
