package cli

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/internal/alerts"
	"github.com/phenowatch/phenowatch/internal/cache"
	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/internal/config"
	"github.com/phenowatch/phenowatch/internal/ledger"
	"github.com/phenowatch/phenowatch/internal/loader"
	"github.com/phenowatch/phenowatch/internal/pipeline"
)

// loadConfig reads path when set. input, when set, replaces the configured
// source with a local file, so `report -i weekly.csv` works without a config.
func loadConfig(path, input string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		c, err := config.Read(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if input != "" {
		cfg.Source.Path = input
		cfg.Source.URL = ""
	}
	if err := config.Validate(cfg); err != nil {
		return nil, goerr.Wrap(err, "invalid config", goerr.V("path", path))
	}
	return cfg, nil
}

// components is everything built from one Config.
type components struct {
	source   loader.Source
	cache    *cache.Cache
	pipeline *pipeline.Pipeline
}

func buildPipeline(cfg *config.Config) (*components, error) {
	src, err := loader.New(cfg.Source)
	if err != nil {
		return nil, err
	}
	engine, err := compute.NewEngine(cfg.Analysis.ComputeRules(), compute.ZeroTotalPolicy(cfg.Analysis.ZeroTotal),
		compute.WithDuplicateWeeks(compute.DuplicateWeekPolicy(cfg.Analysis.DuplicateWeeks)))
	if err != nil {
		return nil, goerr.Wrap(err, "build compute engine")
	}
	c := cache.New(cfg.Source.RefreshInterval)
	return &components{
		source:   src,
		cache:    c,
		pipeline: pipeline.New(src, c, engine),
	}, nil
}

func openLedger(ctx context.Context, cfg config.HistoryConfig) (ledger.Ledger, error) {
	switch cfg.Backend {
	case "sqlite":
		ctxlog.From(ctx).Info("notification history", "backend", "sqlite", "path", cfg.Path)
		return ledger.OpenSQLite(cfg.Path)
	default:
		return ledger.NewMemory(), nil
	}
}

func buildDigest(cfg config.AlertsConfig, run alerts.RunFunc, e *alerts.Engine) (*alerts.Digest, error) {
	if cfg.DigestSchedule == "" {
		return nil, nil
	}
	return alerts.NewDigest(cfg.DigestSchedule, run, e)
}
