// Package pipeline wires a table source, the load cache and the compute
// engine into one call that yields an evaluated report.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/internal/cache"
	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// Renderer writes a report in some output format.
type Renderer interface {
	Render(w io.Writer, r *compute.Report) error
	ContentType() string
}

// Status describes the outcome of the most recent run.
type Status struct {
	LastRun   time.Time
	LastError error
	Runs      uint64
	Failures  uint64

	// Weeks and Alerted are from the last successful run.
	Weeks   int
	Alerted int
}

// Healthy reports whether the last run succeeded.
func (s Status) Healthy() bool { return s.Runs > 0 && s.LastError == nil }

// Pipeline is safe for concurrent use.
type Pipeline struct {
	src    cache.Source
	cache  *cache.Cache
	engine *compute.Engine
	now    func() time.Time

	mu     sync.RWMutex
	status Status
}

// New returns a Pipeline. A nil cache loads the source on every run.
func New(src cache.Source, c *cache.Cache, engine *compute.Engine) *Pipeline {
	return &Pipeline{src: src, cache: c, engine: engine, now: time.Now}
}

// Source returns the pipeline's source.
func (p *Pipeline) Source() cache.Source { return p.src }

// Engine returns the pipeline's compute engine.
func (p *Pipeline) Engine() *compute.Engine { return p.engine }

// Run loads the table (through the cache when set) and evaluates it.
func (p *Pipeline) Run(ctx context.Context) (*compute.Report, error) {
	report, err := p.run(ctx)

	p.mu.Lock()
	p.status.LastRun = p.now()
	p.status.LastError = err
	p.status.Runs++
	if err != nil {
		p.status.Failures++
	} else {
		p.status.Weeks = len(report.Weeks)
		p.status.Alerted = len(report.Alerted())
	}
	p.mu.Unlock()

	if err != nil {
		slog.Warn("pipeline: run failed", "source", p.src.Describe(), "err", err)
		return nil, err
	}
	return report, nil
}

func (p *Pipeline) run(ctx context.Context) (*compute.Report, error) {
	tbl, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	report, err := p.engine.Evaluate(tbl)
	if err != nil {
		return nil, goerr.Wrap(err, "evaluate table", goerr.V("source", p.src.Describe()))
	}
	return report, nil
}

func (p *Pipeline) load(ctx context.Context) (*types.Table, error) {
	if p.cache != nil {
		return p.cache.Get(ctx, p.src)
	}
	tbl, err := p.src.Load(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "load source", goerr.V("source", p.src.Describe()))
	}
	return tbl, nil
}

// Status returns a copy of the run status.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// RenderTo runs the pipeline and writes the report with r.
func (p *Pipeline) RenderTo(ctx context.Context, w io.Writer, r Renderer) error {
	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if err := r.Render(w, report); err != nil {
		return goerr.Wrap(err, "render report", goerr.V("content_type", r.ContentType()))
	}
	return nil
}
