package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// RunFunc produces a fresh report, typically pipeline.Run.
type RunFunc func(ctx context.Context) (*compute.Report, error)

// Digest periodically posts a summary of every alerted week to the engine's
// webhooks.
type Digest struct {
	spec     string
	schedule cron.Schedule
	run      RunFunc
	engine   *Engine
	now      func() time.Time
}

// NewDigest parses a standard 5-field cron expression (minute hour
// day-of-month month day-of-week) or a descriptor such as "@daily".
func NewDigest(spec string, run RunFunc, e *Engine) (*Digest, error) {
	spec = strings.TrimSpace(spec)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, goerr.Wrap(err, "parse digest schedule", goerr.V("schedule", spec))
	}
	return &Digest{spec: spec, schedule: sched, run: run, engine: e, now: time.Now}, nil
}

// Next returns the first activation strictly after t.
func (d *Digest) Next(t time.Time) time.Time { return d.schedule.Next(t) }

// Run waits for each scheduled activation and sends a digest. It blocks until
// ctx is cancelled.
func (d *Digest) Run(ctx context.Context) {
	for {
		now := d.now()
		next := d.schedule.Next(now)
		wait := next.Sub(now)
		slog.Info("alerts: next digest", "at", next.Format(time.RFC3339), "in", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := d.Send(ctx); err != nil {
			slog.Error("alerts: digest failed", "err", err)
		}
	}
}

// Send runs the pipeline once and posts the summary immediately.
func (d *Digest) Send(ctx context.Context) error {
	r, err := d.run(ctx)
	if err != nil {
		return goerr.Wrap(err, "run pipeline for digest")
	}
	return d.engine.broadcast(ctx, digestMessage(r))
}

func digestMessage(r *compute.Report) message {
	lines := summarize(r)
	msg := message{
		Title:    fmt.Sprintf("Weekly alert digest: %d of %d weeks alerted", len(lines), len(r.Weeks)),
		Severity: types.SeverityWarning,
	}
	for _, wk := range r.Alerted() {
		if wk.Flags[types.VRSA] {
			msg.Severity = types.SeverityCritical
			break
		}
	}
	if len(lines) == 0 {
		msg.Text = "No alerted weeks."
		msg.Severity = ""
		return msg
	}
	msg.Text = strings.Join(lines, "\n")
	return msg
}
