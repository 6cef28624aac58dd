package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/internal/config"
	"github.com/phenowatch/phenowatch/internal/ledger"
	"github.com/phenowatch/phenowatch/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Engine creates notifications for alerted weeks and delivers them.
//
// Engine is safe for concurrent use.
type Engine struct {
	ledger   ledger.Ledger
	webhooks []config.WebhookConfig
	client   *http.Client

	now   func() time.Time
	newID func() string

	// mu serialises Evaluate so two overlapping runs cannot both miss the
	// ledger entry the other is about to write.
	mu sync.Mutex
	wg sync.WaitGroup
}

// New creates an Engine. A nil ledger keeps history in memory only.
func New(cfg config.AlertsConfig, l ledger.Ledger) *Engine {
	if l == nil {
		l = ledger.NewMemory()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{
		ledger:   l,
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Evaluate records and delivers a notification for every flag in r that has
// not been notified before. It returns the new notifications in week order.
// Delivery happens in the background; use Wait to block until it finishes.
func (e *Engine) Evaluate(ctx context.Context, r *compute.Report) ([]*types.Notification, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fresh []*types.Notification
	for _, wk := range r.Alerted() {
		for _, c := range r.AlertOrder {
			if !wk.Flags[c] {
				continue
			}
			th, _ := r.Threshold(c)
			n := e.newNotification(r.Source, wk, c, th)

			ok, err := e.ledger.Claim(ctx, n)
			if err != nil {
				return fresh, goerr.Wrap(err, "claim notification",
					goerr.V("week", n.Week), goerr.V("category", c))
			}
			if !ok {
				continue
			}
			fresh = append(fresh, n)

			slog.Warn("alert fired",
				"week", n.Week.Format("2006-01-02"),
				"category", c,
				"count", n.Count,
				"threshold", th.Value,
				"severity", n.Severity,
			)
		}
	}

	if len(fresh) > 0 && len(e.webhooks) > 0 {
		batch := append([]*types.Notification(nil), fresh...)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for _, n := range batch {
				e.deliver(context.WithoutCancel(ctx), n)
			}
		}()
	}
	return fresh, nil
}

// Recent returns up to limit sent notifications, newest first.
func (e *Engine) Recent(ctx context.Context, limit int) ([]*types.Notification, error) {
	out, err := e.ledger.Recent(ctx, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "list notifications")
	}
	return out, nil
}

// Wait blocks until all background deliveries started so far have finished.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) newNotification(source string, wk compute.Week, c types.Category, th compute.Threshold) *types.Notification {
	sev := severityFor(c)
	count := wk.Counts[c]
	return &types.Notification{
		ID:        e.newID(),
		Source:    source,
		Week:      wk.Week,
		Category:  c,
		Severity:  sev,
		Count:     count,
		Op:        th.Op,
		Threshold: th.Value,
		Rule:      th.Rule,
		Message: fmt.Sprintf("%s alert for week %s: %d cases (%.2f%% of %d), rule %s",
			c, wk.Week.Format("2006-01-02"), count, wk.Percent[c], wk.Total, th.Rule),
		CreatedAt: e.now(),
	}
}

func severityFor(c types.Category) string {
	if c == types.VRSA {
		return types.SeverityCritical
	}
	return types.SeverityWarning
}

// summarize renders one line per alerted week, e.g.
// "2024-01-21: VRSA=1" or "2024-01-28: MRSA=100, Other=9".
func summarize(r *compute.Report) []string {
	lines := make([]string, 0)
	for _, wk := range r.Alerted() {
		parts := make([]string, 0, len(r.AlertOrder))
		for _, c := range r.AlertOrder {
			if wk.Flags[c] {
				parts = append(parts, fmt.Sprintf("%s=%d", c, wk.Counts[c]))
			}
		}
		lines = append(lines, wk.Week.Format("2006-01-02")+": "+strings.Join(parts, ", "))
	}
	return lines
}
