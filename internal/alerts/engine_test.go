package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/internal/config"
	"github.com/phenowatch/phenowatch/internal/ledger"
	"github.com/phenowatch/phenowatch/pkg/types"
)

func week(day int, mrsa, vrsa, other, wild int) types.WeeklyRecord {
	return types.WeeklyRecord{
		Week: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Counts: map[types.Category]int{
			types.MRSA: mrsa, types.VRSA: vrsa, types.Other: other, types.Wild: wild,
		},
	}
}

// sampleReport has two alerted weeks: Jan 21 (VRSA) and Jan 28 (MRSA).
func sampleReport(t *testing.T) *compute.Report {
	t.Helper()
	e, err := compute.NewEngine(nil, compute.ZeroTotalError)
	gt.NoError(t, err).Required()
	r, err := e.Evaluate(&types.Table{Source: "weekly.csv", Records: []types.WeeklyRecord{
		week(7, 5, 0, 2, 3),
		week(14, 2, 0, 2, 5),
		week(21, 3, 1, 2, 5),
		week(28, 100, 0, 2, 5),
	}})
	gt.NoError(t, err).Required()
	return r
}

// recorder is an httptest server that keeps every request body.
type recorder struct {
	mu     sync.Mutex
	bodies []string
	status int
	srv    *httptest.Server
}

func newRecorder(t *testing.T) *recorder {
	rec := &recorder{status: http.StatusOK}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, string(b))
		status := rec.status
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(rec.srv.Close)
	return rec
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bodies...)
}

func newTestEngine(t *testing.T, hooks ...config.WebhookConfig) *Engine {
	t.Helper()
	e := New(config.AlertsConfig{Webhooks: hooks, Timeout: 2 * time.Second}, ledger.NewMemory())
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	var seq int
	e.now = func() time.Time { seq++; return base.Add(time.Duration(seq) * time.Second) }
	e.newID = func() string { return "n" + strconv.Itoa(seq+1) }
	return e
}

func TestEvaluate_CreatesOnePerFlag(t *testing.T) {
	e := newTestEngine(t)
	got, err := e.Evaluate(context.Background(), sampleReport(t))
	gt.NoError(t, err).Required()
	gt.A(t, got).Length(2)

	gt.Equal(t, got[0].Week, time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC))
	gt.Equal(t, got[0].Category, types.VRSA)
	gt.Equal(t, got[0].Severity, types.SeverityCritical)
	gt.Equal(t, got[0].Count, 1)
	gt.Equal(t, got[0].Op, ">=")
	gt.Equal(t, got[0].Threshold, 1.0)
	gt.Equal(t, got[0].Source, "weekly.csv")

	gt.Equal(t, got[1].Category, types.MRSA)
	gt.Equal(t, got[1].Severity, types.SeverityWarning)
	gt.Equal(t, got[1].Count, 100)
	gt.S(t, got[1].Message).Contains("MRSA alert for week 2024-01-28")
}

func TestEvaluate_DoesNotRenotify(t *testing.T) {
	e := newTestEngine(t)
	r := sampleReport(t)

	_, err := e.Evaluate(context.Background(), r)
	gt.NoError(t, err).Required()
	again, err := e.Evaluate(context.Background(), r)
	gt.NoError(t, err).Required()
	gt.A(t, again).Length(0)

	recent, err := e.Recent(context.Background(), 10)
	gt.NoError(t, err).Required()
	gt.A(t, recent).Length(2)
	gt.Equal(t, recent[0].Category, types.MRSA)
}

func TestEvaluate_NoAlerts(t *testing.T) {
	e := newTestEngine(t)
	ce, err := compute.NewEngine(nil, compute.ZeroTotalError)
	gt.NoError(t, err).Required()
	r, err := ce.Evaluate(&types.Table{Records: []types.WeeklyRecord{week(7, 5, 0, 3, 2)}})
	gt.NoError(t, err).Required()

	got, err := e.Evaluate(context.Background(), r)
	gt.NoError(t, err).Required()
	gt.A(t, got).Length(0)
}

func TestDeliver_AllWebhookTypes(t *testing.T) {
	slackRec, teamsRec, httpRec := newRecorder(t), newRecorder(t), newRecorder(t)
	t.Setenv("SLACK_URL", slackRec.srv.URL)
	t.Setenv("TEAMS_URL", teamsRec.srv.URL)
	t.Setenv("HTTP_URL", httpRec.srv.URL)

	e := newTestEngine(t,
		config.WebhookConfig{Type: "slack", URLEnv: "SLACK_URL"},
		config.WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"},
		config.WebhookConfig{Type: "http", URLEnv: "HTTP_URL"},
		config.WebhookConfig{Type: "http", URLEnv: "UNSET_URL"},
	)
	_, err := e.Evaluate(context.Background(), sampleReport(t))
	gt.NoError(t, err).Required()
	e.Wait()

	slackBodies := slackRec.all()
	gt.A(t, slackBodies).Length(2)
	gt.S(t, slackBodies[0]).Contains("[CRITICAL]")
	gt.S(t, slackBodies[0]).Contains("VRSA alert")

	teamsBodies := teamsRec.all()
	gt.A(t, teamsBodies).Length(2)
	gt.S(t, teamsBodies[1]).Contains("MessageCard")
	gt.S(t, teamsBodies[1]).Contains("FF8C00")

	httpBodies := httpRec.all()
	gt.A(t, httpBodies).Length(2)
	var payload struct {
		Severity     string              `json:"severity"`
		Notification *types.Notification `json:"notification"`
	}
	gt.NoError(t, json.Unmarshal([]byte(httpBodies[1]), &payload)).Required()
	gt.Equal(t, payload.Severity, types.SeverityWarning)
	gt.V(t, payload.Notification).NotNil().Required()
	gt.Equal(t, payload.Notification.Category, types.MRSA)
}

func TestBroadcast_ReportsFailure(t *testing.T) {
	rec := newRecorder(t)
	rec.status = http.StatusInternalServerError
	t.Setenv("HOOK_URL", rec.srv.URL)

	e := newTestEngine(t, config.WebhookConfig{Type: "http", URLEnv: "HOOK_URL"})
	err := e.broadcast(context.Background(), message{Title: "t", Text: "x"})
	gt.Error(t, err)
}

func TestSeverityHelpers(t *testing.T) {
	gt.Equal(t, severityFor(types.VRSA), types.SeverityCritical)
	gt.Equal(t, severityFor(types.MRSA), types.SeverityWarning)
	gt.Equal(t, severityFor(types.Other), types.SeverityWarning)
	gt.Equal(t, severityLabel("critical"), "[CRITICAL]")
	gt.Equal(t, severityLabel(""), "[INFO]")
}

func TestDigest(t *testing.T) {
	rec := newRecorder(t)
	t.Setenv("HOOK_URL", rec.srv.URL)
	e := newTestEngine(t, config.WebhookConfig{Type: "http", URLEnv: "HOOK_URL"})

	r := sampleReport(t)
	d, err := NewDigest("0 8 * * 1", func(context.Context) (*compute.Report, error) { return r, nil }, e)
	gt.NoError(t, err).Required()

	// 2024-01-01 is a Monday.
	from := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	gt.True(t, d.Next(from).Equal(time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)))

	gt.NoError(t, d.Send(context.Background())).Required()
	bodies := rec.all()
	gt.A(t, bodies).Length(1)
	gt.S(t, bodies[0]).Contains("2 of 4 weeks alerted")
	gt.S(t, bodies[0]).Contains("2024-01-21: VRSA=1")
	gt.S(t, bodies[0]).Contains("2024-01-28: MRSA=100")
	gt.S(t, bodies[0]).Contains(`"severity":"critical"`)
}

func TestDigest_InvalidSchedule(t *testing.T) {
	_, err := NewDigest("every monday", nil, nil)
	gt.Error(t, err)

	d, err := NewDigest("@daily", nil, nil)
	gt.NoError(t, err).Required()
	gt.True(t, strings.HasPrefix(d.spec, "@"))
}

func TestDigest_RunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t)
	d, err := NewDigest("0 0 1 1 *", func(context.Context) (*compute.Report, error) { return nil, nil }, e)
	gt.NoError(t, err).Required()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
