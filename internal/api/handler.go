package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/ctxlog"

	"github.com/phenowatch/phenowatch/internal/cache"
	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/internal/loader"
	"github.com/phenowatch/phenowatch/internal/pipeline"
	"github.com/phenowatch/phenowatch/internal/render"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// DefaultNotificationLimit is used when ?limit is absent.
const DefaultNotificationLimit = 50

// Runner produces reports. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context) (*compute.Report, error)
	Status() pipeline.Status
	Source() cache.Source
}

// Notifications lists sent notifications. *alerts.Engine implements it.
type Notifications interface {
	Recent(ctx context.Context, limit int) ([]*types.Notification, error)
}

// Handler serves /api/v1/*.
type Handler struct {
	runner Runner
	notes  Notifications
	router chi.Router
}

// New creates a Handler and registers all routes. notes may be nil, in which
// case /api/v1/notifications always returns an empty list.
func New(runner Runner, notes Notifications) *Handler {
	h := &Handler{runner: runner, notes: notes, router: chi.NewRouter()}

	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.RealIP)
	h.router.Use(middleware.Recoverer)
	h.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	h.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/report", h.report)
		r.Get("/weeks", h.weeks)
		r.Get("/alerts", h.alerts)
		r.Get("/thresholds", h.thresholds)
		r.Get("/series", h.series)
		r.Get("/notifications", h.notifications)
		r.Get("/chart.png", h.rendered(render.NewPNG()))
		r.Get("/chart.svg", h.rendered(render.NewSVG()))
		r.Get("/export.xlsx", h.rendered(render.XLSX{}))
		r.Get("/report.txt", h.text)
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health without touching the source.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	st := h.runner.Status()
	resp := HealthResponse{
		Source:       h.runner.Source().Describe(),
		Weeks:        st.Weeks,
		AlertedWeeks: st.Alerted,
		Runs:         st.Runs,
		Failures:     st.Failures,
	}
	switch {
	case st.Runs == 0:
		resp.State = "unknown"
	case st.Healthy():
		resp.State = "ok"
	default:
		resp.State = "error"
		resp.Error = st.LastError.Error()
	}
	if !st.LastRun.IsZero() {
		resp.LastRun = st.LastRun.UTC().Format(time.RFC3339)
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, render.NewDocument(rep))
}

// weeks returns GET /api/v1/weeks[?alerted=true].
func (h *Handler) weeks(w http.ResponseWriter, r *http.Request) {
	onlyAlerted, err := boolParam(r, "alerted")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid alerted parameter")
		return
	}
	rep, ok := h.run(w, r)
	if !ok {
		return
	}
	weeks := rep.Weeks
	if onlyAlerted {
		weeks = rep.Alerted()
	}
	jsonResp(w, http.StatusOK, render.NewWeekDocs(weeks))
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}
	resp := AlertsResponse{
		Columns: make([]string, 0, len(rep.AlertOrder)),
		Weeks:   render.NewWeekDocs(rep.Alerted()),
		Counts:  make(map[string]int, len(rep.AlertOrder)),
		Hints:   computeDiagnostics(rep),
	}
	for _, c := range rep.AlertOrder {
		resp.Columns = append(resp.Columns, c.AlertColumn())
	}
	for c, n := range rep.AlertCounts() {
		resp.Counts[string(c)] = n
	}
	if resp.Hints == nil {
		resp.Hints = []DiagnosticHint{}
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, render.NewThresholdDocs(rep))
}

func (h *Handler) series(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.run(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, render.NewSeries(rep))
}

// notifications returns GET /api/v1/notifications[?limit=N].
func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	limit := DefaultNotificationLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	resp := NotificationsResponse{Notifications: []NotificationResponse{}}
	if h.notes == nil {
		jsonResp(w, http.StatusOK, resp)
		return
	}
	list, err := h.notes.Recent(r.Context(), limit)
	if err != nil {
		ctxlog.From(r.Context()).Error("list notifications", "err", err)
		jsonErr(w, http.StatusInternalServerError, "cannot list notifications")
		return
	}
	for _, n := range list {
		resp.Notifications = append(resp.Notifications, NotificationResponse{
			ID:        n.ID,
			Week:      n.Week.Format(render.DateLayout),
			Category:  string(n.Category),
			Severity:  n.Severity,
			Count:     n.Count,
			Threshold: n.Threshold,
			Message:   n.Message,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	jsonResp(w, http.StatusOK, resp)
}

// text returns GET /api/v1/report.txt[?raw=true].
func (h *Handler) text(w http.ResponseWriter, r *http.Request) {
	raw, err := boolParam(r, "raw")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid raw parameter")
		return
	}
	h.rendered(render.Text{Raw: raw})(w, r)
}

// rendered serves the report in a binary or text format. The body is built in
// memory so a render failure can still be reported as JSON.
func (h *Handler) rendered(rd pipeline.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := h.run(w, r)
		if !ok {
			return
		}
		var buf bytes.Buffer
		if err := rd.Render(&buf, rep); err != nil {
			ctxlog.From(r.Context()).Error("render report", "content_type", rd.ContentType(), "err", err)
			jsonErr(w, http.StatusInternalServerError, "cannot render report")
			return
		}
		w.Header().Set("Content-Type", rd.ContentType())
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// --- helpers ----------------------------------------------------------------

// run executes the pipeline and writes the error response on failure.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) (*compute.Report, bool) {
	rep, err := h.runner.Run(r.Context())
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return nil, false
	}
	return rep, true
}

// statusFor maps a pipeline error to an HTTP status: bad data is 422, a
// source that cannot be reached or read is 502.
func statusFor(err error) int {
	for _, target := range []error{
		compute.ErrEmptyInput,
		compute.ErrNegativeCount,
		compute.ErrZeroTotal,
		compute.ErrDuplicateWeek,
		compute.ErrInvalidRule,
		compute.ErrCountOverflow,
		loader.ErrMissingColumn,
		loader.ErrMalformedValue,
		loader.ErrUnsupportedFormat,
		loader.ErrNoData,
	} {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusBadGateway
}

func boolParam(r *http.Request, name string) (bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
