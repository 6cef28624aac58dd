// Package metrics exposes pipeline and alert state in the Prometheus text
// exposition format. Families are built directly as client_model protobufs
// on each scrape from a Snapshot, so there is no registry to keep in sync.
package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/phenowatch/phenowatch/internal/cache"
	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/internal/pipeline"
	"github.com/phenowatch/phenowatch/pkg/types"
)

const namespace = "phenowatch_"

// Snapshot is everything a scrape reports.
type Snapshot struct {
	// Report is the latest successful report, nil if none.
	Report *compute.Report

	Status    pipeline.Status
	Cache     cache.Stats
	WSClients int
}

// Families converts s into metric families sorted by name.
func Families(s Snapshot) []*dto.MetricFamily {
	fams := []*dto.MetricFamily{
		counter("pipeline_runs_total", "Pipeline runs since start.", float64(s.Status.Runs)),
		counter("pipeline_failures_total", "Pipeline runs that returned an error.", float64(s.Status.Failures)),
		gauge("pipeline_healthy", "1 if the last pipeline run succeeded.", boolValue(s.Status.Healthy())),
		counter("cache_hits_total", "Table cache hits.", float64(s.Cache.Hits)),
		counter("cache_loads_total", "Source loads performed by the table cache.", float64(s.Cache.Loads)),
		counter("cache_errors_total", "Source version or load errors seen by the table cache.", float64(s.Cache.Errors)),
		gauge("ws_clients", "Connected WebSocket clients.", float64(s.WSClients)),
	}
	if !s.Status.LastRun.IsZero() {
		fams = append(fams, gauge("pipeline_last_run_timestamp_seconds",
			"Unix time of the last pipeline run.", float64(s.Status.LastRun.UnixNano())/1e9))
	}

	if r := s.Report; r != nil {
		fams = append(fams,
			gauge("weeks", "Weeks in the current table.", float64(len(r.Weeks))),
			gauge("alerted_weeks", "Weeks with at least one alert flag set.", float64(len(r.Alerted()))),
			gauge("source_loaded_timestamp_seconds", "Unix time the current table was loaded.",
				float64(r.LoadedAt.UnixNano())/1e9),
			categoryAlerts(r),
			thresholds(r),
		)
		if n := len(r.Weeks); n > 0 {
			fams = append(fams, latestPercent(r.Weeks[n-1]))
		}
	}

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// Write encodes the families of s in text format.
func Write(w io.Writer, s Snapshot) error {
	for _, mf := range Families(s) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return goerr.Wrap(err, "write metric family", goerr.V("name", mf.GetName()))
		}
	}
	return nil
}

// Handler serves the exposition of whatever collect returns.
func Handler(collect func(ctx context.Context) Snapshot) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := Write(w, collect(r.Context())); err != nil {
			slog.Warn("metrics: write exposition", "err", err)
		}
	})
}

func categoryAlerts(r *compute.Report) *dto.MetricFamily {
	counts := r.AlertCounts()
	mf := family("category_alerted_weeks", "Weeks flagged per category.", dto.MetricType_GAUGE)
	for _, c := range r.AlertOrder {
		mf.Metric = append(mf.Metric, gaugeMetric(float64(counts[c]), label("category", string(c))))
	}
	return mf
}

func thresholds(r *compute.Report) *dto.MetricFamily {
	mf := family("threshold", "Alert threshold per category; a week is flagged when count op threshold.", dto.MetricType_GAUGE)
	for _, th := range r.Thresholds {
		mf.Metric = append(mf.Metric, gaugeMetric(th.Value,
			label("category", string(th.Category)),
			label("method", string(th.Method)),
			label("op", th.Op),
		))
	}
	return mf
}

func latestPercent(w compute.Week) *dto.MetricFamily {
	mf := family("latest_week_percent", "Share of cases per phenotype in the most recent week.", dto.MetricType_GAUGE)
	for _, c := range types.Categories {
		mf.Metric = append(mf.Metric, gaugeMetric(w.Percent[c], label("category", string(c))))
	}
	return mf
}

func family(name, help string, t dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: t.Enum(),
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_GAUGE)
	mf.Metric = []*dto.Metric{gaugeMetric(v)}
	return mf
}

func counter(name, help string, v float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_COUNTER)
	mf.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}}
	return mf
}

func gaugeMetric(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
