package render

import (
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// DateLayout is how weeks are written in every text format.
const DateLayout = "2006-01-02"

// WeekDoc is one derived row in the wide layout, with the same column names
// the input and the XLSX export use.
type WeekDoc struct {
	Week  string `json:"week"`
	MRSA  int    `json:"MRSA"`
	VRSA  int    `json:"VRSA"`
	Other int    `json:"Other"`
	Wild  int    `json:"Wild"`
	Total int    `json:"Total"`

	MRSAPct  float64 `json:"MRSA_%"`
	VRSAPct  float64 `json:"VRSA_%"`
	OtherPct float64 `json:"Other_%"`
	WildPct  float64 `json:"Wild_%"`

	// Alert flags are present only for categories with a rule.
	MRSAAlert  *bool `json:"MRSA_alert,omitempty"`
	OtherAlert *bool `json:"Other_alert,omitempty"`
	VRSAAlert  *bool `json:"VRSA_alert,omitempty"`
	WildAlert  *bool `json:"Wild_alert,omitempty"`

	Alert     bool `json:"alert"`
	ZeroTotal bool `json:"zero_total,omitempty"`
}

// ThresholdDoc describes how one category's flag was computed.
type ThresholdDoc struct {
	Category  string  `json:"category"`
	Method    string  `json:"method"`
	Rule      string  `json:"rule"`
	Op        string  `json:"op"`
	Threshold float64 `json:"threshold"`
	Q1        float64 `json:"q1,omitempty"`
	Q3        float64 `json:"q3,omitempty"`
	IQR       float64 `json:"iqr,omitempty"`
}

// SeriesPoint is one long-format chart point.
type SeriesPoint struct {
	Week       string  `json:"week"`
	Phenotype  string  `json:"phenotype"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
	Color      string  `json:"color"`
}

// Document is the full JSON rendering of a report.
type Document struct {
	Source     string         `json:"source"`
	LoadedAt   string         `json:"loaded_at"` // RFC3339
	Weeks      []WeekDoc      `json:"weeks"`
	Alerts     []WeekDoc      `json:"alerts"`
	Thresholds []ThresholdDoc `json:"thresholds"`
}

// NewWeekDoc converts a derived week.
func NewWeekDoc(w compute.Week) WeekDoc {
	d := WeekDoc{
		Week:      w.Week.Format(DateLayout),
		MRSA:      w.Counts[types.MRSA],
		VRSA:      w.Counts[types.VRSA],
		Other:     w.Counts[types.Other],
		Wild:      w.Counts[types.Wild],
		Total:     w.Total,
		MRSAPct:   w.Percent[types.MRSA],
		VRSAPct:   w.Percent[types.VRSA],
		OtherPct:  w.Percent[types.Other],
		WildPct:   w.Percent[types.Wild],
		Alert:     w.Alerted(),
		ZeroTotal: w.ZeroTotal,
	}
	d.MRSAAlert = flag(w.Flags, types.MRSA)
	d.OtherAlert = flag(w.Flags, types.Other)
	d.VRSAAlert = flag(w.Flags, types.VRSA)
	d.WildAlert = flag(w.Flags, types.Wild)
	return d
}

func flag(f compute.Flags, c types.Category) *bool {
	v, ok := f[c]
	if !ok {
		return nil
	}
	return &v
}

// NewWeekDocs converts a slice of weeks, never returning nil.
func NewWeekDocs(weeks []compute.Week) []WeekDoc {
	out := make([]WeekDoc, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, NewWeekDoc(w))
	}
	return out
}

// NewThresholdDocs converts the report's thresholds.
func NewThresholdDocs(r *compute.Report) []ThresholdDoc {
	out := make([]ThresholdDoc, 0, len(r.Thresholds))
	for _, th := range r.Thresholds {
		out = append(out, ThresholdDoc{
			Category:  string(th.Category),
			Method:    string(th.Method),
			Rule:      th.Rule,
			Op:        th.Op,
			Threshold: th.Value,
			Q1:        th.Q1,
			Q3:        th.Q3,
			IQR:       th.IQR,
		})
	}
	return out
}

// NewSeries converts the report to long format.
func NewSeries(r *compute.Report) []SeriesPoint {
	rows := r.Melt()
	out := make([]SeriesPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, SeriesPoint{
			Week:       row.Week.Format(DateLayout),
			Phenotype:  row.Phenotype,
			Percentage: row.Percentage,
			Count:      row.Count,
			Color:      Colors[row.Category],
		})
	}
	return out
}

// NewDocument converts a whole report.
func NewDocument(r *compute.Report) Document {
	return Document{
		Source:     r.Source,
		LoadedAt:   r.LoadedAt.UTC().Format(time.RFC3339),
		Weeks:      NewWeekDocs(r.Weeks),
		Alerts:     NewWeekDocs(r.Alerted()),
		Thresholds: NewThresholdDocs(r),
	}
}

// JSON renders a Document.
type JSON struct {
	Indent bool
}

// ContentType implements pipeline.Renderer.
func (JSON) ContentType() string { return "application/json" }

// Render implements pipeline.Renderer.
func (j JSON) Render(w io.Writer, r *compute.Report) error {
	enc := json.NewEncoder(w)
	if j.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(NewDocument(r)); err != nil {
		return goerr.Wrap(err, "encode report json")
	}
	return nil
}
