package api

import (
	"fmt"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// DiagnosticHint is one human-readable explanation of an alert flag.
type DiagnosticHint struct {
	// Key is a stable identifier: "<category>:<week>".
	Key string `json:"key"`
	// Level is "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label for a chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is the count that triggered the flag.
	Value float64 `json:"value"`
}

// computeDiagnostics explains every set flag of every alerted week, critical
// hints first, then by week.
func computeDiagnostics(r *compute.Report) []DiagnosticHint {
	var critical, warning []DiagnosticHint
	for _, wk := range r.Alerted() {
		for _, c := range r.AlertOrder {
			if !wk.Flags[c] {
				continue
			}
			th, _ := r.Threshold(c)
			h := hintFor(wk, c, th)
			if h.Level == types.SeverityCritical {
				critical = append(critical, h)
			} else {
				warning = append(warning, h)
			}
		}
	}
	return append(critical, warning...)
}

func hintFor(wk compute.Week, c types.Category, th compute.Threshold) DiagnosticHint {
	day := wk.Week.Format("2006-01-02")
	count := wk.Counts[c]
	h := DiagnosticHint{
		Key:   string(c) + ":" + day,
		Level: types.SeverityWarning,
		Value: float64(count),
	}

	switch th.Method {
	case compute.MethodTukey:
		h.Title = fmt.Sprintf("%s above normal range", c)
		h.Detail = fmt.Sprintf(
			"%d %s cases in the week of %s (%.2f%% of %d). "+
				"Across all weeks the middle half of %s counts lies between %.2f and %.2f, "+
				"and anything above %.2f (the upper quartile plus %s) is unusual for this series.",
			count, c, day, wk.Percent[c], wk.Total, c, th.Q1, th.Q3, th.Value, iqrText(th))
	default:
		if c == types.VRSA {
			h.Level = types.SeverityCritical
		}
		h.Title = fmt.Sprintf("%s detected", c)
		h.Detail = fmt.Sprintf(
			"%d %s cases in the week of %s. Any week where the count is %s %g is reported "+
				"regardless of the other weeks.",
			count, c, day, th.Op, th.Value)
	}
	return h
}

func iqrText(th compute.Threshold) string {
	if th.IQR == 0 {
		return "nothing, since the counts do not vary"
	}
	k := (th.Value - th.Q3) / th.IQR
	return fmt.Sprintf("%g times the spread of %.2f", k, th.IQR)
}
