package compute

import (
	"time"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// Flags holds the per-category alert flags of one week. Only categories with
// a rule have an entry.
type Flags map[types.Category]bool

// Any reports whether at least one flag is set.
func (f Flags) Any() bool {
	for _, v := range f {
		if v {
			return true
		}
	}
	return false
}

// Week is one derived row: the raw counts plus total, rounded percentages
// and alert flags.
type Week struct {
	Week    time.Time
	Counts  map[types.Category]int
	Total   int
	Percent map[types.Category]float64
	Flags   Flags

	// ZeroTotal is set when Total is 0 under ZeroTotalZero; Percent is all
	// zeros in that case.
	ZeroTotal bool
}

// Alerted reports whether any flag is set for this week.
func (w Week) Alerted() bool { return w.Flags.Any() }

// Threshold records how a category's flag was computed.
type Threshold struct {
	Category types.Category
	Method   Method
	Rule     string

	// Op and Value: a week is flagged when count Op Value.
	Op    string
	Value float64

	// Q1, Q3 and IQR are only set for MethodTukey.
	Q1  float64
	Q3  float64
	IQR float64
}

// Report is the output of Engine.Evaluate.
type Report struct {
	Source   string
	LoadedAt time.Time

	// Weeks is sorted by date.
	Weeks      []Week
	Thresholds []Threshold

	// AlertOrder lists the categories that carry a flag, in display order.
	AlertOrder []types.Category
}

// Threshold returns the threshold for c and whether one exists.
func (r *Report) Threshold(c types.Category) (Threshold, bool) {
	for _, th := range r.Thresholds {
		if th.Category == c {
			return th, true
		}
	}
	return Threshold{}, false
}

// Alerted returns only the weeks with at least one flag set, in date order.
func (r *Report) Alerted() []Week {
	out := make([]Week, 0)
	for _, w := range r.Weeks {
		if w.Alerted() {
			out = append(out, w)
		}
	}
	return out
}

// AlertCounts returns how many weeks each flagged category fired in.
func (r *Report) AlertCounts() map[types.Category]int {
	out := make(map[types.Category]int, len(r.AlertOrder))
	for _, c := range r.AlertOrder {
		out[c] = 0
	}
	for _, w := range r.Weeks {
		for c, v := range w.Flags {
			if v {
				out[c]++
			}
		}
	}
	return out
}

// LongRow is one point of the long-format view: one phenotype in one week.
type LongRow struct {
	Week       time.Time
	Phenotype  string // percentage column name, e.g. "MRSA_%"
	Category   types.Category
	Percentage float64
	Count      int
}

// Melt reshapes the report into long format: for each category in canonical
// order, one row per week. Each row pairs the percentage with the raw count
// so hover text can show both.
func (r *Report) Melt() []LongRow {
	out := make([]LongRow, 0, len(r.Weeks)*len(types.Categories))
	for _, c := range types.Categories {
		for _, w := range r.Weeks {
			out = append(out, LongRow{
				Week:       w.Week,
				Phenotype:  c.PercentColumn(),
				Category:   c,
				Percentage: w.Percent[c],
				Count:      w.Counts[c],
			})
		}
	}
	return out
}
