package compute

import (
	"math"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// ZeroTotalPolicy decides what Evaluate does with a week whose four counts
// are all zero, where percentages are undefined.
type ZeroTotalPolicy string

const (
	// ZeroTotalError rejects the table with ErrZeroTotal.
	ZeroTotalError ZeroTotalPolicy = "error"

	// ZeroTotalZero reports 0% for every category and marks the week.
	ZeroTotalZero ZeroTotalPolicy = "zero"
)

// DuplicateWeekPolicy decides what Evaluate does when two rows share a week.
type DuplicateWeekPolicy string

const (
	// DuplicateWeekError rejects the table with ErrDuplicateWeek.
	DuplicateWeekError DuplicateWeekPolicy = "error"

	// DuplicateWeekKeep keeps every row, in input order within the week. All
	// rows count towards the thresholds.
	DuplicateWeekKeep DuplicateWeekPolicy = "keep"
)

// Engine evaluates alert rules over weekly tables. An Engine holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	rules      []Rule
	zeroTotal  ZeroTotalPolicy
	duplicates DuplicateWeekPolicy
}

// Option configures an Engine.
type Option func(*Engine)

// WithDuplicateWeeks sets the duplicate-week policy. The default is
// DuplicateWeekError.
func WithDuplicateWeeks(p DuplicateWeekPolicy) Option {
	return func(e *Engine) { e.duplicates = p }
}

// NewEngine returns an Engine for the given rules. A nil or empty rules slice
// uses DefaultRules; an empty policy means ZeroTotalError.
func NewEngine(rules []Rule, policy ZeroTotalPolicy, opts ...Option) (*Engine, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	switch policy {
	case "":
		policy = ZeroTotalError
	case ZeroTotalError, ZeroTotalZero:
	default:
		return nil, goerr.New("unknown zero-total policy", goerr.V("policy", policy))
	}
	e := &Engine{rules: append([]Rule(nil), rules...), zeroTotal: policy, duplicates: DuplicateWeekError}
	for _, opt := range opts {
		opt(e)
	}
	switch e.duplicates {
	case "":
		e.duplicates = DuplicateWeekError
	case DuplicateWeekError, DuplicateWeekKeep:
	default:
		return nil, goerr.New("unknown duplicate-week policy", goerr.V("policy", e.duplicates))
	}
	return e, nil
}

// Rules returns a copy of the engine's rules.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate derives totals, percentages, thresholds and alert flags for tbl.
//
// Thresholds are computed once over the complete series of each category and
// then applied to every week. Weeks in the report are sorted by date; the
// input table is not modified.
func (e *Engine) Evaluate(tbl *types.Table) (*Report, error) {
	if tbl.Len() == 0 {
		return nil, ErrEmptyInput
	}

	records, err := normalise(tbl.Records, e.duplicates)
	if err != nil {
		return nil, err
	}

	weeks := make([]Week, 0, len(records))
	for _, rec := range records {
		w, err := derive(rec, e.zeroTotal)
		if err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}

	sorted := &types.Table{Records: records}
	thresholds := make([]Threshold, 0, len(e.rules))
	for _, r := range e.rules {
		thresholds = append(thresholds, r.threshold(sorted.Series(r.Category)))
	}

	for i := range weeks {
		weeks[i].Flags = make(Flags, len(thresholds))
		for _, th := range thresholds {
			v := float64(weeks[i].Counts[th.Category])
			weeks[i].Flags[th.Category] = compareFloat(v, th.Op, th.Value)
		}
	}

	return &Report{
		Source:     tbl.Source,
		LoadedAt:   tbl.LoadedAt,
		Weeks:      weeks,
		Thresholds: thresholds,
		AlertOrder: alertOrder(e.rules),
	}, nil
}

// normalise validates records and returns a copy sorted by week.
func normalise(in []types.WeeklyRecord, duplicates DuplicateWeekPolicy) ([]types.WeeklyRecord, error) {
	out := make([]types.WeeklyRecord, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Week.Before(out[j].Week) })

	var prev time.Time
	for i, rec := range out {
		if i > 0 && rec.Week.Equal(prev) && duplicates != DuplicateWeekKeep {
			return nil, goerr.Wrap(ErrDuplicateWeek, "week appears more than once",
				goerr.V("week", rec.Week.Format(time.DateOnly)))
		}
		prev = rec.Week
		for _, c := range types.Categories {
			if n := rec.Count(c); n < 0 {
				return nil, goerr.Wrap(ErrNegativeCount, "count must be >= 0",
					goerr.V("week", rec.Week.Format(time.DateOnly)),
					goerr.V("category", c),
					goerr.V("count", n))
			}
		}
	}
	return out, nil
}

// derive adds the total and rounded percentages to a single record.
func derive(rec types.WeeklyRecord, policy ZeroTotalPolicy) (Week, error) {
	w := Week{
		Week:    rec.Week,
		Counts:  make(map[types.Category]int, len(types.Categories)),
		Percent: make(map[types.Category]float64, len(types.Categories)),
	}
	for _, c := range types.Categories {
		n := rec.Count(c)
		if n > math.MaxInt-w.Total {
			return Week{}, goerr.Wrap(ErrCountOverflow, "total exceeds int range",
				goerr.V("week", rec.Week.Format(time.DateOnly)),
				goerr.V("category", c),
				goerr.V("count", n))
		}
		w.Counts[c] = n
		w.Total += n
	}

	if w.Total == 0 {
		if policy != ZeroTotalZero {
			return Week{}, goerr.Wrap(ErrZeroTotal, "percentages undefined",
				goerr.V("week", rec.Week.Format(time.DateOnly)))
		}
		w.ZeroTotal = true
		for _, c := range types.Categories {
			w.Percent[c] = 0
		}
		return w, nil
	}

	for _, c := range types.Categories {
		w.Percent[c] = round2(float64(w.Counts[c]) / float64(w.Total) * 100)
	}
	return w, nil
}

// round2 rounds v to two decimals, ties to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func alertOrder(rules []Rule) []types.Category {
	var out []types.Category
	for _, c := range []types.Category{types.MRSA, types.Other, types.VRSA, types.Wild} {
		for _, r := range rules {
			if r.Category == c {
				out = append(out, c)
			}
		}
	}
	return out
}
