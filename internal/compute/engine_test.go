package compute_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// baseWeek is a fixed Monday so all week dates are deterministic.
var baseWeek = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// week returns baseWeek advanced by n weeks.
func week(n int) time.Time {
	return baseWeek.AddDate(0, 0, 7*n)
}

func rec(n, mrsa, vrsa, other, wild int) types.WeeklyRecord {
	return types.WeeklyRecord{
		Week: week(n),
		Counts: map[types.Category]int{
			types.MRSA:  mrsa,
			types.VRSA:  vrsa,
			types.Other: other,
			types.Wild:  wild,
		},
	}
}

func table(records ...types.WeeklyRecord) *types.Table {
	return &types.Table{Source: "test.csv", LoadedAt: baseWeek, Records: records}
}

func newEngine(t *testing.T) *compute.Engine {
	t.Helper()
	e, err := compute.NewEngine(nil, "")
	gt.NoError(t, err).Required()
	return e
}

func TestEvaluate_SingleWeekPercentages(t *testing.T) {
	r, err := newEngine(t).Evaluate(table(rec(0, 5, 0, 3, 2)))
	gt.NoError(t, err).Required()
	gt.A(t, r.Weeks).Length(1)

	w := r.Weeks[0]
	gt.Equal(t, w.Total, 10)
	gt.Equal(t, w.Percent[types.MRSA], 50.0)
	gt.Equal(t, w.Percent[types.VRSA], 0.0)
	gt.Equal(t, w.Percent[types.Other], 30.0)
	gt.Equal(t, w.Percent[types.Wild], 20.0)
}

func TestEvaluate_TotalsAndPercentSum(t *testing.T) {
	r, err := newEngine(t).Evaluate(table(
		rec(0, 1, 0, 1, 1),
		rec(1, 17, 1, 9, 40),
		rec(2, 3, 0, 7, 11),
		rec(3, 123, 2, 0, 456),
		rec(4, 0, 0, 0, 7),
	))
	gt.NoError(t, err).Required()

	for _, w := range r.Weeks {
		sum := w.Counts[types.MRSA] + w.Counts[types.VRSA] + w.Counts[types.Other] + w.Counts[types.Wild]
		if w.Total != sum {
			t.Errorf("%s: Total = %d, want %d", w.Week.Format(time.DateOnly), w.Total, sum)
		}
		var pct float64
		for _, c := range types.Categories {
			pct += w.Percent[c]
		}
		if math.Abs(pct-100) > 0.05 {
			t.Errorf("%s: percentages sum to %.4f, want 100 +/- 0.05", w.Week.Format(time.DateOnly), pct)
		}
	}
}

func TestEvaluate_MRSAOutlierFlagged(t *testing.T) {
	// MRSA series [1 2 3 4 5 100] -> fence 8.5, only the 100 week fires.
	r, err := newEngine(t).Evaluate(table(
		rec(0, 1, 0, 5, 10),
		rec(1, 2, 0, 5, 10),
		rec(2, 3, 0, 5, 10),
		rec(3, 4, 0, 5, 10),
		rec(4, 5, 0, 5, 10),
		rec(5, 100, 0, 5, 10),
	))
	gt.NoError(t, err).Required()

	th, ok := r.Threshold(types.MRSA)
	gt.True(t, ok)
	gt.Equal(t, th.Q1, 2.25)
	gt.Equal(t, th.Q3, 4.75)
	gt.Equal(t, th.IQR, 2.5)
	gt.Equal(t, th.Value, 8.5)

	for i, w := range r.Weeks {
		want := i == 5
		if got := w.Flags[types.MRSA]; got != want {
			t.Errorf("week %d MRSA_alert = %v, want %v", i, got, want)
		}
		// Other is constant: fence equals the value and nothing exceeds it.
		if w.Flags[types.Other] {
			t.Errorf("week %d Other_alert = true, want false", i)
		}
	}

	alerted := r.Alerted()
	gt.A(t, alerted).Length(1)
	gt.Equal(t, alerted[0].Week, week(5))
}

func TestEvaluate_MRSAAlertIffAboveFence(t *testing.T) {
	records := []types.WeeklyRecord{
		rec(0, 12, 0, 4, 30), rec(1, 8, 0, 6, 28), rec(2, 15, 0, 3, 35),
		rec(3, 9, 0, 5, 31), rec(4, 41, 0, 4, 29), rec(5, 11, 0, 22, 33),
		rec(6, 10, 0, 5, 27), rec(7, 13, 0, 6, 30),
	}
	r, err := newEngine(t).Evaluate(table(records...))
	gt.NoError(t, err).Required()

	series := make([]float64, 0, len(records))
	for _, rc := range records {
		series = append(series, float64(rc.Count(types.MRSA)))
	}
	q1 := compute.Quantile(series, 0.25)
	q3 := compute.Quantile(series, 0.75)
	fence := q3 + 1.5*(q3-q1)

	for _, w := range r.Weeks {
		want := float64(w.Counts[types.MRSA]) > fence
		gt.Equal(t, w.Flags[types.MRSA], want)
	}
}

func TestEvaluate_VRSAFixedRule(t *testing.T) {
	t.Run("all zero never alerts", func(t *testing.T) {
		r, err := newEngine(t).Evaluate(table(
			rec(0, 5, 0, 3, 2), rec(1, 6, 0, 3, 2), rec(2, 4, 0, 2, 2),
		))
		gt.NoError(t, err).Required()
		for _, w := range r.Weeks {
			gt.False(t, w.Flags[types.VRSA])
		}
	})

	t.Run("single case alerts regardless of series", func(t *testing.T) {
		// Many weeks with high VRSA would push a Tukey fence well above 1;
		// the fixed rule still flags the week with exactly one case.
		r, err := newEngine(t).Evaluate(table(
			rec(0, 5, 9, 3, 2), rec(1, 6, 9, 3, 2), rec(2, 4, 9, 2, 2), rec(3, 4, 1, 2, 2),
		))
		gt.NoError(t, err).Required()
		for _, w := range r.Weeks {
			gt.True(t, w.Flags[types.VRSA])
		}
	})

	t.Run("iff count >= 1", func(t *testing.T) {
		r, err := newEngine(t).Evaluate(table(
			rec(0, 5, 0, 3, 2), rec(1, 5, 1, 3, 2), rec(2, 5, 0, 3, 2), rec(3, 5, 3, 3, 2),
		))
		gt.NoError(t, err).Required()
		for _, w := range r.Weeks {
			gt.Equal(t, w.Flags[types.VRSA], w.Counts[types.VRSA] >= 1)
		}
	})
}

func TestEvaluate_SortsByWeek(t *testing.T) {
	r, err := newEngine(t).Evaluate(table(rec(2, 1, 0, 1, 1), rec(0, 1, 0, 1, 1), rec(1, 1, 0, 1, 1)))
	gt.NoError(t, err).Required()
	for i, w := range r.Weeks {
		gt.Equal(t, w.Week, week(i))
	}
}

func TestEvaluate_DoesNotModifyInput(t *testing.T) {
	tbl := table(rec(1, 1, 0, 1, 1), rec(0, 1, 0, 1, 1))
	_, err := newEngine(t).Evaluate(tbl)
	gt.NoError(t, err).Required()
	gt.Equal(t, tbl.Records[0].Week, week(1))
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		tbl  *types.Table
		want error
	}{
		{"empty table", table(), compute.ErrEmptyInput},
		{"nil table", nil, compute.ErrEmptyInput},
		{"negative count", table(rec(0, -1, 0, 3, 2)), compute.ErrNegativeCount},
		{"zero total", table(rec(0, 1, 0, 1, 1), rec(1, 0, 0, 0, 0)), compute.ErrZeroTotal},
		{"duplicate week", table(rec(0, 1, 0, 1, 1), rec(0, 2, 0, 1, 1)), compute.ErrDuplicateWeek},
		{"total overflows", table(rec(0, 5e18, 0, 5e18, 1)), compute.ErrCountOverflow},
		{"total overflows by one", table(rec(0, math.MaxInt, 0, 0, 1)), compute.ErrCountOverflow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newEngine(t).Evaluate(tc.tbl)
			gt.Error(t, err)
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestEvaluate_ZeroTotalPolicyZero(t *testing.T) {
	e, err := compute.NewEngine(nil, compute.ZeroTotalZero)
	gt.NoError(t, err).Required()

	r, err := e.Evaluate(table(rec(0, 1, 0, 1, 1), rec(1, 0, 0, 0, 0)))
	gt.NoError(t, err).Required()

	w := r.Weeks[1]
	gt.True(t, w.ZeroTotal)
	gt.Equal(t, w.Total, 0)
	for _, c := range types.Categories {
		gt.Equal(t, w.Percent[c], 0.0)
	}
}

func TestEvaluate_LargestTotal(t *testing.T) {
	r, err := newEngine(t).Evaluate(table(rec(0, math.MaxInt-1, 0, 0, 1)))
	gt.NoError(t, err).Required()
	gt.Equal(t, r.Weeks[0].Total, math.MaxInt)
	gt.Equal(t, r.Weeks[0].Percent[types.MRSA], 100.0)
}

func TestEvaluate_DuplicateWeeksKept(t *testing.T) {
	e, err := compute.NewEngine(nil, compute.ZeroTotalError, compute.WithDuplicateWeeks(compute.DuplicateWeekKeep))
	gt.NoError(t, err).Required()

	r, err := e.Evaluate(table(rec(1, 9, 0, 1, 1), rec(0, 1, 0, 1, 1), rec(0, 2, 1, 1, 1)))
	gt.NoError(t, err).Required()
	gt.A(t, r.Weeks).Length(3)

	// Rows of the same week keep their input order and come before later weeks.
	gt.Equal(t, r.Weeks[0].Counts[types.MRSA], 1)
	gt.Equal(t, r.Weeks[1].Counts[types.MRSA], 2)
	gt.Equal(t, r.Weeks[2].Week, week(1))
	gt.False(t, r.Weeks[0].Flags[types.VRSA])
	gt.True(t, r.Weeks[1].Flags[types.VRSA])
}

func TestNewEngine_DuplicateWeekPolicy(t *testing.T) {
	_, err := compute.NewEngine(nil, "", compute.WithDuplicateWeeks(""))
	gt.NoError(t, err)
	_, err = compute.NewEngine(nil, "", compute.WithDuplicateWeeks("merge"))
	gt.Error(t, err)
}

func TestNewEngine_InvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []compute.Rule
	}{
		{"unknown category", []compute.Rule{{Category: "ESBL", Method: compute.MethodTukey}}},
		{"unknown method", []compute.Rule{{Category: types.MRSA, Method: "zscore"}}},
		{"unknown operator", []compute.Rule{{Category: types.VRSA, Method: compute.MethodFixed, Op: "!="}}},
		{"negative multiplier", []compute.Rule{{Category: types.MRSA, Method: compute.MethodTukey, Multiplier: -1}}},
		{"duplicate category", []compute.Rule{
			{Category: types.MRSA, Method: compute.MethodTukey},
			{Category: types.MRSA, Method: compute.MethodFixed, Op: ">", Value: 3},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compute.NewEngine(tc.rules, "")
			gt.Error(t, err)
			gt.True(t, errors.Is(err, compute.ErrInvalidRule))
		})
	}

	_, err := compute.NewEngine(nil, "sometimes")
	gt.Error(t, err)
}

func TestEvaluate_CustomMultiplier(t *testing.T) {
	// With k=3 the fence for [1 2 3 4 5 100] is 4.75 + 7.5 = 12.25.
	e, err := compute.NewEngine([]compute.Rule{
		{Category: types.MRSA, Method: compute.MethodTukey, Multiplier: 3},
	}, "")
	gt.NoError(t, err).Required()

	r, err := e.Evaluate(table(
		rec(0, 1, 0, 1, 1), rec(1, 2, 0, 1, 1), rec(2, 3, 0, 1, 1),
		rec(3, 4, 0, 1, 1), rec(4, 5, 0, 1, 1), rec(5, 100, 0, 1, 1),
	))
	gt.NoError(t, err).Required()

	th, ok := r.Threshold(types.MRSA)
	gt.True(t, ok)
	gt.Equal(t, th.Value, 12.25)
	gt.A(t, r.AlertOrder).Length(1)

	_, ok = r.Threshold(types.VRSA)
	gt.False(t, ok)
}

func TestReport_AlertOrderAndCounts(t *testing.T) {
	r, err := newEngine(t).Evaluate(table(rec(0, 5, 1, 3, 2), rec(1, 5, 0, 3, 2)))
	gt.NoError(t, err).Required()

	gt.Equal(t, r.AlertOrder, []types.Category{types.MRSA, types.Other, types.VRSA})
	counts := r.AlertCounts()
	gt.Equal(t, counts[types.VRSA], 1)
	gt.Equal(t, counts[types.MRSA], 0)
}

func TestReport_Melt(t *testing.T) {
	r, err := newEngine(t).Evaluate(table(rec(0, 5, 0, 3, 2), rec(1, 1, 1, 1, 1)))
	gt.NoError(t, err).Required()

	rows := r.Melt()
	gt.A(t, rows).Length(8)

	// Category-major order: MRSA week 0, MRSA week 1, VRSA week 0, ...
	gt.Equal(t, rows[0].Phenotype, "MRSA_%")
	gt.Equal(t, rows[0].Percentage, 50.0)
	gt.Equal(t, rows[0].Count, 5)
	gt.Equal(t, rows[1].Week, week(1))
	gt.Equal(t, rows[1].Percentage, 25.0)
	gt.Equal(t, rows[2].Phenotype, "VRSA_%")
	gt.Equal(t, rows[7].Phenotype, "Wild_%")
	gt.Equal(t, rows[7].Count, 1)
}
