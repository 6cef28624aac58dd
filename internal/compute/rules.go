package compute

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// Method selects how a rule's threshold is obtained.
type Method string

const (
	// MethodTukey flags counts strictly above the series' upper Tukey fence.
	MethodTukey Method = "tukey"

	// MethodFixed compares counts against a constant with Op.
	MethodFixed Method = "fixed"
)

// Rule describes how the alert flag of one category is computed.
type Rule struct {
	Category types.Category

	Method Method

	// Op and Value are used by MethodFixed only: flag when count Op Value.
	// Supported operators: > >= < <= ==.
	Op    string
	Value float64

	// Multiplier is the IQR factor for MethodTukey. Zero means 1.5.
	Multiplier float64
}

// DefaultRules returns the standard alert rules: MRSA and Other above their
// Tukey fence, and any VRSA case at all. VRSA is rare and severe enough that a
// single case is notable regardless of the rest of the series.
func DefaultRules() []Rule {
	return []Rule{
		{Category: types.MRSA, Method: MethodTukey, Multiplier: DefaultFenceMultiplier},
		{Category: types.Other, Method: MethodTukey, Multiplier: DefaultFenceMultiplier},
		{Category: types.VRSA, Method: MethodFixed, Op: ">=", Value: 1},
	}
}

// String renders the rule as a short human-readable condition.
func (r Rule) String() string {
	switch r.Method {
	case MethodTukey:
		return fmt.Sprintf("%s > Q3 + %g*IQR", r.Category, r.multiplier())
	default:
		return fmt.Sprintf("%s %s %g", r.Category, r.Op, r.Value)
	}
}

// Validate checks the rule is well formed.
func (r Rule) Validate() error {
	if !r.Category.Valid() {
		return goerr.Wrap(ErrInvalidRule, "unknown category", goerr.V("category", r.Category))
	}
	switch r.Method {
	case MethodTukey:
		if r.Multiplier < 0 {
			return goerr.Wrap(ErrInvalidRule, "multiplier must not be negative",
				goerr.V("category", r.Category), goerr.V("multiplier", r.Multiplier))
		}
	case MethodFixed:
		switch r.Op {
		case ">", ">=", "<", "<=", "==":
		default:
			return goerr.Wrap(ErrInvalidRule, "unknown operator",
				goerr.V("category", r.Category), goerr.V("op", r.Op))
		}
	default:
		return goerr.Wrap(ErrInvalidRule, "unknown method",
			goerr.V("category", r.Category), goerr.V("method", r.Method))
	}
	return nil
}

func (r Rule) multiplier() float64 {
	if r.Multiplier <= 0 {
		return DefaultFenceMultiplier
	}
	return r.Multiplier
}

// threshold computes the rule's threshold over series.
func (r Rule) threshold(series []float64) Threshold {
	th := Threshold{Category: r.Category, Method: r.Method, Rule: r.String()}
	switch r.Method {
	case MethodTukey:
		f := TukeyFence(series, r.multiplier())
		th.Op = ">"
		th.Q1, th.Q3, th.IQR, th.Value = f.Q1, f.Q3, f.IQR, f.Value
	default:
		th.Op = r.Op
		th.Value = r.Value
	}
	return th
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}

func validateRules(rules []Rule) error {
	seen := make(map[types.Category]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Category] {
			return goerr.Wrap(ErrInvalidRule, "more than one rule for category",
				goerr.V("category", r.Category))
		}
		seen[r.Category] = true
	}
	return nil
}
