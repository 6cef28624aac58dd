package types

import (
	"time"
)

// Category is one phenotype column of the weekly table.
type Category string

// Phenotype categories tracked per week.
const (
	MRSA  Category = "MRSA"
	VRSA  Category = "VRSA"
	Other Category = "Other"
	Wild  Category = "Wild"
)

// Categories is the canonical column order. Every table, chart and export
// lists categories in this order.
var Categories = []Category{MRSA, VRSA, Other, Wild}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case MRSA, VRSA, Other, Wild:
		return true
	}
	return false
}

// PercentColumn returns the derived column name, e.g. "MRSA_%".
func (c Category) PercentColumn() string { return string(c) + "_%" }

// AlertColumn returns the alert flag column name, e.g. "MRSA_alert".
func (c Category) AlertColumn() string { return string(c) + "_alert" }

// WeeklyRecord is one row of the input table.
type WeeklyRecord struct {
	Week   time.Time
	Counts map[Category]int
}

// Count returns the case count for c, 0 when the category is absent.
func (r WeeklyRecord) Count(c Category) int {
	return r.Counts[c]
}

// Table is the full input as produced by a loader.
type Table struct {
	// Source describes where the rows came from (path or URL).
	Source string

	// LoadedAt is when the loader produced this table.
	LoadedAt time.Time

	Records []WeeklyRecord
}

// Len returns the number of weeks in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Series returns the counts of c across all weeks in table order.
func (t *Table) Series(c Category) []float64 {
	out := make([]float64, 0, t.Len())
	for _, r := range t.Records {
		out = append(out, float64(r.Count(c)))
	}
	return out
}
