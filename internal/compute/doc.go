// Package compute derives the weekly phenotype report from a raw table.
//
// quantile.go provides the pure Quantile and TukeyFence functions. Quantiles
// use linear interpolation between order statistics, so the series
// [1 2 3 4 5 100] gives Q1=2.25, Q3=4.75 and a fence of 8.5.
//
// rules.go describes how each alert flag is computed. DefaultRules flags MRSA
// and Other counts above their Tukey fence and any week with at least one VRSA
// case.
//
// engine.go provides Engine.Evaluate, which validates the table, adds totals
// and rounded percentages, computes thresholds once over the full series and
// sets the per-week flags. Evaluate has no side effects; the same table always
// yields the same Report.
//
// Empty tables, negative counts, duplicate weeks and (by default) weeks whose
// total is zero are rejected with the sentinel errors in errors.go.
package compute
