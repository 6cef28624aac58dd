// Package types defines the shared in-memory representation of the weekly
// phenotype table used by the loader, compute engine, renderers and server.
//
// A Table is the raw input (one WeeklyRecord per week). Everything derived from
// it (totals, percentages, alert flags) lives in the compute package so this
// package stays free of policy.
package types
