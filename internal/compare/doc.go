// Package compare derives the week-over-week comparison pushed in reports.
//
// For each target metric the Comparator resolves the first column whose label
// contains the metric name, averages the last 7 dated rows (the trailing
// window) and the up to 7 rows before them (the prior window), scales
// fractional rate metrics to percentages, and reports the difference with a
// direction. The violation-rate difference sets the summary Status.
//
// Compare is a pure function of its input table: bad cells count as 0,
// unmatched metrics are skipped, and an empty table yields a nil Summary.
package compare
