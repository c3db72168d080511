// Package chart prepares time series for the dashboard UI, which draws them.
//
// Trend returns per-metric lines for one business with a warning threshold at
// mean + 2σ; Overview returns the violation rate of every business on one
// chart. The chart period (day, week, month) only sets how many rows are shown.
package chart
