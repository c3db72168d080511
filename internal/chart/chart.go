package chart

import (
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

// minTrendRows is the least number of rows a trend chart shows, whatever the period.
const minTrendRows = 7

// defaultSelection is how many metrics are preselected on the trend view.
const defaultSelection = 4

// thresholdSigma places the warning line this many sample standard
// deviations above the mean.
const thresholdSigma = 2

// Rater decides whether a metric is a ratio quantity.
type Rater interface {
	IsRate(names ...string) bool
}

// Point is one dated value.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is one line on a chart.
type Series struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit,omitempty"`
	Scaled bool    `json:"scaled"`
	Points []Point `json:"points"`

	// Threshold is the warning line (mean + 2 sample std) for series with
	// more than one point.
	Threshold *float64 `json:"threshold,omitempty"`
}

// Values returns the series values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// MetricOptions returns the labels a user may chart and the default
// selection. The date column and placeholder labels are excluded.
func MetricOptions(columns []string) (options, defaults []string) {
	options = make([]string, 0, len(columns))
	for i, c := range columns {
		if i == 0 || isPlaceholder(c) {
			continue
		}
		options = append(options, c)
	}
	defaults = options[:min(len(options), defaultSelection)]
	return options, defaults
}

func isPlaceholder(label string) bool {
	return label == table.Placeholder || strings.HasPrefix(label, table.Placeholder+".")
}

// Trend builds one series per label over the last max(7, period days) rows.
// Rate-like series whose maximum is at most 1 are shown as percentages.
// Labels that are not columns of d are skipped.
func Trend(d *table.Dated, labels []string, period string, r Rater) []Series {
	window := d.Tail(max(minTrendRows, config.PeriodDays(period)))
	out := make([]Series, 0, len(labels))
	for _, label := range labels {
		col, ok := window.Index(label)
		if !ok || col == 0 {
			continue
		}
		s := build(label, window, col, r.IsRate(label))
		if vals := s.Values(); len(vals) > 1 {
			s.Threshold = threshold(vals)
		}
		out = append(out, s)
	}
	return out
}

// Business is a named dated table, one per business line.
type Business struct {
	Name  string
	Table *table.Dated
}

// Overview builds one violation-rate series per business over the last
// period days. Businesses without a matching column or rows are skipped.
func Overview(businesses []Business, violationMetric, period string) []Series {
	days := config.PeriodDays(period)
	out := make([]Series, 0, len(businesses))
	for _, b := range businesses {
		if b.Table.Len() == 0 {
			continue
		}
		window := b.Table.Tail(days)
		_, col, ok := window.Match(violationMetric)
		if !ok {
			continue
		}
		s := build(b.Name, window, col, true)
		out = append(out, s)
	}
	return out
}

// build extracts column col of d as a series, scaling fractions to percent
// when rate is set.
func build(name string, d *table.Dated, col int, rate bool) Series {
	vals := d.Values(col, 0, d.Len())
	s := Series{Name: name, Points: make([]Point, len(vals))}
	if rate {
		s.Unit = "%"
		if m, err := stats.Max(vals); err == nil && m <= 1.0 {
			s.Scaled = true
			for i := range vals {
				vals[i] *= 100
			}
		}
	}
	for i, r := range d.Rows {
		s.Points[i] = Point{Date: r.Date, Value: vals[i]}
	}
	return s
}

// threshold returns mean + 2 sample standard deviations of vals.
func threshold(vals []float64) *float64 {
	m, err := stats.Mean(vals)
	if err != nil {
		return nil
	}
	sd, err := stats.StandardDeviationSample(vals)
	if err != nil {
		return nil
	}
	v := m + thresholdSigma*sd
	return &v
}
