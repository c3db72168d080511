package compare

import (
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

// Window is the fixed number of dated rows in each comparison window.
const Window = 7

// Direction constants for a metric's week-over-week movement.
const (
	Up   = "up"
	Down = "down"
)

// Status constants derived from the violation-rate difference.
const (
	StatusImproved = "improved" // difference <= 0, including unchanged
	StatusWorsened = "worsened"
)

// UnitPercent is the unit tag for rate-like metrics.
const UnitPercent = "%"

// Result is the comparison of one target metric between the trailing and the
// prior window.
type Result struct {
	Metric string `json:"metric"` // target name from the metric list
	Column string `json:"column"` // resolved column label

	Trailing  float64 `json:"trailing"`  // mean of the trailing window, post scaling
	Prior     float64 `json:"prior"`     // mean of the prior window, post scaling
	Diff      float64 `json:"diff"`      // Trailing - Prior
	Unit      string  `json:"unit"`      // "%" for rate-like metrics, else ""
	Direction string  `json:"direction"` // "up" | "down"
	Rate      bool    `json:"rate"`
	Scaled    bool    `json:"scaled"` // fractions were multiplied by 100

	TrailingRows int `json:"trailing_rows"`
	PriorRows    int `json:"prior_rows"`

	// Comparable is false when the prior window is empty. Prior and Diff
	// are then 0.
	Comparable bool `json:"comparable"`
}

// Summary is the full comparison payload for one business line.
type Summary struct {
	Results []Result `json:"results"`

	// Status is StatusImproved or StatusWorsened, driven by ViolationDiff.
	Status        string  `json:"status"`
	ViolationDiff float64 `json:"violation_diff"`

	// TrailingFrom and TrailingTo bound the dates of the trailing window.
	TrailingFrom time.Time `json:"trailing_from"`
	TrailingTo   time.Time `json:"trailing_to"`
}

// Result returns the result for a target metric name.
func (s *Summary) Result(metric string) (Result, bool) {
	for _, r := range s.Results {
		if r.Metric == metric {
			return r, true
		}
	}
	return Result{}, false
}

// Comparator computes trailing-vs-prior window averages for a fixed list of
// target metrics. It holds no state between calls and is safe for concurrent use.
type Comparator struct {
	metrics         []string
	violationMetric string
	rateMarkers     []string
}

// New returns a Comparator for the given settings.
func New(cfg config.CompareConfig) *Comparator {
	markers := cfg.RateMarkers
	if len(markers) == 0 {
		markers = config.DefaultRateMarkers
	}
	return &Comparator{
		metrics:         cfg.Metrics,
		violationMetric: cfg.ViolationMetric,
		rateMarkers:     markers,
	}
}

// Metrics returns the ordered target metric names.
func (c *Comparator) Metrics() []string { return c.metrics }

// IsRate reports whether any of the given names carries a rate marker.
func (c *Comparator) IsRate(names ...string) bool {
	for _, n := range names {
		for _, m := range c.rateMarkers {
			if m != "" && strings.Contains(n, m) {
				return true
			}
		}
	}
	return false
}

// Compare runs the comparison over d, which must be sorted ascending by date.
// It returns nil when the table has no dated rows. Metrics without a matching
// column are left out of the summary.
func (c *Comparator) Compare(d *table.Dated) *Summary {
	n := d.Len()
	if n == 0 {
		return nil
	}

	trailingStart := max(n-Window, 0)
	priorStart := max(trailingStart-Window, 0)

	out := &Summary{
		Results:      make([]Result, 0, len(c.metrics)),
		TrailingFrom: d.Rows[trailingStart].Date,
		TrailingTo:   d.Rows[n-1].Date,
	}

	for _, metric := range c.metrics {
		label, col, ok := d.Match(metric)
		if !ok {
			continue
		}
		trailing := d.Values(col, trailingStart, n)
		prior := d.Values(col, priorStart, trailingStart)
		out.Results = append(out.Results, c.compareMetric(metric, label, trailing, prior))
	}

	if r, ok := out.Result(c.violationMetric); ok {
		out.ViolationDiff = r.Diff
	}
	out.Status = statusOf(out.ViolationDiff)
	return out
}

// compareMetric derives one Result from the raw window values.
func (c *Comparator) compareMetric(metric, label string, trailing, prior []float64) Result {
	r := Result{
		Metric:       metric,
		Column:       label,
		Rate:         c.IsRate(metric, label),
		TrailingRows: len(trailing),
		PriorRows:    len(prior),
		Comparable:   len(prior) > 0,
	}

	tw := mean(trailing)
	lw := mean(prior)

	if r.Rate && tw <= 1.0 {
		tw *= 100
		lw *= 100
		r.Scaled = true
	}
	if r.Rate {
		r.Unit = UnitPercent
	}

	r.Trailing = tw
	if r.Comparable {
		r.Prior = lw
		r.Diff = tw - lw
	}
	r.Direction = directionOf(r.Diff)
	return r
}

// mean returns the arithmetic mean of xs, or 0 for an empty window.
func mean(xs []float64) float64 {
	m, err := stats.Mean(xs)
	if err != nil {
		return 0
	}
	return m
}

func directionOf(diff float64) string {
	if diff > 0 {
		return Up
	}
	return Down
}

func statusOf(violationDiff float64) string {
	if violationDiff > 0 {
		return StatusWorsened
	}
	return StatusImproved
}
