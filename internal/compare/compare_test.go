package compare

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// dated builds a table with a date column followed by one column per label.
// cols[label][i] is the value on day i.
func dated(t *testing.T, labels []string, cols map[string][]any) *table.Dated {
	t.Helper()
	n := -1
	for _, vs := range cols {
		if n >= 0 && len(vs) != n {
			t.Fatalf("column lengths differ")
		}
		n = len(vs)
	}
	header := []any{"日期"}
	for _, l := range labels {
		header = append(header, l)
	}
	raw := table.Raw{header}
	for i := 0; i < n; i++ {
		row := []any{day0.AddDate(0, 0, i).Format("2006-01-02")}
		for _, l := range labels {
			row = append(row, cols[l][i])
		}
		raw = append(raw, row)
	}
	return table.NewDated(raw)
}

func repeat(v any, n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]any) []any {
	var out []any
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newComparator(metrics ...string) *Comparator {
	return New(config.CompareConfig{
		Metrics:         metrics,
		ViolationMetric: "违规率",
		RateMarkers:     []string{"率"},
	})
}

func TestCompare_DifferenceSign(t *testing.T) {
	tests := []struct {
		name          string
		prior, trail  float64
		wantDiff      float64
		wantDirection string
	}{
		{"up", 3, 5, 2, Up},
		{"down", 5, 3, -2, Down},
		{"unchanged is not up", 4, 4, 0, Down},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := dated(t, []string{"驳回量"}, map[string][]any{
				"驳回量": concat(repeat(tc.prior, 7), repeat(tc.trail, 7)),
			})
			s := newComparator("驳回量").Compare(d)
			require.NotNil(t, s)
			require.Len(t, s.Results, 1)

			r := s.Results[0]
			assert.InDelta(t, tc.trail, r.Trailing, 1e-9)
			assert.InDelta(t, tc.prior, r.Prior, 1e-9)
			assert.InDelta(t, tc.wantDiff, r.Diff, 1e-9)
			assert.Equal(t, tc.wantDirection, r.Direction)
			assert.Equal(t, "", r.Unit)
			assert.True(t, r.Comparable)
		})
	}
}

func TestCompare_RateScaling(t *testing.T) {
	t.Run("fraction is scaled to percent", func(t *testing.T) {
		d := dated(t, []string{"违规率"}, map[string][]any{
			"违规率": concat(repeat(0.2, 7), repeat(0.3, 7)),
		})
		r := newComparator("违规率").Compare(d).Results[0]
		assert.InDelta(t, 30.0, r.Trailing, 1e-9)
		assert.InDelta(t, 20.0, r.Prior, 1e-9)
		assert.InDelta(t, 10.0, r.Diff, 1e-9)
		assert.Equal(t, UnitPercent, r.Unit)
		assert.True(t, r.Scaled)
	})

	t.Run("values above one are left alone", func(t *testing.T) {
		d := dated(t, []string{"违规率"}, map[string][]any{
			"违规率": concat(repeat(0.5, 7), repeat(1.5, 7)),
		})
		r := newComparator("违规率").Compare(d).Results[0]
		assert.InDelta(t, 1.5, r.Trailing, 1e-9)
		assert.InDelta(t, 0.5, r.Prior, 1e-9)
		assert.Equal(t, UnitPercent, r.Unit)
		assert.False(t, r.Scaled)
	})

	t.Run("exactly one counts as a fraction", func(t *testing.T) {
		d := dated(t, []string{"推审率"}, map[string][]any{"推审率": repeat(1.0, 7)})
		r := newComparator("推审率").Compare(d).Results[0]
		assert.InDelta(t, 100.0, r.Trailing, 1e-9)
	})

	t.Run("non-rate metric never scaled", func(t *testing.T) {
		d := dated(t, []string{"驳回量"}, map[string][]any{"驳回量": repeat(0.4, 7)})
		r := newComparator("驳回量").Compare(d).Results[0]
		assert.InDelta(t, 0.4, r.Trailing, 1e-9)
		assert.Equal(t, "", r.Unit)
	})
}

func TestCompare_ShortTable(t *testing.T) {
	d := dated(t, []string{"驳回量"}, map[string][]any{"驳回量": {1, 2, 3, 4, 5}})
	s := newComparator("驳回量").Compare(d)
	require.NotNil(t, s)

	r := s.Results[0]
	assert.Equal(t, 5, r.TrailingRows)
	assert.Equal(t, 0, r.PriorRows)
	assert.False(t, r.Comparable)
	assert.InDelta(t, 3.0, r.Trailing, 1e-9)
	assert.Equal(t, 0.0, r.Prior)
	assert.Equal(t, 0.0, r.Diff)
	assert.Equal(t, Down, r.Direction)
}

func TestCompare_PartialPriorWindow(t *testing.T) {
	// 10 rows: trailing = rows 3..9, prior = rows 0..2.
	vals := []any{1, 1, 1, 5, 5, 5, 5, 5, 5, 5}
	d := dated(t, []string{"驳回量"}, map[string][]any{"驳回量": vals})
	r := newComparator("驳回量").Compare(d).Results[0]

	assert.Equal(t, 7, r.TrailingRows)
	assert.Equal(t, 3, r.PriorRows)
	assert.InDelta(t, 4.0, r.Diff, 1e-9)
}

func TestCompare_LongTableUsesAdjacentWindows(t *testing.T) {
	// 20 rows: only rows 6..12 form the prior window.
	vals := concat(repeat(100, 6), repeat(2, 7), repeat(4, 7))
	d := dated(t, []string{"驳回量"}, map[string][]any{"驳回量": vals})
	r := newComparator("驳回量").Compare(d).Results[0]

	assert.Equal(t, 7, r.PriorRows)
	assert.InDelta(t, 2.0, r.Prior, 1e-9)
	assert.InDelta(t, 2.0, r.Diff, 1e-9)
}

func TestCompare_NonNumericCellsCountAsZero(t *testing.T) {
	d := dated(t, []string{"驳回量"}, map[string][]any{
		"驳回量": {"7", "n/a", nil, "", 7, 7, 7},
	})
	r := newComparator("驳回量").Compare(d).Results[0]
	assert.InDelta(t, 4.0, r.Trailing, 1e-9)
}

func TestCompare_MissingMetricSkipped(t *testing.T) {
	d := dated(t, []string{"总进审量", "违规率"}, map[string][]any{
		"总进审量": repeat(100, 7),
		"违规率":  repeat(0.1, 7),
	})
	s := newComparator("总进审量", "驳回量", "违规率", "推审率").Compare(d)
	require.NotNil(t, s)

	var names []string
	for _, r := range s.Results {
		names = append(names, r.Metric)
	}
	assert.Equal(t, []string{"总进审量", "违规率"}, names)
}

func TestCompare_SubstringMatchFirstColumnWins(t *testing.T) {
	d := dated(t, []string{"昨日违规率", "违规率"}, map[string][]any{
		"昨日违规率": repeat(0.5, 7),
		"违规率":   repeat(0.1, 7),
	})
	r := newComparator("违规率").Compare(d).Results[0]
	assert.Equal(t, "昨日违规率", r.Column)
	assert.InDelta(t, 50.0, r.Trailing, 1e-9)
}

func TestCompare_EmptyTable(t *testing.T) {
	d := table.NewDated(table.Raw{{"日期", "违规率"}})
	assert.Nil(t, newComparator("违规率").Compare(d))
}

func TestCompare_Status(t *testing.T) {
	tests := []struct {
		name        string
		prior, tail float64
		want        string
	}{
		{"violation up is worse", 0.1, 0.2, StatusWorsened},
		{"violation down is better", 0.2, 0.1, StatusImproved},
		{"unchanged is neutral", 0.2, 0.2, StatusImproved},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := dated(t, []string{"违规率"}, map[string][]any{
				"违规率": concat(repeat(tc.prior, 7), repeat(tc.tail, 7)),
			})
			s := newComparator("违规率").Compare(d)
			assert.Equal(t, tc.want, s.Status)
		})
	}

	t.Run("no violation column is neutral", func(t *testing.T) {
		d := dated(t, []string{"驳回量"}, map[string][]any{"驳回量": concat(repeat(1, 7), repeat(9, 7))})
		s := newComparator("驳回量", "违规率").Compare(d)
		assert.Equal(t, StatusImproved, s.Status)
		assert.Equal(t, 0.0, s.ViolationDiff)
	})
}

func TestCompare_Idempotent(t *testing.T) {
	d := dated(t, []string{"总进审量", "违规率"}, map[string][]any{
		"总进审量": {10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		"违规率":  {0.1, 0.2, 0.1, 0.3, "x", 0.2, 0.1, 0.4, 0.2, 0.1},
	})
	c := newComparator("总进审量", "违规率")
	first := c.Compare(d)
	second := c.Compare(d)
	assert.Equal(t, first, second)
}

func TestCompare_TrailingDates(t *testing.T) {
	vals := make([]any, 10)
	for i := range vals {
		vals[i] = i
	}
	d := dated(t, []string{"驳回量"}, map[string][]any{"驳回量": vals})
	s := newComparator("驳回量").Compare(d)
	assert.Equal(t, day0.AddDate(0, 0, 3), s.TrailingFrom)
	assert.Equal(t, day0.AddDate(0, 0, 9), s.TrailingTo)
}

func TestIsRate(t *testing.T) {
	c := newComparator()
	assert.True(t, c.IsRate("违规率"))
	assert.True(t, c.IsRate("驳回量", "驳回率.1"))
	assert.False(t, c.IsRate("总进审量"))
	assert.False(t, c.IsRate())
}

func ExampleComparator_Compare() {
	raw := table.Raw{{"日期", "违规率"}}
	for i := 0; i < 14; i++ {
		v := 0.02
		if i >= 7 {
			v = 0.03
		}
		raw = append(raw, []any{day0.AddDate(0, 0, i).Format("2006-01-02"), v})
	}
	s := newComparator("违规率").Compare(table.NewDated(raw))
	r := s.Results[0]
	fmt.Printf("%s %.2f%s %+.2f%s %s\n", r.Metric, r.Trailing, r.Unit, r.Diff, r.Unit, s.Status)
	// Output: 违规率 3.00% +1.00% worsened
}
