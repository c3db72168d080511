package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Placeholder replaces empty header cells before duplicate counting.
const Placeholder = "u"

// Raw is a table as returned by a sheet source: row 0 is the header, every
// cell is an opaque JSON-ish value (string, float64, bool, nil or a rich-text
// segment list).
type Raw [][]any

// Header returns the first row, or nil for an empty table.
func (r Raw) Header() []any {
	if len(r) == 0 {
		return nil
	}
	return r[0]
}

// NormalizeHeader turns a raw header row into unique column labels of the same
// length and order. The first occurrence of a label is kept as is; later
// occurrences get a ".1", ".2", ... suffix.
//
// A raw label that already looks like a suffixed duplicate ("a.1") can still
// collide with a synthesized one.
func NormalizeHeader(cells []any) []string {
	counts := make(map[string]int, len(cells))
	out := make([]string, len(cells))
	for i, c := range cells {
		label := Label(c)
		k, seen := counts[label]
		if !seen {
			counts[label] = 0
			out[i] = label
			continue
		}
		k++
		counts[label] = k
		out[i] = label + "." + strconv.Itoa(k)
	}
	return out
}

// Label coerces a header cell to a string. Empty and zero-valued cells map to
// Placeholder.
func Label(v any) string {
	switch x := v.(type) {
	case nil:
		return Placeholder
	case bool:
		if !x {
			return Placeholder
		}
		return "True"
	case float64:
		if x == 0 {
			return Placeholder
		}
	case int:
		if x == 0 {
			return Placeholder
		}
	}
	s := Text(v)
	if s == "" {
		return Placeholder
	}
	return s
}

// Text renders a cell as plain text. Rich-text cells (a list of segments with
// a "text" field) are concatenated.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []any:
		var b strings.Builder
		for _, seg := range x {
			if m, ok := seg.(map[string]any); ok {
				if t, ok := m["text"].(string); ok {
					b.WriteString(t)
					continue
				}
			}
			b.WriteString(Text(seg))
		}
		return b.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// Number coerces a cell to a float64. Anything that does not parse as a
// finite number yields 0.
func Number(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case nil:
		return 0
	default:
		p, err := strconv.ParseFloat(strings.TrimSpace(Text(v)), 64)
		if err != nil {
			return 0
		}
		f = p
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Row is one data row whose first cell parsed as a date.
type Row struct {
	Date  time.Time
	Cells []any
}

// Cell returns the value at column i, or nil when the row is short.
func (r Row) Cell(i int) any {
	if i < 0 || i >= len(r.Cells) {
		return nil
	}
	return r.Cells[i]
}

// Dated is a table keyed by its first column: rows whose date failed to parse
// are dropped and the rest are sorted ascending by date.
type Dated struct {
	Columns []string
	Rows    []Row
}

// NewDated normalizes the header of raw and builds the dated view of rows
// 1..end. A raw table without data rows yields an empty Dated.
func NewDated(raw Raw) *Dated {
	d := &Dated{Columns: NormalizeHeader(raw.Header())}
	if len(raw) < 2 {
		return d
	}
	for _, cells := range raw[1:] {
		if len(cells) == 0 {
			continue
		}
		date, ok := ParseDate(cells[0])
		if !ok {
			continue
		}
		d.Rows = append(d.Rows, Row{Date: date, Cells: cells})
	}
	sort.SliceStable(d.Rows, func(i, j int) bool {
		return d.Rows[i].Date.Before(d.Rows[j].Date)
	})
	return d
}

// Len returns the number of dated rows.
func (d *Dated) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Index returns the position of the column with exactly this label.
func (d *Dated) Index(label string) (int, bool) {
	for i, c := range d.Columns {
		if c == label {
			return i, true
		}
	}
	return -1, false
}

// Match resolves a metric name to the first column whose label contains it.
func (d *Dated) Match(metric string) (label string, idx int, ok bool) {
	for i, c := range d.Columns {
		if strings.Contains(c, metric) {
			return c, i, true
		}
	}
	return "", -1, false
}

// Values returns the numeric values of column col for rows [from, to).
// Bounds are clamped to the table.
func (d *Dated) Values(col, from, to int) []float64 {
	from = max(from, 0)
	to = min(to, d.Len())
	if from >= to {
		return nil
	}
	out := make([]float64, 0, to-from)
	for _, r := range d.Rows[from:to] {
		out = append(out, Number(r.Cell(col)))
	}
	return out
}

// Tail returns a Dated holding only the last n rows. The rows are shared with d.
func (d *Dated) Tail(n int) *Dated {
	if d == nil {
		return &Dated{}
	}
	start := max(d.Len()-n, 0)
	return &Dated{Columns: d.Columns, Rows: d.Rows[start:]}
}

// Dates returns the row dates in order.
func (d *Dated) Dates() []time.Time {
	out := make([]time.Time, 0, d.Len())
	for _, r := range d.Rows {
		out = append(out, r.Date)
	}
	return out
}
