package api

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sheetpulse/sheetpulse/internal/compare"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

// staleAfter flags a sheet whose newest row is older than this.
const staleAfter = 72 * time.Hour

// DiagnosticHint is one human-readable insight about a business sheet.
// The UI shows these as chips next to the comparison card.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short chip label.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional number tied to the hint (e.g. the rate change).
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a dated table and its comparison.
// Hints are ordered critical first, then warning, info and ok.
func computeDiagnostics(d *table.Dated, s *compare.Summary, metrics []string, violationMetric string, now time.Time) []DiagnosticHint {
	if s == nil {
		return []DiagnosticHint{{
			Key:   "no_data",
			Level: "critical",
			Title: "No data",
			Detail: "The sheet returned no rows with a readable date in the first column. " +
				"Check the sheet id, that the app can read the spreadsheet, and that the " +
				"first column holds dates.",
		}}
	}

	var hints []DiagnosticHint

	if diff := s.ViolationDiff; diff > 0 {
		v := diff
		level := "warning"
		if diff >= 1 {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "violation_up",
			Level: level,
			Title: fmt.Sprintf("%s +%.2f%%", violationMetric, diff),
			Detail: fmt.Sprintf("The %s averaged %.2f points higher over the last 7 rows "+
				"than over the 7 before. Look at which categories drove the rise.", violationMetric, diff),
			Value: &v,
		})
	}

	if r, ok := s.Result(violationMetric); ok && !r.Comparable {
		hints = append(hints, DiagnosticHint{
			Key:   "no_baseline",
			Level: "info",
			Title: "No baseline",
			Detail: "There are not enough rows before the trailing 7 to compare against. " +
				"Differences read as zero until more history is filled in.",
		})
	} else if ok && r.PriorRows < compare.Window {
		hints = append(hints, DiagnosticHint{
			Key:   "short_history",
			Level: "info",
			Title: "Short history",
			Detail: fmt.Sprintf("The comparison window only has %d of %d prior rows, "+
				"so the baseline is noisier than usual.", r.PriorRows, compare.Window),
		})
	}

	var missing []string
	for _, m := range metrics {
		if _, ok := s.Result(m); !ok {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "missing_metrics",
			Level: "info",
			Title: fmt.Sprintf("%d metrics missing", len(missing)),
			Detail: "No column matches " + strings.Join(missing, ", ") +
				". They are left out of the briefing.",
		})
	}

	if last := d.Rows[d.Len()-1].Date; now.Sub(last) > staleAfter {
		days := int(now.Sub(last).Hours() / 24)
		hints = append(hints, DiagnosticHint{
			Key:   "stale",
			Level: "warning",
			Title: fmt.Sprintf("Last row %dd old", days),
			Detail: fmt.Sprintf("The newest row is dated %s. The briefing describes "+
				"that week, not this one.", last.Format("2006-01-02")),
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "steady",
			Level:  "ok",
			Title:  "Steady",
			Detail: "The violation rate did not rise against the previous 7 rows.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

func levelRank(level string) int {
	switch level {
	case "critical":
		return 0
	case "warning":
		return 1
	case "info":
		return 2
	default:
		return 3
	}
}
