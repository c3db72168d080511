package notify

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/sheetpulse/sheetpulse/internal/compare"
	"github.com/sheetpulse/sheetpulse/internal/config"
)

// Card markers.
const (
	IconImproved = "🟢"
	IconWorsened = "🔴"
	TrendUp      = "📈"
	TrendDown    = "📉"
)

// Footer is the note attached to every card.
const Footer = "对比周期: 最近7天 vs 前7天平均值"

// Field is one short metric cell of a card.
type Field struct {
	Metric   string `json:"metric"`
	Trailing string `json:"trailing"` // formatted trailing mean with unit
	Diff     string `json:"diff"`     // signed difference with unit
	Trend    string `json:"trend"`    // TrendUp | TrendDown
}

// Card is the channel-neutral briefing for one business line. Renderers turn
// it into a webhook payload.
type Card struct {
	Business   string  `json:"business"`
	Period     string  `json:"period"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	StatusIcon string  `json:"status_icon"`
	StatusLine string  `json:"status_line"`
	Fields     []Field `json:"fields"`
	Footer     string  `json:"footer"`

	Summary *compare.Summary `json:"summary"`
}

// Build assembles the card for business from a comparison summary.
// period is the chart period in effect when the push was triggered.
func Build(business, period string, s *compare.Summary) *Card {
	c := &Card{
		Business: business,
		Period:   period,
		Title:    fmt.Sprintf("🛡️ %s 作战简报 (%s)", business, config.PeriodLabel(period)),
		Status:   s.Status,
		Footer:   Footer,
		Summary:  s,
		Fields:   make([]Field, 0, len(s.Results)),
	}

	c.StatusIcon = IconImproved
	if s.Status == compare.StatusWorsened {
		c.StatusIcon = IconWorsened
	}
	c.StatusLine = fmt.Sprintf("%s 违规率环比波动: %+.2f%%", c.StatusIcon, s.ViolationDiff)

	for _, r := range s.Results {
		trend := TrendDown
		if r.Direction == compare.Up {
			trend = TrendUp
		}
		c.Fields = append(c.Fields, Field{
			Metric:   r.Metric,
			Trailing: formatValue(r.Trailing, r.Rate) + r.Unit,
			Diff:     formatSigned(r.Diff, r.Rate) + r.Unit,
			Trend:    trend,
		})
	}
	return c
}

// formatValue renders v with two decimals. Counts get thousands separators.
func formatValue(v float64, rate bool) string {
	if rate {
		return fmt.Sprintf("%.2f", v)
	}
	return humanize.FormatFloat("#,###.##", v)
}

func formatSigned(v float64, rate bool) string {
	if rate {
		return fmt.Sprintf("%+.2f", v)
	}
	sign := "+"
	if v < 0 {
		sign = "-"
	}
	return sign + humanize.FormatFloat("#,###.##", math.Abs(v))
}
