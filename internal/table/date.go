package table

import (
	"math"
	"strings"
	"time"
)

// serialEpoch is day zero of spreadsheet serial dates (Lotus 1-2-3 leap year
// bug included, as in Excel and Feishu).
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Serial dates outside this range are treated as plain numbers, not dates.
const (
	minSerial = 1
	maxSerial = 2958465 // 9999-12-31
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006/1/2 15:04:05",
	"2006/1/2",
	"2006-1-2",
	"2006.01.02",
	"2006.1.2",
	"20060102",
	"2006年1月2日",
	"2006年01月02日",
}

// ParseDate interprets a cell as a date. Text is tried against common
// layouts; numbers are read as spreadsheet serial dates. All results are UTC.
func ParseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case float64:
		return fromSerial(x)
	case int:
		return fromSerial(float64(x))
	case int64:
		return fromSerial(float64(x))
	}

	s := strings.TrimSpace(Text(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromSerial(days float64) (time.Time, bool) {
	if math.IsNaN(days) || days < minSerial || days > maxSerial {
		return time.Time{}, false
	}
	whole := math.Floor(days)
	frac := days - whole
	t := serialEpoch.AddDate(0, 0, int(whole))
	return t.Add(time.Duration(math.Round(frac*86400)) * time.Second), true
}
