package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Family names.
const (
	FetchTotal       = "sheetpulse_fetch_total"
	PushTotal        = "sheetpulse_push_total"
	MetricTrailing   = "sheetpulse_metric_trailing_avg"
	MetricDifference = "sheetpulse_metric_diff"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

type series struct {
	labels []string
	value  float64
}

type family struct {
	help       string
	typ        dto.MetricType
	labelNames []string
	series     map[string]*series
}

// Registry holds the process counters and gauges and renders them as
// Prometheus metric families.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
}

// NewRegistry returns a Registry with every sheetpulse family declared.
func NewRegistry() *Registry {
	r := &Registry{families: make(map[string]*family)}
	r.declare(FetchTotal, "Sheet fetches by business and outcome.", dto.MetricType_COUNTER, "business", "outcome")
	r.declare(PushTotal, "Report pushes by business and outcome.", dto.MetricType_COUNTER, "business", "outcome")
	r.declare(MetricTrailing, "Trailing 7-row mean of a compared metric.", dto.MetricType_GAUGE, "business", "metric")
	r.declare(MetricDifference, "Trailing minus prior 7-row mean of a compared metric.", dto.MetricType_GAUGE, "business", "metric")
	return r
}

func (r *Registry) declare(name, help string, typ dto.MetricType, labelNames ...string) {
	r.families[name] = &family{help: help, typ: typ, labelNames: labelNames, series: make(map[string]*series)}
}

// IncFetch counts one sheet fetch.
func (r *Registry) IncFetch(business, outcome string) { r.add(FetchTotal, 1, business, outcome) }

// IncPush counts one report push.
func (r *Registry) IncPush(business, outcome string) { r.add(PushTotal, 1, business, outcome) }

// SetComparison records the latest trailing mean and difference of a metric.
func (r *Registry) SetComparison(business, metric string, trailing, diff float64) {
	r.set(MetricTrailing, trailing, business, metric)
	r.set(MetricDifference, diff, business, metric)
}

// Value returns the current value of a series, for tests and diagnostics.
func (r *Registry) Value(name string, labels ...string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[name]
	if !ok {
		return 0, false
	}
	s, ok := f.series[seriesKey(labels)]
	if !ok {
		return 0, false
	}
	return s.value, true
}

func (r *Registry) add(name string, delta float64, labels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup(name, labels).value += delta
}

func (r *Registry) set(name string, v float64, labels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup(name, labels).value = v
}

// lookup returns the series for labels, creating it. Caller holds r.mu.
func (r *Registry) lookup(name string, labels []string) *series {
	f := r.families[name]
	k := seriesKey(labels)
	s, ok := f.series[k]
	if !ok {
		s = &series{labels: append([]string(nil), labels...)}
		f.series[k] = s
	}
	return s
}

func seriesKey(labels []string) string { return strings.Join(labels, "\xff") }

// Gather snapshots every non-empty family, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.families))
	for n, f := range r.families {
		if len(f.series) > 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	out := make([]*dto.MetricFamily, 0, len(names))
	for _, n := range names {
		f := r.families[n]
		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		mf := &dto.MetricFamily{
			Name: ptr(n),
			Help: ptr(f.help),
			Type: f.typ.Enum(),
		}
		for _, k := range keys {
			s := f.series[k]
			m := &dto.Metric{Label: make([]*dto.LabelPair, len(f.labelNames))}
			for i, ln := range f.labelNames {
				m.Label[i] = &dto.LabelPair{Name: ptr(ln), Value: ptr(s.labels[i])}
			}
			if f.typ == dto.MetricType_COUNTER {
				m.Counter = &dto.Counter{Value: ptr(s.value)}
			} else {
				m.Gauge = &dto.Gauge{Value: ptr(s.value)}
			}
			mf.Metric = append(mf.Metric, m)
		}
		out = append(out, mf)
	}
	return out
}

// Handler serves the registry in the Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range r.Gather() {
			if err := enc.Encode(mf); err != nil {
				slog.Error("metrics: encode family", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}

func ptr[T any](v T) *T { return &v }
