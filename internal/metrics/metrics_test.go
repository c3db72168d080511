package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	r.IncFetch("a", OutcomeOK)
	r.IncFetch("a", OutcomeOK)
	r.IncFetch("a", OutcomeError)

	if v, ok := r.Value(FetchTotal, "a", OutcomeOK); !ok || v != 2 {
		t.Errorf("fetch ok: got %v %v, want 2", v, ok)
	}
	if v, _ := r.Value(FetchTotal, "a", OutcomeError); v != 1 {
		t.Errorf("fetch error: got %v, want 1", v)
	}
	if _, ok := r.Value(PushTotal, "a", OutcomeOK); ok {
		t.Error("push series should not exist yet")
	}
}

func TestRegistry_GatherSkipsEmptyFamilies(t *testing.T) {
	r := NewRegistry()
	if got := r.Gather(); len(got) != 0 {
		t.Fatalf("fresh registry gathered %d families", len(got))
	}
	r.SetComparison("a", "违规率", 3, 1)
	r.SetComparison("a", "违规率", 2.5, -0.5)

	fams := r.Gather()
	if len(fams) != 2 {
		t.Fatalf("got %d families, want 2", len(fams))
	}
	if fams[0].GetName() != MetricDifference || fams[1].GetName() != MetricTrailing {
		t.Errorf("order: %s, %s", fams[0].GetName(), fams[1].GetName())
	}
	if fams[0].GetType() != dto.MetricType_GAUGE {
		t.Errorf("type: %v", fams[0].GetType())
	}
	if got := fams[1].Metric[0].GetGauge().GetValue(); got != 2.5 {
		t.Errorf("trailing gauge: got %v, want 2.5", got)
	}
}

func TestHandler_RoundTripsThroughParser(t *testing.T) {
	r := NewRegistry()
	r.IncPush("头像用户资料", OutcomeOK)
	r.IncFetch("头像用户资料", OutcomeSkipped)
	r.SetComparison("头像用户资料", "总进审量", 1200, 35)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type: %q", ct)
	}

	var parser expfmt.TextParser
	fams, err := parser.TextToMetricFamilies(strings.NewReader(rec.Body.String()))
	if err != nil {
		t.Fatalf("parse exposition: %v\n%s", err, rec.Body.String())
	}
	push, ok := fams[PushTotal]
	if !ok {
		t.Fatalf("missing %s in %v", PushTotal, fams)
	}
	m := push.Metric[0]
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("push counter: %v", m.GetCounter().GetValue())
	}
	labels := map[string]string{}
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["business"] != "头像用户资料" || labels["outcome"] != OutcomeOK {
		t.Errorf("labels: %v", labels)
	}
	if fams[MetricDifference].Metric[0].GetGauge().GetValue() != 35 {
		t.Error("diff gauge not exposed")
	}
}
