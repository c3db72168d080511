package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sheetpulse/sheetpulse/internal/compare"
	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/history"
	"github.com/sheetpulse/sheetpulse/internal/metrics"
	"github.com/sheetpulse/sheetpulse/internal/notify"
	"github.com/sheetpulse/sheetpulse/internal/sheets"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

// ErrUnknownBusiness is returned for a business name missing from the config.
var ErrUnknownBusiness = errors.New("report: unknown business")

// Skip reasons reported in Outcome.Skipped.
const (
	SkipFetchFailed = "fetch failed"
	SkipNoData      = "no data"
)

// Outcome is the result of pushing one business report.
type Outcome struct {
	Business  string           `json:"business"`
	Status    string           `json:"status,omitempty"`
	Results   []compare.Result `json:"results,omitempty"`
	Delivered int              `json:"delivered"`
	Skipped   string           `json:"skipped,omitempty"`
	RecordID  string           `json:"record_id,omitempty"`
}

// Pusher loads business tables, compares them and delivers briefing cards.
// All methods are safe for concurrent use.
type Pusher struct {
	src      sheets.Source
	notifier *notify.Notifier
	history  *history.Store
	metrics  *metrics.Registry

	mu  sync.RWMutex
	cfg *config.Config
	cmp *compare.Comparator
}

// NewPusher wires a Pusher. hist may be nil to disable the push log.
func NewPusher(cfg *config.Config, src sheets.Source, n *notify.Notifier, hist *history.Store, reg *metrics.Registry) *Pusher {
	p := &Pusher{src: src, notifier: n, history: hist, metrics: reg}
	p.SetConfig(cfg)
	return p
}

// SetConfig swaps the business map, comparison settings and webhook targets.
func (p *Pusher) SetConfig(cfg *config.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.cmp = compare.New(cfg.Compare)
	p.mu.Unlock()
	p.notifier.SetWebhooks(cfg.Push.Webhooks)
}

// Config returns the configuration currently in effect.
func (p *Pusher) Config() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Comparator returns the comparator for the current configuration.
func (p *Pusher) Comparator() *compare.Comparator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cmp
}

// Fetch returns the raw table of business. Fetch outcomes are counted.
func (p *Pusher) Fetch(ctx context.Context, business string) (table.Raw, error) {
	sheetID, ok := p.Config().SheetID(business)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownBusiness, business)
	}
	raw, err := p.src.Fetch(ctx, sheetID)
	if err != nil {
		p.metrics.IncFetch(business, metrics.OutcomeError)
		return nil, err
	}
	p.metrics.IncFetch(business, metrics.OutcomeOK)
	return raw, nil
}

// Load returns the dated table of business. A failed fetch yields an empty
// table and is only logged; an unknown business is an error.
func (p *Pusher) Load(ctx context.Context, business string) (*table.Dated, error) {
	raw, err := p.Fetch(ctx, business)
	if errors.Is(err, ErrUnknownBusiness) {
		return nil, err
	}
	if err != nil {
		slog.Warn("report: fetch failed, using empty table", "business", business, "err", err)
	}
	return table.NewDated(raw), nil
}

// PushOne compares business and delivers its card to targets, or to the
// configured webhooks when targets is empty.
func (p *Pusher) PushOne(ctx context.Context, business, period string, targets []config.WebhookConfig) (Outcome, error) {
	out := Outcome{Business: business}

	raw, err := p.Fetch(ctx, business)
	switch {
	case errors.Is(err, ErrUnknownBusiness):
		return out, err
	case err != nil:
		slog.Warn("report: fetch failed, skipping push", "business", business, "err", err)
		out.Skipped = SkipFetchFailed
		p.metrics.IncPush(business, metrics.OutcomeSkipped)
		return out, nil
	case len(raw) <= 1:
		out.Skipped = SkipNoData
		p.metrics.IncPush(business, metrics.OutcomeSkipped)
		return out, nil
	}

	summary := p.Comparator().Compare(table.NewDated(raw))
	if summary == nil {
		out.Skipped = SkipNoData
		p.metrics.IncPush(business, metrics.OutcomeSkipped)
		return out, nil
	}
	out.Status = summary.Status
	out.Results = summary.Results
	for _, r := range summary.Results {
		p.metrics.SetComparison(business, r.Metric, r.Trailing, r.Diff)
	}

	if period == "" {
		period = p.Config().Period
	}
	card := notify.Build(business, period, summary)
	if len(targets) == 0 {
		targets = p.notifier.Webhooks()
	}
	out.Delivered = p.notifier.DeliverAll(ctx, targets, card)

	outcome := metrics.OutcomeOK
	if out.Delivered == 0 {
		outcome = metrics.OutcomeError
	}
	p.metrics.IncPush(business, outcome)

	rec, err := p.history.Record(ctx, history.Record{
		Business:      business,
		Status:        summary.Status,
		ViolationDiff: summary.ViolationDiff,
		Metrics:       summary.Results,
		Delivered:     out.Delivered,
	})
	if err != nil {
		slog.Error("report: record push", "business", business, "err", err)
	}
	out.RecordID = rec.ID

	slog.Info("report: pushed",
		"business", business,
		"status", summary.Status,
		"violation_diff", summary.ViolationDiff,
		"delivered", out.Delivered,
	)
	return out, nil
}

// PushBatch pushes every known business in businesses concurrently, up to
// push.concurrency at a time. Unknown names are logged and left out; the
// outcomes keep the input order.
func (p *Pusher) PushBatch(ctx context.Context, businesses []string, period string, targets []config.WebhookConfig) []Outcome {
	cfg := p.Config()
	known := make([]string, 0, len(businesses))
	for _, b := range businesses {
		if _, ok := cfg.SheetID(b); !ok {
			slog.Warn("report: unknown business in batch, skipping", "business", b)
			continue
		}
		known = append(known, b)
	}

	outcomes := make([]Outcome, len(known))
	var g errgroup.Group
	g.SetLimit(max(cfg.Push.Concurrency, 1))
	for i, b := range known {
		g.Go(func() error {
			out, err := p.PushOne(ctx, b, period, targets)
			if err != nil {
				// Config reloaded between the filter and the push.
				out = Outcome{Business: b, Skipped: err.Error()}
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Recent returns the latest push records.
func (p *Pusher) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	return p.history.Recent(ctx, limit)
}
