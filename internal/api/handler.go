package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sheetpulse/sheetpulse/internal/cache"
	"github.com/sheetpulse/sheetpulse/internal/chart"
	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/history"
	"github.com/sheetpulse/sheetpulse/internal/notify"
	"github.com/sheetpulse/sheetpulse/internal/report"
	"github.com/sheetpulse/sheetpulse/internal/session"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

// maxBody caps JSON request bodies.
const maxBody = 1 << 20

// Options wires a Handler to its collaborators.
type Options struct {
	Pusher   *report.Pusher
	Cache    *cache.Cache   // optional, reported by /health
	Sessions *session.Store // guards mutating routes
	Metrics  http.Handler   // served at /metrics when set
}

// Handler serves the REST API under /api/v1 plus /metrics.
type Handler struct {
	pusher   *report.Pusher
	cache    *cache.Cache
	sessions *session.Store
	router   chi.Router
	now      func() time.Time
}

// New creates a Handler and registers all routes.
func New(opts Options) *Handler {
	h := &Handler{
		pusher:   opts.Pusher,
		cache:    opts.Cache,
		sessions: opts.Sessions,
		router:   chi.NewRouter(),
		now:      time.Now,
	}
	if h.sessions == nil {
		h.sessions = session.NewStore("", 0)
	}

	r := h.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/businesses", h.listBusinesses)
		r.Get("/businesses/{name}/metrics", h.metricOptions)
		r.Get("/businesses/{name}/trend", h.trend)
		r.Get("/businesses/{name}/compare", h.compare)
		r.Get("/overview", h.overview)
		r.Post("/session", h.unlock)
		r.With(h.sessions.Require).Post("/push", h.push)
		r.Get("/pushes", h.pushes)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return h
}

// Handle mounts an extra handler, e.g. the WebSocket hub or the UI files.
func (h *Handler) Handle(pattern string, handler http.Handler) {
	h.router.Handle(pattern, handler)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	cfg := h.pusher.Config()
	resp := HealthResponse{
		Status:        "ok",
		BusinessCount: len(cfg.Businesses),
		Source:        cfg.Source.Type,
		Period:        cfg.Period,
	}
	if h.cache != nil {
		resp.CacheEntries = h.cache.Count()
	}
	jsonResp(w, http.StatusOK, resp)
}

// listBusinesses returns GET /api/v1/businesses in configured order.
func (h *Handler) listBusinesses(w http.ResponseWriter, _ *http.Request) {
	cfg := h.pusher.Config()
	out := make([]BusinessResponse, 0, len(cfg.Businesses))
	for _, b := range cfg.Businesses {
		out = append(out, BusinessResponse{Name: b.Name, SheetID: b.SheetID})
	}
	jsonResp(w, http.StatusOK, out)
}

// metricOptions returns GET /api/v1/businesses/{name}/metrics.
func (h *Handler) metricOptions(w http.ResponseWriter, r *http.Request) {
	name, d, ok := h.load(w, r)
	if !ok {
		return
	}
	opts, defs := chart.MetricOptions(d.Columns)
	jsonResp(w, http.StatusOK, MetricsResponse{Business: name, Options: opts, Defaults: defs})
}

// trend returns GET /api/v1/businesses/{name}/trend?period=&metric=...
// Without metric parameters the default selection is charted.
func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}
	name, d, ok := h.load(w, r)
	if !ok {
		return
	}
	labels := r.URL.Query()["metric"]
	if len(labels) == 0 {
		_, labels = chart.MetricOptions(d.Columns)
	}
	jsonResp(w, http.StatusOK, TrendResponse{
		Business: name,
		Period:   period,
		Rows:     d.Len(),
		Series:   chart.Trend(d, labels, period, h.pusher.Comparator()),
	})
}

// compare returns GET /api/v1/businesses/{name}/compare.
func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	name, d, ok := h.load(w, r)
	if !ok {
		return
	}
	cmp := h.pusher.Comparator()
	summary := cmp.Compare(d)
	jsonResp(w, http.StatusOK, CompareResponse{
		Business:    name,
		Summary:     summary,
		Diagnostics: computeDiagnostics(d, summary, cmp.Metrics(), h.pusher.Config().Compare.ViolationMetric, h.now()),
	})
}

// overview returns GET /api/v1/overview?period=.
func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, h.BuildOverview(r.Context(), period))
}

// unlock handles POST /api/v1/session.
func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Open() {
		jsonResp(w, http.StatusOK, SessionResponse{Unlocked: true})
		return
	}
	var req SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := h.sessions.Unlock(req.Code)
	if err != nil {
		jsonErr(w, http.StatusUnauthorized, "invalid access code")
		return
	}
	jsonResp(w, http.StatusOK, SessionResponse{Token: token, Unlocked: true})
}

// push handles POST /api/v1/push.
func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cfg := h.pusher.Config()

	businesses := req.Businesses
	if len(businesses) == 0 {
		businesses = cfg.Push.Businesses
	}
	if len(businesses) == 0 {
		jsonErr(w, http.StatusBadRequest, "no businesses selected")
		return
	}
	if req.Period != "" && !validPeriod(req.Period) {
		jsonErr(w, http.StatusBadRequest, "period must be day, week or month")
		return
	}

	var targets []config.WebhookConfig
	if req.WebhookURL != "" {
		typ := req.WebhookType
		if typ == "" {
			typ = notify.TypeFeishu
		}
		switch typ {
		case notify.TypeFeishu, notify.TypeSlack, notify.TypeTeams, notify.TypeHTTP:
		default:
			jsonErr(w, http.StatusBadRequest, "unknown webhook_type "+strconv.Quote(typ))
			return
		}
		targets = []config.WebhookConfig{{Type: typ, URL: req.WebhookURL}}
	} else if !hasEndpoint(cfg.Push.Webhooks) {
		jsonErr(w, http.StatusBadRequest, "no webhook configured: set webhook_url")
		return
	}

	outcomes := h.pusher.PushBatch(r.Context(), businesses, req.Period, targets)
	jsonResp(w, http.StatusOK, PushResponse{Outcomes: outcomes})
}

// pushes returns GET /api/v1/pushes?limit=.
func (h *Handler) pushes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}
	recs, err := h.pusher.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("api: list pushes", "err", err)
		jsonErr(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	jsonResp(w, http.StatusOK, PushesResponse{Pushes: recs})
}

// BuildOverview loads every business concurrently and returns the
// violation-rate overview for period.
func (h *Handler) BuildOverview(ctx context.Context, period string) OverviewResponse {
	cfg := h.pusher.Config()
	tables := make([]chart.Business, len(cfg.Businesses))

	var g errgroup.Group
	g.SetLimit(max(cfg.Push.Concurrency, 1))
	for i, b := range cfg.Businesses {
		g.Go(func() error {
			d, err := h.pusher.Load(ctx, b.Name)
			if err != nil {
				d = table.NewDated(nil)
			}
			tables[i] = chart.Business{Name: b.Name, Table: d}
			return nil
		})
	}
	_ = g.Wait()

	return OverviewResponse{
		Period:      period,
		Metric:      cfg.Compare.ViolationMetric,
		Series:      chart.Overview(tables, cfg.Compare.ViolationMetric, period),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

// load resolves {name} and fetches its dated table, writing a 404 for an
// unknown business.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (string, *table.Dated, bool) {
	name := chi.URLParam(r, "name")
	d, err := h.pusher.Load(r.Context(), name)
	if errors.Is(err, report.ErrUnknownBusiness) {
		jsonErr(w, http.StatusNotFound, "business not found")
		return "", nil, false
	}
	return name, d, true
}

// period reads ?period=, defaulting to the configured period.
func (h *Handler) period(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Query().Get("period")
	if p == "" {
		return h.pusher.Config().Period, true
	}
	if !validPeriod(p) {
		jsonErr(w, http.StatusBadRequest, "period must be day, week or month")
		return "", false
	}
	return p, true
}

func validPeriod(p string) bool {
	switch p {
	case config.PeriodDay, config.PeriodWeek, config.PeriodMonth:
		return true
	}
	return false
}

func hasEndpoint(webhooks []config.WebhookConfig) bool {
	for _, wh := range webhooks {
		if wh.Endpoint() != "" {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
