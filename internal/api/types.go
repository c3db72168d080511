package api

import (
	"github.com/sheetpulse/sheetpulse/internal/chart"
	"github.com/sheetpulse/sheetpulse/internal/compare"
	"github.com/sheetpulse/sheetpulse/internal/history"
	"github.com/sheetpulse/sheetpulse/internal/report"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	BusinessCount int    `json:"business_count"`
	CacheEntries  int    `json:"cache_entries"`
	Source        string `json:"source"`
	Period        string `json:"period"`
}

// BusinessResponse is one entry of GET /api/v1/businesses.
type BusinessResponse struct {
	Name    string `json:"name"`
	SheetID string `json:"sheet_id"`
}

// MetricsResponse lists the chartable columns of a business.
type MetricsResponse struct {
	Business string   `json:"business"`
	Options  []string `json:"options"`
	Defaults []string `json:"defaults"`
}

// TrendResponse is the payload for GET /api/v1/businesses/{name}/trend.
type TrendResponse struct {
	Business string         `json:"business"`
	Period   string         `json:"period"`
	Rows     int            `json:"rows"`
	Series   []chart.Series `json:"series"`
}

// CompareResponse is the payload for GET /api/v1/businesses/{name}/compare.
// Summary is null when the sheet has no dated rows.
type CompareResponse struct {
	Business    string           `json:"business"`
	Summary     *compare.Summary `json:"summary"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// OverviewResponse is the cross-business violation-rate chart, also the
// payload of WebSocket broadcasts.
type OverviewResponse struct {
	Period      string         `json:"period"`
	Metric      string         `json:"metric"`
	Series      []chart.Series `json:"series"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// SessionRequest is the body of POST /api/v1/session.
type SessionRequest struct {
	Code string `json:"code"`
}

// SessionResponse carries the token for guarded routes.
type SessionResponse struct {
	Token    string `json:"token,omitempty"`
	Unlocked bool   `json:"unlocked"`
}

// PushRequest is the body of POST /api/v1/push. Empty Businesses means the
// configured default selection; WebhookURL overrides the configured targets.
type PushRequest struct {
	Businesses  []string `json:"businesses"`
	WebhookURL  string   `json:"webhook_url"`
	WebhookType string   `json:"webhook_type"`
	Period      string   `json:"period"`
}

// PushResponse is the payload of POST /api/v1/push.
type PushResponse struct {
	Outcomes []report.Outcome `json:"outcomes"`
}

// PushesResponse is the payload of GET /api/v1/pushes.
type PushesResponse struct {
	Pushes []history.Record `json:"pushes"`
}

type errorResponse struct {
	Error string `json:"error"`
}
