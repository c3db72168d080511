package sheets

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

const defaultTimeout = 10 * time.Second

// Source returns the raw table stored under a sheet identifier.
//
// Callers treat any error as "no data": the dashboard and the pusher log it
// and carry on with an empty table.
type Source interface {
	Fetch(ctx context.Context, sheetID string) (table.Raw, error)
}

// New returns the Source selected by cfg.Source.Type.
// It builds the HTTP client once and reuses it across fetches.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Source.Type {
	case "feishu", "":
		return NewFeishu(cfg.Feishu, buildHTTPClient(cfg.Feishu)), nil
	case "xlsx":
		return NewWorkbook(cfg.Source.Path), nil
	default:
		return nil, fmt.Errorf("sheets: unsupported source type %q", cfg.Source.Type)
	}
}

// buildHTTPClient constructs an http.Client for the API's timeout and TLS settings.
func buildHTTPClient(fc config.FeishuConfig) *http.Client {
	timeout := fc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tlsCfg := &tls.Config{
		InsecureSkipVerify: fc.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   timeout,
	}
}

// tokenRoundTripper injects the tenant access token into every outgoing request.
type tokenRoundTripper struct {
	base  http.RoundTripper
	token func(ctx context.Context) (string, error)
}

func (t *tokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.token(req.Context())
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+tok)
	return t.base.RoundTrip(req)
}
