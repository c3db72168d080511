package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sheetpulse/sheetpulse/internal/config"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

// Open platform endpoints, relative to config.FeishuConfig.BaseURL.
const (
	tokenPath  = "/open-apis/auth/v3/tenant_access_token/internal"
	valuesPath = "/open-apis/sheets/v2/spreadsheets/%s/values/%s"
)

// tokenSlack renews the tenant token this long before the server expires it.
const tokenSlack = 5 * time.Minute

// Feishu reads worksheet values through the Feishu Sheets v2 API.
//
// A tenant access token is requested with the app credentials on first use and
// cached until shortly before it expires.
type Feishu struct {
	cfg    config.FeishuConfig
	base   *http.Client // unauthenticated, used for the token call
	client *http.Client // injects the bearer token

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time // injectable for deterministic tests
}

// NewFeishu returns a Feishu source that issues requests through client.
func NewFeishu(cfg config.FeishuConfig, client *http.Client) *Feishu {
	f := &Feishu{cfg: cfg, base: client, now: time.Now}
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	f.client = &http.Client{
		Transport: &tokenRoundTripper{base: transport, token: f.Token},
		Timeout:   client.Timeout,
	}
	return f
}

type apiStatus struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type tokenResponse struct {
	apiStatus
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"` // seconds
}

type valuesResponse struct {
	apiStatus
	Data struct {
		ValueRange struct {
			Range  string  `json:"range"`
			Values [][]any `json:"values"`
		} `json:"valueRange"`
	} `json:"data"`
}

// Token returns a valid tenant access token, requesting a new one when the
// cached token is missing or about to expire.
func (f *Feishu) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != "" && f.now().Before(f.expires) {
		return f.token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"app_id":     f.cfg.AppID(),
		"app_secret": f.cfg.AppSecret(),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(f.cfg.BaseURL, "/")+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("feishu: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	var out tokenResponse
	if err := doJSON(f.base, req, &out); err != nil {
		return "", fmt.Errorf("feishu: tenant token: %w", err)
	}
	if out.Code != 0 {
		return "", fmt.Errorf("feishu: tenant token: code %d: %s", out.Code, out.Msg)
	}
	if out.TenantAccessToken == "" {
		return "", fmt.Errorf("feishu: tenant token: empty token in response")
	}

	ttl := time.Duration(out.Expire)*time.Second - tokenSlack
	if ttl <= 0 {
		ttl = time.Minute
	}
	f.token = out.TenantAccessToken
	f.expires = f.now().Add(ttl)
	slog.Debug("feishu: tenant token refreshed", "expires_in", ttl)
	return f.token, nil
}

// Fetch reads the configured column range of sheetID with unformatted values,
// so numbers arrive as numbers and dates as serial days.
func (f *Feishu) Fetch(ctx context.Context, sheetID string) (table.Raw, error) {
	rng := f.cfg.Range
	if rng == "" {
		rng = "A:Z"
	}
	u := strings.TrimRight(f.cfg.BaseURL, "/") + fmt.Sprintf(valuesPath,
		url.PathEscape(f.cfg.SpreadsheetToken), url.PathEscape(sheetID+"!"+rng))
	u += "?valueRenderOption=UnformattedValue"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("feishu: build values request: %w", err)
	}

	var out valuesResponse
	if err := doJSON(f.client, req, &out); err != nil {
		return nil, fmt.Errorf("feishu: sheet %q: %w", sheetID, err)
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("feishu: sheet %q: code %d: %s", sheetID, out.Code, out.Msg)
	}
	return table.Raw(out.Data.ValueRange.Values), nil
}

// doJSON sends req and decodes a JSON body into v. Non-2xx statuses are
// errors, but the open platform reports most failures as 200 with a code.
func doJSON(client *http.Client, req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", strings.ToLower(req.Method), err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		snippet := string(b)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return fmt.Errorf("unexpected status %d: %q", resp.StatusCode, snippet)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
