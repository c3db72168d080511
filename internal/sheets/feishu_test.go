package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sheetpulse/sheetpulse/internal/config"
)

// fakeOpenAPI serves the token and values endpoints of the open platform.
type fakeOpenAPI struct {
	tokenCalls  atomic.Int32
	valuesCalls atomic.Int32
	tokenCode   int
	valuesCode  int
	expire      int
}

func (f *fakeOpenAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("token: method %s, want POST", r.Method)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["app_id"] != "cli_test" || body["app_secret"] != "secret" {
			t.Errorf("token: credentials %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":                f.tokenCode,
			"msg":                 "ok",
			"tenant_access_token": "t-abc",
			"expire":              f.expire,
		})
	})
	mux.HandleFunc("/open-apis/sheets/v2/spreadsheets/", func(w http.ResponseWriter, r *http.Request) {
		f.valuesCalls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer t-abc" {
			t.Errorf("values: Authorization = %q", got)
		}
		if want := "/open-apis/sheets/v2/spreadsheets/doc-token/values/y7kzwF!A:Z"; r.URL.Path != want {
			t.Errorf("values: path = %q, want %q", r.URL.Path, want)
		}
		if got := r.URL.Query().Get("valueRenderOption"); got != "UnformattedValue" {
			t.Errorf("values: valueRenderOption = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":` + itoa(f.valuesCode) + `,"msg":"ok","data":{"valueRange":{"range":"y7kzwF!A1:C3","values":[
			["日期","总进审量","违规率"],
			[45725,1200,0.031],
			["2025-03-10",null,"0.04"]
		]}}}`))
	})
	return mux
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestFeishu(t *testing.T, api *fakeOpenAPI) *Feishu {
	t.Helper()
	t.Setenv("TEST_FEISHU_APP_ID", "cli_test")
	t.Setenv("TEST_FEISHU_APP_SECRET", "secret")
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.FeishuConfig{
		BaseURL:          srv.URL,
		AppIDEnv:         "TEST_FEISHU_APP_ID",
		AppSecretEnv:     "TEST_FEISHU_APP_SECRET",
		SpreadsheetToken: "doc-token",
	}
	return NewFeishu(cfg, srv.Client())
}

func TestFeishu_Fetch(t *testing.T) {
	api := &fakeOpenAPI{expire: 7200}
	f := newTestFeishu(t, api)

	raw, err := f.Fetch(context.Background(), "y7kzwF")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("rows = %d, want 3", len(raw))
	}
	if got := raw[0][2]; got != "违规率" {
		t.Errorf("header[2] = %v", got)
	}
	if got := raw[1][0]; got != float64(45725) {
		t.Errorf("serial date cell = %#v, want 45725", got)
	}
	if got := raw[2][1]; got != nil {
		t.Errorf("null cell = %#v, want nil", got)
	}
}

func TestFeishu_TokenCached(t *testing.T) {
	api := &fakeOpenAPI{expire: 7200}
	f := newTestFeishu(t, api)

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), "y7kzwF"); err != nil {
			t.Fatalf("Fetch() #%d error = %v", i, err)
		}
	}
	if n := api.tokenCalls.Load(); n != 1 {
		t.Errorf("token calls = %d, want 1", n)
	}
	if n := api.valuesCalls.Load(); n != 3 {
		t.Errorf("values calls = %d, want 3", n)
	}
}

func TestFeishu_TokenRefreshedAfterExpiry(t *testing.T) {
	api := &fakeOpenAPI{expire: 7200}
	f := newTestFeishu(t, api)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	if _, err := f.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour) // past expire minus slack
	if _, err := f.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := api.tokenCalls.Load(); n != 2 {
		t.Errorf("token calls = %d, want 2", n)
	}
}

func TestFeishu_TokenErrorCode(t *testing.T) {
	api := &fakeOpenAPI{tokenCode: 10014, expire: 7200}
	f := newTestFeishu(t, api)

	if _, err := f.Fetch(context.Background(), "y7kzwF"); err == nil {
		t.Fatal("expected error when the token call returns a non-zero code")
	}
	if n := api.valuesCalls.Load(); n != 0 {
		t.Errorf("values calls = %d, want 0 without a token", n)
	}
}

func TestFeishu_ValuesErrorCode(t *testing.T) {
	api := &fakeOpenAPI{valuesCode: 90202, expire: 7200}
	f := newTestFeishu(t, api)

	if _, err := f.Fetch(context.Background(), "y7kzwF"); err == nil {
		t.Fatal("expected error when the values call returns a non-zero code")
	}
}

func TestFeishu_ConnectFailure(t *testing.T) {
	f := NewFeishu(config.FeishuConfig{BaseURL: "http://127.0.0.1:1", SpreadsheetToken: "x"}, &http.Client{})
	if _, err := f.Fetch(context.Background(), "s"); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

func TestNew_SourceTypes(t *testing.T) {
	if _, err := New(&config.Config{Source: config.SourceConfig{Type: "feishu"}}); err != nil {
		t.Errorf("feishu: %v", err)
	}
	if s, err := New(&config.Config{Source: config.SourceConfig{Type: "xlsx", Path: "x.xlsx"}}); err != nil {
		t.Errorf("xlsx: %v", err)
	} else if _, ok := s.(*Workbook); !ok {
		t.Errorf("xlsx: got %T, want *Workbook", s)
	}
	if _, err := New(&config.Config{Source: config.SourceConfig{Type: "csv"}}); err == nil {
		t.Error("csv: expected error")
	}
}
