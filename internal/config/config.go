package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBaseURL           = "https://open.feishu.cn"
	DefaultCacheTTL          = 60 * time.Second
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 30 * time.Second
	DefaultPushConcurrency   = 4
	DefaultRetention         = 30 * 24 * time.Hour
	DefaultPeriod            = PeriodWeek
	DefaultViolationMetric   = "违规率"
)

// Chart periods. The period only controls chart windowing; the comparison
// card always uses the fixed 7-day windows.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// DefaultMetrics is the ordered list of metrics compared in pushed reports.
var DefaultMetrics = []string{"总进审量", "驳回量", "违规率", "推审率"}

// DefaultRateMarkers flag a metric name or column label as a ratio quantity.
var DefaultRateMarkers = []string{"率"}

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Period is the default chart window: day | week | month.
	Period string `yaml:"period"`

	Feishu     FeishuConfig  `yaml:"feishu"`
	Source     SourceConfig  `yaml:"source"`
	Businesses []Business    `yaml:"businesses"`
	Compare    CompareConfig `yaml:"compare"`
	Cache      CacheConfig   `yaml:"cache"`
	Push       PushConfig    `yaml:"push"`
	Server     ServerConfig  `yaml:"server"`
	Storage    StorageConfig `yaml:"storage"`
}

// FeishuConfig holds the Feishu open platform credentials and the spreadsheet
// that holds one worksheet per business line.
type FeishuConfig struct {
	// BaseURL is the open platform origin. Overridable for tests.
	BaseURL string `yaml:"base_url"`

	// AppIDEnv is the name of the environment variable holding the app id.
	AppIDEnv string `yaml:"app_id_env"`

	// AppSecretEnv is the name of the environment variable holding the app secret.
	AppSecretEnv string `yaml:"app_secret_env"`

	// SpreadsheetToken identifies the spreadsheet document.
	SpreadsheetToken string `yaml:"spreadsheet_token"`

	// Range is the column range read from each sheet. Defaults to "A:Z".
	Range string `yaml:"range"`

	// Timeout bounds a single API call.
	Timeout time.Duration `yaml:"timeout"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AppID returns the app id resolved from the environment.
func (f FeishuConfig) AppID() string {
	return fromEnv(f.AppIDEnv)
}

// AppSecret returns the app secret resolved from the environment.
func (f FeishuConfig) AppSecret() string {
	return fromEnv(f.AppSecretEnv)
}

// TLSConfig holds TLS dial options for outbound API calls.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// SourceConfig selects where raw tables are read from.
type SourceConfig struct {
	// Type is one of: feishu | xlsx.
	Type string `yaml:"type"`

	// Path is the workbook path, used when Type == "xlsx".
	Path string `yaml:"path"`
}

// Business maps a human-readable business line to its worksheet.
type Business struct {
	Name    string `yaml:"name"`
	SheetID string `yaml:"sheet_id"`
}

// CompareConfig controls the week-over-week comparison.
type CompareConfig struct {
	// Metrics is the ordered list of target metric names. Each is matched
	// against column labels by substring.
	Metrics []string `yaml:"metrics"`

	// ViolationMetric drives the overall report status.
	ViolationMetric string `yaml:"violation_metric"`

	// RateMarkers flag ratio metrics that get percentage scaling.
	RateMarkers []string `yaml:"rate_markers"`
}

// CacheConfig controls the fetch cache in front of the sheet source.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// PushConfig controls report delivery.
type PushConfig struct {
	// Interval is the scheduled push period. Zero disables the scheduler.
	Interval time.Duration `yaml:"interval"`

	// Concurrency caps parallel per-business pushes in a batch.
	Concurrency int `yaml:"concurrency"`

	// Businesses is the default selection for batch pushes.
	Businesses []string `yaml:"businesses"`

	// Webhooks is the list of delivery targets.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: feishu | slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`

	// URL is a literal webhook URL, used when URLEnv is empty.
	URL string `yaml:"url"`
}

// Endpoint returns the webhook URL, preferring the environment variable.
func (w WebhookConfig) Endpoint() string {
	if w.URLEnv != "" {
		return os.Getenv(w.URLEnv)
	}
	return w.URL
}

// ServerConfig holds the dashboard server settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often the overview is pushed to
	// WebSocket clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// AccessCodeEnv names the environment variable holding the access code
	// required for mutating routes. Empty leaves the API open.
	AccessCodeEnv string `yaml:"access_code_env"`
}

// AccessCode returns the access code resolved from the environment.
func (s ServerConfig) AccessCode() string {
	return fromEnv(s.AccessCodeEnv)
}

// StorageConfig configures push history persistence.
type StorageConfig struct {
	// Backend selects the storage implementation: sqlite | none.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long push records are kept before deletion.
	Retention time.Duration `yaml:"retention"`
}

// SheetID returns the worksheet id for a business name.
func (c *Config) SheetID(name string) (string, bool) {
	for _, b := range c.Businesses {
		if b.Name == name {
			return b.SheetID, true
		}
	}
	return "", false
}

// BusinessNames returns business names in configuration order.
func (c *Config) BusinessNames() []string {
	out := make([]string, 0, len(c.Businesses))
	for _, b := range c.Businesses {
		out = append(out, b.Name)
	}
	return out
}

// PeriodDays maps a chart period to its length in days.
// Unknown periods fall back to a week.
func PeriodDays(period string) int {
	switch period {
	case PeriodDay:
		return 1
	case PeriodMonth:
		return 30
	default:
		return 7
	}
}

// PeriodLabel returns the label shown in report titles.
func PeriodLabel(period string) string {
	switch period {
	case PeriodDay:
		return "按天"
	case PeriodMonth:
		return "按月"
	default:
		return "按周"
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	fillEmpty(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Period:   DefaultPeriod,
		Feishu: FeishuConfig{
			BaseURL: DefaultBaseURL,
			Range:   "A:Z",
			Timeout: 10 * time.Second,
		},
		Source: SourceConfig{Type: "feishu"},
		Compare: CompareConfig{
			ViolationMetric: DefaultViolationMetric,
		},
		Cache: CacheConfig{TTL: DefaultCacheTTL},
		Push:  PushConfig{Concurrency: DefaultPushConcurrency},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Storage: StorageConfig{
			Backend:   "none",
			Path:      "sheetpulse.db",
			Retention: DefaultRetention,
		},
	}
}

// fillEmpty sets list defaults. yaml.v3 replaces slices wholesale, so list
// defaults can only be applied after decoding.
func fillEmpty(cfg *Config) {
	if len(cfg.Compare.Metrics) == 0 {
		cfg.Compare.Metrics = append([]string(nil), DefaultMetrics...)
	}
	if len(cfg.Compare.RateMarkers) == 0 {
		cfg.Compare.RateMarkers = append([]string(nil), DefaultRateMarkers...)
	}
	if len(cfg.Push.Businesses) == 0 && len(cfg.Businesses) > 0 {
		cfg.Push.Businesses = []string{cfg.Businesses[0].Name}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	switch cfg.Period {
	case PeriodDay, PeriodWeek, PeriodMonth:
	default:
		return fmt.Errorf("period %q unknown: want day|week|month", cfg.Period)
	}

	switch cfg.Source.Type {
	case "feishu":
		if cfg.Feishu.SpreadsheetToken == "" {
			return fmt.Errorf("feishu.spreadsheet_token is required")
		}
	case "xlsx":
		if cfg.Source.Path == "" {
			return fmt.Errorf("source.path is required for xlsx sources")
		}
	default:
		return fmt.Errorf("source.type %q unknown: want feishu|xlsx", cfg.Source.Type)
	}

	seen := make(map[string]bool, len(cfg.Businesses))
	for i, b := range cfg.Businesses {
		if b.Name == "" {
			return fmt.Errorf("businesses[%d]: name is required", i)
		}
		if b.SheetID == "" {
			return fmt.Errorf("businesses[%d] %q: sheet_id is required", i, b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("businesses[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
	}
	for _, name := range cfg.Push.Businesses {
		if !seen[name] {
			return fmt.Errorf("push.businesses: %q is not a configured business", name)
		}
	}

	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if cfg.Push.Interval < 0 {
		return fmt.Errorf("push.interval must not be negative")
	}
	if cfg.Push.Concurrency <= 0 {
		return fmt.Errorf("push.concurrency must be positive")
	}
	for i, wh := range cfg.Push.Webhooks {
		switch wh.Type {
		case "feishu", "slack", "teams", "http":
		default:
			return fmt.Errorf("push.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}

	switch cfg.Storage.Backend {
	case "none", "":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
		if cfg.Storage.Retention < 0 {
			return fmt.Errorf("storage.retention must not be negative")
		}
	default:
		return fmt.Errorf("storage.backend %q unknown: want sqlite|none", cfg.Storage.Backend)
	}
	return nil
}

func fromEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
