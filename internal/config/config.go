package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultWeekLayout        = "2006-01-02"
	DefaultRefreshInterval   = 5 * time.Minute
	DefaultHTTPAddr          = ":8080"
	DefaultBroadcastInterval = 5 * time.Second
	DefaultWebhookTimeout    = 10 * time.Second
	DefaultHistoryPath       = "phenowatch.db"
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	History  HistoryConfig  `yaml:"history"`
}

// SourceConfig describes where the weekly table is read from. Exactly one of
// Path or URL must be set.
type SourceConfig struct {
	// Path is a local CSV, XLSX or XLS file.
	Path string `yaml:"path"`

	// URL is fetched over HTTP(S), e.g. a raw file hosted in a git repository.
	URL string `yaml:"url"`

	// Format is one of: auto | csv | xlsx | xls. auto picks from the extension.
	Format string `yaml:"format"`

	// Sheet selects the worksheet for xlsx/xls input. Empty means the first.
	Sheet string `yaml:"sheet"`

	// WeekLayout is the Go time layout of the week column. RFC3339 timestamps
	// are always accepted as well.
	WeekLayout string `yaml:"week_layout"`

	// RefreshInterval bounds how long a URL source is served from cache when
	// the server sends neither ETag nor Last-Modified.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Auth configures how the loader authenticates to a URL source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options for URL sources.
	TLS TLSConfig `yaml:"tls"`
}

// Describe returns the path or URL, whichever is configured.
func (s SourceConfig) Describe() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// AuthConfig specifies the authentication mode for a URL source.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name the API key is sent in (apikey mode).
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token (bearer mode).
	TokenEnv string `yaml:"token_env"`

	// Username is the literal username; PasswordEnv names the variable holding
	// the password (basic mode).
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// AnalysisConfig controls how percentages and alert flags are derived.
type AnalysisConfig struct {
	// ZeroTotal is one of: error | zero. See compute.ZeroTotalPolicy.
	ZeroTotal string `yaml:"zero_total"`

	// DuplicateWeeks is one of: error | keep. See compute.DuplicateWeekPolicy.
	DuplicateWeeks string `yaml:"duplicate_weeks"`

	// Rules overrides the default alert rules when non-empty.
	Rules []AlertRule `yaml:"rules"`
}

// AlertRule is the YAML form of compute.Rule.
type AlertRule struct {
	// Category is one of: MRSA | VRSA | Other | Wild.
	Category string `yaml:"category"`

	// Method is one of: tukey | fixed.
	Method string `yaml:"method"`

	// Op and Value apply to the fixed method, e.g. op ">=" value 1.
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`

	// Multiplier is the IQR factor of the tukey method (default 1.5).
	Multiplier float64 `yaml:"multiplier"`
}

// ComputeRules converts the configured rules. An empty list yields nil so the
// engine falls back to compute.DefaultRules.
func (a AnalysisConfig) ComputeRules() []compute.Rule {
	if len(a.Rules) == 0 {
		return nil
	}
	out := make([]compute.Rule, 0, len(a.Rules))
	for _, r := range a.Rules {
		out = append(out, compute.Rule{
			Category:   types.Category(r.Category),
			Method:     compute.Method(strings.ToLower(r.Method)),
			Op:         r.Op,
			Value:      r.Value,
			Multiplier: r.Multiplier,
		})
	}
	return out
}

// ServerConfig holds the dashboard server settings.
type ServerConfig struct {
	// HTTPAddr is the listen address of the REST API, WebSocket hub and
	// /metrics endpoint.
	HTTPAddr string `yaml:"http_addr"`

	// GRPCPort serves the gRPC health service. 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// Auth configures how the server authenticates API requests.
	Auth ServerAuthConfig `yaml:"auth"`

	// BroadcastInterval is how often the WebSocket hub pushes the report.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// UIDir serves a pre-built static dashboard from this directory when set.
	UIDir string `yaml:"ui_dir"`
}

// ServerAuthConfig configures API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) carrying the key.
	// Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string { return env(a.KeyEnv) }

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// AlertsConfig holds notification delivery settings.
type AlertsConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// DigestSchedule is a standard 5-field cron expression. When set, a summary
	// of all alerted weeks is posted to every webhook on that schedule.
	DigestSchedule string `yaml:"digest_schedule"`

	// Timeout bounds a single webhook request.
	Timeout time.Duration `yaml:"timeout"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return env(w.URLEnv) }

// HistoryConfig selects where sent notifications are recorded so restarts do
// not notify the same week twice.
type HistoryConfig struct {
	// Backend is one of: memory | sqlite.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file (sqlite backend).
	Path string `yaml:"path"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
// Relative source and history paths are resolved against the config file's
// directory.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, goerr.Wrap(err, "load config", goerr.V("path", path))
	}
	return cfg, nil
}

// Read is Load without validation, for callers that override fields first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "read config file", goerr.V("path", path))
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, goerr.Wrap(err, "load config", goerr.V("path", path))
	}

	base := filepath.Dir(path)
	cfg.Source.Path = resolve(base, cfg.Source.Path)
	if cfg.History.Backend == "sqlite" {
		cfg.History.Path = resolve(base, cfg.History.Path)
	}
	return cfg, nil
}

// Parse decodes YAML config data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "parse yaml")
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values that YAML left unset.
func applyDefaults(cfg *Config) {
	if cfg.Source.Format == "" {
		cfg.Source.Format = "auto"
	}
	if cfg.Source.WeekLayout == "" {
		cfg.Source.WeekLayout = DefaultWeekLayout
	}
	if cfg.Source.RefreshInterval == 0 {
		cfg.Source.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Analysis.ZeroTotal == "" {
		cfg.Analysis.ZeroTotal = string(compute.ZeroTotalError)
	}
	if cfg.Analysis.DuplicateWeeks == "" {
		cfg.Analysis.DuplicateWeeks = string(compute.DuplicateWeekError)
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Server.BroadcastInterval == 0 {
		cfg.Server.BroadcastInterval = DefaultBroadcastInterval
	}
	if cfg.Alerts.Timeout == 0 {
		cfg.Alerts.Timeout = DefaultWebhookTimeout
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = "memory"
	}
	if cfg.History.Backend == "sqlite" && cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
}

// Validate checks required fields and structural constraints.
func Validate(cfg *Config) error {
	src := cfg.Source
	switch {
	case src.Path == "" && src.URL == "":
		return goerr.New("source.path or source.url is required")
	case src.Path != "" && src.URL != "":
		return goerr.New("source.path and source.url are mutually exclusive")
	}
	switch src.Format {
	case "auto", "csv", "xlsx", "xls":
	default:
		return goerr.New("unknown source.format", goerr.V("format", src.Format))
	}
	switch src.Auth.Mode {
	case "apikey", "bearer", "basic", "none", "":
	default:
		return goerr.New("unknown source.auth.mode", goerr.V("mode", src.Auth.Mode))
	}
	if src.Auth.Mode == "apikey" && src.Auth.Header == "" {
		return goerr.New("source.auth.header is required for apikey mode")
	}
	if src.RefreshInterval < 0 {
		return goerr.New("source.refresh_interval must not be negative")
	}

	switch compute.ZeroTotalPolicy(cfg.Analysis.ZeroTotal) {
	case compute.ZeroTotalError, compute.ZeroTotalZero:
	default:
		return goerr.New("unknown analysis.zero_total", goerr.V("zero_total", cfg.Analysis.ZeroTotal))
	}
	switch compute.DuplicateWeekPolicy(cfg.Analysis.DuplicateWeeks) {
	case compute.DuplicateWeekError, compute.DuplicateWeekKeep:
	default:
		return goerr.New("unknown analysis.duplicate_weeks", goerr.V("duplicate_weeks", cfg.Analysis.DuplicateWeeks))
	}
	for i, r := range cfg.Analysis.ComputeRules() {
		if err := r.Validate(); err != nil {
			return goerr.Wrap(err, "invalid analysis rule", goerr.V("index", i))
		}
	}

	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return goerr.New("server.grpc_port is out of range [0, 65535]", goerr.V("port", cfg.Server.GRPCPort))
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return goerr.New("unknown server.auth.mode", goerr.V("mode", cfg.Server.Auth.Mode))
	}
	if cfg.Server.BroadcastInterval < 0 {
		return goerr.New("server.broadcast_interval must not be negative")
	}

	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return goerr.New("unknown webhook type", goerr.V("index", i), goerr.V("type", wh.Type))
		}
		if wh.URLEnv == "" {
			return goerr.New("webhook url_env is required", goerr.V("index", i))
		}
	}
	if s := strings.TrimSpace(cfg.Alerts.DigestSchedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return goerr.Wrap(err, "invalid alerts.digest_schedule", goerr.V("schedule", s))
		}
	}

	switch cfg.History.Backend {
	case "memory", "sqlite":
	default:
		return goerr.New("unknown history.backend", goerr.V("backend", cfg.History.Backend))
	}
	return nil
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
