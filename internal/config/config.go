// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/pacing"
)

// Config captures every configuration knob. It is built once by Load and
// passed down by value.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Pacing     PacingConfig     `mapstructure:"pacing"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Credential CredentialConfig `mapstructure:"credential"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Results    ResultsConfig    `mapstructure:"results"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Server     ServerConfig     `mapstructure:"server"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig tunes span sampling.
type TracingConfig struct {
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// CrawlConfig holds per-run defaults that requests may override.
type CrawlConfig struct {
	Query       string `mapstructure:"query"`
	Num         int    `mapstructure:"num"`
	SortType    string `mapstructure:"sort_type"`
	GetComments bool   `mapstructure:"get_comments"`
	FetchDetail bool   `mapstructure:"fetch_detail"`
	Timezone    string `mapstructure:"timezone"`
	ImageScene  string `mapstructure:"image_scene"`
}

// PacingConfig bounds the randomized delays, in seconds.
type PacingConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MinSeconds        float64 `mapstructure:"min_seconds"`
	MaxSeconds        float64 `mapstructure:"max_seconds"`
	CommentMinSeconds float64 `mapstructure:"comment_min_seconds"`
	CommentMaxSeconds float64 `mapstructure:"comment_max_seconds"`
	// Seed fixes the random source when non-zero.
	Seed uint64 `mapstructure:"seed"`
}

// UpstreamConfig selects and tunes the upstream adapters.
type UpstreamConfig struct {
	Provider    string        `mapstructure:"provider"`
	Gateway     GatewayConfig `mapstructure:"gateway"`
	FixturePath string        `mapstructure:"fixture_path"`
	Page        PageConfig    `mapstructure:"page"`
}

// GatewayConfig configures the HTTP signing gateway client.
type GatewayConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// PageConfig enables reading note detail from the public note page.
type PageConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CredentialConfig carries the session cookies forwarded upstream.
type CredentialConfig struct {
	Cookies string `mapstructure:"cookies"`
}

// WebhookConfig configures lifecycle event delivery.
type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	Secret         string `mapstructure:"secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
}

// ResultsConfig selects where final result documents are written.
type ResultsConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// ArchiveConfig enables the Postgres notes archive when DSN is set.
type ArchiveConfig struct {
	DSN           string `mapstructure:"dsn"`
	NotesTable    string `mapstructure:"notes_table"`
	CommentsTable string `mapstructure:"comments_table"`
}

// PublisherConfig selects the lifecycle event topic publisher.
type PublisherConfig struct {
	Provider     string `mapstructure:"provider"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	TerminalOnly bool   `mapstructure:"terminal_only"`
}

// ServerConfig controls the run submission service.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	QueueCapacity          int `mapstructure:"queue_capacity"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	// APIKey, when set, is required on every request as X-API-Key.
	APIKey string `mapstructure:"api_key"`
	// RunHistory bounds how many runs the service remembers.
	RunHistory int `mapstructure:"run_history"`
}

// GitHubConfig configures the remote workflow trigger.
type GitHubConfig struct {
	Owner      string `mapstructure:"owner"`
	Repo       string `mapstructure:"repo"`
	Token      string `mapstructure:"token"`
	APIBaseURL string `mapstructure:"api_base_url"`
	EventType  string `mapstructure:"event_type"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("XIUER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("crawl.query", "")
	v.SetDefault("crawl.num", 10)
	v.SetDefault("crawl.sort_type", "comprehensive")
	v.SetDefault("crawl.get_comments", false)
	v.SetDefault("crawl.fetch_detail", false)
	v.SetDefault("crawl.timezone", "Asia/Shanghai")
	v.SetDefault("crawl.image_scene", "WB_DFT")
	v.SetDefault("pacing.enabled", true)
	v.SetDefault("pacing.min_seconds", 1.0)
	v.SetDefault("pacing.max_seconds", 3.0)
	v.SetDefault("pacing.comment_min_seconds", 0.5)
	v.SetDefault("pacing.comment_max_seconds", 1.5)
	v.SetDefault("pacing.seed", 0)
	v.SetDefault("upstream.provider", "gateway")
	v.SetDefault("upstream.gateway.base_url", "http://127.0.0.1:5005")
	v.SetDefault("upstream.gateway.timeout_seconds", 30)
	v.SetDefault("upstream.gateway.requests_per_second", 1.0)
	v.SetDefault("upstream.gateway.burst", 1)
	v.SetDefault("upstream.gateway.max_retries", 2)
	v.SetDefault("upstream.fixture_path", "")
	v.SetDefault("upstream.page.enabled", false)
	v.SetDefault("upstream.page.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("upstream.page.timeout_seconds", 15)
	v.SetDefault("upstream.page.requests_per_second", 0.5)
	v.SetDefault("upstream.page.burst", 1)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout_seconds", 30)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("results.provider", "local")
	v.SetDefault("results.base_dir", "results")
	v.SetDefault("results.bucket", "")
	v.SetDefault("results.prefix", "")
	v.SetDefault("archive.dsn", "")
	v.SetDefault("archive.notes_table", "xhs_notes")
	v.SetDefault("archive.comments_table", "xhs_comments")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "")
	v.SetDefault("publisher.terminal_only", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.queue_capacity", 16)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.run_history", 256)
	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("github.event_type", "crawl-task")
}

// bindEnv maps the conventional unprefixed variables used by the workflow
// runner onto their keys.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"credential.cookies": {"XIUER_CREDENTIAL_COOKIES", "XHS_COOKIES"},
		"webhook.url":        {"XIUER_WEBHOOK_URL", "WEBHOOK_URL"},
		"github.owner":       {"XIUER_GITHUB_OWNER", "GITHUB_REPO_OWNER"},
		"github.repo":        {"XIUER_GITHUB_REPO", "GITHUB_REPO_NAME"},
		"github.token":       {"XIUER_GITHUB_TOKEN", "GITHUB_TOKEN"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Crawl.Num <= 0 {
		return fmt.Errorf("crawl.num must be > 0")
	}
	if _, err := crawler.ParseSortMode(c.Crawl.SortType); err != nil {
		return fmt.Errorf("crawl.sort_type: %w", err)
	}
	if _, err := time.LoadLocation(c.Crawl.Timezone); err != nil {
		return fmt.Errorf("crawl.timezone: %w", err)
	}
	if c.Pacing.MinSeconds < 0 || c.Pacing.MaxSeconds < c.Pacing.MinSeconds {
		return fmt.Errorf("pacing.min_seconds must be >= 0 and <= pacing.max_seconds")
	}
	if c.Pacing.CommentMinSeconds < 0 || c.Pacing.CommentMaxSeconds < c.Pacing.CommentMinSeconds {
		return fmt.Errorf("pacing.comment_min_seconds must be >= 0 and <= pacing.comment_max_seconds")
	}
	if c.Pacing.CommentMaxSeconds > c.Pacing.MaxSeconds {
		return fmt.Errorf("pacing.comment_max_seconds must be <= pacing.max_seconds")
	}
	switch c.Upstream.Provider {
	case "gateway":
		if c.Upstream.Gateway.BaseURL == "" {
			return fmt.Errorf("upstream.gateway.base_url is required for the gateway provider")
		}
		if c.Upstream.Gateway.TimeoutSeconds <= 0 {
			return fmt.Errorf("upstream.gateway.timeout_seconds must be > 0")
		}
	case "fixture":
		if c.Upstream.FixturePath == "" {
			return fmt.Errorf("upstream.fixture_path is required for the fixture provider")
		}
	default:
		return fmt.Errorf("unknown upstream.provider %q", c.Upstream.Provider)
	}
	switch c.Results.Provider {
	case "none", "memory":
	case "local":
		if c.Results.BaseDir == "" {
			return fmt.Errorf("results.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Results.Bucket == "" {
			return fmt.Errorf("results.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown results.provider %q", c.Results.Provider)
	}
	switch c.Publisher.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("unknown publisher.provider %q", c.Publisher.Provider)
	}
	if c.Webhook.MaxAttempts < 0 {
		return fmt.Errorf("webhook.max_attempts must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// SortMode returns the validated default sort mode.
func (c CrawlConfig) SortMode() crawler.SortMode {
	m, err := crawler.ParseSortMode(c.SortType)
	if err != nil {
		return crawler.SortComprehensive
	}
	return m
}

// Location returns the time zone used for relative publish times.
func (c CrawlConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Note returns the inter-note pacing bounds.
func (c PacingConfig) Note() pacing.Config {
	return pacing.Config{Enabled: c.Enabled, MinSeconds: c.MinSeconds, MaxSeconds: c.MaxSeconds}
}

// Comment returns the shorter pacing bounds used before comment requests.
func (c PacingConfig) Comment() pacing.Config {
	return pacing.Config{Enabled: c.Enabled, MinSeconds: c.CommentMinSeconds, MaxSeconds: c.CommentMaxSeconds}
}

// Timeout returns the per-attempt webhook timeout.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelays returns the wait before each delivery attempt.
func (c WebhookConfig) RetryDelays() []time.Duration {
	schedule := []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second}
	n := c.MaxAttempts
	if n <= 0 {
		n = 1
	}
	if n > len(schedule) {
		n = len(schedule)
	}
	return schedule[:n]
}

// Timeout returns the gateway request timeout.
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
