package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawl.Num != 10 {
		t.Fatalf("expected default num 10, got %d", cfg.Crawl.Num)
	}
	if cfg.Crawl.SortMode() != crawler.SortComprehensive {
		t.Fatalf("expected comprehensive sort, got %v", cfg.Crawl.SortMode())
	}
	if cfg.Pacing.MinSeconds != 1 || cfg.Pacing.MaxSeconds != 3 {
		t.Fatalf("unexpected pacing bounds: %+v", cfg.Pacing)
	}
	if got := cfg.Crawl.Location().String(); got != "Asia/Shanghai" {
		t.Fatalf("expected Asia/Shanghai, got %s", got)
	}
	if got := cfg.Webhook.RetryDelays(); len(got) != 3 || got[1] != time.Second || got[2] != 5*time.Second {
		t.Fatalf("unexpected retry delays: %v", got)
	}
	if cfg.Upstream.Page.RequestsPerSecond != 0.5 || cfg.Upstream.Page.Burst != 1 {
		t.Fatalf("unexpected page pacing: %+v", cfg.Upstream.Page)
	}
	if cfg.Server.RunHistory != 256 {
		t.Fatalf("expected run history 256, got %d", cfg.Server.RunHistory)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawl:
  query: 咖啡
  num: 25
  sort_type: most_liked
  get_comments: true
  fetch_detail: true
pacing:
  enabled: false
  min_seconds: 0.2
  max_seconds: 0.4
  comment_min_seconds: 0.1
  comment_max_seconds: 0.2
upstream:
  provider: fixture
  fixture_path: testdata/run.json
results:
  provider: gcs
  bucket: crawl-results
  prefix: xhs
publisher:
  provider: pubsub
  project_id: demo
  topic: runs
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawl.Query != "咖啡" || cfg.Crawl.Num != 25 {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if cfg.Crawl.SortMode() != crawler.SortMostLiked {
		t.Fatalf("expected most_liked, got %v", cfg.Crawl.SortMode())
	}
	if !cfg.Crawl.GetComments || !cfg.Crawl.FetchDetail {
		t.Fatalf("expected crawl booleans to be preserved: %+v", cfg.Crawl)
	}
	note := cfg.Pacing.Note()
	if note.Enabled || note.MinSeconds != 0.2 || note.MaxSeconds != 0.4 {
		t.Fatalf("unexpected note pacing: %+v", note)
	}
	if cfg.Upstream.Provider != "fixture" || cfg.Upstream.FixturePath != "testdata/run.json" {
		t.Fatalf("expected fixture upstream: %+v", cfg.Upstream)
	}
	if cfg.Results.Bucket != "crawl-results" || cfg.Publisher.Topic != "runs" {
		t.Fatalf("expected sink overrides to apply")
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
}

func TestLoadEnvFallbacks(t *testing.T) {
	t.Setenv("XHS_COOKIES", "a1=abc; web_session=xyz")
	t.Setenv("GITHUB_REPO_OWNER", "octo")
	t.Setenv("GITHUB_REPO_NAME", "crawler")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("XIUER_CRAWL_NUM", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Credential.Cookies != "a1=abc; web_session=xyz" {
		t.Fatalf("expected cookies from XHS_COOKIES, got %q", cfg.Credential.Cookies)
	}
	if cfg.GitHub.Owner != "octo" || cfg.GitHub.Repo != "crawler" || cfg.GitHub.Token != "ghp_test" {
		t.Fatalf("expected github settings from env: %+v", cfg.GitHub)
	}
	if cfg.Crawl.Num != 7 {
		t.Fatalf("expected num 7 from env, got %d", cfg.Crawl.Num)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Crawl:    CrawlConfig{Num: 10, SortType: "comprehensive", Timezone: "UTC"},
		Pacing:   PacingConfig{MinSeconds: 1, MaxSeconds: 3, CommentMinSeconds: 0.5, CommentMaxSeconds: 1.5},
		Upstream: UpstreamConfig{Provider: "gateway", Gateway: GatewayConfig{BaseURL: "http://gw", TimeoutSeconds: 5}},
		Results:  ResultsConfig{Provider: "none"},
		Publisher: PublisherConfig{
			Provider: "none",
		},
		Server: ServerConfig{Port: 8080},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid num", mutate: func(c *Config) { c.Crawl.Num = 0 }, want: "crawl.num"},
		{name: "invalid sort", mutate: func(c *Config) { c.Crawl.SortType = "random" }, want: "crawl.sort_type"},
		{name: "invalid timezone", mutate: func(c *Config) { c.Crawl.Timezone = "Mars/Base" }, want: "crawl.timezone"},
		{name: "inverted pacing", mutate: func(c *Config) { c.Pacing.MaxSeconds = 0.5 }, want: "pacing.min_seconds"},
		{name: "inverted comment pacing", mutate: func(c *Config) { c.Pacing.CommentMinSeconds = 2 }, want: "pacing.comment_min_seconds"},
		{name: "comment pacing above note pacing", mutate: func(c *Config) { c.Pacing.CommentMaxSeconds = 4 }, want: "pacing.comment_max_seconds"},
		{name: "unknown upstream", mutate: func(c *Config) { c.Upstream.Provider = "browser" }, want: "upstream.provider"},
		{name: "gateway without url", mutate: func(c *Config) { c.Upstream.Gateway.BaseURL = "" }, want: "base_url"},
		{name: "fixture without path", mutate: func(c *Config) { c.Upstream.Provider = "fixture" }, want: "fixture_path"},
		{name: "local without dir", mutate: func(c *Config) { c.Results.Provider = "local" }, want: "results.base_dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Results.Provider = "gcs" }, want: "results.bucket"},
		{name: "pubsub without topic", mutate: func(c *Config) { c.Publisher.Provider = "pubsub" }, want: "publisher.project_id"},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, want: "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRetryDelaysClamp(t *testing.T) {
	t.Parallel()

	if got := (WebhookConfig{MaxAttempts: 0}).RetryDelays(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected single immediate attempt, got %v", got)
	}
	if got := (WebhookConfig{MaxAttempts: 10}).RetryDelays(); len(got) != 4 {
		t.Fatalf("expected schedule capped at 4, got %v", got)
	}
}
