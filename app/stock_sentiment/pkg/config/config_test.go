package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"NEWSAPI_KEY", "FINNHUB_API_KEY", "REDIS_URL", "STOCK_SENTIMENT_CACHE_DIR", "STOCK_SENTIMENT_WORKERS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, model.SourceAuto, cfg.News.Source)
	assert.Equal(t, 3, cfg.News.LookbackDays)
	assert.Equal(t, 25, cfg.News.MaxArticles)
	assert.Equal(t, 5, cfg.Concurrency.Workers)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Equal(t, DefaultCacheDir(), cfg.Cache.Dir)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: anthropic
news:
  source: google-rss
  lookback_days: 7
cache:
  enabled: false
  ttl_hours: 0.5
concurrency:
  workers: 2
`), 0o644))

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("STOCK_SENTIMENT_WORKERS", "8")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
	assert.Equal(t, "claude-haiku-4-5", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.BaseURL)
	assert.Equal(t, model.SourceGoogleRSS, cfg.News.Source)
	assert.Equal(t, 7, cfg.News.LookbackDays)
	assert.False(t, cfg.CacheEnabled())
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 8, cfg.Concurrency.Workers)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"provider", func(c *Config) { c.LLM.Provider = "gemini" }},
		{"source", func(c *Config) { c.News.Source = "bing" }},
		{"lookback", func(c *Config) { c.News.LookbackDays = -1 }},
		{"ttl", func(c *Config) { c.SetCacheTTLHours(-1) }},
		{"backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis url", func(c *Config) { c.Cache.Backend = "redis" }},
		{"horizon", func(c *Config) { c.Classifier.HorizonDays = 9 }},
		{"workers", func(c *Config) { c.Concurrency.Workers = -2 }},
		{"storage", func(c *Config) { c.Storage.Driver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadConfigKeepsExplicitZero(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  temperature: 0
cache:
  ttl_hours: 0
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Zero(t, *cfg.LLM.Temperature)
	assert.Zero(t, cfg.LLMTemperature())
	require.NotNil(t, cfg.Cache.TTLHours)
	assert.Zero(t, cfg.CacheTTL())
	assert.NoError(t, cfg.Validate())

	// 未设置时使用默认值
	cfg, err = LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTemperature, cfg.LLMTemperature())
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
}
