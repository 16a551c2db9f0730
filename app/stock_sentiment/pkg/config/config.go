package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

const (
	DefaultTemperature   float32 = 0.2
	DefaultCacheTTLHours float64 = 24
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	News        NewsConfig        `yaml:"news"`
	Cache       CacheConfig       `yaml:"cache"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
	Watch       WatchConfig       `yaml:"watch"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai or anthropic
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// Temperature 为 nil 时使用默认值，显式的 0 保留
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// NewsConfig 新闻源配置
type NewsConfig struct {
	Source       string          `yaml:"source"` // auto, newsapi, google-rss, finnhub
	LookbackDays int             `yaml:"lookback_days"`
	MaxArticles  int             `yaml:"max_articles"`
	Timeout      int             `yaml:"timeout"` // 秒
	NewsAPI      NewsAPIConfig   `yaml:"newsapi"`
	GoogleRSS    GoogleRSSConfig `yaml:"google_rss"`
	Finnhub      FinnhubConfig   `yaml:"finnhub"`
	Enrich       EnrichConfig    `yaml:"enrich"`
}

// NewsAPIConfig NewsAPI 配置
type NewsAPIConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Language string `yaml:"language"`
}

// GoogleRSSConfig Google News RSS 配置
type GoogleRSSConfig struct {
	BaseURL string `yaml:"base_url"`
	HL      string `yaml:"hl"`
	GL      string `yaml:"gl"`
	CEID    string `yaml:"ceid"`
}

// FinnhubConfig Finnhub 配置
type FinnhubConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// EnrichConfig 摘要过短时抓取正文补全
type EnrichConfig struct {
	Enabled   bool `yaml:"enabled"`
	MinLength int  `yaml:"min_length"`
	MaxLength int  `yaml:"max_length"`
	Timeout   int  `yaml:"timeout"` // 秒
}

// CacheConfig 分类结果缓存配置
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Backend string `yaml:"backend"` // disk or redis
	Dir     string `yaml:"dir"`
	// TTLHours 为 nil 时使用默认值，0 表示写入即过期
	TTLHours *float64    `yaml:"ttl_hours"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ClassifierConfig 分类器配置
type ClassifierConfig struct {
	HorizonDays int         `yaml:"horizon_days"`
	CallTimeout int         `yaml:"call_timeout"` // 秒
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig 上游错误重试配置
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	Workers int `yaml:"workers"`
	QPS     int `yaml:"qps"`
	RPM     int `yaml:"rpm"`
}

// StorageConfig 运行记录存储配置
type StorageConfig struct {
	Driver     string   `yaml:"driver"` // none, sqlite, postgres
	SQLitePath string   `yaml:"sqlite_path"`
	DB         DBConfig `yaml:"db"`
}

// DBConfig 数据库相关配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// WatchConfig 定时分析配置
type WatchConfig struct {
	Cron    string   `yaml:"cron"`
	Symbols []string `yaml:"symbols"`
}

// LoadConfig 从指定路径加载配置，文件不存在时只使用环境变量和默认值
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv 环境变量覆盖配置文件
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.Provider != "anthropic" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" && c.LLM.Provider != "anthropic" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && c.LLM.Provider != "anthropic" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("NEWSAPI_KEY"); v != "" {
		c.News.NewsAPI.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.News.Finnhub.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.Redis.URL = v
	}
	if v := os.Getenv("STOCK_SENTIMENT_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("STOCK_SENTIMENT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency.Workers = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		if c.LLM.Provider == "anthropic" {
			c.LLM.Model = "claude-haiku-4-5"
		} else {
			c.LLM.Model = "gpt-4o-mini"
		}
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == "openai" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Temperature == nil {
		t := DefaultTemperature
		c.LLM.Temperature = &t
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 300
	}

	if c.News.Source == "" {
		c.News.Source = model.SourceAuto
	}
	if c.News.LookbackDays == 0 {
		c.News.LookbackDays = 3
	}
	if c.News.MaxArticles == 0 {
		c.News.MaxArticles = 25
	}
	if c.News.Timeout == 0 {
		c.News.Timeout = 30
	}
	if c.News.NewsAPI.BaseURL == "" {
		c.News.NewsAPI.BaseURL = "https://newsapi.org"
	}
	if c.News.NewsAPI.Language == "" {
		c.News.NewsAPI.Language = "en"
	}
	if c.News.GoogleRSS.BaseURL == "" {
		c.News.GoogleRSS.BaseURL = "https://news.google.com"
	}
	if c.News.GoogleRSS.HL == "" {
		c.News.GoogleRSS.HL = "en-US"
	}
	if c.News.GoogleRSS.GL == "" {
		c.News.GoogleRSS.GL = "US"
	}
	if c.News.GoogleRSS.CEID == "" {
		c.News.GoogleRSS.CEID = "US:en"
	}
	if c.News.Enrich.MinLength == 0 {
		c.News.Enrich.MinLength = 80
	}
	if c.News.Enrich.MaxLength == 0 {
		c.News.Enrich.MaxLength = 900
	}
	if c.News.Enrich.Timeout == 0 {
		c.News.Enrich.Timeout = 15
	}

	if c.Cache.Enabled == nil {
		enabled := true
		c.Cache.Enabled = &enabled
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "disk"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir()
	}
	if c.Cache.TTLHours == nil {
		ttl := DefaultCacheTTLHours
		c.Cache.TTLHours = &ttl
	}

	if c.Classifier.HorizonDays == 0 {
		c.Classifier.HorizonDays = 5
	}
	if c.Classifier.CallTimeout == 0 {
		c.Classifier.CallTimeout = 45
	}
	if c.Classifier.Retry.MaxAttempts == 0 {
		c.Classifier.Retry.MaxAttempts = 3
	}
	if c.Classifier.Retry.BaseDelayMS == 0 {
		c.Classifier.Retry.BaseDelayMS = 1000
	}
	if c.Classifier.Retry.MaxDelayMS == 0 {
		c.Classifier.Retry.MaxDelayMS = 15000
	}

	if c.Concurrency.Workers == 0 {
		c.Concurrency.Workers = 5
	}
	if c.Concurrency.QPS == 0 {
		c.Concurrency.QPS = 5
	}
	if c.Concurrency.RPM == 0 {
		c.Concurrency.RPM = 300
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "none"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(xdg.DataHome, "stock_sentiment", "runs.db")
	}
	if c.Storage.DB.Port == 0 {
		c.Storage.DB.Port = 5432
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Watch.Cron == "" {
		c.Watch.Cron = "0 0 */1 * * 1-5"
	}
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}
	switch c.News.Source {
	case model.SourceAuto, model.SourceNewsAPI, model.SourceGoogleRSS, model.SourceFinnhub:
	default:
		return fmt.Errorf("news.source must be one of auto, newsapi, google-rss, finnhub, got %q", c.News.Source)
	}
	if c.News.LookbackDays < 1 {
		return fmt.Errorf("news.lookback_days must be >= 1")
	}
	if c.News.MaxArticles < 1 {
		return fmt.Errorf("news.max_articles must be >= 1")
	}
	if c.Cache.TTLHours != nil && *c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours must be >= 0")
	}
	switch c.Cache.Backend {
	case "disk", "redis":
	default:
		return fmt.Errorf("cache.backend must be disk or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.URL == "" && c.CacheEnabled() {
		return fmt.Errorf("cache.redis.url is required for the redis backend")
	}
	if c.Classifier.HorizonDays < 1 || c.Classifier.HorizonDays > 5 {
		return fmt.Errorf("classifier.horizon_days must be between 1 and 5")
	}
	if c.Concurrency.Workers < 1 {
		return fmt.Errorf("concurrency.workers must be >= 1")
	}
	switch c.Storage.Driver {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be none, sqlite or postgres, got %q", c.Storage.Driver)
	}
	return nil
}

// CacheEnabled 是否启用缓存
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// CacheTTL 缓存有效期
func (c *Config) CacheTTL() time.Duration {
	hours := DefaultCacheTTLHours
	if c.Cache.TTLHours != nil {
		hours = *c.Cache.TTLHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// SetCacheTTLHours 覆盖缓存有效期
func (c *Config) SetCacheTTLHours(hours float64) {
	c.Cache.TTLHours = &hours
}

// LLMTemperature 采样温度
func (c *Config) LLMTemperature() float32 {
	if c.LLM.Temperature == nil {
		return DefaultTemperature
	}
	return *c.LLM.Temperature
}

// DefaultCacheDir 默认缓存目录，遵循 XDG 规范
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "stock_sentiment")
}
