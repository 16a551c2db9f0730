package server

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/conf"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/engine"
	ssLogger "github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
)

// ToConfig 将 internal/conf.Sentiment 转换为 pkg/config.Config，未配置的字段由环境变量和默认值补齐
func ToConfig(c *conf.Sentiment) (*config.Config, error) {
	cfg := &config.Config{}
	if c != nil {
		if c.Llm != nil {
			cfg.LLM = config.LLMConfig{
				Provider: c.Llm.Provider,
				BaseURL:  c.Llm.BaseUrl,
				APIKey:   c.Llm.ApiKey,
				Model:    c.Llm.Model,
			}
		}
		if c.News != nil {
			cfg.News.Source = c.News.Source
			cfg.News.LookbackDays = int(c.News.LookbackDays)
			cfg.News.MaxArticles = int(c.News.MaxArticles)
			cfg.News.NewsAPI.APIKey = c.News.NewsapiKey
			cfg.News.Finnhub.APIKey = c.News.FinnhubKey
		}
		if c.Cache != nil {
			cfg.Cache.Enabled = c.Cache.Enabled
			cfg.Cache.Backend = c.Cache.Backend
			cfg.Cache.Dir = c.Cache.Dir
			cfg.Cache.TTLHours = c.Cache.TtlHours
			cfg.Cache.Redis.URL = c.Cache.RedisUrl
		}
		if c.Concurrency != nil {
			cfg.Concurrency = config.ConcurrencyConfig{
				Workers: int(c.Concurrency.Workers),
				QPS:     int(c.Concurrency.Qps),
				RPM:     int(c.Concurrency.Rpm),
			}
		}
		if c.Storage != nil {
			cfg.Storage.Driver = c.Storage.Driver
			cfg.Storage.SQLitePath = c.Storage.SqlitePath
			if c.Storage.Db != nil {
				cfg.Storage.DB = config.DBConfig{
					Host:     c.Storage.Db.Host,
					Port:     int(c.Storage.Db.Port),
					User:     c.Storage.Db.User,
					Password: c.Storage.Db.Password,
					Name:     c.Storage.Db.Name,
				}
			}
		}
		if c.Log != nil {
			cfg.Log = config.LogConfig{Level: c.Log.Level, File: c.Log.File}
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sentiment config: %w", err)
	}
	return cfg, nil
}

// NewSentimentEngine 初始化 stock_sentiment 引擎
func NewSentimentEngine(c *conf.Sentiment, logger log.Logger) (*engine.Engine, func(), error) {
	helper := log.NewHelper(logger)

	cfg, err := ToConfig(c)
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志
	if err := ssLogger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		helper.Errorf("Failed to init stock_sentiment logger: %v", err)
		_ = ssLogger.InitLogger("info", "") // 降级处理
	}

	eng, err := engine.NewEngine(context.Background(), cfg)
	if err != nil {
		helper.Errorf("Failed to init engine: %v", err)
		return nil, nil, err
	}

	cleanup := func() {
		helper.Info("Closing stock_sentiment engine")
		if err := eng.Close(); err != nil {
			helper.Errorf("Failed to close engine: %v", err)
		}
	}
	return eng, cleanup, nil
}
