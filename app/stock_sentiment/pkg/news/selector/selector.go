package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news/finnhub"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news/googlerss"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news/newsapi"
)

// Result 选源结果
type Result struct {
	Articles   []model.Article
	SourceUsed string
}

// Selector 按顺序尝试新闻源，只有源不可用时才回退到下一个
type Selector struct {
	fetchers []news.Fetcher
}

// New 使用给定的有序 Fetcher 列表创建 Selector
func New(fetchers ...news.Fetcher) *Selector {
	return &Selector{fetchers: fetchers}
}

// NewSelector 根据配置创建 Selector
func NewSelector(cfg *config.Config) (*Selector, error) {
	return NewSelectorForSource(cfg, cfg.News.Source)
}

// NewSelectorForSource 根据配置和指定的模式创建 Selector，source 为空时使用配置中的模式
func NewSelectorForSource(cfg *config.Config, source string) (*Selector, error) {
	if source == "" {
		source = cfg.News.Source
	}
	timeout := time.Duration(cfg.News.Timeout) * time.Second

	newsAPI := func() news.Fetcher {
		return newsapi.NewClient(cfg.News.NewsAPI.APIKey, cfg.News.NewsAPI.BaseURL, cfg.News.NewsAPI.Language, timeout)
	}
	googleRSS := func() news.Fetcher {
		rss := cfg.News.GoogleRSS
		return googlerss.NewClient(rss.BaseURL, rss.HL, rss.GL, rss.CEID, timeout)
	}
	finnhubNews := func() news.Fetcher {
		return finnhub.NewClient(cfg.News.Finnhub.APIKey, cfg.News.Finnhub.BaseURL, timeout)
	}

	var fetchers []news.Fetcher
	switch source {
	case model.SourceNewsAPI:
		// 固定模式下缺少 key 由 Fetch 返回 SourceUnavailable，不回退
		fetchers = []news.Fetcher{newsAPI()}
	case model.SourceGoogleRSS:
		fetchers = []news.Fetcher{googleRSS()}
	case model.SourceFinnhub:
		fetchers = []news.Fetcher{finnhubNews()}
	case model.SourceAuto:
		// auto 顺序: NewsAPI(有 key) -> Google RSS -> Finnhub(有 key)
		// Google RSS 无需凭证，必须紧跟 NewsAPI，Finnhub 只在它也不可用时兜底
		if cfg.News.NewsAPI.APIKey != "" {
			fetchers = append(fetchers, newsAPI())
		}
		fetchers = append(fetchers, googleRSS())
		if cfg.News.Finnhub.APIKey != "" {
			fetchers = append(fetchers, finnhubNews())
		}
	default:
		return nil, fmt.Errorf("%w: unknown news source: %s", model.ErrInvalidInput, source)
	}

	if cfg.News.Enrich.Enabled {
		enrichTimeout := time.Duration(cfg.News.Enrich.Timeout) * time.Second
		for i, f := range fetchers {
			fetchers[i] = news.NewEnrichingFetcher(f, cfg.News.Enrich.MinLength, cfg.News.Enrich.MaxLength, enrichTimeout)
		}
	}

	return New(fetchers...), nil
}

// Sources 返回按尝试顺序排列的源名称
func (s *Selector) Sources() []string {
	names := make([]string, len(s.fetchers))
	for i, f := range s.fetchers {
		names[i] = f.Name()
	}
	return names
}

// Select 依次尝试各个源，返回第一个成功源的文章（过滤、去重、排序、截断之后）
func (s *Selector) Select(ctx context.Context, req *news.Request) (*Result, error) {
	if len(s.fetchers) == 0 {
		return nil, fmt.Errorf("%w: no news source configured", model.ErrSourceUnavailable)
	}

	var failures []error
	for _, f := range s.fetchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.L().Infof("正在从 %s 获取 [%s] 的新闻...", f.Name(), req.SearchQuery())
		articles, err := f.Fetch(ctx, req)
		if err != nil {
			if !errors.Is(err, model.ErrSourceUnavailable) {
				return nil, fmt.Errorf("fetch from %s: %w", f.Name(), err)
			}
			logger.L().Warnf("新闻源 %s 不可用: %v", f.Name(), err)
			failures = append(failures, err)
			continue
		}

		prepared := news.Prepare(articles, req.Since(), req.MaxArticles)
		logger.L().Infof("%s 返回 %d 篇文章，处理后剩余 %d 篇", f.Name(), len(articles), len(prepared))
		if len(prepared) == 0 {
			return nil, fmt.Errorf("%w: %s returned nothing for %q in the last %d days",
				model.ErrNoArticlesFound, f.Name(), req.SearchQuery(), req.LookbackDays)
		}
		return &Result{Articles: prepared, SourceUsed: f.Name()}, nil
	}

	if len(failures) == 1 {
		return nil, failures[0]
	}
	return nil, &model.SourcesExhaustedError{Errors: failures}
}

// String 便于日志输出
func (s *Selector) String() string {
	return "selector[" + strings.Join(s.Sources(), ",") + "]"
}
