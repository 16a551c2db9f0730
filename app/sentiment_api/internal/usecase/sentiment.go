package usecase

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/repo"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/engine"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

const maxHistoryLimit = 500

// AnalyzeParams 一次分析请求的参数
type AnalyzeParams struct {
	Symbol          string
	Days            int
	MaxArticles     int
	Source          string
	NoCache         bool
	IncludeArticles bool
	IncludeReasons  bool
}

// SentimentUseCase 情绪分析业务逻辑
type SentimentUseCase struct {
	analyzer repo.Analyzer
	history  repo.HistoryRepo
	log      *log.Helper
}

// NewSentimentUseCase 创建情绪分析业务逻辑实例
func NewSentimentUseCase(analyzer repo.Analyzer, history repo.HistoryRepo, logger log.Logger) *SentimentUseCase {
	return &SentimentUseCase{analyzer: analyzer, history: history, log: log.NewHelper(logger)}
}

// Analyze 分析一个 symbol，错误转换为 kratos errors
func (uc *SentimentUseCase) Analyze(ctx context.Context, p AnalyzeParams) (*model.AggregateResult, error) {
	symbol, err := engine.NormalizeTicker(p.Symbol)
	if err != nil {
		return nil, errors.BadRequest("INVALID_SYMBOL", err.Error())
	}
	if p.Days < 0 || p.MaxArticles < 0 {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "days and max_articles must be positive")
	}
	switch p.Source {
	case "", model.SourceAuto, model.SourceNewsAPI, model.SourceGoogleRSS, model.SourceFinnhub:
	default:
		return nil, errors.BadRequest("INVALID_SOURCE", "source must be one of auto, newsapi, google-rss, finnhub")
	}

	result, err := uc.analyzer.Run(ctx, engine.RunOptions{
		Ticker:            symbol,
		LookbackDays:      p.Days,
		MaxArticles:       p.MaxArticles,
		Source:            p.Source,
		NoCache:           p.NoCache,
		IncludeArticles:   p.IncludeArticles,
		IncludePerArticle: p.IncludeReasons,
	})
	if err != nil {
		return nil, uc.toError(symbol, err)
	}
	return result, nil
}

// History 查询运行记录
func (uc *SentimentUseCase) History(ctx context.Context, symbol string, limit int) ([]*model.RunRecord, error) {
	if strings.TrimSpace(symbol) != "" {
		s, err := engine.NormalizeTicker(symbol)
		if err != nil {
			return nil, errors.BadRequest("INVALID_SYMBOL", err.Error())
		}
		symbol = s
	}
	if limit < 0 || limit > maxHistoryLimit {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "limit must be between 0 and 500")
	}
	return uc.history.ListRuns(ctx, symbol, limit)
}

func (uc *SentimentUseCase) toError(symbol string, err error) error {
	switch {
	case stderrors.Is(err, model.ErrInvalidInput):
		return errors.BadRequest("INVALID_ARGUMENT", err.Error())
	case stderrors.Is(err, model.ErrNoArticlesFound):
		return errors.NotFound("NO_ARTICLES_FOUND", err.Error())
	case stderrors.Is(err, model.ErrSourceUnavailable):
		return errors.ServiceUnavailable("SOURCE_UNAVAILABLE", err.Error())
	case stderrors.Is(err, context.Canceled):
		return errors.ClientClosed("CANCELLED", "request cancelled")
	default:
		uc.log.Errorf("analyze %s failed: %v", symbol, err)
		return errors.InternalServer("ANALYZE_FAILED", err.Error())
	}
}
