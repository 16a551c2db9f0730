package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/aggregator"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/cache"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/classifier"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/llm"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news/selector"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/storage"
)

// State 一次运行所处的阶段
type State string

const (
	StateFetching    State = "fetching"
	StateClassifying State = "classifying"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

const maxTickerLen = 24

// Source 选源接口，由 selector.Selector 实现
type Source interface {
	Select(ctx context.Context, req *news.Request) (*selector.Result, error)
}

// Deps 可注入的依赖，为 nil 的字段按配置创建
type Deps struct {
	Source    Source
	Completer llm.Completer
	Store     cache.Store
	Recorder  storage.Recorder
}

// Engine 核心处理引擎：选源、逐篇分类、聚合
type Engine struct {
	cfg        *config.Config
	source     Source
	classifier *classifier.Classifier
	store      cache.Store
	recorder   storage.Recorder
}

// NewEngine 根据配置创建引擎实例
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	completer, err := llm.NewCompleter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	store, err := cache.NewStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("缓存初始化失败: %w", err)
	}

	recorder, err := storage.NewRecorder(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("存储初始化失败: %w", err)
	}

	return New(cfg, Deps{Completer: completer, Store: store, Recorder: recorder})
}

// New 使用给定依赖创建引擎
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if deps.Store == nil {
		deps.Store = cache.Nop{}
	}
	if deps.Recorder == nil {
		deps.Recorder = storage.Nop{}
	}

	opts := classifier.OptionsFromConfig(cfg)
	opts.Store = deps.Store

	return &Engine{
		cfg:        cfg,
		source:     deps.Source,
		classifier: classifier.New(deps.Completer, opts),
		store:      deps.Store,
		recorder:   deps.Recorder,
	}, nil
}

// Close 释放缓存和存储
func (e *Engine) Close() error {
	return errors.Join(e.store.Close(), e.recorder.Close())
}

// Recorder 运行记录存储
func (e *Engine) Recorder() storage.Recorder { return e.recorder }

// RunOptions 运行选项，零值字段使用配置中的默认值
type RunOptions struct {
	Ticker            string
	Query             string
	LookbackDays      int
	MaxArticles       int
	Source            string // 覆盖配置中的选源模式
	NoCache           bool
	IncludeArticles   bool
	IncludePerArticle bool
	ProgressCallback  func(state State, progress int)
}

// NormalizeTicker 去掉首尾空白并转大写，不允许包含空白，最长 24 个字符
func NormalizeTicker(s string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return "", fmt.Errorf("%w: ticker is empty", model.ErrInvalidInput)
	}
	if len([]rune(t)) > maxTickerLen {
		return "", fmt.Errorf("%w: ticker %q is longer than %d characters", model.ErrInvalidInput, t, maxTickerLen)
	}
	if strings.IndexFunc(t, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("%w: ticker %q contains whitespace", model.ErrInvalidInput, t)
	}
	return t, nil
}

// outcome 单篇文章的处理结果
type outcome struct {
	done   bool
	cached bool
	cls    model.Classification
	err    error
}

// Run 执行一次完整的分析：Fetching -> Classifying -> Aggregating -> Done，只有选源失败会进入 Failed
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*model.AggregateResult, error) {
	ticker, err := NormalizeTicker(opts.Ticker)
	if err != nil {
		return nil, err
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = e.cfg.News.LookbackDays
	}
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = e.cfg.News.MaxArticles
	}
	progress := func(state State, p int) {
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(state, p)
		}
	}

	// 1. 选源
	progress(StateFetching, 0)
	logger.L().Infof("开始分析 [%s]，回看 %d 天，最多 %d 篇", ticker, opts.LookbackDays, opts.MaxArticles)

	src, err := e.sourceFor(opts.Source)
	if err != nil {
		progress(StateFailed, 0)
		return nil, err
	}
	req := &news.Request{
		Ticker:       ticker,
		Query:        opts.Query,
		LookbackDays: opts.LookbackDays,
		MaxArticles:  opts.MaxArticles,
		Now:          time.Now(),
	}
	selected, err := src.Select(ctx, req)
	if err != nil {
		progress(StateFailed, 0)
		logger.L().Errorf("获取新闻失败 [%s]: %v", ticker, err)
		return nil, err
	}
	articles := selected.Articles

	// 2. 逐篇分类
	progress(StateClassifying, 10)
	outcomes := e.classifyAll(ctx, articles, opts.NoCache, func(completed int) {
		progress(StateClassifying, 10+completed*80/len(articles))
	})

	// 3. 聚合，按抓取顺序
	progress(StateAggregating, 90)
	var classifications []model.Classification
	cacheHits := 0
	partial := false
	for _, o := range outcomes {
		if !o.done || isContextErr(o.err) {
			partial = true
		}
		if o.done && o.err == nil {
			classifications = append(classifications, o.cls)
			if o.cached {
				cacheHits++
			}
		}
	}
	partial = partial && ctx.Err() != nil

	aggOpts := []aggregator.Option{
		aggregator.WithQuery(req.SearchQuery()),
		aggregator.WithAsOf(time.Now().UTC()),
		aggregator.WithCacheHits(cacheHits),
	}
	if opts.IncludePerArticle {
		aggOpts = append(aggOpts, aggregator.WithPerArticle())
	}
	if opts.IncludeArticles {
		aggOpts = append(aggOpts, aggregator.WithArticles(articles))
	}
	if partial {
		aggOpts = append(aggOpts, aggregator.WithPartial())
	}
	result := aggregator.Aggregate(ticker, classifications, len(articles), selected.SourceUsed, opts.LookbackDays, aggOpts...)

	progress(StateDone, 100)
	logger.L().Infof("分析完成 [%s]: score=%.4f label=%s signal=%s classified=%d failed=%d cache_hits=%d",
		ticker, result.Score, result.Label, result.Signal, result.ClassifiedCount, result.FailedCount, result.CacheHits)

	e.record(ctx, result, classifications)
	return result, nil
}

func (e *Engine) sourceFor(mode string) (Source, error) {
	if e.source != nil {
		return e.source, nil
	}
	return selector.NewSelectorForSource(e.cfg, mode)
}

// classifyAll 并发处理所有文章；ctx 结束时立即返回已完成的结果，之后到达的结果被丢弃
func (e *Engine) classifyAll(ctx context.Context, articles []model.Article, noCache bool, onProgress func(completed int)) []outcome {
	cl := e.classifier
	if noCache {
		cl = cl.WithoutCache()
	}

	outcomes := make([]outcome, len(articles))
	var mu sync.Mutex
	closed := false
	completed := 0

	workers := e.cfg.Concurrency.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for i, a := range articles {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				o := e.classifyOne(ctx, cl, a, noCache)

				mu.Lock()
				defer mu.Unlock()
				if closed {
					return nil
				}
				outcomes[i] = o
				completed++
				onProgress(completed)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		logger.L().Warnf("运行被取消，返回已完成的 %d/%d 篇", e.countDone(&mu, outcomes), len(articles))
	}

	mu.Lock()
	closed = true
	snapshot := append([]outcome(nil), outcomes...)
	mu.Unlock()
	return snapshot
}

func (e *Engine) countDone(mu *sync.Mutex, outcomes []outcome) int {
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for _, o := range outcomes {
		if o.done {
			n++
		}
	}
	return n
}

func (e *Engine) classifyOne(ctx context.Context, cl *classifier.Classifier, a model.Article, noCache bool) outcome {
	if !noCache {
		if cls, ok := cl.Cached(ctx, a); ok {
			logger.L().Debugf("命中缓存 [%s]", a.Title)
			return outcome{done: true, cached: true, cls: cls}
		}
	}

	cls, err := cl.Classify(ctx, a)
	if err != nil {
		if !isContextErr(err) {
			logger.L().Warnf("文章分类失败 [%s]: %v", a.Title, err)
		}
		return outcome{done: true, err: err}
	}
	return outcome{done: true, cls: cls}
}

// record 保存运行记录，失败只记录日志
func (e *Engine) record(ctx context.Context, result *model.AggregateResult, classifications []model.Classification) {
	// 取消后的部分结果同样保存
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	// 运行记录总是包含逐篇分类，返回给调用方的结果不受影响
	r := *result
	r.PerArticle = classifications
	r.Articles = nil
	if _, err := e.recorder.Record(rctx, &r); err != nil {
		logger.L().Errorf("保存运行记录失败 [%s]: %v", result.StockSymbol, err)
	}
}

func isContextErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	// 单次调用超时是可重试的上游错误，不算取消
	return errors.Is(err, context.DeadlineExceeded) && !model.IsTransient(err)
}
