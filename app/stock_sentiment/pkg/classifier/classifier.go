package classifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/cache"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/llm"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// Options 分类器选项
type Options struct {
	// Store 为 nil 时不读写缓存
	Store       cache.Store
	Limiter     *rate.Limiter
	Retry       RetryPolicy
	Horizon     int
	CallTimeout time.Duration
	TTL         time.Duration
}

// OptionsFromConfig 从配置生成分类器选项，Store 需要调用方设置
func OptionsFromConfig(cfg *config.Config) Options {
	// 初始化限流器
	limit := rate.Limit(float64(cfg.Concurrency.RPM) / 60.0)
	burst := cfg.Concurrency.QPS
	if burst < 1 {
		burst = 1
	}

	return Options{
		Limiter: rate.NewLimiter(limit, burst),
		Retry: RetryPolicy{
			MaxAttempts: cfg.Classifier.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Classifier.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Classifier.Retry.MaxDelayMS) * time.Millisecond,
			IsTransient: model.IsTransient,
		},
		Horizon:     cfg.Classifier.HorizonDays,
		CallTimeout: time.Duration(cfg.Classifier.CallTimeout) * time.Second,
		TTL:         cfg.CacheTTL(),
	}
}

// Classifier 对单篇文章做价格影响分类，成功结果写入缓存后返回
type Classifier struct {
	completer   llm.Completer
	store       cache.Store
	limiter     *rate.Limiter
	retry       RetryPolicy
	horizon     int
	callTimeout time.Duration
	ttl         time.Duration
	flights     *flights
	now         func() time.Time
}

// flights 合并相同键的并发调用。共享调用使用独立的 context，
// 只有全部等待者都离开时才取消，单个调用方取消不会影响其他人
type flights struct {
	group singleflight.Group
	mu    sync.Mutex
	calls map[string]*flight
	seq   uint64
}

type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func newFlights() *flights {
	return &flights{calls: make(map[string]*flight)}
}

// join 加入进行中的调用，没有则新建一个
func (fs *flights) join(ctx context.Context, hash string) *flight {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if f, ok := fs.calls[hash]; ok {
		f.waiters++
		return f
	}
	fs.seq++
	shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{key: hash + "#" + strconv.FormatUint(fs.seq, 10), ctx: shared, cancel: cancel, waiters: 1}
	fs.calls[hash] = f
	return f
}

// leave 最后一个等待者离开时取消共享调用，之后的请求会发起新的调用
func (fs *flights) leave(hash string, f *flight) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if fs.calls[hash] == f {
		delete(fs.calls, hash)
	}
}

// New 创建分类器
func New(completer llm.Completer, opts Options) *Classifier {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Classifier{
		completer:   completer,
		store:       opts.Store,
		limiter:     opts.Limiter,
		retry:       opts.Retry,
		horizon:     ClampHorizon(opts.Horizon),
		callTimeout: opts.CallTimeout,
		ttl:         opts.TTL,
		flights:     newFlights(),
		now:         time.Now,
	}
}

// WithClock 替换时钟，测试时使用
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// WithoutCache 返回一个不读写缓存的副本，共享模型和限流器
func (c *Classifier) WithoutCache() *Classifier {
	cp := *c
	cp.store = nil
	cp.flights = newFlights()
	return &cp
}

// ModelID 模型标识
func (c *Classifier) ModelID() string { return c.completer.Model() }

// PromptVersion 当前 prompt 版本
func (c *Classifier) PromptVersion() string { return PromptVersion(c.horizon) }

// Request 文章对应的分类请求
func (c *Classifier) Request(a model.Article) model.ClassificationRequest {
	return model.ClassificationRequest{
		ArticleFingerprint: a.ID,
		ModelID:            c.ModelID(),
		PromptVersion:      c.PromptVersion(),
	}
}

// Key 文章对应的缓存键
func (c *Classifier) Key(a model.Article) cache.Key {
	return cache.NewKey(c.Request(a))
}

// Cached 只读缓存，不调用模型
func (c *Classifier) Cached(ctx context.Context, a model.Article) (model.Classification, bool) {
	if c.store == nil {
		return model.Classification{}, false
	}
	return c.store.Get(ctx, c.Key(a))
}

// Classify 调用模型分类。回复不合法时追加一次纠正请求；上游错误按重试策略处理
func (c *Classifier) Classify(ctx context.Context, a model.Article) (model.Classification, error) {
	if err := ctx.Err(); err != nil {
		return model.Classification{}, err
	}
	key := c.Key(a)
	hash := key.Hash()

	// 相同键的并发请求只调用一次模型
	f := c.flights.join(ctx, hash)
	defer c.flights.leave(hash, f)

	ch := c.flights.group.DoChan(f.key, func() (any, error) {
		return c.classify(f.ctx, a, key)
	})
	select {
	case <-ctx.Done():
		return model.Classification{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Classification{}, res.Err
		}
		if res.Shared {
			logger.L().Debugf("复用并发中的分类结果 [%s]", a.Title)
		}
		return res.Val.(model.Classification), nil
	}
}

func (c *Classifier) classify(ctx context.Context, a model.Article, key cache.Key) (model.Classification, error) {
	prompt := BuildPrompt(a, c.horizon)

	reply, err := c.complete(ctx, prompt)
	if err != nil {
		return model.Classification{}, err
	}

	verdict, err := ParseReply(reply)
	if err != nil {
		if !errors.Is(err, model.ErrSchema) {
			return model.Classification{}, err
		}
		logger.L().Warnf("模型回复格式错误，发送纠正请求 [%s]: %v", a.Title, err)

		reply, err = c.complete(ctx, BuildCorrectivePrompt(prompt, reply, err))
		if err != nil {
			return model.Classification{}, err
		}
		verdict, err = ParseReply(reply)
		if err != nil {
			return model.Classification{}, fmt.Errorf("after corrective retry: %w", err)
		}
	}

	cls := model.Classification{
		ArticleFingerprint: a.ID,
		ImpactDirection:    verdict.Direction,
		Confidence:         verdict.Confidence,
		Reason:             verdict.Reason,
		ClassifiedAt:       c.now().UTC(),
		ModelID:            key.ModelID,
		PromptVersion:      key.PromptVersion,
	}

	if c.store != nil {
		if err := c.store.Put(ctx, key, cls, c.ttl); err != nil {
			logger.L().Warnf("写入缓存失败 [%s]: %v", a.Title, err)
		}
	}
	return cls, nil
}

// complete 限流后调用模型，单次调用有超时，上游错误按策略重试
func (c *Classifier) complete(ctx context.Context, p llm.Prompt) (string, error) {
	var reply string
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx := ctx
		cancel := func() {}
		if c.callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		}
		defer cancel()

		out, err := c.completer.Complete(callCtx, p)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return llm.NewUpstreamError(c.completer.Name(), 0,
					fmt.Errorf("call timed out after %v: %w", c.callTimeout, context.DeadlineExceeded))
			}
			return llm.NormalizeError(c.completer.Name(), err)
		}
		reply = out
		return nil
	})
	return reply, err
}
