package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/cache"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/llm"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

// scriptedCompleter 按顺序返回预设的回复或错误
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []llm.Prompt
	block   time.Duration
}

func (s *scriptedCompleter) Name() string  { return "fake" }
func (s *scriptedCompleter) Model() string { return "fake-model" }

func (s *scriptedCompleter) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	s.mu.Lock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()

	if s.block > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.block):
		}
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return `{"impact_direction":"neutral","confidence":0.5}`, nil
}

func (s *scriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// memStore 记录写入次数的内存缓存
type memStore struct {
	mu   sync.Mutex
	data map[string]model.Classification
	puts int
}

func newMemStore() *memStore {
	return &memStore{data: map[string]model.Classification{}}
}

func (m *memStore) Get(_ context.Context, key cache.Key) (model.Classification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key.Hash()]
	return v, ok
}

func (m *memStore) Put(_ context.Context, key cache.Key, v model.Classification, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key.Hash()] = v
	m.puts++
	return nil
}

func (m *memStore) Close() error { return nil }

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, IsTransient: model.IsTransient}
}

var testArticle = news.NewArticle("Apple beats estimates", "Record iPhone sales", "https://example.com/apple", "Reuters", time.Time{})

func TestClassifyWritesThrough(t *testing.T) {
	fake := &scriptedCompleter{replies: []string{"```json\n{\"impact_direction\":\"positive\",\"confidence\":0.8,\"reason\":\"beat\"}\n```"}}
	store := newMemStore()
	c := New(fake, Options{Store: store, Retry: fastRetry(), Horizon: 3, TTL: time.Hour})

	got, err := c.Classify(context.Background(), testArticle)
	require.NoError(t, err)
	assert.Equal(t, model.Positive, got.ImpactDirection)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, "beat", got.Reason)
	assert.Equal(t, "fake-model", got.ModelID)
	assert.Equal(t, "impact_v1-h3", got.PromptVersion)
	assert.Equal(t, testArticle.ID, got.ArticleFingerprint)

	assert.Equal(t, 1, store.puts)
	cached, ok := c.Cached(context.Background(), testArticle)
	require.True(t, ok)
	assert.Equal(t, got, cached)
}

func TestClassifyCorrectiveRetry(t *testing.T) {
	fake := &scriptedCompleter{replies: []string{
		`I think it's good news`,
		`{"impact_direction":"strong_positive","confidence":0.9}`,
	}}
	c := New(fake, Options{Retry: fastRetry()})

	got, err := c.Classify(context.Background(), testArticle)
	require.NoError(t, err)
	assert.Equal(t, model.StrongPositive, got.ImpactDirection)
	require.Equal(t, 2, fake.Calls())

	corrective := fake.prompts[1].User
	assert.True(t, strings.HasPrefix(corrective, fake.prompts[0].User))
	assert.Contains(t, corrective, "I think it's good news")
	assert.Contains(t, corrective, "Validation error")
}

func TestClassifySecondSchemaErrorIsTerminal(t *testing.T) {
	fake := &scriptedCompleter{replies: []string{
		`{"impact_direction":"sideways","confidence":0.9}`,
		`{"impact_direction":"positive","confidence":1.5}`,
		`{"impact_direction":"positive","confidence":0.5}`,
	}}
	store := newMemStore()
	c := New(fake, Options{Store: store, Retry: fastRetry()})

	_, err := c.Classify(context.Background(), testArticle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSchema))
	assert.Equal(t, 2, fake.Calls())
	assert.Equal(t, 0, store.puts)
}

func TestClassifyRetriesTransient(t *testing.T) {
	fake := &scriptedCompleter{
		errs: []error{
			llm.NewUpstreamError("fake", 429, errors.New("slow down")),
			llm.NewUpstreamError("fake", 503, errors.New("unavailable")),
		},
		replies: []string{"", "", `{"impact_direction":"negative","confidence":0.6}`},
	}
	c := New(fake, Options{Retry: fastRetry()})

	got, err := c.Classify(context.Background(), testArticle)
	require.NoError(t, err)
	assert.Equal(t, model.Negative, got.ImpactDirection)
	assert.Equal(t, 3, fake.Calls())
}

func TestClassifyGivesUpAfterMaxAttempts(t *testing.T) {
	transient := llm.NewUpstreamError("fake", 500, errors.New("boom"))
	fake := &scriptedCompleter{errs: []error{transient, transient, transient, transient}}
	c := New(fake, Options{Retry: fastRetry()})

	_, err := c.Classify(context.Background(), testArticle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstream))
	assert.Equal(t, 3, fake.Calls())
}

func TestClassifyPermanentErrorNotRetried(t *testing.T) {
	fake := &scriptedCompleter{errs: []error{errors.New("status code: 401, invalid api key")}}
	c := New(fake, Options{Retry: fastRetry()})

	_, err := c.Classify(context.Background(), testArticle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstream))
	assert.False(t, model.IsTransient(err))
	assert.Equal(t, 1, fake.Calls())
}

func TestClassifyCallTimeoutIsTransient(t *testing.T) {
	fake := &scriptedCompleter{block: 50 * time.Millisecond}
	c := New(fake, Options{Retry: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, CallTimeout: 5 * time.Millisecond})

	_, err := c.Classify(context.Background(), testArticle)
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
	assert.Equal(t, 2, fake.Calls())
}

// gatedCompleter 阻塞到 release 关闭或 ctx 取消
type gatedCompleter struct {
	started   chan struct{}
	release   chan struct{}
	cancelled chan struct{}
	calls     int32
}

func newGatedCompleter() *gatedCompleter {
	return &gatedCompleter{
		started:   make(chan struct{}, 8),
		release:   make(chan struct{}),
		cancelled: make(chan struct{}, 8),
	}
}

func (g *gatedCompleter) Name() string  { return "fake" }
func (g *gatedCompleter) Model() string { return "fake-model" }

func (g *gatedCompleter) Complete(ctx context.Context, _ llm.Prompt) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	g.started <- struct{}{}
	select {
	case <-ctx.Done():
		g.cancelled <- struct{}{}
		return "", ctx.Err()
	case <-g.release:
		return `{"impact_direction":"positive","confidence":0.7,"reason":"shared"}`, nil
	}
}

func (c *Classifier) waiters(a model.Article) int {
	c.flights.mu.Lock()
	defer c.flights.mu.Unlock()
	if f, ok := c.flights.calls[c.Key(a).Hash()]; ok {
		return f.waiters
	}
	return 0
}

func TestClassifyCancelledCallerDoesNotFailOthers(t *testing.T) {
	fake := newGatedCompleter()
	c := New(fake, Options{Retry: fastRetry()})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := c.Classify(ctxA, testArticle)
		errA <- err
	}()
	<-fake.started

	type result struct {
		cls model.Classification
		err error
	}
	resB := make(chan result, 1)
	go func() {
		cls, err := c.Classify(context.Background(), testArticle)
		resB <- result{cls, err}
	}()
	require.Eventually(t, func() bool { return c.waiters(testArticle) == 2 }, time.Second, time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(fake.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, model.Positive, r.cls.ImpactDirection)
		assert.Equal(t, "shared", r.cls.Reason)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.calls))
	assert.Empty(t, fake.cancelled)
}

func TestClassifyLastCallerLeavingCancelsCall(t *testing.T) {
	fake := newGatedCompleter()
	c := New(fake, Options{Retry: fastRetry()})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Classify(ctx, testArticle)
		errCh <- err
	}()
	<-fake.started
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	select {
	case <-fake.cancelled:
	case <-time.After(time.Second):
		t.Fatal("model call was not cancelled")
	}
	assert.Equal(t, 0, c.waiters(testArticle))

	// 之后的请求发起新的调用
	close(fake.release)
	got, err := c.Classify(context.Background(), testArticle)
	require.NoError(t, err)
	assert.Equal(t, model.Positive, got.ImpactDirection)
}

func TestWithoutCache(t *testing.T) {
	fake := &scriptedCompleter{}
	store := newMemStore()
	c := New(fake, Options{Store: store, Retry: fastRetry()}).WithoutCache()

	_, err := c.Classify(context.Background(), testArticle)
	require.NoError(t, err)
	_, ok := c.Cached(context.Background(), testArticle)
	assert.False(t, ok)
	assert.Equal(t, 0, store.puts)
}

func TestPromptIsDeterministic(t *testing.T) {
	p1 := BuildPrompt(testArticle, 5)
	p2 := BuildPrompt(testArticle, 5)
	assert.Equal(t, p1, p2)
	assert.Contains(t, p1.User, `"horizon_trading_days":5`)
	assert.NotContains(t, p1.User, "https://example.com")

	long := testArticle
	long.Title = strings.Repeat("t", 500)
	long.Description = strings.Repeat("d", 2000)
	p := BuildPrompt(long, 9)
	assert.Contains(t, p.User, `"horizon_trading_days":5`)
	assert.NotContains(t, p.User, strings.Repeat("t", 221))
	assert.NotContains(t, p.User, strings.Repeat("d", 901))

	assert.Equal(t, "impact_v1-h5", PromptVersion(0))
	assert.Equal(t, "impact_v1-h1", PromptVersion(1))
	assert.Equal(t, "impact_v1-h5", PromptVersion(12))
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    *Verdict
		wantErr bool
	}{
		{name: "plain", reply: `{"impact_direction":"positive","confidence":0.7,"reason":"good"}`,
			want: &Verdict{Direction: model.Positive, Confidence: 0.7, Reason: "good"}},
		{name: "fenced with prose", reply: "Sure!\n```json\n{\"impact_direction\": \"NEGATIVE\", \"confidence\": 1}\n```",
			want: &Verdict{Direction: model.Negative, Confidence: 1}},
		{name: "unknown fields ignored", reply: `{"impact_direction":"neutral","confidence":0,"extra":[1,2]}`,
			want: &Verdict{Direction: model.Neutral, Confidence: 0}},
		{name: "null reason", reply: `{"impact_direction":"neutral","confidence":0.2,"reason":null}`,
			want: &Verdict{Direction: model.Neutral, Confidence: 0.2}},
		{name: "empty", reply: "", wantErr: true},
		{name: "not json", reply: "positive", wantErr: true},
		{name: "array", reply: `[{"impact_direction":"neutral"}]`, wantErr: true},
		{name: "missing direction", reply: `{"confidence":0.5}`, wantErr: true},
		{name: "unknown direction", reply: `{"impact_direction":"bullish","confidence":0.5}`, wantErr: true},
		{name: "missing confidence", reply: `{"impact_direction":"neutral"}`, wantErr: true},
		{name: "confidence string", reply: `{"impact_direction":"neutral","confidence":"high"}`, wantErr: true},
		{name: "confidence negative", reply: `{"impact_direction":"neutral","confidence":-0.1}`, wantErr: true},
		{name: "confidence above one", reply: `{"impact_direction":"neutral","confidence":1.01}`, wantErr: true},
		{name: "reason not string", reply: `{"impact_direction":"neutral","confidence":0.5,"reason":5}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, model.ErrSchema))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	v, err := ParseReply(`{"impact_direction":"neutral","confidence":0.5,"reason":"` + strings.Repeat("r", 300) + `"}`)
	require.NoError(t, err)
	assert.Len(t, []rune(v.Reason), maxReasonLen)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(30))
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, IsTransient: func(error) bool { return true }}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("again")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancel")
	}
}
