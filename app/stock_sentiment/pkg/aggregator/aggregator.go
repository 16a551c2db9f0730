package aggregator

import (
	"math"
	"time"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

const (
	// LabelThreshold |score| 达到该值才算 bullish / bearish
	LabelThreshold = 0.2

	strongThreshold   = 0.6
	moderateThreshold = 0.35
)

type options struct {
	perArticle bool
	articles   []model.Article
	query      string
	asOf       time.Time
	cacheHits  int
	partial    bool
}

// Option 聚合选项
type Option func(*options)

// WithPerArticle 结果中包含逐篇分类
func WithPerArticle() Option {
	return func(o *options) { o.perArticle = true }
}

// WithArticles 结果中包含文章列表
func WithArticles(articles []model.Article) Option {
	return func(o *options) { o.articles = articles }
}

// WithQuery 记录实际使用的搜索词
func WithQuery(q string) Option {
	return func(o *options) { o.query = q }
}

// WithAsOf 结果时间，默认为当前时间
func WithAsOf(t time.Time) Option {
	return func(o *options) { o.asOf = t }
}

// WithCacheHits 命中缓存的文章数
func WithCacheHits(n int) Option {
	return func(o *options) { o.cacheHits = n }
}

// WithPartial 标记为被取消的部分结果
func WithPartial() Option {
	return func(o *options) { o.partial = true }
}

// Score 置信度加权平均：Σ(w·c)/Σc，Σc 为 0 时返回 0
func Score(classifications []model.Classification) float64 {
	var num, den float64
	for _, c := range classifications {
		conf := c.Confidence
		if math.IsNaN(conf) || conf < 0 {
			conf = 0
		}
		num += c.ImpactDirection.Weight() * conf
		den += conf
	}
	if den == 0 {
		return 0
	}
	return clamp(num/den, -1, 1)
}

// LabelFor 分数到标签的映射
func LabelFor(score float64) model.Label {
	switch {
	case score >= LabelThreshold:
		return model.Bullish
	case score <= -LabelThreshold:
		return model.Bearish
	default:
		return model.NeutralMood
	}
}

// SignalFor 信号与标签一一对应
func SignalFor(label model.Label) model.Signal {
	switch label {
	case model.Bullish:
		return model.Buy
	case model.Bearish:
		return model.Sell
	default:
		return model.Hold
	}
}

// StrengthFor 非中性标签的强度分级
func StrengthFor(score float64, label model.Label) model.Strength {
	if label == model.NeutralMood {
		return model.StrengthNone
	}
	abs := math.Abs(score)
	switch {
	case abs >= strongThreshold:
		return model.StrengthStrong
	case abs >= moderateThreshold:
		return model.StrengthModerate
	default:
		return model.StrengthWeak
	}
}

// Aggregate 把逐篇分类合成一个结果，不会失败；articleCount 为抓取到的文章数，包括分类失败的
func Aggregate(symbol string, classifications []model.Classification, articleCount int, sourceUsed string, lookbackDays int, opts ...Option) *model.AggregateResult {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.asOf.IsZero() {
		o.asOf = time.Now().UTC()
	}

	// 先取整再判定标签，保证输出的分数和标签一致
	score := round(Score(classifications), 4)
	label := LabelFor(score)

	var confSum float64
	for _, c := range classifications {
		confSum += c.Confidence
	}
	var meanConf float64
	if len(classifications) > 0 {
		meanConf = confSum / float64(len(classifications))
	}

	classified := len(classifications)
	failed := articleCount - classified
	if failed < 0 {
		failed = 0
	}

	result := &model.AggregateResult{
		StockSymbol:     symbol,
		Query:           o.query,
		Score:           score,
		Label:           label,
		Strength:        StrengthFor(score, label),
		Signal:          SignalFor(label),
		Confidence:      round(meanConf, 4),
		ArticleCount:    classified + failed,
		ClassifiedCount: classified,
		FailedCount:     failed,
		CacheHits:       o.cacheHits,
		SourceUsed:      sourceUsed,
		LookbackDays:    lookbackDays,
		AsOf:            o.asOf,
		Partial:         o.partial,
	}
	if o.perArticle {
		result.PerArticle = append([]model.Classification(nil), classifications...)
	}
	if len(o.articles) > 0 {
		result.Articles = append([]model.Article(nil), o.articles...)
	}
	return result
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
