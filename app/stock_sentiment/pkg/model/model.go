package model

import (
	"fmt"
	"strings"
	"time"
)

// Article 单篇新闻，抓取后不可变
type Article struct {
	ID          string    `json:"article_id"` // 指纹，见 news.Fingerprint
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	SourceName  string    `json:"source,omitempty"`
}

// ImpactDirection 模型对文章价格影响方向的判断
type ImpactDirection string

const (
	StrongNegative ImpactDirection = "strong_negative"
	Negative       ImpactDirection = "negative"
	Neutral        ImpactDirection = "neutral"
	Positive       ImpactDirection = "positive"
	StrongPositive ImpactDirection = "strong_positive"
)

// AllImpactDirections 按从空到多的顺序返回全部取值
func AllImpactDirections() []ImpactDirection {
	return []ImpactDirection{StrongNegative, Negative, Neutral, Positive, StrongPositive}
}

// ParseImpactDirection 解析模型返回的方向，未知取值返回错误
func ParseImpactDirection(s string) (ImpactDirection, error) {
	d := ImpactDirection(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case StrongNegative, Negative, Neutral, Positive, StrongPositive:
		return d, nil
	}
	return "", fmt.Errorf("unknown impact_direction %q", s)
}

// Weight 方向对应的数值权重
func (d ImpactDirection) Weight() float64 {
	switch d {
	case StrongNegative:
		return -1
	case Negative:
		return -0.5
	case Positive:
		return 0.5
	case StrongPositive:
		return 1
	default:
		return 0
	}
}

// ClassificationRequest 缓存键的组成部分
type ClassificationRequest struct {
	ArticleFingerprint string `json:"article_fingerprint"`
	ModelID            string `json:"model_id"`
	PromptVersion      string `json:"prompt_version"`
}

// Classification 单篇文章的分类结果
type Classification struct {
	ArticleFingerprint string          `json:"article_fingerprint"`
	ImpactDirection    ImpactDirection `json:"impact_direction"`
	Confidence         float64         `json:"confidence"`
	Reason             string          `json:"reason,omitempty"`
	ClassifiedAt       time.Time       `json:"classified_at"`
	ModelID            string          `json:"model_id,omitempty"`
	PromptVersion      string          `json:"prompt_version,omitempty"`
}

// CacheEntry 缓存中的一条记录，自描述，读取时无需额外信息即可判断新鲜度
type CacheEntry struct {
	SchemaVersion int            `json:"schema_version"`
	Key           string         `json:"key"`
	Fingerprint   string         `json:"article_fingerprint"`
	ModelID       string         `json:"model_id"`
	PromptVersion string         `json:"prompt_version"`
	Value         Classification `json:"value"`
	CreatedAt     time.Time      `json:"created_at"`
	TTLHours      float64        `json:"ttl_hours"`
}

// ExpiresAt 过期时间点
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(time.Duration(e.TTLHours * float64(time.Hour)))
}

// Expired 超过 created_at + ttl_hours 即视为不存在
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt())
}

// Label 聚合后的情绪标签
type Label string

const (
	Bearish     Label = "bearish"
	NeutralMood Label = "neutral"
	Bullish     Label = "bullish"
)

// Strength 标签强度分级，neutral 没有分级
type Strength string

const (
	StrengthNone     Strength = ""
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Signal 交易信号
type Signal string

const (
	Sell Signal = "sell"
	Hold Signal = "hold"
	Buy  Signal = "buy"
)

// 新闻源名称
const (
	SourceNewsAPI   = "newsapi"
	SourceGoogleRSS = "google-rss"
	SourceFinnhub   = "finnhub"
	SourceAuto      = "auto"
)

// AggregateResult 一次运行的最终结果，构造后不再修改
type AggregateResult struct {
	StockSymbol     string           `json:"stock_symbol"`
	Query           string           `json:"query,omitempty"`
	Score           float64          `json:"score"`
	Label           Label            `json:"label"`
	Strength        Strength         `json:"strength,omitempty"`
	Signal          Signal           `json:"signal"`
	Confidence      float64          `json:"confidence"`
	ArticleCount    int              `json:"article_count"`
	ClassifiedCount int              `json:"classified_count"`
	FailedCount     int              `json:"failed_count"`
	CacheHits       int              `json:"cache_hits"`
	SourceUsed      string           `json:"source_used"`
	LookbackDays    int              `json:"lookback_days"`
	AsOf            time.Time        `json:"as_of"`
	Partial         bool             `json:"partial,omitempty"`
	PerArticle      []Classification `json:"per_article,omitempty"`
	Articles        []Article        `json:"articles,omitempty"`
}

// DisplayLabel 带强度的标签，例如 "strongly bullish"
func (r *AggregateResult) DisplayLabel() string {
	switch r.Strength {
	case StrengthStrong:
		return "strongly " + string(r.Label)
	case StrengthModerate:
		return "moderately " + string(r.Label)
	case StrengthWeak:
		return "slightly " + string(r.Label)
	default:
		return string(r.Label)
	}
}

// RunRecord 持久化的运行摘要
type RunRecord struct {
	ID              int64     `json:"id"`
	StockSymbol     string    `json:"stock_symbol"`
	Score           float64   `json:"score"`
	Label           Label     `json:"label"`
	Signal          Signal    `json:"signal"`
	Confidence      float64   `json:"confidence"`
	ArticleCount    int       `json:"article_count"`
	ClassifiedCount int       `json:"classified_count"`
	FailedCount     int       `json:"failed_count"`
	SourceUsed      string    `json:"source_used"`
	LookbackDays    int       `json:"lookback_days"`
	Partial         bool      `json:"partial"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewRunRecord 从聚合结果生成运行记录
func NewRunRecord(r *AggregateResult) *RunRecord {
	return &RunRecord{
		StockSymbol:     r.StockSymbol,
		Score:           r.Score,
		Label:           r.Label,
		Signal:          r.Signal,
		Confidence:      r.Confidence,
		ArticleCount:    r.ArticleCount,
		ClassifiedCount: r.ClassifiedCount,
		FailedCount:     r.FailedCount,
		SourceUsed:      r.SourceUsed,
		LookbackDays:    r.LookbackDays,
		Partial:         r.Partial,
		CreatedAt:       r.AsOf,
	}
}
