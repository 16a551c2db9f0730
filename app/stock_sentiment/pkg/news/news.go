package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"html"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// Fetcher 定义通用的新闻抓取接口
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) ([]model.Article, error)
	Name() string
}

// Request 通用抓取请求
type Request struct {
	Ticker       string
	Query        string // 为空时使用 Ticker
	LookbackDays int
	MaxArticles  int
	Now          time.Time // 为零值时使用当前时间
}

// SearchQuery 实际使用的搜索词
func (r *Request) SearchQuery() string {
	if q := strings.TrimSpace(r.Query); q != "" {
		return q
	}
	return r.Ticker
}

// Since 回看窗口的起点
func (r *Request) Since() time.Time {
	now := r.Now
	if now.IsZero() {
		now = time.Now()
	}
	return now.UTC().AddDate(0, 0, -r.LookbackDays)
}

// stripPolicy 去掉全部标签，标签位置补一个空格，避免相邻段落粘连
var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// trackingParams 归一化 URL 时去掉的跟踪参数
var trackingParams = map[string]bool{
	"fbclid":     true,
	"gclid":      true,
	"ocid":       true,
	"cmpid":      true,
	"ref":        true,
	"guccounter": true,
}

// NormalizeURL 归一化 URL 用于去重和指纹：小写 host、去掉 www.、fragment、跟踪参数和末尾斜杠
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(k)
		}
	}
	// Encode 会按 key 排序
	u.RawQuery = q.Encode()

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// NormalizeTitle 标题归一化：小写并压缩空白
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Fingerprint 由归一化后的标题和 URL 计算文章指纹，不包含正文
func Fingerprint(title, rawURL string) string {
	h := sha256.Sum256([]byte(NormalizeTitle(title) + "|" + NormalizeURL(rawURL)))
	return hex.EncodeToString(h[:16])
}

// NewArticle 构造 Article 并计算指纹
func NewArticle(title, description, rawURL, sourceName string, publishedAt time.Time) model.Article {
	title = strings.TrimSpace(title)
	rawURL = strings.TrimSpace(rawURL)
	return model.Article{
		ID:          Fingerprint(title, rawURL),
		Title:       title,
		Description: strings.TrimSpace(description),
		URL:         rawURL,
		PublishedAt: publishedAt,
		SourceName:  strings.TrimSpace(sourceName),
	}
}

// DedupKey 去重用的键：优先使用归一化 URL，没有 URL 时使用指纹
func DedupKey(a model.Article) string {
	if u := NormalizeURL(a.URL); u != "" {
		return "url:" + u
	}
	return "id:" + a.ID
}

// Prepare 过滤窗口外的文章、按 URL 去重、按发布时间倒序稳定排序并截断
func Prepare(articles []model.Article, since time.Time, maxArticles int) []model.Article {
	seen := make(map[string]bool, len(articles))
	unique := make([]model.Article, 0, len(articles))
	for _, a := range articles {
		if !a.PublishedAt.IsZero() && !since.IsZero() && a.PublishedAt.Before(since) {
			continue
		}
		if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Description) == "" {
			continue
		}
		key := DedupKey(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, a)
	}

	// 未知发布时间排在最后，相同时间保持原始顺序
	sort.SliceStable(unique, func(i, j int) bool {
		ti, tj := unique[i].PublishedAt, unique[j].PublishedAt
		if ti.IsZero() != tj.IsZero() {
			return !ti.IsZero()
		}
		return ti.After(tj)
	})

	if maxArticles > 0 && len(unique) > maxArticles {
		unique = unique[:maxArticles]
	}
	return unique
}

// StripHTML 去掉 HTML 标签并压缩空白，文本中单独出现的 < 和 > 原样保留
func StripHTML(s string) string {
	text := stripPolicy.Sanitize(s)
	return strings.Join(strings.Fields(html.UnescapeString(text)), " ")
}

// Truncate 按字符截断
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
