package googlerss

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

const defaultBaseURL = "https://news.google.com"

// Client Google News RSS 客户端，不需要 API key
type Client struct {
	baseURL string
	hl      string
	gl      string
	ceid    string
	parser  *gofeed.Parser
}

// NewClient 创建一个新的 Google News RSS 客户端
func NewClient(baseURL, hl, gl, ceid string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	// 添加 User-Agent 避免被简单的反爬虫策略拦截
	parser.UserAgent = "Mozilla/5.0 (compatible; stock-sentiment/1.0)"

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hl:      hl,
		gl:      gl,
		ceid:    ceid,
		parser:  parser,
	}
}

// Ensure Client implements news.Fetcher
var _ news.Fetcher = (*Client)(nil)

func (c *Client) Name() string { return model.SourceGoogleRSS }

// SearchURL 构造搜索 URL
func (c *Client) SearchURL(query string) string {
	q := url.Values{}
	q.Set("q", query)
	if c.hl != "" {
		q.Set("hl", c.hl)
	}
	if c.gl != "" {
		q.Set("gl", c.gl)
	}
	if c.ceid != "" {
		q.Set("ceid", c.ceid)
	}
	return c.baseURL + "/rss/search?" + q.Encode()
}

// Fetch implements news.Fetcher
func (c *Client) Fetch(ctx context.Context, req *news.Request) ([]model.Article, error) {
	// Google News 支持 when:Nd 限定时间窗口
	query := fmt.Sprintf("%s when:%dd", req.SearchQuery(), req.LookbackDays)

	feed, err := c.parser.ParseURLWithContext(c.SearchURL(query), ctx)
	if err != nil {
		return nil, model.NewSourceError(c.Name(), fmt.Errorf("parse feed failed: %w", err))
	}

	since := req.Since()
	articles := make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		var pub time.Time
		if item.PublishedParsed != nil {
			pub = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			pub = item.UpdatedParsed.UTC()
		}
		if !pub.IsZero() && pub.Before(since) {
			continue
		}

		title := strings.TrimSpace(item.Title)
		desc := news.StripHTML(item.Description)
		// 描述通常只是标题加来源，和标题相同时丢弃
		if desc == title {
			desc = ""
		}

		a := news.NewArticle(title, desc, item.Link, publisherFromTitle(title), pub)
		if a.Title == "" && a.Description == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// publisherFromTitle Google News 标题格式为 "Headline - Publisher"
func publisherFromTitle(title string) string {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 || idx+3 >= len(title) {
		return ""
	}
	return strings.TrimSpace(title[idx+3:])
}
