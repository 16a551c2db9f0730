package finnhub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

// Client Finnhub 公司新闻客户端
type Client struct {
	apiKey string
	client *finnhub.DefaultApiService
}

// NewClient 创建一个新的 Finnhub 客户端，baseURL 为空时使用官方地址
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	if baseURL != "" {
		cfg.Servers = finnhub.ServerConfigurations{{URL: strings.TrimRight(baseURL, "/")}}
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey: apiKey,
		client: finnhub.NewAPIClient(cfg).DefaultApi,
	}
}

// Ensure Client implements news.Fetcher
var _ news.Fetcher = (*Client)(nil)

func (c *Client) Name() string { return model.SourceFinnhub }

// Fetch implements news.Fetcher，按 ticker 拉取公司新闻
func (c *Client) Fetch(ctx context.Context, req *news.Request) ([]model.Article, error) {
	if c.apiKey == "" {
		return nil, model.NewSourceError(c.Name(), errors.New("missing FINNHUB_API_KEY"))
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Ticker))
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	from := req.Since().Format(time.DateOnly)
	to := now.UTC().Format(time.DateOnly)

	res, _, err := c.client.CompanyNews(ctx).Symbol(symbol).From(from).To(to).Execute()
	if err != nil {
		return nil, model.NewSourceError(c.Name(), fmt.Errorf("company news failed: %w", err))
	}

	articles := make([]model.Article, 0, len(res))
	for _, item := range res {
		var title, summary, link, publisher string
		var pub time.Time

		if item.Headline != nil {
			title = *item.Headline
		}
		if item.Summary != nil {
			summary = news.StripHTML(*item.Summary)
		}
		if item.Url != nil {
			link = *item.Url
		}
		if item.Source != nil {
			publisher = *item.Source
		}
		if item.Datetime != nil && *item.Datetime > 0 {
			pub = time.Unix(*item.Datetime, 0).UTC()
		}

		a := news.NewArticle(title, summary, link, publisher, pub)
		if a.Title == "" && a.Description == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}
