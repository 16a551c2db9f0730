package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

const defaultBaseURL = "https://newsapi.org"

// NewsAPI 单页最多 100 条
const maxPageSize = 100

// Client NewsAPI 客户端
type Client struct {
	apiKey   string
	baseURL  string
	language string
	client   *http.Client
}

// NewClient 创建一个新的 NewsAPI 客户端
func NewClient(apiKey, baseURL, language string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if language == "" {
		language = "en"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		client:   &http.Client{Timeout: timeout},
	}
}

// Ensure Client implements news.Fetcher
var _ news.Fetcher = (*Client)(nil)

func (c *Client) Name() string { return model.SourceNewsAPI }

// EverythingResponse /v2/everything 响应
type EverythingResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []RawArticle `json:"articles"`
}

// RawArticle 单篇文章
type RawArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Fetch implements news.Fetcher
func (c *Client) Fetch(ctx context.Context, req *news.Request) ([]model.Article, error) {
	if c.apiKey == "" {
		return nil, model.NewSourceError(c.Name(), errors.New("missing NEWSAPI_KEY"))
	}

	resp, err := c.everything(ctx, req)
	if err != nil {
		return nil, model.NewSourceError(c.Name(), err)
	}

	articles := make([]model.Article, 0, len(resp.Articles))
	for _, raw := range resp.Articles {
		// NewsAPI 用 "[Removed]" 占位被删除的文章
		if raw.Title == "[Removed]" {
			continue
		}
		a := news.NewArticle(raw.Title, raw.Description, raw.URL, raw.Source.Name, parsePublishedAt(raw.PublishedAt))
		if a.Title == "" && a.Description == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func (c *Client) everything(ctx context.Context, req *news.Request) (*EverythingResponse, error) {
	pageSize := req.MaxArticles * 2
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	q := url.Values{}
	q.Set("q", req.SearchQuery())
	q.Set("language", c.language)
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("from", req.Since().Format(time.DateOnly))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	// key 放在 header 里，避免出现在日志中的 URL 上
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}

	var out EverythingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("newsapi error (status %d): %s", res.StatusCode, news.Truncate(string(body), 300))
		}
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}
	if res.StatusCode != http.StatusOK || out.Status != "ok" {
		return nil, fmt.Errorf("newsapi error (status %d, code %q): %s", res.StatusCode, out.Code, out.Message)
	}
	return &out, nil
}

func parsePublishedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
