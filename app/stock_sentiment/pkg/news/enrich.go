package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// PageReader 抓取网页正文
type PageReader func(ctx context.Context, url string, timeout time.Duration) (string, error)

// ReadabilityReader 使用 readability 提取正文，请求随 ctx 取消
func ReadabilityReader(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	parsed, err := url.ParseRequestURI(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create page request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		return "", fmt.Errorf("page is not html: %q", ct)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("extract page text: %w", err)
	}
	return article.TextContent, nil
}

// EnrichingFetcher 摘要过短时抓取原文补全描述，指纹保持不变
type EnrichingFetcher struct {
	Inner     Fetcher
	MinLength int
	MaxLength int
	Timeout   time.Duration
	Reader    PageReader
}

// Ensure EnrichingFetcher implements Fetcher
var _ Fetcher = (*EnrichingFetcher)(nil)

// NewEnrichingFetcher 包装一个 Fetcher
func NewEnrichingFetcher(inner Fetcher, minLength, maxLength int, timeout time.Duration) *EnrichingFetcher {
	return &EnrichingFetcher{
		Inner:     inner,
		MinLength: minLength,
		MaxLength: maxLength,
		Timeout:   timeout,
		Reader:    ReadabilityReader,
	}
}

func (f *EnrichingFetcher) Name() string { return f.Inner.Name() }

// Fetch 抓取后逐篇补全，补全失败时保留原摘要
func (f *EnrichingFetcher) Fetch(ctx context.Context, req *Request) ([]model.Article, error) {
	articles, err := f.Inner.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]model.Article, len(articles))
	for i, a := range articles {
		out[i] = a
		if ctx.Err() != nil || a.URL == "" || len([]rune(a.Description)) >= f.MinLength {
			continue
		}
		text, err := f.Reader(ctx, a.URL, f.Timeout)
		if err != nil {
			logger.L().Debugf("原文抓取失败，使用摘要 [%s]: %v", a.Title, err)
			continue
		}
		text = strings.Join(strings.Fields(text), " ")
		if len([]rune(text)) <= len([]rune(a.Description)) {
			continue
		}
		out[i].Description = Truncate(text, f.MaxLength)
	}
	return out, nil
}
