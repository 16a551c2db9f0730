package news

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"http://WWW.Example.com/a/b/", "https://example.com/a/b"},
		{"https://example.com/a?utm_source=x&id=3&fbclid=y#top", "https://example.com/a?id=3"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"https://user:pw@example.com/x", "https://example.com/x"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeURL(c.in), c.in)
	}
}

func TestFingerprintIgnoresDescriptionAndTracking(t *testing.T) {
	a := NewArticle("Apple beats estimates", "short", "https://example.com/apple?utm_medium=rss", "", time.Time{})
	b := NewArticle("  apple   BEATS estimates ", "a much longer body", "http://www.example.com/apple/", "", time.Time{})
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, a.ID, 32)

	c := NewArticle("Apple misses estimates", "", "https://example.com/apple", "", time.Time{})
	assert.NotEqual(t, a.ID, c.ID)
}

func TestPrepare(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	since := now.AddDate(0, 0, -3)

	old := NewArticle("old", "", "https://a.com/old", "", now.AddDate(0, 0, -5))
	undated := NewArticle("undated", "", "https://a.com/undated", "", time.Time{})
	first := NewArticle("first", "", "https://a.com/1", "", now.Add(-2*time.Hour))
	dup := NewArticle("first again", "", "https://www.a.com/1/?utm_source=x", "", now.Add(-time.Hour))
	newest := NewArticle("newest", "", "https://a.com/2", "", now.Add(-time.Hour))
	tie := NewArticle("tie", "", "https://a.com/3", "", now.Add(-time.Hour))
	empty := model.Article{URL: "https://a.com/empty"}

	got := Prepare([]model.Article{old, undated, first, dup, newest, tie, empty}, since, 0)

	titles := make([]string, len(got))
	for i, a := range got {
		titles[i] = a.Title
	}
	// 去重保留首次出现，同一时间保持原始顺序，未知时间排最后
	assert.Equal(t, []string{"newest", "tie", "first", "undated"}, titles)

	capped := Prepare([]model.Article{first, newest, tie}, since, 2)
	require.Len(t, capped, 2)
	assert.Equal(t, "newest", capped[0].Title)
	assert.Equal(t, "tie", capped[1].Title)
}

func TestPrepareDedupWithoutURL(t *testing.T) {
	a := NewArticle("Same headline", "x", "", "", time.Time{})
	b := NewArticle("same headline", "y", "", "", time.Time{})
	got := Prepare([]model.Article{a, b}, time.Time{}, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Description)
}

func TestStripHTMLAndTruncate(t *testing.T) {
	assert.Equal(t, "Apple & Co rises", StripHTML(`<a href="x">Apple &amp; Co</a>&nbsp; <b>rises</b>`))
	// 文本中单独的 < 和 > 不能当作标签吞掉
	assert.Equal(t, "Revenue < $5B while margin > 10% for AAPL",
		StripHTML("Revenue < $5B while margin > 10% for <b>AAPL</b>"))
	assert.Equal(t, "first second", StripHTML("<p>first</p><p>second</p>"))
	assert.Equal(t, "headline", StripHTML("<script>alert(1)</script>headline"))
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 3))
	assert.Equal(t, "苹果…", Truncate("苹果公司发布财报", 3))
}

type staticFetcher struct {
	articles []model.Article
	err      error
}

func (f *staticFetcher) Name() string { return "static" }

func (f *staticFetcher) Fetch(context.Context, *Request) ([]model.Article, error) {
	return f.articles, f.err
}

func TestEnrichingFetcher(t *testing.T) {
	short := NewArticle("Short", "tiny", "https://a.com/short", "", time.Time{})
	long := NewArticle("Long", "this description is already long enough", "https://a.com/long", "", time.Time{})
	broken := NewArticle("Broken", "tiny", "https://a.com/broken", "", time.Time{})

	var visited []string
	f := NewEnrichingFetcher(&staticFetcher{articles: []model.Article{short, long, broken}}, 10, 20, time.Second)
	f.Reader = func(_ context.Context, url string, _ time.Duration) (string, error) {
		visited = append(visited, url)
		if url == broken.URL {
			return "", errors.New("boom")
		}
		return "full   article\n text that goes on and on", nil
	}

	got, err := f.Fetch(context.Background(), &Request{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{short.URL, broken.URL}, visited)
	assert.Equal(t, "full article text t…", got[0].Description)
	assert.Equal(t, short.ID, got[0].ID)
	assert.Equal(t, long.Description, got[1].Description)
	assert.Equal(t, "tiny", got[2].Description)
}

const articlePage = `<!DOCTYPE html>
<html><head><title>Apple beats estimates</title></head>
<body><article>
<h1>Apple beats estimates</h1>
<p>Apple reported record iPhone revenue for the quarter, beating analyst estimates on both the top and bottom line.
Services revenue also reached an all time high as the installed base kept growing across every region.</p>
<p>Shares rose in after hours trading as the company guided above consensus for the coming quarter and
announced a larger buyback program than the market had expected.</p>
</article></body></html>`

func TestReadabilityReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(articlePage))
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	text, err := ReadabilityReader(context.Background(), srv.URL+"/article", time.Second)
	require.NoError(t, err)
	assert.Contains(t, text, "record iPhone revenue")

	_, err = ReadabilityReader(context.Background(), srv.URL+"/json", time.Second)
	assert.Error(t, err)
	_, err = ReadabilityReader(context.Background(), srv.URL+"/missing", time.Second)
	assert.Error(t, err)
	_, err = ReadabilityReader(context.Background(), "not a url", time.Second)
	assert.Error(t, err)
}

func TestReadabilityReaderHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := ReadabilityReader(ctx, srv.URL+"/slow", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRequest(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := &Request{Ticker: "AAPL", LookbackDays: 3, Now: now}
	assert.Equal(t, "AAPL", r.SearchQuery())
	assert.Equal(t, now.AddDate(0, 0, -3), r.Since())

	r.Query = "  Apple Inc  "
	assert.Equal(t, "Apple Inc", r.SearchQuery())
}
