package googlerss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>"AAPL" - Google News</title>
<item>
  <title>Apple unveils new chip - The Verge</title>
  <link>https://news.google.com/articles/abc</link>
  <pubDate>Tue, 10 Mar 2026 09:00:00 GMT</pubDate>
  <description>&lt;a href="https://theverge.com/x"&gt;Apple unveils new chip&lt;/a&gt;&amp;nbsp;&amp;nbsp;&lt;font color="#6f6f6f"&gt;The Verge&lt;/font&gt;</description>
</item>
<item>
  <title>Old Apple story - CNBC</title>
  <link>https://news.google.com/articles/old</link>
  <pubDate>Sun, 01 Mar 2026 09:00:00 GMT</pubDate>
  <description>old</description>
</item>
</channel>
</rss>`

func TestFetch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rss/search", r.URL.Path)
		assert.Equal(t, "en-US", r.URL.Query().Get("hl"))
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "en-US", "US", "US:en", time.Second)
	got, err := c.Fetch(context.Background(), &news.Request{Ticker: "AAPL", LookbackDays: 3, Now: now})
	require.NoError(t, err)

	assert.Equal(t, "AAPL when:3d", gotQuery)
	require.Len(t, got, 1)
	assert.Equal(t, "Apple unveils new chip - The Verge", got[0].Title)
	assert.Equal(t, "The Verge", got[0].SourceName)
	assert.False(t, strings.Contains(got[0].Description, "<"))
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), got[0].PublishedAt)
}

func TestFetchUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", "", time.Second)
	_, err := c.Fetch(context.Background(), &news.Request{Ticker: "AAPL", LookbackDays: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceUnavailable))
}

func TestPublisherFromTitle(t *testing.T) {
	assert.Equal(t, "Reuters", publisherFromTitle("Apple - Samsung rivalry heats up - Reuters"))
	assert.Equal(t, "", publisherFromTitle("No publisher here"))
	assert.Equal(t, "", publisherFromTitle("Trailing - "))
}
