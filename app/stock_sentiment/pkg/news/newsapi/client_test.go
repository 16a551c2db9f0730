package newsapi

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
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

func TestFetch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
		assert.Equal(t, "2026-03-07", r.URL.Query().Get("from"))
		assert.Equal(t, "publishedAt", r.URL.Query().Get("sortBy"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"totalResults": 3,
			"articles": [
				{"source": {"name": "Reuters"}, "title": "Apple beats estimates", "description": "Strong quarter", "url": "https://reuters.com/apple", "publishedAt": "2026-03-10T08:00:00Z"},
				{"source": {"name": "x"}, "title": "[Removed]", "description": "[Removed]", "url": "https://removed.com"},
				{"source": {"name": "Bloomberg"}, "title": "Apple supplier news", "description": "", "url": "https://bloomberg.com/a", "publishedAt": "bad date"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "en", time.Second)
	got, err := c.Fetch(context.Background(), &news.Request{Ticker: "AAPL", LookbackDays: 3, MaxArticles: 10, Now: now})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Apple beats estimates", got[0].Title)
	assert.Equal(t, "Reuters", got[0].SourceName)
	assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), got[0].PublishedAt)
	assert.Equal(t, news.Fingerprint("Apple beats estimates", "https://reuters.com/apple"), got[0].ID)
	assert.True(t, got[1].PublishedAt.IsZero())
}

func TestFetchMissingKey(t *testing.T) {
	c := NewClient("", "http://127.0.0.1:1", "", time.Second)
	_, err := c.Fetch(context.Background(), &news.Request{Ticker: "AAPL", LookbackDays: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceUnavailable))
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
	}))
	defer srv.Close()

	c := NewClient("bad", srv.URL, "en", time.Second)
	_, err := c.Fetch(context.Background(), &news.Request{Ticker: "AAPL", LookbackDays: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "apiKeyInvalid")

	var se *model.SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.SourceNewsAPI, se.Source)
}
