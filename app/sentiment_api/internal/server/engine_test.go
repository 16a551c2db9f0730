package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/conf"
)

func TestToConfigCacheTTL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("STOCK_SENTIMENT_CACHE_DIR", "")

	var c conf.Sentiment
	require.NoError(t, json.Unmarshal([]byte(`{"cache":{"backend":"disk","dir":"/tmp/ss","ttl_hours":0}}`), &c))
	cfg, err := ToConfig(&c)
	require.NoError(t, err)
	assert.Zero(t, cfg.CacheTTL())

	c = conf.Sentiment{}
	require.NoError(t, json.Unmarshal([]byte(`{"cache":{"backend":"disk","dir":"/tmp/ss"}}`), &c))
	cfg, err = ToConfig(&c)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
}
