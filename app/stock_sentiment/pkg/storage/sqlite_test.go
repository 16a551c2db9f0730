package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

func result(symbol string, score float64, at time.Time) *model.AggregateResult {
	return &model.AggregateResult{
		StockSymbol:     symbol,
		Score:           score,
		Label:           model.Bullish,
		Signal:          model.Buy,
		Confidence:      0.7,
		ArticleCount:    3,
		ClassifiedCount: 2,
		FailedCount:     1,
		SourceUsed:      model.SourceGoogleRSS,
		LookbackDays:    3,
		AsOf:            at,
		Partial:         true,
		PerArticle: []model.Classification{
			{ArticleFingerprint: "a", ImpactDirection: model.Positive, Confidence: 0.8},
			{ArticleFingerprint: "b", ImpactDirection: model.StrongPositive, Confidence: 0.6},
		},
	}
}

func TestSQLiteRecorder(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "sub", "runs.db"))
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	id1, err := r.Record(ctx, result("AAPL", 0.4, t0))
	require.NoError(t, err)
	id2, err := r.Record(ctx, result("AAPL", 0.5, t0.Add(time.Hour)))
	require.NoError(t, err)
	_, err = r.Record(ctx, result("TSLA", -0.3, t0))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM run_classifications WHERE run_id = ?`, id1).Scan(&n))
	assert.Equal(t, 2, n)

	hist, err := r.History(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, id2, hist[0].ID)
	assert.Equal(t, 0.5, hist[0].Score)
	assert.Equal(t, model.Bullish, hist[0].Label)
	assert.Equal(t, model.Buy, hist[0].Signal)
	assert.True(t, hist[0].Partial)
	assert.Equal(t, 1, hist[0].FailedCount)
	assert.Equal(t, t0.Add(time.Hour), hist[0].CreatedAt)

	all, err := r.History(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := r.History(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestNewRecorder(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	r, err := NewRecorder(cfg)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, r)

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "runs.db")
	r, err = NewRecorder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRecorder{}, r)
	require.NoError(t, r.Close())

	cfg.Storage.Driver = "mysql"
	_, err = NewRecorder(cfg)
	assert.Error(t, err)
}
