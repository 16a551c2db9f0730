package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// PostgresRecorder 使用 PostgreSQL 保存运行记录
type PostgresRecorder struct {
	db *sql.DB
}

// Ensure PostgresRecorder implements Recorder
var _ Recorder = (*PostgresRecorder)(nil)

func NewPostgresRecorder(cfg config.DBConfig) (*PostgresRecorder, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresRecorder{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *PostgresRecorder) Close() error {
	return s.db.Close()
}

func (s *PostgresRecorder) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sentiment_runs (
			id SERIAL PRIMARY KEY,
			stock_symbol TEXT NOT NULL,
			score DOUBLE PRECISION,
			label TEXT,
			signal TEXT,
			confidence DOUBLE PRECISION,
			article_count INTEGER,
			classified_count INTEGER,
			failed_count INTEGER,
			source_used TEXT,
			lookback_days INTEGER,
			partial BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sentiment_runs_symbol ON sentiment_runs (stock_symbol, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS run_classifications (
			id SERIAL PRIMARY KEY,
			run_id INTEGER REFERENCES sentiment_runs(id),
			article_fingerprint TEXT,
			impact_direction TEXT,
			confidence DOUBLE PRECISION,
			reason TEXT,
			model_id TEXT,
			prompt_version TEXT
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

// Record implements Recorder
func (s *PostgresRecorder) Record(ctx context.Context, result *model.AggregateResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rec := model.NewRunRecord(result)
	var runID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sentiment_runs (stock_symbol, score, label, signal, confidence, article_count,
			classified_count, failed_count, source_used, lookback_days, partial, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		rec.StockSymbol, rec.Score, string(rec.Label), string(rec.Signal), rec.Confidence, rec.ArticleCount,
		rec.ClassifiedCount, rec.FailedCount, rec.SourceUsed, rec.LookbackDays, rec.Partial, rec.CreatedAt).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sentiment run: %w", err)
	}

	for _, c := range result.PerArticle {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_classifications (run_id, article_fingerprint, impact_direction, confidence, reason, model_id, prompt_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, c.ArticleFingerprint, string(c.ImpactDirection), c.Confidence, c.Reason, c.ModelID, c.PromptVersion)
		if err != nil {
			return 0, fmt.Errorf("failed to insert classification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// History implements Recorder
func (s *PostgresRecorder) History(ctx context.Context, symbol string, limit int) ([]*model.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stock_symbol, score, label, signal, confidence, article_count, classified_count,
			failed_count, source_used, lookback_days, partial, created_at
		FROM sentiment_runs
		WHERE ($1 = '' OR stock_symbol = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, symbol, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []*model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var label, signal string
		if err := rows.Scan(&r.ID, &r.StockSymbol, &r.Score, &label, &signal, &r.Confidence, &r.ArticleCount,
			&r.ClassifiedCount, &r.FailedCount, &r.SourceUsed, &r.LookbackDays, &r.Partial, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Label = model.Label(label)
		r.Signal = model.Signal(signal)
		out = append(out, &r)
	}
	return out, rows.Err()
}
