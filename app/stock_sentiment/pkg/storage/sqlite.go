package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// SQLiteRecorder 使用本地 SQLite 文件保存运行记录
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// Ensure SQLiteRecorder implements Recorder
var _ Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder 打开或创建数据库并建表
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL 模式下 API 读取和 watch 写入互不阻塞
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.L().Infof("sqlite 运行记录已打开: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sentiment_runs (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			stock_symbol     TEXT NOT NULL,
			score            REAL,
			label            TEXT,
			signal           TEXT,
			confidence       REAL,
			article_count    INTEGER,
			classified_count INTEGER,
			failed_count     INTEGER,
			source_used      TEXT,
			lookback_days    INTEGER,
			partial          INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol_ts ON sentiment_runs(stock_symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS run_classifications (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id              INTEGER NOT NULL REFERENCES sentiment_runs(id),
			article_fingerprint TEXT,
			impact_direction    TEXT,
			confidence          REAL,
			reason              TEXT,
			model_id            TEXT,
			prompt_version      TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Record implements Recorder
func (r *SQLiteRecorder) Record(ctx context.Context, result *model.AggregateResult) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rec := model.NewRunRecord(result)
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sentiment_runs (timestamp, stock_symbol, score, label, signal, confidence, article_count,
			classified_count, failed_count, source_used, lookback_days, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.Unix(), rec.StockSymbol, rec.Score, string(rec.Label), string(rec.Signal), rec.Confidence,
		rec.ArticleCount, rec.ClassifiedCount, rec.FailedCount, rec.SourceUsed, rec.LookbackDays, boolToInt(rec.Partial))
	if err != nil {
		return 0, fmt.Errorf("insert sentiment run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, c := range result.PerArticle {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_classifications (run_id, article_fingerprint, impact_direction, confidence, reason, model_id, prompt_version)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, c.ArticleFingerprint, string(c.ImpactDirection), c.Confidence, c.Reason, c.ModelID, c.PromptVersion); err != nil {
			return 0, fmt.Errorf("insert classification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// History implements Recorder
func (r *SQLiteRecorder) History(ctx context.Context, symbol string, limit int) ([]*model.RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, stock_symbol, score, label, signal, confidence, article_count,
			classified_count, failed_count, source_used, lookback_days, partial
		FROM sentiment_runs
		WHERE (? = '' OR stock_symbol = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, symbol, symbol, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*model.RunRecord
	for rows.Next() {
		var rec model.RunRecord
		var ts int64
		var partial int
		var label, signal string
		if err := rows.Scan(&rec.ID, &ts, &rec.StockSymbol, &rec.Score, &label, &signal, &rec.Confidence,
			&rec.ArticleCount, &rec.ClassifiedCount, &rec.FailedCount, &rec.SourceUsed, &rec.LookbackDays, &partial); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(ts, 0).UTC()
		rec.Label = model.Label(label)
		rec.Signal = model.Signal(signal)
		rec.Partial = partial != 0
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close implements Recorder
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
