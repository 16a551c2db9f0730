package storage

import (
	"context"
	"fmt"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// Recorder 保存每次运行的结果摘要
type Recorder interface {
	// Record 保存结果及逐篇分类（如果有），返回运行记录 ID
	Record(ctx context.Context, result *model.AggregateResult) (int64, error)
	// History 按时间倒序返回某个 symbol 的运行记录，symbol 为空时返回全部
	History(ctx context.Context, symbol string, limit int) ([]*model.RunRecord, error)
	Close() error
}

// NewRecorder 根据配置创建 Recorder，driver 为 none 时返回 Nop
func NewRecorder(cfg *config.Config) (Recorder, error) {
	switch cfg.Storage.Driver {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		return NewSQLiteRecorder(cfg.Storage.SQLitePath)
	case "postgres":
		return NewPostgresRecorder(cfg.Storage.DB)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// Nop 不保存任何内容
type Nop struct{}

// Ensure Nop implements Recorder
var _ Recorder = Nop{}

func (Nop) Record(context.Context, *model.AggregateResult) (int64, error) { return 0, nil }

func (Nop) History(context.Context, string, int) ([]*model.RunRecord, error) { return nil, nil }

func (Nop) Close() error { return nil }

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}
