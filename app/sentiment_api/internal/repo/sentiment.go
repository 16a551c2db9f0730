package repo

import (
	"context"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/engine"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// Analyzer 执行一次情绪分析，由 engine.Engine 实现
type Analyzer interface {
	Run(ctx context.Context, opts engine.RunOptions) (*model.AggregateResult, error)
}

// HistoryRepo 运行记录仓库接口
type HistoryRepo interface {
	// ListRuns 按时间倒序获取运行记录，symbol 为空时返回全部
	ListRuns(ctx context.Context, symbol string, limit int) ([]*model.RunRecord, error)
}
