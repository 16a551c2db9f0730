package data

import (
	"context"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/repo"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/storage"
)

type historyRepo struct {
	recorder storage.Recorder
	log      *log.Helper
}

// NewHistoryRepo 基于引擎的运行记录存储创建仓库
func NewHistoryRepo(recorder storage.Recorder, logger log.Logger) repo.HistoryRepo {
	return &historyRepo{
		recorder: recorder,
		log:      log.NewHelper(logger),
	}
}

func (r *historyRepo) ListRuns(ctx context.Context, symbol string, limit int) ([]*model.RunRecord, error) {
	runs, err := r.recorder.History(ctx, symbol, limit)
	if err != nil {
		r.log.Errorf("query history failed: %v", err)
		return nil, errors.InternalServer("HISTORY_QUERY_FAILED", "failed to query run history")
	}
	if runs == nil {
		runs = []*model.RunRecord{}
	}
	return runs, nil
}
