package classifier

import (
	"context"
	"time"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// RetryPolicy 上游错误的重试策略
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsTransient func(error) bool
}

// DefaultRetryPolicy 最多 3 次，1s 起指数退避，上限 15s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    15 * time.Second,
		IsTransient: model.IsTransient,
	}
}

// Backoff 第 attempt 次失败后的等待时间（attempt 从 0 开始）
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do 执行 fn，遇到可重试错误时按指数退避重试，不可重试错误立即返回
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	isTransient := p.IsTransient
	if isTransient == nil {
		isTransient = model.IsTransient
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			break
		}

		delay := p.Backoff(i)
		logger.L().Warnf("模型调用失败，%v 后重试 (%d/%d): %v", delay, i+1, attempts-1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
