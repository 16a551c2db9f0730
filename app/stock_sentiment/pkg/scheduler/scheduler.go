package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/engine"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// Runner 执行一次分析，由 engine.Engine 实现
type Runner interface {
	Run(ctx context.Context, opts engine.RunOptions) (*model.AggregateResult, error)
}

// Scheduler 按 cron 表达式定时分析一组 symbol
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Symbols  []string
	Template engine.RunOptions
	// OnResult 每个 symbol 分析完成后调用，err 不为 nil 时 result 为 nil
	OnResult func(symbol string, result *model.AggregateResult, err error)
	Ctx      context.Context
}

// NewScheduler 创建调度器，cron 表达式包含秒字段；上一轮未结束时跳过本轮
func NewScheduler(ctx context.Context, runner Runner, symbols []string, template engine.RunOptions) *Scheduler {
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		Runner:   runner,
		Symbols:  symbols,
		Template: template,
		Ctx:      ctx,
	}
}

// Register 注册定时任务
func (s *Scheduler) Register(spec string) error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf("no symbols to watch")
	}
	if _, err := s.Cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register watch task %q: %w", spec, err)
	}
	return nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.Cron.Start()
	logger.L().Infof("调度已启动，关注 %d 个 symbol", len(s.Symbols))
}

// Stop 停止调度并等待正在运行的任务结束
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	logger.L().Info("调度已停止")
}

// RunNow 立即依次分析所有 symbol，单个失败不影响其他
func (s *Scheduler) RunNow() {
	for _, symbol := range s.Symbols {
		if s.Ctx.Err() != nil {
			return
		}
		opts := s.Template
		opts.Ticker = symbol

		result, err := s.Runner.Run(s.Ctx, opts)
		if err != nil {
			logger.L().Errorf("定时分析失败 [%s]: %v", symbol, err)
		}
		if s.OnResult != nil {
			s.OnResult(symbol, result, err)
		}
	}
}
