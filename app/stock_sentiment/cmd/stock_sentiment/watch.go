package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/engine"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/scheduler"
)

var (
	watchCron   string
	watchFormat string
	watchNow    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [SYMBOL...]",
	Short: "Analyze symbols on a cron schedule",
	Long: `watch re-runs the analysis for each symbol on a cron schedule (with a
seconds field) until interrupted. Symbols default to watch.symbols from the config.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchCron, "cron", "", "cron expression with seconds (default from config)")
	watchCmd.Flags().StringVar(&watchFormat, "format", formatText, "output format: text or json")
	watchCmd.Flags().BoolVar(&watchNow, "now", true, "run once immediately before the first tick")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchCron != "" {
		cfg.Watch.Cron = watchCron
	}
	if len(args) > 0 {
		cfg.Watch.Symbols = args
	}
	if watchFormat != formatText && watchFormat != formatJSON {
		return fmt.Errorf("%w: --format must be text or json, got %q", model.ErrInvalidInput, watchFormat)
	}
	if err := validate(cfg); err != nil {
		return err
	}

	symbols := make([]string, 0, len(cfg.Watch.Symbols))
	for _, s := range cfg.Watch.Symbols {
		t, err := engine.NormalizeTicker(s)
		if err != nil {
			return err
		}
		symbols = append(symbols, t)
	}

	ctx := cmd.Context()
	e, err := engine.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	s := scheduler.NewScheduler(ctx, e, symbols, engine.RunOptions{})
	s.OnResult = func(symbol string, r *model.AggregateResult, err error) {
		if err != nil {
			return
		}
		if err := render(os.Stdout, r, watchFormat, false, false); err != nil {
			logger.L().Errorf("输出结果失败 [%s]: %v", symbol, err)
		}
	}
	if err := s.Register(cfg.Watch.Cron); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	logger.L().Infof("关注列表: %s，cron: %s", strings.Join(symbols, ", "), cfg.Watch.Cron)
	if watchNow {
		s.RunNow()
	}
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}
