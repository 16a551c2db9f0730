package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/engine"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

type analyzeFlags struct {
	query           string
	days            int
	maxArticles     int
	source          string
	noCache         bool
	cacheTTLHours   float64
	cacheDir        string
	model           string
	format          string
	includeArticles bool
	verbose         bool
}

var analyzeOpts analyzeFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze TICKER",
	Short: "Analyze news sentiment for a stock ticker",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	f := analyzeCmd.Flags()
	f.StringVar(&analyzeOpts.query, "query", "", "search query (defaults to ticker)")
	f.IntVar(&analyzeOpts.days, "days", 0, "lookback window in days (default from config: 3)")
	f.IntVar(&analyzeOpts.maxArticles, "max-articles", 0, "max articles to analyze (default from config: 25)")
	f.StringVar(&analyzeOpts.source, "source", "", "news source: auto, newsapi, google-rss, finnhub")
	f.BoolVar(&analyzeOpts.noCache, "no-cache", false, "bypass the classification cache for reads and writes")
	f.Float64Var(&analyzeOpts.cacheTTLHours, "cache-ttl-hours", 0, "cache TTL in hours (default from config: 24)")
	f.StringVar(&analyzeOpts.cacheDir, "cache-dir", "", "cache directory (default: XDG cache home)")
	f.StringVar(&analyzeOpts.model, "model", "", "model name (overrides config and OPENAI_MODEL)")
	f.StringVar(&analyzeOpts.format, "format", "text", "output format: text or json")
	f.BoolVar(&analyzeOpts.includeArticles, "include-articles", false, "include article metadata in JSON output")
	f.BoolVarP(&analyzeOpts.verbose, "verbose", "v", false, "print per-article details")
}

// applyAnalyzeFlags 命令行参数覆盖配置
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config, o analyzeFlags) error {
	flags := cmd.Flags()
	if flags.Changed("days") && o.days < 1 {
		return fmt.Errorf("%w: --days must be >= 1", model.ErrInvalidInput)
	}
	if flags.Changed("max-articles") && o.maxArticles < 1 {
		return fmt.Errorf("%w: --max-articles must be >= 1", model.ErrInvalidInput)
	}
	if flags.Changed("cache-ttl-hours") {
		if o.cacheTTLHours < 0 {
			return fmt.Errorf("%w: --cache-ttl-hours must be >= 0", model.ErrInvalidInput)
		}
		cfg.SetCacheTTLHours(o.cacheTTLHours)
	}
	if o.cacheDir != "" {
		cfg.Cache.Dir = o.cacheDir
	}
	if o.model != "" {
		cfg.LLM.Model = o.model
	}
	if o.source != "" {
		cfg.News.Source = o.source
	}
	switch o.format {
	case formatText, formatJSON:
	default:
		return fmt.Errorf("%w: --format must be text or json, got %q", model.ErrInvalidInput, o.format)
	}
	return validate(cfg)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	o := analyzeOpts
	if err := applyAnalyzeFlags(cmd, cfg, o); err != nil {
		return err
	}
	if _, err := engine.NormalizeTicker(args[0]); err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := engine.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.Run(ctx, engine.RunOptions{
		Ticker:            args[0],
		Query:             o.query,
		LookbackDays:      o.days,
		MaxArticles:       o.maxArticles,
		NoCache:           o.noCache,
		IncludePerArticle: o.verbose,
		IncludeArticles:   o.includeArticles || o.verbose,
	})
	if err != nil {
		return err
	}

	if err := render(os.Stdout, result, o.format, o.verbose, o.includeArticles); err != nil {
		return err
	}
	if result.Partial {
		logger.L().Warnf("运行被中断，只输出了部分结果：%d/%d 篇", result.ClassifiedCount, result.ArticleCount)
		return context.Canceled
	}
	return nil
}
