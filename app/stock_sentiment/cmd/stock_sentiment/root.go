package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

var (
	cfgFile    string
	dotenvFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "stock_sentiment",
	Short: "Score recent news sentiment for a stock ticker",
	Long: `stock_sentiment fetches recent news for a ticker, classifies each article's
expected price impact with a language model and aggregates the results into
a single score, label and trading signal.

Examples:
  stock_sentiment analyze TSLA
  stock_sentiment analyze TSLA --format json --include-articles
  stock_sentiment analyze TSLA --source google-rss --days 7
  stock_sentiment watch AAPL MSFT --cron "0 */30 9-16 * * 1-5"
  stock_sentiment cache prune`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&dotenvFile, "dotenv", ".env", "optional .env file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
}

// loadConfig 依次加载 .env、配置文件和环境变量，并初始化日志
func loadConfig() (*config.Config, error) {
	if dotenvFile != "" {
		if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: load %s: %v", model.ErrInvalidInput, dotenvFile, err)
		}
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// validate 命令行覆盖配置后再统一校验
func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return nil
}
