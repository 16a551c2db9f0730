package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitConfig    = 2
	exitCancelled = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(ctx, err)
	if err != nil {
		if code == exitCancelled {
			fmt.Fprintln(os.Stderr, "Cancelled.")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	stop()
	os.Exit(code)
}

// exitCode 配置错误和无法回退的新闻源错误返回 2，取消返回 130，其他错误返回 1
func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return exitOK
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrSourceUnavailable):
		return exitConfig
	default:
		return exitFailure
	}
}
