package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/conf"
	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/data"
	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/server"
	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/service"
	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/usecase"
)

// initApp 手动组装依赖：engine -> repo -> usecase -> service -> http server
func initApp(confServer *conf.Server, confSentiment *conf.Sentiment, logger log.Logger) (*kratos.App, func(), error) {
	eng, cleanup, err := server.NewSentimentEngine(confSentiment, logger)
	if err != nil {
		return nil, nil, err
	}

	historyRepo := data.NewHistoryRepo(eng.Recorder(), logger)
	uc := usecase.NewSentimentUseCase(eng, historyRepo, logger)
	svc := service.NewSentimentService(uc, logger)
	hs := server.NewHTTPServer(confServer, svc, logger)

	return newApp(logger, hs), cleanup, nil
}

func newApp(logger log.Logger, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
	)
}
