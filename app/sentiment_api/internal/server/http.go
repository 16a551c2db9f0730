package server

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/conf"
	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/service"
)

func NewHTTPServer(c *conf.Server, s *service.SentimentService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c != nil && c.Http != nil {
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != "" {
			if d, err := time.ParseDuration(c.Http.Timeout); err == nil {
				opts = append(opts, http.Timeout(d))
			}
		}
	}

	srv := http.NewServer(opts...)
	srv.HandleFunc("/api/v1/sentiment", s.GetSentiment)
	srv.HandleFunc("/api/v1/history", s.ListHistory)
	srv.HandleFunc("/health", s.Health)
	return srv
}
