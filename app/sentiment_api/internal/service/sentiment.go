package service

import (
	nethttp "net/http"
	"strconv"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/stock_sentiment/app/sentiment_api/internal/usecase"
)

type SentimentService struct {
	uc  *usecase.SentimentUseCase
	log *log.Helper
}

func NewSentimentService(uc *usecase.SentimentUseCase, logger log.Logger) *SentimentService {
	return &SentimentService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// GetSentiment GET /api/v1/sentiment?symbol=&days=&max_articles=&source=&no_cache=&include_articles=&include_reasons=
func (s *SentimentService) GetSentiment(w nethttp.ResponseWriter, r *nethttp.Request) {
	q := r.URL.Query()

	days, err := intParam(q.Get("days"))
	if err != nil {
		s.fail(w, r, errors.BadRequest("INVALID_ARGUMENT", "days must be an integer"))
		return
	}
	maxArticles, err := intParam(q.Get("max_articles"))
	if err != nil {
		s.fail(w, r, errors.BadRequest("INVALID_ARGUMENT", "max_articles must be an integer"))
		return
	}

	result, err := s.uc.Analyze(r.Context(), usecase.AnalyzeParams{
		Symbol:          q.Get("symbol"),
		Days:            days,
		MaxArticles:     maxArticles,
		Source:          q.Get("source"),
		NoCache:         boolParam(q.Get("no_cache")),
		IncludeArticles: boolParam(q.Get("include_articles")),
		IncludeReasons:  boolParam(q.Get("include_reasons")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, result)
}

// ListHistory GET /api/v1/history?symbol=&limit=
func (s *SentimentService) ListHistory(w nethttp.ResponseWriter, r *nethttp.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.fail(w, r, errors.BadRequest("INVALID_ARGUMENT", "limit must be an integer"))
		return
	}

	runs, err := s.uc.History(r.Context(), q.Get("symbol"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, map[string]any{"runs": runs})
}

// Health GET /health
func (s *SentimentService) Health(w nethttp.ResponseWriter, r *nethttp.Request) {
	s.ok(w, r, map[string]string{"status": "ok"})
}

func (s *SentimentService) ok(w nethttp.ResponseWriter, r *nethttp.Request, v any) {
	if err := http.DefaultResponseEncoder(w, r, v); err != nil {
		s.log.Errorf("encode response failed: %v", err)
	}
}

func (s *SentimentService) fail(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
	http.DefaultErrorEncoder(w, r, err)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func boolParam(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
