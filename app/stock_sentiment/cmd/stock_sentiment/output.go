package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func render(w io.Writer, r *model.AggregateResult, format string, verbose, includeArticles bool) error {
	if format == formatJSON {
		return renderJSON(w, r, includeArticles)
	}
	return renderText(w, r, verbose)
}

func renderJSON(w io.Writer, r *model.AggregateResult, includeArticles bool) error {
	out := *r
	if !includeArticles {
		out.Articles = nil
	}
	data, err := sonic.ConfigStd.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// renderText 单行摘要，verbose 时逐篇输出
func renderText(w io.Writer, r *model.AggregateResult, verbose bool) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s sentiment %+.3f (%s, confidence %.2f) signal=%s articles=%d/%d source=%s window=%dd as_of=%s",
		r.StockSymbol, r.Score, r.DisplayLabel(), r.Confidence, r.Signal,
		r.ClassifiedCount, r.ArticleCount, r.SourceUsed, r.LookbackDays,
		r.AsOf.UTC().Format("2006-01-02T15:04Z"))
	if r.CacheHits > 0 {
		fmt.Fprintf(&sb, " cache_hits=%d", r.CacheHits)
	}
	if r.Partial {
		sb.WriteString(" (partial)")
	}
	sb.WriteByte('\n')

	if verbose {
		byID := make(map[string]model.Article, len(r.Articles))
		for _, a := range r.Articles {
			byID[a.ID] = a
		}
		for _, c := range r.PerArticle {
			a := byID[c.ArticleFingerprint]
			line := fmt.Sprintf("  %+.2f conf=%.2f %s %s", c.ImpactDirection.Weight(), c.Confidence, c.ImpactDirection, a.Title)
			if a.SourceName != "" {
				line += " (" + a.SourceName + ")"
			}
			if a.URL != "" {
				line += " " + a.URL
			}
			if c.Reason != "" {
				line += " - " + c.Reason
			}
			sb.WriteString(strings.TrimRight(line, " "))
			sb.WriteByte('\n')
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
