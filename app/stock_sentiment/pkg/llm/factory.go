package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// NewCompleter 根据配置创建 Completer
func NewCompleter(ctx context.Context, cfg *config.Config) (Completer, error) {
	timeout := time.Duration(cfg.Classifier.CallTimeout) * time.Second

	switch cfg.LLM.Provider {
	case "", "openai":
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("%w: llm api key is missing (set OPENAI_API_KEY)", model.ErrInvalidInput)
		}
		return NewOpenAI(ctx, OpenAIConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLMTemperature(),
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     timeout,
		})
	case "anthropic":
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("%w: llm api key is missing (set ANTHROPIC_API_KEY)", model.ErrInvalidInput)
		}
		return NewAnthropic(AnthropicConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLMTemperature(),
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider: %s", model.ErrInvalidInput, cfg.LLM.Provider)
	}
}
