package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
)

// AnthropicConfig Anthropic 配置
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Anthropic 通过 Messages API 调用 Claude
type Anthropic struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

// Ensure Anthropic implements Completer
var _ Completer = (*Anthropic)(nil)

// NewAnthropic 创建 Anthropic Completer，重试由分类器负责，SDK 内部重试关闭
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   maxTokens,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Model() string { return a.model }

// Complete implements Completer
func (a *Anthropic) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		System: []anthropic.TextBlockParam{
			{Text: p.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", NewUpstreamError(a.Name(), apiErr.StatusCode, err)
		}
		return "", NormalizeError(a.Name(), err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", NewUpstreamError(a.Name(), 0, fmt.Errorf("no response from anthropic"))
	}
	logger.L().Debugf("模型回复 [%s]: %s", a.model, sb.String())
	return sb.String(), nil
}
