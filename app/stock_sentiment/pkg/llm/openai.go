package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
)

// OpenAIConfig OpenAI 兼容接口配置
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAI 通过 eino ChatModel 调用 OpenAI 兼容接口
type OpenAI struct {
	chatModel model.BaseChatModel
	model     string
}

// Ensure OpenAI implements Completer
var _ Completer = (*OpenAI)(nil)

// NewOpenAI 创建 OpenAI 兼容的 Completer
func NewOpenAI(ctx context.Context, cfg OpenAIConfig) (*OpenAI, error) {
	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return NewOpenAIWithModel(chatModel, cfg.Model), nil
}

// NewOpenAIWithModel 使用已有的 eino ChatModel
func NewOpenAIWithModel(chatModel model.BaseChatModel, modelName string) *OpenAI {
	return &OpenAI{chatModel: chatModel, model: modelName}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Model() string { return o.model }

// Complete implements Completer
func (o *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: p.System},
		{Role: schema.User, Content: p.User},
	}

	resp, err := o.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", NormalizeError(o.Name(), err)
	}
	if resp == nil {
		return "", NewUpstreamError(o.Name(), 0, fmt.Errorf("empty response"))
	}
	logger.L().Debugf("模型回复 [%s]: %s", o.model, resp.Content)
	return resp.Content, nil
}
