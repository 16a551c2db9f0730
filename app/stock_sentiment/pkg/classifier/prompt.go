package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/llm"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

const (
	promptFamily = "impact_v1"

	maxTitleLen       = 220
	maxDescriptionLen = 900
	maxReasonLen      = 140

	defaultHorizon = 5
)

const systemPrompt = "You are a precise financial news impact engine. " +
	"Classify the article's expected impact on the price of the stock it is about " +
	"over the next trading days given in horizon_trading_days. " +
	"Use only the provided text. If unclear, choose neutral. " +
	"Return a single JSON object and nothing else."

// schemaHint 期望的回复结构
const schemaHint = `{"impact_direction": "strong_negative|negative|neutral|positive|strong_positive", "confidence": 0.0-1.0, "reason": "<= 20 words"}`

// ClampHorizon 预测窗口限制在 1-5 个交易日
func ClampHorizon(h int) int {
	if h <= 0 {
		return defaultHorizon
	}
	if h > 5 {
		return 5
	}
	return h
}

// PromptVersion prompt 版本，参与缓存键，prompt 变化时必须修改
func PromptVersion(horizon int) string {
	return fmt.Sprintf("%s-h%d", promptFamily, ClampHorizon(horizon))
}

type promptPayload struct {
	HorizonTradingDays int    `json:"horizon_trading_days"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	ResponseFormat     string `json:"response_format"`
}

// BuildPrompt 同一篇文章和窗口总是生成相同的 prompt；不包含 ticker，因为 ticker 不在缓存键中
func BuildPrompt(a model.Article, horizon int) llm.Prompt {
	payload := promptPayload{
		HorizonTradingDays: ClampHorizon(horizon),
		Title:              news.Truncate(collapse(a.Title), maxTitleLen),
		Description:        news.Truncate(collapse(a.Description), maxDescriptionLen),
		ResponseFormat:     schemaHint,
	}
	// 字段顺序固定，Marshal 结果是确定的
	data, _ := json.Marshal(payload)
	return llm.Prompt{
		System:     systemPrompt,
		User:       string(data),
		SchemaHint: schemaHint,
	}
}

// BuildCorrectivePrompt 回复未通过校验时的纠正请求：重复原请求，附上无效回复和错误原因
func BuildCorrectivePrompt(base llm.Prompt, invalidReply string, schemaErr error) llm.Prompt {
	var sb strings.Builder
	sb.WriteString(base.User)
	sb.WriteString("\n\nYour previous reply was invalid.\nPrevious reply:\n")
	sb.WriteString(news.Truncate(invalidReply, 2000))
	sb.WriteString("\nValidation error: ")
	sb.WriteString(schemaErr.Error())
	sb.WriteString("\nReply again with only a JSON object matching: ")
	sb.WriteString(schemaHint)

	return llm.Prompt{
		System:     base.System,
		User:       sb.String(),
		SchemaHint: base.SchemaHint,
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
