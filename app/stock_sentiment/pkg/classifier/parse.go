package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/news"
)

// Verdict 校验通过的模型回复
type Verdict struct {
	Direction  model.ImpactDirection
	Confidence float64
	Reason     string
}

type rawReply struct {
	ImpactDirection *string          `json:"impact_direction"`
	Confidence      *json.RawMessage `json:"confidence"`
	Reason          *json.RawMessage `json:"reason"`
}

// cleanJSONResponse 去掉 ```json 代码块和 JSON 前后的说明文字
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// ParseReply 严格解析模型回复，任何不符合约定的地方都返回 *model.SchemaError
func ParseReply(reply string) (*Verdict, error) {
	fail := func(format string, args ...any) (*Verdict, error) {
		return nil, &model.SchemaError{Reply: reply, Reason: fmt.Sprintf(format, args...)}
	}

	content := cleanJSONResponse(reply)
	if content == "" {
		return fail("empty reply")
	}
	if !strings.HasPrefix(content, "{") {
		return fail("reply is not a JSON object")
	}

	var raw rawReply
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	if err := dec.Decode(&raw); err != nil {
		return fail("invalid JSON: %v", err)
	}

	if raw.ImpactDirection == nil {
		return fail("missing impact_direction")
	}
	direction, err := model.ParseImpactDirection(*raw.ImpactDirection)
	if err != nil {
		return fail("%v", err)
	}

	if raw.Confidence == nil {
		return fail("missing confidence")
	}
	var confidence float64
	if err := json.Unmarshal(*raw.Confidence, &confidence); err != nil {
		return fail("confidence must be a number, got %s", string(*raw.Confidence))
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
		return fail("confidence %v out of range [0, 1]", confidence)
	}

	var reason string
	if raw.Reason != nil && string(*raw.Reason) != "null" {
		if err := json.Unmarshal(*raw.Reason, &reason); err != nil {
			return fail("reason must be a string")
		}
	}

	return &Verdict{
		Direction:  direction,
		Confidence: confidence,
		Reason:     news.Truncate(collapse(reason), maxReasonLen),
	}, nil
}
