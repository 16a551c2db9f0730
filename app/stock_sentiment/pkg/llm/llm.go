package llm

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// Prompt 一次模型调用的输入
type Prompt struct {
	System string
	User   string
	// SchemaHint 期望的输出结构描述，支持结构化输出的 provider 可以使用
	SchemaHint string
}

// Completer 语言模型调用接口，返回原始文本，解析由调用方负责
type Completer interface {
	// Name provider 名称
	Name() string
	// Model 模型标识，参与缓存键
	Model() string
	// Complete 失败时返回 *model.UpstreamError
	Complete(ctx context.Context, p Prompt) (string, error)
}

var statusCodeRe = regexp.MustCompile(`(?i)status(?: code)?:? (\d{3})\b`)

// NewUpstreamError 根据状态码和错误类型判断是否可重试
func NewUpstreamError(provider string, statusCode int, err error) *model.UpstreamError {
	return &model.UpstreamError{
		Provider:   provider,
		StatusCode: statusCode,
		Transient:  isTransient(statusCode, err),
		Err:        err,
	}
}

// NormalizeError 把 provider 返回的错误统一为 *model.UpstreamError
func NormalizeError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return NewUpstreamError(provider, StatusFromError(err), err)
}

// StatusFromError 从错误信息里提取 HTTP 状态码，取不到时返回 0
func StatusFromError(err error) int {
	msg := err.Error()
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	lower := strings.ToLower(msg)
	// 没有状态码时只认明确的限流措辞，不在任意数字里找 429
	if strings.Contains(lower, "too many requests") || strings.Contains(lower, "rate limit") {
		return 429
	}
	return 0
}

// IsTransientStatus 408、429 和 5xx 可以重试
func IsTransientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

func isTransient(statusCode int, err error) bool {
	if statusCode > 0 {
		return IsTransientStatus(statusCode)
	}
	if err == nil {
		return false
	}
	// 调用方取消不重试；单次调用超时可以重试
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection refused", "connection reset", "eof", "no such host", "overloaded"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
