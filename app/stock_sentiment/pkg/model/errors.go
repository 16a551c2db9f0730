package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceUnavailable 新闻源不可用，auto 模式下可回退
	ErrSourceUnavailable = errors.New("news source unavailable")
	// ErrNoArticlesFound 没有可分析的文章，整个运行失败
	ErrNoArticlesFound = errors.New("no articles found")
	// ErrSchema 模型有回复但未通过校验
	ErrSchema = errors.New("model reply failed validation")
	// ErrUpstream 模型服务的网络、鉴权或限流错误
	ErrUpstream = errors.New("model provider error")
	// ErrCacheCorruption 缓存记录损坏，只在内部使用，按未命中处理
	ErrCacheCorruption = errors.New("cache entry corrupted")
	// ErrInvalidInput 参数错误
	ErrInvalidInput = errors.New("invalid input")
)

// SourceError 某个新闻源的失败
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrSourceUnavailable }

// NewSourceError 包装新闻源错误
func NewSourceError(source string, err error) error {
	return &SourceError{Source: source, Err: err}
}

// SourcesExhaustedError 所有候选新闻源都不可用
type SourcesExhaustedError struct {
	Errors []error
}

func (e *SourcesExhaustedError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "all news sources unavailable: " + strings.Join(msgs, "; ")
}

func (e *SourcesExhaustedError) Is(target error) bool { return target == ErrSourceUnavailable }

func (e *SourcesExhaustedError) Unwrap() []error { return e.Errors }

// SchemaError 模型回复不符合约定结构
type SchemaError struct {
	Reply  string
	Reason string
}

func (e *SchemaError) Error() string {
	return "schema error: " + e.Reason
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// UpstreamError 模型服务错误，Transient 表示可以重试
type UpstreamError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// IsTransient 判断错误是否为可重试的上游错误
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	return false
}
