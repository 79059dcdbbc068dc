package core

import (
	"errors"
	"fmt"
	"strings"
)

// Code 错误分类代码
type Code string

const (
	CodeInvalidSymbol     Code = "invalid_symbol"     // 无法识别的代码形态
	CodeAmbiguousSymbol   Code = "ambiguous_symbol"   // 无法推断交易所的裸6位代码
	CodeUnknownSource     Code = "unknown_source"     // 未注册的数据源名称
	CodeCredentialMissing Code = "credential_missing" // 缺少访问凭证
	CodeTransient         Code = "transient_provider" // 瞬时失败，本地重试
	CodePermanent         Code = "permanent_provider" // 永久失败，不重试
	CodeAllSourcesFailed  Code = "all_sources_failed" // 回退链全部失败
	CodeDeadlineExceeded  Code = "deadline_exceeded"  // 总体截止时间已到
)

// Error 带分类代码的领域错误
type Error struct {
	Code    Code   `json:"code"`
	Source  string `json:"source,omitempty"` // 产生错误的提供商，可为空
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Source != "" {
		b.WriteString(" [")
		b.WriteString(e.Source)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap 支持错误链
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按分类代码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError 创建领域错误
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError 包装一个底层错误
func WrapError(code Code, source, message string, cause error) *Error {
	return &Error{Code: code, Source: source, Message: message, Cause: cause}
}

// InvalidSymbol 无法识别的代码形态
func InvalidSymbol(raw, reason string) *Error {
	return &Error{
		Code:    CodeInvalidSymbol,
		Message: fmt.Sprintf("invalid symbol %q: %s", raw, reason),
	}
}

// AmbiguousSymbol 无法推断交易所
func AmbiguousSymbol(raw string) *Error {
	return &Error{
		Code:    CodeAmbiguousSymbol,
		Message: fmt.Sprintf("ambiguous symbol %q: exchange cannot be inferred, use sh/sz prefix or .SS/.SZ suffix", raw),
	}
}

// UnknownSource 未注册的数据源
func UnknownSource(name string) *Error {
	return &Error{
		Code:    CodeUnknownSource,
		Message: fmt.Sprintf("unknown source %q", name),
	}
}

// CredentialMissing 缺少凭证
func CredentialMissing(source Source, detail string) *Error {
	return &Error{
		Code:    CodeCredentialMissing,
		Source:  string(source),
		Message: detail,
	}
}

// Transient 瞬时失败
func Transient(source Source, message string, cause error) *Error {
	return &Error{Code: CodeTransient, Source: string(source), Message: message, Cause: cause}
}

// Permanent 永久失败
func Permanent(source Source, message string, cause error) *Error {
	return &Error{Code: CodePermanent, Source: string(source), Message: message, Cause: cause}
}

// DeadlineExceeded 总体截止时间已到
func DeadlineExceeded(message string, cause error) *Error {
	return &Error{Code: CodeDeadlineExceeded, Message: message, Cause: cause}
}

// SourceFailure 单个提供商的最终失败
type SourceFailure struct {
	Source Source `json:"source"`
	Err    error  `json:"-"`
}

// AllSourcesFailedError 回退链耗尽，聚合各提供商的最后一个错误
type AllSourcesFailedError struct {
	Symbol   string
	Failures []SourceFailure
}

func (e *AllSourcesFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Source, f.Err))
	}
	return fmt.Sprintf("all sources failed for %s (%s)", e.Symbol, strings.Join(parts, "; "))
}

// Is 允许 errors.Is 按分类代码匹配
func (e *AllSourcesFailedError) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Code == CodeAllSourcesFailed
	}
	_, ok := target.(*AllSourcesFailedError)
	return ok
}

// CodeOf 提取错误的分类代码，无法识别时返回空串
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var agg *AllSourcesFailedError
	if errors.As(err, &agg) {
		return CodeAllSourcesFailed
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient 判断是否为瞬时失败
func IsTransient(err error) bool {
	return CodeOf(err) == CodeTransient
}

// IsPermanent 判断是否为永久失败
func IsPermanent(err error) bool {
	return CodeOf(err) == CodePermanent
}
