// Package limiter 负责失败分类与重试退避策略。
// 瞬时失败（超时、429/503、限流信号）本地重试，
// 永久失败（无效代码、404、响应结构不符）立即放弃。
package limiter

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"stockquery/pkg/provider/core"
)

// FailureClass 失败类别
type FailureClass int

const (
	ClassTransient FailureClass = iota // 瞬时失败，可重试
	ClassPermanent                     // 永久失败，不重试
)

func (c FailureClass) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "permanent"
}

// Classify 判定错误的失败类别。
// 先看领域错误代码，再看网络错误类型，最后按错误文本匹配；
// 无法归类的错误按永久处理，不做盲目重试。
func Classify(err error) FailureClass {
	if err == nil {
		return ClassPermanent
	}

	switch core.CodeOf(err) {
	case core.CodeTransient:
		return ClassTransient
	case core.CodePermanent, core.CodeInvalidSymbol, core.CodeAmbiguousSymbol,
		core.CodeUnknownSource, core.CodeCredentialMissing, core.CodeAllSourcesFailed,
		core.CodeDeadlineExceeded:
		return ClassPermanent
	}

	// 单次抓取超时按瞬时处理，进入重试
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "connection reset"):
		return ClassTransient
	}

	return ClassPermanent
}

// RetryPolicy 重试策略：首次调用失败后最多重试 MaxRetries 次，
// 退避时长按次数翻倍（Base, 2*Base, 4*Base, ...）并以 Max 封顶。
type RetryPolicy struct {
	MaxRetries int           // 首次调用之外的最大重试次数
	Base       time.Duration // 首次退避时长
	Max        time.Duration // 退避时长上限
}

// DefaultRetryPolicy 默认策略：3次重试，退避 1s/2s/4s，上限 8s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Base:       1 * time.Second,
		Max:        8 * time.Second,
	}
}

// Backoff 返回第 retry 次重试（从0计）前的等待时长
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	d := p.Base
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// ShouldRetry 判定一次失败之后是否继续重试及等待多久。
// attempt 为已完成的调用次数（首次调用后为1）。
func (p RetryPolicy) ShouldRetry(err error, attempt int) (bool, time.Duration) {
	if Classify(err) != ClassTransient {
		return false, 0
	}
	retry := attempt - 1 // 第 attempt 次调用失败后进行第 attempt 次重试
	if retry >= p.MaxRetries {
		return false, 0
	}
	return true, p.Backoff(retry)
}
