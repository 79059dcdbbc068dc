package timing

import (
	"time"
)

// Clock 提供时间接口，用于mock测试
// 重试退避与限速等待都通过它取时间，保证时序逻辑可测
type Clock interface {
	// Now 返回当前时间
	Now() time.Time

	// After 返回一个在等待 d 之后收到时间的通道
	After(d time.Duration) <-chan time.Time
}

// SystemClock 使用系统实际时间
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Default 返回系统时钟
func Default() Clock {
	return SystemClock{}
}
