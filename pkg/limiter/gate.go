package limiter

import (
	"context"
	"sync"
	"time"

	"stockquery/pkg/timing"
)

// Gate 最小请求间隔限制。
// 每个提供商实例持有一个，批量工作协程并发访问同一提供商时在锁下共享。
type Gate struct {
	mu    sync.Mutex
	min   time.Duration
	last  time.Time
	clock timing.Clock
}

// NewGate 创建间隔为 min 的限速闸
func NewGate(min time.Duration, clock timing.Clock) *Gate {
	if clock == nil {
		clock = timing.Default()
	}
	return &Gate{min: min, clock: clock}
}

// Wait 阻塞直到距上次放行至少经过最小间隔。
// 等待期间 ctx 取消则提前返回 ctx 错误。
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := g.clock.Now()
	wait := time.Duration(0)
	if !g.last.IsZero() {
		if elapsed := now.Sub(g.last); elapsed < g.min {
			wait = g.min - elapsed
		}
	}
	g.last = now.Add(wait)
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.clock.After(wait):
		return nil
	}
}

// SetInterval 调整最小间隔
func (g *Gate) SetInterval(min time.Duration) {
	g.mu.Lock()
	g.min = min
	g.mu.Unlock()
}

// Interval 返回当前最小间隔
func (g *Gate) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.min
}
