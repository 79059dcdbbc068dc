package timing

import (
	"sync"
	"time"
)

// FakeClock 虚拟时钟，测试用。
// After 立即触发并把虚拟时间前移，同时记录每次请求的等待时长，
// 测试可以通过 Waits 断言退避序列而无需真实等待。
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

// NewFakeClock 创建从 start 开始的虚拟时钟
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	fired := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- fired
	return ch
}

// Advance 手动前移虚拟时间
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Waits 返回所有通过 After 请求过的等待时长
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}
