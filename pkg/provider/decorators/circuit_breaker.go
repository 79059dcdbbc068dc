package decorators

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
)

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name        string        `json:"name" mapstructure:"name"`                   // 熔断器名称
	MaxRequests uint32        `json:"max_requests" mapstructure:"max_requests"`   // 半开状态下放行的请求数
	Interval    time.Duration `json:"interval" mapstructure:"interval"`           // 闭合状态的计数窗口
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`             // 打开状态的持续时间
	ReadyToTrip uint32        `json:"ready_to_trip" mapstructure:"ready_to_trip"` // 触发熔断的连续失败次数
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`             // 是否启用
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "QuoteProvider",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
		Enabled:     true,
	}
}

// CircuitBreakerStats 熔断器请求统计
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	LastFailure        time.Time `json:"last_failure"`
}

// CircuitBreaker 熔断器装饰器。
// 连续失败达到阈值后打开，打开期间请求直接快速失败，
// 超时后进入半开状态试探恢复。
type CircuitBreaker struct {
	*BaseQuoteDecorator

	cb     *gobreaker.CircuitBreaker
	config *CircuitBreakerConfig
	log    *logrus.Entry

	mu    sync.RWMutex
	stats CircuitBreakerStats
}

// NewCircuitBreaker 创建熔断器装饰器
func NewCircuitBreaker(base core.QuoteProvider, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	log := logger.WithComponent("CircuitBreaker")

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("%s(%s)", config.Name, base.Name()),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s state changed: %v -> %v", name, from, to)
		},
	}

	return &CircuitBreaker{
		BaseQuoteDecorator: NewBaseQuoteDecorator(base),
		cb:                 gobreaker.NewCircuitBreaker(settings),
		config:             config,
		log:                log,
	}
}

// Name 返回装饰器名称
func (c *CircuitBreaker) Name() string {
	return fmt.Sprintf("CircuitBreaker(%s)", c.Base().Name())
}

// FetchQuote 经熔断器转发行情请求。
// 打开状态不发起网络调用，返回瞬时错误交由上层回退。
func (c *CircuitBreaker) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	if !c.config.Enabled {
		return c.Base().FetchQuote(ctx, providerSymbol)
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.Base().FetchQuote(ctx, providerSymbol)
	})
	c.recordResult(err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			source := c.Base().Capability().Source
			return nil, core.Transient(source, "circuit breaker open, failing fast", err)
		}
		return nil, err
	}

	record, ok := result.(*core.QuoteRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected circuit breaker result type %T", result)
	}
	return record, nil
}

// recordResult 更新请求统计
func (c *CircuitBreaker) recordResult(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.stats.FailedRequests++
		c.stats.LastFailure = time.Now()
	} else {
		c.stats.SuccessfulRequests++
	}
}

// State 返回熔断器当前状态
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Counts 返回熔断器计数
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

// Stats 返回请求统计快照
func (c *CircuitBreaker) Stats() CircuitBreakerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// IsOpen 熔断器是否处于打开状态
func (c *CircuitBreaker) IsOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}

// SetEnabled 启用或停用熔断器
func (c *CircuitBreaker) SetEnabled(enabled bool) {
	c.config.Enabled = enabled
}

// Status 返回熔断器状态信息，供运维接口展示
func (c *CircuitBreaker) Status() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := c.cb.Counts()

	return map[string]interface{}{
		"base_provider": c.Base().Name(),
		"enabled":       c.config.Enabled,
		"state":         c.cb.State().String(),
		"counts": map[string]interface{}{
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
			"consecutive_failures":  counts.ConsecutiveFailures,
		},
		"stats": map[string]interface{}{
			"total_requests":      c.stats.TotalRequests,
			"successful_requests": c.stats.SuccessfulRequests,
			"failed_requests":     c.stats.FailedRequests,
			"last_failure":        c.stats.LastFailure,
		},
	}
}

var _ QuoteDecorator = (*CircuitBreaker)(nil)
