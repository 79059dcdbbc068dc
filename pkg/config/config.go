package config

import (
	"errors"
	"os"
	"time"

	"stockquery/pkg/logger"
)

// Config 主配置结构
type Config struct {
	// 执行引擎配置
	Executor ExecutorConfig `json:"executor" mapstructure:"executor"`

	// 提供商配置
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// 日志配置
	Logger logger.Config `json:"logger" mapstructure:"logger"`
}

// ExecutorConfig 重试与回退执行引擎配置
type ExecutorConfig struct {
	MaxRetries       int           `json:"max_retries" mapstructure:"max_retries"`             // 首次调用之外的最大重试次数
	BackoffBase      time.Duration `json:"backoff_base" mapstructure:"backoff_base"`           // 首次退避时长
	BackoffMax       time.Duration `json:"backoff_max" mapstructure:"backoff_max"`             // 退避时长上限
	FetchTimeout     time.Duration `json:"fetch_timeout" mapstructure:"fetch_timeout"`         // 单次网络抓取超时
	BatchConcurrency int           `json:"batch_concurrency" mapstructure:"batch_concurrency"` // 批量请求并发上限
	QuoteFallback    bool          `json:"quote_fallback" mapstructure:"quote_fallback"`       // 单笔行情默认启用回退
	HistoryFallback  bool          `json:"history_fallback" mapstructure:"history_fallback"`   // 历史数据默认关闭回退
	CompanyFallback  bool          `json:"company_fallback" mapstructure:"company_fallback"`   // 公司信息默认关闭回退
}

// ProviderConfig 数据提供商配置
type ProviderConfig struct {
	UserAgent    string        `json:"user_agent" mapstructure:"user_agent"`       // HTTP User-Agent
	RateLimit    time.Duration `json:"rate_limit" mapstructure:"rate_limit"`       // 同一提供商两次请求的最小间隔
	TushareToken string        `json:"tushare_token" mapstructure:"tushare_token"` // Tushare 凭证，缺省取 TUSHARE_TOKEN 环境变量
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Executor: ExecutorConfig{
			MaxRetries:       3,
			BackoffBase:      1 * time.Second,
			BackoffMax:       8 * time.Second,
			FetchTimeout:     10 * time.Second,
			BatchConcurrency: 5,
			QuoteFallback:    true,
			HistoryFallback:  false,
			CompanyFallback:  false,
		},
		Provider: ProviderConfig{
			UserAgent:    "stockquery/1.0",
			RateLimit:    200 * time.Millisecond,
			TushareToken: os.Getenv("TUSHARE_TOKEN"),
		},
		Logger: logger.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Executor.MaxRetries < 0 {
		return errors.New("executor max_retries cannot be negative")
	}

	if c.Executor.BackoffBase <= 0 {
		return errors.New("executor backoff_base must be positive")
	}

	if c.Executor.BackoffMax < c.Executor.BackoffBase {
		return errors.New("executor backoff_max must be >= backoff_base")
	}

	if c.Executor.FetchTimeout <= 0 {
		return errors.New("executor fetch_timeout must be positive")
	}

	if c.Executor.BatchConcurrency <= 0 {
		return errors.New("executor batch_concurrency must be positive")
	}

	if c.Provider.UserAgent == "" {
		return errors.New("provider user_agent cannot be empty")
	}

	if c.Provider.RateLimit < 0 {
		return errors.New("provider rate_limit cannot be negative")
	}

	return nil
}

// SetFetchTimeout 设置单次抓取超时
func (c *Config) SetFetchTimeout(timeout time.Duration) *Config {
	c.Executor.FetchTimeout = timeout
	return c
}

// SetMaxRetries 设置最大重试次数
func (c *Config) SetMaxRetries(retries int) *Config {
	c.Executor.MaxRetries = retries
	return c
}

// SetRateLimit 设置提供商请求间隔
func (c *Config) SetRateLimit(limit time.Duration) *Config {
	c.Provider.RateLimit = limit
	return c
}

// SetTushareToken 设置 Tushare 凭证
func (c *Config) SetTushareToken(token string) *Config {
	c.Provider.TushareToken = token
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}
