package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load 从配置文件加载配置，环境变量 (前缀 STOCKQUERY_) 覆盖文件值。
// path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("executor.max_retries", defaults.Executor.MaxRetries)
	v.SetDefault("executor.backoff_base", defaults.Executor.BackoffBase)
	v.SetDefault("executor.backoff_max", defaults.Executor.BackoffMax)
	v.SetDefault("executor.fetch_timeout", defaults.Executor.FetchTimeout)
	v.SetDefault("executor.batch_concurrency", defaults.Executor.BatchConcurrency)
	v.SetDefault("executor.quote_fallback", defaults.Executor.QuoteFallback)
	v.SetDefault("executor.history_fallback", defaults.Executor.HistoryFallback)
	v.SetDefault("executor.company_fallback", defaults.Executor.CompanyFallback)
	v.SetDefault("provider.user_agent", defaults.Provider.UserAgent)
	v.SetDefault("provider.rate_limit", defaults.Provider.RateLimit)
	v.SetDefault("provider.tushare_token", defaults.Provider.TushareToken)
	v.SetDefault("logger.level", defaults.Logger.Level)
	v.SetDefault("logger.format", defaults.Logger.Format)

	v.SetEnvPrefix("STOCKQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Tushare 凭证习惯上放在 TUSHARE_TOKEN，不带前缀
	_ = v.BindEnv("provider.tushare_token", "TUSHARE_TOKEN", "STOCKQUERY_PROVIDER_TUSHARE_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
