// Package provider 装配全部数据提供商并提供按名称与能力的访问入口。
// 数据源是闭集：启动时全部构建，运行期不增删。
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"stockquery/pkg/config"
	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
	"stockquery/pkg/provider/datareader"
	"stockquery/pkg/provider/sina"
	"stockquery/pkg/provider/tencent"
	"stockquery/pkg/provider/tushare"
	"stockquery/pkg/provider/yfinance"
)

// QuoteWrapper 行情提供商装饰器，如熔断器
type QuoteWrapper func(core.QuoteProvider) core.QuoteProvider

// Option 注册表构建选项
type Option func(*Registry)

// WithQuoteWrapper 为所有行情提供商套上装饰器
func WithQuoteWrapper(wrap QuoteWrapper) Option {
	return func(r *Registry) {
		r.quoteWrapper = wrap
	}
}

// WithProvider 在构建期以给定实现替换内置数据源，集成测试注入桩时使用。
// 未知数据源的替换被忽略，集合保持闭合。
func WithProvider(source core.Source, p core.Provider) Option {
	return func(r *Registry) {
		if _, ok := r.providers[source]; ok {
			r.providers[source] = p
		}
	}
}

// verdict 单个数据源的可用性结论，惰性探测一次后缓存
type verdict struct {
	once sync.Once
	err  error
}

// Registry 数据源注册表。
// 可用性探测在首次真实使用前执行一次，结论缓存；
// 显式更新凭证会重置对应数据源的结论。
type Registry struct {
	providers map[core.Source]core.Provider
	quotes    map[core.Source]core.QuoteProvider

	mu       sync.Mutex
	verdicts map[core.Source]*verdict

	tushare      *tushare.Provider
	quoteWrapper QuoteWrapper
	log          *logrus.Entry
}

// NewRegistry 构建包含全部数据源的注册表并应用提供商配置
func NewRegistry(cfg *config.Config, opts ...Option) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}

	sinaProvider := sina.NewProvider()
	tencentProvider := tencent.NewProvider()
	tushareProvider := tushare.NewProvider()
	yfinanceProvider := yfinance.NewProvider()
	datareaderProvider := datareader.NewProvider()

	tushareProvider.SetToken(cfg.Provider.TushareToken)

	r := &Registry{
		providers: map[core.Source]core.Provider{
			core.SourceSina:             sinaProvider,
			core.SourceTencent:          tencentProvider,
			core.SourceTushare:          tushareProvider,
			core.SourceYFinance:         yfinanceProvider,
			core.SourcePandasDatareader: datareaderProvider,
		},
		verdicts: make(map[core.Source]*verdict),
		tushare:  tushareProvider,
		log:      logger.WithComponent("Registry"),
	}

	for _, opt := range opts {
		opt(r)
	}

	sinaProvider.SetRateLimit(cfg.Provider.RateLimit)
	tencentProvider.SetRateLimit(cfg.Provider.RateLimit)
	tushareProvider.SetRateLimit(cfg.Provider.RateLimit)
	yfinanceProvider.SetRateLimit(cfg.Provider.RateLimit)
	datareaderProvider.SetRateLimit(cfg.Provider.RateLimit)

	if cfg.Executor.FetchTimeout > 0 {
		sinaProvider.SetTimeout(cfg.Executor.FetchTimeout)
		tencentProvider.SetTimeout(cfg.Executor.FetchTimeout)
		tushareProvider.SetTimeout(cfg.Executor.FetchTimeout)
		yfinanceProvider.SetTimeout(cfg.Executor.FetchTimeout)
		datareaderProvider.SetTimeout(cfg.Executor.FetchTimeout)
	}

	// yfinance 必须保留浏览器 UA，否则被拒
	if cfg.Provider.UserAgent != "" {
		sinaProvider.SetUserAgent(cfg.Provider.UserAgent)
		tencentProvider.SetUserAgent(cfg.Provider.UserAgent)
		tushareProvider.SetUserAgent(cfg.Provider.UserAgent)
		datareaderProvider.SetUserAgent(cfg.Provider.UserAgent)
	}

	r.quotes = make(map[core.Source]core.QuoteProvider, len(r.providers))
	for src, p := range r.providers {
		qp, ok := p.(core.QuoteProvider)
		if !ok {
			continue
		}
		if r.quoteWrapper != nil {
			qp = r.quoteWrapper(qp)
		}
		r.quotes[src] = qp
	}

	return r
}

// ParseSource 解析数据源名称，大小写不敏感
func ParseSource(name string) (core.Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sina":
		return core.SourceSina, nil
	case "tencent":
		return core.SourceTencent, nil
	case "tushare":
		return core.SourceTushare, nil
	case "yfinance":
		return core.SourceYFinance, nil
	case "pandas-datareader", "pandas_datareader", "pdr":
		return core.SourcePandasDatareader, nil
	default:
		return "", core.UnknownSource(name)
	}
}

// Sources 返回全部数据源，顺序固定
func (r *Registry) Sources() []core.Source {
	return []core.Source{
		core.SourceSina,
		core.SourceTencent,
		core.SourceTushare,
		core.SourceYFinance,
		core.SourcePandasDatareader,
	}
}

// Get 按名称取基础提供商
func (r *Registry) Get(source core.Source) (core.Provider, error) {
	p, ok := r.providers[source]
	if !ok {
		return nil, core.UnknownSource(string(source))
	}
	return p, nil
}

// Quote 取行情提供商
func (r *Registry) Quote(source core.Source) (core.QuoteProvider, error) {
	p, ok := r.quotes[source]
	if !ok {
		if _, known := r.providers[source]; known {
			return nil, core.Permanent(source, "quotes not supported by this source", nil)
		}
		return nil, core.UnknownSource(string(source))
	}
	return p, nil
}

// History 取历史数据提供商
func (r *Registry) History(source core.Source) (core.HistoryProvider, error) {
	p, ok := r.providers[source]
	if !ok {
		return nil, core.UnknownSource(string(source))
	}
	hp, ok := p.(core.HistoryProvider)
	if !ok {
		return nil, core.Permanent(source, "history not supported by this source", nil)
	}
	return hp, nil
}

// CompanyInfo 取公司信息提供商
func (r *Registry) CompanyInfo(source core.Source) (core.CompanyInfoProvider, error) {
	p, ok := r.providers[source]
	if !ok {
		return nil, core.UnknownSource(string(source))
	}
	cp, ok := p.(core.CompanyInfoProvider)
	if !ok {
		return nil, core.Permanent(source, "company info not supported by this source", nil)
	}
	return cp, nil
}

// Available 返回数据源的可用性结论。
// 每个数据源最多探测一次，之后直接返回缓存结论。
func (r *Registry) Available(ctx context.Context, source core.Source) error {
	p, ok := r.providers[source]
	if !ok {
		return core.UnknownSource(string(source))
	}

	r.mu.Lock()
	v, ok := r.verdicts[source]
	if !ok {
		v = &verdict{}
		r.verdicts[source] = v
	}
	r.mu.Unlock()

	v.once.Do(func() {
		v.err = p.CheckAvailability(ctx)
		if v.err != nil {
			r.log.Warnf("source %s unavailable: %v", source, v.err)
		}
	})
	return v.err
}

// SetTushareToken 更新 tushare 凭证并重置其可用性结论
func (r *Registry) SetTushareToken(token string) {
	r.tushare.SetToken(token)

	r.mu.Lock()
	delete(r.verdicts, core.SourceTushare)
	r.mu.Unlock()
}

// FallbackChain 返回交易所的数据源回退链，按覆盖质量排序
func FallbackChain(ex core.Exchange) []core.Source {
	switch ex {
	case core.ExchangeSH, core.ExchangeSZ:
		return []core.Source{core.SourceSina, core.SourceTencent, core.SourceTushare}
	case core.ExchangeUS, core.ExchangeHK:
		return []core.Source{core.SourceYFinance, core.SourcePandasDatareader}
	default:
		return nil
	}
}

// Close 关闭全部提供商，聚合清理错误
func (r *Registry) Close() error {
	var errs []error
	for src, p := range r.providers {
		if closable, ok := p.(core.Closable); ok {
			if err := closable.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close provider '%s': %w", src, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors occurred while closing providers: %v", errs)
	}
	return nil
}
