package core

import (
	"context"
)

// Provider 是所有数据提供商的基础接口。
// 每个提供商声明自身能力（覆盖交易所、编码、凭证需求），
// 并提供一个轻量的可用性探测，探测结果由注册表缓存至进程结束。
type Provider interface {
	// Name 返回提供商名称，例如 "tencent" 或 "sina"。
	Name() string

	// Capability 返回提供商的能力声明。
	Capability() Capability

	// CheckAvailability 轻量同步探测（凭证是否就绪等）。
	// 首次真实使用前由注册表惰性调用一次，结论缓存整个进程生命周期。
	CheckAvailability(ctx context.Context) error
}

// QuoteProvider 实时行情提供商接口。
// providerSymbol 为已按该提供商方言规范化的代码。
type QuoteProvider interface {
	Provider

	// FetchQuote 获取单只证券的实时行情。
	FetchQuote(ctx context.Context, providerSymbol string) (*QuoteRecord, error)
}

// HistoryProvider 历史K线提供商接口。
type HistoryProvider interface {
	Provider

	// FetchHistory 获取历史K线，返回按日期升序、无重复日期的序列。
	FetchHistory(ctx context.Context, providerSymbol string, req HistoryRequest) (*HistoryRecord, error)

	// SupportedPeriods 返回支持的周期列表。
	SupportedPeriods() []Period
}

// CompanyInfoProvider 公司信息提供商接口。
type CompanyInfoProvider interface {
	Provider

	// FetchCompanyInfo 获取公司概况。
	FetchCompanyInfo(ctx context.Context, providerSymbol string) (*CompanyRecord, error)
}

// Closable 需要清理资源的提供商应实现此接口
type Closable interface {
	Close() error
}
