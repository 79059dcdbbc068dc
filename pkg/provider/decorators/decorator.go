// Package decorators 行情提供商装饰器。
// 在不改动提供商实现的前提下叠加熔断等横切能力。
package decorators

import (
	"context"

	"stockquery/pkg/provider/core"
)

// QuoteDecorator 行情装饰器接口
type QuoteDecorator interface {
	core.QuoteProvider

	// Base 返回被装饰的基础提供商
	Base() core.QuoteProvider
}

// BaseQuoteDecorator 装饰器基础实现，原样转发全部调用
type BaseQuoteDecorator struct {
	base core.QuoteProvider
}

// NewBaseQuoteDecorator 创建基础装饰器
func NewBaseQuoteDecorator(base core.QuoteProvider) *BaseQuoteDecorator {
	return &BaseQuoteDecorator{base: base}
}

// Name 实现 Provider 接口
func (d *BaseQuoteDecorator) Name() string {
	return d.base.Name()
}

// Capability 实现 Provider 接口
func (d *BaseQuoteDecorator) Capability() core.Capability {
	return d.base.Capability()
}

// CheckAvailability 实现 Provider 接口
func (d *BaseQuoteDecorator) CheckAvailability(ctx context.Context) error {
	return d.base.CheckAvailability(ctx)
}

// FetchQuote 实现 QuoteProvider 接口
func (d *BaseQuoteDecorator) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	return d.base.FetchQuote(ctx, providerSymbol)
}

// Base 实现 QuoteDecorator 接口
func (d *BaseQuoteDecorator) Base() core.QuoteProvider {
	return d.base
}

// Chain 装饰器链，按添加顺序由内向外包裹
type Chain struct {
	wrappers []func(core.QuoteProvider) core.QuoteProvider
}

// NewChain 创建装饰器链
func NewChain() *Chain {
	return &Chain{}
}

// Add 追加一层装饰器
func (c *Chain) Add(wrap func(core.QuoteProvider) core.QuoteProvider) *Chain {
	c.wrappers = append(c.wrappers, wrap)
	return c
}

// Apply 将装饰器链应用到基础提供商
func (c *Chain) Apply(base core.QuoteProvider) core.QuoteProvider {
	p := base
	for _, wrap := range c.wrappers {
		p = wrap(p)
	}
	return p
}

var _ QuoteDecorator = (*BaseQuoteDecorator)(nil)
