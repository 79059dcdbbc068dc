// Package stock 将符号解析、数据源注册表与执行引擎装配为行情服务。
// 记录型方法返回规范记录与 Go 错误；字符串型操作（tools.go）把
// 预期失败渲染进返回文本，调用方通过 ctx 施加总体截止时间。
package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stockquery/pkg/catalog"
	"stockquery/pkg/config"
	"stockquery/pkg/executor"
	"stockquery/pkg/format"
	"stockquery/pkg/logger"
	"stockquery/pkg/monitor"
	"stockquery/pkg/provider"
	"stockquery/pkg/provider/core"
	"stockquery/pkg/symbol"
)

const defaultHistoryCount = 100

var errNilContext = errors.New("nil context")

// Service 行情服务门面
type Service struct {
	cfg      *config.Config
	registry *provider.Registry
	exec     *executor.Executor
	recorder monitor.Recorder
	regOpts  []provider.Option
	log      *logrus.Entry
}

// Option 服务构建选项
type Option func(*Service)

// WithRecorder 注入请求度量记录器，记录器的生命周期由调用方管理
func WithRecorder(rec monitor.Recorder) Option {
	return func(s *Service) {
		s.recorder = rec
	}
}

// WithRegistryOptions 透传注册表构建选项，如行情装饰器
func WithRegistryOptions(opts ...provider.Option) Option {
	return func(s *Service) {
		s.regOpts = append(s.regOpts, opts...)
	}
}

// New 按配置装配服务，nil 配置取默认值
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		recorder: monitor.NullRecorder{},
		log:      logger.WithComponent("StockService"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = provider.NewRegistry(cfg, s.regOpts...)
	s.exec = executor.New(cfg.Executor,
		executor.WithRecorder(s.recorder),
		executor.WithAvailability(s.registry),
	)
	return s, nil
}

// Quote 获取单只证券的实时行情记录。
// source 为空取 sina；主选数据源失败且配置允许时按覆盖链回退。
func (s *Service) Quote(ctx context.Context, rawSymbol, sourceName string) (*core.QuoteRecord, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	sym, err := symbol.Parse(rawSymbol)
	if err != nil {
		return nil, err
	}
	src, err := resolveSource(sourceName)
	if err != nil {
		return nil, err
	}

	res, err := s.exec.Execute(ctx, s.quotePlan(sym, src))
	if err != nil {
		return nil, err
	}
	rec, ok := res.Value.(*core.QuoteRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected quote result type %T", res.Value)
	}
	canonicalizeQuote(rec, sym, res.Source)
	return rec, nil
}

// QuoteBatch 批量获取行情，条目与输入顺序一一对应。
// 单个符号的解析或抓取失败记录在对应条目上，不影响其余条目。
func (s *Service) QuoteBatch(ctx context.Context, symbols []string, sourceName string) ([]format.BatchEntry, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	src, err := resolveSource(sourceName)
	if err != nil {
		return nil, err
	}

	s.log.WithField("count", len(symbols)).Debug("batch quote request")

	entries := make([]format.BatchEntry, len(symbols))
	var plans []executor.Plan
	var slots []int
	var syms []symbol.Symbol
	for i, raw := range symbols {
		entries[i].Symbol = strings.TrimSpace(raw)
		sym, err := symbol.Parse(raw)
		if err != nil {
			entries[i].Err = err
			continue
		}
		entries[i].Symbol = sym.String()
		plans = append(plans, s.quotePlan(sym, src))
		slots = append(slots, i)
		syms = append(syms, sym)
	}

	for j, item := range s.exec.ExecuteBatch(ctx, plans) {
		i := slots[j]
		if item.Err != nil {
			entries[i].Err = item.Err
			continue
		}
		rec, ok := item.Result.Value.(*core.QuoteRecord)
		if !ok {
			entries[i].Err = fmt.Errorf("unexpected quote result type %T", item.Result.Value)
			continue
		}
		canonicalizeQuote(rec, syms[j], item.Result.Source)
		entries[i].Record = rec
	}
	return entries, nil
}

// History 获取历史K线。数据源按交易所覆盖链自动选择，
// 不支持所需周期的提供商在组装计划时直接跳过。
func (s *Service) History(ctx context.Context, rawSymbol, periodName, startDate, endDate string, count int) (*core.HistoryRecord, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	sym, err := symbol.Parse(rawSymbol)
	if err != nil {
		return nil, err
	}
	period, ok := core.ParsePeriod(periodName)
	if !ok {
		return nil, fmt.Errorf("unknown period '%s' (expected daily, weekly or monthly)", periodName)
	}
	req, err := historyRequest(period, startDate, endDate, count)
	if err != nil {
		return nil, err
	}

	res, err := s.exec.Execute(ctx, s.historyPlan(sym, req))
	if err != nil {
		return nil, err
	}
	rec, ok := res.Value.(*core.HistoryRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected history result type %T", res.Value)
	}
	rec.Symbol = sym.String()
	if rec.Source == "" {
		rec.Source = string(res.Source)
	}
	return rec, nil
}

// Company 获取公司信息，取覆盖链中首个提供公司信息的数据源
func (s *Service) Company(ctx context.Context, rawSymbol string) (*core.CompanyRecord, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	sym, err := symbol.Parse(rawSymbol)
	if err != nil {
		return nil, err
	}

	res, err := s.exec.Execute(ctx, s.companyPlan(sym))
	if err != nil {
		return nil, err
	}
	rec, ok := res.Value.(*core.CompanyRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected company info result type %T", res.Value)
	}
	rec.Symbol = sym.String()
	if rec.Source == "" {
		rec.Source = string(res.Source)
	}
	return rec, nil
}

// Search 在内置名录中按代码或名称检索证券
func (s *Service) Search(query, market string) ([]core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query cannot be empty")
	}
	if !catalog.ValidMarket(market) {
		return nil, fmt.Errorf("unknown market '%s' (expected all, cn, us or hk)", market)
	}
	return catalog.Search(query, market), nil
}

// SetTushareToken 注入 tushare 凭证并重置其可用性结论
func (s *Service) SetTushareToken(token string) {
	s.registry.SetTushareToken(token)
}

// Close 释放全部提供商资源。注入的度量记录器由调用方自行关闭。
func (s *Service) Close() error {
	return s.registry.Close()
}

// quotePlan 组装行情执行计划：主选数据源优先，其余按覆盖链排列
func (s *Service) quotePlan(sym symbol.Symbol, primary core.Source) executor.Plan {
	order := sourceOrder(sym.Exchange, primary)
	cands := make([]executor.Candidate, 0, len(order))
	for _, src := range order {
		cands = append(cands, s.quoteCandidate(sym, src))
	}
	return executor.Plan{
		Operation:     "quote",
		Symbol:        sym.String(),
		Candidates:    cands,
		AllowFallback: s.cfg.Executor.QuoteFallback,
	}
}

// quoteCandidate 构造单个候选。主选数据源不覆盖该交易所时
// 候选立即失败，执行轨迹里保留一次可见的切换。
func (s *Service) quoteCandidate(sym symbol.Symbol, src core.Source) executor.Candidate {
	psym, err := sym.ForSource(src)
	if err != nil {
		return failingCandidate(src, sym.String(), err)
	}
	qp, err := s.registry.Quote(src)
	if err != nil {
		return failingCandidate(src, sym.String(), err)
	}
	return executor.Candidate{
		Source: src,
		Symbol: psym,
		Call: func(ctx context.Context) (interface{}, error) {
			return qp.FetchQuote(ctx, psym)
		},
	}
}

func (s *Service) historyPlan(sym symbol.Symbol, req core.HistoryRequest) executor.Plan {
	var cands []executor.Candidate
	for _, src := range provider.FallbackChain(sym.Exchange) {
		hp, err := s.registry.History(src)
		if err != nil {
			continue
		}
		if !supportsPeriod(hp, req.Period) {
			continue
		}
		psym, err := sym.ForSource(src)
		if err != nil {
			continue
		}
		cands = append(cands, executor.Candidate{
			Source: src,
			Symbol: psym,
			Call: func(ctx context.Context) (interface{}, error) {
				return hp.FetchHistory(ctx, psym, req)
			},
		})
	}
	return executor.Plan{
		Operation:     "history",
		Symbol:        sym.String(),
		Candidates:    cands,
		AllowFallback: s.cfg.Executor.HistoryFallback,
	}
}

func (s *Service) companyPlan(sym symbol.Symbol) executor.Plan {
	var cands []executor.Candidate
	for _, src := range provider.FallbackChain(sym.Exchange) {
		cp, err := s.registry.CompanyInfo(src)
		if err != nil {
			continue
		}
		psym, err := sym.ForSource(src)
		if err != nil {
			continue
		}
		cands = append(cands, executor.Candidate{
			Source: src,
			Symbol: psym,
			Call: func(ctx context.Context) (interface{}, error) {
				return cp.FetchCompanyInfo(ctx, psym)
			},
		})
	}
	return executor.Plan{
		Operation:     "company_info",
		Symbol:        sym.String(),
		Candidates:    cands,
		AllowFallback: s.cfg.Executor.CompanyFallback,
	}
}

func failingCandidate(src core.Source, display string, err error) executor.Candidate {
	return executor.Candidate{
		Source: src,
		Symbol: display,
		Call: func(ctx context.Context) (interface{}, error) {
			return nil, err
		},
	}
}

// sourceOrder 主选数据源优先，其余按交易所覆盖链排列
func sourceOrder(ex core.Exchange, primary core.Source) []core.Source {
	order := []core.Source{primary}
	for _, src := range provider.FallbackChain(ex) {
		if src != primary {
			order = append(order, src)
		}
	}
	return order
}

// resolveSource 解析数据源名称，空串取默认的 sina
func resolveSource(name string) (core.Source, error) {
	if strings.TrimSpace(name) == "" {
		return core.SourceSina, nil
	}
	return provider.ParseSource(name)
}

// canonicalizeQuote 把提供商方言记录修整为规范显示形式
func canonicalizeQuote(rec *core.QuoteRecord, sym symbol.Symbol, won core.Source) {
	rec.Symbol = sym.String()
	if rec.Currency == "" {
		rec.Currency = sym.Currency()
	}
	if rec.Source == "" {
		rec.Source = string(won)
	}
}

// historyRequest 校验并组装历史数据请求参数
func historyRequest(period core.Period, startDate, endDate string, count int) (core.HistoryRequest, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return core.HistoryRequest{}, err
	}
	end, err := parseDate(endDate)
	if err != nil {
		return core.HistoryRequest{}, err
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return core.HistoryRequest{}, fmt.Errorf("start date %s is after end date %s", startDate, endDate)
	}
	if count <= 0 {
		count = defaultHistoryCount
	}
	return core.HistoryRequest{Period: period, Start: start, End: end, Count: count}, nil
}

// parseDate 解析 YYYY-MM-DD 或 YYYYMMDD 日期，空串表示不限
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
}

func supportsPeriod(hp core.HistoryProvider, period core.Period) bool {
	for _, p := range hp.SupportedPeriods() {
		if p == period {
			return true
		}
	}
	return false
}
