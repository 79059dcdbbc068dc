package stock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockquery/pkg/config"
	"stockquery/pkg/provider"
	"stockquery/pkg/provider/core"
)

// fakeQuote 可编程的行情数据源桩
type fakeQuote struct {
	name core.Source
	rec  *core.QuoteRecord
	err  error

	mu      sync.Mutex
	calls   int
	lastSym string
}

func (f *fakeQuote) Name() string { return string(f.name) }

func (f *fakeQuote) Capability() core.Capability {
	return core.Capability{Source: f.name, Encoding: "utf-8"}
}

func (f *fakeQuote) CheckAvailability(ctx context.Context) error { return nil }

func (f *fakeQuote) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	f.mu.Lock()
	f.calls++
	f.lastSym = providerSymbol
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.rec != nil {
		clone := *f.rec
		return &clone, nil
	}
	return &core.QuoteRecord{
		Symbol: providerSymbol,
		Name:   "测试证券",
		Price:  core.FloatPtr(10.50),
		Source: string(f.name),
	}, nil
}

// fakeHistory 可编程的历史数据源桩
type fakeHistory struct {
	name    core.Source
	periods []core.Period
	rec     *core.HistoryRecord
	err     error

	mu      sync.Mutex
	calls   int
	lastSym string
	lastReq core.HistoryRequest
}

func (f *fakeHistory) Name() string { return string(f.name) }

func (f *fakeHistory) Capability() core.Capability {
	return core.Capability{Source: f.name, Encoding: "utf-8"}
}

func (f *fakeHistory) CheckAvailability(ctx context.Context) error { return nil }

func (f *fakeHistory) SupportedPeriods() []core.Period { return f.periods }

func (f *fakeHistory) FetchHistory(ctx context.Context, providerSymbol string, req core.HistoryRequest) (*core.HistoryRecord, error) {
	f.mu.Lock()
	f.calls++
	f.lastSym = providerSymbol
	f.lastReq = req
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.rec != nil {
		clone := *f.rec
		return &clone, nil
	}
	return &core.HistoryRecord{
		Symbol: providerSymbol,
		Period: req.Period,
		Source: string(f.name),
		Bars: []core.Bar{
			{Date: "2026-08-20", Open: 10.10, High: 10.50, Low: 10.00, Close: 10.40, Volume: 123450},
		},
	}, nil
}

// fakeCompany 可编程的公司信息数据源桩
type fakeCompany struct {
	name core.Source
	rec  *core.CompanyRecord
	err  error

	mu      sync.Mutex
	calls   int
	lastSym string
}

func (f *fakeCompany) Name() string { return string(f.name) }

func (f *fakeCompany) Capability() core.Capability {
	return core.Capability{Source: f.name, Encoding: "utf-8"}
}

func (f *fakeCompany) CheckAvailability(ctx context.Context) error { return nil }

func (f *fakeCompany) FetchCompanyInfo(ctx context.Context, providerSymbol string) (*core.CompanyRecord, error) {
	f.mu.Lock()
	f.calls++
	f.lastSym = providerSymbol
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.rec != nil {
		clone := *f.rec
		return &clone, nil
	}
	return &core.CompanyRecord{Symbol: providerSymbol, Name: "测试公司", Source: string(f.name)}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Executor.MaxRetries = 0
	cfg.Executor.FetchTimeout = 2 * time.Second
	cfg.Provider.TushareToken = ""
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, opts ...Option) *Service {
	t.Helper()
	svc, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Executor.BatchConcurrency = 0

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_concurrency")
}

func TestService_Quote_Success(t *testing.T) {
	sina := &fakeQuote{name: core.SourceSina, rec: &core.QuoteRecord{
		Symbol: "sh603060",
		Name:   "国检集团",
		Price:  core.FloatPtr(10.52),
		Source: "sina",
	}}
	svc := newTestService(t, testConfig(), WithRegistryOptions(provider.WithProvider(core.SourceSina, sina)))

	rec, err := svc.Quote(context.Background(), "603060.SS", "")
	require.NoError(t, err)

	// 后缀方言输入转为新浪前缀方言调用
	assert.Equal(t, 1, sina.calls)
	assert.Equal(t, "sh603060", sina.lastSym)

	// 输出为规范显示形式，缺失的币种按交易所补齐
	assert.Equal(t, "sh603060", rec.Symbol)
	assert.Equal(t, "CNY", rec.Currency)
	assert.Equal(t, "sina", rec.Source)
}

func TestService_Quote_SourceDialect(t *testing.T) {
	ts := &fakeQuote{name: core.SourceTushare}
	svc := newTestService(t, testConfig(), WithRegistryOptions(provider.WithProvider(core.SourceTushare, ts)))

	rec, err := svc.Quote(context.Background(), "sh603060", "tushare")
	require.NoError(t, err)

	assert.Equal(t, "603060.SH", ts.lastSym)
	assert.Equal(t, "sh603060", rec.Symbol)
}

func TestService_Quote_FallsBack(t *testing.T) {
	sina := &fakeQuote{name: core.SourceSina, err: core.Permanent(core.SourceSina, "symbol not listed", nil)}
	tencent := &fakeQuote{name: core.SourceTencent, rec: &core.QuoteRecord{
		Symbol: "sh603060",
		Name:   "国检集团",
		Price:  core.FloatPtr(10.52),
		Source: "tencent",
	}}
	svc := newTestService(t, testConfig(), WithRegistryOptions(
		provider.WithProvider(core.SourceSina, sina),
		provider.WithProvider(core.SourceTencent, tencent),
	))

	rec, err := svc.Quote(context.Background(), "sh603060", "sina")
	require.NoError(t, err)

	assert.Equal(t, 1, sina.calls)
	assert.Equal(t, 1, tencent.calls)
	assert.Equal(t, "tencent", rec.Source)
}

func TestService_Quote_FallbackDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Executor.QuoteFallback = false

	sina := &fakeQuote{name: core.SourceSina, err: core.Permanent(core.SourceSina, "symbol not listed", nil)}
	tencent := &fakeQuote{name: core.SourceTencent}
	svc := newTestService(t, cfg, WithRegistryOptions(
		provider.WithProvider(core.SourceSina, sina),
		provider.WithProvider(core.SourceTencent, tencent),
	))

	_, err := svc.Quote(context.Background(), "sh603060", "")
	require.Error(t, err)
	assert.Equal(t, core.CodeAllSourcesFailed, core.CodeOf(err))

	// 关闭回退后不触碰后续候选
	assert.Equal(t, 0, tencent.calls)

	var agg *core.AllSourcesFailedError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Failures, 1)
}

func TestService_Quote_UncoveredPrimaryFallsBack(t *testing.T) {
	sina := &fakeQuote{name: core.SourceSina}
	yf := &fakeQuote{name: core.SourceYFinance, rec: &core.QuoteRecord{
		Symbol:   "AAPL",
		Name:     "Apple Inc.",
		Price:    core.FloatPtr(228.90),
		Currency: "USD",
		Source:   "yfinance",
	}}
	svc := newTestService(t, testConfig(), WithRegistryOptions(
		provider.WithProvider(core.SourceSina, sina),
		provider.WithProvider(core.SourceYFinance, yf),
	))

	rec, err := svc.Quote(context.Background(), "AAPL", "sina")
	require.NoError(t, err)

	// 主选数据源不覆盖美股，不产生调用，直接切换到覆盖链
	assert.Equal(t, 0, sina.calls)
	assert.Equal(t, 1, yf.calls)
	assert.Equal(t, "AAPL", yf.lastSym)
	assert.Equal(t, "yfinance", rec.Source)
	assert.Equal(t, "USD", rec.Currency)
}

func TestService_Quote_SkipsUnavailableTushare(t *testing.T) {
	sina := &fakeQuote{name: core.SourceSina, err: core.Permanent(core.SourceSina, "symbol not listed", nil)}
	tencent := &fakeQuote{name: core.SourceTencent, err: core.Permanent(core.SourceTencent, "symbol not listed", nil)}
	svc := newTestService(t, testConfig(), WithRegistryOptions(
		provider.WithProvider(core.SourceSina, sina),
		provider.WithProvider(core.SourceTencent, tencent),
	))

	_, err := svc.Quote(context.Background(), "sh603060", "")
	require.Error(t, err)

	// 无凭证的 tushare 被跳过而非调用失败，聚合错误里保留探测结论
	var agg *core.AllSourcesFailedError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 3)
	assert.Equal(t, core.SourceTushare, agg.Failures[2].Source)
	assert.Equal(t, core.CodeCredentialMissing, core.CodeOf(agg.Failures[2].Err))
}

func TestService_Quote_UsageErrors(t *testing.T) {
	svc := newTestService(t, testConfig())

	_, err := svc.Quote(context.Background(), "603060", "")
	assert.Equal(t, core.CodeAmbiguousSymbol, core.CodeOf(err))

	_, err = svc.Quote(context.Background(), "##", "")
	assert.Equal(t, core.CodeInvalidSymbol, core.CodeOf(err))

	_, err = svc.Quote(context.Background(), "sh603060", "bloomberg")
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))

	_, err = svc.Quote(nil, "sh603060", "")
	assert.ErrorContains(t, err, "nil context")
}

func TestService_QuoteBatch_PartialSuccess(t *testing.T) {
	sina := &fakeQuote{name: core.SourceSina}
	svc := newTestService(t, testConfig(), WithRegistryOptions(provider.WithProvider(core.SourceSina, sina)))

	entries, err := svc.QuoteBatch(context.Background(), []string{"sh603060", "603060", "sz000001"}, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.NotNil(t, entries[0].Record)
	assert.Equal(t, "sh603060", entries[0].Symbol)

	// 非法符号的失败记录在自身条目上，不影响兄弟条目
	assert.Nil(t, entries[1].Record)
	assert.Equal(t, core.CodeAmbiguousSymbol, core.CodeOf(entries[1].Err))
	assert.Equal(t, "603060", entries[1].Symbol)

	assert.NotNil(t, entries[2].Record)
	assert.Equal(t, "sz000001", entries[2].Symbol)
	assert.Equal(t, 2, sina.calls)
}

func TestService_QuoteBatch_UnknownSource(t *testing.T) {
	svc := newTestService(t, testConfig())

	_, err := svc.QuoteBatch(context.Background(), []string{"sh603060"}, "bloomberg")
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))
}

func TestService_History_SelectsCapableSource(t *testing.T) {
	// 覆盖链里新浪不提供历史数据，首个有能力的候选是腾讯
	tencent := &fakeHistory{name: core.SourceTencent, periods: []core.Period{core.PeriodDaily}}
	svc := newTestService(t, testConfig(), WithRegistryOptions(provider.WithProvider(core.SourceTencent, tencent)))

	rec, err := svc.History(context.Background(), "sh603060", "", "2026-01-01", "2026-06-30", 50)
	require.NoError(t, err)

	assert.Equal(t, 1, tencent.calls)
	assert.Equal(t, "sh603060", tencent.lastSym)
	assert.Equal(t, core.PeriodDaily, tencent.lastReq.Period)
	assert.Equal(t, 50, tencent.lastReq.Count)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), tencent.lastReq.Start)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), tencent.lastReq.End)

	assert.Equal(t, "sh603060", rec.Symbol)
	assert.NotEmpty(t, rec.Bars)
}

func TestService_History_FiltersUnsupportedPeriod(t *testing.T) {
	// 腾讯只支持日线，周线请求组装计划时跳过腾讯直接取 tushare
	tencent := &fakeHistory{name: core.SourceTencent, periods: []core.Period{core.PeriodDaily}}
	ts := &fakeHistory{name: core.SourceTushare, periods: []core.Period{core.PeriodDaily, core.PeriodWeekly, core.PeriodMonthly}}
	svc := newTestService(t, testConfig(), WithRegistryOptions(
		provider.WithProvider(core.SourceTencent, tencent),
		provider.WithProvider(core.SourceTushare, ts),
	))

	rec, err := svc.History(context.Background(), "sh603060", "weekly", "", "", 0)
	require.NoError(t, err)

	assert.Equal(t, 0, tencent.calls)
	assert.Equal(t, 1, ts.calls)
	assert.Equal(t, "603060.SH", ts.lastSym)
	assert.Equal(t, core.PeriodWeekly, ts.lastReq.Period)
	assert.Equal(t, 100, ts.lastReq.Count)
	assert.Equal(t, string(core.SourceTushare), rec.Source)
}

func TestService_History_UsageErrors(t *testing.T) {
	svc := newTestService(t, testConfig())

	_, err := svc.History(context.Background(), "sh603060", "hourly", "", "", 0)
	assert.ErrorContains(t, err, "unknown period")

	_, err = svc.History(context.Background(), "sh603060", "", "01/02/2026", "", 0)
	assert.ErrorContains(t, err, "invalid date")

	_, err = svc.History(context.Background(), "sh603060", "", "2026-06-30", "2026-01-01", 0)
	assert.ErrorContains(t, err, "after end date")
}

func TestService_Company(t *testing.T) {
	sina := &fakeCompany{name: core.SourceSina, rec: &core.CompanyRecord{
		Symbol:   "sh603060",
		Name:     "国检集团",
		Industry: "检测服务",
		Source:   "sina",
	}}
	svc := newTestService(t, testConfig(), WithRegistryOptions(provider.WithProvider(core.SourceSina, sina)))

	rec, err := svc.Company(context.Background(), "603060.SS")
	require.NoError(t, err)

	assert.Equal(t, 1, sina.calls)
	assert.Equal(t, "sh603060", sina.lastSym)
	assert.Equal(t, "sh603060", rec.Symbol)
	assert.Equal(t, "检测服务", rec.Industry)
}

func TestService_Company_NoCoverage(t *testing.T) {
	svc := newTestService(t, testConfig())

	// 美股覆盖链中没有提供公司信息的数据源
	_, err := svc.Company(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, core.CodePermanent, core.CodeOf(err))
	assert.Contains(t, err.Error(), "no candidate source")
}

func TestService_Search(t *testing.T) {
	svc := newTestService(t, testConfig())

	results, err := svc.Search("招商", "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "sh600036", results[0].Symbol)

	// 市场过滤
	results, err = svc.Search("AAPL", "cn")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = svc.Search("", "all")
	assert.ErrorContains(t, err, "query cannot be empty")

	_, err = svc.Search("bank", "tokyo")
	assert.ErrorContains(t, err, "unknown market")
}

func TestService_CloseTwice(t *testing.T) {
	svc, err := New(testConfig())
	require.NoError(t, err)

	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}
