package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockquery/pkg/config"
	"stockquery/pkg/provider/core"
)

// probeCountingProvider 记录可用性探测次数的模拟提供商
type probeCountingProvider struct {
	name   string
	probes int
	err    error
}

func (m *probeCountingProvider) Name() string {
	return m.name
}

func (m *probeCountingProvider) Capability() core.Capability {
	return core.Capability{
		Source:    core.Source(m.name),
		Exchanges: []core.Exchange{core.ExchangeSH},
		Encoding:  "utf-8",
	}
}

func (m *probeCountingProvider) CheckAvailability(ctx context.Context) error {
	m.probes++
	return m.err
}

// wrappedQuote 标记行情提供商已被装饰
type wrappedQuote struct {
	core.QuoteProvider
}

// stubQuoteSource 构建期注入的行情桩
type stubQuoteSource struct {
	name string
	rec  *core.QuoteRecord
}

func (s *stubQuoteSource) Name() string { return s.name }

func (s *stubQuoteSource) Capability() core.Capability {
	return core.Capability{
		Source:    core.Source(s.name),
		Exchanges: []core.Exchange{core.ExchangeSH, core.ExchangeSZ},
		Encoding:  "utf-8",
	}
}

func (s *stubQuoteSource) CheckAvailability(ctx context.Context) error { return nil }

func (s *stubQuoteSource) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	return s.rec, nil
}

func emptyTokenConfig() *config.Config {
	cfg := config.Default()
	cfg.Provider.TushareToken = ""
	return cfg
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		desc    string
		input   string
		want    core.Source
		wantErr bool
	}{
		{desc: "新浪", input: "sina", want: core.SourceSina},
		{desc: "大写", input: "SINA", want: core.SourceSina},
		{desc: "带空白", input: " tencent ", want: core.SourceTencent},
		{desc: "tushare", input: "tushare", want: core.SourceTushare},
		{desc: "yfinance", input: "yfinance", want: core.SourceYFinance},
		{desc: "全名", input: "pandas-datareader", want: core.SourcePandasDatareader},
		{desc: "下划线写法", input: "pandas_datareader", want: core.SourcePandasDatareader},
		{desc: "pdr 简称", input: "pdr", want: core.SourcePandasDatareader},
		{desc: "未知名称", input: "bloomberg", wantErr: true},
		{desc: "空字符串", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := ParseSource(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRegistry_BuildsClosedSet(t *testing.T) {
	r := NewRegistry(emptyTokenConfig())
	defer r.Close()

	// 五个数据源全部就位，顺序固定
	assert.Equal(t, []core.Source{
		core.SourceSina,
		core.SourceTencent,
		core.SourceTushare,
		core.SourceYFinance,
		core.SourcePandasDatareader,
	}, r.Sources())

	for _, src := range r.Sources() {
		p, err := r.Get(src)
		require.NoError(t, err, "source %s", src)
		assert.Equal(t, string(src), p.Name())
	}

	_, err := r.Get(core.Source("bloomberg"))
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))
}

func TestRegistry_TypedGetters(t *testing.T) {
	r := NewRegistry(emptyTokenConfig())
	defer r.Close()

	// 所有数据源都提供行情
	for _, src := range r.Sources() {
		_, err := r.Quote(src)
		assert.NoError(t, err, "quote via %s", src)
	}

	// 新浪没有历史数据
	_, err := r.History(core.SourceSina)
	require.Error(t, err)
	assert.Equal(t, core.CodePermanent, core.CodeOf(err))
	assert.Contains(t, err.Error(), "not supported")

	for _, src := range []core.Source{core.SourceTencent, core.SourceTushare, core.SourceYFinance, core.SourcePandasDatareader} {
		_, err := r.History(src)
		assert.NoError(t, err, "history via %s", src)
	}

	// 公司信息只有新浪和 tushare 提供
	for _, src := range []core.Source{core.SourceSina, core.SourceTushare} {
		_, err := r.CompanyInfo(src)
		assert.NoError(t, err, "company info via %s", src)
	}
	for _, src := range []core.Source{core.SourceTencent, core.SourceYFinance, core.SourcePandasDatareader} {
		_, err := r.CompanyInfo(src)
		require.Error(t, err, "company info via %s", src)
		assert.Equal(t, core.CodePermanent, core.CodeOf(err))
	}

	// 未知数据源
	_, err = r.Quote(core.Source("bloomberg"))
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))
	_, err = r.History(core.Source("bloomberg"))
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))
	_, err = r.CompanyInfo(core.Source("bloomberg"))
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))
}

func TestRegistry_Available_ProbesOnce(t *testing.T) {
	r := NewRegistry(emptyTokenConfig())
	defer r.Close()

	mock := &probeCountingProvider{name: "mock"}
	r.providers[core.Source("mock")] = mock

	ctx := context.Background()
	require.NoError(t, r.Available(ctx, core.Source("mock")))
	require.NoError(t, r.Available(ctx, core.Source("mock")))
	require.NoError(t, r.Available(ctx, core.Source("mock")))

	// 结论缓存后不再重复探测
	assert.Equal(t, 1, mock.probes)
}

func TestRegistry_Available_CachesFailure(t *testing.T) {
	r := NewRegistry(emptyTokenConfig())
	defer r.Close()

	mock := &probeCountingProvider{
		name: "mock",
		err:  core.CredentialMissing(core.Source("mock"), "no token"),
	}
	r.providers[core.Source("mock")] = mock

	ctx := context.Background()
	err1 := r.Available(ctx, core.Source("mock"))
	err2 := r.Available(ctx, core.Source("mock"))

	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, 1, mock.probes)

	_, unknownErr := r.Get(core.Source("absent"))
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(unknownErr))
}

func TestRegistry_SetTushareToken_ResetsVerdict(t *testing.T) {
	r := NewRegistry(emptyTokenConfig())
	defer r.Close()

	ctx := context.Background()

	// 无凭证时 tushare 不可用
	err := r.Available(ctx, core.SourceTushare)
	require.Error(t, err)
	assert.Equal(t, core.CodeCredentialMissing, core.CodeOf(err))

	// 注入凭证后重新探测
	r.SetTushareToken("test-token")
	assert.NoError(t, r.Available(ctx, core.SourceTushare))
}

func TestFallbackChain(t *testing.T) {
	tests := []struct {
		desc string
		ex   core.Exchange
		want []core.Source
	}{
		{
			desc: "上交所",
			ex:   core.ExchangeSH,
			want: []core.Source{core.SourceSina, core.SourceTencent, core.SourceTushare},
		},
		{
			desc: "深交所",
			ex:   core.ExchangeSZ,
			want: []core.Source{core.SourceSina, core.SourceTencent, core.SourceTushare},
		},
		{
			desc: "美股",
			ex:   core.ExchangeUS,
			want: []core.Source{core.SourceYFinance, core.SourcePandasDatareader},
		},
		{
			desc: "港股",
			ex:   core.ExchangeHK,
			want: []core.Source{core.SourceYFinance, core.SourcePandasDatareader},
		},
		{
			desc: "未知市场",
			ex:   core.Exchange("XX"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, FallbackChain(tt.ex))
		})
	}
}

func TestRegistry_WithQuoteWrapper(t *testing.T) {
	wraps := 0
	r := NewRegistry(emptyTokenConfig(), WithQuoteWrapper(func(qp core.QuoteProvider) core.QuoteProvider {
		wraps++
		return &wrappedQuote{QuoteProvider: qp}
	}))
	defer r.Close()

	// 每个行情提供商都套了一层
	assert.Equal(t, len(r.Sources()), wraps)

	qp, err := r.Quote(core.SourceSina)
	require.NoError(t, err)
	_, ok := qp.(*wrappedQuote)
	assert.True(t, ok, "quote provider should be wrapped")

	// 基础提供商不受装饰影响
	base, err := r.Get(core.SourceSina)
	require.NoError(t, err)
	_, ok = base.(*wrappedQuote)
	assert.False(t, ok)
}

func TestRegistry_WithProvider(t *testing.T) {
	stub := &stubQuoteSource{name: "sina", rec: &core.QuoteRecord{Symbol: "sh603060", Name: "桩数据"}}
	r := NewRegistry(emptyTokenConfig(),
		WithProvider(core.SourceSina, stub),
		WithProvider(core.Source("bloomberg"), stub))
	defer r.Close()

	// 内置实现被替换，行情入口同步生效
	base, err := r.Get(core.SourceSina)
	require.NoError(t, err)
	assert.Same(t, stub, base)

	qp, err := r.Quote(core.SourceSina)
	require.NoError(t, err)
	rec, err := qp.FetchQuote(context.Background(), "sh603060")
	require.NoError(t, err)
	assert.Equal(t, "桩数据", rec.Name)

	// 未知数据源的替换不扩集合
	_, err = r.Get(core.Source("bloomberg"))
	assert.Equal(t, core.CodeUnknownSource, core.CodeOf(err))
}

func TestRegistry_AppliesProviderConfig(t *testing.T) {
	cfg := emptyTokenConfig()
	cfg.Provider.RateLimit = 50 * time.Millisecond
	cfg.Executor.FetchTimeout = 3 * time.Second

	r := NewRegistry(cfg)
	defer r.Close()

	for _, src := range r.Sources() {
		p, err := r.Get(src)
		require.NoError(t, err)
		assert.Equal(t, 50*time.Millisecond, p.Capability().RateLimitHint, "source %s", src)
	}
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(emptyTokenConfig())
	assert.NoError(t, r.Close())
	// 重复关闭不报错
	assert.NoError(t, r.Close())
}
