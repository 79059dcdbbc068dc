package tushare

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"stockquery/pkg/limiter"
	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
)

const defaultAPIURL = "http://api.tushare.pro"

const dailyFields = "ts_code,trade_date,open,high,low,close,pre_close,change,pct_chg,vol,amount"

// Provider tushare pro 数据提供商，覆盖沪深A股的日线行情、历史K线与公司信息。
// 需要 token，未配置时在可用性探测阶段即拒绝。
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
	apiURL     string
	token      string
	gate       *limiter.Gate
}

// NewProvider 创建 tushare 数据提供商，token 后续通过 SetToken 注入
func NewProvider() *Provider {
	return &Provider{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: 10 * time.Second,
		},
		userAgent: "stockquery/1.0",
		log:       logger.WithComponent("TushareProvider"),
		apiURL:    defaultAPIURL,
		gate:      limiter.NewGate(200*time.Millisecond, nil),
	}
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return string(core.SourceTushare)
}

// Capability 返回能力声明
func (p *Provider) Capability() core.Capability {
	return core.Capability{
		Source:          core.SourceTushare,
		Exchanges:       []core.Exchange{core.ExchangeSH, core.ExchangeSZ},
		NeedsCredential: true,
		RateLimitHint:   p.gate.Interval(),
		Encoding:        "utf-8",
	}
}

// CheckAvailability 可用性探测，token 未配置时直接拒绝
func (p *Provider) CheckAvailability(ctx context.Context) error {
	if p.token == "" {
		return core.CredentialMissing(core.SourceTushare, "set TUSHARE_TOKEN or configure provider.tushare_token")
	}
	return nil
}

// SetToken 注入访问凭证
func (p *Provider) SetToken(token string) {
	p.token = token
}

// SetTimeout 设置请求超时时间
func (p *Provider) SetTimeout(timeout time.Duration) {
	p.httpClient.Timeout = timeout
}

// SetRateLimit 设置请求频率限制
func (p *Provider) SetRateLimit(limit time.Duration) {
	p.gate.SetInterval(limit)
}

// SetUserAgent 设置 HTTP User-Agent
func (p *Provider) SetUserAgent(ua string) {
	p.userAgent = ua
}

// Close 关闭提供商，清理资源
func (p *Provider) Close() error {
	if p.httpClient != nil {
		p.httpClient.CloseIdleConnections()
	}
	return nil
}

// FetchQuote 获取最近一个交易日的日线数据作为行情。
// providerSymbol 为后缀方言，如 603060.SH。tushare 无逐笔实时数据，
// 免费档以最新日线近似实时行情。
func (p *Provider) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	if err := p.CheckAvailability(ctx); err != nil {
		return nil, err
	}

	bars, err := p.call(ctx, "daily", map[string]string{
		"ts_code": providerSymbol,
		"limit":   "1",
	}, dailyFields)
	if err != nil {
		return nil, err
	}
	if bars.Len() == 0 {
		return nil, core.Permanent(core.SourceTushare, "no daily data for "+providerSymbol, nil)
	}

	record := &core.QuoteRecord{
		Symbol:        providerSymbol,
		Name:          p.lookupName(ctx, providerSymbol),
		Price:         bars.Float(0, "close"),
		Open:          bars.Float(0, "open"),
		High:          bars.Float(0, "high"),
		Low:           bars.Float(0, "low"),
		PrevClose:     bars.Float(0, "pre_close"),
		Change:        bars.Float(0, "change"),
		ChangePercent: bars.Float(0, "pct_chg"),
		Volume:        volumeShares(bars.Float(0, "vol")),
		Turnover:      amountYuan(bars.Float(0, "amount")),
		Currency:      "CNY",
		Timestamp:     parseTradeDate(bars.Str(0, "trade_date")),
		Source:        string(core.SourceTushare),
	}

	p.log.Debugf("fetched quote for %s: price=%v trade_date=%s", providerSymbol, record.Price, bars.Str(0, "trade_date"))
	return record, nil
}

// SupportedPeriods 返回历史数据支持的周期
func (p *Provider) SupportedPeriods() []core.Period {
	return []core.Period{core.PeriodDaily, core.PeriodWeekly, core.PeriodMonthly}
}

// FetchHistory 获取历史K线数据
func (p *Provider) FetchHistory(ctx context.Context, providerSymbol string, req core.HistoryRequest) (*core.HistoryRecord, error) {
	if err := p.CheckAvailability(ctx); err != nil {
		return nil, err
	}

	apiName, err := historyAPI(req.Period)
	if err != nil {
		return nil, err
	}

	count := req.Count
	if count <= 0 {
		count = 100
	}

	params := map[string]string{"ts_code": providerSymbol}
	if !req.Start.IsZero() {
		params["start_date"] = req.Start.Format("20060102")
	}
	if !req.End.IsZero() {
		params["end_date"] = req.End.Format("20060102")
	}
	if req.Start.IsZero() && req.End.IsZero() {
		params["limit"] = strconv.Itoa(count)
	}

	rows, err := p.call(ctx, apiName, params, dailyFields)
	if err != nil {
		return nil, err
	}

	bars := make([]core.Bar, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		date := parseTradeDate(rows.Str(i, "trade_date"))
		if date.IsZero() {
			continue
		}
		bars = append(bars, core.Bar{
			Date:   date.Format("2006-01-02"),
			Open:   deref(rows.Float(i, "open")),
			High:   deref(rows.Float(i, "high")),
			Low:    deref(rows.Float(i, "low")),
			Close:  deref(rows.Float(i, "close")),
			Volume: derefShares(rows.Float(i, "vol")),
		})
	}

	core.SortBars(bars)
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	p.log.Debugf("fetched %d %s bars for %s", len(bars), apiName, providerSymbol)
	return &core.HistoryRecord{
		Symbol: providerSymbol,
		Period: req.Period,
		Source: string(core.SourceTushare),
		Bars:   bars,
	}, nil
}

// FetchCompanyInfo 获取公司基本信息，合并 stock_company 与 stock_basic 两个接口
func (p *Provider) FetchCompanyInfo(ctx context.Context, providerSymbol string) (*core.CompanyRecord, error) {
	if err := p.CheckAvailability(ctx); err != nil {
		return nil, err
	}

	company, err := p.call(ctx, "stock_company", map[string]string{
		"ts_code": providerSymbol,
	}, "ts_code,chairman,reg_capital,province,main_business,employees,website")
	if err != nil {
		return nil, err
	}
	if company.Len() == 0 {
		return nil, core.Permanent(core.SourceTushare, "no company data for "+providerSymbol, nil)
	}

	record := &core.CompanyRecord{
		Symbol:            providerSymbol,
		Name:              providerSymbol,
		Chairman:          company.Str(0, "chairman"),
		RegisteredCapital: regCapital(company.Float(0, "reg_capital")),
		Province:          company.Str(0, "province"),
		MainBusiness:      company.Str(0, "main_business"),
		Employees:         employeeCount(company.Float(0, "employees")),
		Website:           company.Str(0, "website"),
		Source:            string(core.SourceTushare),
	}

	if basic, err := p.call(ctx, "stock_basic", map[string]string{
		"ts_code": providerSymbol,
	}, "ts_code,name,industry,list_date"); err == nil && basic.Len() > 0 {
		if name := basic.Str(0, "name"); name != "" {
			record.Name = name
		}
		record.Industry = basic.Str(0, "industry")
		record.ListDate = formatListDate(basic.Str(0, "list_date"))
	}

	return record, nil
}

// lookupName 查询股票名称，失败时回退为代码本身
func (p *Provider) lookupName(ctx context.Context, providerSymbol string) string {
	basic, err := p.call(ctx, "stock_basic", map[string]string{
		"ts_code": providerSymbol,
	}, "ts_code,name")
	if err != nil || basic.Len() == 0 {
		return providerSymbol
	}
	if name := basic.Str(0, "name"); name != "" {
		return name
	}
	return providerSymbol
}

// historyAPI 将统一周期映射为 tushare 接口名
func historyAPI(period core.Period) (string, error) {
	switch period {
	case core.PeriodDaily, "":
		return "daily", nil
	case core.PeriodWeekly:
		return "weekly", nil
	case core.PeriodMonthly:
		return "monthly", nil
	default:
		return "", core.Permanent(core.SourceTushare, "unsupported period: "+string(period), nil)
	}
}

// parseTradeDate 解析 YYYYMMDD 交易日
func parseTradeDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("20060102", s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// formatListDate 将 YYYYMMDD 转为 YYYY-MM-DD
func formatListDate(s string) string {
	t := parseTradeDate(s)
	if t.IsZero() {
		return s
	}
	return t.Format("2006-01-02")
}

// volumeShares 成交量从手转换为股
func volumeShares(v *float64) *int64 {
	if v == nil {
		return nil
	}
	shares := int64(*v) * 100
	return &shares
}

// amountYuan 成交额从千元转换为元
func amountYuan(v *float64) *float64 {
	if v == nil {
		return nil
	}
	yuan := *v * 1000
	return &yuan
}

// regCapital 注册资本(万元)格式化
func regCapital(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f万元", *v)
}

// employeeCount 员工数转整数
func employeeCount(v *float64) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefShares(v *float64) int64 {
	if v == nil {
		return 0
	}
	return int64(*v) * 100
}

// 确保 Provider 实现了所需的接口
var _ core.Provider = (*Provider)(nil)
var _ core.QuoteProvider = (*Provider)(nil)
var _ core.HistoryProvider = (*Provider)(nil)
var _ core.CompanyInfoProvider = (*Provider)(nil)
var _ core.Closable = (*Provider)(nil)
