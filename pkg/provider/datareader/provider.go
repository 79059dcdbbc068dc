// Package datareader 通过 stooq 的CSV行情服务覆盖美股与港股，
// 对外名称沿用 pandas-datareader，行为对齐其日线读取方式。
package datareader

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stockquery/pkg/limiter"
	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
)

const defaultCSVURL = "https://stooq.com/q/d/l/"

// Provider pandas-datareader 风格的数据提供商，以日线CSV近似实时行情
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
	csvURL     string
	gate       *limiter.Gate
}

// NewProvider 创建数据提供商
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
		log:       logger.WithComponent("DataReaderProvider"),
		csvURL:    defaultCSVURL,
		gate:      limiter.NewGate(200*time.Millisecond, nil),
	}
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return string(core.SourcePandasDatareader)
}

// Capability 返回能力声明
func (p *Provider) Capability() core.Capability {
	return core.Capability{
		Source:          core.SourcePandasDatareader,
		Exchanges:       []core.Exchange{core.ExchangeUS, core.ExchangeHK},
		NeedsCredential: false,
		RateLimitHint:   p.gate.Interval(),
		Encoding:        "utf-8",
	}
}

// CheckAvailability 可用性探测，免凭证数据源恒可用
func (p *Provider) CheckAvailability(ctx context.Context) error {
	return nil
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

// FetchQuote 获取行情。无实时接口，取最近两周日线的末行，
// 前一行用于补算涨跌。
func (p *Provider) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -14)

	bars, err := p.fetchCSV(ctx, providerSymbol, "d", start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.Permanent(core.SourcePandasDatareader, "no recent data for "+providerSymbol, nil)
	}

	latest := bars[len(bars)-1]
	record := &core.QuoteRecord{
		Symbol:    providerSymbol,
		Name:      providerSymbol,
		Price:     core.FloatPtr(latest.Close),
		Open:      core.FloatPtr(latest.Open),
		High:      core.FloatPtr(latest.High),
		Low:       core.FloatPtr(latest.Low),
		Volume:    core.IntPtr(latest.Volume),
		Currency:  currencyFor(providerSymbol),
		Timestamp: barTime(latest.Date),
		Source:    string(core.SourcePandasDatareader),
	}

	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		record.PrevClose = core.FloatPtr(prev)
		if prev != 0 {
			change := latest.Close - prev
			percent := change / prev * 100
			record.Change = &change
			record.ChangePercent = &percent
		}
	} else {
		// 仅一根K线时涨跌记零
		record.PrevClose = core.FloatPtr(latest.Close)
		record.Change = core.FloatPtr(0)
		record.ChangePercent = core.FloatPtr(0)
	}

	p.log.Debugf("fetched quote for %s from %s bar", providerSymbol, latest.Date)
	return record, nil
}

// SupportedPeriods 返回历史数据支持的周期
func (p *Provider) SupportedPeriods() []core.Period {
	return []core.Period{core.PeriodDaily, core.PeriodWeekly, core.PeriodMonthly}
}

// FetchHistory 获取历史K线数据
func (p *Provider) FetchHistory(ctx context.Context, providerSymbol string, req core.HistoryRequest) (*core.HistoryRecord, error) {
	interval, err := csvInterval(req.Period)
	if err != nil {
		return nil, err
	}

	count := req.Count
	if count <= 0 {
		count = 100
	}

	start := req.Start
	end := req.End
	if start.IsZero() && end.IsZero() {
		end = time.Now()
		start = end.AddDate(0, 0, -spanDays(req.Period, count))
	}

	bars, err := p.fetchCSV(ctx, providerSymbol, interval, start, end)
	if err != nil {
		return nil, err
	}

	core.SortBars(bars)
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	p.log.Debugf("fetched %d %s bars for %s", len(bars), interval, providerSymbol)
	return &core.HistoryRecord{
		Symbol: providerSymbol,
		Period: req.Period,
		Source: string(core.SourcePandasDatareader),
		Bars:   bars,
	}, nil
}

// fetchCSV 请求日线CSV并解析
func (p *Provider) fetchCSV(ctx context.Context, providerSymbol, interval string, start, end time.Time) ([]core.Bar, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{
		"s": {stooqTicker(providerSymbol)},
		"i": {interval},
	}
	if !start.IsZero() {
		query.Set("d1", start.Format("20060102"))
	}
	if !end.IsZero() {
		query.Set("d2", end.Format("20060102"))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.csvURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, core.Permanent(core.SourcePandasDatareader, "create request failed", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.Transient(core.SourcePandasDatareader, "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	return parseCSV(providerSymbol, resp.Body)
}

// stooqTicker 将 Yahoo 方言映射为 stooq 方言。
// AAPL -> aapl.us，0700.HK -> 0700.hk。
func stooqTicker(providerSymbol string) string {
	lower := strings.ToLower(providerSymbol)
	if strings.Contains(lower, ".") {
		return lower
	}
	return lower + ".us"
}

// currencyFor 按方言后缀推断币种
func currencyFor(providerSymbol string) string {
	if strings.HasSuffix(strings.ToUpper(providerSymbol), ".HK") {
		return "HKD"
	}
	return "USD"
}

// barTime 将K线日期转为时间戳
func barTime(date string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return time.Now()
	}
	return t
}

// csvInterval 将统一周期映射为 stooq 的 i 参数
func csvInterval(period core.Period) (string, error) {
	switch period {
	case core.PeriodDaily, "":
		return "d", nil
	case core.PeriodWeekly:
		return "w", nil
	case core.PeriodMonthly:
		return "m", nil
	default:
		return "", core.Permanent(core.SourcePandasDatareader, "unsupported period: "+string(period), nil)
	}
}

// spanDays 估算覆盖 count 根K线所需的日历天数
func spanDays(period core.Period, count int) int {
	switch period {
	case core.PeriodWeekly:
		return count*7 + 14
	case core.PeriodMonthly:
		return count*31 + 31
	default:
		// 约每7天5个交易日
		return count*7/5 + 14
	}
}

// statusError 按HTTP状态码分类错误
func statusError(status int) error {
	msg := "http status " + strconv.Itoa(status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return core.Transient(core.SourcePandasDatareader, msg, nil)
	}
	return core.Permanent(core.SourcePandasDatareader, msg, nil)
}

// 确保 Provider 实现了所需的接口
var _ core.Provider = (*Provider)(nil)
var _ core.QuoteProvider = (*Provider)(nil)
var _ core.HistoryProvider = (*Provider)(nil)
var _ core.Closable = (*Provider)(nil)
