package tencent

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"stockquery/pkg/limiter"
	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
)

const (
	defaultQuoteURL = "http://qt.gtimg.cn/q="
	defaultKlineURL = "http://web.ifzq.gtimg.cn/appstock/app/fqkline/get"
)

// Provider 腾讯股票数据提供商，覆盖沪深A股的实时行情与K线历史。
// 行情响应为GBK编码，K线接口返回JSON。
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
	quoteURL   string
	klineURL   string
	gate       *limiter.Gate
}

// NewProvider 创建腾讯数据提供商
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
		log:       logger.WithComponent("TencentProvider"),
		quoteURL:  defaultQuoteURL,
		klineURL:  defaultKlineURL,
		gate:      limiter.NewGate(200*time.Millisecond, nil),
	}
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return string(core.SourceTencent)
}

// Capability 返回能力声明
func (p *Provider) Capability() core.Capability {
	return core.Capability{
		Source:          core.SourceTencent,
		Exchanges:       []core.Exchange{core.ExchangeSH, core.ExchangeSZ},
		NeedsCredential: false,
		RateLimitHint:   p.gate.Interval(),
		Encoding:        "gbk",
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

// FetchQuote 获取单只A股的实时行情。
// providerSymbol 为前缀方言，如 sh603060。
func (p *Provider) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := p.get(ctx, p.quoteURL+providerSymbol)
	if err != nil {
		return nil, err
	}

	text, err := decodeGBK(body)
	if err != nil {
		return nil, core.Permanent(core.SourceTencent, "decode gbk response", err)
	}

	record, err := parseQuote(providerSymbol, text)
	if err != nil {
		return nil, err
	}

	p.log.Debugf("fetched quote for %s: price=%v", providerSymbol, record.Price)
	return record, nil
}

// SupportedPeriods 返回历史数据支持的周期
func (p *Provider) SupportedPeriods() []core.Period {
	return []core.Period{core.PeriodDaily, core.PeriodWeekly, core.PeriodMonthly}
}

// FetchHistory 获取K线历史数据
func (p *Provider) FetchHistory(ctx context.Context, providerSymbol string, req core.HistoryRequest) (*core.HistoryRecord, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return nil, err
	}

	periodKey, err := klinePeriod(req.Period)
	if err != nil {
		return nil, err
	}

	count := req.Count
	if count <= 0 {
		count = 100
	}
	fetchCount := count
	if !req.Start.IsZero() {
		// 日期过滤在本地完成，多取一段以覆盖区间
		fetchCount = 640
	}

	param := providerSymbol + "," + periodKey + ",,,," + strconv.Itoa(fetchCount)
	body, err := p.get(ctx, p.klineURL+"?param="+url.QueryEscape(param))
	if err != nil {
		return nil, err
	}

	bars, err := parseKline(providerSymbol, periodKey, body)
	if err != nil {
		return nil, err
	}

	bars = filterBars(bars, req.Start, req.End)
	core.SortBars(bars)
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	p.log.Debugf("fetched %d %s bars for %s", len(bars), periodKey, providerSymbol)
	return &core.HistoryRecord{
		Symbol: providerSymbol,
		Period: req.Period,
		Source: string(core.SourceTencent),
		Bars:   bars,
	}, nil
}

// get 发起带标准头的GET请求并做状态分类
func (p *Provider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, core.Permanent(core.SourceTencent, "create request failed", err)
	}

	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.Transient(core.SourceTencent, "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Transient(core.SourceTencent, "read response failed", err)
	}
	return body, nil
}

// statusError 按HTTP状态码分类错误
func statusError(status int) error {
	msg := "http status " + strconv.Itoa(status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return core.Transient(core.SourceTencent, msg, nil)
	}
	return core.Permanent(core.SourceTencent, msg, nil)
}

// klinePeriod 将统一周期映射为腾讯K线参数
func klinePeriod(period core.Period) (string, error) {
	switch period {
	case core.PeriodDaily, "":
		return "day", nil
	case core.PeriodWeekly:
		return "week", nil
	case core.PeriodMonthly:
		return "month", nil
	default:
		return "", core.Permanent(core.SourceTencent, "unsupported period: "+string(period), nil)
	}
}

// filterBars 按闭区间过滤K线日期
func filterBars(bars []core.Bar, start, end time.Time) []core.Bar {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	out := make([]core.Bar, 0, len(bars))
	for _, b := range bars {
		d, err := time.ParseInLocation("2006-01-02", b.Date, time.Local)
		if err != nil {
			continue
		}
		if !start.IsZero() && d.Before(start) {
			continue
		}
		if !end.IsZero() && d.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// 确保 Provider 实现了所需的接口
var _ core.Provider = (*Provider)(nil)
var _ core.QuoteProvider = (*Provider)(nil)
var _ core.HistoryProvider = (*Provider)(nil)
var _ core.Closable = (*Provider)(nil)
