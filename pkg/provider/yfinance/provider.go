package yfinance

import (
	"context"
	"encoding/json"
	"fmt"
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

const defaultChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// Provider Yahoo Finance 数据提供商，覆盖美股与港股的行情与历史K线
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
	chartURL   string
	gate       *limiter.Gate
}

// NewProvider 创建 Yahoo Finance 数据提供商
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
		// 裸UA会被拒，带浏览器标识
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		log:       logger.WithComponent("YFinanceProvider"),
		chartURL:  defaultChartURL,
		gate:      limiter.NewGate(200*time.Millisecond, nil),
	}
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return string(core.SourceYFinance)
}

// Capability 返回能力声明
func (p *Provider) Capability() core.Capability {
	return core.Capability{
		Source:          core.SourceYFinance,
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

// FetchQuote 获取实时行情。
// providerSymbol 为 Yahoo 方言，如 AAPL、0700.HK。
func (p *Provider) FetchQuote(ctx context.Context, providerSymbol string) (*core.QuoteRecord, error) {
	result, err := p.fetchChart(ctx, providerSymbol, url.Values{
		"interval": {"1d"},
		"range":    {"1d"},
	})
	if err != nil {
		return nil, err
	}

	if result.Meta.RegularMarketPrice == nil {
		return nil, core.Permanent(core.SourceYFinance, "no market price for "+providerSymbol, nil)
	}

	record := result.toQuote(providerSymbol)
	p.log.Debugf("fetched quote for %s: price=%v", providerSymbol, record.Price)
	return record, nil
}

// SupportedPeriods 返回历史数据支持的周期
func (p *Provider) SupportedPeriods() []core.Period {
	return []core.Period{core.PeriodDaily, core.PeriodWeekly, core.PeriodMonthly}
}

// FetchHistory 获取历史K线数据
func (p *Provider) FetchHistory(ctx context.Context, providerSymbol string, req core.HistoryRequest) (*core.HistoryRecord, error) {
	interval, err := chartInterval(req.Period)
	if err != nil {
		return nil, err
	}

	count := req.Count
	if count <= 0 {
		count = 100
	}

	query := url.Values{"interval": {interval}}
	if !req.Start.IsZero() || !req.End.IsZero() {
		start := req.Start
		if start.IsZero() {
			start = time.Now().AddDate(-10, 0, 0)
		}
		end := req.End
		if end.IsZero() {
			end = time.Now()
		}
		// period2 为开区间上界，加一天以包含结束日
		query.Set("period1", strconv.FormatInt(start.Unix(), 10))
		query.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	} else {
		query.Set("range", rangeFor(req.Period, count))
	}

	result, err := p.fetchChart(ctx, providerSymbol, query)
	if err != nil {
		return nil, err
	}

	bars := result.toBars()
	core.SortBars(bars)
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	p.log.Debugf("fetched %d %s bars for %s", len(bars), interval, providerSymbol)
	return &core.HistoryRecord{
		Symbol: providerSymbol,
		Period: req.Period,
		Source: string(core.SourceYFinance),
		Bars:   bars,
	}, nil
}

// fetchChart 请求 chart 接口并提取首个结果
func (p *Provider) fetchChart(ctx context.Context, providerSymbol string, query url.Values) (*chartResult, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return nil, err
	}

	rawURL := p.chartURL + url.PathEscape(providerSymbol) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, core.Permanent(core.SourceYFinance, "create request failed", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.Transient(core.SourceYFinance, "http request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Transient(core.SourceYFinance, "read response failed", err)
	}

	// 错误详情在响应体里，404 也带 chart.error，优先解析
	var envelope chartResponse
	if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil {
		if envelope.Chart.Error != nil {
			return nil, chartAPIError(resp.StatusCode, envelope.Chart.Error)
		}
		if resp.StatusCode == http.StatusOK {
			if len(envelope.Chart.Result) == 0 {
				return nil, core.Permanent(core.SourceYFinance, "empty chart result for "+providerSymbol, nil)
			}
			return &envelope.Chart.Result[0], nil
		}
	}

	return nil, statusError(resp.StatusCode)
}

// chartAPIError 分类 chart 接口的业务错误
func chartAPIError(status int, e *chartError) error {
	msg := fmt.Sprintf("chart api error: %s (%s)", e.Code, e.Description)
	if status == http.StatusTooManyRequests {
		return core.Transient(core.SourceYFinance, msg, nil)
	}
	return core.Permanent(core.SourceYFinance, msg, nil)
}

// statusError 按HTTP状态码分类错误
func statusError(status int) error {
	msg := "http status " + strconv.Itoa(status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return core.Transient(core.SourceYFinance, msg, nil)
	}
	return core.Permanent(core.SourceYFinance, msg, nil)
}

// chartInterval 将统一周期映射为 chart 接口的 interval 参数
func chartInterval(period core.Period) (string, error) {
	switch period {
	case core.PeriodDaily, "":
		return "1d", nil
	case core.PeriodWeekly:
		return "1wk", nil
	case core.PeriodMonthly:
		return "1mo", nil
	default:
		return "", core.Permanent(core.SourceYFinance, "unsupported period: "+string(period), nil)
	}
}

// rangeFor 按周期和条数选择足够覆盖的 range 参数
func rangeFor(period core.Period, count int) string {
	switch period {
	case core.PeriodWeekly:
		switch {
		case count <= 26:
			return "6mo"
		case count <= 52:
			return "1y"
		case count <= 104:
			return "2y"
		case count <= 260:
			return "5y"
		default:
			return "10y"
		}
	case core.PeriodMonthly:
		switch {
		case count <= 12:
			return "1y"
		case count <= 24:
			return "2y"
		case count <= 60:
			return "5y"
		case count <= 120:
			return "10y"
		default:
			return "max"
		}
	default:
		switch {
		case count <= 5:
			return "5d"
		case count <= 22:
			return "1mo"
		case count <= 66:
			return "3mo"
		case count <= 132:
			return "6mo"
		case count <= 264:
			return "1y"
		case count <= 528:
			return "2y"
		default:
			return "5y"
		}
	}
}

// 确保 Provider 实现了所需的接口
var _ core.Provider = (*Provider)(nil)
var _ core.QuoteProvider = (*Provider)(nil)
var _ core.HistoryProvider = (*Provider)(nil)
var _ core.Closable = (*Provider)(nil)
