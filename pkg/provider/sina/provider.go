package sina

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"stockquery/pkg/limiter"
	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
)

const (
	defaultQuoteURL   = "http://hq.sinajs.cn/list="
	defaultProfileURL = "https://vip.stock.finance.sina.com.cn/quotes_service/api/json_v2.php/CompanyProfile.getCompanyProfile"
	refererURL        = "https://finance.sina.com.cn/"
)

// Provider 新浪股票数据提供商，覆盖沪深A股的实时行情与公司概况。
// 响应为GBK编码，解析前统一解码。
type Provider struct {
	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
	quoteURL   string
	profileURL string
	gate       *limiter.Gate
}

// NewProvider 创建新浪数据提供商
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
		userAgent:  "stockquery/1.0",
		log:        logger.WithComponent("SinaProvider"),
		quoteURL:   defaultQuoteURL,
		profileURL: defaultProfileURL,
		gate:       limiter.NewGate(200*time.Millisecond, nil),
	}
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return string(core.SourceSina)
}

// Capability 返回能力声明
func (p *Provider) Capability() core.Capability {
	return core.Capability{
		Source:          core.SourceSina,
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
	record, _, err := p.FetchQuoteWithRaw(ctx, providerSymbol)
	return record, err
}

// FetchQuoteWithRaw 获取实时行情及解码后的原始响应，便于调试
func (p *Provider) FetchQuoteWithRaw(ctx context.Context, providerSymbol string) (*core.QuoteRecord, string, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return nil, "", err
	}

	body, err := p.get(ctx, p.quoteURL+providerSymbol)
	if err != nil {
		return nil, "", err
	}

	// 按声明编码解码后再解析
	text, err := decodeGBK(body)
	if err != nil {
		return nil, "", core.Permanent(core.SourceSina, "decode gbk response", err)
	}

	record, err := parseQuote(providerSymbol, text)
	if err != nil {
		return nil, text, err
	}

	p.log.WithFields(logrus.Fields{
		"symbol": providerSymbol,
		"name":   record.Name,
	}).Debug("行情获取成功")

	return record, text, nil
}

// FetchCompanyInfo 获取公司概况。
// providerSymbol 为前缀方言，如 sh603060。
func (p *Provider) FetchCompanyInfo(ctx context.Context, providerSymbol string) (*core.CompanyRecord, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return nil, err
	}

	u := p.profileURL + "?symbol=" + url.QueryEscape(providerSymbol)
	body, err := p.get(ctx, u)
	if err != nil {
		return nil, err
	}

	text, err := decodeGBK(body)
	if err != nil {
		return nil, core.Permanent(core.SourceSina, "decode gbk response", err)
	}

	record, err := parseProfile(providerSymbol, text)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// get 发起带标准头的GET请求并做状态分类
func (p *Provider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.Permanent(core.SourceSina, "create request failed", err)
	}

	req.Header.Set("User-Agent", p.userAgent)
	// 新浪行情接口要求带站内 Referer
	req.Header.Set("Referer", refererURL)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Transient(core.SourceSina, "read response failed", err)
	}
	return body, nil
}

// classifyHTTPError 网络层错误默认按瞬时处理，交给上层重试判定
func classifyHTTPError(err error) error {
	return core.Transient(core.SourceSina, "http request failed", err)
}

// statusError 按HTTP状态码分类错误
func statusError(status int) error {
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return core.Transient(core.SourceSina, msg, nil)
	case status >= 500:
		return core.Transient(core.SourceSina, msg, nil)
	default:
		return core.Permanent(core.SourceSina, msg, nil)
	}
}

// 确保 Provider 实现了所需的接口
var _ core.QuoteProvider = (*Provider)(nil)
var _ core.CompanyInfoProvider = (*Provider)(nil)
var _ core.Closable = (*Provider)(nil)
