package sina

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockquery/pkg/provider/core"
)

func TestDecodeGBK(t *testing.T) {
	gbkBytes := []byte{0xc6, 0xd6, 0xb7, 0xa2, 0xd2, 0xf8, 0xd0, 0xd0} // "浦发银行" in GBK
	utf8Str, err := decodeGBK(gbkBytes)
	assert.NoError(t, err)
	assert.Equal(t, "浦发银行", utf8Str)
}

func TestProvider_FetchQuote_Success(t *testing.T) {
	// 模拟新浪服务器
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 验证请求是否正确
		assert.Equal(t, "/list=sh603060", r.URL.RequestURI())
		assert.Equal(t, "https://finance.sina.com.cn/", r.Header.Get("Referer"))

		// 直接构造包含 GBK 字节的响应体
		var body bytes.Buffer
		body.WriteString(`var hq_str_sh603060="`)
		body.Write([]byte{0xb9, 0xfa, 0xbc, 0xec, 0xbc, 0xaf, 0xcd, 0xc5}) // 国检集团
		body.WriteString(`,10.01,10.10,10.21,10.30,9.90,10.20,10.21,5678900,57892340.00,100,10.20,200,10.19,300,10.18,400,10.17,500,10.16,100,10.21,200,10.22,300,10.23,400,10.24,500,10.25,2026-08-21,15:00:03,00";`)

		w.Header().Set("Content-Type", "application/javascript; charset=GBK")
		_, _ = w.Write(body.Bytes())
	}))
	defer server.Close()

	// 创建使用模拟服务器的 Provider
	provider := NewProvider()
	provider.httpClient = server.Client()
	provider.quoteURL = server.URL + "/list=" // 指向测试服务器
	provider.SetRateLimit(0)

	record, err := provider.FetchQuote(context.Background(), "sh603060")

	require.NoError(t, err)
	assert.Equal(t, "sh603060", record.Symbol)
	assert.Equal(t, "国检集团", record.Name)
	assert.Equal(t, "sina", record.Source)
	assert.Equal(t, "CNY", record.Currency)

	require.NotNil(t, record.Price)
	assert.InDelta(t, 10.21, *record.Price, 0.001)
	require.NotNil(t, record.Open)
	assert.InDelta(t, 10.01, *record.Open, 0.001)
	require.NotNil(t, record.High)
	assert.InDelta(t, 10.30, *record.High, 0.001)
	require.NotNil(t, record.Low)
	assert.InDelta(t, 9.90, *record.Low, 0.001)
	require.NotNil(t, record.PrevClose)
	assert.InDelta(t, 10.10, *record.PrevClose, 0.001)
	require.NotNil(t, record.Volume)
	assert.Equal(t, int64(5678900), *record.Volume)
	require.NotNil(t, record.Turnover)
	assert.InDelta(t, 57892340.00, *record.Turnover, 0.01)

	// 涨跌由现价与昨收补算
	require.NotNil(t, record.Change)
	assert.InDelta(t, 0.11, *record.Change, 0.001)
	require.NotNil(t, record.ChangePercent)
	assert.InDelta(t, 1.089, *record.ChangePercent, 0.01)

	// 该接口不提供估值字段
	assert.Nil(t, record.PE)
	assert.Nil(t, record.PB)
	assert.Nil(t, record.MarketCap)

	expected := time.Date(2026, 8, 21, 15, 0, 3, 0, time.Local)
	assert.Equal(t, expected, record.Timestamp)
}

func TestProvider_FetchQuote_EmptyPayload(t *testing.T) {
	// 无效代码时新浪返回空串
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`var hq_str_sh999999="";`))
	}))
	defer server.Close()

	provider := NewProvider()
	provider.httpClient = server.Client()
	provider.quoteURL = server.URL + "/list="
	provider.SetRateLimit(0)

	_, err := provider.FetchQuote(context.Background(), "sh999999")
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestProvider_FetchQuote_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewProvider()
	provider.httpClient = server.Client()
	provider.quoteURL = server.URL + "/list="
	provider.SetRateLimit(0)

	_, err := provider.FetchQuote(context.Background(), "sh603060")
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestProvider_FetchCompanyInfo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sh603060", r.URL.Query().Get("symbol"))

		var body bytes.Buffer
		body.WriteString(`{"name":"`)
		body.Write([]byte{0xb9, 0xfa, 0xbc, 0xec, 0xbc, 0xaf, 0xcd, 0xc5}) // 国检集团
		body.WriteString(`","industry":"`)
		body.Write([]byte{0xd7, 0xa8, 0xd2, 0xb5, 0xb7, 0xfe, 0xce, 0xf1}) // 专业服务
		body.WriteString(`","listing_date":"2016-11-04","province":"`)
		body.Write([]byte{0xb1, 0xb1, 0xbe, 0xa9}) // 北京
		body.WriteString(`","employees":4936}`)

		w.Header().Set("Content-Type", "application/json; charset=GBK")
		_, _ = w.Write(body.Bytes())
	}))
	defer server.Close()

	provider := NewProvider()
	provider.httpClient = server.Client()
	provider.profileURL = server.URL
	provider.SetRateLimit(0)

	record, err := provider.FetchCompanyInfo(context.Background(), "sh603060")

	require.NoError(t, err)
	assert.Equal(t, "sh603060", record.Symbol)
	assert.Equal(t, "国检集团", record.Name)
	assert.Equal(t, "专业服务", record.Industry)
	assert.Equal(t, "2016-11-04", record.ListDate)
	assert.Equal(t, "北京", record.Province)
	require.NotNil(t, record.Employees)
	assert.Equal(t, int64(4936), *record.Employees)
	assert.Equal(t, "sina", record.Source)
}

func TestProvider_FetchCompanyInfo_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	provider := NewProvider()
	provider.httpClient = server.Client()
	provider.profileURL = server.URL
	provider.SetRateLimit(0)

	_, err := provider.FetchCompanyInfo(context.Background(), "sh603060")
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestParseQuote_FieldCountMismatch(t *testing.T) {
	// 字段数量不足
	input := `var hq_str_sh600001="部分数据,1,2,3";`
	_, err := parseQuote("sh600001", input)
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestParseQuote_SymbolNotPresent(t *testing.T) {
	input := `var hq_str_sh600000="浦发银行,10.500,10.450,10.550,10.600,10.400,10.540,10.550,1234500,12962250.00,100,10.54,200,10.53,300,10.52,400,10.51,500,10.50,100,10.55,200,10.56,300,10.57,400,10.58,500,10.59,2026-08-21,14:30:00,00";`
	_, err := parseQuote("sh603060", input)
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestParsePrice_ZeroMeansMissing(t *testing.T) {
	// 停牌时价格字段为 0.000，应视为缺失而非零价
	assert.Nil(t, parsePrice("0.000"))
	assert.Nil(t, parsePrice(""))
	assert.Nil(t, parsePrice("abc"))

	v := parsePrice("10.21")
	require.NotNil(t, v)
	assert.InDelta(t, 10.21, *v, 0.001)
}

func TestProvider_Capability(t *testing.T) {
	provider := NewProvider()
	cap := provider.Capability()

	assert.Equal(t, core.SourceSina, cap.Source)
	assert.Equal(t, []core.Exchange{core.ExchangeSH, core.ExchangeSZ}, cap.Exchanges)
	assert.False(t, cap.NeedsCredential)
	assert.Equal(t, "gbk", cap.Encoding)
	assert.True(t, cap.Covers(core.ExchangeSH))
	assert.False(t, cap.Covers(core.ExchangeUS))
}
