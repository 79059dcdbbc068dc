package core

import (
	"sort"
	"time"
)

// Exchange 交易所标识
type Exchange string

const (
	ExchangeSH Exchange = "SH" // 上海证券交易所
	ExchangeSZ Exchange = "SZ" // 深圳证券交易所
	ExchangeHK Exchange = "HK" // 香港交易所
	ExchangeUS Exchange = "US" // 美国市场 (NYSE/NASDAQ)
)

// Source 数据源标识，闭集，启动时全部注册
type Source string

const (
	SourceSina             Source = "sina"
	SourceTencent          Source = "tencent"
	SourceTushare          Source = "tushare"
	SourceYFinance         Source = "yfinance"
	SourcePandasDatareader Source = "pandas-datareader"
)

// Period 历史数据周期
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod 解析周期别名，空串取日线
func ParsePeriod(s string) (Period, bool) {
	switch s {
	case "", "daily", "day", "d", "1d":
		return PeriodDaily, true
	case "weekly", "week", "w", "1wk":
		return PeriodWeekly, true
	case "monthly", "month", "m", "1mo":
		return PeriodMonthly, true
	}
	return "", false
}

// Capability 提供商能力声明
// 覆盖的交易所决定回退链顺序，编码决定响应解码步骤
type Capability struct {
	Source          Source        `json:"source"`           // 数据源标识
	Exchanges       []Exchange    `json:"exchanges"`        // 覆盖的交易所
	NeedsCredential bool          `json:"needs_credential"` // 是否需要凭证
	RateLimitHint   time.Duration `json:"rate_limit_hint"`  // 建议的最小请求间隔
	Encoding        string        `json:"encoding"`         // 响应编码 ("gbk" / "utf-8")
}

// Covers 判断能力是否覆盖指定交易所
func (c Capability) Covers(ex Exchange) bool {
	for _, e := range c.Exchanges {
		if e == ex {
			return true
		}
	}
	return false
}

// QuoteRecord 实时行情记录
// 缺失字段保持 null，不折算为零值；Source 为实际产出数据的提供商
type QuoteRecord struct {
	Symbol        string    `json:"symbol"`         // 规范显示形式，如 sh603060 / AAPL / 0700.HK
	Name          string    `json:"name"`           // 证券名称
	Price         *float64  `json:"price"`          // 当前价格
	Change        *float64  `json:"change"`         // 涨跌额
	ChangePercent *float64  `json:"change_percent"` // 涨跌幅(%)
	Open          *float64  `json:"open"`           // 开盘价
	High          *float64  `json:"high"`           // 最高价
	Low           *float64  `json:"low"`            // 最低价
	PrevClose     *float64  `json:"prev_close"`     // 昨收价
	Volume        *int64    `json:"volume"`         // 成交量(股)
	Turnover      *float64  `json:"turnover"`       // 成交额(元)
	PE            *float64  `json:"pe"`             // 市盈率
	PB            *float64  `json:"pb"`             // 市净率
	MarketCap     *float64  `json:"market_cap"`     // 总市值(元)
	Currency      string    `json:"currency"`       // 计价货币 (CNY/USD/HKD)
	Timestamp     time.Time `json:"timestamp"`      // 行情时间
	Source        string    `json:"source"`         // 实际数据来源
}

// Bar 单根K线
type Bar struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// HistoryRecord 历史行情记录，K线按日期升序且无重复日期
type HistoryRecord struct {
	Symbol string `json:"symbol"`
	Period Period `json:"period"`
	Source string `json:"source"`
	Bars   []Bar  `json:"bars"`
}

// HistoryRequest 历史数据请求参数。
// 对外的字符串日期在分发前已解析校验，零值表示未指定。
type HistoryRequest struct {
	Period Period    // 周期
	Start  time.Time // 开始日期，零值表示不限
	End    time.Time // 结束日期，零值表示不限
	Count  int       // 返回的最大K线数
}

// CompanyRecord 公司信息记录
type CompanyRecord struct {
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	Industry          string `json:"industry"`
	ListDate          string `json:"list_date"`
	Province          string `json:"province"`
	MainBusiness      string `json:"main_business"`
	RegisteredCapital string `json:"registered_capital"`
	Website           string `json:"website"`
	Chairman          string `json:"chairman"`
	Employees         *int64 `json:"employees"`
	Source            string `json:"source"`
}

// SearchResult 证券搜索结果
type SearchResult struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Exchange Exchange `json:"exchange"`
	Market   string   `json:"market"` // cn / us / hk
}

// SortBars 将K线按日期升序排列并去重，重复日期保留后出现的一根
func SortBars(bars []Bar) []Bar {
	if len(bars) == 0 {
		return bars
	}
	byDate := make(map[string]Bar, len(bars))
	dates := make([]string, 0, len(bars))
	for _, b := range bars {
		if _, seen := byDate[b.Date]; !seen {
			dates = append(dates, b.Date)
		}
		byDate[b.Date] = b
	}
	// 日期为 YYYY-MM-DD，字典序即时间序
	sort.Strings(dates)
	out := make([]Bar, 0, len(dates))
	for _, d := range dates {
		out = append(out, byDate[d])
	}
	return out
}

// FloatPtr 构造 *float64
func FloatPtr(v float64) *float64 {
	return &v
}

// IntPtr 构造 *int64
func IntPtr(v int64) *int64 {
	return &v
}
