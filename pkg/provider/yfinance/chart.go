package yfinance

import (
	"time"

	"stockquery/pkg/provider/core"
)

// chartResponse Yahoo v8 chart 接口响应
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Currency             string   `json:"currency"`
		Symbol               string   `json:"symbol"`
		LongName             string   `json:"longName"`
		ShortName            string   `json:"shortName"`
		Gmtoffset            int64    `json:"gmtoffset"`
		RegularMarketPrice   *float64 `json:"regularMarketPrice"`
		ChartPreviousClose   *float64 `json:"chartPreviousClose"`
		PreviousClose        *float64 `json:"previousClose"`
		RegularMarketDayHigh *float64 `json:"regularMarketDayHigh"`
		RegularMarketDayLow  *float64 `json:"regularMarketDayLow"`
		RegularMarketVolume  *int64   `json:"regularMarketVolume"`
		RegularMarketTime    int64    `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// toQuote 由图表结果构造行情记录
func (r *chartResult) toQuote(providerSymbol string) *core.QuoteRecord {
	meta := r.Meta

	name := meta.ShortName
	if name == "" {
		name = meta.LongName
	}
	if name == "" {
		name = providerSymbol
	}

	prevClose := meta.ChartPreviousClose
	if prevClose == nil {
		prevClose = meta.PreviousClose
	}

	record := &core.QuoteRecord{
		Symbol:    providerSymbol,
		Name:      name,
		Price:     meta.RegularMarketPrice,
		High:      meta.RegularMarketDayHigh,
		Low:       meta.RegularMarketDayLow,
		PrevClose: prevClose,
		Volume:    meta.RegularMarketVolume,
		Open:      r.sessionOpen(),
		Currency:  meta.Currency,
		Source:    string(core.SourceYFinance),
	}

	if meta.RegularMarketTime > 0 {
		record.Timestamp = time.Unix(meta.RegularMarketTime, 0)
	} else {
		record.Timestamp = time.Now()
	}

	if record.Price != nil && record.PrevClose != nil && *record.PrevClose != 0 {
		change := *record.Price - *record.PrevClose
		percent := change / *record.PrevClose * 100
		record.Change = &change
		record.ChangePercent = &percent
	}

	return record
}

// sessionOpen 取当日第一个有效开盘价
func (r *chartResult) sessionOpen() *float64 {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	for _, v := range r.Indicators.Quote[0].Open {
		if v != nil {
			return v
		}
	}
	return nil
}

// toBars 由图表结果构造K线序列。
// 时间戳为交易所时区的epoch，按 gmtoffset 还原当地日期；空槽位(停牌日)跳过。
func (r *chartResult) toBars() []core.Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	quote := r.Indicators.Quote[0]

	bars := make([]core.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		closeAt := at(quote.Close, i)
		if closeAt == nil {
			continue
		}
		bar := core.Bar{
			Date:  time.Unix(ts+r.Meta.Gmtoffset, 0).UTC().Format("2006-01-02"),
			Close: *closeAt,
		}
		if v := at(quote.Open, i); v != nil {
			bar.Open = *v
		}
		if v := at(quote.High, i); v != nil {
			bar.High = *v
		}
		if v := at(quote.Low, i); v != nil {
			bar.Low = *v
		}
		if v := atInt(quote.Volume, i); v != nil {
			bar.Volume = *v
		}
		bars = append(bars, bar)
	}
	return bars
}

func at(s []*float64, i int) *float64 {
	if i >= len(s) {
		return nil
	}
	return s[i]
}

func atInt(s []*int64, i int) *int64 {
	if i >= len(s) {
		return nil
	}
	return s[i]
}
