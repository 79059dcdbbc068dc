package tencent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"stockquery/pkg/provider/core"
)

// decodeGBK 将GBK编码的响应解码为UTF-8
func decodeGBK(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	reader := transform.NewReader(bytes.NewReader(data), simplifiedchinese.GBK.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// parseQuote 解析腾讯行情响应中目标代码的记录。
// 响应形如: v_sh603060="1~国检集团~603060~10.21~10.10~10.01~...";
// 字段序: 0市场 1名称 2代码 3现价 4昨收 5开盘 6成交量(手) ... 30时间戳
// 31涨跌 32涨跌幅 33最高 34最低 35现价/成交量/成交额 ... 39市盈率 45总市值(亿) 46市净率
func parseQuote(providerSymbol, text string) (*core.QuoteRecord, error) {
	for _, line := range strings.Split(text, ";") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		equalIndex := strings.Index(line, "=")
		if equalIndex == -1 || equalIndex+1 >= len(line) {
			continue
		}

		varName := line[:equalIndex]
		if strings.Contains(varName, "pv_none_match") {
			return nil, core.Permanent(core.SourceTencent, "symbol "+providerSymbol+" not listed on this feed", nil)
		}
		if !strings.HasSuffix(varName, "_"+providerSymbol) {
			continue
		}

		payload := strings.Trim(line[equalIndex+1:], `"`)
		fields := strings.Split(payload, "~")
		if len(fields) < 50 {
			return nil, core.Permanent(core.SourceTencent, fmt.Sprintf("response shape mismatch: expected >=50 fields, got %d", len(fields)), nil)
		}

		record := &core.QuoteRecord{
			Symbol:        providerSymbol,
			Name:          fields[1],
			Price:         parsePrice(fields[3]),
			PrevClose:     parsePrice(fields[4]),
			Open:          parsePrice(fields[5]),
			Volume:        parseVolume(fields[6]),
			Change:        parseFloatPtr(fields[31]),
			ChangePercent: parseFloatPtr(fields[32]),
			High:          parsePrice(fields[33]),
			Low:           parsePrice(fields[34]),
			Turnover:      parseTurnover(fields[35]),
			PE:            parseRatio(fields[39]),
			MarketCap:     parseMarketCap(fields[45]),
			PB:            parseRatio(fields[46]),
			Currency:      "CNY",
			Timestamp:     parseTime(fields[30]),
			Source:        string(core.SourceTencent),
		}
		return record, nil
	}

	return nil, core.Permanent(core.SourceTencent, "symbol "+providerSymbol+" not present in response", nil)
}

// parseKline 解析K线响应。
// 结构: {"code":0,"data":{"sh603060":{"day":[["2026-08-20","10.01","10.21","10.30","9.90","56789.00"],...]}}}
// 行内字段序为 日期/开盘/收盘/最高/最低/成交量(手)。
func parseKline(providerSymbol, periodKey string, body []byte) ([]core.Bar, error) {
	var envelope struct {
		Code int                                   `json:"code"`
		Msg  string                                `json:"msg"`
		Data map[string]map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, core.Permanent(core.SourceTencent, "kline response is not valid json", err)
	}
	if envelope.Code != 0 {
		return nil, core.Permanent(core.SourceTencent, fmt.Sprintf("kline api error: code=%d msg=%s", envelope.Code, envelope.Msg), nil)
	}

	entry, ok := envelope.Data[providerSymbol]
	if !ok {
		return nil, core.Permanent(core.SourceTencent, "no kline data for "+providerSymbol, nil)
	}

	// 前复权数据在 qfqday 等键下，未复权在 day 等键下，两者取其一
	raw, ok := entry[periodKey]
	if !ok {
		raw, ok = entry["qfq"+periodKey]
	}
	if !ok {
		return nil, core.Permanent(core.SourceTencent, "no "+periodKey+" bars for "+providerSymbol, nil)
	}

	var rows [][]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, core.Permanent(core.SourceTencent, "kline rows shape mismatch", err)
	}

	bars := make([]core.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		date, _ := row[0].(string)
		if date == "" {
			continue
		}
		bars = append(bars, core.Bar{
			Date:   date,
			Open:   toFloat(row[1]),
			Close:  toFloat(row[2]),
			High:   toFloat(row[3]),
			Low:    toFloat(row[4]),
			Volume: int64(toFloat(row[5]) * 100), // 手转股
		})
	}
	return bars, nil
}

// parsePrice 解析价格字段，0 视为缺失(停牌或未开盘)
func parsePrice(s string) *float64 {
	v := parseFloatPtr(s)
	if v != nil && *v == 0 {
		return nil
	}
	return v
}

// parseRatio 解析估值比率，0 表示无意义(如亏损股市盈率)
func parseRatio(s string) *float64 {
	return parsePrice(s)
}

// parseVolume 解析成交量并从手转换为股
func parseVolume(s string) *int64 {
	v := parseFloatPtr(s)
	if v == nil {
		return nil
	}
	shares := int64(*v) * 100
	return &shares
}

// parseMarketCap 解析总市值，单位由亿元转换为元
func parseMarketCap(s string) *float64 {
	v := parsePrice(s)
	if v == nil {
		return nil
	}
	yuan := *v * 1e8
	return &yuan
}

// parseTurnover 从复合字段中提取成交额(元)。
// 字段形如 最新价/成交量(手)/成交额(元)，历史上也出现过纯数值。
func parseTurnover(s string) *float64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	if len(parts) >= 3 {
		return parseFloatPtr(parts[2])
	}
	return parseFloatPtr(s)
}

// parseFloatPtr 安全解析浮点数，缺失返回 nil
func parseFloatPtr(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseTime 解析时间戳，14位含秒，12位到分
func parseTime(timeStr string) time.Time {
	timeStr = strings.TrimSpace(timeStr)

	var layout string
	switch len(timeStr) {
	case 14:
		layout = "20060102150405"
	case 12:
		layout = "200601021504"
	default:
		return time.Now()
	}

	t, err := time.ParseInLocation(layout, timeStr, time.Local)
	if err != nil {
		return time.Now()
	}
	return t
}

// toFloat 宽松转换K线行内的数值，兼容字符串与数字两种形态
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
