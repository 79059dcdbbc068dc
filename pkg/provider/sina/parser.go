package sina

import (
	"bytes"
	"encoding/json"
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

// parseQuote 解析新浪行情响应中目标代码的记录。
// 响应形如: var hq_str_sh603060="国检集团,10.01,10.10,...";
// 字段序: 0名称 1开盘 2昨收 3现价 4最高 5最低 ... 8成交量(股) 9成交额(元) ... 30日期 31时间
func parseQuote(providerSymbol, text string) (*core.QuoteRecord, error) {
	for _, line := range strings.Split(text, ";") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "=") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if extractSymbol(parts[0]) != providerSymbol {
			continue
		}

		payload := strings.Trim(parts[1], ` "`)
		if payload == "" {
			// 无效代码时新浪返回空串而不是错误
			return nil, core.Permanent(core.SourceSina, "empty payload, symbol not listed on this feed", nil)
		}

		fields := strings.Split(payload, ",")
		if len(fields) < 32 {
			return nil, core.Permanent(core.SourceSina, "response shape mismatch: expected >=32 fields, got "+strconv.Itoa(len(fields)), nil)
		}

		record := &core.QuoteRecord{
			Symbol:    providerSymbol,
			Name:      fields[0],
			Price:     parsePrice(fields[3]),
			Open:      parsePrice(fields[1]),
			High:      parsePrice(fields[4]),
			Low:       parsePrice(fields[5]),
			PrevClose: parsePrice(fields[2]),
			Volume:    parseIntPtr(fields[8]),
			Turnover:  parseFloatPtr(fields[9]),
			Currency:  "CNY",
			Timestamp: parseTime(fields[30], fields[31]),
			Source:    string(core.SourceSina),
		}
		fillChange(record)
		return record, nil
	}

	return nil, core.Permanent(core.SourceSina, "symbol "+providerSymbol+" not present in response", nil)
}

// parseProfile 解析公司概况JSON。
// 接口返回扁平对象，字段名历史上有过变化，按候选键提取。
func parseProfile(providerSymbol, text string) (*core.CompanyRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, core.Permanent(core.SourceSina, "profile response is not valid json", err)
	}
	if len(raw) == 0 {
		return nil, core.Permanent(core.SourceSina, "empty profile for "+providerSymbol, nil)
	}

	record := &core.CompanyRecord{
		Symbol:            providerSymbol,
		Name:              pickString(raw, "name", "corp_name", "company_name"),
		Industry:          pickString(raw, "industry", "industry_name"),
		ListDate:          pickString(raw, "listing_date", "list_date", "listDate"),
		Province:          pickString(raw, "province", "area"),
		MainBusiness:      pickString(raw, "main_business", "business_scope"),
		RegisteredCapital: pickString(raw, "reg_capital", "registered_capital"),
		Website:           pickString(raw, "website", "web_site"),
		Chairman:          pickString(raw, "chairman", "legal_person"),
		Employees:         pickInt(raw, "employees", "staff_num"),
		Source:            string(core.SourceSina),
	}

	if record.Name == "" && record.Industry == "" {
		return nil, core.Permanent(core.SourceSina, "profile response missing expected fields", nil)
	}
	return record, nil
}

// extractSymbol 从变量名提取代码, hq_str_sh603060 -> sh603060
func extractSymbol(rawVar string) string {
	parts := strings.Split(strings.TrimSpace(rawVar), "_")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}

// fillChange 由现价与昨收补算涨跌额与涨跌幅
func fillChange(r *core.QuoteRecord) {
	if r.Price == nil || r.PrevClose == nil || *r.PrevClose == 0 {
		return
	}
	change := *r.Price - *r.PrevClose
	percent := change / *r.PrevClose * 100
	r.Change = &change
	r.ChangePercent = &percent
}

// parsePrice 解析价格字段。
// 空串、解析失败按缺失处理；停牌/集合竞价前接口返回 0.000，同样视为缺失，
// 避免把"无价格"折算成零价格。
func parsePrice(s string) *float64 {
	v := parseFloatPtr(s)
	if v != nil && *v == 0 {
		return nil
	}
	return v
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

// parseIntPtr 安全解析整数，缺失返回 nil
func parseIntPtr(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// 部分字段带小数形式的整数
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		iv := int64(f)
		return &iv
	}
	return &v
}

// parseTime 解析日期和时间字段
func parseTime(dateStr, timeStr string) time.Time {
	layout := "2006-01-02 15:04:05"
	ts, err := time.ParseInLocation(layout, strings.TrimSpace(dateStr)+" "+strings.TrimSpace(timeStr), time.Local)
	if err != nil {
		return time.Now()
	}
	return ts
}

// pickString 按候选键序提取字符串字段
func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// pickInt 按候选键序提取整数字段
func pickInt(m map[string]any, keys ...string) *int64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			iv := int64(n)
			return &iv
		case string:
			if iv, err := strconv.ParseInt(n, 10, 64); err == nil {
				return &iv
			}
		}
	}
	return nil
}
