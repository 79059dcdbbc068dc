package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"stockquery/pkg/provider/core"
)

// apiRequest tushare pro 统一请求体
type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

// apiResponse tushare pro 统一响应体，数据为列名加行数组的二维表
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// table 将响应数据包装为按列名取值的二维表
type table struct {
	index map[string]int
	items [][]any
}

func newTable(fields []string, items [][]any) *table {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return &table{index: idx, items: items}
}

// Len 返回行数
func (t *table) Len() int {
	return len(t.items)
}

// Str 取字符串列，缺失返回空串
func (t *table) Str(row int, field string) string {
	v := t.cell(row, field)
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// Float 取数值列，缺失返回 nil
func (t *table) Float(row int, field string) *float64 {
	v := t.cell(row, field)
	if v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func (t *table) cell(row int, field string) any {
	col, ok := t.index[field]
	if !ok || row >= len(t.items) || col >= len(t.items[row]) {
		return nil
	}
	return t.items[row][col]
}

// call 调用 tushare pro 接口并返回二维表
func (p *Provider) call(ctx context.Context, apiName string, params map[string]string, fields string) (*table, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(apiRequest{
		APIName: apiName,
		Token:   p.token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, core.Permanent(core.SourceTushare, "marshal request failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, core.Permanent(core.SourceTushare, "create request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.Transient(core.SourceTushare, "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Transient(core.SourceTushare, "read response failed", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, core.Permanent(core.SourceTushare, "response is not valid json", err)
	}
	if envelope.Code != 0 {
		return nil, apiError(apiName, envelope.Code, envelope.Msg)
	}

	return newTable(envelope.Data.Fields, envelope.Data.Items), nil
}

// statusError 按HTTP状态码分类错误
func statusError(status int) error {
	msg := "http status " + strconv.Itoa(status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return core.Transient(core.SourceTushare, msg, nil)
	}
	return core.Permanent(core.SourceTushare, msg, nil)
}

// apiError 按业务错误码分类。
// 频控类错误带"每分钟"或"访问频率"字样，属瞬时；其余(token无效、积分不足等)不可重试。
func apiError(apiName string, code int, msg string) error {
	full := fmt.Sprintf("%s api error: code=%d msg=%s", apiName, code, msg)
	if strings.Contains(msg, "每分钟") || strings.Contains(msg, "访问频率") || strings.Contains(msg, "最多访问") {
		return core.Transient(core.SourceTushare, full, nil)
	}
	return core.Permanent(core.SourceTushare, full, nil)
}
