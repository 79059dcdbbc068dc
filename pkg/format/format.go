// Package format 将规范记录渲染为终端表格或 JSON 文本。
// 表格宽度按内容计算不截断，数值列右对齐，缺失值以 "-" 占位，
// 相同输入的渲染结果逐字节一致。
package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stockquery/pkg/provider/core"
)

// Format 输出格式
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Parse 解析输出格式名称，空串取表格，大小写不敏感
func Parse(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format '%s' (expected table or json)", name)
}

// 缺失值占位符
const placeholder = "-"

// 成交量、成交额与市值按千分位分组显示
var numPrinter = message.NewPrinter(language.English)

// BatchEntry 批量行情中的单个条目，Record 与 Err 互斥
type BatchEntry struct {
	Symbol string
	Record *core.QuoteRecord
	Err    error
}

// batchFailure 批量 JSON 输出中的失败条目
type batchFailure struct {
	Symbol string          `json:"symbol"`
	Error  batchFailureErr `json:"error"`
}

type batchFailureErr struct {
	Code    core.Code `json:"code"`
	Message string    `json:"message"`
}

// Quote 渲染单条行情，JSON 模式输出单个对象
func Quote(rec *core.QuoteRecord, f Format) (string, error) {
	if f == FormatJSON {
		return marshal(rec)
	}
	return quoteTable([]*core.QuoteRecord{rec}), nil
}

// Quotes 渲染批量行情。表格模式成功条目进表格、失败条目逐行追加；
// JSON 模式输出保持原顺序的列表，失败条目带 error.code/error.message。
func Quotes(entries []BatchEntry, f Format) (string, error) {
	if f == FormatJSON {
		items := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			if e.Err != nil {
				items = append(items, batchFailure{
					Symbol: e.Symbol,
					Error:  batchFailureErr{Code: core.CodeOf(e.Err), Message: e.Err.Error()},
				})
				continue
			}
			items = append(items, e.Record)
		}
		return marshal(items)
	}

	var records []*core.QuoteRecord
	var failed []string
	for _, e := range entries {
		if e.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: Error - %s", e.Symbol, e.Err))
			continue
		}
		records = append(records, e.Record)
	}

	var b strings.Builder
	if len(records) > 0 {
		b.WriteString(quoteTable(records))
	}
	for _, line := range failed {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String(), nil
}

// History 渲染历史K线，表格模式带一行概要
func History(rec *core.HistoryRecord, f Format) (string, error) {
	if f == FormatJSON {
		if rec.Bars == nil {
			clone := *rec
			clone.Bars = []core.Bar{}
			return marshal(&clone)
		}
		return marshal(rec)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"日期", "开盘", "最高", "最低", "收盘", "成交量"})
	t.SetColumnConfigs(rightAligned(2, 6))
	for _, bar := range rec.Bars {
		t.AppendRow(table.Row{
			bar.Date,
			fmt.Sprintf("%.2f", bar.Open),
			fmt.Sprintf("%.2f", bar.High),
			fmt.Sprintf("%.2f", bar.Low),
			fmt.Sprintf("%.2f", bar.Close),
			numPrinter.Sprintf("%d", bar.Volume),
		})
	}

	head := fmt.Sprintf("%s %s | 共%d条 | 数据源: %s", rec.Symbol, rec.Period, len(rec.Bars), rec.Source)
	return head + "\n" + t.Render(), nil
}

// Company 渲染公司信息，表格模式为字段/值两列
func Company(rec *core.CompanyRecord, f Format) (string, error) {
	if f == FormatJSON {
		return marshal(rec)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendRow(table.Row{"代码", orDash(rec.Symbol)})
	t.AppendRow(table.Row{"名称", orDash(rec.Name)})
	t.AppendRow(table.Row{"行业", orDash(rec.Industry)})
	t.AppendRow(table.Row{"上市日期", orDash(rec.ListDate)})
	t.AppendRow(table.Row{"地区", orDash(rec.Province)})
	t.AppendRow(table.Row{"主营业务", orDash(rec.MainBusiness)})
	t.AppendRow(table.Row{"注册资本", orDash(rec.RegisteredCapital)})
	t.AppendRow(table.Row{"网站", orDash(rec.Website)})
	t.AppendRow(table.Row{"董事长", orDash(rec.Chairman)})
	t.AppendRow(table.Row{"员工数", fmtInt(rec.Employees)})
	t.AppendRow(table.Row{"数据源", orDash(rec.Source)})
	return t.Render(), nil
}

// SearchResults 渲染搜索结果列表
func SearchResults(results []core.SearchResult, f Format) (string, error) {
	if f == FormatJSON {
		if results == nil {
			results = []core.SearchResult{}
		}
		return marshal(results)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"代码", "名称", "交易所", "市场"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Symbol, r.Name, string(r.Exchange), r.Market})
	}
	return t.Render(), nil
}

var quoteHeader = table.Row{
	"代码", "名称", "现价", "涨跌", "涨跌幅", "开盘", "最高", "最低", "昨收",
	"成交量", "成交额", "市盈率", "市净率", "市值", "币种", "时间", "数据源",
}

func quoteTable(records []*core.QuoteRecord) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(quoteHeader)
	// 现价到市值为数值列
	t.SetColumnConfigs(rightAligned(3, 14))
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Symbol,
			orDash(r.Name),
			fmtPrice(r.Price),
			fmtSigned(r.Change),
			fmtPercent(r.ChangePercent),
			fmtPrice(r.Open),
			fmtPrice(r.High),
			fmtPrice(r.Low),
			fmtPrice(r.PrevClose),
			fmtInt(r.Volume),
			fmtAmount(r.Turnover),
			fmtPrice(r.PE),
			fmtPrice(r.PB),
			fmtWhole(r.MarketCap),
			orDash(r.Currency),
			fmtTime(r.Timestamp),
			orDash(r.Source),
		})
	}
	return t.Render()
}

// rightAligned 生成 [from, to] 列区间的右对齐配置
func rightAligned(from, to int) []table.ColumnConfig {
	cfgs := make([]table.ColumnConfig, 0, to-from+1)
	for n := from; n <= to; n++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	return cfgs
}

func marshal(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(data), nil
}

func orDash(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func fmtPrice(v *float64) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf("%.2f", *v)
}

func fmtSigned(v *float64) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf("%+.2f", *v)
}

func fmtPercent(v *float64) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func fmtInt(v *int64) string {
	if v == nil {
		return placeholder
	}
	return numPrinter.Sprintf("%d", *v)
}

func fmtAmount(v *float64) string {
	if v == nil {
		return placeholder
	}
	return numPrinter.Sprintf("%.2f", *v)
}

func fmtWhole(v *float64) string {
	if v == nil {
		return placeholder
	}
	return numPrinter.Sprintf("%.0f", *v)
}

func fmtTime(ts time.Time) string {
	if ts.IsZero() {
		return placeholder
	}
	return ts.Format("2006-01-02 15:04:05")
}
