package stock

import (
	"context"
	"fmt"

	"stockquery/pkg/format"
)

// 本文件是字符串进出的工具型操作面：所有预期失败（无效代码、
// 数据源失败、参数错误）一律渲染为返回文本，不作为 Go error 暴露。

// GetStockQuote 获取单只证券的实时行情。
// source 为空取 sina，format 为空取表格。
func (s *Service) GetStockQuote(ctx context.Context, symbol, source, formatName string) string {
	f, err := format.Parse(formatName)
	if err != nil {
		return fmt.Sprintf("Failed to get stock data: %v", err)
	}
	rec, err := s.Quote(ctx, symbol, source)
	if err != nil {
		return fmt.Sprintf("Failed to get stock data: %v", err)
	}
	out, err := format.Quote(rec, f)
	if err != nil {
		return fmt.Sprintf("Failed to get stock data: %v", err)
	}
	return out
}

// GetMultipleStockQuotes 批量获取行情，输出条目与输入顺序一致，
// 失败的符号在输出中保留错误条目。
func (s *Service) GetMultipleStockQuotes(ctx context.Context, symbols []string, source, formatName string) string {
	f, err := format.Parse(formatName)
	if err != nil {
		return fmt.Sprintf("Failed to get batch stock data: %v", err)
	}
	if len(symbols) == 0 {
		return "Failed to get batch stock data: no symbols given"
	}
	entries, err := s.QuoteBatch(ctx, symbols, source)
	if err != nil {
		return fmt.Sprintf("Failed to get batch stock data: %v", err)
	}
	out, err := format.Quotes(entries, f)
	if err != nil {
		return fmt.Sprintf("Failed to get batch stock data: %v", err)
	}
	return out
}

// SearchStock 按代码或名称关键字检索证券，market 为空等同 all
func (s *Service) SearchStock(ctx context.Context, query, market string) string {
	results, err := s.Search(query, market)
	if err != nil {
		return fmt.Sprintf("Failed to search stocks: %v", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No stocks found related to '%s'", query)
	}
	out, err := format.SearchResults(results, format.FormatTable)
	if err != nil {
		return fmt.Sprintf("Failed to search stocks: %v", err)
	}
	return out
}

// GetStockHistory 获取历史K线，输出 JSON 文本。
// period 为空取 daily，count 非正值取 100。
func (s *Service) GetStockHistory(ctx context.Context, symbol, period, startDate, endDate string, count int) string {
	rec, err := s.History(ctx, symbol, period, startDate, endDate, count)
	if err != nil {
		return fmt.Sprintf("Failed to get historical data: %v", err)
	}
	out, err := format.History(rec, format.FormatJSON)
	if err != nil {
		return fmt.Sprintf("Failed to get historical data: %v", err)
	}
	return out
}

// GetCompanyInfo 获取公司基本信息，输出 JSON 文本
func (s *Service) GetCompanyInfo(ctx context.Context, symbol string) string {
	rec, err := s.Company(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Failed to get company information: %v", err)
	}
	out, err := format.Company(rec, format.FormatJSON)
	if err != nil {
		return fmt.Sprintf("Failed to get company information: %v", err)
	}
	return out
}
