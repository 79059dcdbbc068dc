// Package catalog 提供内置证券名录检索。
// 各上游的搜索接口不稳定且口径不一，这里改为检索一份静态名录：
// 按代码或名称子串匹配，支持市场过滤。
package catalog

import (
	"strings"

	"stockquery/pkg/provider/core"
)

// Entry 名录条目
type Entry struct {
	Symbol   string        // 规范显示形式
	Name     string        // 证券名称
	Exchange core.Exchange // 交易所
	Market   string        // cn / us / hk
}

var entries = []Entry{
	{"sh600000", "浦发银行", core.ExchangeSH, "cn"},
	{"sh600036", "招商银行", core.ExchangeSH, "cn"},
	{"sh600519", "贵州茅台", core.ExchangeSH, "cn"},
	{"sh601318", "中国平安", core.ExchangeSH, "cn"},
	{"sh603060", "国检集团", core.ExchangeSH, "cn"},
	{"sh688036", "传音控股", core.ExchangeSH, "cn"},
	{"sz000001", "平安银行", core.ExchangeSZ, "cn"},
	{"sz000002", "万科A", core.ExchangeSZ, "cn"},
	{"sz000858", "五粮液", core.ExchangeSZ, "cn"},
	{"sz300750", "宁德时代", core.ExchangeSZ, "cn"},
	{"0700.HK", "腾讯控股", core.ExchangeHK, "hk"},
	{"0941.HK", "中国移动", core.ExchangeHK, "hk"},
	{"9988.HK", "阿里巴巴-W", core.ExchangeHK, "hk"},
	{"AAPL", "Apple Inc.", core.ExchangeUS, "us"},
	{"MSFT", "Microsoft Corporation", core.ExchangeUS, "us"},
	{"GOOGL", "Alphabet Inc.", core.ExchangeUS, "us"},
	{"TSLA", "Tesla, Inc.", core.ExchangeUS, "us"},
	{"NVDA", "NVIDIA Corporation", core.ExchangeUS, "us"},
}

// Markets 合法的市场过滤值
var Markets = []string{"all", "cn", "us", "hk"}

// ValidMarket 判断市场过滤值是否合法，空串等同 all
func ValidMarket(market string) bool {
	if market == "" {
		return true
	}
	m := strings.ToLower(market)
	for _, known := range Markets {
		if m == known {
			return true
		}
	}
	return false
}

// Search 按代码或名称子串检索名录。
// query 大小写不敏感；market 取 all/cn/us/hk，空串等同 all。
func Search(query, market string) []core.SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	m := strings.ToLower(market)
	if m == "" {
		m = "all"
	}

	var results []core.SearchResult
	if q == "" {
		return results
	}

	for _, e := range entries {
		if m != "all" && e.Market != m {
			continue
		}
		if strings.Contains(strings.ToLower(e.Symbol), q) || strings.Contains(strings.ToLower(e.Name), q) {
			results = append(results, core.SearchResult{
				Symbol:   e.Symbol,
				Name:     e.Name,
				Exchange: e.Exchange,
				Market:   e.Market,
			})
		}
	}
	return results
}
