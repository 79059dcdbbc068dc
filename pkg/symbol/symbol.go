// Package symbol 实现证券代码的方言规范化。
// 同一只证券在不同数据源有不同书写形态（前缀式 sh603060、后缀式
// 603060.SH / 603060.SS、裸美股代码等），本包在各方言之间做纯函数转换，
// 不做任何 I/O。无法推断交易所的裸6位代码一律拒绝，不做猜测。
package symbol

import (
	"strings"

	"stockquery/pkg/provider/core"
)

// Symbol 规范化后的证券代码：交易所 + 纯代码
type Symbol struct {
	Raw      string        // 原始输入
	Exchange core.Exchange // 交易所
	Code     string        // 纯代码，如 603060 / 0700 / AAPL
}

// Parse 识别原始输入并解析为规范形式。
// 可识别形态：sh/sz 前缀 + 6位数字；6位数字 + .SS/.SH/.SZ 后缀；
// 1-5位数字 + .HK；1-5位大写字母（美股）。
// 裸6位数字返回 ambiguous_symbol，其余不可识别形态返回 invalid_symbol。
func Parse(raw string) (Symbol, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Symbol{}, core.InvalidSymbol(raw, "empty input")
	}
	upper := strings.ToUpper(trimmed)

	// 前缀方言: sh603060 / SZ000001
	if len(upper) == 8 {
		prefix, digits := upper[:2], upper[2:]
		if (prefix == "SH" || prefix == "SZ") && isDigits(digits) {
			return Symbol{Raw: raw, Exchange: core.Exchange(prefix), Code: digits}, nil
		}
	}

	// 后缀方言: 603060.SS / 603060.SH / 000001.SZ / 0700.HK
	if dot := strings.LastIndex(upper, "."); dot > 0 {
		code, suffix := upper[:dot], upper[dot+1:]
		switch suffix {
		case "SS", "SH":
			if len(code) == 6 && isDigits(code) {
				return Symbol{Raw: raw, Exchange: core.ExchangeSH, Code: code}, nil
			}
		case "SZ":
			if len(code) == 6 && isDigits(code) {
				return Symbol{Raw: raw, Exchange: core.ExchangeSZ, Code: code}, nil
			}
		case "HK":
			if len(code) >= 1 && len(code) <= 5 && isDigits(code) {
				return Symbol{Raw: raw, Exchange: core.ExchangeHK, Code: padHKCode(code)}, nil
			}
		}
		return Symbol{}, core.InvalidSymbol(raw, "unrecognized exchange suffix")
	}

	// 裸6位数字无法推断沪深，拒绝而不是猜测
	if len(upper) == 6 && isDigits(upper) {
		return Symbol{}, core.AmbiguousSymbol(raw)
	}

	// 裸美股代码: AAPL / MSFT / BRK 等 1-5 位字母
	if len(upper) >= 1 && len(upper) <= 5 && isLetters(upper) {
		return Symbol{Raw: raw, Exchange: core.ExchangeUS, Code: upper}, nil
	}

	return Symbol{}, core.InvalidSymbol(raw, "unrecognized symbol shape")
}

// ForSource 渲染为目标数据源要求的方言。
// 目标源不覆盖该交易所时返回 permanent_provider 错误。
func (s Symbol) ForSource(source core.Source) (string, error) {
	switch source {
	case core.SourceSina, core.SourceTencent:
		// 前缀方言，小写
		switch s.Exchange {
		case core.ExchangeSH, core.ExchangeSZ:
			return strings.ToLower(string(s.Exchange)) + s.Code, nil
		}
	case core.SourceTushare:
		// 后缀方言，.SH/.SZ 而非 .SS
		switch s.Exchange {
		case core.ExchangeSH:
			return s.Code + ".SH", nil
		case core.ExchangeSZ:
			return s.Code + ".SZ", nil
		}
	case core.SourceYFinance:
		switch s.Exchange {
		case core.ExchangeSH:
			return s.Code + ".SS", nil
		case core.ExchangeSZ:
			return s.Code + ".SZ", nil
		case core.ExchangeHK:
			return s.Code + ".HK", nil
		case core.ExchangeUS:
			return s.Code, nil
		}
	case core.SourcePandasDatareader:
		switch s.Exchange {
		case core.ExchangeHK:
			return s.Code + ".HK", nil
		case core.ExchangeUS:
			return s.Code, nil
		}
	default:
		return "", core.UnknownSource(string(source))
	}
	return "", core.Permanent(source, "exchange "+string(s.Exchange)+" not covered by source "+string(source), nil)
}

// Normalize 一步完成解析与方言渲染
func Normalize(raw string, source core.Source) (string, error) {
	sym, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return sym.ForSource(source)
}

// String 返回规范显示形式：A股前缀式小写，港股 NNNN.HK，美股裸代码
func (s Symbol) String() string {
	switch s.Exchange {
	case core.ExchangeSH, core.ExchangeSZ:
		return strings.ToLower(string(s.Exchange)) + s.Code
	case core.ExchangeHK:
		return s.Code + ".HK"
	default:
		return s.Code
	}
}

// Market 返回市场归属: cn / hk / us
func (s Symbol) Market() string {
	switch s.Exchange {
	case core.ExchangeSH, core.ExchangeSZ:
		return "cn"
	case core.ExchangeHK:
		return "hk"
	default:
		return "us"
	}
}

// IsAShare 判断是否为沪深A股
func (s Symbol) IsAShare() bool {
	return s.Exchange == core.ExchangeSH || s.Exchange == core.ExchangeSZ
}

// Currency 返回交易所的计价货币
func (s Symbol) Currency() string {
	switch s.Exchange {
	case core.ExchangeSH, core.ExchangeSZ:
		return "CNY"
	case core.ExchangeHK:
		return "HKD"
	default:
		return "USD"
	}
}

// padHKCode 港股代码规范为4位：去掉多余前导零后左补零
func padHKCode(code string) string {
	trimmed := strings.TrimLeft(code, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	for len(trimmed) < 4 {
		trimmed = "0" + trimmed
	}
	return trimmed
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
