package datareader

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"stockquery/pkg/provider/core"
)

// parseCSV 解析 stooq 日线CSV。
// 表头为 Date,Open,High,Low,Close,Volume；无效代码时返回 "No data"
// 纯文本或只含表头的空表。
func parseCSV(providerSymbol string, r io.Reader) ([]core.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, core.Permanent(core.SourcePandasDatareader, "empty response for "+providerSymbol, nil)
	}
	if err != nil {
		return nil, core.Permanent(core.SourcePandasDatareader, "response is not valid csv", err)
	}
	if len(header) < 5 || !strings.EqualFold(header[0], "Date") {
		// "No data" 等提示文本会落到这里
		return nil, core.Permanent(core.SourcePandasDatareader, "no data for "+providerSymbol+": "+strings.Join(header, ","), nil)
	}

	var bars []core.Bar
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.Permanent(core.SourcePandasDatareader, "response is not valid csv", err)
		}
		if len(row) < 5 || row[0] == "" || strings.EqualFold(row[1], "N/D") {
			continue
		}

		bar := core.Bar{
			Date:  row[0],
			Open:  parseFloat(row[1]),
			High:  parseFloat(row[2]),
			Low:   parseFloat(row[3]),
			Close: parseFloat(row[4]),
		}
		if len(row) > 5 {
			bar.Volume = parseInt(row[5])
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// parseFloat 安全解析浮点数
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseInt 安全解析整数，指数类无成交量字段时记零
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return v
}
