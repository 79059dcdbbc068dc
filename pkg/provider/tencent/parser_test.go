package tencent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockquery/pkg/provider/core"
)

func TestDecodeGBK(t *testing.T) {
	gbkBytes := []byte{0xb9, 0xfa, 0xbc, 0xec, 0xbc, 0xaf, 0xcd, 0xc5} // "国检集团" in GBK
	utf8Str, err := decodeGBK(gbkBytes)
	assert.NoError(t, err)
	assert.Equal(t, "国检集团", utf8Str)
}

func TestParseQuote_FieldCountMismatch(t *testing.T) {
	// 字段数量不足
	input := `v_sh600001="1~部分数据~600001~10.21";`
	_, err := parseQuote("sh600001", input)
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestParseTurnover(t *testing.T) {
	tests := []struct {
		input    string
		expected *float64
		desc     string
	}{
		{
			input:    "125.80/399865/5027135558",
			expected: core.FloatPtr(5027135558.0),
			desc:     "复合格式",
		},
		{
			input:    "125.80/399865/",
			expected: nil,
			desc:     "缺少成交额",
		},
		{
			input:    "5027135558",
			expected: core.FloatPtr(5027135558.0),
			desc:     "直接数字",
		},
		{
			input:    "",
			expected: nil,
			desc:     "空字符串",
		},
		{
			input:    "invalid/data/format",
			expected: nil,
			desc:     "无效格式",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			result := parseTurnover(tt.input)
			if tt.expected == nil {
				assert.Nil(t, result)
			} else {
				require.NotNil(t, result)
				assert.Equal(t, *tt.expected, *result)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input    string
		desc     string
		validate func(t *testing.T, result time.Time)
	}{
		{
			input: "20260821150003",
			desc:  "14位时间戳",
			validate: func(t *testing.T, result time.Time) {
				expected := time.Date(2026, 8, 21, 15, 0, 3, 0, time.Local)
				assert.Equal(t, expected, result)
			},
		},
		{
			input: "202608211500",
			desc:  "12位时间戳",
			validate: func(t *testing.T, result time.Time) {
				expected := time.Date(2026, 8, 21, 15, 0, 0, 0, time.Local)
				assert.Equal(t, expected, result)
			},
		},
		{
			input: "",
			desc:  "空时间戳",
			validate: func(t *testing.T, result time.Time) {
				diff := time.Since(result)
				assert.LessOrEqual(t, diff.Abs(), time.Second, "空时间戳应该返回当前时间")
			},
		},
		{
			input: "invalid",
			desc:  "无效时间戳",
			validate: func(t *testing.T, result time.Time) {
				diff := time.Since(result)
				assert.LessOrEqual(t, diff.Abs(), time.Second, "无效时间戳应该返回当前时间")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			result := parseTime(tt.input)
			tt.validate(t, result)
		})
	}
}

func TestParseVolume(t *testing.T) {
	// 手转股
	v := parseVolume("56789")
	require.NotNil(t, v)
	assert.Equal(t, int64(5678900), *v)

	assert.Nil(t, parseVolume(""))
	assert.Nil(t, parseVolume("abc"))
}

func TestParseMarketCap(t *testing.T) {
	// 亿元转元
	v := parseMarketCap("51.63")
	require.NotNil(t, v)
	assert.InDelta(t, 51.63e8, *v, 1)

	assert.Nil(t, parseMarketCap(""))
	assert.Nil(t, parseMarketCap("0"))
}

func TestParseKline_MissingSymbol(t *testing.T) {
	body := []byte(`{"code":0,"data":{"sh600000":{"day":[]}}}`)
	_, err := parseKline("sh603060", "day", body)
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestParseKline_QfqFallback(t *testing.T) {
	// 部分响应只含前复权键
	body := []byte(`{"code":0,"data":{"sh603060":{"qfqday":[["2026-08-21","10.01","10.21","10.30","9.90","56789.00"]]}}}`)
	bars, err := parseKline("sh603060", "day", body)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "2026-08-21", bars[0].Date)
	assert.InDelta(t, 10.21, bars[0].Close, 0.001)
}

func TestParseKline_BadJSON(t *testing.T) {
	_, err := parseKline("sh603060", "day", []byte("not json"))
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 10.21, toFloat("10.21"))
	assert.Equal(t, 10.21, toFloat(10.21))
	assert.Equal(t, 0.0, toFloat("abc"))
	assert.Equal(t, 0.0, toFloat(nil))
}
