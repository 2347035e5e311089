package utils

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ToFloat 宽松转换为float64, 无法解析时返回0
func ToFloat(v interface{}) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	return cast.ToFloat64(v)
}

// FormatFixed 按固定小数位格式化数字字符串, 例如 "12.345" -> "12.35"
// 无法解析时按0处理
func FormatFixed(s string, places int32) string {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		d = decimal.Zero
	}
	return d.StringFixed(places)
}
