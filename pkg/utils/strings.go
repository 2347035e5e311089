package utils

import (
	"strings"
	"unicode/utf8"
)

// SanitizeUTF8 清理字符串中的无效UTF-8字符
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	result := make([]byte, 0, len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
		} else {
			result = append(result, s[:size]...)
			s = s[size:]
		}
	}

	return string(result)
}

// NormalizeSymbol 统一交易对写法: 去掉空白和分隔符并转大写, "btc/usdt" -> "BTCUSDT"
func NormalizeSymbol(symbol string) string {
	symbol = SanitizeUTF8(strings.TrimSpace(symbol))
	symbol = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(symbol)
	return strings.ToUpper(symbol)
}
