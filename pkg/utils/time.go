package utils

import (
	"fmt"
	"time"
)

var agoUnits = []struct {
	name string
	size float64
}{
	{"sec", 60},
	{"min", 60},
	{"hr", 24},
	{"day", 7},
	{"week", 4.35},
	{"month", 12},
	{"year", 10000},
}

// Ago 把unix秒时间戳转换为相对时间, 例如 "5 mins ago", "1 hr ago"
func Ago(unixSeconds int64, now time.Time) string {
	val := int64(now.Sub(time.Unix(unixSeconds, 0)) / time.Second)
	if val < 0 {
		val = 0
	}
	for _, unit := range agoUnits {
		result := int64(float64(val) - float64(int64(float64(val)/unit.size))*unit.size)
		val = int64(float64(val) / unit.size)
		if val == 0 {
			name := unit.name
			if result != 1 {
				name += "s"
			}
			return fmt.Sprintf("%d %s ago", result, name)
		}
	}
	return "long ago"
}
