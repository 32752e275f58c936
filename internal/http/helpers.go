package http

import (
	"strconv"
	"strings"
)

// sanitizeInput removes control characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func statsKey(year, month int) string {
	return strconv.Itoa(year) + "-" + strconv.Itoa(month)
}
