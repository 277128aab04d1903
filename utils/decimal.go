package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount accepts user-formatted quantities and amounts like
// "20,000", "MMK 20,000", "MMK -20,000" or "Ks 20000".
// Keeps digits, '.', and a leading '-' only.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s != "" {
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, "MMK", "")
		s = strings.ReplaceAll(s, "mmk", "")
		s = strings.ReplaceAll(s, "Ks", "")
		s = strings.ReplaceAll(s, "ks", "")
		s = strings.TrimSpace(s)
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "+"))
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return decimal.Zero, fmt.Errorf("invalid value %q", raw)
	}
	if neg {
		clean = "-" + clean
	}
	return decimal.NewFromString(clean)
}
