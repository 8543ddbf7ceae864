package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a scraped storefront price ("89,90 ₽", "1 299₽") to a decimal.
// Everything except digits, dots and commas is dropped and a comma is read as
// the decimal separator. Reports false when nothing parseable remains.
// Examples: "89,90 ₽" → 89.90, "1 299₽" → 1299, "" → false
func ParsePrice(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}

	clean := b.String()
	if clean == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FormatRub renders an amount for display without rounding it.
// Examples: 160 → "160₽", 89.9 → "89.9₽"
func FormatRub(d decimal.Decimal) string {
	return d.String() + "₽"
}
