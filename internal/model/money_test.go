package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"plain integer", "80", "80", true},
		{"comma decimal with currency", "89,90 ₽", "89.9", true},
		{"dot decimal", "95.50", "95.5", true},
		{"thousands separated by space", "1 299₽", "1299", true},
		{"non-breaking space", "2 049 ₽", "2049", true},
		{"empty string", "", "0", false},
		{"only currency", "₽", "0", false},
		{"two separators", "1.2.3", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatRub(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"160", "160₽"},
		{"160.00", "160₽"},
		{"89.90", "89.9₽"},
		{"0", "0₽"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FormatRub(decimal.RequireFromString(tt.input)); got != tt.want {
				t.Errorf("FormatRub(%s) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
