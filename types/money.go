package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidAmount is returned for amounts that are not valid non-negative
// decimals.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmountCents converts a decimal string to integer cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted, with
// half-up rounding on the third decimal place. Zero is a valid amount;
// negative values and signs are rejected.
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	const maxInt64 = 1<<63 - 1
	if iv > (maxInt64-fracCents)/100 {
		return 0, ErrInvalidAmount
	}
	return iv*100 + fracCents, nil
}

// FormatAmountCents renders cents as a decimal string with two fractional
// digits, e.g. 1234 -> "12.34".
func FormatAmountCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
