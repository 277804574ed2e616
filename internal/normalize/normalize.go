// Package normalize turns raw extracted strings into typed values. Each rule
// type has one normalizer; the anti-flap state machine compares only the
// normalized forms, never raw page text.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// numberToken grabs a digit run with embedded grouping separators.
	// Regular and no-break spaces are allowed inside so "1 299,00" survives.
	numberToken = regexp.MustCompile(`-?\d(?:[\d.,\s\x{00a0}]*\d)?`)
)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// parseAmount converts a localized numeric token into a float. Thousands and
// decimal separators are disambiguated by position: when both appear the last
// one is the decimal point; a lone separator followed by one or two digits is
// a decimal point, otherwise it groups thousands.
func parseAmount(token string) (float64, bool) {
	token = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, token)

	dots := strings.Count(token, ".")
	commas := strings.Count(token, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(token, ".") > strings.LastIndex(token, ",") {
			token = strings.ReplaceAll(token, ",", "")
		} else {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		}
	case commas == 1:
		if isDecimalTail(token, ',') {
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case commas > 1:
		token = strings.ReplaceAll(token, ",", "")
	case dots == 1:
		if !isDecimalTail(token, '.') {
			token = strings.ReplaceAll(token, ".", "")
		}
	case dots > 1:
		token = strings.ReplaceAll(token, ".", "")
	}

	f, err := strconv.ParseFloat(token, 64)
	return f, err == nil
}

// isDecimalTail reports whether the single separator is followed by one or
// two digits, marking it as a decimal point rather than a thousands grouper.
func isDecimalTail(token string, sep byte) bool {
	i := strings.LastIndexByte(token, sep)
	tail := len(token) - i - 1
	return tail >= 1 && tail <= 2
}

func centsOf(v float64) *int64 {
	c := int64(math.Round(v * 100))
	return &c
}
