package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

var leadTimeDigits = regexp.MustCompile(`\d+`)

// regexMetaHints are the metacharacter sequences whose presence switches a
// mapping pattern from literal to regex interpretation. Everything else is a
// plain substring.
var regexMetaHints = []string{`\d`, `\w`, `\s`, "^", "$", "*", "+", "|"}

// Availability maps raw page text onto a stock status. The text is lowercased
// and whitespace-collapsed, then the rules run in order; the first match
// wins. No match yields the default status with no lead time.
func Availability(rawText string, rules []schemas.AvailabilityRule, defaultStatus schemas.AvailabilityStatus) schemas.NormalizedValue {
	text := collapseWhitespace(strings.ToLower(rawText))

	for _, rule := range rules {
		span, ok := matchRule(text, rule)
		if !ok {
			continue
		}
		value := &schemas.AvailabilityValue{Status: rule.Status}
		if rule.ExtractLeadTime {
			if digits := leadTimeDigits.FindString(span); digits != "" {
				if days, err := strconv.Atoi(digits); err == nil {
					value.LeadTimeDays = &days
				}
			}
		}
		return schemas.NormalizedValue{Kind: schemas.ValueKindAvailability, Availability: value}
	}

	status := defaultStatus
	if status == "" {
		status = schemas.AvailabilityUnknown
	}
	return schemas.NormalizedValue{
		Kind:         schemas.ValueKindAvailability,
		Availability: &schemas.AvailabilityValue{Status: status},
	}
}

// matchRule tests one rule against the normalized text and returns the
// matched span, which is where lead-time digits are looked up.
func matchRule(text string, rule schemas.AvailabilityRule) (string, bool) {
	pattern := strings.TrimSpace(rule.Pattern)
	if pattern == "" {
		return "", false
	}

	if patternIsRegex(rule) {
		// Case-insensitive compile instead of lowercasing the pattern, which
		// would corrupt classes like \D.
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return "", false
		}
		loc := re.FindStringIndex(text)
		if loc == nil {
			return "", false
		}
		return text[loc[0]:loc[1]], true
	}

	return literalMatch(text, strings.ToLower(pattern))
}

func patternIsRegex(rule schemas.AvailabilityRule) bool {
	if rule.IsRegex != nil {
		return *rule.IsRegex
	}
	for _, hint := range regexMetaHints {
		if strings.Contains(rule.Pattern, hint) {
			return true
		}
	}
	return false
}

// literalMatch finds the pattern as a substring sitting on word boundaries,
// so "stock" does not match inside "restocking".
func literalMatch(text, pattern string) (string, bool) {
	from := 0
	for {
		i := strings.Index(text[from:], pattern)
		if i < 0 {
			return "", false
		}
		start := from + i
		end := start + len(pattern)
		if boundedAt(text, start, end) {
			return text[start:end], true
		}
		from = start + 1
	}
}

func boundedAt(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
