package extract

import (
	"regexp"
	"strings"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ApplyPostprocess folds each operation over the running string in list order.
// An operation that cannot apply (pattern does not match, capture group absent,
// invalid pattern, unknown op) leaves the value unchanged rather than erroring,
// so a half-broken rule still produces its best-effort value.
func ApplyPostprocess(value string, ops []schemas.PostprocessOp) string {
	for _, op := range ops {
		value = applyOne(value, op)
	}
	return value
}

func applyOne(value string, op schemas.PostprocessOp) string {
	switch op.Op {
	case schemas.OpTrim:
		return strings.TrimSpace(value)

	case schemas.OpLowercase:
		return strings.ToLower(value)

	case schemas.OpUppercase:
		return strings.ToUpper(value)

	case schemas.OpCollapseWhitespace:
		return strings.TrimSpace(whitespaceRun.ReplaceAllString(value, " "))

	case schemas.OpReplace:
		// Global literal substitution, never a regex.
		if op.From == "" {
			return value
		}
		return strings.ReplaceAll(value, op.From, op.To)

	case schemas.OpRegexExtract:
		re, err := regexp.Compile(op.Pattern)
		if err != nil {
			return value
		}
		sm := re.FindStringSubmatch(value)
		if sm == nil {
			return value
		}
		if op.Group < 0 || op.Group >= len(sm) {
			return value
		}
		return sm[op.Group]

	default:
		return value
	}
}
