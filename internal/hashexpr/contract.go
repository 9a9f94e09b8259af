// Package hashexpr builds the row digest queries of both backends.
//
// A Contract lists, per logical type, the ordered canonicalization steps and
// the text a NULL renders as. Each dialect has a Renderer that turns a step
// into SQL; Canonicalize runs the same steps in process. Both renderers and
// the reference share every literal (patterns, tokens, separators), so equal
// values produce equal digest bytes on either side.
package hashexpr

import (
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Step is one canonicalization operation.
type Step string

const (
	// AsText casts the value to the dialect's text type.
	AsText Step = "as_text"
	// StripControl removes control characters other than whitespace.
	StripControl Step = "strip_control"
	// CollapseSpace turns every whitespace run into one space.
	CollapseSpace Step = "collapse_space"
	// Trim removes leading and trailing spaces.
	Trim Step = "trim"
	// Upper upper-cases the text.
	Upper Step = "upper"
	// FoldPseudoNull maps placeholder tokens such as N/A to NULL.
	FoldPseudoNull Step = "fold_pseudo_null"
	// FixedPoint renders zero as 0 and other numbers with fixed decimals.
	FixedPoint Step = "fixed_point"
	// FormatDate renders YYYY-MM-DD.
	FormatDate Step = "format_date"
	// FormatTimestamp renders YYYY-MM-DD HH:MM:SS.fff.
	FormatTimestamp Step = "format_timestamp"
)

// Shared literals. Both regular expressions are valid in PostgreSQL ARE,
// RE2 (Doris) and Go regexp with the same meaning.
const (
	ControlPattern = `[\x01-\x08\x0e-\x1f\x7f]`
	SpacePattern   = `[\t\n\v\f\r ]+`
	Separator      = "|"
	// KeySeparator joins key tuples in process. It never survives
	// StripControl, so canonical text cannot contain it.
	KeySeparator = "\x1f"
	// OverflowText replaces numbers with more integer digits than
	// DECIMAL(38, d) holds.
	OverflowText = "OVERFLOW"
)

// maxPrecision is the widest Doris DECIMAL.
const maxPrecision = 38

// OverflowDigits is the number of integer digits a fixed-point number with
// the given fractional digits may carry.
func OverflowDigits(decimals int) int {
	if n := maxPrecision - decimals; n > 0 {
		return n
	}
	return 1
}

// PseudoNulls are upper-cased tokens treated as NULL after trimming.
var PseudoNulls = []string{"", "NULL", "NUL", "NONE", "N/A", "<NA>", "EMPTY", "NIL", "."}

// Rule is the canonicalization of one logical type.
type Rule struct {
	Steps    []Step
	NullText string
}

// Contract is the canonicalization shared by both renderers.
type Contract struct {
	Decimals int
	Rules    map[dialect.LogicalType]Rule
}

// DefaultDecimals is the fixed-point precision of numbers.
const DefaultDecimals = 3

// DefaultContract returns the standard canonicalization with the given
// number of fractional digits.
func DefaultContract(decimals int) Contract {
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	return Contract{
		Decimals: decimals,
		Rules: map[dialect.LogicalType]Rule{
			dialect.String: {
				Steps:    []Step{AsText, StripControl, CollapseSpace, Trim, Upper, FoldPseudoNull},
				NullText: "NULL",
			},
			dialect.Number:    {Steps: []Step{FixedPoint}, NullText: "0"},
			dialect.Date:      {Steps: []Step{FormatDate}, NullText: ""},
			dialect.Timestamp: {Steps: []Step{FormatTimestamp}, NullText: ""},
		},
	}
}

// Rule returns the rule of t, falling back to the string rule.
func (c Contract) Rule(t dialect.LogicalType) Rule {
	if r, ok := c.Rules[t]; ok {
		return r
	}
	return c.Rules[dialect.String]
}

// Unify picks the logical type both sides canonicalize a column pair with.
// Dates widen to timestamps; any other disagreement compares as text.
func Unify(left, right dialect.LogicalType) dialect.LogicalType {
	switch {
	case left == right:
		return left
	case (left == dialect.Date && right == dialect.Timestamp) || (left == dialect.Timestamp && right == dialect.Date):
		return dialect.Timestamp
	}
	return dialect.String
}

// Algorithm is the digest function applied to the joined row text.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
)

// ParseAlgorithm accepts md5 or sha256 case-insensitively.
func ParseAlgorithm(raw string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(raw))); a {
	case MD5, SHA256:
		return a, nil
	case "":
		return SHA256, nil
	}
	return "", errors.WithHint(errors.Newf("digest %q is not supported", raw), "use md5 or sha256")
}

// HexLen is the length of the upper-case hex digest.
func (a Algorithm) HexLen() int {
	if a == MD5 {
		return 32
	}
	return 64
}
