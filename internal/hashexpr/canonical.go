package hashexpr

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

var (
	reControl = regexp.MustCompile(ControlPattern)
	reSpace   = regexp.MustCompile(SpacePattern)
)

var pseudoNull = func() map[string]bool {
	m := make(map[string]bool, len(PseudoNulls))
	for _, t := range PseudoNulls {
		m[t] = true
	}
	return m
}()

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Canonicalize applies the rule of t to a value read as text. A nil value is
// SQL NULL.
func (c Contract) Canonicalize(t dialect.LogicalType, value *string) (string, error) {
	rule := c.Rule(t)
	cur := value
	for _, step := range rule.Steps {
		next, err := c.apply(step, cur)
		if err != nil {
			return "", err
		}
		cur = next
	}
	if cur == nil {
		return rule.NullText, nil
	}
	return *cur, nil
}

func (c Contract) apply(step Step, v *string) (*string, error) {
	if v == nil && step != FixedPoint {
		return nil, nil
	}
	var out string
	switch step {
	case AsText:
		return v, nil
	case StripControl:
		out = reControl.ReplaceAllString(*v, "")
	case CollapseSpace:
		out = reSpace.ReplaceAllString(*v, " ")
	case Trim:
		out = strings.Trim(*v, " ")
	case Upper:
		out = strings.ToUpper(*v)
	case FoldPseudoNull:
		if pseudoNull[*v] {
			return nil, nil
		}
		out = *v
	case FixedPoint:
		s, err := fixedPoint(v, c.Decimals)
		if err != nil {
			return nil, err
		}
		out = s
	case FormatDate:
		ts, err := parseTime(*v)
		if err != nil {
			return nil, err
		}
		out = ts.Format("2006-01-02")
	case FormatTimestamp:
		ts, err := parseTime(*v)
		if err != nil {
			return nil, err
		}
		out = ts.Format("2006-01-02 15:04:05.000")
	default:
		out = *v
	}
	return &out, nil
}

func fixedPoint(v *string, decimals int) (string, error) {
	if v == nil {
		return "0", nil
	}
	r, ok := new(big.Rat).SetString(strings.TrimSpace(*v))
	if !ok {
		return "", &errors.NumberParseError{Field: "value", Raw: *v}
	}
	if r.Sign() == 0 {
		return "0", nil
	}
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(OverflowDigits(decimals))), nil)
	if new(big.Rat).Abs(r).Cmp(new(big.Rat).SetInt(bound)) >= 0 {
		return OverflowText, nil
	}
	// FloatString rounds half away from zero, like ROUND and DECIMAL casts.
	s := r.FloatString(decimals)
	// Numeric types have no negative zero.
	if strings.HasPrefix(s, "-") && strings.Trim(s[1:], "0.") == "" {
		s = s[1:]
	}
	return s, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &errors.DateParseError{Raw: s}
}

// JoinCanonical joins canonical column texts the way Concat does.
func JoinCanonical(parts []string) string {
	return strings.Join(parts, Separator)
}

// Digest computes the upper-case hex digest of text in process.
func Digest(alg Algorithm, text string) string {
	var sum []byte
	if alg == MD5 {
		s := md5.Sum([]byte(text))
		sum = s[:]
	} else {
		s := sha256.Sum256([]byte(text))
		sum = s[:]
	}
	return strings.ToUpper(hex.EncodeToString(sum))
}
