package stats

import (
	"math"
	"strconv"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/vintage"
)

// Field names one statistic.
type Field string

const (
	FieldCount    Field = "count"
	FieldDistinct Field = "distinct"
	FieldMin      Field = "min"
	FieldMax      Field = "max"
	FieldAvg      Field = "avg"
	FieldStd      Field = "std"
	FieldMissing  Field = "missing"
	FieldFreqTopK Field = "freq_top_k"
)

// Fields lists every statistic in report order.
var Fields = []Field{FieldCount, FieldDistinct, FieldMin, FieldMax, FieldAvg, FieldStd, FieldMissing, FieldFreqTopK}

// Strategy names how a field is compared.
type Strategy string

const (
	Exact            Strategy = "exact"
	NumericTolerance Strategy = "numeric_tolerance"
	ExactWithZeroNaN Strategy = "exact_with_zero_nan"
	FlexibleString   Strategy = "flexible_string"
	FrequencyList    Strategy = "frequency_list"
)

// Tolerance bounds numeric comparison: |a-b| <= Atol + Rtol*|b|.
type Tolerance struct {
	Atol float64 `json:"atol"`
	Rtol float64 `json:"rtol"`
}

// Rule is the comparison applied to one field.
type Rule struct {
	Strategy  Strategy  `json:"strategy"`
	Tolerance Tolerance `json:"tolerance"`
}

// Schema maps every compared field to its rule.
type Schema map[Field]Rule

// DefaultSchema is the standard comparison table.
func DefaultSchema(tol Tolerance) Schema {
	return Schema{
		FieldCount:    {Strategy: Exact},
		FieldDistinct: {Strategy: Exact},
		FieldMin:      {Strategy: FlexibleString, Tolerance: tol},
		FieldMax:      {Strategy: FlexibleString, Tolerance: tol},
		FieldAvg:      {Strategy: NumericTolerance, Tolerance: tol},
		FieldStd:      {Strategy: NumericTolerance, Tolerance: tol},
		FieldMissing:  {Strategy: ExactWithZeroNaN},
		FieldFreqTopK: {Strategy: FrequencyList, Tolerance: tol},
	}
}

// Value is the typed content of one field; exactly one member applies.
type Value struct {
	Int   *int64
	Float *float64
	Text  *string
	Freq  []FreqItem
}

// Value returns the content of field f.
func (s ColumnStats) Value(f Field) Value {
	switch f {
	case FieldCount:
		return Value{Int: s.Count}
	case FieldDistinct:
		return Value{Int: s.Distinct}
	case FieldMissing:
		return Value{Int: s.Missing}
	case FieldMin:
		return Value{Text: s.Min}
	case FieldMax:
		return Value{Text: s.Max}
	case FieldAvg:
		return Value{Float: s.Avg}
	case FieldStd:
		return Value{Float: s.Std}
	case FieldFreqTopK:
		return Value{Freq: s.FreqTopK}
	}
	return Value{}
}

type comparator func(rule Rule, left, right Value) bool

var comparators = map[Strategy]comparator{
	Exact:            compareExact,
	NumericTolerance: compareNumeric,
	ExactWithZeroNaN: compareZeroNaN,
	FlexibleString:   compareFlexible,
	FrequencyList:    compareFrequency,
}

// Result is the comparison of one column over one vintage.
type Result struct {
	Column       string         `json:"column"`
	Vintage      string         `json:"vintage"`
	FieldMatches map[Field]bool `json:"field_matches"`
	OverallMatch bool           `json:"overall_match"`
}

// Compare applies the schema to both sides. A nil side is an automatic
// mismatch on every field, as is a category disagreement.
func (s Schema) Compare(column, vintageLabel string, left, right *ColumnStats) Result {
	res := Result{
		Column:       column,
		Vintage:      vintageLabel,
		FieldMatches: make(map[Field]bool, len(s)),
		OverallMatch: left != nil && right != nil,
	}
	if left != nil && right != nil && left.Category != right.Category {
		res.OverallMatch = false
	}
	for field, rule := range s {
		ok := false
		if left != nil && right != nil {
			if cmp, found := comparators[rule.Strategy]; found {
				ok = cmp(rule, left.Value(field), right.Value(field))
			}
		}
		res.FieldMatches[field] = ok
		res.OverallMatch = res.OverallMatch && ok
	}
	return res
}

func compareExact(_ Rule, l, r Value) bool {
	return EqualInt(l.Int, r.Int)
}

// EqualInt treats two nils as equal and one nil as unequal.
func EqualInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func compareNumeric(rule Rule, l, r Value) bool {
	return rule.Tolerance.Equal(l.Float, r.Float)
}

// Equal compares two optional numbers. Nil and NaN are equivalent; one
// nil/NaN against a number is unequal.
func (t Tolerance) Equal(a, b *float64) bool {
	aMissing := a == nil || math.IsNaN(*a)
	bMissing := b == nil || math.IsNaN(*b)
	if aMissing || bMissing {
		return aMissing && bMissing
	}
	return t.Close(*a, *b)
}

// Close reports |a-b| <= Atol + Rtol*|b|.
func (t Tolerance) Close(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= t.Atol+t.Rtol*math.Abs(b)
}

// compareZeroNaN treats nil as zero on either side.
func compareZeroNaN(_ Rule, l, r Value) bool {
	var a, b int64
	if l.Int != nil {
		a = *l.Int
	}
	if r.Int != nil {
		b = *r.Int
	}
	return a == b
}

func compareFlexible(rule Rule, l, r Value) bool {
	if l.Text == nil || r.Text == nil {
		return l.Text == nil && r.Text == nil
	}
	return rule.Tolerance.FlexibleEqual(*l.Text, *r.Text)
}

// FlexibleEqual compares two rendered values. Exact text wins; otherwise
// dates are compared as dates, numbers within tolerance, and everything else
// trimmed and case-folded.
func (t Tolerance) FlexibleEqual(a, b string) bool {
	if a == b {
		return true
	}
	da, errA := vintage.Standardize(a, vintage.DateColumn{Kind: vintage.Native})
	db, errB := vintage.Standardize(b, vintage.DateColumn{Kind: vintage.Native})
	if errA == nil && errB == nil {
		return da == db
	}
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		return t.Equal(&fa, &fb)
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// compareFrequency is order sensitive: ties are broken upstream by value,
// so any reordering is a real difference.
func compareFrequency(rule Rule, l, r Value) bool {
	if len(l.Freq) != len(r.Freq) {
		return false
	}
	for i := range l.Freq {
		if l.Freq[i].Count != r.Freq[i].Count {
			return false
		}
		if !rule.Tolerance.FlexibleEqual(l.Freq[i].Value, r.Freq[i].Value) {
			return false
		}
	}
	return true
}
