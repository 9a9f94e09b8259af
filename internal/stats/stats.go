// Package stats computes and compares per-column summary statistics.
//
// Statistics are gathered with one query per (table, vintage, column) and
// side, then compared field by field through a Schema. Comparison is pure:
// the same inputs always give the same Result.
package stats

import (
	"math"
	"strconv"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Category selects how a column is summarized.
type Category string

const (
	// Continuous columns are numeric: min, max, mean and deviation of values.
	Continuous Category = "continuous"
	// Categorical columns are summarized by their frequency distribution.
	Categorical Category = "categorical"
)

// FreqItem is one entry of a top-K frequency list.
type FreqItem struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ColumnStats is the summary of one column over one vintage on one side.
// Nil fields are SQL NULL or values that failed to parse.
//
// For categorical columns Min, Max, Avg and Std describe the distribution of
// value frequencies, not the values themselves.
type ColumnStats struct {
	Column   string     `json:"column"`
	Category Category   `json:"category"`
	Count    *int64     `json:"count"`
	Distinct *int64     `json:"distinct"`
	Min      *string    `json:"min"`
	Max      *string    `json:"max"`
	Avg      *float64   `json:"avg"`
	Std      *float64   `json:"std"`
	Missing  *int64     `json:"missing"`
	FreqTopK []FreqItem `json:"freq_top_k"`
}

// Result labels every stats query returns.
const (
	labelCategory = "col_category"
	labelCount    = "col_count"
	labelDistinct = "col_distinct"
	labelMin      = "col_min"
	labelMax      = "col_max"
	labelAvg      = "col_avg"
	labelStd      = "col_std"
	labelMissing  = "col_missing"
	labelFreq     = "col_freq"
)

// ParseRow converts a stats query row into ColumnStats. Values that do not
// parse become nil and are reported as parse errors; the row is still used.
func ParseRow(column string, category Category, row map[string]*string) (ColumnStats, []error) {
	s := ColumnStats{Column: column, Category: category}
	if raw := row[labelCategory]; raw != nil && strings.TrimSpace(*raw) != "" {
		s.Category = Category(strings.ToLower(strings.TrimSpace(*raw)))
	}

	var errs []error
	ints := []struct {
		label string
		dst   **int64
	}{
		{labelCount, &s.Count},
		{labelDistinct, &s.Distinct},
		{labelMissing, &s.Missing},
	}
	for _, f := range ints {
		v, err := parseInt(f.label, row[f.label])
		if err != nil {
			errs = append(errs, err)
		}
		*f.dst = v
	}
	floats := []struct {
		label string
		dst   **float64
	}{
		{labelAvg, &s.Avg},
		{labelStd, &s.Std},
	}
	for _, f := range floats {
		v, err := parseFloat(f.label, row[f.label])
		if err != nil {
			errs = append(errs, err)
		}
		*f.dst = v
	}
	s.Min = row[labelMin]
	s.Max = row[labelMax]

	if raw := row[labelFreq]; raw != nil {
		items, err := ParseFrequencyList(*raw)
		if err != nil {
			errs = append(errs, err)
		}
		s.FreqTopK = items
	}
	return s, errs
}

func parseInt(field string, raw *string) (*int64, error) {
	if raw == nil {
		return nil, nil
	}
	text := strings.TrimSpace(*raw)
	if text == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &n, nil
	}
	// Some drivers render integral aggregates as decimals.
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, &errors.NumberParseError{Field: field, Raw: text}
	}
	n := int64(f)
	return &n, nil
}

func parseFloat(field string, raw *string) (*float64, error) {
	if raw == nil {
		return nil, nil
	}
	text := strings.TrimSpace(*raw)
	if text == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, &errors.NumberParseError{Field: field, Raw: text}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return &f, nil
}

// ParseFrequencyList reads "value(freq); value(freq)". The frequency is taken
// from the last parenthesized group of each entry so values may contain
// parentheses themselves.
func ParseFrequencyList(raw string) ([]FreqItem, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, "; ")
	out := make([]FreqItem, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		open := strings.LastIndexByte(p, '(')
		if open < 0 || !strings.HasSuffix(p, ")") {
			return out, &errors.NumberParseError{Field: labelFreq, Raw: p}
		}
		n, err := strconv.ParseInt(strings.TrimSpace(p[open+1:len(p)-1]), 10, 64)
		if err != nil {
			return out, &errors.NumberParseError{Field: labelFreq, Raw: p}
		}
		out = append(out, FreqItem{Value: p[:open], Count: n})
	}
	return out, nil
}

// FormatFrequencyList renders items in the form ParseFrequencyList reads.
func FormatFrequencyList(items []FreqItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Value + "(" + strconv.FormatInt(it.Count, 10) + ")"
	}
	return strings.Join(parts, "; ")
}
