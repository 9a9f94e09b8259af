// Package quality classifies the comparable columns of a table as clean or
// mismatched from their per-vintage stats comparisons and picks the key
// columns used to join row digests.
package quality

import (
	"sort"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stats"
)

// DefaultKeyColumns is the number of key columns picked when unset.
const DefaultKeyColumns = 3

// TableQuality is the column verdict of one table.
type TableQuality struct {
	CleanColumns      []string            `json:"clean_columns"`
	MismatchedColumns []string            `json:"mismatched_columns"`
	KeyColumns        []string            `json:"key_columns"`
	MismatchVintages  map[string][]string `json:"mismatch_vintages"`
}

// Cardinality is the largest distinct count seen for a column on each side.
type Cardinality struct {
	Left  *int64 `json:"left"`
	Right *int64 `json:"right"`
}

// Observe folds the distinct counts of one vintage into c.
func (c Cardinality) Observe(left, right *int64) Cardinality {
	c.Left = maxPtr(c.Left, left)
	c.Right = maxPtr(c.Right, right)
	return c
}

// Value is the count used for ranking: left when known, else right, else -1.
func (c Cardinality) Value() int64 {
	switch {
	case c.Left != nil:
		return *c.Left
	case c.Right != nil:
		return *c.Right
	}
	return -1
}

func maxPtr(a, b *int64) *int64 {
	if b == nil {
		return a
	}
	if a == nil || *b > *a {
		v := *b
		return &v
	}
	return a
}

// Analyze classifies columns over the given vintages. A column is mismatched
// when any vintage has no matching result for it. Up to n clean columns with
// the highest cardinality become keys, ties broken by name.
func Analyze(columns, vintages []string, results []stats.Result, card map[string]Cardinality, n int) TableQuality {
	if n <= 0 {
		n = DefaultKeyColumns
	}
	type key struct{ column, vintage string }
	matched := make(map[key]bool, len(results))
	for _, r := range results {
		k := key{r.Column, r.Vintage}
		if prev, seen := matched[k]; seen {
			matched[k] = prev && r.OverallMatch
			continue
		}
		matched[k] = r.OverallMatch
	}

	q := TableQuality{
		CleanColumns:      []string{},
		MismatchedColumns: []string{},
		KeyColumns:        []string{},
		MismatchVintages:  map[string][]string{},
	}
	if len(vintages) == 0 {
		// Nothing was validated, so nothing is known to be clean.
		q.MismatchedColumns = append(q.MismatchedColumns, columns...)
		sort.Strings(q.MismatchedColumns)
		return q
	}
	for _, c := range columns {
		var bad []string
		for _, v := range vintages {
			if !matched[key{c, v}] {
				bad = append(bad, v)
			}
		}
		if len(bad) > 0 {
			q.MismatchedColumns = append(q.MismatchedColumns, c)
			q.MismatchVintages[c] = bad
			continue
		}
		q.CleanColumns = append(q.CleanColumns, c)
	}
	sort.Strings(q.CleanColumns)
	sort.Strings(q.MismatchedColumns)
	q.KeyColumns = SelectKeys(q.CleanColumns, card, n)
	return q
}

// SelectKeys returns min(n, len(clean)) columns ordered by descending
// cardinality, then name ascending.
func SelectKeys(clean []string, card map[string]Cardinality, n int) []string {
	ranked := make([]string, len(clean))
	copy(ranked, clean)
	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := card[ranked[i]].Value(), card[ranked[j]].Value()
		if ci != cj {
			return ci > cj
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
