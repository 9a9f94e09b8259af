// Package hashcompare joins the row digests of both sides on their key
// tuple and classifies every row.
package hashcompare

import (
	"sort"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/hashexpr"
)

// DefaultSampleSize bounds every retained sample list.
const DefaultSampleSize = 100

// RowDigest is one row of a digest query.
type RowDigest struct {
	Key    []string `json:"key"`
	Digest string   `json:"digest"`
}

// MismatchedRow is a key present on both sides with different digests.
type MismatchedRow struct {
	Key         []string `json:"key"`
	LeftDigest  string   `json:"left_digest"`
	RightDigest string   `json:"right_digest"`
}

// Result summarizes one vintage. Counts are exact; the row and key lists are
// the first samples in key order.
type Result struct {
	Vintage    string   `json:"vintage"`
	KeyColumns []string `json:"key_columns"`

	LeftRows  int `json:"left_rows"`
	RightRows int `json:"right_rows"`

	MatchedRows     int             `json:"matched_rows"`
	MismatchedCount int             `json:"mismatched_count"`
	LeftOnlyCount   int             `json:"left_only_count"`
	RightOnlyCount  int             `json:"right_only_count"`
	MismatchedRows  []MismatchedRow `json:"mismatched_rows"`
	LeftOnlyKeys    [][]string      `json:"left_only_keys"`
	RightOnlyKeys   [][]string      `json:"right_only_keys"`

	// Duplicate* count key tuples carried by more than one row on a side.
	DuplicateLeftKeys  int `json:"duplicate_left_keys"`
	DuplicateRightKeys int `json:"duplicate_right_keys"`
}

// Clean reports whether every row matched.
func (r Result) Clean() bool {
	return r.MismatchedCount == 0 && r.LeftOnlyCount == 0 && r.RightOnlyCount == 0
}

// Selectivity returns a selectivity warning when a side has duplicate keys.
func (r Result) Selectivity() error {
	if r.DuplicateLeftKeys == 0 && r.DuplicateRightKeys == 0 {
		return nil
	}
	return errors.Selectivity(
		"vintage %s: key %s is not unique (%d duplicate left keys, %d duplicate right keys)",
		r.Vintage, strings.Join(r.KeyColumns, ","), r.DuplicateLeftKeys, r.DuplicateRightKeys,
	)
}

type group struct {
	key     []string
	digests []string
}

func index(rows []RowDigest) (map[string]*group, int) {
	out := make(map[string]*group, len(rows))
	dups := 0
	for _, r := range rows {
		k := strings.Join(r.Key, hashexpr.KeySeparator)
		g, ok := out[k]
		if !ok {
			g = &group{key: r.Key}
			out[k] = g
		} else if len(g.digests) == 1 {
			dups++
		}
		g.digests = append(g.digests, r.Digest)
	}
	for _, g := range out {
		sort.Strings(g.digests)
	}
	return out, dups
}

// Compare full-outer-joins left and right on the key tuple. Duplicate keys
// pair every left row with every right row of the same key.
func Compare(vintage string, keyColumns []string, left, right []RowDigest, sampleSize int) Result {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	res := Result{
		Vintage:        vintage,
		KeyColumns:     keyColumns,
		LeftRows:       len(left),
		RightRows:      len(right),
		MismatchedRows: []MismatchedRow{},
		LeftOnlyKeys:   [][]string{},
		RightOnlyKeys:  [][]string{},
	}
	l, ldups := index(left)
	r, rdups := index(right)
	res.DuplicateLeftKeys, res.DuplicateRightKeys = ldups, rdups

	keys := make([]string, 0, len(l)+len(r))
	for k := range l {
		keys = append(keys, k)
	}
	for k := range r {
		if _, ok := l[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		lg, rg := l[k], r[k]
		switch {
		case lg != nil && rg != nil:
			for _, ld := range lg.digests {
				for _, rd := range rg.digests {
					if strings.EqualFold(ld, rd) {
						res.MatchedRows++
						continue
					}
					res.MismatchedCount++
					if len(res.MismatchedRows) < sampleSize {
						res.MismatchedRows = append(res.MismatchedRows, MismatchedRow{Key: lg.key, LeftDigest: ld, RightDigest: rd})
					}
				}
			}
		case lg != nil:
			for range lg.digests {
				res.LeftOnlyCount++
				if len(res.LeftOnlyKeys) < sampleSize {
					res.LeftOnlyKeys = append(res.LeftOnlyKeys, lg.key)
				}
			}
		default:
			for range rg.digests {
				res.RightOnlyCount++
				if len(res.RightOnlyKeys) < sampleSize {
					res.RightOnlyKeys = append(res.RightOnlyKeys, rg.key)
				}
			}
		}
	}
	return res
}

// ParseRows reads the key and digest labels of digest query rows.
func ParseRows(rows []map[string]*string, keys int) ([]RowDigest, error) {
	out := make([]RowDigest, 0, len(rows))
	for i, row := range rows {
		d := row[hashexpr.LabelDigest]
		if d == nil {
			return nil, errors.Newf("row %d has no %s", i, hashexpr.LabelDigest)
		}
		key := make([]string, keys)
		for j := range key {
			if v := row[hashexpr.KeyLabel(j)]; v != nil {
				key[j] = *v
			}
		}
		out = append(out, RowDigest{Key: key, Digest: *d})
	}
	return out, nil
}
