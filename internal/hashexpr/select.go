package hashexpr

import (
	"strconv"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Column is one column of a digest query, named as discovered on the side
// the query runs against.
type Column struct {
	Name string              `json:"name"`
	Type dialect.LogicalType `json:"type"`
}

// Select describes the digest query of one (table, vintage) on one side.
// Keys and Columns must be in the same order on both sides.
type Select struct {
	Schema    string
	Table     string
	Keys      []Column
	Columns   []Column
	Where     string
	Algorithm Algorithm
	// DebugRows > 0 adds the canonical text of every column and the joined
	// row text, and limits the result to that many rows ordered by key.
	DebugRows int
}

// Result labels of a digest query.
const (
	LabelDigest = "row_digest"
	LabelConcat = "row_concat"
)

// KeyLabel is the label of the i-th key column, starting at 0.
func KeyLabel(i int) string { return "key_" + strconv.Itoa(i+1) }

// ColumnLabel is the label of the i-th debug column, starting at 0.
func ColumnLabel(i int) string { return "col_" + strconv.Itoa(i+1) }

// RowSelect renders the digest query. Key values are canonicalized and
// selected beside the digest, never inside it.
func RowSelect(r Renderer, c Contract, s Select) (string, error) {
	if len(s.Keys) == 0 {
		return "", errors.Newf("digest query on %s needs at least one key column", s.Table)
	}
	alg := s.Algorithm
	if alg == "" {
		alg = SHA256
	}
	d := r.Dialect()

	cols := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		cols[i] = ColumnExpr(r, c, col.Name, col.Type)
	}
	concat := Concat(r, cols)

	fields := make([]string, 0, len(s.Keys)+len(cols)+2)
	for i, k := range s.Keys {
		fields = append(fields, ColumnExpr(r, c, k.Name, k.Type)+" AS "+KeyLabel(i))
	}
	fields = append(fields, r.Digest(alg, concat)+" AS "+LabelDigest)
	if s.DebugRows > 0 {
		for i := range cols {
			fields = append(fields, cols[i]+" AS "+ColumnLabel(i))
		}
		fields = append(fields, concat+" AS "+LabelConcat)
	}

	where := strings.TrimSpace(s.Where)
	if where == "" {
		where = "1=1"
	}
	q := "SELECT " + strings.Join(fields, ", ") + " FROM " + d.Table(s.Schema, s.Table) + " WHERE " + where
	if s.DebugRows > 0 {
		order := make([]string, len(s.Keys))
		for i := range s.Keys {
			order[i] = KeyLabel(i)
		}
		q += " ORDER BY " + strings.Join(order, ", ") + " LIMIT " + strconv.Itoa(s.DebugRows)
	}
	return q, nil
}

// VerifyDebugRow recomputes the digest of a debug row from its canonical
// column texts and checks it against the digest the backend produced. It
// also checks that every canonical string is a fixed point of Canonicalize.
func VerifyDebugRow(c Contract, alg Algorithm, columns []Column, row map[string]*string) error {
	parts := make([]string, len(columns))
	for i, col := range columns {
		v := row[ColumnLabel(i)]
		if v == nil {
			return errors.Newf("debug row has no canonical text for %s", col.Name)
		}
		if col.Type == dialect.String {
			again, err := c.Canonicalize(col.Type, v)
			if err != nil {
				return errors.Wrapf(err, "re-canonicalize %s", col.Name)
			}
			if again != *v {
				return errors.Newf("canonical text of %s is not stable: %q became %q", col.Name, *v, again)
			}
		}
		parts[i] = *v
	}
	joined := JoinCanonical(parts)
	if got := row[LabelConcat]; got != nil && *got != joined {
		return errors.Newf("row text %q differs from joined canonical text %q", *got, joined)
	}
	want := Digest(alg, joined)
	got := row[LabelDigest]
	if got == nil || !strings.EqualFold(*got, want) {
		return errors.Newf("backend digest %v differs from reference %s", deref(got), want)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
