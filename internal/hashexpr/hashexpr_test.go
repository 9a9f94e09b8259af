package hashexpr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

func sp(s string) *string { return &s }

func renderers(t *testing.T) []Renderer {
	t.Helper()
	var out []Renderer
	for _, d := range []dialect.Dialect{dialect.Postgres, dialect.Doris} {
		r, err := For(d)
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

// literals extracts the unescaped string literals of a rendered expression.
func literals(d dialect.Dialect, sql string) []string {
	var out []string
	for i := 0; i < len(sql); i++ {
		if sql[i] != '\'' {
			continue
		}
		var b strings.Builder
		for i++; i < len(sql); i++ {
			c := sql[i]
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				break
			}
			if c == '\\' && d == dialect.Doris && i+1 < len(sql) {
				i++
				c = sql[i]
			}
			b.WriteByte(c)
		}
		out = append(out, b.String())
	}
	return out
}

var canonicalMatrix = []struct {
	typ  dialect.LogicalType
	in   *string
	want string
}{
	{dialect.String, sp("abc"), "ABC"},
	{dialect.String, sp("ABC"), "ABC"},
	{dialect.String, sp("  hello   world\t\n "), "HELLO WORLD"},
	{dialect.String, sp("a\x01b\x7f"), "AB"},
	{dialect.String, sp("line\r\nbreak"), "LINE BREAK"},
	{dialect.String, sp("Ünïcode"), "ÜNÏCODE"},
	{dialect.String, nil, "NULL"},
	{dialect.String, sp(""), "NULL"},
	{dialect.String, sp(" n/a "), "NULL"},
	{dialect.String, sp("."), "NULL"},
	{dialect.String, sp("<na>"), "NULL"},
	{dialect.String, sp("none of it"), "NONE OF IT"},
	{dialect.Number, nil, "0"},
	{dialect.Number, sp("0"), "0"},
	{dialect.Number, sp("0.000"), "0"},
	{dialect.Number, sp("1.5"), "1.500"},
	{dialect.Number, sp("-2.0005"), "-2.001"},
	{dialect.Number, sp("123456789012.3456"), "123456789012.346"},
	{dialect.Number, sp("1e3"), "1000.000"},
	{dialect.Number, sp("-0.0001"), "0.000"},
	{dialect.Number, sp("-0.0004"), "0.000"},
	{dialect.Number, sp("-0.0005"), "-0.001"},
	{dialect.Number, sp("99999999999999999999999999999999999"), "99999999999999999999999999999999999.000"},
	{dialect.Number, sp("1e35"), "OVERFLOW"},
	{dialect.Number, sp("-123456789012345678901234567890123456"), "OVERFLOW"},
	{dialect.Date, sp("2023-01-05"), "2023-01-05"},
	{dialect.Date, sp("2023-01-05 13:00:00"), "2023-01-05"},
	{dialect.Date, nil, ""},
	{dialect.Timestamp, sp("2023-01-05 13:04:05.123456"), "2023-01-05 13:04:05.123"},
	{dialect.Timestamp, sp("2023-01-05"), "2023-01-05 00:00:00.000"},
	{dialect.Timestamp, nil, ""},
}

func TestCanonicalizeMatrix(t *testing.T) {
	t.Parallel()

	c := DefaultContract(3)
	for _, tc := range canonicalMatrix {
		got, err := c.Canonicalize(tc.typ, tc.in)
		if err != nil {
			t.Fatalf("Canonicalize(%s, %v): %v", tc.typ, tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Canonicalize(%s, %q) = %q, want %q", tc.typ, deref(tc.in), got, tc.want)
		}
		if tc.typ == dialect.String {
			again, _ := c.Canonicalize(tc.typ, &got)
			if again != got {
				t.Fatalf("canonical %q is not idempotent: %q", got, again)
			}
		}
	}

	_, err := c.Canonicalize(dialect.Number, sp("abc"))
	assert.True(t, errors.Is(err, errors.ErrParse))
	_, err = c.Canonicalize(dialect.Date, sp("05/01/2023"))
	assert.True(t, errors.Is(err, errors.ErrParse))
}

// Every renderer must embed the contract's shared literals unchanged and
// apply the steps of each rule in order.
func TestRenderersShareContract(t *testing.T) {
	t.Parallel()

	c := DefaultContract(3)
	for _, r := range renderers(t) {
		d := r.Dialect()
		for typ, rule := range c.Rules {
			expr := ColumnExpr(r, c, "v", typ)
			lits := literals(d, expr)
			assert.Equal(t, rule.NullText, lits[len(lits)-1], "%s %s null text", d, typ)

			probe := d.QuoteIdent("v")
			for _, step := range rule.Steps {
				probe = r.Step(step, probe, c.Decimals)
				require.Contains(t, expr, probe, "%s %s missing step %s", d, typ, step)
			}

			if typ != dialect.String {
				continue
			}
			want := append([]string{ControlPattern, SpacePattern}, PseudoNulls...)
			for _, w := range want {
				assert.Contains(t, lits, w, "%s string rule lacks literal %q", d, w)
			}
		}
	}
}

func TestRendererGolden(t *testing.T) {
	t.Parallel()

	c := DefaultContract(3)
	pg, _ := For(dialect.Postgres)
	doris, _ := For(dialect.Doris)

	cases := []struct {
		r    Renderer
		typ  dialect.LogicalType
		want string
	}{
		{pg, dialect.Number, `COALESCE(CASE WHEN "v" IS NULL OR "v" = 0 THEN '0' WHEN ABS("v") >= 1E35 THEN 'OVERFLOW' ELSE CAST(ROUND(CAST("v" AS NUMERIC), 3) AS TEXT) END, '0')`},
		{doris, dialect.Number, "COALESCE(CASE WHEN `v` IS NULL OR `v` = 0 THEN '0' WHEN ABS(`v`) >= 1E35 THEN 'OVERFLOW' ELSE CAST(CAST(`v` AS DECIMAL(38, 3)) AS STRING) END, '0')"},
		{pg, dialect.Date, `COALESCE(TO_CHAR("v", 'YYYY-MM-DD'), '')`},
		{doris, dialect.Date, "COALESCE(DATE_FORMAT(`v`, '%Y-%m-%d'), '')"},
		{pg, dialect.Timestamp, `COALESCE(TO_CHAR("v", 'YYYY-MM-DD HH24:MI:SS.MS'), '')`},
		{doris, dialect.Timestamp, "COALESCE(SUBSTR(DATE_FORMAT(`v`, '%Y-%m-%d %H:%i:%s.%f'), 1, 23), '')"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ColumnExpr(tc.r, c, "v", tc.typ))
	}

	assert.Contains(t, ColumnExpr(pg, c, "v", dialect.String), `REGEXP_REPLACE(CAST("v" AS TEXT), '[\x01-\x08\x0e-\x1f\x7f]', '', 'g')`)
	assert.Contains(t, ColumnExpr(doris, c, "v", dialect.String), "REGEXP_REPLACE(CAST(`v` AS STRING), '[\\\\x01-\\\\x08\\\\x0e-\\\\x1f\\\\x7f]', '')")
	assert.Equal(t, "''", Concat(pg, nil))
	assert.Equal(t, "CONCAT_WS('|', a, b)", Concat(doris, []string{"a", "b"}))
}

func TestDigest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "D41D8CD98F00B204E9800998ECF8427E", Digest(MD5, ""))
	assert.Equal(t, "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD", Digest(SHA256, "abc"))

	c := DefaultContract(3)
	row := func() string {
		var parts []string
		for _, v := range []struct {
			typ dialect.LogicalType
			in  *string
		}{{dialect.String, sp(" Alice ")}, {dialect.Number, sp("12.5")}, {dialect.Date, nil}} {
			s, err := c.Canonicalize(v.typ, v.in)
			require.NoError(t, err)
			parts = append(parts, s)
		}
		return Digest(SHA256, JoinCanonical(parts))
	}
	first := row()
	for i := 0; i < 5; i++ {
		require.Equal(t, first, row())
	}
	assert.Len(t, first, SHA256.HexLen())
	assert.Equal(t, Digest(SHA256, "ALICE|12.500|"), first)
}

func TestRowSelect(t *testing.T) {
	t.Parallel()

	c := DefaultContract(3)
	doris, _ := For(dialect.Doris)
	s := Select{
		Table:     "account",
		Keys:      []Column{{Name: "cust_id", Type: dialect.Number}},
		Columns:   []Column{{Name: "name", Type: dialect.String}, {Name: "opened", Type: dialect.Date}},
		Where:     "`dt` >= '20230101'",
		Algorithm: MD5,
	}
	q, err := RowSelect(doris, c, s)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q, "SELECT COALESCE(CASE WHEN `cust_id` IS NULL"), q)
	assert.Contains(t, q, " AS key_1, UPPER(MD5(CONCAT_WS('|', ")
	assert.Contains(t, q, ")) AS row_digest FROM `account` WHERE `dt` >= '20230101'")
	assert.NotContains(t, q, "row_concat")

	s.DebugRows = 10
	q, err = RowSelect(doris, c, s)
	require.NoError(t, err)
	assert.Contains(t, q, " AS col_1, ")
	assert.Contains(t, q, " AS col_2, ")
	assert.Contains(t, q, " AS row_concat FROM ")
	assert.True(t, strings.HasSuffix(q, " ORDER BY key_1 LIMIT 10"), q)

	_, err = RowSelect(doris, c, Select{Table: "t"})
	assert.Error(t, err)
}

func TestVerifyDebugRow(t *testing.T) {
	t.Parallel()

	c := DefaultContract(3)
	cols := []Column{{Name: "name", Type: dialect.String}, {Name: "amt", Type: dialect.Number}, {Name: "d", Type: dialect.Date}}
	row := map[string]*string{
		"col_1":      sp("ALICE"),
		"col_2":      sp("12.500"),
		"col_3":      sp(""),
		"row_concat": sp("ALICE|12.500|"),
		"row_digest": sp(Digest(MD5, "ALICE|12.500|")),
	}
	require.NoError(t, VerifyDebugRow(c, MD5, cols, row))

	row["row_digest"] = sp("00")
	assert.Error(t, VerifyDebugRow(c, MD5, cols, row))

	row["col_1"] = sp("alice")
	assert.ErrorContains(t, VerifyDebugRow(c, MD5, cols, row), "not stable")
}

func TestUnifyAndAlgorithm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, dialect.Number, Unify(dialect.Number, dialect.Number))
	assert.Equal(t, dialect.Timestamp, Unify(dialect.Date, dialect.Timestamp))
	assert.Equal(t, dialect.String, Unify(dialect.Number, dialect.String))

	a, err := ParseAlgorithm("MD5")
	require.NoError(t, err)
	assert.Equal(t, MD5, a)
	a, _ = ParseAlgorithm("")
	assert.Equal(t, SHA256, a)
	_, err = ParseAlgorithm("crc32")
	assert.Error(t, err)
}
