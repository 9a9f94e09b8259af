package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

func i64(n int64) *int64     { return &n }
func f64(f float64) *float64 { return &f }
func str(s string) *string   { return &s }

var tol = Tolerance{Atol: 1e-6, Rtol: 1e-6}

func TestNumericTolerance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b *float64
		want bool
	}{
		{f64(150.25), f64(150.25000001), true},
		{f64(150.25), f64(150.26), false},
		{nil, nil, true},
		{nil, f64(1), false},
		{f64(0), nil, false},
	}
	for _, tc := range cases {
		if got := tol.Equal(tc.a, tc.b); got != tc.want {
			t.Fatalf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestExactWithZeroNaN(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b *int64
		want bool
	}{
		{i64(0), nil, true},
		{nil, i64(0), true},
		{i64(0), i64(0), true},
		{i64(5), nil, false},
		{i64(5), i64(5), true},
	}
	for _, tc := range cases {
		if got := compareZeroNaN(Rule{}, Value{Int: tc.a}, Value{Int: tc.b}); got != tc.want {
			t.Fatalf("zero-nan(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFrequencyListIsOrderSensitive(t *testing.T) {
	t.Parallel()

	rule := Rule{Strategy: FrequencyList, Tolerance: tol}
	a := []FreqItem{{"A", 10}, {"B", 5}}
	b := []FreqItem{{"B", 5}, {"A", 10}}
	assert.False(t, compareFrequency(rule, Value{Freq: a}, Value{Freq: b}))
	assert.True(t, compareFrequency(rule, Value{Freq: a}, Value{Freq: []FreqItem{{"A", 10}, {"B", 5}}}))
	assert.False(t, compareFrequency(rule, Value{Freq: a}, Value{Freq: a[:1]}))
	assert.True(t, compareFrequency(rule, Value{}, Value{Freq: []FreqItem{}}))
	// Values compare flexibly, counts exactly.
	assert.True(t, compareFrequency(rule, Value{Freq: []FreqItem{{"1.0", 3}, {"active", 2}}}, Value{Freq: []FreqItem{{"1", 3}, {"ACTIVE", 2}}}))
	assert.False(t, compareFrequency(rule, Value{Freq: []FreqItem{{"1", 3}}}, Value{Freq: []FreqItem{{"1", 4}}}))
}

func TestFlexibleString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want bool
	}{
		{"2023-01-01", "2023-01-01 00:00:00", true},
		{"2023-01-01", "2023-01-02", false},
		{"100", "100.0000000001", true},
		{"100", "101", false},
		{" abc ", "ABC", true},
		{"abc", "abd", false},
	}
	for _, tc := range cases {
		if got := tol.FlexibleEqual(tc.a, tc.b); got != tc.want {
			t.Fatalf("FlexibleEqual(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	schema := DefaultSchema(tol)
	left := &ColumnStats{
		Column: "BALANCE", Category: Continuous,
		Count: i64(10), Distinct: i64(8), Min: str("1.5"), Max: str("99"),
		Avg: f64(150.25), Std: f64(3.2), Missing: i64(0),
	}
	right := *left
	right.Avg = f64(150.25000001)
	right.Min = str("1.50")
	right.Missing = nil

	res := schema.Compare("BALANCE", "M202301", left, &right)
	require.True(t, res.OverallMatch, "%+v", res.FieldMatches)
	require.Len(t, res.FieldMatches, len(Fields))

	right.Distinct = i64(7)
	res = schema.Compare("BALANCE", "M202301", left, &right)
	assert.False(t, res.OverallMatch)
	assert.False(t, res.FieldMatches[FieldDistinct])
	assert.True(t, res.FieldMatches[FieldCount])

	res = schema.Compare("BALANCE", "M202301", left, nil)
	assert.False(t, res.OverallMatch)
	for _, f := range Fields {
		assert.False(t, res.FieldMatches[f], f)
	}

	cat := *left
	cat.Category = Categorical
	assert.False(t, schema.Compare("BALANCE", "M202301", left, &cat).OverallMatch)
}

func TestParseRow(t *testing.T) {
	t.Parallel()

	row := map[string]*string{
		"col_category": str("categorical"),
		"col_count":    str("42"),
		"col_distinct": str("3.0"),
		"col_min":      str("2"),
		"col_max":      str("30"),
		"col_avg":      str("NaN"),
		"col_std":      str("oops"),
		"col_missing":  nil,
		"col_freq":     str("ACTIVE(30); IN (X)(10); (2)"),
	}
	s, errs := ParseRow("STATUS", Continuous, row)
	assert.Equal(t, Categorical, s.Category)
	assert.Equal(t, int64(42), *s.Count)
	assert.Equal(t, int64(3), *s.Distinct)
	assert.Nil(t, s.Avg)
	assert.Nil(t, s.Std)
	assert.Nil(t, s.Missing)
	assert.Equal(t, []FreqItem{{"ACTIVE", 30}, {"IN (X)", 10}, {"", 2}}, s.FreqTopK)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], errors.ErrParse))

	assert.Equal(t, "ACTIVE(30); IN (X)(10); (2)", FormatFrequencyList(s.FreqTopK))
}

func TestQuerySQL(t *testing.T) {
	t.Parallel()

	pg := Query{Dialect: dialect.Postgres, Schema: "core", Table: "account", Column: "STATUS", Type: dialect.String, Where: "x = 1", TopK: 5}.SQL()
	for _, fragment := range []string{
		`SELECT CAST("STATUS" AS TEXT) AS p_col`,
		`FROM "core"."account" WHERE x = 1 GROUP BY CAST("STATUS" AS TEXT)`,
		`ORDER BY value_freq DESC, p_col COLLATE "C" ASC`,
		`STRING_AGG(CONCAT(p_col, '(', CAST(value_freq AS TEXT), ')'), '; '`,
		"rn <= 5",
	} {
		if !strings.Contains(pg, fragment) {
			t.Fatalf("postgres query should contain %q: %s", fragment, pg)
		}
	}

	doris := Query{Dialect: dialect.Doris, Table: "account", Column: "balance", Type: dialect.Number}.SQL()
	for _, fragment := range []string{
		"COUNT(`balance`) AS col_count",
		"COUNT(DISTINCT `balance`) AS col_distinct",
		"CAST(AVG(CAST(`balance` AS DOUBLE)) AS STRING) AS col_avg",
		"COUNT(*) - COUNT(`balance`) AS col_missing",
		"WHERE 1=1",
	} {
		if !strings.Contains(doris, fragment) {
			t.Fatalf("doris query should contain %q: %s", fragment, doris)
		}
	}

	ts := Query{Dialect: dialect.Doris, Table: "t", Column: "ts", Type: dialect.Timestamp}.SQL()
	assert.Contains(t, ts, "GROUP_CONCAT(")
	assert.Contains(t, ts, "CAST(CAST(`ts` AS DATE) AS STRING)")

	assert.Equal(t, `SELECT COUNT(*) AS row_count FROM "t" WHERE 1=1`, VolumeQuery(dialect.Postgres, "", "t", " "))
}
