package stats

import (
	"strconv"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
)

// Query describes one stats query.
type Query struct {
	Dialect dialect.Dialect
	Schema  string
	Table   string
	// Column is the name as discovered on this side.
	Column string
	Type   dialect.LogicalType
	Where  string
	TopK   int
}

// CategoryOf returns the summary category of a logical type.
func CategoryOf(t dialect.LogicalType) Category {
	if t.Continuous() {
		return Continuous
	}
	return Categorical
}

// SQL renders the stats query for the column's category.
func (q Query) SQL() string {
	if CategoryOf(q.Type) == Continuous {
		return q.continuous()
	}
	return q.categorical()
}

func (q Query) where() string {
	if w := strings.TrimSpace(q.Where); w != "" {
		return w
	}
	return "1=1"
}

func (q Query) continuous() string {
	d := q.Dialect
	col := d.QuoteIdent(q.Column)
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(d.QuoteLiteral(string(Continuous)) + " AS " + labelCategory)
	b.WriteString(", COUNT(" + col + ") AS " + labelCount)
	b.WriteString(", COUNT(DISTINCT " + col + ") AS " + labelDistinct)
	b.WriteString(", " + d.TextCast("MIN("+col+")") + " AS " + labelMin)
	b.WriteString(", " + d.TextCast("MAX("+col+")") + " AS " + labelMax)
	b.WriteString(", " + d.TextCast("AVG("+d.DoubleCast(col)+")") + " AS " + labelAvg)
	b.WriteString(", " + d.TextCast("STDDEV_SAMP("+d.DoubleCast(col)+")") + " AS " + labelStd)
	b.WriteString(", COUNT(*) - COUNT(" + col + ") AS " + labelMissing)
	b.WriteString(", NULL AS " + labelFreq)
	b.WriteString(" FROM " + d.Table(q.Schema, q.Table))
	b.WriteString(" WHERE " + q.where())
	return b.String()
}

// categorical groups values (timestamps truncated to their day), ranks the
// groups by frequency desc then value asc in byte order, and summarizes the
// frequencies of non-null groups. The null group is the missing count.
func (q Query) categorical() string {
	d := q.Dialect
	col := d.QuoteIdent(q.Column)
	if q.Type == dialect.Timestamp {
		col = "CAST(" + col + " AS DATE)"
	}
	val := d.TextCast(col)
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	var b strings.Builder
	b.WriteString("WITH freq AS (SELECT " + val + " AS p_col, COUNT(*) AS value_freq")
	b.WriteString(" FROM " + d.Table(q.Schema, q.Table) + " WHERE " + q.where())
	b.WriteString(" GROUP BY " + val + ")")
	b.WriteString(", ranked AS (SELECT p_col, value_freq, ROW_NUMBER() OVER (ORDER BY value_freq DESC, ")
	b.WriteString(d.ByteOrder("p_col") + " ASC) AS rn FROM freq WHERE p_col IS NOT NULL)")
	b.WriteString(" SELECT " + d.QuoteLiteral(string(Categorical)) + " AS " + labelCategory)
	b.WriteString(", COALESCE(SUM(value_freq), 0) AS " + labelCount)
	b.WriteString(", COUNT(*) AS " + labelDistinct)
	b.WriteString(", " + d.TextCast("MIN(value_freq)") + " AS " + labelMin)
	b.WriteString(", " + d.TextCast("MAX(value_freq)") + " AS " + labelMax)
	b.WriteString(", " + d.TextCast("AVG("+d.DoubleCast("value_freq")+")") + " AS " + labelAvg)
	b.WriteString(", " + d.TextCast("STDDEV_SAMP("+d.DoubleCast("value_freq")+")") + " AS " + labelStd)
	b.WriteString(", (SELECT COALESCE(SUM(value_freq), 0) FROM freq WHERE p_col IS NULL) AS " + labelMissing)
	b.WriteString(", (SELECT " + freqAgg(d) + " FROM ranked WHERE rn <= " + strconv.Itoa(topK) + ") AS " + labelFreq)
	b.WriteString(" FROM ranked")
	return b.String()
}

func freqAgg(d dialect.Dialect) string {
	item := "CONCAT(p_col, '(', " + d.TextCast("value_freq") + ", ')')"
	order := "value_freq DESC, " + d.ByteOrder("p_col") + " ASC"
	if d == dialect.Doris {
		return "GROUP_CONCAT(" + item + ", '; ' ORDER BY " + order + ")"
	}
	return "STRING_AGG(" + item + ", '; ' ORDER BY " + order + ")"
}

// VolumeQuery counts the rows of one vintage. The result label is row_count.
func VolumeQuery(d dialect.Dialect, schema, table, where string) string {
	where = strings.TrimSpace(where)
	if where == "" {
		where = "1=1"
	}
	return "SELECT COUNT(*) AS row_count FROM " + d.Table(schema, table) + " WHERE " + where
}
