// Package dialect holds the SQL text helpers shared by every query builder:
// identifier and literal quoting, table references and a mapping from
// declared column types to the logical types the reconciler understands.
package dialect

import (
	"fmt"
	"strings"
)

type Dialect string

const (
	// Postgres is the row-oriented transactional side.
	Postgres Dialect = "postgres"
	// Doris is the columnar analytical side (MySQL protocol).
	Doris Dialect = "doris"
)

// Valid reports whether d is a known dialect.
func (d Dialect) Valid() bool {
	return d == Postgres || d == Doris
}

// QuoteIdent quotes an identifier exactly as discovered.
func (d Dialect) QuoteIdent(identifier string) string {
	if d == Doris {
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// QuoteLiteral renders value as a string literal.
func (d Dialect) QuoteLiteral(value string) string {
	escaped := value
	if d == Doris {
		escaped = strings.ReplaceAll(escaped, "\\", "\\\\")
	}
	escaped = strings.ReplaceAll(escaped, "'", "''")
	return "'" + escaped + "'"
}

// Table renders a possibly schema-qualified table reference.
func (d Dialect) Table(schema, table string) string {
	if strings.TrimSpace(schema) == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// TextCast casts expr to the dialect's text type.
func (d Dialect) TextCast(expr string) string {
	if d == Doris {
		return fmt.Sprintf("CAST(%s AS STRING)", expr)
	}
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

// DoubleCast casts expr to a double precision float.
func (d Dialect) DoubleCast(expr string) string {
	if d == Doris {
		return fmt.Sprintf("CAST(%s AS DOUBLE)", expr)
	}
	return fmt.Sprintf("CAST(%s AS DOUBLE PRECISION)", expr)
}

// ByteOrder makes a text expression sort and compare by bytes so both sides
// agree on min, max and frequency tie order.
func (d Dialect) ByteOrder(expr string) string {
	if d == Postgres {
		return expr + ` COLLATE "C"`
	}
	return expr
}

// ColumnsQuery lists the columns of a table with their declared types, in
// ordinal order. Result labels are column_name and data_type.
func (d Dialect) ColumnsQuery(schema, table string) string {
	conds := []string{"table_name = " + d.QuoteLiteral(table)}
	if strings.TrimSpace(schema) != "" {
		conds = append(conds, "table_schema = "+d.QuoteLiteral(schema))
	} else if d == Postgres {
		conds = append(conds, "table_schema = current_schema()")
	} else {
		conds = append(conds, "table_schema = DATABASE()")
	}
	return "SELECT column_name AS column_name, data_type AS data_type " +
		"FROM information_schema.columns WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY ordinal_position"
}

// ProbeQuery returns at most one row when the table is readable.
func (d Dialect) ProbeQuery(schema, table string) string {
	return "SELECT 1 AS ok FROM " + d.Table(schema, table) + " LIMIT 1"
}

// LogicalType is the canonical type family of a column.
type LogicalType string

const (
	String    LogicalType = "string"
	Number    LogicalType = "number"
	Date      LogicalType = "date"
	Timestamp LogicalType = "timestamp"
)

// Continuous reports whether statistics treat the type as continuous.
func (t LogicalType) Continuous() bool {
	return t == Number
}

// Classify maps a declared type as reported by information_schema to its
// logical type. Unknown types are treated as strings.
func (d Dialect) Classify(declared string) LogicalType {
	dt := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(dt, '('); i >= 0 {
		dt = strings.TrimSpace(dt[:i])
	}
	switch {
	case dt == "", strings.HasPrefix(dt, "interval"):
		return String
	case strings.HasPrefix(dt, "timestamp"), strings.HasPrefix(dt, "datetime"):
		return Timestamp
	case dt == "date", dt == "datev2":
		return Date
	}
	for _, prefix := range numberPrefixes {
		if strings.HasPrefix(dt, prefix) {
			return Number
		}
	}
	return String
}

var numberPrefixes = []string{
	"smallint", "integer", "int", "bigint", "largeint", "tinyint",
	"numeric", "decimal", "real", "double", "float", "serial", "bigserial",
}
