package hashexpr

import (
	"strconv"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Renderer turns canonicalization steps into the SQL of one dialect.
type Renderer interface {
	Dialect() dialect.Dialect
	// Step wraps expr, an already rendered expression, in one step.
	Step(step Step, expr string, decimals int) string
	// Digest renders the upper-case hex digest of a text expression.
	Digest(alg Algorithm, expr string) string
}

// For returns the renderer of d.
func For(d dialect.Dialect) (Renderer, error) {
	switch d {
	case dialect.Postgres:
		return postgresRenderer{}, nil
	case dialect.Doris:
		return dorisRenderer{}, nil
	}
	return nil, errors.Newf("no hash renderer for dialect %q", d)
}

type postgresRenderer struct{}

func (postgresRenderer) Dialect() dialect.Dialect { return dialect.Postgres }

func (r postgresRenderer) Step(step Step, expr string, decimals int) string {
	d := r.Dialect()
	switch step {
	case AsText:
		return d.TextCast(expr)
	case StripControl:
		return "REGEXP_REPLACE(" + expr + ", " + d.QuoteLiteral(ControlPattern) + ", '', 'g')"
	case CollapseSpace:
		return "REGEXP_REPLACE(" + expr + ", " + d.QuoteLiteral(SpacePattern) + ", ' ', 'g')"
	case Trim:
		return "BTRIM(" + expr + ", ' ')"
	case Upper:
		return "UPPER(" + expr + ")"
	case FoldPseudoNull:
		return foldPseudoNull(d, expr)
	case FixedPoint:
		fixed := "CAST(ROUND(CAST(" + expr + " AS NUMERIC), " + strconv.Itoa(decimals) + ") AS TEXT)"
		return zeroOr(expr, fixed, decimals)
	case FormatDate:
		return "TO_CHAR(" + expr + ", 'YYYY-MM-DD')"
	case FormatTimestamp:
		return "TO_CHAR(" + expr + ", 'YYYY-MM-DD HH24:MI:SS.MS')"
	}
	return expr
}

func (postgresRenderer) Digest(alg Algorithm, expr string) string {
	if alg == MD5 {
		return "UPPER(MD5(" + expr + "))"
	}
	return "UPPER(ENCODE(SHA256(CONVERT_TO(" + expr + ", 'UTF8')), 'hex'))"
}

type dorisRenderer struct{}

func (dorisRenderer) Dialect() dialect.Dialect { return dialect.Doris }

func (r dorisRenderer) Step(step Step, expr string, decimals int) string {
	d := r.Dialect()
	switch step {
	case AsText:
		return d.TextCast(expr)
	case StripControl:
		return "REGEXP_REPLACE(" + expr + ", " + d.QuoteLiteral(ControlPattern) + ", '')"
	case CollapseSpace:
		return "REGEXP_REPLACE(" + expr + ", " + d.QuoteLiteral(SpacePattern) + ", ' ')"
	case Trim:
		return "TRIM(" + expr + ")"
	case Upper:
		return "UPPER(" + expr + ")"
	case FoldPseudoNull:
		return foldPseudoNull(d, expr)
	case FixedPoint:
		fixed := "CAST(CAST(" + expr + " AS DECIMAL(38, " + strconv.Itoa(decimals) + ")) AS STRING)"
		return zeroOr(expr, fixed, decimals)
	case FormatDate:
		return "DATE_FORMAT(" + expr + ", '%Y-%m-%d')"
	case FormatTimestamp:
		// %f is microseconds; keep milliseconds.
		return "SUBSTR(DATE_FORMAT(" + expr + ", '%Y-%m-%d %H:%i:%s.%f'), 1, 23)"
	}
	return expr
}

func (dorisRenderer) Digest(alg Algorithm, expr string) string {
	if alg == MD5 {
		return "UPPER(MD5(" + expr + "))"
	}
	return "UPPER(SHA2(" + expr + ", 256))"
}

func foldPseudoNull(d dialect.Dialect, expr string) string {
	tokens := make([]string, len(PseudoNulls))
	for i, t := range PseudoNulls {
		tokens[i] = d.QuoteLiteral(t)
	}
	return "CASE WHEN " + expr + " IN (" + strings.Join(tokens, ", ") + ") THEN NULL ELSE " + expr + " END"
}

// zeroOr is shared by both renderers: NULL and zero render as '0', values
// too wide for DECIMAL(38, decimals) as OverflowText. raw is the column
// before any step.
func zeroOr(raw, fixed string, decimals int) string {
	bound := "1E" + strconv.Itoa(OverflowDigits(decimals))
	return "CASE WHEN " + raw + " IS NULL OR " + raw + " = 0 THEN '0'" +
		" WHEN ABS(" + raw + ") >= " + bound + " THEN '" + OverflowText + "'" +
		" ELSE " + fixed + " END"
}

// ColumnExpr renders the canonical text of a column, NULL replaced by the
// rule's null text.
func ColumnExpr(r Renderer, c Contract, name string, t dialect.LogicalType) string {
	d := r.Dialect()
	expr := d.QuoteIdent(name)
	rule := c.Rule(t)
	for _, step := range rule.Steps {
		expr = r.Step(step, expr, c.Decimals)
	}
	return "COALESCE(" + expr + ", " + d.QuoteLiteral(rule.NullText) + ")"
}

// Concat joins canonical column texts with Separator. No columns render as
// the empty string.
func Concat(r Renderer, parts []string) string {
	if len(parts) == 0 {
		return "''"
	}
	return "CONCAT_WS(" + r.Dialect().QuoteLiteral(Separator) + ", " + strings.Join(parts, ", ") + ")"
}
