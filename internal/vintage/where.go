package vintage

import (
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Filter renders the WHERE fragments of one side.
type Filter struct {
	Dialect dialect.Dialect
	Column  DateColumn
	// Extra is an externally supplied filter ANDed into every fragment.
	Extra string
}

// Range renders the inclusive [start, end] ISO range on the date column,
// ANDed with Extra, excluding the given ISO dates.
func (f Filter) Range(start, end string, exclude []string) (string, error) {
	if strings.TrimSpace(f.Column.Name) == "" {
		return f.withExtra(""), nil
	}
	cond, err := f.rangeCondition(start, end)
	if err != nil {
		return "", err
	}
	if len(exclude) > 0 {
		notIn, err := f.notIn(exclude)
		if err != nil {
			return "", err
		}
		cond += " AND " + notIn
	}
	return f.withExtra(cond), nil
}

// Bounds renders an optional configured range pushed into the row-count
// query. Either end may be empty.
func (f Filter) Bounds(start, end string) (string, error) {
	if strings.TrimSpace(f.Column.Name) == "" || (start == "" && end == "") {
		return f.withExtra(""), nil
	}
	var conds []string
	col, err := f.comparable()
	if err != nil {
		return "", err
	}
	if start != "" {
		lit, err := f.literal(start, false)
		if err != nil {
			return "", err
		}
		conds = append(conds, col+" >= "+lit)
	}
	if end != "" {
		lit, err := f.literal(end, true)
		if err != nil {
			return "", err
		}
		conds = append(conds, col+f.upperOp()+lit)
	}
	return f.withExtra(strings.Join(conds, " AND ")), nil
}

func (f Filter) withExtra(cond string) string {
	extra := strings.TrimSpace(f.Extra)
	switch {
	case cond == "" && extra == "":
		return "1=1"
	case extra == "":
		return cond
	case cond == "":
		return "(" + extra + ")"
	}
	return cond + " AND (" + extra + ")"
}

func (f Filter) rangeCondition(start, end string) (string, error) {
	col, err := f.comparable()
	if err != nil {
		return "", err
	}
	lo, err := f.literal(start, false)
	if err != nil {
		return "", err
	}
	hi, err := f.literal(end, true)
	if err != nil {
		return "", err
	}
	return col + " >= " + lo + " AND " + col + f.upperOp() + hi, nil
}

// Native columns use a half-open upper bound so timestamps on the last day
// still match.
func (f Filter) upperOp() string {
	if f.isNative() {
		return " < "
	}
	return " <= "
}

func (f Filter) isNative() bool {
	return f.Column.Kind != Text
}

func (f Filter) comparable() (string, error) {
	col := f.Dialect.QuoteIdent(f.Column.Name)
	if f.isNative() || sortable[f.Column.Format] {
		return col, nil
	}
	if f.Column.Format == "" {
		return "", errors.Newf("date column %s is text without a format", f.Column.Name)
	}
	expr, err := parseExpr(f.Dialect, col, f.Column.Format)
	if err != nil {
		return "", err
	}
	// Doris STR_TO_DATE keeps the time of day when the format has one.
	return "CAST(" + expr + " AS DATE)", nil
}

func (f Filter) literal(iso string, upper bool) (string, error) {
	t, err := time.Parse(ISODate, iso)
	if err != nil {
		return "", &errors.DateParseError{Column: f.Column.Name, Raw: iso}
	}
	if f.isNative() {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return f.Dialect.QuoteLiteral(t.Format(ISODate)), nil
	}
	if !sortable[f.Column.Format] {
		// Compared against the parsed column.
		return f.Dialect.QuoteLiteral(t.Format(ISODate)), nil
	}
	s, err := Original(iso, f.Column)
	if err != nil {
		return "", err
	}
	return f.Dialect.QuoteLiteral(s), nil
}

func (f Filter) notIn(dates []string) (string, error) {
	items := make([]string, 0, len(dates))
	for _, d := range dates {
		if f.isNative() || !sortable[f.Column.Format] {
			items = append(items, f.Dialect.QuoteLiteral(d))
			continue
		}
		s, err := Original(d, f.Column)
		if err != nil {
			return "", err
		}
		items = append(items, f.Dialect.QuoteLiteral(s))
	}
	list := " NOT IN (" + strings.Join(items, ", ") + ")"
	if f.isNative() {
		// Timestamps are truncated to their day before the comparison.
		return "CAST(" + f.Dialect.QuoteIdent(f.Column.Name) + " AS DATE)" + list, nil
	}
	col, err := f.comparable()
	if err != nil {
		return "", err
	}
	return col + list, nil
}

// Apply fills both WHERE fragments of every vintage. exclude lists ISO
// dates to drop from the vintages that contain them.
func Apply(vintages []Vintage, left, right Filter, exclude []string) ([]Vintage, error) {
	out := make([]Vintage, 0, len(vintages))
	for _, v := range vintages {
		var inWindow []string
		for _, d := range exclude {
			if v.Contains(d) {
				inWindow = append(inWindow, d)
			}
		}
		lw, err := left.Range(v.StartDate, v.EndDate, inWindow)
		if err != nil {
			return nil, errors.Wrapf(err, "vintage %s left filter", v.Label)
		}
		rw, err := right.Range(v.StartDate, v.EndDate, inWindow)
		if err != nil {
			return nil, errors.Wrapf(err, "vintage %s right filter", v.Label)
		}
		v.LeftWhere, v.RightWhere = lw, rw
		v.ExcludedDates = len(inWindow)
		out = append(out, v)
	}
	return out, nil
}

// CountQuery groups the rows of a table by the raw date column. Result
// labels are date_value and row_count.
func (f Filter) CountQuery(schema, table string, start, end string) (string, error) {
	where, err := f.Bounds(start, end)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(f.Column.Name) == "" {
		return "", errors.New("count query needs a date column")
	}
	col := f.Dialect.QuoteIdent(f.Column.Name)
	if f.isNative() {
		col = "CAST(" + col + " AS DATE)"
	}
	return "SELECT " + f.Dialect.TextCast(col) + " AS date_value, COUNT(*) AS row_count FROM " +
		f.Dialect.Table(schema, table) + " WHERE " + where + " GROUP BY " + col, nil
}
