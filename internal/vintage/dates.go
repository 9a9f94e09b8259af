package vintage

import (
	"regexp"
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// ISODate is the standardized date layout every vintage boundary uses.
const ISODate = "2006-01-02"

// Kind is the storage representation of a date column.
type Kind string

const (
	// Native columns are DATE/TIMESTAMP typed.
	Native Kind = "date"
	// Text columns hold formatted date strings.
	Text Kind = "string"
)

// DateColumn describes how one side stores the partitioning date.
// Format uses strftime tokens (%Y %m %d %H %M %S) and only applies to Text.
type DateColumn struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Format string `json:"format"`
}

var nativeLayouts = []string{
	ISODate,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
}

// CommonFormats are tried, in order, for text dates without a format.
var CommonFormats = []string{
	"%Y-%m-%d",
	"%Y/%m/%d",
	"%Y%m%d",
	"%d-%m-%Y",
	"%d/%m/%Y",
	"%Y-%m-%d %H:%M:%S",
}

var strftimeTokens = map[byte]struct{ goLayout, postgres, doris string }{
	'Y': {"2006", "YYYY", "%Y"},
	'm': {"01", "MM", "%m"},
	'd': {"02", "DD", "%d"},
	'H': {"15", "HH24", "%H"},
	'M': {"04", "MI", "%i"},
	'S': {"05", "SS", "%s"},
	'%': {"%", "%", "%%"},
}

type translated struct {
	goLayout string
	postgres string
	doris    string
}

func translateFormat(format string) (translated, error) {
	var goLayout, pgFmt, dorisFmt strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			goLayout.WriteByte(ch)
			pgFmt.WriteByte(ch)
			dorisFmt.WriteByte(ch)
			continue
		}
		if i+1 >= len(format) {
			return translated{}, errors.Newf("date format %q ends with a bare %%", format)
		}
		i++
		tok, ok := strftimeTokens[format[i]]
		if !ok {
			return translated{}, errors.Newf("date format %q uses unsupported token %%%c", format, format[i])
		}
		goLayout.WriteString(tok.goLayout)
		pgFmt.WriteString(tok.postgres)
		dorisFmt.WriteString(tok.doris)
	}
	return translated{goLayout: goLayout.String(), postgres: pgFmt.String(), doris: dorisFmt.String()}, nil
}

// sortable formats compare correctly as plain strings.
var sortable = map[string]bool{"%Y%m%d": true, "%Y-%m-%d": true, "%Y/%m/%d": true}

var (
	reISO     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reSlash   = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)
	reCompact = regexp.MustCompile(`^\d{8}$`)
	reDMYDash = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	reDMY     = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	reISOTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
)

// DetectFormat guesses the strftime format of text dates from samples.
// It returns "" when no sample matches a known shape.
func DetectFormat(samples []string) string {
	for _, raw := range samples {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		switch {
		case reISO.MatchString(s):
			return "%Y-%m-%d"
		case reSlash.MatchString(s):
			return "%Y/%m/%d"
		case reCompact.MatchString(s):
			return "%Y%m%d"
		case reDMYDash.MatchString(s):
			return "%d-%m-%Y"
		case reDMY.MatchString(s):
			return "%d/%m/%Y"
		case reISOTime.MatchString(s):
			return "%Y-%m-%d %H:%M:%S"
		}
		return ""
	}
	return ""
}

// Standardize converts a raw date value into YYYY-MM-DD. A value that no
// layout accepts yields a *errors.DateParseError carrying the raw text.
func Standardize(raw string, col DateColumn) (string, error) {
	s := strings.TrimSpace(raw)
	if t, ok := parseDate(s, col); ok {
		return t.Format(ISODate), nil
	}
	return "", &errors.DateParseError{Column: col.Name, Raw: raw}
}

func parseDate(s string, col DateColumn) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if col.Kind == Text && col.Format != "" {
		tr, err := translateFormat(col.Format)
		if err != nil {
			return time.Time{}, false
		}
		t, err := time.Parse(tr.goLayout, s)
		return t, err == nil
	}
	for _, layout := range nativeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, format := range CommonFormats {
		tr, _ := translateFormat(format)
		if t, err := time.Parse(tr.goLayout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Original renders an ISO date back in the column's storage representation.
func Original(iso string, col DateColumn) (string, error) {
	t, err := time.Parse(ISODate, iso)
	if err != nil {
		return "", &errors.DateParseError{Column: col.Name, Raw: iso}
	}
	if col.Kind != Text || col.Format == "" {
		return t.Format(ISODate), nil
	}
	tr, err := translateFormat(col.Format)
	if err != nil {
		return "", err
	}
	return t.Format(tr.goLayout), nil
}

// parseExpr renders a SQL expression turning a text date column into a date.
func parseExpr(d dialect.Dialect, column string, format string) (string, error) {
	tr, err := translateFormat(format)
	if err != nil {
		return "", err
	}
	if d == dialect.Doris {
		return "STR_TO_DATE(" + column + ", " + d.QuoteLiteral(tr.doris) + ")", nil
	}
	return "TO_DATE(" + column + ", " + d.QuoteLiteral(tr.postgres) + ")", nil
}
