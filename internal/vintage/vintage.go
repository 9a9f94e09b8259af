package vintage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Partition is the calendar granularity of vintages.
type Partition string

const (
	Day   Partition = "day"
	Week  Partition = "week"
	Month Partition = "month"
	Year  Partition = "year"
	Whole Partition = "whole"
)

// ParsePartition accepts a partition name case-insensitively.
func ParsePartition(raw string) (Partition, error) {
	p := Partition(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case Day, Week, Month, Year, Whole:
		return p, nil
	}
	return "", errors.Newf("partition %q is invalid", raw)
}

// Vintage is one calendar partition with a WHERE fragment per side.
// StartDate and EndDate are inclusive ISO dates.
type Vintage struct {
	Label         string `json:"label"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	LeftWhere     string `json:"left_where"`
	RightWhere    string `json:"right_where"`
	ExcludedDates int    `json:"excluded_dates"`
}

// Contains reports whether the ISO date d falls inside the vintage.
func (v Vintage) Contains(d string) bool {
	return v.StartDate <= d && d <= v.EndDate
}

// Range is an inclusive ISO date interval.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Observed returns the [min, max] range of the given ISO dates.
func Observed(dates []string) (Range, bool) {
	var r Range
	for _, d := range dates {
		if d == "" {
			continue
		}
		if r.Start == "" || d < r.Start {
			r.Start = d
		}
		if r.End == "" || d > r.End {
			r.End = d
		}
	}
	return r, r.Start != ""
}

// Narrow intersects r with optional configured bounds. Empty bounds leave
// that end untouched. ok is false when the intersection is empty.
func Narrow(r Range, start, end string) (Range, bool, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	for _, b := range []string{start, end} {
		if b == "" {
			continue
		}
		if _, err := time.Parse(ISODate, b); err != nil {
			return Range{}, false, &errors.DateParseError{Raw: b}
		}
	}
	if start != "" && start > r.Start {
		r.Start = start
	}
	if end != "" && end < r.End {
		r.End = end
	}
	return r, r.Start <= r.End, nil
}

// Generate buckets the observed dates into contiguous, non-overlapping
// vintages covering exactly [min, max] after narrowing with start/end.
// No observed dates yield no vintages. WHERE fragments are left empty; see
// Filter.Apply.
func Generate(dates []string, p Partition, start, end string) ([]Vintage, error) {
	observed, ok := Observed(dates)
	if !ok {
		return nil, nil
	}
	r, ok, err := Narrow(observed, start, end)
	if err != nil || !ok {
		return nil, err
	}
	return Buckets(r, p)
}

// Buckets splits an inclusive range into partitions.
func Buckets(r Range, p Partition) ([]Vintage, error) {
	lo, err := time.Parse(ISODate, r.Start)
	if err != nil {
		return nil, &errors.DateParseError{Raw: r.Start}
	}
	hi, err := time.Parse(ISODate, r.End)
	if err != nil {
		return nil, &errors.DateParseError{Raw: r.End}
	}
	if hi.Before(lo) {
		return nil, nil
	}
	if p == Whole {
		return []Vintage{{Label: "WHOLE", StartDate: r.Start, EndDate: r.End}}, nil
	}

	var out []Vintage
	for cur := periodStart(lo, p); !cur.After(hi); cur = nextPeriod(cur, p) {
		s, e := cur, nextPeriod(cur, p).AddDate(0, 0, -1)
		if s.Before(lo) {
			s = lo
		}
		if e.After(hi) {
			e = hi
		}
		out = append(out, Vintage{
			Label:     Label(cur, p),
			StartDate: s.Format(ISODate),
			EndDate:   e.Format(ISODate),
		})
	}
	return out, nil
}

func periodStart(t time.Time, p Partition) time.Time {
	switch p {
	case Week:
		// Monday start.
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func nextPeriod(t time.Time, p Partition) time.Time {
	switch p {
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	case Year:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 0, 1)
}

// Label names the period starting at t: D20250101, 2025-W01, M202501, Y2025.
// Weeks use the ISO year and week number of their Monday.
func Label(t time.Time, p Partition) string {
	switch p {
	case Week:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case Month:
		return fmt.Sprintf("M%04d%02d", t.Year(), int(t.Month()))
	case Year:
		return fmt.Sprintf("Y%04d", t.Year())
	case Whole:
		return "WHOLE"
	}
	return "D" + t.Format("20060102")
}

// DateCount is the number of rows observed on one standardized date.
type DateCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// RawCount is a row count keyed by the date exactly as stored.
type RawCount struct {
	Raw   *string
	Count int64
}

// StandardizeCounts converts raw per-date counts to ISO dates, merging raw
// values that land on the same day. Unparseable values are returned as
// errors and left out of the counts; NULL dates are skipped.
func StandardizeCounts(raw []RawCount, col DateColumn) ([]DateCount, []error) {
	col = Resolve(col, raw)

	merged := make(map[string]int64, len(raw))
	var errs []error
	for _, rc := range raw {
		if rc.Raw == nil {
			continue
		}
		iso, err := Standardize(*rc.Raw, col)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged[iso] += rc.Count
	}
	out := make([]DateCount, 0, len(merged))
	for d, n := range merged {
		out = append(out, DateCount{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, errs
}

// Resolve fills in the format of a text date column without one, detected
// from up to ten stored values.
func Resolve(col DateColumn, raw []RawCount) DateColumn {
	if col.Kind != Text || col.Format != "" {
		return col
	}
	samples := make([]string, 0, 10)
	for _, rc := range raw {
		if rc.Raw != nil && len(samples) < 10 {
			samples = append(samples, *rc.Raw)
		}
	}
	col.Format = DetectFormat(samples)
	return col
}

// Dates returns the dates of counts in order.
func Dates(counts []DateCount) []string {
	out := make([]string, len(counts))
	for i := range counts {
		out[i] = counts[i].Date
	}
	return out
}
