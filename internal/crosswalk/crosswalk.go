package crosswalk

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Role is the part a column plays in reconciliation.
type Role string

const (
	Comparable Role = "comparable"
	Tokenized  Role = "tokenized"
	LeftOnly   Role = "left_only"
	RightOnly  Role = "right_only"
)

// ColumnSpec is a column discovered on one side.
type ColumnSpec struct {
	Name         string      `json:"name"`
	DeclaredType string      `json:"declared_type"`
	Side         config.Side `json:"side"`
}

// Key is the case-normalized name used for matching: upper case on the
// left, lower case on the right.
func (c ColumnSpec) Key() string {
	return NormalizeName(c.Side, c.Name)
}

// NormalizeName applies the matching convention of a side.
func NormalizeName(side config.Side, name string) string {
	name = strings.TrimSpace(name)
	if side == config.Right {
		return strings.ToLower(name)
	}
	return strings.ToUpper(name)
}

// Row is one declared crosswalk entry.
type Row struct {
	ColMap      string `json:"col_map"`
	LeftName    string `json:"left_col"`
	RightName   string `json:"right_col"`
	IsTokenized bool   `json:"is_tokenized"`
}

// ColumnMapping pairs a declared left column with its right counterpart.
// One-sided mappings leave the other name empty. Names are as discovered.
type ColumnMapping struct {
	LeftName  string `json:"left_name"`
	RightName string `json:"right_name"`
	Role      Role   `json:"role"`
}

// Classification holds the four disjoint role sets of one table, plus the
// discovered columns no crosswalk row mentions.
type Classification struct {
	Comparable    []ColumnMapping `json:"comparable"`
	Tokenized     []ColumnMapping `json:"tokenized"`
	LeftOnly      []ColumnMapping `json:"left_only"`
	RightOnly     []ColumnMapping `json:"right_only"`
	UnmappedLeft  []string        `json:"unmapped_left"`
	UnmappedRight []string        `json:"unmapped_right"`
	Demoted       []string        `json:"demoted"`
}

// Mappings returns every mapping of the given role.
func (c Classification) Mappings(role Role) []ColumnMapping {
	switch role {
	case Comparable:
		return c.Comparable
	case Tokenized:
		return c.Tokenized
	case LeftOnly:
		return c.LeftOnly
	case RightOnly:
		return c.RightOnly
	}
	return nil
}

// Classify resolves declared crosswalk rows against the columns discovered
// on both sides. A row naming a column absent on one side is demoted to the
// one-sided role and reported in Demoted with a schema error in errs.
// Tokenized rows never become comparable.
func Classify(rows []Row, left, right []ColumnSpec) (Classification, []error) {
	leftByKey := make(map[string]ColumnSpec, len(left))
	for _, c := range left {
		leftByKey[strings.ToUpper(c.Name)] = c
	}
	rightByKey := make(map[string]ColumnSpec, len(right))
	for _, c := range right {
		rightByKey[strings.ToUpper(c.Name)] = c
	}

	var out Classification
	var errs []error
	usedLeft := make(map[string]bool, len(left))
	usedRight := make(map[string]bool, len(right))

	for _, row := range rows {
		lk := strings.ToUpper(strings.TrimSpace(row.LeftName))
		rk := strings.ToUpper(strings.TrimSpace(row.RightName))
		lc, lok := leftByKey[lk]
		rc, rok := rightByKey[rk]
		if lk == "" {
			lok = false
		}
		if rk == "" {
			rok = false
		}
		if (lok && usedLeft[lk]) || (rok && usedRight[rk]) {
			errs = append(errs, errors.Schema("crosswalk row %s/%s reuses a mapped column", row.LeftName, row.RightName))
			continue
		}
		switch {
		case lok && rok:
			usedLeft[lk], usedRight[rk] = true, true
			m := ColumnMapping{LeftName: lc.Name, RightName: rc.Name, Role: Comparable}
			if row.IsTokenized {
				m.Role = Tokenized
				out.Tokenized = append(out.Tokenized, m)
			} else {
				out.Comparable = append(out.Comparable, m)
			}
		case lok:
			usedLeft[lk] = true
			out.LeftOnly = append(out.LeftOnly, ColumnMapping{LeftName: lc.Name, Role: LeftOnly})
			if rk != "" {
				out.Demoted = append(out.Demoted, lc.Name)
				errs = append(errs, errors.Schema("column %s declared on right is missing; %s is left only", row.RightName, lc.Name))
			}
		case rok:
			usedRight[rk] = true
			out.RightOnly = append(out.RightOnly, ColumnMapping{RightName: rc.Name, Role: RightOnly})
			if lk != "" {
				out.Demoted = append(out.Demoted, rc.Name)
				errs = append(errs, errors.Schema("column %s declared on left is missing; %s is right only", row.LeftName, rc.Name))
			}
		default:
			errs = append(errs, errors.Schema("crosswalk row %s/%s matches no discovered column", row.LeftName, row.RightName))
		}
	}

	for _, c := range left {
		if !usedLeft[strings.ToUpper(c.Name)] {
			out.UnmappedLeft = append(out.UnmappedLeft, NormalizeName(config.Left, c.Name))
		}
	}
	for _, c := range right {
		if !usedRight[strings.ToUpper(c.Name)] {
			out.UnmappedRight = append(out.UnmappedRight, NormalizeName(config.Right, c.Name))
		}
	}
	sort.Strings(out.UnmappedLeft)
	sort.Strings(out.UnmappedRight)
	return out, errs
}

// ForTable selects the rows of one column map, case-insensitively.
func ForTable(rows []Row, colMap string) []Row {
	colMap = strings.ToLower(strings.TrimSpace(colMap))
	var out []Row
	for _, r := range rows {
		if strings.ToLower(strings.TrimSpace(r.ColMap)) == colMap {
			out = append(out, r)
		}
	}
	return out
}

var requiredHeader = []string{"col_map", "left_col", "right_col", "is_tokenized"}

// Load reads a crosswalk CSV with the header col_map,left_col,right_col,is_tokenized.
// Extra columns are ignored.
func Load(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read crosswalk header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range requiredHeader {
		if _, ok := idx[h]; !ok {
			return nil, errors.WithHintf(errors.Newf("crosswalk header is missing %q", h), "expected header %s", strings.Join(requiredHeader, ","))
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read crosswalk line %d", line)
		}
		field := func(name string) string {
			i := idx[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		tok, err := parseBool(field("is_tokenized"))
		if err != nil {
			return nil, errors.Wrapf(err, "crosswalk line %d", line)
		}
		rows = append(rows, Row{
			ColMap:      strings.ToLower(field("col_map")),
			LeftName:    field("left_col"),
			RightName:   field("right_col"),
			IsTokenized: tok,
		})
	}
	return rows, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "", "0", "false", "f", "n", "no":
		return false, nil
	case "1", "true", "t", "y", "yes":
		return true, nil
	}
	return false, errors.Newf("is_tokenized %q is invalid", raw)
}
