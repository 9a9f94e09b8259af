// Package artifact defines the consolidated output of every stage. Each
// stage artifact fully determines the input of the next one.
package artifact

import (
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/crosswalk"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/hashcompare"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/quality"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stats"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/vintage"
)

// Stage names, as used in keys, metrics and fatal errors.
const (
	Stage1 = "stage1"
	Stage2 = "stage2"
	Stage3 = "stage3"
)

// Header identifies the run that produced an artifact.
type Header struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHeader stamps a header for run and stage.
func NewHeader(run config.Run, stage string, now time.Time) Header {
	return Header{RunID: run.ID, Name: run.Name, Category: run.Category, Stage: stage, CreatedAt: now.UTC()}
}

// Exclusion names a table dropped by a stage and why.
type Exclusion struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
}

// TableRef locates a table on one side.
type TableRef struct {
	Dialect dialect.Dialect `json:"dialect"`
	Schema  string          `json:"schema"`
	Table   string          `json:"table"`
}

// Column is a discovered column.
type Column struct {
	Name         string              `json:"name"`
	DeclaredType string              `json:"declared_type"`
	Type         dialect.LogicalType `json:"type"`
}

// SideMeta is what Stage 1 discovered about a table on one side.
type SideMeta struct {
	Table      string              `json:"table"`
	Side       config.Side         `json:"side"`
	Ref        TableRef            `json:"ref"`
	Accessible bool                `json:"accessible"`
	Columns    []Column            `json:"columns"`
	DateColumn vintage.DateColumn  `json:"date_column"`
	RowCounts  []vintage.DateCount `json:"row_counts"`
	Issues     []Issue             `json:"issues"`
}

// Column looks up a discovered column by name, case-insensitively.
func (m SideMeta) Column(name string) (Column, bool) {
	for _, c := range m.Columns {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Column{}, false
}

// Stage1Side is the raw per-side output of Stage 1.
type Stage1Side struct {
	Header
	Side   config.Side `json:"side"`
	Tables []SideMeta  `json:"tables"`
}

// CountMismatch is a date whose row counts differ. A date missing on one
// side counts zero there.
type CountMismatch struct {
	Date       string `json:"date"`
	LeftCount  int64  `json:"left_count"`
	RightCount int64  `json:"right_count"`
}

// ColumnPair is a comparable column with both declared names and the
// logical type both sides are compared as.
type ColumnPair struct {
	Left      string              `json:"left"`
	Right     string              `json:"right"`
	LeftType  dialect.LogicalType `json:"left_type"`
	RightType dialect.LogicalType `json:"right_type"`
	Type      dialect.LogicalType `json:"type"`
}

// Stage1Table is a table that passed Stage 1.
type Stage1Table struct {
	Name          string                   `json:"name"`
	Partition     vintage.Partition        `json:"partition"`
	Left          SideMeta                 `json:"left"`
	Right         SideMeta                 `json:"right"`
	Crosswalk     crosswalk.Classification `json:"crosswalk"`
	ColumnMapping []ColumnPair             `json:"column_mapping"`
	Vintages      []vintage.Vintage        `json:"vintages"`
	TotalDays     int                      `json:"total_days_union"`
	MatchedDays   int                      `json:"matched_day_count"`
	RowMatchAll   bool                     `json:"row_match_all"`
	Mismatches    []CountMismatch          `json:"mismatch_details"`
	Issues        []Issue                  `json:"issues"`
}

type Stage1Artifact struct {
	Header
	Tables   []Stage1Table `json:"validated_tables"`
	Excluded []Exclusion   `json:"excluded_tables"`
}

// VolumeCheck is the per-vintage row count gate of Stage 2.
type VolumeCheck struct {
	Vintage   string `json:"vintage"`
	LeftRows  *int64 `json:"left_rows"`
	RightRows *int64 `json:"right_rows"`
	// CountMismatchDates are the Stage-1 mismatched dates inside the vintage.
	CountMismatchDates []string `json:"count_mismatch_dates"`
	Validated          bool     `json:"validated"`
}

// ColumnVintage holds both sides' statistics of a column in a vintage.
type ColumnVintage struct {
	Column  string             `json:"column"`
	Vintage string             `json:"vintage"`
	Left    *stats.ColumnStats `json:"left"`
	Right   *stats.ColumnStats `json:"right"`
	Result  stats.Result       `json:"result"`
}

// Stage2Table is a table that passed Stage 2.
type Stage2Table struct {
	Name              string                         `json:"name"`
	Left              TableRef                       `json:"left"`
	Right             TableRef                       `json:"right"`
	ColumnMapping     []ColumnPair                   `json:"column_mapping"`
	VolumeChecks      []VolumeCheck                  `json:"volume_checks"`
	ValidatedVintages []vintage.Vintage              `json:"validated_vintages"`
	Stats             []ColumnVintage                `json:"stats"`
	Cardinality       map[string]quality.Cardinality `json:"cardinality"`
	Quality           quality.TableQuality           `json:"quality"`
	Issues            []Issue                        `json:"issues"`
}

// Pair returns the mapping of a left column name.
func (t Stage2Table) Pair(left string) (ColumnPair, bool) {
	for _, p := range t.ColumnMapping {
		if p.Left == left {
			return p, true
		}
	}
	return ColumnPair{}, false
}

type Stage2Artifact struct {
	Header
	Tables   []Stage2Table `json:"validated_tables"`
	Excluded []Exclusion   `json:"excluded_tables"`
}

// SkippedVintage is a vintage whose digests could not be read on a side.
type SkippedVintage struct {
	Vintage string `json:"vintage"`
	Reason  string `json:"reason"`
}

// Stage3Table is the hash reconciliation of one table.
type Stage3Table struct {
	Name       string               `json:"name"`
	KeyColumns []string             `json:"key_columns"`
	Columns    []string             `json:"columns"`
	Algorithm  string               `json:"algorithm"`
	Vintages   []hashcompare.Result `json:"vintages"`
	Skipped    []SkippedVintage     `json:"skipped"`
	Clean      bool                 `json:"clean"`
	Issues     []Issue              `json:"issues"`
}

type Stage3Artifact struct {
	Header
	Tables   []Stage3Table `json:"tables"`
	Excluded []Exclusion   `json:"excluded_tables"`
}
