// Package report renders stage artifacts as xlsx summaries.
package report

import (
	"context"
	"strings"

	"github.com/viant/xlsy"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/store"
)

const (
	statusValidated = "validated"
	statusExcluded  = "excluded"
)

type Stage1Row struct {
	Table       string
	Status      string
	Reason      string
	Partition   string
	Vintages    int
	TotalDays   int
	MatchedDays int
	RowMatchAll bool
	Comparable  int
	Tokenized   int
	LeftOnly    int
	RightOnly   int
	Issues      int
}

type Stage2Row struct {
	Table             string
	Status            string
	Reason            string
	ValidatedVintages int
	Columns           int
	CleanColumns      int
	MismatchedColumns string
	KeyColumns        string
	Issues            int
}

type Stage3Row struct {
	Table          string
	Vintage        string
	Status         string
	Reason         string
	LeftRows       int
	RightRows      int
	MatchedRows    int
	MismatchedRows int
	LeftOnlyRows   int
	RightOnlyRows  int
	Clean          bool
}

func Stage1Rows(a artifact.Stage1Artifact) []Stage1Row {
	out := make([]Stage1Row, 0, len(a.Tables)+len(a.Excluded))
	for _, t := range a.Tables {
		out = append(out, Stage1Row{
			Table:       t.Name,
			Status:      statusValidated,
			Partition:   string(t.Partition),
			Vintages:    len(t.Vintages),
			TotalDays:   t.TotalDays,
			MatchedDays: t.MatchedDays,
			RowMatchAll: t.RowMatchAll,
			Comparable:  len(t.Crosswalk.Comparable),
			Tokenized:   len(t.Crosswalk.Tokenized),
			LeftOnly:    len(t.Crosswalk.LeftOnly),
			RightOnly:   len(t.Crosswalk.RightOnly),
			Issues:      len(t.Issues),
		})
	}
	for _, e := range a.Excluded {
		out = append(out, Stage1Row{Table: e.Table, Status: statusExcluded, Reason: e.Reason})
	}
	return out
}

func Stage2Rows(a artifact.Stage2Artifact) []Stage2Row {
	out := make([]Stage2Row, 0, len(a.Tables)+len(a.Excluded))
	for _, t := range a.Tables {
		out = append(out, Stage2Row{
			Table:             t.Name,
			Status:            statusValidated,
			ValidatedVintages: len(t.ValidatedVintages),
			Columns:           len(t.ColumnMapping),
			CleanColumns:      len(t.Quality.CleanColumns),
			MismatchedColumns: strings.Join(t.Quality.MismatchedColumns, ", "),
			KeyColumns:        strings.Join(t.Quality.KeyColumns, ", "),
			Issues:            len(t.Issues),
		})
	}
	for _, e := range a.Excluded {
		out = append(out, Stage2Row{Table: e.Table, Status: statusExcluded, Reason: e.Reason})
	}
	return out
}

// Stage3Rows has one row per compared or skipped vintage.
func Stage3Rows(a artifact.Stage3Artifact) []Stage3Row {
	var out []Stage3Row
	for _, t := range a.Tables {
		for _, v := range t.Vintages {
			out = append(out, Stage3Row{
				Table:          t.Name,
				Vintage:        v.Vintage,
				Status:         statusValidated,
				LeftRows:       v.LeftRows,
				RightRows:      v.RightRows,
				MatchedRows:    v.MatchedRows,
				MismatchedRows: v.MismatchedCount,
				LeftOnlyRows:   v.LeftOnlyCount,
				RightOnlyRows:  v.RightOnlyCount,
				Clean:          v.Clean(),
			})
		}
		for _, s := range t.Skipped {
			out = append(out, Stage3Row{Table: t.Name, Vintage: s.Vintage, Status: "skipped", Reason: s.Reason})
		}
	}
	for _, e := range a.Excluded {
		out = append(out, Stage3Row{Table: e.Table, Status: statusExcluded, Reason: e.Reason})
	}
	if out == nil {
		out = []Stage3Row{}
	}
	return out
}

// Marshal encodes rows as a single-sheet workbook.
func Marshal(sheet string, rows any) ([]byte, error) {
	tag := xlsy.NewTag()
	tag.Name = sheet
	m := xlsy.NewMarshaller(xlsy.WithTag(tag))
	data, err := m.Marshal(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "render sheet %s", sheet)
	}
	return data, nil
}

// Key is the blob key of a stage report.
func Key(runID, stage string) string {
	return store.Key(runID, stage+".xlsx")
}

// Write renders the summary of a decoded stage artifact and stores it.
func Write(ctx context.Context, blob store.Blob, runID, stage string, a any) (string, error) {
	var rows any
	switch v := a.(type) {
	case artifact.Stage1Artifact:
		rows = Stage1Rows(v)
	case artifact.Stage2Artifact:
		rows = Stage2Rows(v)
	case artifact.Stage3Artifact:
		rows = Stage3Rows(v)
	case *artifact.Stage1Artifact:
		rows = Stage1Rows(*v)
	case *artifact.Stage2Artifact:
		rows = Stage2Rows(*v)
	case *artifact.Stage3Artifact:
		rows = Stage3Rows(*v)
	default:
		return "", errors.Newf("no report for %T", a)
	}
	data, err := Marshal(stage, rows)
	if err != nil {
		return "", err
	}
	key := Key(runID, stage)
	if err := blob.Put(ctx, key, data); err != nil {
		return "", errors.Wrapf(err, "store report %s", key)
	}
	return key, nil
}
