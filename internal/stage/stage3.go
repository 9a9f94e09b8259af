package stage

import (
	"context"
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/hashcompare"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/hashexpr"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/pool"
)

const debugUnit = "debug"

// Hash reconciles the rows of every Stage-2 table by digest, vintage by
// vintage, over the clean columns joined on the key columns.
func Hash(ctx context.Context, run config.Run, exec dbexec.Executor, p *pool.Pool, s2 artifact.Stage2Artifact, m *metrics.Collector, now time.Time) (artifact.Stage3Artifact, error) {
	if m == nil {
		m = metrics.Default
	}
	out := artifact.Stage3Artifact{
		Header:   artifact.NewHeader(run, artifact.Stage3, now),
		Tables:   []artifact.Stage3Table{},
		Excluded: append([]artifact.Exclusion{}, s2.Excluded...),
	}
	alg, err := hashexpr.ParseAlgorithm(run.Digest)
	if err != nil {
		return out, err
	}
	contract := hashexpr.DefaultContract(run.NumberDecimals)

	for _, t := range s2.Tables {
		table, reason, err := hashTable(ctx, run, exec, p, contract, alg, t, m)
		if err != nil {
			return out, err
		}
		if reason != "" {
			logger.With("run", run.ID, "stage", artifact.Stage3, "table", t.Name).Warnw("table excluded", "reason", reason)
			out.Excluded = append(out.Excluded, artifact.Exclusion{Table: t.Name, Reason: reason})
			m.RecordTable(artifact.Stage3, "excluded")
			continue
		}
		outcome := "mismatched"
		if table.Clean {
			outcome = "clean"
		}
		m.RecordTable(artifact.Stage3, outcome)
		out.Tables = append(out.Tables, table)
	}
	return out, nil
}

// hashColumns resolves names to the pairs of the table, keeping mapping order.
func hashColumns(t artifact.Stage2Table, names []string) []artifact.ColumnPair {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]artifact.ColumnPair, 0, len(names))
	for _, p := range t.ColumnMapping {
		if want[p.Left] {
			out = append(out, p)
		}
	}
	return out
}

func sideColumns(pairs []artifact.ColumnPair, side config.Side) []hashexpr.Column {
	out := make([]hashexpr.Column, len(pairs))
	for i, p := range pairs {
		out[i] = hashexpr.Column{Name: pairName(p, side), Type: p.Type}
	}
	return out
}

func hashTable(ctx context.Context, run config.Run, exec dbexec.Executor, p *pool.Pool, contract hashexpr.Contract, alg hashexpr.Algorithm, t artifact.Stage2Table, m *metrics.Collector) (artifact.Stage3Table, string, error) {
	log := logger.With("run", run.ID, "stage", artifact.Stage3, "table", t.Name)
	keys := make([]artifact.ColumnPair, 0, len(t.Quality.KeyColumns))
	for _, k := range t.Quality.KeyColumns {
		if pair, ok := t.Pair(k); ok {
			keys = append(keys, pair)
		}
	}
	if len(keys) == 0 {
		return artifact.Stage3Table{}, "no key columns", nil
	}
	columns := hashColumns(t, t.Quality.CleanColumns)

	out := artifact.Stage3Table{
		Name:       t.Name,
		KeyColumns: append([]string{}, t.Quality.KeyColumns...),
		Columns:    make([]string, len(columns)),
		Algorithm:  string(alg),
		Vintages:   []hashcompare.Result{},
		Skipped:    []artifact.SkippedVintage{},
		Issues:     []artifact.Issue{},
	}
	for i, c := range columns {
		out.Columns[i] = c.Left
	}

	var units []pool.Unit[[]dbexec.Row]
	for _, v := range t.ValidatedVintages {
		for _, side := range sides {
			r := sideRef(t.Left, t.Right, side)
			renderer, err := hashexpr.For(r.Dialect)
			if err != nil {
				return out, "", err
			}
			s := hashexpr.Select{
				Schema:    r.Schema,
				Table:     r.Table,
				Keys:      sideColumns(keys, side),
				Columns:   sideColumns(columns, side),
				Where:     where(v, side),
				Algorithm: alg,
			}
			q, err := hashexpr.RowSelect(renderer, contract, s)
			if err != nil {
				return out, "", err
			}
			units = append(units, query(exec, unitID(v.Label, string(side)), side, r.Dialect, q))
			if run.DebugRows > 0 {
				s.DebugRows = run.DebugRows
				dq, err := hashexpr.RowSelect(renderer, contract, s)
				if err != nil {
					return out, "", err
				}
				units = append(units, query(exec, unitID(v.Label, string(side), debugUnit), side, r.Dialect, dq))
			}
		}
	}
	results := pool.Run(ctx, p, units)
	if err := fatal(results); err != nil {
		return out, "", err
	}
	byID := pool.ByID(results)

	out.Clean = true
	for _, v := range t.ValidatedVintages {
		digests := make(map[config.Side][]hashcompare.RowDigest, 2)
		var failed []string
		for _, side := range sides {
			r := byID[unitID(v.Label, string(side))]
			if r.Err != nil {
				out.Issues = append(out.Issues, artifact.NewIssue(r.Err))
				failed = append(failed, string(side)+": "+r.Err.Error())
				continue
			}
			rows, err := hashcompare.ParseRows(r.Value, len(keys))
			if err != nil {
				out.Issues = append(out.Issues, artifact.NewIssue(err))
				failed = append(failed, string(side)+": "+err.Error())
				continue
			}
			digests[side] = rows

			if run.DebugRows > 0 {
				out.Issues = append(out.Issues, verifyDebug(contract, alg, sideColumns(columns, side), v.Label, side, byID[unitID(v.Label, string(side), debugUnit)])...)
			}
		}
		if len(failed) > 0 {
			log.Warnw("vintage skipped", "vintage", v.Label, "errors", failed)
			out.Skipped = append(out.Skipped, artifact.SkippedVintage{Vintage: v.Label, Reason: strings.Join(failed, "; ")})
			out.Clean = false
			continue
		}

		res := hashcompare.Compare(v.Label, out.KeyColumns, digests[config.Left], digests[config.Right], run.SampleSize)
		if err := res.Selectivity(); err != nil {
			log.Warnw("key columns are not selective", "vintage", v.Label, "error", err)
			out.Issues = append(out.Issues, artifact.NewIssue(err))
		}
		m.RecordHashRows(res.MatchedRows, res.MismatchedCount, res.LeftOnlyCount, res.RightOnlyCount)
		log.Infow("vintage compared", "vintage", v.Label,
			"matched", res.MatchedRows, "mismatched", res.MismatchedCount, "left_only", res.LeftOnlyCount, "right_only", res.RightOnlyCount)
		out.Clean = out.Clean && res.Clean()
		out.Vintages = append(out.Vintages, res)
	}
	return out, "", nil
}

func verifyDebug(c hashexpr.Contract, alg hashexpr.Algorithm, columns []hashexpr.Column, label string, side config.Side, r pool.Result[[]dbexec.Row]) []artifact.Issue {
	if r.Err != nil {
		return artifact.Issues(errors.Wrap(r.Err, "debug digest query"))
	}
	var out []artifact.Issue
	for i, row := range r.Value {
		if err := hashexpr.VerifyDebugRow(c, alg, columns, row); err != nil {
			out = append(out, artifact.NewIssue(errors.Wrapf(err, "vintage %s %s debug row %d", label, side, i)))
		}
	}
	return out
}
