package stage

import (
	"context"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/pool"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/quality"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stats"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/vintage"
)

var sides = []config.Side{config.Left, config.Right}

func where(v vintage.Vintage, side config.Side) string {
	if side == config.Right {
		return v.RightWhere
	}
	return v.LeftWhere
}

func sideRef(left, right artifact.TableRef, side config.Side) artifact.TableRef {
	if side == config.Right {
		return right
	}
	return left
}

func pairName(p artifact.ColumnPair, side config.Side) string {
	if side == config.Right {
		return p.Right
	}
	return p.Left
}

// Column compares the statistics of every comparable column of the Stage-1
// tables over their vintages and selects key columns.
func Column(ctx context.Context, run config.Run, exec dbexec.Executor, p *pool.Pool, s1 artifact.Stage1Artifact, m *metrics.Collector, now time.Time) (artifact.Stage2Artifact, error) {
	if m == nil {
		m = metrics.Default
	}
	out := artifact.Stage2Artifact{
		Header:   artifact.NewHeader(run, artifact.Stage2, now),
		Tables:   []artifact.Stage2Table{},
		Excluded: append([]artifact.Exclusion{}, s1.Excluded...),
	}
	for _, t := range s1.Tables {
		table, reason, err := columnTable(ctx, run, exec, p, t)
		if err != nil {
			return out, err
		}
		if reason != "" {
			logger.With("run", run.ID, "stage", artifact.Stage2, "table", t.Name).Warnw("table excluded", "reason", reason)
			out.Excluded = append(out.Excluded, artifact.Exclusion{Table: t.Name, Reason: reason})
			m.RecordTable(artifact.Stage2, "excluded")
			continue
		}
		out.Tables = append(out.Tables, table)
		m.RecordTable(artifact.Stage2, "validated")
	}
	return out, nil
}

func columnTable(ctx context.Context, run config.Run, exec dbexec.Executor, p *pool.Pool, t artifact.Stage1Table) (artifact.Stage2Table, string, error) {
	log := logger.With("run", run.ID, "stage", artifact.Stage2, "table", t.Name)
	out := artifact.Stage2Table{
		Name:              t.Name,
		Left:              t.Left.Ref,
		Right:             t.Right.Ref,
		ColumnMapping:     t.ColumnMapping,
		VolumeChecks:      []artifact.VolumeCheck{},
		ValidatedVintages: []vintage.Vintage{},
		Stats:             []artifact.ColumnVintage{},
		Cardinality:       map[string]quality.Cardinality{},
		Issues:            []artifact.Issue{},
	}

	var mismatched []string
	if !run.ExcludeMismatched {
		// Excluded dates are already filtered out of both sides' WHERE.
		for _, m := range t.Mismatches {
			mismatched = append(mismatched, m.Date)
		}
	}
	validated, err := volumeGate(ctx, exec, p, &out, t.Vintages, mismatched)
	if err != nil {
		return out, "", err
	}
	out.ValidatedVintages = validated
	if len(validated) == 0 {
		return out, "no vintage has matching row counts", nil
	}
	log.Infow("volume gate passed", "vintages", len(validated), "of", len(t.Vintages))

	var units []pool.Unit[parsedStats]
	for _, v := range validated {
		for _, pair := range t.ColumnMapping {
			for _, side := range sides {
				r := sideRef(out.Left, out.Right, side)
				q := stats.Query{
					Dialect: r.Dialect,
					Schema:  r.Schema,
					Table:   r.Table,
					Column:  pairName(pair, side),
					Type:    pair.Type,
					Where:   where(v, side),
					TopK:    run.TopK,
				}
				units = append(units, statsUnit(exec, unitID(v.Label, pair.Left, string(side)), side, pair.Left, q))
			}
		}
	}
	results := pool.Run(ctx, p, units)
	if err := fatal(results); err != nil {
		return out, "", err
	}
	byID := pool.ByID(results)

	schema := stats.DefaultSchema(stats.Tolerance{Atol: run.Atol, Rtol: run.Rtol})
	var compared []stats.Result
	for _, v := range validated {
		for _, pair := range t.ColumnMapping {
			cv := artifact.ColumnVintage{Column: pair.Left, Vintage: v.Label}
			for _, side := range sides {
				r := byID[unitID(v.Label, pair.Left, string(side))]
				if r.Err != nil {
					log.Warnw("stats unit failed", "vintage", v.Label, "column", pair.Left, "side", side, "error", r.Err)
					out.Issues = append(out.Issues, artifact.NewIssue(r.Err))
					continue
				}
				out.Issues = append(out.Issues, artifact.Issues(r.Value.errs...)...)
				cs := r.Value.stats
				if side == config.Left {
					cv.Left = &cs
				} else {
					cv.Right = &cs
				}
			}
			if cv.Left == nil || cv.Right == nil {
				out.Issues = append(out.Issues, artifact.NewIssue(errors.ComparisonImpossible(
					"column %s vintage %s has statistics on one side only", pair.Left, v.Label)))
			}
			cv.Result = schema.Compare(pair.Left, v.Label, cv.Left, cv.Right)
			compared = append(compared, cv.Result)
			out.Stats = append(out.Stats, cv)

			var ld, rd *int64
			if cv.Left != nil {
				ld = cv.Left.Distinct
			}
			if cv.Right != nil {
				rd = cv.Right.Distinct
			}
			out.Cardinality[pair.Left] = out.Cardinality[pair.Left].Observe(ld, rd)
		}
	}

	columns := make([]string, len(t.ColumnMapping))
	for i, pair := range t.ColumnMapping {
		columns[i] = pair.Left
	}
	labels := make([]string, len(validated))
	for i, v := range validated {
		labels[i] = v.Label
	}
	out.Quality = quality.Analyze(columns, labels, compared, out.Cardinality, run.KeyColumns)
	log.Infow("column statistics compared",
		"clean", len(out.Quality.CleanColumns), "mismatched", len(out.Quality.MismatchedColumns), "keys", out.Quality.KeyColumns)
	if len(out.Quality.CleanColumns) == 0 {
		return out, "no clean columns", nil
	}
	return out, "", nil
}

type parsedStats struct {
	stats stats.ColumnStats
	errs  []error
}

func statsUnit(exec dbexec.Executor, id string, side config.Side, column string, q stats.Query) pool.Unit[parsedStats] {
	return pool.Unit[parsedStats]{
		ID:   id,
		Side: side,
		Run: func(ctx context.Context) (parsedStats, error) {
			rows, err := exec.Execute(ctx, q.Dialect, q.SQL())
			if err != nil {
				return parsedStats{}, err
			}
			if len(rows) != 1 {
				return parsedStats{}, errors.ComparisonImpossible("stats of %s on %s returned %d rows", column, side, len(rows))
			}
			cs, errs := stats.ParseRow(column, stats.CategoryOf(q.Type), rows[0])
			return parsedStats{stats: cs, errs: errs}, nil
		},
	}
}

// volumeGate counts every vintage on both sides. A vintage is validated when
// both counts are known and equal and it holds none of the mismatched dates.
func volumeGate(ctx context.Context, exec dbexec.Executor, p *pool.Pool, t *artifact.Stage2Table, vs []vintage.Vintage, mismatched []string) ([]vintage.Vintage, error) {
	var units []pool.Unit[[]dbexec.Row]
	for _, v := range vs {
		for _, side := range sides {
			r := sideRef(t.Left, t.Right, side)
			q := stats.VolumeQuery(r.Dialect, r.Schema, r.Table, where(v, side))
			units = append(units, query(exec, unitID(v.Label, string(side)), side, r.Dialect, q))
		}
	}
	results := pool.Run(ctx, p, units)
	if err := fatal(results); err != nil {
		return nil, err
	}
	byID := pool.ByID(results)

	validated := make([]vintage.Vintage, 0, len(vs))
	for _, v := range vs {
		check := artifact.VolumeCheck{Vintage: v.Label, CountMismatchDates: []string{}}
		for _, d := range mismatched {
			if v.Contains(d) {
				check.CountMismatchDates = append(check.CountMismatchDates, d)
			}
		}
		for _, side := range sides {
			r := byID[unitID(v.Label, string(side))]
			if r.Err != nil {
				t.Issues = append(t.Issues, artifact.NewIssue(r.Err))
				continue
			}
			var n *int64
			if len(r.Value) > 0 {
				c, err := count(r.Value[0], labelRowCount)
				if err != nil {
					t.Issues = append(t.Issues, artifact.NewIssue(err))
				}
				n = c
			}
			if side == config.Left {
				check.LeftRows = n
			} else {
				check.RightRows = n
			}
		}
		check.Validated = stats.EqualInt(check.LeftRows, check.RightRows) && check.LeftRows != nil &&
			len(check.CountMismatchDates) == 0
		t.VolumeChecks = append(t.VolumeChecks, check)
		if check.Validated {
			validated = append(validated, v)
		}
	}
	return validated, nil
}
