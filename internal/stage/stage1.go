package stage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/crosswalk"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/hashexpr"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/pool"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stats"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/vintage"
)

const (
	labelColumnName = "column_name"
	labelDataType   = "data_type"
	labelDateValue  = "date_value"
	labelRowCount   = "row_count"
)

func dateColumn(ts config.TableSide) vintage.DateColumn {
	col := vintage.DateColumn{Name: strings.TrimSpace(ts.DateColumn), Kind: vintage.Native, Format: strings.TrimSpace(ts.DateFormat)}
	if strings.EqualFold(ts.DateKind, string(vintage.Text)) {
		col.Kind = vintage.Text
	}
	return col
}

func ref(run config.Run, side config.Side, t config.TableConfig) artifact.TableRef {
	ts := t.Side(side)
	return artifact.TableRef{Dialect: run.Dialect(side), Schema: ts.Schema, Table: ts.Table}
}

// Discover probes every table on one side: accessibility, columns and row
// counts by date. Each table is one unit of the side's pool.
func Discover(ctx context.Context, run config.Run, exec dbexec.Executor, p *pool.Pool, side config.Side) ([]artifact.SideMeta, error) {
	units := make([]pool.Unit[artifact.SideMeta], 0, len(run.Tables))
	for _, t := range run.Tables {
		t := t
		units = append(units, pool.Unit[artifact.SideMeta]{
			ID:   t.Name,
			Side: side,
			Run: func(ctx context.Context) (artifact.SideMeta, error) {
				return discoverTable(ctx, run, exec, side, t)
			},
		})
	}
	results := pool.Run(ctx, p, units)
	if err := fatal(results); err != nil {
		return nil, err
	}
	byID := pool.ByID(results)
	out := make([]artifact.SideMeta, 0, len(run.Tables))
	for _, t := range run.Tables {
		r := byID[t.Name]
		m := r.Value
		if r.Err != nil {
			m = artifact.SideMeta{Table: t.Name, Side: side, Ref: ref(run, side, t), Issues: artifact.Issues(r.Err)}
		}
		out = append(out, m)
	}
	return out, nil
}

func discoverTable(ctx context.Context, run config.Run, exec dbexec.Executor, side config.Side, t config.TableConfig) (artifact.SideMeta, error) {
	d := run.Dialect(side)
	ts := t.Side(side)
	log := logger.With("run", run.ID, "side", side, "table", t.Name)
	m := artifact.SideMeta{
		Table:      t.Name,
		Side:       side,
		Ref:        ref(run, side, t),
		Columns:    []artifact.Column{},
		DateColumn: dateColumn(ts),
		RowCounts:  []vintage.DateCount{},
		Issues:     []artifact.Issue{},
	}

	if _, err := exec.Execute(ctx, d, d.ProbeQuery(ts.Schema, ts.Table)); err != nil {
		if errors.Is(err, dbexec.ErrUnreachable) {
			return m, err
		}
		log.Warnw("table not accessible", "error", err)
		m.Issues = append(m.Issues, artifact.NewIssue(errors.Access(err, "probe %s", d.Table(ts.Schema, ts.Table))))
		return m, nil
	}

	rows, err := exec.Execute(ctx, d, d.ColumnsQuery(ts.Schema, ts.Table))
	if err != nil {
		if errors.Is(err, dbexec.ErrUnreachable) {
			return m, err
		}
		m.Issues = append(m.Issues, artifact.NewIssue(errors.Access(err, "list columns of %s", ts.Table)))
		return m, nil
	}
	for _, row := range rows {
		name := text(row, labelColumnName)
		if name == "" {
			continue
		}
		declared := text(row, labelDataType)
		m.Columns = append(m.Columns, artifact.Column{Name: name, DeclaredType: declared, Type: d.Classify(declared)})
	}
	if len(m.Columns) == 0 {
		m.Issues = append(m.Issues, artifact.NewIssue(errors.Access(errors.New("no columns discovered"), "table %s", ts.Table)))
		return m, nil
	}

	counts, errs, err := rowCounts(ctx, exec, d, t, ts, m.DateColumn)
	if err != nil {
		if errors.Is(err, dbexec.ErrUnreachable) {
			return m, err
		}
		m.Issues = append(m.Issues, artifact.NewIssue(errors.Access(err, "count rows of %s", ts.Table)))
		return m, nil
	}
	m.Accessible = true
	m.DateColumn = counts.column
	m.RowCounts = counts.counts
	m.Issues = append(m.Issues, artifact.Issues(errs...)...)
	log.Infow("discovered table", "columns", len(m.Columns), "dates", len(m.RowCounts))
	return m, nil
}

type dateCounts struct {
	column vintage.DateColumn
	counts []vintage.DateCount
}

// rowCounts groups rows by standardized date inside the configured bounds.
// Without a date column the whole table is one count with an empty date.
func rowCounts(ctx context.Context, exec dbexec.Executor, d config.Dialect, t config.TableConfig, ts config.TableSide, col vintage.DateColumn) (dateCounts, []error, error) {
	f := vintage.Filter{Dialect: d, Column: col, Extra: ts.Where}
	if col.Name == "" {
		where, _ := f.Bounds("", "")
		rows, err := exec.Execute(ctx, d, stats.VolumeQuery(d, ts.Schema, ts.Table, where))
		if err != nil {
			return dateCounts{}, nil, err
		}
		var n int64
		if len(rows) > 0 {
			c, err := count(rows[0], labelRowCount)
			if err != nil {
				return dateCounts{}, []error{err}, nil
			}
			if c != nil {
				n = *c
			}
		}
		return dateCounts{column: col, counts: []vintage.DateCount{{Count: n}}}, nil, nil
	}

	start, end := t.StartDate, t.EndDate
	if col.Kind == vintage.Text && col.Format == "" {
		// The format is only known after sampling stored values.
		start, end = "", ""
	}
	q, err := f.CountQuery(ts.Schema, ts.Table, start, end)
	if err != nil {
		return dateCounts{}, nil, err
	}
	rows, err := exec.Execute(ctx, d, q)
	if err != nil {
		return dateCounts{}, nil, err
	}

	var errs []error
	raw := make([]vintage.RawCount, 0, len(rows))
	for _, row := range rows {
		c, err := count(row, labelRowCount)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c == nil {
			continue
		}
		raw = append(raw, vintage.RawCount{Raw: row[labelDateValue], Count: *c})
	}
	resolved := vintage.Resolve(col, raw)
	std, perrs := vintage.StandardizeCounts(raw, resolved)
	errs = append(errs, perrs...)

	out := make([]vintage.DateCount, 0, len(std))
	for _, dc := range std {
		if (t.StartDate != "" && dc.Date < t.StartDate) || (t.EndDate != "" && dc.Date > t.EndDate) {
			continue
		}
		out = append(out, dc)
	}
	return dateCounts{column: resolved, counts: out}, errs, nil
}

// Consolidate1 joins both sides' discovery into the Stage-1 artifact.
func Consolidate1(run config.Run, left, right []artifact.SideMeta, rows []crosswalk.Row, m *metrics.Collector, now time.Time) artifact.Stage1Artifact {
	if m == nil {
		m = metrics.Default
	}
	out := artifact.Stage1Artifact{
		Header:   artifact.NewHeader(run, artifact.Stage1, now),
		Tables:   []artifact.Stage1Table{},
		Excluded: []artifact.Exclusion{},
	}
	byName := func(metas []artifact.SideMeta) map[string]artifact.SideMeta {
		idx := make(map[string]artifact.SideMeta, len(metas))
		for _, meta := range metas {
			idx[strings.ToLower(meta.Table)] = meta
		}
		return idx
	}
	lm, rm := byName(left), byName(right)

	for _, t := range run.Tables {
		key := strings.ToLower(t.Name)
		l, lok := lm[key]
		r, rok := rm[key]
		table, reason := consolidateTable(run, t, l, r, lok && rok, rows)
		if reason != "" {
			logger.With("run", run.ID, "stage", artifact.Stage1, "table", t.Name).Warnw("table excluded", "reason", reason)
			out.Excluded = append(out.Excluded, artifact.Exclusion{Table: t.Name, Reason: reason})
			m.RecordTable(artifact.Stage1, "excluded")
			continue
		}
		out.Tables = append(out.Tables, table)
		m.RecordTable(artifact.Stage1, "validated")
	}
	return out
}

func consolidateTable(run config.Run, t config.TableConfig, l, r artifact.SideMeta, found bool, rows []crosswalk.Row) (artifact.Stage1Table, string) {
	switch {
	case !found:
		return artifact.Stage1Table{}, "table was not discovered on both sides"
	case !l.Accessible && !r.Accessible:
		return artifact.Stage1Table{}, "table is not accessible on either side"
	case !l.Accessible:
		return artifact.Stage1Table{}, "table is not accessible on the left side"
	case !r.Accessible:
		return artifact.Stage1Table{}, "table is not accessible on the right side"
	}
	if (l.DateColumn.Name == "") != (r.DateColumn.Name == "") {
		return artifact.Stage1Table{}, "date column is configured on one side only"
	}

	out := artifact.Stage1Table{
		Name:       t.Name,
		Left:       l,
		Right:      r,
		Mismatches: []artifact.CountMismatch{},
		Issues:     []artifact.Issue{},
	}
	p := vintage.Whole
	if l.DateColumn.Name != "" {
		var err error
		if p, err = vintage.ParsePartition(t.Partition); err != nil {
			return artifact.Stage1Table{}, err.Error()
		}
	}
	out.Partition = p

	lc, rc := countMap(l.RowCounts), countMap(r.RowCounts)
	dates := make([]string, 0, len(lc)+len(rc))
	for d := range lc {
		dates = append(dates, d)
	}
	for d := range rc {
		if _, ok := lc[d]; !ok {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	var mismatched []string
	for _, d := range dates {
		if lc[d] != rc[d] {
			out.Mismatches = append(out.Mismatches, artifact.CountMismatch{Date: d, LeftCount: lc[d], RightCount: rc[d]})
			mismatched = append(mismatched, d)
		}
	}
	out.TotalDays = len(dates)
	out.MatchedDays = len(dates) - len(out.Mismatches)
	out.RowMatchAll = len(dates) > 0 && out.MatchedDays == len(dates)

	var (
		vs  []vintage.Vintage
		err error
	)
	if l.DateColumn.Name == "" {
		vs = []vintage.Vintage{{Label: "WHOLE"}}
		mismatched = nil
	} else {
		vs, err = vintage.Generate(dates, p, t.StartDate, t.EndDate)
		if err != nil {
			return artifact.Stage1Table{}, "vintages: " + err.Error()
		}
	}
	if !run.ExcludeMismatched {
		mismatched = nil
	}
	vs, err = vintage.Apply(vs,
		vintage.Filter{Dialect: l.Ref.Dialect, Column: l.DateColumn, Extra: t.Left.Where},
		vintage.Filter{Dialect: r.Ref.Dialect, Column: r.DateColumn, Extra: t.Right.Where},
		mismatched,
	)
	if err != nil {
		return artifact.Stage1Table{}, "vintage filters: " + err.Error()
	}
	if len(vs) == 0 {
		return artifact.Stage1Table{}, "no vintages"
	}
	out.Vintages = vs

	specs := func(side config.Side, meta artifact.SideMeta) []crosswalk.ColumnSpec {
		cs := make([]crosswalk.ColumnSpec, 0, len(meta.Columns))
		for _, c := range meta.Columns {
			cs = append(cs, crosswalk.ColumnSpec{Name: c.Name, DeclaredType: c.DeclaredType, Side: side})
		}
		return cs
	}
	cls, errs := crosswalk.Classify(crosswalk.ForTable(rows, t.CrosswalkName()), specs(config.Left, l), specs(config.Right, r))
	out.Crosswalk = cls
	out.Issues = append(out.Issues, artifact.Issues(errs...)...)

	out.ColumnMapping = make([]artifact.ColumnPair, 0, len(cls.Comparable))
	for _, cm := range cls.Comparable {
		lcol, _ := l.Column(cm.LeftName)
		rcol, _ := r.Column(cm.RightName)
		out.ColumnMapping = append(out.ColumnMapping, artifact.ColumnPair{
			Left:      lcol.Name,
			Right:     rcol.Name,
			LeftType:  lcol.Type,
			RightType: rcol.Type,
			Type:      hashexpr.Unify(lcol.Type, rcol.Type),
		})
	}
	if len(out.ColumnMapping) == 0 {
		return artifact.Stage1Table{}, "no comparable columns"
	}
	return out, ""
}

func countMap(counts []vintage.DateCount) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.Date] += c.Count
	}
	return out
}
