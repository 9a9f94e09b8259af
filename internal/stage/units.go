package stage

import (
	"context"
	"strconv"
	"strings"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/pool"
)

// unitID joins identity parts of a unit. Parts never contain NUL.
func unitID(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// fatal returns the first unreachable-backend failure among results.
func fatal[T any](results []pool.Result[T]) error {
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, dbexec.ErrUnreachable) {
			return r.Err
		}
	}
	return nil
}

// query wraps one SQL statement as a unit.
func query(exec dbexec.Executor, id string, side config.Side, d config.Dialect, sql string) pool.Unit[[]dbexec.Row] {
	return pool.Unit[[]dbexec.Row]{
		ID:   id,
		Side: side,
		Run: func(ctx context.Context) ([]dbexec.Row, error) {
			return exec.Execute(ctx, d, sql)
		},
	}
}

func text(row dbexec.Row, label string) string {
	if v := row[label]; v != nil {
		return *v
	}
	return ""
}

// count reads an integral count label. Drivers may render counts as
// decimals, so "12.0" is accepted.
func count(row dbexec.Row, label string) (*int64, error) {
	raw := row[label]
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return nil, &errors.NumberParseError{Field: label, Raw: s}
	}
	n := int64(f)
	return &n, nil
}
