package dbexec

import (
	"context"
	"database/sql"
	"strings"
)

// Row is one result row keyed by lower-cased column label. SQL NULL is nil.
type Row = map[string]*string

func queryRows(ctx context.Context, db *sql.DB, query string) ([]Row, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	lowerColumns := make([]string, len(columns))
	for i := range columns {
		lowerColumns[i] = strings.ToLower(columns[i])
	}

	raw := make([]sql.RawBytes, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	out := make([]Row, 0, 64)
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		item := make(Row, len(columns))
		for i := range lowerColumns {
			if raw[i] == nil {
				item[lowerColumns[i]] = nil
				continue
			}
			v := string(raw[i])
			item[lowerColumns[i]] = &v
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
