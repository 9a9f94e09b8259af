package dbexec

import (
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// ErrUnreachable marks a backend that could not be reached at all. Stages
// treat it as fatal.
var ErrUnreachable = errors.New("backend unreachable")

// IsMissingObject reports whether err says the queried database, table or
// column does not exist.
func IsMissingObject(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1049, 1054, 1109, 1146: // bad db, bad field, unknown table, no such table
			return true
		case 1105: // Doris wraps unknown objects in detailMessage
			return isUnknownObjectMessage(mysqlErr.Message)
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "3D000", "3F000", "42P01", "42703": // invalid catalog, schema, undefined table, column
			return true
		}
	}
	return false
}

func isUnknownObjectMessage(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	return strings.Contains(m, "unknown table") ||
		strings.Contains(m, "unknown database") ||
		strings.Contains(m, "does not exist") ||
		strings.Contains(m, "not found")
}

// isDialFailure reports a query that could not open a new connection.
// Timeouts and broken connections mid-query stay access errors so that a
// single slow query does not abort its siblings.
func isDialFailure(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
