package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultRWTimeout      = 2 * time.Minute
	defaultMaxOpenConns   = 4
)

func checkBackend(b config.Backend) error {
	if strings.TrimSpace(b.Host) == "" {
		return errors.New("host is required")
	}
	if b.Port <= 0 {
		return errors.New("port is required")
	}
	if strings.TrimSpace(b.User) == "" {
		return errors.New("user is required")
	}
	return nil
}

func timeouts(b config.Backend) (connect, rw time.Duration) {
	connect = b.ConnectTimeout
	if connect <= 0 {
		connect = defaultConnectTimeout
	}
	rw = b.ReadTimeout
	if rw <= 0 {
		rw = defaultRWTimeout
	}
	if b.WriteTimeout > rw {
		rw = b.WriteTimeout
	}
	return connect, rw
}

// DorisDSN renders the MySQL-protocol DSN of a Doris frontend.
func DorisDSN(b config.Backend) (string, error) {
	if err := checkBackend(b); err != nil {
		return "", err
	}
	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(b.Host, fmt.Sprintf("%d", b.Port))
	c.User = b.User
	c.Passwd = b.Password
	if database := strings.TrimSpace(b.Database); database != "" {
		c.DBName = database
	}
	connect, rw := timeouts(b)
	c.Timeout = connect
	c.ReadTimeout = rw
	c.WriteTimeout = rw
	c.Params = map[string]string{
		"charset": "utf8mb4",
	}
	return c.FormatDSN(), nil
}

// PostgresDSN renders a lib/pq URL DSN.
func PostgresDSN(b config.Backend) (string, error) {
	if err := checkBackend(b); err != nil {
		return "", err
	}
	connect, _ := timeouts(b)
	sslmode := strings.TrimSpace(b.SSLMode)
	if sslmode == "" {
		sslmode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	q.Set("connect_timeout", fmt.Sprintf("%d", int(connect.Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(b.User, b.Password),
		Host:     net.JoinHostPort(b.Host, fmt.Sprintf("%d", b.Port)),
		Path:     "/" + strings.TrimSpace(b.Database),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// OpenDB opens a pool for a backend without connecting.
func OpenDB(b config.Backend) (*sql.DB, error) {
	var (
		driver, dsn string
		err         error
	)
	switch b.Dialect {
	case config.Doris:
		driver = "mysql"
		dsn, err = DorisDSN(b)
	case config.Postgres:
		driver = "postgres"
		dsn, err = PostgresDSN(b)
	default:
		return nil, errors.Newf("unknown dialect %q", b.Dialect)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s backend", b.Dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	conns := b.MaxOpenConns
	if conns <= 0 {
		conns = defaultMaxOpenConns
	}
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	return db, nil
}

func openAndPing(ctx context.Context, b config.Backend) (*sql.DB, error) {
	db, err := OpenDB(b)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
