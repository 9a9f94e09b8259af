// Package dbexec executes reconciliation queries against the two backends.
package dbexec

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
)

// Executor runs one query on the backend speaking dialect.
type Executor interface {
	Execute(ctx context.Context, d config.Dialect, query string) ([]Row, error)
}

type conn struct {
	once sync.Once
	db   *sql.DB
	err  error
}

// Backends opens one pool per dialect on first use.
type Backends struct {
	backends map[config.Dialect]config.Backend
	metrics  *metrics.Collector

	mu    sync.Mutex
	conns map[config.Dialect]*conn
	open  func(ctx context.Context, b config.Backend) (*sql.DB, error)
}

// NewBackends wires the configured sides. A nil collector uses metrics.Default.
func NewBackends(cfg *config.Config, m *metrics.Collector) *Backends {
	if m == nil {
		m = metrics.Default
	}
	b := &Backends{
		backends: make(map[config.Dialect]config.Backend, 2),
		metrics:  m,
		conns:    make(map[config.Dialect]*conn, 2),
		open:     openAndPing,
	}
	for _, be := range []config.Backend{cfg.Left, cfg.Right} {
		b.backends[be.Dialect] = be
	}
	return b
}

// withDB registers an already opened pool, mainly for tests.
func (b *Backends) withDB(d config.Dialect, db *sql.DB) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &conn{db: db}
	c.once.Do(func() {})
	b.conns[d] = c
}

func (b *Backends) db(ctx context.Context, d config.Dialect) (*sql.DB, error) {
	b.mu.Lock()
	c, ok := b.conns[d]
	if !ok {
		if _, configured := b.backends[d]; !configured {
			b.mu.Unlock()
			return nil, errors.Newf("no backend configured for dialect %q", d)
		}
		c = &conn{}
		b.conns[d] = c
	}
	b.mu.Unlock()

	c.once.Do(func() {
		be := b.backends[d]
		c.db, c.err = b.open(ctx, be)
		if c.err != nil {
			c.err = errors.Mark(errors.Wrapf(c.err, "connect %s at %s:%d", d, be.Host, be.Port), ErrUnreachable)
		}
	})
	return c.db, c.err
}

// Execute implements Executor. Failures to open or dial a connection are
// marked ErrUnreachable; every other failure, timeouts included, is an
// access error.
func (b *Backends) Execute(ctx context.Context, d config.Dialect, query string) ([]Row, error) {
	db, err := b.db(ctx, d)
	if err != nil {
		b.metrics.RecordQuery(d, err, 0)
		return nil, err
	}
	start := time.Now()
	rows, err := queryRows(ctx, db, query)
	b.metrics.RecordQuery(d, err, time.Since(start))
	if err == nil {
		return rows, nil
	}
	logger.Logger.Debugw("query failed", "dialect", d, "error", err, "sql", query)
	if isDialFailure(err) && ctx.Err() == nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s query", d), ErrUnreachable)
	}
	return nil, errors.Access(err, "%s query", d)
}

// Version returns the server version of a backend. It doubles as a
// connection check.
func (b *Backends) Version(ctx context.Context, d config.Dialect) (string, error) {
	rows, err := b.Execute(ctx, d, "SELECT VERSION() AS version")
	if err != nil {
		return "", err
	}
	if len(rows) != 1 || rows[0]["version"] == nil {
		return "", errors.Newf("unexpected %s version result: %d rows", d, len(rows))
	}
	return *rows[0]["version"], nil
}

// Close releases every opened pool.
func (b *Backends) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for _, c := range b.conns {
		if c.db == nil {
			continue
		}
		if err := c.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.conns = make(map[config.Dialect]*conn, 2)
	return first
}
