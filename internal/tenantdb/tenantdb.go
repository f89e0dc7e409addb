// Package tenantdb is the only path to tenant-scoped data. It binds one
// pooled connection to one school for the duration of a unit of work by
// issuing the row-level-security context statement before any query, and
// voids the binding when the connection goes back to the pool.
package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	setTenantSQL   = "select app.set_school($1::uuid)"
	clearTenantSQL = "select app.clear_school()"
)

var (
	// ErrInvalidTenantID is raised before any statement is sent.
	ErrInvalidTenantID = errors.New("tenantdb: invalid tenant id")
	// ErrTenantBindFailed means the context statement errored; the unit of
	// work is aborted rather than run unbound.
	ErrTenantBindFailed = errors.New("tenantdb: tenant bind failed")
	// ErrPoolExhausted means no connection became available within the
	// configured acquire timeout. Safe to retry.
	ErrPoolExhausted = errors.New("tenantdb: connection pool exhausted")
)

// Pool wraps the shared *sql.DB with a bounded acquire wait.
type Pool struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

// Open connects to PostgreSQL via the pgx stdlib driver and applies pool
// limits.
func Open(dsn string, maxConns int, acquireTimeout time.Duration) (*Pool, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewPool(db, acquireTimeout), nil
}

// NewPool wraps an existing handle; used by tests.
func NewPool(db *sql.DB, acquireTimeout time.Duration) *Pool {
	if acquireTimeout <= 0 {
		acquireTimeout = 2 * time.Second
	}
	return &Pool{db: db, acquireTimeout: acquireTimeout}
}

// DB exposes the underlying handle for non-tenant-scoped stores and health
// pings. Tenant tables must never be queried through it directly; RLS
// policies return nothing without a bound context.
func (p *Pool) DB() *sql.DB { return p.db }

// Close releases the pool.
func (p *Pool) Close() error { return p.db.Close() }

// Querier is the query capability handed to tenant-scoped work. It is only
// obtainable through WithTenant and only valid inside the closure.
type Querier struct {
	conn *sql.Conn
}

func (q Querier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.conn.QueryContext(ctx, query, args...)
}

func (q Querier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return q.conn.QueryRowContext(ctx, query, args...)
}

func (q Querier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.conn.ExecContext(ctx, query, args...)
}

// WithTenant checks out a dedicated connection, binds it to the given school
// and runs work with a Querier scoped to that binding. The binding never
// survives the call: the context is cleared and the connection released on
// every exit path, and the next checkout re-binds from scratch.
func (p *Pool) WithTenant(ctx context.Context, tenantID string, work func(Querier) error) error {
	if _, err := uuid.Parse(tenantID); err != nil {
		return ErrInvalidTenantID
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	conn, err := p.db.Conn(acquireCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrPoolExhausted
		}
		return err
	}
	defer conn.Close()

	// Bound parameter only; the tenant id is never interpolated.
	if _, err := conn.ExecContext(ctx, setTenantSQL, tenantID); err != nil {
		return fmt.Errorf("%w: %v", ErrTenantBindFailed, err)
	}

	workErr := work(Querier{conn: conn})

	// The binding must not outlive the unit of work. Every checkout re-binds
	// before use regardless.
	if _, err := conn.ExecContext(ctx, clearTenantSQL); err != nil && workErr == nil {
		workErr = fmt.Errorf("%w: clear: %v", ErrTenantBindFailed, err)
	}
	return workErr
}
