// Package hiveql is the narrow SQL driver adapter every other
// component in this module sits on top of: connect by URI, execute a
// parameterised statement, fetch single-row or streaming results, run
// a scoped transaction with row-level locking, tear the engine down.
//
// Modeled on the connection-pool wrapper in
// internal/storage/ephemeral.Store (single-writer SQLite pool sizing,
// pragma-laden DSN) and internal/storage/dolt.DoltStore (retry-wrapped
// execution over a pooled *sql.DB for a back-end reached over the
// network).
package hiveql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"      // registers "mysql"
	_ "github.com/ncruces/go-sqlite3/driver" // registers "sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"  // ship the sqlite3.wasm binary
)

// Engine is a pooled connection handle to a single database,
// addressed by URI. Callers own the Engine they receive and must call
// Dispose to release pooled resources.
type Engine struct {
	db     *sql.DB
	uri    string
	closed atomic.Bool
}

// Open produces a connection-pooled handle to the database addressed
// by uri. Supported schemes are "sqlite" (file URIs of the form
// sqlite:///absolute/path, per spec.md §6) and "mysql" (a MySQL or
// MySQL-protocol-compatible server, e.g. Dolt in server mode). Any
// other scheme is passed straight to database/sql as a driver name,
// so the adapter is extensible to any back-end with a registered
// driver.
func Open(uri string) (*Engine, error) {
	driverName, dsn, err := translateURI(uri)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("hiveql: open %s: %w", uri, err)
	}
	if driverName == "sqlite3" {
		// SQLite has one writer; pooling more than one connection just
		// produces SQLITE_BUSY contention the busy_timeout pragma then
		// has to paper over.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("hiveql: ping %s: %w", uri, err)
	}
	return &Engine{db: db, uri: uri}, nil
}

// translateURI maps a database URI to a database/sql driver name and
// DSN. sqlite:// URIs get the busy/foreign-key pragmas every store in
// this module relies on; everything else is passed through.
func translateURI(uri string) (driverName, dsn string, err error) {
	switch {
	case strings.HasPrefix(uri, "sqlite://"):
		path := strings.TrimPrefix(uri, "sqlite://")
		return "sqlite3", sqliteDSN(path), nil
	case strings.HasPrefix(uri, "mysql://"):
		return "mysql", strings.TrimPrefix(uri, "mysql://"), nil
	default:
		if idx := strings.Index(uri, "://"); idx > 0 {
			return uri[:idx], uri[idx+3:], nil
		}
		return "", "", fmt.Errorf("hiveql: cannot determine driver for uri %q (no scheme)", uri)
	}
}

// sqliteDSN builds a SQLite connection string carrying the pragmas
// this module depends on for correctness under concurrency. Adapted
// from internal/storage.SQLiteConnString.
func sqliteDSN(path string) string {
	path = strings.TrimPrefix(path, "/")
	return fmt.Sprintf("file:/%s?_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)", path)
}

// URI returns the URI this engine was opened with.
func (e *Engine) URI() string {
	return e.uri
}

// Dispose releases all pooled resources. Idempotent.
func (e *Engine) Dispose() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.db.Close()
}

// Result reports the effect of an Execute call.
type Result struct {
	sqlResult sql.Result
}

// LastInsertID returns the id of the row inserted by an INSERT
// statement.
func (r Result) LastInsertID() (int64, error) {
	return r.sqlResult.LastInsertId()
}

// RowsAffected returns the number of rows an UPDATE, INSERT, or
// DELETE statement touched.
func (r Result) RowsAffected() (int64, error) {
	return r.sqlResult.RowsAffected()
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// Execute runs a parameterised statement outside of any explicit
// transaction.
func (e *Engine) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	res, err := e.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, fmt.Errorf("hiveql: execute: %w", err)
	}
	return Result{sqlResult: res}, nil
}

// QueryRow fetches a single row.
func (e *Engine) QueryRow(ctx context.Context, stmt string, args ...any) RowScanner {
	return e.db.QueryRowContext(ctx, stmt, args...)
}

// Query streams rows; the caller must Close the returned *sql.Rows.
func (e *Engine) Query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("hiveql: query: %w", err)
	}
	return rows, nil
}

// isRetryableError reports whether err is a transient condition worth
// retrying the enclosing transaction for: either a pooled connection
// that went stale between calls, or a SQLite writer that lost a race
// for the database's single reserved-lock slot. Adapted from
// internal/storage/dolt.isRetryableError (the pool-staleness needles)
// and internal/storage/sqlite's isBusyError (the SQLITE_BUSY/"database
// is locked" needles on which transactionSQLite retries a failed
// beginImmediateWithRetry).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, needle := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"database is locked",
		"sqlite_busy",
	} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func newTxRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * backoff.DefaultInitialInterval * 15 // 15s ceiling
	return backoff.WithMaxRetries(bo, 5)
}

// Transaction runs fn within a transaction: commit on nil return,
// rollback otherwise. Any step that fails with a retryable error —
// acquiring the connection, beginning the transaction, fn itself, or
// the commit — causes the whole attempt (connection, begin, fn,
// commit) to be retried with exponential backoff; fn must therefore be
// safe to call more than once; every fn passed to Transaction in this
// module only probes and conditionally inserts inside the same
// transaction it runs in, so a retried attempt sees a clean slate.
// Non-retryable errors from fn are surfaced to the caller unchanged.
func (e *Engine) Transaction(ctx context.Context, fn func(*Tx) error) error {
	if e.driverName() == "sqlite3" {
		return e.transactionSQLite(ctx, fn)
	}
	return e.transactionMySQL(ctx, fn)
}

// transactionSQLite runs fn inside a BEGIN IMMEDIATE transaction on a
// dedicated connection. Adapted from
// internal/storage/sqlite/queries.go's CreateIssue, which acquires a
// connection via db.Conn and issues raw "BEGIN IMMEDIATE" for the same
// reason documented there: ncruces/go-sqlite3's BeginTx always opens a
// DEFERRED transaction, and IMMEDIATE can only be requested with a
// literal statement run on the exact connection the rest of the
// transaction uses — database/sql's pool would otherwise hand
// subsequent statements to a different connection, defeating the
// lock. IMMEDIATE acquires the database's one RESERVED lock up front,
// so the probe-then-insert in directorystore.PrimaryGetOrInsert is
// genuinely serialized against every other AssignNode caller, not just
// serialized within whichever *sql.DB pool happened to handle it.
func (e *Engine) transactionSQLite(ctx context.Context, fn func(*Tx) error) error {
	operation := func() error {
		conn, err := e.db.Conn(ctx)
		if err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("hiveql: acquire connection: %w", err))
		}
		defer conn.Close()

		if err := beginImmediateWithRetry(ctx, conn); err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("hiveql: begin immediate: %w", err))
		}

		committed := false
		defer func() {
			if !committed {
				if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
					slog.Warn("hiveql: rollback failed", "error", rbErr)
				}
			}
		}()

		tx := &Tx{exec: conn, driver: "sqlite3"}
		if err := fn(tx); err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("hiveql: commit: %w", err))
		}
		committed = true
		return nil
	}
	if err := backoff.Retry(operation, newTxRetryBackoff()); err != nil {
		var perm *backoff.PermanentError
		if ok := asPermanent(err, &perm); ok {
			return perm.Err
		}
		return err
	}
	return nil
}

// beginImmediateWithRetry issues a single "BEGIN IMMEDIATE" on conn.
// Despite the name — kept to match
// internal/storage/sqlite/queries.go's beginImmediateWithRetry, which
// this is adapted from — the retrying happens one level up, in
// transactionSQLite's own backoff.Retry: a busy lock here is just one
// more retryable failure of the whole (acquire connection, begin,
// fn, commit) attempt, so a single outer retry loop covers it instead
// of nesting one retry loop inside another.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	return err
}

// transactionMySQL runs fn inside a regular database/sql transaction.
// MySQL/Dolt honors SELECT ... FOR UPDATE for row-level locking
// (Tx.SelectForUpdate), so no dedicated-connection trick is needed
// here the way it is for SQLite.
func (e *Engine) transactionMySQL(ctx context.Context, fn func(*Tx) error) error {
	operation := func() error {
		sqlTx, err := e.db.BeginTx(ctx, nil)
		if err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("hiveql: begin transaction: %w", err))
		}

		tx := &Tx{exec: sqlTx, driver: "mysql"}
		if err := fn(tx); err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				slog.Warn("hiveql: rollback failed", "error", rbErr)
			}
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := sqlTx.Commit(); err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("hiveql: commit: %w", err))
		}
		return nil
	}
	if err := backoff.Retry(operation, newTxRetryBackoff()); err != nil {
		var perm *backoff.PermanentError
		if ok := asPermanent(err, &perm); ok {
			return perm.Err
		}
		return err
	}
	return nil
}

func asPermanent(err error, target **backoff.PermanentError) bool {
	for err != nil {
		if pe, ok := err.(*backoff.PermanentError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (e *Engine) driverName() string {
	if strings.HasPrefix(e.uri, "sqlite://") {
		return "sqlite3"
	}
	return "mysql"
}

// CreateAllTables creates every table in schema if absent. Idempotent:
// a no-op on tables that already exist.
func (e *Engine) CreateAllTables(ctx context.Context, schema SchemaDDL) error {
	for _, stmt := range schema.Statements(e.driverName()) {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("hiveql: create tables: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// execer is satisfied by both *sql.Tx (the MySQL path) and *sql.Conn
// (the SQLite path, which needs a raw BEGIN IMMEDIATE on a dedicated
// connection rather than a database/sql-managed transaction — see
// Engine.transactionSQLite). Tx is written against this interface so
// SelectForUpdate, Execute, and QueryRow don't care which one is
// underneath.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a running transaction.
type Tx struct {
	exec   execer
	driver string
}

// Execute runs a parameterised statement within the transaction.
func (t *Tx) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	res, err := t.exec.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, fmt.Errorf("hiveql: tx execute: %w", err)
	}
	return Result{sqlResult: res}, nil
}

// QueryRow fetches a single row within the transaction.
func (t *Tx) QueryRow(ctx context.Context, stmt string, args ...any) RowScanner {
	return t.exec.QueryRowContext(ctx, stmt, args...)
}

// SelectForUpdate runs stmt with a row-level pessimistic lock applied.
// On back-ends that support SELECT ... FOR UPDATE (MySQL) the clause
// is appended. SQLite has no row-level locking; the clause is omitted
// there because the enclosing transaction already holds the
// database's one RESERVED lock for its entire duration — acquired up
// front by Engine.transactionSQLite's BEGIN IMMEDIATE on a dedicated
// connection, not by anything at the pool level — so the probe this
// method runs is already exclusive of every other writer (spec.md
// §4.6).
func (t *Tx) SelectForUpdate(ctx context.Context, stmt string, args ...any) RowScanner {
	if t.driver == "mysql" {
		stmt = stmt + " FOR UPDATE"
	}
	return t.exec.QueryRowContext(ctx, stmt, args...)
}
