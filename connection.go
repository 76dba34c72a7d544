package sqlitego

import (
	"fmt"
	"runtime"
	"strings"
)

// Connection owns one database handle. It must not be used from more than one
// goroutine at a time.
type Connection struct {
	handle DBHandle
	ref    string

	cleanup    runtime.Cleanup
	hasCleanup bool
}

type connCleanup struct {
	handle DBHandle
	ref    string
}

// Open opens the database at ref, a file path or a file: URI. Zero flags
// means OpenFlagsDefault. The library is loaded on first use.
func Open(ref string, flags OpenFlags) (*Connection, error) {
	if err := requireLibrary(); err != nil {
		return nil, err
	}
	if flags == 0 {
		flags = OpenFlagsDefault
	}
	db, code := sqlite3_open_v2(ref, flags)
	if code != SQLITE_OK {
		err := codeToError(code, db, fmt.Sprintf("open %q", ref), "")
		// a handle is returned on most failures and still has to be closed
		sqlite3_close_v2(db)
		return nil, err
	}
	return newConnection(db, ref), nil
}

// NewConnection adopts an open database handle. The Connection closes it on Close.
func NewConnection(h DBHandle) *Connection {
	return newConnection(h, "")
}

func newConnection(h DBHandle, ref string) *Connection {
	c := &Connection{handle: h, ref: ref}
	if h == nil {
		return c
	}
	c.cleanup = runtime.AddCleanup(c, func(cc connCleanup) {
		if code := sqlite3_close_v2(cc.handle); code.IsError() {
			logf(LogLevelError, "connection", "close of leaked connection %q failed: %s", cc.ref, code)
			return
		}
		logf(LogLevelWarn, "connection", "closed leaked connection %q", cc.ref)
	}, connCleanup{handle: h, ref: ref})
	c.hasCleanup = true
	return c
}

func (c *Connection) checkOpen() error {
	if c.handle == nil {
		return fmt.Errorf("%w: connection", ErrClosed)
	}
	return nil
}

// Handle returns the underlying handle, or nil once closed.
func (c *Connection) Handle() DBHandle {
	return c.handle
}

// Close closes the connection. It is safe to call more than once. Statements
// still open keep the database alive until they are closed.
func (c *Connection) Close() error {
	if c.handle == nil {
		return nil
	}
	h := c.Release()
	return codeToError(sqlite3_close_v2(h), nil, "close", "")
}

// Release detaches and returns the handle without closing it.
func (c *Connection) Release() DBHandle {
	h := c.handle
	if c.hasCleanup {
		c.cleanup.Stop()
		c.hasCleanup = false
	}
	c.handle = nil
	return h
}

// Prepare compiles the first statement in sql. Text after it is ignored.
func (c *Connection) Prepare(sql string, flags PrepareFlags) (*Statement, error) {
	stmt, _, err := c.prepareNext(sql, flags)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, &Error{Code: SQLITE_MISUSE, Op: "prepare", Msg: "no statement in sql", SQL: sql}
	}
	return stmt, nil
}

// prepareNext compiles the first statement in sql and returns how many bytes
// it consumed. The statement is nil if sql holds only whitespace or comments.
func (c *Connection) prepareNext(sql string, flags PrepareFlags) (*Statement, int, error) {
	if err := c.checkOpen(); err != nil {
		return nil, 0, err
	}
	h, consumed, code := sqlite3_prepare_v3(c.handle, sql, flags)
	if err := codeToError(code, c.handle, "prepare", sql); err != nil {
		sqlite3_finalize(h)
		return nil, 0, err
	}
	if h == nil {
		return nil, consumed, nil
	}
	return NewStatement(h), consumed, nil
}

// Exec prepares sql, runs it to completion with args and finalizes it.
func (c *Connection) Exec(sql string, args ...Arg) error {
	_, err := c.Execute(nil, sql, args...)
	return err
}

// Execute prepares sql, runs it once with args passing rows to cb, and
// finalizes it. Use Prepare to run a statement repeatedly.
func (c *Connection) Execute(cb Callback, sql string, args ...Arg) (ResultCode, error) {
	stmt, err := c.Prepare(sql, 0)
	if err != nil {
		return SQLITE_OK, err
	}
	defer c.closeQuietly(stmt)
	return stmt.Execute(cb, args...)
}

// ExecScript runs every statement in sql in order, stopping at the first failure.
func (c *Connection) ExecScript(sql string) error {
	rest := sql
	for strings.TrimSpace(rest) != "" {
		stmt, consumed, err := c.prepareNext(rest, 0)
		if err != nil {
			return err
		}
		rest = rest[consumed:]
		if stmt == nil {
			if consumed == 0 {
				break
			}
			continue
		}
		_, err = stmt.Execute(nil)
		c.closeQuietly(stmt)
		if err != nil {
			return err
		}
	}
	return nil
}

// closeQuietly finalizes a statement whose outcome was already reported.
func (c *Connection) closeQuietly(stmt *Statement) {
	state := stmt.State()
	if err := stmt.Close(); err != nil && state != StateError {
		logf(LogLevelWarn, "connection", "%v", err)
	}
}

// IsTransactionActive reports whether an explicit transaction is open.
func (c *Connection) IsTransactionActive() (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return !sqlite3_get_autocommit(c.handle), nil
}

// WithRollbackOnError runs fn. If fn returns an error or panics while a
// transaction is open, the transaction is rolled back. The error from fn is
// returned unchanged, or as a *RollbackError when the rollback fails too.
// A panic is re-raised after the rollback.
func (c *Connection) WithRollbackOnError(fn func() error) (err error) {
	if err := c.checkOpen(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if rerr := c.rollbackIfActive(); rerr != nil {
				logf(LogLevelError, "connection", "rollback after panic failed: %v", rerr)
			}
			panic(r)
		}
	}()
	if err = fn(); err != nil {
		if rerr := c.rollbackIfActive(); rerr != nil {
			return &RollbackError{Err: err, RollbackErr: rerr}
		}
		return err
	}
	return nil
}

// WithRollback is WithRollbackOnError for a unit of work that produces a value.
func WithRollback[T any](c *Connection, fn func() (T, error)) (T, error) {
	var out T
	err := c.WithRollbackOnError(func() error {
		var err error
		out, err = fn()
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// execRollback issues the ROLLBACK for rollbackIfActive. Tests replace it to
// make the rollback fail.
var execRollback = func(c *Connection) error {
	return c.Exec("ROLLBACK")
}

func (c *Connection) rollbackIfActive() error {
	active, err := c.IsTransactionActive()
	if err != nil || !active {
		// a closed connection has nothing left to roll back
		return nil
	}
	return execRollback(c)
}

// LastInsertRowID returns the rowid of the most recent successful INSERT.
// It returns 0 on a closed connection.
func (c *Connection) LastInsertRowID() int64 {
	if c.handle == nil {
		return 0
	}
	return sqlite3_last_insert_rowid(c.handle)
}

// Changes returns the rows modified by the most recent INSERT, UPDATE or DELETE.
// It returns 0 on a closed connection.
func (c *Connection) Changes() int64 {
	if c.handle == nil {
		return 0
	}
	return sqlite3_changes(c.handle)
}

// TotalChanges returns the rows modified since the connection was opened, or 0
// once it is closed.
func (c *Connection) TotalChanges() int64 {
	if c.handle == nil {
		return 0
	}
	return sqlite3_total_changes(c.handle)
}

// SetBusyTimeout makes the connection retry for up to ms milliseconds when the
// database is locked. Zero or less disables retrying.
func (c *Connection) SetBusyTimeout(ms int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return codeToError(sqlite3_busy_timeout(c.handle, max(ms, 0)), c.handle, "busy timeout", "")
}

// ErrMsg returns the engine's message for the most recent failure. It returns
// "" on a closed connection.
func (c *Connection) ErrMsg() string {
	if c.handle == nil {
		return ""
	}
	return sqlite3_errmsg(c.handle)
}
