package sqlitego

import (
	"errors"
	"fmt"
	"strings"
)

// Engine error classes. *Error unwraps to the one matching its primary code.
var (
	ErrError      = errors.New("sqlitego: generic error")
	ErrInternal   = errors.New("sqlitego: internal error")
	ErrPerm       = errors.New("sqlitego: access permission denied")
	ErrAbort      = errors.New("sqlitego: operation aborted")
	ErrBusy       = errors.New("sqlitego: database is busy")
	ErrLocked     = errors.New("sqlitego: database table is locked")
	ErrNoMem      = errors.New("sqlitego: out of memory")
	ErrReadonly   = errors.New("sqlitego: database is read-only")
	ErrInterrupt  = errors.New("sqlitego: operation interrupted")
	ErrIO         = errors.New("sqlitego: disk I/O error")
	ErrCorrupt    = errors.New("sqlitego: database is corrupt")
	ErrFull       = errors.New("sqlitego: database or disk is full")
	ErrCantOpen   = errors.New("sqlitego: unable to open database file")
	ErrSchema     = errors.New("sqlitego: database schema has changed")
	ErrTooBig     = errors.New("sqlitego: string or blob too big")
	ErrConstraint = errors.New("sqlitego: constraint failed")
	ErrMismatch   = errors.New("sqlitego: datatype mismatch")
	ErrMisuse     = errors.New("sqlitego: API misuse")
	ErrRange      = errors.New("sqlitego: bind or column index out of range")
	ErrNotADB     = errors.New("sqlitego: not a database")
)

// Precondition failures, detected before the engine is called.
var (
	ErrClosed           = errors.New("sqlitego: handle is closed")
	ErrIndexOutOfRange  = errors.New("sqlitego: index out of range")
	ErrUnknownName      = errors.New("sqlitego: unknown name")
	ErrInvalidState     = errors.New("sqlitego: invalid statement state")
	ErrEncodingMismatch = errors.New("sqlitego: encoding mismatch")
	ErrNoRow            = errors.New("sqlitego: no current row")
)

var codeErrors = map[ResultCode]error{
	SQLITE_ERROR:      ErrError,
	SQLITE_INTERNAL:   ErrInternal,
	SQLITE_PERM:       ErrPerm,
	SQLITE_ABORT:      ErrAbort,
	SQLITE_BUSY:       ErrBusy,
	SQLITE_LOCKED:     ErrLocked,
	SQLITE_NOMEM:      ErrNoMem,
	SQLITE_READONLY:   ErrReadonly,
	SQLITE_INTERRUPT:  ErrInterrupt,
	SQLITE_IOERR:      ErrIO,
	SQLITE_CORRUPT:    ErrCorrupt,
	SQLITE_FULL:       ErrFull,
	SQLITE_CANTOPEN:   ErrCantOpen,
	SQLITE_SCHEMA:     ErrSchema,
	SQLITE_TOOBIG:     ErrTooBig,
	SQLITE_CONSTRAINT: ErrConstraint,
	SQLITE_MISMATCH:   ErrMismatch,
	SQLITE_MISUSE:     ErrMisuse,
	SQLITE_RANGE:      ErrRange,
	SQLITE_NOTADB:     ErrNotADB,
}

// Error is a failure reported by the engine.
type Error struct {
	// Code is the extended result code.
	Code ResultCode
	// Op describes the attempted operation, e.g. "step" or "bind parameter 2".
	Op string
	// Msg is the engine's message at the time of failure.
	Msg string
	// SQL is the statement text, if any.
	SQL string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("sqlitego: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(sqlite3_errstr_safe(e.Code))
	}
	fmt.Fprintf(&b, " (%s)", e.Code)
	if e.SQL != "" {
		fmt.Fprintf(&b, " in %q", e.SQL)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if err, ok := codeErrors[e.Code.Primary()]; ok {
		return err
	}
	return nil
}

// RollbackError is returned when a unit of work failed and the rollback that
// followed failed too. Both errors stay reachable through errors.Is and errors.As.
type RollbackError struct {
	Err         error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback failed: %v)", e.Err, e.RollbackErr)
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.Err, e.RollbackErr}
}

// codeToError converts a result code into an error using the message currently
// held by db. OK, ROW and DONE are not errors.
func codeToError(code ResultCode, db DBHandle, op string, sql string) error {
	if !code.IsError() {
		return nil
	}
	var msg string
	if db != nil {
		msg = sqlite3_errmsg(db)
		if ext := sqlite3_extended_errcode(db); ext.Primary() == code.Primary() {
			code = ext
		}
	}
	return &Error{Code: code, Op: op, Msg: msg, SQL: sql}
}

// sqlite3_errstr_safe is errstr when the library is loaded, and the code name otherwise.
func sqlite3_errstr_safe(code ResultCode) string {
	if c_sqlite3_errstr == nil {
		return code.String()
	}
	return sqlite3_errstr(code)
}
