package sqlitego

import (
	"fmt"
	"runtime"
)

// State is the execution state of a Statement.
type State uint8

const (
	// StateUnbound: freshly prepared, reset, or cleared; accepts bindings.
	StateUnbound State = iota
	// StateBound: at least one parameter bound since the last reset.
	StateBound
	// StateStepping: positioned on a result row.
	StateStepping
	// StateDone: the cursor is exhausted.
	StateDone
	// StateError: the last step failed.
	StateError
	// StateClosed: the handle has been finalized or released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateStepping:
		return "stepping"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Arg is a value paired with the converter that binds it.
type Arg struct {
	bind func(h StmtHandle, position int) error
	// set only when the engine references the value's memory after the bind
	keep any
}

// Value binds v through c.
func Value[T any](c Converter[T], v T) Arg {
	a := Arg{bind: func(h StmtHandle, position int) error { return c.Bind(h, position, v) }}
	if retainsValue(c, v) {
		a.keep = v
	}
	return a
}

// Null binds SQL NULL.
func Null() Arg {
	return Arg{}
}

func (a Arg) apply(h StmtHandle, position int) error {
	if a.bind == nil {
		return bindError(h, sqlite3_bind_null(h, position), position)
	}
	return a.bind(h, position)
}

// Callback receives rows from Statement.Execute. It is one of RowFunc,
// RowHandler, RowErrFunc or RowErrHandler.
type Callback interface {
	isCallback()
}

// RowFunc is called for every row; returning false stops stepping and leaves
// the statement positioned on that row.
type RowFunc func(row *Row) bool

// RowHandler is called for every row and never stops stepping.
type RowHandler func(row *Row)

// RowErrFunc is like RowFunc but also receives step failures inline. On rows
// code is SQLITE_ROW; on failure the row cannot be read and the return value
// is ignored.
type RowErrFunc func(row *Row, code ResultCode) bool

// RowErrHandler is like RowHandler but also receives step failures inline.
type RowErrHandler func(row *Row, code ResultCode)

func (RowFunc) isCallback()       {}
func (RowHandler) isCallback()    {}
func (RowErrFunc) isCallback()    {}
func (RowErrHandler) isCallback() {}

// Statement owns one prepared statement handle.
//
// Parameter and column indexes are zero-based. A Statement must not be used
// from more than one goroutine at a time.
type Statement struct {
	handle StmtHandle
	db     DBHandle
	sql    string

	state State
	last  ResultCode

	paramCount  int
	columnCount int

	// values bound without copying stay reachable until rebound or closed
	retained map[int]any

	cleanup    runtime.Cleanup
	hasCleanup bool
}

type stmtCleanup struct {
	handle StmtHandle
	sql    string
}

// NewStatement adopts a prepared statement handle. The Statement finalizes it on Close.
func NewStatement(h StmtHandle) *Statement {
	if h == nil {
		return &Statement{state: StateClosed, paramCount: -1, columnCount: -1}
	}
	s := &Statement{
		handle:      h,
		db:          sqlite3_db_handle(h),
		sql:         sqlite3_sql(h),
		paramCount:  -1,
		columnCount: -1,
	}
	s.cleanup = runtime.AddCleanup(s, func(c stmtCleanup) {
		if code := sqlite3_finalize(c.handle); code.IsError() {
			logf(LogLevelError, "statement", "finalize of leaked statement %q failed: %s", c.sql, code)
			return
		}
		logf(LogLevelWarn, "statement", "finalized leaked statement %q", c.sql)
	}, stmtCleanup{handle: h, sql: s.sql})
	s.hasCleanup = true
	return s
}

func (s *Statement) checkOpen() error {
	if s.handle == nil {
		return fmt.Errorf("%w: statement", ErrClosed)
	}
	return nil
}

func (s *Statement) checkBindable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.state != StateUnbound && s.state != StateBound {
		return fmt.Errorf("%w: cannot bind in state %s, reset first", ErrInvalidState, s.state)
	}
	return nil
}

func (s *Statement) checkParameter(index int) error {
	if n := s.ParameterCount(); index < 0 || index >= n {
		return fmt.Errorf("%w: parameter %d of %d", ErrIndexOutOfRange, index, n)
	}
	return nil
}

func (s *Statement) checkColumn(index int) error {
	if n := s.ColumnCount(); index < 0 || index >= n {
		return fmt.Errorf("%w: column %d of %d", ErrIndexOutOfRange, index, n)
	}
	return nil
}

func (s *Statement) checkRow() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.state != StateStepping {
		return fmt.Errorf("%w: statement is %s", ErrNoRow, s.state)
	}
	return nil
}

// SQL returns the text the statement was prepared from.
func (s *Statement) SQL() string {
	return s.sql
}

func (s *Statement) State() State {
	return s.state
}

// LastResult returns the code of the most recent step, or SQLITE_OK if the
// statement has not been stepped since it was prepared or reset.
func (s *Statement) LastResult() ResultCode {
	return s.last
}

// Handle returns the underlying handle, or nil once closed.
func (s *Statement) Handle() StmtHandle {
	return s.handle
}

// Bind binds a at the zero-based parameter index.
func (s *Statement) Bind(index int, a Arg) error {
	if err := s.checkBindable(); err != nil {
		return err
	}
	if err := s.checkParameter(index); err != nil {
		return err
	}
	if err := a.apply(s.handle, index+1); err != nil {
		return err
	}
	switch {
	case a.keep == nil:
		delete(s.retained, index)
	case s.retained == nil:
		s.retained = map[int]any{index: a.keep}
	default:
		s.retained[index] = a.keep
	}
	s.state = StateBound
	return nil
}

// BindName binds a at the parameter called name, prefix included, e.g. ":id".
func (s *Statement) BindName(name string, a Arg) error {
	if err := s.checkBindable(); err != nil {
		return err
	}
	index, err := s.RequireParameterIndex(name)
	if err != nil {
		return err
	}
	return s.Bind(index, a)
}

func (s *Statement) BindNull(index int) error {
	return s.Bind(index, Null())
}

func (s *Statement) BindNullName(name string) error {
	return s.BindName(name, Null())
}

// BindAll binds args to parameters 0..len(args)-1.
func (s *Statement) BindAll(args ...Arg) error {
	if err := s.checkBindable(); err != nil {
		return err
	}
	if n := s.ParameterCount(); len(args) > n {
		return fmt.Errorf("%w: %d values for %d parameters", ErrIndexOutOfRange, len(args), n)
	}
	for i, a := range args {
		if err := s.Bind(i, a); err != nil {
			return err
		}
	}
	return nil
}

// ClearBindings sets every parameter to NULL.
func (s *Statement) ClearBindings() error {
	if err := s.checkBindable(); err != nil {
		return err
	}
	if err := codeToError(sqlite3_clear_bindings(s.handle), s.db, "clear bindings", s.sql); err != nil {
		return err
	}
	clear(s.retained)
	s.state = StateUnbound
	return nil
}

// Execute steps the statement and passes every row to cb, which may be nil.
//
// A statement that is done or failed is reset first, so calling Execute again
// with new args reruns it. args are bound positionally before stepping; a
// statement positioned on a row resumes stepping and accepts no args.
//
// Step failures are returned as *Error unless cb is a RowErrFunc or
// RowErrHandler, in which case cb receives the code and the error is nil.
// The returned code is the result of the last step.
func (s *Statement) Execute(cb Callback, args ...Arg) (ResultCode, error) {
	if err := s.checkOpen(); err != nil {
		return s.last, err
	}
	switch s.state {
	case StateDone, StateError:
		if err := s.Reset(); err != nil {
			return s.last, err
		}
	case StateStepping:
		if len(args) > 0 {
			return s.last, fmt.Errorf("%w: cannot bind while positioned on a row, reset first", ErrInvalidState)
		}
	}
	if len(args) > 0 {
		if err := s.BindAll(args...); err != nil {
			return s.last, err
		}
	}
	row := &Row{stmt: s}
	for {
		code := sqlite3_step(s.handle)
		s.last = code
		switch code {
		case SQLITE_ROW:
			s.state = StateStepping
			if !dispatchRow(cb, row) {
				return code, nil
			}
		case SQLITE_DONE:
			s.state = StateDone
			return code, nil
		default:
			s.state = StateError
			if dispatchError(cb, row, code) {
				return code, nil
			}
			return code, codeToError(code, s.db, "step", s.sql)
		}
	}
}

func dispatchRow(cb Callback, row *Row) bool {
	switch f := cb.(type) {
	case RowFunc:
		if f != nil {
			return f(row)
		}
	case RowHandler:
		if f != nil {
			f(row)
		}
	case RowErrFunc:
		if f != nil {
			return f(row, SQLITE_ROW)
		}
	case RowErrHandler:
		if f != nil {
			f(row, SQLITE_ROW)
		}
	}
	return true
}

func dispatchError(cb Callback, row *Row, code ResultCode) bool {
	switch f := cb.(type) {
	case RowErrFunc:
		if f != nil {
			f(row, code)
			return true
		}
	case RowErrHandler:
		if f != nil {
			f(row, code)
			return true
		}
	}
	return false
}

// Reset rewinds the statement. Bindings are kept.
func (s *Statement) Reset() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	prev := s.state
	code := sqlite3_reset(s.handle)
	s.last = SQLITE_OK
	s.state = StateUnbound
	// reset repeats the code of a failed step, which was already reported
	if prev == StateError {
		return nil
	}
	return codeToError(code, s.db, "reset", s.sql)
}

// Close finalizes the statement. It is safe to call more than once. The
// handle is released even when an error is returned; the error is the
// engine's report about the last execution and needs no further cleanup.
func (s *Statement) Close() error {
	if s.handle == nil {
		return nil
	}
	h := s.detach()
	return codeToError(sqlite3_finalize(h), s.db, "finalize", s.sql)
}

// Release detaches and returns the handle without finalizing it.
func (s *Statement) Release() StmtHandle {
	if s.handle == nil {
		return nil
	}
	return s.detach()
}

func (s *Statement) detach() StmtHandle {
	h := s.handle
	if s.hasCleanup {
		s.cleanup.Stop()
		s.hasCleanup = false
	}
	s.handle = nil
	s.state = StateClosed
	s.retained = nil
	return h
}

// ParameterCount returns the number of parameters, or 0 once closed.
func (s *Statement) ParameterCount() int {
	if s.handle == nil {
		return 0
	}
	if s.paramCount < 0 {
		s.paramCount = sqlite3_bind_parameter_count(s.handle)
	}
	return s.paramCount
}

// ParameterName returns the name of the parameter at index, prefix included.
// Positional parameters have an empty name.
func (s *Statement) ParameterName(index int) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if err := s.checkParameter(index); err != nil {
		return "", err
	}
	return sqlite3_bind_parameter_name(s.handle, index+1), nil
}

// ParameterIndex returns the index of the named parameter, or -1.
func (s *Statement) ParameterIndex(name string) int {
	if s.handle == nil || name == "" {
		return -1
	}
	return sqlite3_bind_parameter_index(s.handle, name) - 1
}

// RequireParameterIndex is ParameterIndex for parameters that must exist.
func (s *Statement) RequireParameterIndex(name string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return -1, err
	}
	index := s.ParameterIndex(name)
	if index < 0 {
		return -1, fmt.Errorf("%w: parameter %q", ErrUnknownName, name)
	}
	return index, nil
}

// ColumnCount returns the number of result columns, or 0 once closed.
func (s *Statement) ColumnCount() int {
	if s.handle == nil {
		return 0
	}
	if s.columnCount < 0 {
		s.columnCount = sqlite3_column_count(s.handle)
	}
	return s.columnCount
}

func (s *Statement) ColumnName(index int) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if err := s.checkColumn(index); err != nil {
		return "", err
	}
	return sqlite3_column_name(s.handle, index), nil
}

// ColumnIndex returns the index of the first column named exactly name, or -1.
func (s *Statement) ColumnIndex(name string) int {
	for i := 0; i < s.ColumnCount(); i++ {
		if sqlite3_column_name(s.handle, i) == name {
			return i
		}
	}
	return -1
}

// RequireColumnIndex is ColumnIndex for columns that must exist.
func (s *Statement) RequireColumnIndex(name string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return -1, err
	}
	index := s.ColumnIndex(name)
	if index < 0 {
		return -1, fmt.Errorf("%w: column %q", ErrUnknownName, name)
	}
	return index, nil
}

// ColumnDeclType returns the declared type of a table column, or "" for expressions.
func (s *Statement) ColumnDeclType(index int) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if err := s.checkColumn(index); err != nil {
		return "", err
	}
	return sqlite3_column_decltype(s.handle, index), nil
}

// ColumnType returns the storage class of a column in the current row.
func (s *Statement) ColumnType(index int) (ColumnType, error) {
	if err := s.checkRow(); err != nil {
		return 0, err
	}
	if err := s.checkColumn(index); err != nil {
		return 0, err
	}
	return sqlite3_column_type(s.handle, index), nil
}

// IsNull reports whether a column in the current row is NULL.
func (s *Statement) IsNull(index int) (bool, error) {
	t, err := s.ColumnType(index)
	return t == SQLITE_NULL, err
}

func (s *Statement) statement() *Statement {
	return s
}

// Row is the current result row handed to an Execute callback. It is only
// valid inside the callback.
type Row struct {
	stmt *Statement
}

func (r *Row) statement() *Statement {
	return r.stmt
}

func (r *Row) ColumnCount() int {
	return r.stmt.ColumnCount()
}

func (r *Row) ColumnName(index int) (string, error) {
	return r.stmt.ColumnName(index)
}

func (r *Row) ColumnIndex(name string) int {
	return r.stmt.ColumnIndex(name)
}

func (r *Row) ColumnType(index int) (ColumnType, error) {
	return r.stmt.ColumnType(index)
}

func (r *Row) IsNull(index int) (bool, error) {
	return r.stmt.IsNull(index)
}

// Reader is a source of column values: a *Statement positioned on a row, or a *Row.
type Reader interface {
	statement() *Statement
}

// Result reads the column at index of the current row through c.
func Result[T any](r Reader, index int, c Converter[T]) (T, error) {
	var zero T
	s := r.statement()
	if err := s.checkRow(); err != nil {
		return zero, err
	}
	if err := s.checkColumn(index); err != nil {
		return zero, err
	}
	return c.Read(s.handle, index), nil
}

// ResultByName reads the column called name of the current row through c.
func ResultByName[T any](r Reader, name string, c Converter[T]) (T, error) {
	var zero T
	index, err := r.statement().RequireColumnIndex(name)
	if err != nil {
		return zero, err
	}
	return Result(r, index, c)
}
