package sqlitego

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreparedStatementReuse(t *testing.T) {
	conn := openTestConnection(t)
	require.Nil(t, conn.Exec("CREATE TABLE tab (id integer, val text)"))

	insert, err := conn.Prepare("INSERT INTO tab (id, val) VALUES (?, ?)", 0)
	require.Nil(t, err)
	defer insert.Close()
	require.Equal(t, StateUnbound, insert.State())

	for i, val := range []string{"a", "b", "c"} {
		code, err := insert.Execute(nil, Value(Int, i), Value(Text, val))
		require.Nil(t, err)
		require.Equal(t, SQLITE_DONE, code)
		require.Equal(t, StateDone, insert.State())
	}

	var vals []string
	_, err = conn.Execute(RowHandler(func(r *Row) {
		v, err := Result(r, 0, Text)
		require.Nil(t, err)
		vals = append(vals, v)
	}), "select val from tab where id = ?", Value(Int, 1))
	require.Nil(t, err)
	require.Equal(t, []string{"b"}, vals)
}

func TestStatementStates(t *testing.T) {
	conn := openTestConnection(t)
	require.Nil(t, conn.ExecScript("CREATE TABLE t (x); INSERT INTO t VALUES (1), (2), (3);"))

	stmt, err := conn.Prepare("SELECT x FROM t WHERE x >= ? ORDER BY x", 0)
	require.Nil(t, err)
	defer stmt.Close()

	require.Equal(t, StateUnbound, stmt.State())
	require.Equal(t, SQLITE_OK, stmt.LastResult())
	require.Nil(t, stmt.Bind(0, Value(Int64, 2)))
	require.Equal(t, StateBound, stmt.State())

	// stop on the first row
	code, err := stmt.Execute(RowFunc(func(*Row) bool { return false }))
	require.Nil(t, err)
	require.Equal(t, SQLITE_ROW, code)
	require.Equal(t, StateStepping, stmt.State())
	x, err := Result(stmt, 0, Int64)
	require.Nil(t, err)
	require.Equal(t, int64(2), x)

	// binding while positioned on a row is rejected
	require.True(t, errors.Is(stmt.Bind(0, Value(Int64, 1)), ErrInvalidState))
	_, err = stmt.Execute(nil, Value(Int64, 1))
	require.True(t, errors.Is(err, ErrInvalidState))

	// resume where we stopped
	var rest []int64
	code, err = stmt.Execute(RowHandler(func(r *Row) {
		v, _ := Result(r, 0, Int64)
		rest = append(rest, v)
	}))
	require.Nil(t, err)
	require.Equal(t, SQLITE_DONE, code)
	require.Equal(t, []int64{3}, rest)
	require.Equal(t, StateDone, stmt.State())

	_, err = Result(stmt, 0, Int64)
	require.True(t, errors.Is(err, ErrNoRow))
	require.True(t, errors.Is(stmt.Bind(0, Value(Int64, 1)), ErrInvalidState))

	// reset keeps the bindings
	require.Nil(t, stmt.Reset())
	require.Equal(t, StateUnbound, stmt.State())
	require.Equal(t, SQLITE_OK, stmt.LastResult())
	var again []int64
	_, err = stmt.Execute(RowHandler(func(r *Row) {
		v, _ := Result(r, 0, Int64)
		again = append(again, v)
	}))
	require.Nil(t, err)
	require.Equal(t, []int64{2, 3}, again)

	// done auto-resets, and new args are bound
	var all []int64
	_, err = stmt.Execute(RowHandler(func(r *Row) {
		v, _ := Result(r, 0, Int64)
		all = append(all, v)
	}), Value(Int64, 1))
	require.Nil(t, err)
	require.Equal(t, []int64{1, 2, 3}, all)

	require.Nil(t, stmt.Close())
	require.Equal(t, StateClosed, stmt.State())
	require.Nil(t, stmt.Close())
	_, err = stmt.Execute(nil)
	require.True(t, errors.Is(err, ErrClosed))
	require.True(t, errors.Is(stmt.Reset(), ErrClosed))
	require.True(t, errors.Is(stmt.Bind(0, Null()), ErrClosed))
}

func TestClearBindings(t *testing.T) {
	conn := openTestConnection(t)
	stmt, err := conn.Prepare("SELECT ?", 0)
	require.Nil(t, err)
	defer stmt.Close()

	require.Nil(t, stmt.Bind(0, Value(Text, "x")))
	require.Nil(t, stmt.ClearBindings())
	require.Equal(t, StateUnbound, stmt.State())
	var isNull bool
	_, err = stmt.Execute(RowHandler(func(r *Row) {
		isNull, _ = r.IsNull(0)
	}))
	require.Nil(t, err)
	require.True(t, isNull)
}

func TestOnlyStaticBindsAreRetained(t *testing.T) {
	conn := openTestConnection(t)
	stmt, err := conn.Prepare("SELECT ?, ?, ?", 0)
	require.Nil(t, err)
	defer stmt.Close()

	view := []byte("view")
	static := StaticData([]byte("static"), EncodingOpaque)
	require.Nil(t, stmt.Bind(0, Value(View, view)))
	require.Nil(t, stmt.Bind(1, Value(Blob, static)))
	require.Nil(t, stmt.Bind(2, Value(Text, "copied")))
	require.Len(t, stmt.retained, 2)
	require.Contains(t, stmt.retained, 0)
	require.Contains(t, stmt.retained, 1)

	// rebinding a static slot with a copied value drops the reference
	require.Nil(t, stmt.Bind(0, Value(Bytes, view)))
	require.NotContains(t, stmt.retained, 0)
	require.Nil(t, stmt.Bind(1, Value(Blob, TransientData([]byte("t"), EncodingOpaque))))
	require.NotContains(t, stmt.retained, 1)

	d, err := CopyData([]byte("owned"), EncodingOpaque)
	require.Nil(t, err)
	require.Nil(t, stmt.Bind(2, Value(Blob, d)))
	require.Empty(t, stmt.retained)

	require.Nil(t, stmt.Bind(2, Value(Nullable(View), sql.Null[[]byte]{V: view, Valid: true})))
	require.Contains(t, stmt.retained, 2)
	require.Nil(t, stmt.Bind(2, Null()))
	require.Empty(t, stmt.retained)
}

func TestIndexAndNameLookups(t *testing.T) {
	conn := openTestConnection(t)
	stmt, err := conn.Prepare("SELECT :a AS first, @b AS Second, ? AS third", 0)
	require.Nil(t, err)
	defer stmt.Close()

	require.Equal(t, 3, stmt.ParameterCount())
	require.Equal(t, 0, stmt.ParameterIndex(":a"))
	require.Equal(t, 1, stmt.ParameterIndex("@b"))
	require.Equal(t, -1, stmt.ParameterIndex("a"))
	require.Equal(t, -1, stmt.ParameterIndex(":missing"))
	name, err := stmt.ParameterName(1)
	require.Nil(t, err)
	require.Equal(t, "@b", name)

	_, err = stmt.RequireParameterIndex(":missing")
	require.True(t, errors.Is(err, ErrUnknownName))
	require.True(t, errors.Is(stmt.BindName(":missing", Value(Int, 1)), ErrUnknownName))
	require.True(t, errors.Is(stmt.Bind(3, Value(Int, 1)), ErrIndexOutOfRange))
	require.True(t, errors.Is(stmt.Bind(-1, Value(Int, 1)), ErrIndexOutOfRange))
	_, err = stmt.ParameterName(3)
	require.True(t, errors.Is(err, ErrIndexOutOfRange))
	require.True(t, errors.Is(stmt.BindAll(Null(), Null(), Null(), Null()), ErrIndexOutOfRange))

	require.Nil(t, stmt.BindName(":a", Value(Int, 1)))
	require.Nil(t, stmt.BindName("@b", Value(Text, "two")))
	require.Nil(t, stmt.BindNull(2))

	require.Equal(t, 3, stmt.ColumnCount())
	col, err := stmt.ColumnName(1)
	require.Nil(t, err)
	require.Equal(t, "Second", col)
	require.Equal(t, 1, stmt.ColumnIndex("Second"))
	// name lookup is case-sensitive
	require.Equal(t, -1, stmt.ColumnIndex("second"))
	_, err = stmt.RequireColumnIndex("second")
	require.True(t, errors.Is(err, ErrUnknownName))
	_, err = stmt.ColumnName(3)
	require.True(t, errors.Is(err, ErrIndexOutOfRange))

	_, err = stmt.Execute(RowHandler(func(r *Row) {
		first, err := ResultByName(r, "first", Int)
		require.Nil(t, err)
		require.Equal(t, 1, first)
		second, err := ResultByName(r, "Second", Text)
		require.Nil(t, err)
		require.Equal(t, "two", second)
		isNull, err := r.IsNull(2)
		require.Nil(t, err)
		require.True(t, isNull)
		kind, err := r.ColumnType(1)
		require.Nil(t, err)
		require.Equal(t, SQLITE_TEXT, kind)

		_, err = Result(r, 3, Int)
		require.True(t, errors.Is(err, ErrIndexOutOfRange))
		_, err = ResultByName(r, "fourth", Int)
		require.True(t, errors.Is(err, ErrUnknownName))
	}))
	require.Nil(t, err)
}

func TestColumnDeclType(t *testing.T) {
	conn := openTestConnection(t)
	require.Nil(t, conn.Exec("CREATE TABLE t (ts DATETIME, n INTEGER)"))
	stmt, err := conn.Prepare("SELECT ts, n, 1 FROM t", 0)
	require.Nil(t, err)
	defer stmt.Close()
	decl, err := stmt.ColumnDeclType(0)
	require.Nil(t, err)
	require.Equal(t, "DATETIME", decl)
	decl, err = stmt.ColumnDeclType(2)
	require.Nil(t, err)
	require.Equal(t, "", decl)
	// no current row
	_, err = stmt.ColumnType(0)
	require.True(t, errors.Is(err, ErrNoRow))
}

func TestStepErrorIsReturned(t *testing.T) {
	conn := openTestConnection(t)
	require.Nil(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))
	require.Nil(t, conn.Exec("INSERT INTO t VALUES (1)"))

	stmt, err := conn.Prepare("INSERT INTO t VALUES (?)", 0)
	require.Nil(t, err)
	defer stmt.Close()

	code, err := stmt.Execute(nil, Value(Int, 1))
	require.Equal(t, SQLITE_CONSTRAINT, code.Primary())
	require.Equal(t, StateError, stmt.State())
	var sqlErr *Error
	require.True(t, errors.As(err, &sqlErr))
	require.True(t, errors.Is(err, ErrConstraint))
	require.Equal(t, "step", sqlErr.Op)
	require.Equal(t, "INSERT INTO t VALUES (?)", sqlErr.SQL)
	require.Contains(t, sqlErr.Msg, "UNIQUE")

	// a failed statement is reset by the next Execute
	code, err = stmt.Execute(nil, Value(Int, 2))
	require.Nil(t, err)
	require.Equal(t, SQLITE_DONE, code)
}

func TestStepErrorInline(t *testing.T) {
	conn := openTestConnection(t)
	require.Nil(t, conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"))
	require.Nil(t, conn.ExecScript("INSERT INTO t VALUES (1); INSERT INTO t VALUES (2);"))

	t.Run("RowErrHandler", func(t *testing.T) {
		var codes []ResultCode
		code, err := conn.Execute(RowErrHandler(func(r *Row, code ResultCode) {
			codes = append(codes, code.Primary())
		}), "INSERT INTO t VALUES (1)")
		require.Nil(t, err)
		require.Equal(t, SQLITE_CONSTRAINT, code.Primary())
		require.Equal(t, []ResultCode{SQLITE_CONSTRAINT}, codes)
	})

	t.Run("RowErrFunc receives rows and failures", func(t *testing.T) {
		stmt, err := conn.Prepare("SELECT id FROM t ORDER BY id", 0)
		require.Nil(t, err)
		defer stmt.Close()
		var codes []ResultCode
		var ids []int
		code, err := stmt.Execute(RowErrFunc(func(r *Row, code ResultCode) bool {
			codes = append(codes, code)
			if code == SQLITE_ROW {
				id, err := Result(r, 0, Int)
				require.Nil(t, err)
				ids = append(ids, id)
			}
			return true
		}))
		require.Nil(t, err)
		require.Equal(t, SQLITE_DONE, code)
		require.Equal(t, []ResultCode{SQLITE_ROW, SQLITE_ROW}, codes)
		require.Equal(t, []int{1, 2}, ids)
	})

	t.Run("RowErrFunc reads nothing on failure", func(t *testing.T) {
		var readErr error
		code, err := conn.Execute(RowErrFunc(func(r *Row, code ResultCode) bool {
			_, readErr = Result(r, 0, Int)
			return true
		}), "INSERT INTO t VALUES (2)")
		require.Nil(t, err)
		require.Equal(t, SQLITE_CONSTRAINT, code.Primary())
		require.True(t, errors.Is(readErr, ErrNoRow))
	})
}

func TestCallbackShapes(t *testing.T) {
	conn := openTestConnection(t)
	require.Nil(t, conn.ExecScript("CREATE TABLE t (x); INSERT INTO t VALUES (1), (2), (3), (4);"))

	run := func(cb Callback) {
		stmt, err := conn.Prepare("SELECT x FROM t", 0)
		require.Nil(t, err)
		defer stmt.Close()
		_, err = stmt.Execute(cb)
		require.Nil(t, err)
	}

	seen := 0
	run(RowHandler(func(*Row) { seen++ }))
	require.Equal(t, 4, seen)

	seen = 0
	run(RowFunc(func(*Row) bool { seen++; return seen < 2 }))
	require.Equal(t, 2, seen)

	seen = 0
	run(RowErrHandler(func(_ *Row, code ResultCode) {
		require.Equal(t, SQLITE_ROW, code)
		seen++
	}))
	require.Equal(t, 4, seen)

	seen = 0
	run(RowErrFunc(func(*Row, ResultCode) bool { seen++; return false }))
	require.Equal(t, 1, seen)

	// nil callbacks run to completion
	run(nil)
	run(RowFunc(nil))
}

func TestStatementReleaseAndAdopt(t *testing.T) {
	conn := openTestConnection(t)
	stmt, err := conn.Prepare("SELECT 42", 0)
	require.Nil(t, err)
	require.Equal(t, "SELECT 42", stmt.SQL())

	h := stmt.Release()
	require.NotNil(t, h)
	require.Equal(t, StateClosed, stmt.State())
	require.Nil(t, stmt.Release())

	adopted := NewStatement(h)
	defer adopted.Close()
	require.Equal(t, "SELECT 42", adopted.SQL())
	var v int
	_, err = adopted.Execute(RowHandler(func(r *Row) { v, _ = Result(r, 0, Int) }))
	require.Nil(t, err)
	require.Equal(t, 42, v)
}

func TestStatementOutlivesConnection(t *testing.T) {
	requireLibLoaded(t)
	conn, err := Open(":memory:", 0)
	require.Nil(t, err)
	stmt, err := conn.Prepare("SELECT 1", 0)
	require.Nil(t, err)
	// the database stays alive until its last statement is finalized
	require.Nil(t, conn.Close())
	code, err := stmt.Execute(nil)
	require.Nil(t, err)
	require.Equal(t, SQLITE_DONE, code)
	require.Nil(t, stmt.Close())
}
