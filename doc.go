/*
Package sqlitego is a typed access layer over SQLite's native handle API.

The SQLite shared library is loaded at runtime with purego, so no C toolchain
is needed. Open loads it on first use; call Setup or InitLibrary to choose the
library path or install a logger first.

# Connections and statements

A Connection owns one database handle and a Statement owns one prepared
statement. Both release their handle on Close, and both can give it up with
Release or adopt one with NewConnection and NewStatement. A handle that is
never closed is cleaned up by the garbage collector and reported to the
logger.

Parameter and column indexes are zero-based. Values are bound and read
through converters, one per Go type:

	stmt, err := conn.Prepare("INSERT INTO tab (id, val) VALUES (?, ?)", 0)
	...
	_, err = stmt.Execute(nil, sqlitego.Value(sqlitego.Int, 1), sqlitego.Value(sqlitego.Text, "b"))

A statement that has finished is reset by the next Execute, so it can be run
again with new arguments. Rows are passed to a callback; a RowFunc that
returns false leaves the statement positioned on the row and the next Execute
resumes from there.

# Buffers and ownership

Data describes a buffer handed to the engine and who releases it: the caller
(Static), nobody because the engine copies it (Transient), or the engine
through a release function (Owned). The Blob, UTF8 and UTF16 converters bind
Data and reject buffers of the wrong encoding class.

# Transactions

WithRollbackOnError and WithRollback roll back an open transaction when the
unit of work fails or panics. The database/sql driver registered as
"sqlitego" is built on the same types; Transact is its counterpart for
*sql.DB.

# Concurrency

A Connection and its statements must not be used from more than one goroutine
at a time. The database/sql driver serializes access per connection.
*/
package sqlitego
