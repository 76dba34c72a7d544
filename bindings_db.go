package sqlitego

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// define all necessary constants first
type ResultCode int32

// note, that the only real statuses are OK, ROW and DONE - everything else is errors
const (
	SQLITE_OK         ResultCode = 0
	SQLITE_ERROR      ResultCode = 1
	SQLITE_INTERNAL   ResultCode = 2
	SQLITE_PERM       ResultCode = 3
	SQLITE_ABORT      ResultCode = 4
	SQLITE_BUSY       ResultCode = 5
	SQLITE_LOCKED     ResultCode = 6
	SQLITE_NOMEM      ResultCode = 7
	SQLITE_READONLY   ResultCode = 8
	SQLITE_INTERRUPT  ResultCode = 9
	SQLITE_IOERR      ResultCode = 10
	SQLITE_CORRUPT    ResultCode = 11
	SQLITE_NOTFOUND   ResultCode = 12
	SQLITE_FULL       ResultCode = 13
	SQLITE_CANTOPEN   ResultCode = 14
	SQLITE_PROTOCOL   ResultCode = 15
	SQLITE_EMPTY      ResultCode = 16
	SQLITE_SCHEMA     ResultCode = 17
	SQLITE_TOOBIG     ResultCode = 18
	SQLITE_CONSTRAINT ResultCode = 19
	SQLITE_MISMATCH   ResultCode = 20
	SQLITE_MISUSE     ResultCode = 21
	SQLITE_NOLFS      ResultCode = 22
	SQLITE_AUTH       ResultCode = 23
	SQLITE_FORMAT     ResultCode = 24
	SQLITE_RANGE      ResultCode = 25
	SQLITE_NOTADB     ResultCode = 26
	SQLITE_NOTICE     ResultCode = 27
	SQLITE_WARNING    ResultCode = 28
	SQLITE_ROW        ResultCode = 100
	SQLITE_DONE       ResultCode = 101
)

var resultCodeNames = map[ResultCode]string{
	SQLITE_OK:         "SQLITE_OK",
	SQLITE_ERROR:      "SQLITE_ERROR",
	SQLITE_INTERNAL:   "SQLITE_INTERNAL",
	SQLITE_PERM:       "SQLITE_PERM",
	SQLITE_ABORT:      "SQLITE_ABORT",
	SQLITE_BUSY:       "SQLITE_BUSY",
	SQLITE_LOCKED:     "SQLITE_LOCKED",
	SQLITE_NOMEM:      "SQLITE_NOMEM",
	SQLITE_READONLY:   "SQLITE_READONLY",
	SQLITE_INTERRUPT:  "SQLITE_INTERRUPT",
	SQLITE_IOERR:      "SQLITE_IOERR",
	SQLITE_CORRUPT:    "SQLITE_CORRUPT",
	SQLITE_NOTFOUND:   "SQLITE_NOTFOUND",
	SQLITE_FULL:       "SQLITE_FULL",
	SQLITE_CANTOPEN:   "SQLITE_CANTOPEN",
	SQLITE_PROTOCOL:   "SQLITE_PROTOCOL",
	SQLITE_EMPTY:      "SQLITE_EMPTY",
	SQLITE_SCHEMA:     "SQLITE_SCHEMA",
	SQLITE_TOOBIG:     "SQLITE_TOOBIG",
	SQLITE_CONSTRAINT: "SQLITE_CONSTRAINT",
	SQLITE_MISMATCH:   "SQLITE_MISMATCH",
	SQLITE_MISUSE:     "SQLITE_MISUSE",
	SQLITE_NOLFS:      "SQLITE_NOLFS",
	SQLITE_AUTH:       "SQLITE_AUTH",
	SQLITE_FORMAT:     "SQLITE_FORMAT",
	SQLITE_RANGE:      "SQLITE_RANGE",
	SQLITE_NOTADB:     "SQLITE_NOTADB",
	SQLITE_NOTICE:     "SQLITE_NOTICE",
	SQLITE_WARNING:    "SQLITE_WARNING",
	SQLITE_ROW:        "SQLITE_ROW",
	SQLITE_DONE:       "SQLITE_DONE",
}

// Primary strips the extended bits of the code.
func (c ResultCode) Primary() ResultCode {
	return c & 0xff
}

// IsError reports whether the code is anything but OK, ROW or DONE.
func (c ResultCode) IsError() bool {
	switch c {
	case SQLITE_OK, SQLITE_ROW, SQLITE_DONE:
		return false
	}
	return true
}

func (c ResultCode) String() string {
	if name, ok := resultCodeNames[c]; ok {
		return name
	}
	if name, ok := resultCodeNames[c.Primary()]; ok {
		return fmt.Sprintf("%s(%d)", name, int32(c))
	}
	return fmt.Sprintf("SQLITE_UNKNOWN(%d)", int32(c))
}

type ColumnType int32

const (
	SQLITE_INTEGER ColumnType = 1
	SQLITE_FLOAT   ColumnType = 2
	SQLITE_TEXT    ColumnType = 3
	SQLITE_BLOB    ColumnType = 4
	SQLITE_NULL    ColumnType = 5
)

func (t ColumnType) String() string {
	switch t {
	case SQLITE_INTEGER:
		return "INTEGER"
	case SQLITE_FLOAT:
		return "FLOAT"
	case SQLITE_TEXT:
		return "TEXT"
	case SQLITE_BLOB:
		return "BLOB"
	case SQLITE_NULL:
		return "NULL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// OpenFlags are passed to sqlite3_open_v2.
type OpenFlags int32

const (
	SQLITE_OPEN_READONLY     OpenFlags = 0x00000001
	SQLITE_OPEN_READWRITE    OpenFlags = 0x00000002
	SQLITE_OPEN_CREATE       OpenFlags = 0x00000004
	SQLITE_OPEN_URI          OpenFlags = 0x00000040
	SQLITE_OPEN_MEMORY       OpenFlags = 0x00000080
	SQLITE_OPEN_NOMUTEX      OpenFlags = 0x00008000
	SQLITE_OPEN_FULLMUTEX    OpenFlags = 0x00010000
	SQLITE_OPEN_SHAREDCACHE  OpenFlags = 0x00020000
	SQLITE_OPEN_PRIVATECACHE OpenFlags = 0x00040000
	SQLITE_OPEN_NOFOLLOW     OpenFlags = 0x01000000

	OpenFlagsDefault = SQLITE_OPEN_READWRITE | SQLITE_OPEN_CREATE | SQLITE_OPEN_URI
)

// PrepareFlags are passed to sqlite3_prepare_v3.
type PrepareFlags uint32

const (
	SQLITE_PREPARE_PERSISTENT PrepareFlags = 0x01
	SQLITE_PREPARE_NORMALIZE  PrepareFlags = 0x02
	SQLITE_PREPARE_NO_VTAB    PrepareFlags = 0x04
)

// destructor sentinels accepted by sqlite3_bind_text64 and sqlite3_bind_blob64
const (
	SQLITE_STATIC    uintptr = 0
	SQLITE_TRANSIENT uintptr = ^uintptr(0)
)

// define opaque pointers as-is and accept them as exact arguments
type sqlite3_t struct{}
type sqlite3_stmt_t struct{}

// DBHandle is a raw sqlite3* connection handle.
type DBHandle *sqlite3_t

// StmtHandle is a raw sqlite3_stmt* prepared statement handle.
type StmtHandle *sqlite3_stmt_t

// then, define C extern methods
var (
	c_sqlite3_libversion func() unsafe.Pointer

	c_sqlite3_open_v2 func(
		filename string, // const char*
		ppDb unsafe.Pointer, // sqlite3**
		flags int32,
		zVfs unsafe.Pointer, // const char*
	) int32

	c_sqlite3_close_v2 func(db unsafe.Pointer) int32

	c_sqlite3_errmsg func(db unsafe.Pointer) unsafe.Pointer // const char*

	c_sqlite3_errstr func(code int32) unsafe.Pointer // const char*

	c_sqlite3_extended_errcode func(db unsafe.Pointer) int32

	c_sqlite3_get_autocommit func(db unsafe.Pointer) int32

	c_sqlite3_changes func(db unsafe.Pointer) int32

	c_sqlite3_total_changes func(db unsafe.Pointer) int32

	c_sqlite3_last_insert_rowid func(db unsafe.Pointer) int64

	c_sqlite3_busy_timeout func(db unsafe.Pointer, ms int32) int32

	c_sqlite3_prepare_v3 func(
		db unsafe.Pointer, // sqlite3*
		zSql unsafe.Pointer, // const char*
		nByte int32,
		prepFlags uint32,
		ppStmt unsafe.Pointer, // sqlite3_stmt**
		pzTail unsafe.Pointer, // const char**
	) int32

	c_sqlite3_db_handle func(stmt unsafe.Pointer) unsafe.Pointer // sqlite3*

	c_sqlite3_sql func(stmt unsafe.Pointer) unsafe.Pointer // const char*

	c_sqlite3_step func(stmt unsafe.Pointer) int32

	c_sqlite3_reset func(stmt unsafe.Pointer) int32

	c_sqlite3_finalize func(stmt unsafe.Pointer) int32

	c_sqlite3_clear_bindings func(stmt unsafe.Pointer) int32

	c_sqlite3_bind_parameter_count func(stmt unsafe.Pointer) int32

	c_sqlite3_bind_parameter_index func(stmt unsafe.Pointer, name string) int32

	c_sqlite3_bind_parameter_name func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_bind_null func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_bind_int func(stmt unsafe.Pointer, index int32, value int32) int32

	c_sqlite3_bind_int64 func(stmt unsafe.Pointer, index int32, value int64) int32

	c_sqlite3_bind_double func(stmt unsafe.Pointer, index int32, value float64) int32

	c_sqlite3_bind_text64 func(
		stmt unsafe.Pointer,
		index int32,
		ptr unsafe.Pointer, // const char*
		n uint64, // sqlite3_uint64
		destructor uintptr, // void(*)(void*)
		encoding uint8, // unsigned char
	) int32

	c_sqlite3_bind_blob64 func(
		stmt unsafe.Pointer,
		index int32,
		ptr unsafe.Pointer, // const void*
		n uint64, // sqlite3_uint64
		destructor uintptr, // void(*)(void*)
	) int32

	c_sqlite3_column_count func(stmt unsafe.Pointer) int32

	c_sqlite3_column_name func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_decltype func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_type func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_column_int func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_column_int64 func(stmt unsafe.Pointer, index int32) int64

	c_sqlite3_column_double func(stmt unsafe.Pointer, index int32) float64

	c_sqlite3_column_text func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_text16 func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_blob func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_column_bytes func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_column_bytes16 func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_malloc64 func(n uint64) unsafe.Pointer

	c_sqlite3_free func(ptr unsafe.Pointer)
)

// implement a function to register extern methods from loaded lib
// DO NOT load lib - as it will be done externally
func register_sqlite3(handle uintptr) (err error) {
	// RegisterLibFunc panics on a missing symbol, e.g. a library older than 3.20
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	purego.RegisterLibFunc(&c_sqlite3_libversion, handle, "sqlite3_libversion")
	purego.RegisterLibFunc(&c_sqlite3_open_v2, handle, "sqlite3_open_v2")
	purego.RegisterLibFunc(&c_sqlite3_close_v2, handle, "sqlite3_close_v2")
	purego.RegisterLibFunc(&c_sqlite3_errmsg, handle, "sqlite3_errmsg")
	purego.RegisterLibFunc(&c_sqlite3_errstr, handle, "sqlite3_errstr")
	purego.RegisterLibFunc(&c_sqlite3_extended_errcode, handle, "sqlite3_extended_errcode")
	purego.RegisterLibFunc(&c_sqlite3_get_autocommit, handle, "sqlite3_get_autocommit")
	purego.RegisterLibFunc(&c_sqlite3_changes, handle, "sqlite3_changes")
	purego.RegisterLibFunc(&c_sqlite3_total_changes, handle, "sqlite3_total_changes")
	purego.RegisterLibFunc(&c_sqlite3_last_insert_rowid, handle, "sqlite3_last_insert_rowid")
	purego.RegisterLibFunc(&c_sqlite3_busy_timeout, handle, "sqlite3_busy_timeout")
	purego.RegisterLibFunc(&c_sqlite3_prepare_v3, handle, "sqlite3_prepare_v3")
	purego.RegisterLibFunc(&c_sqlite3_db_handle, handle, "sqlite3_db_handle")
	purego.RegisterLibFunc(&c_sqlite3_sql, handle, "sqlite3_sql")
	purego.RegisterLibFunc(&c_sqlite3_step, handle, "sqlite3_step")
	purego.RegisterLibFunc(&c_sqlite3_reset, handle, "sqlite3_reset")
	purego.RegisterLibFunc(&c_sqlite3_finalize, handle, "sqlite3_finalize")
	purego.RegisterLibFunc(&c_sqlite3_clear_bindings, handle, "sqlite3_clear_bindings")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_count, handle, "sqlite3_bind_parameter_count")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_index, handle, "sqlite3_bind_parameter_index")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_name, handle, "sqlite3_bind_parameter_name")
	purego.RegisterLibFunc(&c_sqlite3_bind_null, handle, "sqlite3_bind_null")
	purego.RegisterLibFunc(&c_sqlite3_bind_int, handle, "sqlite3_bind_int")
	purego.RegisterLibFunc(&c_sqlite3_bind_int64, handle, "sqlite3_bind_int64")
	purego.RegisterLibFunc(&c_sqlite3_bind_double, handle, "sqlite3_bind_double")
	purego.RegisterLibFunc(&c_sqlite3_bind_text64, handle, "sqlite3_bind_text64")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob64, handle, "sqlite3_bind_blob64")
	purego.RegisterLibFunc(&c_sqlite3_column_count, handle, "sqlite3_column_count")
	purego.RegisterLibFunc(&c_sqlite3_column_name, handle, "sqlite3_column_name")
	purego.RegisterLibFunc(&c_sqlite3_column_decltype, handle, "sqlite3_column_decltype")
	purego.RegisterLibFunc(&c_sqlite3_column_type, handle, "sqlite3_column_type")
	purego.RegisterLibFunc(&c_sqlite3_column_int, handle, "sqlite3_column_int")
	purego.RegisterLibFunc(&c_sqlite3_column_int64, handle, "sqlite3_column_int64")
	purego.RegisterLibFunc(&c_sqlite3_column_double, handle, "sqlite3_column_double")
	purego.RegisterLibFunc(&c_sqlite3_column_text, handle, "sqlite3_column_text")
	purego.RegisterLibFunc(&c_sqlite3_column_text16, handle, "sqlite3_column_text16")
	purego.RegisterLibFunc(&c_sqlite3_column_blob, handle, "sqlite3_column_blob")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes, handle, "sqlite3_column_bytes")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes16, handle, "sqlite3_column_bytes16")
	purego.RegisterLibFunc(&c_sqlite3_malloc64, handle, "sqlite3_malloc64")
	purego.RegisterLibFunc(&c_sqlite3_free, handle, "sqlite3_free")
	return nil
}

// Helpers

// emptyBuf backs zero-length text and blob binds: a NULL pointer would bind SQL NULL instead.
var emptyBuf [1]byte

func bytesPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return unsafe.Pointer(&emptyBuf[0])
	}
	return unsafe.Pointer(&b[0])
}

func copyCString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	// Determine length
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// callDestructor invokes a native void(*)(void*) function.
func callDestructor(fn uintptr, ptr unsafe.Pointer) {
	if fn == 0 || fn == SQLITE_TRANSIENT || ptr == nil {
		return
	}
	purego.SyscallN(fn, uintptr(ptr))
}

// Go wrappers over imported C bindings

func sqlite3_libversion() string {
	return copyCString(c_sqlite3_libversion())
}

/** Open a database connection; on failure the returned handle may still be non-nil and must be closed */
func sqlite3_open_v2(filename string, flags OpenFlags) (DBHandle, ResultCode) {
	var db DBHandle
	code := c_sqlite3_open_v2(filename, unsafe.Pointer(&db), int32(flags), nil)
	return db, ResultCode(code)
}

func sqlite3_close_v2(db DBHandle) ResultCode {
	if db == nil {
		return SQLITE_OK
	}
	return ResultCode(c_sqlite3_close_v2(unsafe.Pointer(db)))
}

func sqlite3_errmsg(db DBHandle) string {
	if db == nil {
		return ""
	}
	return copyCString(c_sqlite3_errmsg(unsafe.Pointer(db)))
}

func sqlite3_errstr(code ResultCode) string {
	return copyCString(c_sqlite3_errstr(int32(code)))
}

func sqlite3_extended_errcode(db DBHandle) ResultCode {
	return ResultCode(c_sqlite3_extended_errcode(unsafe.Pointer(db)))
}

func sqlite3_get_autocommit(db DBHandle) bool {
	return c_sqlite3_get_autocommit(unsafe.Pointer(db)) != 0
}

func sqlite3_changes(db DBHandle) int64 {
	return int64(c_sqlite3_changes(unsafe.Pointer(db)))
}

func sqlite3_total_changes(db DBHandle) int64 {
	return int64(c_sqlite3_total_changes(unsafe.Pointer(db)))
}

func sqlite3_last_insert_rowid(db DBHandle) int64 {
	return c_sqlite3_last_insert_rowid(unsafe.Pointer(db))
}

func sqlite3_busy_timeout(db DBHandle, ms int) ResultCode {
	return ResultCode(c_sqlite3_busy_timeout(unsafe.Pointer(db), int32(ms)))
}

/** Prepare the first statement of sql
 * Returns the number of bytes of sql consumed; the statement is nil if sql held only whitespace or comments
 */
func sqlite3_prepare_v3(db DBHandle, sql string, flags PrepareFlags) (StmtHandle, int, ResultCode) {
	// own the buffer so the tail pointer can be turned back into an offset
	buf := make([]byte, len(sql)+1)
	copy(buf, sql)
	base := unsafe.Pointer(&buf[0])
	var stmt StmtHandle
	var tail unsafe.Pointer
	code := c_sqlite3_prepare_v3(
		unsafe.Pointer(db),
		base,
		int32(len(sql)),
		uint32(flags),
		unsafe.Pointer(&stmt),
		unsafe.Pointer(&tail),
	)
	consumed := len(sql)
	if tail != nil {
		consumed = int(uintptr(tail) - uintptr(base))
	}
	runtime.KeepAlive(buf)
	return stmt, consumed, ResultCode(code)
}

func sqlite3_db_handle(stmt StmtHandle) DBHandle {
	return DBHandle(c_sqlite3_db_handle(unsafe.Pointer(stmt)))
}

func sqlite3_sql(stmt StmtHandle) string {
	return copyCString(c_sqlite3_sql(unsafe.Pointer(stmt)))
}

func sqlite3_step(stmt StmtHandle) ResultCode {
	return ResultCode(c_sqlite3_step(unsafe.Pointer(stmt)))
}

func sqlite3_reset(stmt StmtHandle) ResultCode {
	return ResultCode(c_sqlite3_reset(unsafe.Pointer(stmt)))
}

/** Finalize a statement; finalizing a nil handle is a harmless no-op */
func sqlite3_finalize(stmt StmtHandle) ResultCode {
	if stmt == nil {
		return SQLITE_OK
	}
	return ResultCode(c_sqlite3_finalize(unsafe.Pointer(stmt)))
}

func sqlite3_clear_bindings(stmt StmtHandle) ResultCode {
	return ResultCode(c_sqlite3_clear_bindings(unsafe.Pointer(stmt)))
}

func sqlite3_bind_parameter_count(stmt StmtHandle) int {
	return int(c_sqlite3_bind_parameter_count(unsafe.Pointer(stmt)))
}

/** Return the 1-based position of the named parameter or 0 */
func sqlite3_bind_parameter_index(stmt StmtHandle, name string) int {
	return int(c_sqlite3_bind_parameter_index(unsafe.Pointer(stmt), name))
}

func sqlite3_bind_parameter_name(stmt StmtHandle, position int) string {
	return copyCString(c_sqlite3_bind_parameter_name(unsafe.Pointer(stmt), int32(position)))
}

func sqlite3_bind_null(stmt StmtHandle, position int) ResultCode {
	return ResultCode(c_sqlite3_bind_null(unsafe.Pointer(stmt), int32(position)))
}

func sqlite3_bind_int(stmt StmtHandle, position int, value int32) ResultCode {
	return ResultCode(c_sqlite3_bind_int(unsafe.Pointer(stmt), int32(position), value))
}

func sqlite3_bind_int64(stmt StmtHandle, position int, value int64) ResultCode {
	return ResultCode(c_sqlite3_bind_int64(unsafe.Pointer(stmt), int32(position), value))
}

func sqlite3_bind_double(stmt StmtHandle, position int, value float64) ResultCode {
	return ResultCode(c_sqlite3_bind_double(unsafe.Pointer(stmt), int32(position), value))
}

/** Bind text in the given encoding
 * The destructor is SQLITE_STATIC, SQLITE_TRANSIENT or a native function the engine calls once it is done with ptr
 */
func sqlite3_bind_text64(stmt StmtHandle, position int, ptr unsafe.Pointer, n int, destructor uintptr, enc Encoding) ResultCode {
	return ResultCode(c_sqlite3_bind_text64(unsafe.Pointer(stmt), int32(position), ptr, uint64(n), destructor, uint8(enc)))
}

func sqlite3_bind_blob64(stmt StmtHandle, position int, ptr unsafe.Pointer, n int, destructor uintptr) ResultCode {
	return ResultCode(c_sqlite3_bind_blob64(unsafe.Pointer(stmt), int32(position), ptr, uint64(n), destructor))
}

func sqlite3_column_count(stmt StmtHandle) int {
	return int(c_sqlite3_column_count(unsafe.Pointer(stmt)))
}

func sqlite3_column_name(stmt StmtHandle, index int) string {
	return copyCString(c_sqlite3_column_name(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_column_decltype(stmt StmtHandle, index int) string {
	return copyCString(c_sqlite3_column_decltype(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_column_type(stmt StmtHandle, index int) ColumnType {
	return ColumnType(c_sqlite3_column_type(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_column_int(stmt StmtHandle, index int) int32 {
	return c_sqlite3_column_int(unsafe.Pointer(stmt), int32(index))
}

func sqlite3_column_int64(stmt StmtHandle, index int) int64 {
	return c_sqlite3_column_int64(unsafe.Pointer(stmt), int32(index))
}

func sqlite3_column_double(stmt StmtHandle, index int) float64 {
	return c_sqlite3_column_double(unsafe.Pointer(stmt), int32(index))
}

// Additional ergonomic helpers (the only non-direct translations)

/** Return the TEXT value as a view over engine memory
 * The view is valid until the next step, reset or finalize of the statement.
 */
func sqlite3_column_text_view(stmt StmtHandle, index int) []byte {
	// column_text must be called before column_bytes
	ptr := c_sqlite3_column_text(unsafe.Pointer(stmt), int32(index))
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	if ptr == nil || n <= 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(ptr), n)
}

/** Return the TEXT value as native-endian UTF-16 bytes, a view over engine memory */
func sqlite3_column_text16_view(stmt StmtHandle, index int) []byte {
	ptr := c_sqlite3_column_text16(unsafe.Pointer(stmt), int32(index))
	n := c_sqlite3_column_bytes16(unsafe.Pointer(stmt), int32(index))
	if ptr == nil || n <= 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(ptr), n)
}

/** Return the BLOB value as a view over engine memory
 * A zero-length blob comes back as an empty, non-nil slice.
 */
func sqlite3_column_blob_view(stmt StmtHandle, index int) []byte {
	ptr := c_sqlite3_column_blob(unsafe.Pointer(stmt), int32(index))
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	if ptr == nil || n <= 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(ptr), n)
}

func sqlite3_malloc64(n int) unsafe.Pointer {
	return c_sqlite3_malloc64(uint64(n))
}

func sqlite3_free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	c_sqlite3_free(ptr)
}
