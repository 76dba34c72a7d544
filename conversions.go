package sqlitego

import (
	"bytes"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"
	"unsafe"
)

// Converter maps a Go type to the engine's bind and column primitives.
// Positions passed to Bind are 1-based and indexes passed to Read are 0-based,
// as in the engine. Statement and Row translate from the 0-based public indexes.
//
// A new type is supported by implementing Converter for it, or by deriving one
// from an existing converter with Mapped.
type Converter[T any] interface {
	Bind(h StmtHandle, position int, v T) error
	Read(h StmtHandle, index int) T
}

var (
	Int32   Converter[int32]   = int32Converter{}
	Int64   Converter[int64]   = int64Converter{}
	Int     Converter[int]     = intConverter{}
	Float64 Converter[float64] = float64Converter{}
	// Bool is stored as integer 0 or 1.
	Bool Converter[bool] = boolConverter{}
	// Text binds a copy of the string and reads a copy of the column.
	Text Converter[string] = textConverter{}
	// Bytes binds a copy of the slice and reads a copy of the column.
	Bytes Converter[[]byte] = bytesConverter{}
	// View binds the slice without copying, so it must stay unchanged until the
	// statement is rebound, cleared or closed. Reads return engine memory that
	// is valid until the next step, reset or close.
	View Converter[[]byte] = viewConverter{}
	// Time is stored as RFC 3339 text. Reads also accept the usual SQLite
	// timestamp layouts and integer unix seconds.
	Time Converter[time.Time] = timeConverter{}

	// Blob, UTF8 and UTF16 bind descriptors according to their ownership.
	// Binding a descriptor of another encoding class fails with ErrEncodingMismatch.
	Blob  Converter[*Data] = dataConverter{class: EncodingOpaque}
	UTF8  Converter[*Data] = dataConverter{class: EncodingUTF8}
	UTF16 Converter[*Data] = dataConverter{class: EncodingUTF16}
)

func bindError(h StmtHandle, code ResultCode, position int) error {
	if !code.IsError() {
		return nil
	}
	return codeToError(code, sqlite3_db_handle(h), fmt.Sprintf("bind parameter %d", position-1), "")
}

type int32Converter struct{}

func (int32Converter) Bind(h StmtHandle, position int, v int32) error {
	return bindError(h, sqlite3_bind_int(h, position, v), position)
}

func (int32Converter) Read(h StmtHandle, index int) int32 {
	return sqlite3_column_int(h, index)
}

type int64Converter struct{}

func (int64Converter) Bind(h StmtHandle, position int, v int64) error {
	return bindError(h, sqlite3_bind_int64(h, position, v), position)
}

func (int64Converter) Read(h StmtHandle, index int) int64 {
	return sqlite3_column_int64(h, index)
}

type intConverter struct{}

func (intConverter) Bind(h StmtHandle, position int, v int) error {
	return bindError(h, sqlite3_bind_int64(h, position, int64(v)), position)
}

func (intConverter) Read(h StmtHandle, index int) int {
	return int(sqlite3_column_int64(h, index))
}

type float64Converter struct{}

func (float64Converter) Bind(h StmtHandle, position int, v float64) error {
	return bindError(h, sqlite3_bind_double(h, position, v), position)
}

func (float64Converter) Read(h StmtHandle, index int) float64 {
	return sqlite3_column_double(h, index)
}

type boolConverter struct{}

func (boolConverter) Bind(h StmtHandle, position int, v bool) error {
	var i int32
	if v {
		i = 1
	}
	return bindError(h, sqlite3_bind_int(h, position, i), position)
}

func (boolConverter) Read(h StmtHandle, index int) bool {
	return sqlite3_column_int64(h, index) != 0
}

type textConverter struct{}

func (textConverter) Bind(h StmtHandle, position int, v string) error {
	ptr := unsafe.Pointer(&emptyBuf[0])
	if len(v) > 0 {
		ptr = unsafe.Pointer(unsafe.StringData(v))
	}
	code := sqlite3_bind_text64(h, position, ptr, len(v), SQLITE_TRANSIENT, EncodingUTF8)
	runtime.KeepAlive(v)
	return bindError(h, code, position)
}

func (textConverter) Read(h StmtHandle, index int) string {
	return string(sqlite3_column_text_view(h, index))
}

type bytesConverter struct{}

func (bytesConverter) Bind(h StmtHandle, position int, v []byte) error {
	code := sqlite3_bind_blob64(h, position, bytesPtr(v), len(v), SQLITE_TRANSIENT)
	runtime.KeepAlive(v)
	return bindError(h, code, position)
}

func (bytesConverter) Read(h StmtHandle, index int) []byte {
	return bytes.Clone(sqlite3_column_blob_view(h, index))
}

// retainer is implemented by converters that may bind with SQLITE_STATIC. The
// statement keeps such values reachable until they are rebound or cleared.
type retainer[T any] interface {
	retains(v T) bool
}

func retainsValue[T any](c Converter[T], v T) bool {
	r, ok := c.(retainer[T])
	return ok && r.retains(v)
}

type viewConverter struct{}

func (viewConverter) Bind(h StmtHandle, position int, v []byte) error {
	return bindError(h, sqlite3_bind_blob64(h, position, bytesPtr(v), len(v), SQLITE_STATIC), position)
}

func (viewConverter) retains([]byte) bool { return true }

func (viewConverter) Read(h StmtHandle, index int) []byte {
	return sqlite3_column_blob_view(h, index)
}

type timeConverter struct{}

func (timeConverter) Bind(h StmtHandle, position int, v time.Time) error {
	return Text.Bind(h, position, v.Format(time.RFC3339Nano))
}

// Read returns the zero time for values it cannot interpret.
func (timeConverter) Read(h StmtHandle, index int) time.Time {
	switch sqlite3_column_type(h, index) {
	case SQLITE_INTEGER:
		return time.Unix(sqlite3_column_int64(h, index), 0).UTC()
	case SQLITE_TEXT:
		t, err := parseTimeString(Text.Read(h, index))
		if err != nil {
			logf(LogLevelDebug, "conversions", "column %d: %v", index, err)
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

type dataConverter struct {
	class Encoding
}

func (c dataConverter) accepts(enc Encoding) bool {
	if c.class == EncodingUTF16 {
		return enc.isUTF16()
	}
	return enc == c.class
}

func (c dataConverter) bindRaw(h StmtHandle, position int, ptr unsafe.Pointer, n int, destructor uintptr, enc Encoding) ResultCode {
	if c.class == EncodingOpaque {
		return sqlite3_bind_blob64(h, position, ptr, n, destructor)
	}
	return sqlite3_bind_text64(h, position, ptr, n, destructor, enc)
}

// Bind hands the buffer to the engine according to the descriptor's ownership:
// static buffers are referenced, transient ones copied, and owned native
// buffers passed on together with their destructor. An owned Go buffer is
// copied and then released. In every case an owned descriptor is consumed
// afterwards and binding it again fails with ErrInvalidState.
func (c dataConverter) Bind(h StmtHandle, position int, d *Data) error {
	if d == nil {
		return bindError(h, sqlite3_bind_null(h, position), position)
	}
	if d.consumed {
		return fmt.Errorf("%w: data was already handed to the engine or released", ErrInvalidState)
	}
	if !c.accepts(d.enc) {
		return fmt.Errorf("%w: cannot bind %s data as %s", ErrEncodingMismatch, d.enc, c.class)
	}
	switch {
	case d.own == Static:
		return bindError(h, c.bindRaw(h, position, bytesPtr(d.buf), len(d.buf), SQLITE_STATIC, d.enc), position)
	case d.own == Transient:
		code := c.bindRaw(h, position, bytesPtr(d.buf), len(d.buf), SQLITE_TRANSIENT, d.enc)
		runtime.KeepAlive(d)
		return bindError(h, code, position)
	case d.destructor != 0 && d.ptr != nil:
		// the engine calls the destructor even if the bind fails
		rel := d.detach()
		return bindError(h, c.bindRaw(h, position, rel.ptr, len(rel.buf), rel.destructor, d.enc), position)
	default:
		code := c.bindRaw(h, position, bytesPtr(d.buf), len(d.buf), SQLITE_TRANSIENT, d.enc)
		d.Release()
		return bindError(h, code, position)
	}
}

// retains reports whether the engine will reference d's buffer after the bind.
func (dataConverter) retains(d *Data) bool {
	return d != nil && !d.consumed && d.own == Static
}

// Read copies the column into Go memory. NULL reads as nil.
func (c dataConverter) Read(h StmtHandle, index int) *Data {
	if sqlite3_column_type(h, index) == SQLITE_NULL {
		return nil
	}
	switch c.class {
	case EncodingOpaque:
		return TransientData(bytes.Clone(sqlite3_column_blob_view(h, index)), EncodingOpaque)
	case EncodingUTF8:
		return TransientData(bytes.Clone(sqlite3_column_text_view(h, index)), EncodingUTF8)
	default:
		return TransientData(bytes.Clone(sqlite3_column_text16_view(h, index)), EncodingUTF16)
	}
}

type nullableConverter[T any] struct {
	inner Converter[T]
}

// Nullable wraps c so that an invalid sql.Null binds NULL and a NULL column
// reads as an invalid sql.Null.
func Nullable[T any](c Converter[T]) Converter[sql.Null[T]] {
	return nullableConverter[T]{inner: c}
}

func (c nullableConverter[T]) Bind(h StmtHandle, position int, v sql.Null[T]) error {
	if !v.Valid {
		return bindError(h, sqlite3_bind_null(h, position), position)
	}
	return c.inner.Bind(h, position, v.V)
}

func (c nullableConverter[T]) retains(v sql.Null[T]) bool {
	return v.Valid && retainsValue(c.inner, v.V)
}

func (c nullableConverter[T]) Read(h StmtHandle, index int) sql.Null[T] {
	if sqlite3_column_type(h, index) == SQLITE_NULL {
		return sql.Null[T]{}
	}
	return sql.Null[T]{V: c.inner.Read(h, index), Valid: true}
}

type mappedConverter[T, U any] struct {
	base   Converter[U]
	encode func(T) U
	decode func(U) T
}

// Mapped derives a converter for T from one for U.
func Mapped[T, U any](base Converter[U], encode func(T) U, decode func(U) T) Converter[T] {
	return mappedConverter[T, U]{base: base, encode: encode, decode: decode}
}

func (c mappedConverter[T, U]) Bind(h StmtHandle, position int, v T) error {
	return c.base.Bind(h, position, c.encode(v))
}

func (c mappedConverter[T, U]) retains(v T) bool {
	return retainsValue(c.base, c.encode(v))
}

func (c mappedConverter[T, U]) Read(h StmtHandle, index int) T {
	return c.decode(c.base.Read(h, index))
}

// SQLiteTimestampFormats are the timestamp layouts understood when reading
// text columns as time.Time, in the order they are tried.
var SQLiteTimestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimeString attempts to parse a string as a time.Time value.
// This matches the behavior of github.com/mattn/go-sqlite3.
func parseTimeString(s string) (time.Time, error) {
	// Strip trailing "Z" suffix before parsing (go-sqlite3 behavior)
	s = strings.TrimSuffix(s, "Z")
	for _, format := range SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
