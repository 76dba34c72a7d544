package sqlitego

import (
	"bytes"
	"database/sql"
	"errors"
	"math"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// roundTrip binds v through c to "SELECT ?" and reads the column back through c.
func roundTrip[T any](t *testing.T, conn *Connection, c Converter[T], v T) T {
	t.Helper()
	var got T
	var readErr error
	_, err := conn.Execute(RowHandler(func(r *Row) {
		got, readErr = Result(r, 0, c)
	}), "SELECT ?", Value(c, v))
	require.Nil(t, err)
	require.Nil(t, readErr)
	return got
}

func TestScalarRoundTrip(t *testing.T) {
	conn := openTestConnection(t)

	require.Equal(t, int32(math.MinInt32), roundTrip(t, conn, Int32, math.MinInt32))
	require.Equal(t, int32(math.MaxInt32), roundTrip(t, conn, Int32, math.MaxInt32))
	require.Equal(t, int64(math.MinInt64), roundTrip(t, conn, Int64, math.MinInt64))
	require.Equal(t, int64(math.MaxInt64), roundTrip(t, conn, Int64, math.MaxInt64))
	require.Equal(t, -42, roundTrip(t, conn, Int, -42))
	require.Equal(t, 3.141592653589793, roundTrip(t, conn, Float64, 3.141592653589793))
	require.Equal(t, math.Inf(-1), roundTrip(t, conn, Float64, math.Inf(-1)))
	require.True(t, roundTrip(t, conn, Bool, true))
	require.False(t, roundTrip(t, conn, Bool, false))
	require.Equal(t, "héllo, wörld", roundTrip(t, conn, Text, "héllo, wörld"))
	require.Equal(t, []byte{0, 1, 2, 255}, roundTrip(t, conn, Bytes, []byte{0, 1, 2, 255}))
}

func TestEmptyValuesAreNotNull(t *testing.T) {
	conn := openTestConnection(t)
	for _, arg := range []Arg{Value(Text, ""), Value(Bytes, []byte{}), Value(Bytes, nil), Value(View, nil)} {
		var isNull bool
		_, err := conn.Execute(RowHandler(func(r *Row) {
			isNull, _ = r.IsNull(0)
		}), "SELECT ?", arg)
		require.Nil(t, err)
		require.False(t, isNull)
	}
}

func TestViewIsZeroCopy(t *testing.T) {
	conn := openTestConnection(t)
	stmt, err := conn.Prepare("SELECT ?", 0)
	require.Nil(t, err)
	defer stmt.Close()

	buf := []byte("borrowed")
	var got []byte
	_, err = stmt.Execute(RowFunc(func(r *Row) bool {
		view, err := Result(r, 0, View)
		require.Nil(t, err)
		// the view is only valid until the next step
		got = bytes.Clone(view)
		return true
	}), Value(View, buf))
	require.Nil(t, err)
	require.Equal(t, []byte("borrowed"), got)
}

func TestNullableRoundTrip(t *testing.T) {
	conn := openTestConnection(t)

	missing := roundTrip(t, conn, Nullable(Int64), sql.Null[int64]{})
	require.False(t, missing.Valid)

	present := roundTrip(t, conn, Nullable(Int64), sql.Null[int64]{V: 7, Valid: true})
	require.True(t, present.Valid)
	require.Equal(t, int64(7), present.V)

	text := roundTrip(t, conn, Nullable(Text), sql.Null[string]{V: "", Valid: true})
	require.True(t, text.Valid)
	require.Equal(t, "", text.V)

	var got sql.Null[string]
	_, err := conn.Execute(RowHandler(func(r *Row) {
		got, _ = Result(r, 0, Nullable(Text))
	}), "SELECT NULL")
	require.Nil(t, err)
	require.False(t, got.Valid)
}

func TestTimeRoundTrip(t *testing.T) {
	conn := openTestConnection(t)
	ts := time.Date(2024, 2, 29, 13, 45, 12, 123456789, time.UTC)
	require.True(t, ts.Equal(roundTrip(t, conn, Time, ts)))

	zoned := time.Date(2023, 12, 31, 23, 59, 59, 0, time.FixedZone("", 2*60*60))
	require.True(t, zoned.Equal(roundTrip(t, conn, Time, zoned)))

	var unix, text time.Time
	_, err := conn.Execute(RowHandler(func(r *Row) {
		unix, _ = Result(r, 0, Time)
		text, _ = Result(r, 1, Time)
	}), "SELECT 1700000000, '2023-11-14 22:13:20'")
	require.Nil(t, err)
	require.True(t, time.Unix(1700000000, 0).Equal(unix))
	require.True(t, unix.Equal(text))
}

type userID string

var userIDConverter = Mapped(Text,
	func(id userID) string { return strings.TrimPrefix(string(id), "user:") },
	func(s string) userID { return userID("user:" + s) },
)

func TestMappedConverter(t *testing.T) {
	conn := openTestConnection(t)
	require.Nil(t, conn.Exec("CREATE TABLE users (id TEXT)"))
	require.Nil(t, conn.Exec("INSERT INTO users VALUES (?)", Value(userIDConverter, userID("user:42"))))

	var stored string
	var id userID
	_, err := conn.Execute(RowHandler(func(r *Row) {
		stored, _ = Result(r, 0, Text)
		id, _ = Result(r, 0, userIDConverter)
	}), "SELECT id FROM users")
	require.Nil(t, err)
	require.Equal(t, "42", stored)
	require.Equal(t, userID("user:42"), id)
}

func TestDataBindOwnership(t *testing.T) {
	conn := openTestConnection(t)

	t.Run("static", func(t *testing.T) {
		d := StaticData([]byte("static"), EncodingOpaque)
		got := roundTrip(t, conn, Blob, d)
		require.Equal(t, []byte("static"), got.Bytes())
		require.Equal(t, EncodingOpaque, got.Encoding())
		// the caller still owns the buffer
		require.Equal(t, 6, d.Len())
	})

	t.Run("transient survives destroyed buffer", func(t *testing.T) {
		stmt, err := conn.Prepare("SELECT ?", 0)
		require.Nil(t, err)
		defer stmt.Close()

		buf := []byte("transient")
		require.Nil(t, stmt.Bind(0, Value(Blob, TransientData(buf, EncodingOpaque))))
		for i := range buf {
			buf[i] = 0
		}
		buf = nil
		runtime.GC()

		var got []byte
		_, err = stmt.Execute(RowHandler(func(r *Row) {
			got, _ = Result(r, 0, Bytes)
		}))
		require.Nil(t, err)
		require.Equal(t, []byte("transient"), got)
	})

	t.Run("owned native buffer is handed off", func(t *testing.T) {
		d, err := CopyData([]byte("handoff"), EncodingUTF8)
		require.Nil(t, err)
		stmt, err := conn.Prepare("SELECT ?", 0)
		require.Nil(t, err)
		defer stmt.Close()

		require.Nil(t, stmt.Bind(0, Value(UTF8, d)))
		// the engine now owns the buffer and frees it with sqlite3_free
		require.Equal(t, 0, d.Len())
		require.Equal(t, Static, d.Ownership())
		d.Release()

		var got string
		_, err = stmt.Execute(RowHandler(func(r *Row) {
			got, _ = Result(r, 0, Text)
		}))
		require.Nil(t, err)
		require.Equal(t, "handoff", got)
	})

	t.Run("owned go buffer is copied then released", func(t *testing.T) {
		calls := 0
		d := PooledData([]byte("pooled"), EncodingOpaque, func([]byte) { calls++ })
		got := roundTrip(t, conn, Blob, d)
		require.Equal(t, 1, calls)
		require.Equal(t, []byte("pooled"), got.Bytes())
		d.Release()
		require.Equal(t, 1, calls)
	})

	t.Run("nil binds null", func(t *testing.T) {
		got := roundTrip(t, conn, Blob, nil)
		require.Nil(t, got)
	})
}

func TestDataCannotBeBoundTwice(t *testing.T) {
	conn := openTestConnection(t)
	stmt, err := conn.Prepare("SELECT length(?)", 0)
	require.Nil(t, err)
	defer stmt.Close()

	length := func(a Arg) (int64, error) {
		var n int64
		_, err := stmt.Execute(RowHandler(func(r *Row) {
			n, _ = Result(r, 0, Int64)
		}), a)
		return n, err
	}

	t.Run("native buffer after hand-off", func(t *testing.T) {
		d, err := CopyData([]byte("payload"), EncodingOpaque)
		require.Nil(t, err)
		a := Value(Blob, d)

		n, err := length(a)
		require.Nil(t, err)
		require.Equal(t, int64(7), n)
		require.True(t, d.Consumed())

		_, err = length(a)
		require.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("pooled buffer after bind", func(t *testing.T) {
		d := PooledData([]byte("pooled"), EncodingOpaque, func([]byte) {})
		a := Value(Blob, d)
		n, err := length(a)
		require.Nil(t, err)
		require.Equal(t, int64(6), n)

		_, err = length(a)
		require.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("released buffer", func(t *testing.T) {
		d, err := AllocData(4, EncodingOpaque)
		require.Nil(t, err)
		d.Release()
		require.True(t, d.Consumed())
		_, err = length(Value(Blob, d))
		require.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("static and transient rebind", func(t *testing.T) {
		for _, d := range []*Data{
			StaticData([]byte("static"), EncodingOpaque),
			TransientData([]byte("copy"), EncodingOpaque),
		} {
			a := Value(Blob, d)
			for range 2 {
				n, err := length(a)
				require.Nil(t, err)
				require.Equal(t, int64(d.Len()), n)
			}
			require.False(t, d.Consumed())
		}
	})
}

func TestDataEncodingClasses(t *testing.T) {
	conn := openTestConnection(t)
	stmt, err := conn.Prepare("SELECT ?", 0)
	require.Nil(t, err)
	defer stmt.Close()

	err = stmt.Bind(0, Value(Blob, StaticData([]byte("x"), EncodingUTF8)))
	require.True(t, errors.Is(err, ErrEncodingMismatch))
	err = stmt.Bind(0, Value(UTF8, StaticData([]byte("x"), EncodingUTF16LE)))
	require.True(t, errors.Is(err, ErrEncodingMismatch))
	err = stmt.Bind(0, Value(UTF16, StaticData([]byte("x"), EncodingOpaque)))
	require.True(t, errors.Is(err, ErrEncodingMismatch))
	require.Equal(t, StateUnbound, stmt.State())

	le, err := TextData("héllo", EncodingUTF16LE)
	require.Nil(t, err)
	var asText string
	var asUTF16 *Data
	_, err = stmt.Execute(RowHandler(func(r *Row) {
		asText, _ = Result(r, 0, Text)
		asUTF16, _ = Result(r, 0, UTF16)
	}), Value(UTF16, le))
	require.Nil(t, err)
	require.Equal(t, "héllo", asText)
	require.Equal(t, EncodingUTF16, asUTF16.Encoding())
	require.Equal(t, "héllo", asUTF16.String())

	be, err := TextData("héllo", EncodingUTF16BE)
	require.Nil(t, err)
	require.Equal(t, "héllo", roundTrip(t, conn, UTF16, be).String())

	u8, err := TextData("héllo", EncodingUTF8)
	require.Nil(t, err)
	got := roundTrip(t, conn, UTF8, u8)
	require.Equal(t, EncodingUTF8, got.Encoding())
	require.Equal(t, "héllo", got.String())
}
