package sqlitego

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Encoding tags a byte buffer with the representation the engine should assume.
// The values match SQLite's text encoding constants.
type Encoding uint8

const (
	EncodingOpaque  Encoding = 0
	EncodingUTF8    Encoding = 1
	EncodingUTF16LE Encoding = 2
	EncodingUTF16BE Encoding = 3
	// EncodingUTF16 is UTF-16 in the host byte order.
	EncodingUTF16 Encoding = 4
)

func (e Encoding) String() string {
	switch e {
	case EncodingOpaque:
		return "opaque"
	case EncodingUTF8:
		return "utf8"
	case EncodingUTF16LE:
		return "utf16le"
	case EncodingUTF16BE:
		return "utf16be"
	case EncodingUTF16:
		return "utf16"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

func (e Encoding) isUTF16() bool {
	return e == EncodingUTF16LE || e == EncodingUTF16BE || e == EncodingUTF16
}

// textEncoding returns the x/text codec for a UTF-16 tag.
func (e Encoding) textEncoding() encoding.Encoding {
	switch e {
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case EncodingUTF16:
		if hostLittleEndian {
			return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
		}
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	default:
		return encoding.Nop
	}
}

var hostLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// Ownership says who keeps a bound buffer alive.
type Ownership uint8

const (
	// Static buffers are kept alive by the caller for as long as the statement uses them.
	Static Ownership = iota
	// Transient buffers are copied by the engine during the bind call.
	Transient
	// Owned buffers belong to the descriptor and are released exactly once.
	Owned
)

func (o Ownership) String() string {
	switch o {
	case Static:
		return "static"
	case Transient:
		return "transient"
	case Owned:
		return "owned"
	default:
		return fmt.Sprintf("ownership(%d)", uint8(o))
	}
}

// Data describes a byte buffer destined for binding.
//
// An Owned descriptor runs its release function exactly once: on Release, when
// the buffer is handed to the engine by a bind, or by a runtime cleanup if the
// descriptor is dropped while still owning memory.
type Data struct {
	buf []byte
	enc Encoding
	own Ownership

	// owned memory; at most one of destructor and release is set
	ptr        unsafe.Pointer
	destructor uintptr
	release    func([]byte)

	cleanup    runtime.Cleanup
	hasCleanup bool

	// set once the buffer has been handed to the engine or released
	consumed bool
}

type dataRelease struct {
	ptr        unsafe.Pointer
	destructor uintptr
	buf        []byte
	release    func([]byte)
}

func (r dataRelease) run() {
	if r.release != nil {
		r.release(r.buf)
		return
	}
	callDestructor(r.destructor, r.ptr)
}

// StaticData wraps b without copying. b must stay unchanged while bound.
func StaticData(b []byte, enc Encoding) *Data {
	return &Data{buf: b, enc: enc, own: Static}
}

// TransientData wraps b and asks the engine to copy it on bind.
func TransientData(b []byte, enc Encoding) *Data {
	return &Data{buf: b, enc: enc, own: Transient}
}

// TextData encodes s into enc and returns a transient descriptor.
func TextData(s string, enc Encoding) (*Data, error) {
	switch {
	case enc == EncodingUTF8:
		return TransientData([]byte(s), enc), nil
	case enc.isUTF16():
		b, err := enc.textEncoding().NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("sqlitego: encode %s: %w", enc, err)
		}
		return TransientData(b, enc), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a text encoding", ErrEncodingMismatch, enc)
	}
}

// AllocData allocates n bytes of engine memory owned by the descriptor.
// The buffer is released with sqlite3_free.
func AllocData(n int, enc Encoding) (*Data, error) {
	if err := requireLibrary(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("sqlitego: negative allocation size %d", n)
	}
	// malloc64(0) returns NULL
	ptr := sqlite3_malloc64(max(n, 1))
	if ptr == nil {
		return nil, &Error{Code: SQLITE_NOMEM, Op: fmt.Sprintf("allocate %d bytes", n)}
	}
	return NativeData(ptr, n, enc, sqliteFreeAddr), nil
}

// CopyData copies b into a fresh engine allocation.
func CopyData(b []byte, enc Encoding) (*Data, error) {
	d, err := AllocData(len(b), enc)
	if err != nil {
		return nil, err
	}
	copy(d.buf, b)
	return d, nil
}

// NativeData takes ownership of n bytes of foreign memory at ptr. destructor is
// the address of a native void(*)(void*) that releases it.
func NativeData(ptr unsafe.Pointer, n int, enc Encoding, destructor uintptr) *Data {
	d := &Data{
		buf:        unsafe.Slice((*byte)(ptr), n),
		enc:        enc,
		own:        Owned,
		ptr:        ptr,
		destructor: destructor,
	}
	d.arm()
	return d
}

// PooledData takes ownership of a Go buffer. release receives b once the
// descriptor no longer needs it, e.g. to return it to a sync.Pool.
func PooledData(b []byte, enc Encoding, release func([]byte)) *Data {
	d := &Data{buf: b, enc: enc, own: Owned, release: release}
	d.arm()
	return d
}

func (d *Data) arm() {
	rel := dataRelease{ptr: d.ptr, destructor: d.destructor, buf: d.buf, release: d.release}
	d.cleanup = runtime.AddCleanup(d, func(r dataRelease) {
		logf(LogLevelDebug, "data", "releasing leaked owned buffer")
		r.run()
	}, rel)
	d.hasCleanup = true
}

func (d *Data) disarm() {
	if d.hasCleanup {
		d.cleanup.Stop()
		d.hasCleanup = false
	}
}

// detach empties the descriptor, marks it consumed and returns what it owned.
// The caller becomes responsible for the returned memory.
func (d *Data) detach() dataRelease {
	d.disarm()
	rel := dataRelease{ptr: d.ptr, destructor: d.destructor, buf: d.buf, release: d.release}
	d.buf, d.ptr, d.destructor, d.release = nil, nil, 0, nil
	d.own = Static
	d.consumed = true
	return rel
}

// Consumed reports whether d gave up its buffer, to the engine by a bind or
// through Release. A consumed descriptor cannot be bound again.
func (d *Data) Consumed() bool {
	return d != nil && d.consumed
}

// Release frees an owned buffer. It is a no-op for static, transient, or
// already released descriptors.
func (d *Data) Release() {
	if d == nil || d.own != Owned {
		return
	}
	d.detach().run()
}

// Borrow returns a static view of the same bytes. The view is valid while d
// keeps its buffer.
func (d *Data) Borrow() *Data {
	if d == nil {
		return nil
	}
	return &Data{buf: d.buf, enc: d.enc, own: Static}
}

// Clone copies the bytes into Go memory and returns a transient descriptor.
func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	return &Data{buf: bytes.Clone(d.buf), enc: d.enc, own: Transient}
}

// Bytes returns the underlying bytes without copying.
func (d *Data) Bytes() []byte {
	if d == nil {
		return nil
	}
	return d.buf
}

// String decodes the buffer into a Go string. UTF-16 text is converted to UTF-8;
// other encodings are copied as-is.
func (d *Data) String() string {
	if d == nil {
		return ""
	}
	if d.enc.isUTF16() {
		b, err := d.enc.textEncoding().NewDecoder().Bytes(d.buf)
		if err == nil {
			return string(b)
		}
	}
	return string(d.buf)
}

func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.buf)
}

func (d *Data) Encoding() Encoding {
	if d == nil {
		return EncodingOpaque
	}
	return d.enc
}

func (d *Data) Ownership() Ownership {
	if d == nil {
		return Static
	}
	return d.own
}
