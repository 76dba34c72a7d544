package sqlitego

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"
)

// define all package level errors here
var (
	ErrStmtClosed = errors.New("sqlitego: statement closed")
	ErrConnClosed = errors.New("sqlitego: connection closed")
	ErrTxDone     = errors.New("sqlitego: transaction done")
)

// DefaultBusyTimeout is applied to driver connections unless the DSN or the
// Connector sets another value.
const DefaultBusyTimeout = 5000

// DriverName is the name the driver is registered under with database/sql.
const DriverName = "sqlitego"

// define all package level structs here

type dbDriver struct{}

type dbConn struct {
	conn *Connection

	mu          sync.Mutex
	closed      bool
	busyTimeout int // current busy timeout in milliseconds
	txLock      string
}

type dbStmt struct {
	conn      *dbConn
	sql       string
	stmt      *Statement // nil for multi-statement sql
	numInputs int
	closed    bool
	busy      bool // stmt is owned by open rows
}

type dbRows struct {
	conn      *dbConn
	stmt      *Statement
	parent    *dbStmt // set when stmt belongs to a prepared dbStmt
	columns   []string
	decltypes []string

	closed bool
	done   bool
	err    error
}

type dbResult struct {
	lastInsertId int64
	rowsAffected int64
}

type dbTx struct {
	conn *dbConn
	done bool
}

type dsnConfig struct {
	Path        string
	Flags       OpenFlags
	BusyTimeout int // 0 = default, <0 = disabled
	TxLock      string
}

// register driver
func init() {
	sql.Register(DriverName, &dbDriver{})
}

// Implement sql.Driver methods
func (d *dbDriver) Open(dsn string) (driver.Conn, error) {
	config, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return openConn(config)
}

func openConn(config dsnConfig) (*dbConn, error) {
	conn, err := Open(config.Path, config.Flags)
	if err != nil {
		return nil, err
	}
	// Apply busy timeout - use default if not explicitly set
	// A negative value means explicitly disabled (no timeout)
	timeout := config.BusyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	} else if timeout < 0 {
		timeout = 0
	}
	if err := conn.SetBusyTimeout(timeout); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &dbConn{
		conn:        conn,
		busyTimeout: timeout,
		txLock:      config.TxLock,
	}, nil
}

// --- driver.Conn and friends ---

// Ensure dbConn implements required interfaces.
var (
	_ driver.Conn               = (*dbConn)(nil)
	_ driver.ConnPrepareContext = (*dbConn)(nil)
	_ driver.ExecerContext      = (*dbConn)(nil)
	_ driver.QueryerContext     = (*dbConn)(nil)
	_ driver.Pinger             = (*dbConn)(nil)
	_ driver.ConnBeginTx        = (*dbConn)(nil)
	_ driver.NamedValueChecker  = (*dbConn)(nil)
)

// CheckNamedValue lets *Data descriptors through to bindArgs; everything else
// goes through the default database/sql conversion.
func (c *dbConn) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(*Data); ok {
		return nil
	}
	return driver.ErrSkip
}

func (c *dbConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *dbConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	// PREPARE in Prepare - do not delay that
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stmt, consumed, err := c.conn.prepareNext(query, SQLITE_PREPARE_PERSISTENT)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, &Error{Code: SQLITE_MISUSE, Op: "prepare", Msg: "no statement in sql", SQL: query}
	}
	if strings.TrimSpace(query[consumed:]) != "" {
		// several statements: run them through the connection on every call
		c.closeQuietly(stmt)
		return &dbStmt{conn: c, sql: query, numInputs: -1}, nil
	}
	return &dbStmt{
		conn:      c,
		sql:       query,
		stmt:      stmt,
		numInputs: stmt.ParameterCount(),
	}, nil
}

func (c *dbConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *dbConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *dbConn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	begin := "BEGIN"
	if c.txLock != "" {
		begin += " " + strings.ToUpper(c.txLock)
	}
	if _, err := c.ExecContext(ctx, begin, nil); err != nil {
		return nil, err
	}
	return &dbTx{conn: c}, nil
}

func (c *dbConn) Ping(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	// trivial ping: simple select constant
	_, err := c.ExecContext(ctx, "SELECT 1", nil)
	return err
}

func (c *dbConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	// Multi-statement support for Exec-family
	var totalAffected int64
	c.mu.Lock()
	defer c.mu.Unlock()

	offset := 0
	first := true
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rest := query[offset:]
		if strings.TrimSpace(rest) == "" {
			break
		}
		stmt, consumed, err := c.conn.prepareNext(rest, 0)
		if err != nil {
			return nil, err
		}
		// Calculate absolute offset advance
		offset += consumed
		if stmt == nil {
			// only comments left
			if consumed == 0 {
				break
			}
			continue
		}

		// Bind only for the first statement
		if first && len(args) > 0 {
			if err := bindArgs(stmt, args); err != nil {
				c.closeQuietly(stmt)
				return nil, err
			}
		}
		// Execute statement fully
		affected, err := c.executeFully(ctx, stmt)
		// finalize regardless of status
		c.closeQuietly(stmt)
		if err != nil {
			return nil, err
		}
		// rows affected is capped at MaxInt64
		if affected > math.MaxInt64-totalAffected {
			totalAffected = math.MaxInt64
		} else {
			totalAffected += affected
		}
		first = false
		// continue with the rest of the query string
	}
	return &dbResult{
		lastInsertId: c.conn.LastInsertRowID(),
		rowsAffected: totalAffected,
	}, nil
}

func (c *dbConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// Only single-statement queries supported here
	stmt, err := c.conn.Prepare(query, 0)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		if err := bindArgs(stmt, args); err != nil {
			c.closeQuietly(stmt)
			return nil, err
		}
	}
	// Return rows wrapper; do not step yet, leave cursor before first row
	return &dbRows{
		conn: c,
		stmt: stmt,
	}, nil
}

func (c *dbConn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn.Handle() == nil {
		return ErrConnClosed
	}
	return nil
}

// closeQuietly finalizes a driver-owned statement; failures were already
// reported by the step that caused them.
func (c *dbConn) closeQuietly(stmt *Statement) {
	c.conn.closeQuietly(stmt)
}

// SetBusyTimeout sets the busy timeout for this connection in milliseconds.
// Pass 0 to disable the busy handler (immediate SQLITE_BUSY on contention).
// This method is thread-safe.
func (c *dbConn) SetBusyTimeout(timeoutMs int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeoutMs < 0 {
		timeoutMs = 0
	}
	if err := c.conn.SetBusyTimeout(timeoutMs); err != nil {
		return err
	}
	c.busyTimeout = timeoutMs
	return nil
}

// GetBusyTimeout returns the current busy timeout in milliseconds.
// Returns 0 if the busy handler is disabled.
func (c *dbConn) GetBusyTimeout() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyTimeout
}

// Connection exposes the underlying Connection, e.g. from (*sql.Conn).Raw.
// It must not be used concurrently with the database/sql connection.
func (c *dbConn) Connection() *Connection {
	return c.conn
}

// --- Connector Pattern ---

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithBusyTimeout sets the busy timeout in milliseconds.
// Use 0 to disable the busy handler, -1 to use the default (5000ms).
func WithBusyTimeout(ms int) ConnectorOption {
	return func(c *Connector) {
		c.busyTimeout = ms
	}
}

// Connector implements driver.Connector for programmatic configuration.
type Connector struct {
	dsn         string
	busyTimeout int // -1 = use default, 0 = disabled, >0 = custom
}

// NewConnector creates a new Connector with the given DSN and options.
// By default, uses the DefaultBusyTimeout (5000ms).
func NewConnector(dsn string, opts ...ConnectorOption) (*Connector, error) {
	if _, err := parseDSN(dsn); err != nil {
		return nil, err
	}
	c := &Connector{
		dsn:         dsn,
		busyTimeout: -1, // -1 means use default
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	config, err := parseDSN(c.dsn)
	if err != nil {
		return nil, err
	}
	// Override busy timeout from connector if set
	if c.busyTimeout == 0 {
		config.BusyTimeout = -1 // disabled
	} else if c.busyTimeout > 0 {
		config.BusyTimeout = c.busyTimeout
	}
	return openConn(config)
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return &dbDriver{}
}

// Ensure Connector implements driver.Connector
var _ driver.Connector = (*Connector)(nil)

// --- driver.Stmt and friends ---

// Ensure dbStmt implements required interfaces.
var (
	_ driver.Stmt             = (*dbStmt)(nil)
	_ driver.StmtExecContext  = (*dbStmt)(nil)
	_ driver.StmtQueryContext = (*dbStmt)(nil)
)

func (s *dbStmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.stmt != nil && !s.busy {
		s.conn.mu.Lock()
		defer s.conn.mu.Unlock()
		s.conn.closeQuietly(s.stmt)
	}
	return nil
}

func (s *dbStmt) NumInput() int {
	return s.numInputs
}

func (s *dbStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

func (s *dbStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	if s.stmt == nil || s.busy {
		return s.conn.ExecContext(ctx, s.sql, args)
	}
	if err := s.conn.checkOpen(); err != nil {
		return nil, err
	}
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if err := s.rebind(args); err != nil {
		return nil, err
	}
	affected, err := s.conn.executeFully(ctx, s.stmt)
	if err != nil {
		return nil, err
	}
	return &dbResult{
		lastInsertId: s.conn.conn.LastInsertRowID(),
		rowsAffected: affected,
	}, nil
}

func (s *dbStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

func (s *dbStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	if s.stmt == nil || s.busy {
		return s.conn.QueryContext(ctx, s.sql, args)
	}
	if err := s.conn.checkOpen(); err != nil {
		return nil, err
	}
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := s.rebind(args); err != nil {
		return nil, err
	}
	s.busy = true
	return &dbRows{
		conn:   s.conn,
		stmt:   s.stmt,
		parent: s,
	}, nil
}

// rebind rewinds the reused statement and replaces all of its bindings.
func (s *dbStmt) rebind(args []driver.NamedValue) error {
	if err := s.stmt.Reset(); err != nil {
		return err
	}
	if err := s.stmt.ClearBindings(); err != nil {
		return err
	}
	return bindArgs(s.stmt, args)
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// --- driver.Rows ---

// Ensure dbRows implements the required interfaces.
var (
	_ driver.Rows                           = (*dbRows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*dbRows)(nil)
)

func (r *dbRows) Columns() []string {
	if r.columns != nil {
		return r.columns
	}
	n := r.stmt.ColumnCount()
	names := make([]string, n)
	decltypes := make([]string, n)
	for i := 0; i < n; i++ {
		names[i], _ = r.stmt.ColumnName(i)
		decltypes[i], _ = r.stmt.ColumnDeclType(i)
	}
	r.columns = names
	r.decltypes = decltypes
	return r.columns
}

func (r *dbRows) ColumnTypeDatabaseTypeName(index int) string {
	_ = r.Columns()
	if index < 0 || index >= len(r.decltypes) {
		return ""
	}
	return strings.ToUpper(r.decltypes[index])
}

func (r *dbRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	if r.parent == nil {
		r.conn.closeQuietly(r.stmt)
		return nil
	}
	// hand the statement back to its dbStmt
	r.parent.busy = false
	if r.parent.closed {
		r.conn.closeQuietly(r.stmt)
		return nil
	}
	if err := r.stmt.Reset(); err != nil && r.err == nil {
		return err
	}
	return nil
}

func (r *dbRows) Next(dest []driver.Value) error {
	if r.closed || r.done {
		return io.EOF
	}
	if r.err != nil {
		return r.err
	}
	// Ensure decltypes are populated
	_ = r.Columns()
	// step exactly one row: the callback stops stepping and Next resumes it
	code, err := r.stmt.Execute(RowFunc(func(*Row) bool { return false }))
	if err != nil {
		r.err = err
		return err
	}
	if code == SQLITE_DONE {
		r.done = true
		return io.EOF
	}
	// Fill destination
	n := len(r.columns)
	if len(dest) != n {
		return fmt.Errorf("sqlitego: expected %d dests, got %d", n, len(dest))
	}
	for i := 0; i < n; i++ {
		v, err := r.columnValue(i)
		if err != nil {
			r.err = err
			return err
		}
		dest[i] = v
	}
	return nil
}

func (r *dbRows) columnValue(i int) (driver.Value, error) {
	kind, err := r.stmt.ColumnType(i)
	if err != nil {
		return nil, err
	}
	switch kind {
	case SQLITE_NULL:
		return nil, nil
	case SQLITE_INTEGER:
		return Result(r.stmt, i, Int64)
	case SQLITE_FLOAT:
		return Result(r.stmt, i, Float64)
	case SQLITE_TEXT:
		text, err := Result(r.stmt, i, Text)
		if err != nil {
			return nil, err
		}
		// Check if column type indicates a time value
		if i < len(r.decltypes) && isTimeColumn(r.decltypes[i]) {
			if t, err := parseTimeString(text); err == nil {
				return t, nil
			}
		}
		return text, nil
	case SQLITE_BLOB:
		return Result(r.stmt, i, Bytes)
	default:
		return nil, nil
	}
}

// --- driver.Result ---

var _ driver.Result = (*dbResult)(nil)

func (r *dbResult) LastInsertId() (int64, error) {
	return r.lastInsertId, nil
}

func (r *dbResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- driver.Tx ---

var _ driver.Tx = (*dbTx)(nil)

func (tx *dbTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "COMMIT", nil)
	tx.done = true
	return err
}

func (tx *dbTx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "ROLLBACK", nil)
	tx.done = true
	return err
}

// Helpers

// parseDSN supports format: <path>[?mode=ro|rw|rwc|memory&_busy_timeout=<int>&_txlock=deferred|immediate|exclusive]
// file: URIs are handed to SQLite with the underscore parameters removed.
func parseDSN(dsn string) (dsnConfig, error) {
	config := dsnConfig{Path: dsn, Flags: OpenFlagsDefault}
	qMark := strings.IndexByte(dsn, '?')
	if qMark < 0 {
		return config, nil
	}
	config.Path = dsn[:qMark]
	vals, err := url.ParseQuery(dsn[qMark+1:])
	if err != nil {
		return dsnConfig{}, err
	}
	if v := vals.Get("_busy_timeout"); v != "" {
		var timeout int
		if _, err := fmt.Sscanf(v, "%d", &timeout); err != nil {
			return dsnConfig{}, fmt.Errorf("sqlitego: invalid _busy_timeout %q", v)
		}
		config.BusyTimeout = timeout
	}
	if v := vals.Get("_txlock"); v != "" {
		switch strings.ToLower(v) {
		case "deferred", "immediate", "exclusive":
			config.TxLock = strings.ToLower(v)
		default:
			return dsnConfig{}, fmt.Errorf("sqlitego: invalid _txlock %q", v)
		}
	}
	vals.Del("_busy_timeout")
	vals.Del("_txlock")
	if strings.HasPrefix(config.Path, "file:") {
		// SQLite interprets mode and the other URI parameters itself
		if len(vals) > 0 {
			config.Path += "?" + vals.Encode()
		}
		return config, nil
	}
	switch mode := vals.Get("mode"); mode {
	case "":
	case "ro":
		config.Flags = SQLITE_OPEN_READONLY | SQLITE_OPEN_URI
	case "rw":
		config.Flags = SQLITE_OPEN_READWRITE | SQLITE_OPEN_URI
	case "rwc":
		config.Flags = OpenFlagsDefault
	case "memory":
		config.Flags = OpenFlagsDefault | SQLITE_OPEN_MEMORY
	default:
		return dsnConfig{}, fmt.Errorf("sqlitego: invalid mode %q", mode)
	}
	return config, nil
}

func (c *dbConn) executeFully(ctx context.Context, stmt *Statement) (int64, error) {
	before := c.conn.TotalChanges()
	// Exhaust rows until DONE
	_, err := stmt.Execute(RowFunc(func(*Row) bool {
		return ctx == nil || ctx.Err() == nil
	}))
	if err != nil {
		return 0, err
	}
	if ctx != nil && ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if c.conn.TotalChanges() == before {
		// no DML ran; changes() would still report the previous statement
		return 0, nil
	}
	return c.conn.Changes(), nil
}

// bindArgs binds ordered and named values to a statement.
// Named values are resolved with a ':', '@' or '$' prefix, otherwise ordinal positions are used.
func bindArgs(stmt *Statement, args []driver.NamedValue) error {
	// Validate number of inputs if no named args present
	if len(args) > 0 {
		hasNamed := false
		for _, nv := range args {
			if nv.Name != "" {
				hasNamed = true
				break
			}
		}
		if !hasNamed {
			paramCount := stmt.ParameterCount()
			if len(args) != paramCount {
				return fmt.Errorf("sqlitego: got %d args, want %d", len(args), paramCount)
			}
		}
	}
	for idx, nv := range args {
		index := idx
		if nv.Name != "" {
			index = namedIndex(stmt, nv.Name)
			if index < 0 {
				return fmt.Errorf("%w: named parameter %q", ErrUnknownName, nv.Name)
			}
		} else if nv.Ordinal > 0 {
			index = nv.Ordinal - 1
		}
		if err := stmt.Bind(index, argOf(nv.Value)); err != nil {
			return err
		}
	}
	return nil
}

func namedIndex(stmt *Statement, name string) int {
	for _, prefix := range []string{":", "@", "$"} {
		if i := stmt.ParameterIndex(prefix + name); i >= 0 {
			return i
		}
	}
	return -1
}

func argOf(v any) Arg {
	if v == nil {
		return Null()
	}
	switch x := v.(type) {
	case int:
		return Value(Int64, int64(x))
	case int8:
		return Value(Int64, int64(x))
	case int16:
		return Value(Int64, int64(x))
	case int32:
		return Value(Int64, int64(x))
	case int64:
		return Value(Int64, x)
	case uint:
		return Value(Int64, capUint64(uint64(x)))
	case uint8:
		return Value(Int64, int64(x))
	case uint16:
		return Value(Int64, int64(x))
	case uint32:
		return Value(Int64, int64(x))
	case uint64:
		return Value(Int64, capUint64(x))
	case float32:
		return Value(Float64, float64(x))
	case float64:
		return Value(Float64, x)
	case bool:
		return Value(Bool, x)
	case []byte:
		if x == nil {
			return Null()
		}
		return Value(Bytes, x)
	case string:
		return Value(Text, x)
	case time.Time:
		// encode as RFC3339Nano string
		return Value(Time, x)
	case *Data:
		if x == nil {
			return Null()
		}
		switch {
		case x.Encoding() == EncodingOpaque:
			return Value(Blob, x)
		case x.Encoding() == EncodingUTF8:
			return Value(UTF8, x)
		default:
			return Value(UTF16, x)
		}
	default:
		// Fallback to fmt to string
		return Value(Text, fmt.Sprint(v))
	}
}

// cap at MaxInt64 to avoid overflow
func capUint64(x uint64) int64 {
	if x > uint64(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(x)
}

// isTimeColumn checks if the column declared type indicates a time/date column.
// This matches the behavior of github.com/mattn/go-sqlite3.
func isTimeColumn(decltype string) bool {
	if decltype == "" {
		return false
	}
	upper := strings.ToUpper(decltype)
	return upper == "TIMESTAMP" || upper == "DATETIME" || upper == "DATE"
}
