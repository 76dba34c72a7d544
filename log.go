package sqlitego

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"
)

type LogLevel int32

const (
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// Log is a single diagnostic event.
type Log struct {
	Message   string
	Target    string
	Timestamp time.Time
	Level     LogLevel
}

// Logger callback signature
type Logger func(log Log)

type Config struct {
	// Logger is an optional callback to receive diagnostic events, most notably
	// failures on release paths that cannot be returned to the caller.
	// If nil, events at LogLevel or below are written to stderr.
	Logger Logger
	// LogLevel is the most verbose level forwarded to Logger. Defaults to LogLevelWarn.
	LogLevel LogLevel
	// LibraryPath overrides the SQLite shared library location.
	LibraryPath string
}

type logSink struct {
	logger Logger
	level  LogLevel
}

var currentSink atomic.Pointer[logSink]

var stderrLogger = log.New(os.Stderr, "sqlitego: ", log.LstdFlags)

func init() {
	currentSink.Store(&logSink{logger: defaultLogger, level: LogLevelWarn})
}

func defaultLogger(l Log) {
	stderrLogger.Printf("[%s] %s: %s", l.Level, l.Target, l.Message)
}

// Setup installs the diagnostic logger and loads the SQLite library.
// Calling Setup is optional: Open loads the library on first use.
func Setup(config Config) error {
	sink := &logSink{logger: config.Logger, level: config.LogLevel}
	if sink.logger == nil {
		sink.logger = defaultLogger
	}
	if sink.level == 0 {
		sink.level = LogLevelWarn
	}
	currentSink.Store(sink)
	return InitLibrary(LibraryConfig{Path: config.LibraryPath})
}

func logf(level LogLevel, target string, format string, args ...any) {
	sink := currentSink.Load()
	if level > sink.level {
		return
	}
	sink.logger(Log{
		Message:   fmt.Sprintf(format, args...),
		Target:    target,
		Timestamp: time.Now(),
		Level:     level,
	})
}
