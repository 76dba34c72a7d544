package sqlitego

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

// LibraryConfig describes where the SQLite shared library is loaded from.
type LibraryConfig struct {
	// Path to the shared library. If empty, SQLITEGO_LIB_PATH is consulted and
	// then the platform default names are tried in order.
	Path string
}

var (
	libraryOnce sync.Once
	libraryErr  error
	// address of sqlite3_free, used as the native destructor of engine-allocated buffers
	sqliteFreeAddr uintptr
)

// InitLibrary loads the SQLite library and registers all extern methods.
// Only the first call has an effect; later calls return the first result.
func InitLibrary(config LibraryConfig) error {
	libraryOnce.Do(func() {
		libraryErr = initLibrary(config)
	})
	return libraryErr
}

func initLibrary(config LibraryConfig) error {
	handle, err := loadLibrary(libraryCandidates(config))
	if err != nil {
		return fmt.Errorf("sqlitego: unable to load sqlite library: %w", err)
	}
	if err := register_sqlite3(handle); err != nil {
		return fmt.Errorf("sqlitego: unable to register sqlite library: %w", err)
	}
	free, err := lookupSymbol(handle, "sqlite3_free")
	if err != nil {
		return fmt.Errorf("sqlitego: unable to resolve sqlite3_free: %w", err)
	}
	sqliteFreeAddr = free
	logf(LogLevelDebug, "library", "loaded sqlite %s", sqlite3_libversion())
	return nil
}

func libraryCandidates(config LibraryConfig) []string {
	if config.Path != "" {
		return []string{config.Path}
	}
	if p := os.Getenv("SQLITEGO_LIB_PATH"); p != "" {
		return []string{p}
	}
	switch runtime.GOOS {
	case "darwin", "ios":
		return []string{"libsqlite3.dylib", "/usr/lib/libsqlite3.dylib", "/opt/homebrew/opt/sqlite/lib/libsqlite3.dylib"}
	case "windows":
		return []string{"sqlite3.dll", "winsqlite3.dll"}
	default:
		return []string{"libsqlite3.so.0", "libsqlite3.so"}
	}
}

// loadLibrary tries each candidate until one opens.
func loadLibrary(candidates []string) (uintptr, error) {
	var errs []error
	for _, name := range candidates {
		handle, err := openLibrary(name)
		if err == nil {
			return handle, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return 0, errors.Join(errs...)
}

func requireLibrary() error {
	return InitLibrary(LibraryConfig{})
}
