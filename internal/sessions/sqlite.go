package sessions

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Embedded drivers. The pure-Go driver ("sqlite") is the default;
	// the cgo driver ("sqlite3") remains selectable for environments
	// that already vendor it.
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DefaultDriver is the pure-Go embedded driver.
const DefaultDriver = "sqlite"

// DataDir returns the dedicated data directory under the user home,
// creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	dir := filepath.Join(home, ".deskagent")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

// Open opens (creating if absent) the session database at path using the
// named driver. An empty path selects the default location under the
// user home; an empty driver selects the pure-Go driver.
func Open(path, driver string) (*sql.DB, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	if path == "" {
		dir, err := DataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "sessions.db")
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// A single writer plus the maintenance goroutine is the whole
	// workload; keep the pool small so the embedded file lock is never
	// contended.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}
