// Package sqlite opens the embedded audit store on modernc.org/sqlite.
package sqlite

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"arteng.org/internal/store"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// foldLower replaces the builtin lower(), which only folds ASCII.
const foldLower = "fold_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldLower, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return v, nil
		}
	})
}

// Dialect stores timestamps as unix nanoseconds so range filters compare
// integers.
var Dialect = store.Dialect{
	Name:        "sqlite",
	Lower:       foldLower,
	Placeholder: store.QuestionPlaceholder,
	EncodeTime:  func(t time.Time) any { return t.UTC().UnixNano() },
	DecodeTime: func(v any) (time.Time, error) {
		n, ok := v.(int64)
		if !ok {
			return time.Time{}, fmt.Errorf("unexpected logged_at type %T", v)
		}
		return time.Unix(0, n).UTC(), nil
	},
	ClassifyError: classify,
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; an in-memory database also lives only as long as its one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return db, nil
}

func NewAuditStore(db *sql.DB) *store.AuditStore {
	return store.NewAuditStore(db, Dialect)
}

func classify(err error) error {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return err
	}
	switch sqErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
