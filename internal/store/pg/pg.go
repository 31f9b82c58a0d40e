// Package pg opens the Postgres audit store through the pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"arteng.org/internal/store"
)

const (
	pgErrUniqueViolation = "23505"
	pgErrQueryCanceled   = "57014"
	pgErrAdminShutdown   = "57P01"
	pgErrCannotConnect   = "57P03"
)

// Dialect is the Postgres flavour of the audit queries.
var Dialect = store.Dialect{
	Name:        "postgres",
	Placeholder: store.DollarPlaceholder,
	EncodeTime:  func(t time.Time) any { return t.UTC() },
	DecodeTime: func(v any) (time.Time, error) {
		t, ok := v.(time.Time)
		if !ok {
			return time.Time{}, fmt.Errorf("unexpected logged_at type %T", v)
		}
		return t.UTC(), nil
	},
	ClassifyError: classify,
}

// Open returns a pooled connection handle. The caller owns Close.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// NewAuditStore wraps db with the Postgres dialect.
func NewAuditStore(db *sql.DB) *store.AuditStore {
	return store.NewAuditStore(db, Dialect)
}

func classify(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch {
		case pgErr.Code == pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case pgErr.Code == pgErrQueryCanceled, pgErr.Code == pgErrAdminShutdown, pgErr.Code == pgErrCannotConnect,
			strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: %s", store.ErrUnavailable, pgErr.Message)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
