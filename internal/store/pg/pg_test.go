package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"arteng.org/internal/audit"
	"arteng.org/internal/store"
)

func newMockStore(t *testing.T) (*store.AuditStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewAuditStore(db), mock
}

func TestAppend(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	mock.ExpectExec(`insert into audit_logs \(id, logged_at, message, action_type, account\) values \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs("01J0000000000000000000000A", ts, "Exported audit logs", int(audit.Export), "user_1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Append(context.Background(), audit.Record{
		ID: "01J0000000000000000000000A", Timestamp: ts, Message: "Exported audit logs", ActionType: audit.Export, Account: "user_1",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindBuildsFilteredQuery(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`select id, logged_at, message, action_type, account from audit_logs where logged_at >= \$1 and action_type in \(\$2, \$3\) and lower\(account\) like \$4 escape '\\' and \(lower\(message\) like \$5 escape '\\' or lower\(account\) like \$6 escape '\\'\) order by logged_at asc, id asc limit \$7 offset \$8`).
		WithArgs(from, int(audit.Login), int(audit.Error), "%user\\_1%", "%100\\%%", "%100\\%%", 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id", "logged_at", "message", "action_type", "account"}).
			AddRow("a", ts, "Login 100% ok", int(audit.Login), "user_1"))

	rows, err := s.Find(context.Background(), audit.Filter{
		Limit: 20, Skip: 40, Sort: audit.SortAsc, DateFrom: &from,
		ActionTypes: []audit.ActionType{audit.Login, audit.Error},
		Account:     "USER_1",
		SearchTerm:  "100%",
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 || rows[0].ActionType != audit.Login || !rows[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountAndDelete(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`select count\(\*\) from audit_logs where account = \$1`).
		WithArgs("user_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectExec(`delete from audit_logs where logged_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.Count(context.Background(), audit.Filter{AccountExact: "user_1"})
	if err != nil || n != 7 {
		t.Fatalf("count: %d %v", n, err)
	}
	deleted, err := s.DeleteBefore(context.Background(), cutoff)
	if err != nil || deleted != 3 {
		t.Fatalf("delete: %d %v", deleted, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatisticsQueries(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`select action_type, count\(\*\) from audit_logs group by action_type`).
		WillReturnRows(sqlmock.NewRows([]string{"action_type", "count"}).AddRow(1, 4).AddRow(8, 2))
	mock.ExpectQuery(`select account, count\(\*\) as n from audit_logs group by account order by n desc, account asc limit \$1`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"account", "n"}).AddRow("user_1", 5).AddRow("ANONYMOUS", 1))

	byAction, err := s.CountByAction(context.Background(), nil, nil)
	if err != nil || byAction[audit.Login] != 4 || byAction[audit.Error] != 2 {
		t.Fatalf("count by action: %v %v", byAction, err)
	}
	top, err := s.TopAccounts(context.Background(), nil, nil, 10)
	if err != nil || len(top) != 2 || top[0].Account != "user_1" {
		t.Fatalf("top accounts: %v %v", top, err)
	}
}

func TestClassifyErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`insert into audit_logs`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, Message: "duplicate key"})

	err := s.Append(context.Background(), audit.Record{ID: "dup"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := classify(&pgconn.PgError{Code: "08006"}); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	other := errors.New("boom")
	if err := classify(other); err != other {
		t.Fatalf("unexpected classification: %v", err)
	}
}
