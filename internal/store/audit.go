// Package store implements audit.Store on database/sql. Dialect specifics
// live in the pg and sqlite subpackages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"arteng.org/internal/audit"
)

var (
	ErrUnavailable = errors.New("store: database unavailable")
	ErrConflict    = errors.New("store: conflicting write")
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	EncodeTime  func(time.Time) any
	// DecodeTime converts a scanned logged_at value.
	DecodeTime func(v any) (time.Time, error)
	// ClassifyError maps driver errors onto ErrUnavailable/ErrConflict.
	ClassifyError func(err error) error
	// Lower names a SQL function that lowercases text the way strings.ToLower
	// does. Defaults to lower.
	Lower string
}

// DollarPlaceholder renders $1, $2, ...
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// QuestionPlaceholder renders ? for every parameter.
func QuestionPlaceholder(int) string { return "?" }

// AuditStore persists audit records in the audit_logs table.
type AuditStore struct {
	db *sql.DB
	d  Dialect
}

var _ audit.Store = (*AuditStore)(nil)

func NewAuditStore(db *sql.DB, d Dialect) *AuditStore {
	if d.ClassifyError == nil {
		d.ClassifyError = func(err error) error { return err }
	}
	if d.Lower == "" {
		d.Lower = "lower"
	}
	return &AuditStore{db: db, d: d}
}

func (s *AuditStore) DB() *sql.DB { return s.db }

func (s *AuditStore) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *AuditStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

func (s *AuditStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s audit_logs (%s): %w", op, s.d.Name, s.d.ClassifyError(err))
}

func (s *AuditStore) Append(ctx context.Context, r audit.Record) error {
	q := fmt.Sprintf(`insert into audit_logs (id, logged_at, message, action_type, account) values (%s, %s, %s, %s, %s)`,
		s.d.Placeholder(1), s.d.Placeholder(2), s.d.Placeholder(3), s.d.Placeholder(4), s.d.Placeholder(5))
	_, err := s.db.ExecContext(ctx, q, r.ID, s.d.EncodeTime(r.Timestamp), r.Message, int(r.ActionType), r.Account)
	return s.wrap("insert", err)
}

func (s *AuditStore) Find(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	w := s.where(f)
	dir := "desc"
	if f.Sort == audit.SortAsc {
		dir = "asc"
	}
	q := `select id, logged_at, message, action_type, account from audit_logs` + w.clause() +
		fmt.Sprintf(` order by logged_at %s, id %s`, dir, dir)
	if f.Limit > 0 {
		q += fmt.Sprintf(` limit %s offset %s`, w.bind(f.Limit), w.bind(f.Skip))
	}

	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, s.wrap("select", err)
	}
	defer rows.Close()

	out := make([]audit.Record, 0)
	for rows.Next() {
		var (
			r      audit.Record
			logged any
			action int
		)
		if err := rows.Scan(&r.ID, &logged, &r.Message, &action, &r.Account); err != nil {
			return nil, s.wrap("scan", err)
		}
		if r.Timestamp, err = s.d.DecodeTime(logged); err != nil {
			return nil, fmt.Errorf("decode logged_at for %s: %w", r.ID, err)
		}
		r.ActionType = audit.ActionType(action)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("iterate", err)
	}
	return out, nil
}

func (s *AuditStore) Count(ctx context.Context, f audit.Filter) (int64, error) {
	w := s.where(f)
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from audit_logs`+w.clause(), w.args...).Scan(&n)
	if err != nil {
		return 0, s.wrap("count", err)
	}
	return n, nil
}

func (s *AuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from audit_logs where logged_at < `+s.d.Placeholder(1), s.d.EncodeTime(cutoff.UTC()))
	if err != nil {
		return 0, s.wrap("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrap("delete", err)
	}
	return n, nil
}

func (s *AuditStore) CountByAction(ctx context.Context, from, to *time.Time) (map[audit.ActionType]int64, error) {
	w := s.where(audit.Filter{DateFrom: from, DateTo: to})
	rows, err := s.db.QueryContext(ctx, `select action_type, count(*) from audit_logs`+w.clause()+` group by action_type`, w.args...)
	if err != nil {
		return nil, s.wrap("count by action", err)
	}
	defer rows.Close()

	out := make(map[audit.ActionType]int64)
	for rows.Next() {
		var action int
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, s.wrap("scan", err)
		}
		out[audit.ActionType(action)] = n
	}
	return out, s.wrap("iterate", rows.Err())
}

func (s *AuditStore) TopAccounts(ctx context.Context, from, to *time.Time, n int) ([]audit.AccountCount, error) {
	w := s.where(audit.Filter{DateFrom: from, DateTo: to})
	q := `select account, count(*) as n from audit_logs` + w.clause() +
		` group by account order by n desc, account asc limit ` + w.bind(n)
	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, s.wrap("top accounts", err)
	}
	defer rows.Close()

	out := make([]audit.AccountCount, 0, n)
	for rows.Next() {
		var c audit.AccountCount
		if err := rows.Scan(&c.Account, &c.Count); err != nil {
			return nil, s.wrap("scan", err)
		}
		out = append(out, c)
	}
	return out, s.wrap("iterate", rows.Err())
}

type whereBuilder struct {
	d     Dialect
	conds []string
	args  []any
}

func (w *whereBuilder) bind(v any) string {
	w.args = append(w.args, v)
	return w.d.Placeholder(len(w.args))
}

func (w *whereBuilder) like(col, pattern string) string {
	return w.d.Lower + "(" + col + ") like " + w.bind(pattern) + ` escape '\'`
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " where " + strings.Join(w.conds, " and ")
}

func (s *AuditStore) where(f audit.Filter) *whereBuilder {
	w := &whereBuilder{d: s.d}
	if f.DateFrom != nil {
		w.conds = append(w.conds, "logged_at >= "+w.bind(s.d.EncodeTime(f.DateFrom.UTC())))
	}
	if f.DateTo != nil {
		w.conds = append(w.conds, "logged_at <= "+w.bind(s.d.EncodeTime(f.DateTo.UTC())))
	}
	if len(f.ActionTypes) > 0 {
		ph := make([]string, len(f.ActionTypes))
		for i, a := range f.ActionTypes {
			ph[i] = w.bind(int(a))
		}
		w.conds = append(w.conds, "action_type in ("+strings.Join(ph, ", ")+")")
	}
	if f.AccountExact != "" {
		w.conds = append(w.conds, "account = "+w.bind(f.AccountExact))
	}
	if f.Account != "" {
		w.conds = append(w.conds, w.like("account", likePattern(f.Account)))
	}
	if f.SearchTerm != "" {
		p := likePattern(f.SearchTerm)
		w.conds = append(w.conds, "("+w.like("message", p)+" or "+w.like("account", p)+")")
	}
	return w
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-insensitive substring pattern for term.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
