package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"arteng.org/internal/ids"
	"arteng.org/internal/obs"
)

const (
	defaultWriteTimeout = 3 * time.Second
	// ListAllCap bounds the legacy unpaginated listing.
	ListAllCap       = 10000
	DefaultRecent    = 10
	TopAccountsLimit = 10
)

// Trail is the audit trail service. Record never blocks the caller's
// primary operation on failure; reads absorb storage errors.
type Trail struct {
	store        Store
	now          func() time.Time
	writeTimeout time.Duration
	sinks        []Sink
	log          *zap.Logger
}

type Option func(*Trail)

func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

// WithWriteTimeout bounds each append, independent of the caller's context.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Trail) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

// WithSinks registers receivers of every successfully stored record.
func WithSinks(sinks ...Sink) Option {
	return func(t *Trail) { t.sinks = append(t.sinks, sinks...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Trail) {
		if l != nil {
			t.log = l
		}
	}
}

func New(store Store, opts ...Option) *Trail {
	t := &Trail{
		store:        store,
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = obs.Logger()
	}
	return t
}

// Record appends one entry. An empty account is attributed to SYSTEM. The
// write survives cancellation of ctx but is bounded by the write timeout. A
// non-nil error is always a *WriteError.
func (t *Trail) Record(ctx context.Context, message string, action ActionType, account string) (Record, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		account = AccountSystem
	}
	ts := t.now().UTC().Truncate(time.Microsecond)
	rec := Record{
		ID:         ids.NewAt(ts),
		Timestamp:  ts,
		Message:    message,
		ActionType: action,
		Account:    account,
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.writeTimeout)
	defer cancel()
	wctx, span := obs.Tracer().Start(wctx, "audit.Record")
	span.SetAttributes(
		attribute.String("audit.action_type", action.String()),
		attribute.String("audit.account", account),
	)
	defer span.End()

	if err := t.store.Append(wctx, rec); err != nil {
		span.SetStatus(codes.Error, err.Error())
		obs.ObserveAuditWrite(action.String(), false)
		t.log.Error("audit_write_failed",
			zap.String("action_type", action.String()),
			zap.String("account", account),
			zap.String("message", message),
			zap.Error(err),
		)
		return Record{}, &WriteError{Record: rec, Err: err}
	}
	obs.ObserveAuditWrite(action.String(), true)

	for _, s := range t.sinks {
		s.Emit(rec)
	}
	return rec, nil
}

// LogSystemEvent records a System action attributed to SYSTEM.
func (t *Trail) LogSystemEvent(ctx context.Context, message string) (Record, error) {
	return t.Record(ctx, message, System, AccountSystem)
}

// Query returns one page of records matching f. On storage failure it returns
// an empty page and records the failure.
func (t *Trail) Query(ctx context.Context, f Filter) Page {
	f = f.Sanitize()
	ctx, span := obs.Tracer().Start(ctx, "audit.Query")
	defer span.End()

	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return newPage(nil, 0, f)
	}

	total, err := t.store.Count(ctx, f)
	if err == nil && total > 0 {
		var rows []Record
		if rows, err = t.store.Find(ctx, f); err == nil {
			return newPage(rows, total, f)
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		t.readFailed(ctx, "query", err)
		return newPage(nil, 0, f)
	}
	return newPage(nil, total, f)
}

func (t *Trail) readFailed(ctx context.Context, op string, err error) {
	t.log.Error("audit_read_failed", zap.String("op", op), zap.Error(err))
	_, _ = t.Record(ctx, fmt.Sprintf("Audit log %s failed: %v", op, err), Error, AccountSystem)
}

// ListAll returns every record newest first, capped at ListAllCap.
func (t *Trail) ListAll(ctx context.Context) []Record {
	rows, err := t.store.Find(ctx, Filter{Limit: ListAllCap, Sort: SortDesc})
	if err != nil {
		t.readFailed(ctx, "list", err)
		return []Record{}
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows
}

// ForAccount pages records whose account equals account exactly.
func (t *Trail) ForAccount(ctx context.Context, account string, f Filter) Page {
	f.AccountExact = account
	return t.Query(ctx, f)
}

func (t *Trail) Search(ctx context.Context, term string, f Filter) Page {
	f.SearchTerm = term
	return t.Query(ctx, f)
}

// DateRange pages records with from <= timestamp <= to. A reversed range
// yields an empty page.
func (t *Trail) DateRange(ctx context.Context, from, to time.Time, f Filter) Page {
	f.DateFrom, f.DateTo = &from, &to
	return t.Query(ctx, f)
}

func (t *Trail) ByActionTypes(ctx context.Context, types []ActionType, f Filter) Page {
	f.ActionTypes = types
	return t.Query(ctx, f)
}

// Recent returns the n newest records. n defaults to DefaultRecent and is
// capped at MaxLimit.
func (t *Trail) Recent(ctx context.Context, n int) []Record {
	if n <= 0 {
		n = DefaultRecent
	}
	return t.Query(ctx, Filter{Limit: n, Sort: SortDesc}).Records
}

// PurgeOlderThan deletes records older than days. Requests below
// MinRetentionDays are rejected before anything is deleted.
func (t *Trail) PurgeOlderThan(ctx context.Context, days int) (PurgeResult, error) {
	if days < MinRetentionDays {
		return PurgeResult{}, &RetentionError{Days: days}
	}
	ctx, span := obs.Tracer().Start(ctx, "audit.PurgeOlderThan")
	defer span.End()

	cutoff := t.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	deleted, err := t.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		t.log.Error("audit_purge_failed", zap.Int("days", days), zap.Error(err))
		return PurgeResult{}, fmt.Errorf("purge audit records: %w", err)
	}
	obs.ObservePurged(deleted)
	t.log.Info("audit_purged", zap.Int64("deleted", deleted), zap.Int("days", days))

	_, _ = t.LogSystemEvent(ctx, fmt.Sprintf("Audit log cleanup: deleted %d records older than %d days", deleted, days))
	return PurgeResult{DeletedCount: deleted, Cutoff: cutoff, Days: days}, nil
}

// Statistics aggregates records in the optional [from, to] window. Every
// action type is present in the breakdown.
func (t *Trail) Statistics(ctx context.Context, from, to *time.Time) (Stats, error) {
	ctx, span := obs.Tracer().Start(ctx, "audit.Statistics")
	defer span.End()

	total, err := t.store.Count(ctx, Filter{DateFrom: from, DateTo: to})
	if err != nil {
		return Stats{}, fmt.Errorf("count audit records: %w", err)
	}
	byAction, err := t.store.CountByAction(ctx, from, to)
	if err != nil {
		return Stats{}, fmt.Errorf("count audit records by action: %w", err)
	}
	top, err := t.store.TopAccounts(ctx, from, to, TopAccountsLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("top audit accounts: %w", err)
	}

	breakdown := make(map[ActionType]int64, len(actionNames))
	for _, a := range ActionTypes() {
		breakdown[a] = byAction[a]
	}
	if top == nil {
		top = []AccountCount{}
	}
	return Stats{Total: total, ByActionType: breakdown, TopAccounts: top, DateFrom: from, DateTo: to}, nil
}
