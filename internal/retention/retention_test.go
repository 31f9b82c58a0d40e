package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"arteng.org/internal/audit"
)

type purgerFunc func(ctx context.Context, days int) (audit.PurgeResult, error)

func (f purgerFunc) PurgeOlderThan(ctx context.Context, days int) (audit.PurgeResult, error) {
	return f(ctx, days)
}

func TestNewValidates(t *testing.T) {
	ok := purgerFunc(func(context.Context, int) (audit.PurgeResult, error) { return audit.PurgeResult{}, nil })

	if _, err := New(ok, "30 3 * * *", 7, nil); !errors.Is(err, audit.ErrRetentionFloor) {
		t.Fatalf("expected retention floor error, got %v", err)
	}
	if _, err := New(ok, "every tuesday", 90, nil); err == nil {
		t.Fatalf("expected schedule parse error")
	}
	s, err := New(ok, "@daily", 90, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Stop(context.Background())
	if next := s.Next(); next.IsZero() || next.Hour() != 0 {
		t.Fatalf("unexpected next run %v", next)
	}
}

func TestRunOncePassesRetentionDays(t *testing.T) {
	var calls atomic.Int32
	p := purgerFunc(func(ctx context.Context, days int) (audit.PurgeResult, error) {
		calls.Add(1)
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("purge must run with a deadline")
		}
		return audit.PurgeResult{DeletedCount: 4, Days: days}, nil
	})
	s, err := New(p, "30 3 * * *", 365, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := s.RunOnce(context.Background())
	if err != nil || res.Days != 365 || res.DeletedCount != 4 || calls.Load() != 1 {
		t.Fatalf("unexpected run: %+v %v", res, err)
	}
}

func TestRealTrailPurge(t *testing.T) {
	store := audit.NewMemoryStore()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_ = store.Append(context.Background(), audit.Record{ID: "old", Timestamp: now.AddDate(-2, 0, 0)})
	trail := audit.New(store, audit.WithClock(func() time.Time { return now }))

	s, err := New(trail, "@weekly", 365, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := s.RunOnce(context.Background())
	if err != nil || res.DeletedCount != 1 {
		t.Fatalf("unexpected purge: %+v %v", res, err)
	}
}
