package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestTrail(t *testing.T, store Store, opts ...Option) (*Trail, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now), WithLogger(zap.NewNop())}, opts...)
	return New(store, opts...), clock
}

// failingStore fails every call with err.
type failingStore struct {
	err error
	MemoryStore
}

func (f *failingStore) Append(context.Context, Record) error        { return f.err }
func (f *failingStore) Find(context.Context, Filter) ([]Record, error) { return nil, f.err }
func (f *failingStore) Count(context.Context, Filter) (int64, error)   { return 0, f.err }
func (f *failingStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

// readFailStore fails reads but keeps writes.
type readFailStore struct {
	*MemoryStore
}

func (readFailStore) Find(context.Context, Filter) ([]Record, error) { return nil, errors.New("read timeout") }
func (readFailStore) Count(context.Context, Filter) (int64, error)   { return 0, errors.New("read timeout") }

func TestRecordDefaultsAccountToSystem(t *testing.T) {
	store := NewMemoryStore()
	trail, _ := newTestTrail(t, store)

	rec, err := trail.Record(context.Background(), "X subscribed", Create, "  ")
	require.NoError(t, err)
	assert.Equal(t, AccountSystem, rec.Account)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.Equal(t, 1, store.Len())
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	trail, _ := newTestTrail(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := trail.Record(ctx, "late write", Error, AccountAnonymous)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestRecordFailureReturnsWriteError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	boom := errors.New("disk full")
	trail, _ := newTestTrail(t, &failingStore{err: boom}, WithLogger(zap.New(core)))

	_, err := trail.Record(context.Background(), "anything", Login, "user_1")
	require.Error(t, err)

	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "user_1", werr.Record.Account)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, logs.FilterMessage("audit_write_failed").Len())
}

func TestRecordFansOutToSinks(t *testing.T) {
	var got []Record
	trail, _ := newTestTrail(t, NewMemoryStore(), WithSinks(SinkFunc(func(r Record) { got = append(got, r) })))

	rec, err := trail.Record(context.Background(), "hello", System, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])

	trail, _ = newTestTrail(t, &failingStore{err: errors.New("down")},
		WithSinks(SinkFunc(func(r Record) { t.Fatalf("sink called for failed write") })))
	_, _ = trail.Record(context.Background(), "lost", System, "")
}

func seed(t *testing.T, trail *Trail, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		account := fmt.Sprintf("user_%d", i%3)
		action := ActionTypes()[i%len(actionNames)]
		_, err := trail.Record(context.Background(), fmt.Sprintf("event %d", i), action, account)
		require.NoError(t, err)
	}
}

func TestQueryPaginationConsistency(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	seed(t, trail, 23)

	page := trail.Query(context.Background(), Filter{Limit: 5, Skip: 10})
	assert.EqualValues(t, 23, page.Total)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 5, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)
	assert.Len(t, page.Records, 5)

	last := trail.Query(context.Background(), Filter{Limit: 5, Skip: 20})
	assert.Equal(t, 5, last.Page)
	assert.False(t, last.HasNext)
	assert.Len(t, last.Records, 3)
}

func TestQueryLimitIsCapped(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	seed(t, trail, 120)

	page := trail.Query(context.Background(), Filter{Limit: 1000})
	assert.Equal(t, MaxLimit, page.Limit)
	assert.Len(t, page.Records, MaxLimit)
	assert.Equal(t, 2, page.TotalPages)
}

func TestQueryOrderingAndIdempotence(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	seed(t, trail, 12)
	ctx := context.Background()

	desc := trail.Query(ctx, Filter{})
	require.Len(t, desc.Records, 12)
	for i := 1; i < len(desc.Records); i++ {
		assert.False(t, desc.Records[i].Timestamp.After(desc.Records[i-1].Timestamp))
	}
	asc := trail.Query(ctx, Filter{Sort: SortAsc})
	assert.Equal(t, desc.Records[0], asc.Records[len(asc.Records)-1])

	assert.Equal(t, desc, trail.Query(ctx, Filter{}))
}

func TestQueryFilters(t *testing.T) {
	trail, clock := newTestTrail(t, NewMemoryStore())
	ctx := context.Background()
	start := clock.now

	_, _ = trail.Record(ctx, "Alice created event Gala", Create, "user_alice")
	_, _ = trail.Record(ctx, "Bob logged in", Login, "user_bob")
	_, _ = trail.Record(ctx, "Exported audit logs", Export, "user_alice")
	_, _ = trail.Record(ctx, "Nightly job", System, AccountSystem)

	assert.EqualValues(t, 2, trail.Query(ctx, Filter{Account: "ALICE"}).Total)
	assert.EqualValues(t, 1, trail.Query(ctx, Filter{SearchTerm: "gala"}).Total)
	// search term matches account as well as message
	assert.EqualValues(t, 1, trail.Query(ctx, Filter{SearchTerm: "user_bob"}).Total)
	assert.EqualValues(t, 2, trail.Query(ctx, Filter{ActionTypes: []ActionType{Login, System}}).Total)
	assert.EqualValues(t, 1, trail.Query(ctx, Filter{Account: "alice", ActionTypes: []ActionType{Export}}).Total)

	from := start.Add(2 * time.Second)
	to := start.Add(3 * time.Second)
	page := trail.Query(ctx, Filter{DateFrom: &from, DateTo: &to})
	assert.EqualValues(t, 2, page.Total, "date bounds are inclusive")
}

func TestQueryReversedDateRangeIsEmpty(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	seed(t, trail, 4)

	d1 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	page := trail.DateRange(context.Background(), d1, d2, Filter{})
	assert.EqualValues(t, 0, page.Total)
	assert.Empty(t, page.Records)
	assert.NotNil(t, page.Records)
}

func TestRecordRoundTrip(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	seed(t, trail, 5)
	ctx := context.Background()

	rec, err := trail.Record(ctx, "Deactivated mailing list 42", Deactivate, "user_round")
	require.NoError(t, err)

	bySearch := trail.Query(ctx, Filter{SearchTerm: rec.Message})
	require.Len(t, bySearch.Records, 1)
	assert.Equal(t, rec, bySearch.Records[0])

	byAccount := trail.Query(ctx, Filter{Account: rec.Account})
	require.Len(t, byAccount.Records, 1)
	assert.Equal(t, rec, byAccount.Records[0])
}

func TestRecentReturnsNewest(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	seed(t, trail, 3)
	ctx := context.Background()

	rec, err := trail.Record(ctx, "X subscribed", Create, AccountSystem)
	require.NoError(t, err)

	recent := trail.Recent(ctx, 1)
	require.Len(t, recent, 1)
	assert.Equal(t, rec, recent[0])

	assert.Len(t, trail.Recent(ctx, 0), 4)
	seed(t, trail, 120)
	assert.Len(t, trail.Recent(ctx, 500), MaxLimit)
}

func TestForAccountIsExact(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	ctx := context.Background()
	_, _ = trail.Record(ctx, "a", Login, "user_1")
	_, _ = trail.Record(ctx, "b", Login, "user_10")

	page := trail.ForAccount(ctx, "user_1", Filter{})
	require.Len(t, page.Records, 1)
	assert.Equal(t, "user_1", page.Records[0].Account)
}

func TestListAllNewestFirst(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	seed(t, trail, 130)

	all := trail.ListAll(context.Background())
	require.Len(t, all, 130)
	assert.Equal(t, "event 129", all[0].Message)
}

func TestQueryStorageFailureIsAbsorbed(t *testing.T) {
	store := readFailStore{NewMemoryStore()}
	trail, _ := newTestTrail(t, store)

	page := trail.Query(context.Background(), Filter{Limit: 10})
	assert.EqualValues(t, 0, page.Total)
	assert.Empty(t, page.Records)

	require.Equal(t, 1, store.Len())
	store.mu.RLock()
	failure := store.records[0]
	store.mu.RUnlock()
	assert.Equal(t, Error, failure.ActionType)
	assert.Equal(t, AccountSystem, failure.Account)
}

func TestPurgeRejectsBelowFloor(t *testing.T) {
	store := NewMemoryStore()
	trail, _ := newTestTrail(t, store)
	_ = store.Append(context.Background(), Record{ID: "old", Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})

	for _, days := range []int{-1, 0, 29} {
		_, err := trail.PurgeOlderThan(context.Background(), days)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRetentionFloor)
		var rerr *RetentionError
		assert.True(t, errors.As(err, &rerr))
	}
	assert.Equal(t, 1, store.Len(), "no records removed")
}

func TestPurgeDeletesOldAndRecordsSummary(t *testing.T) {
	store := NewMemoryStore()
	trail, clock := newTestTrail(t, store)
	ctx := context.Background()

	now := clock.now
	_ = store.Append(ctx, Record{ID: "a", Timestamp: now.AddDate(0, 0, -120), Account: "x"})
	_ = store.Append(ctx, Record{ID: "b", Timestamp: now.AddDate(0, 0, -95), Account: "x"})
	_ = store.Append(ctx, Record{ID: "c", Timestamp: now.AddDate(0, 0, -10), Account: "x"})

	res, err := trail.PurgeOlderThan(ctx, 90)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.DeletedCount)
	assert.Equal(t, 90, res.Days)

	recent := trail.Recent(ctx, 1)
	require.Len(t, recent, 1)
	assert.Equal(t, System, recent[0].ActionType)
	assert.Contains(t, recent[0].Message, "deleted 2 records")
	assert.Equal(t, 2, store.Len())
}

func TestPurgeStoreFailure(t *testing.T) {
	trail, _ := newTestTrail(t, &failingStore{err: errors.New("locked")})
	_, err := trail.PurgeOlderThan(context.Background(), 90)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetentionFloor)
}

func TestStatistics(t *testing.T) {
	trail, _ := newTestTrail(t, NewMemoryStore())
	ctx := context.Background()
	_, _ = trail.Record(ctx, "1", Login, "user_a")
	_, _ = trail.Record(ctx, "2", Login, "user_a")
	_, _ = trail.Record(ctx, "3", Export, "user_b")

	stats, err := trail.Statistics(ctx, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.Len(t, stats.ByActionType, len(ActionTypes()))
	assert.EqualValues(t, 2, stats.ByActionType[Login])
	assert.EqualValues(t, 0, stats.ByActionType[SignUp])
	require.Len(t, stats.TopAccounts, 2)
	assert.Equal(t, AccountCount{Account: "user_a", Count: 2}, stats.TopAccounts[0])
}

func TestConcurrentRecordsAreAllKept(t *testing.T) {
	store := NewMemoryStore()
	trail := New(store, WithLogger(zap.NewNop()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = trail.Record(context.Background(), "denied", Error, "user_same")
		}()
	}
	wg.Wait()

	page := trail.Query(context.Background(), Filter{Limit: 100})
	assert.EqualValues(t, 50, page.Total)
	seen := make(map[string]bool)
	for _, r := range page.Records {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}
