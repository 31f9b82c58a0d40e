package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeClamps(t *testing.T) {
	f := Filter{Limit: 1000, Skip: -4, Sort: "sideways", ActionTypes: []ActionType{Login, Login, ActionType(42)}}.Sanitize()
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, 0, f.Skip)
	assert.Equal(t, SortDesc, f.Sort)
	assert.Equal(t, []ActionType{Login}, f.ActionTypes)

	assert.Equal(t, DefaultLimit, Filter{}.Sanitize().Limit)
}

func TestParseFilterIgnoresMalformedValues(t *testing.T) {
	q := url.Values{
		"limit":       {"abc"},
		"skip":        {"-5"},
		"sort":        {"ASC"},
		"dateFrom":    {"2026-01-01"},
		"dateTo":      {"not-a-date"},
		"actionTypes": {"login,Export", "9", "bogus"},
		"account":     {" user_1 "},
		"searchTerm":  {"gala"},
	}
	f := ParseFilter(q)

	assert.Equal(t, DefaultLimit, f.Limit)
	assert.Equal(t, 0, f.Skip)
	assert.Equal(t, SortAsc, f.Sort)
	require.NotNil(t, f.DateFrom)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *f.DateFrom)
	assert.Nil(t, f.DateTo)
	assert.Equal(t, []ActionType{Login, Export, SignUp}, f.ActionTypes)
	assert.Equal(t, "user_1", f.Account)
	assert.Equal(t, "gala", f.SearchTerm)
}

func TestParseActionType(t *testing.T) {
	for in, want := range map[string]ActionType{"create": Create, "SIGNUP": SignUp, "8": Error, " Delete ": Delete} {
		got, err := ParseActionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "10", "-1", "Purge"} {
		_, err := ParseActionType(in)
		assert.Error(t, err, in)
	}
}

func TestRecordJSONUsesActionName(t *testing.T) {
	rec := Record{ID: "id1", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Message: "m", ActionType: Export, Account: "a"}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id1","timestamp":"2026-01-01T00:00:00Z","message":"m","actionType":"Export","account":"a"}`, string(b))

	var back Record
	require.NoError(t, json.Unmarshal([]byte(`{"actionType":"7"}`), &back))
	assert.Equal(t, Export, back.ActionType)
}

type chanPublisher struct {
	mu   sync.Mutex
	got  []Record
	fail bool
	gate chan struct{}
}

func (p *chanPublisher) Publish(_ context.Context, r Record) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("unavailable")
	}
	p.got = append(p.got, r)
	return nil
}

func TestAsyncSinkDeliversOnClose(t *testing.T) {
	pub := &chanPublisher{}
	s := NewAsyncSink(pub, 8, time.Second, nil)
	for _, id := range []string{"a", "b", "c"} {
		s.Emit(Record{ID: id})
	}
	s.Close()

	require.Len(t, pub.got, 3)
	assert.Equal(t, "c", pub.got[2].ID)
	assert.EqualValues(t, 0, s.Dropped())
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	pub := &chanPublisher{gate: make(chan struct{})}
	s := NewAsyncSink(pub, 1, time.Second, nil)

	// first record is taken by the worker and blocks on the gate, the
	// second fills the buffer; the rest are dropped
	s.Emit(Record{ID: "1"})
	require.Eventually(t, func() bool { return len(s.ch) == 0 }, time.Second, time.Millisecond)
	s.Emit(Record{ID: "2"})
	s.Emit(Record{ID: "3"})
	s.Emit(Record{ID: "4"})

	close(pub.gate)
	s.Close()
	assert.EqualValues(t, 2, s.Dropped())
	assert.Len(t, pub.got, 2)
}

func TestAsyncSinkDropsAfterClose(t *testing.T) {
	pub := &chanPublisher{}
	s := NewAsyncSink(pub, 4, time.Second, nil)
	s.Emit(Record{ID: "before"})
	s.Close()

	require.NotPanics(t, func() { s.Emit(Record{ID: "late"}) })
	s.Close()
	assert.Len(t, pub.got, 1)
	assert.EqualValues(t, 1, s.Dropped())
}
