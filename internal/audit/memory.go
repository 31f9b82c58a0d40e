package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It backs tests and the
// DATABASE_URL=memory development mode.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, r Record) error {
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) matching(f Filter) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryStore) Find(_ context.Context, f Filter) ([]Record, error) {
	rows := m.matching(f)
	sort.Slice(rows, func(i, j int) bool {
		if f.Sort == SortAsc {
			return recordLess(rows[i], rows[j])
		}
		return recordLess(rows[j], rows[i])
	})
	if f.Skip >= len(rows) {
		return []Record{}, nil
	}
	rows = rows[f.Skip:]
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows, nil
}

func recordLess(a, b Record) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

func (m *MemoryStore) Count(_ context.Context, f Filter) (int64, error) {
	return int64(len(m.matching(f))), nil
}

func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var deleted int64
	for _, r := range m.records {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

func (m *MemoryStore) CountByAction(_ context.Context, from, to *time.Time) (map[ActionType]int64, error) {
	out := make(map[ActionType]int64)
	for _, r := range m.matching(Filter{DateFrom: from, DateTo: to}) {
		out[r.ActionType]++
	}
	return out, nil
}

func (m *MemoryStore) TopAccounts(_ context.Context, from, to *time.Time, n int) ([]AccountCount, error) {
	counts := make(map[string]int64)
	for _, r := range m.matching(Filter{DateFrom: from, DateTo: to}) {
		counts[r.Account]++
	}
	out := make([]AccountCount, 0, len(counts))
	for account, c := range counts {
		out = append(out, AccountCount{Account: account, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Account < out[j].Account
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
