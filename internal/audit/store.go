package audit

import (
	"context"
	"time"
)

// Store persists audit records. Implementations must be safe for concurrent
// use; a single Append is atomic.
type Store interface {
	Append(ctx context.Context, r Record) error
	// Find returns the page of records selected by a sanitized filter, ordered
	// by timestamp then id in f.Sort direction.
	Find(ctx context.Context, f Filter) ([]Record, error)
	Count(ctx context.Context, f Filter) (int64, error)
	// DeleteBefore removes records with a timestamp strictly before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByAction(ctx context.Context, from, to *time.Time) (map[ActionType]int64, error)
	TopAccounts(ctx context.Context, from, to *time.Time, n int) ([]AccountCount, error)
}
