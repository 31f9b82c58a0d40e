package audit

import (
	"errors"
	"fmt"
)

var (
	ErrRetentionFloor = errors.New("audit: retention below minimum")
	ErrNotFound       = errors.New("audit: not found")
)

// MinRetentionDays is the youngest age, in days, a purge may delete.
const MinRetentionDays = 30

// WriteError reports a failed audit append. Callers may discard it; the
// failure has already been logged and counted.
type WriteError struct {
	Record Record
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audit write %s/%s failed: %v", e.Record.ActionType, e.Record.Account, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// RetentionError rejects a purge younger than MinRetentionDays.
type RetentionError struct {
	Days int
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention of %d days is below the minimum of %d days", e.Days, MinRetentionDays)
}

func (e *RetentionError) Unwrap() error { return ErrRetentionFloor }
