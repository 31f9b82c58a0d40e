// Package retention runs the scheduled audit log purge.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"arteng.org/internal/audit"
)

// Purger deletes audit records older than the given number of days.
// *audit.Trail satisfies it.
type Purger interface {
	PurgeOlderThan(ctx context.Context, days int) (audit.PurgeResult, error)
}

type Scheduler struct {
	purger  Purger
	days    int
	timeout time.Duration
	cron    *cron.Cron
	log     *zap.Logger
}

// New validates the schedule (standard five-field cron syntax or a
// descriptor such as @daily) and the retention age.
func New(purger Purger, schedule string, days int, log *zap.Logger) (*Scheduler, error) {
	if days < audit.MinRetentionDays {
		return nil, &audit.RetentionError{Days: days}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		purger:  purger,
		days:    days,
		timeout: 5 * time.Minute,
		log:     log,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce purges immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (audit.PurgeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.purger.PurgeOlderThan(ctx, s.days)
	if err != nil {
		if errors.Is(err, audit.ErrRetentionFloor) {
			s.log.Error("retention_misconfigured", zap.Int("days", s.days), zap.Error(err))
		} else {
			s.log.Error("retention_purge_failed", zap.Int("days", s.days), zap.Error(err))
		}
		return res, err
	}
	s.log.Info("retention_purge_complete", zap.Int64("deleted", res.DeletedCount), zap.Time("cutoff", res.Cutoff))
	return res, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running purge to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next reports the next scheduled run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
