// Package scheduler fires a job on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorhill/cronexpr"
)

const defaultLockTTL = 10 * time.Minute

// Job is the work done at each scheduled time.
type Job func(ctx context.Context) error

// Locker claims a scheduled occurrence so that only one replica runs it.
type Locker interface {
	// Acquire returns false when key is already claimed. A claim is never
	// released; it lapses after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Scheduler struct {
	spec    string
	expr    *cronexpr.Expression
	job     Job
	locker  Locker
	lockTTL time.Duration
	loc     *time.Location
	logger  *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

type Option func(*Scheduler)

// WithLocker makes each occurrence claim a lock before running. The claim is
// held for ttl after the run, so ttl must outlast clock drift between replicas.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLocation evaluates the schedule in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// New parses spec (5, 6 or 7 field cron, or a macro like @daily).
func New(spec string, job Job, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}
	s := &Scheduler{
		spec:    spec,
		expr:    expr,
		job:     job,
		lockTTL: defaultLockTTL,
		loc:     time.Local,
		logger:  logger,
		now:     time.Now,
		after:   time.After,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Next returns the first scheduled time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.expr.Next(t.In(s.loc))
}

// Run blocks, firing the job at each scheduled time until ctx is done.
// Occurrences are run one at a time; one that is missed while the job runs is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "schedule", s.spec)
	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
		now := s.now()
		next := s.Next(now)
		if next.IsZero() {
			return errors.New("cron schedule has no future occurrences")
		}
		s.logger.Debug("next scheduled run", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.after(next.Sub(now)):
			s.fire(ctx, next)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, at time.Time) {
	logger := s.logger.With("scheduled_for", at.Format(time.RFC3339))

	if s.locker != nil {
		key := "scribe:sched:lock:" + strconv.FormatInt(at.Unix(), 10)
		ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			logger.Error("scheduler lock failed", "error", err)
			return
		}
		if !ok {
			logger.Info("scheduled run held by another instance")
			return
		}
	}

	logger.Info("scheduled run firing")
	if err := s.job(ctx); err != nil {
		logger.Error("scheduled run failed", "error", err)
	}
}
