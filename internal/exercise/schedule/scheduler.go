// Package schedule fires lock/unlock commands when an exercise's start or due
// date passes.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"exforge/internal/common/cache"
	"exforge/internal/common/db"
	"exforge/internal/exercise/access"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/repository"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultKey       = "exforge:schedule:access"
	defaultBatchSize = 100
	defaultInterval  = 30 * time.Second
)

type eventKind string

const (
	eventStart eventKind = "start"
	eventDue   eventKind = "due"
	// eventExtended fires at the earliest pending individual due date.
	eventExtended eventKind = "extended"
)

// Config tunes the scheduler.
type Config struct {
	Key       string        `yaml:"key"`
	BatchSize int64         `yaml:"batchSize"`
	Interval  time.Duration `yaml:"interval"`
}

type exerciseLoader interface {
	GetExercise(ctx context.Context, tx db.Transaction, exerciseID int64) (*model.Exercise, error)
	ListStudentParticipations(ctx context.Context, tx db.Transaction, exerciseID int64) ([]*model.Participation, error)
}

// RedisScheduler keeps pending start and due events in a sorted set scored by
// unix time. Removing a member from the set claims its event, so concurrent
// pollers dispatch every event at most once.
type RedisScheduler struct {
	cache     cache.Cache
	exercises exerciseLoader
	messenger access.LockUnlockMessenger
	cfg       Config
	now       func() time.Time
}

func NewRedisScheduler(c cache.Cache, exercises exerciseLoader, messenger access.LockUnlockMessenger, cfg Config) *RedisScheduler {
	if cfg.Key == "" {
		cfg.Key = defaultKey
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &RedisScheduler{cache: c, exercises: exercises, messenger: messenger, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source.
func (s *RedisScheduler) WithClock(now func() time.Time) *RedisScheduler {
	s.now = now
	return s
}

func member(exerciseID int64, kind eventKind) string {
	return fmt.Sprintf("%d:%s", exerciseID, kind)
}

func parseMember(m string) (int64, eventKind, error) {
	idPart, kind, ok := strings.Cut(m, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed schedule member %q", m)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed schedule member %q: %w", m, err)
	}
	switch eventKind(kind) {
	case eventStart, eventDue, eventExtended:
		return id, eventKind(kind), nil
	}
	return 0, "", fmt.Errorf("unknown schedule event %q", kind)
}

// Schedule replaces the pending events of ex with its future start and due
// dates and the earliest future individual due date of its participations.
func (s *RedisScheduler) Schedule(ctx context.Context, ex *model.Exercise) error {
	if err := s.Cancel(ctx, ex.ID); err != nil {
		return err
	}
	now := s.now()
	var members []cache.ZMember
	if start := ex.ParticipationStartDate(); start != nil && start.After(now) {
		members = append(members, cache.ZMember{Score: float64(start.Unix()), Member: member(ex.ID, eventStart)})
	}
	if ex.DueDate != nil && ex.DueDate.After(now) {
		members = append(members, cache.ZMember{Score: float64(ex.DueDate.Unix()), Member: member(ex.ID, eventDue)})
	}
	extended, err := s.nextIndividualDueDate(ctx, ex, now)
	if err != nil {
		return err
	}
	if extended != nil {
		members = append(members, cache.ZMember{Score: float64(extended.Unix()), Member: member(ex.ID, eventExtended)})
	}
	if err := s.cache.ZAdd(ctx, s.cfg.Key, members...); err != nil {
		return fmt.Errorf("schedule exercise %d failed: %w", ex.ID, err)
	}
	logger.Debug(ctx, "exercise dates scheduled", zap.Int64("exercise_id", ex.ID), zap.Int("events", len(members)))
	return nil
}

// Cancel drops every pending event of an exercise.
func (s *RedisScheduler) Cancel(ctx context.Context, exerciseID int64) error {
	_, err := s.cache.ZRem(ctx, s.cfg.Key,
		member(exerciseID, eventStart), member(exerciseID, eventDue), member(exerciseID, eventExtended))
	if err != nil {
		return fmt.Errorf("cancel schedule of exercise %d failed: %w", exerciseID, err)
	}
	return nil
}

// nextIndividualDueDate returns the earliest individual due date after now
// that differs from the exercise due date.
func (s *RedisScheduler) nextIndividualDueDate(ctx context.Context, ex *model.Exercise, now time.Time) (*time.Time, error) {
	participations, err := s.exercises.ListStudentParticipations(ctx, nil, ex.ID)
	if err != nil {
		return nil, fmt.Errorf("list participations of exercise %d failed: %w", ex.ID, err)
	}
	var next *time.Time
	for _, p := range participations {
		due := p.IndividualDueDate
		if due == nil || !due.After(now) || (ex.DueDate != nil && due.Equal(*ex.DueDate)) {
			continue
		}
		if next == nil || due.Before(*next) {
			next = due
		}
	}
	return next, nil
}

// Poll fires every event whose time has passed and returns how many were
// dispatched.
func (s *RedisScheduler) Poll(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.cache.ZRangeByScore(ctx, s.cfg.Key, 0, float64(now.Unix()), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due schedule events failed: %w", err)
	}
	fired := 0
	var errs []error
	for _, m := range due {
		ok, err := s.fire(ctx, m, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			fired++
		}
	}
	return fired, errors.Join(errs...)
}

func (s *RedisScheduler) fire(ctx context.Context, m cache.ZMember, now time.Time) (bool, error) {
	removed, err := s.cache.ZRem(ctx, s.cfg.Key, m.Member)
	if err != nil {
		return false, fmt.Errorf("claim %s failed: %w", m.Member, err)
	}
	if removed == 0 {
		// another poller got it first
		return false, nil
	}

	exerciseID, kind, err := parseMember(m.Member)
	if err != nil {
		logger.Warn(ctx, "drop malformed schedule event", zap.String("member", m.Member), zap.Error(err))
		return false, nil
	}
	ex, err := s.exercises.GetExercise(ctx, nil, exerciseID)
	if err != nil {
		if errors.Is(err, repository.ErrExerciseNotFound) {
			return false, nil
		}
		s.restore(ctx, m)
		return false, fmt.Errorf("load exercise %d failed: %w", exerciseID, err)
	}

	cmd, current, err := s.commandFor(ctx, ex, kind, int64(m.Score))
	if err != nil {
		s.restore(ctx, m)
		return false, err
	}
	if !current {
		logger.Info(ctx, "skip stale schedule event", zap.Int64("exercise_id", exerciseID), zap.String("event", string(kind)))
	} else if err := access.Dispatch(ctx, s.messenger, exerciseID, cmd); err != nil {
		s.restore(ctx, m)
		return false, fmt.Errorf("dispatch %s for exercise %d failed: %w", cmd.Kind, exerciseID, err)
	}
	if kind == eventExtended {
		if err := s.rescheduleExtended(ctx, ex, now); err != nil {
			return current, err
		}
	}
	if !current {
		return false, nil
	}
	logger.Info(ctx, "schedule event fired",
		zap.Int64("exercise_id", exerciseID), zap.String("event", string(kind)), zap.String("command", string(cmd.Kind)))
	return true, nil
}

// restore puts a claimed event back so the next poll retries it.
func (s *RedisScheduler) restore(ctx context.Context, m cache.ZMember) {
	if err := s.cache.ZAdd(ctx, s.cfg.Key, m); err != nil {
		logger.Warn(ctx, "restore schedule event failed", zap.String("member", m.Member), zap.Error(err))
	}
}

func (s *RedisScheduler) rescheduleExtended(ctx context.Context, ex *model.Exercise, now time.Time) error {
	next, err := s.nextIndividualDueDate(ctx, ex, now)
	if err != nil || next == nil {
		return err
	}
	m := cache.ZMember{Score: float64(next.Unix()), Member: member(ex.ID, eventExtended)}
	if err := s.cache.ZAdd(ctx, s.cfg.Key, m); err != nil {
		return fmt.Errorf("reschedule individual due date of exercise %d failed: %w", ex.ID, err)
	}
	return nil
}

// commandFor maps a passed date to its command. The event is stale when
// neither the exercise nor one of its participations still carries the
// scheduled date.
func (s *RedisScheduler) commandFor(ctx context.Context, ex *model.Exercise, kind eventKind, unix int64) (access.Command, bool, error) {
	switch kind {
	case eventStart:
		start := ex.ParticipationStartDate()
		if start == nil || start.Unix() != unix {
			return access.Command{}, false, nil
		}
		if ex.AllowOfflineIDE {
			return access.Command{Kind: access.UnlockWithEarlierStartDateAndLaterDueDate}, true, nil
		}
		return access.Command{Kind: access.UnlockParticipationsWithEarlierStartDateAndLaterDueDate}, true, nil
	case eventDue:
		if ex.DueDate == nil || ex.DueDate.Unix() != unix {
			return access.Command{}, false, nil
		}
		return access.Command{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: true}, true, nil
	case eventExtended:
		participations, err := s.exercises.ListStudentParticipations(ctx, nil, ex.ID)
		if err != nil {
			return access.Command{}, false, fmt.Errorf("list participations of exercise %d failed: %w", ex.ID, err)
		}
		for _, p := range participations {
			if p.IndividualDueDate != nil && p.IndividualDueDate.Unix() == unix {
				return access.Command{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: true}, true, nil
			}
		}
		return access.Command{}, false, nil
	}
	return access.Command{}, false, nil
}

// Run polls until ctx is done.
func (s *RedisScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fired, err := s.Poll(ctx)
			if err != nil {
				logger.Warn(ctx, "schedule poll failed", zap.Error(err))
			}
			if fired > 0 {
				logger.Info(ctx, "schedule poll fired events", zap.Int("fired", fired))
			}
		}
	}
}
