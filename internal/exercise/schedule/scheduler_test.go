package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"exforge/internal/common/cache"
	"exforge/internal/exercise/access"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/schedule"
	"exforge/internal/testutil"
)

type recordingMessenger struct {
	access.LockUnlockMessenger
	sent []access.Command
}

func (m *recordingMessenger) LockParticipationsWithEarlierDueDate(_ context.Context, _ int64, withRepositories bool) error {
	m.sent = append(m.sent, access.Command{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: withRepositories})
	return nil
}

func (m *recordingMessenger) UnlockWithEarlierStartDateAndLaterDueDate(context.Context, int64) error {
	m.sent = append(m.sent, access.Command{Kind: access.UnlockWithEarlierStartDateAndLaterDueDate})
	return nil
}

func (m *recordingMessenger) UnlockParticipationsWithEarlierStartDateAndLaterDueDate(context.Context, int64) error {
	m.sent = append(m.sent, access.Command{Kind: access.UnlockParticipationsWithEarlierStartDateAndLaterDueDate})
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// The source exercise is released 2026-01-10 08:00 and due 2026-01-24 23:59.
func schedulerFixture(t *testing.T) (*testutil.MemoryStore, *recordingMessenger, *clock, *schedule.RedisScheduler, cache.Cache) {
	t.Helper()
	redisCache, _ := testutil.NewRedisCache(t)
	store := testutil.NewMemoryStore()
	store.Seed(testutil.SourceExercise())
	messenger := &recordingMessenger{}
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := schedule.NewRedisScheduler(redisCache, store, messenger, schedule.Config{Key: "test:schedule"}).WithClock(c.now)
	return store, messenger, c, s, redisCache
}

func pending(t *testing.T, c cache.Cache) []string {
	t.Helper()
	members, err := c.ZRangeByScore(context.Background(), "test:schedule", 0, 1e12, 0)
	testutil.AssertNil(t, err)
	var out []string
	for _, m := range members {
		out = append(out, m.Member)
	}
	return out
}

func TestScheduleFiresStartThenDue(t *testing.T) {
	_, messenger, c, s, redisCache := schedulerFixture(t)
	ctx := context.Background()

	testutil.AssertNil(t, s.Schedule(ctx, testutil.SourceExercise()))
	testutil.AssertEqual(t, pending(t, redisCache), []string{"1:start", "1:due"})

	fired, err := s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 0)

	c.t = time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	fired, err = s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 1)
	testutil.AssertEqual(t, messenger.sent, []access.Command{{Kind: access.UnlockWithEarlierStartDateAndLaterDueDate}})
	testutil.AssertEqual(t, pending(t, redisCache), []string{"1:due"})

	c.t = time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	fired, err = s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 1)
	testutil.AssertEqual(t, messenger.sent[1], access.Command{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: true})
	testutil.AssertEqual(t, len(pending(t, redisCache)), 0)
}

func TestScheduleSkipsPastDates(t *testing.T) {
	_, _, c, s, redisCache := schedulerFixture(t)
	c.t = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	testutil.AssertNil(t, s.Schedule(context.Background(), testutil.SourceExercise()))
	testutil.AssertEqual(t, pending(t, redisCache), []string{"1:due"})
}

func TestStartWithoutOfflineIDEUnlocksParticipationsOnly(t *testing.T) {
	store, messenger, c, s, _ := schedulerFixture(t)
	ex := testutil.SourceExercise()
	ex.AllowOfflineIDE = false
	store.Seed(ex)
	ctx := context.Background()

	testutil.AssertNil(t, s.Schedule(ctx, ex))
	c.t = time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	_, err := s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, messenger.sent, []access.Command{{Kind: access.UnlockParticipationsWithEarlierStartDateAndLaterDueDate}})
}

func TestStaleEventsAreDropped(t *testing.T) {
	store, messenger, c, s, redisCache := schedulerFixture(t)
	ctx := context.Background()
	testutil.AssertNil(t, s.Schedule(ctx, testutil.SourceExercise()))

	moved := testutil.SourceExercise()
	later := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	moved.DueDate = &later
	store.Seed(moved)

	c.t = time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	fired, err := s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 1)
	testutil.AssertEqual(t, messenger.sent, []access.Command{{Kind: access.UnlockWithEarlierStartDateAndLaterDueDate}})
	testutil.AssertEqual(t, len(pending(t, redisCache)), 0)
}

func TestCancelAndDeletedExercises(t *testing.T) {
	store, messenger, c, s, redisCache := schedulerFixture(t)
	ctx := context.Background()
	testutil.AssertNil(t, s.Schedule(ctx, testutil.SourceExercise()))

	testutil.AssertNil(t, s.Cancel(ctx, 1))
	testutil.AssertEqual(t, len(pending(t, redisCache)), 0)

	testutil.AssertNil(t, s.Schedule(ctx, testutil.SourceExercise()))
	testutil.AssertNil(t, store.DeleteExercise(ctx, nil, 1))
	c.t = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	fired, err := s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 0)
	testutil.AssertEqual(t, len(messenger.sent), 0)
	testutil.AssertEqual(t, len(pending(t, redisCache)), 0)
}

func TestExtendedParticipationsAreLockedAtTheirOwnDueDate(t *testing.T) {
	store, messenger, c, s, redisCache := schedulerFixture(t)
	ctx := context.Background()
	extended := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	extendedMore := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	store.AddParticipation(&model.Participation{ID: 501, ExerciseID: 1, Type: model.ParticipationStudent, StudentLogin: "alice"})
	store.AddParticipation(&model.Participation{ID: 502, ExerciseID: 1, Type: model.ParticipationStudent, StudentLogin: "bob", IndividualDueDate: &extendedMore})
	store.AddParticipation(&model.Participation{ID: 503, ExerciseID: 1, Type: model.ParticipationStudent, StudentLogin: "carol", IndividualDueDate: &extended})

	testutil.AssertNil(t, s.Schedule(ctx, testutil.SourceExercise()))
	testutil.AssertEqual(t, pending(t, redisCache), []string{"1:start", "1:due", "1:extended"})

	c.t = time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	fired, err := s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 2)
	testutil.AssertEqual(t, pending(t, redisCache), []string{"1:extended"})

	c.t = time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	fired, err = s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 1)
	testutil.AssertEqual(t, pending(t, redisCache), []string{"1:extended"})

	c.t = time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)
	fired, err = s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 1)
	testutil.AssertEqual(t, len(pending(t, redisCache)), 0)

	lock := access.Command{Kind: access.LockParticipationsWithEarlierDueDate, WithRepositories: true}
	testutil.AssertEqual(t, messenger.sent[1:], []access.Command{lock, lock, lock})
}

type failingMessenger struct {
	recordingMessenger
	err error
}

func (m *failingMessenger) LockParticipationsWithEarlierDueDate(context.Context, int64, bool) error {
	return m.err
}

func TestFailedDispatchIsRetried(t *testing.T) {
	redisCache, _ := testutil.NewRedisCache(t)
	store := testutil.NewMemoryStore()
	store.Seed(testutil.SourceExercise())
	messenger := &failingMessenger{err: errors.New("broker down")}
	c := &clock{t: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)}
	s := schedule.NewRedisScheduler(redisCache, store, messenger, schedule.Config{Key: "test:schedule"}).WithClock(c.now)
	ctx := context.Background()

	testutil.AssertNil(t, s.Schedule(ctx, testutil.SourceExercise()))
	c.t = time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	fired, err := s.Poll(ctx)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, fired, 0)
	testutil.AssertEqual(t, pending(t, redisCache), []string{"1:due"})

	messenger.err = nil
	fired, err = s.Poll(ctx)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, fired, 1)
	testutil.AssertEqual(t, len(pending(t, redisCache)), 0)
}
