package schedule

import (
	"context"
	"testing"
	"time"

	"exforge/internal/exercise/access"
	"exforge/internal/testutil"
)

type countingMessenger struct {
	access.LockUnlockMessenger
	locks int
}

func (m *countingMessenger) LockParticipationsWithEarlierDueDate(context.Context, int64, bool) error {
	m.locks++
	return nil
}

func TestEventListedByTwoPollersFiresOnce(t *testing.T) {
	redisCache, _ := testutil.NewRedisCache(t)
	store := testutil.NewMemoryStore()
	store.Seed(testutil.SourceExercise())
	messenger := &countingMessenger{}
	now := func() time.Time { return time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) }
	first := NewRedisScheduler(redisCache, store, messenger, Config{Key: "test:schedule"}).WithClock(now)
	second := NewRedisScheduler(redisCache, store, messenger, Config{Key: "test:schedule"}).WithClock(now)
	ctx := context.Background()

	testutil.AssertNil(t, first.Schedule(ctx, testutil.SourceExercise()))
	after := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	listed, err := redisCache.ZRangeByScore(ctx, "test:schedule", 0, float64(after.Unix()), 0)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, len(listed), 1)

	ok, err := first.fire(ctx, listed[0], after)
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, ok, "first poller fires")
	ok, err = second.fire(ctx, listed[0], after)
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, !ok, "second poller finds the event claimed")
	testutil.AssertEqual(t, messenger.locks, 1)
}
