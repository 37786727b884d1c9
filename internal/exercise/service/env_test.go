package service_test

import (
	"context"
	"testing"

	"exforge/internal/common/cache"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/provision"
	"exforge/internal/exercise/service"
	"exforge/internal/testutil"
)

type fakeScheduler struct {
	scheduled []int64
	cancelled []int64
}

func (s *fakeScheduler) Schedule(_ context.Context, ex *model.Exercise) error {
	s.scheduled = append(s.scheduled, ex.ID)
	return nil
}

func (s *fakeScheduler) Cancel(_ context.Context, exerciseID int64) error {
	s.cancelled = append(s.cancelled, exerciseID)
	return nil
}

type outcomeRecorder struct {
	outcomes []string
}

func (r *outcomeRecorder) Finished(operation, outcome string) {
	r.outcomes = append(r.outcomes, operation+" "+outcome)
}

type env struct {
	store     *testutil.MemoryStore
	vcs       *testutil.FakeVCS
	ci        *testutil.FakeCI
	git       *testutil.FakeGit
	db        *testutil.FakeDB
	guard     cache.Cache
	scheduler *fakeScheduler
	outcomes  *outcomeRecorder
}

// newEnv stores SourceExercise as exercise 1 together with its repositories
// and build plans.
func newEnv(t *testing.T) *env {
	t.Helper()
	guard, _ := testutil.NewRedisCache(t)
	e := &env{
		store:     testutil.NewMemoryStore(),
		vcs:       testutil.NewFakeVCS(),
		ci:        testutil.NewFakeCI(),
		git:       testutil.NewFakeGit(),
		db:        &testutil.FakeDB{},
		guard:     guard,
		scheduler: &fakeScheduler{},
		outcomes:  &outcomeRecorder{},
	}
	e.store.Seed(testutil.SourceExercise())
	testutil.SeedSourceInfrastructure(e.vcs, e.ci)
	return e
}

func (e *env) deps() service.ImportDeps {
	return service.ImportDeps{
		Database:    e.db,
		Store:       e.store,
		Provisioner: provision.NewProvisioner(e.vcs, e.ci, e.git, provision.Options{}),
		VCS:         e.vcs,
		CI:          e.ci,
		Guard:       e.guard,
		Scheduler:   e.scheduler,
		Observer:    e.outcomes,
	}
}
