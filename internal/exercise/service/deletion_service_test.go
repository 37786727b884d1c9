package service_test

import (
	"context"
	"errors"
	"testing"

	"exforge/internal/common/mq"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/service"
	"exforge/internal/testutil"
	pkgerrors "exforge/pkg/errors"
)

const cleanupTopic = "exercise.cleanup"

func deletionFixture(t *testing.T) (*env, *service.DeletionService, *testutil.MemoryStorage) {
	t.Helper()
	e := newEnv(t)
	alice := testutil.FakeRepositoryURI("PROGSORT", "progsort-alice")
	e.vcs.AddRepository(alice, "main")
	e.store.AddParticipation(&model.Participation{
		ID: 501, ExerciseID: 1, Type: model.ParticipationStudent, StudentLogin: "alice",
		RepositoryURI: alice, BuildPlanID: "PROGSORT-ALICE",
	})

	objects := testutil.NewMemoryStorage()
	objects.Put("exercises", "exercises/1/archive.tar.zst", []byte("one"))
	objects.Put("exercises", "exercises/1/solution.zip", []byte("two"))
	objects.Put("exercises", "exercises/10/archive.tar.zst", []byte("other"))

	queue := mq.NewMemoryQueue()
	consumer := service.NewExerciseCleanupConsumer(queue, e.store, objects, service.CleanupOptions{Bucket: "exercises", BatchSize: 1})
	testutil.AssertNil(t, consumer.Subscribe(context.Background(), cleanupTopic, "exforge-cleanup", nil))
	publisher := service.NewExerciseCleanupPublisher(queue, cleanupTopic, "exercises", "")
	return e, service.NewDeletionService(e.store, e.vcs, e.ci, e.scheduler, publisher), objects
}

func TestDeleteExerciseRemovesEverything(t *testing.T) {
	e, svc, objects := deletionFixture(t)
	source := testutil.SourceExercise()

	testutil.AssertNil(t, svc.DeleteExercise(context.Background(), 1))

	testutil.AssertEqual(t, e.ci.CallsOf("DeleteBuildPlan"), []string{
		"DeleteBuildPlan PROGSORT-BASE",
		"DeleteBuildPlan PROGSORT-SOLUTION",
		"DeleteBuildPlan PROGSORT-ALICE",
	})
	testutil.AssertEqual(t, len(e.ci.Plans), 0)
	testutil.AssertEqual(t, len(e.vcs.Branches), 0)
	_, hasProject := e.vcs.Projects[source.ProjectKey]
	testutil.AssertTrue(t, !hasProject, "vcs project deleted")
	_, hasCIProject := e.ci.Projects[source.ProjectKey]
	testutil.AssertTrue(t, !hasCIProject, "ci project deleted")

	testutil.AssertEqual(t, e.store.ExerciseCount(), 0)
	testutil.AssertEqual(t, e.scheduler.cancelled, []int64{1})

	testutil.AssertTrue(t, !objects.Has("exercises", "exercises/1/archive.tar.zst"), "archive removed")
	testutil.AssertTrue(t, !objects.Has("exercises", "exercises/1/solution.zip"), "solution removed")
	testutil.AssertTrue(t, objects.Has("exercises", "exercises/10/archive.tar.zst"), "other exercise untouched")
}

func TestDeleteExerciseKeepsLocalRecordsWhenVCSFails(t *testing.T) {
	e, svc, objects := deletionFixture(t)
	e.vcs.FailOn["DeleteRepository"] = errors.New("permission denied")

	err := svc.DeleteExercise(context.Background(), 1)
	testutil.AssertCode(t, err, pkgerrors.VCSProvisioningFailed)
	testutil.AssertEqual(t, e.store.ExerciseCount(), 1)
	testutil.AssertTrue(t, objects.Has("exercises", "exercises/1/archive.tar.zst"), "archive kept")
}

func TestDeleteUnknownExercise(t *testing.T) {
	_, svc, _ := deletionFixture(t)

	testutil.AssertCode(t, svc.DeleteExercise(context.Background(), 77), pkgerrors.ExerciseNotFound)
}

func TestCleanupSkipsExistingExercise(t *testing.T) {
	e, _, objects := deletionFixture(t)
	queue := mq.NewMemoryQueue()
	consumer := service.NewExerciseCleanupConsumer(queue, e.store, objects, service.CleanupOptions{Bucket: "exercises"})
	testutil.AssertNil(t, consumer.Subscribe(context.Background(), cleanupTopic, "", nil))

	publisher := service.NewExerciseCleanupPublisher(queue, cleanupTopic, "exercises", "")
	testutil.AssertNil(t, publisher.PublishExerciseDeleted(context.Background(), 1))
	testutil.AssertTrue(t, objects.Has("exercises", "exercises/1/archive.tar.zst"), "archive kept for a live exercise")
}
