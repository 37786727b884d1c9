package service_test

import (
	"context"
	"errors"
	"testing"

	"exforge/internal/exercise/clone"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/service"
	"exforge/internal/testutil"
	pkgerrors "exforge/pkg/errors"
)

func newShell() *model.Exercise {
	ex := testutil.TargetShell()
	ex.AuxiliaryRepositories = []*model.AuxiliaryRepository{{Name: "lib", CheckoutDirectory: "lib"}}
	return ex
}

func TestCreateExerciseProvisionsEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ex, err := service.NewProvisionService(e.deps()).CreateExercise(ctx, newShell())
	testutil.AssertNil(t, err)

	stored, err := e.store.LoadGraph(ctx, nil, ex.ID)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, stored.ProjectKey, "ALGOSORT2")
	testutil.AssertEqual(t, stored.TemplateParticipation.RepositoryURI, testutil.FakeRepositoryURI("ALGOSORT2", "algosort2-exercise"))
	testutil.AssertEqual(t, stored.TemplateParticipation.BuildPlanID, "ALGOSORT2-BASE")
	testutil.AssertEqual(t, stored.AuxiliaryRepositories[0].RepositoryURI, testutil.FakeRepositoryURI("ALGOSORT2", "algosort2-lib"))
	testutil.AssertEqual(t, len(stored.StaticAnalysisCategories), len(clone.DefaultCategories(model.LanguageJava, 0)))
	testutil.AssertEqual(t, e.ci.Triggered, []string{"ALGOSORT2-BASE", "ALGOSORT2-SOLUTION"})
	testutil.AssertEqual(t, e.scheduler.scheduled, []int64{ex.ID})
	testutil.AssertEqual(t, e.outcomes.outcomes, []string{"provision success"})
}

func TestCreateExerciseRejectsPersistedExercise(t *testing.T) {
	e := newEnv(t)
	ex := newShell()
	ex.ID = 7

	_, err := service.NewProvisionService(e.deps()).CreateExercise(context.Background(), ex)
	testutil.AssertCode(t, err, pkgerrors.InvalidParams)
}

func TestCreateExerciseRollsBackOnRepositoryFailure(t *testing.T) {
	e := newEnv(t)
	e.vcs.FailOn["CreateRepository"] = errors.New("quota exceeded")

	_, err := service.NewProvisionService(e.deps()).CreateExercise(context.Background(), newShell())
	testutil.AssertCode(t, err, pkgerrors.VCSProvisioningFailed)
	testutil.AssertEqual(t, e.store.ExerciseCount(), 1)
	testutil.AssertEqual(t, e.vcs.CallsOf("DeleteProject"), []string{"DeleteProject ALGOSORT2"})
	testutil.AssertEqual(t, e.outcomes.outcomes, []string{"provision failed"})
}
