package provision_test

import (
	"context"
	"errors"
	"testing"

	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/provision"
	"exforge/internal/testutil"
	apperrors "exforge/pkg/errors"
)

type fakeArchive struct {
	exerciseID int64
	dirs       map[model.RepositoryType]string
	err        error
}

func (a *fakeArchive) Extract(ctx context.Context, exerciseID int64, dirs map[model.RepositoryType]string) error {
	a.exerciseID = exerciseID
	a.dirs = dirs
	return a.err
}

func newExercise() *model.Exercise {
	ex := testutil.ImportTarget()
	return ex
}

func TestProvisionCreatesRepositoriesAndPlans(t *testing.T) {
	vcsClient, ciClient, git := testutil.NewFakeVCS(), testutil.NewFakeCI(), testutil.NewFakeGit()
	ex := newExercise()

	result, err := provision.NewProvisioner(vcsClient, ciClient, git, provision.Options{}).Provision(context.Background(), ex)
	testutil.AssertNil(t, err)

	testutil.AssertEqual(t, vcsClient.CallsOf("CreateRepository"), []string{
		"CreateRepository ALGOSORT2 algosort2-exercise",
		"CreateRepository ALGOSORT2 algosort2-solution",
		"CreateRepository ALGOSORT2 algosort2-tests",
		"CreateRepository ALGOSORT2 algosort2-lib",
		"CreateRepository ALGOSORT2 algosort2-assets",
	})
	testutil.AssertEqual(t, git.Commits, []testutil.FakeCommit{
		{URI: uri("algosort2-exercise"), Branch: "main", Message: "Set up exercise", Empty: true},
		{URI: uri("algosort2-solution"), Branch: "main", Message: "Set up exercise", Empty: true},
		{URI: uri("algosort2-tests"), Branch: "main", Message: "Set up exercise", Empty: true},
		{URI: uri("algosort2-lib"), Branch: "main", Message: "Set up exercise", Empty: true},
		{URI: uri("algosort2-assets"), Branch: "main", Message: "Set up exercise", Empty: true},
	})
	testutil.AssertEqual(t, ex.AuxiliaryRepositories[0].RepositoryURI, uri("algosort2-lib"))

	base := ciClient.Plan("ALGOSORT2-BASE")
	testutil.AssertEqual(t, base.Repositories, []ci.PlanRepository{
		{Role: "assignment", URI: uri("algosort2-exercise"), Branch: "main", CheckoutDirectory: "assignment"},
		{Role: "tests", URI: uri("algosort2-tests"), Branch: "main"},
		{Role: "lib", URI: uri("algosort2-lib"), Branch: "main", CheckoutDirectory: "lib"},
		{Role: "assets", URI: uri("algosort2-assets"), Branch: "main", CheckoutDirectory: "assets"},
	})
	solution := ciClient.Plan("ALGOSORT2-SOLUTION")
	testutil.AssertEqual(t, solution.Repositories[0].URI, uri("algosort2-solution"))
	testutil.AssertTrue(t, base.Enabled && solution.Enabled, "plans enabled")
	testutil.AssertEqual(t, ex.TemplateParticipation.BuildPlanID, "ALGOSORT2-BASE")
	testutil.AssertEqual(t, ex.SolutionParticipation.BuildPlanID, "ALGOSORT2-SOLUTION")

	manage := []ci.Permission{ci.PermissionAdmin, ci.PermissionEdit, ci.PermissionBuild, ci.PermissionRead}
	testutil.AssertEqual(t, ciClient.Grants["ALGOSORT2"], []ci.PermissionGrant{
		{Group: "algo-instructors", Permissions: manage},
		{Group: "algo-editors", Permissions: manage},
		{Group: "algo-tutors", Permissions: []ci.Permission{ci.PermissionRead}},
	})
	testutil.AssertEqual(t, result.BuildsTriggered, []string{"ALGOSORT2-BASE", "ALGOSORT2-SOLUTION"})
	testutil.AssertEqual(t, len(result.Ledger.Entries()), 9)
}

func TestProvisionSeedsArchiveAndSkipsBuilds(t *testing.T) {
	vcsClient, ciClient, git := testutil.NewFakeVCS(), testutil.NewFakeCI(), testutil.NewFakeGit()
	archive := &fakeArchive{}
	ex := newExercise()
	ex.ImportedFromArchive = true
	ex.AuxiliaryRepositories = nil

	result, err := provision.NewProvisioner(vcsClient, ciClient, git, provision.Options{Archive: archive}).Provision(context.Background(), ex)
	testutil.AssertNil(t, err)

	testutil.AssertEqual(t, archive.exerciseID, ex.ID)
	testutil.AssertEqual(t, len(archive.dirs), 3)
	testutil.AssertEqual(t, git.Replacements[uri("algosort2-exercise")], provision.TemplateReplacements(ex))
	testutil.AssertEqual(t, git.Exclusions, provision.DefaultExclusions)
	testutil.AssertEqual(t, len(git.Commits), 6)
	testutil.AssertEqual(t, git.Open, 0)
	testutil.AssertEqual(t, len(result.BuildsTriggered), 0)
	testutil.AssertEqual(t, len(ciClient.CallsOf("TriggerBuild")), 0)
}

func TestProvisionArchiveFailureIsFatal(t *testing.T) {
	vcsClient, ciClient, git := testutil.NewFakeVCS(), testutil.NewFakeCI(), testutil.NewFakeGit()
	ex := newExercise()
	ex.ImportedFromArchive = true
	archive := &fakeArchive{err: errors.New("archive missing")}

	result, err := provision.NewProvisioner(vcsClient, ciClient, git, provision.Options{Archive: archive}).Provision(context.Background(), ex)
	testutil.AssertCode(t, err, apperrors.ArchiveImportFailed)
	testutil.AssertEqual(t, len(ciClient.CallsOf("CreateProject")), 0)
	testutil.AssertEqual(t, git.Open, 0)
	testutil.AssertEqual(t, len(result.Ledger.Entries()), 6)
}

func TestProvisionStopsAtFirstRepositoryFailure(t *testing.T) {
	vcsClient, ciClient, git := testutil.NewFakeVCS(), testutil.NewFakeCI(), testutil.NewFakeGit()
	vcsClient.FailOn["CreateRepository"] = errors.New("name taken")
	steps := stepCounter{}

	result, err := provision.NewProvisioner(vcsClient, ciClient, git, provision.Options{Observer: steps}).Provision(context.Background(), newExercise())
	testutil.AssertCode(t, err, apperrors.VCSProvisioningFailed)
	testutil.AssertEqual(t, len(vcsClient.CallsOf("CreateRepository")), 1)
	testutil.AssertEqual(t, steps[provision.StepRepositories], 1)
	testutil.AssertEqual(t, len(result.Ledger.Entries()), 1)
}

func TestProvisionRequiresProjectKey(t *testing.T) {
	ex := newExercise()
	ex.ProjectKey = ""
	_, err := provision.NewProvisioner(testutil.NewFakeVCS(), testutil.NewFakeCI(), testutil.NewFakeGit(), provision.Options{}).Provision(context.Background(), ex)
	testutil.AssertCode(t, err, apperrors.InvalidParams)
}

func TestLedgerCompensateKeepsGoing(t *testing.T) {
	vcsClient, ciClient, git := testutil.NewFakeVCS(), testutil.NewFakeCI(), testutil.NewFakeGit()
	ciClient.FailOn["EnablePlan"] = errors.New("ci unavailable")

	result, err := provision.NewProvisioner(vcsClient, ciClient, git, provision.Options{}).Provision(context.Background(), newExercise())
	testutil.AssertCode(t, err, apperrors.CIProvisioningFailed)

	ciClient.FailOn["DeleteBuildPlan"] = errors.New("still unavailable")
	err = result.Ledger.Compensate(context.Background(), vcsClient, ciClient)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, len(ciClient.CallsOf("DeleteBuildPlan")), 2)
	testutil.AssertEqual(t, ciClient.CallsOf("DeleteProject"), []string{"DeleteProject ALGOSORT2"})
	testutil.AssertEqual(t, len(vcsClient.CallsOf("DeleteRepository")), 5)
	testutil.AssertEqual(t, len(vcsClient.Projects), 0)
}
