package provision_test

import (
	"context"
	"errors"
	"testing"

	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/provision"
	"exforge/internal/exercise/vcs"
	"exforge/internal/testutil"
	apperrors "exforge/pkg/errors"
)

type stepCounter map[string]int

func (s stepCounter) StepFailed(step string) { s[step]++ }

type importFixture struct {
	vcs    *testutil.FakeVCS
	ci     *testutil.FakeCI
	git    *testutil.FakeGit
	steps  stepCounter
	source *model.Exercise
	target *model.Exercise
}

func newImportFixture() *importFixture {
	f := &importFixture{
		vcs:    testutil.NewFakeVCS(),
		ci:     testutil.NewFakeCI(),
		git:    testutil.NewFakeGit(),
		steps:  stepCounter{},
		source: testutil.SourceExercise(),
		target: testutil.ImportTarget(),
	}
	testutil.SeedSourceInfrastructure(f.vcs, f.ci)
	return f
}

func (f *importFixture) provisioner() *provision.Provisioner {
	return provision.NewProvisioner(f.vcs, f.ci, f.git, provision.Options{Observer: f.steps})
}

func (f *importFixture) run(t *testing.T, opts provision.ImportOptions) (*provision.Result, error) {
	t.Helper()
	return f.provisioner().ImportFromTemplate(context.Background(), f.source, f.target, opts)
}

func uri(repo string) string {
	return testutil.FakeRepositoryURI("ALGOSORT2", repo)
}

func TestImportCopiesRepositoriesOnSourceBranches(t *testing.T) {
	f := newImportFixture()
	result, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)

	testutil.AssertEqual(t, f.vcs.CallsOf("CopyRepository"), []string{
		"CopyRepository PROGSORT/progsort-exercise develop ALGOSORT2/algosort2-exercise",
		"CopyRepository PROGSORT/progsort-solution main ALGOSORT2/algosort2-solution",
		"CopyRepository PROGSORT/progsort-tests main ALGOSORT2/algosort2-tests",
		"CopyRepository PROGSORT/progsort-lib main ALGOSORT2/algosort2-lib",
		"CopyRepository PROGSORT/progsort-assets trunk ALGOSORT2/algosort2-assets",
	})
	testutil.AssertEqual(t, f.target.TemplateParticipation.RepositoryURI, uri("algosort2-exercise"))
	testutil.AssertEqual(t, f.target.SolutionParticipation.RepositoryURI, uri("algosort2-solution"))
	testutil.AssertEqual(t, f.target.TestRepositoryURI, uri("algosort2-tests"))
	testutil.AssertEqual(t, f.target.AuxiliaryRepositories[1].RepositoryURI, uri("algosort2-assets"))

	testutil.AssertEqual(t, len(f.vcs.Protected[uri("algosort2-exercise")]), 0)
	testutil.AssertEqual(t, f.vcs.Protected[uri("algosort2-solution")], []string{"main"})
	for _, repo := range []string{"algosort2-exercise", "algosort2-solution", "algosort2-tests", "algosort2-lib", "algosort2-assets"} {
		testutil.AssertEqual(t, f.vcs.Webhooks[uri(repo)], 1)
	}

	testutil.AssertEqual(t, len(result.Ledger.Entries()), 9)
	testutil.AssertEqual(t, result.BuildsTriggered, []string{"ALGOSORT2-BASE", "ALGOSORT2-SOLUTION"})
	testutil.AssertEqual(t, len(result.Unadapted), 0)
	testutil.AssertEqual(t, f.git.Open, 0)
}

func TestImportRewiresPlanTriggers(t *testing.T) {
	f := newImportFixture()
	_, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)

	base := f.ci.Plan("ALGOSORT2-BASE")
	testutil.AssertTrue(t, base != nil && base.Enabled, "base plan copied and enabled")
	testutil.AssertEqual(t, f.target.TemplateParticipation.BuildPlanID, "ALGOSORT2-BASE")
	testutil.AssertEqual(t, base.Repositories, []ci.PlanRepository{
		{Role: "assignment", URI: uri("algosort2-exercise"), Branch: "develop", TriggeredBy: []string{"assignment"}},
		{Role: "tests", URI: uri("algosort2-tests"), Branch: "main", TriggeredBy: []string{"assignment"}},
		{Role: "lib", URI: uri("algosort2-lib"), Branch: "main", CheckoutDirectory: "lib", TriggeredBy: []string{"assignment"}},
		{Role: "assets", URI: uri("algosort2-assets"), Branch: "trunk", CheckoutDirectory: "assets", TriggeredBy: []string{"assignment"}},
	})

	solution := f.ci.Plan("ALGOSORT2-SOLUTION")
	testutil.AssertTrue(t, solution != nil && solution.Enabled, "solution plan copied and enabled")
	assignment, ok := solution.Repository("assignment")
	testutil.AssertTrue(t, ok, "solution plan has an assignment repository")
	testutil.AssertEqual(t, assignment.URI, uri("algosort2-solution"))
	for _, repo := range solution.Repositories {
		testutil.AssertEqual(t, len(repo.TriggeredBy), 0)
	}

	source := f.ci.Plan("PROGSORT-BASE")
	testutil.AssertEqual(t, source.Repositories[0].URI, f.source.TemplateParticipation.RepositoryURI)
}

func TestImportUsesStoredPlanIDs(t *testing.T) {
	f := newImportFixture()
	legacy := f.ci.Plans["PROGSORT-BASE"]
	delete(f.ci.Plans, "PROGSORT-BASE")
	legacy.ID = "LEGACY-BASE"
	f.ci.Plans[legacy.ID] = legacy
	f.source.TemplateParticipation.BuildPlanID = legacy.ID
	f.ci.CopySuffix = "-2"

	result, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)

	testutil.AssertEqual(t, f.target.TemplateParticipation.BuildPlanID, "ALGOSORT2-BASE-2")
	testutil.AssertEqual(t, f.target.SolutionParticipation.BuildPlanID, "ALGOSORT2-SOLUTION-2")
	base := f.ci.Plan("ALGOSORT2-BASE-2")
	testutil.AssertTrue(t, base != nil && base.Enabled, "copied plan enabled under its stored id")
	testutil.AssertEqual(t, base.CopiedFrom, "LEGACY-BASE")
	testutil.AssertEqual(t, base.Repositories[0].URI, uri("algosort2-exercise"))
	testutil.AssertEqual(t, result.BuildsTriggered, []string{"ALGOSORT2-BASE-2", "ALGOSORT2-SOLUTION-2"})
}

func TestImportAlignsAuxiliaryRepositoriesByPosition(t *testing.T) {
	f := newImportFixture()
	f.target.AuxiliaryRepositories[0].Name = "helpers"
	f.target.AuxiliaryRepositories[1].Name = "lib"

	_, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)

	testutil.AssertEqual(t, f.vcs.CallsOf("CopyRepository")[3:], []string{
		"CopyRepository PROGSORT/progsort-lib main ALGOSORT2/algosort2-helpers",
		"CopyRepository PROGSORT/progsort-assets trunk ALGOSORT2/algosort2-lib",
	})
	base := f.ci.Plan("ALGOSORT2-BASE")
	testutil.AssertEqual(t, len(base.Repositories), 4)
	testutil.AssertEqual(t, base.Repositories[2].Role, "helpers")
	testutil.AssertEqual(t, base.Repositories[2].URI, uri("algosort2-helpers"))
	testutil.AssertEqual(t, base.Repositories[2].CheckoutDirectory, "lib")
	testutil.AssertEqual(t, base.Repositories[3].Role, "lib")
	testutil.AssertEqual(t, base.Repositories[3].URI, uri("algosort2-lib"))
	testutil.AssertEqual(t, base.Repositories[3].Branch, "trunk")
}

func TestImportAdaptsPlaceholders(t *testing.T) {
	f := newImportFixture()
	_, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)

	want := provision.ImportReplacements(f.source, f.target)
	for _, repo := range []string{"algosort2-exercise", "algosort2-solution", "algosort2-tests"} {
		testutil.AssertEqual(t, f.git.Replacements[uri(repo)], want)
	}
	testutil.AssertEqual(t, len(f.git.Commits), 3)
	for _, c := range f.git.Commits {
		testutil.AssertTrue(t, !c.Empty, "adaptation commits carry changes")
	}
	testutil.AssertEqual(t, f.git.Commits[0].Branch, "develop")
}

func TestImportFallsBackToEmptyCommit(t *testing.T) {
	f := newImportFixture()
	f.git.FailOn["ReplaceTextInFiles"] = errors.New("disk full")

	result, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, result.Unadapted, []model.RepositoryType{model.RepositoryTemplate, model.RepositorySolution, model.RepositoryTests})
	testutil.AssertEqual(t, len(f.git.Commits), 3)
	for _, c := range f.git.Commits {
		testutil.AssertTrue(t, c.Empty, "fallback commits are empty")
	}
	testutil.AssertEqual(t, f.steps[provision.StepPlaceholders], 3)
	testutil.AssertEqual(t, f.git.Open, 0)
	testutil.AssertEqual(t, result.BuildsTriggered, []string{"ALGOSORT2-BASE", "ALGOSORT2-SOLUTION"})
}

func TestImportBuildTriggerFailureIsNotFatal(t *testing.T) {
	f := newImportFixture()
	f.ci.FailOn["TriggerBuild"] = errors.New("queue down")

	result, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, len(result.BuildsTriggered), 0)
	testutil.AssertEqual(t, f.steps[provision.StepBuildTrigger], 2)
}

func TestImportRecreatesBuildPlans(t *testing.T) {
	f := newImportFixture()
	_, err := f.run(t, provision.ImportOptions{RecreateBuildPlans: true})
	testutil.AssertNil(t, err)

	testutil.AssertEqual(t, len(f.ci.CallsOf("CopyBuildPlan")), 0)
	testutil.AssertEqual(t, len(f.ci.CallsOf("UpdatePlanRepository")), 0)
	testutil.AssertEqual(t, f.ci.CallsOf("CreateBuildPlan"), []string{
		"CreateBuildPlan ALGOSORT2-BASE",
		"CreateBuildPlan ALGOSORT2-SOLUTION",
	})
	base := f.ci.Plan("ALGOSORT2-BASE")
	testutil.AssertEqual(t, base.Repositories[0].URI, uri("algosort2-exercise"))
	testutil.AssertEqual(t, base.Repositories[3].URI, uri("algosort2-assets"))
	testutil.AssertTrue(t, base.Enabled, "recreated plan enabled")
}

func TestImportSkipsBuildsForArchiveImports(t *testing.T) {
	f := newImportFixture()
	f.target.ImportedFromArchive = true

	result, err := f.run(t, provision.ImportOptions{})
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, len(result.BuildsTriggered), 0)
	testutil.AssertEqual(t, len(f.ci.CallsOf("TriggerBuild")), 0)
}

func TestImportAbortsOnVCSFailureAndCompensates(t *testing.T) {
	f := newImportFixture()
	f.vcs.FailOn["CopyRepository"] = errors.New("quota exceeded")

	result, err := f.run(t, provision.ImportOptions{})
	testutil.AssertCode(t, err, apperrors.VCSProvisioningFailed)
	testutil.AssertEqual(t, f.steps[provision.StepRepositories], 1)
	testutil.AssertEqual(t, result.Ledger.Entries(), []provision.Resource{{Kind: provision.ResourceVCSProject, ID: "ALGOSORT2"}})
	testutil.AssertEqual(t, len(f.ci.CallsOf("CreateProject")), 0)

	testutil.AssertNil(t, result.Ledger.Compensate(context.Background(), f.vcs, f.ci))
	_, exists := f.vcs.Projects["ALGOSORT2"]
	testutil.AssertTrue(t, !exists, "vcs project removed")
}

func TestImportAbortsOnCIFailure(t *testing.T) {
	f := newImportFixture()
	f.ci.FailOn["UpdatePlanRepository"] = errors.New("plan locked")

	result, err := f.run(t, provision.ImportOptions{})
	testutil.AssertCode(t, err, apperrors.CIProvisioningFailed)
	testutil.AssertEqual(t, len(f.ci.CallsOf("EnablePlan")), 0)

	testutil.AssertNil(t, result.Ledger.Compensate(context.Background(), f.vcs, f.ci))
	testutil.AssertTrue(t, f.ci.Plan("ALGOSORT2-BASE") == nil, "copied plan removed")
	testutil.AssertEqual(t, len(f.vcs.CallsOf("DeleteRepository")), 5)
	calls := f.vcs.Calls
	testutil.AssertEqual(t, calls[len(calls)-1], "DeleteProject ALGOSORT2")
}

func TestImportReplacements(t *testing.T) {
	got := provision.ImportReplacements(testutil.SourceExercise(), testutil.ImportTarget())
	testutil.AssertEqual(t, got, []vcs.Replacement{
		{Old: "de.exforge.sorting", New: "de.exforge.sorting2"},
		{Old: "de/exforge/sorting", New: "de/exforge/sorting2"},
		{Old: "Sorting", New: "Sorting-(copy)"},
		{Old: "PROGSORT", New: "ALGOSORT2"},
	})
}
