package testutil

import (
	"time"

	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/model"
)

// SourceStatement is the problem statement of SourceExercise. It mixes name and id references.
const SourceStatement = "1. [task][Bubble Sort](testBubbleSort,<testid>13</testid>)\n" +
	"2. [task][Merge Sort](testMergeSort)\n" +
	"@startuml\nclass Policy #testsColor(<testid>12</testid>)\n@enduml\n"

// SourceExercise returns a fully populated exercise graph with fixed ids below 1000.
// Task 22 references the unknown test case 99, hint 33 the unknown task 98, and
// solution entry 43 the unknown hint 97.
func SourceExercise() *model.Exercise {
	penalty := 20
	release := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 24, 23, 59, 0, 0, time.UTC)
	return &model.Exercise{
		ID:                           1,
		Kind:                         model.KindProgramming,
		CourseShortName:              "prog",
		Title:                        "Sorting",
		ShortName:                    "sort",
		ProjectKey:                   "PROGSORT",
		PackageName:                  "de.exforge.sorting",
		Language:                     model.LanguageJava,
		ProjectType:                  model.ProjectTypePlainMaven,
		ReleaseDate:                  &release,
		DueDate:                      &due,
		AllowOfflineIDE:              true,
		AllowOnlineEditor:            true,
		StaticCodeAnalysisEnabled:    true,
		MaxStaticCodeAnalysisPenalty: &penalty,
		ProblemStatement:             SourceStatement,
		TestRepositoryURI:            "file:///vcs/PROGSORT/progsort-tests.git",
		Groups:                       model.CourseGroups{Instructor: "prog-instructors", Editor: "prog-editors", TeachingAssistant: "prog-tutors"},
		SubmissionPolicy:             &model.SubmissionPolicy{ID: 51, ExerciseID: 1, Type: model.PolicyLockRepository, SubmissionLimit: 10, Active: true},
		TestCases: []*model.TestCase{
			{ID: 11, ExerciseID: 1, Name: "testBubbleSort", Active: true, Visibility: model.VisibilityAlways, Weight: 2, BonusMultiplier: 1.5, BonusPoints: 1, Type: model.TestCaseBehavioral,
				SolutionEntries: []*model.SolutionEntry{
					{ID: 41, TestCaseID: 11, CodeHintID: 32, FilePath: "src/BubbleSort.java", Code: "swap(a, i, j);", PreviousCode: "", Line: 12, PreviousLine: 0},
				}},
			{ID: 12, ExerciseID: 1, Name: "testMergeSort", Active: true, Visibility: model.VisibilityAfterDueDate, Weight: 3, BonusMultiplier: 1, BonusPoints: 0, Type: model.TestCaseBehavioral,
				SolutionEntries: []*model.SolutionEntry{
					{ID: 42, TestCaseID: 12, FilePath: "src/MergeSort.java", Code: "merge(l, r);", Line: 30, PreviousLine: 28},
					{ID: 43, TestCaseID: 12, CodeHintID: 97, FilePath: "src/MergeSort.java", Code: "split(a);", Line: 10},
				}},
			{ID: 13, ExerciseID: 1, Name: "testStructure", Active: false, Visibility: model.VisibilityNever, Weight: 1, BonusMultiplier: 1, Type: model.TestCaseStructural},
		},
		Tasks: []*model.Task{
			{ID: 21, ExerciseID: 1, Name: "Bubble Sort", TestCaseIDs: []int64{11, 13}, HintIDs: []int64{31}},
			{ID: 22, ExerciseID: 1, Name: "Merge Sort", TestCaseIDs: []int64{12, 99}, HintIDs: []int64{32}},
		},
		Hints: []*model.Hint{
			{ID: 31, ExerciseID: 1, Title: "Swap", Content: "Swap neighbours", Kind: model.HintText, TaskID: 21},
			{ID: 32, ExerciseID: 1, Title: "Merge", Content: "", Kind: model.HintCode, TaskID: 22, SolutionEntryIDs: []int64{41}},
			{ID: 33, ExerciseID: 1, Title: "Stale", Content: "Refers to a removed task", Kind: model.HintText, TaskID: 98},
		},
		StaticAnalysisCategories: []*model.StaticAnalysisCategory{
			{ID: 71, ExerciseID: 1, Name: "Bad Practice", Penalty: 1, MaxPenalty: 4, State: model.CategoryGraded},
			{ID: 72, ExerciseID: 1, Name: "Code Style", Penalty: 0, MaxPenalty: 0, State: model.CategoryInactive},
		},
		AuxiliaryRepositories: []*model.AuxiliaryRepository{
			{ID: 81, ExerciseID: 1, Name: "lib", CheckoutDirectory: "lib", Description: "shared helpers", RepositoryURI: "file:///vcs/PROGSORT/progsort-lib.git"},
			{ID: 82, ExerciseID: 1, Name: "assets", CheckoutDirectory: "assets", RepositoryURI: "file:///vcs/PROGSORT/progsort-assets.git"},
		},
		TemplateParticipation: &model.Participation{ID: 61, ExerciseID: 1, Type: model.ParticipationTemplate, RepositoryURI: "file:///vcs/PROGSORT/progsort-exercise.git", BuildPlanID: "PROGSORT-BASE", State: model.StateInitialized},
		SolutionParticipation: &model.Participation{ID: 62, ExerciseID: 1, Type: model.ParticipationSolution, RepositoryURI: "file:///vcs/PROGSORT/progsort-solution.git", BuildPlanID: "PROGSORT-SOLUTION", State: model.StateInitialized},
	}
}

// TargetShell returns the new exercise settings for an import of SourceExercise.
func TargetShell() *model.Exercise {
	return &model.Exercise{
		Kind:                      model.KindProgramming,
		CourseShortName:           "algo",
		Title:                     "Sorting (copy)",
		ShortName:                 "sort2",
		PackageName:               "de.exforge.sorting2",
		Language:                  model.LanguageJava,
		ProjectType:               model.ProjectTypePlainMaven,
		AllowOfflineIDE:           true,
		AllowOnlineEditor:         true,
		StaticCodeAnalysisEnabled: true,
		Groups:                    model.CourseGroups{Instructor: "algo-instructors", Editor: "algo-editors", TeachingAssistant: "algo-tutors"},
	}
}

// ImportTarget returns TargetShell with an id, a project key and the auxiliary
// repositories of SourceExercise as the cloner leaves them.
func ImportTarget() *model.Exercise {
	target := TargetShell()
	target.ID = 2001
	target.GenerateProjectKey()
	for _, aux := range SourceExercise().AuxiliaryRepositories {
		target.AuxiliaryRepositories = append(target.AuxiliaryRepositories, &model.AuxiliaryRepository{
			ExerciseID:        target.ID,
			Name:              aux.Name,
			CheckoutDirectory: aux.CheckoutDirectory,
			Description:       aux.Description,
		})
	}
	return target
}

// SeedSourceInfrastructure registers the repositories and build plans of
// SourceExercise. The template repository uses the branch "develop", the
// "assets" repository "trunk", everything else "main".
func SeedSourceInfrastructure(v *FakeVCS, c *FakeCI) {
	source := SourceExercise()
	v.Projects[source.ProjectKey] = "prog Sorting"
	v.AddRepository(source.TemplateParticipation.RepositoryURI, "develop")
	v.AddRepository(source.SolutionParticipation.RepositoryURI, "main")
	v.AddRepository(source.TestRepositoryURI, "main")
	v.AddRepository(source.AuxiliaryRepositories[0].RepositoryURI, "main")
	v.AddRepository(source.AuxiliaryRepositories[1].RepositoryURI, "trunk")

	c.Projects[source.ProjectKey] = "prog Sorting"
	for _, p := range []struct {
		id         string
		assignment string
	}{
		{source.TemplateParticipation.BuildPlanID, source.TemplateParticipation.RepositoryURI},
		{source.SolutionParticipation.BuildPlanID, source.SolutionParticipation.RepositoryURI},
	} {
		plan := ci.BuildPlan{
			ID:         p.id,
			ProjectKey: source.ProjectKey,
			Enabled:    true,
			Repositories: []ci.PlanRepository{
				{Role: "assignment", URI: p.assignment, Branch: "main"},
				{Role: "tests", URI: source.TestRepositoryURI, Branch: "main"},
			},
		}
		for _, aux := range source.AuxiliaryRepositories {
			plan.Repositories = append(plan.Repositories, ci.PlanRepository{Role: aux.Name, URI: aux.RepositoryURI, Branch: "main", CheckoutDirectory: aux.CheckoutDirectory})
		}
		c.AddPlan(plan)
	}
}
