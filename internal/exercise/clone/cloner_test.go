package clone_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"exforge/internal/exercise/clone"
	"exforge/internal/exercise/model"
	"exforge/internal/testutil"
	apperrors "exforge/pkg/errors"
)

func cloneFixture(t *testing.T, store *testutil.MemoryStore, source, target *model.Exercise) (*model.Exercise, *model.IDRemap) {
	t.Helper()
	cloned, remap, err := clone.NewCloner(store, nil).Clone(context.Background(), nil, source, target)
	testutil.AssertNil(t, err)
	return cloned, remap
}

func TestCloneLeavesNoDanglingReferences(t *testing.T) {
	store := testutil.NewMemoryStore()
	cloned, _ := cloneFixture(t, store, testutil.SourceExercise(), testutil.TargetShell())

	idx := model.IndexExercise(cloned)
	for _, task := range cloned.Tasks {
		testutil.AssertEqual(t, task.ExerciseID, cloned.ID)
		for _, id := range task.TestCaseIDs {
			_, ok := idx.TestCases[id]
			testutil.AssertTrue(t, ok, fmt.Sprintf("task %q references foreign test case %d", task.Name, id))
		}
		for _, id := range task.HintIDs {
			_, ok := idx.Hints[id]
			testutil.AssertTrue(t, ok, fmt.Sprintf("task %q references foreign hint %d", task.Name, id))
		}
	}
	for _, hint := range cloned.Hints {
		if hint.TaskID != 0 {
			_, ok := idx.Tasks[hint.TaskID]
			testutil.AssertTrue(t, ok, fmt.Sprintf("hint %q references foreign task %d", hint.Title, hint.TaskID))
		}
	}
	for _, tc := range cloned.TestCases {
		for _, entry := range tc.SolutionEntries {
			testutil.AssertEqual(t, entry.TestCaseID, tc.ID)
			if entry.CodeHintID != 0 {
				_, ok := idx.Hints[entry.CodeHintID]
				testutil.AssertTrue(t, ok, fmt.Sprintf("entry %d references foreign hint %d", entry.ID, entry.CodeHintID))
			}
		}
	}
}

func TestCloneDropsReferencesToUncopiedEntities(t *testing.T) {
	store := testutil.NewMemoryStore()
	cloned, remap := cloneFixture(t, store, testutil.SourceExercise(), testutil.TargetShell())

	idx := model.IndexExercise(cloned)
	merge := idx.Tasks[remap.Tasks[22]]
	testutil.AssertEqual(t, merge.TestCaseIDs, []int64{remap.TestCases[12]})

	stale := idx.Hints[remap.Hints[33]]
	testutil.AssertEqual(t, stale.TaskID, int64(0))

	split := idx.SolutionEntries[remap.SolutionEntries[43]]
	testutil.AssertEqual(t, split.CodeHintID, int64(0))

	codeHint := idx.Hints[remap.Hints[32]]
	testutil.AssertEqual(t, codeHint.SolutionEntryIDs, []int64{remap.SolutionEntries[41]})
	testutil.AssertEqual(t, codeHint.TaskID, remap.Tasks[22])
}

func TestCloneAssignsFreshIdentities(t *testing.T) {
	source := testutil.SourceExercise()
	store := testutil.NewMemoryStore()
	cloned, remap := cloneFixture(t, store, source, testutil.TargetShell())

	testutil.AssertTrue(t, cloned.ID != 0 && cloned.ID != source.ID, "target got a new id")
	for name, m := range map[string]map[int64]int64{
		"test cases":       remap.TestCases,
		"tasks":            remap.Tasks,
		"hints":            remap.Hints,
		"solution entries": remap.SolutionEntries,
	} {
		seen := make(map[int64]bool, len(m))
		for oldID, newID := range m {
			testutil.AssertTrue(t, oldID != newID, name+": identity reused")
			testutil.AssertTrue(t, !seen[newID], name+": remap is not injective")
			seen[newID] = true
		}
	}
	testutil.AssertEqual(t, len(remap.TestCases), 3)
	testutil.AssertEqual(t, len(remap.Tasks), 2)
	testutil.AssertEqual(t, len(remap.Hints), 3)
	testutil.AssertEqual(t, len(remap.SolutionEntries), 3)
	testutil.AssertTrue(t, cloned.SubmissionPolicy != nil && cloned.SubmissionPolicy.ID != 51, "policy copied with new id")
	testutil.AssertEqual(t, cloned.SubmissionPolicy.ExerciseID, cloned.ID)
}

func TestClonePreservesTestCaseScalars(t *testing.T) {
	source := testutil.SourceExercise()
	cloned, remap := cloneFixture(t, testutil.NewMemoryStore(), source, testutil.TargetShell())

	idx := model.IndexExercise(cloned)
	for _, tc := range source.TestCases {
		got := idx.TestCases[remap.TestCases[tc.ID]]
		testutil.AssertEqual(t, got.Name, tc.Name)
		testutil.AssertEqual(t, got.Weight, tc.Weight)
		testutil.AssertEqual(t, got.BonusMultiplier, tc.BonusMultiplier)
		testutil.AssertEqual(t, got.BonusPoints, tc.BonusPoints)
		testutil.AssertEqual(t, got.Visibility, tc.Visibility)
		testutil.AssertEqual(t, got.Active, tc.Active)
		testutil.AssertEqual(t, got.Type, tc.Type)
	}
}

func TestCloneRewritesProblemStatement(t *testing.T) {
	cloned, remap := cloneFixture(t, testutil.NewMemoryStore(), testutil.SourceExercise(), testutil.TargetShell())

	want := fmt.Sprintf("1. [task][Bubble Sort](<testid>%d</testid>,<testid>%d</testid>)\n"+
		"2. [task][Merge Sort](<testid>%d</testid>)\n"+
		"@startuml\nclass Policy #testsColor(<testid>%d</testid>)\n@enduml\n",
		remap.TestCases[11], remap.TestCases[13], remap.TestCases[12], remap.TestCases[12])
	testutil.AssertEqual(t, cloned.ProblemStatement, want)
}

func TestClonePersistsTheWholeGraph(t *testing.T) {
	store := testutil.NewMemoryStore()
	cloned, _ := cloneFixture(t, store, testutil.SourceExercise(), testutil.TargetShell())

	loaded, err := store.LoadGraph(context.Background(), nil, cloned.ID)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, loaded.TestCases, cloned.TestCases)
	testutil.AssertEqual(t, loaded.Tasks, cloned.Tasks)
	testutil.AssertEqual(t, loaded.Hints, cloned.Hints)
	testutil.AssertEqual(t, loaded.ProblemStatement, cloned.ProblemStatement)
	testutil.AssertEqual(t, len(loaded.AuxiliaryRepositories), 2)
	testutil.AssertEqual(t, loaded.AuxiliaryRepositories[0].Name, "lib")
	testutil.AssertEqual(t, loaded.AuxiliaryRepositories[0].RepositoryURI, "")
}

func TestCloneStaticAnalysisCategories(t *testing.T) {
	cases := []struct {
		name      string
		sourceSCA bool
		targetSCA bool
		want      []string
	}{
		{name: "copied when both enabled", sourceSCA: true, targetSCA: true, want: []string{"Bad Practice", "Code Style"}},
		{name: "defaults when only target enabled", sourceSCA: false, targetSCA: true, want: categoryNames(clone.DefaultCategories(model.LanguageJava, 0))},
		{name: "none when target disabled", sourceSCA: true, targetSCA: false, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source := testutil.SourceExercise()
			source.StaticCodeAnalysisEnabled = tc.sourceSCA
			target := testutil.TargetShell()
			target.StaticCodeAnalysisEnabled = tc.targetSCA

			cloned, _ := cloneFixture(t, testutil.NewMemoryStore(), source, target)
			testutil.AssertEqual(t, categoryNames(cloned.StaticAnalysisCategories), tc.want)
			for _, c := range cloned.StaticAnalysisCategories {
				testutil.AssertEqual(t, c.ExerciseID, cloned.ID)
			}
		})
	}
}

func TestCloneRejectsPersistedTarget(t *testing.T) {
	target := testutil.TargetShell()
	target.ID = 7
	_, _, err := clone.NewCloner(testutil.NewMemoryStore(), nil).Clone(context.Background(), nil, testutil.SourceExercise(), target)
	testutil.AssertErrorIs(t, err, clone.ErrTargetPersisted)
}

func TestCloneRejectsDuplicateTestNames(t *testing.T) {
	source := testutil.SourceExercise()
	source.TestCases[1].Name = source.TestCases[0].Name
	store := testutil.NewMemoryStore()

	_, _, err := clone.NewCloner(store, nil).Clone(context.Background(), nil, source, testutil.TargetShell())
	testutil.AssertCode(t, err, apperrors.DuplicateTestCaseName)
	testutil.AssertEqual(t, store.ExerciseCount(), 0)
}

func TestCloneAbortsOnPersistenceFailure(t *testing.T) {
	store := testutil.NewMemoryStore()
	boom := errors.New("connection reset")
	store.FailOn["CreateTask"] = boom

	_, _, err := clone.NewCloner(store, nil).Clone(context.Background(), nil, testutil.SourceExercise(), testutil.TargetShell())
	testutil.AssertCode(t, err, apperrors.ExerciseCloneFailed)
	testutil.AssertErrorIs(t, err, boom)
}

func categoryNames(cats []*model.StaticAnalysisCategory) []string {
	var out []string
	for _, c := range cats {
		out = append(out, c.Name)
	}
	return out
}
