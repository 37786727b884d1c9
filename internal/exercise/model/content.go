package model

// Visibility controls when students see a test case result.
type Visibility string

const (
	VisibilityAlways       Visibility = "ALWAYS"
	VisibilityAfterDueDate Visibility = "AFTER_DUE_DATE"
	VisibilityNever        Visibility = "NEVER"
)

// TestCaseType classifies how a test case was produced.
type TestCaseType string

const (
	TestCaseBehavioral TestCaseType = "BEHAVIORAL"
	TestCaseStructural TestCaseType = "STRUCTURAL"
	TestCaseDefault    TestCaseType = "DEFAULT"
)

// TestCase belongs to one exercise. Names are unique per exercise.
type TestCase struct {
	ID              int64            `json:"id"`
	ExerciseID      int64            `json:"exerciseId"`
	Name            string           `json:"name"`
	Active          bool             `json:"active"`
	Visibility      Visibility       `json:"visibility"`
	Weight          float64          `json:"weight"`
	BonusMultiplier float64          `json:"bonusMultiplier"`
	BonusPoints     float64          `json:"bonusPoints"`
	Type            TestCaseType     `json:"type"`
	SolutionEntries []*SolutionEntry `json:"solutionEntries,omitempty"`
}

// Task groups test cases and is what the problem statement renders as a checklist item.
type Task struct {
	ID          int64   `json:"id"`
	ExerciseID  int64   `json:"exerciseId"`
	Name        string  `json:"name"`
	TestCaseIDs []int64 `json:"testCaseIds"`
	HintIDs     []int64 `json:"hintIds,omitempty"`
}

// HintKind distinguishes plain text hints from code hints backed by solution entries.
type HintKind string

const (
	HintText HintKind = "TEXT"
	HintCode HintKind = "CODE"
)

// Hint belongs to one exercise. TaskID is zero when the hint is not attached to a task.
type Hint struct {
	ID               int64    `json:"id"`
	ExerciseID       int64    `json:"exerciseId"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Content          string   `json:"content"`
	Kind             HintKind `json:"kind"`
	TaskID           int64    `json:"taskId,omitempty"`
	SolutionEntryIDs []int64  `json:"solutionEntryIds,omitempty"`
}

// SolutionEntry belongs to one test case. CodeHintID is zero when no code hint uses it.
type SolutionEntry struct {
	ID           int64  `json:"id"`
	TestCaseID   int64  `json:"testCaseId"`
	CodeHintID   int64  `json:"codeHintId,omitempty"`
	FilePath     string `json:"filePath"`
	Code         string `json:"code"`
	PreviousCode string `json:"previousCode"`
	Line         int    `json:"line"`
	PreviousLine int    `json:"previousLine"`
}

// CategoryState decides whether static analysis findings of a category count.
type CategoryState string

const (
	CategoryInactive CategoryState = "INACTIVE"
	CategoryFeedback CategoryState = "FEEDBACK"
	CategoryGraded   CategoryState = "GRADED"
)

// StaticAnalysisCategory groups static code analysis rules with a penalty.
type StaticAnalysisCategory struct {
	ID         int64         `json:"id"`
	ExerciseID int64         `json:"exerciseId"`
	Name       string        `json:"name"`
	Penalty    float64       `json:"penalty"`
	MaxPenalty float64       `json:"maxPenalty"`
	State      CategoryState `json:"state"`
}

// AuxiliaryRepository is an extra repository checked out next to the assignment.
type AuxiliaryRepository struct {
	ID                int64  `json:"id"`
	ExerciseID        int64  `json:"exerciseId"`
	Name              string `json:"name"`
	CheckoutDirectory string `json:"checkoutDirectory"`
	Description       string `json:"description"`
	RepositoryURI     string `json:"repositoryUri"`
}

// SubmissionPolicyType selects what happens once the limit is exceeded.
type SubmissionPolicyType string

const (
	PolicyLockRepository    SubmissionPolicyType = "LOCK_REPOSITORY"
	PolicySubmissionPenalty SubmissionPolicyType = "SUBMISSION_PENALTY"
)

// SubmissionPolicy limits the number of submissions per participation.
type SubmissionPolicy struct {
	ID               int64                `json:"id"`
	ExerciseID       int64                `json:"exerciseId"`
	Type             SubmissionPolicyType `json:"type"`
	SubmissionLimit  int                  `json:"submissionLimit"`
	ExceedingPenalty float64              `json:"exceedingPenalty"`
	Active           bool                 `json:"active"`
}
