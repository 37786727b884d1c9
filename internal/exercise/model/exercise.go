package model

import (
	"strings"
	"time"
	"unicode"
)

// CourseGroups names the CI/VCS groups that receive role based permissions.
type CourseGroups struct {
	Instructor        string `json:"instructor"`
	Editor            string `json:"editor"`
	TeachingAssistant string `json:"teachingAssistant"`
}

// TeamConfig is present when students work in teams.
type TeamConfig struct {
	MinTeamSize int `json:"minTeamSize"`
	MaxTeamSize int `json:"maxTeamSize"`
}

// Exercise is the aggregate root of a programming exercise.
type Exercise struct {
	ID              int64               `json:"id"`
	Kind            ExerciseKind        `json:"kind"`
	CourseShortName string              `json:"courseShortName"`
	Title           string              `json:"title"`
	ShortName       string              `json:"shortName"`
	ProjectKey      string              `json:"projectKey"`
	PackageName     string              `json:"packageName"`
	Language        ProgrammingLanguage `json:"language"`
	ProjectType     ProjectType         `json:"projectType"`

	ReleaseDate       *time.Time `json:"releaseDate,omitempty"`
	StartDate         *time.Time `json:"startDate,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	AssessmentDueDate *time.Time `json:"assessmentDueDate,omitempty"`

	AllowOfflineIDE              bool        `json:"allowOfflineIde"`
	AllowOnlineEditor            bool        `json:"allowOnlineEditor"`
	StaticCodeAnalysisEnabled    bool        `json:"staticCodeAnalysisEnabled"`
	MaxStaticCodeAnalysisPenalty *int        `json:"maxStaticCodeAnalysisPenalty,omitempty"`
	ExamMode                     bool        `json:"examMode"`
	Team                         *TeamConfig `json:"teamConfig,omitempty"`
	ImportedFromArchive          bool        `json:"importedFromArchive"`

	ProblemStatement  string       `json:"problemStatement"`
	TestRepositoryURI string       `json:"testRepositoryUri"`
	Groups            CourseGroups `json:"groups"`

	SubmissionPolicy         *SubmissionPolicy         `json:"submissionPolicy,omitempty"`
	TestCases                []*TestCase               `json:"testCases,omitempty"`
	Tasks                    []*Task                   `json:"tasks,omitempty"`
	Hints                    []*Hint                   `json:"hints,omitempty"`
	StaticAnalysisCategories []*StaticAnalysisCategory `json:"staticAnalysisCategories,omitempty"`
	AuxiliaryRepositories    []*AuxiliaryRepository    `json:"auxiliaryRepositories,omitempty"`

	TemplateParticipation *Participation `json:"templateParticipation,omitempty"`
	SolutionParticipation *Participation `json:"solutionParticipation,omitempty"`
}

// ParticipationStartDate is the moment students may start working:
// the start date, falling back to the release date.
func (e *Exercise) ParticipationStartDate() *time.Time {
	if e.StartDate != nil {
		return e.StartDate
	}
	return e.ReleaseDate
}

// GenerateProjectKey derives the VCS/CI project key from course and exercise short names.
func (e *Exercise) GenerateProjectKey() string {
	var b strings.Builder
	for _, r := range e.CourseShortName + e.ShortName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	e.ProjectKey = b.String()
	return e.ProjectKey
}

// RepositoryName returns the VCS repository slug for a repository role.
func (e *Exercise) RepositoryName(repoType RepositoryType) string {
	return strings.ToLower(e.ProjectKey) + "-" + string(repoType)
}

// AuxiliaryRepositoryName returns the VCS repository slug for an auxiliary repository.
func (e *Exercise) AuxiliaryRepositoryName(aux *AuxiliaryRepository) string {
	return strings.ToLower(e.ProjectKey) + "-" + strings.ToLower(aux.Name)
}

// BuildPlanID returns the CI plan id for a plan role.
func (e *Exercise) BuildPlanID(plan BuildPlanType) string {
	return e.ProjectKey + "-" + string(plan)
}

// RepositoryURIFor returns the recorded remote address of a base repository.
func (e *Exercise) RepositoryURIFor(repoType RepositoryType) string {
	switch repoType {
	case RepositoryTemplate:
		if e.TemplateParticipation != nil {
			return e.TemplateParticipation.RepositoryURI
		}
	case RepositorySolution:
		if e.SolutionParticipation != nil {
			return e.SolutionParticipation.RepositoryURI
		}
	case RepositoryTests:
		return e.TestRepositoryURI
	}
	return ""
}

// CheckoutDirectories returns the directories the build plan checks auxiliary repositories into.
func (e *Exercise) CheckoutDirectories() []string {
	dirs := make([]string, 0, len(e.AuxiliaryRepositories))
	for _, aux := range e.AuxiliaryRepositories {
		if aux.CheckoutDirectory != "" {
			dirs = append(dirs, aux.CheckoutDirectory)
		}
	}
	return dirs
}

// RepositoryType is a repository role within an exercise project.
type RepositoryType string

const (
	RepositoryTemplate RepositoryType = "exercise"
	RepositorySolution RepositoryType = "solution"
	RepositoryTests    RepositoryType = "tests"
)

// BaseRepositoryTypes lists the three canonical repositories in provisioning order.
var BaseRepositoryTypes = []RepositoryType{RepositoryTemplate, RepositorySolution, RepositoryTests}

// BuildPlanType is a build plan role within an exercise project.
type BuildPlanType string

const (
	BuildPlanBase     BuildPlanType = "BASE"
	BuildPlanSolution BuildPlanType = "SOLUTION"
)

// Trigger role names used when rewiring plan repositories.
const (
	AssignmentRepoName = "assignment"
	TestsRepoName      = "tests"
	SolutionRepoName   = "solution"
)
