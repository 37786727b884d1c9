package controller

import (
	"fmt"
	"time"

	"exforge/internal/exercise/model"
)

// ExerciseSettings is the user supplied part of an exercise.
type ExerciseSettings struct {
	Kind                         string                       `json:"kind"`
	CourseShortName              string                       `json:"courseShortName" binding:"required"`
	Title                        string                       `json:"title" binding:"required"`
	ShortName                    string                       `json:"shortName" binding:"required"`
	PackageName                  string                       `json:"packageName"`
	Language                     string                       `json:"language" binding:"required"`
	ProjectType                  string                       `json:"projectType"`
	ReleaseDate                  *time.Time                   `json:"releaseDate"`
	StartDate                    *time.Time                   `json:"startDate"`
	DueDate                      *time.Time                   `json:"dueDate"`
	AssessmentDueDate            *time.Time                   `json:"assessmentDueDate"`
	AllowOfflineIDE              bool                         `json:"allowOfflineIde"`
	AllowOnlineEditor            bool                         `json:"allowOnlineEditor"`
	StaticCodeAnalysisEnabled    bool                         `json:"staticCodeAnalysisEnabled"`
	MaxStaticCodeAnalysisPenalty *int                         `json:"maxStaticCodeAnalysisPenalty"`
	ExamMode                     bool                         `json:"examMode"`
	Team                         *model.TeamConfig            `json:"teamConfig"`
	ProblemStatement             string                       `json:"problemStatement"`
	Groups                       model.CourseGroups           `json:"groups"`
	AuxiliaryRepositories        []*model.AuxiliaryRepository `json:"auxiliaryRepositories"`
}

func (s ExerciseSettings) toModel() (*model.Exercise, error) {
	kind := model.KindProgramming
	if s.Kind != "" {
		k, err := model.ParseExerciseKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("invalid kind: %s", s.Kind)
		}
		kind = k
	}
	return &model.Exercise{
		Kind:                         kind,
		CourseShortName:              s.CourseShortName,
		Title:                        s.Title,
		ShortName:                    s.ShortName,
		PackageName:                  s.PackageName,
		Language:                     model.ProgrammingLanguage(s.Language),
		ProjectType:                  model.ProjectType(s.ProjectType),
		ReleaseDate:                  s.ReleaseDate,
		StartDate:                    s.StartDate,
		DueDate:                      s.DueDate,
		AssessmentDueDate:            s.AssessmentDueDate,
		AllowOfflineIDE:              s.AllowOfflineIDE,
		AllowOnlineEditor:            s.AllowOnlineEditor,
		StaticCodeAnalysisEnabled:    s.StaticCodeAnalysisEnabled,
		MaxStaticCodeAnalysisPenalty: s.MaxStaticCodeAnalysisPenalty,
		ExamMode:                     s.ExamMode,
		Team:                         s.Team,
		ProblemStatement:             s.ProblemStatement,
		Groups:                       s.Groups,
		AuxiliaryRepositories:        s.AuxiliaryRepositories,
	}, nil
}

// ImportExerciseRequest defines the import payload.
type ImportExerciseRequest struct {
	Exercise           ExerciseSettings `json:"exercise"`
	RecreateBuildPlans bool             `json:"recreateBuildPlans"`
}

// UpdateTimingRequest replaces the timing of an exercise.
type UpdateTimingRequest struct {
	ReleaseDate       *time.Time `json:"releaseDate"`
	StartDate         *time.Time `json:"startDate"`
	DueDate           *time.Time `json:"dueDate"`
	AssessmentDueDate *time.Time `json:"assessmentDueDate"`
	AllowOfflineIDE   *bool      `json:"allowOfflineIde"`
	AllowOnlineEditor *bool      `json:"allowOnlineEditor"`
}
