package controller

import (
	"context"
	"strconv"
	"time"

	"exforge/internal/exercise/access"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/service"
	"exforge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Importer copies an existing exercise into a new one.
type Importer interface {
	ImportExercise(ctx context.Context, input service.ImportInput) (*model.Exercise, error)
}

// Creator provisions a brand new exercise.
type Creator interface {
	CreateExercise(ctx context.Context, ex *model.Exercise) (*model.Exercise, error)
}

// TimingUpdater changes timing and tool policy.
type TimingUpdater interface {
	UpdateTiming(ctx context.Context, exerciseID int64, input service.TimingInput) (*service.UpdateResult, error)
}

// Deleter removes an exercise with its external resources.
type Deleter interface {
	DeleteExercise(ctx context.Context, exerciseID int64) error
}

// TaskRegenerator rebuilds tasks from the problem statement.
type TaskRegenerator interface {
	RegenerateTasks(ctx context.Context, exerciseID int64) ([]*model.Task, error)
}

// ExerciseController handles exercise lifecycle HTTP endpoints.
type ExerciseController struct {
	importer Importer
	creator  Creator
	updater  TimingUpdater
	deleter  Deleter
	tasks    TaskRegenerator
}

// NewExerciseController creates a new ExerciseController.
func NewExerciseController(importer Importer, creator Creator, updater TimingUpdater, deleter Deleter, tasks TaskRegenerator) *ExerciseController {
	return &ExerciseController{
		importer: importer,
		creator:  creator,
		updater:  updater,
		deleter:  deleter,
		tasks:    tasks,
	}
}

// Import handles an import of the exercise in the path into a new exercise.
func (h *ExerciseController) Import(c *gin.Context) {
	sourceID, ok := exerciseID(c)
	if !ok {
		return
	}
	var req ImportExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	target, err := req.Exercise.toModel()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ex, err := h.importer.ImportExercise(c.Request.Context(), service.ImportInput{
		SourceExerciseID:   sourceID,
		Target:             target,
		RecreateBuildPlans: req.RecreateBuildPlans,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, newExerciseResponse(ex))
}

// Create handles creation of an exercise from scratch.
func (h *ExerciseController) Create(c *gin.Context) {
	var req ExerciseSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	ex, err := req.toModel()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	created, err := h.creator.CreateExercise(c.Request.Context(), ex)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, newExerciseResponse(created))
}

// UpdateTiming handles timing and tool policy changes.
func (h *ExerciseController) UpdateTiming(c *gin.Context) {
	id, ok := exerciseID(c)
	if !ok {
		return
	}
	var req UpdateTimingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.updater.UpdateTiming(c.Request.Context(), id, service.TimingInput{
		ReleaseDate:       req.ReleaseDate,
		StartDate:         req.StartDate,
		DueDate:           req.DueDate,
		AssessmentDueDate: req.AssessmentDueDate,
		AllowOfflineIDE:   req.AllowOfflineIDE,
		AllowOnlineEditor: req.AllowOnlineEditor,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := UpdateTimingResponse{
		Exercise: newExerciseResponse(result.Exercise),
		Commands: make([]string, 0, len(result.Commands)),
	}
	for _, cmd := range result.Commands {
		resp.Commands = append(resp.Commands, commandName(cmd))
	}
	response.Success(c, resp)
}

// Delete handles exercise deletion.
func (h *ExerciseController) Delete(c *gin.Context) {
	id, ok := exerciseID(c)
	if !ok {
		return
	}
	if err := h.deleter.DeleteExercise(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Exercise deleted", nil)
}

// RegenerateTasks handles task extraction from the problem statement.
func (h *ExerciseController) RegenerateTasks(c *gin.Context) {
	id, ok := exerciseID(c)
	if !ok {
		return
	}
	tasks, err := h.tasks.RegenerateTasks(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, TasksResponse{Tasks: tasks})
}

func exerciseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid exercise id")
		return 0, false
	}
	return id, true
}

func commandName(cmd access.Command) string {
	if cmd.Kind == access.LockParticipationsWithEarlierDueDate && cmd.WithRepositories {
		return string(cmd.Kind) + "_AND_REPOSITORIES"
	}
	return string(cmd.Kind)
}

// ExerciseResponse is the summary returned after lifecycle operations.
type ExerciseResponse struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	ShortName         string     `json:"shortName"`
	ProjectKey        string     `json:"projectKey"`
	ReleaseDate       *time.Time `json:"releaseDate,omitempty"`
	StartDate         *time.Time `json:"startDate,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	AllowOfflineIDE   bool       `json:"allowOfflineIde"`
	AllowOnlineEditor bool       `json:"allowOnlineEditor"`
	TemplateRepoURI   string     `json:"templateRepositoryUri,omitempty"`
	SolutionRepoURI   string     `json:"solutionRepositoryUri,omitempty"`
	TestRepoURI       string     `json:"testRepositoryUri,omitempty"`
	TestCaseCount     int        `json:"testCaseCount"`
}

func newExerciseResponse(ex *model.Exercise) ExerciseResponse {
	return ExerciseResponse{
		ID:                ex.ID,
		Title:             ex.Title,
		ShortName:         ex.ShortName,
		ProjectKey:        ex.ProjectKey,
		ReleaseDate:       ex.ReleaseDate,
		StartDate:         ex.StartDate,
		DueDate:           ex.DueDate,
		AllowOfflineIDE:   ex.AllowOfflineIDE,
		AllowOnlineEditor: ex.AllowOnlineEditor,
		TemplateRepoURI:   ex.RepositoryURIFor(model.RepositoryTemplate),
		SolutionRepoURI:   ex.RepositoryURIFor(model.RepositorySolution),
		TestRepoURI:       ex.TestRepositoryURI,
		TestCaseCount:     len(ex.TestCases),
	}
}

// UpdateTimingResponse carries the stored exercise and the issued commands.
type UpdateTimingResponse struct {
	Exercise ExerciseResponse `json:"exercise"`
	Commands []string         `json:"commands"`
}

// TasksResponse lists regenerated tasks.
type TasksResponse struct {
	Tasks []*model.Task `json:"tasks"`
}
