package service

import (
	"context"
	"fmt"
	"time"

	"exforge/internal/exercise/access"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/repository"
	pkgerrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// AccessSynchronizer issues lock/unlock commands for a configuration change.
type AccessSynchronizer interface {
	Synchronize(ctx context.Context, exerciseID int64, before, after access.Snapshot) []access.Command
}

// TimingInput replaces the timing and tool policy of an exercise. Nil dates
// clear the value; nil flags keep the current value.
type TimingInput struct {
	ReleaseDate       *time.Time
	StartDate         *time.Time
	DueDate           *time.Time
	AssessmentDueDate *time.Time
	AllowOfflineIDE   *bool
	AllowOnlineEditor *bool
}

// UpdateResult reports the stored exercise and the issued access commands.
type UpdateResult struct {
	Exercise *model.Exercise
	Commands []access.Command
}

// UpdateService applies configuration changes and keeps student access in sync.
type UpdateService struct {
	store        repository.Store
	synchronizer AccessSynchronizer
	scheduler    Scheduler
}

func NewUpdateService(store repository.Store, synchronizer AccessSynchronizer, scheduler Scheduler) *UpdateService {
	return &UpdateService{store: store, synchronizer: synchronizer, scheduler: scheduler}
}

// UpdateTiming stores the new timing and tool policy, then locks or unlocks
// student repositories and participations as needed.
func (s *UpdateService) UpdateTiming(ctx context.Context, exerciseID int64, input TimingInput) (*UpdateResult, error) {
	ex, err := loadExercise(ctx, s.store, exerciseID, false)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithExercise(ctx, exerciseID)
	before := access.SnapshotOf(ex)

	ex.ReleaseDate = input.ReleaseDate
	ex.StartDate = input.StartDate
	ex.DueDate = input.DueDate
	ex.AssessmentDueDate = input.AssessmentDueDate
	if input.AllowOfflineIDE != nil {
		ex.AllowOfflineIDE = *input.AllowOfflineIDE
	}
	if input.AllowOnlineEditor != nil {
		ex.AllowOnlineEditor = *input.AllowOnlineEditor
	}
	if err := validateTiming(ex); err != nil {
		return nil, err
	}
	if err := s.store.UpdateExercise(ctx, nil, ex); err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("update exercise failed: %w", err), pkgerrors.ExerciseUpdateFailed)
	}

	result := &UpdateResult{Exercise: ex}
	if ex.Kind.HasRepositories() && s.synchronizer != nil {
		result.Commands = s.synchronizer.Synchronize(ctx, exerciseID, before, access.SnapshotOf(ex))
	}
	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, ex); err != nil {
			logger.Warn(ctx, "reschedule exercise failed", zap.Error(err))
		}
	}
	return result, nil
}

func validateTiming(ex *model.Exercise) error {
	if !ex.AllowOnlineEditor && !ex.AllowOfflineIDE {
		return pkgerrors.New(pkgerrors.ConflictingFeatureFlags).
			WithMessage("at least one of the online editor or the offline IDE must be allowed")
	}
	if ex.StartDate != nil && ex.ReleaseDate != nil && ex.StartDate.Before(*ex.ReleaseDate) {
		return pkgerrors.ValidationError("startDate", "start date is before the release date")
	}
	if ex.DueDate != nil {
		if start := ex.ParticipationStartDate(); start != nil && ex.DueDate.Before(*start) {
			return pkgerrors.ValidationError("dueDate", "due date is before the start date")
		}
	}
	if ex.AssessmentDueDate != nil && ex.DueDate != nil && ex.AssessmentDueDate.Before(*ex.DueDate) {
		return pkgerrors.ValidationError("assessmentDueDate", "assessment due date is before the due date")
	}
	return nil
}
