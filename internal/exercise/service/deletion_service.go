package service

import (
	"context"
	"errors"
	"fmt"

	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/repository"
	"exforge/internal/exercise/vcs"
	pkgerrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// DeletionService removes an exercise with everything it owns.
type DeletionService struct {
	store     repository.Store
	vcs       vcs.VersionControlClient
	ci        ci.ContinuousIntegrationClient
	scheduler Scheduler
	cleanup   *ExerciseCleanupPublisher
}

func NewDeletionService(store repository.Store, vcsClient vcs.VersionControlClient, ciClient ci.ContinuousIntegrationClient, scheduler Scheduler, cleanup *ExerciseCleanupPublisher) *DeletionService {
	return &DeletionService{store: store, vcs: vcsClient, ci: ciClient, scheduler: scheduler, cleanup: cleanup}
}

// DeleteExercise deletes build plans, repositories and both projects before
// the local records. Resources that are already gone are skipped.
func (s *DeletionService) DeleteExercise(ctx context.Context, exerciseID int64) error {
	ex, err := loadExercise(ctx, s.store, exerciseID, true)
	if err != nil {
		return err
	}
	ctx = logger.WithExercise(ctx, exerciseID)
	students, err := s.store.ListStudentParticipations(ctx, nil, exerciseID)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("list participations failed: %w", err), pkgerrors.DatabaseError)
	}

	if ex.Kind.HasRepositories() && ex.ProjectKey != "" {
		if err := s.deleteBuildPlans(ctx, ex, students); err != nil {
			return err
		}
		if err := s.deleteRepositories(ctx, ex, students); err != nil {
			return err
		}
	}

	if err := s.store.DeleteExercise(ctx, nil, exerciseID); err != nil {
		if errors.Is(err, repository.ErrExerciseNotFound) {
			return pkgerrors.New(pkgerrors.ExerciseNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("delete exercise failed: %w", err), pkgerrors.ExerciseDeleteFailed)
	}
	if s.scheduler != nil {
		if err := s.scheduler.Cancel(ctx, exerciseID); err != nil {
			logger.Warn(ctx, "cancel exercise schedule failed", zap.Error(err))
		}
	}
	if s.cleanup != nil {
		if err := s.cleanup.PublishExerciseDeleted(ctx, exerciseID); err != nil {
			logger.Warn(ctx, "publish cleanup event failed", zap.Int64("exercise_id", exerciseID), zap.Error(err))
		}
	}
	logger.Info(ctx, "exercise deleted", zap.String("project_key", ex.ProjectKey), zap.Int("student_participations", len(students)))
	return nil
}

func (s *DeletionService) deleteBuildPlans(ctx context.Context, ex *model.Exercise, students []*model.Participation) error {
	var plans []string
	for _, p := range append([]*model.Participation{ex.TemplateParticipation, ex.SolutionParticipation}, students...) {
		if p != nil && p.BuildPlanID != "" {
			plans = append(plans, p.BuildPlanID)
		}
	}
	for _, id := range plans {
		if err := s.ci.DeleteBuildPlan(ctx, id); err != nil && !errors.Is(err, ci.ErrPlanNotFound) {
			return pkgerrors.Wrapf(err, pkgerrors.CIProvisioningFailed, "delete build plan %s", id)
		}
	}
	if err := s.ci.DeleteProject(ctx, ex.ProjectKey); err != nil && !errors.Is(err, ci.ErrProjectNotFound) {
		return pkgerrors.Wrapf(err, pkgerrors.CIProvisioningFailed, "delete ci project %s", ex.ProjectKey)
	}
	return nil
}

func (s *DeletionService) deleteRepositories(ctx context.Context, ex *model.Exercise, students []*model.Participation) error {
	var uris []string
	for _, t := range model.BaseRepositoryTypes {
		uris = append(uris, ex.RepositoryURIFor(t))
	}
	for _, aux := range ex.AuxiliaryRepositories {
		uris = append(uris, aux.RepositoryURI)
	}
	for _, p := range students {
		uris = append(uris, p.RepositoryURI)
	}
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if err := s.vcs.DeleteRepository(ctx, uri); err != nil && !errors.Is(err, vcs.ErrRepositoryNotFound) {
			return pkgerrors.Wrapf(err, pkgerrors.VCSProvisioningFailed, "delete repository %s", uri)
		}
	}
	if err := s.vcs.DeleteProject(ctx, ex.ProjectKey); err != nil && !errors.Is(err, vcs.ErrProjectNotFound) {
		return pkgerrors.Wrapf(err, pkgerrors.VCSProvisioningFailed, "delete vcs project %s", ex.ProjectKey)
	}
	return nil
}
