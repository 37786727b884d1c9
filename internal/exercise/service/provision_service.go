package service

import (
	"context"
	"time"

	"exforge/internal/common/cache"
	"exforge/internal/common/db"
	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/clone"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/provision"
	"exforge/internal/exercise/repository"
	"exforge/internal/exercise/vcs"
	pkgerrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// ProvisionService creates new programming exercises from scratch.
type ProvisionService struct {
	database    db.Database
	store       repository.Store
	provisioner *provision.Provisioner
	vcs         vcs.VersionControlClient
	ci          ci.ContinuousIntegrationClient
	guard       cache.Cache
	scheduler   Scheduler
	observer    OutcomeObserver
	lockTTL     time.Duration
}

func NewProvisionService(deps ImportDeps) *ProvisionService {
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultImportLockTTL
	}
	return &ProvisionService{
		lockTTL:     lockTTL,
		database:    deps.Database,
		store:       deps.Store,
		provisioner: deps.Provisioner,
		vcs:         deps.VCS,
		ci:          deps.CI,
		guard:       deps.Guard,
		scheduler:   deps.Scheduler,
		observer:    deps.Observer,
	}
}

// CreateExercise persists ex and creates its repositories and build plans.
func (s *ProvisionService) CreateExercise(ctx context.Context, ex *model.Exercise) (_ *model.Exercise, err error) {
	defer func() {
		if s.observer != nil {
			s.observer.Finished(OperationProvision, outcomeOf(err))
		}
	}()
	if ex == nil {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	if ex.ID != 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("a new exercise must not have an id")
	}
	ex.Kind = model.KindProgramming
	if err := ValidateSettings(ex); err != nil {
		return nil, err
	}
	projectKey := ex.GenerateProjectKey()

	unlock, err := acquireImportLock(ctx, s.guard, s.lockTTL, projectKey)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := checkProjectKey(ctx, s.store, s.vcs, ex); err != nil {
		return nil, err
	}

	err = s.database.Transaction(ctx, func(tx db.Transaction) error {
		return s.persistNew(ctx, tx, ex)
	})
	if err != nil {
		return nil, persistFailure(err, "persist exercise failed")
	}
	ctx = logger.WithExercise(ctx, ex.ID)

	result, err := s.provisioner.Provision(ctx, ex)
	if err != nil {
		logger.Error(ctx, "exercise provisioning failed", zap.Error(err))
		rollback(ctx, s.store, s.vcs, s.ci, ex, result)
		return nil, err
	}
	if err := persistHandles(ctx, s.store, ex); err != nil {
		rollback(ctx, s.store, s.vcs, s.ci, ex, result)
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, ex); err != nil {
			logger.Warn(ctx, "schedule exercise failed", zap.Error(err))
		}
	}
	logger.Info(ctx, "exercise created", zap.String("project_key", projectKey), zap.Strings("builds_triggered", result.BuildsTriggered))
	return ex, nil
}

func (s *ProvisionService) persistNew(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	aux := ex.AuxiliaryRepositories
	ex.AuxiliaryRepositories = nil
	if _, err := s.store.CreateExercise(ctx, tx, ex); err != nil {
		return err
	}
	for pos, a := range aux {
		a.ID = 0
		a.ExerciseID = ex.ID
		a.RepositoryURI = ""
		if _, err := s.store.CreateAuxiliaryRepository(ctx, tx, a, pos); err != nil {
			return err
		}
		ex.AuxiliaryRepositories = append(ex.AuxiliaryRepositories, a)
	}
	if ex.StaticCodeAnalysisEnabled {
		ex.StaticAnalysisCategories = nil
		for _, cat := range clone.DefaultCategories(ex.Language, ex.ID) {
			if _, err := s.store.CreateCategory(ctx, tx, cat); err != nil {
				return err
			}
			ex.StaticAnalysisCategories = append(ex.StaticAnalysisCategories, cat)
		}
	}
	return createParticipations(ctx, tx, s.store, ex)
}
