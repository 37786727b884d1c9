package service

import (
	"context"
	"fmt"
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

// ImportInput describes an import of an existing exercise into a new one.
type ImportInput struct {
	SourceExerciseID   int64
	Target             *model.Exercise
	RecreateBuildPlans bool
}

// ImportService copies an exercise including its repositories and build plans.
type ImportService struct {
	database    db.Database
	store       repository.Store
	cloner      *clone.Cloner
	provisioner *provision.Provisioner
	vcs         vcs.VersionControlClient
	ci          ci.ContinuousIntegrationClient
	guard       cache.Cache
	scheduler   Scheduler
	observer    OutcomeObserver
	lockTTL     time.Duration
}

// ImportDeps groups the collaborators of ImportService. Guard, Scheduler and
// Observer are optional.
type ImportDeps struct {
	Database    db.Database
	Store       repository.Store
	Cloner      *clone.Cloner
	Provisioner *provision.Provisioner
	VCS         vcs.VersionControlClient
	CI          ci.ContinuousIntegrationClient
	Guard       cache.Cache
	Scheduler   Scheduler
	Observer    OutcomeObserver
	LockTTL     time.Duration
}

func NewImportService(deps ImportDeps) *ImportService {
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultImportLockTTL
	}
	cloner := deps.Cloner
	if cloner == nil {
		cloner = clone.NewCloner(deps.Store, nil)
	}
	return &ImportService{
		database:    deps.Database,
		store:       deps.Store,
		cloner:      cloner,
		provisioner: deps.Provisioner,
		vcs:         deps.VCS,
		ci:          deps.CI,
		guard:       deps.Guard,
		scheduler:   deps.Scheduler,
		observer:    deps.Observer,
		lockTTL:     lockTTL,
	}
}

// ImportExercise copies the source exercise into input.Target and mirrors its
// repositories and build plans. On a provisioning failure the created external
// resources and the local graph are removed again.
func (s *ImportService) ImportExercise(ctx context.Context, input ImportInput) (ex *model.Exercise, err error) {
	defer func() {
		if s.observer != nil {
			s.observer.Finished(OperationImport, outcomeOf(err))
		}
	}()
	if input.SourceExerciseID <= 0 || input.Target == nil {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	source, err := loadExercise(ctx, s.store, input.SourceExerciseID, true)
	if err != nil {
		return nil, err
	}

	target := input.Target
	target.ID = 0
	target.Kind = model.KindProgramming
	target.TemplateParticipation = nil
	target.SolutionParticipation = nil
	target.TestRepositoryURI = ""
	if target.ExamMode && target.Team != nil {
		logger.Debug(ctx, "team config dropped for exam exercise")
		target.Team = nil
	}
	if err := ValidateSettings(target); err != nil {
		return nil, err
	}
	projectKey := target.GenerateProjectKey()
	if projectKey == "" {
		return nil, pkgerrors.ValidationError("projectKey", "project key is empty")
	}

	unlock, err := acquireImportLock(ctx, s.guard, s.lockTTL, projectKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := checkProjectKey(ctx, s.store, s.vcs, target); err != nil {
		return nil, err
	}

	err = s.database.Transaction(ctx, func(tx db.Transaction) error {
		if _, _, err := s.cloner.Clone(ctx, tx, source, target); err != nil {
			return err
		}
		return createParticipations(ctx, tx, s.store, target)
	})
	if err != nil {
		return nil, persistFailure(err, "persist imported exercise failed")
	}
	ctx = logger.WithExercise(ctx, target.ID)

	result, err := s.provisioner.ImportFromTemplate(ctx, source, target, provision.ImportOptions{RecreateBuildPlans: input.RecreateBuildPlans})
	if err != nil {
		logger.Error(ctx, "import provisioning failed", zap.Int64("source_exercise_id", source.ID), zap.Error(err))
		rollback(ctx, s.store, s.vcs, s.ci, target, result)
		return nil, err
	}
	if err := persistHandles(ctx, s.store, target); err != nil {
		rollback(ctx, s.store, s.vcs, s.ci, target, result)
		return nil, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, target); err != nil {
			logger.Warn(ctx, "schedule imported exercise failed", zap.Error(err))
		}
	}
	logger.Info(ctx, "exercise imported",
		zap.Int64("source_exercise_id", source.ID),
		zap.String("project_key", projectKey),
		zap.Strings("builds_triggered", result.BuildsTriggered),
		zap.Int("unadapted_repositories", len(result.Unadapted)),
	)
	return target, nil
}

// acquireImportLock guards a project key against concurrent imports. A nil
// guard disables the check.
func acquireImportLock(ctx context.Context, guard cache.Cache, ttl time.Duration, projectKey string) (func(), error) {
	if guard == nil {
		return func() {}, nil
	}
	key := importLockPrefix + projectKey
	ok, err := guard.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("acquire import lock failed: %w", err), pkgerrors.LockFailed)
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.ImportInProgress).WithDetail("projectKey", projectKey)
	}
	return func() {
		if err := guard.Unlock(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn(ctx, "release import lock failed", zap.String("project_key", projectKey), zap.Error(err))
		}
	}, nil
}

// checkProjectKey rejects keys already used locally or on the VCS server.
func checkProjectKey(ctx context.Context, store repository.Store, vcsClient vcs.VersionControlClient, target *model.Exercise) error {
	exists, err := store.ProjectKeyExists(ctx, nil, target.ProjectKey)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("check project key failed: %w", err), pkgerrors.DatabaseError)
	}
	if !exists {
		exists, err = vcsClient.ProjectExists(ctx, target.ProjectKey, provision.ProjectName(target))
		if err != nil {
			return pkgerrors.Wrap(fmt.Errorf("check vcs project failed: %w", err), pkgerrors.VCSProvisioningFailed)
		}
	}
	if exists {
		return pkgerrors.New(pkgerrors.ProjectKeyAlreadyExists).WithDetail("projectKey", target.ProjectKey)
	}
	return nil
}
