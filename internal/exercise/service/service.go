// Package service exposes the exercise use cases consumed by the HTTP layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"exforge/internal/common/db"
	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/provision"
	"exforge/internal/exercise/repository"
	"exforge/internal/exercise/vcs"
	pkgerrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	importLockPrefix     = "exercise:import:"
	defaultImportLockTTL = 10 * time.Minute
)

// Scheduler registers the start and due dates of an exercise.
type Scheduler interface {
	Schedule(ctx context.Context, ex *model.Exercise) error
	Cancel(ctx context.Context, exerciseID int64) error
}

// OutcomeObserver is told how an import or creation ended.
type OutcomeObserver interface {
	Finished(operation, outcome string)
}

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeConflict    = "conflict"
	OutcomeFailed      = "failed"
	OperationImport    = "import"
	OperationProvision = "provision"
)

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch code := pkgerrors.GetCode(err); {
	case code == pkgerrors.ProjectKeyAlreadyExists || code == pkgerrors.ImportInProgress:
		return OutcomeConflict
	case code.HTTPStatus() == http.StatusBadRequest:
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

func loadExercise(ctx context.Context, store repository.Store, exerciseID int64, graph bool) (*model.Exercise, error) {
	if exerciseID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	var (
		ex  *model.Exercise
		err error
	)
	if graph {
		ex, err = store.LoadGraph(ctx, nil, exerciseID)
	} else {
		ex, err = store.GetExercise(ctx, nil, exerciseID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrExerciseNotFound) {
			return nil, pkgerrors.New(pkgerrors.ExerciseNotFound).WithDetail("exerciseId", exerciseID)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("load exercise failed: %w", err), pkgerrors.DatabaseError)
	}
	return ex, nil
}

// createParticipations stores the template and solution participations of a
// freshly persisted exercise.
func createParticipations(ctx context.Context, tx db.Transaction, store repository.Store, ex *model.Exercise) error {
	for _, p := range []**model.Participation{&ex.TemplateParticipation, &ex.SolutionParticipation} {
		pType := model.ParticipationTemplate
		if p == &ex.SolutionParticipation {
			pType = model.ParticipationSolution
		}
		*p = &model.Participation{ExerciseID: ex.ID, Type: pType, State: model.StateInitialized}
		if _, err := store.CreateParticipation(ctx, tx, *p); err != nil {
			return fmt.Errorf("create %s participation failed: %w", pType, err)
		}
	}
	return nil
}

// persistHandles writes the repository addresses and plan ids chosen by the
// provisioner back to the store.
func persistHandles(ctx context.Context, store repository.Store, ex *model.Exercise) error {
	for _, p := range []*model.Participation{ex.TemplateParticipation, ex.SolutionParticipation} {
		if err := store.UpdateParticipation(ctx, nil, p); err != nil {
			return fmt.Errorf("update %s participation failed: %w", p.Type, err)
		}
	}
	for _, aux := range ex.AuxiliaryRepositories {
		if err := store.UpdateAuxiliaryRepositoryURI(ctx, nil, aux.ID, aux.RepositoryURI); err != nil {
			return fmt.Errorf("update auxiliary repository %s failed: %w", aux.Name, err)
		}
	}
	if err := store.UpdateExercise(ctx, nil, ex); err != nil {
		return fmt.Errorf("update exercise failed: %w", err)
	}
	return nil
}

// rollback undoes a failed provisioning: the external resources recorded in
// the ledger and the local graph. Failures are logged.
func rollback(ctx context.Context, store repository.Store, vcsClient vcs.VersionControlClient, ciClient ci.ContinuousIntegrationClient, ex *model.Exercise, result *provision.Result) {
	if result != nil && result.Ledger != nil {
		if err := result.Ledger.Compensate(ctx, vcsClient, ciClient); err != nil {
			logger.Warn(ctx, "compensate external resources failed", zap.Error(err))
		}
	}
	if ex != nil && ex.ID > 0 {
		if err := store.DeleteExercise(ctx, nil, ex.ID); err != nil && !errors.Is(err, repository.ErrExerciseNotFound) {
			logger.Warn(ctx, "delete partially imported exercise failed", zap.Int64("exercise_id", ex.ID), zap.Error(err))
		}
	}
}

// persistFailure maps a failed local write to a coded error. A project key
// taken by a concurrent writer surfaces as ProjectKeyAlreadyExists.
func persistFailure(err error, msg string) error {
	if errors.Is(err, repository.ErrProjectKeyExists) {
		return pkgerrors.New(pkgerrors.ProjectKeyAlreadyExists)
	}
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(fmt.Errorf("%s: %w", msg, err), pkgerrors.DatabaseError)
}
