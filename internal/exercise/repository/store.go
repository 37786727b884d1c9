package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
)

var (
	ErrExerciseNotFound      = errors.New("exercise not found")
	ErrParticipationNotFound = errors.New("participation not found")
	ErrAuxiliaryNotFound     = errors.New("auxiliary repository not found")
	ErrHintNotFound          = errors.New("hint not found")
	ErrProjectKeyExists      = errors.New("project key already exists")
)

// ExerciseRepository persists the exercise aggregate root.
type ExerciseRepository interface {
	CreateExercise(ctx context.Context, tx db.Transaction, exercise *model.Exercise) (int64, error)
	UpdateExercise(ctx context.Context, tx db.Transaction, exercise *model.Exercise) error
	GetExercise(ctx context.Context, tx db.Transaction, exerciseID int64) (*model.Exercise, error)
	// LoadGraph loads the exercise with every child collection and both exercise participations.
	LoadGraph(ctx context.Context, tx db.Transaction, exerciseID int64) (*model.Exercise, error)
	// DeleteExercise removes the exercise and all child rows.
	DeleteExercise(ctx context.Context, tx db.Transaction, exerciseID int64) error
	ProjectKeyExists(ctx context.Context, tx db.Transaction, projectKey string) (bool, error)
	ExerciseExists(ctx context.Context, tx db.Transaction, exerciseID int64) (bool, error)
}

// ContentRepository persists the content graph below an exercise.
type ContentRepository interface {
	CreateSubmissionPolicy(ctx context.Context, tx db.Transaction, policy *model.SubmissionPolicy) (int64, error)
	CreateTestCase(ctx context.Context, tx db.Transaction, testCase *model.TestCase) (int64, error)
	CreateTask(ctx context.Context, tx db.Transaction, task *model.Task) (int64, error)
	DeleteTasks(ctx context.Context, tx db.Transaction, exerciseID int64) error
	CreateHint(ctx context.Context, tx db.Transaction, hint *model.Hint) (int64, error)
	UpdateHintTask(ctx context.Context, tx db.Transaction, hintID, taskID int64) error
	CreateSolutionEntry(ctx context.Context, tx db.Transaction, entry *model.SolutionEntry) (int64, error)
	CreateCategory(ctx context.Context, tx db.Transaction, category *model.StaticAnalysisCategory) (int64, error)
	DeleteCategories(ctx context.Context, tx db.Transaction, exerciseID int64) error
	CreateAuxiliaryRepository(ctx context.Context, tx db.Transaction, aux *model.AuxiliaryRepository, position int) (int64, error)
	UpdateAuxiliaryRepositoryURI(ctx context.Context, tx db.Transaction, auxID int64, uri string) error
}

// ParticipationRepository persists participations.
type ParticipationRepository interface {
	CreateParticipation(ctx context.Context, tx db.Transaction, participation *model.Participation) (int64, error)
	UpdateParticipation(ctx context.Context, tx db.Transaction, participation *model.Participation) error
	GetParticipation(ctx context.Context, tx db.Transaction, participationID int64) (*model.Participation, error)
	ListStudentParticipations(ctx context.Context, tx db.Transaction, exerciseID int64) ([]*model.Participation, error)
	SetLocked(ctx context.Context, tx db.Transaction, participationIDs []int64, locked bool) error
}

// Store is the full entity store.
type Store interface {
	ExerciseRepository
	ContentRepository
	ParticipationRepository
}

// SQLStore implements Store on MySQL or PostgreSQL.
type SQLStore struct {
	db db.Database
}

// NewSQLStore creates a store on top of an open database.
func NewSQLStore(database db.Database) *SQLStore {
	return &SQLStore{db: database}
}

func (s *SQLStore) q(tx db.Transaction) db.Querier {
	return db.GetQuerier(s.db, tx)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func requireAffected(result db.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
