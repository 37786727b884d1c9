package service

import (
	"context"
	"errors"
	"fmt"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/repository"
	"exforge/internal/exercise/statement"
	pkgerrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// TaskService derives the tasks of an exercise from its problem statement.
type TaskService struct {
	database db.Database
	store    repository.Store
}

func NewTaskService(database db.Database, store repository.Store) *TaskService {
	return &TaskService{database: database, store: store}
}

// RegenerateTasks replaces the tasks of an exercise with the [task] entries of
// its problem statement. Tests may be referenced by name or id token; unknown
// references are dropped. Hints keep their task when a task of the same name
// is regenerated.
func (s *TaskService) RegenerateTasks(ctx context.Context, exerciseID int64) ([]*model.Task, error) {
	ex, err := loadExercise(ctx, s.store, exerciseID, true)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithExercise(ctx, exerciseID)

	byName := make(map[string]int64, len(ex.TestCases))
	byID := make(map[int64]bool, len(ex.TestCases))
	for _, tc := range ex.TestCases {
		byName[tc.Name] = tc.ID
		byID[tc.ID] = true
	}
	oldTaskNames := make(map[int64]string, len(ex.Tasks))
	for _, t := range ex.Tasks {
		oldTaskNames[t.ID] = t.Name
	}

	var tasks []*model.Task
	for _, entry := range statement.ParseTasks(ex.ProblemStatement) {
		task := &model.Task{ExerciseID: exerciseID, Name: entry.Name}
		seen := make(map[int64]bool, len(entry.Tests))
		for _, ref := range entry.Tests {
			id, ok := statement.ParseIDToken(ref)
			if ok && !byID[id] {
				ok = false
			}
			if !ok {
				id, ok = byName[ref]
			}
			if !ok {
				logger.Debug(ctx, "task references unknown test", zap.String("task", entry.Name), zap.String("test", ref))
				continue
			}
			if !seen[id] {
				seen[id] = true
				task.TestCaseIDs = append(task.TestCaseIDs, id)
			}
		}
		tasks = append(tasks, task)
	}

	err = s.database.Transaction(ctx, func(tx db.Transaction) error {
		if err := s.store.DeleteTasks(ctx, tx, exerciseID); err != nil {
			return err
		}
		newByName := make(map[string]*model.Task, len(tasks))
		for _, task := range tasks {
			if _, err := s.store.CreateTask(ctx, tx, task); err != nil {
				return err
			}
			if _, dup := newByName[task.Name]; !dup {
				newByName[task.Name] = task
			}
		}
		for _, hint := range ex.Hints {
			if hint.TaskID == 0 {
				continue
			}
			task, ok := newByName[oldTaskNames[hint.TaskID]]
			if !ok {
				continue
			}
			if err := s.store.UpdateHintTask(ctx, tx, hint.ID, task.ID); err != nil {
				return err
			}
			task.HintIDs = append(task.HintIDs, hint.ID)
		}
		return nil
	})
	if err != nil {
		var appErr *pkgerrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("regenerate tasks failed: %w", err), pkgerrors.DatabaseError)
	}
	logger.Info(ctx, "tasks regenerated", zap.Int("tasks", len(tasks)))
	return tasks, nil
}
