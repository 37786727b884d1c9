package repository

import (
	"context"
	"database/sql"
	"errors"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
)

func (s *SQLStore) CreateSubmissionPolicy(ctx context.Context, tx db.Transaction, policy *model.SubmissionPolicy) (int64, error) {
	if policy == nil {
		return 0, errors.New("submission policy is nil")
	}
	query := "INSERT INTO submission_policy (exercise_id, type, submission_limit, exceeding_penalty, active) VALUES (?, ?, ?, ?, ?)"
	id, err := db.InsertID(ctx, s.q(tx), query, policy.ExerciseID, string(policy.Type), policy.SubmissionLimit, policy.ExceedingPenalty, policy.Active)
	if err != nil {
		return 0, err
	}
	policy.ID = id
	return id, nil
}

func (s *SQLStore) CreateTestCase(ctx context.Context, tx db.Transaction, testCase *model.TestCase) (int64, error) {
	if testCase == nil {
		return 0, errors.New("test case is nil")
	}
	query := `INSERT INTO test_case (exercise_id, name, active, visibility, weight, bonus_multiplier, bonus_points, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := db.InsertID(ctx, s.q(tx), query,
		testCase.ExerciseID, testCase.Name, testCase.Active, string(testCase.Visibility),
		testCase.Weight, testCase.BonusMultiplier, testCase.BonusPoints, string(testCase.Type),
	)
	if err != nil {
		return 0, err
	}
	testCase.ID = id
	return id, nil
}

func (s *SQLStore) CreateTask(ctx context.Context, tx db.Transaction, task *model.Task) (int64, error) {
	if task == nil {
		return 0, errors.New("task is nil")
	}
	q := s.q(tx)
	id, err := db.InsertID(ctx, q, "INSERT INTO exercise_task (exercise_id, name) VALUES (?, ?)", task.ExerciseID, task.Name)
	if err != nil {
		return 0, err
	}
	for pos, testCaseID := range task.TestCaseIDs {
		if _, err := q.Exec(ctx, "INSERT INTO exercise_task_test_case (task_id, test_case_id, position) VALUES (?, ?, ?)", id, testCaseID, pos); err != nil {
			return 0, err
		}
	}
	task.ID = id
	return id, nil
}

func (s *SQLStore) DeleteTasks(ctx context.Context, tx db.Transaction, exerciseID int64) error {
	q := s.q(tx)
	if _, err := q.Exec(ctx, "UPDATE exercise_hint SET task_id = NULL WHERE exercise_id = ?", exerciseID); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, "DELETE FROM exercise_task_test_case WHERE task_id IN (SELECT id FROM exercise_task WHERE exercise_id = ?)", exerciseID); err != nil {
		return err
	}
	_, err := q.Exec(ctx, "DELETE FROM exercise_task WHERE exercise_id = ?", exerciseID)
	return err
}

func (s *SQLStore) CreateHint(ctx context.Context, tx db.Transaction, hint *model.Hint) (int64, error) {
	if hint == nil {
		return 0, errors.New("hint is nil")
	}
	query := "INSERT INTO exercise_hint (exercise_id, task_id, title, description, content, kind) VALUES (?, ?, ?, ?, ?, ?)"
	id, err := db.InsertID(ctx, s.q(tx), query, hint.ExerciseID, nullID(hint.TaskID), hint.Title, hint.Description, hint.Content, string(hint.Kind))
	if err != nil {
		return 0, err
	}
	hint.ID = id
	return id, nil
}

func (s *SQLStore) UpdateHintTask(ctx context.Context, tx db.Transaction, hintID, taskID int64) error {
	result, err := s.q(tx).Exec(ctx, "UPDATE exercise_hint SET task_id = ? WHERE id = ?", nullID(taskID), hintID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrHintNotFound)
}

func (s *SQLStore) CreateSolutionEntry(ctx context.Context, tx db.Transaction, entry *model.SolutionEntry) (int64, error) {
	if entry == nil {
		return 0, errors.New("solution entry is nil")
	}
	query := `INSERT INTO solution_entry (test_case_id, code_hint_id, file_path, code, previous_code, line, previous_line)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	id, err := db.InsertID(ctx, s.q(tx), query,
		entry.TestCaseID, nullID(entry.CodeHintID), entry.FilePath, entry.Code, entry.PreviousCode, entry.Line, entry.PreviousLine,
	)
	if err != nil {
		return 0, err
	}
	entry.ID = id
	return id, nil
}

func (s *SQLStore) CreateCategory(ctx context.Context, tx db.Transaction, category *model.StaticAnalysisCategory) (int64, error) {
	if category == nil {
		return 0, errors.New("category is nil")
	}
	query := "INSERT INTO static_code_analysis_category (exercise_id, name, penalty, max_penalty, state) VALUES (?, ?, ?, ?, ?)"
	id, err := db.InsertID(ctx, s.q(tx), query, category.ExerciseID, category.Name, category.Penalty, category.MaxPenalty, string(category.State))
	if err != nil {
		return 0, err
	}
	category.ID = id
	return id, nil
}

func (s *SQLStore) DeleteCategories(ctx context.Context, tx db.Transaction, exerciseID int64) error {
	_, err := s.q(tx).Exec(ctx, "DELETE FROM static_code_analysis_category WHERE exercise_id = ?", exerciseID)
	return err
}

func (s *SQLStore) CreateAuxiliaryRepository(ctx context.Context, tx db.Transaction, aux *model.AuxiliaryRepository, position int) (int64, error) {
	if aux == nil {
		return 0, errors.New("auxiliary repository is nil")
	}
	query := `INSERT INTO auxiliary_repository (exercise_id, position, name, checkout_directory, description, repository_uri)
		VALUES (?, ?, ?, ?, ?, ?)`
	id, err := db.InsertID(ctx, s.q(tx), query, aux.ExerciseID, position, aux.Name, aux.CheckoutDirectory, aux.Description, aux.RepositoryURI)
	if err != nil {
		return 0, err
	}
	aux.ID = id
	return id, nil
}

func (s *SQLStore) UpdateAuxiliaryRepositoryURI(ctx context.Context, tx db.Transaction, auxID int64, uri string) error {
	result, err := s.q(tx).Exec(ctx, "UPDATE auxiliary_repository SET repository_uri = ? WHERE id = ?", uri, auxID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrAuxiliaryNotFound)
}

func (s *SQLStore) loadSubmissionPolicy(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	var (
		p          model.SubmissionPolicy
		policyType string
	)
	err := s.q(tx).QueryRow(ctx,
		"SELECT id, exercise_id, type, submission_limit, exceeding_penalty, active FROM submission_policy WHERE exercise_id = ?",
		ex.ID,
	).Scan(&p.ID, &p.ExerciseID, &policyType, &p.SubmissionLimit, &p.ExceedingPenalty, &p.Active)
	if err != nil {
		if db.IsNoRows(err) {
			return nil
		}
		return err
	}
	p.Type = model.SubmissionPolicyType(policyType)
	ex.SubmissionPolicy = &p
	return nil
}

func (s *SQLStore) loadTestCases(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	rows, err := s.q(tx).Query(ctx,
		`SELECT id, exercise_id, name, active, visibility, weight, bonus_multiplier, bonus_points, type
		FROM test_case WHERE exercise_id = ? ORDER BY id`, ex.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := make(map[int64]*model.TestCase)
	for rows.Next() {
		var (
			tc                 model.TestCase
			visibility, tcType string
		)
		if err := rows.Scan(&tc.ID, &tc.ExerciseID, &tc.Name, &tc.Active, &visibility, &tc.Weight, &tc.BonusMultiplier, &tc.BonusPoints, &tcType); err != nil {
			return err
		}
		tc.Visibility = model.Visibility(visibility)
		tc.Type = model.TestCaseType(tcType)
		ex.TestCases = append(ex.TestCases, &tc)
		byID[tc.ID] = &tc
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(byID) == 0 {
		return nil
	}

	entries, err := s.q(tx).Query(ctx,
		`SELECT e.id, e.test_case_id, e.code_hint_id, e.file_path, e.code, e.previous_code, e.line, e.previous_line
		FROM solution_entry e JOIN test_case t ON t.id = e.test_case_id
		WHERE t.exercise_id = ? ORDER BY e.id`, ex.ID)
	if err != nil {
		return err
	}
	defer entries.Close()
	for entries.Next() {
		var (
			entry model.SolutionEntry
			hint  sql.NullInt64
		)
		if err := entries.Scan(&entry.ID, &entry.TestCaseID, &hint, &entry.FilePath, &entry.Code, &entry.PreviousCode, &entry.Line, &entry.PreviousLine); err != nil {
			return err
		}
		entry.CodeHintID = hint.Int64
		if tc, ok := byID[entry.TestCaseID]; ok {
			tc.SolutionEntries = append(tc.SolutionEntries, &entry)
		}
	}
	return entries.Err()
}

func (s *SQLStore) loadTasks(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	rows, err := s.q(tx).Query(ctx, "SELECT id, exercise_id, name FROM exercise_task WHERE exercise_id = ? ORDER BY id", ex.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	byID := make(map[int64]*model.Task)
	for rows.Next() {
		var task model.Task
		if err := rows.Scan(&task.ID, &task.ExerciseID, &task.Name); err != nil {
			return err
		}
		ex.Tasks = append(ex.Tasks, &task)
		byID[task.ID] = &task
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(byID) == 0 {
		return nil
	}

	links, err := s.q(tx).Query(ctx,
		`SELECT l.task_id, l.test_case_id FROM exercise_task_test_case l
		JOIN exercise_task t ON t.id = l.task_id WHERE t.exercise_id = ? ORDER BY l.task_id, l.position`, ex.ID)
	if err != nil {
		return err
	}
	defer links.Close()
	for links.Next() {
		var taskID, testCaseID int64
		if err := links.Scan(&taskID, &testCaseID); err != nil {
			return err
		}
		if task, ok := byID[taskID]; ok {
			task.TestCaseIDs = append(task.TestCaseIDs, testCaseID)
		}
	}
	return links.Err()
}

// loadHints must run after loadTasks and loadTestCases; it fills both back-references.
func (s *SQLStore) loadHints(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	rows, err := s.q(tx).Query(ctx,
		"SELECT id, exercise_id, task_id, title, description, content, kind FROM exercise_hint WHERE exercise_id = ? ORDER BY id", ex.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	idx := model.IndexExercise(ex)
	for rows.Next() {
		var (
			hint   model.Hint
			taskID sql.NullInt64
			kind   string
		)
		if err := rows.Scan(&hint.ID, &hint.ExerciseID, &taskID, &hint.Title, &hint.Description, &hint.Content, &kind); err != nil {
			return err
		}
		hint.Kind = model.HintKind(kind)
		hint.TaskID = taskID.Int64
		if task, ok := idx.Tasks[hint.TaskID]; ok {
			task.HintIDs = append(task.HintIDs, hint.ID)
		}
		ex.Hints = append(ex.Hints, &hint)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	idx = model.IndexExercise(ex)
	for _, tc := range ex.TestCases {
		for _, entry := range tc.SolutionEntries {
			if hint, ok := idx.Hints[entry.CodeHintID]; ok {
				hint.SolutionEntryIDs = append(hint.SolutionEntryIDs, entry.ID)
			}
		}
	}
	return nil
}

func (s *SQLStore) loadCategories(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	rows, err := s.q(tx).Query(ctx,
		"SELECT id, exercise_id, name, penalty, max_penalty, state FROM static_code_analysis_category WHERE exercise_id = ? ORDER BY id", ex.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c     model.StaticAnalysisCategory
			state string
		)
		if err := rows.Scan(&c.ID, &c.ExerciseID, &c.Name, &c.Penalty, &c.MaxPenalty, &state); err != nil {
			return err
		}
		c.State = model.CategoryState(state)
		ex.StaticAnalysisCategories = append(ex.StaticAnalysisCategories, &c)
	}
	return rows.Err()
}

func (s *SQLStore) loadAuxiliaryRepositories(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	rows, err := s.q(tx).Query(ctx,
		`SELECT id, exercise_id, name, checkout_directory, description, repository_uri
		FROM auxiliary_repository WHERE exercise_id = ? ORDER BY position, id`, ex.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var aux model.AuxiliaryRepository
		if err := rows.Scan(&aux.ID, &aux.ExerciseID, &aux.Name, &aux.CheckoutDirectory, &aux.Description, &aux.RepositoryURI); err != nil {
			return err
		}
		ex.AuxiliaryRepositories = append(ex.AuxiliaryRepositories, &aux)
	}
	return rows.Err()
}
