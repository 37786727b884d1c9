package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
)

const exerciseColumns = `id, kind, course_short_name, title, short_name, project_key, package_name, language,
	project_type, release_date, start_date, due_date, assessment_due_date, allow_offline_ide,
	allow_online_editor, static_code_analysis_enabled, max_static_code_analysis_penalty, exam_mode,
	team_min_size, team_max_size, imported_from_archive, problem_statement, test_repository_uri,
	instructor_group, editor_group, teaching_assistant_group`

func (s *SQLStore) CreateExercise(ctx context.Context, tx db.Transaction, exercise *model.Exercise) (int64, error) {
	if exercise == nil {
		return 0, errors.New("exercise is nil")
	}
	if exercise.Kind == 0 {
		exercise.Kind = model.KindProgramming
	}
	minSize, maxSize := teamColumns(exercise.Team)
	query := `INSERT INTO programming_exercise (kind, course_short_name, title, short_name, project_key,
		package_name, language, project_type, release_date, start_date, due_date, assessment_due_date,
		allow_offline_ide, allow_online_editor, static_code_analysis_enabled, max_static_code_analysis_penalty,
		exam_mode, team_min_size, team_max_size, imported_from_archive, problem_statement, test_repository_uri,
		instructor_group, editor_group, teaching_assistant_group)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := db.InsertID(ctx, s.q(tx), query,
		exercise.Kind.String(), exercise.CourseShortName, exercise.Title, exercise.ShortName, exercise.ProjectKey,
		exercise.PackageName, string(exercise.Language), string(exercise.ProjectType),
		nullTime(exercise.ReleaseDate), nullTime(exercise.StartDate), nullTime(exercise.DueDate), nullTime(exercise.AssessmentDueDate),
		exercise.AllowOfflineIDE, exercise.AllowOnlineEditor, exercise.StaticCodeAnalysisEnabled, nullInt(exercise.MaxStaticCodeAnalysisPenalty),
		exercise.ExamMode, minSize, maxSize, exercise.ImportedFromArchive, exercise.ProblemStatement, exercise.TestRepositoryURI,
		exercise.Groups.Instructor, exercise.Groups.Editor, exercise.Groups.TeachingAssistant,
	)
	if err != nil {
		if key, ok := db.UniqueViolation(err); ok && strings.Contains(strings.ToLower(key), "project_key") {
			return 0, ErrProjectKeyExists
		}
		return 0, err
	}
	exercise.ID = id
	return id, nil
}

func (s *SQLStore) UpdateExercise(ctx context.Context, tx db.Transaction, exercise *model.Exercise) error {
	if exercise == nil || exercise.ID == 0 {
		return errors.New("exercise is not persisted")
	}
	minSize, maxSize := teamColumns(exercise.Team)
	query := `UPDATE programming_exercise SET title = ?, short_name = ?, project_key = ?, package_name = ?,
		project_type = ?, release_date = ?, start_date = ?, due_date = ?, assessment_due_date = ?,
		allow_offline_ide = ?, allow_online_editor = ?, static_code_analysis_enabled = ?,
		max_static_code_analysis_penalty = ?, team_min_size = ?, team_max_size = ?, problem_statement = ?,
		test_repository_uri = ? WHERE id = ?`
	_, err := s.q(tx).Exec(ctx, query,
		exercise.Title, exercise.ShortName, exercise.ProjectKey, exercise.PackageName, string(exercise.ProjectType),
		nullTime(exercise.ReleaseDate), nullTime(exercise.StartDate), nullTime(exercise.DueDate), nullTime(exercise.AssessmentDueDate),
		exercise.AllowOfflineIDE, exercise.AllowOnlineEditor, exercise.StaticCodeAnalysisEnabled,
		nullInt(exercise.MaxStaticCodeAnalysisPenalty), minSize, maxSize, exercise.ProblemStatement,
		exercise.TestRepositoryURI, exercise.ID,
	)
	return err
}

func (s *SQLStore) GetExercise(ctx context.Context, tx db.Transaction, exerciseID int64) (*model.Exercise, error) {
	query := "SELECT " + exerciseColumns + " FROM programming_exercise WHERE id = ?"
	exercise, err := scanExercise(s.q(tx).QueryRow(ctx, query, exerciseID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}
	return exercise, nil
}

func (s *SQLStore) ExerciseExists(ctx context.Context, tx db.Transaction, exerciseID int64) (bool, error) {
	var n int
	err := s.q(tx).QueryRow(ctx, "SELECT COUNT(1) FROM programming_exercise WHERE id = ?", exerciseID).Scan(&n)
	return n > 0, err
}

func (s *SQLStore) ProjectKeyExists(ctx context.Context, tx db.Transaction, projectKey string) (bool, error) {
	var n int
	err := s.q(tx).QueryRow(ctx, "SELECT COUNT(1) FROM programming_exercise WHERE project_key = ?", projectKey).Scan(&n)
	return n > 0, err
}

func (s *SQLStore) DeleteExercise(ctx context.Context, tx db.Transaction, exerciseID int64) error {
	q := s.q(tx)
	statements := []string{
		"DELETE FROM solution_entry WHERE test_case_id IN (SELECT id FROM test_case WHERE exercise_id = ?)",
		"DELETE FROM exercise_task_test_case WHERE task_id IN (SELECT id FROM exercise_task WHERE exercise_id = ?)",
		"DELETE FROM exercise_hint WHERE exercise_id = ?",
		"DELETE FROM exercise_task WHERE exercise_id = ?",
		"DELETE FROM test_case WHERE exercise_id = ?",
		"DELETE FROM static_code_analysis_category WHERE exercise_id = ?",
		"DELETE FROM auxiliary_repository WHERE exercise_id = ?",
		"DELETE FROM submission_policy WHERE exercise_id = ?",
		"DELETE FROM participation WHERE exercise_id = ?",
	}
	for _, stmt := range statements {
		if _, err := q.Exec(ctx, stmt, exerciseID); err != nil {
			return err
		}
	}
	result, err := q.Exec(ctx, "DELETE FROM programming_exercise WHERE id = ?", exerciseID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrExerciseNotFound)
}

func (s *SQLStore) LoadGraph(ctx context.Context, tx db.Transaction, exerciseID int64) (*model.Exercise, error) {
	exercise, err := s.GetExercise(ctx, tx, exerciseID)
	if err != nil {
		return nil, err
	}
	loaders := []func(context.Context, db.Transaction, *model.Exercise) error{
		s.loadSubmissionPolicy,
		s.loadTestCases,
		s.loadTasks,
		s.loadHints,
		s.loadCategories,
		s.loadAuxiliaryRepositories,
		s.loadExerciseParticipations,
	}
	for _, load := range loaders {
		if err := load(ctx, tx, exercise); err != nil {
			return nil, err
		}
	}
	return exercise, nil
}

func teamColumns(team *model.TeamConfig) (sql.NullInt64, sql.NullInt64) {
	if team == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(team.MinTeamSize), Valid: true}, sql.NullInt64{Int64: int64(team.MaxTeamSize), Valid: true}
}

func scanExercise(scanner db.Scanner) (*model.Exercise, error) {
	var (
		ex                              model.Exercise
		kind, language, projectType     string
		release, start, due, assessment sql.NullTime
		maxPenalty, teamMin, teamMax    sql.NullInt64
	)
	err := scanner.Scan(
		&ex.ID, &kind, &ex.CourseShortName, &ex.Title, &ex.ShortName, &ex.ProjectKey, &ex.PackageName, &language,
		&projectType, &release, &start, &due, &assessment, &ex.AllowOfflineIDE,
		&ex.AllowOnlineEditor, &ex.StaticCodeAnalysisEnabled, &maxPenalty, &ex.ExamMode,
		&teamMin, &teamMax, &ex.ImportedFromArchive, &ex.ProblemStatement, &ex.TestRepositoryURI,
		&ex.Groups.Instructor, &ex.Groups.Editor, &ex.Groups.TeachingAssistant,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := model.ParseExerciseKind(kind)
	if err != nil {
		return nil, err
	}
	ex.Kind = parsed
	ex.Language = model.ProgrammingLanguage(language)
	ex.ProjectType = model.ProjectType(projectType)
	ex.ReleaseDate = timePtr(release)
	ex.StartDate = timePtr(start)
	ex.DueDate = timePtr(due)
	ex.AssessmentDueDate = timePtr(assessment)
	ex.MaxStaticCodeAnalysisPenalty = intPtr(maxPenalty)
	if teamMin.Valid && teamMax.Valid {
		ex.Team = &model.TeamConfig{MinTeamSize: int(teamMin.Int64), MaxTeamSize: int(teamMax.Int64)}
	}
	return &ex, nil
}
