package repository

import (
	"context"
	"database/sql"
	"errors"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
)

const participationColumns = "id, exercise_id, type, student_login, repository_uri, build_plan_id, individual_due_date, state, locked"

func (s *SQLStore) CreateParticipation(ctx context.Context, tx db.Transaction, p *model.Participation) (int64, error) {
	if p == nil {
		return 0, errors.New("participation is nil")
	}
	if p.State == "" {
		p.State = model.StateUninitialized
	}
	query := `INSERT INTO participation (exercise_id, type, student_login, repository_uri, build_plan_id, individual_due_date, state, locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := db.InsertID(ctx, s.q(tx), query,
		p.ExerciseID, string(p.Type), p.StudentLogin, p.RepositoryURI, p.BuildPlanID, nullTime(p.IndividualDueDate), string(p.State), p.Locked,
	)
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (s *SQLStore) UpdateParticipation(ctx context.Context, tx db.Transaction, p *model.Participation) error {
	if p == nil || p.ID == 0 {
		return errors.New("participation is not persisted")
	}
	result, err := s.q(tx).Exec(ctx,
		"UPDATE participation SET repository_uri = ?, build_plan_id = ?, individual_due_date = ?, state = ?, locked = ? WHERE id = ?",
		p.RepositoryURI, p.BuildPlanID, nullTime(p.IndividualDueDate), string(p.State), p.Locked, p.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrParticipationNotFound)
}

func (s *SQLStore) GetParticipation(ctx context.Context, tx db.Transaction, participationID int64) (*model.Participation, error) {
	p, err := scanParticipation(s.q(tx).QueryRow(ctx, "SELECT "+participationColumns+" FROM participation WHERE id = ?", participationID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrParticipationNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLStore) ListStudentParticipations(ctx context.Context, tx db.Transaction, exerciseID int64) ([]*model.Participation, error) {
	return s.listParticipations(ctx, tx, exerciseID, model.ParticipationStudent)
}

func (s *SQLStore) SetLocked(ctx context.Context, tx db.Transaction, participationIDs []int64, locked bool) error {
	if len(participationIDs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(participationIDs)+1)
	args = append(args, locked)
	for _, id := range participationIDs {
		args = append(args, id)
	}
	query := "UPDATE participation SET locked = ? WHERE id IN (" + placeholders(len(participationIDs)) + ")"
	_, err := s.q(tx).Exec(ctx, query, args...)
	return err
}

func (s *SQLStore) loadExerciseParticipations(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	for _, t := range []model.ParticipationType{model.ParticipationTemplate, model.ParticipationSolution} {
		list, err := s.listParticipations(ctx, tx, ex.ID, t)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			continue
		}
		if t == model.ParticipationTemplate {
			ex.TemplateParticipation = list[0]
		} else {
			ex.SolutionParticipation = list[0]
		}
	}
	return nil
}

func (s *SQLStore) listParticipations(ctx context.Context, tx db.Transaction, exerciseID int64, t model.ParticipationType) ([]*model.Participation, error) {
	rows, err := s.q(tx).Query(ctx,
		"SELECT "+participationColumns+" FROM participation WHERE exercise_id = ? AND type = ? ORDER BY id", exerciseID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanParticipation(scanner db.Scanner) (*model.Participation, error) {
	var (
		p            model.Participation
		pType, state string
		due          sql.NullTime
	)
	if err := scanner.Scan(&p.ID, &p.ExerciseID, &pType, &p.StudentLogin, &p.RepositoryURI, &p.BuildPlanID, &due, &state, &p.Locked); err != nil {
		return nil, err
	}
	p.Type = model.ParticipationType(pType)
	p.State = model.ParticipationState(state)
	p.IndividualDueDate = timePtr(due)
	return &p, nil
}
