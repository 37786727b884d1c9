package model

import "time"

// ParticipationType distinguishes the two exercise owned participations from student ones.
type ParticipationType string

const (
	ParticipationTemplate ParticipationType = "TEMPLATE"
	ParticipationSolution ParticipationType = "SOLUTION"
	ParticipationStudent  ParticipationType = "STUDENT"
)

// ParticipationState is the initialization lifecycle of a participation.
type ParticipationState string

const (
	StateUninitialized ParticipationState = "UNINITIALIZED"
	StateInitialized   ParticipationState = "INITIALIZED"
	StateInactive      ParticipationState = "INACTIVE"
	StateFinished      ParticipationState = "FINISHED"
)

// Participation links a repository and a build plan to an exercise.
type Participation struct {
	ID                int64              `json:"id"`
	ExerciseID        int64              `json:"exerciseId"`
	Type              ParticipationType  `json:"type"`
	StudentLogin      string             `json:"studentLogin,omitempty"`
	RepositoryURI     string             `json:"repositoryUri"`
	BuildPlanID       string             `json:"buildPlanId"`
	IndividualDueDate *time.Time         `json:"individualDueDate,omitempty"`
	State             ParticipationState `json:"state"`
	Locked            bool               `json:"locked"`
}

// EffectiveDueDate is the individual due date when set, otherwise the exercise due date.
func (p *Participation) EffectiveDueDate(exerciseDue *time.Time) *time.Time {
	if p.IndividualDueDate != nil {
		return p.IndividualDueDate
	}
	return exerciseDue
}
