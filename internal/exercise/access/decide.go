// Package access decides and executes repository and participation locks when
// the timing or tool policy of an exercise changes.
package access

import (
	"time"

	"exforge/internal/exercise/model"
)

// CommandKind is a lock or unlock operation applied to the student
// participations of one exercise.
type CommandKind string

const (
	LockAllRepositoriesAndParticipations                    CommandKind = "LOCK_ALL_REPOSITORIES_AND_PARTICIPATIONS"
	LockAllRepositories                                     CommandKind = "LOCK_ALL_REPOSITORIES"
	LockParticipationsWithEarlierDueDate                    CommandKind = "LOCK_PARTICIPATIONS_WITH_EARLIER_DUE_DATE"
	UnlockRepositoriesWithEarlierStartDateAndLaterDueDate   CommandKind = "UNLOCK_REPOSITORIES_WITH_EARLIER_START_DATE_AND_LATER_DUE_DATE"
	UnlockParticipationsWithEarlierStartDateAndLaterDueDate CommandKind = "UNLOCK_PARTICIPATIONS_WITH_EARLIER_START_DATE_AND_LATER_DUE_DATE"
	UnlockWithEarlierStartDateAndLaterDueDate               CommandKind = "UNLOCK_WITH_EARLIER_START_DATE_AND_LATER_DUE_DATE"
)

// Command is one decision. WithRepositories only applies to
// LockParticipationsWithEarlierDueDate: the repositories of the locked
// participations are write-locked as well.
type Command struct {
	Kind             CommandKind `json:"kind"`
	WithRepositories bool        `json:"with_repositories,omitempty"`
}

// Snapshot is the part of an exercise configuration that drives locking.
type Snapshot struct {
	StartDate       *time.Time `json:"start_date,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	AllowOfflineIDE bool       `json:"allow_offline_ide"`
}

// SnapshotOf captures the configuration of ex. The start date falls back to
// the release date.
func SnapshotOf(ex *model.Exercise) Snapshot {
	return Snapshot{
		StartDate:       ex.ParticipationStartDate(),
		DueDate:         ex.DueDate,
		AllowOfflineIDE: ex.AllowOfflineIDE,
	}
}

func (s Snapshot) started(now time.Time) bool {
	return s.StartDate == nil || !s.StartDate.After(now)
}

func (s Snapshot) open(now time.Time) bool {
	return s.DueDate == nil || s.DueDate.After(now)
}

// Decide returns the commands needed to move student access from before to
// after. Locks are evaluated first; a start date moved into the future locks
// everything and nothing else is emitted.
func Decide(before, after Snapshot, now time.Time) []Command {
	stricterStart := before.started(now) && !after.started(now)
	lenientStart := !before.started(now) && after.started(now)
	stricterDue := before.open(now) && !after.open(now)
	lenientDue := !before.open(now) && after.open(now)
	stricterOffline := before.AllowOfflineIDE && !after.AllowOfflineIDE
	lenientOffline := !before.AllowOfflineIDE && after.AllowOfflineIDE

	if stricterStart {
		return []Command{{Kind: LockAllRepositoriesAndParticipations}}
	}

	var out []Command
	if stricterOffline {
		out = append(out, Command{Kind: LockAllRepositories})
	}
	if stricterDue {
		out = append(out, Command{Kind: LockParticipationsWithEarlierDueDate, WithRepositories: !stricterOffline})
	}

	datesLenient := lenientStart || lenientDue
	switch {
	case lenientOffline && datesLenient:
		out = append(out, Command{Kind: UnlockWithEarlierStartDateAndLaterDueDate})
	case lenientOffline:
		out = append(out, Command{Kind: UnlockRepositoriesWithEarlierStartDateAndLaterDueDate})
	case datesLenient && after.AllowOfflineIDE:
		out = append(out, Command{Kind: UnlockWithEarlierStartDateAndLaterDueDate})
	case datesLenient:
		out = append(out, Command{Kind: UnlockParticipationsWithEarlierStartDateAndLaterDueDate})
	}
	return out
}
