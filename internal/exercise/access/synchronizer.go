package access

import (
	"context"
	"fmt"
	"time"

	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// LockUnlockMessenger hands lock and unlock work to the executing side.
type LockUnlockMessenger interface {
	LockAllRepositoriesAndParticipations(ctx context.Context, exerciseID int64) error
	LockAllRepositories(ctx context.Context, exerciseID int64) error
	LockParticipationsWithEarlierDueDate(ctx context.Context, exerciseID int64, withRepositories bool) error
	UnlockRepositoriesWithEarlierStartDateAndLaterDueDate(ctx context.Context, exerciseID int64) error
	UnlockParticipationsWithEarlierStartDateAndLaterDueDate(ctx context.Context, exerciseID int64) error
	UnlockWithEarlierStartDateAndLaterDueDate(ctx context.Context, exerciseID int64) error
}

// CommandObserver is told about every command handed to the messenger.
type CommandObserver interface {
	CommandIssued(kind string, err error)
}

// Synchronizer runs Decide on configuration updates and sends the result.
type Synchronizer struct {
	messenger LockUnlockMessenger
	observer  CommandObserver
	now       func() time.Time
}

func NewSynchronizer(messenger LockUnlockMessenger, observer CommandObserver) *Synchronizer {
	return &Synchronizer{messenger: messenger, observer: observer, now: time.Now}
}

// WithClock replaces the time source.
func (s *Synchronizer) WithClock(now func() time.Time) *Synchronizer {
	s.now = now
	return s
}

// Synchronize decides the commands for the update and sends them. Messenger
// failures are logged and do not fail the update.
func (s *Synchronizer) Synchronize(ctx context.Context, exerciseID int64, before, after Snapshot) []Command {
	commands := Decide(before, after, s.now())
	for _, cmd := range commands {
		err := Dispatch(ctx, s.messenger, exerciseID, cmd)
		if s.observer != nil {
			s.observer.CommandIssued(string(cmd.Kind), err)
		}
		if err != nil {
			logger.Warn(ctx, "send lock/unlock command failed",
				zap.Int64("exercise_id", exerciseID), zap.String("command", string(cmd.Kind)), zap.Error(err))
		}
	}
	if len(commands) > 0 {
		logger.Info(ctx, "access commands issued", zap.Int64("exercise_id", exerciseID), zap.Int("commands", len(commands)))
	}
	return commands
}

// Dispatch calls the messenger method matching cmd.
func Dispatch(ctx context.Context, m LockUnlockMessenger, exerciseID int64, cmd Command) error {
	switch cmd.Kind {
	case LockAllRepositoriesAndParticipations:
		return m.LockAllRepositoriesAndParticipations(ctx, exerciseID)
	case LockAllRepositories:
		return m.LockAllRepositories(ctx, exerciseID)
	case LockParticipationsWithEarlierDueDate:
		return m.LockParticipationsWithEarlierDueDate(ctx, exerciseID, cmd.WithRepositories)
	case UnlockRepositoriesWithEarlierStartDateAndLaterDueDate:
		return m.UnlockRepositoriesWithEarlierStartDateAndLaterDueDate(ctx, exerciseID)
	case UnlockParticipationsWithEarlierStartDateAndLaterDueDate:
		return m.UnlockParticipationsWithEarlierStartDateAndLaterDueDate(ctx, exerciseID)
	case UnlockWithEarlierStartDateAndLaterDueDate:
		return m.UnlockWithEarlierStartDateAndLaterDueDate(ctx, exerciseID)
	default:
		return fmt.Errorf("unknown command %q", cmd.Kind)
	}
}
