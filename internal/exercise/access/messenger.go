package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"exforge/internal/common/mq"
)

const DefaultTopic = "exercise.lock-unlock"

// LockUnlockEvent is the queue payload of a command.
type LockUnlockEvent struct {
	ExerciseID  int64     `json:"exercise_id"`
	Command     Command   `json:"command"`
	RequestedAt time.Time `json:"requested_at"`
}

// QueueMessenger publishes commands as LockUnlockEvent messages.
type QueueMessenger struct {
	queue mq.Producer
	topic string
}

var _ LockUnlockMessenger = (*QueueMessenger)(nil)

func NewQueueMessenger(queue mq.Producer, topic string) *QueueMessenger {
	if topic == "" {
		topic = DefaultTopic
	}
	return &QueueMessenger{queue: queue, topic: topic}
}

func (m *QueueMessenger) publish(ctx context.Context, exerciseID int64, cmd Command) error {
	if m == nil || m.queue == nil {
		return errors.New("lock/unlock messenger is nil")
	}
	if exerciseID <= 0 {
		return errors.New("exerciseID is required")
	}
	event := LockUnlockEvent{ExerciseID: exerciseID, Command: cmd, RequestedAt: time.Now().UTC()}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lock/unlock event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = fmt.Sprintf("access-%d-%d", exerciseID, time.Now().UnixNano())
	message.Key = strconv.FormatInt(exerciseID, 10)
	message.SetHeader("command", string(cmd.Kind))
	if err := m.queue.Publish(ctx, m.topic, message); err != nil {
		return fmt.Errorf("publish lock/unlock event failed: %w", err)
	}
	return nil
}

func (m *QueueMessenger) LockAllRepositoriesAndParticipations(ctx context.Context, exerciseID int64) error {
	return m.publish(ctx, exerciseID, Command{Kind: LockAllRepositoriesAndParticipations})
}

func (m *QueueMessenger) LockAllRepositories(ctx context.Context, exerciseID int64) error {
	return m.publish(ctx, exerciseID, Command{Kind: LockAllRepositories})
}

func (m *QueueMessenger) LockParticipationsWithEarlierDueDate(ctx context.Context, exerciseID int64, withRepositories bool) error {
	return m.publish(ctx, exerciseID, Command{Kind: LockParticipationsWithEarlierDueDate, WithRepositories: withRepositories})
}

func (m *QueueMessenger) UnlockRepositoriesWithEarlierStartDateAndLaterDueDate(ctx context.Context, exerciseID int64) error {
	return m.publish(ctx, exerciseID, Command{Kind: UnlockRepositoriesWithEarlierStartDateAndLaterDueDate})
}

func (m *QueueMessenger) UnlockParticipationsWithEarlierStartDateAndLaterDueDate(ctx context.Context, exerciseID int64) error {
	return m.publish(ctx, exerciseID, Command{Kind: UnlockParticipationsWithEarlierStartDateAndLaterDueDate})
}

func (m *QueueMessenger) UnlockWithEarlierStartDateAndLaterDueDate(ctx context.Context, exerciseID int64) error {
	return m.publish(ctx, exerciseID, Command{Kind: UnlockWithEarlierStartDateAndLaterDueDate})
}
