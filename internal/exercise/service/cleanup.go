package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"exforge/internal/common/db"
	"exforge/internal/common/mq"
	"exforge/internal/common/storage"
	"exforge/internal/exercise/provision"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	ExerciseCleanupEventDeleted = "exercise.deleted"

	defaultCleanupBatchSize   = 1000
	defaultCleanupListTimeout = 30 * time.Second
	defaultCleanupDeleteTTL   = 2 * time.Minute
)

// ExerciseCleanupEvent asks for the stored objects of a deleted exercise to be removed.
type ExerciseCleanupEvent struct {
	EventType   string    `json:"event_type"`
	ExerciseID  int64     `json:"exercise_id"`
	Bucket      string    `json:"bucket"`
	Prefix      string    `json:"prefix"`
	RequestedAt time.Time `json:"requested_at"`
}

// ExerciseCleanupPublisher publishes async cleanup events.
type ExerciseCleanupPublisher struct {
	queue     mq.Producer
	topic     string
	bucket    string
	keyPrefix string
}

func NewExerciseCleanupPublisher(queue mq.Producer, topic, bucket, keyPrefix string) *ExerciseCleanupPublisher {
	return &ExerciseCleanupPublisher{queue: queue, topic: topic, bucket: bucket, keyPrefix: keyPrefix}
}

// PublishExerciseDeleted publishes a cleanup event for the deleted exercise.
func (p *ExerciseCleanupPublisher) PublishExerciseDeleted(ctx context.Context, exerciseID int64) error {
	if p == nil || p.queue == nil {
		return errors.New("cleanup publisher is nil")
	}
	if p.topic == "" {
		return errors.New("cleanup topic is empty")
	}
	if exerciseID <= 0 {
		return errors.New("exerciseID is required")
	}
	event := ExerciseCleanupEvent{
		EventType:   ExerciseCleanupEventDeleted,
		ExerciseID:  exerciseID,
		Bucket:      p.bucket,
		Prefix:      provision.ObjectPrefix(p.keyPrefix, exerciseID),
		RequestedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal cleanup event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = fmt.Sprintf("exercise-delete-%d-%d", exerciseID, time.Now().UnixNano())
	message.Key = strconv.FormatInt(exerciseID, 10)
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish cleanup event failed: %w", err)
	}
	return nil
}

// CleanupOptions controls cleanup behavior.
type CleanupOptions struct {
	Bucket        string
	KeyPrefix     string
	BatchSize     int
	ListTimeout   time.Duration
	DeleteTimeout time.Duration
}

type exerciseExistence interface {
	ExerciseExists(ctx context.Context, tx db.Transaction, exerciseID int64) (bool, error)
}

// ExerciseCleanupConsumer removes the archive objects of deleted exercises.
type ExerciseCleanupConsumer struct {
	mqClient      mq.MessageQueue
	exercises     exerciseExistence
	storage       storage.ObjectStorage
	bucket        string
	keyPrefix     string
	batchSize     int
	listTimeout   time.Duration
	deleteTimeout time.Duration
}

func NewExerciseCleanupConsumer(mqClient mq.MessageQueue, exercises exerciseExistence, obj storage.ObjectStorage, opts CleanupOptions) *ExerciseCleanupConsumer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}
	listTimeout := opts.ListTimeout
	if listTimeout <= 0 {
		listTimeout = defaultCleanupListTimeout
	}
	deleteTimeout := opts.DeleteTimeout
	if deleteTimeout <= 0 {
		deleteTimeout = defaultCleanupDeleteTTL
	}
	return &ExerciseCleanupConsumer{
		mqClient:      mqClient,
		exercises:     exercises,
		storage:       obj,
		bucket:        opts.Bucket,
		keyPrefix:     opts.KeyPrefix,
		batchSize:     batchSize,
		listTimeout:   listTimeout,
		deleteTimeout: deleteTimeout,
	}
}

// Subscribe registers the cleanup handler and starts consuming.
func (c *ExerciseCleanupConsumer) Subscribe(ctx context.Context, topic, consumerGroup string, opts *mq.SubscribeOptions) error {
	if c == nil || c.mqClient == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		return errors.New("cleanup topic is required")
	}
	options := opts
	if options == nil {
		options = &mq.SubscribeOptions{}
	}
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = consumerGroup
	}
	if err := c.mqClient.SubscribeWithOptions(ctx, topic, c.handleMessage, options); err != nil {
		return err
	}
	return c.mqClient.Start()
}

// HandleMessage processes a cleanup event message.
func (c *ExerciseCleanupConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	return c.handleMessage(ctx, message)
}

func (c *ExerciseCleanupConsumer) handleMessage(ctx context.Context, message *mq.Message) error {
	var event ExerciseCleanupEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse cleanup event failed", zap.Error(err))
		return nil
	}
	if event.EventType != ExerciseCleanupEventDeleted {
		return nil
	}
	if event.ExerciseID <= 0 {
		logger.Warn(ctx, "cleanup event missing exercise_id")
		return nil
	}

	bucket := event.Bucket
	if bucket == "" {
		bucket = c.bucket
	}
	prefix := event.Prefix
	if prefix == "" {
		prefix = provision.ObjectPrefix(c.keyPrefix, event.ExerciseID)
	}
	if bucket == "" || prefix == "" {
		return errors.New("cleanup bucket or prefix is empty")
	}
	if c.storage == nil {
		return errors.New("object storage is nil")
	}
	if c.exercises != nil {
		exists, err := c.exercises.ExerciseExists(ctx, nil, event.ExerciseID)
		if err != nil {
			return fmt.Errorf("check exercise exists failed: %w", err)
		}
		if exists {
			logger.Info(ctx, "skip cleanup for existing exercise", zap.Int64("exercise_id", event.ExerciseID))
			return nil
		}
	}
	return c.removeObjectsByPrefix(ctx, bucket, prefix)
}

func (c *ExerciseCleanupConsumer) removeObjectsByPrefix(ctx context.Context, bucket, prefix string) error {
	listCtx, cancel := context.WithTimeout(ctx, c.listTimeout)
	objCh := c.storage.ListObjects(listCtx, bucket, prefix)
	defer cancel()

	batch := make([]string, 0, c.batchSize)
	for obj := range objCh {
		if obj.Err != nil {
			return obj.Err
		}
		if obj.Key == "" {
			continue
		}
		batch = append(batch, obj.Key)
		if len(batch) >= c.batchSize {
			if err := c.removeBatch(ctx, bucket, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := c.removeBatch(ctx, bucket, batch); err != nil {
			return err
		}
	}
	if err := listCtx.Err(); err != nil {
		return fmt.Errorf("list objects failed: %w", err)
	}
	return nil
}

func (c *ExerciseCleanupConsumer) removeBatch(ctx context.Context, bucket string, keys []string) error {
	delCtx, cancel := context.WithTimeout(ctx, c.deleteTimeout)
	defer cancel()
	if err := c.storage.RemoveObjects(delCtx, bucket, keys); err != nil {
		return fmt.Errorf("remove objects failed: %w", err)
	}
	return nil
}
