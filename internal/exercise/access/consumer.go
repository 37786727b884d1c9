package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"exforge/internal/common/db"
	"exforge/internal/common/mq"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/repository"
	"exforge/internal/exercise/vcs"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConsumerParallel = 8

// ConsumerOptions controls the lock/unlock consumer.
type ConsumerOptions struct {
	Parallel int
	Timeout  time.Duration
}

// participationStore is the slice of the exercise store the consumer needs.
type participationStore interface {
	GetExercise(ctx context.Context, tx db.Transaction, exerciseID int64) (*model.Exercise, error)
	ListStudentParticipations(ctx context.Context, tx db.Transaction, exerciseID int64) ([]*model.Participation, error)
	SetLocked(ctx context.Context, tx db.Transaction, participationIDs []int64, locked bool) error
}

// LockUnlockConsumer executes lock/unlock commands against the VCS and the
// participation store.
type LockUnlockConsumer struct {
	mqClient mq.MessageQueue
	store    participationStore
	vcs      vcs.VersionControlClient
	parallel int
	timeout  time.Duration
	now      func() time.Time
}

func NewLockUnlockConsumer(mqClient mq.MessageQueue, store participationStore, client vcs.VersionControlClient, opts ConsumerOptions) *LockUnlockConsumer {
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = defaultConsumerParallel
	}
	return &LockUnlockConsumer{
		mqClient: mqClient,
		store:    store,
		vcs:      client,
		parallel: parallel,
		timeout:  opts.Timeout,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (c *LockUnlockConsumer) WithClock(now func() time.Time) *LockUnlockConsumer {
	c.now = now
	return c
}

// Subscribe registers the handler and starts consuming.
func (c *LockUnlockConsumer) Subscribe(ctx context.Context, topic, consumerGroup string, opts *mq.SubscribeOptions) error {
	if c == nil || c.mqClient == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		topic = DefaultTopic
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

func (c *LockUnlockConsumer) handleMessage(ctx context.Context, message *mq.Message) error {
	var event LockUnlockEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse lock/unlock event failed", zap.Error(err))
		return nil
	}
	if event.ExerciseID <= 0 {
		logger.Warn(ctx, "lock/unlock event missing exercise_id")
		return nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.Execute(ctx, event.ExerciseID, event.Command)
}

// Execute applies one command to the student participations of an exercise.
func (c *LockUnlockConsumer) Execute(ctx context.Context, exerciseID int64, cmd Command) error {
	ctx = logger.WithExercise(ctx, exerciseID)
	ex, err := c.store.GetExercise(ctx, nil, exerciseID)
	if err != nil {
		if errors.Is(err, repository.ErrExerciseNotFound) {
			logger.Info(ctx, "skip lock/unlock for missing exercise")
			return nil
		}
		return fmt.Errorf("load exercise failed: %w", err)
	}
	participations, err := c.store.ListStudentParticipations(ctx, nil, exerciseID)
	if err != nil {
		return fmt.Errorf("list participations failed: %w", err)
	}

	now := c.now()
	var (
		lock         bool
		repositories bool
		flags        bool
		selected     []*model.Participation
	)
	switch cmd.Kind {
	case LockAllRepositoriesAndParticipations:
		lock, repositories, flags = true, true, true
		selected = participations
	case LockAllRepositories:
		lock, repositories = true, true
		selected = participations
	case LockParticipationsWithEarlierDueDate:
		lock, repositories, flags = true, cmd.WithRepositories, true
		selected = filter(participations, func(p *model.Participation) bool {
			due := p.EffectiveDueDate(ex.DueDate)
			return due != nil && !due.After(now)
		})
	case UnlockRepositoriesWithEarlierStartDateAndLaterDueDate:
		repositories = true
		selected = withinWindow(ex, participations, now)
	case UnlockParticipationsWithEarlierStartDateAndLaterDueDate:
		flags = true
		selected = withinWindow(ex, participations, now)
	case UnlockWithEarlierStartDateAndLaterDueDate:
		repositories, flags = true, true
		selected = withinWindow(ex, participations, now)
	default:
		logger.Warn(ctx, "unknown lock/unlock command", zap.String("command", string(cmd.Kind)))
		return nil
	}
	if len(selected) == 0 {
		return nil
	}

	if repositories {
		if err := c.applyRepositories(ctx, selected, lock); err != nil {
			return err
		}
	}
	if flags {
		ids := make([]int64, 0, len(selected))
		for _, p := range selected {
			ids = append(ids, p.ID)
		}
		if err := c.store.SetLocked(ctx, nil, ids, lock); err != nil {
			return fmt.Errorf("update participation lock failed: %w", err)
		}
	}
	logger.Info(ctx, "lock/unlock command applied",
		zap.String("command", string(cmd.Kind)),
		zap.Int("participations", len(selected)),
		zap.Bool("repositories", repositories))
	return nil
}

func (c *LockUnlockConsumer) applyRepositories(ctx context.Context, participations []*model.Participation, lock bool) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for _, p := range participations {
		if p.RepositoryURI == "" {
			continue
		}
		p := p
		g.Go(func() error {
			var err error
			if lock {
				err = c.vcs.LockRepository(gCtx, p.RepositoryURI, p.StudentLogin)
			} else {
				err = c.vcs.UnlockRepository(gCtx, p.RepositoryURI, p.StudentLogin)
			}
			if err != nil {
				return fmt.Errorf("participation %d: %w", p.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// withinWindow keeps participations whose exercise has started and whose
// effective due date has not passed.
func withinWindow(ex *model.Exercise, participations []*model.Participation, now time.Time) []*model.Participation {
	if start := ex.ParticipationStartDate(); start != nil && start.After(now) {
		return nil
	}
	return filter(participations, func(p *model.Participation) bool {
		due := p.EffectiveDueDate(ex.DueDate)
		return due == nil || due.After(now)
	})
}

func filter(in []*model.Participation, keep func(*model.Participation) bool) []*model.Participation {
	var out []*model.Participation
	for _, p := range in {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
