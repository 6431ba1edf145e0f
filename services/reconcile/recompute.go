package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creatorhub-engine/pkg/task"
	"creatorhub-engine/pkg/taskname"
	"creatorhub-engine/services/consumption"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/ingress"
	"creatorhub-engine/services/post"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const activeScanLimit = 1000

type CounterRebuilder interface {
	RecomputeCounters(ctx context.Context, postID string) (post.Counters, error)
}

type ConsumptionRebuilder interface {
	Recompute(ctx context.Context, postID string) (post.Aggregates, error)
}

type ActivitySource interface {
	PostsActiveSince(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// Recomputer rebuilds the derived aggregate cache of posts from their
// engagement and consumption rows.
type Recomputer struct {
	counters    CounterRebuilder
	consumption ConsumptionRebuilder
	activity    []ActivitySource
	enqueuer    task.Enqueuer
	logger      *zap.Logger
}

func NewRecomputer(counters CounterRebuilder, consumption ConsumptionRebuilder, enqueuer task.Enqueuer, logger *zap.Logger, activity ...ActivitySource) *Recomputer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recomputer{
		counters:    counters,
		consumption: consumption,
		activity:    activity,
		enqueuer:    enqueuer,
		logger:      logger,
	}
}

// Post rebuilds one post's counters and consumption aggregates.
func (r *Recomputer) Post(ctx context.Context, postID string) (post.Aggregates, error) {
	if _, err := r.counters.RecomputeCounters(ctx, postID); err != nil {
		return post.Aggregates{}, fmt.Errorf("recompute counters: %w", err)
	}
	agg, err := r.consumption.Recompute(ctx, postID)
	if err != nil {
		return post.Aggregates{}, fmt.Errorf("recompute consumption: %w", err)
	}
	return agg, nil
}

// Active rebuilds every post with activity at or after since, through the
// queue when one is configured. It returns how many posts were handled.
func (r *Recomputer) Active(ctx context.Context, since time.Time) (int, error) {
	ids, err := r.activePosts(ctx, since)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, id := range ids {
		if r.enqueuer != nil {
			if err := r.enqueue(ctx, id, since); err != nil {
				r.logger.Warn("failed to enqueue aggregate recompute", zap.String("post_id", id), zap.Error(err))
				continue
			}
			done++
			continue
		}
		if _, err := r.Post(ctx, id); err != nil {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			r.logger.Warn("aggregate recompute failed", zap.String("post_id", id), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

func (r *Recomputer) activePosts(ctx context.Context, since time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, src := range r.activity {
		batch, err := src.PostsActiveSince(ctx, since, activeScanLimit)
		if err != nil {
			return nil, fmt.Errorf("list active posts: %w", err)
		}
		for _, id := range batch {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type AggregatesPayload struct {
	PostID string `json:"post_id"`
}

func NewAggregatesTask(postID string) (*asynq.Task, error) {
	b, err := json.Marshal(AggregatesPayload{PostID: postID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.AggregatesRecompute, b), nil
}

func (r *Recomputer) enqueue(ctx context.Context, postID string, since time.Time) error {
	t, err := NewAggregatesTask(postID)
	if err != nil {
		return err
	}
	_, err = r.enqueuer.Enqueue(ctx, t,
		asynq.TaskID(fmt.Sprintf("aggregates:%s:%d", postID, since.Unix())),
		asynq.Queue(task.QueueAggregates),
		asynq.MaxRetry(3),
	)
	if task.IsDuplicate(err) {
		return nil
	}
	return err
}

// HandleAggregatesTask rebuilds the aggregates of a queued post.
func (r *Recomputer) HandleAggregatesTask(ctx context.Context, t *asynq.Task) error {
	var payload AggregatesPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := r.Post(ctx, payload.PostID); err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return fmt.Errorf("post %s: %w", payload.PostID, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

type RecomputerParams struct {
	fx.In

	Ingress    *ingress.Service
	Aggregator *consumption.Aggregator
	Events     engagement.Repository
	Samples    consumption.Repository
	Enqueuer   task.Enqueuer `optional:"true"`
	Logger     *zap.Logger   `optional:"true"`
}

func newRecomputer(p RecomputerParams) *Recomputer {
	return NewRecomputer(p.Ingress, p.Aggregator, p.Enqueuer, p.Logger, p.Events, p.Samples)
}
