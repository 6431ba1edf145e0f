package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"creatorhub-engine/pkg/errutil"
	"creatorhub-engine/pkg/gen"
	applog "creatorhub-engine/pkg/logger"
	"creatorhub-engine/pkg/task"
	"creatorhub-engine/pkg/taskname"
	"creatorhub-engine/services/antigaming"
	"creatorhub-engine/services/earnings"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/post"
	"creatorhub-engine/services/scoring"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errLostRace = errors.New("ingress: credited engagement already exists")

type Validator interface {
	Validate(ctx context.Context, req antigaming.Request) antigaming.Decision
}

type Processor interface {
	Process(ctx context.Context, postID, creatorID string, trig *engagement.Event) earnings.Result
}

// Service is the entry point for engagement reports from content surfaces.
type Service struct {
	db        *gorm.DB
	events    engagement.Repository
	posts     post.Repository
	validator Validator
	processor Processor
	enqueuer  task.Enqueuer
	ids       gen.IDGenerator
	logger    *zap.Logger
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Events    engagement.Repository
	Posts     post.Repository
	Validator *antigaming.Validator
	Processor *earnings.Processor
	Enqueuer  task.Enqueuer `optional:"true"`
	IDs       gen.IDGenerator
	Logger    *zap.Logger `optional:"true"`
}

func NewService(p Params) *Service {
	return New(p.DB, p.Events, p.Posts, p.Validator, p.Processor, p.Enqueuer, p.IDs, p.Logger)
}

func New(db *gorm.DB, events engagement.Repository, posts post.Repository, validator Validator, processor Processor, enqueuer task.Enqueuer, ids gen.IDGenerator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        db,
		events:    events,
		posts:     posts,
		validator: validator,
		processor: processor,
		enqueuer:  enqueuer,
		ids:       ids,
		logger:    logger,
	}
}

type Report struct {
	PostID        string `json:"-"`
	ActorID       string `json:"actor_id"`
	Type          string `json:"type"`
	CommentLength int    `json:"comment_length,omitempty"`
}

type EngagementResult struct {
	EngagementID string `json:"engagement_id,omitempty"`
	Credited     bool   `json:"credited"`
	earnings.Result
}

type RevokeResult struct {
	Revoked bool `json:"revoked"`
}

// ReportEngagement records an engagement and, when it is creditable, pays the
// post's creator. Only invalid input or an unknown post is returned as an
// error; every other outcome, including infrastructure trouble, is a result
// the user-facing action can proceed with.
func (s *Service) ReportEngagement(ctx context.Context, r Report) (EngagementResult, error) {
	typ, err := engagement.ParseType(r.Type)
	if err != nil {
		return EngagementResult{}, errutil.ValidationFailed("invalid engagement type", err)
	}
	if strings.TrimSpace(r.PostID) == "" || strings.TrimSpace(r.ActorID) == "" {
		return EngagementResult{}, errutil.ValidationFailed("post_id and actor_id are required", nil)
	}
	if r.CommentLength < 0 {
		return EngagementResult{}, errutil.ValidationFailed("comment_length must not be negative", nil)
	}

	zapLog := s.logger.With(applog.TraceFields(ctx)...).With(
		zap.String("post_id", r.PostID),
		zap.String("actor_id", r.ActorID),
		zap.String("type", string(typ)),
	)
	if typ == engagement.TypeComment {
		zapLog = zapLog.With(zap.Stringer("comment_bucket", scoring.BucketComment(r.CommentLength)))
	}

	p, err := s.posts.Get(ctx, r.PostID)
	if errors.Is(err, post.ErrNotFound) {
		return EngagementResult{}, errutil.NotFound("post not found", err)
	}
	if err != nil {
		zapLog.Error("failed to load post", zap.Error(err))
		return gated(antigaming.Decision{Reason: engagement.ReasonInfraError}, ""), nil
	}

	now := time.Now().UTC()
	ev := &engagement.Event{
		ID:            s.ids.NextID(),
		PostID:        r.PostID,
		ActorID:       r.ActorID,
		Type:          typ,
		CommentLength: r.CommentLength,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if typ == engagement.TypeView {
		s.recordView(ctx, zapLog, ev)
		return EngagementResult{EngagementID: ev.ID, Result: earnings.Result{Success: true}}, nil
	}

	decision := s.validator.Validate(ctx, antigaming.Request{
		PostID:  r.PostID,
		ActorID: r.ActorID,
		Type:    typ,
		At:      now,
	})

	if decision.Credited {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inserted, err := s.events.WithTrx(tx).InsertCredited(ctx, ev)
			if err != nil {
				return err
			}
			if !inserted {
				return errLostRace
			}
			return s.posts.WithTrx(tx).Increment(ctx, r.PostID, typ.Counter())
		})
		switch {
		case err == nil:
			res := s.processor.Process(ctx, r.PostID, p.CreatorID, ev)
			return EngagementResult{EngagementID: ev.ID, Credited: !res.Rejected(), Result: res}, nil
		case errors.Is(err, errLostRace):
			decision = antigaming.Decision{Reason: engagement.ReasonDuplicate}
		default:
			zapLog.Error("failed to store credited engagement", zap.Error(err))
			return gated(antigaming.Decision{Reason: engagement.ReasonInfraError}, ""), nil
		}
	}

	return s.storeGated(ctx, zapLog, ev, decision), nil
}

func gated(d antigaming.Decision, engagementID string) EngagementResult {
	return EngagementResult{
		EngagementID: engagementID,
		Result: earnings.Result{
			Success:    true,
			Message:    d.Message(),
			ReasonCode: d.Reason,
		},
	}
}

// storeGated keeps an audit row for a rejected engagement. A duplicate of a
// revoked credited engagement reactivates that engagement instead; it counts
// again but is never paid twice.
func (s *Service) storeGated(ctx context.Context, zapLog *zap.Logger, ev *engagement.Event, d antigaming.Decision) EngagementResult {
	if d.Reason == engagement.ReasonDuplicate {
		reactivated, id, err := s.reactivate(ctx, ev)
		if err != nil {
			zapLog.Warn("failed to reactivate revoked engagement", zap.Error(err))
		}
		if reactivated {
			return gated(d, id)
		}
	}

	ev.Credited = false
	ev.DedupeKey = nil
	ev.ReasonCode = d.Reason
	if err := s.events.Insert(ctx, ev); err != nil {
		zapLog.Warn("failed to store gated engagement", zap.Error(err))
		return gated(d, "")
	}
	return gated(d, ev.ID)
}

func (s *Service) reactivate(ctx context.Context, ev *engagement.Event) (bool, string, error) {
	existing, err := s.events.FindCredited(ctx, ev.PostID, ev.ActorID, ev.Type)
	if err != nil {
		if errors.Is(err, engagement.ErrNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	if existing.Active() {
		return false, "", nil
	}

	var reactivated bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.events.WithTrx(tx).Reactivate(ctx, existing.ID)
		if err != nil || !ok {
			return err
		}
		reactivated = true
		return s.posts.WithTrx(tx).Increment(ctx, ev.PostID, ev.Type.Counter())
	})
	if err != nil {
		return false, "", err
	}
	return reactivated, existing.ID, nil
}

func (s *Service) recordView(ctx context.Context, zapLog *zap.Logger, ev *engagement.Event) {
	ev.ReasonCode = engagement.ReasonNotCreditable
	if err := s.events.Insert(ctx, ev); err != nil {
		zapLog.Warn("failed to store view", zap.Error(err))
		return
	}

	if s.enqueuer != nil {
		t, err := NewViewTask(ev.PostID)
		if err == nil {
			_, err = s.enqueuer.Enqueue(ctx, t, asynq.Queue(task.QueueDefault), asynq.MaxRetry(3))
		}
		if err == nil {
			return
		}
		zapLog.Warn("failed to enqueue view increment, applying inline", zap.Error(err))
	}

	if err := s.IncrementView(ctx, ev.PostID); err != nil {
		zapLog.Warn("view counter left for recompute", zap.Error(err))
	}
}

// IncrementView bumps the post's view counter.
func (s *Service) IncrementView(ctx context.Context, postID string) error {
	return s.posts.Increment(ctx, postID, post.CounterViews)
}

// RevokeEngagement withdraws an active credited engagement, for example an
// unlike. Earnings already credited for it are final. A store failure is
// logged and reported as not revoked.
func (s *Service) RevokeEngagement(ctx context.Context, postID, actorID, rawType string) (RevokeResult, error) {
	typ, err := engagement.ParseType(rawType)
	if err != nil {
		return RevokeResult{}, errutil.ValidationFailed("invalid engagement type", err)
	}
	if !typ.Creditable() {
		return RevokeResult{}, errutil.ValidationFailed("views cannot be revoked", nil)
	}
	if strings.TrimSpace(actorID) == "" {
		return RevokeResult{}, errutil.ValidationFailed("actor_id is required", nil)
	}
	if _, err := s.posts.Get(ctx, postID); err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return RevokeResult{}, errutil.NotFound("post not found", err)
		}
		s.logger.Error("failed to load post for revoke", zap.String("post_id", postID), zap.Error(err))
		return RevokeResult{Revoked: false}, nil
	}

	var revoked bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.events.WithTrx(tx).Revoke(ctx, postID, actorID, typ, time.Now().UTC())
		if err != nil || !ok {
			return err
		}
		revoked = true
		return s.posts.WithTrx(tx).Decrement(ctx, postID, typ.Counter())
	})
	if err != nil {
		s.logger.Error("failed to revoke engagement",
			zap.String("post_id", postID), zap.String("actor_id", actorID), zap.Error(err))
		return RevokeResult{Revoked: false}, nil
	}
	return RevokeResult{Revoked: revoked}, nil
}

// RecomputeCounters rebuilds the post's engagement counters from event rows.
func (s *Service) RecomputeCounters(ctx context.Context, postID string) (post.Counters, error) {
	c, err := s.events.Counters(ctx, postID)
	if err != nil {
		return post.Counters{}, err
	}
	if err := s.posts.SetCounters(ctx, postID, c); err != nil {
		return post.Counters{}, err
	}
	return c, nil
}

type ViewPayload struct {
	PostID string `json:"post_id"`
}

func NewViewTask(postID string) (*asynq.Task, error) {
	b, err := json.Marshal(ViewPayload{PostID: postID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.PostViewIncrement, b), nil
}
