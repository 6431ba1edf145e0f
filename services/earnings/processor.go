package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/gen"
	applog "creatorhub-engine/pkg/logger"
	"creatorhub-engine/services/antigaming"
	"creatorhub-engine/services/creator"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/post"
	"creatorhub-engine/services/scoring"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const msgNotCredited = "earnings not credited this time"

var processTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "earnings_process_total",
	Help: "Earnings processing attempts by outcome.",
}, []string{"outcome"})

var tracer = otel.Tracer("creatorhub-engine/earnings")

type Validator interface {
	Validate(ctx context.Context, req antigaming.Request) antigaming.Decision
}

type CommentStore interface {
	CommentBuckets(ctx context.Context, postID string) (scoring.CommentBuckets, error)
}

type PostStore interface {
	Get(ctx context.Context, postID string) (*post.Post, error)
}

type ProfileSource interface {
	Resolve(ctx context.Context, creatorID string) creator.Profile
}

type Processor struct {
	validator Validator
	records   Repository
	comments  CommentStore
	posts     PostStore
	profiles  ProfileSource
	ids       gen.IDGenerator
	baseRate  float64
	logger    *zap.Logger

	// db, events and counters settle stored events refused on re-validation.
	// Settlement is skipped when db is nil.
	db       *gorm.DB
	events   engagement.Repository
	counters post.Repository
}

type ProcessorParams struct {
	fx.In

	DB        *gorm.DB `optional:"true"`
	Validator *antigaming.Validator
	Records   Repository
	Events    engagement.Repository
	Posts     post.Repository
	Profiles  *creator.Source
	IDs       gen.IDGenerator
	Config    *config.Config
	Logger    *zap.Logger `optional:"true"`
}

func NewProcessor(p ProcessorParams) *Processor {
	return &Processor{
		validator: p.Validator,
		records:   p.Records,
		comments:  p.Events,
		posts:     p.Posts,
		profiles:  p.Profiles,
		ids:       p.IDs,
		baseRate:  p.Config.Earnings.BaseRate,
		logger:    loggerOrNop(p.Logger),
		db:        p.DB,
		events:    p.Events,
		counters:  p.Posts,
	}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Process credits the post's creator for one stored engagement. It is safe to
// call any number of times for the same engagement: the first successful call
// appends the ledger record and every later call returns it unchanged.
// Process never fails from the caller's point of view; problems are logged
// and reported as an uncredited result. A stored credited engagement refused on
// re-validation is settled so later sweeps skip it.
func (p *Processor) Process(ctx context.Context, postID, creatorID string, trig *engagement.Event) (res Result) {
	ctx, span := tracer.Start(ctx, "earnings.Process")
	defer span.End()

	zapLog := p.logger.With(applog.TraceFields(ctx)...).With(zap.String("post_id", postID))
	if trig != nil {
		zapLog = zapLog.With(zap.String("engagement_id", trig.ID))
	}

	defer func() {
		if r := recover(); r != nil {
			zapLog.Error("earnings processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			res = notCredited()
		}
		span.SetAttributes(attribute.String("outcome", string(res.outcome)))
		processTotal.WithLabelValues(string(res.outcome)).Inc()
	}()

	if trig == nil {
		zapLog.Error("earnings requested without a triggering engagement")
		return notCredited()
	}

	decision := p.validator.Validate(ctx, antigaming.Request{
		PostID:    postID,
		ActorID:   trig.ActorID,
		Type:      trig.Type,
		At:        trig.CreatedAt,
		ExcludeID: trig.ID,
		Recheck:   true,
	})
	if decision.Reason == engagement.ReasonInfraError {
		zapLog.Warn("engagement could not be re-validated")
		return notCredited()
	}
	if !decision.Credited {
		if err := p.settle(ctx, postID, trig, decision.Reason); err != nil {
			zapLog.Error("failed to settle rejected engagement", zap.Error(err))
			span.RecordError(err)
		}
		return Result{
			Success:    true,
			Message:    decision.Message(),
			ReasonCode: decision.Reason,
			outcome:    outcomeRejected,
		}
	}

	out, err := p.credit(ctx, postID, creatorID, trig)
	if err != nil {
		zapLog.Error("failed to credit earnings", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return notCredited()
	}
	return out
}

func notCredited() Result {
	return Result{Success: true, Message: msgNotCredited, ReasonCode: engagement.ReasonInfraError, outcome: outcomeFailed}
}

// settle uncredits a stored credited event that re-validation refused so it
// leaves the unprocessed backlog, and gives back its counter increment.
func (p *Processor) settle(ctx context.Context, postID string, trig *engagement.Event, reason engagement.ReasonCode) error {
	if p.db == nil || !trig.Credited {
		return nil
	}
	switch reason {
	case engagement.ReasonSelfEngagement, engagement.ReasonDuplicate, engagement.ReasonRateLimited:
	default:
		return nil
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settled, err := p.events.WithTrx(tx).Uncredit(ctx, trig.ID, reason)
		if err != nil {
			return fmt.Errorf("uncredit engagement: %w", err)
		}
		if !settled {
			return nil
		}
		p.logger.Info("stored engagement uncredited",
			zap.String("post_id", postID),
			zap.String("engagement_id", trig.ID),
			zap.String("reason_code", string(reason)),
		)
		if err := p.counters.WithTrx(tx).Decrement(ctx, postID, trig.Type.Counter()); err != nil && !errors.Is(err, post.ErrNotFound) {
			return fmt.Errorf("decrement counter: %w", err)
		}
		return nil
	})
}

func (p *Processor) credit(ctx context.Context, postID, creatorID string, trig *engagement.Event) (Result, error) {
	existing, err := p.records.FindByTrigger(ctx, postID, trig.ID)
	if err == nil {
		return fromRecord(existing, outcomeExisting), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("find record: %w", err)
	}

	pst, err := p.posts.Get(ctx, postID)
	if err != nil {
		return Result{}, fmt.Errorf("load post: %w", err)
	}
	if creatorID != "" && creatorID != pst.CreatorID {
		p.logger.Warn("creator does not own post, crediting owner",
			zap.String("post_id", postID), zap.String("creator_id", creatorID), zap.String("owner_id", pst.CreatorID))
	}
	creatorID = pst.CreatorID

	buckets, err := p.comments.CommentBuckets(ctx, postID)
	if err != nil {
		return Result{}, fmt.Errorf("load comment buckets: %w", err)
	}
	profile := p.profiles.Resolve(ctx, creatorID)

	b := scoring.Compute(scoring.Inputs{
		BaseRate:       p.baseRate,
		Likes:          pst.Likes,
		Comments:       buckets,
		Shares:         pst.Shares,
		Kind:           pst.Kind,
		Measurement:    pst.Measurement,
		CompletionRate: scoring.CompletionRate(pst.Kind, pst.AverageScrollDepth, pst.AverageWatchPercentage),
		Tier:           profile.Tier,
		TierResolved:   profile.TierResolved,
		HasBonusPass:   profile.HasBonusPass,
		BonusResolved:  profile.BonusResolved,
	})

	raw, err := json.Marshal(b)
	if err != nil {
		return Result{}, fmt.Errorf("encode breakdown: %w", err)
	}

	mode := ModeLive
	if b.Estimated() {
		mode = ModeEstimated
	}

	rec := &Record{
		ID:                     p.ids.NextID(),
		PostID:                 postID,
		TriggeringEngagementID: trig.ID,
		CreatorID:              creatorID,
		Amount:                 b.Amount,
		Mode:                   mode,
		QualityScore:           b.QualityScore,
		Breakdown:              datatypes.JSON(raw),
		ComputedAt:             time.Now().UTC(),
	}

	inserted, err := p.records.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("insert record: %w", err)
	}
	if !inserted {
		winner, err := p.records.FindByTrigger(ctx, postID, trig.ID)
		if err != nil {
			return Result{}, fmt.Errorf("load concurrent record: %w", err)
		}
		return fromRecord(winner, outcomeExisting), nil
	}

	p.logger.Info("earnings credited",
		zap.String("post_id", postID),
		zap.String("engagement_id", trig.ID),
		zap.String("creator_id", creatorID),
		zap.Float64("amount", rec.Amount),
		zap.String("mode", string(mode)),
	)
	return fromRecord(rec, outcomeCredited), nil
}
