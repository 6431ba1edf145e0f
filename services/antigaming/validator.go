package antigaming

import (
	"context"
	"time"

	"creatorhub-engine/pkg/config"
	applog "creatorhub-engine/pkg/logger"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/post"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var gatingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagement_gating_total",
	Help: "Engagement validation outcomes by reason.",
}, []string{"reason"})

var revalidationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagement_revalidation_total",
	Help: "Re-validation outcomes for stored engagements by reason.",
}, []string{"reason"})

var tracer = otel.Tracer("creatorhub-engine/antigaming")

// EventStore is the part of the engagement store the validator reads.
type EventStore interface {
	HasCredited(ctx context.Context, postID, actorID string, t engagement.Type, excludeID string) (bool, error)
	CountCreditedBetween(ctx context.Context, actorID string, from, to time.Time, excludeID string) (int64, error)
}

// PostStore resolves a post's owning creator.
type PostStore interface {
	Get(ctx context.Context, postID string) (*post.Post, error)
}

// Policy bounds how many credited engagements one actor may earn within Window.
type Policy struct {
	Window  time.Duration
	Ceiling int64
}

type Request struct {
	PostID  string
	ActorID string
	Type    engagement.Type
	// At anchors the rolling window; replays of the same engagement use its
	// creation time so they reach the same decision.
	At time.Time
	// ExcludeID skips the engagement being validated when it is already stored.
	ExcludeID string
	// Recheck marks a second look at an engagement already gated once. It is
	// counted under engagement_revalidation_total instead.
	Recheck bool
}

type Decision struct {
	Credited bool                  `json:"credited"`
	Reason   engagement.ReasonCode `json:"reason_code,omitempty"`
}

func reject(reason engagement.ReasonCode) Decision {
	return Decision{Credited: false, Reason: reason}
}

type Validator struct {
	events EventStore
	posts  PostStore
	policy Policy
	logger *zap.Logger
}

type ValidatorParams struct {
	fx.In

	Events engagement.Repository
	Posts  post.Repository
	Config *config.Config
	Logger *zap.Logger `optional:"true"`
}

func NewValidator(p ValidatorParams) *Validator {
	return New(p.Events, p.Posts, Policy{
		Window:  p.Config.Earnings.GatingWindow,
		Ceiling: p.Config.Earnings.GatingCeiling,
	}, p.Logger)
}

func New(events EventStore, posts PostStore, policy Policy, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{events: events, posts: posts, policy: policy, logger: logger}
}

// Validate decides whether an engagement may be credited. Rejections are
// returned as decisions, never as errors; a store failure rejects with
// INFRA_ERROR so the action proceeds without payout.
func (v *Validator) Validate(ctx context.Context, req Request) Decision {
	ctx, span := tracer.Start(ctx, "antigaming.Validate")
	defer span.End()

	d := v.validate(ctx, req)

	span.SetAttributes(
		attribute.String("post_id", req.PostID),
		attribute.String("engagement_type", string(req.Type)),
		attribute.Bool("credited", d.Credited),
		attribute.String("reason_code", string(d.Reason)),
	)
	label := string(d.Reason)
	if d.Credited {
		label = "CREDITED"
	}
	if req.Recheck {
		revalidationTotal.WithLabelValues(label).Inc()
	} else {
		gatingTotal.WithLabelValues(label).Inc()
	}

	return d
}

func (v *Validator) validate(ctx context.Context, req Request) Decision {
	if !req.Type.Creditable() {
		return reject(engagement.ReasonNotCreditable)
	}

	zapLog := v.logger.With(applog.TraceFields(ctx)...).With(
		zap.String("post_id", req.PostID),
		zap.String("actor_id", req.ActorID),
		zap.String("type", string(req.Type)),
	)

	p, err := v.posts.Get(ctx, req.PostID)
	if err != nil {
		zapLog.Error("failed to load post owner", zap.Error(err))
		return reject(engagement.ReasonInfraError)
	}
	if p.CreatorID == req.ActorID {
		return reject(engagement.ReasonSelfEngagement)
	}

	dup, err := v.events.HasCredited(ctx, req.PostID, req.ActorID, req.Type, req.ExcludeID)
	if err != nil {
		zapLog.Error("failed to check duplicate engagement", zap.Error(err))
		return reject(engagement.ReasonInfraError)
	}
	if dup {
		return reject(engagement.ReasonDuplicate)
	}

	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	n, err := v.events.CountCreditedBetween(ctx, req.ActorID, at.Add(-v.policy.Window), at, req.ExcludeID)
	if err != nil {
		zapLog.Error("failed to count recent engagements", zap.Error(err))
		return reject(engagement.ReasonInfraError)
	}
	if n >= v.policy.Ceiling {
		zapLog.Warn("engagement rate ceiling reached", zap.Int64("count", n), zap.Int64("ceiling", v.policy.Ceiling))
		return reject(engagement.ReasonRateLimited)
	}

	return Decision{Credited: true}
}

// Message is the human-readable explanation of a rejection.
func (d Decision) Message() string {
	switch d.Reason {
	case engagement.ReasonSelfEngagement:
		return "engagement on your own post does not earn credit"
	case engagement.ReasonDuplicate:
		return "this engagement was already credited"
	case engagement.ReasonRateLimited:
		return "too many engagements in a short time; this one was not credited"
	case engagement.ReasonNotCreditable:
		return "this engagement type does not earn credit"
	case engagement.ReasonInfraError:
		return "earnings not credited this time"
	}
	return ""
}
