package consumption

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/errutil"
	"creatorhub-engine/pkg/gen"
	applog "creatorhub-engine/pkg/logger"
	"creatorhub-engine/services/post"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrConcurrentUpdate is returned when a session's sample kept changing under
// every compare-and-set attempt.
var ErrConcurrentUpdate = errors.New("consumption: concurrent update")

const (
	maxMergeAttempts = 5
	anonPrefix       = "anon-"
)

var mergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "consumption_merge_total",
	Help: "Consumption reports by whether they created a new session sample.",
}, []string{"created"})

var tracer = otel.Tracer("creatorhub-engine/consumption")

// PostStore is the part of the post store the aggregator touches.
type PostStore interface {
	Get(ctx context.Context, postID string) (*post.Post, error)
	SetConsumption(ctx context.Context, postID string, c post.Consumption) error
}

type Aggregator struct {
	repo      Repository
	posts     PostStore
	ids       gen.IDGenerator
	threshold float64
	logger    *zap.Logger
}

type AggregatorParams struct {
	fx.In

	Repository Repository
	Posts      post.Repository
	IDs        gen.IDGenerator
	Config     *config.Config
	Logger     *zap.Logger `optional:"true"`
}

func NewAggregator(p AggregatorParams) *Aggregator {
	return New(p.Repository, p.Posts, p.IDs, p.Config.Earnings.CompletionThreshold, p.Logger)
}

func New(repo Repository, posts PostStore, ids gen.IDGenerator, threshold float64, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{repo: repo, posts: posts, ids: ids, threshold: threshold, logger: logger}
}

// Record merges an observation into the session's sample and refreshes the
// post aggregates. An empty sessionID starts an anonymous session whose id is
// returned for subsequent reports.
func (a *Aggregator) Record(ctx context.Context, postID, sessionID string, obs Observation) (RecordResult, error) {
	ctx, span := tracer.Start(ctx, "consumption.Record")
	defer span.End()

	if err := validate(obs); err != nil {
		return RecordResult{}, err
	}
	if _, err := a.posts.Get(ctx, postID); err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return RecordResult{}, errutil.NotFound("post not found", err)
		}
		return RecordResult{}, errutil.Internal("failed to load post", err)
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = anonPrefix + a.ids.NextID()
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}

	zapLog := a.logger.With(applog.TraceFields(ctx)...).With(
		zap.String("post_id", postID),
		zap.String("session_id", sessionID),
	)

	res, err := a.merge(ctx, postID, sessionID, obs.sample())
	if err != nil {
		zapLog.Error("failed to record consumption", zap.Error(err))
		if errors.Is(err, ErrConcurrentUpdate) {
			return RecordResult{}, errutil.Conflict("session is being updated concurrently, retry", err)
		}
		return RecordResult{}, errutil.Internal("failed to record consumption", err)
	}

	span.SetAttributes(attribute.String("post_id", postID), attribute.Bool("created", res.Created))
	mergeTotal.WithLabelValues(strconv.FormatBool(res.Created)).Inc()

	if _, err := a.Recompute(ctx, postID); err != nil {
		zapLog.Warn("aggregate recompute deferred to sweep", zap.Error(err))
	}

	return res, nil
}

func (a *Aggregator) merge(ctx context.Context, postID, sessionID string, incoming Sample) (RecordResult, error) {
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		existing, err := a.repo.Get(ctx, postID, sessionID)
		if errors.Is(err, ErrNotFound) {
			s := Merge(Sample{}, incoming, a.threshold)
			s.ID = a.ids.NextID()
			s.PostID = postID
			s.SessionID = sessionID
			s.Version = 1

			inserted, err := a.repo.InsertIfAbsent(ctx, &s)
			if err != nil {
				return RecordResult{}, err
			}
			if inserted {
				return RecordResult{Sample: s, Created: true, SessionID: sessionID}, nil
			}
			continue
		}
		if err != nil {
			return RecordResult{}, err
		}

		merged := Merge(*existing, incoming, a.threshold)
		if sameProgress(*existing, merged) {
			return RecordResult{Sample: *existing, SessionID: sessionID}, nil
		}

		ok, err := a.repo.CompareAndSwap(ctx, &merged, existing.Version)
		if err != nil {
			return RecordResult{}, err
		}
		if ok {
			return RecordResult{Sample: merged, SessionID: sessionID}, nil
		}
	}
	return RecordResult{}, fmt.Errorf("%w: post %s session %s", ErrConcurrentUpdate, postID, sessionID)
}

// Recompute rebuilds the post's consumption aggregates from every stored
// sample and writes them to the post.
func (a *Aggregator) Recompute(ctx context.Context, postID string) (post.Aggregates, error) {
	c, err := a.repo.Fold(ctx, postID)
	if err != nil {
		return post.Aggregates{}, err
	}
	if err := a.posts.SetConsumption(ctx, postID, c); err != nil {
		return post.Aggregates{}, err
	}
	p, err := a.posts.Get(ctx, postID)
	if err != nil {
		return post.Aggregates{}, err
	}
	return p.Aggregates(), nil
}

func validate(o Observation) error {
	var details []errutil.Detail
	check := func(field string, v *float64) {
		if v == nil {
			return
		}
		if math.IsNaN(*v) || *v < 0 || *v > 1 {
			details = append(details, errutil.Detail{Field: field, Message: "must be between 0 and 1"})
		}
	}
	check("scroll_depth", o.ScrollDepth)
	check("watch_percentage", o.WatchPercentage)
	check("listen_percentage", o.ListenPercentage)
	if math.IsNaN(o.TimeSpent) || math.IsInf(o.TimeSpent, 0) || o.TimeSpent < 0 {
		details = append(details, errutil.Detail{Field: "time_spent", Message: "must be a non-negative number of seconds"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid consumption sample", nil, errutil.WithDetails(details...))
	}
	return nil
}
