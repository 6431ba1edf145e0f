package ingress

import (
	"context"
	"errors"
	"testing"
	"time"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/errutil"
	"creatorhub-engine/pkg/gen"
	"creatorhub-engine/pkg/task"
	"creatorhub-engine/pkg/taskname"
	"creatorhub-engine/services/antigaming"
	"creatorhub-engine/services/creator"
	"creatorhub-engine/services/earnings"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/post"
	"creatorhub-engine/services/scoring"
	"creatorhub-engine/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type enqueuerMock struct {
	err   error
	tasks []*asynq.Task
}

func (m *enqueuerMock) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, t)
	if m.err != nil {
		return nil, m.err
	}
	return &asynq.TaskInfo{}, nil
}

type harness struct {
	db      *gorm.DB
	posts   post.Repository
	events  engagement.Repository
	service *Service
}

func newHarness(t *testing.T, ceiling int64, enq *enqueuerMock) *harness {
	t.Helper()

	db := testutil.NewTestDB(t, &post.Post{}, &engagement.Event{}, &creator.Account{}, &earnings.Record{})
	ids, err := gen.NewNode(3)
	require.NoError(t, err)

	posts := post.NewRepository(db)
	events := engagement.NewRepository(db)
	validator := antigaming.New(events, posts, antigaming.Policy{Window: time.Hour, Ceiling: ceiling}, nil)

	cfg := &config.Config{Earnings: config.DefaultEarnings()}
	processor := earnings.NewProcessor(earnings.ProcessorParams{
		DB:        db,
		Validator: validator,
		Records:   earnings.NewRepository(db),
		Events:    events,
		Posts:     posts,
		Profiles:  creator.NewSource(creator.SourceParams{Repository: creator.NewRepository(db)}),
		IDs:       ids,
		Config:    cfg,
	})

	var enqueuer task.Enqueuer
	if enq != nil {
		enqueuer = enq
	}

	svc := New(db, events, posts, validator, processor, enqueuer, ids, nil)
	require.NoError(t, posts.Upsert(context.Background(), &post.Post{ID: "p1", CreatorID: "creator", Kind: scoring.KindVideo, Measurement: ptr(300)}))

	return &harness{db: db, posts: posts, events: events, service: svc}
}

func ptr(v float64) *float64 { return &v }

func (h *harness) counters(t *testing.T) post.Counters {
	t.Helper()
	p, err := h.posts.Get(context.Background(), "p1")
	require.NoError(t, err)
	return p.Aggregates().Counters
}

func (h *harness) records(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&earnings.Record{}).Count(&n).Error)
	return n
}

func TestDuplicateShareStillSucceeds(t *testing.T) {
	h := newHarness(t, 60, nil)
	ctx := context.Background()

	first, err := h.service.ReportEngagement(ctx, Report{PostID: "p1", ActorID: "fan", Type: "SHARE"})
	require.NoError(t, err)
	require.True(t, first.Success)
	require.True(t, first.Credited)
	require.NotNil(t, first.FinalEarnings)
	// share weight 20, medium video 1.2, unresolved creator
	require.InDelta(t, 0.01*20*1.2, *first.FinalEarnings, 1e-9)
	require.Equal(t, earnings.ModeEstimated, first.Mode)

	second, err := h.service.ReportEngagement(ctx, Report{PostID: "p1", ActorID: "fan", Type: "share"})
	require.NoError(t, err)
	require.True(t, second.Success)
	require.False(t, second.Credited)
	require.Nil(t, second.FinalEarnings)
	require.Equal(t, engagement.ReasonDuplicate, second.ReasonCode)

	require.Equal(t, int64(1), h.counters(t).Shares)
	require.Equal(t, int64(1), h.records(t))

	var audit int64
	require.NoError(t, h.db.Model(&engagement.Event{}).Where("reason_code = ?", engagement.ReasonDuplicate).Count(&audit).Error)
	require.Equal(t, int64(1), audit)
}

func TestSelfEngagementIsGated(t *testing.T) {
	h := newHarness(t, 60, nil)

	res, err := h.service.ReportEngagement(context.Background(), Report{PostID: "p1", ActorID: "creator", Type: "LIKE"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, engagement.ReasonSelfEngagement, res.ReasonCode)
	require.NotEmpty(t, res.EngagementID)
	require.Zero(t, h.counters(t).Likes)
	require.Zero(t, h.records(t))
}

func TestRateLimitedActor(t *testing.T) {
	h := newHarness(t, 2, nil)
	ctx := context.Background()
	for _, id := range []string{"p2", "p3"} {
		require.NoError(t, h.posts.Upsert(ctx, &post.Post{ID: id, CreatorID: "creator", Kind: scoring.KindText}))
	}

	for _, id := range []string{"p1", "p2"} {
		res, err := h.service.ReportEngagement(ctx, Report{PostID: id, ActorID: "fan", Type: "LIKE"})
		require.NoError(t, err)
		require.True(t, res.Credited)
	}

	res, err := h.service.ReportEngagement(ctx, Report{PostID: "p3", ActorID: "fan", Type: "LIKE"})
	require.NoError(t, err)
	require.Equal(t, engagement.ReasonRateLimited, res.ReasonCode)
	require.Equal(t, int64(2), h.records(t))
}

func TestRevokeAndReactivate(t *testing.T) {
	h := newHarness(t, 60, nil)
	ctx := context.Background()

	liked, err := h.service.ReportEngagement(ctx, Report{PostID: "p1", ActorID: "fan", Type: "LIKE"})
	require.NoError(t, err)
	require.True(t, liked.Credited)

	rev, err := h.service.RevokeEngagement(ctx, "p1", "fan", "LIKE")
	require.NoError(t, err)
	require.True(t, rev.Revoked)
	require.Zero(t, h.counters(t).Likes)

	again, err := h.service.RevokeEngagement(ctx, "p1", "fan", "LIKE")
	require.NoError(t, err)
	require.False(t, again.Revoked)
	require.Zero(t, h.counters(t).Likes)

	relike, err := h.service.ReportEngagement(ctx, Report{PostID: "p1", ActorID: "fan", Type: "LIKE"})
	require.NoError(t, err)
	require.Equal(t, engagement.ReasonDuplicate, relike.ReasonCode)
	require.Equal(t, liked.EngagementID, relike.EngagementID)
	require.Equal(t, int64(1), h.counters(t).Likes)
	require.Equal(t, int64(1), h.records(t))

	c, err := h.service.RecomputeCounters(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(1), c.Likes)
}

func TestViewsInline(t *testing.T) {
	h := newHarness(t, 60, nil)

	res, err := h.service.ReportEngagement(context.Background(), Report{PostID: "p1", ActorID: "creator", Type: "VIEW"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.ReasonCode)
	require.Equal(t, int64(1), h.counters(t).Views)
}

func TestViewsQueued(t *testing.T) {
	ctx := context.Background()
	enq := &enqueuerMock{}
	h := newHarness(t, 60, enq)

	for i := 0; i < 3; i++ {
		_, err := h.service.ReportEngagement(ctx, Report{PostID: "p1", ActorID: "fan", Type: "VIEW"})
		require.NoError(t, err)
	}
	require.Len(t, enq.tasks, 3)
	require.Equal(t, taskname.PostViewIncrement, enq.tasks[0].Type())
	require.Zero(t, h.counters(t).Views)

	c, err := h.service.RecomputeCounters(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(3), c.Views)
	require.Zero(t, h.records(t))
}

func TestViewEnqueueFailureFallsBack(t *testing.T) {
	enq := &enqueuerMock{err: errors.New("redis down")}
	h := newHarness(t, 60, enq)

	_, err := h.service.ReportEngagement(context.Background(), Report{PostID: "p1", ActorID: "fan", Type: "VIEW"})
	require.NoError(t, err)
	require.Equal(t, int64(1), h.counters(t).Views)
}

func TestReportValidation(t *testing.T) {
	h := newHarness(t, 60, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		report Report
		code   errutil.CoreStatus
	}{
		{"unknown type", Report{PostID: "p1", ActorID: "fan", Type: "POKE"}, errutil.StatusValidationFailed},
		{"missing actor", Report{PostID: "p1", Type: "LIKE"}, errutil.StatusValidationFailed},
		{"negative comment", Report{PostID: "p1", ActorID: "fan", Type: "COMMENT", CommentLength: -1}, errutil.StatusValidationFailed},
		{"unknown post", Report{PostID: "nope", ActorID: "fan", Type: "LIKE"}, errutil.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.service.ReportEngagement(ctx, tc.report)
			var be errutil.BaseError
			require.ErrorAs(t, err, &be)
			require.Equal(t, tc.code, be.Code)
		})
	}

	_, err := h.service.RevokeEngagement(ctx, "p1", "fan", "VIEW")
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusValidationFailed, be.Code)

	_, err = h.service.RevokeEngagement(ctx, "nope", "fan", "LIKE")
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Code)
}

type failingRevokes struct {
	engagement.Repository
}

func (f *failingRevokes) WithTrx(*gorm.DB) engagement.Repository { return f }

func (f *failingRevokes) Revoke(context.Context, string, string, engagement.Type, time.Time) (bool, error) {
	return false, errors.New("database is locked")
}

func TestRevokeStoreFailureReportsNotRevoked(t *testing.T) {
	h := newHarness(t, 60, nil)
	ctx := context.Background()

	liked, err := h.service.ReportEngagement(ctx, Report{PostID: "p1", ActorID: "fan", Type: "LIKE"})
	require.NoError(t, err)
	require.True(t, liked.Credited)

	h.service.events = &failingRevokes{Repository: h.events}
	rev, err := h.service.RevokeEngagement(ctx, "p1", "fan", "LIKE")
	require.NoError(t, err)
	require.False(t, rev.Revoked)
	require.Equal(t, int64(1), h.counters(t).Likes)

	stored, err := h.events.Get(ctx, liked.EngagementID)
	require.NoError(t, err)
	require.True(t, stored.Active())
}

func TestCommentLengthFeedsBuckets(t *testing.T) {
	h := newHarness(t, 60, nil)
	ctx := context.Background()

	for i, l := range []int{10, 120, 400} {
		res, err := h.service.ReportEngagement(ctx, Report{PostID: "p1", ActorID: string(rune('a' + i)), Type: "COMMENT", CommentLength: l})
		require.NoError(t, err)
		require.True(t, res.Credited)
	}

	b, err := h.events.CommentBuckets(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, scoring.CommentBuckets{Short: 1, Medium: 1, Long: 1}, b)
	require.Equal(t, int64(3), h.counters(t).Comments)
}
