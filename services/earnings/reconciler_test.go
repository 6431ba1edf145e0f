package earnings

import (
	"context"
	"testing"
	"time"

	"creatorhub-engine/pkg/db/pagination"
	"creatorhub-engine/pkg/taskname"
	"creatorhub-engine/services/antigaming"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/post"
	"creatorhub-engine/services/scoring"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type enqueuerMock struct {
	enqueueFn func(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	tasks     []*asynq.Task
}

func (m *enqueuerMock) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, t)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, t, opts...)
	}
	return &asynq.TaskInfo{}, nil
}

func (e *env) reconciler(enq *enqueuerMock) *Reconciler {
	r := &Reconciler{
		records:     e.records,
		processor:   e.processor,
		lookback:    72 * time.Hour,
		batch:       100,
		concurrency: 4,
		logger:      loggerOrNop(nil),
	}
	if enq != nil {
		r.enqueuer = enq
	}
	return r
}

func TestSweepCreditsMissedEngagements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedScenarioPost(t, "p1", "creator")

	missed := []*engagement.Event{e.like(t, "p1", "fan-1"), e.like(t, "p1", "fan-2")}
	r := e.reconciler(nil)

	// the 25 seeded comments were never processed either
	report, err := r.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 27, report.Scanned)
	require.Equal(t, 27, report.Credited)
	require.Zero(t, report.Failed)

	for _, ev := range missed {
		_, err := e.records.FindByTrigger(ctx, "p1", ev.ID)
		require.NoError(t, err)
	}

	again, err := r.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, again.Scanned)
	require.Equal(t, int64(27), e.recordCount(t))
}

func TestSweepMovesPastRejectedEngagements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.processor.validator = antigaming.New(e.events, e.posts, antigaming.Policy{Window: time.Hour, Ceiling: 1}, nil)
	for _, id := range []string{"p1", "p2"} {
		require.NoError(t, e.posts.Upsert(ctx, &post.Post{ID: id, CreatorID: "creator", Kind: scoring.KindArticle, Measurement: ptr(5)}))
		require.NoError(t, e.posts.SetCounters(ctx, id, post.Counters{Likes: 1}))
	}

	start := time.Now().UTC().Add(-time.Minute)
	likeAt := func(postID, actorID string, at time.Time) *engagement.Event {
		ev := &engagement.Event{ID: e.ids.NextID(), PostID: postID, ActorID: actorID, Type: engagement.TypeLike, CreatedAt: at}
		inserted, err := e.events.InsertCredited(ctx, ev)
		require.NoError(t, err)
		require.True(t, inserted)
		return ev
	}
	likeAt("p1", "bot", start)
	over := likeAt("p2", "bot", start.Add(time.Millisecond))
	honest := likeAt("p1", "fan", start.Add(2*time.Millisecond))

	r := e.reconciler(nil)
	r.batch = 1

	var total SweepReport
	for i := 0; i < 4; i++ {
		report, err := r.Sweep(ctx)
		require.NoError(t, err)
		total.Scanned += report.Scanned
		total.Credited += report.Credited
		total.Rejected += report.Rejected
	}
	require.Equal(t, 3, total.Scanned)
	require.Equal(t, 2, total.Credited)
	require.Equal(t, 1, total.Rejected)

	_, err := e.records.FindByTrigger(ctx, "p1", honest.ID)
	require.NoError(t, err)

	stored, err := e.events.Get(ctx, over.ID)
	require.NoError(t, err)
	require.False(t, stored.Credited)
	require.Equal(t, engagement.ReasonRateLimited, stored.ReasonCode)

	p2, err := e.posts.Get(ctx, "p2")
	require.NoError(t, err)
	require.Zero(t, p2.Likes)
}

func TestSweepSkipsRevokedAndViews(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedScenarioPost(t, "p1", "creator")
	require.NoError(t, e.db.Where("1 = 1").Delete(&engagement.Event{}).Error)

	ev := e.like(t, "p1", "fan")
	_, err := e.events.Revoke(ctx, "p1", "fan", engagement.TypeLike, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.events.Insert(ctx, &engagement.Event{ID: e.ids.NextID(), PostID: "p1", ActorID: "fan", Type: engagement.TypeView, Credited: false, CreatedAt: time.Now().UTC()}))

	pending, err := e.records.ListUnprocessed(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, pending, "revoked %s should be skipped", ev.ID)
}

func TestEnqueueUsesDedupeTaskID(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedScenarioPost(t, "p1", "creator")
	require.NoError(t, e.db.Where("1 = 1").Delete(&engagement.Event{}).Error)

	ev := e.like(t, "p1", "fan")
	e.like(t, "p1", "fan-2")

	calls := 0
	enq := &enqueuerMock{enqueueFn: func(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
		calls++
		if calls == 2 {
			return nil, asynq.ErrTaskIDConflict
		}
		return &asynq.TaskInfo{ID: ProcessTaskID("p1", ev.ID)}, nil
	}}

	report, err := e.reconciler(enq).Enqueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Scanned)
	require.Equal(t, 1, report.Enqueued)
	require.Zero(t, report.Failed)
	require.Len(t, enq.tasks, 2)
	require.Equal(t, taskname.EarningsProcess, enq.tasks[0].Type())
	require.Zero(t, e.recordCount(t))
}

func TestHandleProcessTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedScenarioPost(t, "p1", "creator")
	ev := e.like(t, "p1", "fan")

	h := &TaskHandler{events: e.events, processor: e.processor}

	task, err := NewProcessTask("p1", ev.ID)
	require.NoError(t, err)
	require.NoError(t, h.HandleProcessTask(ctx, task))
	_, err = e.records.FindByTrigger(ctx, "p1", ev.ID)
	require.NoError(t, err)

	missing, err := NewProcessTask("p1", "nope")
	require.NoError(t, err)
	require.ErrorIs(t, h.HandleProcessTask(ctx, missing), asynq.SkipRetry)

	require.ErrorIs(t, h.HandleProcessTask(ctx, asynq.NewTask(taskname.EarningsProcess, []byte("{"))), asynq.SkipRetry)
}

func TestLedgerPagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedScenarioPost(t, "p1", "creator")

	for i := 0; i < 5; i++ {
		mode := ModeLive
		if i%2 == 0 {
			mode = ModeEstimated
		}
		inserted, err := e.records.InsertIfAbsent(ctx, &Record{
			ID:                     e.ids.NextID(),
			PostID:                 "p1",
			TriggeringEngagementID: e.ids.NextID(),
			CreatorID:              "creator",
			Amount:                 1.25,
			Mode:                   mode,
			ComputedAt:             time.Now().UTC(),
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	ledger := NewLedger(e.records, nil)

	first, err := ledger.ListByCreator(ctx, "creator", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	require.True(t, first.PageInfo.HasMore)

	seen := map[string]bool{first.Data[0].ID: true, first.Data[1].ID: true}
	cursor := first.PageInfo.NextCursor
	for cursor != "" {
		page, err := ledger.ListByCreator(ctx, "creator", pagination.Pagination{Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		for _, r := range page.Data {
			require.False(t, seen[r.ID])
			seen[r.ID] = true
		}
		cursor = page.PageInfo.NextCursor
	}
	require.Len(t, seen, 5)

	byPost, err := ledger.ListByPost(ctx, "p1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, byPost.Data, 5)
	require.False(t, byPost.PageInfo.HasMore)

	empty, err := ledger.ListByCreator(ctx, "nobody", pagination.Pagination{})
	require.NoError(t, err)
	require.NotNil(t, empty.Data)
	require.Empty(t, empty.Data)

	_, err = ledger.ListByCreator(ctx, "creator", pagination.Pagination{Cursor: "%%%"})
	require.Error(t, err)

	sum, err := ledger.Summary(ctx, "creator")
	require.NoError(t, err)
	require.Equal(t, Summary{CreatorID: "creator", TotalAmount: 6.25, Records: 5, EstimatedCount: 3}, sum)
}
