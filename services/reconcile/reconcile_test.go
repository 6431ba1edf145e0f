package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"creatorhub-engine/pkg/taskname"
	"creatorhub-engine/services/consumption"
	"creatorhub-engine/services/earnings"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/ingress"
	"creatorhub-engine/services/post"
	"creatorhub-engine/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type countersMock struct {
	calls []string
	err   error
}

func (m *countersMock) RecomputeCounters(_ context.Context, postID string) (post.Counters, error) {
	m.calls = append(m.calls, postID)
	return post.Counters{}, m.err
}

type consumptionMock struct {
	calls []string
}

func (m *consumptionMock) Recompute(_ context.Context, postID string) (post.Aggregates, error) {
	m.calls = append(m.calls, postID)
	return post.Aggregates{PostID: postID}, nil
}

type activityMock []string

func (m activityMock) PostsActiveSince(context.Context, time.Time, int) ([]string, error) {
	return m, nil
}

type enqueuerMock struct {
	opts  [][]asynq.Option
	tasks []*asynq.Task
	err   error
}

func (m *enqueuerMock) Enqueue(_ context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, t)
	m.opts = append(m.opts, opts)
	return &asynq.TaskInfo{}, m.err
}

func TestActiveRecomputesInline(t *testing.T) {
	counters := &countersMock{}
	cons := &consumptionMock{}
	r := NewRecomputer(counters, cons, nil, nil, activityMock{"p1", "p2"}, activityMock{"p2", "p3"})

	n, err := r.Active(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"p1", "p2", "p3"}, counters.calls)
	require.Equal(t, []string{"p1", "p2", "p3"}, cons.calls)
}

func TestActiveSkipsFailures(t *testing.T) {
	counters := &countersMock{err: post.ErrNotFound}
	cons := &consumptionMock{}
	r := NewRecomputer(counters, cons, nil, nil, activityMock{"p1"})

	n, err := r.Active(context.Background(), time.Now())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, cons.calls)
}

func TestActiveEnqueues(t *testing.T) {
	enq := &enqueuerMock{}
	counters := &countersMock{}
	r := NewRecomputer(counters, &consumptionMock{}, enq, nil, activityMock{"p1", "p2"})

	n, err := r.Active(context.Background(), time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, enq.tasks, 2)
	require.Equal(t, taskname.AggregatesRecompute, enq.tasks[0].Type())
	require.Empty(t, counters.calls)

	enq.err = asynq.ErrTaskIDConflict
	n, err = r.Active(context.Background(), time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestHandleAggregatesTask(t *testing.T) {
	counters := &countersMock{}
	cons := &consumptionMock{}
	r := NewRecomputer(counters, cons, nil, nil)

	task, err := NewAggregatesTask("p9")
	require.NoError(t, err)
	require.NoError(t, r.HandleAggregatesTask(context.Background(), task))
	require.Equal(t, []string{"p9"}, cons.calls)

	counters.err = post.ErrNotFound
	require.ErrorIs(t, r.HandleAggregatesTask(context.Background(), task), asynq.SkipRetry)

	counters.err = errors.New("timeout")
	err = r.HandleAggregatesTask(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type viewsMock struct {
	err error
	n   int
}

func (m *viewsMock) IncrementView(context.Context, string) error {
	m.n++
	return m.err
}

func TestHandleViewTask(t *testing.T) {
	views := &viewsMock{}
	h := &ViewHandler{views: views}

	task, err := ingress.NewViewTask("p1")
	require.NoError(t, err)
	require.NoError(t, h.HandleViewTask(context.Background(), task))
	require.Equal(t, 1, views.n)

	views.err = post.ErrNotFound
	require.ErrorIs(t, h.HandleViewTask(context.Background(), task), asynq.SkipRetry)

	bad := asynq.NewTask(taskname.PostViewIncrement, []byte("not json"))
	require.ErrorIs(t, h.HandleViewTask(context.Background(), bad), asynq.SkipRetry)
}

type sweeperMock struct {
	calls atomic.Int32
}

func (m *sweeperMock) Enqueue(context.Context) (earnings.SweepReport, error) {
	m.calls.Add(1)
	return earnings.SweepReport{Scanned: 1, Enqueued: 1}, nil
}

func TestSchedulerRunsAndStops(t *testing.T) {
	sweeper := &sweeperMock{}
	counters := &countersMock{}
	r := NewRecomputer(counters, &consumptionMock{}, nil, nil)
	s := newScheduler(sweeper, r, 10*time.Millisecond, 0, nil)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	after := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, sweeper.calls.Load())
}

func TestActivitySources(t *testing.T) {
	db := testutil.NewTestDB(t, &engagement.Event{}, &consumption.Sample{})
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	events := engagement.NewRepository(db)
	require.NoError(t, events.Insert(ctx, &engagement.Event{ID: "e1", PostID: "p1", ActorID: "a", Type: engagement.TypeView, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, events.Insert(ctx, &engagement.Event{ID: "e2", PostID: "p1", ActorID: "b", Type: engagement.TypeView, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, events.Insert(ctx, &engagement.Event{ID: "e3", PostID: "p0", ActorID: "a", Type: engagement.TypeView, CreatedAt: old, UpdatedAt: old}))

	samples := consumption.NewRepository(db)
	_, err := samples.InsertIfAbsent(ctx, &consumption.Sample{ID: "s1", PostID: "p2", SessionID: "x", Version: 1, UpdatedAt: now})
	require.NoError(t, err)

	cons := &consumptionMock{}
	r := NewRecomputer(&countersMock{}, cons, nil, nil, events, samples)
	n, err := r.Active(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.ElementsMatch(t, []string{"p1", "p2"}, cons.calls)
}
