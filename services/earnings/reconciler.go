package earnings

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/task"
	"creatorhub-engine/services/engagement"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type processor interface {
	Process(ctx context.Context, postID, creatorID string, trig *engagement.Event) Result
}

// Reconciler finds credited engagements that never reached the ledger, for
// instance because the process died between accepting the engagement and
// writing the record, and processes them again.
type Reconciler struct {
	records     Repository
	processor   processor
	enqueuer    task.Enqueuer
	lookback    time.Duration
	batch       int
	concurrency int
	logger      *zap.Logger
}

type ReconcilerParams struct {
	fx.In

	Records   Repository
	Processor *Processor
	Enqueuer  task.Enqueuer `optional:"true"`
	Config    *config.Config
	Logger    *zap.Logger `optional:"true"`
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	return &Reconciler{
		records:     p.Records,
		processor:   p.Processor,
		enqueuer:    p.Enqueuer,
		lookback:    p.Config.Earnings.ReconcileLookback,
		batch:       p.Config.Earnings.ReconcileBatch,
		concurrency: p.Config.Earnings.ReconcileConcurrency,
		logger:      loggerOrNop(p.Logger),
	}
}

type SweepReport struct {
	Scanned  int `json:"scanned"`
	Credited int `json:"credited"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
	Enqueued int `json:"enqueued"`
}

// Sweep processes one batch of unprocessed engagements in this process.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	events, err := r.pending(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var credited, rejected, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.concurrency, 1))
	for i := range events {
		ev := events[i]
		g.Go(func() error {
			res := r.processor.Process(gctx, ev.PostID, "", &ev)
			switch {
			case res.outcome == outcomeFailed:
				failed.Add(1)
			case res.Credited():
				credited.Add(1)
			default:
				rejected.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := SweepReport{
		Scanned:  len(events),
		Credited: int(credited.Load()),
		Rejected: int(rejected.Load()),
		Failed:   int(failed.Load()),
	}
	if report.Scanned > 0 {
		r.logger.Info("earnings sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("credited", report.Credited),
			zap.Int("rejected", report.Rejected),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// Enqueue fans one batch of unprocessed engagements out to the worker queue.
// Engagements with a task already pending are skipped. Without a queue it
// falls back to Sweep.
func (r *Reconciler) Enqueue(ctx context.Context) (SweepReport, error) {
	if r.enqueuer == nil {
		return r.Sweep(ctx)
	}

	events, err := r.pending(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(events)}
	for _, ev := range events {
		t, err := NewProcessTask(ev.PostID, ev.ID)
		if err != nil {
			return report, err
		}
		_, err = r.enqueuer.Enqueue(ctx, t,
			asynq.TaskID(ProcessTaskID(ev.PostID, ev.ID)),
			asynq.Queue(task.QueueEarnings),
			asynq.MaxRetry(5),
		)
		switch {
		case err == nil:
			report.Enqueued++
		case task.IsDuplicate(err):
		default:
			r.logger.Warn("failed to enqueue earnings task", zap.String("engagement_id", ev.ID), zap.Error(err))
			report.Failed++
		}
	}
	return report, nil
}

func (r *Reconciler) pending(ctx context.Context) ([]engagement.Event, error) {
	since := time.Now().UTC().Add(-r.lookback)
	events, err := r.records.ListUnprocessed(ctx, since, r.batch)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed engagements: %w", err)
	}
	return events, nil
}
