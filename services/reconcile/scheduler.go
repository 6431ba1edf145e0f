package reconcile

import (
	"context"
	"sync"
	"time"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/services/earnings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Sweeper interface {
	Enqueue(ctx context.Context) (earnings.SweepReport, error)
}

// Scheduler drives the periodic convergence jobs: the earnings sweep for
// engagements that never reached the ledger and the aggregate recompute of
// recently active posts.
type Scheduler struct {
	sweeper           Sweeper
	recomputer        *Recomputer
	sweepInterval     time.Duration
	aggregateInterval time.Duration
	logger            *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SchedulerParams struct {
	fx.In

	Reconciler *earnings.Reconciler
	Recomputer *Recomputer
	Config     *config.Config
	Logger     *zap.Logger `optional:"true"`
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return newScheduler(p.Reconciler, p.Recomputer, p.Config.Earnings.ReconcileInterval, p.Config.Earnings.AggregateInterval, p.Logger)
}

func newScheduler(sweeper Sweeper, recomputer *Recomputer, sweepEvery, aggregateEvery time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sweeper:           sweeper,
		recomputer:        recomputer,
		sweepInterval:     sweepEvery,
		aggregateInterval: aggregateEvery,
		logger:            logger,
	}
}

// StartScheduler binds the scheduler loops to the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	if s.sweepInterval > 0 {
		s.loop(ctx, "earnings sweep", s.sweepInterval, s.sweep)
	}
	if s.aggregateInterval > 0 {
		s.loop(ctx, "aggregate recompute", s.aggregateInterval, s.recompute)
	}
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("[Scheduler] started", zap.String("job", name), zap.Duration("interval", every))

		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run(ctx)
			case <-ctx.Done():
				s.logger.Info("[Scheduler] stopped", zap.String("job", name))
				return
			}
		}
	}()
}

func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()
	report, err := s.sweeper.Enqueue(ctx)
	if err != nil {
		s.logger.Error("[Scheduler] earnings sweep failed", zap.Error(err))
		return
	}
	if report.Scanned > 0 {
		s.logger.Info("[Scheduler] earnings sweep",
			zap.Int("scanned", report.Scanned),
			zap.Int("enqueued", report.Enqueued),
			zap.Int("credited", report.Credited),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// recompute covers two intervals so a post touched just before the previous
// tick is not missed.
func (s *Scheduler) recompute(ctx context.Context) {
	since := time.Now().UTC().Add(-2 * s.aggregateInterval)
	n, err := s.recomputer.Active(ctx, since)
	if err != nil {
		s.logger.Error("[Scheduler] aggregate recompute failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("[Scheduler] aggregate recompute", zap.Int("posts", n))
	}
}
