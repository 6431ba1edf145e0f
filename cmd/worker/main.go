package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/db"
	"creatorhub-engine/pkg/gen"
	"creatorhub-engine/pkg/logger"
	"creatorhub-engine/pkg/otelcol"
	"creatorhub-engine/pkg/task"
	"creatorhub-engine/services/antigaming"
	"creatorhub-engine/services/consumption"
	"creatorhub-engine/services/creator"
	"creatorhub-engine/services/earnings"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/ingress"
	"creatorhub-engine/services/post"
	"creatorhub-engine/services/reconcile"
)

// The worker drains the earnings, aggregates and view queues and runs the
// periodic reconciliation jobs.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		task.Client,
		task.Server,
		gen.Module,
		post.Module,
		engagement.Module,
		creator.Module,
		antigaming.Module,
		consumption.Module,
		earnings.Module,
		earnings.TaskModule,
		ingress.Module,
		reconcile.Module,
		reconcile.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
