package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"creatorhub-engine/internal/httpapi"
	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/db"
	"creatorhub-engine/pkg/gen"
	"creatorhub-engine/pkg/health"
	"creatorhub-engine/pkg/logger"
	"creatorhub-engine/pkg/otelcol"
	"creatorhub-engine/pkg/redis"
	"creatorhub-engine/pkg/server"
	"creatorhub-engine/pkg/task"
	"creatorhub-engine/services/antigaming"
	"creatorhub-engine/services/bootstrap"
	"creatorhub-engine/services/consumption"
	"creatorhub-engine/services/creator"
	"creatorhub-engine/services/earnings"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/ingress"
	"creatorhub-engine/services/post"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		task.Client,
		gen.Module,
		health.Module,
		bootstrap.Module,
		post.Module,
		engagement.Module,
		creator.Module,
		antigaming.Module,
		consumption.Module,
		earnings.Module,
		ingress.Module,
		httpapi.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
