package httpapi

import (
	"net/http"
	"time"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/health"
	"creatorhub-engine/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		NewRouter,
		func(r *gin.Engine) http.Handler { return r },
	),
)

type RouterParams struct {
	fx.In

	Config  *config.Config
	Handler *Handler
	Health  health.HealthService
	Redis   *redis.Client `optional:"true"`
	Logger  *zap.Logger   `optional:"true"`
}

func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Logger(p.Logger), gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	if p.Config.RateLimit.Enable && p.Redis != nil {
		v1.Use(middleware.Throttle(middleware.NewRedisCounter(p.Redis), p.Config.RateLimit.RequestsPerMinute, time.Minute))
	}

	h := p.Handler
	posts := v1.Group("/posts/:post_id")
	posts.PUT("", h.RegisterPost)
	posts.POST("/engagements", h.ReportEngagement)
	posts.DELETE("/engagements", h.RevokeEngagement)
	posts.POST("/consumption", h.ReportConsumption)
	posts.GET("/aggregates", h.Aggregates)
	posts.GET("/earnings", h.PostEarnings)

	creators := v1.Group("/creators/:creator_id")
	creators.GET("/earnings", h.CreatorEarnings)
	creators.GET("/earnings/summary", h.CreatorSummary)

	v1.POST("/earnings/estimate", h.Estimate)

	return r
}
