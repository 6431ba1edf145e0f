package main

import (
	"context"
	"fmt"
	"log"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/db"
	"creatorhub-engine/pkg/logger"
	"creatorhub-engine/services/bootstrap"
	"creatorhub-engine/services/creator"
	"creatorhub-engine/services/post"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type seedPost struct {
	creatorID   string
	kind        string
	measurement float64
}

var (
	tiers = map[string]string{
		"creator-standard": "STANDARD",
		"creator-gold":     "GOLD",
		"creator-platinum": "PLATINUM",
	}

	posts = []seedPost{
		{"creator-standard", "ARTICLE", 7},
		{"creator-standard", "TEXT", 450},
		{"creator-gold", "VIDEO", 420},
		{"creator-platinum", "SHORT_VIDEO", 30},
	}
)

// seed registers demo creators and posts for local development.
func seed(lc fx.Lifecycle, shutdowner fx.Shutdowner, creators creator.Repository, svc *post.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pass := true
			for id, tier := range tiers {
				if err := creators.Upsert(ctx, &creator.Account{CreatorID: id, Tier: tier, HasBonusPass: &pass}); err != nil {
					return err
				}
			}

			for i, p := range posts {
				m := p.measurement
				if _, err := svc.Register(ctx, post.RegisterRequest{
					PostID:      fmt.Sprintf("post-%d", i+1),
					CreatorID:   p.creatorID,
					Kind:        p.kind,
					Measurement: &m,
				}); err != nil {
					return err
				}
			}

			zap.L().Info("[seed] seeded demo data", zap.Int("creators", len(tiers)), zap.Int("posts", len(posts)))
			return shutdowner.Shutdown()
		},
	})
}

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		bootstrap.Module,
		creator.Module,
		post.Module,
		fx.Invoke(seed),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}
