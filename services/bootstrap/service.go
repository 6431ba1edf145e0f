package bootstrap

import (
	"context"
	"fmt"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/services/consumption"
	"creatorhub-engine/services/creator"
	"creatorhub-engine/services/earnings"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/post"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the engine.
func Models() []any {
	return []any{
		&post.Post{},
		&engagement.Event{},
		&consumption.Sample{},
		&creator.Account{},
		&earnings.Record{},
	}
}

type Service struct {
	db     *gorm.DB
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
	}
}

// Migrate creates or alters the engine tables when DATABASE.AUTO_MIGRATE is on.
func (s *Service) Migrate(ctx context.Context) error {
	if !s.config.Database.AutoMigrate {
		zap.L().Info("[bootstrap] auto migrate disabled, skipping")
		return nil
	}

	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] auto migrate failed", zap.Error(err))
		return fmt.Errorf("bootstrap: migrate: %w", err)
	}

	zap.L().Info("[bootstrap] schema migrated", zap.Int("tables", len(Models())))
	return nil
}
