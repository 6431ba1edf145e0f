package creator

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("creator: account not found")

type Repository interface {
	Get(ctx context.Context, creatorID string) (*Account, error)
	Upsert(ctx context.Context, a *Account) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Get(ctx context.Context, creatorID string) (*Account, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var a Account
	err := r.db.WithContext(ctx).Where("creator_id = ?", creatorID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Upsert is used by the account sync feed and seeding.
func (r *gormRepository) Upsert(ctx context.Context, a *Account) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "creator_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier", "has_bonus_pass", "updated_at"}),
	}).Create(a).Error
}
