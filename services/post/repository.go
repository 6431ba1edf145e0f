package post

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound       = errors.New("post: not found")
	ErrInvalidCounter = errors.New("post: invalid counter")
)

// Repository describes database operations available for posts.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, p *Post) error
	Get(ctx context.Context, postID string) (*Post, error)
	Increment(ctx context.Context, postID string, c Counter) error
	Decrement(ctx context.Context, postID string, c Counter) error
	SetCounters(ctx context.Context, postID string, c Counters) error
	SetConsumption(ctx context.Context, postID string, c Consumption) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTrx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

// Upsert registers a post or refreshes its owner and content shape. Aggregate
// fields are left untouched on conflict.
func (r *gormRepository) Upsert(ctx context.Context, p *Post) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"creator_id", "kind", "measurement", "updated_at"}),
	}).Create(p).Error
}

func (r *gormRepository) Get(ctx context.Context, postID string) (*Post, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var p Post
	err := r.db.WithContext(ctx).Where("id = ?", postID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) Increment(ctx context.Context, postID string, c Counter) error {
	if !c.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCounter, c)
	}
	return r.updateCounter(ctx, postID, c, gorm.Expr(string(c)+" + 1"))
}

// Decrement lowers a counter by one, never below zero.
func (r *gormRepository) Decrement(ctx context.Context, postID string, c Counter) error {
	if !c.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCounter, c)
	}
	col := string(c)
	return r.updateCounter(ctx, postID, c, gorm.Expr("CASE WHEN "+col+" > 0 THEN "+col+" - 1 ELSE 0 END"))
}

func (r *gormRepository) updateCounter(ctx context.Context, postID string, c Counter, expr clause.Expr) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Post{}).
		Where("id = ?", postID).
		Updates(map[string]any{
			string(c):    expr,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) SetCounters(ctx context.Context, postID string, c Counters) error {
	return r.update(ctx, postID, map[string]any{
		"views":      c.Views,
		"likes":      c.Likes,
		"comments":   c.Comments,
		"shares":     c.Shares,
		"updated_at": time.Now().UTC(),
	})
}

func (r *gormRepository) SetConsumption(ctx context.Context, postID string, c Consumption) error {
	return r.update(ctx, postID, map[string]any{
		"average_scroll_depth":     c.AverageScrollDepth,
		"average_watch_percentage": c.AverageWatchPercentage,
		"total_completions":        c.TotalCompletions,
		"updated_at":               time.Now().UTC(),
	})
}

func (r *gormRepository) update(ctx context.Context, postID string, values map[string]any) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Post{}).Where("id = ?", postID).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
