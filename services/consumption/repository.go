package consumption

import (
	"context"
	"errors"
	"time"

	"creatorhub-engine/services/post"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("consumption: sample not found")

const foldBatchSize = 500

// Repository describes database operations available for consumption samples.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Get(ctx context.Context, postID, sessionID string) (*Sample, error)
	InsertIfAbsent(ctx context.Context, s *Sample) (bool, error)
	CompareAndSwap(ctx context.Context, s *Sample, version int64) (bool, error)
	Fold(ctx context.Context, postID string) (post.Consumption, error)
	PostsActiveSince(ctx context.Context, since time.Time, limit int) ([]string, error)
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

func (r *gormRepository) Get(ctx context.Context, postID, sessionID string) (*Sample, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var s Sample
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND session_id = ?", postID, sessionID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertIfAbsent creates the session's first sample. It reports false when
// another writer created the row first.
func (r *gormRepository) InsertIfAbsent(ctx context.Context, s *Sample) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "session_id"}},
			DoNothing: true,
		}).
		Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompareAndSwap writes the merged progress of s if the stored row still holds
// version, bumping the version. It reports false when the row moved on.
func (r *gormRepository) CompareAndSwap(ctx context.Context, s *Sample, version int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Sample{}).
		Where("post_id = ? AND session_id = ? AND version = ?", s.PostID, s.SessionID, version).
		Updates(map[string]any{
			"user_id":           s.UserID,
			"scroll_depth":      s.ScrollDepth,
			"watch_percentage":  s.WatchPercentage,
			"listen_percentage": s.ListenPercentage,
			"time_spent":        s.TimeSpent,
			"completed":         s.Completed,
			"observed_at":       s.ObservedAt,
			"version":           version + 1,
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.Version = version + 1
	s.UpdatedAt = now
	return true, nil
}

// Fold streams every sample of the post through an Accumulator.
func (r *gormRepository) Fold(ctx context.Context, postID string) (post.Consumption, error) {
	if r == nil || r.db == nil {
		return post.Consumption{}, gorm.ErrInvalidDB
	}

	var (
		acc   Accumulator
		batch []Sample
	)
	res := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		FindInBatches(&batch, foldBatchSize, func(tx *gorm.DB, _ int) error {
			for _, s := range batch {
				acc.Add(s)
			}
			return nil
		})
	if res.Error != nil {
		return post.Consumption{}, res.Error
	}
	return acc.Result(), nil
}

// PostsActiveSince returns ids of posts with a sample written at or after since.
func (r *gormRepository) PostsActiveSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Sample{}).
		Distinct("post_id").
		Where("updated_at >= ?", since).
		Order("post_id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ids []string
	if err := query.Pluck("post_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
