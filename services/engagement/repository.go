package engagement

import (
	"context"
	"errors"
	"time"

	"creatorhub-engine/services/post"
	"creatorhub-engine/services/scoring"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("engagement: not found")

// Repository describes database operations available for engagement events.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Insert(ctx context.Context, e *Event) error
	InsertCredited(ctx context.Context, e *Event) (bool, error)
	Get(ctx context.Context, id string) (*Event, error)
	FindCredited(ctx context.Context, postID, actorID string, t Type) (*Event, error)
	HasCredited(ctx context.Context, postID, actorID string, t Type, excludeID string) (bool, error)
	CountCreditedBetween(ctx context.Context, actorID string, from, to time.Time, excludeID string) (int64, error)
	Revoke(ctx context.Context, postID, actorID string, t Type, at time.Time) (bool, error)
	Reactivate(ctx context.Context, id string) (bool, error)
	Uncredit(ctx context.Context, id string, reason ReasonCode) (bool, error)
	CommentBuckets(ctx context.Context, postID string) (scoring.CommentBuckets, error)
	Counters(ctx context.Context, postID string) (post.Counters, error)
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

func (r *gormRepository) Insert(ctx context.Context, e *Event) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(e).Error
}

// InsertCredited inserts a credited event unless one already holds its dedupe
// key. It reports false when the insert lost to an existing row.
func (r *gormRepository) InsertCredited(ctx context.Context, e *Event) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	key := DedupeKey(e.PostID, e.ActorID, e.Type)
	e.DedupeKey = &key
	e.Credited = true
	e.ReasonCode = ReasonNone

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) Get(ctx context.Context, id string) (*Event, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var e Event
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) FindCredited(ctx context.Context, postID, actorID string, t Type) (*Event, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var e Event
	err := r.db.WithContext(ctx).
		Where("dedupe_key = ?", DedupeKey(postID, actorID, t)).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// HasCredited reports whether a credited event other than excludeID exists for
// (post, actor, type). Revoked events still count: they were paid once.
func (r *gormRepository) HasCredited(ctx context.Context, postID, actorID string, t Type, excludeID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Event{}).
		Where("dedupe_key = ?", DedupeKey(postID, actorID, t))
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var n int64
	if err := query.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountCreditedBetween counts the actor's credited events created in [from, to).
func (r *gormRepository) CountCreditedBetween(ctx context.Context, actorID string, from, to time.Time, excludeID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Event{}).
		Where("actor_id = ? AND credited = ? AND created_at >= ? AND created_at < ?", actorID, true, from, to)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var n int64
	if err := query.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Revoke marks the active credited event for (post, actor, type) as revoked.
// It reports false when there was nothing active to revoke.
func (r *gormRepository) Revoke(ctx context.Context, postID, actorID string, t Type, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Event{}).
		Where("dedupe_key = ? AND revoked_at IS NULL", DedupeKey(postID, actorID, t)).
		Updates(map[string]any{"revoked_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Reactivate clears revoked_at on a revoked credited event.
func (r *gormRepository) Reactivate(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND revoked_at IS NOT NULL", id).
		Updates(map[string]any{"revoked_at": nil, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Uncredit settles a stored credited event that failed re-validation. The row
// keeps its history but gives up the credited flag and its dedupe key.
func (r *gormRepository) Uncredit(ctx context.Context, id string, reason ReasonCode) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND credited = ? AND revoked_at IS NULL", id, true).
		Updates(map[string]any{
			"credited":    false,
			"reason_code": reason,
			"dedupe_key":  nil,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CommentBuckets counts the post's active credited comments per length bucket.
func (r *gormRepository) CommentBuckets(ctx context.Context, postID string) (scoring.CommentBuckets, error) {
	if r == nil || r.db == nil {
		return scoring.CommentBuckets{}, gorm.ErrInvalidDB
	}

	var out struct {
		ShortCount  int64
		MediumCount int64
		LongCount   int64
	}
	err := r.db.WithContext(ctx).Model(&Event{}).
		Select(
			"COALESCE(SUM(CASE WHEN comment_length < ? THEN 1 ELSE 0 END), 0) AS short_count, "+
				"COALESCE(SUM(CASE WHEN comment_length >= ? AND comment_length <= ? THEN 1 ELSE 0 END), 0) AS medium_count, "+
				"COALESCE(SUM(CASE WHEN comment_length > ? THEN 1 ELSE 0 END), 0) AS long_count",
			scoring.ShortCommentMax, scoring.ShortCommentMax, scoring.LongCommentMin, scoring.LongCommentMin,
		).
		Where("post_id = ? AND type = ? AND credited = ? AND revoked_at IS NULL", postID, TypeComment, true).
		Scan(&out).Error
	if err != nil {
		return scoring.CommentBuckets{}, err
	}
	return scoring.CommentBuckets{Short: out.ShortCount, Medium: out.MediumCount, Long: out.LongCount}, nil
}

type typeCount struct {
	Type  Type
	Total int64
}

// Counters rebuilds the post's engagement counters from event rows: every view,
// plus active credited likes, comments and shares.
func (r *gormRepository) Counters(ctx context.Context, postID string) (post.Counters, error) {
	if r == nil || r.db == nil {
		return post.Counters{}, gorm.ErrInvalidDB
	}

	var rows []typeCount
	err := r.db.WithContext(ctx).Model(&Event{}).
		Select("type, COUNT(*) AS total").
		Where("post_id = ?", postID).
		Where("type = ? OR (credited = ? AND revoked_at IS NULL)", TypeView, true).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return post.Counters{}, err
	}

	var c post.Counters
	for _, row := range rows {
		switch row.Type {
		case TypeView:
			c.Views = row.Total
		case TypeLike:
			c.Likes = row.Total
		case TypeComment:
			c.Comments = row.Total
		case TypeShare:
			c.Shares = row.Total
		}
	}
	return c, nil
}

// PostsActiveSince returns ids of posts that received engagement at or after
// since.
func (r *gormRepository) PostsActiveSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Event{}).
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
