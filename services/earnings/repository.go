package earnings

import (
	"context"
	"errors"
	"time"

	"creatorhub-engine/pkg/db/pagination"
	"creatorhub-engine/services/engagement"
	"creatorhub-engine/services/scoring"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("earnings: record not found")

// Repository describes database operations available for the earnings ledger.
// Records are append only.
type Repository interface {
	FindByTrigger(ctx context.Context, postID, engagementID string) (*Record, error)
	InsertIfAbsent(ctx context.Context, rec *Record) (bool, error)
	ListByPost(ctx context.Context, postID string, page pagination.Pagination) ([]Record, error)
	ListByCreator(ctx context.Context, creatorID string, page pagination.Pagination) ([]Record, error)
	Summary(ctx context.Context, creatorID string) (Summary, error)
	ListUnprocessed(ctx context.Context, since time.Time, limit int) ([]engagement.Event, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByTrigger(ctx context.Context, postID, engagementID string) (*Record, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rec Record
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND triggering_engagement_id = ?", postID, engagementID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertIfAbsent appends rec unless a record already holds its idempotency
// key. It reports false when the insert lost to an existing record.
func (r *gormRepository) InsertIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "triggering_engagement_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) ListByPost(ctx context.Context, postID string, page pagination.Pagination) ([]Record, error) {
	return r.list(ctx, "post_id = ?", postID, page)
}

func (r *gormRepository) ListByCreator(ctx context.Context, creatorID string, page pagination.Pagination) ([]Record, error) {
	return r.list(ctx, "creator_id = ?", creatorID, page)
}

// list returns up to page.Limit+1 records newest first, starting after the
// cursor id. The extra row tells the caller whether another page exists.
func (r *gormRepository) list(ctx context.Context, where string, arg string, page pagination.Pagination) ([]Record, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	page = page.Normalize()
	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&Record{}).Where(where, arg)
	if cursor.ID != "" {
		query = query.Where("id < ?", cursor.ID)
	}

	var out []Record
	if err := query.Order("id DESC").Limit(page.Limit + 1).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) Summary(ctx context.Context, creatorID string) (Summary, error) {
	if r == nil || r.db == nil {
		return Summary{}, gorm.ErrInvalidDB
	}

	var row struct {
		TotalAmount    float64
		Records        int64
		EstimatedCount int64
	}
	err := r.db.WithContext(ctx).Model(&Record{}).
		Select(
			"COALESCE(SUM(amount), 0) AS total_amount, COUNT(*) AS records, "+
				"COALESCE(SUM(CASE WHEN mode = ? THEN 1 ELSE 0 END), 0) AS estimated_count",
			ModeEstimated,
		).
		Where("creator_id = ?", creatorID).
		Scan(&row).Error
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		CreatorID:      creatorID,
		TotalAmount:    scoring.RoundAmount(row.TotalAmount),
		Records:        row.Records,
		EstimatedCount: row.EstimatedCount,
	}, nil
}

// ListUnprocessed returns active credited engagements created at or after
// since that have no ledger record yet, oldest first.
func (r *gormRepository) ListUnprocessed(ctx context.Context, since time.Time, limit int) ([]engagement.Event, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).
		Table("engagement_events AS e").
		Select("e.*").
		Joins("LEFT JOIN earnings_records AS r ON r.post_id = e.post_id AND r.triggering_engagement_id = e.id").
		Where("e.credited = ? AND e.revoked_at IS NULL AND e.type <> ?", true, engagement.TypeView).
		Where("e.created_at >= ?", since).
		Where("r.id IS NULL").
		Order("e.created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var out []engagement.Event
	if err := query.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
