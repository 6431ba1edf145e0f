package post

import (
	"time"

	"creatorhub-engine/services/scoring"
)

// Post carries the content shape used for payouts and the derived aggregate
// cache. Counters and consumption averages are reproducible from engagement
// and consumption rows and are never authoritative.
type Post struct {
	ID          string              `gorm:"column:id;primaryKey" json:"id"`
	CreatorID   string              `gorm:"column:creator_id;index;not null" json:"creator_id"`
	Kind        scoring.ContentKind `gorm:"column:kind;not null" json:"kind"`
	Measurement *float64            `gorm:"column:measurement" json:"measurement,omitempty"`

	Views    int64 `gorm:"column:views;not null;default:0" json:"views"`
	Likes    int64 `gorm:"column:likes;not null;default:0" json:"likes"`
	Comments int64 `gorm:"column:comments;not null;default:0" json:"comments"`
	Shares   int64 `gorm:"column:shares;not null;default:0" json:"shares"`

	AverageScrollDepth     *float64 `gorm:"column:average_scroll_depth" json:"average_scroll_depth"`
	AverageWatchPercentage *float64 `gorm:"column:average_watch_percentage" json:"average_watch_percentage"`
	TotalCompletions       int64    `gorm:"column:total_completions;not null;default:0" json:"total_completions"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;index" json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

// Counters are the engagement count fields of the aggregate cache.
type Counters struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}

// Consumption are the consumption fields of the aggregate cache.
type Consumption struct {
	AverageScrollDepth     *float64 `json:"average_scroll_depth"`
	AverageWatchPercentage *float64 `json:"average_watch_percentage"`
	TotalCompletions       int64    `json:"total_completions"`
}

// Aggregates is the read view of a post's derived cache.
type Aggregates struct {
	PostID string `json:"post_id"`
	Counters
	Consumption
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Post) Aggregates() Aggregates {
	return Aggregates{
		PostID: p.ID,
		Counters: Counters{
			Views:    p.Views,
			Likes:    p.Likes,
			Comments: p.Comments,
			Shares:   p.Shares,
		},
		Consumption: Consumption{
			AverageScrollDepth:     p.AverageScrollDepth,
			AverageWatchPercentage: p.AverageWatchPercentage,
			TotalCompletions:       p.TotalCompletions,
		},
		UpdatedAt: p.UpdatedAt,
	}
}

// Counter identifies one engagement count column.
type Counter string

const (
	CounterViews    Counter = "views"
	CounterLikes    Counter = "likes"
	CounterComments Counter = "comments"
	CounterShares   Counter = "shares"
)

func (c Counter) valid() bool {
	switch c {
	case CounterViews, CounterLikes, CounterComments, CounterShares:
		return true
	}
	return false
}
