package consumption

import "time"

// Sample is the merged consumption record of one session on one post. A
// session owns exactly one row; later reports refine it through Merge.
type Sample struct {
	ID               string    `gorm:"column:id;primaryKey" json:"id"`
	PostID           string    `gorm:"column:post_id;not null;uniqueIndex:idx_consumption_post_session,priority:1" json:"post_id"`
	SessionID        string    `gorm:"column:session_id;not null;uniqueIndex:idx_consumption_post_session,priority:2" json:"session_id"`
	UserID           *string   `gorm:"column:user_id" json:"user_id,omitempty"`
	ScrollDepth      *float64  `gorm:"column:scroll_depth" json:"scroll_depth,omitempty"`
	WatchPercentage  *float64  `gorm:"column:watch_percentage" json:"watch_percentage,omitempty"`
	ListenPercentage *float64  `gorm:"column:listen_percentage" json:"listen_percentage,omitempty"`
	TimeSpent        float64   `gorm:"column:time_spent;not null;default:0" json:"time_spent"`
	Completed        bool      `gorm:"column:completed;not null;default:false" json:"completed"`
	Version          int64     `gorm:"column:version;not null;default:1" json:"version"`
	ObservedAt       time.Time `gorm:"column:observed_at" json:"observed_at"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Sample) TableName() string { return "consumption_samples" }

// Observation is what a playback or reading surface reports for a session.
type Observation struct {
	UserID           *string   `json:"user_id,omitempty"`
	ScrollDepth      *float64  `json:"scroll_depth,omitempty"`
	WatchPercentage  *float64  `json:"watch_percentage,omitempty"`
	ListenPercentage *float64  `json:"listen_percentage,omitempty"`
	TimeSpent        float64   `json:"time_spent"`
	Completed        bool      `json:"completed"`
	ObservedAt       time.Time `json:"observed_at"`
}

func (o Observation) sample() Sample {
	return Sample{
		UserID:           o.UserID,
		ScrollDepth:      o.ScrollDepth,
		WatchPercentage:  o.WatchPercentage,
		ListenPercentage: o.ListenPercentage,
		TimeSpent:        o.TimeSpent,
		Completed:        o.Completed,
		ObservedAt:       o.ObservedAt,
	}
}

type RecordResult struct {
	Sample    Sample `json:"sample"`
	Created   bool   `json:"created"`
	SessionID string `json:"session_id"`
}
