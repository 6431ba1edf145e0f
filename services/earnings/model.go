package earnings

import (
	"time"

	"creatorhub-engine/services/engagement"

	"gorm.io/datatypes"
)

// Mode tells whether a payout was computed from fully resolved inputs.
type Mode string

const (
	ModeLive      Mode = "LIVE"
	ModeEstimated Mode = "ESTIMATED"
)

// Record is one immutable ledger entry. (PostID, TriggeringEngagementID) is
// the idempotency key: an engagement pays at most once.
type Record struct {
	ID                     string         `gorm:"column:id;primaryKey" json:"id"`
	PostID                 string         `gorm:"column:post_id;not null;uniqueIndex:idx_earnings_trigger,priority:1" json:"post_id"`
	TriggeringEngagementID string         `gorm:"column:triggering_engagement_id;not null;uniqueIndex:idx_earnings_trigger,priority:2" json:"triggering_engagement_id"`
	CreatorID              string         `gorm:"column:creator_id;not null;index" json:"creator_id"`
	Amount                 float64        `gorm:"column:amount;not null" json:"amount"`
	Mode                   Mode           `gorm:"column:mode;not null" json:"mode"`
	QualityScore           int64          `gorm:"column:quality_score;not null" json:"quality_score"`
	Breakdown              datatypes.JSON `gorm:"column:breakdown" json:"breakdown"`
	ComputedAt             time.Time      `gorm:"column:computed_at;not null" json:"computed_at"`
}

func (Record) TableName() string { return "earnings_records" }

type outcome string

const (
	outcomeCredited outcome = "credited"
	outcomeExisting outcome = "existing"
	outcomeRejected outcome = "rejected"
	outcomeFailed   outcome = "failed"
)

// Result is what the caller of an engagement sees. Success is true for every
// engine outcome; only a credited engagement carries FinalEarnings.
type Result struct {
	Success       bool                  `json:"success"`
	FinalEarnings *float64              `json:"final_earnings,omitempty"`
	Mode          Mode                  `json:"mode,omitempty"`
	Message       string                `json:"message,omitempty"`
	RecordID      string                `json:"record_id,omitempty"`
	ReasonCode    engagement.ReasonCode `json:"reason_code,omitempty"`

	outcome outcome
}

// Credited reports whether the result carries a ledger amount.
func (r Result) Credited() bool {
	return r.FinalEarnings != nil
}

// Rejected reports whether integrity checks refused the engagement on
// re-validation.
func (r Result) Rejected() bool {
	return r.outcome == outcomeRejected
}

func fromRecord(rec *Record, o outcome) Result {
	amount := rec.Amount
	return Result{
		Success:       true,
		FinalEarnings: &amount,
		Mode:          rec.Mode,
		RecordID:      rec.ID,
		outcome:       o,
	}
}

// Summary totals a creator's ledger.
type Summary struct {
	CreatorID      string  `json:"creator_id"`
	TotalAmount    float64 `json:"total_amount"`
	Records        int64   `json:"records"`
	EstimatedCount int64   `json:"estimated_count"`
}
