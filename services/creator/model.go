package creator

import (
	"time"

	"creatorhub-engine/services/scoring"
)

// Account mirrors the tier and pass ownership maintained by account
// management. The engine only reads it.
type Account struct {
	CreatorID    string    `gorm:"column:creator_id;primaryKey" json:"creator_id"`
	Tier         string    `gorm:"column:tier" json:"tier"`
	HasBonusPass *bool     `gorm:"column:has_bonus_pass" json:"has_bonus_pass"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string { return "creator_accounts" }

// Profile is the resolved payout view of a creator. When an input could not be
// resolved the conservative default is filled in and the flag is false.
type Profile struct {
	CreatorID     string       `json:"creator_id"`
	Tier          scoring.Tier `json:"tier"`
	TierResolved  bool         `json:"tier_resolved"`
	HasBonusPass  bool         `json:"has_bonus_pass"`
	BonusResolved bool         `json:"bonus_resolved"`
}

func defaultProfile(creatorID string) Profile {
	return Profile{CreatorID: creatorID, Tier: scoring.TierStandard}
}
