package engagement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"creatorhub-engine/services/post"
)

var ErrUnknownType = errors.New("engagement: unknown type")

type Type string

const (
	TypeLike    Type = "LIKE"
	TypeComment Type = "COMMENT"
	TypeShare   Type = "SHARE"
	TypeView    Type = "VIEW"
)

func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeLike, TypeComment, TypeShare, TypeView:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Creditable reports whether engagements of this type can carry a payout.
func (t Type) Creditable() bool {
	return t != TypeView
}

func (t Type) Counter() post.Counter {
	switch t {
	case TypeLike:
		return post.CounterLikes
	case TypeComment:
		return post.CounterComments
	case TypeShare:
		return post.CounterShares
	default:
		return post.CounterViews
	}
}

// ReasonCode explains why an engagement was not credited.
type ReasonCode string

const (
	ReasonNone           ReasonCode = ""
	ReasonSelfEngagement ReasonCode = "SELF_ENGAGEMENT"
	ReasonDuplicate      ReasonCode = "DUPLICATE"
	ReasonRateLimited    ReasonCode = "RATE_LIMITED"
	ReasonInfraError     ReasonCode = "INFRA_ERROR"
	ReasonNotCreditable  ReasonCode = "NOT_CREDITABLE"
)

// Event is one engagement action against a post. Only credited events of a
// creditable type carry a DedupeKey; its unique index allows at most one
// credited event per (post, actor, type). Gated events are kept for audit with
// a NULL key.
type Event struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	PostID        string     `gorm:"column:post_id;not null;index:idx_engagement_post_type,priority:1" json:"post_id"`
	ActorID       string     `gorm:"column:actor_id;not null;index:idx_engagement_actor_created,priority:1" json:"actor_id"`
	Type          Type       `gorm:"column:type;not null;index:idx_engagement_post_type,priority:2" json:"type"`
	CommentLength int        `gorm:"column:comment_length;not null;default:0" json:"comment_length,omitempty"`
	Credited      bool       `gorm:"column:credited;not null;default:false" json:"credited"`
	ReasonCode    ReasonCode `gorm:"column:reason_code" json:"reason_code,omitempty"`
	DedupeKey     *string    `gorm:"column:dedupe_key;uniqueIndex" json:"-"`
	RevokedAt     *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;index:idx_engagement_actor_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Event) TableName() string { return "engagement_events" }

// Active reports whether the event is credited and not revoked.
func (e *Event) Active() bool {
	return e.Credited && e.RevokedAt == nil
}

// DedupeKey builds the credited-uniqueness key for (post, actor, type).
func DedupeKey(postID, actorID string, t Type) string {
	return postID + ":" + actorID + ":" + string(t)
}
