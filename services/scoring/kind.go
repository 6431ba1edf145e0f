package scoring

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind = errors.New("scoring: unknown content kind")
	ErrUnknownTier = errors.New("scoring: unknown creator tier")
)

type ContentKind string

const (
	KindVideo      ContentKind = "VIDEO"
	KindShortVideo ContentKind = "SHORT_VIDEO"
	KindArticle    ContentKind = "ARTICLE"
	KindText       ContentKind = "TEXT"
)

func ParseContentKind(s string) (ContentKind, error) {
	k := ContentKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case KindVideo, KindShortVideo, KindArticle, KindText:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MeasurementUnit names what a post's measurement means for its kind.
func (k ContentKind) MeasurementUnit() string {
	switch k {
	case KindVideo:
		return "seconds"
	case KindArticle:
		return "minutes"
	case KindText:
		return "characters"
	}
	return ""
}

type Tier string

const (
	TierStandard Tier = "STANDARD"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierGenesis  Tier = "GENESIS"
)

// Tiers lists every tier in ascending share order.
var Tiers = []Tier{TierStandard, TierSilver, TierGold, TierPlatinum, TierGenesis}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := t.shareFraction(); ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// ShareFraction is the creator's revenue share. Unknown tiers get the STANDARD share.
func (t Tier) ShareFraction() float64 {
	if f, ok := t.shareFraction(); ok {
		return f
	}
	return ShareStandard
}

func (t Tier) shareFraction() (float64, bool) {
	switch t {
	case TierStandard:
		return ShareStandard, true
	case TierSilver:
		return ShareSilver, true
	case TierGold:
		return ShareGold, true
	case TierPlatinum:
		return SharePlatinum, true
	case TierGenesis:
		return ShareGenesis, true
	}
	return 0, false
}
