package scoring

import (
	"errors"
	"math"
)

var ErrInvalidEstimate = errors.New("scoring: invalid estimate input")

// EstimateInput describes a hypothetical post for the earnings preview shown to
// prospective creators.
type EstimateInput struct {
	Kind           string   `json:"kind"`
	Measurement    *float64 `json:"measurement,omitempty"`
	Likes          int64    `json:"likes"`
	ShortComments  int64    `json:"short_comments"`
	MediumComments int64    `json:"medium_comments"`
	LongComments   int64    `json:"long_comments"`
	Shares         int64    `json:"shares"`
	CompletionRate *float64 `json:"completion_rate,omitempty"`
	Tier           string   `json:"tier,omitempty"`
	HasBonusPass   bool     `json:"has_bonus_pass"`
}

// Estimate runs the production formula on hypothetical inputs. It shares every
// constant with Compute, so a preview never drifts from a real payout.
func Estimate(baseRate float64, in EstimateInput) (Breakdown, error) {
	kind, err := ParseContentKind(in.Kind)
	if err != nil {
		return Breakdown{}, err
	}

	tier := TierStandard
	if in.Tier != "" {
		if tier, err = ParseTier(in.Tier); err != nil {
			return Breakdown{}, err
		}
	}

	if in.Likes < 0 || in.ShortComments < 0 || in.MediumComments < 0 || in.LongComments < 0 || in.Shares < 0 {
		return Breakdown{}, errors.Join(ErrInvalidEstimate, errors.New("counts must not be negative"))
	}
	if r := in.CompletionRate; r != nil && (math.IsNaN(*r) || *r < 0 || *r > 1) {
		return Breakdown{}, errors.Join(ErrInvalidEstimate, errors.New("completion_rate must be within [0,1]"))
	}

	return Compute(Inputs{
		BaseRate: baseRate,
		Likes:    in.Likes,
		Comments: CommentBuckets{
			Short:  in.ShortComments,
			Medium: in.MediumComments,
			Long:   in.LongComments,
		},
		Shares:         in.Shares,
		Kind:           kind,
		Measurement:    in.Measurement,
		CompletionRate: in.CompletionRate,
		Tier:           tier,
		TierResolved:   true,
		HasBonusPass:   in.HasBonusPass,
		BonusResolved:  true,
	}), nil
}
