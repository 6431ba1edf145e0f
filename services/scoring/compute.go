package scoring

// Fallback names an input that could not be resolved and was defaulted.
type Fallback string

const (
	FallbackTier        Fallback = "tier"
	FallbackBonus       Fallback = "bonus_eligibility"
	FallbackMeasurement Fallback = "content_measurement"
)

// Inputs is everything a payout depends on.
type Inputs struct {
	BaseRate float64

	Likes    int64
	Comments CommentBuckets
	Shares   int64

	Kind           ContentKind
	Measurement    *float64
	CompletionRate *float64

	Tier          Tier
	TierResolved  bool
	HasBonusPass  bool
	BonusResolved bool
}

// Breakdown records every factor of a computed payout.
type Breakdown struct {
	QualityScore          int64          `json:"quality_score"`
	Likes                 int64          `json:"likes"`
	Comments              CommentBuckets `json:"comments"`
	CommentCount          int64          `json:"comment_count"`
	Shares                int64          `json:"shares"`
	BaseRate              float64        `json:"base_rate"`
	Kind                  ContentKind    `json:"kind"`
	Measurement           *float64       `json:"measurement,omitempty"`
	MeasurementUnit       string         `json:"measurement_unit,omitempty"`
	ContentTypeMultiplier float64        `json:"content_type_multiplier"`
	CompletionRate        *float64       `json:"completion_rate,omitempty"`
	CompletionMultiplier  float64        `json:"completion_multiplier"`
	Tier                  Tier           `json:"tier"`
	TierMultiplier        float64        `json:"tier_multiplier"`
	HasBonusPass          bool           `json:"has_bonus_pass"`
	BonusMultiplier       float64        `json:"bonus_multiplier"`
	Amount                float64        `json:"amount"`
	Fallbacks             []Fallback     `json:"fallbacks,omitempty"`
}

// Estimated reports whether any input had to fall back to a default.
func (b Breakdown) Estimated() bool {
	return len(b.Fallbacks) > 0
}

// Compute composes the quality score and the four multipliers into a payout:
// baseRate × score × content × completion × tier × bonus, rounded.
func Compute(in Inputs) Breakdown {
	b := Breakdown{
		QualityScore: Score(in.Likes, in.Comments, in.Shares),
		Likes:        in.Likes,
		Comments:     in.Comments,
		CommentCount: in.Comments.Total(),
		Shares:       in.Shares,
		BaseRate:     in.BaseRate,
		Kind:         in.Kind,
		Measurement:  in.Measurement,

		MeasurementUnit: in.Kind.MeasurementUnit(),

		CompletionRate: in.CompletionRate,
	}

	var resolved bool
	b.ContentTypeMultiplier, resolved = ContentTypeMultiplier(in.Kind, in.Measurement)
	if !resolved {
		b.Fallbacks = append(b.Fallbacks, FallbackMeasurement)
	}

	b.CompletionMultiplier = CompletionMultiplier(in.CompletionRate)

	b.Tier = in.Tier
	if !in.TierResolved {
		b.Tier = TierStandard
		b.Fallbacks = append(b.Fallbacks, FallbackTier)
	}
	b.TierMultiplier = TierMultiplier(b.Tier)

	b.HasBonusPass = in.HasBonusPass && in.BonusResolved
	if !in.BonusResolved {
		b.Fallbacks = append(b.Fallbacks, FallbackBonus)
	}
	b.BonusMultiplier = BonusMultiplier(b.HasBonusPass)

	b.Amount = RoundAmount(in.BaseRate * float64(b.QualityScore) *
		b.ContentTypeMultiplier * b.CompletionMultiplier * b.TierMultiplier * b.BonusMultiplier)

	return b
}
