package scoring

// Quality score weights.
const (
	WeightLike          = 1
	WeightShortComment  = 2
	WeightMediumComment = 5
	WeightLongComment   = 8
	WeightShare         = 20
)

// Comment length buckets, in characters. Short is < ShortCommentMax, long is
// > LongCommentMin, medium is everything in between (inclusive).
const (
	ShortCommentMax = 50
	LongCommentMin  = 200
)

// Content shape buckets. A measurement equal to a medium bound is medium.
const (
	VideoMediumMinSeconds = 180
	VideoMediumMaxSeconds = 600

	ArticleMediumMinMinutes = 3
	ArticleMediumMaxMinutes = 10

	TextMediumMinChars = 280
	TextMediumMaxChars = 1000
)

// Content shape multipliers per kind and bucket.
const (
	VideoShortMultiplier  = 1.0
	VideoMediumMultiplier = 1.2
	VideoLongMultiplier   = 1.5

	ShortVideoMultiplier = 1.0

	ArticleShortMultiplier  = 1.0
	ArticleMediumMultiplier = 1.3
	ArticleLongMultiplier   = 1.5

	TextShortMultiplier  = 1.0
	TextMediumMultiplier = 1.1
	TextLongMultiplier   = 1.2
)

// Completion rate bands (lower bounds, inclusive) and their multipliers.
const (
	CompletionNeutralMin = 0.50
	CompletionGoodMin    = 0.70
	CompletionGreatMin   = 0.85

	CompletionLowMultiplier     = 0.85
	CompletionNeutralMultiplier = 1.0
	CompletionGoodMultiplier    = 1.15
	CompletionGreatMultiplier   = 1.3
)

// Revenue share fractions per creator tier.
const (
	ShareStandard = 0.50
	ShareSilver   = 0.55
	ShareGold     = 0.60
	SharePlatinum = 0.65
	ShareGenesis  = 0.70
)

const (
	BonusPassMultiplier = 1.5
	NoBonusMultiplier   = 1.0
)

// AmountPrecision is the number of decimal places kept on a payout amount.
const AmountPrecision = 4
