package scoring

import "math"

// ContentTypeMultiplier buckets a post's measurement for its kind. resolved is
// false when the measurement was missing or unusable and the short bucket was
// assumed instead.
func ContentTypeMultiplier(kind ContentKind, measurement *float64) (value float64, resolved bool) {
	if kind == KindShortVideo {
		return ShortVideoMultiplier, true
	}

	m, ok := usable(measurement)
	switch kind {
	case KindVideo:
		if !ok {
			return VideoShortMultiplier, false
		}
		return bucket(m, VideoMediumMinSeconds, VideoMediumMaxSeconds,
			VideoShortMultiplier, VideoMediumMultiplier, VideoLongMultiplier), true
	case KindArticle:
		if !ok {
			return ArticleShortMultiplier, false
		}
		return bucket(m, ArticleMediumMinMinutes, ArticleMediumMaxMinutes,
			ArticleShortMultiplier, ArticleMediumMultiplier, ArticleLongMultiplier), true
	case KindText:
		if !ok {
			return TextShortMultiplier, false
		}
		return bucket(m, TextMediumMinChars, TextMediumMaxChars,
			TextShortMultiplier, TextMediumMultiplier, TextLongMultiplier), true
	}

	// not a known kind: lowest multiplier of the table
	return 1.0, false
}

func bucket(m, mediumMin, mediumMax, short, medium, long float64) float64 {
	switch {
	case m < mediumMin:
		return short
	case m > mediumMax:
		return long
	default:
		return medium
	}
}

func usable(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return 0, false
	}
	return *v, true
}

// CompletionMultiplier maps an aggregated completion rate onto its band. A nil
// rate means no consumption data yet and yields the neutral band.
func CompletionMultiplier(rate *float64) float64 {
	if rate == nil || math.IsNaN(*rate) {
		return CompletionNeutralMultiplier
	}
	r := *rate
	switch {
	case r < CompletionNeutralMin:
		return CompletionLowMultiplier
	case r < CompletionGoodMin:
		return CompletionNeutralMultiplier
	case r < CompletionGreatMin:
		return CompletionGoodMultiplier
	default:
		return CompletionGreatMultiplier
	}
}

func TierMultiplier(t Tier) float64 {
	return t.ShareFraction() / TierStandard.ShareFraction()
}

func BonusMultiplier(hasEligiblePass bool) float64 {
	if hasEligiblePass {
		return BonusPassMultiplier
	}
	return NoBonusMultiplier
}

// CompletionRate picks the consumption average that describes how much of a
// post of the given kind was consumed: watch for video, scroll for text. The
// other average is used when the preferred one is missing.
func CompletionRate(kind ContentKind, avgScrollDepth, avgWatchPercentage *float64) *float64 {
	switch kind {
	case KindVideo, KindShortVideo:
		if avgWatchPercentage != nil {
			return avgWatchPercentage
		}
		return avgScrollDepth
	default:
		if avgScrollDepth != nil {
			return avgScrollDepth
		}
		return avgWatchPercentage
	}
}

// RoundAmount rounds a payout to AmountPrecision decimal places.
func RoundAmount(v float64) float64 {
	p := math.Pow10(AmountPrecision)
	return math.Round(v*p) / p
}
