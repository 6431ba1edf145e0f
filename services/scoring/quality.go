package scoring

import "math"

type CommentBucket int

const (
	CommentShort CommentBucket = iota
	CommentMedium
	CommentLong
)

func (b CommentBucket) String() string {
	switch b {
	case CommentShort:
		return "short"
	case CommentMedium:
		return "medium"
	case CommentLong:
		return "long"
	}
	return "unknown"
}

// BucketComment classifies a comment by its length in characters.
func BucketComment(length int) CommentBucket {
	switch {
	case length < ShortCommentMax:
		return CommentShort
	case length > LongCommentMin:
		return CommentLong
	default:
		return CommentMedium
	}
}

// CommentBuckets counts credited comments per length bucket.
type CommentBuckets struct {
	Short  int64 `json:"short"`
	Medium int64 `json:"medium"`
	Long   int64 `json:"long"`
}

func (c CommentBuckets) Total() int64 {
	return satAdd(satAdd(nonNegative(c.Short), nonNegative(c.Medium)), nonNegative(c.Long))
}

// Score returns the weighted engagement score. Negative counts are treated as
// zero and the sum saturates at math.MaxInt64, so the result is never negative
// and never decreases when a count grows.
func Score(likes int64, comments CommentBuckets, shares int64) int64 {
	terms := [...]int64{
		satMul(nonNegative(likes), WeightLike),
		satMul(nonNegative(comments.Short), WeightShortComment),
		satMul(nonNegative(comments.Medium), WeightMediumComment),
		satMul(nonNegative(comments.Long), WeightLongComment),
		satMul(nonNegative(shares), WeightShare),
	}
	var score int64
	for _, t := range terms {
		score = satAdd(score, t)
	}
	return score
}

// satMul and satAdd operate on non-negative values.
func satMul(v, w int64) int64 {
	if w != 0 && v > math.MaxInt64/w {
		return math.MaxInt64
	}
	return v * w
}

func satAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
