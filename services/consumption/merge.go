package consumption

import (
	"math"

	"creatorhub-engine/services/post"
)

// Merge folds incoming into existing. Progress fields keep their maximum so
// reports may arrive in any order; identity fields come from existing.
func Merge(existing, incoming Sample, threshold float64) Sample {
	out := existing
	if out.UserID == nil {
		out.UserID = incoming.UserID
	}
	out.ScrollDepth = maxPtr(existing.ScrollDepth, incoming.ScrollDepth)
	out.WatchPercentage = maxPtr(existing.WatchPercentage, incoming.WatchPercentage)
	out.ListenPercentage = maxPtr(existing.ListenPercentage, incoming.ListenPercentage)
	out.TimeSpent = math.Max(existing.TimeSpent, incoming.TimeSpent)
	if incoming.ObservedAt.After(existing.ObservedAt) {
		out.ObservedAt = incoming.ObservedAt
	}
	out.Completed = existing.Completed || incoming.Completed || crossed(out, threshold)
	return out
}

func crossed(s Sample, threshold float64) bool {
	progress := maxPtr(maxPtr(s.WatchPercentage, s.ListenPercentage), s.ScrollDepth)
	return progress != nil && *progress >= threshold
}

func maxPtr(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := math.Max(*a, *b)
	return &v
}

// sameProgress reports whether a merge changed nothing worth persisting.
func sameProgress(a, b Sample) bool {
	return eqPtr(a.ScrollDepth, b.ScrollDepth) &&
		eqPtr(a.WatchPercentage, b.WatchPercentage) &&
		eqPtr(a.ListenPercentage, b.ListenPercentage) &&
		a.TimeSpent == b.TimeSpent &&
		a.Completed == b.Completed &&
		a.ObservedAt.Equal(b.ObservedAt) &&
		eqStr(a.UserID, b.UserID)
}

func eqPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// micro is the fixed point scale of accumulated fractions. Sums are kept as
// integers so the result does not depend on the order samples are added.
const micro = 1_000_000

func toMicro(f float64) int64 {
	return int64(math.Round(f * micro))
}

// Accumulator maintains post level consumption aggregates incrementally.
// The zero value is empty.
type Accumulator struct {
	scrollSum, scrollN int64
	watchSum, watchN   int64
	completions        int64
}

func (a *Accumulator) Add(s Sample) {
	a.apply(s, 1)
}

// Remove withdraws a sample previously added.
func (a *Accumulator) Remove(s Sample) {
	a.apply(s, -1)
}

// Replace swaps the contribution of a session's previous merged sample for
// its new one.
func (a *Accumulator) Replace(prev, next Sample) {
	a.Remove(prev)
	a.Add(next)
}

func (a *Accumulator) apply(s Sample, sign int64) {
	if s.ScrollDepth != nil {
		a.scrollSum += sign * toMicro(*s.ScrollDepth)
		a.scrollN += sign
	}
	if s.WatchPercentage != nil {
		a.watchSum += sign * toMicro(*s.WatchPercentage)
		a.watchN += sign
	}
	if s.Completed {
		a.completions += sign
	}
}

// Result returns the means rounded to six decimals. A mean without any
// contributing sample is nil.
func (a *Accumulator) Result() post.Consumption {
	return post.Consumption{
		AverageScrollDepth:     mean(a.scrollSum, a.scrollN),
		AverageWatchPercentage: mean(a.watchSum, a.watchN),
		TotalCompletions:       a.completions,
	}
}

func mean(sum, n int64) *float64 {
	if n <= 0 {
		return nil
	}
	v := math.Round(float64(sum)/float64(n)) / micro
	return &v
}

// Fold computes the aggregates of a complete sample set.
func Fold(samples []Sample) post.Consumption {
	var a Accumulator
	for _, s := range samples {
		a.Add(s)
	}
	return a.Result()
}
