package taskname

const (
	// Earnings tasks
	EarningsProcess = "earnings:process"

	// Post tasks
	PostViewIncrement   = "post:view"
	AggregatesRecompute = "aggregates:recompute"
)
