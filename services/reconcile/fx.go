package reconcile

import "go.uber.org/fx"

// Module provides the recomputer and runs the periodic jobs.
var Module = fx.Module("reconcile",
	fx.Provide(newRecomputer, NewScheduler),
	fx.Invoke(StartScheduler),
)

// TaskModule registers the aggregate and view task handlers on the worker mux.
var TaskModule = fx.Module("task.reconcile",
	fx.Provide(NewViewHandler),
	fx.Invoke(RegisterTasks),
)
