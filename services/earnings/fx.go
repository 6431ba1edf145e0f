package earnings

import "go.uber.org/fx"

var Module = fx.Module("earnings",
	fx.Provide(
		NewRepository,
		NewProcessor,
		NewLedger,
		NewReconciler,
	),
)

var TaskModule = fx.Module("task.earnings",
	fx.Provide(NewTaskHandler),
	fx.Invoke(RegisterTasks),
)
