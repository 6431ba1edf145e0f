package antigaming

import "go.uber.org/fx"

var Module = fx.Module("antigaming.validator",
	fx.Provide(NewValidator),
)
