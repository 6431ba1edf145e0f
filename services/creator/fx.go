package creator

import "go.uber.org/fx"

var Module = fx.Module("creator.source",
	fx.Provide(
		NewRepository,
		NewSource,
	),
)
