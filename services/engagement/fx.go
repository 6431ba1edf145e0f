package engagement

import "go.uber.org/fx"

var Module = fx.Module("engagement.repository",
	fx.Provide(NewRepository),
)
