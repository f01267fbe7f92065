package credentials

import "go.uber.org/fx"

// Module provides the credential resolution chain.
var Module = fx.Module("credentials",
	fx.Provide(NewSource),
)
