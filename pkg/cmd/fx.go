package cmd

import "go.uber.org/fx"

var Module = fx.Module("cli",
	fx.Provide(
		fx.Annotate(changeLogSync, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(clearCheckSums, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(history, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(initCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(listLocks, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(releaseLocks, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(rollbackCount, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(rollbackToTag, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(sandbox, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(status, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(tag, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(tagExists, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(update, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(updateCount, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(updateToTag, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(validate, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)
