// Package logger builds the *slog.Logger used across paykit.
//
// New applies functional options, picks a JSON or text handler and wraps it
// so that attributes found in the record's context are appended. ContextWith
// attaches attributes to a context; every record logged with that context
// carries them:
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "paykit"))
//	ctx = logger.ContextWith(ctx, logger.SubscriptionID(sub.ID), logger.Provider(sub.ProviderSlug))
//	log.InfoContext(ctx, "subscription cancelled")
//
// The attribute helpers in attr.go fix key names for billing fields so log
// queries stay stable.
package logger
