// Package pg wraps pgx/v5 connection pooling and goose migrations for paykit.
//
// Config is read from PG_* environment variables. Connect opens a pool and
// retries until the database answers. Migrate applies a package's embedded
// goose migrations against the same pool:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, slog.Default()); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError and friends classify *pgconn.PgError values so storage
// code can map them onto domain errors.
package pg
