package commands

import (
	"context"

	postgresstore "github.com/wolfeidau/mangawatch/internal/store/postgres"
)

type MigrateCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogging(globals.Debug)

	if err := c.PostgresStore.Validate(); err != nil {
		return err
	}

	pool, err := c.PostgresStore.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgresstore.Migrate(ctx, pool)
}
