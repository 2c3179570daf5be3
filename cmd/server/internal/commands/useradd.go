package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/mangawatch/internal/auth"
	"github.com/wolfeidau/mangawatch/internal/models"
	postgresstore "github.com/wolfeidau/mangawatch/internal/store/postgres"
)

type UserAddCmd struct {
	Username string `arg:"" help:"display name of the new user"`
	Email    string `arg:"" help:"login email of the new user"`
	Password string `help:"initial password" env:"MANGAWATCH_NEW_USER_PASSWORD" required:""`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *UserAddCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals.Debug)

	username, email, password := c.Username, c.Email, c.Password
	change := auth.CredentialChange{
		Username:       &username,
		Email:          &email,
		NewPassword:    &password,
		RepeatPassword: &password,
	}
	if err := change.Validate(); err != nil {
		return err
	}

	if err := c.PostgresStore.Validate(); err != nil {
		return err
	}

	pool, err := c.PostgresStore.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	user, err := postgresstore.NewUserStore(pool).Create(ctx, &models.User{Username: username, Email: email}, password)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Int64("user_id", user.UserID).Str("uuid", user.UUID.String()).Msg("Created user")
	return nil
}
