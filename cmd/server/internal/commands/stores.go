package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/mangawatch/internal/ratelimit"
	"github.com/wolfeidau/mangawatch/internal/store"
	memorystore "github.com/wolfeidau/mangawatch/internal/store/memory"
	postgresstore "github.com/wolfeidau/mangawatch/internal/store/postgres"
	"github.com/wolfeidau/mangawatch/internal/sweeper"
	"golang.org/x/crypto/bcrypt"
)

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"MANGAWATCH_POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"MANGAWATCH_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or MANGAWATCH_POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

type LimiterFlags struct {
	Type     string `help:"rate limiter backend (memory or redis)" default:"memory" env:"MANGAWATCH_LIMITER_TYPE" enum:"memory,redis"`
	RedisURL string `help:"Redis URL for the redis limiter" default:"redis://localhost:6379/0" env:"MANGAWATCH_LIMITER_REDIS_URL"`
}

// stores bundles the persistence backends selected on the command line.
type stores struct {
	users    store.UserStore
	tokens   store.TokenStore
	sessions store.SessionStore
	limiter  ratelimit.Limiter

	// sweeps lists the cleanup tasks for the selected backends.
	sweeps []sweeper.Task

	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, storeType string, pg *PostgresStoreFlags, limiter *LimiterFlags) (*stores, error) {
	st := &stores{}

	switch storeType {
	case "postgres":
		if err := pg.Validate(); err != nil {
			return nil, err
		}

		// Create shared connection pool for all PostgreSQL stores
		pool, err := pg.openPool(ctx)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)

		if pg.AutoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				st.Close()
				return nil, err
			}
		}

		st.users = postgresstore.NewUserStore(pool)
		st.tokens = postgresstore.NewTokenStore(pool)
		st.sessions = postgresstore.NewSessionStore(pool)

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		users := memorystore.NewUserStore(bcrypt.DefaultCost)
		st.users = users
		st.tokens = memorystore.NewTokenStore(users)
		st.sessions = memorystore.NewSessionStore()

		log.Warn().Msg("Using in-memory stores, all accounts are lost on restart")
	}

	st.sweeps = append(st.sweeps,
		sweeper.Task{Name: "sessions", Sweep: st.sessions.DeleteExpired},
		sweeper.Task{Name: "remember_me_tokens", Sweep: st.tokens.DeleteExpired},
	)

	switch limiter.Type {
	case "redis":
		opt, err := redis.ParseURL(limiter.RedisURL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			st.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = client.Close() })
		st.limiter = ratelimit.NewRedisLimiter(client, ratelimit.DefaultPolicy())

		log.Info().Str("addr", opt.Addr).Msg("Using Redis rate limiter")

	default:
		memLimiter := ratelimit.NewMemoryLimiter(ratelimit.DefaultPolicy())
		st.limiter = memLimiter
		st.sweeps = append(st.sweeps, sweeper.Task{Name: "rate_limit_keys", Sweep: memLimiter.DeleteIdle})
	}

	return st, nil
}
