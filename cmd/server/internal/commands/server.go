package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/mangawatch/internal/auth"
	"github.com/wolfeidau/mangawatch/internal/identity"
	"github.com/wolfeidau/mangawatch/internal/rememberme"
	"github.com/wolfeidau/mangawatch/internal/server"
	"github.com/wolfeidau/mangawatch/internal/session"
	"github.com/wolfeidau/mangawatch/internal/sweeper"
	"github.com/wolfeidau/mangawatch/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"MANGAWATCH_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"MANGAWATCH_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"MANGAWATCH_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"MANGAWATCH_CORS_ORIGINS"`
	TrustProxy  bool     `help:"trust X-Forwarded-For and X-Real-IP for the client address" default:"false" env:"MANGAWATCH_TRUST_PROXY"`

	// Session and remember-me configuration
	SessionSecret     string        `help:"secret used to sign session cookies (min 32 bytes)" env:"MANGAWATCH_SESSION_SECRET"`
	SessionTTL        time.Duration `help:"session TTL" default:"168h" env:"MANGAWATCH_SESSION_TTL"`
	RememberMeTTL     time.Duration `help:"remember me token TTL" default:"720h" env:"MANGAWATCH_REMEMBER_ME_TTL"`
	InsecureCookies   bool          `help:"send cookies without the Secure attribute (development only)" default:"false" env:"MANGAWATCH_INSECURE_COOKIES"`
	IdentityCacheSize int           `help:"number of identities kept in memory" default:"50" env:"MANGAWATCH_IDENTITY_CACHE_SIZE"`
	SweepInterval     time.Duration `help:"interval between expired session and token sweeps" default:"1h" env:"MANGAWATCH_SWEEP_INTERVAL"`

	// Telemetry
	Tracing          bool    `help:"enable tracing" default:"false" env:"MANGAWATCH_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces to sample" default:"1" env:"MANGAWATCH_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"MANGAWATCH_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Limiter       LimiterFlags       `embed:"" prefix:"limiter-"`
}

func (c *ServeCmd) Validate() error {
	if len(c.SessionSecret) < session.MinSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes (--session-secret or MANGAWATCH_SESSION_SECRET)", session.MinSecretLength)
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := setupLogging(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "mangawatch-server",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	st, err := openStores(ctx, c.StoreType, &c.PostgresStore, &c.Limiter)
	if err != nil {
		return err
	}
	defer st.Close()

	sweep := sweeper.Start(ctx, c.SweepInterval, st.sweeps...)
	defer sweep.Stop()

	sessions, err := session.NewManager(st.sessions, session.Config{
		Secret: []byte(c.SessionSecret),
		TTL:    c.SessionTTL,
		Secure: !c.InsecureCookies,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	cache, err := identity.New(c.IdentityCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create identity cache: %w", err)
	}

	core := auth.NewCore(
		st.users,
		rememberme.New(st.tokens, rememberme.WithTTL(c.RememberMeTTL)),
		sessions,
		cache,
		st.limiter,
		auth.Config{SecureCookies: !c.InsecureCookies},
	)

	if c.InsecureCookies {
		log.Warn().Msg("Cookies are sent without the Secure attribute. This should only be used in development!")
	}

	handler, err := server.NewServer(core, server.Config{
		CORSOrigins: c.CORSOrigins,
		TrustProxy:  c.TrustProxy,
	}).Handler(log)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
