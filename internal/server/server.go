package server

import (
	"net/http"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/mangawatch/internal/auth"
	httpmiddleware "github.com/wolfeidau/mangawatch/internal/http"
	"github.com/wolfeidau/mangawatch/internal/logger"
)

// Config controls the HTTP surface.
type Config struct {
	// CORSOrigins are the browser origins allowed to call the API with credentials.
	CORSOrigins []string
	// TrustProxy enables X-Forwarded-For and X-Real-IP for client IP extraction.
	TrustProxy bool
}

// Server exposes the authentication core over HTTP.
type Server struct {
	core *auth.Core
	cfg  Config
}

// NewServer creates a new server backed by core.
func NewServer(core *auth.Core, cfg Config) *Server {
	return &Server{
		core: core,
		cfg:  cfg,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) (http.Handler, error) {
	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpmiddleware.ClientIPMiddleware(s.cfg.TrustProxy))
	r.Use(logger.NewHTTPRequests(log).Handler)
	r.Use(middleware.Recoverer)

	// Health check endpoint for load balancer
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(withCORS(s.cfg.CORSOrigins))
		r.Use(protection.Handler)

		r.With(s.core.Middleware(writeError, auth.WithoutReauthentication())).Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.core.Middleware(writeError))

			r.Post("/login", s.handleLogin)
			r.Get("/identity", s.handleIdentity)
			r.Post("/profile", s.handleProfile)
		})
	})

	return r, nil
}

// withCORS allows credentialed requests from the configured origins.
func withCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return c.Handler
}
