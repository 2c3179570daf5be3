package commands

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/mangawatch/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
}

// setupLogging configures the global logger and the fallback for zerolog.Ctx.
func setupLogging(debug bool) zerolog.Logger {
	log := logger.Setup(debug)
	zlog.Logger = log
	zerolog.DefaultContextLogger = &log
	return log
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
