package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/mangawatch"
)

// Metrics holds the OpenTelemetry instruments for the authentication core.
type Metrics struct {
	// Login metrics
	LoginAttemptsTotal metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter

	// Remember-me metrics
	ReauthTotal         metric.Int64Counter
	TheftSuspectedTotal metric.Int64Counter
	TokensIssuedTotal   metric.Int64Counter

	// Rate limiting
	ThrottledTotal metric.Int64Counter

	// Session lifecycle
	SessionsRegeneratedTotal metric.Int64Counter
	SessionsPurgedTotal      metric.Int64Counter
	LogoutsTotal             metric.Int64Counter

	// Identity cache
	IdentityCacheHitsTotal   metric.Int64Counter
	IdentityCacheMissesTotal metric.Int64Counter

	// Sweeper
	SweptTotal    metric.Int64Counter
	SweepDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.LoginAttemptsTotal, _ = meter.Int64Counter(
		"mangawatch.auth.login.attempts.total",
		metric.WithDescription("Total number of password login attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"mangawatch.auth.login.failures.total",
		metric.WithDescription("Total number of rejected password logins"),
		metric.WithUnit("{attempt}"),
	)

	m.ReauthTotal, _ = meter.Int64Counter(
		"mangawatch.auth.reauth.total",
		metric.WithDescription("Remember-me reauthentications by outcome"),
		metric.WithUnit("{attempt}"),
	)

	m.TheftSuspectedTotal, _ = meter.Int64Counter(
		"mangawatch.auth.theft_suspected.total",
		metric.WithDescription("Remember-me tokens presented with a stale secret"),
		metric.WithUnit("{event}"),
	)

	m.TokensIssuedTotal, _ = meter.Int64Counter(
		"mangawatch.auth.tokens.issued.total",
		metric.WithDescription("Total number of remember-me tokens issued"),
		metric.WithUnit("{token}"),
	)

	m.ThrottledTotal, _ = meter.Int64Counter(
		"mangawatch.auth.throttled.total",
		metric.WithDescription("Attempts rejected by the rate limiter"),
		metric.WithUnit("{attempt}"),
	)

	m.SessionsRegeneratedTotal, _ = meter.Int64Counter(
		"mangawatch.sessions.regenerated.total",
		metric.WithDescription("Total number of session id regenerations"),
		metric.WithUnit("{session}"),
	)

	m.SessionsPurgedTotal, _ = meter.Int64Counter(
		"mangawatch.sessions.purged.total",
		metric.WithDescription("Sessions deleted by account wide purges"),
		metric.WithUnit("{session}"),
	)

	m.LogoutsTotal, _ = meter.Int64Counter(
		"mangawatch.auth.logouts.total",
		metric.WithDescription("Total number of logouts"),
		metric.WithUnit("{logout}"),
	)

	m.IdentityCacheHitsTotal, _ = meter.Int64Counter(
		"mangawatch.identity_cache.hits.total",
		metric.WithDescription("Identity cache hits"),
		metric.WithUnit("{lookup}"),
	)

	m.IdentityCacheMissesTotal, _ = meter.Int64Counter(
		"mangawatch.identity_cache.misses.total",
		metric.WithDescription("Identity cache misses"),
		metric.WithUnit("{lookup}"),
	)

	m.SweptTotal, _ = meter.Int64Counter(
		"mangawatch.sweeper.deleted.total",
		metric.WithDescription("Expired rows deleted by the sweeper"),
		metric.WithUnit("{row}"),
	)

	m.SweepDuration, _ = meter.Float64Histogram(
		"mangawatch.sweeper.duration",
		metric.WithDescription("Duration of a sweep"),
		metric.WithUnit("ms"),
	)

	return m
}
