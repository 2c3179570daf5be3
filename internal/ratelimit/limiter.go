// Package ratelimit throttles repeated attempts per key (login:<ip>, token:<ip>) with a growing delay.
package ratelimit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Key prefixes for the two throttled operations.
const (
	LoginPrefix = "login:"
	TokenPrefix = "token:"
)

// LoginKey returns the limiter key for password logins from ip.
func LoginKey(ip string) string { return LoginPrefix + ip }

// TokenKey returns the limiter key for remember-me reauthentication from ip.
func TokenKey(ip string) string { return TokenPrefix + ip }

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool
	// NextAllowedAt is when the next attempt will be accepted. Zero while the key is below the free attempts.
	NextAllowedAt time.Time
}

// Limiter counts attempts per key.
type Limiter interface {
	// Check records one attempt for key and reports whether it may proceed.
	Check(ctx context.Context, key string) (Decision, error)

	// Reset forgets all attempts for key.
	Reset(ctx context.Context, key string) error
}

// Policy describes how attempts are throttled.
type Policy struct {
	// FreeAttempts is the number of attempts accepted before a delay is scheduled.
	FreeAttempts int
	MinWait      time.Duration
	MaxWait      time.Duration
	// IdleExpiry is how long an untouched key keeps its state.
	IdleExpiry time.Duration
}

// DefaultPolicy returns the policy used for both login and token keys.
func DefaultPolicy() Policy {
	return Policy{
		FreeAttempts: 15,
		MinWait:      500 * time.Millisecond,
		MaxWait:      15 * time.Minute,
		IdleExpiry:   24 * time.Hour,
	}
}

// schedule returns the delays for the 1st, 2nd, ... throttled attempt, ending with MaxWait.
func (p Policy) schedule() []time.Duration {
	if p.MinWait <= 0 || p.MinWait >= p.MaxWait {
		return []time.Duration{p.MaxWait}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinWait
	b.MaxInterval = p.MaxWait
	b.RandomizationFactor = 0
	b.Multiplier = 2

	var delays []time.Duration
	for {
		d := b.NextBackOff()
		if d >= p.MaxWait {
			return append(delays, p.MaxWait)
		}
		delays = append(delays, d)
	}
}

// throttle applies the policy to a key that has recorded count attempts (the current one included)
// and whose previous state allows attempts from nextAllowed on.
func throttle(delays []time.Duration, free, count int, now, nextAllowed time.Time) Decision {
	allowed := !now.Before(nextAllowed)

	if count >= free {
		nextAllowed = now.Add(delayFor(delays, count-free+1))
	}
	if !nextAllowed.After(now) && allowed {
		nextAllowed = time.Time{}
	}

	return Decision{Allowed: allowed, NextAllowedAt: nextAllowed}
}

func delayFor(delays []time.Duration, n int) time.Duration {
	if n > len(delays) {
		n = len(delays)
	}
	return delays[n-1]
}
