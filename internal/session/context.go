package session

import (
	"context"

	"github.com/wolfeidau/mangawatch/internal/models"
)

type contextKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*models.Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*models.Session)
	return sess, ok && sess != nil
}
