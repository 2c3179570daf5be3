package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStorageError_HidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	err := storageError("verify password", cause)

	require.Equal(t, "storage unavailable", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestThrottledError(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	err := &ThrottledError{NextAllowedAt: at}
	require.Contains(t, err.Error(), "2026-05-01T09:00:00Z")
}
