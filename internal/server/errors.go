package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/mangawatch/internal/auth"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message              string `json:"message,omitempty"`
	Field                string `json:"field,omitempty"`
	NextValidRequestDate string `json:"nextValidRequestDate,omitempty"`
}

// writeError maps errors returned by the authentication core to HTTP responses.
// Storage failures are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		throttled  *auth.ThrottledError
		validation *auth.ValidationError
		authz      *auth.AuthorizationRequiredError
	)

	switch {
	case errors.As(err, &throttled):
		retryAfter := int(math.Ceil(time.Until(throttled.NextAllowedAt).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
			NextValidRequestDate: throttled.NextAllowedAt.UTC().Format(time.RFC3339),
		}})

	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{Message: "Unauthorized"}})

	case errors.As(err, &authz):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{Message: authz.Error(), Field: authz.Field}})

	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Message: validation.Message, Field: validation.Field}})

	case errors.Is(err, auth.ErrEmailInUse):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: errorDetail{Message: "Email is already in use", Field: "email"}})

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Message: "Internal server error"}})
	}
}
