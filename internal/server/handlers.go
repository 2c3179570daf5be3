package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/wolfeidau/mangawatch/internal/auth"
	"github.com/wolfeidau/mangawatch/internal/models"
	"github.com/wolfeidau/mangawatch/internal/session"
)

const maxBodyBytes = 64 * 1024

type loginRequest struct {
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	RememberMe rememberMe `json:"rememberme"`
}

// rememberMe accepts the checkbox value "on" as well as a JSON boolean.
type rememberMe bool

func (b *rememberMe) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true", "on", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

func parseCheckbox(value string) bool {
	switch value {
	case "on", "true", "1":
		return true
	}
	return false
}

type profileRequest struct {
	Username       *string `json:"username"`
	Email          *string `json:"email"`
	NewPassword    *string `json:"newPassword"`
	RepeatPassword *string `json:"repeatPassword"`
	Password       *string `json:"password"`
}

type identityResponse struct {
	User *models.Identity `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, r, auth.ErrInvalidCredentials)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, r, auth.ErrInvalidCredentials)
			return
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		req.RememberMe = rememberMe(parseCheckbox(r.PostForm.Get("rememberme")))
	}

	_, err := s.core.Login(r.Context(), w, r, auth.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: bool(req.RememberMe),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.core.Logout(r.Context(), w, r, sess); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := s.currentIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, identityResponse{User: ident})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok || !sess.IsAuthenticated() {
		writeError(w, r, auth.ErrNotAuthenticated)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, &auth.ValidationError{Message: "Invalid request body"})
		return
	}

	ident, err := s.core.ChangeCredentials(r.Context(), w, r, sess, auth.CredentialChange{
		Username:       req.Username,
		Email:          req.Email,
		NewPassword:    req.NewPassword,
		RepeatPassword: req.RepeatPassword,
		Password:       req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, identityResponse{User: ident})
}

func (s *Server) currentIdentity(r *http.Request) (*models.Identity, error) {
	if ident, ok := auth.IdentityFromContext(r.Context()); ok {
		return ident, nil
	}

	sess, ok := session.FromContext(r.Context())
	if !ok {
		return nil, nil
	}
	return s.core.CurrentIdentity(r.Context(), sess)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
