// File: internal/server/auth.go
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xkilldash9x/scriptforge/internal/auth"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

// Auth endpoints answer with bare JSON objects rather than the envelope.

func (s *Server) authRoutes(r chi.Router) {
	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/logout", s.handleLogout)
	r.With(s.requireAuth).Get("/me", s.handleMe)
}

func authError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// authFailure writes err with the client facing wording of the auth errors.
func (s *Server) authFailure(w http.ResponseWriter, r *http.Request, err error) {
	var he *httpError
	switch {
	case errors.As(err, &he):
		authError(w, he.status, he.message)
	case errors.Is(err, auth.ErrUserExists):
		authError(w, http.StatusConflict, "User already exists with this email")
	case errors.Is(err, auth.ErrInvalidCredentials):
		authError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidRefresh), errors.Is(err, auth.ErrInvalidToken):
		authError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
	case errors.Is(err, store.ErrNotFound):
		authError(w, http.StatusNotFound, "User not found")
	default:
		s.fail(w, r, err, "")
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := s.decode(w, r, &req); err != nil {
		s.authFailure(w, r, err)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		authError(w, http.StatusBadRequest, "Email, password, and name are required")
		return
	}
	res, err := s.auth.Register(r.Context(), email, req.Password, strings.TrimSpace(req.Name))
	if err != nil {
		s.authFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := s.decode(w, r, &req); err != nil {
		s.authFailure(w, r, err)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		authError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	res, err := s.auth.Login(r.Context(), email, req.Password)
	if err != nil {
		s.authFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := s.decode(w, r, &req); err != nil {
		s.authFailure(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		authError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.authFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := s.decode(w, r, &req); err != nil {
		s.authFailure(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		authError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.authFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.Me(r.Context(), principal(r).UserID)
	if err != nil {
		s.authFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}
