// File: internal/server/respond.go
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/internal/auth"
	"github.com/xkilldash9x/scriptforge/internal/enhance"
	"github.com/xkilldash9x/scriptforge/internal/store"
	"github.com/xkilldash9x/scriptforge/internal/workflow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the body of every non-auth API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// httpError carries an explicit status and client facing message.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func badRequest(msg string) error { return &httpError{status: http.StatusBadRequest, message: msg} }

func notFound(msg string) error { return &httpError{status: http.StatusNotFound, message: msg} }

func forbidden(msg string) error { return &httpError{status: http.StatusForbidden, message: msg} }

// statusFor maps an error onto its HTTP status.
func statusFor(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrTransitionNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, store.ErrConflict), errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidRefresh), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, enhance.ErrSuggestionIndex), errors.Is(err, enhance.ErrStaleSuggestion), errors.Is(err, workflow.ErrUnknownStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func (s *Server) created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

func (s *Server) okMessage(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

// fail writes err in the envelope. notFoundMsg replaces a bare store.ErrNotFound.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	status := statusFor(err)
	msg := err.Error()
	var he *httpError
	if !errors.As(err, &he) && status == http.StatusNotFound && notFoundMsg != "" {
		msg = notFoundMsg
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, Envelope{Success: false, Error: msg})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
// The body is read in full before parsing so an over-limit body surfaces as
// a MaxBytesError rather than a parse failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := r.Body
	if s.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &httpError{status: http.StatusRequestEntityTooLarge, message: "Request body too large"}
		}
		return badRequest(fmt.Sprintf("Invalid JSON body: %v", err))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badRequest(fmt.Sprintf("Invalid JSON body: %v", err))
	}
	return nil
}
