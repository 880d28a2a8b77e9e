// File: internal/server/apirequests.go
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const msgAPIRequestNotFound = "API request not found"

func (s *Server) apiRequestRoutes(r chi.Router) {
	r.Get("/", s.handleListAPIRequests)
	r.Post("/", s.handleCreateAPIRequest)
	r.Get("/{id}", s.handleGetAPIRequest)
	r.Put("/{id}", s.handleUpdateAPIRequest)
	r.Delete("/{id}", s.handleDeleteAPIRequest)
}

func (s *Server) handleListAPIRequests(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.ListAPIRequests(r.Context(), principal(r).UserID, r.URL.Query().Get("environment"))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, out)
}

func (s *Server) handleGetAPIRequest(w http.ResponseWriter, r *http.Request) {
	ar, err := s.store.GetAPIRequest(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgAPIRequestNotFound)
		return
	}
	s.ok(w, ar)
}

// normalizeMethod upper cases a provided method so stored requests replay as sent.
func normalizeMethod(in *schemas.APIRequestInput) {
	if in.Method != nil {
		m := strings.ToUpper(strings.TrimSpace(*in.Method))
		in.Method = &m
	}
}

func (s *Server) handleCreateAPIRequest(w http.ResponseWriter, r *http.Request) {
	var in schemas.APIRequestInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if blank(in.Name) || blank(in.Method) || blank(in.URL) {
		s.fail(w, r, badRequest("name, method, and url are required"), "")
		return
	}
	normalizeMethod(&in)
	ar, err := s.store.CreateAPIRequest(r.Context(), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.created(w, ar)
}

func (s *Server) handleUpdateAPIRequest(w http.ResponseWriter, r *http.Request) {
	var in schemas.APIRequestInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	normalizeMethod(&in)
	ar, err := s.store.UpdateAPIRequest(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, msgAPIRequestNotFound)
		return
	}
	s.ok(w, ar)
}

func (s *Server) handleDeleteAPIRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAPIRequest(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		s.fail(w, r, err, msgAPIRequestNotFound)
		return
	}
	s.okMessage(w, "API request deleted successfully", nil)
}
