// File: internal/server/projects.go
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const msgProjectNotFound = "Project not found"

func (s *Server) projectRoutes(r chi.Router) {
	r.Get("/", s.handleListProjects)
	r.Post("/", s.handleCreateProject)
	r.Get("/{id}", s.handleGetProject)
	r.Put("/{id}", s.handleUpdateProject)
	r.Delete("/{id}", s.handleDeleteProject)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgProjectNotFound)
		return
	}
	s.ok(w, p)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in schemas.ProjectInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		s.fail(w, r, badRequest("Project name is required"), "")
		return
	}
	p, err := s.store.CreateProject(r.Context(), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.created(w, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var in schemas.ProjectInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	p, err := s.store.UpdateProject(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, msgProjectNotFound)
		return
	}
	s.ok(w, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProject(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		s.fail(w, r, err, msgProjectNotFound)
		return
	}
	s.okMessage(w, "Project deleted successfully", nil)
}
