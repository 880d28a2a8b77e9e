// File: internal/server/pipeline.go
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xkilldash9x/scriptforge/internal/workflow"
)

func (s *Server) pipelineRoutes(r chi.Router) {
	r.Get("/{scriptId}/insights", s.handlePipelineInsights)
	r.Get("/{scriptId}/overview", s.handlePipelineOverview)
}

func (s *Server) handlePipelineInsights(w http.ResponseWriter, r *http.Request) {
	userID := principal(r).UserID
	sc, err := s.store.GetScript(r.Context(), chi.URLParam(r, "scriptId"), userID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	runs, err := s.store.ListScriptRuns(r.Context(), sc.ID, userID, workflow.InsightRunWindow)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.okMessage(w, "Insights generated successfully", workflow.BuildInsights(sc, runs, s.now()))
}

func (s *Server) handlePipelineOverview(w http.ResponseWriter, r *http.Request) {
	userID := principal(r).UserID
	sc, err := s.store.GetScript(r.Context(), chi.URLParam(r, "scriptId"), userID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	runs, err := s.store.ListScriptRuns(r.Context(), sc.ID, userID, workflow.OverviewRunWindow)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	count, err := s.store.CountScriptTestData(r.Context(), userID, sc.Name)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, workflow.BuildOverview(sc, runs, count))
}
