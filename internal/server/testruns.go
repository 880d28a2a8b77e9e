// File: internal/server/testruns.go
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

const (
	msgRunNotFound = "Test run not found"

	defaultEnvironment    = "development"
	defaultBrowser        = "chromium"
	defaultReportBrowser  = "msedge"
	tempScriptName        = "Current Script (Temp)"
	tempScriptDescription = "Temporary script for direct execution"
	reporterDescription   = "Auto-created from Playwright reporter"
	reporterCode          = "// Recorded by Playwright reporter"
)

func (s *Server) testRunRoutes(r chi.Router) {
	r.Get("/", s.handleListRuns)
	r.Post("/", s.handleStartRun)
	r.Get("/active", s.handleActiveRuns)
	r.Post("/execute-current", s.handleExecuteCurrent)
	r.Post("/report", s.handleReportRun)
	r.Get("/{id}", s.handleGetRun)
	r.Put("/{id}", s.handleUpdateRun)
	r.Post("/{id}/stop", s.handleStopRun)
	r.Put("/{id}/report-url", s.handleReportURL)
}

func orDefault(p *string, def string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return def
	}
	return *p
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListTestRuns(r.Context(), principal(r).UserID, r.URL.Query().Get("projectId"))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, runs)
}

func (s *Server) handleActiveRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListActiveTestRuns(r.Context(), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetTestRun(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgRunNotFound)
		return
	}
	s.ok(w, run)
}

type startRunRequest struct {
	ScriptID    string  `json:"scriptId"`
	DataFileID  *string `json:"dataFileId"`
	Environment *string `json:"environment"`
	Browser     *string `json:"browser"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.ScriptID == "" {
		s.fail(w, r, badRequest("Script ID is required"), "")
		return
	}
	userID := principal(r).UserID
	sc, err := s.store.GetScript(r.Context(), req.ScriptID, userID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	run, err := s.store.CreateTestRun(r.Context(), userID, sc.ID, schemas.RunQueued,
		orDefault(req.Environment, defaultEnvironment), orDefault(req.Browser, defaultBrowser))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.enqueue(r.Context(), run, sc)
	s.created(w, run)
}

type executeCurrentRequest struct {
	Code        string  `json:"code"`
	Language    string  `json:"language"`
	Environment *string `json:"environment"`
	Browser     *string `json:"browser"`
}

func (s *Server) handleExecuteCurrent(w http.ResponseWriter, r *http.Request) {
	var req executeCurrentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.Code == "" || req.Language == "" {
		s.fail(w, r, badRequest("Code and language are required"), "")
		return
	}
	userID := principal(r).UserID
	browser := orDefault(req.Browser, defaultBrowser)
	name, desc := tempScriptName, tempScriptDescription
	sc, err := s.store.CreateScript(r.Context(), userID, schemas.ScriptInput{
		Name:        &name,
		Description: &desc,
		Language:    &req.Language,
		Code:        &req.Code,
		BrowserType: &browser,
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	run, err := s.store.CreateTestRun(r.Context(), userID, sc.ID, schemas.RunRunning,
		orDefault(req.Environment, defaultEnvironment), browser)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.enqueue(r.Context(), run, sc)
	s.created(w, run)
}

func (s *Server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	var in schemas.RunUpdate
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if in.Status != nil && !in.Status.Valid() {
		s.fail(w, r, badRequest("Invalid status '"+string(*in.Status)+"'"), "")
		return
	}
	run, err := s.store.UpdateTestRun(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, msgRunNotFound)
		return
	}
	s.ok(w, run)
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.StopTestRun(r.Context(), id, principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgRunNotFound)
		return
	}
	if s.queue != nil && s.queue.Cancel(id) {
		s.logger.Info("Cancelled in-flight test run", zap.String("run_id", id))
	}
	s.ok(w, run)
}

func (s *Server) handleReportRun(w http.ResponseWriter, r *http.Request) {
	var rep schemas.RunReport
	if err := s.decode(w, r, &rep); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if strings.TrimSpace(rep.TestName) == "" || rep.Status == "" {
		s.fail(w, r, badRequest("testName and status are required"), "")
		return
	}
	if !rep.Status.Valid() {
		s.fail(w, r, badRequest("Invalid status '"+string(rep.Status)+"'"), "")
		return
	}
	userID := principal(r).UserID
	sc, err := s.store.FindScriptByName(r.Context(), userID, rep.TestName)
	if errors.Is(err, store.ErrNotFound) {
		desc, code := reporterDescription, reporterCode
		sc, err = s.store.CreateScript(r.Context(), userID, schemas.ScriptInput{
			Name:        &rep.TestName,
			Description: &desc,
			Code:        &code,
		})
	}
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	run, err := s.store.CreateReportedRun(r.Context(), userID, sc.ID, rep,
		orDefault(rep.Environment, defaultEnvironment), orDefault(rep.Browser, defaultReportBrowser))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.created(w, run)
}

func (s *Server) handleReportURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExecutionReportURL string `json:"executionReportUrl"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if strings.TrimSpace(req.ExecutionReportURL) == "" {
		s.fail(w, r, badRequest("executionReportUrl is required"), "")
		return
	}
	run, err := s.store.SetExecutionReportURL(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, req.ExecutionReportURL)
	if err != nil {
		s.fail(w, r, err, msgRunNotFound)
		return
	}
	s.ok(w, run)
}
