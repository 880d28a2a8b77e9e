// File: internal/server/scripts.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/engine"
	"github.com/xkilldash9x/scriptforge/internal/enhance"
)

const (
	msgScriptNotFound = "Script not found"

	defaultBatchLimit = 50
)

func (s *Server) scriptRoutes(r chi.Router) {
	r.Get("/", s.handleListScripts)
	r.Post("/", s.handleCreateScript)
	r.Post("/batch/enhance", s.handleBatchEnhance)
	r.Get("/{id}", s.handleGetScript)
	r.Put("/{id}", s.handleUpdateScript)
	r.Delete("/{id}", s.handleDeleteScript)
	r.Post("/{id}/enhance", s.handleEnhanceScript)
	r.Get("/{id}/enhancement-for-validation", s.handleEnhanceScript)
	r.Post("/{id}/apply-enhancement", s.handleApplyEnhancement)
	r.Post("/{id}/execute", s.handleExecuteScript)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.store.ListScripts(r.Context(), principal(r).UserID, r.URL.Query().Get("projectId"))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, scripts)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScript(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	s.ok(w, sc)
}

// ownsProject rejects a project id the caller does not own.
func (s *Server) ownsProject(ctx context.Context, projectID *string, userID string) error {
	if projectID == nil || *projectID == "" {
		return nil
	}
	if _, err := s.store.GetProject(ctx, *projectID, userID); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var in schemas.ScriptInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" || in.Code == nil || *in.Code == "" {
		s.fail(w, r, badRequest("Name and code are required"), "")
		return
	}
	userID := principal(r).UserID
	if err := s.ownsProject(r.Context(), in.ProjectID, userID); err != nil {
		s.fail(w, r, err, msgProjectNotFound)
		return
	}
	sc, err := s.store.CreateScript(r.Context(), userID, in)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.created(w, sc)
}

func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	var in schemas.ScriptInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	userID := principal(r).UserID
	if err := s.ownsProject(r.Context(), in.ProjectID, userID); err != nil {
		s.fail(w, r, err, msgProjectNotFound)
		return
	}
	sc, err := s.store.UpdateScript(r.Context(), chi.URLParam(r, "id"), userID, in)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	s.ok(w, sc)
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteScript(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	s.okMessage(w, "Script deleted successfully", nil)
}

// enhanceOptions resolves request categories over the configured defaults.
func (s *Server) enhanceOptions(categories []string) (enhance.Options, error) {
	if categories == nil && len(s.enhanceCfg.Categories) > 0 {
		categories = s.enhanceCfg.Categories
	}
	cats, err := enhance.ParseCategories(categories)
	if err != nil {
		return enhance.Options{}, badRequest(err.Error())
	}
	priority, err := enhance.ParseCategories(s.enhanceCfg.Priority)
	if err != nil {
		return enhance.Options{}, fmt.Errorf("invalid enhancement priority: %w", err)
	}
	return enhance.Options{Categories: cats, Priority: priority}, nil
}

type enhanceRequest struct {
	Categories []string `json:"categories"`
}

// EnhancementData is the preview returned for one script.
type EnhancementData struct {
	ScriptID   string `json:"scriptId"`
	ScriptName string `json:"scriptName"`
	Language   string `json:"language"`
	enhance.Result
}

func (s *Server) handleEnhanceScript(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if r.Method == http.MethodPost {
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err, "")
			return
		}
	} else if raw := r.URL.Query().Get("categories"); raw != "" {
		req.Categories = strings.Split(raw, ",")
	}
	opts, err := s.enhanceOptions(req.Categories)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	sc, err := s.store.GetScript(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	res := s.enhancer.Generate(sc.Code, opts)
	s.logger.Debug("Generated enhancement suggestions",
		zap.String("script_id", sc.ID),
		zap.Int("suggestions", res.Summary.TotalSuggestions))
	s.ok(w, EnhancementData{ScriptID: sc.ID, ScriptName: sc.Name, Language: sc.Language, Result: res})
}

type applyRequest struct {
	EnhancedCode      *string  `json:"enhancedCode"`
	SuggestionIndices []int    `json:"suggestionIndices"`
	Categories        []string `json:"categories"`
}

func (s *Server) handleApplyEnhancement(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	id, userID := chi.URLParam(r, "id"), principal(r).UserID

	var code string
	switch {
	case req.SuggestionIndices != nil:
		opts, err := s.enhanceOptions(req.Categories)
		if err != nil {
			s.fail(w, r, err, "")
			return
		}
		sc, err := s.store.GetScript(r.Context(), id, userID)
		if err != nil {
			s.fail(w, r, err, msgScriptNotFound)
			return
		}
		res := s.enhancer.Generate(sc.Code, opts)
		code, err = enhance.Apply(sc.Code, res.Suggestions, req.SuggestionIndices)
		if err != nil {
			s.fail(w, r, err, "")
			return
		}
	case req.EnhancedCode != nil && *req.EnhancedCode != "":
		code = *req.EnhancedCode
	default:
		s.fail(w, r, badRequest("Enhanced code is required"), "")
		return
	}

	sc, err := s.store.ApplyScriptCode(r.Context(), id, userID, code)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	s.okMessage(w, "Script enhanced successfully", sc)
}

// enqueue hands a persisted run to the execution engine. A rejected
// submission is recorded on the run as an error.
func (s *Server) enqueue(ctx context.Context, run *schemas.TestRun, sc *schemas.Script) {
	if s.queue == nil {
		return
	}
	job := engine.RunJob{
		RunID:       run.ID,
		ScriptID:    sc.ID,
		UserID:      run.UserID,
		Code:        sc.Code,
		Language:    sc.Language,
		Browser:     run.Browser,
		Environment: run.Environment,
	}
	err := s.queue.Submit(job)
	if err == nil {
		return
	}
	s.logger.Warn("Could not queue test run", zap.String("run_id", run.ID), zap.Error(err))
	status := schemas.RunError
	msg := fmt.Sprintf("Failed to queue test run: %v", err)
	updated, uerr := s.store.UpdateTestRun(context.WithoutCancel(ctx), run.ID, run.UserID, schemas.RunUpdate{Status: &status, ErrorMsg: &msg})
	if uerr != nil {
		s.logger.Error("Failed to record queue rejection", zap.String("run_id", run.ID), zap.Error(uerr))
		return
	}
	*run = *updated
}

func (s *Server) handleExecuteScript(w http.ResponseWriter, r *http.Request) {
	userID := principal(r).UserID
	sc, err := s.store.GetScript(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	run, err := s.store.CreateTestRun(r.Context(), userID, sc.ID, schemas.RunQueued, defaultEnvironment, sc.BrowserType)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.enqueue(r.Context(), run, sc)
	writeJSON(w, http.StatusCreated, Envelope{
		Success: true,
		Message: "Script execution started",
		Data: map[string]any{
			"testRunId":  run.ID,
			"scriptId":   sc.ID,
			"scriptName": sc.Name,
			"status":     run.Status,
			"startedAt":  run.StartedAt,
		},
	})
}

type batchEnhanceRequest struct {
	ScriptIDs  []string `json:"scriptIds"`
	Categories []string `json:"categories"`
}

func (s *Server) batchLimit() int {
	if s.enhanceCfg.BatchLimit > 0 {
		return s.enhanceCfg.BatchLimit
	}
	return defaultBatchLimit
}

func (s *Server) handleBatchEnhance(w http.ResponseWriter, r *http.Request) {
	var req batchEnhanceRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if len(req.ScriptIDs) == 0 {
		s.fail(w, r, badRequest("scriptIds array is required"), "")
		return
	}
	if limit := s.batchLimit(); len(req.ScriptIDs) > limit {
		s.fail(w, r, badRequest(fmt.Sprintf("Maximum %d scripts can be enhanced at once", limit)), "")
		return
	}
	opts, err := s.enhanceOptions(req.Categories)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	scripts, err := s.store.GetScriptsByIDs(r.Context(), principal(r).UserID, req.ScriptIDs)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if len(scripts) == 0 {
		s.fail(w, r, notFound("No scripts found"), "")
		return
	}
	batch := lo.Map(scripts, func(sc schemas.Script, _ int) enhance.BatchScript {
		return enhance.BatchScript{ID: sc.ID, Name: sc.Name, Code: sc.Code}
	})
	report, err := s.enhancer.Batch(r.Context(), req.ScriptIDs, batch, opts, s.enhanceCfg.BatchParallel)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, report)
}
