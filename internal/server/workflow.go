// File: internal/server/workflow.go
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/internal/store"
	"github.com/xkilldash9x/scriptforge/internal/workflow"
)

func (s *Server) workflowRoutes(r chi.Router) {
	r.Get("/stats", s.handleWorkflowStats)
	r.Post("/batch-update", s.handleWorkflowBatch)
	r.Get("/status/{status}/scripts", s.handleScriptsByStatus)
	r.Get("/{scriptId}/status", s.handleWorkflowStatus)
	r.Post("/{scriptId}/transition", s.handleWorkflowTransition)
}

// WorkflowStatusView describes where a script sits in the review workflow.
type WorkflowStatusView struct {
	ScriptID              string            `json:"scriptId"`
	ScriptName            string            `json:"scriptName"`
	CurrentStatus         workflow.Status   `json:"currentStatus"`
	AllowedActions        []string          `json:"allowedActions"`
	RecommendedNextStates []workflow.Status `json:"recommendedNextStates"`
	CanRunInCI            bool              `json:"canRunInCI"`
	RequiresHumanApproval bool              `json:"requiresHumanApproval"`
	LastUpdated           time.Time         `json:"lastUpdated"`
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScript(r.Context(), chi.URLParam(r, "scriptId"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	st := workflow.Status(sc.WorkflowStatus)
	s.ok(w, WorkflowStatusView{
		ScriptID:              sc.ID,
		ScriptName:            sc.Name,
		CurrentStatus:         st,
		AllowedActions:        lo.Ternary(st.Valid(), workflow.AllowedActions(st), []string{}),
		RecommendedNextStates: workflow.RecommendedNextStates(st),
		CanRunInCI:            workflow.CanRunInCI(st),
		RequiresHumanApproval: workflow.RequiresHumanApproval(st),
		LastUpdated:           sc.UpdatedAt,
	})
}

type transitionRequest struct {
	TargetStatus string  `json:"targetStatus"`
	Action       *string `json:"action"`
	Comment      *string `json:"comment"`
}

// TransitionView is the result of a workflow transition.
type TransitionView struct {
	ScriptID       string               `json:"scriptId"`
	ScriptName     string               `json:"scriptName"`
	PreviousStatus workflow.Status      `json:"previousStatus"`
	CurrentStatus  workflow.Status      `json:"currentStatus"`
	Transition     *workflow.Transition `json:"transition,omitempty"`
	Action         string               `json:"action,omitempty"`
	Comment        *string              `json:"comment,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

func (s *Server) handleWorkflowTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.TargetStatus == "" {
		s.fail(w, r, badRequest("targetStatus is required"), "")
		return
	}
	p := principal(r)
	sc, err := s.store.GetScript(r.Context(), chi.URLParam(r, "scriptId"), p.UserID)
	if err != nil {
		s.fail(w, r, err, msgScriptNotFound)
		return
	}
	from, to := workflow.Status(sc.WorkflowStatus), workflow.Status(req.TargetStatus)
	if err := workflow.CheckTransition(from, to, p.Role); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if err := s.store.TransitionWorkflow(r.Context(), sc.ID, p.UserID, string(from), string(to)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The row changed status (or vanished) since it was read.
			s.fail(w, r, &httpError{status: http.StatusConflict, message: "Script status changed concurrently, please retry"}, "")
			return
		}
		s.fail(w, r, err, "")
		return
	}

	view := TransitionView{
		ScriptID:       sc.ID,
		ScriptName:     sc.Name,
		PreviousStatus: from,
		CurrentStatus:  to,
		Comment:        req.Comment,
		Timestamp:      s.now().UTC(),
	}
	if meta, ok := workflow.TransitionMetadata(from, to); ok {
		view.Transition = &meta
		view.Action = meta.Action
	}
	if req.Action != nil && *req.Action != "" {
		view.Action = *req.Action
	}
	s.logger.Info("Script workflow transitioned",
		zap.String("script_id", sc.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("user_id", p.UserID))
	s.okMessage(w, fmt.Sprintf("Script transitioned from %s to %s", from, to), view)
}

type batchWorkflowRequest struct {
	ScriptIDs    []string `json:"scriptIds"`
	TargetStatus string   `json:"targetStatus"`
}

func (s *Server) handleWorkflowBatch(w http.ResponseWriter, r *http.Request) {
	var req batchWorkflowRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if len(req.ScriptIDs) == 0 {
		s.fail(w, r, badRequest("scriptIds array is required"), "")
		return
	}
	if req.TargetStatus == "" {
		s.fail(w, r, badRequest("targetStatus is required"), "")
		return
	}
	to, err := workflow.Parse(req.TargetStatus)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	n, err := s.store.BatchUpdateWorkflow(r.Context(), principal(r).UserID, lo.Uniq(req.ScriptIDs), string(to))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.okMessage(w, fmt.Sprintf("Updated %d script(s) to %s", n, to), map[string]any{
		"updatedCount": n,
		"targetStatus": to,
	})
}

func (s *Server) handleScriptsByStatus(w http.ResponseWriter, r *http.Request) {
	st, err := workflow.Parse(chi.URLParam(r, "status"))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	scripts, err := s.store.ListScriptsByWorkflow(r.Context(), principal(r).UserID, string(st))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, scripts)
}

func (s *Server) handleWorkflowStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.WorkflowCounts(r.Context(), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, workflow.BuildStats(counts))
}
