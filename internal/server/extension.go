// File: internal/server/extension.go
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

// The recorder extension reads bare JSON objects, not the envelope.

const defaultExtensionMaxFileSize = 10 << 20

// ExtensionLanguage is a script language the recorder can emit.
type ExtensionLanguage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

var extensionLanguages = []ExtensionLanguage{
	{ID: "typescript", Name: "TypeScript", Extension: ".ts"},
	{ID: "javascript", Name: "JavaScript", Extension: ".js"},
	{ID: "python", Name: "Python", Extension: ".py"},
	{ID: "java", Name: "Java", Extension: ".java"},
	{ID: "java-junit", Name: "Java (JUnit)", Extension: ".java"},
	{ID: "csharp", Name: "C#", Extension: ".cs"},
	{ID: "robot", Name: "Robot Framework", Extension: ".robot"},
}

var extensionBrowsers = []string{"chromium", "firefox", "webkit"}

func (s *Server) extensionRoutes(r chi.Router) {
	r.Get("/ping", s.handleExtensionPing)
	r.Post("/handshake", s.handleExtensionHandshake)
	r.Post("/heartbeat", s.handleExtensionHeartbeat)
	r.Get("/config", s.handleExtensionConfig)
	r.Post("/logs", s.handleExtensionLogs)
	r.With(s.requireAuth).Post("/save-script", s.handleExtensionSaveScript)
}

func (s *Server) extensionMaxFileSize() int64 {
	if s.maxBody > 0 {
		return s.maxBody
	}
	return defaultExtensionMaxFileSize
}

func (s *Server) extensionFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Extension request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) handleExtensionPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

type handshakeRequest struct {
	ExtensionVersion string         `json:"extensionVersion"`
	BrowserInfo      map[string]any `json:"browserInfo"`
}

func (s *Server) handleExtensionHandshake(w http.ResponseWriter, r *http.Request) {
	var req handshakeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.extensionFailure(w, r, err)
		return
	}
	s.logger.Info("Extension handshake received",
		zap.String("extension_version", req.ExtensionVersion), zap.Any("browser_info", req.BrowserInfo))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"serverVersion": s.version,
		"capabilities": map[string]bool{
			"selfHealing":       false,
			"dataDrivenTesting": true,
			"testExecution":     true,
			"scriptStorage":     true,
		},
		"config": map[string]any{
			"maxFileSize":        s.extensionMaxFileSize(),
			"supportedLanguages": extensionLanguageIDs(),
		},
	})
}

func extensionLanguageIDs() []string {
	ids := make([]string, 0, len(extensionLanguages))
	seen := map[string]bool{}
	for _, l := range extensionLanguages {
		base, _, _ := strings.Cut(l.ID, "-")
		if !seen[base] {
			seen[base] = true
			ids = append(ids, base)
		}
	}
	return ids
}

type heartbeatRequest struct {
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

func (s *Server) handleExtensionHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := s.decode(w, r, &req); err != nil {
		s.extensionFailure(w, r, err)
		return
	}
	s.logger.Debug("Extension heartbeat", zap.String("timestamp", req.Timestamp), zap.String("status", req.Status))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"serverTime":   s.now().UTC().Format(time.RFC3339Nano),
		"serverStatus": "healthy",
	})
}

func (s *Server) handleExtensionConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config": map[string]any{
			"supportedLanguages": extensionLanguages,
			"defaultLanguage":    store.DefaultLanguage,
			"testIdAttribute":    store.DefaultTestIDAttribute,
			"browserTypes":       extensionBrowsers,
			"maxFileSize":        s.extensionMaxFileSize(),
		},
	})
}

type extensionLogRequest struct {
	Level    string         `json:"level"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// extensionLogLevel maps a client supplied level onto debug through error.
// Unknown levels log at info and nothing above error is honored.
func extensionLogLevel(raw string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return zapcore.InfoLevel
	}
	if lvl > zapcore.ErrorLevel {
		return zapcore.ErrorLevel
	}
	return lvl
}

func (s *Server) handleExtensionLogs(w http.ResponseWriter, r *http.Request) {
	var req extensionLogRequest
	if err := s.decode(w, r, &req); err != nil {
		s.extensionFailure(w, r, err)
		return
	}
	logger := s.logger.Named("extension")
	if ce := logger.Check(extensionLogLevel(req.Level), "[Extension] "+req.Message); ce != nil {
		var fields []zap.Field
		if len(req.Metadata) > 0 {
			fields = append(fields, zap.Any("metadata", req.Metadata))
		}
		ce.Write(fields...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleExtensionSaveScript(w http.ResponseWriter, r *http.Request) {
	var in schemas.ScriptInput
	if err := s.decode(w, r, &in); err != nil {
		s.extensionFailure(w, r, err)
		return
	}
	if blank(in.Name) || in.Code == nil || *in.Code == "" {
		s.extensionFailure(w, r, badRequest("Name and code are required"))
		return
	}
	userID := principal(r).UserID
	sc, err := s.store.CreateScript(r.Context(), userID, schemas.ScriptInput{
		Name:        in.Name,
		Description: in.Description,
		Language:    in.Language,
		Code:        in.Code,
		BrowserType: in.BrowserType,
	})
	if err != nil {
		s.extensionFailure(w, r, err)
		return
	}
	s.logger.Info("Script saved from extension", zap.String("script_id", sc.ID), zap.String("user_id", userID))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "script": sc})
}
