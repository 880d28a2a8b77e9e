// File: internal/server/testdata.go
package server

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/testdata"
)

const (
	msgTestSuiteNotFound = "Test suite not found"
	msgTestDataNotFound  = "Test data not found"

	generatedSuiteDescription = "Generated via test data generator"
)

func (s *Server) testDataRoutes(r chi.Router) {
	r.Get("/suites", s.handleListTestSuites)
	r.Post("/suites", s.handleCreateTestSuite)
	r.Get("/suites/{id}", s.handleGetTestSuite)
	r.Put("/suites/{id}", s.handleUpdateTestSuite)
	r.Delete("/suites/{id}", s.handleDeleteTestSuite)

	r.Get("/data", s.handleListTestData)
	r.Post("/data", s.handleCreateTestData)
	r.Get("/data/{id}", s.handleGetTestData)
	r.Put("/data/{id}", s.handleUpdateTestData)
	r.Delete("/data/{id}", s.handleDeleteTestData)

	r.Post("/generate", s.handleGenerate)
	r.Post("/generate-save", s.handleGenerateSave)
}

type suiteRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) handleListTestSuites(w http.ResponseWriter, r *http.Request) {
	suites, err := s.store.ListTestSuites(r.Context(), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, suites)
}

func (s *Server) handleGetTestSuite(w http.ResponseWriter, r *http.Request) {
	suite, err := s.store.GetTestSuite(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgTestSuiteNotFound)
		return
	}
	s.ok(w, suite)
}

func (s *Server) handleCreateTestSuite(w http.ResponseWriter, r *http.Request) {
	var req suiteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if blank(req.Name) {
		s.fail(w, r, badRequest("Suite name is required"), "")
		return
	}
	suite, err := s.store.CreateTestSuite(r.Context(), principal(r).UserID, *req.Name, req.Description)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.created(w, suite)
}

func (s *Server) handleUpdateTestSuite(w http.ResponseWriter, r *http.Request) {
	var req suiteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	suite, err := s.store.UpdateTestSuite(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, req.Name, req.Description)
	if err != nil {
		s.fail(w, r, err, msgTestSuiteNotFound)
		return
	}
	s.ok(w, suite)
}

func (s *Server) handleDeleteTestSuite(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTestSuite(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		s.fail(w, r, err, msgTestSuiteNotFound)
		return
	}
	s.okMessage(w, "Test suite deleted successfully", nil)
}

func (s *Server) handleListTestData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.store.ListTestData(r.Context(), principal(r).UserID, schemas.TestDataFilter{
		SuiteID:     q.Get("suiteId"),
		Environment: q.Get("environment"),
		Type:        q.Get("type"),
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, rows)
}

func (s *Server) handleGetTestData(w http.ResponseWriter, r *http.Request) {
	td, err := s.store.GetTestData(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgTestDataNotFound)
		return
	}
	s.ok(w, td)
}

func emptyJSON(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

func (s *Server) handleCreateTestData(w http.ResponseWriter, r *http.Request) {
	var in schemas.TestDataInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if blank(in.SuiteID) || blank(in.Name) || emptyJSON(in.Data) {
		s.fail(w, r, badRequest("suiteId, name, and data are required"), "")
		return
	}
	td, err := s.store.CreateTestData(r.Context(), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, msgTestSuiteNotFound)
		return
	}
	s.created(w, td)
}

func (s *Server) handleUpdateTestData(w http.ResponseWriter, r *http.Request) {
	var in schemas.TestDataInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	td, err := s.store.UpdateTestData(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, msgTestDataNotFound)
		return
	}
	s.ok(w, td)
}

func (s *Server) handleDeleteTestData(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTestData(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		s.fail(w, r, err, msgTestDataNotFound)
		return
	}
	s.okMessage(w, "Test data deleted successfully", nil)
}

// generationError maps generator failures onto request errors.
func generationError(err error) error {
	if errors.Is(err, testdata.ErrUnknownDataType) {
		return badRequest(err.Error())
	}
	return err
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req testdata.Request
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	res, err := s.data.Generate(req)
	if err != nil {
		s.fail(w, r, generationError(err), "")
		return
	}
	s.ok(w, res)
}

type generateSaveRequest struct {
	testdata.Request
	SuiteID          string  `json:"suiteId"`
	SuiteName        string  `json:"suiteName"`
	SuiteDescription *string `json:"suiteDescription"`
	Environment      string  `json:"environment"`
	Type             string  `json:"type"`
}

// GenerateSaveResult reports a persisted generation.
type GenerateSaveResult struct {
	SuiteID    string            `json:"suiteId"`
	SavedCount int64             `json:"savedCount"`
	Metadata   testdata.Metadata `json:"metadata"`
}

func (s *Server) handleGenerateSave(w http.ResponseWriter, r *http.Request) {
	var req generateSaveRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	dt, err := testdata.ParseType(string(req.DataType))
	if err != nil {
		s.fail(w, r, badRequest(err.Error()), "")
		return
	}
	req.DataType = dt
	userID := principal(r).UserID

	suiteID := req.SuiteID
	if suiteID != "" {
		if _, err := s.store.GetTestSuite(r.Context(), suiteID, userID); err != nil {
			s.fail(w, r, err, msgTestSuiteNotFound)
			return
		}
	}

	res, err := s.data.GenerateWithFallback(r.Context(), req.Request)
	if err != nil {
		s.fail(w, r, generationError(err), "")
		return
	}

	if suiteID == "" {
		name := req.SuiteName
		if name == "" {
			name = "Generated " + s.now().UTC().Format("2006-01-02")
		}
		desc := req.SuiteDescription
		if desc == nil {
			d := generatedSuiteDescription
			desc = &d
		}
		suite, err := s.store.CreateTestSuite(r.Context(), userID, name, desc)
		if err != nil {
			s.fail(w, r, err, "")
			return
		}
		suiteID = suite.ID
	}

	records := make([]stdjson.RawMessage, 0, len(res.Data))
	for i, rec := range res.Data {
		b, err := json.Marshal(rec)
		if err != nil {
			s.fail(w, r, fmt.Errorf("failed to encode generated record %d: %w", i, err), "")
			return
		}
		records = append(records, b)
	}
	dataType := req.Type
	if dataType == "" {
		dataType = string(dt)
	}
	n, err := s.store.SaveGeneratedData(r.Context(), userID, suiteID, "Generated "+string(dt), req.Environment, dataType, records)
	if err != nil {
		s.fail(w, r, err, msgTestSuiteNotFound)
		return
	}
	s.logger.Info("Saved generated test data",
		zap.String("suite_id", suiteID),
		zap.Int64("count", n),
		zap.String("source", res.Metadata.Source))
	s.created(w, GenerateSaveResult{SuiteID: suiteID, SavedCount: n, Metadata: res.Metadata})
}
