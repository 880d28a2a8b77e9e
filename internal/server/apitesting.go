// File: internal/server/apitesting.go
package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v3"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/apitesting"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

const (
	msgSuiteNotFound    = "Suite not found"
	msgTestCaseNotFound = "Test case not found"

	defaultBenchmarkLimit = 100
)

func (s *Server) apiTestingRoutes(r chi.Router) {
	r.Get("/suites", s.handleListAPISuites)
	r.Post("/suites", s.handleCreateAPISuite)
	r.Get("/suites/{id}", s.handleGetAPISuite)
	r.Put("/suites/{id}", s.handleUpdateAPISuite)
	r.Delete("/suites/{id}", s.handleDeleteAPISuite)
	r.Get("/suites/{id}/test-cases", s.handleListAPICases)
	r.Post("/suites/{id}/execute", s.handleExecuteAPISuite)
	r.Get("/suites/{id}/contracts", s.handleListContracts)
	r.Get("/suites/{id}/mocks", s.handleListMocks)

	r.Post("/test-cases", s.handleCreateAPICase)
	r.Post("/test-cases/{id}/execute", s.handleExecuteAPICase)
	r.Get("/test-cases/{id}/benchmarks", s.handleListBenchmarks)
	r.Get("/test-cases/{id}/benchmarks/stats", s.handleBenchmarkStats)

	r.Post("/contracts", s.handleCreateContract)
	r.Post("/mocks", s.handleCreateMock)
	r.Post("/ai/assertions/suggest", s.handleSuggestAssertions)
}

// rawText turns a JSON body field into stored text: strings are unquoted,
// any other JSON value is kept verbatim.
func rawText(raw jsoniter.RawMessage) null.String {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return null.String{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return null.StringFrom(s)
		}
	}
	return null.StringFrom(string(raw))
}

func blank(p *string) bool { return p == nil || strings.TrimSpace(*p) == "" }

func (s *Server) handleListAPISuites(w http.ResponseWriter, r *http.Request) {
	suites, err := s.store.ListAPISuites(r.Context(), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, suites)
}

func (s *Server) handleGetAPISuite(w http.ResponseWriter, r *http.Request) {
	suite, err := s.store.GetAPISuite(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgSuiteNotFound)
		return
	}
	s.ok(w, suite)
}

func (s *Server) handleCreateAPISuite(w http.ResponseWriter, r *http.Request) {
	var in schemas.APITestSuiteInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if blank(in.Name) {
		s.fail(w, r, badRequest("Name is required"), "")
		return
	}
	suite, err := s.store.CreateAPISuite(r.Context(), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.created(w, suite)
}

func (s *Server) handleUpdateAPISuite(w http.ResponseWriter, r *http.Request) {
	var in schemas.APITestSuiteInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "")
		return
	}
	suite, err := s.store.UpdateAPISuite(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, in)
	if err != nil {
		s.fail(w, r, err, msgSuiteNotFound)
		return
	}
	s.ok(w, suite)
}

func (s *Server) handleDeleteAPISuite(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAPISuite(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		s.fail(w, r, err, msgSuiteNotFound)
		return
	}
	s.okMessage(w, "Suite deleted", nil)
}

type createCaseRequest struct {
	SuiteID        string              `json:"suiteId"`
	Name           string              `json:"name"`
	Description    *string             `json:"description"`
	Method         string              `json:"method"`
	Endpoint       string              `json:"endpoint"`
	Headers        map[string]string   `json:"headers"`
	QueryParams    map[string]string   `json:"queryParams"`
	Body           jsoniter.RawMessage `json:"body"`
	ExpectedStatus *int64              `json:"expectedStatus"`
	Assertions     []schemas.Assertion `json:"assertions"`
	Timeout        int                 `json:"timeout"`
	RetryCount     int                 `json:"retryCount"`
	Enabled        *bool               `json:"enabled"`
}

func (s *Server) handleCreateAPICase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.SuiteID == "" || req.Name == "" || req.Method == "" || req.Endpoint == "" {
		s.fail(w, r, badRequest("SuiteId, name, method, and endpoint are required"), "")
		return
	}
	tc := schemas.APITestCase{
		SuiteID:        req.SuiteID,
		Name:           req.Name,
		Description:    null.StringFromPtr(req.Description),
		Method:         req.Method,
		Endpoint:       req.Endpoint,
		Headers:        req.Headers,
		QueryParams:    req.QueryParams,
		Body:           rawText(req.Body),
		ExpectedStatus: null.IntFromPtr(req.ExpectedStatus),
		Assertions:     req.Assertions,
		TimeoutMS:      req.Timeout,
		RetryCount:     req.RetryCount,
		Enabled:        req.Enabled == nil || *req.Enabled,
	}
	out, err := s.store.CreateAPITestCase(r.Context(), principal(r).UserID, tc)
	if err != nil {
		s.fail(w, r, err, msgSuiteNotFound)
		return
	}
	s.created(w, out)
}

func (s *Server) handleListAPICases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.store.ListAPITestCases(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, cases)
}

func (s *Server) handleExecuteAPICase(w http.ResponseWriter, r *http.Request) {
	tc, err := s.store.GetExecutableCase(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgTestCaseNotFound)
		return
	}
	res, err := s.apis.Execute(r.Context(), *tc)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, res)
}

func (s *Server) handleExecuteAPISuite(w http.ResponseWriter, r *http.Request) {
	suiteID, userID := chi.URLParam(r, "id"), principal(r).UserID
	if _, err := s.store.GetAPISuite(r.Context(), suiteID, userID); err != nil {
		s.fail(w, r, err, msgSuiteNotFound)
		return
	}
	cases, err := s.store.ListEnabledCases(r.Context(), suiteID, userID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	res, err := s.apis.ExecuteSuite(r.Context(), suiteID, cases)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, res)
}

type createContractRequest struct {
	SuiteID      string              `json:"suiteId"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	ContractType string              `json:"contractType"`
	ContractData jsoniter.RawMessage `json:"contractData"`
}

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req createContractRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	data := bytes.TrimSpace(req.ContractData)
	if req.SuiteID == "" || req.Name == "" || req.Version == "" || req.ContractType == "" ||
		len(data) == 0 || string(data) == "null" {
		s.fail(w, r, badRequest("SuiteId, name, version, contractType, and contractData are required"), "")
		return
	}
	out, err := s.store.CreateContract(r.Context(), principal(r).UserID, schemas.APIContract{
		SuiteID:      req.SuiteID,
		Name:         req.Name,
		Version:      req.Version,
		ContractType: req.ContractType,
		ContractData: []byte(data),
	})
	if err != nil {
		s.fail(w, r, err, msgSuiteNotFound)
		return
	}
	s.created(w, out)
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.store.ListContracts(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, contracts)
}

type createMockRequest struct {
	SuiteID         string              `json:"suiteId"`
	Name            string              `json:"name"`
	Endpoint        string              `json:"endpoint"`
	Method          string              `json:"method"`
	ResponseStatus  int                 `json:"responseStatus"`
	ResponseHeaders map[string]string   `json:"responseHeaders"`
	ResponseBody    jsoniter.RawMessage `json:"responseBody"`
	ResponseDelay   int                 `json:"responseDelay"`
	Enabled         *bool               `json:"enabled"`
}

func (s *Server) handleCreateMock(w http.ResponseWriter, r *http.Request) {
	var req createMockRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if req.SuiteID == "" || req.Name == "" || req.Endpoint == "" || req.Method == "" {
		s.fail(w, r, badRequest("SuiteId, name, endpoint, and method are required"), "")
		return
	}
	endpoint := req.Endpoint
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	out, err := s.store.CreateMock(r.Context(), principal(r).UserID, schemas.APIMock{
		SuiteID:         req.SuiteID,
		Name:            req.Name,
		Endpoint:        endpoint,
		Method:          req.Method,
		ResponseStatus:  req.ResponseStatus,
		ResponseHeaders: req.ResponseHeaders,
		ResponseBody:    rawText(req.ResponseBody),
		ResponseDelayMS: max(req.ResponseDelay, 0),
		Enabled:         req.Enabled == nil || *req.Enabled,
	})
	if err != nil {
		s.fail(w, r, err, msgSuiteNotFound)
		return
	}
	s.created(w, out)
}

func (s *Server) handleListMocks(w http.ResponseWriter, r *http.Request) {
	mocks, err := s.store.ListMocks(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.ok(w, mocks)
}

// handleServeMock answers any request under /mock/{suiteId}/ with the matching enabled mock.
func (s *Server) handleServeMock(w http.ResponseWriter, r *http.Request) {
	suiteID := chi.URLParam(r, "suiteId")
	endpoint := "/" + chi.URLParam(r, "*")
	m, err := s.store.FindMock(r.Context(), suiteID, r.Method, endpoint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Envelope{Success: false, Error: "Mock not found"})
			return
		}
		s.fail(w, r, err, "")
		return
	}
	if err := apitesting.WriteMock(r.Context(), w, m); err != nil {
		s.logger.Debug("Mock response abandoned", zap.String("mock_id", m.ID), zap.Error(err))
	}
}

func benchmarkLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultBenchmarkLimit
	}
	return min(limit, 1000)
}

func (s *Server) handleListBenchmarks(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.ListBenchmarks(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, benchmarkLimit(r))
	if err != nil {
		s.fail(w, r, err, msgTestCaseNotFound)
		return
	}
	s.ok(w, out)
}

func (s *Server) handleBenchmarkStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.BenchmarkStats(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		s.fail(w, r, err, msgTestCaseNotFound)
		return
	}
	s.ok(w, out)
}

type suggestRequest struct {
	ResponseBody   jsoniter.RawMessage `json:"responseBody"`
	Status         *int                `json:"status"`
	Headers        map[string]string   `json:"headers"`
	Method         string              `json:"method"`
	Endpoint       string              `json:"endpoint"`
	MaxSuggestions *int                `json:"maxSuggestions"`
}

func (s *Server) handleSuggestAssertions(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	body := rawText(req.ResponseBody)
	if !body.Valid {
		s.fail(w, r, badRequest("responseBody is required"), "")
		return
	}
	s.ok(w, apitesting.SuggestAssertions(apitesting.SuggestInput{
		ResponseBody:   []byte(body.String),
		Status:         req.Status,
		Headers:        req.Headers,
		Method:         req.Method,
		Endpoint:       req.Endpoint,
		MaxSuggestions: req.MaxSuggestions,
	}))
}
