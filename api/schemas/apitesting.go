// File: api/schemas/apitesting.go
package schemas

import (
	"encoding/json"
	"time"

	"gopkg.in/guregu/null.v3"
)

// AssertionType selects how an assertion inspects a response.
type AssertionType string

const (
	AssertStatus       AssertionType = "status"
	AssertHeader       AssertionType = "header"
	AssertBodyContains AssertionType = "body_contains"
	AssertJSONPath     AssertionType = "json_path"
	AssertJSONEquals   AssertionType = "json_equals"
	AssertXMLPath      AssertionType = "xml_path"
	AssertResponseTime AssertionType = "response_time"
)

// APITestSuite groups API test cases that share a base URL and headers.
type APITestSuite struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Name        string            `json:"name"`
	Description null.String       `json:"description"`
	BaseURL     null.String       `json:"baseUrl"`
	Headers     map[string]string `json:"headers"`
	AuthConfig  json.RawMessage   `json:"authConfig,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// APITestSuiteInput carries create and partial update fields for a suite.
type APITestSuiteInput struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	BaseURL     *string           `json:"baseUrl"`
	Headers     map[string]string `json:"headers"`
	AuthConfig  json.RawMessage   `json:"authConfig"`
}

// Assertion is one check applied to an executed response.
type Assertion struct {
	Type     AssertionType `json:"type"`
	Expected any           `json:"expected,omitempty"`
	Header   string        `json:"header,omitempty"`
	Path     string        `json:"path,omitempty"`
	// IgnoreDynamic masks ids, timestamps and tokens before a json_equals comparison.
	IgnoreDynamic bool `json:"ignoreDynamic,omitempty"`
}

// AssertionResult is an assertion together with its evaluated outcome.
type AssertionResult struct {
	Assertion
	Passed  bool   `json:"passed"`
	Actual  any    `json:"actual"`
	Message string `json:"message,omitempty"`
}

// APITestCase is a single HTTP request with expectations.
type APITestCase struct {
	ID             string            `json:"id"`
	SuiteID        string            `json:"suiteId"`
	Name           string            `json:"name"`
	Description    null.String       `json:"description"`
	Method         string            `json:"method"`
	Endpoint       string            `json:"endpoint"`
	Headers        map[string]string `json:"headers"`
	QueryParams    map[string]string `json:"queryParams"`
	Body           null.String       `json:"body"`
	ExpectedStatus null.Int          `json:"expectedStatus"`
	Assertions     []Assertion       `json:"assertions"`
	TimeoutMS      int               `json:"timeout"`
	RetryCount     int               `json:"retryCount"`
	Enabled        bool              `json:"enabled"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// ExecutableCase is a test case joined with the suite fields needed to send it.
type ExecutableCase struct {
	APITestCase
	BaseURL      string            `json:"baseUrl"`
	SuiteHeaders map[string]string `json:"suiteHeaders"`
}

// ExecutionResult is the outcome of sending one test case.
type ExecutionResult struct {
	TestCaseID       string            `json:"testCaseId,omitempty"`
	Success          bool              `json:"success"`
	ResponseTime     int64             `json:"responseTime"`
	StatusCode       int               `json:"statusCode"`
	Response         any               `json:"response"`
	Headers          map[string]string `json:"headers,omitempty"`
	AssertionResults []AssertionResult `json:"assertionResults"`
	Error            string            `json:"error,omitempty"`
}

// SuiteExecution summarizes a sequential run over every enabled case of a suite.
type SuiteExecution struct {
	SuiteID string            `json:"suiteId"`
	Total   int               `json:"total"`
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Results []ExecutionResult `json:"results"`
}

// APIContract stores a published contract (OpenAPI, GraphQL, ...) for a suite.
type APIContract struct {
	ID           string          `json:"id"`
	SuiteID      string          `json:"suiteId"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	ContractType string          `json:"contractType"`
	ContractData json.RawMessage `json:"contractData"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// APIMock is a canned response served for a suite endpoint.
type APIMock struct {
	ID              string            `json:"id"`
	SuiteID         string            `json:"suiteId"`
	Name            string            `json:"name"`
	Endpoint        string            `json:"endpoint"`
	Method          string            `json:"method"`
	ResponseStatus  int               `json:"responseStatus"`
	ResponseHeaders map[string]string `json:"responseHeaders"`
	ResponseBody    null.String       `json:"responseBody"`
	ResponseDelayMS int               `json:"responseDelay"`
	Enabled         bool              `json:"enabled"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Benchmark is one timed execution of a test case.
type Benchmark struct {
	ID           string      `json:"id"`
	TestCaseID   string      `json:"testCaseId"`
	RunID        string      `json:"runId"`
	ResponseTime int64       `json:"responseTime"`
	StatusCode   int         `json:"statusCode"`
	Success      bool        `json:"success"`
	ErrorMsg     null.String `json:"errorMsg"`
	Timestamp    time.Time   `json:"timestamp"`
}

// BenchmarkStats aggregates the benchmarks of one test case.
type BenchmarkStats struct {
	AvgResponseTime float64 `json:"avgResponseTime"`
	MinResponseTime int64   `json:"minResponseTime"`
	MaxResponseTime int64   `json:"maxResponseTime"`
	SuccessRate     float64 `json:"successRate"`
	TotalRuns       int64   `json:"totalRuns"`
}

// AssertionSuggestion is a proposed assertion derived from an observed response.
type AssertionSuggestion struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Op       string `json:"op"`
	Expected string `json:"expected,omitempty"`
	Reason   string `json:"reason"`
}
