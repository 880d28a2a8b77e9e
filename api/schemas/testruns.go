// File: api/schemas/testruns.go
package schemas

import (
	"time"

	"gopkg.in/guregu/null.v3"
)

// RunStatus is the lifecycle state of a test run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunPassed    RunStatus = "passed"
	RunFailed    RunStatus = "failed"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further execution happens in this state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunPassed, RunFailed, RunError, RunCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	return s == RunQueued || s == RunRunning || s.IsTerminal()
}

// TestStep is one recorded action of a run.
type TestStep struct {
	Action   string `json:"action"`
	Status   string `json:"status"`
	Duration int64  `json:"duration"`
	Output   string `json:"output,omitempty"`
}

// TestRun records a single execution of a script.
type TestRun struct {
	ID                 string      `json:"id"`
	ScriptID           string      `json:"scriptId"`
	ScriptName         null.String `json:"scriptName"`
	UserID             string      `json:"userId"`
	Status             RunStatus   `json:"status"`
	Environment        string      `json:"environment"`
	Browser            string      `json:"browser"`
	Duration           null.Int    `json:"duration"`
	ErrorMsg           null.String `json:"errorMsg"`
	Steps              []TestStep  `json:"steps"`
	ExecutionReportURL null.String `json:"executionReportUrl"`
	TraceURL           null.String `json:"traceUrl"`
	VideoURL           null.String `json:"videoUrl"`
	ScreenshotURLs     []string    `json:"screenshotUrls"`
	StartedAt          time.Time   `json:"startedAt"`
	CompletedAt        null.Time   `json:"completedAt"`
}

// RunUpdate carries the fields a client may change on a run.
type RunUpdate struct {
	Status   *RunStatus `json:"status"`
	ErrorMsg *string    `json:"errorMsg"`
	Duration *int64     `json:"duration"`
	Steps    []TestStep `json:"steps"`
}

// RunReport is posted by an external reporter to record a completed run.
type RunReport struct {
	TestName       string    `json:"testName"`
	Status         RunStatus `json:"status"`
	Duration       *int64    `json:"duration"`
	ErrorMsg       *string   `json:"errorMsg"`
	Browser        *string   `json:"browser"`
	Environment    *string   `json:"environment"`
	TraceURL       *string   `json:"traceUrl"`
	VideoURL       *string   `json:"videoUrl"`
	ScreenshotURLs []string  `json:"screenshotUrls"`
}

// RunOutcome is what an executor reports back when a run finishes.
type RunOutcome struct {
	Status   RunStatus
	Duration time.Duration
	ErrorMsg string
	Steps    []TestStep
}
