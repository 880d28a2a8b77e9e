// File: internal/workflow/pipeline.go
package workflow

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const (
	// InsightRunWindow is how many recent runs feed Insights.
	InsightRunWindow = 10
	// OverviewRunWindow is how many recent runs an Overview lists.
	OverviewRunWindow = 5

	slowRunMillis    = 30000
	stableSuccessPct = 80
	maxTopFailures   = 5
)

// RunMetrics summarizes a window of recent runs.
type RunMetrics struct {
	TotalRuns   int     `json:"totalRuns"`
	PassedRuns  int     `json:"passedRuns"`
	FailedRuns  int     `json:"failedRuns"`
	SuccessRate float64 `json:"successRate"`
	AvgDuration int64   `json:"avgDuration"`
	Reliability string  `json:"reliability"`
}

// FailureCount is one distinct error message and how often it occurred.
type FailureCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type FailureAnalysis struct {
	TopFailures       []FailureCount `json:"topFailures"`
	TotalUniqueErrors int            `json:"totalUniqueErrors"`
}

type Recommendation struct {
	Type       string `json:"type"`
	Priority   string `json:"priority"`
	Message    string `json:"message"`
	Actionable bool   `json:"actionable"`
}

// Insights is the run analysis for one script.
type Insights struct {
	ScriptID        string           `json:"scriptId"`
	ScriptName      string           `json:"scriptName"`
	WorkflowStatus  Status           `json:"workflowStatus"`
	Metrics         RunMetrics       `json:"metrics"`
	FailureAnalysis FailureAnalysis  `json:"failureAnalysis"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// BuildInsights analyzes runs, which are expected newest first.
func BuildInsights(sc *schemas.Script, runs []schemas.TestRun, now time.Time) Insights {
	metrics := measure(runs)
	failures := failureAnalysis(runs)

	recs := []Recommendation{}
	if metrics.SuccessRate < stableSuccessPct {
		recs = append(recs, Recommendation{
			Type:       "stability",
			Priority:   "high",
			Message:    "Success rate is below 80%. Consider adding more resilient locators or wait strategies.",
			Actionable: true,
		})
	}
	if metrics.AvgDuration > slowRunMillis {
		recs = append(recs, Recommendation{
			Type:       "performance",
			Priority:   "medium",
			Message:    "Average test duration exceeds 30 seconds. Review for optimization opportunities.",
			Actionable: true,
		})
	}
	if len(failures.TopFailures) > 0 {
		recs = append(recs, Recommendation{
			Type:       "error_handling",
			Priority:   "high",
			Message:    fmt.Sprintf("Most common failure: %q. Review error handling in script.", failures.TopFailures[0].Message),
			Actionable: true,
		})
	}

	return Insights{
		ScriptID:        sc.ID,
		ScriptName:      sc.Name,
		WorkflowStatus:  Status(sc.WorkflowStatus),
		Metrics:         metrics,
		FailureAnalysis: failures,
		Recommendations: recs,
		GeneratedAt:     now.UTC(),
	}
}

func measure(runs []schemas.TestRun) RunMetrics {
	m := RunMetrics{
		TotalRuns:  len(runs),
		PassedRuns: lo.CountBy(runs, func(r schemas.TestRun) bool { return r.Status == schemas.RunPassed }),
		FailedRuns: lo.CountBy(runs, func(r schemas.TestRun) bool { return r.Status == schemas.RunFailed }),
	}
	if m.TotalRuns > 0 {
		rate := float64(m.PassedRuns) / float64(m.TotalRuns) * 100
		m.SuccessRate = math.Round(rate*100) / 100
		total := lo.SumBy(runs, func(r schemas.TestRun) int64 { return r.Duration.Int64 })
		m.AvgDuration = int64(math.Round(float64(total) / float64(m.TotalRuns)))
	}
	m.Reliability = reliability(m.SuccessRate)
	return m
}

func reliability(rate float64) string {
	switch {
	case rate >= 95:
		return "excellent"
	case rate >= 80:
		return "good"
	case rate >= 60:
		return "fair"
	default:
		return "poor"
	}
}

// failureAnalysis ranks the error messages of failed runs by frequency. Ties
// keep the order in which a message was first seen.
func failureAnalysis(runs []schemas.TestRun) FailureAnalysis {
	counts := map[string]int{}
	var order []string
	for _, r := range runs {
		if r.Status != schemas.RunFailed || !r.ErrorMsg.Valid || r.ErrorMsg.String == "" {
			continue
		}
		if counts[r.ErrorMsg.String] == 0 {
			order = append(order, r.ErrorMsg.String)
		}
		counts[r.ErrorMsg.String]++
	}
	top := lo.Map(order, func(msg string, _ int) FailureCount { return FailureCount{Message: msg, Count: counts[msg]} })
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > maxTopFailures {
		top = top[:maxTopFailures]
	}
	return FailureAnalysis{TopFailures: top, TotalUniqueErrors: len(counts)}
}

// Stage progress values.
const (
	StagePending   = "pending"
	StageCurrent   = "current"
	StageCompleted = "completed"
	StageAvailable = "available"
)

// Stage is one step of the pipeline view.
type Stage struct {
	Stage       string         `json:"stage"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	CompletedAt *time.Time     `json:"completedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// RunActivity is the slice of a run shown in an overview.
type RunActivity struct {
	ID        string            `json:"id"`
	Status    schemas.RunStatus `json:"status"`
	Duration  *int64            `json:"duration"`
	StartedAt time.Time         `json:"startedAt"`
}

// Overview shows where a script is in the pipeline and what it ran lately.
type Overview struct {
	ScriptID       string        `json:"scriptId"`
	ScriptName     string        `json:"scriptName"`
	CurrentStatus  Status        `json:"currentStatus"`
	CurrentStage   string        `json:"currentStage"`
	Progress       Progress      `json:"progress"`
	Stages         []Stage       `json:"stages"`
	RecentActivity []RunActivity `json:"recentActivity"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastUpdated    time.Time     `json:"lastUpdated"`
}

var pipelineStages = []struct {
	status Status
	name   string
}{
	{Draft, "Draft"},
	{AIEnhanced, "AI Enhancement"},
	{TestDataReady, "Test Data Generation"},
	{HumanReview, "Human Validation"},
	{Finalized, "Finalized"},
}

// BuildOverview lays out the pipeline stages for a script. Archived scripts
// count every stage as completed.
func BuildOverview(sc *schemas.Script, runs []schemas.TestRun, testDataCount int64) Overview {
	current := Status(sc.WorkflowStatus)
	pos := lo.IndexOf(All, current)
	if pos < 0 {
		pos = 0
	}

	stages := make([]Stage, 0, len(pipelineStages)+1)
	for i, ps := range pipelineStages {
		st := Stage{Stage: string(ps.status), Name: ps.name}
		switch {
		case i < pos:
			st.Status = StageCompleted
		case i == pos:
			st.Status = StageCurrent
		default:
			st.Status = StagePending
		}
		switch {
		case i == 0:
			created := sc.CreatedAt
			st.CompletedAt = &created
		case i <= pos:
			updated := sc.UpdatedAt
			st.CompletedAt = &updated
		}
		switch ps.status {
		case TestDataReady:
			st.Metadata = map[string]any{"testDataCount": testDataCount}
		case Finalized:
			st.Metadata = map[string]any{"canRunInCI": current == Finalized, "recentRuns": len(runs)}
		}
		stages = append(stages, st)
	}
	stages = append(stages, Stage{
		Stage:  "insights",
		Name:   "AI Insights",
		Status: lo.Ternary(current == Finalized || current == Archived, StageAvailable, StagePending),
	})

	completed := lo.CountBy(stages, func(s Stage) bool { return s.Status == StageCompleted })
	currentStage := string(current)
	if st, ok := lo.Find(stages, func(s Stage) bool { return s.Status == StageCurrent }); ok {
		currentStage = st.Stage
	}

	return Overview{
		ScriptID:      sc.ID,
		ScriptName:    sc.Name,
		CurrentStatus: current,
		CurrentStage:  currentStage,
		Progress: Progress{
			Completed:  completed,
			Total:      len(stages),
			Percentage: int(math.Round(float64(completed) / float64(len(stages)) * 100)),
		},
		Stages: stages,
		RecentActivity: lo.Map(runs, func(r schemas.TestRun, _ int) RunActivity {
			return RunActivity{ID: r.ID, Status: r.Status, Duration: r.Duration.Ptr(), StartedAt: r.StartedAt}
		}),
		CreatedAt:   sc.CreatedAt,
		LastUpdated: sc.UpdatedAt,
	}
}
