// File: internal/workflow/workflow.go
package workflow

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

// Status is a script's position in the review workflow.
type Status string

const (
	Draft         Status = "draft"
	AIEnhanced    Status = "ai_enhanced"
	TestDataReady Status = "testdata_ready"
	HumanReview   Status = "human_review"
	Finalized     Status = "finalized"
	Archived      Status = "archived"
)

// All lists every status in lifecycle order.
var All = []Status{Draft, AIEnhanced, TestDataReady, HumanReview, Finalized, Archived}

var (
	// ErrTransitionNotAllowed is returned when the state table or the caller's
	// role forbids a transition.
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	// ErrUnknownStatus is returned by Parse for a value outside All.
	ErrUnknownStatus = errors.New("unknown workflow status")
)

// TransitionError carries the endpoints of a rejected transition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Transition from %s to %s is not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrTransitionNotAllowed }

// State describes what may happen to a script in one status.
type State struct {
	AllowedTransitions    []Status `json:"allowedTransitions"`
	AllowedActions        []string `json:"allowedActions"`
	CanRunInCI            bool     `json:"canRunInCI"`
	RequiresHumanApproval bool     `json:"requiresHumanApproval"`
	Description           string   `json:"description"`
}

// Transition is the metadata of one edge of the state graph.
type Transition struct {
	From         Status      `json:"from"`
	To           Status      `json:"to"`
	Action       string      `json:"action"`
	Description  string      `json:"description"`
	RequiredRole schemas.Role `json:"requiredRole,omitempty"`
}

var states = map[Status]State{
	Draft: {
		AllowedTransitions: []Status{AIEnhanced, HumanReview, Finalized},
		AllowedActions:     []string{"run-ai", "edit", "delete", "manual-review"},
		Description:        "Initial state after script creation",
	},
	AIEnhanced: {
		AllowedTransitions: []Status{TestDataReady, HumanReview, Draft},
		AllowedActions:     []string{"generate-testdata", "re-run-ai", "manual-review", "edit"},
		Description:        "AI enhancement completed, awaiting test data generation",
	},
	TestDataReady: {
		AllowedTransitions: []Status{HumanReview, AIEnhanced},
		AllowedActions:     []string{"submit-for-review", "re-generate-testdata", "re-run-ai", "edit"},
		Description:        "Test data generated, ready for human review",
	},
	HumanReview: {
		AllowedTransitions:    []Status{Finalized, TestDataReady, AIEnhanced, Draft},
		AllowedActions:        []string{"finalize", "approve", "reject", "request-changes", "edit"},
		RequiresHumanApproval: true,
		Description:           "Awaiting human validation and approval",
	},
	Finalized: {
		AllowedTransitions: []Status{Archived, HumanReview},
		AllowedActions:     []string{"generate-insights", "run-in-ci", "view-insights", "archive", "reopen"},
		CanRunInCI:         true,
		Description:        "Human approved and ready for CI/production execution",
	},
	Archived: {
		AllowedTransitions: []Status{Draft},
		AllowedActions:     []string{"restore", "delete"},
		Description:        "Archived/deprecated, not active",
	},
}

var transitions = []Transition{
	{Draft, AIEnhanced, "run-ai", "Run AI enhancement on raw script", ""},
	{Draft, HumanReview, "manual-review", "Skip AI, go directly to human review", ""},
	{Draft, Finalized, "quick-finalize", "Admin bypass (emergency)", schemas.RoleAdmin},
	{AIEnhanced, TestDataReady, "generate-testdata", "Generate boundary/equivalence/security test data", ""},
	{AIEnhanced, HumanReview, "manual-review", "Skip test data, go to review", ""},
	{AIEnhanced, Draft, "reject-ai", "Reject AI suggestions, revert to draft", ""},
	{TestDataReady, HumanReview, "submit-for-review", "Submit for human validation", ""},
	{TestDataReady, AIEnhanced, "re-run-ai", "Re-run AI enhancement", ""},
	{HumanReview, Finalized, "approve", "Human approves script and test data", ""},
	{HumanReview, TestDataReady, "request-testdata-changes", "Request test data regeneration", ""},
	{HumanReview, AIEnhanced, "request-ai-changes", "Request AI re-enhancement", ""},
	{HumanReview, Draft, "reject", "Reject and start over", ""},
	{Finalized, Archived, "archive", "Archive finalized script", ""},
	{Finalized, HumanReview, "reopen", "Reopen for changes (creates new version)", ""},
	{Archived, Draft, "restore", "Restore archived script as draft", ""},
}

// recommended is the happy path through the workflow.
var recommended = map[Status]Status{
	Draft:         AIEnhanced,
	AIEnhanced:    TestDataReady,
	TestDataReady: HumanReview,
	HumanReview:   Finalized,
	Finalized:     Archived,
	Archived:      Draft,
}

// Parse validates a raw status string.
func Parse(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := states[s]; !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := states[s]
	return ok
}

// StateOf returns the state definition for s.
func StateOf(s Status) (State, bool) {
	st, ok := states[s]
	return st, ok
}

// TransitionMetadata returns the edge from -> to, if the graph has one.
func TransitionMetadata(from, to Status) (Transition, bool) {
	return lo.Find(transitions, func(t Transition) bool { return t.From == from && t.To == to })
}

// IsTransitionAllowed reports whether a user with role may move a script from
// one status to another. Admins satisfy every role requirement.
func IsTransitionAllowed(from, to Status, role schemas.Role) bool {
	st, ok := states[from]
	if !ok || !lo.Contains(st.AllowedTransitions, to) {
		return false
	}
	t, ok := TransitionMetadata(from, to)
	if ok && t.RequiredRole != "" {
		return role == t.RequiredRole || role == schemas.RoleAdmin
	}
	return true
}

// CheckTransition is IsTransitionAllowed returning a *TransitionError.
func CheckTransition(from, to Status, role schemas.Role) error {
	if !IsTransitionAllowed(from, to, role) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// AllowedActions returns the actions offered in s.
func AllowedActions(s Status) []string {
	return append([]string(nil), states[s].AllowedActions...)
}

// CanRunInCI reports whether scripts in s may be executed by CI.
func CanRunInCI(s Status) bool { return states[s].CanRunInCI }

// RequiresHumanApproval reports whether s waits on a reviewer.
func RequiresHumanApproval(s Status) bool { return states[s].RequiresHumanApproval }

// RecommendedNextStates returns the next step on the happy path, or nothing
// for an unknown status.
func RecommendedNextStates(s Status) []Status {
	next, ok := recommended[s]
	if !ok {
		return []Status{}
	}
	return []Status{next}
}

// Stats is the per-user workflow overview.
type Stats struct {
	ByStatus      map[Status]int64 `json:"byStatus"`
	Total         int64            `json:"total"`
	ReadyForCI    int64            `json:"readyForCI"`
	PendingReview int64            `json:"pendingReview"`
	InProgress    int64            `json:"inProgress"`
}

// BuildStats folds raw per-status counts into Stats. Every status key is
// present; counts for unknown statuses contribute only to Total.
func BuildStats(counts map[string]int64) Stats {
	by := lo.SliceToMap(All, func(s Status) (Status, int64) { return s, counts[string(s)] })
	return Stats{
		ByStatus:      by,
		Total:         lo.Sum(lo.Values(counts)),
		ReadyForCI:    by[Finalized],
		PendingReview: by[HumanReview],
		InProgress:    by[Draft] + by[AIEnhanced] + by[TestDataReady],
	}
}
