// File: internal/enhance/types.go
package enhance

import (
	"errors"
	"fmt"
	"strings"
)

// Category tags the kind of improvement a suggestion proposes.
type Category string

const (
	CategorySelector         Category = "selector"
	CategoryWait             Category = "wait"
	CategoryAssertion        Category = "assertion"
	CategoryPageObject       Category = "page-object"
	CategoryParameterization Category = "parameterization"
	CategoryErrorHandling    Category = "error-handling"
	CategoryLogging          Category = "logging"
	CategoryRetry            Category = "retry"
	CategoryBestPractice     Category = "best-practice"
)

// AllCategories lists every category in the default evaluation priority.
var AllCategories = []Category{
	CategorySelector,
	CategoryWait,
	CategoryAssertion,
	CategoryPageObject,
	CategoryParameterization,
	CategoryErrorHandling,
	CategoryLogging,
	CategoryRetry,
	CategoryBestPractice,
}

// ErrSuggestionIndex is returned by Apply for an accepted index outside the suggestion list.
var ErrSuggestionIndex = errors.New("suggestion index out of range")

// ParseCategories converts raw tags into categories, rejecting unknown ones.
// A nil input stays nil so callers can keep the "all categories" meaning.
func ParseCategories(raw []string) ([]Category, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]Category, 0, len(raw))
	for _, r := range raw {
		c := Category(strings.TrimSpace(r))
		if !c.Valid() {
			return nil, fmt.Errorf("unknown enhancement category '%s'", r)
		}
		out = append(out, c)
	}
	return out, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range AllCategories {
		if c == k {
			return true
		}
	}
	return false
}

// Suggestion is a proposed rewrite of a single source line. SuggestedCode may
// span several lines; it still replaces exactly one original line.
type Suggestion struct {
	LineNumber    int      `json:"lineNumber"`
	OriginalCode  string   `json:"originalCode"`
	SuggestedCode string   `json:"suggestedCode"`
	Reason        string   `json:"reason"`
	Confidence    float64  `json:"confidence"`
	Category      Category `json:"category"`
	RuleID        string   `json:"ruleId"`
}

// Summary aggregates the suggestions of one run.
type Summary struct {
	TotalSuggestions     int              `json:"totalSuggestions"`
	ByCategory           map[Category]int `json:"byCategory"`
	EstimatedImprovement int              `json:"estimatedImprovement"`
}

// DiffType marks how a line appears in a diff pane.
type DiffType string

const (
	DiffUnchanged DiffType = "unchanged"
	DiffRemoved   DiffType = "removed"
	DiffAdded     DiffType = "added"
)

// DiffLine is one entry of a diff pane.
type DiffLine struct {
	Line    int      `json:"line"`
	Type    DiffType `json:"type"`
	Content string   `json:"content"`
}

// Diff holds two index aligned panes with one entry per original line.
type Diff struct {
	Original []DiffLine `json:"original"`
	Enhanced []DiffLine `json:"enhanced"`
}

// Result is everything a single Generate call produces.
type Result struct {
	OriginalCode string       `json:"originalCode"`
	EnhancedCode string       `json:"enhancedCode"`
	Suggestions  []Suggestion `json:"suggestions"`
	Diff         Diff         `json:"diff"`
	Summary      Summary      `json:"summary"`
}

// Options selects which categories run and in which order.
type Options struct {
	// Categories restricts evaluation. Nil enables every category; an empty
	// non-nil slice enables none.
	Categories []Category
	// Priority overrides the category evaluation order. Categories missing
	// from it keep their default relative order after the listed ones.
	// The page-object category is not ranked: its repeated selector check
	// runs after every other rule, on lines no other rule has claimed.
	Priority []Category
}

func (o Options) enabled() map[Category]bool {
	out := make(map[Category]bool, len(AllCategories))
	if o.Categories == nil {
		for _, c := range AllCategories {
			out[c] = true
		}
		return out
	}
	for _, c := range o.Categories {
		out[c] = true
	}
	return out
}

// order returns the evaluation rank of every category.
func (o Options) order() map[Category]int {
	rank := make(map[Category]int, len(AllCategories))
	for _, c := range o.Priority {
		if _, seen := rank[c]; !seen && c.Valid() {
			rank[c] = len(rank)
		}
	}
	for _, c := range AllCategories {
		if _, seen := rank[c]; !seen {
			rank[c] = len(rank)
		}
	}
	return rank
}
