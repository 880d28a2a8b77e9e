// File: api/schemas/projects.go
package schemas

import (
	"encoding/json"
	"time"

	"gopkg.in/guregu/null.v3"
)

// Project groups scripts under a single owner.
type Project struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description null.String `json:"description"`
	UserID      string      `json:"userId"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// ProjectInput carries create and partial update fields. Nil fields are left untouched on update.
type ProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Script is a stored Playwright source file plus its execution metadata.
type Script struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        null.String     `json:"description"`
	Language           string          `json:"language"`
	Code               string          `json:"code"`
	ProjectID          null.String     `json:"projectId"`
	ProjectName        null.String     `json:"projectName"`
	UserID             string          `json:"userId"`
	BrowserType        string          `json:"browserType"`
	Viewport           json.RawMessage `json:"viewport,omitempty"`
	TestIDAttribute    string          `json:"testIdAttribute"`
	SelfHealingEnabled bool            `json:"selfHealingEnabled"`
	WorkflowStatus     string          `json:"workflowStatus"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// ScriptInput carries create and partial update fields for a script.
type ScriptInput struct {
	Name               *string         `json:"name"`
	Description        *string         `json:"description"`
	Language           *string         `json:"language"`
	Code               *string         `json:"code"`
	ProjectID          *string         `json:"projectId"`
	BrowserType        *string         `json:"browserType"`
	Viewport           json.RawMessage `json:"viewport"`
	TestIDAttribute    *string         `json:"testIdAttribute"`
	SelfHealingEnabled *bool           `json:"selfHealingEnabled"`
}

// ScriptSummary is the projection used by workflow listings.
type ScriptSummary struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    null.String `json:"description"`
	Language       string      `json:"language"`
	WorkflowStatus string      `json:"workflowStatus"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
