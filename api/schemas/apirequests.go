// File: api/schemas/apirequests.go
package schemas

import (
	"encoding/json"
	"time"
)

// APIRequest is a saved HTTP request the user can replay from the request builder.
type APIRequest struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Name        string          `json:"name"`
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	Headers     json.RawMessage `json:"headers"`
	Body        json.RawMessage `json:"body"`
	Environment string          `json:"environment"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// APIRequestInput carries create and partial update fields for a saved request.
type APIRequestInput struct {
	Name        *string         `json:"name"`
	Method      *string         `json:"method"`
	URL         *string         `json:"url"`
	Headers     json.RawMessage `json:"headers"`
	Body        json.RawMessage `json:"body"`
	Environment *string         `json:"environment"`
}
