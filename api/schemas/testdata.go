// File: api/schemas/testdata.go
package schemas

import (
	"encoding/json"
	"time"

	"gopkg.in/guregu/null.v3"
)

// TestSuite is a named group of test data sets.
type TestSuite struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description null.String `json:"description"`
	UserID      string      `json:"userId"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// TestData is a JSON blob used to parameterize test execution.
type TestData struct {
	ID          string          `json:"id"`
	SuiteID     string          `json:"suiteId"`
	Name        string          `json:"name"`
	Environment string          `json:"environment"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	UserID      string          `json:"userId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TestDataInput carries create and partial update fields for test data.
type TestDataInput struct {
	SuiteID     *string         `json:"suiteId"`
	Name        *string         `json:"name"`
	Environment *string         `json:"environment"`
	Type        *string         `json:"type"`
	Data        json.RawMessage `json:"data"`
}

// TestDataFilter narrows a test data listing. Empty fields do not filter.
type TestDataFilter struct {
	SuiteID     string
	Environment string
	Type        string
}
