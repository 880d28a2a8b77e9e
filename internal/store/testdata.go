package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const (
	DefaultDataEnvironment = "dev"
	DefaultDataType        = "user"
)

const (
	testSuiteColumns = `id, name, description, "userId", "createdAt", "updatedAt"`
	testDataColumns  = `id, "suiteId", name, environment, type, data, "userId", "createdAt", "updatedAt"`
)

const (
	sqlListTestSuites = `
        SELECT ` + testSuiteColumns + ` FROM "TestSuite"
        WHERE "userId" = $1
        ORDER BY "createdAt" DESC;`
	sqlSelectTestSuite = `SELECT ` + testSuiteColumns + ` FROM "TestSuite" WHERE id = $1 AND "userId" = $2;`
	sqlInsertTestSuite = `
        INSERT INTO "TestSuite" (id, name, description, "userId", "createdAt", "updatedAt")
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        RETURNING ` + testSuiteColumns + `;`
	sqlUpdateTestSuite = `
        UPDATE "TestSuite" SET
            name = COALESCE($3, name),
            description = COALESCE($4, description),
            "updatedAt" = NOW()
        WHERE id = $1 AND "userId" = $2
        RETURNING ` + testSuiteColumns + `;`
	sqlDeleteTestSuite = `DELETE FROM "TestSuite" WHERE id = $1 AND "userId" = $2;`

	sqlListTestData = `
        SELECT ` + testDataColumns + ` FROM "TestData"
        WHERE "userId" = $1
          AND ($2 = '' OR "suiteId" = $2)
          AND ($3 = '' OR environment = $3)
          AND ($4 = '' OR type = $4)
        ORDER BY "createdAt" DESC;`
	sqlSelectTestData = `SELECT ` + testDataColumns + ` FROM "TestData" WHERE id = $1 AND "userId" = $2;`
	sqlInsertTestData = `
        INSERT INTO "TestData" (id, "suiteId", name, environment, type, data, "userId", "createdAt", "updatedAt")
        SELECT $1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
        WHERE EXISTS (SELECT 1 FROM "TestSuite" WHERE id = $2 AND "userId" = $7)
        RETURNING ` + testDataColumns + `;`
	sqlUpdateTestData = `
        UPDATE "TestData" SET
            "suiteId" = COALESCE($3, "suiteId"),
            name = COALESCE($4, name),
            environment = COALESCE($5, environment),
            type = COALESCE($6, type),
            data = COALESCE($7::jsonb, data),
            "updatedAt" = NOW()
        WHERE id = $1 AND "userId" = $2
        RETURNING ` + testDataColumns + `;`
	sqlDeleteTestData = `DELETE FROM "TestData" WHERE id = $1 AND "userId" = $2;`
	sqlLockTestSuite  = `SELECT id FROM "TestSuite" WHERE id = $1 AND "userId" = $2 FOR UPDATE;`
)

const sqlCountScriptTestData = `
        SELECT COUNT(*) FROM "TestData" td
        JOIN "TestSuite" ts ON ts.id = td."suiteId"
        WHERE ts."userId" = $1 AND strpos(ts.name, $2) > 0;`

var testDataCopyColumns = []string{"id", "suiteId", "name", "environment", "type", "data", "userId", "createdAt", "updatedAt"}

func scanTestSuite(row rowScanner) (*schemas.TestSuite, error) {
	var ts schemas.TestSuite
	if err := row.Scan(&ts.ID, &ts.Name, &ts.Description, &ts.UserID, &ts.CreatedAt, &ts.UpdatedAt); err != nil {
		return nil, err
	}
	return &ts, nil
}

func scanTestData(row rowScanner) (*schemas.TestData, error) {
	var td schemas.TestData
	var data []byte
	if err := row.Scan(&td.ID, &td.SuiteID, &td.Name, &td.Environment, &td.Type, &data, &td.UserID, &td.CreatedAt, &td.UpdatedAt); err != nil {
		return nil, err
	}
	td.Data = data
	return &td, nil
}

func (s *Store) ListTestSuites(ctx context.Context, userID string) ([]schemas.TestSuite, error) {
	rows, err := s.pool.Query(ctx, sqlListTestSuites, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test suites: %w", err)
	}
	defer rows.Close()

	out := []schemas.TestSuite{}
	for rows.Next() {
		ts, err := scanTestSuite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test suite row: %w", err)
		}
		out = append(out, *ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *Store) GetTestSuite(ctx context.Context, id, userID string) (*schemas.TestSuite, error) {
	ts, err := scanTestSuite(s.pool.QueryRow(ctx, sqlSelectTestSuite, id, userID))
	if err != nil {
		return nil, notFound(err, "query test suite")
	}
	return ts, nil
}

func (s *Store) CreateTestSuite(ctx context.Context, userID, name string, description *string) (*schemas.TestSuite, error) {
	ts, err := scanTestSuite(s.pool.QueryRow(ctx, sqlInsertTestSuite, uuid.NewString(), name, description, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert test suite: %w", err)
	}
	return ts, nil
}

func (s *Store) UpdateTestSuite(ctx context.Context, id, userID string, name, description *string) (*schemas.TestSuite, error) {
	ts, err := scanTestSuite(s.pool.QueryRow(ctx, sqlUpdateTestSuite, id, userID, name, description))
	if err != nil {
		return nil, notFound(err, "update test suite")
	}
	return ts, nil
}

func (s *Store) DeleteTestSuite(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteTestSuite, id, userID)
	return affected(tag, err, "delete test suite")
}

// ListTestData returns the caller's data sets narrowed by the non-empty filter fields.
func (s *Store) ListTestData(ctx context.Context, userID string, f schemas.TestDataFilter) ([]schemas.TestData, error) {
	rows, err := s.pool.Query(ctx, sqlListTestData, userID, f.SuiteID, f.Environment, f.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to query test data: %w", err)
	}
	defer rows.Close()

	out := []schemas.TestData{}
	for rows.Next() {
		td, err := scanTestData(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test data row: %w", err)
		}
		out = append(out, *td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *Store) GetTestData(ctx context.Context, id, userID string) (*schemas.TestData, error) {
	td, err := scanTestData(s.pool.QueryRow(ctx, sqlSelectTestData, id, userID))
	if err != nil {
		return nil, notFound(err, "query test data")
	}
	return td, nil
}

// CreateTestData inserts a data set into a suite owned by userID. A missing or
// unowned suite returns ErrNotFound.
func (s *Store) CreateTestData(ctx context.Context, userID string, in schemas.TestDataInput) (*schemas.TestData, error) {
	data, err := marshalJSON(in.Data, "{}")
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, sqlInsertTestData, uuid.NewString(), deref(in.SuiteID, ""), deref(in.Name, ""),
		deref(in.Environment, DefaultDataEnvironment), deref(in.Type, DefaultDataType), string(data), userID)
	td, err := scanTestData(row)
	if err != nil {
		return nil, notFound(err, "insert test data")
	}
	return td, nil
}

func (s *Store) UpdateTestData(ctx context.Context, id, userID string, in schemas.TestDataInput) (*schemas.TestData, error) {
	row := s.pool.QueryRow(ctx, sqlUpdateTestData, id, userID, in.SuiteID, in.Name, in.Environment, in.Type, nilIfEmpty(in.Data))
	td, err := scanTestData(row)
	if err != nil {
		return nil, notFound(err, "update test data")
	}
	return td, nil
}

func (s *Store) DeleteTestData(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteTestData, id, userID)
	return affected(tag, err, "delete test data")
}

// CountScriptTestData counts the data sets in the caller's suites whose name
// contains scriptName, which is how generated suites are tied to a script.
func (s *Store) CountScriptTestData(ctx context.Context, userID, scriptName string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, sqlCountScriptTestData, userID, scriptName).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count script test data: %w", err)
	}
	return n, nil
}

// SaveGeneratedData bulk inserts generated records into an owned suite within a
// single transaction. Record i is named "<namePrefix> #<i+1>".
func (s *Store) SaveGeneratedData(ctx context.Context, userID, suiteID, namePrefix, environment, dataType string, records []json.RawMessage) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	var locked string
	if err := tx.QueryRow(ctx, sqlLockTestSuite, suiteID, userID).Scan(&locked); err != nil {
		return 0, notFound(err, "lock test suite")
	}

	if environment == "" {
		environment = DefaultDataEnvironment
	}
	if dataType == "" {
		dataType = DefaultDataType
	}
	now := time.Now().UTC()
	rows := make([][]interface{}, len(records))
	for i, rec := range records {
		rows[i] = []interface{}{
			uuid.NewString(), suiteID, fmt.Sprintf("%s #%d", namePrefix, i+1),
			environment, dataType, string(rec), userID, now, now,
		}
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"TestData"}, testDataCopyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy test data: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}
