package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

var (
	testSuiteCols = []string{"id", "name", "description", "userId", "createdAt", "updatedAt"}
	testDataCols  = []string{"id", "suiteId", "name", "environment", "type", "data", "userId", "createdAt", "updatedAt"}
)

func TestTestSuites(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("should list suites newest first", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListTestSuites)).
			WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows(testSuiteCols).
				AddRow("ts2", "checkout", null.StringFrom("cart flows"), "user-1", now, now).
				AddRow("ts1", "login", nil, "user-1", now.Add(-time.Hour), now))

		out, err := s.ListTestSuites(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "ts2", out[0].ID)
		assert.Equal(t, "cart flows", out[0].Description.String)
		assert.False(t, out[1].Description.Valid)
	})

	t.Run("should return an empty list rather than nil", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListTestSuites)).
			WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows(testSuiteCols))

		out, err := s.ListTestSuites(ctx, "user-1")
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("should wrap query failures", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListTestSuites)).
			WithArgs("user-1").
			WillReturnError(errors.New("connection refused"))

		_, err := s.ListTestSuites(ctx, "user-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query test suites")
	})

	t.Run("should map a foreign suite to not found", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectTestSuite)).
			WithArgs("ts1", "intruder").
			WillReturnRows(pgxmock.NewRows(testSuiteCols))

		_, err := s.GetTestSuite(ctx, "ts1", "intruder")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should create a suite", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlInsertTestSuite)).
			WithArgs(pgxmock.AnyArg(), "login", nilPointer, "user-1").
			WillReturnRows(pgxmock.NewRows(testSuiteCols).AddRow("ts1", "login", nil, "user-1", now, now))

		ts, err := s.CreateTestSuite(ctx, "user-1", "login", nil)
		require.NoError(t, err)
		assert.Equal(t, "ts1", ts.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should update only the provided fields", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlUpdateTestSuite)).
			WithArgs("ts1", "user-1", nilPointer, strPtr("smoke")).
			WillReturnRows(pgxmock.NewRows(testSuiteCols).
				AddRow("ts1", "login", null.StringFrom("smoke"), "user-1", now, now))

		desc := "smoke"
		ts, err := s.UpdateTestSuite(ctx, "ts1", "user-1", nil, &desc)
		require.NoError(t, err)
		assert.Equal(t, "login", ts.Name)
		assert.Equal(t, "smoke", ts.Description.String)
	})

	t.Run("should report a delete that touched nothing as not found", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteTestSuite)).
			WithArgs("ts1", "intruder").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, s.DeleteTestSuite(ctx, "ts1", "intruder"), ErrNotFound)
	})

	t.Run("should delete an owned suite", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteTestSuite)).
			WithArgs("ts1", "user-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, s.DeleteTestSuite(ctx, "ts1", "user-1"))
	})
}

func TestTestDataMutations(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("should load one data set", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectTestData)).
			WithArgs("d1", "user-1").
			WillReturnRows(pgxmock.NewRows(testDataCols).AddRow(
				"d1", "ts1", "alice", "staging", "user", []byte(`{"email":"a@b.test"}`), "user-1", now, now,
			))

		td, err := s.GetTestData(ctx, "d1", "user-1")
		require.NoError(t, err)
		assert.Equal(t, "staging", td.Environment)
		assert.JSONEq(t, `{"email":"a@b.test"}`, string(td.Data))
	})

	t.Run("should map a missing data set to not found", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectTestData)).
			WithArgs("d1", "intruder").
			WillReturnRows(pgxmock.NewRows(testDataCols))

		_, err := s.GetTestData(ctx, "d1", "intruder")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should keep stored data when none is sent", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlUpdateTestData)).
			WithArgs("d1", "user-1", nilPointer, strPtr("bob"), nilPointer, nilPointer, nil).
			WillReturnRows(pgxmock.NewRows(testDataCols).AddRow(
				"d1", "ts1", "bob", "dev", "user", []byte(`{"a":1}`), "user-1", now, now,
			))

		name := "bob"
		td, err := s.UpdateTestData(ctx, "d1", "user-1", schemas.TestDataInput{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "bob", td.Name)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should send replacement data as a json string", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlUpdateTestData)).
			WithArgs("d1", "user-1", nilPointer, nilPointer, nilPointer, nilPointer, `{"b":2}`).
			WillReturnRows(pgxmock.NewRows(testDataCols).AddRow(
				"d1", "ts1", "alice", "dev", "user", []byte(`{"b":2}`), "user-1", now, now,
			))

		td, err := s.UpdateTestData(ctx, "d1", "user-1", schemas.TestDataInput{Data: json.RawMessage(`{"b":2}`)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"b":2}`, string(td.Data))
	})

	t.Run("should delete by owner only", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteTestData)).
			WithArgs("d1", "intruder").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteTestData)).
			WithArgs("d1", "user-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.ErrorIs(t, s.DeleteTestData(ctx, "d1", "intruder"), ErrNotFound)
		assert.NoError(t, s.DeleteTestData(ctx, "d1", "user-1"))
	})
}

func TestCountScriptTestData(t *testing.T) {
	ctx := context.Background()

	t.Run("should count data in suites named after the script", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlCountScriptTestData)).
			WithArgs("user-1", "Login").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

		n, err := s.CountScriptTestData(ctx, "user-1", "Login")
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap query failures", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlCountScriptTestData)).
			WithArgs("user-1", "Login").
			WillReturnError(errors.New("connection refused"))

		_, err := s.CountScriptTestData(ctx, "user-1", "Login")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to count script test data")
	})
}
