package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const (
	apiSuiteColumns = `id, user_id, name, description, base_url, headers, auth_config, created_at, updated_at`
	apiCaseColumns  = `c.id, c.suite_id, c.name, c.description, c.method, c.endpoint, c.headers, c.query_params,
               c.body, c.expected_status, c.assertions, c.timeout_ms, c.retry_count, c.enabled,
               c.created_at, c.updated_at`
	apiMockColumns = `m.id, m.suite_id, m.name, m.endpoint, m.method, m.response_status, m.response_headers,
               m.response_body, m.response_delay_ms, m.enabled, m.created_at`
	benchmarkColumns = `b.id, b.test_case_id, b.run_id, b.response_time_ms, b.status_code, b.success, b.error_msg, b.timestamp`

	DefaultAPITimeoutMS = 5000
)

const (
	sqlListAPISuites = `
        SELECT ` + apiSuiteColumns + ` FROM api_test_suites
        WHERE user_id = $1
        ORDER BY created_at DESC;`
	sqlSelectAPISuite = `SELECT ` + apiSuiteColumns + ` FROM api_test_suites WHERE id = $1 AND user_id = $2;`
	sqlInsertAPISuite = `
        INSERT INTO api_test_suites (id, user_id, name, description, base_url, headers, auth_config, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        RETURNING ` + apiSuiteColumns + `;`
	sqlUpdateAPISuite = `
        UPDATE api_test_suites SET
            name = COALESCE($3, name),
            description = COALESCE($4, description),
            base_url = COALESCE($5, base_url),
            headers = COALESCE($6::jsonb, headers),
            auth_config = COALESCE($7::jsonb, auth_config),
            updated_at = NOW()
        WHERE id = $1 AND user_id = $2
        RETURNING ` + apiSuiteColumns + `;`
	sqlDeleteAPISuite = `DELETE FROM api_test_suites WHERE id = $1 AND user_id = $2;`

	sqlInsertAPICase = `
        WITH c AS (
            INSERT INTO api_test_cases (id, suite_id, name, description, method, endpoint, headers, query_params,
                body, expected_status, assertions, timeout_ms, retry_count, enabled, created_at, updated_at)
            SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW()
            WHERE EXISTS (SELECT 1 FROM api_test_suites WHERE id = $2 AND user_id = $15)
            RETURNING *
        )
        SELECT ` + apiCaseColumns + ` FROM c;`
	sqlListAPICases = `
        SELECT ` + apiCaseColumns + `
        FROM api_test_cases c JOIN api_test_suites s ON s.id = c.suite_id
        WHERE c.suite_id = $1 AND s.user_id = $2
        ORDER BY c.created_at ASC;`
	sqlSelectExecutableCase = `
        SELECT ` + apiCaseColumns + `, COALESCE(s.base_url, ''), s.headers
        FROM api_test_cases c JOIN api_test_suites s ON s.id = c.suite_id
        WHERE c.id = $1 AND s.user_id = $2;`
	sqlListEnabledCases = `
        SELECT ` + apiCaseColumns + `, COALESCE(s.base_url, ''), s.headers
        FROM api_test_cases c JOIN api_test_suites s ON s.id = c.suite_id
        WHERE c.suite_id = $1 AND s.user_id = $2 AND c.enabled
        ORDER BY c.created_at ASC;`

	sqlInsertContract = `
        INSERT INTO api_contracts (id, suite_id, name, version, contract_type, contract_data, created_at)
        SELECT $1, $2, $3, $4, $5, $6, NOW()
        WHERE EXISTS (SELECT 1 FROM api_test_suites WHERE id = $2 AND user_id = $7)
        RETURNING id, suite_id, name, version, contract_type, contract_data, created_at;`
	sqlListContracts = `
        SELECT k.id, k.suite_id, k.name, k.version, k.contract_type, k.contract_data, k.created_at
        FROM api_contracts k JOIN api_test_suites s ON s.id = k.suite_id
        WHERE k.suite_id = $1 AND s.user_id = $2
        ORDER BY k.created_at DESC;`

	sqlInsertMock = `
        WITH m AS (
            INSERT INTO api_mocks (id, suite_id, name, endpoint, method, response_status, response_headers,
                response_body, response_delay_ms, enabled, created_at)
            SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
            WHERE EXISTS (SELECT 1 FROM api_test_suites WHERE id = $2 AND user_id = $11)
            RETURNING *
        )
        SELECT ` + apiMockColumns + ` FROM m;`
	sqlListMocks = `
        SELECT ` + apiMockColumns + `
        FROM api_mocks m JOIN api_test_suites s ON s.id = m.suite_id
        WHERE m.suite_id = $1 AND s.user_id = $2
        ORDER BY m.created_at DESC;`
	sqlFindMock = `
        SELECT ` + apiMockColumns + `
        FROM api_mocks m
        WHERE m.suite_id = $1 AND m.method = $2 AND m.endpoint = $3 AND m.enabled
        ORDER BY m.created_at DESC
        LIMIT 1;`

	sqlInsertBenchmark = `
        INSERT INTO api_performance_benchmarks (id, test_case_id, run_id, response_time_ms, status_code, success, error_msg, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW());`
	sqlListBenchmarks = `
        SELECT ` + benchmarkColumns + `
        FROM api_performance_benchmarks b
        JOIN api_test_cases c ON c.id = b.test_case_id
        JOIN api_test_suites s ON s.id = c.suite_id
        WHERE b.test_case_id = $1 AND s.user_id = $2
        ORDER BY b.timestamp DESC
        LIMIT $3;`
	sqlBenchmarkStats = `
        SELECT COALESCE(AVG(b.response_time_ms), 0)::float8,
               COALESCE(MIN(b.response_time_ms), 0)::bigint,
               COALESCE(MAX(b.response_time_ms), 0)::bigint,
               COALESCE(AVG(CASE WHEN b.success THEN 1.0 ELSE 0.0 END) * 100, 0)::float8,
               COUNT(b.id)::bigint
        FROM api_performance_benchmarks b
        JOIN api_test_cases c ON c.id = b.test_case_id
        JOIN api_test_suites s ON s.id = c.suite_id
        WHERE b.test_case_id = $1 AND s.user_id = $2;`
)

func scanAPISuite(row rowScanner) (*schemas.APITestSuite, error) {
	var su schemas.APITestSuite
	var headers, auth []byte
	if err := row.Scan(&su.ID, &su.UserID, &su.Name, &su.Description, &su.BaseURL, &headers, &auth, &su.CreatedAt, &su.UpdatedAt); err != nil {
		return nil, err
	}
	su.Headers = map[string]string{}
	if err := unmarshalJSON(headers, &su.Headers); err != nil {
		return nil, err
	}
	if len(auth) > 0 {
		su.AuthConfig = auth
	}
	return &su, nil
}

// ListAPISuites returns the caller's API test suites, newest first.
func (s *Store) ListAPISuites(ctx context.Context, userID string) ([]schemas.APITestSuite, error) {
	rows, err := s.pool.Query(ctx, sqlListAPISuites, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api test suites: %w", err)
	}
	defer rows.Close()

	suites := []schemas.APITestSuite{}
	for rows.Next() {
		su, err := scanAPISuite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api test suite row: %w", err)
		}
		suites = append(suites, *su)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return suites, nil
}

func (s *Store) GetAPISuite(ctx context.Context, id, userID string) (*schemas.APITestSuite, error) {
	su, err := scanAPISuite(s.pool.QueryRow(ctx, sqlSelectAPISuite, id, userID))
	if err != nil {
		return nil, notFound(err, "query api test suite")
	}
	return su, nil
}

func (s *Store) CreateAPISuite(ctx context.Context, userID string, in schemas.APITestSuiteInput) (*schemas.APITestSuite, error) {
	headers, err := marshalJSON(in.Headers, "{}")
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, sqlInsertAPISuite, uuid.NewString(), userID, deref(in.Name, ""),
		in.Description, in.BaseURL, string(headers), nilIfEmpty(in.AuthConfig))
	su, err := scanAPISuite(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert api test suite: %w", err)
	}
	return su, nil
}

func (s *Store) UpdateAPISuite(ctx context.Context, id, userID string, in schemas.APITestSuiteInput) (*schemas.APITestSuite, error) {
	var headers any
	if in.Headers != nil {
		b, err := marshalJSON(in.Headers, "{}")
		if err != nil {
			return nil, err
		}
		headers = string(b)
	}
	row := s.pool.QueryRow(ctx, sqlUpdateAPISuite, id, userID, in.Name, in.Description, in.BaseURL, headers, nilIfEmpty(in.AuthConfig))
	su, err := scanAPISuite(row)
	if err != nil {
		return nil, notFound(err, "update api test suite")
	}
	return su, nil
}

func (s *Store) DeleteAPISuite(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteAPISuite, id, userID)
	return affected(tag, err, "delete api test suite")
}

// scanAPICase scans apiCaseColumns followed by any extra destinations.
func scanAPICase(row rowScanner, extra ...any) (*schemas.APITestCase, error) {
	var c schemas.APITestCase
	var headers, params, assertions []byte
	dest := []any{
		&c.ID, &c.SuiteID, &c.Name, &c.Description, &c.Method, &c.Endpoint, &headers, &params,
		&c.Body, &c.ExpectedStatus, &assertions, &c.TimeoutMS, &c.RetryCount, &c.Enabled,
		&c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Headers = map[string]string{}
	c.QueryParams = map[string]string{}
	c.Assertions = []schemas.Assertion{}
	for _, f := range []struct {
		raw []byte
		v   any
	}{{headers, &c.Headers}, {params, &c.QueryParams}, {assertions, &c.Assertions}} {
		if err := unmarshalJSON(f.raw, f.v); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func scanExecutableCase(row rowScanner) (*schemas.ExecutableCase, error) {
	var baseURL string
	var suiteHeaders []byte
	c, err := scanAPICase(row, &baseURL, &suiteHeaders)
	if err != nil {
		return nil, err
	}
	ec := &schemas.ExecutableCase{APITestCase: *c, BaseURL: baseURL, SuiteHeaders: map[string]string{}}
	if err := unmarshalJSON(suiteHeaders, &ec.SuiteHeaders); err != nil {
		return nil, err
	}
	return ec, nil
}

// CreateAPITestCase inserts a case into a suite owned by userID. An unowned or
// missing suite returns ErrNotFound.
func (s *Store) CreateAPITestCase(ctx context.Context, userID string, c schemas.APITestCase) (*schemas.APITestCase, error) {
	headers, err := marshalJSON(c.Headers, "{}")
	if err != nil {
		return nil, err
	}
	params, err := marshalJSON(c.QueryParams, "{}")
	if err != nil {
		return nil, err
	}
	assertions, err := marshalJSON(c.Assertions, "[]")
	if err != nil {
		return nil, err
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = DefaultAPITimeoutMS
	}
	row := s.pool.QueryRow(ctx, sqlInsertAPICase,
		uuid.NewString(), c.SuiteID, c.Name, c.Description, strings.ToUpper(c.Method), c.Endpoint,
		string(headers), string(params), c.Body, c.ExpectedStatus, string(assertions),
		c.TimeoutMS, c.RetryCount, c.Enabled, userID,
	)
	out, err := scanAPICase(row)
	if err != nil {
		return nil, notFound(err, "insert api test case")
	}
	return out, nil
}

func (s *Store) ListAPITestCases(ctx context.Context, suiteID, userID string) ([]schemas.APITestCase, error) {
	rows, err := s.pool.Query(ctx, sqlListAPICases, suiteID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api test cases: %w", err)
	}
	defer rows.Close()

	cases := []schemas.APITestCase{}
	for rows.Next() {
		c, err := scanAPICase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api test case row: %w", err)
		}
		cases = append(cases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return cases, nil
}

// GetExecutableCase loads a case together with its suite's base URL and headers.
func (s *Store) GetExecutableCase(ctx context.Context, id, userID string) (*schemas.ExecutableCase, error) {
	ec, err := scanExecutableCase(s.pool.QueryRow(ctx, sqlSelectExecutableCase, id, userID))
	if err != nil {
		return nil, notFound(err, "query api test case")
	}
	return ec, nil
}

// ListEnabledCases returns the enabled cases of a suite in creation order.
func (s *Store) ListEnabledCases(ctx context.Context, suiteID, userID string) ([]schemas.ExecutableCase, error) {
	rows, err := s.pool.Query(ctx, sqlListEnabledCases, suiteID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled api test cases: %w", err)
	}
	defer rows.Close()

	cases := []schemas.ExecutableCase{}
	for rows.Next() {
		ec, err := scanExecutableCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api test case row: %w", err)
		}
		cases = append(cases, *ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return cases, nil
}

func scanContract(row rowScanner) (*schemas.APIContract, error) {
	var k schemas.APIContract
	var data []byte
	if err := row.Scan(&k.ID, &k.SuiteID, &k.Name, &k.Version, &k.ContractType, &data, &k.CreatedAt); err != nil {
		return nil, err
	}
	k.ContractData = data
	return &k, nil
}

func (s *Store) CreateContract(ctx context.Context, userID string, k schemas.APIContract) (*schemas.APIContract, error) {
	data, err := marshalJSON(k.ContractData, "{}")
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, sqlInsertContract, uuid.NewString(), k.SuiteID, k.Name, k.Version, k.ContractType, string(data), userID)
	out, err := scanContract(row)
	if err != nil {
		return nil, notFound(err, "insert api contract")
	}
	return out, nil
}

func (s *Store) ListContracts(ctx context.Context, suiteID, userID string) ([]schemas.APIContract, error) {
	rows, err := s.pool.Query(ctx, sqlListContracts, suiteID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api contracts: %w", err)
	}
	defer rows.Close()

	out := []schemas.APIContract{}
	for rows.Next() {
		k, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api contract row: %w", err)
		}
		out = append(out, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func scanMock(row rowScanner) (*schemas.APIMock, error) {
	var m schemas.APIMock
	var headers []byte
	err := row.Scan(&m.ID, &m.SuiteID, &m.Name, &m.Endpoint, &m.Method, &m.ResponseStatus, &headers,
		&m.ResponseBody, &m.ResponseDelayMS, &m.Enabled, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ResponseHeaders = map[string]string{}
	if err := unmarshalJSON(headers, &m.ResponseHeaders); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateMock(ctx context.Context, userID string, m schemas.APIMock) (*schemas.APIMock, error) {
	headers, err := marshalJSON(m.ResponseHeaders, "{}")
	if err != nil {
		return nil, err
	}
	if m.ResponseStatus == 0 {
		m.ResponseStatus = 200
	}
	row := s.pool.QueryRow(ctx, sqlInsertMock, uuid.NewString(), m.SuiteID, m.Name, m.Endpoint,
		strings.ToUpper(m.Method), m.ResponseStatus, string(headers), m.ResponseBody, m.ResponseDelayMS, m.Enabled, userID)
	out, err := scanMock(row)
	if err != nil {
		return nil, notFound(err, "insert api mock")
	}
	return out, nil
}

func (s *Store) ListMocks(ctx context.Context, suiteID, userID string) ([]schemas.APIMock, error) {
	rows, err := s.pool.Query(ctx, sqlListMocks, suiteID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api mocks: %w", err)
	}
	defer rows.Close()

	out := []schemas.APIMock{}
	for rows.Next() {
		m, err := scanMock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api mock row: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// FindMock returns the newest enabled mock of a suite for method and endpoint.
// It is used by the public mock server and so performs no ownership check.
func (s *Store) FindMock(ctx context.Context, suiteID, method, endpoint string) (*schemas.APIMock, error) {
	m, err := scanMock(s.pool.QueryRow(ctx, sqlFindMock, suiteID, strings.ToUpper(method), endpoint))
	if err != nil {
		return nil, notFound(err, "query api mock")
	}
	return m, nil
}

// InsertBenchmark records one timed execution of a test case.
func (s *Store) InsertBenchmark(ctx context.Context, b schemas.Benchmark) error {
	_, err := s.pool.Exec(ctx, sqlInsertBenchmark, uuid.NewString(), b.TestCaseID, b.RunID, b.ResponseTime, b.StatusCode, b.Success, b.ErrorMsg)
	if err != nil {
		return fmt.Errorf("failed to insert benchmark: %w", err)
	}
	return nil
}

func (s *Store) ListBenchmarks(ctx context.Context, caseID, userID string, limit int) ([]schemas.Benchmark, error) {
	rows, err := s.pool.Query(ctx, sqlListBenchmarks, caseID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks: %w", err)
	}
	defer rows.Close()

	out := []schemas.Benchmark{}
	for rows.Next() {
		var b schemas.Benchmark
		if err := rows.Scan(&b.ID, &b.TestCaseID, &b.RunID, &b.ResponseTime, &b.StatusCode, &b.Success, &b.ErrorMsg, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// BenchmarkStats aggregates response times and the success rate (percent) of a case.
func (s *Store) BenchmarkStats(ctx context.Context, caseID, userID string) (*schemas.BenchmarkStats, error) {
	var st schemas.BenchmarkStats
	err := s.pool.QueryRow(ctx, sqlBenchmarkStats, caseID, userID).Scan(
		&st.AvgResponseTime, &st.MinResponseTime, &st.MaxResponseTime, &st.SuccessRate, &st.TotalRuns,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmark stats: %w", err)
	}
	return &st, nil
}
