package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const runSelect = `
        SELECT r.id, r."scriptId", sc.name, r."userId", r.status, r.environment, r.browser,
               r.duration, r."errorMsg", r.steps, r."executionReportUrl", r."traceUrl",
               r."videoUrl", r."screenshotUrls", r."startedAt", r."completedAt"`

const (
	sqlListRuns = runSelect + `
        FROM "TestRun" r LEFT JOIN "Script" sc ON sc.id = r."scriptId"
        WHERE r."userId" = $1 AND ($2 = '' OR sc."projectId" = $2)
        ORDER BY r."startedAt" DESC;`
	sqlListActiveRuns = runSelect + `
        FROM "TestRun" r LEFT JOIN "Script" sc ON sc.id = r."scriptId"
        WHERE r."userId" = $1 AND r.status IN ('queued', 'running')
        ORDER BY r."startedAt" DESC;`
	sqlListScriptRuns = runSelect + `
        FROM "TestRun" r LEFT JOIN "Script" sc ON sc.id = r."scriptId"
        WHERE r."scriptId" = $1 AND r."userId" = $2
        ORDER BY r."startedAt" DESC
        LIMIT $3;`
	sqlSelectRun = runSelect + `
        FROM "TestRun" r LEFT JOIN "Script" sc ON sc.id = r."scriptId"
        WHERE r.id = $1 AND r."userId" = $2;`
	sqlInsertRun = `
        WITH r AS (
            INSERT INTO "TestRun" (id, "scriptId", "userId", status, environment, browser, steps, "startedAt")
            VALUES ($1, $2, $3, $4, $5, $6, '[]', NOW())
            RETURNING *
        )` + runSelect + `
        FROM r LEFT JOIN "Script" sc ON sc.id = r."scriptId";`
	sqlInsertReportedRun = `
        WITH r AS (
            INSERT INTO "TestRun" (id, "scriptId", "userId", status, environment, browser, duration,
                "errorMsg", steps, "traceUrl", "videoUrl", "screenshotUrls", "startedAt", "completedAt")
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '[]', $9, $10, $11, NOW(), NOW())
            RETURNING *
        )` + runSelect + `
        FROM r LEFT JOIN "Script" sc ON sc.id = r."scriptId";`
	sqlUpdateRun = `
        WITH r AS (
            UPDATE "TestRun" SET
                status = COALESCE($3, status),
                "errorMsg" = COALESCE($4, "errorMsg"),
                duration = COALESCE($5, duration),
                steps = COALESCE($6::jsonb, steps),
                "completedAt" = CASE
                    WHEN $3 IN ('passed', 'failed', 'error', 'cancelled') THEN NOW()
                    ELSE "completedAt"
                END
            WHERE id = $1 AND "userId" = $2
            RETURNING *
        )` + runSelect + `
        FROM r LEFT JOIN "Script" sc ON sc.id = r."scriptId";`
	sqlStopRun = `
        WITH r AS (
            UPDATE "TestRun" SET status = 'cancelled', "completedAt" = NOW()
            WHERE id = $1 AND "userId" = $2
            RETURNING *
        )` + runSelect + `
        FROM r LEFT JOIN "Script" sc ON sc.id = r."scriptId";`
	sqlSetReportURL = `
        WITH r AS (
            UPDATE "TestRun" SET "executionReportUrl" = $3
            WHERE id = $1 AND "userId" = $2
            RETURNING *
        )` + runSelect + `
        FROM r LEFT JOIN "Script" sc ON sc.id = r."scriptId";`
	sqlMarkRunRunning = `
        UPDATE "TestRun" SET status = 'running'
        WHERE id = $1 AND status IN ('queued', 'running');`
	sqlCompleteRun = `
        UPDATE "TestRun" SET
            status = $2,
            duration = $3,
            "errorMsg" = $4,
            steps = $5,
            "completedAt" = NOW()
        WHERE id = $1 AND status IN ('queued', 'running');`
)

func scanRun(row rowScanner) (*schemas.TestRun, error) {
	var r schemas.TestRun
	var status string
	var steps []byte
	err := row.Scan(
		&r.ID, &r.ScriptID, &r.ScriptName, &r.UserID, &status, &r.Environment, &r.Browser,
		&r.Duration, &r.ErrorMsg, &steps, &r.ExecutionReportURL, &r.TraceURL,
		&r.VideoURL, &r.ScreenshotURLs, &r.StartedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = schemas.RunStatus(status)
	r.Steps = []schemas.TestStep{}
	if err := unmarshalJSON(steps, &r.Steps); err != nil {
		return nil, err
	}
	if r.ScreenshotURLs == nil {
		r.ScreenshotURLs = []string{}
	}
	return &r, nil
}

func (s *Store) queryRuns(ctx context.Context, sql string, args ...any) ([]schemas.TestRun, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query test runs: %w", err)
	}
	defer rows.Close()

	runs := []schemas.TestRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test run row: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// ListTestRuns returns the caller's runs, newest first, optionally limited to one project.
func (s *Store) ListTestRuns(ctx context.Context, userID, projectID string) ([]schemas.TestRun, error) {
	return s.queryRuns(ctx, sqlListRuns, userID, projectID)
}

// ListActiveTestRuns returns runs that are queued or running.
func (s *Store) ListActiveTestRuns(ctx context.Context, userID string) ([]schemas.TestRun, error) {
	return s.queryRuns(ctx, sqlListActiveRuns, userID)
}

// ListScriptRuns returns at most limit of the caller's runs of one script, newest first.
func (s *Store) ListScriptRuns(ctx context.Context, scriptID, userID string, limit int) ([]schemas.TestRun, error) {
	return s.queryRuns(ctx, sqlListScriptRuns, scriptID, userID, limit)
}

func (s *Store) GetTestRun(ctx context.Context, id, userID string) (*schemas.TestRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, sqlSelectRun, id, userID))
	if err != nil {
		return nil, notFound(err, "query test run")
	}
	return r, nil
}

// CreateTestRun inserts a run for scriptID in the given initial status.
func (s *Store) CreateTestRun(ctx context.Context, userID, scriptID string, status schemas.RunStatus, environment, browser string) (*schemas.TestRun, error) {
	row := s.pool.QueryRow(ctx, sqlInsertRun, uuid.NewString(), scriptID, userID, string(status), environment, browser)
	r, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert test run: %w", err)
	}
	return r, nil
}

// CreateReportedRun records a run that already finished outside the platform.
func (s *Store) CreateReportedRun(ctx context.Context, userID, scriptID string, rep schemas.RunReport, environment, browser string) (*schemas.TestRun, error) {
	urls := rep.ScreenshotURLs
	if urls == nil {
		urls = []string{}
	}
	row := s.pool.QueryRow(ctx, sqlInsertReportedRun,
		uuid.NewString(), scriptID, userID, string(rep.Status), environment, browser,
		rep.Duration, rep.ErrorMsg, rep.TraceURL, rep.VideoURL, urls,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reported test run: %w", err)
	}
	return r, nil
}

// UpdateTestRun applies a partial update. A terminal status stamps completedAt.
func (s *Store) UpdateTestRun(ctx context.Context, id, userID string, in schemas.RunUpdate) (*schemas.TestRun, error) {
	var status *string
	if in.Status != nil {
		v := string(*in.Status)
		status = &v
	}
	var steps any
	if in.Steps != nil {
		b, err := marshalJSON(in.Steps, "[]")
		if err != nil {
			return nil, err
		}
		steps = string(b)
	}
	r, err := scanRun(s.pool.QueryRow(ctx, sqlUpdateRun, id, userID, status, in.ErrorMsg, in.Duration, steps))
	if err != nil {
		return nil, notFound(err, "update test run")
	}
	return r, nil
}

// StopTestRun marks a run cancelled.
func (s *Store) StopTestRun(ctx context.Context, id, userID string) (*schemas.TestRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, sqlStopRun, id, userID))
	if err != nil {
		return nil, notFound(err, "stop test run")
	}
	return r, nil
}

func (s *Store) SetExecutionReportURL(ctx context.Context, id, userID, url string) (*schemas.TestRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, sqlSetReportURL, id, userID, url))
	if err != nil {
		return nil, notFound(err, "set execution report url")
	}
	return r, nil
}

// MarkRunRunning moves a queued run to running. A run that already reached a
// terminal status (for example one stopped before a worker picked it up)
// returns ErrNotFound.
func (s *Store) MarkRunRunning(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, sqlMarkRunRunning, id)
	return affected(tag, err, "mark test run running")
}

// CompleteRun writes an execution outcome unless the run already reached a
// terminal status, so a stop request always wins over a late result.
func (s *Store) CompleteRun(ctx context.Context, id string, out schemas.RunOutcome) error {
	steps, err := marshalJSON(out.Steps, "[]")
	if err != nil {
		return err
	}
	var errMsg *string
	if out.ErrorMsg != "" {
		errMsg = &out.ErrorMsg
	}
	tag, err := s.pool.Exec(ctx, sqlCompleteRun, id, string(out.Status), out.Duration.Milliseconds(), errMsg, string(steps))
	return affected(tag, err, "complete test run")
}
