package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const (
	DefaultLanguage        = "typescript"
	DefaultBrowserType     = "chromium"
	DefaultTestIDAttribute = "data-testid"
)

// scriptSelect projects a script row joined with its project name. It expects
// the script relation aliased as s.
const scriptSelect = `
        SELECT s.id, s.name, s.description, s.language, s.code, s."projectId", p.name,
               s."userId", s."browserType", s.viewport, s."testIdAttribute",
               s."selfHealingEnabled", s."workflowStatus", s."createdAt", s."updatedAt"`

const (
	sqlListScripts = scriptSelect + `
        FROM "Script" s LEFT JOIN "Project" p ON p.id = s."projectId"
        WHERE s."userId" = $1 AND ($2 = '' OR s."projectId" = $2)
        ORDER BY s."createdAt" DESC;`
	sqlSelectScript = scriptSelect + `
        FROM "Script" s LEFT JOIN "Project" p ON p.id = s."projectId"
        WHERE s.id = $1 AND s."userId" = $2;`
	sqlSelectScriptsByIDs = scriptSelect + `
        FROM "Script" s LEFT JOIN "Project" p ON p.id = s."projectId"
        WHERE s."userId" = $1 AND s.id = ANY($2);`
	sqlSelectScriptByName = scriptSelect + `
        FROM "Script" s LEFT JOIN "Project" p ON p.id = s."projectId"
        WHERE s."userId" = $1 AND s.name = $2
        ORDER BY s."createdAt" DESC
        LIMIT 1;`
	sqlInsertScript = `
        WITH s AS (
            INSERT INTO "Script" (id, name, description, language, code, "projectId", "userId",
                "browserType", viewport, "testIdAttribute", "selfHealingEnabled", "workflowStatus",
                "createdAt", "updatedAt")
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'draft', NOW(), NOW())
            RETURNING *
        )` + scriptSelect + `
        FROM s LEFT JOIN "Project" p ON p.id = s."projectId";`
	sqlUpdateScript = `
        WITH s AS (
            UPDATE "Script" SET
                name = COALESCE($3, name),
                description = COALESCE($4, description),
                language = COALESCE($5, language),
                code = COALESCE($6, code),
                "projectId" = COALESCE($7, "projectId"),
                "browserType" = COALESCE($8, "browserType"),
                viewport = COALESCE($9::jsonb, viewport),
                "testIdAttribute" = COALESCE($10, "testIdAttribute"),
                "selfHealingEnabled" = COALESCE($11, "selfHealingEnabled"),
                "updatedAt" = NOW()
            WHERE id = $1 AND "userId" = $2
            RETURNING *
        )` + scriptSelect + `
        FROM s LEFT JOIN "Project" p ON p.id = s."projectId";`
	sqlUpdateScriptCode = `
        WITH s AS (
            UPDATE "Script" SET
                code = $3,
                "workflowStatus" = CASE WHEN "workflowStatus" = 'draft' THEN 'ai_enhanced' ELSE "workflowStatus" END,
                "updatedAt" = NOW()
            WHERE id = $1 AND "userId" = $2
            RETURNING *
        )` + scriptSelect + `
        FROM s LEFT JOIN "Project" p ON p.id = s."projectId";`
	sqlDeleteScript = `DELETE FROM "Script" WHERE id = $1 AND "userId" = $2;`
)

func scanScript(row rowScanner) (*schemas.Script, error) {
	var sc schemas.Script
	var viewport []byte
	err := row.Scan(
		&sc.ID, &sc.Name, &sc.Description, &sc.Language, &sc.Code, &sc.ProjectID, &sc.ProjectName,
		&sc.UserID, &sc.BrowserType, &viewport, &sc.TestIDAttribute,
		&sc.SelfHealingEnabled, &sc.WorkflowStatus, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(viewport) > 0 {
		sc.Viewport = viewport
	}
	return &sc, nil
}

func (s *Store) queryScripts(ctx context.Context, sql string, args ...any) ([]schemas.Script, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	scripts := []schemas.Script{}
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script row: %w", err)
		}
		scripts = append(scripts, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return scripts, nil
}

// ListScripts returns the caller's scripts. An empty projectID lists all of them.
func (s *Store) ListScripts(ctx context.Context, userID, projectID string) ([]schemas.Script, error) {
	return s.queryScripts(ctx, sqlListScripts, userID, projectID)
}

// GetScriptsByIDs returns the subset of ids owned by the caller, in no particular order.
func (s *Store) GetScriptsByIDs(ctx context.Context, userID string, ids []string) ([]schemas.Script, error) {
	return s.queryScripts(ctx, sqlSelectScriptsByIDs, userID, ids)
}

func (s *Store) GetScript(ctx context.Context, id, userID string) (*schemas.Script, error) {
	sc, err := scanScript(s.pool.QueryRow(ctx, sqlSelectScript, id, userID))
	if err != nil {
		return nil, notFound(err, "query script")
	}
	return sc, nil
}

// FindScriptByName returns the newest owned script with the given name.
func (s *Store) FindScriptByName(ctx context.Context, userID, name string) (*schemas.Script, error) {
	sc, err := scanScript(s.pool.QueryRow(ctx, sqlSelectScriptByName, userID, name))
	if err != nil {
		return nil, notFound(err, "query script")
	}
	return sc, nil
}

func deref(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}

// nilIfEmpty maps an absent JSON document to SQL NULL.
func nilIfEmpty(raw []byte) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

// CreateScript inserts a script in the draft workflow state, filling language,
// browser and test id attribute defaults.
func (s *Store) CreateScript(ctx context.Context, userID string, in schemas.ScriptInput) (*schemas.Script, error) {
	selfHealing := false
	if in.SelfHealingEnabled != nil {
		selfHealing = *in.SelfHealingEnabled
	}
	var projectID *string
	if in.ProjectID != nil && *in.ProjectID != "" {
		projectID = in.ProjectID
	}
	row := s.pool.QueryRow(ctx, sqlInsertScript,
		uuid.NewString(),
		deref(in.Name, ""),
		in.Description,
		deref(in.Language, DefaultLanguage),
		deref(in.Code, ""),
		projectID,
		userID,
		deref(in.BrowserType, DefaultBrowserType),
		nilIfEmpty(in.Viewport),
		deref(in.TestIDAttribute, DefaultTestIDAttribute),
		selfHealing,
	)
	sc, err := scanScript(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert script: %w", err)
	}
	return sc, nil
}

// UpdateScript applies the non-nil fields of in.
func (s *Store) UpdateScript(ctx context.Context, id, userID string, in schemas.ScriptInput) (*schemas.Script, error) {
	row := s.pool.QueryRow(ctx, sqlUpdateScript, id, userID,
		in.Name, in.Description, in.Language, in.Code, in.ProjectID,
		in.BrowserType, nilIfEmpty(in.Viewport), in.TestIDAttribute, in.SelfHealingEnabled,
	)
	sc, err := scanScript(row)
	if err != nil {
		return nil, notFound(err, "update script")
	}
	return sc, nil
}

// ApplyScriptCode replaces a script's code with enhanced output and advances a
// draft script to ai_enhanced.
func (s *Store) ApplyScriptCode(ctx context.Context, id, userID, code string) (*schemas.Script, error) {
	sc, err := scanScript(s.pool.QueryRow(ctx, sqlUpdateScriptCode, id, userID, code))
	if err != nil {
		return nil, notFound(err, "update script code")
	}
	return sc, nil
}

func (s *Store) DeleteScript(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteScript, id, userID)
	return affected(tag, err, "delete script")
}
