package store

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const (
	sqlTransitionWorkflow = `
        UPDATE "Script" SET "workflowStatus" = $4, "updatedAt" = NOW()
        WHERE id = $1 AND "userId" = $2 AND "workflowStatus" = $3;`
	sqlBatchUpdateWorkflow = `
        UPDATE "Script" SET "workflowStatus" = $3, "updatedAt" = NOW()
        WHERE "userId" = $1 AND id = ANY($2);`
	sqlListScriptsByWorkflow = `
        SELECT id, name, description, language, "workflowStatus", "createdAt", "updatedAt"
        FROM "Script"
        WHERE "userId" = $1 AND "workflowStatus" = $2
        ORDER BY "updatedAt" DESC;`
	sqlCountWorkflow = `
        SELECT "workflowStatus", COUNT(*)::bigint
        FROM "Script"
        WHERE "userId" = $1
        GROUP BY "workflowStatus";`
)

// TransitionWorkflow moves a script from one workflow status to another. The
// update only applies while the stored status still equals from, so a
// concurrent change surfaces as ErrNotFound instead of a stale transition.
func (s *Store) TransitionWorkflow(ctx context.Context, id, userID, from, to string) error {
	tag, err := s.pool.Exec(ctx, sqlTransitionWorkflow, id, userID, from, to)
	return affected(tag, err, "transition workflow status")
}

// BatchUpdateWorkflow sets the status of every owned script in ids and returns the count changed.
func (s *Store) BatchUpdateWorkflow(ctx context.Context, userID string, ids []string, to string) (int64, error) {
	tag, err := s.pool.Exec(ctx, sqlBatchUpdateWorkflow, userID, ids, to)
	if err != nil {
		return 0, fmt.Errorf("failed to batch update workflow status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListScriptsByWorkflow(ctx context.Context, userID, status string) ([]schemas.ScriptSummary, error) {
	rows, err := s.pool.Query(ctx, sqlListScriptsByWorkflow, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts by workflow status: %w", err)
	}
	defer rows.Close()

	out := []schemas.ScriptSummary{}
	for rows.Next() {
		var sc schemas.ScriptSummary
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Description, &sc.Language, &sc.WorkflowStatus, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan script row: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// WorkflowCounts returns the number of the caller's scripts per workflow status.
// Statuses with no scripts are absent from the map.
func (s *Store) WorkflowCounts(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, sqlCountWorkflow, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflow statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan workflow count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return counts, nil
}
