package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const projectColumns = `id, name, description, "userId", "createdAt", "updatedAt"`

const (
	sqlListProjects = `
        SELECT ` + projectColumns + ` FROM "Project"
        WHERE "userId" = $1
        ORDER BY "createdAt" DESC;`
	sqlSelectProject = `SELECT ` + projectColumns + ` FROM "Project" WHERE id = $1 AND "userId" = $2;`
	sqlInsertProject = `
        INSERT INTO "Project" (id, name, description, "userId", "createdAt", "updatedAt")
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        RETURNING ` + projectColumns + `;`
	sqlUpdateProject = `
        UPDATE "Project" SET
            name = COALESCE($3, name),
            description = COALESCE($4, description),
            "updatedAt" = NOW()
        WHERE id = $1 AND "userId" = $2
        RETURNING ` + projectColumns + `;`
	sqlDeleteProject = `DELETE FROM "Project" WHERE id = $1 AND "userId" = $2;`
)

func scanProject(row rowScanner) (*schemas.Project, error) {
	var p schemas.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.UserID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns the caller's projects, newest first.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]schemas.Project, error) {
	rows, err := s.pool.Query(ctx, sqlListProjects, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []schemas.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return projects, nil
}

func (s *Store) GetProject(ctx context.Context, id, userID string) (*schemas.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, sqlSelectProject, id, userID))
	if err != nil {
		return nil, notFound(err, "query project")
	}
	return p, nil
}

func (s *Store) CreateProject(ctx context.Context, userID string, in schemas.ProjectInput) (*schemas.Project, error) {
	var name string
	if in.Name != nil {
		name = *in.Name
	}
	p, err := scanProject(s.pool.QueryRow(ctx, sqlInsertProject, uuid.NewString(), name, in.Description, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	return p, nil
}

// UpdateProject applies the non-nil fields of in.
func (s *Store) UpdateProject(ctx context.Context, id, userID string, in schemas.ProjectInput) (*schemas.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, sqlUpdateProject, id, userID, in.Name, in.Description))
	if err != nil {
		return nil, notFound(err, "update project")
	}
	return p, nil
}

func (s *Store) DeleteProject(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteProject, id, userID)
	return affected(tag, err, "delete project")
}
