package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const DefaultRequestEnvironment = "dev"

const apiRequestColumns = `id, "userId", name, method, url, headers, body, environment, "createdAt", "updatedAt"`

const (
	sqlListAPIRequests = `
        SELECT ` + apiRequestColumns + ` FROM "ApiRequest"
        WHERE "userId" = $1 AND ($2 = '' OR environment = $2)
        ORDER BY "createdAt" DESC;`
	sqlSelectAPIRequest = `SELECT ` + apiRequestColumns + ` FROM "ApiRequest" WHERE id = $1 AND "userId" = $2;`
	sqlInsertAPIRequest = `
        INSERT INTO "ApiRequest" (id, "userId", name, method, url, headers, body, environment, "createdAt", "updatedAt")
        VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, NOW(), NOW())
        RETURNING ` + apiRequestColumns + `;`
	sqlUpdateAPIRequest = `
        UPDATE "ApiRequest" SET
            name = COALESCE($3, name),
            method = COALESCE($4, method),
            url = COALESCE($5, url),
            headers = COALESCE($6::jsonb, headers),
            body = COALESCE($7::jsonb, body),
            environment = COALESCE($8, environment),
            "updatedAt" = NOW()
        WHERE id = $1 AND "userId" = $2
        RETURNING ` + apiRequestColumns + `;`
	sqlDeleteAPIRequest = `DELETE FROM "ApiRequest" WHERE id = $1 AND "userId" = $2;`
)

func scanAPIRequest(row rowScanner) (*schemas.APIRequest, error) {
	var ar schemas.APIRequest
	var headers, body []byte
	err := row.Scan(&ar.ID, &ar.UserID, &ar.Name, &ar.Method, &ar.URL, &headers, &body,
		&ar.Environment, &ar.CreatedAt, &ar.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ar.Headers = headers
	ar.Body = body
	return &ar, nil
}

// ListAPIRequests returns the caller's saved requests, newest first. A non-empty
// environment narrows the listing.
func (s *Store) ListAPIRequests(ctx context.Context, userID, environment string) ([]schemas.APIRequest, error) {
	rows, err := s.pool.Query(ctx, sqlListAPIRequests, userID, environment)
	if err != nil {
		return nil, fmt.Errorf("failed to query api requests: %w", err)
	}
	defer rows.Close()

	out := []schemas.APIRequest{}
	for rows.Next() {
		ar, err := scanAPIRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api request row: %w", err)
		}
		out = append(out, *ar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *Store) GetAPIRequest(ctx context.Context, id, userID string) (*schemas.APIRequest, error) {
	ar, err := scanAPIRequest(s.pool.QueryRow(ctx, sqlSelectAPIRequest, id, userID))
	if err != nil {
		return nil, notFound(err, "query api request")
	}
	return ar, nil
}

// CreateAPIRequest saves a request. Absent headers and body are stored as NULL.
func (s *Store) CreateAPIRequest(ctx context.Context, userID string, in schemas.APIRequestInput) (*schemas.APIRequest, error) {
	row := s.pool.QueryRow(ctx, sqlInsertAPIRequest, uuid.NewString(), userID,
		deref(in.Name, ""), deref(in.Method, ""), deref(in.URL, ""),
		nilIfEmpty(in.Headers), nilIfEmpty(in.Body), deref(in.Environment, DefaultRequestEnvironment))
	ar, err := scanAPIRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert api request: %w", err)
	}
	return ar, nil
}

func (s *Store) UpdateAPIRequest(ctx context.Context, id, userID string, in schemas.APIRequestInput) (*schemas.APIRequest, error) {
	row := s.pool.QueryRow(ctx, sqlUpdateAPIRequest, id, userID, in.Name, in.Method, in.URL,
		nilIfEmpty(in.Headers), nilIfEmpty(in.Body), in.Environment)
	ar, err := scanAPIRequest(row)
	if err != nil {
		return nil, notFound(err, "update api request")
	}
	return ar, nil
}

func (s *Store) DeleteAPIRequest(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteAPIRequest, id, userID)
	return affected(tag, err, "delete api request")
}
