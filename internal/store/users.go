package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const userColumns = `id, email, password, name, role, "createdAt", "updatedAt"`

const (
	sqlInsertUser = `
        INSERT INTO "User" (id, email, password, name, role, "createdAt", "updatedAt")
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING ` + userColumns + `;`
	sqlSelectUserByEmail = `SELECT ` + userColumns + ` FROM "User" WHERE email = $1;`
	sqlSelectUserByID    = `SELECT ` + userColumns + ` FROM "User" WHERE id = $1;`

	sqlInsertRefreshToken = `
        INSERT INTO "RefreshToken" (id, token, "userId", "expiresAt", "createdAt")
        VALUES ($1, $2, $3, $4, NOW());`
	sqlSelectActiveRefreshToken = `
        SELECT "userId" FROM "RefreshToken"
        WHERE token = $1 AND "revokedAt" IS NULL AND "expiresAt" > NOW();`
	sqlRevokeRefreshToken = `
        UPDATE "RefreshToken" SET "revokedAt" = NOW()
        WHERE token = $1 AND "revokedAt" IS NULL;`
	sqlDeleteExpiredRefreshTokens = `DELETE FROM "RefreshToken" WHERE "expiresAt" < NOW();`
)

func scanUser(row rowScanner) (*schemas.User, error) {
	var u schemas.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = schemas.Role(role)
	return &u, nil
}

// CreateUser inserts a new account. A duplicate email returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string, role schemas.Role) (*schemas.User, error) {
	if role == "" {
		role = schemas.RoleUser
	}
	row := s.pool.QueryRow(ctx, sqlInsertUser, uuid.NewString(), email, passwordHash, name, string(role))
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*schemas.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, sqlSelectUserByEmail, email))
	if err != nil {
		return nil, notFound(err, "query user")
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*schemas.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, sqlSelectUserByID, id))
	if err != nil {
		return nil, notFound(err, "query user")
	}
	return u, nil
}

// SaveRefreshToken persists an issued refresh token.
func (s *Store) SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	if _, err := s.pool.Exec(ctx, sqlInsertRefreshToken, uuid.NewString(), token, userID, expiresAt); err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// RefreshTokenOwner returns the owner of a stored, unrevoked and unexpired token.
func (s *Store) RefreshTokenOwner(ctx context.Context, token string) (string, error) {
	var userID string
	if err := s.pool.QueryRow(ctx, sqlSelectActiveRefreshToken, token).Scan(&userID); err != nil {
		return "", notFound(err, "query refresh token")
	}
	return userID, nil
}

// RevokeRefreshToken marks a token revoked. Revoking an unknown token is not an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, sqlRevokeRefreshToken, token); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens removes tokens past their expiry and returns the count.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, sqlDeleteExpiredRefreshTokens)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
