// File: internal/auth/service.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering a taken email.
	ErrUserExists = errors.New("user already exists with this email")
	// ErrInvalidRefresh is returned for any refresh token that cannot be exchanged.
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")
)

// UserStore is the persistence the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash, name string, role schemas.Role) (*schemas.User, error)
	GetUserByEmail(ctx context.Context, email string) (*schemas.User, error)
	GetUserByID(ctx context.Context, id string) (*schemas.User, error)
	SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error
	RefreshTokenOwner(ctx context.Context, token string) (string, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// Service implements registration, login and the refresh token lifecycle.
type Service struct {
	users      UserStore
	tokens     *TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// NewService wires the auth service.
func NewService(users UserStore, tokens *TokenManager, bcryptCost int, logger *zap.Logger) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{users: users, tokens: tokens, bcryptCost: bcryptCost, logger: logger.Named("auth")}
}

// Tokens exposes the token manager for request authentication.
func (s *Service) Tokens() *TokenManager { return s.tokens }

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

func (s *Service) expiresIn() int64 {
	return int64(s.tokens.AccessTTL() / time.Second)
}

// issue creates both tokens and persists the refresh token.
func (s *Service) issue(ctx context.Context, u *schemas.User) (*schemas.AuthResult, error) {
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return nil, err
	}
	refresh, exp, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.users.SaveRefreshToken(ctx, refresh, u.ID, exp); err != nil {
		return nil, err
	}
	return &schemas.AuthResult{User: *u, AccessToken: access, RefreshToken: refresh, ExpiresIn: s.expiresIn()}, nil
}

// Register creates an account and signs the caller in.
func (s *Service) Register(ctx context.Context, email, password, name string) (*schemas.AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	u, err := s.users.CreateUser(ctx, email, hash, strings.TrimSpace(name), schemas.RoleUser)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	s.logger.Info("New user registered", zap.String("user_id", u.ID))
	return s.issue(ctx, u)
}

// Login verifies credentials. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (*schemas.AuthResult, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	s.logger.Info("User logged in", zap.String("user_id", u.ID))
	return s.issue(ctx, u)
}

// Refresh exchanges a valid, stored, unrevoked refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*schemas.RefreshResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.logger.Debug("Refresh token rejected", zap.Error(err))
		return nil, ErrInvalidRefresh
	}
	owner, err := s.users.RefreshTokenOwner(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	if owner != claims.UserID {
		return nil, ErrInvalidRefresh
	}
	u, err := s.users.GetUserByID(ctx, owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return nil, err
	}
	return &schemas.RefreshResult{AccessToken: access, ExpiresIn: s.expiresIn()}, nil
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.users.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return err
	}
	s.logger.Info("User logged out")
	return nil
}

// Me returns the account of the authenticated caller.
func (s *Service) Me(ctx context.Context, userID string) (*schemas.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// CleanupExpiredTokens deletes refresh tokens past their expiry.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.users.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Cleaned up expired refresh tokens", zap.Int64("count", n))
	}
	return n, nil
}
