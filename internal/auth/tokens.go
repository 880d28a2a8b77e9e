// File: internal/auth/tokens.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/config"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	devAccessSecret  = "dev-access-secret"
	devRefreshSecret = "dev-refresh-secret"
)

// ErrInvalidToken covers malformed, expired, wrongly signed and wrongly typed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload for both token types.
type Claims struct {
	UserID string       `json:"userId"`
	Email  string       `json:"email,omitempty"`
	Role   schemas.Role `json:"role,omitempty"`
	Type   string       `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies access and refresh tokens with separate secrets.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewTokenManager builds a manager from configuration. Empty secrets fall back
// to fixed development values; configuration validation rejects that outside development.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	access, refresh := cfg.JWTSecret, cfg.RefreshSecret
	if access == "" {
		access = devAccessSecret
	}
	if refresh == "" {
		refresh = devRefreshSecret
	}
	return &TokenManager{
		accessSecret:  []byte(access),
		refreshSecret: []byte(refresh),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
}

// AccessTTL is the lifetime of issued access tokens.
func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

func (m *TokenManager) sign(claims *Claims, secret []byte) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Type, err)
	}
	return s, nil
}

// IssueAccess signs a short lived token carrying the user's identity and role.
func (m *TokenManager) IssueAccess(u *schemas.User) (string, error) {
	now := m.now()
	return m.sign(&Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		Type:   TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}, m.accessSecret)
}

// IssueRefresh signs a refresh token with a unique id and returns its expiry.
func (m *TokenManager) IssueRefresh(userID string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.refreshTTL)
	tok, err := m.sign(&Claims{
		UserID: userID,
		Type:   TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}, m.refreshSecret)
	return tok, exp, err
}

func (m *TokenManager) parse(raw string, secret []byte, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if c.Type != wantType {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, wantType)
	}
	if c.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return c, nil
}

// VerifyAccess validates an access token and returns the caller it identifies.
func (m *TokenManager) VerifyAccess(raw string) (schemas.Principal, error) {
	c, err := m.parse(raw, m.accessSecret, TokenTypeAccess)
	if err != nil {
		return schemas.Principal{}, err
	}
	role := c.Role
	if role == "" {
		role = schemas.RoleUser
	}
	return schemas.Principal{UserID: c.UserID, Email: c.Email, Role: role}, nil
}

// VerifyRefresh validates the signature and type of a refresh token.
func (m *TokenManager) VerifyRefresh(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSecret, TokenTypeRefresh)
}
