package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

type storedToken struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

// memoryUsers is an in-memory UserStore.
type memoryUsers struct {
	mu      sync.Mutex
	users   map[string]*schemas.User
	tokens  map[string]*storedToken
	failGet error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[string]*schemas.User{}, tokens: map[string]*storedToken{}}
}

func (m *memoryUsers) CreateUser(_ context.Context, email, hash, name string, role schemas.Role) (*schemas.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, store.ErrConflict
		}
	}
	u := &schemas.User{ID: "user-" + email, Email: email, PasswordHash: hash, Name: name, Role: role}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*schemas.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*schemas.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m *memoryUsers) SaveRefreshToken(_ context.Context, token, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = &storedToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memoryUsers) RefreshTokenOwner(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tokens[token]
	if !ok || st.revoked || time.Now().After(st.expiresAt) {
		return "", store.ErrNotFound
	}
	return st.userID, nil
}

func (m *memoryUsers) RevokeRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.tokens[token]; ok {
		st.revoked = true
	}
	return nil
}

func (m *memoryUsers) DeleteExpiredRefreshTokens(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, st := range m.tokens {
		if time.Now().After(st.expiresAt) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T) (*Service, *memoryUsers) {
	t.Helper()
	users := newMemoryUsers()
	return NewService(users, NewTokenManager(testAuthConfig()), bcrypt.MinCost, zaptest.NewLogger(t)), users
}

func TestService(t *testing.T) {
	ctx := context.Background()

	t.Run("should register and normalize the email", func(t *testing.T) {
		svc, users := newTestService(t)
		res, err := svc.Register(ctx, "  Ada@Example.com ", "hunter22", " Ada ")
		require.NoError(t, err)

		assert.Equal(t, "ada@example.com", res.User.Email)
		assert.Equal(t, "Ada", res.User.Name)
		assert.Equal(t, schemas.RoleUser, res.User.Role)
		assert.Equal(t, int64(36000), res.ExpiresIn)
		assert.NotEmpty(t, res.AccessToken)
		assert.Contains(t, users.tokens, res.RefreshToken)
		assert.NotEqual(t, "hunter22", res.User.PasswordHash)
	})

	t.Run("should reject a duplicate email", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(ctx, "ada@example.com", "pw", "Ada")
		require.NoError(t, err)

		_, err = svc.Register(ctx, "ADA@example.com", "pw", "Ada")
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("should log in with correct credentials only", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(ctx, "ada@example.com", "correct", "Ada")
		require.NoError(t, err)

		res, err := svc.Login(ctx, "ada@example.com", "correct")
		require.NoError(t, err)
		assert.NotEmpty(t, res.RefreshToken)

		_, err = svc.Login(ctx, "ada@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(ctx, "nobody@example.com", "correct")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("should surface store failures on login", func(t *testing.T) {
		svc, users := newTestService(t)
		users.failGet = errors.New("connection reset")

		_, err := svc.Login(ctx, "ada@example.com", "pw")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("should exchange a stored refresh token", func(t *testing.T) {
		svc, _ := newTestService(t)
		reg, err := svc.Register(ctx, "ada@example.com", "pw", "Ada")
		require.NoError(t, err)

		res, err := svc.Refresh(ctx, reg.RefreshToken)
		require.NoError(t, err)
		p, err := svc.Tokens().VerifyAccess(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, p.UserID)
		assert.Equal(t, int64(36000), res.ExpiresIn)
	})

	t.Run("should refuse a signed but unknown refresh token", func(t *testing.T) {
		svc, _ := newTestService(t)
		raw, _, err := svc.Tokens().IssueRefresh("user-ghost")
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("should refuse a token stored for another user", func(t *testing.T) {
		svc, users := newTestService(t)
		raw, exp, err := svc.Tokens().IssueRefresh("user-a")
		require.NoError(t, err)
		require.NoError(t, users.SaveRefreshToken(ctx, raw, "user-b", exp))

		_, err = svc.Refresh(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("should refuse garbage and revoked tokens", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Refresh(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidRefresh)

		reg, err := svc.Register(ctx, "ada@example.com", "pw", "Ada")
		require.NoError(t, err)
		require.NoError(t, svc.Logout(ctx, reg.RefreshToken))

		_, err = svc.Refresh(ctx, reg.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("should return the caller's account", func(t *testing.T) {
		svc, _ := newTestService(t)
		reg, err := svc.Register(ctx, "ada@example.com", "pw", "Ada")
		require.NoError(t, err)

		u, err := svc.Me(ctx, reg.User.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", u.Name)

		_, err = svc.Me(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("should clean up expired tokens", func(t *testing.T) {
		svc, users := newTestService(t)
		require.NoError(t, users.SaveRefreshToken(ctx, "old", "u", time.Now().Add(-time.Minute)))
		require.NoError(t, users.SaveRefreshToken(ctx, "new", "u", time.Now().Add(time.Hour)))

		n, err := svc.CleanupExpiredTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Contains(t, users.tokens, "new")
	})

	t.Run("should clamp an invalid bcrypt cost", func(t *testing.T) {
		svc := NewService(newMemoryUsers(), NewTokenManager(testAuthConfig()), 0, zap.NewNop())
		assert.Equal(t, bcrypt.DefaultCost, svc.bcryptCost)
	})
}
