// File: internal/server/helpers_test.go
package server

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/guregu/null.v3"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/auth"
	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/engine"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

const (
	ownerID = "user-1"
	otherID = "user-2"
	adminID = "admin-1"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// fakeStore keeps rows in memory. Methods a test does not exercise fall
// through to the nil embedded interface and panic.
type fakeStore struct {
	Store

	mu       sync.Mutex
	seq      int
	pingErr  error
	projects map[string]schemas.Project
	scripts  map[string]schemas.Script
	runs     map[string]schemas.TestRun
	suites   map[string]schemas.TestSuite
	mocks    []schemas.APIMock
	saved    map[string][]stdjson.RawMessage
	requests map[string]schemas.APIRequest
	dataHits map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: map[string]schemas.Project{},
		scripts:  map[string]schemas.Script{},
		runs:     map[string]schemas.TestRun{},
		suites:   map[string]schemas.TestSuite{},
		saved:    map[string][]stdjson.RawMessage{},
		requests: map[string]schemas.APIRequest{},
		dataHits: map[string]int64{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) ListProjects(_ context.Context, userID string) ([]schemas.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []schemas.Project{}
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetProject(_ context.Context, id, userID string) (*schemas.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) CreateProject(_ context.Context, userID string, in schemas.ProjectInput) (*schemas.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := schemas.Project{ID: f.nextID("project"), Name: *in.Name, Description: null.StringFromPtr(in.Description), UserID: userID, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	f.projects[p.ID] = p
	return &p, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, id, userID string, in schemas.ProjectInput) (*schemas.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = null.StringFrom(*in.Description)
	}
	f.projects[id] = p
	return &p, nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok || p.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) addScript(userID, name, code, status string) schemas.Script {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc := schemas.Script{
		ID: f.nextID("script"), Name: name, Code: code, UserID: userID,
		Language: "typescript", BrowserType: "chromium", WorkflowStatus: status,
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	f.scripts[sc.ID] = sc
	return sc
}

func (f *fakeStore) script(id string) schemas.Script {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scripts[id]
}

func (f *fakeStore) GetScript(_ context.Context, id, userID string) (*schemas.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scripts[id]
	if !ok || sc.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &sc, nil
}

func (f *fakeStore) GetScriptsByIDs(_ context.Context, userID string, ids []string) ([]schemas.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []schemas.Script{}
	for _, id := range ids {
		if sc, ok := f.scripts[id]; ok && sc.UserID == userID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (f *fakeStore) FindScriptByName(_ context.Context, userID, name string) (*schemas.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sc := range f.scripts {
		if sc.UserID == userID && sc.Name == name {
			return &sc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateScript(_ context.Context, userID string, in schemas.ScriptInput) (*schemas.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc := schemas.Script{
		ID: f.nextID("script"), Name: *in.Name, Code: *in.Code, UserID: userID,
		Language: store.DefaultLanguage, BrowserType: store.DefaultBrowserType, WorkflowStatus: "draft",
		Description: null.StringFromPtr(in.Description), ProjectID: null.StringFromPtr(in.ProjectID),
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	if in.Language != nil {
		sc.Language = *in.Language
	}
	if in.BrowserType != nil {
		sc.BrowserType = *in.BrowserType
	}
	f.scripts[sc.ID] = sc
	return &sc, nil
}

func (f *fakeStore) ApplyScriptCode(_ context.Context, id, userID, code string) (*schemas.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scripts[id]
	if !ok || sc.UserID != userID {
		return nil, store.ErrNotFound
	}
	sc.Code = code
	if sc.WorkflowStatus == "draft" {
		sc.WorkflowStatus = "ai_enhanced"
	}
	f.scripts[id] = sc
	return &sc, nil
}

func (f *fakeStore) ListScriptRuns(_ context.Context, scriptID, userID string, limit int) ([]schemas.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []schemas.TestRun{}
	for _, r := range f.runs {
		if r.ScriptID == scriptID && r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountScriptTestData(_ context.Context, userID, scriptName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dataHits[userID+"/"+scriptName], nil
}

func (f *fakeStore) ListAPIRequests(_ context.Context, userID, environment string) ([]schemas.APIRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []schemas.APIRequest{}
	for _, ar := range f.requests {
		if ar.UserID == userID && (environment == "" || ar.Environment == environment) {
			out = append(out, ar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetAPIRequest(_ context.Context, id, userID string) (*schemas.APIRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ar, ok := f.requests[id]
	if !ok || ar.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &ar, nil
}

func (f *fakeStore) CreateAPIRequest(_ context.Context, userID string, in schemas.APIRequestInput) (*schemas.APIRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ar := schemas.APIRequest{
		ID: f.nextID("req"), UserID: userID, Name: *in.Name, Method: *in.Method, URL: *in.URL,
		Headers: in.Headers, Body: in.Body, Environment: store.DefaultRequestEnvironment,
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	if in.Environment != nil && *in.Environment != "" {
		ar.Environment = *in.Environment
	}
	f.requests[ar.ID] = ar
	return &ar, nil
}

func (f *fakeStore) UpdateAPIRequest(_ context.Context, id, userID string, in schemas.APIRequestInput) (*schemas.APIRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ar, ok := f.requests[id]
	if !ok || ar.UserID != userID {
		return nil, store.ErrNotFound
	}
	if in.Name != nil {
		ar.Name = *in.Name
	}
	if in.Method != nil {
		ar.Method = *in.Method
	}
	if in.URL != nil {
		ar.URL = *in.URL
	}
	if in.Environment != nil {
		ar.Environment = *in.Environment
	}
	if len(in.Headers) > 0 {
		ar.Headers = in.Headers
	}
	if len(in.Body) > 0 {
		ar.Body = in.Body
	}
	f.requests[id] = ar
	return &ar, nil
}

func (f *fakeStore) DeleteAPIRequest(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ar, ok := f.requests[id]
	if !ok || ar.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.requests, id)
	return nil
}

func (f *fakeStore) run(id string) schemas.TestRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

func (f *fakeStore) CreateTestRun(_ context.Context, userID, scriptID string, status schemas.RunStatus, environment, browser string) (*schemas.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := schemas.TestRun{
		ID: f.nextID("run"), ScriptID: scriptID, UserID: userID, Status: status,
		Environment: environment, Browser: browser, Steps: []schemas.TestStep{}, StartedAt: fixedNow,
	}
	f.runs[r.ID] = r
	return &r, nil
}

func (f *fakeStore) CreateReportedRun(_ context.Context, userID, scriptID string, rep schemas.RunReport, environment, browser string) (*schemas.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := schemas.TestRun{
		ID: f.nextID("run"), ScriptID: scriptID, UserID: userID, Status: rep.Status,
		Environment: environment, Browser: browser, Duration: null.IntFromPtr(rep.Duration),
		ErrorMsg: null.StringFromPtr(rep.ErrorMsg), StartedAt: fixedNow, CompletedAt: null.TimeFrom(fixedNow),
	}
	f.runs[r.ID] = r
	return &r, nil
}

func (f *fakeStore) GetTestRun(_ context.Context, id, userID string) (*schemas.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok || r.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) UpdateTestRun(_ context.Context, id, userID string, in schemas.RunUpdate) (*schemas.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok || r.UserID != userID {
		return nil, store.ErrNotFound
	}
	if in.Status != nil {
		r.Status = *in.Status
		if r.Status.IsTerminal() {
			r.CompletedAt = null.TimeFrom(fixedNow)
		}
	}
	r.ErrorMsg = null.StringFromPtr(in.ErrorMsg)
	f.runs[id] = r
	return &r, nil
}

func (f *fakeStore) StopTestRun(_ context.Context, id, userID string) (*schemas.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok || r.UserID != userID {
		return nil, store.ErrNotFound
	}
	r.Status = schemas.RunCancelled
	r.CompletedAt = null.TimeFrom(fixedNow)
	f.runs[id] = r
	return &r, nil
}

func (f *fakeStore) TransitionWorkflow(_ context.Context, id, userID, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scripts[id]
	if !ok || sc.UserID != userID || sc.WorkflowStatus != from {
		return store.ErrNotFound
	}
	sc.WorkflowStatus = to
	f.scripts[id] = sc
	return nil
}

func (f *fakeStore) BatchUpdateWorkflow(_ context.Context, userID string, ids []string, to string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if sc, ok := f.scripts[id]; ok && sc.UserID == userID {
			sc.WorkflowStatus = to
			f.scripts[id] = sc
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) WorkflowCounts(_ context.Context, userID string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int64{}
	for _, sc := range f.scripts {
		if sc.UserID == userID {
			out[sc.WorkflowStatus]++
		}
	}
	return out, nil
}

func (f *fakeStore) FindMock(_ context.Context, suiteID, method, endpoint string) (*schemas.APIMock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mocks {
		if m.SuiteID == suiteID && m.Enabled && strings.EqualFold(m.Method, method) && m.Endpoint == endpoint {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetTestSuite(_ context.Context, id, userID string) (*schemas.TestSuite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suites[id]
	if !ok || s.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) CreateTestSuite(_ context.Context, userID, name string, description *string) (*schemas.TestSuite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := schemas.TestSuite{ID: f.nextID("suite"), Name: name, Description: null.StringFromPtr(description), UserID: userID, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	f.suites[s.ID] = s
	return &s, nil
}

func (f *fakeStore) SaveGeneratedData(_ context.Context, userID, suiteID, _, _, _ string, records []stdjson.RawMessage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suites[suiteID]
	if !ok || s.UserID != userID {
		return 0, store.ErrNotFound
	}
	f.saved[suiteID] = append(f.saved[suiteID], records...)
	return int64(len(records)), nil
}

// memoryUsers is an in-memory auth.UserStore.
type memoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]*schemas.User
	tokens  map[string]string
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: map[string]*schemas.User{}, tokens: map[string]string{}}
}

func (m *memoryUsers) CreateUser(_ context.Context, email, hash, name string, role schemas.Role) (*schemas.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return nil, store.ErrConflict
	}
	u := &schemas.User{ID: fmt.Sprintf("u-%d", len(m.byEmail)+1), Email: email, PasswordHash: hash, Name: name, Role: role}
	m.byEmail[email] = u
	return u, nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*schemas.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*schemas.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memoryUsers) SaveRefreshToken(_ context.Context, token, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
	return nil
}

func (m *memoryUsers) RefreshTokenOwner(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.tokens[token]; ok {
		return id, nil
	}
	return "", store.ErrNotFound
}

func (m *memoryUsers) RevokeRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *memoryUsers) DeleteExpiredRefreshTokens(context.Context) (int64, error) { return 0, nil }

// fakeQueue records submissions and cancellations.
type fakeQueue struct {
	mu        sync.Mutex
	jobs      []engine.RunJob
	cancelled []string
	err       error
}

func (q *fakeQueue) Submit(job engine.RunJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Cancel(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, runID)
	return true
}

type testEnv struct {
	srv    *Server
	store  *fakeStore
	queue  *fakeQueue
	users  *memoryUsers
	tokens *auth.TokenManager
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:     "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     10 * time.Hour,
		RefreshTTL:    15 * time.Hour,
		Issuer:        "scriptforge",
	}
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	env := &testEnv{
		store:  newFakeStore(),
		queue:  &fakeQueue{},
		users:  newMemoryUsers(),
		tokens: auth.NewTokenManager(testAuthConfig()),
	}
	deps := Deps{
		Config:  config.ServerConfig{Port: 0, Environment: "test", MaxBodyBytes: 1 << 20},
		Store:   env.store,
		Auth:    auth.NewService(env.users, env.tokens, bcrypt.MinCost, logger),
		Queue:   env.queue,
		Logger:  logger,
		Version: "test-version",
		Now:     func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&deps)
	}
	srv, err := New(deps)
	require.NoError(t, err)
	env.srv = srv
	return env
}

func (e *testEnv) token(t *testing.T, userID string, role schemas.Role) string {
	t.Helper()
	raw, err := e.tokens.IssueAccess(&schemas.User{ID: userID, Email: userID + "@example.com", Role: role})
	require.NoError(t, err)
	return raw
}

// do sends body (a string or any JSON-encodable value) and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := stdjson.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool              `json:"success"`
	Data    stdjson.RawMessage `json:"data"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, stdjson.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) envelope {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, stdjson.Unmarshal(env.Data, dst))
	return env
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, stdjson.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}
