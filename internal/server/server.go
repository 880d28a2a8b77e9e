// File: internal/server/server.go
package server

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/apitesting"
	"github.com/xkilldash9x/scriptforge/internal/auth"
	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/engine"
	"github.com/xkilldash9x/scriptforge/internal/enhance"
	"github.com/xkilldash9x/scriptforge/internal/testdata"
)

// Store is every repository the API reads and writes. *store.Store implements it.
type Store interface {
	Ping(ctx context.Context) error

	ListProjects(ctx context.Context, userID string) ([]schemas.Project, error)
	GetProject(ctx context.Context, id, userID string) (*schemas.Project, error)
	CreateProject(ctx context.Context, userID string, in schemas.ProjectInput) (*schemas.Project, error)
	UpdateProject(ctx context.Context, id, userID string, in schemas.ProjectInput) (*schemas.Project, error)
	DeleteProject(ctx context.Context, id, userID string) error

	ListScripts(ctx context.Context, userID, projectID string) ([]schemas.Script, error)
	GetScriptsByIDs(ctx context.Context, userID string, ids []string) ([]schemas.Script, error)
	GetScript(ctx context.Context, id, userID string) (*schemas.Script, error)
	FindScriptByName(ctx context.Context, userID, name string) (*schemas.Script, error)
	CreateScript(ctx context.Context, userID string, in schemas.ScriptInput) (*schemas.Script, error)
	UpdateScript(ctx context.Context, id, userID string, in schemas.ScriptInput) (*schemas.Script, error)
	ApplyScriptCode(ctx context.Context, id, userID, code string) (*schemas.Script, error)
	DeleteScript(ctx context.Context, id, userID string) error

	ListTestRuns(ctx context.Context, userID, projectID string) ([]schemas.TestRun, error)
	ListActiveTestRuns(ctx context.Context, userID string) ([]schemas.TestRun, error)
	GetTestRun(ctx context.Context, id, userID string) (*schemas.TestRun, error)
	CreateTestRun(ctx context.Context, userID, scriptID string, status schemas.RunStatus, environment, browser string) (*schemas.TestRun, error)
	CreateReportedRun(ctx context.Context, userID, scriptID string, rep schemas.RunReport, environment, browser string) (*schemas.TestRun, error)
	UpdateTestRun(ctx context.Context, id, userID string, in schemas.RunUpdate) (*schemas.TestRun, error)
	StopTestRun(ctx context.Context, id, userID string) (*schemas.TestRun, error)
	SetExecutionReportURL(ctx context.Context, id, userID, url string) (*schemas.TestRun, error)
	ListScriptRuns(ctx context.Context, scriptID, userID string, limit int) ([]schemas.TestRun, error)

	TransitionWorkflow(ctx context.Context, id, userID, from, to string) error
	BatchUpdateWorkflow(ctx context.Context, userID string, ids []string, to string) (int64, error)
	ListScriptsByWorkflow(ctx context.Context, userID, status string) ([]schemas.ScriptSummary, error)
	WorkflowCounts(ctx context.Context, userID string) (map[string]int64, error)

	ListAPISuites(ctx context.Context, userID string) ([]schemas.APITestSuite, error)
	GetAPISuite(ctx context.Context, id, userID string) (*schemas.APITestSuite, error)
	CreateAPISuite(ctx context.Context, userID string, in schemas.APITestSuiteInput) (*schemas.APITestSuite, error)
	UpdateAPISuite(ctx context.Context, id, userID string, in schemas.APITestSuiteInput) (*schemas.APITestSuite, error)
	DeleteAPISuite(ctx context.Context, id, userID string) error
	CreateAPITestCase(ctx context.Context, userID string, c schemas.APITestCase) (*schemas.APITestCase, error)
	ListAPITestCases(ctx context.Context, suiteID, userID string) ([]schemas.APITestCase, error)
	GetExecutableCase(ctx context.Context, id, userID string) (*schemas.ExecutableCase, error)
	ListEnabledCases(ctx context.Context, suiteID, userID string) ([]schemas.ExecutableCase, error)
	CreateContract(ctx context.Context, userID string, k schemas.APIContract) (*schemas.APIContract, error)
	ListContracts(ctx context.Context, suiteID, userID string) ([]schemas.APIContract, error)
	CreateMock(ctx context.Context, userID string, m schemas.APIMock) (*schemas.APIMock, error)
	ListMocks(ctx context.Context, suiteID, userID string) ([]schemas.APIMock, error)
	FindMock(ctx context.Context, suiteID, method, endpoint string) (*schemas.APIMock, error)
	ListBenchmarks(ctx context.Context, caseID, userID string, limit int) ([]schemas.Benchmark, error)
	BenchmarkStats(ctx context.Context, caseID, userID string) (*schemas.BenchmarkStats, error)

	ListTestSuites(ctx context.Context, userID string) ([]schemas.TestSuite, error)
	GetTestSuite(ctx context.Context, id, userID string) (*schemas.TestSuite, error)
	CreateTestSuite(ctx context.Context, userID, name string, description *string) (*schemas.TestSuite, error)
	UpdateTestSuite(ctx context.Context, id, userID string, name, description *string) (*schemas.TestSuite, error)
	DeleteTestSuite(ctx context.Context, id, userID string) error
	ListTestData(ctx context.Context, userID string, f schemas.TestDataFilter) ([]schemas.TestData, error)
	GetTestData(ctx context.Context, id, userID string) (*schemas.TestData, error)
	CreateTestData(ctx context.Context, userID string, in schemas.TestDataInput) (*schemas.TestData, error)
	UpdateTestData(ctx context.Context, id, userID string, in schemas.TestDataInput) (*schemas.TestData, error)
	DeleteTestData(ctx context.Context, id, userID string) error
	SaveGeneratedData(ctx context.Context, userID, suiteID, namePrefix, environment, dataType string, records []stdjson.RawMessage) (int64, error)
	CountScriptTestData(ctx context.Context, userID, scriptName string) (int64, error)

	ListAPIRequests(ctx context.Context, userID, environment string) ([]schemas.APIRequest, error)
	GetAPIRequest(ctx context.Context, id, userID string) (*schemas.APIRequest, error)
	CreateAPIRequest(ctx context.Context, userID string, in schemas.APIRequestInput) (*schemas.APIRequest, error)
	UpdateAPIRequest(ctx context.Context, id, userID string, in schemas.APIRequestInput) (*schemas.APIRequest, error)
	DeleteAPIRequest(ctx context.Context, id, userID string) error
}

// RunQueue accepts runs for asynchronous execution.
type RunQueue interface {
	Submit(job engine.RunJob) error
	Cancel(runID string) bool
}

// APIRunner sends API test cases.
type APIRunner interface {
	Execute(ctx context.Context, tc schemas.ExecutableCase) (*schemas.ExecutionResult, error)
	ExecuteSuite(ctx context.Context, suiteID string, cases []schemas.ExecutableCase) (*schemas.SuiteExecution, error)
}

// DataGenerator produces synthetic test data.
type DataGenerator interface {
	Generate(req testdata.Request) (*testdata.Result, error)
	GenerateWithFallback(ctx context.Context, req testdata.Request) (*testdata.Result, error)
}

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Config   config.ServerConfig
	Enhance  config.EnhanceConfig
	Store    Store
	Auth     *auth.Service
	Queue    RunQueue
	Enhancer *enhance.Engine
	APIs     APIRunner
	TestData DataGenerator
	Logger   *zap.Logger
	Version  string
	// Now is the clock used for health timestamps; nil means time.Now.
	Now func() time.Time
}

// Server hosts the REST API.
type Server struct {
	cfg        config.ServerConfig
	enhanceCfg config.EnhanceConfig
	store      Store
	auth       *auth.Service
	queue      RunQueue
	enhancer   *enhance.Engine
	apis       APIRunner
	data       DataGenerator
	logger     *zap.Logger
	version    string
	now        func() time.Time
	maxBody    int64
	limiter    *rateLimiter
	router     chi.Router
	httpServer *http.Server
}

// New validates the dependencies and builds the router.
func New(d Deps) (*Server, error) {
	if d.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if d.Auth == nil {
		return nil, errors.New("auth service cannot be nil")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	enhancer := d.Enhancer
	if enhancer == nil {
		enhancer = enhance.NewEngine(logger)
	}
	apis := d.APIs
	if apis == nil {
		apis = apitesting.NewExecutor(config.APITestingConfig{}, nil, logger)
	}
	data := d.TestData
	if data == nil {
		data = testdata.NewService(testdata.NewGenerator(0, logger), nil, logger)
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		cfg:        d.Config,
		enhanceCfg: d.Enhance,
		store:      d.Store,
		auth:       d.Auth,
		queue:      d.Queue,
		enhancer:   enhancer,
		apis:       apis,
		data:       data,
		logger:     logger.Named("server"),
		version:    d.Version,
		now:        now,
		maxBody:    d.Config.MaxBodyBytes,
	}
	if rl := d.Config.RateLimit; rl.Enabled && rl.MaxRequests > 0 && rl.WindowMS > 0 {
		s.limiter = newRateLimiter(rl.Window(), rl.MaxRequests, now)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/health", s.handleHealth)
	r.Get("/db/health", s.handleDBHealth)

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Get("/", s.handleAPIIndex)

		r.Route("/auth", s.authRoutes)
		r.Route("/extension", s.extensionRoutes)
		r.Route("/api-testing", func(r chi.Router) {
			r.HandleFunc("/mock/{suiteId}/*", s.handleServeMock)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				s.apiTestingRoutes(r)
			})
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Route("/projects", s.projectRoutes)
			r.Route("/scripts", s.scriptRoutes)
			r.Route("/test-runs", s.testRunRoutes)
			r.Route("/testdata", s.testDataRoutes)
			r.Route("/workflow", s.workflowRoutes)
			r.Route("/pipeline", s.pipelineRoutes)
			r.Route("/api-requests", s.apiRequestRoutes)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Route not found"})
	})
	return r
}

func (s *Server) corsOptions() cors.Options {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort("", strconv.Itoa(s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("address", addr), zap.String("environment", s.cfg.Environment))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server gracefully...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	<-errCh
	s.logger.Info("HTTP server stopped.")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   s.now().UTC().Format(time.RFC3339Nano),
		"version":     s.version,
		"environment": s.cfg.Environment,
	})
}

func (s *Server) handleDBHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Database health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": s.now().UTC().Format(time.RFC3339Nano)})
}

func (s *Server) handleAPIIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"api":     "scriptforge",
		"version": s.version,
		"endpoints": []string{
			"/api/auth/*",
			"/api/projects/*",
			"/api/scripts/*",
			"/api/test-runs/*",
			"/api/api-testing/*",
			"/api/testdata/*",
			"/api/workflow/*",
			"/api/pipeline/*",
			"/api/api-requests/*",
			"/api/extension/*",
		},
	})
}

// apitesting.Executor and testdata.Service are the production implementations.
var (
	_ APIRunner     = (*apitesting.Executor)(nil)
	_ DataGenerator = (*testdata.Service)(nil)
)
