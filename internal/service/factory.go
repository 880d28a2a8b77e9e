// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/internal/apitesting"
	"github.com/xkilldash9x/scriptforge/internal/auth"
	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/engine"
	"github.com/xkilldash9x/scriptforge/internal/enhance"
	"github.com/xkilldash9x/scriptforge/internal/server"
	"github.com/xkilldash9x/scriptforge/internal/store"
	"github.com/xkilldash9x/scriptforge/internal/testdata"
)

// ComponentFactory creates the set of components the API process runs.
// The abstraction keeps the serve command testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct {
	version  string
	openPool PoolOpener
	now      func() time.Time
}

// NewComponentFactory returns the production factory. version is reported
// by the health endpoints.
func NewComponentFactory(version string) ComponentFactory {
	return &concreteFactory{version: version, openPool: InitializePool}
}

// NewComponentFactoryWithPool is NewComponentFactory with a custom pool opener.
func NewComponentFactoryWithPool(version string, open PoolOpener) ComponentFactory {
	return &concreteFactory{version: version, openPool: open}
}

// Create wires the store, auth, enhancement, API testing, test data,
// execution engine and HTTP server together.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	components := &Components{logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Database pool
	pool, err := f.openPool(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Pool = pool

	// 2. Store
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
		return nil, initializationErr
	}
	components.Store = st
	if cfg.Database().MigrateOnServe {
		applied, err := st.Migrate(ctx)
		if err != nil {
			initializationErr = fmt.Errorf("failed to apply migrations: %w", err)
			return nil, initializationErr
		}
		logger.Info("Database schema up to date", zap.Strings("applied", applied))
	}

	// 3. Auth
	ac := cfg.Auth()
	components.Auth = auth.NewService(st, auth.NewTokenManager(ac), ac.BcryptCost, logger)

	// 4. Execution engine
	runner, err := engine.NewRunner(cfg.Engine(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create runner: %w", err)
		return nil, initializationErr
	}
	eng, err := engine.New(cfg, logger, st, runner)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize execution engine: %w", err)
		return nil, initializationErr
	}
	components.Engine = eng

	// 5. Enhancement, API testing and test data
	enhancer := enhance.NewEngine(logger)
	executor := apitesting.NewExecutor(cfg.APITesting(), st, logger)
	tdc := cfg.TestData()
	data := testdata.NewService(
		testdata.NewGenerator(tdc.MaxCount, logger),
		testdata.NewUpstreamClient(tdc, logger),
		logger,
	)

	// 6. HTTP server
	srv, err := server.New(server.Deps{
		Config:   cfg.Server(),
		Enhance:  cfg.Enhance(),
		Store:    st,
		Auth:     components.Auth,
		Queue:    eng,
		Enhancer: enhancer,
		APIs:     executor,
		TestData: data,
		Logger:   logger,
		Version:  f.version,
		Now:      f.now,
	})
	if err != nil {
		initializationErr = fmt.Errorf("failed to create http server: %w", err)
		return nil, initializationErr
	}
	components.Server = srv

	logger.Info("All components initialized successfully.")
	return components, nil
}
