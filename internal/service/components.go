// File: internal/service/components.go
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scriptforge/internal/auth"
	"github.com/xkilldash9x/scriptforge/internal/engine"
	"github.com/xkilldash9x/scriptforge/internal/server"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

// Components holds every initialized service the API process runs.
// It centralizes their lifecycle.
type Components struct {
	Pool   Pool
	Store  *store.Store
	Auth   *auth.Service
	Engine *engine.Engine
	Server *server.Server

	// TokenSweepInterval is how often expired refresh tokens are purged.
	TokenSweepInterval time.Duration

	logger    *zap.Logger
	janitorWG sync.WaitGroup
	stopOnce  sync.Once
}

// Run starts the execution engine, the token janitor and the HTTP server,
// and blocks until ctx is cancelled or the server fails. The components
// are shut down before Run returns.
func (c *Components) Run(ctx context.Context) error {
	defer c.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	if c.Engine != nil {
		c.Engine.Start()
	}
	if c.Auth != nil {
		StartTokenJanitor(gctx, &c.janitorWG, c.Auth, c.TokenSweepInterval, c.logger.Named("janitor"))
	}
	g.Go(func() error {
		return c.Server.Run(gctx)
	})
	return g.Wait()
}

// Shutdown releases the components in dependency order. It is safe to call
// more than once and on a partially built set.
func (c *Components) Shutdown() {
	c.stopOnce.Do(func() {
		logger := c.logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Debug("Beginning components shutdown sequence.")

		// 1. Stop accepting work; queued runs are recorded as cancelled.
		if c.Engine != nil {
			c.Engine.Stop()
			logger.Debug("Execution engine stopped.")
		}

		// 2. The janitor exits once the run context is done.
		c.janitorWG.Wait()

		// 3. The pool goes last since the engine persists outcomes through it.
		if c.Pool != nil {
			c.Pool.Close()
			logger.Debug("Database connection pool closed.")
		}
		logger.Info("All components shut down.")
	})
}
