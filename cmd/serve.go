// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/observability"
	"github.com/xkilldash9x/scriptforge/internal/service"
)

// newComponentFactory is swapped out in tests.
var newComponentFactory = func() service.ComponentFactory {
	return service.NewComponentFactory(Version)
}

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the execution engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyServeFlagOverrides(cmd, cfg); err != nil {
				return err
			}

			components, err := newComponentFactory().Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			logger.Info("Starting ScriptForge API",
				zap.String("version", Version),
				zap.Int("port", cfg.Server().Port),
				zap.String("environment", cfg.Server().Environment),
				zap.String("runner", cfg.Engine().Runner),
				zap.Int("workers", cfg.Engine().WorkerConcurrency),
			)
			if err := components.Run(ctx); err != nil {
				return fmt.Errorf("server stopped with error: %w", err)
			}
			logger.Info("ScriptForge API stopped")
			return nil
		},
	}

	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on. (Overrides config/env)")
	serveCmd.Flags().IntP("concurrency", "j", 0, "Number of concurrent execution workers. (Overrides config/env)")
	serveCmd.Flags().String("runner", "", "Execution runner, 'simulated' or 'command'. (Overrides config/env)")

	return serveCmd
}

// applyServeFlagOverrides copies explicitly set flags onto cfg.
func applyServeFlagOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		port, _ := flags.GetInt("port")
		if port < 0 {
			return fmt.Errorf("--port must not be negative, got %d", port)
		}
		cfg.SetServerPort(port)
	}
	if flags.Changed("concurrency") {
		n, _ := flags.GetInt("concurrency")
		if n <= 0 {
			return fmt.Errorf("--concurrency must be a positive integer, got %d", n)
		}
		cfg.SetEngineWorkerConcurrency(n)
	}
	if flags.Changed("runner") {
		runner, _ := flags.GetString("runner")
		switch runner {
		case "simulated", "command":
			cfg.SetEngineRunner(runner)
		default:
			return fmt.Errorf("--runner must be 'simulated' or 'command', got '%s'", runner)
		}
	}
	return nil
}
