// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var cfgFile string

// dotenvCandidates are tried in order; the first one found is loaded.
var dotenvCandidates = []string{".env", "../.env", "../../.env"}

// Execute builds the command tree and runs it with the given context.
func Execute(ctx context.Context) error {
	rootCmd, _ := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger := observability.GetLogger()
		if errors.Is(err, context.Canceled) {
			logger.Info("Command aborted by signal")
		} else {
			logger.Error("Command execution failed", zap.Error(err))
		}
		observability.Sync()
		return err
	}
	observability.Sync()
	return nil
}

// newRootCmd creates the root command. The returned pointer receives the
// loaded configuration once PersistentPreRunE has run, which lets tests
// inspect it.
func newRootCmd() (*cobra.Command, *config.Interface) {
	var appConfig config.Interface

	rootCmd := &cobra.Command{
		Use:          "scriptforge",
		Short:        "ScriptForge is a test automation backend for Playwright scripts.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadDotEnv(dotenvCandidates); err != nil {
				return fmt.Errorf("failed to load .env file: %w", err)
			}

			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "scriptforge"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
			)

			appConfig = cfg
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, appConfig))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.scriptforge/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newEnhanceCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd, &appConfig
}

// getConfig returns the configuration stored by the root PersistentPreRunE.
func getConfig(cmd *cobra.Command) (config.Interface, error) {
	if ctx := cmd.Context(); ctx != nil {
		if cfg, ok := ctx.Value(configKey).(config.Interface); ok && cfg != nil {
			return cfg, nil
		}
	}
	return nil, errors.New("configuration not loaded")
}

// loadDotEnv loads the first existing file of candidates, overriding values
// already present in the process environment. It returns the file used.
func loadDotEnv(candidates []string) (string, error) {
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

// initializeConfig reads the config file and wires environment variables.
func initializeConfig(v *viper.Viper) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".scriptforge"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SCRIPTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
