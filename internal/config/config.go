// File: internal/config/config.go
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Server() ServerConfig
	Auth() AuthConfig
	Engine() EngineConfig
	Enhance() EnhanceConfig
	APITesting() APITestingConfig
	TestData() TestDataConfig

	// Engine Setters
	SetEngineWorkerConcurrency(int)
	SetEngineRunner(string)

	// Server Setters
	SetServerPort(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
	AuthCfg       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	EngineCfg     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	EnhanceCfg    EnhanceConfig    `mapstructure:"enhance" yaml:"enhance"`
	APITestingCfg APITestingConfig `mapstructure:"apitesting" yaml:"apitesting"`
	TestDataCfg   TestDataConfig   `mapstructure:"testdata" yaml:"testdata"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }
func (c *Config) Auth() AuthConfig             { return c.AuthCfg }
func (c *Config) Engine() EngineConfig         { return c.EngineCfg }
func (c *Config) Enhance() EnhanceConfig       { return c.EnhanceCfg }
func (c *Config) APITesting() APITestingConfig { return c.APITestingCfg }
func (c *Config) TestData() TestDataConfig     { return c.TestDataCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetEngineWorkerConcurrency(w int) { c.EngineCfg.WorkerConcurrency = w }
func (c *Config) SetEngineRunner(r string)         { c.EngineCfg.Runner = r }
func (c *Config) SetServerPort(p int)              { c.ServerCfg.Port = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal color names.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig accepts either a full URL or discrete connection fields.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Name           string        `mapstructure:"name" yaml:"name"`
	User           string        `mapstructure:"user" yaml:"user"`
	Password       string        `mapstructure:"password" yaml:"-"`
	SSLMode        string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	MigrateOnServe bool          `mapstructure:"migrate_on_serve" yaml:"migrate_on_serve"`
}

// DSN returns the connection string. The URL wins when set; otherwise one is built
// from the discrete fields. Local hosts get sslmode=disable unless one is given.
func (d DatabaseConfig) DSN() string {
	dsn := d.URL
	if dsn == "" {
		if d.Host == "" {
			return ""
		}
		u := &url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.Name,
		}
		if d.User != "" {
			if d.Password != "" {
				u.User = url.UserPassword(d.User, d.Password)
			} else {
				u.User = url.User(d.User)
			}
		}
		if d.SSLMode != "" {
			u.RawQuery = "sslmode=" + url.QueryEscape(d.SSLMode)
		}
		dsn = u.String()
	}

	if isLocalDSN(dsn) && !strings.Contains(dsn, "sslmode=") {
		if strings.Contains(dsn, "?") {
			dsn += "&sslmode=disable"
		} else {
			dsn += "?sslmode=disable"
		}
	}
	return dsn
}

func isLocalDSN(dsn string) bool {
	return strings.Contains(dsn, "localhost") || strings.Contains(dsn, "127.0.0.1")
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int             `mapstructure:"port" yaml:"port"`
	Environment     string          `mapstructure:"environment" yaml:"environment"`
	CORSOrigins     []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxy bool `mapstructure:"trust_proxy" yaml:"trust_proxy"`
}

// IsDevelopment reports whether the server runs with development relaxations.
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "" || s.Environment == "development"
}

// RateLimitConfig bounds requests per client over a window.
type RateLimitConfig struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	WindowMS    int  `mapstructure:"window_ms" yaml:"window_ms"`
	MaxRequests int  `mapstructure:"max_requests" yaml:"max_requests"`
}

// Window returns the window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" yaml:"-"`
	RefreshSecret string        `mapstructure:"refresh_secret" yaml:"-"`
	AccessTTL     time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
	BcryptCost    int           `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
	Issuer        string        `mapstructure:"issuer" yaml:"issuer"`
}

// EngineConfig configures the test run execution pool.
type EngineConfig struct {
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	Runner            string        `mapstructure:"runner" yaml:"runner"`
	Command           []string      `mapstructure:"command" yaml:"command"`
	WorkDir           string        `mapstructure:"work_dir" yaml:"work_dir"`
	KeepWorkDir       bool          `mapstructure:"keep_work_dir" yaml:"keep_work_dir"`
	SimulatedStepTime time.Duration `mapstructure:"simulated_step_time" yaml:"simulated_step_time"`
}

// EnhanceConfig configures the script enhancement rule engine.
type EnhanceConfig struct {
	Categories    []string `mapstructure:"categories" yaml:"categories"`
	Priority      []string `mapstructure:"priority" yaml:"priority"`
	BatchLimit    int      `mapstructure:"batch_limit" yaml:"batch_limit"`
	BatchParallel int      `mapstructure:"batch_parallel" yaml:"batch_parallel"`
}

// APITestingConfig configures the API test executor.
type APITestingConfig struct {
	DefaultTimeout   time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// TestDataConfig configures local generation and the optional upstream AI service.
type TestDataConfig struct {
	AIServiceURL   string        `mapstructure:"ai_service_url" yaml:"ai_service_url"`
	AIServiceToken string        `mapstructure:"ai_service_token" yaml:"-"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetryTime   time.Duration `mapstructure:"max_retry_time" yaml:"max_retry_time"`
	MaxCount       int           `mapstructure:"max_count" yaml:"max_count"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshaling defaults cannot fail for the known structure.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scriptforge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migrate_on_serve", false)

	// -- Server --
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.window_ms", 900000)
	v.SetDefault("server.rate_limit.max_requests", 100)

	// -- Auth --
	v.SetDefault("auth.access_ttl", "10h")
	v.SetDefault("auth.refresh_ttl", "15h")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.issuer", "scriptforge")

	// -- Engine --
	v.SetDefault("engine.queue_size", 256)
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.run_timeout", "10m")
	v.SetDefault("engine.runner", "simulated")
	v.SetDefault("engine.command", []string{"npx", "playwright", "test"})
	v.SetDefault("engine.work_dir", "~/.scriptforge/runs")
	v.SetDefault("engine.keep_work_dir", false)
	v.SetDefault("engine.simulated_step_time", "250ms")

	// -- Enhance --
	v.SetDefault("enhance.categories", []string{})
	v.SetDefault("enhance.priority", []string{})
	v.SetDefault("enhance.batch_limit", 50)
	v.SetDefault("enhance.batch_parallel", 8)

	// -- API Testing --
	v.SetDefault("apitesting.default_timeout", "5s")
	v.SetDefault("apitesting.max_response_bytes", 5<<20)
	v.SetDefault("apitesting.user_agent", "scriptforge-apitest/1.0")

	// -- Test Data --
	v.SetDefault("testdata.timeout", "30s")
	v.SetDefault("testdata.max_retry_time", "45s")
	v.SetDefault("testdata.max_count", 1000)
}

// bindLegacyEnv maps the plain environment variable names used by existing
// deployments onto configuration keys.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.name", "DB_NAME")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET", "JWT_ACCESS_SECRET")
	_ = v.BindEnv("auth.refresh_secret", "JWT_REFRESH_SECRET")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.environment", "NODE_ENV", "APP_ENV")
	_ = v.BindEnv("server.cors_origins", "CORS_ORIGIN")
	_ = v.BindEnv("server.rate_limit.window_ms", "RATE_LIMIT_WINDOW_MS")
	_ = v.BindEnv("server.rate_limit.max_requests", "RATE_LIMIT_MAX_REQUESTS")
	_ = v.BindEnv("testdata.ai_service_url", "AI_ANALYSIS_SERVICE_URL", "PYTHON_API_URL")
	_ = v.BindEnv("testdata.ai_service_token", "PYTHON_API_TOKEN")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	bindLegacyEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ServerCfg.CORSOrigins = splitOrigins(cfg.ServerCfg.CORSOrigins)
	if cfg.AuthCfg.RefreshSecret == "" {
		cfg.AuthCfg.RefreshSecret = cfg.AuthCfg.JWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// splitOrigins normalizes origins that may arrive as one comma separated value.
func splitOrigins(in []string) []string {
	var out []string
	for _, raw := range in {
		for _, p := range strings.Split(raw, ",") {
			if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// knownCategories mirrors the enhancement category tags. It is duplicated here
// so the config package stays free of domain imports.
var knownCategories = map[string]struct{}{
	"selector": {}, "wait": {}, "assertion": {}, "page-object": {}, "parameterization": {},
	"error-handling": {}, "logging": {}, "retry": {}, "best-practice": {},
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ServerCfg.Port <= 0 {
		return fmt.Errorf("server.port must be a positive integer")
	}
	if c.EngineCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.EngineCfg.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be a positive integer")
	}
	switch c.EngineCfg.Runner {
	case "simulated":
	case "command":
		if len(c.EngineCfg.Command) == 0 {
			return fmt.Errorf("engine.command is required when engine.runner is 'command'")
		}
	default:
		return fmt.Errorf("engine.runner must be 'simulated' or 'command', got '%s'", c.EngineCfg.Runner)
	}
	if c.AuthCfg.JWTSecret == "" && !c.ServerCfg.IsDevelopment() {
		return fmt.Errorf("auth.jwt_secret is required outside development")
	}
	if c.ServerCfg.RateLimit.Enabled && (c.ServerCfg.RateLimit.WindowMS <= 0 || c.ServerCfg.RateLimit.MaxRequests <= 0) {
		return fmt.Errorf("server.rate_limit window_ms and max_requests must be positive when enabled")
	}
	if err := c.EnhanceCfg.Validate(); err != nil {
		return fmt.Errorf("enhance configuration invalid: %w", err)
	}
	return nil
}

// Validate checks that every configured category tag is known.
func (e *EnhanceConfig) Validate() error {
	for _, list := range [][]string{e.Categories, e.Priority} {
		for _, c := range list {
			if _, ok := knownCategories[c]; !ok {
				return fmt.Errorf("unknown enhancement category '%s'", c)
			}
		}
	}
	if e.BatchLimit <= 0 {
		return fmt.Errorf("batch_limit must be a positive integer")
	}
	return nil
}
