package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the campaign warehouse service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Rollup     RollupConfig
	Upstream   UpstreamConfig
	Hierarchy  HierarchyConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ClickHouseConfig configures the hourly performance warehouse connection.
type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled     bool
	RollupRPS   float64
	RollupBurst int
	MgmtRPS     float64
	MgmtBurst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// RollupConfig carries the leaf-assembly heuristics and response caching
// knobs. The revenue figures replicate the upstream business rules as-is;
// they are assumptions, not derived values.
type RollupConfig struct {
	CacheTTL time.Duration
	// RevenuePerSignup is the dollar value attributed to one credit-card
	// signup.
	RevenuePerSignup float64
	// LifetimeMultiplier scales window revenue into lifetime revenue.
	LifetimeMultiplier float64
	// ClickRate is the assumed session-to-click rate used to estimate raw
	// clicks from sessions.
	ClickRate float64
	// EstimatedCostPerSession prices campaigns that have no API-sourced or
	// manual cost.
	EstimatedCostPerSession float64
}

// UpstreamConfig configures the tracker API the sync pipeline pulls from.
type UpstreamConfig struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

// HierarchyConfig configures the mapping rule engine.
type HierarchyConfig struct {
	RulesFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("CW_HTTP_ADDR", ":8080"),
			Env:             getEnv("CW_ENV", "development"),
			ShutdownTimeout: getDurationEnv("CW_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("CW_DB_HOST", "localhost"),
			Port:     getIntEnv("CW_DB_PORT", 5432),
			User:     getEnv("CW_DB_USER", "warehouse"),
			Password: getEnv("CW_DB_PASSWORD", "warehouse_secret"),
			DBName:   getEnv("CW_DB_NAME", "warehouse"),
			SSLMode:  getEnv("CW_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("CW_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("CW_DB_MIN_CONNS", 5),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getEnv("CW_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("CW_CLICKHOUSE_DB", "warehouse"),
			User:     getEnv("CW_CLICKHOUSE_USER", "default"),
			Password: getEnv("CW_CLICKHOUSE_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("CW_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CW_REDIS_PASSWORD", ""),
			DB:       getIntEnv("CW_REDIS_DB", 0),
			PoolSize: getIntEnv("CW_REDIS_POOL_SIZE", 25),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("CW_AUTH_ENABLED", true),
			MasterKey: getEnv("CW_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("CW_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("CW_RATE_LIMIT_ENABLED", true),
			RollupRPS:   getFloatEnv("CW_RATE_LIMIT_ROLLUP_RPS", 50),
			RollupBurst: getIntEnv("CW_RATE_LIMIT_ROLLUP_BURST", 20),
			MgmtRPS:     getFloatEnv("CW_RATE_LIMIT_MGMT_RPS", 100),
			MgmtBurst:   getIntEnv("CW_RATE_LIMIT_MGMT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("CW_LOG_LEVEL", "info"),
			Format: getEnv("CW_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("CW_METRICS_ENABLED", true),
			Path:    getEnv("CW_METRICS_PATH", "/metrics"),
		},
		Rollup: RollupConfig{
			CacheTTL:                getDurationEnv("CW_ROLLUP_CACHE_TTL", time.Minute),
			RevenuePerSignup:        getFloatEnv("CW_REVENUE_PER_SIGNUP", 40.0),
			LifetimeMultiplier:      getFloatEnv("CW_LIFETIME_MULTIPLIER", 1.5),
			ClickRate:               getFloatEnv("CW_CLICK_RATE", 0.15),
			EstimatedCostPerSession: getFloatEnv("CW_ESTIMATED_COST_PER_SESSION", 0.75),
		},
		Upstream: UpstreamConfig{
			BaseURL:    getEnv("CW_UPSTREAM_BASE_URL", ""),
			APIToken:   getEnv("CW_UPSTREAM_API_TOKEN", ""),
			Timeout:    getDurationEnv("CW_UPSTREAM_TIMEOUT", 30*time.Second),
			MaxRetries: getIntEnv("CW_UPSTREAM_MAX_RETRIES", 3),
			RetryBase:  getDurationEnv("CW_UPSTREAM_RETRY_BASE", time.Second),
		},
		Hierarchy: HierarchyConfig{
			RulesFile: getEnv("CW_HIERARCHY_RULES_FILE", "config/hierarchy_rules.yaml"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("CW_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Rollup.ClickRate <= 0 {
		return fmt.Errorf("CW_CLICK_RATE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
