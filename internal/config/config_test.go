package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Auth requires a master key when enabled; disable it so defaults load.
	t.Setenv("CW_AUTH_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Database.MaxConns != 25 || cfg.Database.MinConns != 5 {
		t.Errorf("db pool = %d/%d, want 25/5", cfg.Database.MaxConns, cfg.Database.MinConns)
	}
	if cfg.Redis.PoolSize != 25 {
		t.Errorf("redis pool size = %d, want 25", cfg.Redis.PoolSize)
	}
	if cfg.Rollup.CacheTTL != time.Minute {
		t.Errorf("cache ttl = %v, want 1m", cfg.Rollup.CacheTTL)
	}
	if cfg.Rollup.RevenuePerSignup != 40.0 || cfg.Rollup.LifetimeMultiplier != 1.5 {
		t.Errorf("revenue defaults = %v/%v", cfg.Rollup.RevenuePerSignup, cfg.Rollup.LifetimeMultiplier)
	}
	if cfg.Rollup.ClickRate != 0.15 || cfg.Rollup.EstimatedCostPerSession != 0.75 {
		t.Errorf("estimate defaults = %v/%v", cfg.Rollup.ClickRate, cfg.Rollup.EstimatedCostPerSession)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CW_AUTH_ENABLED", "false")
	t.Setenv("CW_REDIS_POOL_SIZE", "50")
	t.Setenv("CW_DB_MAX_CONNS", "40")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.PoolSize != 50 {
		t.Errorf("redis pool size = %d, want 50", cfg.Redis.PoolSize)
	}
	if cfg.Database.MaxConns != 40 {
		t.Errorf("db max conns = %d, want 40", cfg.Database.MaxConns)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.Auth.Enabled = true
	c.Rollup.ClickRate = 0.15
	if err := c.Validate(); err == nil {
		t.Error("auth enabled without master key should fail validation")
	}

	c.Auth.MasterKey = "k"
	c.Rollup.ClickRate = 0
	if err := c.Validate(); err == nil {
		t.Error("zero click rate should fail validation")
	}

	c.Rollup.ClickRate = 0.15
	if err := c.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		DBName: "w", SSLMode: "disable",
	}
	want := "postgres://u:p@db:5432/w?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
}
