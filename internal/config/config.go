// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Evidence EvidenceConfig `mapstructure:"evidence"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	PDF      PDFConfig      `mapstructure:"pdfparser"`
	Mail     MailConfig     `mapstructure:"mail"`
	Demo     DemoConfig     `mapstructure:"demo"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the API HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig points at the redis instance used for the scheduler lock.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScheduleConfig governs the periodic crawl cadence.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// CrawlerConfig governs the crawl worker pool and fetch behavior.
type CrawlerConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
}

// EvidenceConfig governs the evidence worker pool.
type EvidenceConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AlertsConfig governs critical alert delivery.
type AlertsConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	HourlyCap   int `mapstructure:"hourly_cap"`
}

// PDFConfig points at the external PDF-parsing service.
type PDFConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// MailConfig points at the transactional mail service.
type MailConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	From    string `mapstructure:"from"`
}

// DemoConfig routes matching URLs to the in-process fetcher.
type DemoConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Pattern string `mapstructure:"pattern"`
	UserID  string `mapstructure:"user_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRUSTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Operator-facing aliases kept stable across deploys.
	_ = v.BindEnv("schedule.cron", "CRAWL_SCHEDULE", "TRUSTWATCH_SCHEDULE_CRON")
	_ = v.BindEnv("demo.enabled", "DEMO_MODE", "TRUSTWATCH_DEMO_ENABLED")
	_ = v.BindEnv("db.dsn", "DATABASE_URL", "TRUSTWATCH_DB_DSN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR", "TRUSTWATCH_REDIS_ADDR")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("schedule.cron", "0 */6 * * *")
	v.SetDefault("crawler.concurrency", 3)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.user_agent", "trustwatch-bot/1.0")
	v.SetDefault("crawler.poll_interval_ms", 500)
	v.SetDefault("evidence.concurrency", 2)
	v.SetDefault("evidence.timeout_seconds", 120)
	v.SetDefault("alerts.concurrency", 1)
	v.SetDefault("alerts.hourly_cap", 5)
	v.SetDefault("demo.pattern", `://([a-z0-9-]+\.)?demo\.`)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Evidence.Concurrency <= 0 {
		return fmt.Errorf("evidence.concurrency must be > 0")
	}
	if c.Alerts.HourlyCap <= 0 {
		return fmt.Errorf("alerts.hourly_cap must be > 0")
	}
	if c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron must be set")
	}
	return nil
}

// FetchTimeout returns the per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// ParseTimeout returns the per-PDF-parse deadline.
func (c Config) ParseTimeout() time.Duration {
	return time.Duration(c.Evidence.TimeoutSeconds) * time.Second
}

// PollInterval returns the queue poll cadence for idle workers.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Crawler.PollIntervalMs) * time.Millisecond
}
