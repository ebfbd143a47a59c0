package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the optimization engine.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Bus          BusConfig          `yaml:"bus"`
	Logging      LoggingConfig      `yaml:"logging"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Optimization OptimizationConfig `yaml:"optimization"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DatabaseConfig configures the Postgres store. An empty DSN selects the
// in-memory store, which is only suitable for local development.
type DatabaseConfig struct {
	DSN            string        `yaml:"dsn"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxConnectWait time.Duration `yaml:"maxConnectWait"`
}

// BusConfig configures the NATS publisher for adjustment events.
type BusConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SchedulerConfig controls the background automation loop. Hours are local
// wall-clock hours in the 24h range; ValidationWeekday follows time.Weekday
// numbering (0 = Sunday).
type SchedulerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	OptimizationHour  int           `yaml:"optimizationHour"`
	WorkOrderHour     int           `yaml:"workOrderHour"`
	ValidationWeekday int           `yaml:"validationWeekday"`
	ValidationHour    int           `yaml:"validationHour"`
	Method            string        `yaml:"method"`
	ValidationDays    int           `yaml:"validationDays"`
}

// OptimizationConfig holds analysis defaults applied when a request does not
// specify its own.
type OptimizationConfig struct {
	LookBackDays int `yaml:"lookBackDays"`
}

// Load initialises Config from a YAML file and optional environment
// overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MAINT_OPT_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8085",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			ConnectTimeout: 5 * time.Second,
			MaxConnectWait: 60 * time.Second,
		},
		Bus: BusConfig{
			Enabled: false,
			Subject: "maint.adjustments.applied",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			PollInterval:      time.Minute,
			OptimizationHour:  1,
			WorkOrderHour:     2,
			ValidationWeekday: 1, // Monday
			ValidationHour:    3,
			Method:            "weibull",
			ValidationDays:    90,
		},
		Optimization: OptimizationConfig{LookBackDays: 180},
	}
}

func validate(cfg *Config) error {
	if cfg.Optimization.LookBackDays <= 0 {
		return fmt.Errorf("optimization.lookBackDays must be positive")
	}
	if cfg.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.pollInterval must be positive")
	}
	for _, hour := range []int{cfg.Scheduler.OptimizationHour, cfg.Scheduler.WorkOrderHour, cfg.Scheduler.ValidationHour} {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("scheduler hours must be within 0-23")
		}
	}
	if cfg.Scheduler.ValidationWeekday < 0 || cfg.Scheduler.ValidationWeekday > 6 {
		return fmt.Errorf("scheduler.validationWeekday must be within 0-6")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MAINT_OPT_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MAINT_OPT_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MAINT_OPT_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MAINT_OPT_DB_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.ConnectTimeout = d
		}
	}
	if v := os.Getenv("MAINT_OPT_BUS_URL"); v != "" {
		cfg.Bus.URL = v
		cfg.Bus.Enabled = true
	}
	if v := os.Getenv("MAINT_OPT_BUS_SUBJECT"); v != "" {
		cfg.Bus.Subject = v
	}
	if v := os.Getenv("MAINT_OPT_BUS_ENABLED"); v != "" {
		cfg.Bus.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MAINT_OPT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MAINT_OPT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MAINT_OPT_SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MAINT_OPT_SCHEDULER_METHOD"); v != "" {
		cfg.Scheduler.Method = v
	}
	if v := os.Getenv("MAINT_OPT_SCHEDULER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.PollInterval = d
		}
	}
	if v := os.Getenv("MAINT_OPT_LOOK_BACK_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Optimization.LookBackDays = days
		}
	}
}
