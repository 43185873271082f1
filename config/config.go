// ABOUTME: Centralized service configuration loaded from defaults, an optional YAML file, and environment variables.
// ABOUTME: Environment variables always win so container deployments can override a checked-in config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the outreach service.
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`

	DryRun             bool          `yaml:"dry_run"`
	AIMode             bool          `yaml:"ai_mode"`
	DefaultCount       int           `yaml:"default_count"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	MaxRetries         int           `yaml:"max_retries"`
	StageTimeout       time.Duration `yaml:"stage_timeout"`

	// Schedule is an optional cron expression; when set, a full pipeline run
	// is started on that schedule using the defaults above.
	Schedule string `yaml:"schedule"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`

	RulesPath string `yaml:"rules_path"`
}

// Default returns the baseline configuration before file and environment overrides.
func Default() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8000,
		DatabasePath:       "data/outreach.db",
		LogLevel:           "info",
		DryRun:             true,
		AIMode:             false,
		DefaultCount:       200,
		RateLimitPerMinute: 10,
		MaxRetries:         2,
		StageTimeout:       0,
		OpenAIModel:        "gpt-4o-mini",
		SMTPHost:           "localhost",
		SMTPPort:           1025,
		SMTPFrom:           "outreach@example.com",
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// and finally environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) applyEnv() error {
	envString(&c.Host, "APP_HOST")
	envString(&c.DatabasePath, "DATABASE_PATH")
	envString(&c.LogLevel, "LOG_LEVEL")
	envString(&c.Schedule, "SCHEDULE")
	envString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	envString(&c.OpenAIModel, "LLM_MODEL")
	envString(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	envString(&c.SMTPHost, "SMTP_HOST")
	envString(&c.SMTPUsername, "SMTP_USERNAME")
	envString(&c.SMTPPassword, "SMTP_PASSWORD")
	envString(&c.SMTPFrom, "SMTP_FROM")
	envString(&c.RulesPath, "RULES_PATH")

	if err := envInt(&c.Port, "APP_PORT"); err != nil {
		return err
	}
	if err := envInt(&c.DefaultCount, "DEFAULT_COUNT"); err != nil {
		return err
	}
	if err := envInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE"); err != nil {
		return err
	}
	if err := envInt(&c.MaxRetries, "MAX_RETRIES"); err != nil {
		return err
	}
	if err := envInt(&c.SMTPPort, "SMTP_PORT"); err != nil {
		return err
	}
	if err := envBool(&c.DryRun, "DRY_RUN"); err != nil {
		return err
	}
	if err := envBool(&c.AIMode, "AI_MODE"); err != nil {
		return err
	}
	if err := envDuration(&c.StageTimeout, "STAGE_TIMEOUT"); err != nil {
		return err
	}
	return nil
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*dst = d
	return nil
}
