package config

import (
	"fmt"
	"os"
	"time"

	"github.com/voyagen/guidevault/internal/models"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL           string                   `yaml:"database_url"`
	RedisURL              string                   `yaml:"redis_url"`
	ServerPort            string                   `yaml:"server_port"`
	UserAgent             string                   `yaml:"user_agent"`
	Timeout               string                   `yaml:"timeout"`
	MaxBodyBytes          int64                    `yaml:"max_body_bytes"`
	AllowPrivateNetworks  *bool                    `yaml:"allow_private_networks"`
	RefreshTimeout        string                   `yaml:"refresh_timeout"`
	RefreshConcurrency    int                      `yaml:"refresh_concurrency"`
	SchedulerStartupDelay string                   `yaml:"scheduler_startup_delay"`
	SchedulerTimezone     string                   `yaml:"scheduler_timezone"`
	JobWorkers            int                      `yaml:"job_workers"`
	XtreamRateLimit       float64                  `yaml:"xtream_rate_limit"`
	LogLevel              string                   `yaml:"log_level"`
	LogFormat             string                   `yaml:"log_format"`
	Accounts              []models.ProviderAccount `yaml:"accounts"`
}

// LoadFromFile loads config from a YAML file. Keys the file leaves empty
// fall back to the environment (and its defaults).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	loadEnvFiles()
	c := fromEnv()
	setString(&c.DatabaseURL, f.DatabaseURL)
	setString(&c.RedisURL, f.RedisURL)
	setString(&c.ServerPort, f.ServerPort)
	setString(&c.UserAgent, f.UserAgent)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFormat, f.LogFormat)
	if err := setDuration(&c.Timeout, "timeout", f.Timeout); err != nil {
		return nil, err
	}
	if err := setDuration(&c.RefreshTimeout, "refresh_timeout", f.RefreshTimeout); err != nil {
		return nil, err
	}
	if err := setDuration(&c.SchedulerStartupDelay, "scheduler_startup_delay", f.SchedulerStartupDelay); err != nil {
		return nil, err
	}
	if f.SchedulerTimezone != "" {
		loc, err := time.LoadLocation(f.SchedulerTimezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler_timezone: %w", err)
		}
		c.SchedulerLocation = loc
	}
	if f.MaxBodyBytes > 0 {
		c.MaxBodyBytes = f.MaxBodyBytes
	}
	if f.AllowPrivateNetworks != nil {
		c.AllowPrivateNetworks = *f.AllowPrivateNetworks
	}
	if f.RefreshConcurrency > 0 {
		c.RefreshConcurrency = f.RefreshConcurrency
	}
	if f.JobWorkers > 0 {
		c.JobWorkers = f.JobWorkers
	}
	if f.XtreamRateLimit > 0 {
		c.XtreamRateLimit = f.XtreamRateLimit
	}
	if len(f.Accounts) > 0 {
		c.Accounts = f.Accounts
	}

	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
