package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/voyagen/guidevault/internal/models"
)

// ErrInvalidAccount is returned when a provider account is missing its id or url.
var ErrInvalidAccount = errors.New("provider account needs an id and a url")

// Config holds application configuration.
type Config struct {
	DatabaseURL string // empty selects the in-memory store
	RedisURL    string
	ServerPort  string

	UserAgent            string
	Timeout              time.Duration // per fetch
	MaxBodyBytes         int64
	AllowPrivateNetworks bool

	RefreshTimeout     time.Duration
	RefreshConcurrency int

	SchedulerStartupDelay time.Duration
	SchedulerLocation     *time.Location

	JobWorkers      int
	XtreamRateLimit float64 // requests per second, per account

	LogLevel  string
	LogFormat string

	Accounts []models.ProviderAccount
}

const (
	defaultPort         = "8080"
	defaultUserAgent    = "GuideVault/1.0"
	defaultMaxBodyBytes = 200 << 20
	minStartupDelay     = 5 * time.Second
	maxStartupDelay     = 10 * time.Second
)

// Load builds config from environment variables. .env.local and .env in the
// current directory are loaded first; variables already set win.
func Load() (*Config, error) {
	loadEnvFiles()
	c := fromEnv()
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadEnvFiles() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

func fromEnv() *Config {
	c := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		ServerPort:            getEnv("SERVER_PORT", defaultPort),
		UserAgent:             getEnv("FETCHER_USER_AGENT", defaultUserAgent),
		Timeout:               getEnvDuration("FETCHER_TIMEOUT", 30*time.Second),
		MaxBodyBytes:          getEnvInt64("FETCHER_MAX_BYTES", defaultMaxBodyBytes),
		AllowPrivateNetworks:  getEnvBool("FETCHER_ALLOW_PRIVATE", false),
		RefreshTimeout:        getEnvDuration("REFRESH_TIMEOUT", 2*time.Minute),
		RefreshConcurrency:    getEnvInt("REFRESH_CONCURRENCY", 4),
		SchedulerStartupDelay: getEnvDuration("SCHEDULER_STARTUP_DELAY", 7*time.Second),
		JobWorkers:            getEnvInt("JOB_WORKERS", 2),
		XtreamRateLimit:       getEnvFloat("XTREAM_RATE_LIMIT", 5),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		SchedulerLocation:     time.Local,
	}
	if tz := os.Getenv("SCHEDULER_TIMEZONE"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			c.SchedulerLocation = loc
		}
	}
	if u := os.Getenv("XTREAM_URL"); u != "" {
		c.Accounts = append(c.Accounts, models.ProviderAccount{
			ID:       1,
			Name:     getEnv("XTREAM_NAME", "default"),
			Kind:     models.AccountXtream,
			URL:      u,
			Username: os.Getenv("XTREAM_USER"),
			Password: os.Getenv("XTREAM_PASS"),
		})
	}
	return c
}

// finish applies defaults and clamps, and validates accounts.
func (c *Config) finish() error {
	if c.ServerPort == "" {
		c.ServerPort = defaultPort
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.RefreshConcurrency < 1 {
		c.RefreshConcurrency = 1
	}
	if c.JobWorkers < 1 {
		c.JobWorkers = 1
	}
	if c.XtreamRateLimit <= 0 {
		c.XtreamRateLimit = 5
	}
	if c.SchedulerStartupDelay < minStartupDelay {
		c.SchedulerStartupDelay = minStartupDelay
	}
	if c.SchedulerStartupDelay > maxStartupDelay {
		c.SchedulerStartupDelay = maxStartupDelay
	}
	if c.SchedulerLocation == nil {
		c.SchedulerLocation = time.Local
	}
	seen := make(map[int64]bool, len(c.Accounts))
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.ID <= 0 || strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("account %q: %w", a.Name, ErrInvalidAccount)
		}
		if seen[a.ID] {
			return fmt.Errorf("account id %d is used twice", a.ID)
		}
		seen[a.ID] = true
		if a.Kind == "" {
			a.Kind = models.AccountXtream
		}
		if a.Kind != models.AccountXtream && a.Kind != models.AccountM3U {
			return fmt.Errorf("account %d: unknown kind %q", a.ID, a.Kind)
		}
	}
	return nil
}

// Account returns the configured provider account with the given id.
func (c *Config) Account(id int64) (*models.ProviderAccount, bool) {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			a := c.Accounts[i]
			return &a, true
		}
	}
	return nil, false
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
