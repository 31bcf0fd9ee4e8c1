package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the subharvest server.
type Config struct {
	Server ServerConfig
	Search SearchConfig
	Reddit RedditConfig
	Jobs   JobsConfig
	Redis  RedisConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// SearchConfig configures the time-indexed submission search client and the
// pagination engine that drives it.
type SearchConfig struct {
	Mirrors         []string
	Timeout         time.Duration
	PageSize        int
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	PacePerSecond   float64
	ChunkAttempts   int
	EmptyChunkPause time.Duration
}

type RedditConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type JobsConfig struct {
	Workers       int
	QueueSize     int
	MaxResults    int
	Retention     time.Duration
	SweepSchedule string
	OutputDir     string
}

// RedisConfig is optional; rate limiting is disabled when URL is empty.
type RedisConfig struct {
	URL            string
	RequestsPerMin int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SUBHARVEST_PORT", 8080),
			Env:  envString("SUBHARVEST_ENV", "development"),
		},
		Search: SearchConfig{
			Mirrors:         envList("SEARCH_MIRRORS", []string{"https://api.pushshift.io", "https://api.pullpush.io"}),
			Timeout:         envDuration("SEARCH_TIMEOUT", 30*time.Second),
			PageSize:        envInt("SEARCH_PAGE_SIZE", 100),
			MaxAttempts:     envInt("SEARCH_MAX_ATTEMPTS", 3),
			RetryBaseDelay:  envDuration("SEARCH_RETRY_BASE_DELAY", 500*time.Millisecond),
			RetryMaxDelay:   envDuration("SEARCH_RETRY_MAX_DELAY", 10*time.Second),
			PacePerSecond:   envFloat("SEARCH_PACE_PER_SECOND", 2),
			ChunkAttempts:   envInt("SEARCH_CHUNK_ATTEMPTS", 3),
			EmptyChunkPause: envDuration("SEARCH_EMPTY_CHUNK_PAUSE", 2*time.Second),
		},
		Reddit: RedditConfig{
			BaseURL:   envString("REDDIT_BASE_URL", "https://www.reddit.com"),
			UserAgent: envString("REDDIT_USER_AGENT", "subharvest/0.1"),
			Timeout:   envDuration("REDDIT_TIMEOUT", 30*time.Second),
		},
		Jobs: JobsConfig{
			Workers:       envInt("JOB_WORKERS", 2),
			QueueSize:     envInt("JOB_QUEUE_SIZE", 32),
			MaxResults:    envInt("JOB_MAX_RESULTS", 500),
			Retention:     envDuration("JOB_RETENTION", time.Hour),
			SweepSchedule: envString("JOB_SWEEP_SCHEDULE", "@every 10m"),
			OutputDir:     envString("JOB_OUTPUT_DIR", os.TempDir()),
		},
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			RequestsPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Search.Mirrors) == 0 {
		return fmt.Errorf("SEARCH_MIRRORS must list at least one base URL")
	}
	for _, m := range c.Search.Mirrors {
		if !strings.HasPrefix(m, "http://") && !strings.HasPrefix(m, "https://") {
			return fmt.Errorf("SEARCH_MIRRORS entries must start with http:// or https://, got %q", m)
		}
	}

	if !strings.HasPrefix(c.Reddit.BaseURL, "http://") && !strings.HasPrefix(c.Reddit.BaseURL, "https://") {
		return fmt.Errorf("REDDIT_BASE_URL must start with http:// or https://, got %q", c.Reddit.BaseURL)
	}

	if c.Search.PageSize <= 0 {
		return fmt.Errorf("SEARCH_PAGE_SIZE must be positive, got %d", c.Search.PageSize)
	}
	if c.Search.MaxAttempts <= 0 {
		return fmt.Errorf("SEARCH_MAX_ATTEMPTS must be positive, got %d", c.Search.MaxAttempts)
	}
	if c.Search.ChunkAttempts <= 0 {
		return fmt.Errorf("SEARCH_CHUNK_ATTEMPTS must be positive, got %d", c.Search.ChunkAttempts)
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.MaxResults <= 0 {
		return fmt.Errorf("JOB_MAX_RESULTS must be positive, got %d", c.Jobs.MaxResults)
	}
	if c.Jobs.Retention <= 0 {
		return fmt.Errorf("JOB_RETENTION must be positive, got %s", c.Jobs.Retention)
	}

	if info, err := os.Stat(c.Jobs.OutputDir); err != nil || !info.IsDir() {
		return fmt.Errorf("JOB_OUTPUT_DIR %q is not a directory", c.Jobs.OutputDir)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
