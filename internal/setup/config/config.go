package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrUnknownCacheBackend   = errors.New("unknown cache backend")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.1.0"

// Current version of the config file.
const (
	CurrentCommonVersion   = 1
	CurrentTimelineVersion = 1
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config represents the entire application configuration.
type Config struct {
	Common   CommonConfig
	Timeline TimelineConfig
}

// CommonConfig contains configuration shared by every command.
type CommonConfig struct {
	// Version of the common config.
	Version        int            `koanf:"version"`
	Debug          Debug          `koanf:"debug"`
	CircuitBreaker CircuitBreaker `koanf:"circuit_breaker"`
	Retry          Retry          `koanf:"retry"`
	ProfileDB      PostgreSQL     `koanf:"profile_db" envPrefix:"TIMELINE_PROFILE_DB_"`
	ContentDB      PostgreSQL     `koanf:"content_db" envPrefix:"TIMELINE_CONTENT_DB_"`
	Graph          Graph          `koanf:"graph"`
	Redis          Redis          `koanf:"redis"`
	Telemetry      Telemetry      `koanf:"telemetry"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// CircuitBreaker contains circuit breaker configuration shared by all store guards.
type CircuitBreaker struct {
	// Maximum number of requests allowed to pass through when the circuit is half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// The cyclic period in milliseconds of the closed state to clear the internal counts.
	Interval int `koanf:"interval"`
	// The period in milliseconds of the open state after which the circuit becomes half-open.
	Timeout int `koanf:"timeout"`
	// Minimum requests observed before the circuit may open.
	MinRequests uint32 `koanf:"min_requests"`
	// Failure ratio that opens the circuit.
	FailureRatio float64 `koanf:"failure_ratio"`
	// Maximum concurrent calls per store.
	MaxConcurrent int64 `koanf:"max_concurrent"`
}

// Retry contains retry configuration.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
	// Maximum total retry time in milliseconds.
	MaxElapsed int `koanf:"max_elapsed"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host" env:"HOST"`
	// Database port.
	Port int `koanf:"port" env:"PORT"`
	// Database username.
	User string `koanf:"user" env:"USER"`
	// Database password.
	Password string `koanf:"password" env:"PASSWORD"`
	// Database name.
	DBName string `koanf:"db_name" env:"NAME"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Graph contains social graph store configuration.
type Graph struct {
	// Path of the SQLite database file.
	Path string `koanf:"path" env:"TIMELINE_GRAPH_PATH"`
	// Number of pooled connections.
	PoolSize int `koanf:"pool_size"`
	// Busy timeout in milliseconds.
	BusyTimeout int `koanf:"busy_timeout"`
	// Follower count from which a user is high fan-out (0 disables the threshold).
	HighFanoutMinFollowers int `koanf:"high_fanout_min_followers"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host" env:"TIMELINE_REDIS_HOST"`
	// Redis port.
	Port int `koanf:"port" env:"TIMELINE_REDIS_PORT"`
	// Redis username.
	Username string `koanf:"username" env:"TIMELINE_REDIS_USERNAME"`
	// Redis password.
	Password string `koanf:"password" env:"TIMELINE_REDIS_PASSWORD"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN; tracing export is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn" env:"UPTRACE_DSN"`
	// Deployment environment reported with every span.
	Environment string `koanf:"environment"`
}

// TimelineConfig contains timeline service configuration.
type TimelineConfig struct {
	// Version of the timeline config.
	Version    int        `koanf:"version"`
	Aggregator Aggregator `koanf:"aggregator"`
	Cache      Cache      `koanf:"cache"`
	Server     Server     `koanf:"server"`
}

// Aggregator tunes timeline assembly.
type Aggregator struct {
	// Number of followee comments per timeline.
	CommentLimit int `koanf:"comment_limit"`
	// Maximum concurrent ancestor lookups per timeline.
	MaxInFlight int `koanf:"max_in_flight"`
	// Timeout in milliseconds for the ancestor lookups of one comment (0 disables).
	AncestryTimeout int `koanf:"ancestry_timeout"`
	// Share one assembly between concurrent requests for the same user.
	Coalesce bool `koanf:"coalesce"`
}

// Cache configures the result cache.
type Cache struct {
	// Backend is "memory" or "redis".
	Backend string `koanf:"backend"`
	// Maximum cached timelines in memory (0 is unbounded).
	Capacity int `koanf:"capacity"`
	// Time to live in seconds (0 never expires).
	TTL int `koanf:"ttl"`
}

// Server configures the HTTP server.
type Server struct {
	// Host to bind to.
	Host string `koanf:"host"`
	// Port to listen on.
	Port int `koanf:"port"`
	// Per-request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Read timeout in milliseconds.
	ReadTimeout int `koanf:"read_timeout"`
	// Write timeout in milliseconds.
	WriteTimeout int `koanf:"write_timeout"`
}

// LoadConfig loads the configuration from the default search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".timeline",
		homeDir + "/.timeline/config",
		"/etc/timeline/config",
		"/app/config",
		"config",
		".",
	}

	return LoadConfigFrom(configPaths)
}

// LoadConfigFrom loads the configuration files from the first matching path for each.
// Values from the environment (and a .env file next to the config) override secrets.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	k := koanf.New(".")

	// Load all config files
	var usedConfigPath string

	configFiles := []string{"common", "timeline"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("timeline", config.Timeline.Version, CurrentTimelineVersion); err != nil {
		return nil, "", err
	}

	// Existing environment variables win over the .env file
	envFile := filepath.Join(usedConfigPath, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, "", fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	switch config.Timeline.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, "":
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownCacheBackend, config.Timeline.Cache.Backend)
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/timeline/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
