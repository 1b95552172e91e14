package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains the complete configuration for a memory client.
//
// It includes settings for:
//   - Durable store backend (SQLite, PostgreSQL, MySQL)
//   - Volatile cache tier (optional Redis, in-process fallback)
//   - Event bus
//   - Retention sweeps
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./trademem.db",
//	        },
//	    },
//	    Cache: core.CacheConfig{
//	        Redis: &core.RedisConfig{Host: "localhost", Port: 6379},
//	    },
//	}
type Config struct {
	// Namespace prefixes every cache key, isolating instances sharing a
	// backend. Defaults to "trademem".
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	// Store contains durable store configuration.
	Store StoreConfig `json:"store" yaml:"store"`

	// Cache contains cache tier configuration.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Bus contains event bus configuration.
	Bus BusConfig `json:"bus" yaml:"bus"`

	// Retention contains retention sweep configuration.
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// StoreConfig contains configuration for the durable store.
//
// Supported providers: sqlite, postgres, mysql
type StoreConfig struct {
	// Provider is the store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider" yaml:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For PostgreSQL: host, port, user, password, db_name, ssl_mode
	// For MySQL: host, port, user, password, db_name
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// CacheConfig contains configuration for the cache tier.
type CacheConfig struct {
	// Redis is the optional external backend. Nil runs the tier on the
	// in-process fallback alone.
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`

	// MaxEntries bounds the in-process fallback. Defaults to 10000.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`

	// DefaultTTLSeconds applies to entries without a TTL or category
	// default. Defaults to 3600.
	DefaultTTLSeconds int `json:"default_ttl_seconds,omitempty" yaml:"default_ttl_seconds,omitempty"`

	// CategoryTTLSeconds overrides the cache TTL per category.
	CategoryTTLSeconds map[string]int `json:"category_ttl_seconds,omitempty" yaml:"category_ttl_seconds,omitempty"`

	// OpTimeoutMillis is the per-operation budget against a cache
	// backend. Defaults to 100.
	OpTimeoutMillis int `json:"op_timeout_ms,omitempty" yaml:"op_timeout_ms,omitempty"`

	// RecheckSeconds spaces health probes of a degraded external
	// backend. Defaults to 15.
	RecheckSeconds int `json:"recheck_seconds,omitempty" yaml:"recheck_seconds,omitempty"`
}

// RedisConfig contains connection settings for the external cache backend.
type RedisConfig struct {
	// Host is the Redis server hostname.
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port. Defaults to 6379.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Password is the Redis password, empty when authentication is off.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// DB is the Redis database number.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
}

// Addr returns the host:port address of the Redis server.
func (r *RedisConfig) Addr() string {
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", r.Host, port)
}

// BusConfig contains configuration for the event bus.
type BusConfig struct {
	// NodeID feeds event ID generation. Give each process its own node
	// ID when several share a store. Defaults to 1.
	NodeID int64 `json:"node_id,omitempty" yaml:"node_id,omitempty"`
}

// RetentionConfig contains configuration for retention sweeps.
type RetentionConfig struct {
	// SweepIntervalSeconds spaces background sweeps. Defaults to 3600.
	// A negative value disables the background sweeper.
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty" yaml:"sweep_interval_seconds,omitempty"`

	// DaysToKeep is the default entry retention horizon. Defaults to 7.
	DaysToKeep int `json:"days_to_keep,omitempty" yaml:"days_to_keep,omitempty"`

	// CategoryDaysToKeep overrides the retention horizon per category.
	CategoryDaysToKeep map[string]int `json:"category_days_to_keep,omitempty" yaml:"category_days_to_keep,omitempty"`

	// ProcessedEventDays is the retention horizon for processed events.
	// Defaults to 1.
	ProcessedEventDays int `json:"processed_event_days,omitempty" yaml:"processed_event_days,omitempty"`
}

// DefaultConfig returns a configuration with a local SQLite store, no
// external cache, and the standard per-category TTLs.
func DefaultConfig() *Config {
	return &Config{
		Namespace: "trademem",
		Store: StoreConfig{
			Provider: "sqlite",
			Config: map[string]interface{}{
				"db_path": "./trademem.db",
			},
		},
		Cache: CacheConfig{
			MaxEntries:        10000,
			DefaultTTLSeconds: 3600,
			CategoryTTLSeconds: map[string]int{
				CategoryMarketData:    3600,
				CategoryAgentDecision: 1800,
				CategoryTradingSignal: 900,
				CategorySystemState:   300,
				CategoryEvent:         300,
			},
			OpTimeoutMillis: 100,
			RecheckSeconds:  15,
		},
		Bus: BusConfig{
			NodeID: 1,
		},
		Retention: RetentionConfig{
			SweepIntervalSeconds: 3600,
			DaysToKeep:           7,
			ProcessedEventDays:   1,
		},
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Overrides DefaultConfig with the parsed variables
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB
//   - MEMORY_NAMESPACE, CACHE_MAX_ENTRIES, CACHE_DEFAULT_TTL
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	// Use FindEnvFile to locate .env file (supports upward search)
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	config := DefaultConfig()
	config.Namespace = getEnvOrDefault("MEMORY_NAMESPACE", config.Namespace)

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")
	config.Store.Provider = provider

	switch provider {
	case "sqlite":
		config.Store.Config = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./trademem.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		config.Store.Config = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "trademem"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		config.Store.Config = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "trademem"),
		}
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		port, _ := strconv.Atoi(getEnvOrDefault("REDIS_PORT", "6379"))
		db, _ := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
		config.Cache.Redis = &RedisConfig{
			Host:     host,
			Port:     port,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		}
	}

	if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("CACHE_DEFAULT_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Cache.DefaultTTLSeconds = n
		}
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set:
//   - Store provider must be sqlite, postgres, or mysql
//   - A configured Redis backend must carry a host
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	switch c.Store.Provider {
	case "sqlite", "postgres", "mysql":
	default:
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Cache.Redis != nil && c.Cache.Redis.Host == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	// First check the current directory
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	// Search upward toward the project root
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

// configString reads a string from a provider config map.
func configString(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// configInt reads an integer from a provider config map. JSON decoding
// yields float64, YAML yields int.
func configInt(m map[string]interface{}, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
