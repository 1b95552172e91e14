package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trademem "github.com/ainautilus/trademem-go/pkg/core"
)

func TestDefaultConfig(t *testing.T) {
	config := trademem.DefaultConfig()
	require.NotNil(t, config)
	require.NoError(t, config.Validate())

	assert.Equal(t, "trademem", config.Namespace)
	assert.Equal(t, "sqlite", config.Store.Provider)
	assert.Equal(t, "./trademem.db", config.Store.Config["db_path"])
	assert.Nil(t, config.Cache.Redis)
	assert.Equal(t, 10000, config.Cache.MaxEntries)
	assert.Equal(t, 3600, config.Cache.DefaultTTLSeconds)
	assert.Equal(t, 3600, config.Cache.CategoryTTLSeconds[trademem.CategoryMarketData])
	assert.Equal(t, 1800, config.Cache.CategoryTTLSeconds[trademem.CategoryAgentDecision])
	assert.Equal(t, 900, config.Cache.CategoryTTLSeconds[trademem.CategoryTradingSignal])
	assert.Equal(t, int64(1), config.Bus.NodeID)
	assert.Equal(t, 3600, config.Retention.SweepIntervalSeconds)
	assert.Equal(t, 7, config.Retention.DaysToKeep)
	assert.Equal(t, 1, config.Retention.ProcessedEventDays)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *trademem.Config
		wantErr bool
	}{
		{
			name: "valid config with SQLite",
			config: &trademem.Config{
				Store: trademem.StoreConfig{
					Provider: "sqlite",
					Config: map[string]interface{}{
						"db_path": "./test.db",
					},
				},
			},
			wantErr: false,
		},
		{
			name: "valid config with PostgreSQL",
			config: &trademem.Config{
				Store: trademem.StoreConfig{
					Provider: "postgres",
					Config: map[string]interface{}{
						"host": "localhost",
					},
				},
			},
			wantErr: false,
		},
		{
			name: "valid config with Redis cache",
			config: &trademem.Config{
				Store: trademem.StoreConfig{Provider: "sqlite"},
				Cache: trademem.CacheConfig{
					Redis: &trademem.RedisConfig{Host: "localhost", Port: 6379},
				},
			},
			wantErr: false,
		},
		{
			name: "missing store provider",
			config: &trademem.Config{
				Store: trademem.StoreConfig{Provider: ""},
			},
			wantErr: true,
		},
		{
			name: "unknown store provider",
			config: &trademem.Config{
				Store: trademem.StoreConfig{Provider: "mongodb"},
			},
			wantErr: true,
		},
		{
			name: "Redis cache without host",
			config: &trademem.Config{
				Store: trademem.StoreConfig{Provider: "sqlite"},
				Cache: trademem.CacheConfig{
					Redis: &trademem.RedisConfig{Port: 6379},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, trademem.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		verify  func(t *testing.T, config *trademem.Config)
	}{
		{
			name: "SQLite with custom path",
			envVars: map[string]string{
				"DATABASE_PROVIDER": "sqlite",
				"SQLITE_PATH":       "./custom.db",
			},
			verify: func(t *testing.T, config *trademem.Config) {
				assert.Equal(t, "sqlite", config.Store.Provider)
				assert.Equal(t, "./custom.db", config.Store.Config["db_path"])
			},
		},
		{
			name: "PostgreSQL connection settings",
			envVars: map[string]string{
				"DATABASE_PROVIDER": "postgres",
				"POSTGRES_HOST":     "db.internal",
				"POSTGRES_PORT":     "5433",
				"POSTGRES_USER":     "trader",
				"POSTGRES_DATABASE": "trademem_test",
			},
			verify: func(t *testing.T, config *trademem.Config) {
				assert.Equal(t, "postgres", config.Store.Provider)
				assert.Equal(t, "db.internal", config.Store.Config["host"])
				assert.Equal(t, 5433, config.Store.Config["port"])
				assert.Equal(t, "trader", config.Store.Config["user"])
				assert.Equal(t, "trademem_test", config.Store.Config["db_name"])
			},
		},
		{
			name: "Redis enabled by REDIS_HOST",
			envVars: map[string]string{
				"DATABASE_PROVIDER": "sqlite",
				"REDIS_HOST":        "cache.internal",
				"REDIS_PORT":        "6380",
				"REDIS_DB":          "2",
			},
			verify: func(t *testing.T, config *trademem.Config) {
				require.NotNil(t, config.Cache.Redis)
				assert.Equal(t, "cache.internal", config.Cache.Redis.Host)
				assert.Equal(t, 6380, config.Cache.Redis.Port)
				assert.Equal(t, 2, config.Cache.Redis.DB)
				assert.Equal(t, "cache.internal:6380", config.Cache.Redis.Addr())
			},
		},
		{
			name: "cache tuning overrides",
			envVars: map[string]string{
				"DATABASE_PROVIDER": "sqlite",
				"MEMORY_NAMESPACE":  "trademem_it",
				"CACHE_MAX_ENTRIES": "500",
				"CACHE_DEFAULT_TTL": "120",
			},
			verify: func(t *testing.T, config *trademem.Config) {
				assert.Equal(t, "trademem_it", config.Namespace)
				assert.Equal(t, 500, config.Cache.MaxEntries)
				assert.Equal(t, 120, config.Cache.DefaultTTLSeconds)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				_ = os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envVars {
					_ = os.Unsetenv(k)
				}
			}()

			config, err := trademem.LoadConfigFromEnv()
			require.NoError(t, err)
			require.NotNil(t, config)
			require.NoError(t, config.Validate())
			tt.verify(t, config)
		})
	}
}

func TestLoadConfigFromJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	data := `{
  "namespace": "trademem_json",
  "store": {
    "provider": "sqlite",
    "config": {"db_path": "./json.db"}
  },
  "cache": {
    "redis": {"host": "localhost", "port": 6379},
    "max_entries": 2000
  },
  "bus": {"node_id": 7},
  "retention": {"days_to_keep": 3}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	config, err := trademem.LoadConfigFromJSON(path)
	require.NoError(t, err)
	require.NotNil(t, config)
	require.NoError(t, config.Validate())

	assert.Equal(t, "trademem_json", config.Namespace)
	assert.Equal(t, "sqlite", config.Store.Provider)
	assert.Equal(t, "./json.db", config.Store.Config["db_path"])
	require.NotNil(t, config.Cache.Redis)
	assert.Equal(t, "localhost", config.Cache.Redis.Host)
	assert.Equal(t, 2000, config.Cache.MaxEntries)
	assert.Equal(t, int64(7), config.Bus.NodeID)
	assert.Equal(t, 3, config.Retention.DaysToKeep)
}

func TestLoadConfigFromJSON_Missing(t *testing.T) {
	config, err := trademem.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Nil(t, config)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `namespace: trademem_yaml
store:
  provider: mysql
  config:
    host: localhost
    port: 3306
    user: root
    db_name: trademem
cache:
  max_entries: 1500
  category_ttl_seconds:
    market_data: 600
retention:
  sweep_interval_seconds: 900
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	config, err := trademem.LoadConfigFromYAML(path)
	require.NoError(t, err)
	require.NotNil(t, config)
	require.NoError(t, config.Validate())

	assert.Equal(t, "trademem_yaml", config.Namespace)
	assert.Equal(t, "mysql", config.Store.Provider)
	assert.Equal(t, "localhost", config.Store.Config["host"])
	assert.Equal(t, 1500, config.Cache.MaxEntries)
	assert.Equal(t, 600, config.Cache.CategoryTTLSeconds["market_data"])
	assert.Equal(t, 900, config.Retention.SweepIntervalSeconds)
}

func TestLoadConfigFromYAML_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [not a mapping"), 0o644))

	config, err := trademem.LoadConfigFromYAML(path)
	assert.Error(t, err)
	assert.Nil(t, config)
}

func TestFindEnvFile(t *testing.T) {
	// This test depends on actual file system state.
	// We only verify the function doesn't panic.
	envPath, found := trademem.FindEnvFile()
	if found {
		assert.NotEmpty(t, envPath)
	} else {
		assert.Empty(t, envPath)
	}
}
