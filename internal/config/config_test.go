package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/cpuprof/internal/constants"
)

func lookupMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "reject", cfg.Profiler.BusyPolicy)
	assert.Equal(t, constants.DefaultBlocklist, cfg.Profiler.Blocklist)
	assert.Zero(t, cfg.Profiler.MaxDuration)
	assert.Equal(t, -1, cfg.Profiler.GzipLevel)
}

func TestLoad_ServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	err := Load(cfg, lookupMap(map[string]string{
		"CPUPROF_ADDR":           "127.0.0.1:9090",
		"CPUPROF_LOG_LEVEL":      "debug",
		"CPUPROF_LOG_PRETTY":     "true",
		"CPUPROF_BLOCKLIST":      "runtime, net/http ,, github.com/vendor/*",
		"CPUPROF_BUSY_POLICY":    "queue",
		"CPUPROF_MAX_DURATION":   "2m",
		"CPUPROF_INCLUDE_OFFCPU": "1",
		"CPUPROF_GZIP_LEVEL":     "9",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, []string{"runtime", "net/http", "github.com/vendor/*"}, cfg.Profiler.Blocklist)
	assert.Equal(t, "queue", cfg.Profiler.BusyPolicy)
	assert.Equal(t, 2*time.Minute, cfg.Profiler.MaxDuration)
	assert.True(t, cfg.Profiler.IncludeOffCPU)
	assert.Equal(t, 9, cfg.Profiler.GzipLevel)
}

func TestLoad_EmptyValuesKeepDefaults(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, Load(cfg, lookupMap(map[string]string{
		"CPUPROF_ADDR":      "  ",
		"CPUPROF_LOG_LEVEL": "",
	})))
	assert.Equal(t, constants.DefaultAddr, cfg.Addr)
	assert.Equal(t, constants.DefaultLogLevel, cfg.Log.Level)
}

func TestLoad_DurationSeconds(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, Load(cfg, lookupMap(map[string]string{"CPUPROF_MAX_DURATION": "90"})))
	assert.Equal(t, 90*time.Second, cfg.Profiler.MaxDuration)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CPUPROF_LOG_PRETTY", "sometimes"},
		{"CPUPROF_MAX_DURATION", "soon"},
		{"CPUPROF_GZIP_LEVEL", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := Load(DefaultServerConfig(), lookupMap(map[string]string{tt.key: tt.value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_RequiresStructPointer(t *testing.T) {
	assert.Error(t, Load(ServerConfig{}, lookupMap(nil)))
	var nilCfg *ServerConfig
	assert.Error(t, Load(nilCfg, lookupMap(nil)))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CPUPROF_ADDR", "localhost:7070")
	t.Setenv("CPUPROF_BUSY_POLICY", "queue")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "localhost:7070", cfg.Addr)
	assert.Equal(t, "queue", cfg.Profiler.BusyPolicy)
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"bad addr", func(c *ServerConfig) { c.Addr = "8080" }},
		{"bad level", func(c *ServerConfig) { c.Log.Level = "loud" }},
		{"bad policy", func(c *ServerConfig) { c.Profiler.BusyPolicy = "drop" }},
		{"negative max", func(c *ServerConfig) { c.Profiler.MaxDuration = -time.Second }},
		{"gzip too high", func(c *ServerConfig) { c.Profiler.GzipLevel = 10 }},
		{"match all", func(c *ServerConfig) { c.Profiler.Blocklist = []string{"*"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultServerConfig()
	cfg.Addr = "8080"
	cfg.Log.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addr")
	assert.Contains(t, err.Error(), "loud")
}
