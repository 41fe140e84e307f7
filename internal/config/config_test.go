package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaresga/simtemp/internal/config"
	"github.com/amaresga/simtemp/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simtempctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device = "/dev/simtemp1"
sysfs_root = "/tmp/simtemp"
poll_interval_ms = 250
buffer_capacity = 42
recheck_seconds = 3
log_level = "debug"
telemetry = true
telemetry_db = "/path/to/history.db"
telemetry_batch_timeout = "2s"
kafka_brokers = ["broker1:9092", "broker2:9092"]
dbus = true
`)

	t.Setenv("SIMTEMPCTL_CONFIG", path)

	cfg, err := config.Load(config.WithArgs())
	require.NoError(t, err)

	assert.Equal(t, "/dev/simtemp1", cfg.Device)
	assert.Equal(t, "/tmp/simtemp", cfg.SysfsRoot)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 42, cfg.BufferCapacity)
	assert.Equal(t, 3*time.Second, cfg.RecheckPeriod())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Telemetry)
	assert.Equal(t, "/path/to/history.db", cfg.TelemetryDB)
	assert.Equal(t, 2*time.Second, cfg.TelemetryBatchTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.DBus)
	assert.Equal(t, path, cfg.ConfigFile())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SIMTEMPCTL_CONFIG", "")

	cfg, err := config.Load(config.WithArgs())
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 100, cfg.BufferCapacity)
	assert.Equal(t, 2*time.Second, cfg.RecheckPeriod())
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Telemetry)
	assert.Equal(t, 50, cfg.TelemetryBatchSize)
	assert.Equal(t, 5*time.Second, cfg.TelemetryBatchTimeout)
	assert.Equal(t, "simtemp-alerts", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, config.DefaultCommand, cfg.Command)
	assert.True(t, cfg.Overrides.Empty())
	assert.Equal(t, config.DefaultHistoryLimit, cfg.Overrides.Limit)
	assert.Equal(t, config.DefaultTestTimeout, cfg.Overrides.Timeout)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, "This is not a valid TOML file\n")

	_, err := config.Load(config.WithConfigFile(path), config.WithArgs())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.WithConfigFile(filepath.Join(t.TempDir(), "absent.toml")), config.WithArgs())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `log_level = "loud"`)

	_, err := config.Load(config.WithConfigFile(path), config.WithArgs())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"zero poll interval", []string{"--poll-interval-ms=0"}, errors.ErrInvalidInterval},
		{"zero recheck", []string{"--recheck-seconds=0"}, errors.ErrInvalidInterval},
		{"negative capacity", []string{"--buffer-capacity=-1"}, errors.ErrInvalidConfig},
		{"enable and disable", []string{"set", "--enable", "--disable"}, errors.ErrInvalidConfig},
		{"negative limit", []string{"history", "--limit=-5"}, errors.ErrInvalidConfig},
	}

	t.Setenv("SIMTEMPCTL_CONFIG", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.WithArgs(tt.args...))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
poll_interval_ms = 250
log_level = "error"
`)

	cfg, err := config.Load(
		config.WithConfigFile(path),
		config.WithArgs("--poll-interval-ms=100", "--debug"),
	)
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestVerboseFlag(t *testing.T) {
	t.Setenv("SIMTEMPCTL_CONFIG", "")

	cfg, err := config.Load(config.WithArgs("--verbose"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `buffer_capacity = 10`)
	t.Setenv("SIMTEMPCTL_BUFFER_CAPACITY", "77")

	cfg, err := config.Load(config.WithConfigFile(path), config.WithArgs())
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.BufferCapacity)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("SIMTEMPCTL_CONFIG", "")
	t.Setenv("SIMTEST_DEVICE", "/dev/other")

	cfg, err := config.Load(config.WithEnvPrefix("SIMTEST"), config.WithArgs())
	require.NoError(t, err)
	assert.Equal(t, "/dev/other", cfg.Device)
}

func TestCommandAndOverrides(t *testing.T) {
	t.Setenv("SIMTEMPCTL_CONFIG", "")

	cfg, err := config.Load(config.WithArgs("set", "--sampling-ms=200", "--threshold-mc=0", "--mode=ramp", "--enable"))
	require.NoError(t, err)

	assert.Equal(t, "set", cfg.Command)
	assert.Empty(t, cfg.Args)
	require.NotNil(t, cfg.Overrides.SamplingMs)
	assert.Equal(t, 200, *cfg.Overrides.SamplingMs)
	require.NotNil(t, cfg.Overrides.ThresholdMC, "explicit zero must count as set")
	assert.Equal(t, 0, *cfg.Overrides.ThresholdMC)
	assert.Equal(t, "ramp", cfg.Overrides.Mode)
	assert.True(t, cfg.Overrides.Enable)
	assert.False(t, cfg.Overrides.Empty())
}

func TestUnknownFlag(t *testing.T) {
	_, err := config.Load(config.WithArgs("--no-such-flag"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestLogLevel_IsValid(t *testing.T) {
	assert.True(t, config.LogLevelDebug.IsValid())
	assert.True(t, config.LogLevelWarning.IsValid())
	assert.False(t, config.LogLevel("trace").IsValid())
	assert.Equal(t, "error", config.LogLevelError.String())
}

func TestWatchWithoutFile(t *testing.T) {
	t.Setenv("SIMTEMPCTL_CONFIG", "")

	cfg, err := config.Load(config.WithArgs())
	require.NoError(t, err)
	assert.NoError(t, cfg.Watch(context.Background(), func(*config.Config) {
		t.Fatal("callback without a config file")
	}))
}

func TestWatchReloadsLogLevel(t *testing.T) {
	path := writeConfig(t, `log_level = "warning"`)

	cfg, err := config.Load(config.WithConfigFile(path), config.WithArgs())
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		level string
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, cfg.Watch(ctx, func(next *config.Config) {
		mu.Lock()
		level = next.LogLevel
		mu.Unlock()
	}))

	// fsnotify needs the watch in place before the write lands
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "debug"`), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return level == "debug"
	}, 3*time.Second, 20*time.Millisecond)
}
