package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amaresga/simtemp/internal/config"
	"github.com/amaresga/simtemp/internal/device"
	"github.com/amaresga/simtemp/internal/device/devicetest"
	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/monitor"
	"github.com/amaresga/simtemp/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func sample(ts uint64, mC int32, crossed bool) record.Sample {
	s := record.Sample{TimestampNs: ts, TempMC: mC, Flags: record.FlagNewSample}
	if crossed {
		s.Flags |= record.FlagThresholdCrossed
	}
	return s
}

func TestBuildUpdate(t *testing.T) {
	u, err := buildUpdate(config.Overrides{
		SamplingMs:  intPtr(250),
		ThresholdMC: intPtr(-1000),
		Mode:        "noisy",
		Disable:     true,
	})
	require.NoError(t, err)

	require.NotNil(t, u.SamplingMs)
	assert.EqualValues(t, 250, *u.SamplingMs)
	require.NotNil(t, u.ThresholdMC)
	assert.EqualValues(t, -1000, *u.ThresholdMC)
	require.NotNil(t, u.Mode)
	assert.Equal(t, device.ModeNoisy, *u.Mode)
	require.NotNil(t, u.Enabled)
	assert.False(t, *u.Enabled)
}

func TestBuildUpdateEmpty(t *testing.T) {
	u, err := buildUpdate(config.Overrides{Limit: 20})
	require.NoError(t, err)
	assert.True(t, u.Empty())
}

func TestBuildUpdateRejects(t *testing.T) {
	tests := []struct {
		name string
		o    config.Overrides
		code errors.ErrorCode
	}{
		{"negative sampling", config.Overrides{SamplingMs: intPtr(-1)}, device.ErrConfigOutOfRange},
		{"huge threshold", config.Overrides{ThresholdMC: intPtr(1 << 40)}, device.ErrConfigOutOfRange},
		{"unknown mode", config.Overrides{Mode: "turbo"}, device.ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildUpdate(tt.o)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch(context.Background(), &config.Config{Command: "bogus"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidCommand))
}

func TestAlertTest(t *testing.T) {
	fake := devicetest.New("/dev/simtemp")
	fake.Push(sample(1, 30000, false), sample(2, 30100, false), sample(3, 30200, true))
	ctrl := device.NewController(fake, nil)

	s, err := alertTest(context.Background(), fake, ctrl, time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, s.ThresholdCrossed())
	assert.EqualValues(t, 3, s.TimestampNs)

	cfg, err := fake.GetConfig()
	require.NoError(t, err)
	assert.EqualValues(t, 45000, cfg.ThresholdMC, "threshold restored")
	assert.True(t, cfg.Enabled)
}

func TestAlertTestTimesOut(t *testing.T) {
	fake := devicetest.New("/dev/simtemp")
	fake.Push(sample(1, 30000, false))
	ctrl := device.NewController(fake, nil)

	start := time.Now()
	_, err := alertTest(context.Background(), fake, ctrl, 150*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrAlertNotSeen), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)

	cfg, err := fake.GetConfig()
	require.NoError(t, err)
	assert.EqualValues(t, 45000, cfg.ThresholdMC)
}

func TestAlertTestRestoresDisabledDevice(t *testing.T) {
	fake := devicetest.New("/dev/simtemp")
	ctrl := device.NewController(fake, nil)
	require.NoError(t, ctrl.SetEnabled(false))
	fake.Push(sample(1, 20000, false), sample(2, 20000, true))

	_, err := alertTest(context.Background(), fake, ctrl, time.Second, 50*time.Millisecond)
	require.NoError(t, err)

	cfg, err := fake.GetConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestAlertTestHandleLost(t *testing.T) {
	fake := devicetest.New("/dev/simtemp")
	fake.Lose()
	ctrl := device.NewController(fake, nil)

	_, err := alertTest(context.Background(), fake, ctrl, time.Second, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, device.IsHandleLost(err))
}

func TestStatusLine(t *testing.T) {
	st := monitor.Stats{
		Samples:    10,
		Alerts:     1,
		OriginNs:   1_000_000_000,
		HasOrigin:  true,
		Interval:   50 * time.Millisecond,
		LastSample: sample(3_500_000_000, 46250, true),
		HasSample:  true,
	}

	line := statusLine(st)
	assert.Contains(t, line, "2.500s")
	assert.Contains(t, line, "46.250°C")
	assert.Contains(t, line, "alert=YES")
	assert.Contains(t, line, "samples=10")
	assert.Contains(t, line, "alerts=1")
	assert.Contains(t, line, "refresh=50ms")
}

func writeAttrs(t *testing.T, dir string, attrs map[string]string) {
	t.Helper()
	for name, value := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o644))
	}
}

func TestResolveTargetWithoutTree(t *testing.T) {
	tgt := resolveTarget(&config.Config{
		Device:    "/dev/null",
		SysfsRoot: filepath.Join(t.TempDir(), "absent"),
	})
	assert.Equal(t, "/dev/null", tgt.path)
	assert.Nil(t, tgt.attributes())
}

func TestRunConfigFromAttributes(t *testing.T) {
	dir := t.TempDir()
	writeAttrs(t, dir, map[string]string{
		"sampling_ms":  "200",
		"threshold_mC": "42000",
		"mode":         "ramp",
		"enabled":      "1",
	})
	out := captureStdout(t)

	err := runConfig(context.Background(), &config.Config{
		Device:    filepath.Join(dir, "no-device"),
		SysfsRoot: dir,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"sampling_ms":200,"threshold_mC":42000,"mode":"ramp","enabled":true}`, out.String())
}

func TestRunSetWritesAttributes(t *testing.T) {
	dir := t.TempDir()
	writeAttrs(t, dir, map[string]string{
		"sampling_ms":  "100",
		"threshold_mC": "45000",
		"mode":         "normal",
		"enabled":      "1",
	})
	captureStdout(t)

	err := runSet(context.Background(), &config.Config{
		Device:    filepath.Join(dir, "no-device"),
		SysfsRoot: dir,
		Overrides: config.Overrides{SamplingMs: intPtr(250), Mode: "noisy"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "sampling_ms"))
	require.NoError(t, err)
	assert.Equal(t, "250", strings.TrimSpace(string(data)))
	data, err = os.ReadFile(filepath.Join(dir, "mode"))
	require.NoError(t, err)
	assert.Equal(t, "noisy", strings.TrimSpace(string(data)))
}

func TestRunSetNeedsOverrides(t *testing.T) {
	err := runSet(context.Background(), &config.Config{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestRunStatsFromAttributes(t *testing.T) {
	dir := t.TempDir()
	writeAttrs(t, dir, map[string]string{
		"stats": "updates: 12\nalerts: 3\nbuffer_usage: 25%",
	})
	out := captureStdout(t)

	err := runStats(context.Background(), &config.Config{
		Device:    filepath.Join(dir, "no-device"),
		SysfsRoot: dir,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"attributes":{"updates":12,"alerts":3,"buffer_usage":25}}`, out.String())
}

func TestRunFlushNeedsDevice(t *testing.T) {
	err := runFlush(context.Background(), &config.Config{
		Device:    filepath.Join(t.TempDir(), "no-device"),
		SysfsRoot: t.TempDir(),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, device.ErrDeviceNotFound))
}
