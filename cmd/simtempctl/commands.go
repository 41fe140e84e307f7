package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/amaresga/simtemp/internal/config"
	"github.com/amaresga/simtemp/internal/device"
	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/record"
	"github.com/amaresga/simtemp/internal/sysfs"
	"github.com/amaresga/simtemp/internal/telemetry"
)

var stdout io.Writer = os.Stdout

// target is the resolved device for one command. Either part may be
// missing; the controller falls back to whichever is present.
type target struct {
	path   string
	tree   *sysfs.Tree
	handle device.Handle
}

func resolveTarget(cfg *config.Config) target {
	t := target{path: cfg.Device}
	if t.path == "" {
		t.path = device.ResolvePath(device.DefaultPaths...)
	}

	if cfg.SysfsRoot != "" {
		t.tree = sysfs.Resolve(cfg.SysfsRoot)
	} else {
		t.tree = sysfs.Resolve()
	}
	logger.Debug().Str("device", t.path).Str("sysfs", t.tree.Root()).Bool("sysfs_found", t.tree.Found()).Msg("Resolved device")

	return t
}

// attributes returns nil, not a nil *sysfs.Tree, when no tree was found.
func (t target) attributes() device.Attributes {
	if t.tree == nil || !t.tree.Found() {
		return nil
	}
	return t.tree
}

// open opens the device node. A missing node is tolerated when the
// attribute tree can serve the command alone.
func (t *target) open(requireHandle bool) error {
	h, err := device.Open(t.path)
	if err != nil {
		if requireHandle || t.attributes() == nil {
			return err
		}
		logger.Debug().Err(err).Msg("Device node unavailable, using attributes only")
		return nil
	}
	t.handle = h

	return nil
}

func (t target) controller() *device.Controller {
	return device.NewController(t.handle, t.attributes())
}

func (t target) close() {
	if t.handle == nil {
		return
	}
	if err := t.handle.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close device")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runConfig(_ context.Context, cfg *config.Config) error {
	t := resolveTarget(cfg)
	if err := t.open(false); err != nil {
		return err
	}
	defer t.close()

	current, err := t.controller().Current()
	if err != nil {
		return err
	}

	return printJSON(current)
}

// buildUpdate converts command flags into a device update. Values are
// range-checked by the controller before any write.
func buildUpdate(o config.Overrides) (device.Update, error) {
	var u device.Update

	if o.SamplingMs != nil {
		if *o.SamplingMs < 0 || *o.SamplingMs > device.MaxSamplingMs {
			return u, errors.New().WithData(device.ErrConfigOutOfRange, *o.SamplingMs)
		}
		ms := uint32(*o.SamplingMs)
		u.SamplingMs = &ms
	}
	if o.ThresholdMC != nil {
		if *o.ThresholdMC < device.MinThresholdMC || *o.ThresholdMC > device.MaxThresholdMC {
			return u, errors.New().WithData(device.ErrConfigOutOfRange, *o.ThresholdMC)
		}
		mC := int32(*o.ThresholdMC)
		u.ThresholdMC = &mC
	}
	if o.Mode != "" {
		m, err := device.ParseMode(o.Mode)
		if err != nil {
			return u, err
		}
		u.Mode = &m
	}
	if o.Enable || o.Disable {
		enabled := o.Enable
		u.Enabled = &enabled
	}

	return u, nil
}

func runSet(_ context.Context, cfg *config.Config) error {
	u, err := buildUpdate(cfg.Overrides)
	if err != nil {
		return err
	}
	if u.Empty() {
		return errors.New().WithMessage(errors.ErrInvalidArgument,
			"set needs at least one of --sampling-ms, --threshold-mc, --mode, --enable, --disable")
	}

	t := resolveTarget(cfg)
	if err := t.open(false); err != nil {
		return err
	}
	defer t.close()

	applied, err := t.controller().Update(u)
	if err != nil {
		return err
	}
	logger.Info().Uint32("sampling_ms", applied.SamplingMs).Int32("threshold_mC", applied.ThresholdMC).
		Str("mode", applied.Mode.String()).Bool("enabled", applied.Enabled).Msg("Configuration applied")

	return printJSON(applied)
}

type statsReport struct {
	Attributes sysfs.Stats         `json:"attributes,omitempty"`
	Driver     *device.DriverStats `json:"driver,omitempty"`
}

func runStats(_ context.Context, cfg *config.Config) error {
	t := resolveTarget(cfg)
	if err := t.open(false); err != nil {
		return err
	}
	defer t.close()

	var report statsReport

	if t.attributes() != nil {
		st, err := t.controller().Stats()
		switch {
		case err == nil:
			report.Attributes = st
		case errors.HasCode(err, sysfs.ErrAttributeMissing):
			logger.Debug().Msg("Stats attribute not exported")
		default:
			return err
		}
	}

	if t.handle != nil {
		ds, err := t.handle.GetStats()
		if err != nil {
			logger.Debug().Err(err).Msg("Driver statistics unavailable")
		} else {
			report.Driver = &ds
		}
	}

	if report.Attributes == nil && report.Driver == nil {
		return errors.New().WithMessage(sysfs.ErrAttributeMissing, "no statistics source available")
	}

	return printJSON(report)
}

func runHistory(ctx context.Context, cfg *config.Config) error {
	store, err := telemetry.NewService(telemetry.Config{
		DBPath:    cfg.TelemetryDB,
		BatchSize: 1,
		Enabled:   true,
	}, logger.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(ctx, cfg.Overrides.Limit)
	if err != nil {
		return err
	}

	for _, e := range entries {
		alert := ""
		if e.Sample.ThresholdCrossed() {
			alert = "  ALERT"
		}
		fmt.Fprintf(stdout, "%s  %10s%s\n", e.RecordedAt.Format(time.RFC3339), record.FormatMilliCelsius(e.Sample.TempMC), alert)
	}

	return nil
}

func runFlush(_ context.Context, cfg *config.Config) error {
	t := resolveTarget(cfg)
	if err := t.open(true); err != nil {
		return err
	}
	defer t.close()

	if err := t.handle.FlushBuffer(); err != nil {
		return err
	}
	logger.Info().Str("device", t.path).Msg("Device buffer flushed")

	return nil
}

func runResetStats(_ context.Context, cfg *config.Config) error {
	t := resolveTarget(cfg)
	if err := t.open(true); err != nil {
		return err
	}
	defer t.close()

	if err := t.handle.ResetStats(); err != nil {
		return err
	}
	logger.Info().Str("device", t.path).Msg("Driver statistics reset")

	return nil
}
