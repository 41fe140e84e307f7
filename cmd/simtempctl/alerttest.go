package main

import (
	"context"
	"fmt"
	"time"

	"github.com/amaresga/simtemp/internal/config"
	"github.com/amaresga/simtemp/internal/device"
	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/record"
)

const (
	ErrAlertNotSeen = errors.ErrorCode("alert_not_seen")

	// alertMargin puts the test threshold just under the current reading so
	// a steady generator still crosses it.
	alertMargin = 500
)

func init() {
	errors.Register(ErrAlertNotSeen, "No threshold alert within the timeout")
}

func runTest(ctx context.Context, cfg *config.Config) error {
	t := resolveTarget(cfg)
	if err := t.open(true); err != nil {
		return err
	}
	defer t.close()

	s, err := alertTest(ctx, t.handle, t.controller(), cfg.Overrides.Timeout, cfg.PollInterval())
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "alert received at %s\n", record.FormatMilliCelsius(s.TempMC))

	return nil
}

// alertTest lowers the threshold to the current temperature, waits for a
// sample carrying the crossed flag and restores the previous threshold and
// enable state. The whole exchange is bounded by timeout.
func alertTest(ctx context.Context, h device.Handle, ctrl *device.Controller, timeout, poll time.Duration) (record.Sample, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prev, err := ctrl.Current()
	if err != nil {
		return record.Sample{}, err
	}

	if !prev.Enabled {
		if err := ctrl.SetEnabled(true); err != nil {
			return record.Sample{}, err
		}
	}
	defer func() {
		u := device.Update{ThresholdMC: &prev.ThresholdMC, Enabled: &prev.Enabled}
		if _, err := ctrl.Update(u); err != nil {
			logger.Error().Err(err).Msg("Failed to restore configuration after alert test")
		}
	}()

	current, err := nextSample(ctx, h, poll, func(record.Sample) bool { return true })
	if err != nil {
		return record.Sample{}, err
	}

	threshold := current.TempMC - alertMargin
	if threshold < device.MinThresholdMC {
		threshold = device.MinThresholdMC
	}
	if err := ctrl.SetThreshold(threshold); err != nil {
		return record.Sample{}, err
	}
	logger.Info().Str("current", record.FormatMilliCelsius(current.TempMC)).
		Str("threshold", record.FormatMilliCelsius(threshold)).Msg("Waiting for threshold alert")

	s, err := nextSample(ctx, h, poll, record.Sample.ThresholdCrossed)
	if err != nil {
		if errors.HasCode(err, errors.ErrTimeout) {
			return record.Sample{}, errFactory.WithData(ErrAlertNotSeen, timeout.String())
		}
		return record.Sample{}, err
	}

	return s, nil
}

// nextSample reads until match accepts a sample or ctx ends.
func nextSample(ctx context.Context, h device.Handle, poll time.Duration, match func(record.Sample) bool) (record.Sample, error) {
	for {
		if ctx.Err() != nil {
			return record.Sample{}, errors.New().Wrap(errors.ErrTimeout, ctx.Err())
		}

		wait := poll
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < wait {
				wait = max(left, 0)
			}
		}

		s, err := h.ReadSample(wait)
		switch {
		case err == nil:
			if match(s) {
				return s, nil
			}
		case device.IsTimeout(err):
		default:
			return record.Sample{}, err
		}
	}
}
