package main

import (
	"context"
	"fmt"
	"time"

	"github.com/amaresga/simtemp/internal/config"
	"github.com/amaresga/simtemp/internal/dbus"
	"github.com/amaresga/simtemp/internal/device"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/metrics"
	"github.com/amaresga/simtemp/internal/monitor"
	"github.com/amaresga/simtemp/internal/pid"
	"github.com/amaresga/simtemp/internal/publish"
	"github.com/amaresga/simtemp/internal/record"
	"github.com/amaresga/simtemp/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

// sinkFunc adapts a function to monitor.Sink.
type sinkFunc func(ctx context.Context, s record.Sample) error

func (f sinkFunc) Record(ctx context.Context, s record.Sample) error {
	return f(ctx, s)
}

// outputs holds the optional consumers wired from configuration. Each is
// closed on shutdown in reverse order of setup.
type outputs struct {
	sinks    []monitor.Sink
	observer monitor.Observer
	closers  []func() error
}

func (o *outputs) close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("Shutdown step failed")
		}
	}
}

func setupOutputs(ctx context.Context, cfg *config.Config, path string) (*outputs, error) {
	out := &outputs{}

	if cfg.Telemetry {
		store, err := telemetry.NewService(telemetry.Config{
			DBPath:       cfg.TelemetryDB,
			BatchSize:    cfg.TelemetryBatchSize,
			BatchTimeout: cfg.TelemetryBatchTimeout,
			Enabled:      true,
		}, logger.Default())
		if err != nil {
			return out, err
		}
		out.sinks = append(out.sinks, store)
		out.closers = append(out.closers, store.Close)
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := publish.Connect(ctx, publish.Config{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Device:   path,
			Cooldown: cfg.KafkaCooldown,
		})
		if err != nil {
			return out, err
		}
		out.sinks = append(out.sinks, pub)
		out.closers = append(out.closers, pub.Close)
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector, err := metrics.NewCollector(reg)
		if err != nil {
			return out, err
		}
		srv, err := metrics.Serve(cfg.MetricsAddr, reg)
		if err != nil {
			return out, err
		}
		out.observer = collector
		out.closers = append(out.closers, srv.Close)
	}

	return out, nil
}

func runMonitor(ctx context.Context, cfg *config.Config) error {
	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	t := resolveTarget(cfg)

	out, err := setupOutputs(ctx, cfg, t.path)
	defer out.close()
	if err != nil {
		return err
	}

	// The bus service needs the monitor, which needs its sinks first.
	var bus *dbus.Service
	sinks := append(out.sinks, sinkFunc(func(ctx context.Context, s record.Sample) error {
		if bus == nil {
			return nil
		}
		return bus.Record(ctx, s)
	}))

	m, err := monitor.New(monitor.Options{
		Opener:        device.Open,
		Path:          t.path,
		Attributes:    t.attributes(),
		PollInterval:  cfg.PollInterval(),
		RecheckPeriod: cfg.RecheckPeriod(),
		Capacity:      cfg.BufferCapacity,
		Sinks:         sinks,
		Observer:      out.observer,
	})
	if err != nil {
		return err
	}

	if cfg.DBus {
		bus = dbus.NewService(m, device.NewController(nil, t.attributes()))
		conn, err := bus.Export()
		if err != nil {
			return err
		}
		defer conn.Close()
		logger.Info().Str("name", dbus.BusName).Msg("D-Bus service exported")
	}

	if err := cfg.Watch(ctx, func(next *config.Config) {
		logger.SetLevel(next.LogLevel)
		logger.Info().Str("log_level", next.LogLevel).Msg("Configuration reloaded")
	}); err != nil {
		logger.Warn().Err(err).Msg("Config watch unavailable")
	}

	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	display(ctx, m)

	return m.Err()
}

// display prints the session status at the adaptive update interval until
// ctx is cancelled or the session ends.
func display(ctx context.Context, m *monitor.Monitor) {
	var lastCount uint64

	timer := time.NewTimer(m.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Done():
			return
		case <-timer.C:
		}

		st := m.Stats()
		if st.Samples != lastCount && st.HasSample {
			lastCount = st.Samples
			fmt.Fprintln(stdout, statusLine(st))
		}

		timer.Reset(m.Interval())
	}
}

func statusLine(st monitor.Stats) string {
	alert := "no"
	if st.LastSample.ThresholdCrossed() {
		alert = "YES"
	}

	return fmt.Sprintf("%8.3fs  %10s  alert=%-3s  samples=%d  alerts=%d  refresh=%s",
		st.Elapsed(st.LastSample).Seconds(),
		record.FormatMilliCelsius(st.LastSample.TempMC),
		alert, st.Samples, st.Alerts, st.Interval)
}
