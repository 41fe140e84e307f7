// Package metrics exports monitoring session counters to Prometheus.
package metrics

import (
	"time"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/record"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simtemp"

// Collector turns acquisition events into Prometheus series.
type Collector struct {
	samples  prometheus.Counter
	alerts   prometheus.Counter
	timeouts prometheus.Counter
	readErrs prometheus.Counter
	temp     prometheus.Gauge
	interval prometheus.Gauge
	running  prometheus.Gauge
}

// NewCollector creates the series and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples decoded from the device.",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Samples reported with the threshold crossed flag.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_timeouts_total",
			Help:      "Reads that ended without a whole record.",
		}),
		readErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Reads that failed with an error other than a timeout.",
		}),
		temp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Most recent temperature reported by the device.",
		}),
		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_interval_seconds",
			Help:      "Consumer refresh interval derived from the sampling period.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_running",
			Help:      "1 while a monitoring session is polling the device.",
		}),
	}

	for _, col := range []prometheus.Collector{c.samples, c.alerts, c.timeouts, c.readErrs, c.temp, c.interval, c.running} {
		if err := reg.Register(col); err != nil {
			return nil, errors.New().Wrap(ErrRegisterFailed, err)
		}
	}

	return c, nil
}

func (c *Collector) ObserveSample(s record.Sample) {
	c.samples.Inc()
	if s.ThresholdCrossed() {
		c.alerts.Inc()
	}
	c.temp.Set(s.Celsius())
}

func (c *Collector) ObserveTimeout() {
	c.timeouts.Inc()
}

func (c *Collector) ObserveError() {
	c.readErrs.Inc()
}

func (c *Collector) ObserveInterval(d time.Duration) {
	c.interval.Set(d.Seconds())
}

func (c *Collector) ObserveRunning(running bool) {
	if running {
		c.running.Set(1)
		return
	}
	c.running.Set(0)
}
