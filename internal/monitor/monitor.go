// Package monitor runs the acquisition loop for one simtemp device.
package monitor

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amaresga/simtemp/internal/buffer"
	"github.com/amaresga/simtemp/internal/device"
	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/record"
)

const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultRecheckPeriod = 2 * time.Second
)

// Options configure a Monitor. Opener and Path are required.
type Options struct {
	Opener        device.Opener
	Path          string
	Attributes    device.Attributes
	PollInterval  time.Duration
	RecheckPeriod time.Duration
	Capacity      int
	Sinks         []Sink
	Observer      Observer
}

// Monitor owns one acquisition session at a time. The acquisition goroutine
// is the only writer of the buffer and counters.
type Monitor struct {
	opts Options
	buf  *buffer.Ring

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}
	err   error

	// sessMu makes a sample and Clear atomic with respect to each other and
	// guards the origin pair.
	sessMu    sync.Mutex
	origin    uint64
	hasOrigin bool

	samples  atomic.Uint64
	alerts   atomic.Uint64
	interval atomic.Int64
	periodMs atomic.Int64
	// observed is false until the device's period was read this session.
	observed atomic.Bool
}

func New(opts Options) (*Monitor, error) {
	if opts.Opener == nil || opts.Path == "" {
		return nil, errors.New().WithMessage(ErrInvalidOptions, "opener and device path are required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RecheckPeriod <= 0 {
		opts.RecheckPeriod = DefaultRecheckPeriod
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	m := &Monitor{
		opts: opts,
		buf:  buffer.New(opts.Capacity),
		done: make(chan struct{}),
	}
	close(m.done)
	m.setPeriod(device.DefaultSamplingPeriod.Milliseconds())

	return m, nil
}

// Start opens the device and begins polling. The session ends when Stop is
// called, ctx is cancelled or the handle is lost.
func (m *Monitor) Start(ctx context.Context) error {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return errFactory.WithData(ErrAlreadyRunning, m.state.String())
	}
	m.state = Opening

	if _, err := os.Stat(m.opts.Path); err != nil {
		m.state = Idle
		if os.IsNotExist(err) {
			return errFactory.WithData(device.ErrDeviceNotFound, m.opts.Path)
		}
		return errFactory.Wrap(device.ErrOpenFailed, err).WithMessage("stat " + m.opts.Path)
	}

	h, err := m.opts.Opener(m.opts.Path)
	if err != nil {
		m.state = Idle
		if errors.HasCode(err, device.ErrDeviceNotFound) || errors.HasCode(err, device.ErrOpenFailed) {
			return err
		}
		return errFactory.Wrap(device.ErrOpenFailed, err)
	}

	m.Clear()
	m.observed.Store(false)
	m.setPeriod(device.DefaultSamplingPeriod.Milliseconds())
	m.err = nil
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.state = Polling
	m.opts.Observer.ObserveRunning(true)

	logger.Info().
		Str("device", m.opts.Path).
		Dur("poll_interval", m.opts.PollInterval).
		Int("capacity", m.buf.Cap()).
		Msg("Monitoring started")

	go m.run(ctx, h, m.stop, m.done)

	return nil
}

// Stop ends the session and waits for the acquisition goroutine to close the
// handle. The wait is bounded by one poll interval. Stopping an idle
// monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != Polling {
		done := m.done
		m.mu.Unlock()
		<-done
		return
	}
	m.state = Stopping
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
}

// Done is closed when the current session has ended.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Err returns the error that ended the last session, if any.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Clear empties the buffer and counters without ending the session.
func (m *Monitor) Clear() {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()

	m.buf.Clear()
	m.samples.Store(0)
	m.alerts.Store(0)
	m.hasOrigin = false
	m.origin = 0
}

// Snapshot returns the buffered samples, oldest first.
func (m *Monitor) Snapshot() []record.Sample {
	return m.buf.Snapshot()
}

// Interval returns the current consumer refresh interval.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.interval.Load())
}

func (m *Monitor) Stats() Stats {
	st := Stats{
		State:       m.State(),
		Interval:    m.Interval(),
		SamplingMs:  m.periodMs.Load(),
		PeriodKnown: m.observed.Load(),
		DevicePath:  m.opts.Path,
	}

	m.sessMu.Lock()
	st.Samples = m.samples.Load()
	st.Alerts = m.alerts.Load()
	st.HasOrigin = m.hasOrigin
	st.OriginNs = m.origin
	st.Buffered = m.buf.Len()
	st.LastSample, st.HasSample = m.buf.Latest()
	m.sessMu.Unlock()

	return st
}

func (m *Monitor) setPeriod(ms int64) {
	m.periodMs.Store(ms)
	u := UpdateInterval(time.Duration(ms) * time.Millisecond)
	m.interval.Store(int64(u))
	m.opts.Observer.ObserveInterval(u)
}

func (m *Monitor) run(ctx context.Context, h device.Handle, stop <-chan struct{}, done chan struct{}) {
	var runErr error

	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close device")
		}

		m.mu.Lock()
		m.state = Idle
		m.err = runErr
		m.mu.Unlock()

		m.opts.Observer.ObserveRunning(false)
		close(done)
		logger.Info().Uint64("samples", m.samples.Load()).Uint64("alerts", m.alerts.Load()).Msg("Monitoring stopped")
	}()

	ctrl := device.NewController(h, m.opts.Attributes)
	var lastRecheck time.Time

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastRecheck) >= m.opts.RecheckPeriod {
			lastRecheck = time.Now()
			m.recheck(ctrl)
		}

		s, err := h.ReadSample(m.opts.PollInterval)
		switch {
		case err == nil:
			m.handleSample(ctx, s)
		case device.IsTimeout(err):
			m.opts.Observer.ObserveTimeout()
		case device.IsHandleLost(err):
			logger.Warn().Err(err).Msg("Device handle lost, ending session")
			runErr = err
			return
		default:
			m.opts.Observer.ObserveError()
			logger.Error().Err(err).Msg("Sample read failed")
			// Back off so a persistent error does not spin.
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(m.opts.PollInterval):
			}
		}
	}
}

func (m *Monitor) handleSample(ctx context.Context, s record.Sample) {
	m.sessMu.Lock()
	if !m.hasOrigin {
		m.origin = s.TimestampNs
		m.hasOrigin = true
	}
	m.samples.Add(1)
	if s.ThresholdCrossed() {
		m.alerts.Add(1)
	}
	m.buf.Push(s)
	m.sessMu.Unlock()

	if s.ThresholdCrossed() {
		logger.Debug().Str("temperature", s.String()).Msg("Threshold crossed")
	}
	m.opts.Observer.ObserveSample(s)

	for _, sink := range m.opts.Sinks {
		if err := sink.Record(ctx, s); err != nil {
			logger.Debug().Err(err).Msg("Sink rejected sample")
		}
	}
}

// recheck reads back the device's sampling period and retunes the update
// interval when it moved beyond the hysteresis band. The first reading of a
// session is always applied.
func (m *Monitor) recheck(ctrl *device.Controller) {
	period, err := ctrl.SamplingPeriod()
	if err != nil {
		logger.Debug().Err(err).Msg("Sampling period unavailable, keeping update interval")
		return
	}

	ms := period.Milliseconds()
	last := m.periodMs.Load()
	if m.observed.Load() && applyHysteresis(ms, last) {
		return
	}

	m.observed.Store(true)
	m.setPeriod(ms)
	logger.Debug().Msgf("Sampling period changed from %dms to %dms, update interval now %s", last, ms, m.Interval())
}
