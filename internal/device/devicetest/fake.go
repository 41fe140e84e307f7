// Package devicetest provides an in-memory device.Handle for tests.
package devicetest

import (
	"sync"
	"time"

	"github.com/amaresga/simtemp/internal/device"
	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/record"
)

// Fake is a scripted device. Queued samples are returned in order; an empty
// queue behaves like an idle device and waits out the read timeout.
type Fake struct {
	mu      sync.Mutex
	path    string
	queue   []record.Sample
	cfg     device.Config
	stats   device.DriverStats
	lost    bool
	closed  bool
	closes  int
	reads   int
	cfgRead int
	notify  chan struct{}
	done    chan struct{}
	setErr  error
	toggles []bool
}

// New returns an open Fake with a valid default configuration.
func New(path string) *Fake {
	return &Fake{
		path: path,
		cfg: device.Config{
			SamplingMs:  100,
			ThresholdMC: 45000,
			Mode:        device.ModeNormal,
			Enabled:     true,
		},
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Opener returns a device.Opener that always yields f.
func (f *Fake) Opener() device.Opener {
	return func(path string) (device.Handle, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed {
			return nil, errors.New().New(device.ErrOpenFailed)
		}
		return f, nil
	}
}

// Push queues samples for ReadSample.
func (f *Fake) Push(samples ...record.Sample) {
	f.mu.Lock()
	f.queue = append(f.queue, samples...)
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Lose makes reads fail with ErrHandleLost once the queue drains.
func (f *Fake) Lose() {
	f.mu.Lock()
	f.lost = true
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// FailSetConfig makes the next SetConfig calls fail with err.
func (f *Fake) FailSetConfig(err error) {
	f.mu.Lock()
	f.setErr = err
	f.mu.Unlock()
}

// Pending reports how many queued samples have not been read.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// CloseCalls reports how many times Close was called.
func (f *Fake) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Reads reports how many ReadSample calls were made.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// ConfigReads reports how many GetConfig calls were made.
func (f *Fake) ConfigReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfgRead
}

// Toggles returns the Enable (true) and Disable (false) calls in order.
func (f *Fake) Toggles() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.toggles...)
}

func (f *Fake) Path() string {
	return f.path
}

func (f *Fake) ReadSample(timeout time.Duration) (record.Sample, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		f.mu.Lock()
		f.reads++
		switch {
		case f.closed:
			f.mu.Unlock()
			return record.Sample{}, errors.New().New(device.ErrDeviceClosed)
		case len(f.queue) > 0:
			s := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return s, nil
		case f.lost:
			f.mu.Unlock()
			return record.Sample{}, errors.New().WithData(device.ErrHandleLost, f.path)
		}
		f.mu.Unlock()

		if timeout <= 0 {
			return record.Sample{}, errors.New().New(device.ErrReadTimeout)
		}

		select {
		case <-f.notify:
		case <-f.done:
		case <-deadline.C:
			return record.Sample{}, errors.New().New(device.ErrReadTimeout)
		}
	}
}

func (f *Fake) GetConfig() (device.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgRead++
	if f.closed {
		return device.Config{}, errors.New().New(device.ErrDeviceClosed)
	}
	return f.cfg, nil
}

func (f *Fake) SetConfig(cfg device.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New().New(device.ErrDeviceClosed)
	}
	if f.setErr != nil {
		return errors.New().Wrap(device.ErrConfigRejected, f.setErr)
	}
	f.cfg = cfg
	return nil
}

func (f *Fake) GetStats() (device.DriverStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return device.DriverStats{}, errors.New().New(device.ErrDeviceClosed)
	}
	st := f.stats
	st.ReadCalls = uint64(f.reads)
	st.BufferUsage = uint32(len(f.queue))
	return st, nil
}

func (f *Fake) ResetStats() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = device.DriverStats{}
	f.reads = 0
	return nil
}

func (f *Fake) Enable() error {
	return f.toggle(true)
}

func (f *Fake) Disable() error {
	return f.toggle(false)
}

func (f *Fake) toggle(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New().New(device.ErrDeviceClosed)
	}
	f.cfg.Enabled = on
	f.toggles = append(f.toggles, on)
	return nil
}

func (f *Fake) FlushBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = nil
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
