package monitor

import (
	"context"
	"time"

	"github.com/amaresga/simtemp/internal/record"
)

// Sink receives every decoded sample on the acquisition goroutine. Record
// should not block for long; slow sinks delay the next read.
type Sink interface {
	Record(ctx context.Context, s record.Sample) error
}

// Observer is notified of acquisition events for instrumentation.
type Observer interface {
	ObserveSample(s record.Sample)
	ObserveTimeout()
	ObserveError()
	ObserveInterval(d time.Duration)
	ObserveRunning(running bool)
}

type noopObserver struct{}

func (noopObserver) ObserveSample(record.Sample)   {}
func (noopObserver) ObserveTimeout()               {}
func (noopObserver) ObserveError()                 {}
func (noopObserver) ObserveInterval(time.Duration) {}
func (noopObserver) ObserveRunning(bool)           {}

// Stats is a point-in-time view of the session. PeriodKnown is false while
// SamplingMs is still the default rather than a value read from the device.
type Stats struct {
	State       State         `json:"state"`
	Samples     uint64        `json:"samples"`
	Alerts      uint64        `json:"alerts"`
	OriginNs    uint64        `json:"origin_ns"`
	HasOrigin   bool          `json:"has_origin"`
	Interval    time.Duration `json:"interval"`
	SamplingMs  int64         `json:"sampling_ms"`
	PeriodKnown bool          `json:"period_known"`
	Buffered    int           `json:"buffered"`
	DevicePath  string        `json:"device_path"`
	LastSample  record.Sample `json:"last_sample"`
	HasSample   bool          `json:"has_sample"`
}

// Elapsed returns the time of s relative to the session origin.
func (st Stats) Elapsed(s record.Sample) time.Duration {
	if !st.HasOrigin || s.TimestampNs < st.OriginNs {
		return 0
	}

	return time.Duration(s.TimestampNs - st.OriginNs)
}
