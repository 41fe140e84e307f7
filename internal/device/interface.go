package device

import (
	"time"

	"github.com/amaresga/simtemp/internal/record"
)

// Handle is an open simtemp device. Implementations own the file descriptor
// exclusively; Close is idempotent.
type Handle interface {
	// Path returns the device node the handle was opened from
	Path() string

	// ReadSample waits up to timeout for one whole record. A timeout of zero
	// probes once without blocking. Short reads and an idle device both
	// yield an error for which IsTimeout is true.
	ReadSample(timeout time.Duration) (record.Sample, error)

	// Configuration block access
	GetConfig() (Config, error)
	SetConfig(cfg Config) error

	// Driver statistics and control
	GetStats() (DriverStats, error)
	ResetStats() error
	Enable() error
	Disable() error
	FlushBuffer() error

	Close() error
	Closed() bool
}

// Opener opens a device node.
type Opener func(path string) (Handle, error)

type (
	// Config is the validated device configuration. It is passed by value.
	Config struct {
		SamplingMs  uint32 `json:"sampling_ms"`
		ThresholdMC int32  `json:"threshold_mC"`
		Mode        Mode   `json:"mode"`
		Enabled     bool   `json:"enabled"`
	}

	// Update changes only the non-nil fields of a Config.
	Update struct {
		SamplingMs  *uint32
		ThresholdMC *int32
		Mode        *Mode
		Enabled     *bool
	}

	// DriverStats mirrors the driver's statistics block.
	DriverStats struct {
		Updates     uint64 `json:"updates"`
		Alerts      uint64 `json:"alerts"`
		ReadCalls   uint64 `json:"read_calls"`
		PollCalls   uint64 `json:"poll_calls"`
		LastError   int32  `json:"last_error"`
		BufferUsage uint32 `json:"buffer_usage"`
	}
)

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.SamplingMs == nil && u.ThresholdMC == nil && u.Mode == nil && u.Enabled == nil
}

// ApplyTo returns cfg with the update's fields substituted.
func (u Update) ApplyTo(cfg Config) Config {
	if u.SamplingMs != nil {
		cfg.SamplingMs = *u.SamplingMs
	}
	if u.ThresholdMC != nil {
		cfg.ThresholdMC = *u.ThresholdMC
	}
	if u.Mode != nil {
		cfg.Mode = *u.Mode
	}
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}

	return cfg
}

// DefaultSamplingPeriod is used when no period can be read back.
const DefaultSamplingPeriod = 100 * time.Millisecond
