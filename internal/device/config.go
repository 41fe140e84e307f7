package device

import (
	"fmt"
	"strings"

	"github.com/amaresga/simtemp/internal/errors"
)

// Accepted configuration ranges.
const (
	MinSamplingMs  = 10
	MaxSamplingMs  = 5000
	MinThresholdMC = -50000
	MaxThresholdMC = 150000
)

// Mode selects the driver's temperature generator.
type Mode uint32

const (
	ModeNormal Mode = iota
	ModeNoisy
	ModeRamp
)

var modeNames = [...]string{
	ModeNormal: "normal",
	ModeNoisy:  "noisy",
	ModeRamp:   "ramp",
}

func (m Mode) String() string {
	if m.Valid() {
		return modeNames[m]
	}

	return fmt.Sprintf("mode(%d)", uint32(m))
}

// Valid reports whether m is a mode the driver understands.
func (m Mode) Valid() bool {
	return m <= ModeRamp
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errors.New().WithData(ErrInvalidMode, uint32(m))
	}

	return []byte(m.String()), nil
}

// UnmarshalText accepts a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed

	return nil
}

// ParseMode accepts a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}

	return 0, errors.New().WithData(ErrInvalidMode, s)
}

// rangeViolation is attached to ErrConfigOutOfRange errors.
type rangeViolation struct {
	Field string
	Value int64
	Min   int64
	Max   int64
}

func (r rangeViolation) String() string {
	return fmt.Sprintf("%s=%d not in [%d, %d]", r.Field, r.Value, r.Min, r.Max)
}

func outOfRange(field string, value, minValue, maxValue int64) error {
	return errors.New().WithData(ErrConfigOutOfRange, rangeViolation{
		Field: field,
		Value: value,
		Min:   minValue,
		Max:   maxValue,
	})
}

// ValidateSamplingPeriod checks a sampling period in milliseconds.
func ValidateSamplingPeriod(ms uint32) error {
	if ms < MinSamplingMs || ms > MaxSamplingMs {
		return outOfRange("sampling_ms", int64(ms), MinSamplingMs, MaxSamplingMs)
	}

	return nil
}

// ValidateThreshold checks an alert threshold in millidegrees Celsius.
func ValidateThreshold(mC int32) error {
	if mC < MinThresholdMC || mC > MaxThresholdMC {
		return outOfRange("threshold_mC", int64(mC), MinThresholdMC, MaxThresholdMC)
	}

	return nil
}

// ValidateMode checks a generator mode.
func ValidateMode(m Mode) error {
	if !m.Valid() {
		return outOfRange("mode", int64(m), int64(ModeNormal), int64(ModeRamp))
	}

	return nil
}

// Validate checks every field. Nothing is sent to a device unless this passes.
func (c Config) Validate() error {
	if err := ValidateSamplingPeriod(c.SamplingMs); err != nil {
		return err
	}
	if err := ValidateThreshold(c.ThresholdMC); err != nil {
		return err
	}

	return ValidateMode(c.Mode)
}

// Validate checks the fields the update sets.
func (u Update) Validate() error {
	if u.SamplingMs != nil {
		if err := ValidateSamplingPeriod(*u.SamplingMs); err != nil {
			return err
		}
	}
	if u.ThresholdMC != nil {
		if err := ValidateThreshold(*u.ThresholdMC); err != nil {
			return err
		}
	}
	if u.Mode != nil {
		if err := ValidateMode(*u.Mode); err != nil {
			return err
		}
	}

	return nil
}
