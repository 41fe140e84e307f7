// Package record implements the fixed-size binary sample emitted by the
// simtemp character device.
//
// Wire layout, little endian, no padding:
//
//	offset 0  u64 timestamp_ns
//	offset 8  i32 temp_mC
//	offset 12 u32 flags
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/amaresga/simtemp/internal/errors"
)

// Size is the exact length of one encoded sample.
const Size = 16

// Flag bits reported by the device. Other bits are reserved and preserved.
const (
	FlagNewSample        Flags = 0x01
	FlagThresholdCrossed Flags = 0x02
)

const ErrSizeMismatch = errors.ErrorCode("record_size_mismatch")

func init() {
	errors.Register(ErrSizeMismatch, "Sample record has wrong size")
}

// Flags is the status bitset carried by every sample.
type Flags uint32

// Has reports whether all bits in f are set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

// Sample is one decoded temperature reading.
type Sample struct {
	TimestampNs uint64 `json:"timestamp_ns"`
	TempMC      int32  `json:"temp_mc"`
	Flags       Flags  `json:"flags"`
}

// IsNew reports the NEW_SAMPLE bit.
func (s Sample) IsNew() bool {
	return s.Flags.Has(FlagNewSample)
}

// ThresholdCrossed reports the THRESHOLD_CROSSED bit as set by the device.
func (s Sample) ThresholdCrossed() bool {
	return s.Flags.Has(FlagThresholdCrossed)
}

// Celsius returns the temperature in degrees Celsius.
func (s Sample) Celsius() float64 {
	return float64(s.TempMC) / 1000
}

func (s Sample) String() string {
	return fmt.Sprintf("ts=%d temp=%s flags=0x%x", s.TimestampNs, FormatMilliCelsius(s.TempMC), uint32(s.Flags))
}

// FormatMilliCelsius renders millidegrees as a fixed three-decimal Celsius value.
func FormatMilliCelsius(mC int32) string {
	v := int64(mC)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	return fmt.Sprintf("%s%d.%03d°C", sign, v/1000, v%1000)
}

// Decode parses exactly one record. Any length other than Size is rejected.
func Decode(b []byte) (Sample, error) {
	if len(b) != Size {
		return Sample{}, errors.New().WithData(ErrSizeMismatch, struct {
			Got  int
			Want int
		}{
			Got:  len(b),
			Want: Size,
		})
	}

	return Sample{
		TimestampNs: binary.LittleEndian.Uint64(b[0:8]),
		TempMC:      int32(binary.LittleEndian.Uint32(b[8:12])),
		Flags:       Flags(binary.LittleEndian.Uint32(b[12:16])),
	}, nil
}

// Encode is the inverse of Decode.
func Encode(s Sample) []byte {
	b := make([]byte, Size)
	Put(b, s)

	return b
}

// Put writes s into b, which must be at least Size bytes long.
func Put(b []byte, s Sample) {
	_ = b[Size-1]
	binary.LittleEndian.PutUint64(b[0:8], s.TimestampNs)
	binary.LittleEndian.PutUint32(b[8:12], uint32(s.TempMC))
	binary.LittleEndian.PutUint32(b[12:16], uint32(s.Flags))
}
