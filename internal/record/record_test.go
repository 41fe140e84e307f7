package record_test

import (
	"math"
	"testing"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripBoundaries(t *testing.T) {
	timestamps := []uint64{0, 1, math.MaxUint32, math.MaxUint64}
	temps := []int32{math.MinInt32, -5000, 0, 44123, math.MaxInt32}
	flags := []record.Flags{
		0,
		record.FlagNewSample,
		record.FlagThresholdCrossed,
		record.FlagNewSample | record.FlagThresholdCrossed,
		0x80000000,
		math.MaxUint32,
	}

	for _, ts := range timestamps {
		for _, temp := range temps {
			for _, fl := range flags {
				in := record.Sample{TimestampNs: ts, TempMC: temp, Flags: fl}
				out, err := record.Decode(record.Encode(in))
				require.NoError(t, err)
				require.Equal(t, in, out)
			}
		}
	}
}

func TestDecodeRejectsWrongSizes(t *testing.T) {
	full := record.Encode(record.Sample{TimestampNs: 1000000, TempMC: 25000, Flags: record.FlagNewSample})

	for size := 0; size < record.Size; size++ {
		_, err := record.Decode(full[:size])
		require.Error(t, err, "size %d", size)
		assert.True(t, errors.HasCode(err, record.ErrSizeMismatch), "size %d", size)
	}

	for _, size := range []int{17, 20, 32} {
		_, err := record.Decode(make([]byte, size))
		require.Error(t, err, "size %d", size)
		assert.True(t, errors.HasCode(err, record.ErrSizeMismatch), "size %d", size)
	}
}

func TestLayout(t *testing.T) {
	b := record.Encode(record.Sample{TimestampNs: 0x0102030405060708, TempMC: 0x11223344, Flags: 0x55667788})

	require.Len(t, b, 8+4+4)
	assert.Equal(t, []byte{
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0x44, 0x33, 0x22, 0x11,
		0x88, 0x77, 0x66, 0x55,
	}, b)
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name      string
		flags     record.Flags
		isNew     bool
		isCrossed bool
	}{
		{"none", 0, false, false},
		{"new sample", record.FlagNewSample, true, false},
		{"threshold crossed", record.FlagThresholdCrossed, false, true},
		{"combined", record.FlagNewSample | record.FlagThresholdCrossed, true, true},
		{"reserved only", 0xFFFFFFFC, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := record.Decode(record.Encode(record.Sample{TimestampNs: 1000000, TempMC: 46000, Flags: tt.flags}))
			require.NoError(t, err)
			assert.Equal(t, tt.isNew, s.IsNew())
			assert.Equal(t, tt.isCrossed, s.ThresholdCrossed())
			assert.Equal(t, tt.flags, s.Flags)
		})
	}
}

func TestConsecutiveRecords(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, record.Encode(record.Sample{
			TimestampNs: uint64(1000000 + i*100000),
			TempMC:      int32(25000 + i*100),
			Flags:       record.FlagNewSample,
		})...)
	}

	for i := 0; i < 5; i++ {
		s, err := record.Decode(stream[i*record.Size : (i+1)*record.Size])
		require.NoError(t, err)
		assert.Equal(t, uint64(1000000+i*100000), s.TimestampNs)
		assert.Equal(t, int32(25000+i*100), s.TempMC)
	}
}

func TestFormatMilliCelsius(t *testing.T) {
	assert.Equal(t, "44.123°C", record.FormatMilliCelsius(44123))
	assert.Equal(t, "-5.000°C", record.FormatMilliCelsius(-5000))
	assert.Equal(t, "-0.500°C", record.FormatMilliCelsius(-500))
	assert.Equal(t, "0.000°C", record.FormatMilliCelsius(0))
	assert.Equal(t, "-2147483.648°C", record.FormatMilliCelsius(math.MinInt32))
	assert.InDelta(t, 44.123, record.Sample{TempMC: 44123}.Celsius(), 1e-9)
}
