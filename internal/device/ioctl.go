package device

import "unsafe"

// Linux _IOC encoding: dir in bits 30-31, size in 16-29, type in 8-15, nr in 0-7.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocMagic = 'S'

	iocDirShift  = 30
	iocSizeShift = 16
	iocTypeShift = 8
)

// configFlagEnabled is the bit GET_CONFIG uses to report the enabled state.
// SET_CONFIG always sends flags as zero.
const configFlagEnabled = 0x1

// rawConfig matches struct simtemp_config.
type rawConfig struct {
	SamplingMs  uint32
	ThresholdMC int32
	Mode        uint32
	Flags       uint32
}

// rawStats matches struct simtemp_ioctl_stats.
type rawStats struct {
	Updates     uint64
	Alerts      uint64
	ReadCalls   uint64
	PollCalls   uint64
	LastError   int32
	BufferUsage uint32
}

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | size<<iocSizeShift | iocMagic<<iocTypeShift | nr
}

var (
	iocGetConfig   = ioc(iocRead, 1, unsafe.Sizeof(rawConfig{}))
	iocSetConfig   = ioc(iocWrite, 2, unsafe.Sizeof(rawConfig{}))
	iocGetStats    = ioc(iocRead, 3, unsafe.Sizeof(rawStats{}))
	iocResetStats  = ioc(iocNone, 4, 0)
	iocEnable      = ioc(iocNone, 5, 0)
	iocDisable     = ioc(iocNone, 6, 0)
	iocFlushBuffer = ioc(iocNone, 7, 0)
)

func toRawConfig(c Config) rawConfig {
	return rawConfig{
		SamplingMs:  c.SamplingMs,
		ThresholdMC: c.ThresholdMC,
		Mode:        uint32(c.Mode),
	}
}

func fromRawConfig(r rawConfig) Config {
	return Config{
		SamplingMs:  r.SamplingMs,
		ThresholdMC: r.ThresholdMC,
		Mode:        Mode(r.Mode),
		Enabled:     r.Flags&configFlagEnabled != 0,
	}
}

func fromRawStats(r rawStats) DriverStats {
	return DriverStats(r)
}
