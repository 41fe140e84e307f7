package device

import "github.com/amaresga/simtemp/internal/errors"

const (
	// Lifecycle Errors
	ErrDeviceNotFound = errors.ErrorCode("device_not_found")
	ErrOpenFailed     = errors.ErrorCode("device_open_failed")
	ErrDeviceClosed   = errors.ErrorCode("device_closed")
	ErrHandleLost     = errors.ErrorCode("device_handle_lost")

	// Read Errors
	ErrReadTimeout = errors.ErrorCode("device_read_timeout")
	ErrReadFailed  = errors.ErrorCode("device_read_failed")

	// Configuration Errors
	ErrConfigRejected   = errors.ErrorCode("device_config_rejected")
	ErrConfigOutOfRange = errors.ErrorCode("device_config_out_of_range")
	ErrInvalidMode      = errors.ErrorCode("device_invalid_mode")
	ErrIoctlFailed      = errors.ErrorCode("device_ioctl_failed")
)

func init() {
	errors.Register(ErrDeviceNotFound, "Device not found")
	errors.Register(ErrOpenFailed, "Failed to open device")
	errors.Register(ErrDeviceClosed, "Device handle is closed")
	errors.Register(ErrHandleLost, "Device handle lost")
	errors.Register(ErrReadTimeout, "No sample available")
	errors.Register(ErrReadFailed, "Failed to read sample")
	errors.Register(ErrConfigRejected, "Device rejected configuration")
	errors.Register(ErrConfigOutOfRange, "Configuration value out of range")
	errors.Register(ErrInvalidMode, "Unknown device mode")
	errors.Register(ErrIoctlFailed, "Device control call failed")
}

// errTimeout is shared because timeouts are the steady state of an idle device.
var errTimeout = errors.New().New(ErrReadTimeout)

// IsTimeout reports whether err is the expected "no sample yet" outcome.
func IsTimeout(err error) bool {
	return errors.HasCode(err, ErrReadTimeout)
}

// IsHandleLost reports whether err means the handle can no longer be used.
func IsHandleLost(err error) bool {
	return errors.HasCode(err, ErrHandleLost) || errors.HasCode(err, ErrDeviceClosed)
}
