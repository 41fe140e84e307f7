package monitor

import "github.com/amaresga/simtemp/internal/errors"

const (
	ErrAlreadyRunning = errors.ErrorCode("monitor_already_running")
	ErrInvalidOptions = errors.ErrorCode("monitor_invalid_options")
)

func init() {
	errors.Register(ErrAlreadyRunning, "Monitoring session already running")
	errors.Register(ErrInvalidOptions, "Invalid monitor options")
}
